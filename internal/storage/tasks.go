package storage

import (
	"database/sql"
	"fmt"
	"strings"

	"taskpro/internal/models"
)

const dueDateFormat = "2006-01-02"

// nullDate converts an optional "YYYY-MM-DD" string to a DATE parameter.
func nullDate(s string) any {
	if s == "" {
		return nil
	}
	return s
}

// nullID converts a zero user id to NULL.
func nullID(id int64) any {
	if id == 0 {
		return nil
	}
	return id
}

func scanTask(row interface{ Scan(...any) error }, t *models.Task) error {
	var description sql.NullString
	var dueDate sql.NullTime
	var createdBy, assignedTo sql.NullInt64
	var assignedToName sql.NullString

	err := row.Scan(&t.ID, &t.Title, &description, &t.Status, &t.Priority,
		&t.CreatedAt, &dueDate, &createdBy, &assignedTo, &assignedToName)
	if err != nil {
		return err
	}

	t.Description = description.String
	if dueDate.Valid {
		t.DueDate = dueDate.Time.Format(dueDateFormat)
	}
	if createdBy.Valid {
		t.CreatedBy = &createdBy.Int64
	}
	if assignedTo.Valid {
		t.AssignedTo = &assignedTo.Int64
	}
	t.AssignedToName = assignedToName.String
	return nil
}

// CreateTask inserts a new task and returns its id. Status always
// starts as pending.
func (s *PostgresStorage) CreateTask(req models.TaskRequest, createdBy int64) (int64, error) {
	priority := req.Priority
	if priority == "" {
		priority = models.PriorityMedium
	}

	var assignedTo any
	if req.AssignedTo != nil {
		assignedTo = *req.AssignedTo
	}

	var id int64
	err := s.DB.QueryRow(`
        INSERT INTO tasks (title, description, priority, due_date, created_by, assigned_to)
        VALUES ($1, $2, $3, $4, $5, $6)
        RETURNING id`,
		req.Title, req.Description, priority, nullDate(req.DueDate), nullID(createdBy), assignedTo,
	).Scan(&id)
	return id, err
}

// GetTask retrieves the full view of a task: the row itself plus its
// tags, comments (newest first) and attachments. Returns (nil, nil)
// when the task does not exist.
func (s *PostgresStorage) GetTask(id int64) (*models.TaskDetail, error) {
	detail := &models.TaskDetail{
		Tags:        []models.Tag{},
		Comments:    []models.Comment{},
		Attachments: []models.Attachment{},
	}

	row := s.DB.QueryRow(`
        SELECT t.id, t.title, t.description, t.status, t.priority,
               t.created_at, t.due_date, t.created_by, t.assigned_to, au.name
        FROM tasks t
        LEFT JOIN users au ON au.id = t.assigned_to
        WHERE t.id = $1`, id)
	if err := scanTask(row, &detail.Task); err == sql.ErrNoRows {
		return nil, nil
	} else if err != nil {
		return nil, err
	}

	if detail.Task.CreatedBy != nil {
		var name sql.NullString
		err := s.DB.QueryRow("SELECT name FROM users WHERE id=$1", *detail.Task.CreatedBy).Scan(&name)
		if err != nil && err != sql.ErrNoRows {
			return nil, err
		}
		detail.Task.CreatedByName = name.String
	}

	rows, err := s.DB.Query(`
        SELECT tg.id, tg.name FROM task_tags tt
        JOIN tags tg ON tg.id = tt.tag_id
        WHERE tt.task_id = $1 ORDER BY tg.name`, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var tag models.Tag
		if err := rows.Scan(&tag.ID, &tag.Name); err != nil {
			return nil, err
		}
		detail.Tags = append(detail.Tags, tag)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	crows, err := s.DB.Query(`
        SELECT c.id, c.task_id, c.user_id, u.name, c.content, c.created_at
        FROM comments c
        LEFT JOIN users u ON u.id = c.user_id
        WHERE c.task_id = $1 ORDER BY c.created_at DESC`, id)
	if err != nil {
		return nil, err
	}
	defer crows.Close()
	for crows.Next() {
		var c models.Comment
		var userID sql.NullInt64
		var author sql.NullString
		if err := crows.Scan(&c.ID, &c.TaskID, &userID, &author, &c.Content, &c.CreatedAt); err != nil {
			return nil, err
		}
		if userID.Valid {
			c.UserID = &userID.Int64
		}
		c.Author = author.String
		detail.Comments = append(detail.Comments, c)
	}
	if err := crows.Err(); err != nil {
		return nil, err
	}

	arows, err := s.DB.Query(`
        SELECT id, task_id, filename, stored_path, size_bytes, created_at
        FROM attachments
        WHERE task_id = $1 ORDER BY created_at DESC`, id)
	if err != nil {
		return nil, err
	}
	defer arows.Close()
	for arows.Next() {
		var a models.Attachment
		if err := arows.Scan(&a.ID, &a.TaskID, &a.Filename, &a.StoredPath, &a.SizeBytes, &a.CreatedAt); err != nil {
			return nil, err
		}
		detail.Attachments = append(detail.Attachments, a)
	}
	return detail, arows.Err()
}

// UpdateTask overwrites the mutable fields of a task and returns the
// number of rows affected.
func (s *PostgresStorage) UpdateTask(id int64, req models.TaskRequest) (int64, error) {
	var assignedTo any
	if req.AssignedTo != nil {
		assignedTo = *req.AssignedTo
	}

	result, err := s.DB.Exec(`
        UPDATE tasks
        SET title=$1, description=$2, status=$3, priority=$4, due_date=$5, assigned_to=$6
        WHERE id=$7`,
		req.Title, req.Description, req.Status, req.Priority, nullDate(req.DueDate), assignedTo, id)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

// UpdateTaskStatus performs a status-only transition.
func (s *PostgresStorage) UpdateTaskStatus(id int64, status string) (int64, error) {
	result, err := s.DB.Exec("UPDATE tasks SET status=$1 WHERE id=$2", status, id)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

// DeleteTask removes a task; tags, comments and attachment rows cascade.
func (s *PostgresStorage) DeleteTask(id int64) (int64, error) {
	result, err := s.DB.Exec("DELETE FROM tasks WHERE id=$1", id)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

// ListTasks returns one page of tasks matching the filter, newest
// first, along with the unpaginated total.
func (s *PostgresStorage) ListTasks(f models.TaskFilter) (*models.TaskList, error) {
	f.Clamp()

	where := []string{"1=1"}
	args := []any{}
	if f.Status != "" {
		args = append(args, f.Status)
		where = append(where, fmt.Sprintf("t.status=$%d", len(args)))
	}
	if f.Priority != "" {
		args = append(args, f.Priority)
		where = append(where, fmt.Sprintf("t.priority=$%d", len(args)))
	}
	if f.AssignedTo != 0 {
		args = append(args, f.AssignedTo)
		where = append(where, fmt.Sprintf("t.assigned_to=$%d", len(args)))
	}
	if f.Query != "" {
		args = append(args, "%"+f.Query+"%")
		where = append(where, fmt.Sprintf("(t.title ILIKE $%d OR t.description ILIKE $%d)", len(args), len(args)))
	}

	base := " FROM tasks t LEFT JOIN users u ON u.id = t.assigned_to WHERE " + strings.Join(where, " AND ")

	list := &models.TaskList{Tasks: []models.Task{}, Page: f.Page, PerPage: f.PerPage}
	if err := s.DB.QueryRow("SELECT COUNT(*)"+base, args...).Scan(&list.Total); err != nil {
		return nil, err
	}

	args = append(args, f.PerPage, f.Offset())
	query := fmt.Sprintf(`
        SELECT t.id, t.title, t.description, t.status, t.priority,
               t.created_at, t.due_date, t.created_by, t.assigned_to, u.name
        %s
        ORDER BY t.created_at DESC
        LIMIT $%d OFFSET $%d`, base, len(args)-1, len(args))

	rows, err := s.DB.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var t models.Task
		if err := scanTask(rows, &t); err != nil {
			return nil, err
		}
		list.Tasks = append(list.Tasks, t)
	}
	return list, rows.Err()
}

// ListAllTasks returns every task, newest first, for the CSV export.
func (s *PostgresStorage) ListAllTasks() ([]models.Task, error) {
	rows, err := s.DB.Query(`
        SELECT t.id, t.title, t.description, t.status, t.priority,
               t.created_at, t.due_date, t.created_by, t.assigned_to, u.name
        FROM tasks t
        LEFT JOIN users u ON u.id = t.assigned_to
        ORDER BY t.created_at DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	tasks := []models.Task{}
	for rows.Next() {
		var t models.Task
		if err := scanTask(rows, &t); err != nil {
			return nil, err
		}
		tasks = append(tasks, t)
	}
	return tasks, rows.Err()
}

// TaskStats returns the dashboard counters.
func (s *PostgresStorage) TaskStats() (*models.Stats, error) {
	var st models.Stats
	err := s.DB.QueryRow(`
        SELECT
          COUNT(*) FILTER (WHERE status='pending'),
          COUNT(*) FILTER (WHERE status='in_progress'),
          COUNT(*) FILTER (WHERE status='completed'),
          COUNT(*) FILTER (WHERE priority='critical'),
          COUNT(*) FILTER (WHERE priority='high')
        FROM tasks`).
		Scan(&st.Pending, &st.InProgress, &st.Completed, &st.Critical, &st.High)
	if err != nil {
		return nil, err
	}
	return &st, nil
}

// AddTag upserts a tag by name and attaches it to the task. Attaching
// an already attached tag is a no-op.
func (s *PostgresStorage) AddTag(taskID int64, name string) (*models.Tag, error) {
	tag := &models.Tag{Name: name}

	err := s.DB.QueryRow("SELECT id FROM tags WHERE name=$1", name).Scan(&tag.ID)
	if err == sql.ErrNoRows {
		err = s.DB.QueryRow("INSERT INTO tags (name) VALUES ($1) RETURNING id", name).Scan(&tag.ID)
	}
	if err != nil {
		return nil, err
	}

	_, err = s.DB.Exec(
		"INSERT INTO task_tags (task_id, tag_id) VALUES ($1, $2) ON CONFLICT DO NOTHING",
		taskID, tag.ID)
	if err != nil {
		return nil, err
	}
	return tag, nil
}

// RemoveTag detaches a tag from a task.
func (s *PostgresStorage) RemoveTag(taskID, tagID int64) (int64, error) {
	result, err := s.DB.Exec("DELETE FROM task_tags WHERE task_id=$1 AND tag_id=$2", taskID, tagID)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

// AddComment appends a comment to a task.
func (s *PostgresStorage) AddComment(taskID, userID int64, content string) (int64, error) {
	var id int64
	err := s.DB.QueryRow(
		"INSERT INTO comments (task_id, user_id, content) VALUES ($1, $2, $3) RETURNING id",
		taskID, nullID(userID), content).Scan(&id)
	return id, err
}

// AddAttachment records an uploaded file for a task.
func (s *PostgresStorage) AddAttachment(taskID int64, filename, storedPath string, sizeBytes int64) (int64, error) {
	var id int64
	err := s.DB.QueryRow(
		"INSERT INTO attachments (task_id, filename, stored_path, size_bytes) VALUES ($1, $2, $3, $4) RETURNING id",
		taskID, filename, storedPath, sizeBytes).Scan(&id)
	return id, err
}

// GetAttachment retrieves an attachment row. Returns (nil, nil) when absent.
func (s *PostgresStorage) GetAttachment(id int64) (*models.Attachment, error) {
	var a models.Attachment
	err := s.DB.QueryRow(
		"SELECT id, task_id, filename, stored_path, size_bytes, created_at FROM attachments WHERE id=$1",
		id).Scan(&a.ID, &a.TaskID, &a.Filename, &a.StoredPath, &a.SizeBytes, &a.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &a, nil
}
