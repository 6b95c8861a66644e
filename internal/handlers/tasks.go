package handlers

import (
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strconv"
	"strings"
	"unicode/utf8"

	"taskpro/internal/files"
	"taskpro/internal/models"

	"github.com/asaskevich/govalidator"
	"github.com/go-chi/chi/v5"
)

func pathID(req *http.Request, name string) (int64, error) {
	return strconv.ParseInt(chi.URLParam(req, name), 10, 64)
}

// truncate shortens s to at most max bytes without splitting a rune.
func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	for max > 0 && !utf8.RuneStart(s[max]) {
		max--
	}
	return s[:max]
}

// validateTaskRequest checks the enum and date fields shared by create
// and update. forUpdate additionally requires a valid status.
func validateTaskRequest(body *models.TaskRequest, forUpdate bool) error {
	body.Title = strings.TrimSpace(body.Title)
	if body.Title == "" {
		return errors.New("title is required")
	}
	if body.Priority != "" && !models.ValidPriority(body.Priority) {
		return errors.New("invalid priority")
	}
	if forUpdate && !models.ValidStatus(body.Status) {
		return errors.New("invalid status")
	}
	if body.DueDate != "" && !govalidator.IsTime(body.DueDate, "2006-01-02") {
		return errors.New("invalid due_date, want YYYY-MM-DD")
	}
	return nil
}

// ListTasks returns one page of tasks.
//
// Query parameters: q, status, priority, assigned, page, per_page.
//
// Response:
// - 200 OK: {"tasks": [...], "total": N, "page": P, "per_page": PP}.
// - 500 Internal Server Error: Storage failure.
func (con *Controller) ListTasks() http.HandlerFunc {
	return func(res http.ResponseWriter, req *http.Request) {
		q := req.URL.Query()
		filter := models.TaskFilter{
			Query:    strings.TrimSpace(q.Get("q")),
			Status:   strings.TrimSpace(q.Get("status")),
			Priority: strings.TrimSpace(q.Get("priority")),
		}
		filter.AssignedTo, _ = strconv.ParseInt(q.Get("assigned"), 10, 64)
		filter.Page, _ = strconv.Atoi(q.Get("page"))
		filter.PerPage, _ = strconv.Atoi(q.Get("per_page"))

		list, err := con.storageService.ListTasks(filter)
		if err != nil {
			con.Debug(res, "Internal server error", http.StatusInternalServerError)
			return
		}

		con.writeJSON(res, http.StatusOK, list)
	}
}

// CreateTask creates a task owned by the caller.
//
// Request Body: {"title", "description", "priority", "due_date", "assigned_to"}.
//
// Response:
// - 201 Created: {"id": N}.
// - 400 Bad Request: Missing title or invalid priority/due_date.
// - 500 Internal Server Error: Storage failure.
func (con *Controller) CreateTask() http.HandlerFunc {
	return func(res http.ResponseWriter, req *http.Request) {
		var body models.TaskRequest
		if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
			con.Debug(res, "Bad request", http.StatusBadRequest)
			return
		}
		if err := validateTaskRequest(&body, false); err != nil {
			con.Debug(res, "Bad request: "+err.Error(), http.StatusBadRequest)
			return
		}

		id, err := con.storageService.CreateTask(body, userID(req))
		if err != nil {
			con.Debug(res, "Internal server error", http.StatusInternalServerError)
			return
		}

		con.audit(req, "create", "task", id, map[string]any{"title": body.Title})
		con.notifier.TaskMutation("create", map[string]any{"id": id, "title": body.Title})

		con.writeJSON(res, http.StatusCreated, map[string]int64{"id": id})
	}
}

// GetTask returns the full view of a task.
//
// Response:
// - 200 OK: {"task": {...}, "tags": [...], "comments": [...], "attachments": [...]}.
// - 400 Bad Request: Non-numeric id.
// - 404 Not Found: No such task.
func (con *Controller) GetTask() http.HandlerFunc {
	return func(res http.ResponseWriter, req *http.Request) {
		id, err := pathID(req, "id")
		if err != nil {
			con.Debug(res, "Bad request", http.StatusBadRequest)
			return
		}

		detail, err := con.storageService.GetTask(id)
		if err != nil {
			con.Debug(res, "Internal server error", http.StatusInternalServerError)
			return
		}
		if detail == nil {
			con.Debug(res, "Task not found", http.StatusNotFound)
			return
		}

		con.writeJSON(res, http.StatusOK, detail)
	}
}

// UpdateTask overwrites the mutable fields of a task.
//
// Request Body: {"title", "description", "status", "priority", "due_date", "assigned_to"}.
//
// Response:
// - 200 OK: Saved.
// - 400 Bad Request: Invalid body, status, priority or due_date.
// - 404 Not Found: No such task.
func (con *Controller) UpdateTask() http.HandlerFunc {
	return func(res http.ResponseWriter, req *http.Request) {
		id, err := pathID(req, "id")
		if err != nil {
			con.Debug(res, "Bad request", http.StatusBadRequest)
			return
		}

		var body models.TaskRequest
		if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
			con.Debug(res, "Bad request", http.StatusBadRequest)
			return
		}
		if body.Priority == "" {
			body.Priority = models.PriorityMedium
		}
		if err := validateTaskRequest(&body, true); err != nil {
			con.Debug(res, "Bad request: "+err.Error(), http.StatusBadRequest)
			return
		}

		rows, err := con.storageService.UpdateTask(id, body)
		if err != nil {
			con.Debug(res, "Internal server error", http.StatusInternalServerError)
			return
		}
		if rows == 0 {
			con.Debug(res, "Task not found", http.StatusNotFound)
			return
		}

		con.audit(req, "update", "task", id, map[string]any{"status": body.Status, "priority": body.Priority})
		con.notifier.TaskMutation("update", map[string]any{"id": id, "status": body.Status, "priority": body.Priority})

		con.Debug(res, "Changes saved", http.StatusOK)
	}
}

// UpdateTaskStatus performs a status-only transition.
//
// Request Body: {"status": "pending" | "in_progress" | "completed"}.
//
// Response:
// - 200 OK: Updated.
// - 400 Bad Request: Invalid status.
// - 404 Not Found: No such task.
func (con *Controller) UpdateTaskStatus() http.HandlerFunc {
	return func(res http.ResponseWriter, req *http.Request) {
		id, err := pathID(req, "id")
		if err != nil {
			con.Debug(res, "Bad request", http.StatusBadRequest)
			return
		}

		var body models.StatusRequest
		if err := json.NewDecoder(req.Body).Decode(&body); err != nil || !models.ValidStatus(body.Status) {
			con.Debug(res, "Bad request: invalid status", http.StatusBadRequest)
			return
		}

		rows, err := con.storageService.UpdateTaskStatus(id, body.Status)
		if err != nil {
			con.Debug(res, "Internal server error", http.StatusInternalServerError)
			return
		}
		if rows == 0 {
			con.Debug(res, "Task not found", http.StatusNotFound)
			return
		}

		con.audit(req, "status", "task", id, map[string]any{"status": body.Status})
		con.notifier.StatusChange(id, body.Status)

		con.Debug(res, "Status updated", http.StatusOK)
	}
}

// DeleteTask removes a task and everything attached to it.
//
// Response:
// - 200 OK: Deleted.
// - 404 Not Found: No such task.
func (con *Controller) DeleteTask() http.HandlerFunc {
	return func(res http.ResponseWriter, req *http.Request) {
		id, err := pathID(req, "id")
		if err != nil {
			con.Debug(res, "Bad request", http.StatusBadRequest)
			return
		}

		rows, err := con.storageService.DeleteTask(id)
		if err != nil {
			con.Debug(res, "Internal server error", http.StatusInternalServerError)
			return
		}
		if rows == 0 {
			con.Debug(res, "Task not found", http.StatusNotFound)
			return
		}

		con.audit(req, "delete", "task", id, nil)
		con.notifier.TaskMutation("delete", map[string]any{"id": id})

		con.Debug(res, "Task deleted", http.StatusOK)
	}
}

// AddTag attaches a tag to a task, creating the tag on first use.
//
// Request Body: {"name": "..."} (lowercased).
//
// Response:
// - 200 OK: {"id": N, "name": "..."}.
// - 400 Bad Request: Empty name.
func (con *Controller) AddTag() http.HandlerFunc {
	return func(res http.ResponseWriter, req *http.Request) {
		id, err := pathID(req, "id")
		if err != nil {
			con.Debug(res, "Bad request", http.StatusBadRequest)
			return
		}

		var body models.TagRequest
		if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
			con.Debug(res, "Bad request", http.StatusBadRequest)
			return
		}
		name := strings.ToLower(strings.TrimSpace(body.Name))
		if name == "" {
			con.Debug(res, "Bad request: empty tag", http.StatusBadRequest)
			return
		}

		tag, err := con.storageService.AddTag(id, name)
		if err != nil {
			con.Debug(res, "Internal server error", http.StatusInternalServerError)
			return
		}

		con.audit(req, "update", "task", id, map[string]any{"tag_add": name})
		con.writeJSON(res, http.StatusOK, tag)
	}
}

// RemoveTag detaches a tag from a task.
//
// Response:
// - 200 OK: Removed.
// - 404 Not Found: The tag was not attached.
func (con *Controller) RemoveTag() http.HandlerFunc {
	return func(res http.ResponseWriter, req *http.Request) {
		id, err := pathID(req, "id")
		if err != nil {
			con.Debug(res, "Bad request", http.StatusBadRequest)
			return
		}
		tagID, err := pathID(req, "tagID")
		if err != nil {
			con.Debug(res, "Bad request", http.StatusBadRequest)
			return
		}

		rows, err := con.storageService.RemoveTag(id, tagID)
		if err != nil {
			con.Debug(res, "Internal server error", http.StatusInternalServerError)
			return
		}
		if rows == 0 {
			con.Debug(res, "Tag not found", http.StatusNotFound)
			return
		}

		con.audit(req, "update", "task", id, map[string]any{"tag_remove": tagID})
		con.Debug(res, "Tag removed", http.StatusOK)
	}
}

// AddComment appends a comment to a task.
//
// Request Body: {"content": "..."}.
//
// Response:
// - 200 OK: {"id": N}.
// - 400 Bad Request: Empty content.
func (con *Controller) AddComment() http.HandlerFunc {
	return func(res http.ResponseWriter, req *http.Request) {
		id, err := pathID(req, "id")
		if err != nil {
			con.Debug(res, "Bad request", http.StatusBadRequest)
			return
		}

		var body models.CommentRequest
		if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
			con.Debug(res, "Bad request", http.StatusBadRequest)
			return
		}
		content := strings.TrimSpace(body.Content)
		if content == "" {
			con.Debug(res, "Bad request: empty comment", http.StatusBadRequest)
			return
		}

		commentID, err := con.storageService.AddComment(id, userID(req), content)
		if err != nil {
			con.Debug(res, "Internal server error", http.StatusInternalServerError)
			return
		}

		con.audit(req, "comment", "task", id, map[string]any{"content": truncate(content, 120)})

		con.writeJSON(res, http.StatusOK, map[string]int64{"id": commentID})
	}
}

// UploadAttachment stores a multipart file upload for a task.
//
// Request: multipart/form-data with a "file" part.
//
// Response:
// - 200 OK: {"id": N, "filename": "...", "size_bytes": N}.
// - 400 Bad Request: Missing file or disallowed extension.
// - 413 Request Entity Too Large: File over the size cap.
func (con *Controller) UploadAttachment() http.HandlerFunc {
	return func(res http.ResponseWriter, req *http.Request) {
		id, err := pathID(req, "id")
		if err != nil {
			con.Debug(res, "Bad request", http.StatusBadRequest)
			return
		}

		// Cap the whole request before FormFile buffers it; the extra
		// megabyte covers the multipart framing.
		req.Body = http.MaxBytesReader(res, req.Body, con.conf.MaxUploadBytes+(1<<20))

		file, header, err := req.FormFile("file")
		if err != nil {
			var maxErr *http.MaxBytesError
			if errors.As(err, &maxErr) {
				con.Debug(res, "File too large", http.StatusRequestEntityTooLarge)
				return
			}
			con.Debug(res, "Bad request: select a file", http.StatusBadRequest)
			return
		}
		defer file.Close()

		storedPath, size, err := con.fileStore.Save(id, header.Filename, file)
		if errors.Is(err, files.ErrExtension) {
			con.Debug(res, "Bad request: file type not allowed", http.StatusBadRequest)
			return
		}
		if errors.Is(err, files.ErrTooLarge) {
			con.Debug(res, "File too large", http.StatusRequestEntityTooLarge)
			return
		}
		if err != nil {
			con.Debug(res, "Internal server error", http.StatusInternalServerError)
			return
		}

		filename := files.SanitizeFilename(header.Filename)
		attachmentID, err := con.storageService.AddAttachment(id, filename, storedPath, size)
		if err != nil {
			// The row failed (e.g. the task is gone); drop the orphan file.
			os.Remove(storedPath)
			con.Debug(res, "Internal server error", http.StatusInternalServerError)
			return
		}

		con.audit(req, "attach", "task", id, map[string]any{"filename": filename, "size_bytes": size})

		con.writeJSON(res, http.StatusOK, map[string]any{
			"id":         attachmentID,
			"filename":   filename,
			"size_bytes": size,
		})
	}
}

// DownloadAttachment streams an attachment back with its original name.
//
// Response:
// - 200 OK: The file as an attachment.
// - 404 Not Found: Unknown id or missing file on disk.
func (con *Controller) DownloadAttachment() http.HandlerFunc {
	return func(res http.ResponseWriter, req *http.Request) {
		id, err := pathID(req, "id")
		if err != nil {
			con.Debug(res, "Bad request", http.StatusBadRequest)
			return
		}

		a, err := con.storageService.GetAttachment(id)
		if err != nil {
			con.Debug(res, "Internal server error", http.StatusInternalServerError)
			return
		}
		if a == nil {
			con.Debug(res, "Attachment not found", http.StatusNotFound)
			return
		}

		path, err := con.fileStore.Resolve(a.StoredPath)
		if err != nil {
			con.Debug(res, "Attachment not found", http.StatusNotFound)
			return
		}

		res.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", a.Filename))
		http.ServeFile(res, req, path)
	}
}

// TaskStats returns the dashboard counters.
//
// Response:
// - 200 OK: {"pending": N, "in_progress": N, "completed": N, "critical": N, "high": N}.
func (con *Controller) TaskStats() http.HandlerFunc {
	return func(res http.ResponseWriter, req *http.Request) {
		stats, err := con.storageService.TaskStats()
		if err != nil {
			con.Debug(res, "Internal server error", http.StatusInternalServerError)
			return
		}
		con.writeJSON(res, http.StatusOK, stats)
	}
}

// ListUsers returns active users for assignment pickers.
//
// Response:
// - 200 OK: [{"id": N, "name": "..."}].
func (con *Controller) ListUsers() http.HandlerFunc {
	return func(res http.ResponseWriter, req *http.Request) {
		users, err := con.storageService.ListActiveUsers()
		if err != nil {
			con.Debug(res, "Internal server error", http.StatusInternalServerError)
			return
		}
		con.writeJSON(res, http.StatusOK, users)
	}
}

// ListAudit returns recent audit entries. Admin only (enforced by
// RequireAdminMiddleware on the route).
//
// Query parameters: page, per_page.
//
// Response:
// - 200 OK: [{"id", "user_id", "action", "entity", "entity_id", "detail", "created_at"}].
func (con *Controller) ListAudit() http.HandlerFunc {
	return func(res http.ResponseWriter, req *http.Request) {
		page, _ := strconv.Atoi(req.URL.Query().Get("page"))
		perPage, _ := strconv.Atoi(req.URL.Query().Get("per_page"))

		entries, err := con.storageService.ListAudit(page, perPage)
		if err != nil {
			con.Debug(res, "Internal server error", http.StatusInternalServerError)
			return
		}
		con.writeJSON(res, http.StatusOK, entries)
	}
}

// ExportTasksCSV streams every task as a CSV attachment, newest first.
//
// Response:
// - 200 OK: text/csv with a tasks.csv attachment disposition.
func (con *Controller) ExportTasksCSV() http.HandlerFunc {
	return func(res http.ResponseWriter, req *http.Request) {
		tasks, err := con.storageService.ListAllTasks()
		if err != nil {
			con.Debug(res, "Internal server error", http.StatusInternalServerError)
			return
		}

		res.Header().Set("Content-Type", "text/csv")
		res.Header().Set("Content-Disposition", `attachment; filename="tasks.csv"`)

		w := csv.NewWriter(res)
		_ = w.Write([]string{"id", "title", "description", "status", "priority", "created_at", "due_date", "created_by", "assigned_to", "assigned_to_name"})
		for _, t := range tasks {
			createdBy, assignedTo := "", ""
			if t.CreatedBy != nil {
				createdBy = strconv.FormatInt(*t.CreatedBy, 10)
			}
			if t.AssignedTo != nil {
				assignedTo = strconv.FormatInt(*t.AssignedTo, 10)
			}
			_ = w.Write([]string{
				strconv.FormatInt(t.ID, 10),
				t.Title,
				t.Description,
				t.Status,
				t.Priority,
				t.CreatedAt.Format("2006-01-02 15:04:05"),
				t.DueDate,
				createdBy,
				assignedTo,
				t.AssignedToName,
			})
		}
		w.Flush()
		if err := w.Error(); err != nil {
			con.logger.Errorf("CSV export failed: %v", err)
		}
	}
}
