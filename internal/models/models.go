// Package models holds the data entities and request/response bodies
// shared between the handlers, the storage layer and the client.
package models

import (
	"encoding/json"
	"time"
)

// Task statuses.
const (
	StatusPending    = "pending"
	StatusInProgress = "in_progress"
	StatusCompleted  = "completed"
)

// Task priorities.
const (
	PriorityLow      = "low"
	PriorityMedium   = "medium"
	PriorityHigh     = "high"
	PriorityCritical = "critical"
)

// User roles.
const (
	RoleAdmin  = "admin"
	RoleMember = "member"
)

var validStatuses = map[string]bool{
	StatusPending:    true,
	StatusInProgress: true,
	StatusCompleted:  true,
}

var validPriorities = map[string]bool{
	PriorityLow:      true,
	PriorityMedium:   true,
	PriorityHigh:     true,
	PriorityCritical: true,
}

// ValidStatus reports whether s is one of the known task statuses.
func ValidStatus(s string) bool { return validStatuses[s] }

// ValidPriority reports whether p is one of the known task priorities.
func ValidPriority(p string) bool { return validPriorities[p] }

// User is an account row. PasswordHash never leaves the server.
type User struct {
	ID           int64     `json:"id"`
	Name         string    `json:"name"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"-"`
	Role         string    `json:"role"`
	Active       bool      `json:"active"`
	CreatedAt    time.Time `json:"created_at"`
}

// UserRef is the short form used by assignment pickers.
type UserRef struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

// Task is a single task row. The *Name fields are filled from joins
// when listing or fetching detail.
type Task struct {
	ID             int64     `json:"id"`
	Title          string    `json:"title"`
	Description    string    `json:"description,omitempty"`
	Status         string    `json:"status"`
	Priority       string    `json:"priority"`
	CreatedAt      time.Time `json:"created_at"`
	DueDate        string    `json:"due_date,omitempty"`
	CreatedBy      *int64    `json:"created_by,omitempty"`
	AssignedTo     *int64    `json:"assigned_to,omitempty"`
	CreatedByName  string    `json:"created_by_name,omitempty"`
	AssignedToName string    `json:"assigned_to_name,omitempty"`
}

// Tag is a label attached to tasks (N:N).
type Tag struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

// Comment belongs to a task; Author is the user name at read time.
type Comment struct {
	ID        int64     `json:"id"`
	TaskID    int64     `json:"task_id"`
	UserID    *int64    `json:"user_id,omitempty"`
	Author    string    `json:"author,omitempty"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
}

// Attachment records an uploaded file stored under the upload
// directory. StoredPath is server-local and not exposed to clients.
type Attachment struct {
	ID         int64     `json:"id"`
	TaskID     int64     `json:"task_id"`
	Filename   string    `json:"filename"`
	StoredPath string    `json:"-"`
	SizeBytes  int64     `json:"size_bytes"`
	CreatedAt  time.Time `json:"created_at"`
}

// AuditEntry is one row of the mutation trail.
type AuditEntry struct {
	ID        int64           `json:"id"`
	UserID    *int64          `json:"user_id,omitempty"`
	Action    string          `json:"action"`
	Entity    string          `json:"entity"`
	EntityID  *int64          `json:"entity_id,omitempty"`
	Detail    json.RawMessage `json:"detail,omitempty"`
	CreatedAt time.Time       `json:"created_at"`
}

// TaskDetail is the full view of a task.
type TaskDetail struct {
	Task        Task         `json:"task"`
	Tags        []Tag        `json:"tags"`
	Comments    []Comment    `json:"comments"`
	Attachments []Attachment `json:"attachments"`
}

// Stats holds the dashboard counters.
type Stats struct {
	Pending    int64 `json:"pending"`
	InProgress int64 `json:"in_progress"`
	Completed  int64 `json:"completed"`
	Critical   int64 `json:"critical"`
	High       int64 `json:"high"`
}

// RegisterRequest is the body of POST /register.
type RegisterRequest struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

// LoginRequest is the body of POST /login.
type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// TaskRequest is the body of task create and update calls. DueDate is
// "YYYY-MM-DD" or empty. Status is ignored on create.
type TaskRequest struct {
	Title       string `json:"title"`
	Description string `json:"description"`
	Status      string `json:"status"`
	Priority    string `json:"priority"`
	DueDate     string `json:"due_date"`
	AssignedTo  *int64 `json:"assigned_to"`
}

// StatusRequest is the body of POST /api/tasks/{id}/status.
type StatusRequest struct {
	Status string `json:"status"`
}

// TagRequest is the body of POST /api/tasks/{id}/tags.
type TagRequest struct {
	Name string `json:"name"`
}

// CommentRequest is the body of POST /api/tasks/{id}/comments.
type CommentRequest struct {
	Content string `json:"content"`
}

// Pagination bounds for the list endpoints.
const (
	MaxPage        = 10000
	MinPerPage     = 5
	MaxPerPage     = 100
	DefaultPerPage = 12
)

// TaskFilter carries the list query parameters.
type TaskFilter struct {
	Query      string
	Status     string
	Priority   string
	AssignedTo int64
	Page       int
	PerPage    int
}

// Clamp normalizes the pagination window in place.
func (f *TaskFilter) Clamp() {
	if f.Page < 1 {
		f.Page = 1
	}
	if f.Page > MaxPage {
		f.Page = MaxPage
	}
	if f.PerPage == 0 {
		f.PerPage = DefaultPerPage
	}
	if f.PerPage < MinPerPage {
		f.PerPage = MinPerPage
	}
	if f.PerPage > MaxPerPage {
		f.PerPage = MaxPerPage
	}
}

// Offset returns the row offset for the current page.
func (f *TaskFilter) Offset() int {
	return (f.Page - 1) * f.PerPage
}

// TaskList is a page of tasks plus the unpaginated total.
type TaskList struct {
	Tasks   []Task `json:"tasks"`
	Total   int64  `json:"total"`
	Page    int    `json:"page"`
	PerPage int    `json:"per_page"`
}
