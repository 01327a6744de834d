package store

import (
	"strings"
	"time"
)

// TaskStatus represents the current state of a task in the backlog.
type TaskStatus string

const (
	StatusTodo       TaskStatus = "TODO"
	StatusInProgress TaskStatus = "IN_PROGRESS"
	StatusInReview   TaskStatus = "IN_REVIEW"
	StatusDone       TaskStatus = "DONE"
	StatusBlocked    TaskStatus = "BLOCKED"
	StatusCancelled  TaskStatus = "CANCELLED"
)

// AllStatuses lists statuses in board order.
var AllStatuses = []TaskStatus{
	StatusTodo, StatusInProgress, StatusInReview, StatusBlocked, StatusDone, StatusCancelled,
}

// ParseStatus accepts any case and "-" or " " separators.
func ParseStatus(s string) (TaskStatus, bool) {
	norm := strings.ToUpper(strings.NewReplacer("-", "_", " ", "_").Replace(strings.TrimSpace(s)))
	for _, st := range AllStatuses {
		if string(st) == norm {
			return st, true
		}
	}
	return "", false
}

// Priority of a task.
type Priority string

const (
	PriorityLow    Priority = "LOW"
	PriorityMedium Priority = "MEDIUM"
	PriorityHigh   Priority = "HIGH"
	PriorityUrgent Priority = "URGENT"
)

// ParsePriority accepts any case. The empty string maps to MEDIUM.
func ParsePriority(s string) (Priority, bool) {
	switch Priority(strings.ToUpper(strings.TrimSpace(s))) {
	case "":
		return PriorityMedium, true
	case PriorityLow:
		return PriorityLow, true
	case PriorityMedium:
		return PriorityMedium, true
	case PriorityHigh:
		return PriorityHigh, true
	case PriorityUrgent:
		return PriorityUrgent, true
	}
	return "", false
}

// OwnerScope is the user + optional project + optional board a task belongs to.
type OwnerScope struct {
	UserID    string `json:"user_id"`
	ProjectID string `json:"project_id,omitempty"`
	BoardID   string `json:"board_id,omitempty"`
}

// Key is the stable identifier of the scope used for position counters.
func (s OwnerScope) Key() string {
	return s.UserID + "/" + s.ProjectID + "/" + s.BoardID
}

// ClaimInfo records which agent owns a task. A nil *ClaimInfo means the task
// is unclaimed; a non-nil one implies StatusInProgress.
type ClaimInfo struct {
	Holder     string    `json:"holder"`
	ClaimedAt  time.Time `json:"claimed_at"`
	ModifiedBy string    `json:"modified_by"`
	ModifiedAt time.Time `json:"modified_at"`
}

// Provenance records where an imported task came from. Nil for tasks created
// by hand.
type Provenance struct {
	ListName    string    `json:"list_name"`
	SourceFile  string    `json:"source_file"`
	Category    string    `json:"category"`
	ImportID    string    `json:"import_id"`
	ContentHash string    `json:"content_hash,omitempty"`
	ImportedAt  time.Time `json:"imported_at"`
}

// Task is a unit of work in the backlog.
type Task struct {
	ID          string      `json:"id"`
	Scope       OwnerScope  `json:"scope"`
	Title       string      `json:"title"`
	Description string      `json:"description,omitempty"`
	Status      TaskStatus  `json:"status"`
	Priority    Priority    `json:"priority"`
	Category    string      `json:"category,omitempty"`
	Phase       string      `json:"phase,omitempty"`
	Tags        []string    `json:"tags"`
	Position    int64       `json:"position"`
	Provenance  *Provenance `json:"provenance,omitempty"`
	Claim       *ClaimInfo  `json:"claim,omitempty"`
	CreatedAt   time.Time   `json:"created_at"`
	UpdatedAt   time.Time   `json:"updated_at"`
}

// ShortID returns the first eight characters of the task ID.
func (t *Task) ShortID() string {
	if len(t.ID) <= 8 {
		return t.ID
	}
	return t.ID[:8]
}

// Event represents something that happened to a task.
type Event struct {
	ID        int64     `json:"id"`
	TaskID    string    `json:"task_id"`
	Agent     string    `json:"agent,omitempty"`
	Type      string    `json:"event_type"` // created, imported, claimed, released, status_changed, priority_changed
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
}

// User, Project and Board are the owner-scope records the importer verifies.
type User struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
}

type Project struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
}

type Board struct {
	ID        string    `json:"id"`
	ProjectID string    `json:"project_id"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
}

// TaskFilter narrows ListTasks. Zero values mean "any".
type TaskFilter struct {
	Scope    *OwnerScope
	Status   TaskStatus
	Phase    string
	Category string
	Holder   string
	Limit    int
}
