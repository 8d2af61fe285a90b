package store

import (
	"errors"
	"time"

	"trackboard/api/internal/board"
)

var (
	// ErrNotFound means the row does not exist within the caller's organization.
	ErrNotFound = errors.New("not found")
	// ErrConflict means concurrent transactions could not be serialized even
	// after a retry; the caller should surface a 409.
	ErrConflict = errors.New("concurrent modification conflict")
	// ErrAssigneeNotMember means the requested assignee does not belong to the
	// issue's organization.
	ErrAssigneeNotMember = errors.New("assignee is not a member of the organization")
)

type User struct {
	ID        string
	Name      string
	Email     string
	Avatar    *string
	CreatedAt time.Time
	UpdatedAt time.Time
}

type Organization struct {
	ID        string
	Name      string
	Slug      string
	OwnerID   string
	CreatedAt time.Time
}

type Membership struct {
	UserID   string
	OrgID    string
	Role     string
	JoinedAt time.Time
}

// UserSummary is the slimmed-down actor shape embedded in API responses.
type UserSummary struct {
	ID     string  `json:"id"`
	Name   string  `json:"name"`
	Email  string  `json:"email"`
	Avatar *string `json:"avatar"`
}

type Issue struct {
	ID          string
	OrgID       string
	Title       string
	Description *string
	Status      board.Status
	Priority    board.Priority
	Tags        []string
	DueDate     *time.Time
	Position    int
	ReporterID  string
	AssigneeID  *string
	CreatedAt   time.Time
	UpdatedAt   time.Time
	// Joined fields for API responses
	Reporter UserSummary
	Assignee *UserSummary
}

// IssueDraft is the input for creating an issue. Position nil means append
// to the end of the target column.
type IssueDraft struct {
	ID          string
	OrgID       string
	ReporterID  string
	Title       string
	Description *string
	Status      board.Status
	Priority    board.Priority
	Tags        []string
	DueDate     *time.Time
	AssigneeID  *string
	Position    *int
}

type HistoryEntry struct {
	ID        int64
	IssueID   string
	ActorID   string
	Field     string
	OldValue  *string
	NewValue  *string
	CreatedAt time.Time
	// Joined fields for API responses
	Actor UserSummary
}

// IssueFilter narrows ListIssues. AssigneeID accepts the literal string
// "unassigned" to select issues with no assignee.
type IssueFilter struct {
	Status      string
	Priority    string
	AssigneeID  string
	Search      string
	DueDateFrom *time.Time
	DueDateTo   *time.Time
	Page        int
	PageSize    int
}

type IssuePage struct {
	Issues     []Issue
	Total      int
	Page       int
	PageSize   int
	TotalPages int
}
