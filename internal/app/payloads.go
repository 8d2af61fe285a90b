package app

import (
	"time"

	"trackboard/api/internal/board"
	"trackboard/api/internal/store"
)

// IssuePayload is the issue shape returned by the API.
type IssuePayload struct {
	ID          string             `json:"id"`
	OrgID       string             `json:"organizationId"`
	Title       string             `json:"title"`
	Description *string            `json:"description"`
	Status      board.Status       `json:"status"`
	Priority    board.Priority     `json:"priority"`
	Tags        []string           `json:"tags"`
	DueDate     *time.Time         `json:"dueDate"`
	Position    int                `json:"position"`
	ReporterID  string             `json:"reporterId"`
	AssigneeID  *string            `json:"assigneeId"`
	Reporter    store.UserSummary  `json:"reporter"`
	Assignee    *store.UserSummary `json:"assignee"`
	CreatedAt   time.Time          `json:"createdAt"`
	UpdatedAt   time.Time          `json:"updatedAt"`
}

func issuePayload(issue store.Issue) IssuePayload {
	tags := issue.Tags
	if tags == nil {
		tags = []string{}
	}
	return IssuePayload{
		ID:          issue.ID,
		OrgID:       issue.OrgID,
		Title:       issue.Title,
		Description: issue.Description,
		Status:      issue.Status,
		Priority:    issue.Priority,
		Tags:        tags,
		DueDate:     issue.DueDate,
		Position:    issue.Position,
		ReporterID:  issue.ReporterID,
		AssigneeID:  issue.AssigneeID,
		Reporter:    issue.Reporter,
		Assignee:    issue.Assignee,
		CreatedAt:   issue.CreatedAt,
		UpdatedAt:   issue.UpdatedAt,
	}
}

// HistoryPayload is one audit entry as returned by the API, newest first.
type HistoryPayload struct {
	ID        int64             `json:"id"`
	IssueID   string            `json:"issueId"`
	UserID    string            `json:"userId"`
	Field     string            `json:"fieldChanged"`
	OldValue  *string           `json:"oldValue"`
	NewValue  *string           `json:"newValue"`
	CreatedAt time.Time         `json:"createdAt"`
	User      store.UserSummary `json:"user"`
}

func historyPayload(entry store.HistoryEntry) HistoryPayload {
	return HistoryPayload{
		ID:        entry.ID,
		IssueID:   entry.IssueID,
		UserID:    entry.ActorID,
		Field:     entry.Field,
		OldValue:  entry.OldValue,
		NewValue:  entry.NewValue,
		CreatedAt: entry.CreatedAt,
		User:      entry.Actor,
	}
}

func issuePayloads(issues []store.Issue) []IssuePayload {
	payloads := make([]IssuePayload, 0, len(issues))
	for _, issue := range issues {
		payloads = append(payloads, issuePayload(issue))
	}
	return payloads
}
