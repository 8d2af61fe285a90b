package export

import (
	"context"
	"fmt"
	"time"
)

// DataStore defines the data access the exporter needs. The app layer
// provides an adapter so this package stays decoupled from storage types.
type DataStore interface {
	GetIssue(ctx context.Context, orgID, issueID string) (IssueInfo, error)
	ListIssueHistory(ctx context.Context, orgID, issueID string) ([]ChangeInfo, error)
}

// IssueInfo holds the issue fields the exporter renders
type IssueInfo struct {
	ID          string
	Title       string
	Description string
	Status      string
	Priority    string
	Reporter    string
	Assignee    string
	Tags        []string
	DueDate     *time.Time
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// ChangeInfo holds one audit entry
type ChangeInfo struct {
	Field     string
	OldValue  string
	NewValue  string
	Actor     string
	CreatedAt time.Time
}

// Service provides issue export functionality
type Service struct {
	store DataStore
}

// NewService creates a new export service
func NewService(store DataStore) *Service {
	return &Service{store: store}
}

// Export generates an export in the requested format
func (s *Service) Export(ctx context.Context, req Request) (*Result, error) {
	issue, err := s.store.GetIssue(ctx, req.OrgID, req.IssueID)
	if err != nil {
		return nil, fmt.Errorf("get issue: %w", err)
	}

	history, err := s.store.ListIssueHistory(ctx, req.OrgID, req.IssueID)
	if err != nil {
		return nil, fmt.Errorf("list issue history: %w", err)
	}

	data := TemplateData{
		Title:       issue.Title,
		Description: issue.Description,
		Status:      issue.Status,
		Priority:    issue.Priority,
		Reporter:    issue.Reporter,
		Assignee:    issue.Assignee,
		Tags:        issue.Tags,
		CreatedAt:   issue.CreatedAt,
		UpdatedAt:   issue.UpdatedAt,
	}
	if issue.DueDate != nil {
		data.DueDate = issue.DueDate.Format("Jan 2, 2006")
	}
	for _, change := range history {
		data.History = append(data.History, TemplateChange{
			Field:     change.Field,
			OldValue:  change.OldValue,
			NewValue:  change.NewValue,
			Actor:     change.Actor,
			CreatedAt: change.CreatedAt,
		})
	}

	html, err := RenderIssueHTML(data)
	if err != nil {
		return nil, fmt.Errorf("render template: %w", err)
	}

	switch req.Format {
	case FormatHTML:
		return &Result{
			Data:     []byte(html),
			Filename: sanitizeFilename(issue.Title) + ".html",
			MimeType: "text/html; charset=utf-8",
		}, nil
	case FormatPDF:
		return exportPDF(html, issue.Title)
	case FormatDOCX:
		return exportDOCX(html, issue.Title)
	default:
		return nil, fmt.Errorf("unsupported format: %s", req.Format)
	}
}
