package app

import (
	"context"
	"log"
	"net/http"
	"strings"
	"time"
	"unicode/utf8"

	"trackboard/api/internal/auth"
	"trackboard/api/internal/board"
	"trackboard/api/internal/config"
	"trackboard/api/internal/export"
	"trackboard/api/internal/rbac"
	"trackboard/api/internal/search"
	"trackboard/api/internal/store"
	"trackboard/api/internal/util"
)

const (
	maxTitleLength  = 200
	defaultPageSize = 20
	maxPageSize     = 100
	// boardPageSize covers a whole board in one response for kanban clients.
	boardPageSize = 1000
)

type Session struct {
	Token     string
	UserID    string
	UserName  string
	OrgID     string
	JTI       string
	ExpiresAt time.Time
}

type dataStore interface {
	Ping(ctx context.Context) error
	GetIssue(ctx context.Context, orgID, issueID string) (store.Issue, error)
	ListIssues(ctx context.Context, orgID string, filter store.IssueFilter) (store.IssuePage, error)
	CreateIssue(ctx context.Context, draft store.IssueDraft) (store.Issue, error)
	UpdateIssue(ctx context.Context, orgID, issueID, actorID string, patch board.Patch) (store.Issue, error)
	DeleteIssue(ctx context.Context, orgID, issueID string) error
	ListIssueHistory(ctx context.Context, orgID, issueID string) ([]store.HistoryEntry, error)
	VerifyOrgMembership(ctx context.Context, userID, orgID string) (*store.Membership, error)
}

type boardCache interface {
	GetBoard(ctx context.Context, orgID string) (*store.IssuePage, error)
	SetBoard(ctx context.Context, orgID string, page store.IssuePage) error
	Invalidate(ctx context.Context, orgID string) error
}

type Service struct {
	cfg    config.Config
	store  dataStore
	search *search.Service
	export *export.Service
	cache  boardCache
}

func New(cfg config.Config, dataStore dataStore, searchService *search.Service) *Service {
	s := &Service{
		cfg:    cfg,
		store:  dataStore,
		search: searchService,
	}
	s.export = export.NewService(&exportAdapter{store: dataStore})
	return s
}

// NewWithBoardCache wires a Redis board cache in front of unfiltered lists.
func NewWithBoardCache(cfg config.Config, dataStore dataStore, searchService *search.Service, cache boardCache) *Service {
	s := New(cfg, dataStore, searchService)
	s.cache = cache
	return s
}

func (s *Service) Ping(ctx context.Context) error {
	return s.store.Ping(ctx)
}

func (s *Service) SessionFromToken(ctx context.Context, token string) (Session, error) {
	claims, err := auth.ParseToken([]byte(s.cfg.JWTSecret), token)
	if err != nil {
		return Session{}, err
	}
	return Session{
		Token:     token,
		UserID:    claims.Sub,
		UserName:  claims.Name,
		OrgID:     claims.Org,
		JTI:       claims.JTI,
		ExpiresAt: time.Unix(claims.Exp, 0),
	}, nil
}

// Membership resolves the caller's role in an organization, nil when the
// user is not a member.
func (s *Service) Membership(ctx context.Context, userID, orgID string) (*store.Membership, error) {
	return s.store.VerifyOrgMembership(ctx, userID, orgID)
}

func (s *Service) Can(role rbac.Role, action rbac.Action) bool {
	return rbac.Can(role, action)
}

// CreateIssueInput is the request body for creating an issue.
type CreateIssueInput struct {
	Title       string     `json:"title"`
	Description *string    `json:"description"`
	Status      string     `json:"status"`
	Priority    string     `json:"priority"`
	AssigneeID  *string    `json:"assigneeId"`
	Tags        []string   `json:"tags"`
	DueDate     *time.Time `json:"dueDate"`
	Position    *int       `json:"position"`
}

func (s *Service) CreateIssue(ctx context.Context, session Session, orgID string, input CreateIssueInput) (IssuePayload, error) {
	title := strings.TrimSpace(input.Title)
	if err := validateTitle(title); err != nil {
		return IssuePayload{}, err
	}

	status := board.StatusTodo
	if input.Status != "" {
		parsed, ok := board.ParseStatus(input.Status)
		if !ok {
			return IssuePayload{}, domainError(http.StatusBadRequest, "VALIDATION_ERROR", "Invalid status value", nil)
		}
		status = parsed
	}

	priority := board.PriorityMedium
	if input.Priority != "" {
		parsed, ok := board.ParsePriority(input.Priority)
		if !ok {
			return IssuePayload{}, domainError(http.StatusBadRequest, "VALIDATION_ERROR", "Invalid priority value", nil)
		}
		priority = parsed
	}

	draft := store.IssueDraft{
		ID:          util.NewID("iss"),
		OrgID:       orgID,
		ReporterID:  session.UserID,
		Title:       title,
		Description: input.Description,
		Status:      status,
		Priority:    priority,
		Tags:        input.Tags,
		DueDate:     input.DueDate,
		AssigneeID:  input.AssigneeID,
		Position:    input.Position,
	}

	issue, err := s.store.CreateIssue(ctx, draft)
	if err != nil {
		return IssuePayload{}, err
	}

	s.afterMutation(ctx, issue)
	return issuePayload(issue), nil
}

func (s *Service) GetIssue(ctx context.Context, orgID, issueID string) (IssuePayload, error) {
	issue, err := s.store.GetIssue(ctx, orgID, issueID)
	if err != nil {
		return IssuePayload{}, err
	}
	return issuePayload(issue), nil
}

// ListIssues serves a filtered, paginated list. An entirely unfiltered
// request is a board load: one big page, served from the cache when possible.
func (s *Service) ListIssues(ctx context.Context, orgID string, filter store.IssueFilter) (store.IssuePage, error) {
	if err := validateFilter(filter); err != nil {
		return store.IssuePage{}, err
	}

	boardLoad := filter == (store.IssueFilter{})
	if boardLoad {
		filter.Page = 1
		filter.PageSize = boardPageSize
		if s.cache != nil {
			if page, err := s.cache.GetBoard(ctx, orgID); err != nil {
				log.Printf("cache: get board %s: %v", orgID, err)
			} else if page != nil {
				return *page, nil
			}
		}
	} else {
		if filter.PageSize < 1 {
			filter.PageSize = defaultPageSize
		}
		if filter.PageSize > maxPageSize {
			filter.PageSize = maxPageSize
		}
	}

	page, err := s.store.ListIssues(ctx, orgID, filter)
	if err != nil {
		return store.IssuePage{}, err
	}

	if boardLoad && s.cache != nil {
		if err := s.cache.SetBoard(ctx, orgID, page); err != nil {
			log.Printf("cache: set board %s: %v", orgID, err)
		}
	}
	return page, nil
}

func (s *Service) UpdateIssue(ctx context.Context, session Session, orgID, issueID string, patch board.Patch) (IssuePayload, error) {
	if err := validatePatch(patch); err != nil {
		return IssuePayload{}, err
	}

	issue, err := s.store.UpdateIssue(ctx, orgID, issueID, session.UserID, patch)
	if err != nil {
		return IssuePayload{}, err
	}

	s.afterMutation(ctx, issue)
	return issuePayload(issue), nil
}

func (s *Service) DeleteIssue(ctx context.Context, orgID, issueID string) error {
	if err := s.store.DeleteIssue(ctx, orgID, issueID); err != nil {
		return err
	}
	s.invalidateBoard(ctx, orgID)
	if s.search != nil {
		s.search.DeleteIssue(issueID)
	}
	return nil
}

func (s *Service) IssueHistory(ctx context.Context, orgID, issueID string) ([]HistoryPayload, error) {
	entries, err := s.store.ListIssueHistory(ctx, orgID, issueID)
	if err != nil {
		return nil, err
	}
	payloads := make([]HistoryPayload, 0, len(entries))
	for _, entry := range entries {
		payloads = append(payloads, historyPayload(entry))
	}
	return payloads, nil
}

func (s *Service) SearchIssues(ctx context.Context, orgID, text string, limit, offset int) search.Response {
	if s.search == nil {
		return search.Response{Results: []search.Result{}, Query: text}
	}
	return s.search.Search(search.Query{OrgID: orgID, Text: text, Limit: limit, Offset: offset})
}

func (s *Service) ExportIssue(ctx context.Context, orgID, issueID string, format export.Format) (*export.Result, error) {
	return s.export.Export(ctx, export.Request{OrgID: orgID, IssueID: issueID, Format: format})
}

// afterMutation keeps the board cache and search index in step with a
// committed write. Both are best-effort.
func (s *Service) afterMutation(ctx context.Context, issue store.Issue) {
	s.invalidateBoard(ctx, issue.OrgID)
	if s.search != nil {
		description := ""
		if issue.Description != nil {
			description = *issue.Description
		}
		s.search.IndexIssue(search.IssueRecord{
			ID:          issue.ID,
			OrgID:       issue.OrgID,
			Title:       issue.Title,
			Description: description,
			Status:      string(issue.Status),
			Priority:    string(issue.Priority),
			Tags:        issue.Tags,
		})
	}
}

func (s *Service) invalidateBoard(ctx context.Context, orgID string) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Invalidate(ctx, orgID); err != nil {
		log.Printf("cache: invalidate board %s: %v", orgID, err)
	}
}

func validateTitle(title string) error {
	if title == "" {
		return domainError(http.StatusBadRequest, "VALIDATION_ERROR", "Title is required", nil)
	}
	if utf8.RuneCountInString(title) > maxTitleLength {
		return domainError(http.StatusBadRequest, "VALIDATION_ERROR", "Title must be 200 characters or fewer", nil)
	}
	return nil
}

func validatePatch(patch board.Patch) error {
	if patch.Title.Set {
		if patch.Title.Null {
			return domainError(http.StatusBadRequest, "VALIDATION_ERROR", "Title cannot be null", nil)
		}
		if err := validateTitle(strings.TrimSpace(patch.Title.Value)); err != nil {
			return err
		}
	}
	if patch.Status.Set {
		if patch.Status.Null {
			return domainError(http.StatusBadRequest, "VALIDATION_ERROR", "Status cannot be null", nil)
		}
		if _, ok := board.ParseStatus(patch.Status.Value); !ok {
			return domainError(http.StatusBadRequest, "VALIDATION_ERROR", "Invalid status value", nil)
		}
	}
	if patch.Priority.Set {
		if patch.Priority.Null {
			return domainError(http.StatusBadRequest, "VALIDATION_ERROR", "Priority cannot be null", nil)
		}
		if _, ok := board.ParsePriority(patch.Priority.Value); !ok {
			return domainError(http.StatusBadRequest, "VALIDATION_ERROR", "Invalid priority value", nil)
		}
	}
	if patch.AssigneeID.Set && !patch.AssigneeID.Null && strings.TrimSpace(patch.AssigneeID.Value) == "" {
		return domainError(http.StatusBadRequest, "VALIDATION_ERROR", "Assignee id cannot be empty", nil)
	}
	if patch.Position.Set && patch.Position.Null {
		return domainError(http.StatusBadRequest, "VALIDATION_ERROR", "Position cannot be null", nil)
	}
	return nil
}

func validateFilter(filter store.IssueFilter) error {
	if filter.Status != "" {
		if _, ok := board.ParseStatus(filter.Status); !ok {
			return domainError(http.StatusBadRequest, "VALIDATION_ERROR", "Invalid status filter", nil)
		}
	}
	if filter.Priority != "" {
		if _, ok := board.ParsePriority(filter.Priority); !ok {
			return domainError(http.StatusBadRequest, "VALIDATION_ERROR", "Invalid priority filter", nil)
		}
	}
	return nil
}

// exportAdapter narrows the data store to what the exporter needs.
type exportAdapter struct {
	store dataStore
}

func (a *exportAdapter) GetIssue(ctx context.Context, orgID, issueID string) (export.IssueInfo, error) {
	issue, err := a.store.GetIssue(ctx, orgID, issueID)
	if err != nil {
		return export.IssueInfo{}, err
	}
	info := export.IssueInfo{
		ID:        issue.ID,
		Title:     issue.Title,
		Status:    string(issue.Status),
		Priority:  string(issue.Priority),
		Reporter:  issue.Reporter.Name,
		Tags:      issue.Tags,
		DueDate:   issue.DueDate,
		CreatedAt: issue.CreatedAt,
		UpdatedAt: issue.UpdatedAt,
	}
	if issue.Description != nil {
		info.Description = *issue.Description
	}
	if issue.Assignee != nil {
		info.Assignee = issue.Assignee.Name
	}
	return info, nil
}

func (a *exportAdapter) ListIssueHistory(ctx context.Context, orgID, issueID string) ([]export.ChangeInfo, error) {
	entries, err := a.store.ListIssueHistory(ctx, orgID, issueID)
	if err != nil {
		return nil, err
	}
	changes := make([]export.ChangeInfo, 0, len(entries))
	for _, entry := range entries {
		change := export.ChangeInfo{
			Field:     entry.Field,
			Actor:     entry.Actor.Name,
			CreatedAt: entry.CreatedAt,
		}
		if entry.OldValue != nil {
			change.OldValue = *entry.OldValue
		}
		if entry.NewValue != nil {
			change.NewValue = *entry.NewValue
		}
		changes = append(changes, change)
	}
	return changes, nil
}
