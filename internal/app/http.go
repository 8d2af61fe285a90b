package app

import (
	"context"
	"crypto/rand"
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strconv"
	"strings"
	"time"

	"trackboard/api/internal/auth"
	"trackboard/api/internal/board"
	"trackboard/api/internal/export"
	"trackboard/api/internal/rbac"
	"trackboard/api/internal/store"
)

type HTTPServer struct {
	service    *Service
	corsOrigin string
}

func NewHTTPServer(service *Service, corsOrigin string) *HTTPServer {
	return &HTTPServer{service: service, corsOrigin: corsOrigin}
}

func (s *HTTPServer) Handler() http.Handler {
	return s.withMiddleware(http.HandlerFunc(s.handle))
}

func (s *HTTPServer) handle(w http.ResponseWriter, r *http.Request) {
	if r.Method == http.MethodOptions {
		w.WriteHeader(http.StatusNoContent)
		return
	}

	if (r.Method == http.MethodGet || r.Method == http.MethodHead) && r.URL.Path == "/api/health" {
		writeJSON(w, http.StatusOK, map[string]any{"ok": true})
		return
	}

	if (r.Method == http.MethodGet || r.Method == http.MethodHead) && r.URL.Path == "/api/ready" {
		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()

		status := "ready"
		statusCode := http.StatusOK
		checks := map[string]any{
			"database": map[string]any{"status": "ok"},
		}

		if err := s.service.Ping(ctx); err != nil {
			status = "not_ready"
			statusCode = http.StatusServiceUnavailable
			checks["database"] = map[string]any{
				"status": "error",
				"error":  err.Error(),
			}
		}

		writeJSON(w, statusCode, map[string]any{
			"ok":     status == "ready",
			"status": status,
			"checks": checks,
		})
		return
	}

	session, ok := s.requireSession(w, r)
	if !ok {
		return
	}

	parts := splitPath(r.URL.Path)
	if len(parts) >= 2 && parts[0] == "api" && parts[1] == "issues" {
		s.handleIssues(w, r, session, parts[2:])
		return
	}
	if len(parts) == 2 && parts[0] == "api" && parts[1] == "search" && r.Method == http.MethodGet {
		s.handleSearch(w, r, session)
		return
	}

	writeError(w, http.StatusNotFound, "NOT_FOUND", "Not found", nil)
}

// handleIssues routes everything under /api/issues. The organization comes
// either from the /organization/{orgId}/ path segment or, on the shorthand
// routes, from the session's current organization.
func (s *HTTPServer) handleIssues(w http.ResponseWriter, r *http.Request, session Session, rest []string) {
	var orgID string
	if len(rest) > 0 && rest[0] == "organization" {
		if len(rest) < 2 || rest[1] == "" {
			writeError(w, http.StatusNotFound, "NOT_FOUND", "Not found", nil)
			return
		}
		orgID = rest[1]
		rest = rest[2:]
	} else {
		orgID = session.OrgID
		if orgID == "" {
			writeError(w, http.StatusForbidden, "FORBIDDEN", "No current organization selected", nil)
			return
		}
	}

	membership, err := s.service.Membership(r.Context(), session.UserID, orgID)
	if err != nil {
		status, code, message, details := mapError(err)
		writeError(w, status, code, message, details)
		return
	}
	if membership == nil {
		writeError(w, http.StatusForbidden, "FORBIDDEN", "You are not a member of this organization", nil)
		return
	}
	role := rbac.Normalize(membership.Role)

	switch {
	case len(rest) == 0 && r.Method == http.MethodGet:
		s.handleListIssues(w, r, orgID)
	case len(rest) == 0 && r.Method == http.MethodPost:
		if !s.service.Can(role, rbac.ActionWrite) {
			writeError(w, http.StatusForbidden, "FORBIDDEN", "Forbidden", nil)
			return
		}
		s.handleCreateIssue(w, r, session, orgID)
	case len(rest) == 1 && r.Method == http.MethodGet:
		s.handleGetIssue(w, r, orgID, rest[0])
	case len(rest) == 1 && r.Method == http.MethodPut:
		if !s.service.Can(role, rbac.ActionWrite) {
			writeError(w, http.StatusForbidden, "FORBIDDEN", "Forbidden", nil)
			return
		}
		s.handleUpdateIssue(w, r, session, orgID, rest[0])
	case len(rest) == 1 && r.Method == http.MethodDelete:
		if !s.service.Can(role, rbac.ActionDelete) {
			writeError(w, http.StatusForbidden, "FORBIDDEN", "Only organization admins can delete issues", nil)
			return
		}
		s.handleDeleteIssue(w, r, orgID, rest[0])
	case len(rest) == 2 && rest[1] == "history" && r.Method == http.MethodGet:
		s.handleIssueHistory(w, r, orgID, rest[0])
	case len(rest) == 2 && rest[1] == "export" && r.Method == http.MethodGet:
		s.handleExportIssue(w, r, orgID, rest[0])
	default:
		writeError(w, http.StatusNotFound, "NOT_FOUND", "Not found", nil)
	}
}

func (s *HTTPServer) handleListIssues(w http.ResponseWriter, r *http.Request, orgID string) {
	query := r.URL.Query()
	filter := store.IssueFilter{
		Status:     query.Get("status"),
		Priority:   query.Get("priority"),
		AssigneeID: query.Get("assigneeId"),
		Search:     query.Get("search"),
		Page:       queryInt(query.Get("page")),
		PageSize:   queryInt(query.Get("pageSize")),
	}
	if from := query.Get("dueDateFrom"); from != "" {
		parsed, err := time.Parse(time.RFC3339, from)
		if err != nil {
			writeError(w, http.StatusBadRequest, "VALIDATION_ERROR", "Invalid dueDateFrom value", nil)
			return
		}
		filter.DueDateFrom = &parsed
	}
	if to := query.Get("dueDateTo"); to != "" {
		parsed, err := time.Parse(time.RFC3339, to)
		if err != nil {
			writeError(w, http.StatusBadRequest, "VALIDATION_ERROR", "Invalid dueDateTo value", nil)
			return
		}
		filter.DueDateTo = &parsed
	}

	page, err := s.service.ListIssues(r.Context(), orgID, filter)
	if err != nil {
		status, code, message, details := mapError(err)
		writeError(w, status, code, message, details)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"success":    true,
		"data":       issuePayloads(page.Issues),
		"total":      page.Total,
		"page":       page.Page,
		"pageSize":   page.PageSize,
		"totalPages": page.TotalPages,
	})
}

func (s *HTTPServer) handleCreateIssue(w http.ResponseWriter, r *http.Request, session Session, orgID string) {
	var input CreateIssueInput
	if err := decodeBody(r, &input); err != nil {
		writeError(w, http.StatusBadRequest, "VALIDATION_ERROR", err.Error(), nil)
		return
	}

	issue, err := s.service.CreateIssue(r.Context(), session, orgID, input)
	if err != nil {
		status, code, message, details := mapError(err)
		writeError(w, status, code, message, details)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"success": true, "data": issue})
}

func (s *HTTPServer) handleGetIssue(w http.ResponseWriter, r *http.Request, orgID, issueID string) {
	issue, err := s.service.GetIssue(r.Context(), orgID, issueID)
	if err != nil {
		status, code, message, details := mapError(err)
		writeError(w, status, code, message, details)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "data": issue})
}

func (s *HTTPServer) handleUpdateIssue(w http.ResponseWriter, r *http.Request, session Session, orgID, issueID string) {
	var patch board.Patch
	if err := decodeBody(r, &patch); err != nil {
		writeError(w, http.StatusBadRequest, "VALIDATION_ERROR", err.Error(), nil)
		return
	}

	issue, err := s.service.UpdateIssue(r.Context(), session, orgID, issueID, patch)
	if err != nil {
		status, code, message, details := mapError(err)
		writeError(w, status, code, message, details)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "data": issue})
}

func (s *HTTPServer) handleDeleteIssue(w http.ResponseWriter, r *http.Request, orgID, issueID string) {
	if err := s.service.DeleteIssue(r.Context(), orgID, issueID); err != nil {
		status, code, message, details := mapError(err)
		writeError(w, status, code, message, details)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "data": map[string]any{"id": issueID}})
}

func (s *HTTPServer) handleIssueHistory(w http.ResponseWriter, r *http.Request, orgID, issueID string) {
	history, err := s.service.IssueHistory(r.Context(), orgID, issueID)
	if err != nil {
		status, code, message, details := mapError(err)
		writeError(w, status, code, message, details)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "data": history})
}

func (s *HTTPServer) handleExportIssue(w http.ResponseWriter, r *http.Request, orgID, issueID string) {
	formatValue := r.URL.Query().Get("format")
	if formatValue == "" {
		formatValue = "html"
	}
	format, ok := export.ParseFormat(formatValue)
	if !ok {
		writeError(w, http.StatusBadRequest, "VALIDATION_ERROR", "Unsupported export format", nil)
		return
	}

	result, err := s.service.ExportIssue(r.Context(), orgID, issueID, format)
	if err != nil {
		status, code, message, details := mapError(err)
		writeError(w, status, code, message, details)
		return
	}

	w.Header().Set("Content-Type", result.MimeType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", result.Filename))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(result.Data)
}

func (s *HTTPServer) handleSearch(w http.ResponseWriter, r *http.Request, session Session) {
	query := r.URL.Query()
	orgID := query.Get("orgId")
	if orgID == "" {
		orgID = session.OrgID
	}
	if orgID == "" {
		writeError(w, http.StatusForbidden, "FORBIDDEN", "No current organization selected", nil)
		return
	}

	membership, err := s.service.Membership(r.Context(), session.UserID, orgID)
	if err != nil {
		status, code, message, details := mapError(err)
		writeError(w, status, code, message, details)
		return
	}
	if membership == nil {
		writeError(w, http.StatusForbidden, "FORBIDDEN", "You are not a member of this organization", nil)
		return
	}

	response := s.service.SearchIssues(r.Context(), orgID, query.Get("q"), queryInt(query.Get("limit")), queryInt(query.Get("offset")))
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "data": response})
}

func (s *HTTPServer) requireSession(w http.ResponseWriter, r *http.Request) (Session, bool) {
	token := bearerToken(r)
	if token == "" {
		writeError(w, http.StatusUnauthorized, "UNAUTHORIZED", "Unauthorized", nil)
		return Session{}, false
	}
	session, err := s.service.SessionFromToken(r.Context(), token)
	if err != nil {
		if errors.Is(err, auth.ErrExpiredToken) || errors.Is(err, auth.ErrInvalidToken) {
			writeError(w, http.StatusUnauthorized, "UNAUTHORIZED", "Unauthorized", nil)
			return Session{}, false
		}
		writeError(w, http.StatusInternalServerError, "SERVER_ERROR", "Session lookup failed", nil)
		return Session{}, false
	}
	return session, true
}

func (s *HTTPServer) withMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := r.Header.Get("X-Request-ID")
		if requestID == "" {
			requestID = randomRequestID()
		}
		ctx := context.WithValue(r.Context(), requestIDKey{}, requestID)
		r = r.WithContext(ctx)

		started := time.Now()
		writer := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		setCORSHeaders(writer.Header(), s.corsOrigin)
		writer.Header().Set("X-Request-ID", requestID)

		next.ServeHTTP(writer, r)

		log.Printf(`{"request_id":"%s","method":"%s","path":"%s","status":%d,"duration_ms":%d}`,
			requestID,
			r.Method,
			r.URL.Path,
			writer.status,
			time.Since(started).Milliseconds(),
		)
	})
}

type requestIDKey struct{}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func randomRequestID() string {
	buf := make([]byte, 8)
	_, _ = rand.Read(buf)
	return hex.EncodeToString(buf)
}

func setCORSHeaders(header http.Header, corsOrigin string) {
	header.Set("Access-Control-Allow-Origin", corsOrigin)
	header.Set("Access-Control-Allow-Headers", "Content-Type, Authorization, X-Request-ID")
	header.Set("Access-Control-Allow-Methods", "GET,POST,PUT,DELETE,OPTIONS")
	header.Set("Cache-Control", "no-store")
	header.Set("Content-Type", "application/json")
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, code, message string, details any) {
	response := map[string]any{
		"success": false,
		"code":    code,
		"error":   message,
	}
	if details != nil {
		response["details"] = details
	}
	writeJSON(w, status, response)
}

func decodeBody(r *http.Request, target any) error {
	defer r.Body.Close()
	if err := json.NewDecoder(r.Body).Decode(target); err != nil {
		return fmt.Errorf("invalid JSON body")
	}
	return nil
}

func bearerToken(r *http.Request) string {
	header := strings.TrimSpace(r.Header.Get("Authorization"))
	if !strings.HasPrefix(header, "Bearer ") {
		return ""
	}
	return strings.TrimSpace(strings.TrimPrefix(header, "Bearer "))
}

func splitPath(path string) []string {
	trimmed := strings.Trim(path, "/")
	if trimmed == "" {
		return nil
	}
	return strings.Split(trimmed, "/")
}

func queryInt(value string) int {
	if value == "" {
		return 0
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return 0
	}
	return parsed
}

func mapError(err error) (status int, code, message string, details any) {
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr.Status, domainErr.Code, domainErr.Message, domainErr.Details
	}
	if errors.Is(err, store.ErrNotFound) || errors.Is(err, sql.ErrNoRows) {
		return http.StatusNotFound, "NOT_FOUND", "Issue not found", nil
	}
	if errors.Is(err, store.ErrAssigneeNotMember) {
		return http.StatusBadRequest, "VALIDATION_ERROR", "Assignee is not a member of this organization", nil
	}
	if errors.Is(err, store.ErrConflict) {
		return http.StatusConflict, "CONFLICT", "The issue was modified concurrently, please retry", nil
	}
	if errors.Is(err, auth.ErrInvalidToken) || errors.Is(err, auth.ErrExpiredToken) {
		return http.StatusUnauthorized, "UNAUTHORIZED", "Unauthorized", nil
	}
	if errors.Is(err, export.ErrPDFDependencyMissing) || errors.Is(err, export.ErrDOCXDependencyMissing) {
		return http.StatusServiceUnavailable, "EXPORT_UNAVAILABLE", "Export dependencies are not installed", nil
	}
	return http.StatusInternalServerError, "SERVER_ERROR", "Server error", nil
}
