package app

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"trackboard/api/internal/auth"
	"trackboard/api/internal/config"
)

const testSecret = "http-test-secret"

func newTestServer(t *testing.T) (*httptest.Server, *memStore) {
	t.Helper()
	ms := newMemStore()
	svc := New(config.Config{JWTSecret: testSecret, CORSOrigin: "*"}, ms, nil)
	server := httptest.NewServer(NewHTTPServer(svc, "*").Handler())
	t.Cleanup(server.Close)
	return server, ms
}

func mintToken(t *testing.T, userID, name, orgID string) string {
	t.Helper()
	token, err := auth.IssueToken([]byte(testSecret), auth.Claims{
		Sub:  userID,
		Name: name,
		Org:  orgID,
		JTI:  "jti_" + userID,
		Exp:  time.Now().Add(time.Hour).Unix(),
	})
	if err != nil {
		t.Fatalf("issue token: %v", err)
	}
	return token
}

func doRequest(t *testing.T, method, url, token string, body any) (*http.Response, map[string]any) {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(encoded)
	} else {
		reader = bytes.NewReader(nil)
	}

	req, err := http.NewRequest(method, url, reader)
	if err != nil {
		t.Fatalf("build request: %v", err)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, url, err)
	}
	defer resp.Body.Close()

	var decoded map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	return resp, decoded
}

func createIssueHTTP(t *testing.T, serverURL, token, orgID, title, status string) string {
	t.Helper()
	resp, body := doRequest(t, http.MethodPost,
		serverURL+"/api/issues/organization/"+orgID, token,
		map[string]any{"title": title, "status": status})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("create returned %d: %v", resp.StatusCode, body)
	}
	data := body["data"].(map[string]any)
	return data["id"].(string)
}

func TestHealthEndpoint(t *testing.T) {
	server, _ := newTestServer(t)

	resp, body := doRequest(t, http.MethodGet, server.URL+"/api/health", "", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	if body["ok"] != true {
		t.Errorf("body = %v, want ok:true", body)
	}
}

func TestReadyEndpoint(t *testing.T) {
	server, _ := newTestServer(t)

	resp, body := doRequest(t, http.MethodGet, server.URL+"/api/ready", "", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	if body["ok"] != true || body["status"] != "ready" {
		t.Errorf("body = %v", body)
	}
	if _, ok := body["checks"].(map[string]any); !ok {
		t.Error("missing checks map")
	}
}

func TestRequestsWithoutTokenAreRejected(t *testing.T) {
	server, _ := newTestServer(t)

	resp, body := doRequest(t, http.MethodGet, server.URL+"/api/issues/organization/org_1", "", nil)
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", resp.StatusCode)
	}
	if body["success"] != false || body["code"] != "UNAUTHORIZED" {
		t.Errorf("body = %v", body)
	}
}

func TestGarbageTokenIsRejected(t *testing.T) {
	server, _ := newTestServer(t)

	resp, _ := doRequest(t, http.MethodGet, server.URL+"/api/issues/organization/org_1", "not.a.token", nil)
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", resp.StatusCode)
	}
}

func TestNonMemberIsForbidden(t *testing.T) {
	server, _ := newTestServer(t)
	token := mintToken(t, "usr_cam", "Cam Osei", "org_2")

	resp, body := doRequest(t, http.MethodGet, server.URL+"/api/issues/organization/org_1", token, nil)
	if resp.StatusCode != http.StatusForbidden {
		t.Fatalf("status = %d, want 403", resp.StatusCode)
	}
	if body["code"] != "FORBIDDEN" {
		t.Errorf("body = %v", body)
	}
}

func TestIssueLifecycleOverHTTP(t *testing.T) {
	server, _ := newTestServer(t)
	token := mintToken(t, "usr_ada", "Ada Moreno", "org_1")

	issueID := createIssueHTTP(t, server.URL, token, "org_1", "Ship the board", "TODO")

	resp, body := doRequest(t, http.MethodGet,
		server.URL+"/api/issues/organization/org_1/"+issueID, token, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("get returned %d: %v", resp.StatusCode, body)
	}
	data := body["data"].(map[string]any)
	if data["title"] != "Ship the board" || data["status"] != "TODO" {
		t.Errorf("data = %v", data)
	}
	if data["position"] != float64(0) {
		t.Errorf("position = %v, want 0", data["position"])
	}

	resp, body = doRequest(t, http.MethodPut,
		server.URL+"/api/issues/organization/org_1/"+issueID, token,
		map[string]any{"status": "IN_PROGRESS", "priority": "HIGH"})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("update returned %d: %v", resp.StatusCode, body)
	}
	data = body["data"].(map[string]any)
	if data["status"] != "IN_PROGRESS" || data["priority"] != "HIGH" {
		t.Errorf("updated data = %v", data)
	}

	resp, body = doRequest(t, http.MethodDelete,
		server.URL+"/api/issues/organization/org_1/"+issueID, token, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("delete returned %d: %v", resp.StatusCode, body)
	}

	resp, _ = doRequest(t, http.MethodGet,
		server.URL+"/api/issues/organization/org_1/"+issueID, token, nil)
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("get after delete returned %d, want 404", resp.StatusCode)
	}
}

func TestMemberCannotDelete(t *testing.T) {
	server, _ := newTestServer(t)
	adminToken := mintToken(t, "usr_ada", "Ada Moreno", "org_1")
	memberToken := mintToken(t, "usr_bo", "Bo Lindqvist", "org_1")

	issueID := createIssueHTTP(t, server.URL, adminToken, "org_1", "Protected", "TODO")

	resp, body := doRequest(t, http.MethodDelete,
		server.URL+"/api/issues/organization/org_1/"+issueID, memberToken, nil)
	if resp.StatusCode != http.StatusForbidden {
		t.Fatalf("member delete returned %d, want 403", resp.StatusCode)
	}
	if body["code"] != "FORBIDDEN" {
		t.Errorf("body = %v", body)
	}

	// Members can still write.
	resp, _ = doRequest(t, http.MethodPut,
		server.URL+"/api/issues/organization/org_1/"+issueID, memberToken,
		map[string]any{"priority": "LOW"})
	if resp.StatusCode != http.StatusOK {
		t.Errorf("member update returned %d, want 200", resp.StatusCode)
	}
}

func TestCrossTenantIssueIsNotFound(t *testing.T) {
	server, ms := newTestServer(t)
	ms.mu.Lock()
	ms.addMember("org_2", "usr_ada", "ADMIN")
	ms.mu.Unlock()

	token := mintToken(t, "usr_ada", "Ada Moreno", "org_1")
	issueID := createIssueHTTP(t, server.URL, token, "org_1", "Tenant bound", "TODO")

	resp, _ := doRequest(t, http.MethodGet,
		server.URL+"/api/issues/organization/org_2/"+issueID, token, nil)
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("cross-tenant get returned %d, want 404", resp.StatusCode)
	}
}

func TestShorthandRoutesUseSessionOrg(t *testing.T) {
	server, _ := newTestServer(t)
	token := mintToken(t, "usr_ada", "Ada Moreno", "org_1")

	resp, body := doRequest(t, http.MethodPost, server.URL+"/api/issues", token,
		map[string]any{"title": "Via session org"})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("create returned %d: %v", resp.StatusCode, body)
	}
	data := body["data"].(map[string]any)
	if data["organizationId"] != "org_1" {
		t.Errorf("organizationId = %v, want org_1", data["organizationId"])
	}

	// A token without a current org cannot use the shorthand routes.
	bare := mintToken(t, "usr_ada", "Ada Moreno", "")
	resp, _ = doRequest(t, http.MethodGet, server.URL+"/api/issues", bare, nil)
	if resp.StatusCode != http.StatusForbidden {
		t.Fatalf("orgless shorthand returned %d, want 403", resp.StatusCode)
	}
}

func TestInvalidStatusRejectedOverHTTP(t *testing.T) {
	server, _ := newTestServer(t)
	token := mintToken(t, "usr_ada", "Ada Moreno", "org_1")

	resp, body := doRequest(t, http.MethodPost,
		server.URL+"/api/issues/organization/org_1", token,
		map[string]any{"title": "Bad", "status": "SHIPPED"})
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", resp.StatusCode)
	}
	if body["code"] != "VALIDATION_ERROR" {
		t.Errorf("body = %v", body)
	}
}

func TestAssigneeMustBeMemberOverHTTP(t *testing.T) {
	server, _ := newTestServer(t)
	token := mintToken(t, "usr_ada", "Ada Moreno", "org_1")
	issueID := createIssueHTTP(t, server.URL, token, "org_1", "Assignable", "TODO")

	resp, body := doRequest(t, http.MethodPut,
		server.URL+"/api/issues/organization/org_1/"+issueID, token,
		map[string]any{"assigneeId": "usr_cam"})
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", resp.StatusCode)
	}
	if body["code"] != "VALIDATION_ERROR" {
		t.Errorf("body = %v", body)
	}
}

func TestHistoryEndpointNewestFirst(t *testing.T) {
	server, _ := newTestServer(t)
	token := mintToken(t, "usr_ada", "Ada Moreno", "org_1")
	issueID := createIssueHTTP(t, server.URL, token, "org_1", "Audited", "TODO")

	for _, priority := range []string{"HIGH", "LOW"} {
		resp, body := doRequest(t, http.MethodPut,
			server.URL+"/api/issues/organization/org_1/"+issueID, token,
			map[string]any{"priority": priority})
		if resp.StatusCode != http.StatusOK {
			t.Fatalf("update returned %d: %v", resp.StatusCode, body)
		}
	}

	resp, body := doRequest(t, http.MethodGet,
		server.URL+"/api/issues/organization/org_1/"+issueID+"/history", token, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("history returned %d: %v", resp.StatusCode, body)
	}

	entries := body["data"].([]any)
	if len(entries) != 3 {
		t.Fatalf("got %d entries, want 3", len(entries))
	}
	first := entries[0].(map[string]any)
	last := entries[len(entries)-1].(map[string]any)
	if first["fieldChanged"] != "priority" || first["newValue"] != "LOW" {
		t.Errorf("first entry = %v, want latest priority change", first)
	}
	if last["fieldChanged"] != "created" {
		t.Errorf("last entry = %v, want the created entry", last)
	}
	if user, ok := first["user"].(map[string]any); !ok || user["name"] != "Ada Moreno" {
		t.Errorf("first entry user = %v", first["user"])
	}
}

func TestListIssuesEnvelope(t *testing.T) {
	server, _ := newTestServer(t)
	token := mintToken(t, "usr_ada", "Ada Moreno", "org_1")

	for i := 0; i < 3; i++ {
		createIssueHTTP(t, server.URL, token, "org_1", fmt.Sprintf("Issue %d", i), "TODO")
	}

	resp, body := doRequest(t, http.MethodGet,
		server.URL+"/api/issues/organization/org_1?status=TODO&pageSize=2", token, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("list returned %d: %v", resp.StatusCode, body)
	}
	if body["success"] != true {
		t.Errorf("success = %v", body["success"])
	}
	if body["total"] != float64(3) || body["pageSize"] != float64(2) || body["totalPages"] != float64(2) {
		t.Errorf("pagination envelope = total:%v pageSize:%v totalPages:%v", body["total"], body["pageSize"], body["totalPages"])
	}
	if issues := body["data"].([]any); len(issues) != 2 {
		t.Errorf("got %d issues, want 2", len(issues))
	}
}

func TestListIssuesRejectsBadDateFilter(t *testing.T) {
	server, _ := newTestServer(t)
	token := mintToken(t, "usr_ada", "Ada Moreno", "org_1")

	resp, body := doRequest(t, http.MethodGet,
		server.URL+"/api/issues/organization/org_1?dueDateFrom=yesterday", token, nil)
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", resp.StatusCode)
	}
	if body["code"] != "VALIDATION_ERROR" {
		t.Errorf("body = %v", body)
	}
}

func TestUnknownRouteReturnsNotFound(t *testing.T) {
	server, _ := newTestServer(t)
	token := mintToken(t, "usr_ada", "Ada Moreno", "org_1")

	resp, body := doRequest(t, http.MethodGet, server.URL+"/api/widgets", token, nil)
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", resp.StatusCode)
	}
	if body["success"] != false {
		t.Errorf("body = %v", body)
	}
}

func TestResponsesCarryRequestID(t *testing.T) {
	server, _ := newTestServer(t)

	req, err := http.NewRequest(http.MethodGet, server.URL+"/api/health", nil)
	if err != nil {
		t.Fatalf("build request: %v", err)
	}
	req.Header.Set("X-Request-ID", "req-abc123")

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("do: %v", err)
	}
	defer resp.Body.Close()

	if got := resp.Header.Get("X-Request-ID"); got != "req-abc123" {
		t.Errorf("X-Request-ID = %q, want echo of the inbound id", got)
	}
	if ct := resp.Header.Get("Content-Type"); !strings.HasPrefix(ct, "application/json") {
		t.Errorf("Content-Type = %q", ct)
	}
}

func TestExportUnsupportedFormatOverHTTP(t *testing.T) {
	server, _ := newTestServer(t)
	token := mintToken(t, "usr_ada", "Ada Moreno", "org_1")
	issueID := createIssueHTTP(t, server.URL, token, "org_1", "Exportable", "TODO")

	resp, body := doRequest(t, http.MethodGet,
		server.URL+"/api/issues/organization/org_1/"+issueID+"/export?format=xlsx", token, nil)
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", resp.StatusCode)
	}
	if body["code"] != "VALIDATION_ERROR" {
		t.Errorf("body = %v", body)
	}
}

func TestExportHTMLOverHTTP(t *testing.T) {
	server, _ := newTestServer(t)
	token := mintToken(t, "usr_ada", "Ada Moreno", "org_1")
	issueID := createIssueHTTP(t, server.URL, token, "org_1", "Exportable", "TODO")

	req, err := http.NewRequest(http.MethodGet,
		server.URL+"/api/issues/organization/org_1/"+issueID+"/export?format=html", nil)
	if err != nil {
		t.Fatalf("build request: %v", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("do: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	if ct := resp.Header.Get("Content-Type"); !strings.HasPrefix(ct, "text/html") {
		t.Errorf("Content-Type = %q, want text/html", ct)
	}
	if cd := resp.Header.Get("Content-Disposition"); !strings.Contains(cd, "attachment") {
		t.Errorf("Content-Disposition = %q", cd)
	}

	var html bytes.Buffer
	if _, err := html.ReadFrom(resp.Body); err != nil {
		t.Fatalf("read body: %v", err)
	}
	if !strings.Contains(html.String(), "Exportable") {
		t.Error("exported HTML missing issue title")
	}
}
