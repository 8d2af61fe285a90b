package auth

import (
	"strings"
	"testing"
	"time"
)

var testSecret = []byte("test-secret")

func testClaims(exp int64) Claims {
	return Claims{
		Sub:  "usr_1",
		Name: "Ada",
		Org:  "org_1",
		JTI:  "jti-1",
		Exp:  exp,
	}
}

func TestIssueAndParseToken(t *testing.T) {
	token, err := IssueToken(testSecret, testClaims(time.Now().Add(time.Hour).Unix()))
	if err != nil {
		t.Fatalf("IssueToken failed: %v", err)
	}

	claims, err := ParseToken(testSecret, token)
	if err != nil {
		t.Fatalf("ParseToken failed: %v", err)
	}
	if claims.Sub != "usr_1" {
		t.Errorf("expected sub usr_1, got %s", claims.Sub)
	}
	if claims.Org != "org_1" {
		t.Errorf("expected org org_1, got %s", claims.Org)
	}
}

func TestParseTokenRejectsTamperedPayload(t *testing.T) {
	token, err := IssueToken(testSecret, testClaims(time.Now().Add(time.Hour).Unix()))
	if err != nil {
		t.Fatalf("IssueToken failed: %v", err)
	}

	parts := strings.Split(token, ".")
	tampered := parts[0] + "x." + parts[1]
	if _, err := ParseToken(testSecret, tampered); err != ErrInvalidToken {
		t.Errorf("expected ErrInvalidToken, got %v", err)
	}
}

func TestParseTokenRejectsWrongSecret(t *testing.T) {
	token, err := IssueToken(testSecret, testClaims(time.Now().Add(time.Hour).Unix()))
	if err != nil {
		t.Fatalf("IssueToken failed: %v", err)
	}

	if _, err := ParseToken([]byte("other-secret"), token); err != ErrInvalidToken {
		t.Errorf("expected ErrInvalidToken, got %v", err)
	}
}

func TestParseTokenRejectsExpired(t *testing.T) {
	token, err := IssueToken(testSecret, testClaims(time.Now().Add(-time.Minute).Unix()))
	if err != nil {
		t.Fatalf("IssueToken failed: %v", err)
	}

	if _, err := ParseToken(testSecret, token); err != ErrExpiredToken {
		t.Errorf("expected ErrExpiredToken, got %v", err)
	}
}

func TestParseTokenRejectsMalformed(t *testing.T) {
	for _, token := range []string{"", "abc", "a.b.c", "!!!.sig"} {
		if _, err := ParseToken(testSecret, token); err != ErrInvalidToken {
			t.Errorf("token %q: expected ErrInvalidToken, got %v", token, err)
		}
	}
}
