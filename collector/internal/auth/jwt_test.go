package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestGuardNoneModeAlwaysPasses(t *testing.T) {
	g := NewGuard(ModeNone, "")
	req := httptest.NewRequest(http.MethodGet, "/ingest", nil)
	if _, err := g.Authenticate(req); err != nil {
		t.Fatalf("Authenticate in none mode: %v", err)
	}
}

func TestGuardTokenModeNoSecretConfigured(t *testing.T) {
	g := NewGuard(ModeToken, "")
	req := httptest.NewRequest(http.MethodGet, "/ingest", nil)
	_, err := g.Authenticate(req)
	if err != ErrNoSecret {
		t.Fatalf("err = %v, want ErrNoSecret", err)
	}
}

func TestGuardRejectsMissingToken(t *testing.T) {
	g := NewGuard(ModeToken, "s3cr3t")
	req := httptest.NewRequest(http.MethodGet, "/ingest", nil)
	_, err := g.Authenticate(req)
	if err != ErrNoToken {
		t.Fatalf("err = %v, want ErrNoToken", err)
	}
}

func TestGuardAcceptsValidBearerHeader(t *testing.T) {
	g := NewGuard(ModeToken, "s3cr3t")
	token, _, err := IssueToken("s3cr3t", "agent-1", time.Hour)
	if err != nil {
		t.Fatalf("IssueToken: %v", err)
	}

	req := httptest.NewRequest(http.MethodGet, "/ingest", nil)
	req.Header.Set("Authorization", "Bearer "+token)

	sub, err := g.Authenticate(req)
	if err != nil {
		t.Fatalf("Authenticate: %v", err)
	}
	if sub != "agent-1" {
		t.Errorf("subject = %q, want %q", sub, "agent-1")
	}
}

func TestGuardAcceptsQueryParamFallback(t *testing.T) {
	g := NewGuard(ModeToken, "s3cr3t")
	token, _, err := IssueToken("s3cr3t", "agent-2", time.Hour)
	if err != nil {
		t.Fatalf("IssueToken: %v", err)
	}

	req := httptest.NewRequest(http.MethodGet, "/ingest?token="+token, nil)
	sub, err := g.Authenticate(req)
	if err != nil {
		t.Fatalf("Authenticate: %v", err)
	}
	if sub != "agent-2" {
		t.Errorf("subject = %q, want %q", sub, "agent-2")
	}
}

func TestGuardRejectsWrongSecret(t *testing.T) {
	token, _, err := IssueToken("right-secret", "agent-1", time.Hour)
	if err != nil {
		t.Fatalf("IssueToken: %v", err)
	}

	g := NewGuard(ModeToken, "wrong-secret")
	req := httptest.NewRequest(http.MethodGet, "/ingest", nil)
	req.Header.Set("Authorization", "Bearer "+token)

	if _, err := g.Authenticate(req); err == nil {
		t.Fatal("expected an error for a token signed with a different secret")
	}
}

func TestGuardRejectsExpiredToken(t *testing.T) {
	token, _, err := IssueToken("s3cr3t", "agent-1", -time.Minute)
	if err != nil {
		t.Fatalf("IssueToken: %v", err)
	}

	g := NewGuard(ModeToken, "s3cr3t")
	req := httptest.NewRequest(http.MethodGet, "/ingest", nil)
	req.Header.Set("Authorization", "Bearer "+token)

	if _, err := g.Authenticate(req); err == nil {
		t.Fatal("expected an error for an expired token")
	}
}

func TestGuardTreatsWhitespaceTokenAsAbsent(t *testing.T) {
	g := NewGuard(ModeToken, "s3cr3t")
	req := httptest.NewRequest(http.MethodGet, "/ingest?token=%20%20", nil)
	_, err := g.Authenticate(req)
	if err != ErrNoToken {
		t.Fatalf("err = %v, want ErrNoToken", err)
	}
}
