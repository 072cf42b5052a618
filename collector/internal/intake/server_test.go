package intake

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/flowmesh/telemetry/collector/internal/auth"
)

func TestServerHealthEndpoint(t *testing.T) {
	s := NewServer(auth.NewGuard(auth.ModeNone, ""), nil, &recordingSink{}, nil, discardLogger())
	srv := httptest.NewServer(s.Routes())
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/health")
	if err != nil {
		t.Fatalf("GET /health: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
}

func TestServerRejectsIngestWithoutToken(t *testing.T) {
	s := NewServer(auth.NewGuard(auth.ModeToken, "secret"), nil, &recordingSink{}, nil, discardLogger())
	srv := httptest.NewServer(s.Routes())
	defer srv.Close()

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ingest"
	_, resp, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err == nil {
		t.Fatal("expected the upgrade to fail without a bearer token")
	}
	if resp == nil || resp.StatusCode != http.StatusUnauthorized {
		status := 0
		if resp != nil {
			status = resp.StatusCode
		}
		t.Fatalf("status = %d, want 401", status)
	}
}

func TestServerAcceptsIngestWithValidToken(t *testing.T) {
	s := NewServer(auth.NewGuard(auth.ModeToken, "secret"), nil, &recordingSink{}, nil, discardLogger())
	srv := httptest.NewServer(s.Routes())
	defer srv.Close()

	token, _, err := auth.IssueToken("secret", "agent-1", time.Hour)
	if err != nil {
		t.Fatalf("IssueToken: %v", err)
	}

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ingest?token=" + token
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("expected the upgrade to succeed with a valid token: %v", err)
	}
	conn.Close()
}

func TestServerEnrollWithoutServiceReturnsNotFound(t *testing.T) {
	s := NewServer(auth.NewGuard(auth.ModeNone, ""), nil, &recordingSink{}, nil, discardLogger())
	srv := httptest.NewServer(s.Routes())
	defer srv.Close()

	resp, err := http.Post(srv.URL+"/api/v1/enroll", "application/json", strings.NewReader(`{}`))
	if err != nil {
		t.Fatalf("POST /api/v1/enroll: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", resp.StatusCode)
	}
}

func TestServerEnrollIssuesToken(t *testing.T) {
	enrollment, err := auth.NewEnrollmentService("bootstrap-secret", "token-secret", time.Hour)
	if err != nil {
		t.Fatalf("NewEnrollmentService: %v", err)
	}
	s := NewServer(auth.NewGuard(auth.ModeNone, ""), enrollment, &recordingSink{}, nil, discardLogger())
	srv := httptest.NewServer(s.Routes())
	defer srv.Close()

	body := `{"agent_id":"agent-1","enrollment_token":"bootstrap-secret"}`
	resp, err := http.Post(srv.URL+"/api/v1/enroll", "application/json", strings.NewReader(body))
	if err != nil {
		t.Fatalf("POST /api/v1/enroll: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
}
