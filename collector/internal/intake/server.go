package intake

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/redis/go-redis/v9"

	"github.com/flowmesh/telemetry/collector/internal/auth"
	"github.com/flowmesh/telemetry/collector/internal/observability"
	"github.com/flowmesh/telemetry/collector/internal/sink"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// Server mounts the collector's HTTP surface: the /ingest WebSocket
// upgrade, /health and /api/v1/enroll. Metrics are not among these routes;
// they are served by a separate listener.
type Server struct {
	guard      *auth.Guard
	enrollment *auth.EnrollmentService
	handler    *Handler
	logger     *slog.Logger
	metrics    *observability.Metrics
}

// NewServer constructs a Server. enrollment may be nil, in which case
// POST /api/v1/enroll always responds 404 — operators who issue tokens out
// of band need not run the enrollment endpoint.
func NewServer(guard *auth.Guard, enrollment *auth.EnrollmentService, s sink.Sink, redisClient *redis.Client, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}

	var dedup dedupStore
	if redisClient != nil {
		dedup = newRedisDedup(redisClient)
	} else {
		dedup = newMemoryDedup()
	}

	return &Server{
		guard:      guard,
		enrollment: enrollment,
		handler:    NewHandler(s, dedup, logger),
		logger:     logger,
	}
}

// WithMetrics attaches a metrics recorder to the server and its receive
// loop handler, returning the same Server for chaining.
func (s *Server) WithMetrics(m *observability.Metrics) *Server {
	s.metrics = m
	s.handler.WithMetrics(m)
	return s
}

// Routes returns the HTTP mux serving the collector's endpoints.
func (s *Server) Routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/ingest", s.handleIngest)
	mux.HandleFunc("/health", s.handleHealth)
	mux.HandleFunc("/api/v1/enroll", s.handleEnroll)
	return mux
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("OK"))
}

// handleIngest authenticates and upgrades the connection, then runs the
// receive loop until the client disconnects or the server shuts down.
func (s *Server) handleIngest(w http.ResponseWriter, r *http.Request) {
	if _, err := s.guard.Authenticate(r); err != nil {
		if s.metrics != nil {
			s.metrics.AuthRejections.Inc()
		}
		switch err {
		case auth.ErrNoSecret:
			http.Error(w, "server misconfigured", http.StatusInternalServerError)
		default:
			http.Error(w, "unauthorized", http.StatusUnauthorized)
		}
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade failed", "error", err)
		return
	}

	if s.metrics != nil {
		s.metrics.ConnectionsTotal.Inc()
		s.metrics.ConnectionsActive.Inc()
		defer s.metrics.ConnectionsActive.Dec()
	}

	s.handler.Serve(r.Context(), conn)
}

type enrollRequest struct {
	AgentID         string `json:"agent_id"`
	EnrollmentToken string `json:"enrollment_token"`
}

type enrollResponse struct {
	Token     string `json:"token"`
	ExpiresAt int64  `json:"expires_at"`
}

// handleEnroll exchanges a bootstrap enrollment secret for a bearer token.
func (s *Server) handleEnroll(w http.ResponseWriter, r *http.Request) {
	if s.enrollment == nil {
		http.NotFound(w, r)
		return
	}
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req enrollRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "malformed request body", http.StatusBadRequest)
		return
	}
	if req.AgentID == "" {
		http.Error(w, "agent_id is required", http.StatusBadRequest)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()

	token, expiresAt, err := s.enrollment.Enroll(ctx, req.AgentID, req.EnrollmentToken)
	if err != nil {
		http.Error(w, "invalid enrollment token", http.StatusUnauthorized)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(enrollResponse{Token: token, ExpiresAt: expiresAt})
}
