package intake

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"

	"github.com/flowmesh/telemetry/collector/internal/observability"
	"github.com/flowmesh/telemetry/collector/internal/sink"
	"github.com/flowmesh/telemetry/collector/internal/testutil"
	"github.com/flowmesh/telemetry/pkg/codec"
	"github.com/flowmesh/telemetry/pkg/model"
)

func discardLogger() *slog.Logger {
	return testutil.NewTestLogger()
}

type recordingSink struct {
	events model.EventSequence
	err    error
}

func (s *recordingSink) StoreEvents(_ context.Context, events model.EventSequence) error {
	if s.err != nil {
		return s.err
	}
	s.events = append(s.events, events...)
	return nil
}

func testServer(t *testing.T, h *Handler) (*httptest.Server, string) {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/ingest", func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Fatalf("upgrade: %v", err)
		}
		h.Serve(r.Context(), conn)
	})
	srv := httptest.NewServer(mux)
	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ingest"
	return srv, wsURL
}

func sampleUncompressed() model.UncompressedBatch {
	return model.UncompressedBatch{
		BatchID:   "b-1",
		AgentID:   "agent-1",
		Hostname:  "host-1",
		Timestamp: 1000,
		Events: model.EventSequence{
			&model.LogEvent{Timestamp: 1, Source: "app", Level: model.LogLevelInfo, Message: "hi", Fields: map[string]string{}, Tags: []string{}},
		},
	}
}

func TestHandlerRoundTripSuccess(t *testing.T) {
	s := &recordingSink{}
	h := NewHandler(s, newMemoryDedup(), discardLogger())
	srv, wsURL := testServer(t, h)
	defer srv.Close()

	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	batch, err := codec.Compress(nil, sampleUncompressed(), model.CompressionSnappy)
	if err != nil {
		t.Fatalf("Compress: %v", err)
	}
	if err := conn.WriteJSON(batch); err != nil {
		t.Fatalf("WriteJSON: %v", err)
	}

	var resp model.IngestResponse
	conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	if err := conn.ReadJSON(&resp); err != nil {
		t.Fatalf("ReadJSON: %v", err)
	}
	if resp.Status != model.IngestStatusSuccess {
		t.Fatalf("status = %s, want success", resp.Status)
	}
	if resp.BatchID != "b-1" {
		t.Fatalf("batch_id = %s, want b-1", resp.BatchID)
	}

	if len(s.events) != 1 {
		t.Fatalf("sink stored %d events, want 1", len(s.events))
	}
	log, ok := s.events[0].(*model.LogEvent)
	if !ok {
		t.Fatalf("event type = %T, want *model.LogEvent", s.events[0])
	}
	found := map[string]bool{}
	for _, tag := range log.Tags {
		found[tag] = true
	}
	if !found["agent_id:agent-1"] || !found["hostname:host-1"] {
		t.Errorf("enrichment tags missing: %v", log.Tags)
	}
}

func TestHandlerRejectsMalformedFrame(t *testing.T) {
	s := &recordingSink{}
	h := NewHandler(s, newMemoryDedup(), discardLogger())
	srv, wsURL := testServer(t, h)
	defer srv.Close()

	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	if err := conn.WriteMessage(websocket.TextMessage, []byte("not json")); err != nil {
		t.Fatalf("WriteMessage: %v", err)
	}

	var resp model.IngestResponse
	conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	if err := conn.ReadJSON(&resp); err != nil {
		t.Fatalf("ReadJSON: %v", err)
	}
	if resp.Status != model.IngestStatusRejected {
		t.Fatalf("status = %s, want rejected", resp.Status)
	}
	if resp.BatchID != model.UnknownBatchID {
		t.Fatalf("batch_id = %s, want %s", resp.BatchID, model.UnknownBatchID)
	}
	if len(s.events) != 0 {
		t.Fatalf("expected no events stored, got %d", len(s.events))
	}
}

func TestHandlerRejectsChecksumMismatch(t *testing.T) {
	s := &recordingSink{}
	h := NewHandler(s, newMemoryDedup(), discardLogger())
	srv, wsURL := testServer(t, h)
	defer srv.Close()

	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	batch, err := codec.Compress(nil, sampleUncompressed(), model.CompressionSnappy)
	if err != nil {
		t.Fatalf("Compress: %v", err)
	}
	batch.Checksum = "deadbeef"

	if err := conn.WriteJSON(batch); err != nil {
		t.Fatalf("WriteJSON: %v", err)
	}

	var resp model.IngestResponse
	conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	if err := conn.ReadJSON(&resp); err != nil {
		t.Fatalf("ReadJSON: %v", err)
	}
	if resp.Status != model.IngestStatusRejected {
		t.Fatalf("status = %s, want rejected", resp.Status)
	}
}

func TestHandlerSinkFailureRepliesFailed(t *testing.T) {
	s := &recordingSink{err: io.ErrClosedPipe}
	h := NewHandler(s, newMemoryDedup(), discardLogger())
	srv, wsURL := testServer(t, h)
	defer srv.Close()

	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	batch, err := codec.Compress(nil, sampleUncompressed(), model.CompressionSnappy)
	if err != nil {
		t.Fatalf("Compress: %v", err)
	}
	if err := conn.WriteJSON(batch); err != nil {
		t.Fatalf("WriteJSON: %v", err)
	}

	var resp model.IngestResponse
	conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	if err := conn.ReadJSON(&resp); err != nil {
		t.Fatalf("ReadJSON: %v", err)
	}
	if resp.Status != model.IngestStatusFailed {
		t.Fatalf("status = %s, want failed", resp.Status)
	}
}

func TestHandlerIgnoresBinaryFrames(t *testing.T) {
	s := &recordingSink{}
	h := NewHandler(s, newMemoryDedup(), discardLogger())
	srv, wsURL := testServer(t, h)
	defer srv.Close()

	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	if err := conn.WriteMessage(websocket.BinaryMessage, []byte{0x01, 0x02}); err != nil {
		t.Fatalf("WriteMessage: %v", err)
	}

	batch, err := codec.Compress(nil, sampleUncompressed(), model.CompressionSnappy)
	if err != nil {
		t.Fatalf("Compress: %v", err)
	}
	if err := conn.WriteJSON(batch); err != nil {
		t.Fatalf("WriteJSON: %v", err)
	}

	var resp model.IngestResponse
	conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	if err := conn.ReadJSON(&resp); err != nil {
		t.Fatalf("expected the connection to survive a binary frame and still ack the following batch: %v", err)
	}
	if resp.Status != model.IngestStatusSuccess {
		t.Fatalf("status = %s, want success", resp.Status)
	}
}

func TestHandlerRecordsMetricsOnSuccess(t *testing.T) {
	s := &recordingSink{}
	m := observability.NewMetrics()
	h := NewHandler(s, newMemoryDedup(), discardLogger()).WithMetrics(m)
	srv, wsURL := testServer(t, h)
	defer srv.Close()

	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	batch, err := codec.Compress(nil, sampleUncompressed(), model.CompressionSnappy)
	if err != nil {
		t.Fatalf("Compress: %v", err)
	}
	if err := conn.WriteJSON(batch); err != nil {
		t.Fatalf("WriteJSON: %v", err)
	}

	var resp model.IngestResponse
	conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	if err := conn.ReadJSON(&resp); err != nil {
		t.Fatalf("ReadJSON: %v", err)
	}

	pb := &dto.Metric{}
	if err := m.BatchesReceived.WithLabelValues("success").(prometheus.Metric).Write(pb); err != nil {
		t.Fatalf("Write failed: %v", err)
	}
	if got := pb.GetCounter().GetValue(); got != 1 {
		t.Errorf("BatchesReceived(success) = %v, want 1", got)
	}
}

func TestEnrichAppendsLogTagsAndInsertsMapKeys(t *testing.T) {
	events := model.EventSequence{
		&model.LogEvent{Tags: []string{"existing"}},
		&model.MetricEvent{},
		&model.TrafficEvent{},
	}
	enrich(events, "agent-9", "host-9")

	log := events[0].(*model.LogEvent)
	if len(log.Tags) != 3 || log.Tags[0] != "existing" {
		t.Fatalf("log tags = %v", log.Tags)
	}

	metric := events[1].(*model.MetricEvent)
	if metric.Tags["agent_id"] != "agent-9" || metric.Tags["hostname"] != "host-9" {
		t.Fatalf("metric tags = %v", metric.Tags)
	}

	traffic := events[2].(*model.TrafficEvent)
	if traffic.Metadata["agent_id"] != "agent-9" || traffic.Metadata["hostname"] != "host-9" {
		t.Fatalf("traffic metadata = %v", traffic.Metadata)
	}
}
