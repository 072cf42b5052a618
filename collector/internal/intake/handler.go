// Package intake implements the collector side of the wire protocol:
// the WebSocket upgrade at /ingest, the per-connection receive loop, batch
// enrichment, and dispatch into the configured sink.
package intake

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"

	"github.com/flowmesh/telemetry/collector/internal/observability"
	"github.com/flowmesh/telemetry/collector/internal/sink"
	"github.com/flowmesh/telemetry/pkg/codec"
	"github.com/flowmesh/telemetry/pkg/model"
)

const (
	pongWait        = 45 * time.Second
	writeWait       = 10 * time.Second
	framesPerSecond = 50 // inbound frame rate ceiling per connection
	frameBurst      = 100
)

// Handler owns the per-connection receive loop: it reads frames, decodes
// and enriches batches, dispatches to the sink, and replies with an
// IngestResponse.
type Handler struct {
	sink    sink.Sink
	dedup   dedupStore
	logger  *slog.Logger
	metrics *observability.Metrics
}

// NewHandler constructs a Handler over the given sink.
func NewHandler(s sink.Sink, dedup dedupStore, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{sink: s, dedup: dedup, logger: logger}
}

// WithMetrics attaches a metrics recorder, returning the same Handler for
// chaining. A Handler with no metrics attached records nothing.
func (h *Handler) WithMetrics(m *observability.Metrics) *Handler {
	h.metrics = m
	return h
}

// Serve runs the receive loop for one upgraded connection until ctx is
// canceled, the client closes, or an I/O error occurs. Each connection
// runs on its own goroutine; the sink is shared and must tolerate
// concurrent StoreEvents calls.
func (h *Handler) Serve(ctx context.Context, conn *websocket.Conn) {
	defer conn.Close()

	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPingHandler(func(payload string) error {
		conn.SetReadDeadline(time.Now().Add(pongWait))
		conn.SetWriteDeadline(time.Now().Add(writeWait))
		return conn.WriteMessage(websocket.PongMessage, []byte(payload))
	})

	limiter := rate.NewLimiter(rate.Limit(framesPerSecond), frameBurst)

	done := make(chan struct{})
	go func() {
		<-ctx.Done()
		conn.Close()
		close(done)
	}()

	for {
		if err := limiter.Wait(ctx); err != nil {
			return
		}

		msgType, data, err := conn.ReadMessage()
		if err != nil {
			select {
			case <-done:
			default:
				h.logger.Debug("intake connection closed", "error", err)
			}
			return
		}

		switch msgType {
		case websocket.TextMessage:
			h.handleFrame(ctx, conn, data)
		case websocket.BinaryMessage:
			// Binary frames are reserved and not part of the current wire
			// contract; unlike the agent-side transport client, the
			// collector logs and ignores them rather than treating them
			// as a protocol error.
			h.logger.Warn("ignoring unexpected binary frame", "bytes", len(data))
		}
	}
}

// handleFrame parses one text frame as a Batch and runs it through
// decompress -> enrich -> store, replying with the corresponding
// IngestResponse. A frame that fails to parse at all still gets a
// Rejected reply with batch_id "unknown"; the connection is
// never closed on a per-batch error.
func (h *Handler) handleFrame(ctx context.Context, conn *websocket.Conn, data []byte) {
	var batch model.Batch
	if err := json.Unmarshal(data, &batch); err != nil {
		h.recordOutcome(model.IngestStatusRejected)
		h.reply(conn, model.IngestResponse{
			BatchID:      model.UnknownBatchID,
			Status:       model.IngestStatusRejected,
			ErrorMessage: fmt.Sprintf("parsing batch: %v", err),
			ReceivedAt:   time.Now().UnixMilli(),
		})
		return
	}

	if h.dedup != nil && h.dedup.seen(ctx, batch.BatchID) {
		h.logger.Info("duplicate batch delivery", "batch_id", batch.BatchID)
		if h.metrics != nil {
			h.metrics.DuplicateBatches.Inc()
		}
	}

	decodeStart := time.Now()
	events, err := codec.Decompress(batch)
	if h.metrics != nil {
		h.metrics.DecodeDuration.Observe(time.Since(decodeStart).Seconds())
	}
	if err != nil {
		status := model.IngestStatusRejected
		h.logger.Warn("rejecting batch", "batch_id", batch.BatchID, "error", err)
		h.recordOutcome(status)
		h.reply(conn, model.IngestResponse{
			BatchID:      batch.BatchID,
			Status:       status,
			ErrorMessage: err.Error(),
			ReceivedAt:   time.Now().UnixMilli(),
		})
		return
	}

	enrich(events, batch.AgentID, batch.Hostname)
	if h.metrics != nil {
		h.metrics.BatchEvents.Observe(float64(len(events)))
	}

	sinkStart := time.Now()
	err = h.sink.StoreEvents(ctx, events)
	if h.metrics != nil {
		h.metrics.SinkDuration.Observe(time.Since(sinkStart).Seconds())
	}
	if err != nil {
		h.logger.Error("sink failed to store batch", "batch_id", batch.BatchID, "error", err)
		h.recordOutcome(model.IngestStatusFailed)
		h.reply(conn, model.IngestResponse{
			BatchID:      batch.BatchID,
			Status:       model.IngestStatusFailed,
			ErrorMessage: err.Error(),
			ReceivedAt:   time.Now().UnixMilli(),
		})
		return
	}

	h.recordOutcome(model.IngestStatusSuccess)
	h.reply(conn, model.IngestResponse{
		BatchID:    batch.BatchID,
		Status:     model.IngestStatusSuccess,
		ReceivedAt: time.Now().UnixMilli(),
	})
}

func (h *Handler) recordOutcome(status model.IngestStatus) {
	if h.metrics != nil {
		h.metrics.BatchesReceived.WithLabelValues(string(status)).Inc()
	}
}

// enrich mutates each event in place, attaching the batch envelope's
// agent_id and hostname: appended to tags for log events,
// inserted as discrete keys into the tag/metadata mapping for metric and
// traffic events.
func enrich(events model.EventSequence, agentID, hostname string) {
	for _, e := range events {
		switch v := e.(type) {
		case *model.LogEvent:
			v.Tags = append(v.Tags, "agent_id:"+agentID, "hostname:"+hostname)
		case *model.MetricEvent:
			if v.Tags == nil {
				v.Tags = make(map[string]string)
			}
			v.Tags["agent_id"] = agentID
			v.Tags["hostname"] = hostname
		case *model.TrafficEvent:
			if v.Metadata == nil {
				v.Metadata = make(map[string]string)
			}
			v.Metadata["agent_id"] = agentID
			v.Metadata["hostname"] = hostname
		}
	}
}

func (h *Handler) reply(conn *websocket.Conn, resp model.IngestResponse) {
	payload, err := json.Marshal(resp)
	if err != nil {
		h.logger.Error("marshaling ingest response", "error", err)
		return
	}
	conn.SetWriteDeadline(time.Now().Add(writeWait))
	if err := conn.WriteMessage(websocket.TextMessage, payload); err != nil {
		h.logger.Warn("writing ingest response", "error", err)
	}
}
