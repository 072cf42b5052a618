package transport

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/flowmesh/telemetry/pkg/model"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(discardWriter{}, nil))
}

type discardWriter struct{}

func (discardWriter) Write(p []byte) (int, error) { return len(p), nil }

func TestClientSendsBatchAndReceivesAck(t *testing.T) {
	upgrader := websocket.Upgrader{CheckOrigin: func(r *http.Request) bool { return true }}
	received := make(chan model.Batch, 1)

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		_, data, err := conn.ReadMessage()
		if err != nil {
			return
		}
		var b model.Batch
		if err := json.Unmarshal(data, &b); err != nil {
			return
		}
		received <- b

		resp := model.IngestResponse{BatchID: b.BatchID, Status: model.IngestStatusSuccess, ReceivedAt: 1}
		payload, _ := json.Marshal(resp)
		_ = conn.WriteMessage(websocket.TextMessage, payload)

		// Keep the connection open until the client tears it down.
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}))
	defer server.Close()

	endpoint := "ws" + strings.TrimPrefix(server.URL, "http")
	client := New(Config{
		Endpoint:       endpoint,
		MaxRetries:     3,
		InitialBackoff: 10 * time.Millisecond,
		MaxBackoff:     50 * time.Millisecond,
		Logger:         discardLogger(),
	})

	in := make(chan model.Batch, 1)
	in <- model.Batch{BatchID: "batch-1", AgentID: "agent-1", EventCount: 1, Compression: model.CompressionNone}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	errCh := make(chan error, 1)
	go func() { errCh <- client.Run(ctx, in) }()

	select {
	case b := <-received:
		if b.BatchID != "batch-1" {
			t.Fatalf("BatchID = %q, want %q", b.BatchID, "batch-1")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("server did not receive the batch")
	}

	cancel()
	select {
	case <-errCh:
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after context cancellation")
	}
}

func TestClientReachesExhaustedAfterRetriesFail(t *testing.T) {
	client := New(Config{
		Endpoint:       "ws://127.0.0.1:1/unreachable",
		ConnectTimeout: 50 * time.Millisecond,
		MaxRetries:     2,
		InitialBackoff: 5 * time.Millisecond,
		MaxBackoff:     10 * time.Millisecond,
		Logger:         discardLogger(),
	})

	in := make(chan model.Batch)
	err := client.Run(context.Background(), in)
	if err == nil {
		t.Fatal("expected an error after exhausting retries against an unreachable endpoint")
	}
	if client.State() != StateExhausted {
		t.Fatalf("State() = %s, want %s", client.State(), StateExhausted)
	}
}
