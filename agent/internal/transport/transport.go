// Package transport implements the agent-side WebSocket client state
// machine that ships compressed batches to the collector and waits for
// an acknowledgement, reconnecting with backoff on failure.
//
// # State Machine
//
//	Disconnected -> Connecting -> Connected -> Backoff -> Connecting -> ...
//	                                  |
//	                                  v
//	                              Exhausted (MaxRetries consumed, give up)
//
// A batch that does not receive an IngestResponse within the ack timeout
// is resent verbatim on the next successful connection. The collector logs
// a repeated batch_id as a duplicate but still stores it, so a resend can
// be stored twice.
package transport

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/flowmesh/telemetry/pkg/model"
	"github.com/flowmesh/telemetry/pkg/retry"
)

// State names a position in the client's connection state machine.
type State string

const (
	StateDisconnected State = "disconnected"
	StateConnecting   State = "connecting"
	StateConnected    State = "connected"
	StateBackoff      State = "backoff"
	StateExhausted    State = "exhausted"
)

const (
	ackTimeout    = 30 * time.Second
	pingInterval  = 20 * time.Second
	pongWait      = 45 * time.Second
	writeWait     = 10 * time.Second
)

// Config configures a Client.
type Config struct {
	Endpoint           string
	AuthToken          string
	InsecureSkipVerify bool
	ConnectTimeout     time.Duration
	MaxRetries         int
	InitialBackoff     time.Duration
	MaxBackoff         time.Duration
	Logger             *slog.Logger
}

// Client manages a single logical connection to the collector, accepting
// batches from an input channel and delivering them with retry-on-reconnect
// semantics.
type Client struct {
	cfg    Config
	logger *slog.Logger
	policy *retry.Policy

	mu    sync.Mutex
	state State
}

// New constructs a Client. Call Run to start the connection loop.
func New(cfg Config) *Client {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.ConnectTimeout <= 0 {
		cfg.ConnectTimeout = 10 * time.Second
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 10
	}
	if cfg.InitialBackoff <= 0 {
		cfg.InitialBackoff = time.Second
	}
	if cfg.MaxBackoff <= 0 {
		cfg.MaxBackoff = 30 * time.Second
	}
	return &Client{
		cfg:    cfg,
		logger: cfg.Logger,
		policy: retry.NewPolicy(cfg.MaxRetries, cfg.InitialBackoff, cfg.MaxBackoff),
		state:  StateDisconnected,
	}
}

// State returns the client's current connection state.
func (c *Client) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

func (c *Client) setState(s State) {
	c.mu.Lock()
	c.state = s
	c.mu.Unlock()
}

// Run consumes batches from in and ships them to the collector until ctx
// is canceled or the retry budget is exhausted. It never returns nil
// except on clean shutdown via ctx.
func (c *Client) Run(ctx context.Context, in <-chan model.Batch) error {
	var pending *model.Batch

	for {
		if ctx.Err() != nil {
			return nil
		}

		c.setState(StateConnecting)
		conn, err := c.connect(ctx)
		if err != nil {
			if !c.backoff(ctx) {
				c.setState(StateExhausted)
				return fmt.Errorf("transport: exhausted retries connecting to %s: %w", c.cfg.Endpoint, err)
			}
			continue
		}
		c.setState(StateConnected)
		c.policy.Reset()
		c.logger.Info("connected to collector", "endpoint", c.cfg.Endpoint)

		pending, err = c.serve(ctx, conn, in, pending)
		conn.Close()
		if ctx.Err() != nil {
			return nil
		}
		if err != nil {
			c.logger.Warn("connection lost, reconnecting", "error", err)
		}
		c.setState(StateBackoff)
		if !c.backoff(ctx) {
			c.setState(StateExhausted)
			return fmt.Errorf("transport: exhausted retries after disconnect from %s", c.cfg.Endpoint)
		}
	}
}

// backoff sleeps for the policy's next delay, returning false if the
// retry budget has been exhausted or ctx is canceled first.
func (c *Client) backoff(ctx context.Context) bool {
	delay, ok := c.policy.NextDelay()
	if !ok {
		return false
	}
	select {
	case <-time.After(delay):
		return true
	case <-ctx.Done():
		return false
	}
}

func (c *Client) connect(ctx context.Context) (*websocket.Conn, error) {
	dialCtx, cancel := context.WithTimeout(ctx, c.cfg.ConnectTimeout)
	defer cancel()

	dialer := websocket.Dialer{
		HandshakeTimeout: c.cfg.ConnectTimeout,
	}
	if c.cfg.InsecureSkipVerify {
		dialer.TLSClientConfig = &tls.Config{InsecureSkipVerify: true}
	}

	header := http.Header{}
	if c.cfg.AuthToken != "" {
		header.Set("Authorization", "Bearer "+c.cfg.AuthToken)
	}

	conn, resp, err := dialer.DialContext(dialCtx, c.cfg.Endpoint, header)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("dialing %s: %w (status %d)", c.cfg.Endpoint, err, resp.StatusCode)
		}
		return nil, fmt.Errorf("dialing %s: %w", c.cfg.Endpoint, err)
	}
	return conn, nil
}

// serve owns one live connection: it resends a pending batch left over
// from a prior connection (if any), then alternates between forwarding
// new batches from in and keeping the connection alive with pings. It
// returns the batch still awaiting acknowledgement, if any, so the
// caller can retry it on the next connection.
func (c *Client) serve(ctx context.Context, conn *websocket.Conn, in <-chan model.Batch, resend *model.Batch) (*model.Batch, error) {
	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	responses := make(chan model.IngestResponse, 1)
	readErrCh := make(chan error, 1)
	go c.readLoop(conn, responses, readErrCh)

	pingTicker := time.NewTicker(pingInterval)
	defer pingTicker.Stop()

	if resend != nil {
		if err := c.sendAndAwait(ctx, conn, *resend, responses); err != nil {
			return resend, err
		}
		resend = nil
	}

	for {
		select {
		case <-ctx.Done():
			return resend, nil
		case err := <-readErrCh:
			return resend, err
		case <-pingTicker.C:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return resend, fmt.Errorf("sending ping: %w", err)
			}
		case batch, ok := <-in:
			if !ok {
				return resend, nil
			}
			if err := c.sendAndAwait(ctx, conn, batch, responses); err != nil {
				return &batch, err
			}
		}
	}
}

// sendAndAwait writes a batch frame and blocks for its acknowledgement up
// to ackTimeout, returning an error (without side effects on the batch)
// if the ack does not arrive in time or the write fails.
func (c *Client) sendAndAwait(ctx context.Context, conn *websocket.Conn, batch model.Batch, responses <-chan model.IngestResponse) error {
	payload, err := json.Marshal(batch)
	if err != nil {
		return fmt.Errorf("marshaling batch %s: %w", batch.BatchID, err)
	}

	conn.SetWriteDeadline(time.Now().Add(writeWait))
	if err := conn.WriteMessage(websocket.TextMessage, payload); err != nil {
		return fmt.Errorf("sending batch %s: %w", batch.BatchID, err)
	}

	select {
	case resp := <-responses:
		if resp.BatchID != batch.BatchID {
			c.logger.Warn("ack batch_id mismatch", "want", batch.BatchID, "got", resp.BatchID)
		}
		if resp.Status == model.IngestStatusFailed || resp.Status == model.IngestStatusRejected {
			c.logger.Error("collector rejected batch", "batch_id", batch.BatchID, "status", resp.Status, "error", resp.ErrorMessage)
		}
		return nil
	case <-time.After(ackTimeout):
		return fmt.Errorf("timed out waiting for ack of batch %s", batch.BatchID)
	case <-ctx.Done():
		return nil
	}
}

// readLoop reads frames from conn, decoding each as an IngestResponse and
// forwarding it on responses. Binary frames are protocol errors and end
// the loop. It returns (via readErrCh) when the connection closes or a
// read fails.
func (c *Client) readLoop(conn *websocket.Conn, responses chan<- model.IngestResponse, readErrCh chan<- error) {
	for {
		msgType, data, err := conn.ReadMessage()
		if err != nil {
			readErrCh <- err
			return
		}
		if msgType != websocket.TextMessage {
			readErrCh <- fmt.Errorf("unexpected binary frame from collector")
			return
		}

		var resp model.IngestResponse
		if err := json.Unmarshal(data, &resp); err != nil {
			c.logger.Warn("malformed ingest response", "error", err)
			continue
		}
		select {
		case responses <- resp:
		default:
			// Drop if the one-slot channel already holds an unread
			// response; sendAndAwait only reads one response per
			// outstanding batch.
		}
	}
}
