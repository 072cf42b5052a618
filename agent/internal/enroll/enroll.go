// Package enroll exchanges a bootstrap enrollment secret for a
// short-lived bearer token the agent then presents on every WebSocket
// upgrade to the collector.
package enroll

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// Client requests bearer tokens from a collector's enrollment endpoint.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// Config configures a Client.
type Config struct {
	BaseURL            string
	HTTPClient         *http.Client
	InsecureSkipVerify bool
}

// NewClient constructs an enrollment Client.
func NewClient(cfg Config) *Client {
	if cfg.HTTPClient == nil {
		transport := &http.Transport{}
		if cfg.InsecureSkipVerify {
			transport.TLSClientConfig = &tls.Config{InsecureSkipVerify: true}
		}
		cfg.HTTPClient = &http.Client{
			Timeout:   15 * time.Second,
			Transport: transport,
		}
	}
	return &Client{baseURL: cfg.BaseURL, httpClient: cfg.HTTPClient}
}

// Request is sent to POST /api/v1/enroll.
type Request struct {
	AgentID         string `json:"agent_id"`
	EnrollmentToken string `json:"enrollment_token"`
}

// Response is the collector's reply: a bearer token and its expiry.
type Response struct {
	Token     string `json:"token"`
	ExpiresAt int64  `json:"expires_at"`
}

// Enroll exchanges agentID and a bootstrap enrollment secret for a
// bearer token suitable for Authorization: Bearer on the /ingest upgrade.
func (c *Client) Enroll(ctx context.Context, agentID, enrollmentToken string) (*Response, error) {
	resp, err := c.doRequest(ctx, http.MethodPost, "/api/v1/enroll", Request{
		AgentID:         agentID,
		EnrollmentToken: enrollmentToken,
	})
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, c.readError(resp)
	}

	var result Response
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("decoding enroll response: %w", err)
	}
	return &result, nil
}

func (c *Client) doRequest(ctx context.Context, method, path string, body any) (*http.Response, error) {
	var bodyReader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("marshaling request: %w", err)
		}
		bodyReader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bodyReader)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", "flowmesh-agent/1.0")

	return c.httpClient.Do(req)
}

func (c *Client) readError(resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
	return fmt.Errorf("enroll request failed with status %d: %s", resp.StatusCode, string(body))
}
