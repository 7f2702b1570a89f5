// Package sdk is the Go client for the Vigil continuous-verification
// backend. Desktop shells and tooling embed it instead of hand-rolling
// HTTP calls.
//
// Quick start:
//
//	client := sdk.NewClient(sdk.Config{BaseURL: "http://localhost:8080"})
//	id, err := client.StartSession(ctx, "alice")
//	...
//	detail, err := client.GetSession(ctx, id)
//	if detail.Session.State == sdk.StateReauth {
//	    // prompt for credentials, then:
//	    client.ConfirmReauthentication(ctx, id)
//	}
package sdk

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// Config holds the SDK configuration.
type Config struct {
	// BaseURL is the backend endpoint, e.g. "http://localhost:8080".
	BaseURL string

	// Timeout for API calls (default 10s).
	Timeout time.Duration
}

// Client talks to one Vigil backend.
type Client struct {
	config     Config
	httpClient *http.Client
}

// APIError carries the HTTP status and server-reported message of a
// failed call.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("vigil api: %d: %s", e.Status, e.Message)
}

// IsConflict reports whether err is a 409 — typically a busy capture
// resource.
func IsConflict(err error) bool {
	apiErr, ok := err.(*APIError)
	return ok && apiErr.Status == http.StatusConflict
}

// IsNotFound reports whether err is a 404.
func IsNotFound(err error) bool {
	apiErr, ok := err.(*APIError)
	return ok && apiErr.Status == http.StatusNotFound
}

// NewClient creates an SDK client.
func NewClient(cfg Config) *Client {
	if cfg.Timeout == 0 {
		cfg.Timeout = 10 * time.Second
	}
	return &Client{
		config:     cfg,
		httpClient: &http.Client{Timeout: cfg.Timeout},
	}
}

// StartSession begins continuous verification for a user and returns
// the new session ID. Fails with a conflict when the camera or behavior
// source is already held.
func (c *Client) StartSession(ctx context.Context, userID string) (string, error) {
	var resp struct {
		SessionID string `json:"session_id"`
	}
	err := c.do(ctx, "POST", "/api/v1/sessions", map[string]string{"user_id": userID}, &resp)
	return resp.SessionID, err
}

// ListSessions returns snapshots of all running sessions.
func (c *Client) ListSessions(ctx context.Context) ([]SessionSnapshot, error) {
	var sessions []SessionSnapshot
	err := c.do(ctx, "GET", "/api/v1/sessions", nil, &sessions)
	return sessions, err
}

// GetSession returns the live snapshot and transition history.
func (c *Client) GetSession(ctx context.Context, sessionID string) (*SessionDetail, error) {
	var detail SessionDetail
	if err := c.do(ctx, "GET", "/api/v1/sessions/"+sessionID, nil, &detail); err != nil {
		return nil, err
	}
	return &detail, nil
}

// StopSession ends a session and releases its capture leases.
func (c *Client) StopSession(ctx context.Context, sessionID string) error {
	return c.do(ctx, "DELETE", "/api/v1/sessions/"+sessionID, nil, nil)
}

// ConfirmReauthentication reports a successful explicit re-auth,
// unlocking a session stuck in REAUTH.
func (c *Client) ConfirmReauthentication(ctx context.Context, sessionID string) error {
	return c.do(ctx, "POST", "/api/v1/sessions/"+sessionID+"/reauth", nil, nil)
}

// Enroll captures reference templates for the given signals. Pass no
// signals to enroll all of them.
func (c *Client) Enroll(ctx context.Context, userID string, signals ...string) error {
	body := map[string]interface{}{"user_id": userID}
	if len(signals) > 0 {
		body["signals"] = signals
	}
	return c.do(ctx, "POST", "/api/v1/enroll", body, nil)
}

// Leases returns the current capture-resource lease table.
func (c *Client) Leases(ctx context.Context) ([]LeaseRecord, error) {
	var records []LeaseRecord
	err := c.do(ctx, "GET", "/api/v1/leases", nil, &records)
	return records, err
}

// Health pings the backend.
func (c *Client) Health(ctx context.Context) error {
	return c.do(ctx, "GET", "/health", nil, nil)
}

func (c *Client) do(ctx context.Context, method, path string, body, out interface{}) error {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.config.BaseURL+path, reader)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("vigil api: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}

	if resp.StatusCode >= 400 {
		msg := string(bytes.TrimSpace(raw))
		var wrapped struct {
			Error string `json:"error"`
		}
		if json.Unmarshal(raw, &wrapped) == nil && wrapped.Error != "" {
			msg = wrapped.Error
		}
		return &APIError{Status: resp.StatusCode, Message: msg}
	}

	if out != nil {
		return json.Unmarshal(raw, out)
	}
	return nil
}
