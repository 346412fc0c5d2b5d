// Package client talks to a running totemic server over its JSON API.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"time"

	"github.com/lazypower/totemic/internal/engine"
	"github.com/lazypower/totemic/internal/store"
)

const (
	defaultServerURL = "http://127.0.0.1:37780"
	httpTimeout      = 5 * time.Second
)

// Client talks to the totemic server.
type Client struct {
	http      *http.Client
	serverURL string
}

// New creates a client for serverURL. An empty URL falls back to
// TOTEMIC_URL, then http://127.0.0.1:37780.
func New(serverURL string) *Client {
	if serverURL == "" {
		serverURL = os.Getenv("TOTEMIC_URL")
	}
	if serverURL == "" {
		serverURL = defaultServerURL
	}
	return &Client{
		http:      &http.Client{Timeout: httpTimeout},
		serverURL: serverURL,
	}
}

// APIError is a non-2xx response. It unwraps to the engine error its code
// names, so errors.Is works the same against local and remote calls.
type APIError struct {
	Status  int
	Code    string
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("status %d: %s", e.Status, e.Message)
}

func (e *APIError) Unwrap() error {
	switch e.Code {
	case "invalid_input":
		return engine.ErrInvalidInput
	case "not_found":
		return engine.ErrNotFound
	case "already_engaged":
		return engine.ErrAlreadyEngaged
	case "not_engaged":
		return engine.ErrNotEngaged
	case "exists":
		return engine.ErrExists
	case "contention":
		return engine.ErrContention
	case "integrity":
		return engine.ErrIntegrity
	}
	return nil
}

// EngagementRequest is the body of POST /api/documents/{id}/engagements.
type EngagementRequest struct {
	AnswerID   string `json:"answer_id,omitempty"`
	Totem      string `json:"totem"`
	SubjectID  string `json:"subject_id"`
	Action     string `json:"action"`
	DecayModel string `json:"decay_model,omitempty"`
}

// EngagementResponse is a committed engagement.
type EngagementResponse struct {
	Outcome  engine.Outcome `json:"outcome"`
	AnswerID string         `json:"answer_id"`
	Totem    store.Totem    `json:"totem"`
	Version  int64          `json:"version"`
	Attempts int            `json:"attempts"`
}

// Engage applies one like, unlike or refresh on the server.
func (c *Client) Engage(ctx context.Context, documentID string, req EngagementRequest) (*EngagementResponse, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, err
	}
	var resp EngagementResponse
	if err := c.do(ctx, http.MethodPost, "/api/documents/"+url.PathEscape(documentID)+"/engagements", body, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Health is the server's health report.
type Health struct {
	Status  string  `json:"status"`
	Version string  `json:"version"`
	Uptime  float64 `json:"uptime"`
	Store   bool    `json:"store"`
	Policy  string  `json:"policy"`
}

// Health fetches /api/health.
func (c *Client) Health(ctx context.Context) (*Health, error) {
	var h Health
	if err := c.do(ctx, http.MethodGet, "/api/health", nil, &h); err != nil {
		return nil, err
	}
	return &h, nil
}

// Healthy checks if the server is reachable.
func (c *Client) Healthy(ctx context.Context) bool {
	_, err := c.Health(ctx)
	return err == nil
}

func (c *Client) do(ctx context.Context, method, path string, body []byte, out any) error {
	var r io.Reader
	if body != nil {
		r = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.serverURL+path, r)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response %s: %w", path, err)
	}
	if resp.StatusCode >= 400 {
		apiErr := &APIError{Status: resp.StatusCode, Message: string(data)}
		var payload struct {
			Error string `json:"error"`
			Code  string `json:"code"`
		}
		if json.Unmarshal(data, &payload) == nil && payload.Error != "" {
			apiErr.Code, apiErr.Message = payload.Code, payload.Error
		}
		return fmt.Errorf("%s %s: %w", method, path, apiErr)
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return errors.Join(fmt.Errorf("decode %s response", path), err)
	}
	return nil
}
