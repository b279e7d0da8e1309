package mcpserver

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"
)

// Config holds the configuration for connecting to the code-nest platform.
type Config struct {
	APIURL  string // Base URL, e.g. "http://localhost:8080"
	Account string // Developer account acting through this server
}

// Client is a pure HTTP client for the code-nest platform API.
type Client struct {
	cfg        Config
	httpClient *http.Client
}

// NewClient creates a new client for the code-nest platform.
func NewClient(cfg Config) *Client {
	return &Client{
		cfg: cfg,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// apiError represents an error response from the platform.
type apiError struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

// doRequest makes an HTTP request to the platform and returns the response body.
func (c *Client) doRequest(ctx context.Context, method, path string, query url.Values, body any) (json.RawMessage, error) {
	u, err := url.Parse(c.cfg.APIURL + path)
	if err != nil {
		return nil, fmt.Errorf("invalid URL: %w", err)
	}
	if query != nil {
		u.RawQuery = query.Encode()
	}

	var reqBody io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("marshal request body: %w", err)
		}
		reqBody = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, u.String(), reqBody)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	req.Header.Set("X-Developer-Account", c.cfg.Account)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode >= 400 {
		var apiErr apiError
		if json.Unmarshal(respBody, &apiErr) == nil && apiErr.Message != "" {
			return nil, fmt.Errorf("API error (%d): %s", resp.StatusCode, apiErr.Message)
		}
		return nil, fmt.Errorf("API error (%d): %s", resp.StatusCode, string(respBody))
	}

	return json.RawMessage(respBody), nil
}

// ListSessions browses sessions, optionally filtered by status.
func (c *Client) ListSessions(ctx context.Context, status string, limit int) (json.RawMessage, error) {
	q := url.Values{}
	if status != "" {
		q.Set("status", status)
	}
	if limit > 0 {
		q.Set("limit", strconv.Itoa(limit))
	}
	return c.doRequest(ctx, http.MethodGet, "/v1/sessions", q, nil)
}

// GetSession returns one session by id.
func (c *Client) GetSession(ctx context.Context, id int64) (json.RawMessage, error) {
	return c.doRequest(ctx, http.MethodGet, "/v1/sessions/"+strconv.FormatInt(id, 10), nil, nil)
}

// ProposeSession creates a new session proposal.
func (c *Client) ProposeSession(ctx context.Context, title, description string, hourlyRateCents int64, estimatedMinutes int) (json.RawMessage, error) {
	body := map[string]any{
		"title":            title,
		"description":      description,
		"hourlyRateCents":  hourlyRateCents,
		"estimatedMinutes": estimatedMinutes,
	}
	return c.doRequest(ctx, http.MethodPost, "/v1/sessions", nil, body)
}

// JoinSession joins a proposed session.
func (c *Client) JoinSession(ctx context.Context, id int64) (json.RawMessage, error) {
	return c.doRequest(ctx, http.MethodPost, "/v1/sessions/"+strconv.FormatInt(id, 10)+"/join", nil, nil)
}

// ConfirmSession confirms completion of a session.
func (c *Client) ConfirmSession(ctx context.Context, id int64) (json.RawMessage, error) {
	return c.doRequest(ctx, http.MethodPost, "/v1/sessions/"+strconv.FormatInt(id, 10)+"/confirm", nil, nil)
}

// RateSession rates the counterparty of a completed session.
func (c *Client) RateSession(ctx context.Context, id int64, score int, feedback string) (json.RawMessage, error) {
	body := map[string]any{
		"score":    score,
		"feedback": feedback,
	}
	return c.doRequest(ctx, http.MethodPost, "/v1/sessions/"+strconv.FormatInt(id, 10)+"/rate", nil, body)
}

// GetBalance returns the acting developer's balance.
func (c *Client) GetBalance(ctx context.Context) (json.RawMessage, error) {
	return c.doRequest(ctx, http.MethodGet, "/v1/developers/"+c.cfg.Account+"/balance", nil, nil)
}

// GetProfile returns a developer's public profile.
func (c *Client) GetProfile(ctx context.Context, account string) (json.RawMessage, error) {
	return c.doRequest(ctx, http.MethodGet, "/v1/developers/"+account+"/profile", nil, nil)
}
