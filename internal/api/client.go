package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

const defaultClientTimeout = 10 * time.Second

// StatusError is returned when the daemon answers with a non-2xx status.
type StatusError struct {
	Code    int
	Message string
}

func (e *StatusError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("daemon api: status %d", e.Code)
	}
	return fmt.Sprintf("daemon api: status %d: %s", e.Code, e.Message)
}

// ErrUnauthorized is matched by errors.Is for 401 responses.
var ErrUnauthorized = errors.New("daemon api: unauthorized")

// Is lets errors.Is(err, ErrUnauthorized) match a 401 StatusError.
func (e *StatusError) Is(target error) bool {
	return target == ErrUnauthorized && e.Code == http.StatusUnauthorized
}

// Client talks to the daemon HTTP API.
type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
}

// ClientOption customizes a Client.
type ClientOption func(*Client)

// WithHTTPClient overrides the HTTP client.
func WithHTTPClient(client *http.Client) ClientOption {
	return func(c *Client) {
		if client != nil {
			c.httpClient = client
		}
	}
}

// NewClient builds a client for the daemon listening on bind. bind may be a
// host:port or a full http URL.
func NewClient(bind, token string, opts ...ClientOption) *Client {
	base := strings.TrimRight(strings.TrimSpace(bind), "/")
	if base != "" && !strings.Contains(base, "://") {
		base = "http://" + base
	}
	c := &Client{
		baseURL:    base,
		token:      strings.TrimSpace(token),
		httpClient: &http.Client{Timeout: defaultClientTimeout},
	}
	for _, opt := range opts {
		if opt != nil {
			opt(c)
		}
	}
	return c
}

// Status fetches daemon status.
func (c *Client) Status(ctx context.Context) (*DaemonStatus, error) {
	var resp DaemonStatus
	if err := c.do(ctx, http.MethodGet, "/api/status", nil, nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Ping reports whether the daemon API answers.
func (c *Client) Ping(ctx context.Context) error {
	_, err := c.Status(ctx)
	return err
}

// QueueList lists entries, optionally filtered by status.
func (c *Client) QueueList(ctx context.Context, status string, limit int) ([]QueueEntry, error) {
	query := url.Values{}
	if status != "" {
		query.Set("status", status)
	}
	if limit > 0 {
		query.Set("limit", strconv.Itoa(limit))
	}
	var resp QueueListResponse
	if err := c.do(ctx, http.MethodGet, "/api/queue", query, nil, &resp); err != nil {
		return nil, err
	}
	return resp.Entries, nil
}

// Describe fetches the entry for itemID. It returns nil when the item has no
// entry.
func (c *Client) Describe(ctx context.Context, itemID int64) (*QueueEntry, error) {
	var resp QueueEntry
	err := c.do(ctx, http.MethodGet, "/api/queue/"+strconv.FormatInt(itemID, 10), nil, nil, &resp)
	var statusErr *StatusError
	if errors.As(err, &statusErr) && statusErr.Code == http.StatusNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &resp, nil
}

// Enqueue asks the daemon to queue an item.
func (c *Client) Enqueue(ctx context.Context, req EnqueueRequest) (EnqueueResponse, error) {
	var resp EnqueueResponse
	err := c.do(ctx, http.MethodPost, "/api/queue", nil, req, &resp)
	return resp, err
}

// Retry asks the daemon to reset an item's entry.
func (c *Client) Retry(ctx context.Context, itemID int64, req RetryRequest) (RetryResponse, error) {
	var resp RetryResponse
	path := "/api/queue/" + strconv.FormatInt(itemID, 10) + "/retry"
	err := c.do(ctx, http.MethodPost, path, nil, req, &resp)
	return resp, err
}

func (c *Client) do(ctx context.Context, method, path string, query url.Values, body, out any) error {
	if c == nil || c.baseURL == "" {
		return errors.New("daemon api: no address configured")
	}
	target := c.baseURL + path
	if len(query) > 0 {
		target += "?" + query.Encode()
	}

	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("daemon api: encode request: %w", err)
		}
		reader = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, target, reader)
	if err != nil {
		return fmt.Errorf("daemon api: build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("daemon api: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return fmt.Errorf("daemon api: read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		var apiErr ErrorResponse
		_ = json.Unmarshal(data, &apiErr)
		message := strings.TrimSpace(apiErr.Error)
		if message == "" {
			message = strings.TrimSpace(string(data))
		}
		return &StatusError{Code: resp.StatusCode, Message: message}
	}
	if out == nil || len(data) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("daemon api: decode response: %w", err)
	}
	return nil
}
