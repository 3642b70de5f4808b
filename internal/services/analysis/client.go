package analysis

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

	"curator/internal/services"
)

const (
	component             = "analysis"
	defaultHTTPTimeout    = 15 * time.Minute
	defaultRetryMaxDelay  = 10 * time.Second
	defaultRetryBaseDelay = 1 * time.Second
	defaultRetryAttempts  = 3
	maxErrorBodyBytes     = 512
)

// Config captures the runtime settings required to reach the pipeline.
type Config struct {
	Endpoint       string
	APIKey         string
	TimeoutSeconds int
}

// Client talks to the analysis pipeline over JSON/HTTP.
type Client struct {
	cfg        Config
	httpClient *http.Client

	retry      backoff
}

// Option customizes the client.
type Option func(*Client)

// WithHTTPClient overrides the default HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		if client != nil {
			c.httpClient = client
		}
	}
}

// WithRetryMaxAttempts overrides the default retry count.
func WithRetryMaxAttempts(attempts int) Option {
	return func(c *Client) {
		c.retry.attempts = attempts
	}
}

// WithRetryBackoff overrides the retry backoff delays.
func WithRetryBackoff(baseDelay, maxDelay time.Duration) Option {
	return func(c *Client) {
		c.retry.base = baseDelay
		c.retry.max = maxDelay
	}
}

// WithSleeper overrides how retry sleeps are performed (useful for tests).
func WithSleeper(sleeper func(time.Duration)) Option {
	return func(c *Client) {
		c.retry.sleep = sleeper
	}
}

// NewClient constructs a client using the supplied configuration.
func NewClient(cfg Config, opts ...Option) *Client {
	timeout := defaultHTTPTimeout
	if cfg.TimeoutSeconds > 0 {
		timeout = time.Duration(cfg.TimeoutSeconds) * time.Second
	}
	client := &Client{
		cfg: Config{
			Endpoint:       strings.TrimRight(strings.TrimSpace(cfg.Endpoint), "/"),
			APIKey:         strings.TrimSpace(cfg.APIKey),
			TimeoutSeconds: cfg.TimeoutSeconds,
		},
		httpClient: &http.Client{Timeout: timeout},
		retry: backoff{
			attempts: defaultRetryAttempts,
			base:     defaultRetryBaseDelay,
			max:      defaultRetryMaxDelay,
		},
	}
	for _, opt := range opts {
		opt(client)
	}
	return client
}

// Configured reports whether an endpoint is set.
func (c *Client) Configured() bool {
	return c != nil && c.cfg.Endpoint != ""
}

// Item fetches the catalog entry for itemID.
func (c *Client) Item(ctx context.Context, itemID int64) (*Item, error) {
	var item Item
	if err := c.do(ctx, "lookup", http.MethodGet, itemPath(itemID), nil, &item); err != nil {
		return nil, err
	}
	return &item, nil
}

// Analyze runs the analysis pipeline for itemID and returns its result.
func (c *Client) Analyze(ctx context.Context, itemID int64) (Result, error) {
	var result Result
	if err := c.do(ctx, "analyze", http.MethodPost, itemPath(itemID, "analyze"), struct{}{}, &result); err != nil {
		return Result{}, err
	}
	if result.ItemID == 0 {
		result.ItemID = itemID
	}
	return result, nil
}

// SetStatus records the enrichment status of itemID. message is sent only
// for ItemStatusError.
func (c *Client) SetStatus(ctx context.Context, itemID int64, status ItemStatus, message string) error {
	update := statusUpdate{Status: status}
	if status == ItemStatusError {
		update.Error = strings.TrimSpace(message)
	}
	return c.do(ctx, "set status", http.MethodPut, itemPath(itemID, "status"), update, nil)
}

// HealthCheck verifies the pipeline is reachable.
func (c *Client) HealthCheck(ctx context.Context) error {
	return c.do(ctx, "health", http.MethodGet, "health", nil, nil)
}

func itemPath(itemID int64, suffix ...string) string {
	parts := append([]string{"items", strconv.FormatInt(itemID, 10)}, suffix...)
	return strings.Join(parts, "/")
}

// do issues the request with retries and decodes the JSON response into out
// when out is non-nil.
func (c *Client) do(ctx context.Context, op, method, path string, body, out any) error {
	if !c.Configured() {
		return services.Wrap(services.ErrConfiguration, component, op, "analysis.endpoint is not set", nil)
	}
	for attempt := 1; ; attempt++ {
		err := c.doOnce(ctx, op, method, path, body, out)
		if err == nil {
			return nil
		}
		delay, again := c.retry.next(ctx, err, attempt)
		if !again {
			if attempt > 1 {
				err = fmt.Errorf("failed after %d attempts: %w", attempt, err)
			}
			return c.classify(op, err)
		}
		if err := c.retry.wait(ctx, delay); err != nil {
			return c.classify(op, err)
		}
	}
}

func (c *Client) doOnce(ctx context.Context, op, method, path string, body, out any) error {
	endpoint, err := url.JoinPath(c.cfg.Endpoint, path)
	if err != nil {
		return fmt.Errorf("build url: %w", err)
	}
	var reader io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode body: %w", err)
		}
		reader = bytes.NewReader(encoded)
	}
	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return fmt.Errorf("new request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	if c.cfg.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()
	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read body: %w", err)
	}
	if resp.StatusCode >= http.StatusMultipleChoices {
		retryAfter, _ := parseRetryAfter(resp.Header.Get("Retry-After"))
		return &httpStatusError{
			StatusCode: resp.StatusCode,
			Message:    errorMessage(payload),
			RetryAfter: retryAfter,
		}
	}
	if out == nil || len(bytes.TrimSpace(payload)) == 0 {
		return nil
	}
	if err := json.Unmarshal(payload, out); err != nil {
		return fmt.Errorf("%s: decode response: %w", op, err)
	}
	return nil
}

type httpStatusError struct {
	StatusCode int
	Message    string
	RetryAfter time.Duration
}

func (e *httpStatusError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("http %d", e.StatusCode)
	}
	return fmt.Sprintf("http %d: %s", e.StatusCode, e.Message)
}

func errorMessage(body []byte) string {
	var parsed errorPayload
	if err := json.Unmarshal(body, &parsed); err == nil {
		if msg := strings.TrimSpace(parsed.Error); msg != "" {
			return msg
		}
		if msg := strings.TrimSpace(parsed.Message); msg != "" {
			return msg
		}
	}
	text := strings.TrimSpace(string(body))
	if len(text) > maxErrorBodyBytes {
		text = text[:maxErrorBodyBytes] + "..."
	}
	return text
}

// classify tags err with the services marker matching its cause.
func (c *Client) classify(op string, err error) error {
	var statusErr *httpStatusError
	if errors.As(err, &statusErr) {
		marker := services.ErrExternalService
		switch statusErr.StatusCode {
		case http.StatusNotFound:
			marker = services.ErrNotFound
		case http.StatusBadRequest, http.StatusUnprocessableEntity:
			marker = services.ErrValidation
		case http.StatusUnauthorized, http.StatusForbidden:
			marker = services.ErrConfiguration
		case http.StatusRequestTimeout, http.StatusGatewayTimeout:
			marker = services.ErrTimeout
		}
		return services.Wrap(marker, component, op, "", err)
	}
	if errors.Is(err, context.DeadlineExceeded) || isTimeout(err) {
		return services.Wrap(services.ErrTimeout, component, op, fmt.Sprintf("no response within %s", c.timeoutDuration()), err)
	}
	if errors.Is(err, context.Canceled) {
		return services.Wrap(services.ErrTransient, component, op, "cancelled", err)
	}
	return services.Wrap(services.ErrExternalService, component, op, "", err)
}

func (c *Client) timeoutDuration() time.Duration {
	if c == nil || c.httpClient == nil || c.httpClient.Timeout <= 0 {
		return defaultHTTPTimeout
	}
	return c.httpClient.Timeout
}
