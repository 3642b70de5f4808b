package notifications

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"curator/internal/config"
)

const userAgent = "Curator/0.1.0"

// Service defines the alerts curator publishes.
type Service interface {
	NotifyItemFailed(ctx context.Context, itemID int64, attempts int, reason string) error
	NotifyDaemonStarted(ctx context.Context, workers int) error
	TestNotification(ctx context.Context) error
}

// NewService builds a notification service backed by ntfy when configured.
// When no ntfy topic is configured, a noop implementation is returned.
func NewService(cfg *config.Config) Service {
	if cfg == nil {
		return noopService{}
	}
	topic := strings.TrimSpace(cfg.Notifications.NtfyTopic)
	if topic == "" {
		return noopService{}
	}

	timeout := cfg.NotifyTimeout()
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &ntfyService{
		endpoint: topic,
		client:   &http.Client{Timeout: timeout},
	}
}

type payload struct {
	title    string
	message  string
	tags     []string
	priority string
}

type ntfyService struct {
	endpoint string
	client   *http.Client
}

func (n *ntfyService) NotifyItemFailed(ctx context.Context, itemID int64, attempts int, reason string) error {
	reason = strings.TrimSpace(reason)
	if reason == "" {
		reason = "unknown error"
	}
	return n.send(ctx, payload{
		title:    "Curator - Item Failed",
		message:  fmt.Sprintf("Item %d failed after %d attempts: %s", itemID, attempts, reason),
		tags:     []string{"curator", "queue", "failed"},
		priority: "high",
	})
}

func (n *ntfyService) NotifyDaemonStarted(ctx context.Context, workers int) error {
	return n.send(ctx, payload{
		title:   "Curator - Daemon Started",
		message: fmt.Sprintf("Processing queue with %d worker(s)", workers),
		tags:    []string{"curator", "daemon", "started"},
	})
}

func (n *ntfyService) TestNotification(ctx context.Context) error {
	return n.send(ctx, payload{
		title:    "Curator - Test",
		message:  "Notification system test",
		tags:     []string{"curator", "test"},
		priority: "low",
	})
}

func (n *ntfyService) send(ctx context.Context, data payload) error {
	if n == nil || n.client == nil {
		return nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.endpoint, strings.NewReader(data.message))
	if err != nil {
		return fmt.Errorf("build ntfy request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Content-Type", "text/plain; charset=utf-8")
	if data.title != "" {
		req.Header.Set("Title", data.title)
	}
	if len(data.tags) > 0 {
		req.Header.Set("Tags", strings.Join(data.tags, ","))
	}
	if data.priority != "" {
		req.Header.Set("Priority", data.priority)
	}

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("send ntfy notification: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return fmt.Errorf("ntfy returned %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}

type noopService struct{}

func (noopService) NotifyItemFailed(context.Context, int64, int, string) error { return nil }
func (noopService) NotifyDaemonStarted(context.Context, int) error             { return nil }
func (noopService) TestNotification(context.Context) error                     { return nil }
