package analysis

import (
	"context"
	"errors"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"
)

// backoff is the retry schedule for pipeline requests. Delays double from
// base up to max; a Retry-After header replaces the computed delay.
type backoff struct {
	attempts int
	base     time.Duration
	max      time.Duration
	sleep    func(time.Duration)
}

func (b backoff) maxAttempts() int {
	if b.attempts < 1 {
		return 1
	}
	return b.attempts
}

// next reports how long to wait before attempt+1, or false when err is final.
func (b backoff) next(ctx context.Context, err error, attempt int) (time.Duration, bool) {
	if err == nil || attempt >= b.maxAttempts() || ctx.Err() != nil {
		return 0, false
	}
	var statusErr *httpStatusError
	switch {
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return 0, false
	case errors.As(err, &statusErr):
		if !retryableStatus(statusErr.StatusCode) {
			return 0, false
		}
		if statusErr.RetryAfter > 0 {
			return b.clamp(statusErr.RetryAfter), true
		}
	case !isTimeout(err):
		return 0, false
	}
	if b.base <= 0 {
		return 0, true
	}
	return b.clamp(b.base << (attempt - 1)), true
}

func retryableStatus(code int) bool {
	return code == http.StatusRequestTimeout || code == http.StatusTooManyRequests || code >= http.StatusInternalServerError
}

func (b backoff) clamp(delay time.Duration) time.Duration {
	ceiling := b.max
	if ceiling <= 0 {
		ceiling = defaultRetryMaxDelay
	}
	// A large shift overflows to a negative value.
	if delay < 0 || delay > ceiling {
		return ceiling
	}
	return delay
}

func (b backoff) wait(ctx context.Context, delay time.Duration) error {
	if delay <= 0 {
		return ctx.Err()
	}
	if b.sleep != nil {
		b.sleep(delay)
		return ctx.Err()
	}
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func isTimeout(err error) bool {
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

// parseRetryAfter accepts both the delta-seconds and HTTP-date forms.
func parseRetryAfter(value string) (time.Duration, bool) {
	value = strings.TrimSpace(value)
	if value == "" {
		return 0, false
	}
	if seconds, err := strconv.Atoi(value); err == nil {
		return time.Duration(seconds) * time.Second, seconds >= 0
	}
	when, err := http.ParseTime(value)
	if err != nil {
		return 0, false
	}
	delay := time.Until(when)
	return delay, delay >= 0
}
