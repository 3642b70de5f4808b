package queueaccess

import (
	"fmt"

	"curator/internal/api"
	"curator/internal/queue"
)

// Session represents a queue access handle and its cleanup function.
type Session struct {
	Access Access
	// Remote is true when requests go through the daemon API.
	Remote bool
	close  func() error
}

// Close releases resources associated with the session.
func (s Session) Close() error {
	if s.close == nil {
		return nil
	}
	return s.close()
}

// OpenWithFallback tries daemon-backed access first, then falls back to direct store access.
func OpenWithFallback(
	dial func() (*api.Client, error),
	openStore func() (queue.Store, error),
) (Session, error) {
	if dial != nil {
		if client, err := dial(); err == nil && client != nil {
			return Session{
				Access: NewHTTPAccess(client),
				Remote: true,
			}, nil
		}
	}

	if openStore == nil {
		return Session{}, fmt.Errorf("open queue store: no store opener configured")
	}
	store, err := openStore()
	if err != nil {
		return Session{}, fmt.Errorf("open queue store: %w", err)
	}
	return Session{
		Access: NewStoreAccess(store),
		close:  store.Close,
	}, nil
}
