package logging

import (
	"log/slog"

	slogmulti "github.com/samber/slog-multi"
)

// TeeLogger duplicates log output from base into the provided handlers.
func TeeLogger(base *slog.Logger, handlers ...slog.Handler) *slog.Logger {
	if base == nil {
		return slog.New(TeeHandler(handlers...))
	}
	all := append([]slog.Handler{base.Handler()}, handlers...)
	return slog.New(TeeHandler(all...))
}

// TeeHandler creates a handler that duplicates log output to multiple handlers.
// Nil handlers are skipped.
func TeeHandler(handlers ...slog.Handler) slog.Handler {
	filtered := make([]slog.Handler, 0, len(handlers))
	for _, h := range handlers {
		if h != nil {
			filtered = append(filtered, h)
		}
	}
	switch len(filtered) {
	case 0:
		return slog.DiscardHandler
	case 1:
		return filtered[0]
	default:
		return slogmulti.Fanout(filtered...)
	}
}
