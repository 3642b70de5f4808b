package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

var (
	ErrExternalService = errors.New("external service error")
	ErrValidation      = errors.New("validation error")
	ErrConfiguration   = errors.New("configuration error")
	ErrNotFound        = errors.New("not found")
	ErrTimeout         = errors.New("timeout")
	ErrTransient       = errors.New("transient failure")
)

// Wrap builds an error message that includes component context while tagging
// it with the provided marker for later classification. The marker should be
// one of the exported sentinel errors above.
func Wrap(marker error, component, operation, message string, err error) error {
	detail := buildDetail(component, operation, message)
	if marker == nil {
		marker = ErrTransient
	}
	if err != nil {
		return fmt.Errorf("%w: %s: %w", marker, detail, err)
	}
	return fmt.Errorf("%w: %s", marker, detail)
}

// Classify returns a short kind label and an operator hint for err.
func Classify(err error) (kind string, hint string) {
	switch {
	case err == nil:
		return "", ""
	case errors.Is(err, ErrValidation):
		return "validation", "the item is malformed; fix it and run `curator queue retry`"
	case errors.Is(err, ErrConfiguration):
		return "configuration", "check the [analysis] section of the config"
	case errors.Is(err, ErrNotFound):
		return "not_found", "the item no longer exists in the catalog"
	case errors.Is(err, ErrTimeout), errors.Is(err, context.DeadlineExceeded):
		return "timeout", "raise analysis.timeout_seconds or check service load"
	case errors.Is(err, ErrExternalService):
		return "external", "check the analysis service logs"
	default:
		return "transient", "will be retried while attempts remain"
	}
}

func buildDetail(component, operation, message string) string {
	parts := make([]string, 0, 3)
	if component = strings.TrimSpace(component); component != "" {
		parts = append(parts, component)
	}
	if operation = strings.TrimSpace(operation); operation != "" {
		parts = append(parts, operation)
	}
	if message = strings.TrimSpace(message); message != "" {
		parts = append(parts, message)
	}
	if len(parts) == 0 {
		return "service failure"
	}
	return strings.Join(parts, ": ")
}
