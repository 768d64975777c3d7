package util

import (
	"fmt"
	"log/slog"
)

// WrapError wraps an error with a descriptive operation context.
func WrapError(operation string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("failed to %s: %w", operation, err)
}

// Recover logs a recovered panic for the named goroutine. Use as
// `defer util.Recover("clip loop")` at the top of long-lived goroutines.
func Recover(where string) {
	if r := recover(); r != nil {
		slog.Error("panic recovered", "where", where, "panic", r)
	}
}
