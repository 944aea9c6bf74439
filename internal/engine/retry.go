package engine

import (
	"errors"
	"fmt"
)

// ErrAttemptsExhausted marks a bounded retry loop that never succeeded.
// Callers decide whether exhaustion is fatal.
var ErrAttemptsExhausted = errors.New("attempts exhausted")

func withAttempts(n int, fn func() error) error {
	var last error
	for i := 0; i < n; i++ {
		if last = fn(); last == nil {
			return nil
		}
	}
	return fmt.Errorf("%w after %d attempt(s): %w", ErrAttemptsExhausted, n, last)
}
