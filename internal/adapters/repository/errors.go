package repository

import (
	"errors"
	"fmt"
)

// Sentinel kinds for store errors.
var (
	ErrNotFound    = errors.New("record not found")
	ErrInvalidKey  = errors.New("invalid record key")
	ErrUnavailable = errors.New("store unavailable")
	ErrContention  = errors.New("transaction retries exhausted")
	ErrClosed      = errors.New("store closed")
)

// IsUnavailable reports whether err means the store could not serve the
// request, as opposed to a missing record or an aborted transform.
func IsUnavailable(err error) bool {
	return errors.Is(err, ErrUnavailable) || errors.Is(err, ErrContention) || errors.Is(err, ErrClosed)
}

func unavailable(op string, err error) error {
	return fmt.Errorf("%w: %s: %w", ErrUnavailable, op, err)
}

func checkKey(key string) error {
	if key == "" {
		return fmt.Errorf("%w: empty key", ErrInvalidKey)
	}
	return nil
}
