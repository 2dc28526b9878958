package cache

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrNilArgument is returned for a nil value, factory or predicate.
	ErrNilArgument = errors.New("cache: nil argument")
	// ErrInvalidKey is returned for an empty or whitespace-only key.
	ErrInvalidKey = errors.New("cache: key must be non-empty and not only whitespace")
)

func validateKey(key string) error {
	if strings.TrimSpace(key) == "" {
		return fmt.Errorf("%w: %q", ErrInvalidKey, key)
	}
	return nil
}

func nilArgument(name string) error {
	return fmt.Errorf("%w: %s", ErrNilArgument, name)
}
