package types

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound        = errors.New("not found")
	ErrInvalidArgument = errors.New("invalid argument")
	ErrClosed          = errors.New("client is closed")
	ErrUnsupported     = errors.New("operation not supported by backend")

	ErrInvalidBackend = errors.New("invalid backend")
	ErrUpstream       = errors.New("storage backend error")
)

// Err joins a typed sentinel error, an optional inner error and an optional message, so that
// errors.Is matches both the sentinel and the cause.
func Err(typedError error, innerErr error, msgTemplate string, args ...any) error {
	if msgTemplate == "" {
		return errors.Join(typedError, innerErr)
	} else {
		return errors.Join(typedError, innerErr, fmt.Errorf(msgTemplate, args...))
	}
}

// Upstream wraps a backend failure. Nil and already typed errors are returned unchanged.
func Upstream(err error, msgTemplate string, args ...any) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, ErrNotFound) || errors.Is(err, ErrUpstream) || errors.Is(err, ErrClosed) {
		return err
	}
	return Err(ErrUpstream, err, msgTemplate, args...)
}

func NotFound(msgTemplate string, args ...any) error {
	return Err(ErrNotFound, nil, msgTemplate, args...)
}

func InvalidArgument(msgTemplate string, args ...any) error {
	return Err(ErrInvalidArgument, nil, msgTemplate, args...)
}
