package errors

import (
	"context"
	"errors"
	"fmt"
	"net"
)

var (
	// networking
	ErrNetwork     = errors.New("network error")
	ErrNoContent   = errors.New("no content")
	ErrNilResponse = errors.New("received nil response")
	ErrNotFound    = errors.New("not found")

	// download
	ErrIntegrity         = errors.New("artifact integrity check failed")
	ErrDownloadAbandoned = errors.New("download abandoned by retry policy")

	// session
	ErrAuthorizationDenied = errors.New("authorization denied")
	ErrInstallerFailure    = errors.New("installer failure")
	ErrSessionBusy         = errors.New("another action is already in flight")

	// config
	ErrInvalidConfig = errors.New("invalid config")
)

// IsRetryable reports whether the poll loop should keep going after err. The
// poll layer never treats network errors as fatal, only authorization and
// installer outcomes are terminal.
func IsRetryable(err error) bool {
	switch {
	case IsTimeoutError(err):
		return true
	case errors.Is(err, ErrNetwork):
		return true
	case errors.Is(err, ErrAuthorizationDenied):
		return false
	case errors.Is(err, ErrInstallerFailure):
		return false
	default:
		return false
	}
}

func IsTimeoutError(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}

	return false
}

func Is(err, target error) bool {
	return errors.Is(err, target)
}

func As(err error, target any) bool {
	return errors.As(err, target)
}

func New(msg string) error {
	return errors.New(msg)
}

func Newf(format string, args ...any) error {
	return fmt.Errorf(format, args...)
}

func Join(errs ...error) error {
	return errors.Join(errs...)
}
