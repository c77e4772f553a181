package errs

import (
	"errors"
	"fmt"
)

// Error kinds. Every failure surfaced by the storefront clients matches exactly one of
// these through errors.Is.
var (
	ErrValidation = errors.New("validation failed")
	ErrAuth       = errors.New("not authenticated")
	ErrTransport  = errors.New("transport failure")
	ErrGateway    = errors.New("payment gateway rejected the request")
	ErrTimeout    = errors.New("payment timed out")
	ErrChannel    = errors.New("realtime channel unavailable")
	ErrNotFound   = errors.New("not found")
)

// Error carries a kind, a human-readable reason and an optional cause.
type Error struct {
	Kind   error
	Reason string
	Err    error
}

func (e *Error) Error() string {
	reason := e.Reason
	if reason == "" && e.Kind != nil {
		reason = e.Kind.Error()
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", reason, e.Err)
	}
	return reason
}

func (e *Error) Is(target error) bool { return e.Kind != nil && target == e.Kind }

func (e *Error) Unwrap() error { return e.Err }

// New returns an error of the given kind with a reason.
func New(kind error, reason string) error {
	return &Error{Kind: kind, Reason: reason}
}

// Newf is New with a format string.
func Newf(kind error, format string, args ...any) error {
	return &Error{Kind: kind, Reason: fmt.Sprintf(format, args...)}
}

// Wrap returns an error of the given kind that keeps err as its cause.
func Wrap(kind error, reason string, err error) error {
	return &Error{Kind: kind, Reason: reason, Err: err}
}

// Reason extracts the text meant for the user. It prefers the outermost reason and
// falls back to the kind, then to err.Error().
func Reason(err error) string {
	if err == nil {
		return ""
	}
	var e *Error
	if errors.As(err, &e) {
		if e.Reason != "" {
			return e.Reason
		}
		if e.Kind != nil {
			return e.Kind.Error()
		}
	}
	return err.Error()
}

func IsValidation(err error) bool { return errors.Is(err, ErrValidation) }
func IsAuth(err error) bool       { return errors.Is(err, ErrAuth) }
func IsTransport(err error) bool  { return errors.Is(err, ErrTransport) }
func IsGateway(err error) bool    { return errors.Is(err, ErrGateway) }
func IsTimeout(err error) bool    { return errors.Is(err, ErrTimeout) }
func IsChannel(err error) bool    { return errors.Is(err, ErrChannel) }
func IsNotFound(err error) bool   { return errors.Is(err, ErrNotFound) }
