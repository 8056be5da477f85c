package auth

import (
	"context"
	"errors"
	"fmt"
)

// Kind categorizes authentication failures so callers can render kind-specific messaging.
type Kind string

const (
	KindInvalidCredentials      Kind = "invalid_credentials"
	KindProviderUnavailable     Kind = "provider_unavailable"
	KindSessionExpired          Kind = "session_expired"
	KindMalformedSession        Kind = "malformed_session"
	KindMalformedCallback       Kind = "malformed_callback"
	KindUnauthorized            Kind = "unauthorized"
	KindProfileCreationDeferred Kind = "profile_creation_deferred"
	KindValidation              Kind = "validation"
	KindSuperseded              Kind = "superseded"
	KindInternal                Kind = "internal"
)

// Error is the typed failure returned by every authentication operation.
type Error struct {
	Kind    Kind
	Message string
	Cause   error
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

// Unwrap returns the underlying cause, enabling errors.Is and errors.As.
func (e *Error) Unwrap() error { return e.Cause }

// Is matches another *Error by kind so sentinel comparisons work with errors.Is.
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return t.Kind == e.Kind && t.Message == ""
}

// NewError creates an Error of the given kind.
func NewError(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// WrapError wraps cause with a kind and message. A nil cause returns nil.
func WrapError(cause error, kind Kind, message string) *Error {
	if cause == nil {
		return nil
	}
	return &Error{Kind: kind, Message: message, Cause: cause}
}

// Sentinels usable with errors.Is; they match any *Error of the same kind.
var (
	ErrInvalidCredentials  = &Error{Kind: KindInvalidCredentials}
	ErrProviderUnavailable = &Error{Kind: KindProviderUnavailable}
	ErrSessionExpired      = &Error{Kind: KindSessionExpired}
	ErrMalformedSession    = &Error{Kind: KindMalformedSession}
	ErrMalformedCallback   = &Error{Kind: KindMalformedCallback}
	ErrUnauthorized        = &Error{Kind: KindUnauthorized}
	ErrSuperseded          = &Error{Kind: KindSuperseded}
)

// ErrNoSession reports that no session is stored. It is a steady state, not a failure.
var ErrNoSession = errors.New("no session")

// KindOf classifies err. Context deadlines map to ProviderUnavailable; unknown errors are Internal.
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	var ae *Error
	if errors.As(err, &ae) {
		return ae.Kind
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return KindProviderUnavailable
	}
	if errors.Is(err, context.Canceled) {
		return KindSuperseded
	}
	return KindInternal
}

// AsError returns err as an *Error, classifying it with KindOf when needed.
func AsError(err error) *Error {
	if err == nil {
		return nil
	}
	var ae *Error
	if errors.As(err, &ae) {
		return ae
	}
	kind := KindOf(err)
	msg := "authentication failed"
	switch kind {
	case KindProviderUnavailable:
		msg = "identity provider unavailable"
	case KindSuperseded:
		msg = "operation superseded"
	}
	return &Error{Kind: kind, Message: msg, Cause: err}
}
