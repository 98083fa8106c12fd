// Package zerr classifies the error kinds named in the design's error
// handling section so callers can branch on *what* failed without
// string-matching, while still composing with the standard errors
// package (Is/As/Unwrap all work on a *Error).
package zerr

import "fmt"

// Kind is one of the named failure categories. It is a closed set —
// new categories should be added here, not invented ad hoc at call
// sites.
type Kind string

const (
	ConfigInvalid        Kind = "ConfigInvalid"
	CredentialMissing    Kind = "CredentialMissing"
	BindFailed           Kind = "BindFailed"
	ProbeTimeout         Kind = "ProbeTimeout"
	ProbeAuthFailed      Kind = "ProbeAuthFailed"
	ProbeNetworkFailed   Kind = "ProbeNetworkFailed"
	ProbeUnknown         Kind = "ProbeUnknown"
	UpstreamConnectError Kind = "UpstreamConnectError"
	UpstreamIoError      Kind = "UpstreamIoError"
	UpstreamHttpError    Kind = "UpstreamHttpError"
	NoHealthyEndpoint    Kind = "NoHealthyEndpoint"
	ClientDisconnect     Kind = "ClientDisconnect"
)

// Error pairs a Kind with an underlying cause.
type Error struct {
	Kind   Kind
	Status int // only meaningful for UpstreamHttpError
	Cause  error
}

func (e *Error) Error() string {
	if e.Kind == UpstreamHttpError {
		return fmt.Sprintf("%s(%d): %v", e.Kind, e.Status, e.Cause)
	}
	if e.Cause == nil {
		return string(e.Kind)
	}
	return fmt.Sprintf("%s: %v", e.Kind, e.Cause)
}

func (e *Error) Unwrap() error { return e.Cause }

// New wraps cause under kind.
func New(kind Kind, cause error) *Error {
	return &Error{Kind: kind, Cause: cause}
}

// NewHTTP wraps an upstream HTTP status as an error of kind
// UpstreamHttpError, carrying the status for callers that need it.
func NewHTTP(status int, cause error) *Error {
	return &Error{Kind: UpstreamHttpError, Status: status, Cause: cause}
}

// KindOf returns the Kind of err if it (or something it wraps) is a
// *Error, and false otherwise.
func KindOf(err error) (Kind, bool) {
	var e *Error
	if ok := asError(err, &e); ok {
		return e.Kind, true
	}
	return "", false
}

func asError(err error, target **Error) bool {
	for err != nil {
		if e, ok := err.(*Error); ok {
			*target = e
			return true
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			return false
		}
		err = u.Unwrap()
	}
	return false
}
