// Package failure defines the per-account error taxonomy shared by the
// token exchanger, the mailbox reader and the batch orchestrator.
package failure

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// Kind classifies why an account could not produce OTPs.
type Kind string

const (
	InvalidFormat         Kind = "invalid_format"
	MissingCredential     Kind = "missing_credential"
	TokenExpiredOrRevoked Kind = "token_expired_or_revoked"
	TokenExchangeFailed   Kind = "token_exchange_failed"
	Unauthorized          Kind = "unauthorized"
	TransportError        Kind = "transport_error"
	ProviderError         Kind = "provider_error"
	Internal              Kind = "internal"
)

var labels = map[Kind]string{
	InvalidFormat:         "Invalid Format",
	MissingCredential:     "Missing refresh_token or client_id",
	TokenExpiredOrRevoked: "Refresh Token Expired or Invalid",
	TokenExchangeFailed:   "Token Exchange Failed",
	Unauthorized:          "Mailbox Access Denied",
	TransportError:        "Network Error",
	ProviderError:         "Failed to fetch messages",
	Internal:              "Internal Error",
}

// Label returns the short human readable label shown next to a failed row.
func (k Kind) Label() string {
	if label, ok := labels[k]; ok {
		return label
	}
	return string(k)
}

// Error is a classified failure. Details holds the raw provider payload, if any.
type Error struct {
	Kind    Kind
	Op      string
	Message string
	Details string
	Err     error
}

func (e *Error) Error() string {
	var b strings.Builder
	if e.Op != "" {
		b.WriteString(e.Op)
		b.WriteString(": ")
	}
	if e.Message != "" {
		b.WriteString(e.Message)
	} else {
		b.WriteString(e.Kind.Label())
	}
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

func (e *Error) Unwrap() error {
	return e.Err
}

// New returns a classified error without a cause.
func New(kind Kind, op, message string) *Error {
	return &Error{Kind: kind, Op: op, Message: message}
}

// Wrap classifies err. Timeouts and context cancellation always become a
// TransportError regardless of the requested kind.
func Wrap(kind Kind, op string, err error) *Error {
	if isTimeout(err) {
		kind = TransportError
	}
	return &Error{Kind: kind, Op: op, Err: err}
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return true
	}
	var te interface{ Timeout() bool }
	return errors.As(err, &te) && te.Timeout()
}

// WithDetails returns a copy of e carrying the raw provider payload.
func (e *Error) WithDetails(details string) *Error {
	copied := *e
	copied.Details = strings.TrimSpace(details)
	return &copied
}

// KindOf reports the Kind of err. Unclassified errors are Internal, except
// context expiry which is a TransportError.
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	var fe *Error
	if errors.As(err, &fe) {
		return fe.Kind
	}
	if isTimeout(err) {
		return TransportError
	}
	return Internal
}

// DetailsOf returns the provider payload attached to err, falling back to the
// error text.
func DetailsOf(err error) string {
	if err == nil {
		return ""
	}
	var fe *Error
	if errors.As(err, &fe) && fe.Details != "" {
		return fe.Details
	}
	return err.Error()
}

// Recovered converts a recovered panic value into an Internal failure.
func Recovered(op string, v any) *Error {
	return &Error{Kind: Internal, Op: op, Err: fmt.Errorf("panic: %v", v)}
}
