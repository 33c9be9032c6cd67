// Package yferr defines the error taxonomy surfaced by the engine.
//
// Every failure that reaches a caller is an *Error carrying its Kind together with the
// symbol and category it belongs to. Callers match kinds with errors.Is against the
// exported sentinels and read the details with errors.As.
package yferr

import (
	"errors"
	"fmt"
	"strings"
)

// Kind classifies an engine failure.
type Kind int

const (
	// InvalidParameter is a client-side validation failure. Nothing was sent upstream.
	InvalidParameter Kind = iota + 1
	// AuthBootstrap means the session handshake failed after its retry budget.
	AuthBootstrap
	// Auth means upstream kept rejecting credentials after one forced re-bootstrap.
	Auth
	// Request is a non-auth HTTP failure that will not succeed on retry.
	Request
	// RateLimitExceeded means the retry budget ran out while upstream kept throttling.
	RateLimitExceeded
	// DataUnavailable means the symbol has no data for the category.
	DataUnavailable
	// Schema means the payload shape is beyond the tolerated partial-failure threshold.
	Schema
)

func (k Kind) String() string {
	switch k {
	case InvalidParameter:
		return "InvalidParameterError"
	case AuthBootstrap:
		return "AuthBootstrapError"
	case Auth:
		return "AuthError"
	case Request:
		return "RequestError"
	case RateLimitExceeded:
		return "RateLimitExceeded"
	case DataUnavailable:
		return "DataUnavailableError"
	case Schema:
		return "SchemaError"
	default:
		return fmt.Sprintf("Kind(%d)", int(k))
	}
}

// Sentinels for errors.Is. An *Error matches the sentinel of its Kind.
var (
	ErrInvalidParameter  = &Error{Kind: InvalidParameter}
	ErrAuthBootstrap     = &Error{Kind: AuthBootstrap}
	ErrAuth              = &Error{Kind: Auth}
	ErrRequest           = &Error{Kind: Request}
	ErrRateLimitExceeded = &Error{Kind: RateLimitExceeded}
	ErrDataUnavailable   = &Error{Kind: DataUnavailable}
	ErrSchema            = &Error{Kind: Schema}
)

// Error is the concrete error type of the engine.
type Error struct {
	Kind     Kind
	Symbol   string
	Category string
	// Status is the last upstream HTTP status, 0 when no response was received.
	Status int
	Msg    string
	Err    error
}

func (e *Error) Error() string {
	var b strings.Builder
	b.WriteString(e.Kind.String())
	if e.Symbol != "" || e.Category != "" {
		b.WriteString(" [")
		b.WriteString(e.Symbol)
		if e.Category != "" {
			b.WriteString("/")
			b.WriteString(e.Category)
		}
		b.WriteString("]")
	}
	if e.Status != 0 {
		fmt.Fprintf(&b, " status=%d", e.Status)
	}
	if e.Msg != "" {
		b.WriteString(": ")
		b.WriteString(e.Msg)
	}
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

func (e *Error) Unwrap() error { return e.Err }

// Is reports whether target is a sentinel (or error) of the same Kind.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind
}

// New builds an *Error with a formatted message.
func New(kind Kind, symbol, category, format string, args ...any) *Error {
	return &Error{Kind: kind, Symbol: symbol, Category: category, Msg: fmt.Sprintf(format, args...)}
}

// Wrap builds an *Error around err.
func Wrap(kind Kind, symbol, category string, err error, msg string) *Error {
	return &Error{Kind: kind, Symbol: symbol, Category: category, Msg: msg, Err: err}
}

// WithContext fills in symbol and category when the error does not carry them yet.
// Errors that are not an *Error are returned unchanged.
func WithContext(err error, symbol, category string) error {
	var e *Error
	if !errors.As(err, &e) {
		return err
	}
	if e.Symbol != "" && e.Category != "" {
		return err
	}
	c := *e
	if c.Symbol == "" {
		c.Symbol = symbol
	}
	if c.Category == "" {
		c.Category = category
	}
	return &c
}

// KindOf returns the Kind of err, or 0 when err is not an engine error.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return 0
}
