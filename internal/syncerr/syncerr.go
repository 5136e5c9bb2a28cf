// Package syncerr classifies failures raised while syncing a user so the loop
// can decide whether to skip, retry next cycle or just record them.
package syncerr

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind determines how the sync loop treats an error.
type Kind int

const (
	// TransientFetch covers network failures and 5xx answers from an external
	// API. Retried on the next cycle only.
	TransientFetch Kind = iota

	// DataConsistency means an event referenced an activity that was not
	// reconciled. The record is skipped.
	DataConsistency

	// Persistence is a local write failure. The user's transaction is rolled back.
	Persistence

	// Configuration means a user lacks usable credentials. The user is skipped
	// for the cycle, never deleted here.
	Configuration
)

// String returns a human-readable representation of the kind.
func (k Kind) String() string {
	switch k {
	case TransientFetch:
		return "TransientFetch"
	case DataConsistency:
		return "DataConsistency"
	case Persistence:
		return "Persistence"
	case Configuration:
		return "Configuration"
	default:
		return fmt.Sprintf("Unknown(%d)", int(k))
	}
}

// Error wraps an underlying error with its kind and the operation that failed.
type Error struct {
	Kind       Kind
	Op         string // e.g. "weconnect.activities", "store.tx"
	User       string // username, may be empty
	StatusCode int    // HTTP status code (0 for non-HTTP errors)
	Err        error
}

// Error implements the error interface.
func (e *Error) Error() string {
	msg := fmt.Sprintf("[%s] %s", e.Kind, e.Op)
	if e.User != "" {
		msg += " user=" + e.User
	}
	if e.StatusCode > 0 {
		msg += fmt.Sprintf(" HTTP %d", e.StatusCode)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

// Unwrap returns the underlying error for error chain compatibility.
func (e *Error) Unwrap() error { return e.Err }

// New wraps err with kind and op.
func New(kind Kind, op string, err error) *Error {
	return &Error{Kind: kind, Op: op, Err: err}
}

// KindOf reports the kind of the first *Error in err's chain. Unclassified
// errors are treated as Persistence, the conservative choice for local faults.
func KindOf(err error) Kind {
	var se *Error
	if errors.As(err, &se) {
		return se.Kind
	}
	return Persistence
}

// Is reports whether err carries the given kind.
func Is(err error, kind Kind) bool {
	var se *Error
	return errors.As(err, &se) && se.Kind == kind
}

// ClassifyHTTP maps an HTTP status from an external API to a Kind.
// Rejected credentials are a configuration problem; everything else,
// including 429 and 5xx, is worth another try next cycle.
func ClassifyHTTP(statusCode int) Kind {
	switch statusCode {
	case http.StatusUnauthorized, http.StatusForbidden:
		return Configuration
	default:
		return TransientFetch
	}
}

// NewHTTPError creates a classified error for a non-success HTTP answer.
func NewHTTPError(op string, statusCode int, body string) *Error {
	err := fmt.Errorf("unexpected status %d", statusCode)
	if body != "" {
		err = fmt.Errorf("unexpected status %d: %s", statusCode, truncate(body, 256))
	}
	return &Error{Kind: ClassifyHTTP(statusCode), Op: op, StatusCode: statusCode, Err: err}
}

// NewNetworkError creates a classified error for network-level failures.
func NewNetworkError(op string, err error) *Error {
	return &Error{Kind: TransientFetch, Op: op, Err: fmt.Errorf("network error: %w", err)}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
