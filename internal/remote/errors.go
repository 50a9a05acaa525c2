package remote

import (
	"errors"
	"fmt"
)

// Kind classifies a failed remote call.
type Kind int

const (
	// KindTransient covers network errors, timeouts, non-conflict HTTP
	// errors and undecodable bodies. Retried by the executor.
	KindTransient Kind = iota

	// KindConflict is the "page with this title already exists" response.
	// Never retried.
	KindConflict

	// KindRetriesExhausted means every allowed attempt failed transiently.
	KindRetriesExhausted

	// KindNotFound means a lookup succeeded but matched nothing.
	KindNotFound
)

func (k Kind) String() string {
	switch k {
	case KindTransient:
		return "transient"
	case KindConflict:
		return "conflict"
	case KindRetriesExhausted:
		return "retries_exhausted"
	case KindNotFound:
		return "not_found"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// Error is the error type returned for every failed remote call.
type Error struct {
	Kind       Kind
	Method     string
	URL        string
	StatusCode int
	Attempts   int
	Err        error
}

func (e *Error) Error() string {
	msg := fmt.Sprintf("%s %s: %s", e.Method, e.URL, e.Kind)
	if e.StatusCode != 0 {
		msg += fmt.Sprintf(" (status %d)", e.StatusCode)
	}
	if e.Attempts > 0 {
		msg += fmt.Sprintf(" after %d attempt(s)", e.Attempts)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

// KindOf returns the kind of the first *Error in err's chain.
func KindOf(err error) (Kind, bool) {
	var re *Error
	if errors.As(err, &re) {
		return re.Kind, true
	}
	return 0, false
}

// IsKind reports whether err carries the given kind.
func IsKind(err error, kind Kind) bool {
	k, ok := KindOf(err)
	return ok && k == kind
}

// StatusError is a non-2xx response.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	body := e.Body
	if len(body) > 512 {
		body = body[:512] + "..."
	}
	if body == "" {
		return fmt.Sprintf("http %d", e.StatusCode)
	}
	return fmt.Sprintf("http %d: %s", e.StatusCode, body)
}
