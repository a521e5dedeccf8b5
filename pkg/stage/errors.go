package stage

import "fmt"

// ErrorKind classifies why a turn produced no result. Every kind is
// recovered at the turn boundary; a failed turn simply yields no message
// and the session keeps ticking.
type ErrorKind string

const (
	ErrDirectorCall     ErrorKind = "director_call_failed"
	ErrDirectorParse    ErrorKind = "director_parse_invalid"
	ErrRetriesExhausted ErrorKind = "performer_retries_exhausted"

	// Attempt-level kinds; these surface in the event log but are retried
	// inside the turn rather than returned.
	ErrPerformerCall      ErrorKind = "performer_call_failed"
	ErrModeratorNoContent ErrorKind = "moderator_no_content"
)

// TurnError is the typed failure a turn returns instead of a result.
type TurnError struct {
	Kind   ErrorKind
	Detail string
	Err    error
}

// Error implements the error interface.
func (e *TurnError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Detail, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Detail)
}

// Unwrap exposes the underlying cause, if any.
func (e *TurnError) Unwrap() error { return e.Err }

func turnErrorf(kind ErrorKind, format string, args ...any) *TurnError {
	return &TurnError{Kind: kind, Detail: fmt.Sprintf(format, args...)}
}
