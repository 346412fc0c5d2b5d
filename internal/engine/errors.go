package engine

import (
	"errors"

	"github.com/lazypower/totemic/internal/store"
)

// Terminal engagement errors. Callers match them with errors.Is; the
// wrapped message carries the offending totem and subject.
var (
	// ErrInvalidInput rejects malformed requests before any I/O.
	ErrInvalidInput = errors.New("invalid input")

	// ErrAlreadyEngaged is a like on a record that is already active.
	ErrAlreadyEngaged = errors.New("already engaged")

	// ErrNotEngaged is an unlike or refresh on an inactive record.
	ErrNotEngaged = errors.New("not currently engaged")

	// ErrNotFound covers a missing document, answer, totem or engagement.
	ErrNotFound = errors.New("not found")

	// ErrExists rejects creating a document whose id is taken.
	ErrExists = errors.New("already exists")

	// ErrContention means the retry budget ran out on optimistic conflicts.
	ErrContention = errors.New("contention: retry budget exhausted")

	// ErrIntegrity flags stored data the pure components cannot score or
	// transition, such as a zero timestamp or duplicate subject records.
	// It indicates a bug or corruption, not a user mistake.
	ErrIntegrity = errors.New("data integrity violation")
)

// Code returns a short machine-readable code for err, suitable for API
// responses. Unknown errors map to "internal".
func Code(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrInvalidInput):
		return "invalid_input"
	case errors.Is(err, ErrAlreadyEngaged):
		return "already_engaged"
	case errors.Is(err, ErrNotEngaged):
		return "not_engaged"
	case errors.Is(err, ErrNotFound), errors.Is(err, store.ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrExists):
		return "exists"
	case errors.Is(err, ErrContention):
		return "contention"
	case errors.Is(err, ErrIntegrity):
		return "integrity"
	default:
		return "internal"
	}
}

// Error attaches the failed operation and document to an engine error.
// errors.Is still matches the wrapped sentinel.
type Error struct {
	Op         string
	DocumentID string
	Err        error
}

func (e *Error) Error() string {
	if e.DocumentID == "" {
		return e.Op + ": " + e.Err.Error()
	}
	return e.Op + " " + e.DocumentID + ": " + e.Err.Error()
}

func (e *Error) Unwrap() error { return e.Err }

func wrapErr(op, documentID string, err error) error {
	if err == nil {
		return nil
	}
	return &Error{Op: op, DocumentID: documentID, Err: err}
}
