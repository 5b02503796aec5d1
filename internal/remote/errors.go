package remote

import (
	"errors"
	"fmt"
)

// ErrNotFound ...
var ErrNotFound = fmt.Errorf("not found")

// ValidationError is a client-rejectable input error: empty content with no
// media, content over the length bound, unsafe markup. It is never retried.
type ValidationError struct {
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation failed: %s", e.Reason)
}

// NetworkError wraps a transport failure. Reads may be retried with bounded
// backoff; mutations are surfaced as failed instead.
type NetworkError struct {
	Op  string
	Err error
}

func (e *NetworkError) Error() string {
	return fmt.Sprintf("%s: network failure: %v", e.Op, e.Err)
}

func (e *NetworkError) Unwrap() error { return e.Err }

// ConflictError means the server rejected a mutation because its state
// already diverged from the local guess. It is resolved by re-fetching the
// authoritative record.
type ConflictError struct {
	ID string
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("conflict on %s", e.ID)
}

// AuthError means the viewer is not authenticated or the session was
// rejected. It downgrades the store to read-only.
type AuthError struct {
	Reason string
}

func (e *AuthError) Error() string {
	return fmt.Sprintf("unauthorized: %s", e.Reason)
}

// IsAuthError reports whether err carries an AuthError anywhere in its chain.
func IsAuthError(err error) bool {
	var e *AuthError
	return errors.As(err, &e)
}
