package remote

import (
	"errors"
	"fmt"

	"github.com/MrSnakeDoc/smartmark/internal/domain"
)

var (
	// ErrNoSession means the caller has no valid session (absent, expired or revoked).
	ErrNoSession = errors.New("no active session")
	// ErrForbidden means the row access rules rejected the request.
	ErrForbidden = errors.New("forbidden by access rules")
	// ErrNotFound means no visible row matched.
	ErrNotFound = errors.New("row not found")
	// ErrUnsupportedProvider is returned for any sign-in provider but google.
	ErrUnsupportedProvider = errors.New("unsupported identity provider")
	// ErrUnknownTable is returned when subscribing to a table that does not exist.
	ErrUnknownTable = errors.New("unknown table")
)

// Error wraps a failure of one remote operation.
type Error struct {
	Op  string
	Err error
}

func (e *Error) Error() string {
	return fmt.Sprintf("remote %s: %v", e.Op, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// wrap tags err with op, leaving nil untouched.
func wrap(op string, err error) error {
	if err == nil {
		return nil
	}
	var re *Error
	if errors.As(err, &re) {
		return err
	}
	return &Error{Op: op, Err: err}
}

// IsTransport reports whether err is a failed remote operation (an *Error)
// other than one of the well-known access or lookup outcomes. Errors that never
// reached a backend are not transport failures.
func IsTransport(err error) bool {
	var re *Error
	if !errors.As(err, &re) {
		return false
	}
	for _, known := range []error{ErrNoSession, ErrForbidden, ErrNotFound, ErrUnsupportedProvider, ErrUnknownTable, domain.ErrMissingField} {
		if errors.Is(err, known) {
			return false
		}
	}
	return true
}
