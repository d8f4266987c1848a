package gateway

import (
	"errors"
	"fmt"

	"github.com/bantaypresyo/srpsync/common"
	"github.com/bantaypresyo/srpsync/models"
)

// Kind classifies a failed remote call. The sync coordinator's drain logic
// and the repository's fallback policy both branch on it.
type Kind int

const (
	// KindTransient covers server errors, timeouts and connection failures.
	// Safe to retry.
	KindTransient Kind = iota

	// KindTerminal covers client errors: validation or auth rejection,
	// business-rule conflicts. Never retried.
	KindTerminal

	// KindNotFound is the 4xx subset with "absent resource" semantics.
	// Read paths treat it as a valid empty result, not a failure.
	KindNotFound
)

// Error is a classified remote failure. It unwraps to one of the common
// sentinels so callers can keep using errors.Is.
type Error struct {
	Status  int
	Kind    Kind
	Message string
	Details []models.WireError

	sentinel error
}

func (e *Error) Error() string {
	if e.Status > 0 {
		return fmt.Sprintf("%s (status %d)", e.Message, e.Status)
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.sentinel
}

func newError(status int, kind Kind, msg string, details []models.WireError) *Error {
	e := &Error{Status: status, Kind: kind, Message: msg, Details: details}
	switch {
	case kind == KindNotFound:
		e.sentinel = common.ErrNotFound
	case status == 401 || status == 403:
		e.sentinel = common.ErrUnauthorized
	case kind == KindTransient:
		e.sentinel = common.ErrUnavailable
	}
	return e
}

func transientError(err error) *Error {
	return &Error{Kind: KindTransient, Message: err.Error(), sentinel: common.ErrUnavailable}
}

func kindOf(err error) (Kind, bool) {
	var ge *Error
	if errors.As(err, &ge) {
		return ge.Kind, true
	}
	return 0, false
}

// IsTransient reports whether err should be retried. Unclassified transport
// errors count as transient too.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	if k, ok := kindOf(err); ok {
		return k == KindTransient
	}
	return true
}

// IsTerminal reports whether err must not be retried.
func IsTerminal(err error) bool {
	k, ok := kindOf(err)
	return ok && (k == KindTerminal || k == KindNotFound)
}

// IsNotFound reports whether err carries absent-resource semantics.
func IsNotFound(err error) bool {
	k, ok := kindOf(err)
	return ok && k == KindNotFound
}
