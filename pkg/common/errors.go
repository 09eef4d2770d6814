package common

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

var (
	ErrNotFound                    = errors.New("not found")
	ErrRangeViolation              = errors.New("relation target outside predicate range")
	ErrDomainViolation             = errors.New("relation source outside predicate domain")
	ErrInsufficientEntities        = errors.New("at least two entities are required")
	ErrConflictingExternalConcepts = errors.New("entities are linked to different external concepts")
	ErrHeterogeneousMerge          = errors.New("cannot merge content resources with non-content resources")
	ErrCycleDetected               = errors.New("cycle detected")
	ErrLockConflict                = errors.New("entity is locked by a concurrent operation")
	ErrKindMismatch                = errors.New("entity kind mismatch")
	ErrNotAField                   = errors.New("predicate is not a field")
	ErrUnboundedQuery              = errors.New("relation query requires at least one filter")
)

// ValidationError carries the ids that caused a validation failure so callers
// can explain it to a user.
type ValidationError struct {
	Err    error
	IDs    []int64
	Detail string
}

func NewValidationError(err error, detail string, ids ...int64) *ValidationError {
	return &ValidationError{Err: err, IDs: ids, Detail: detail}
}

func (e *ValidationError) Error() string {
	var b strings.Builder
	b.WriteString(e.Err.Error())
	if e.Detail != "" {
		b.WriteString(": ")
		b.WriteString(e.Detail)
	}
	if len(e.IDs) > 0 {
		parts := make([]string, len(e.IDs))
		for i, id := range e.IDs {
			parts[i] = strconv.FormatInt(id, 10)
		}
		fmt.Fprintf(&b, " (ids: %s)", strings.Join(parts, ", "))
	}
	return b.String()
}

func (e *ValidationError) Unwrap() error {
	return e.Err
}

// IsValidation reports whether err is a locally recoverable validation
// failure that should be shown to the user rather than retried.
func IsValidation(err error) bool {
	for _, target := range []error{
		ErrRangeViolation,
		ErrDomainViolation,
		ErrInsufficientEntities,
		ErrConflictingExternalConcepts,
		ErrHeterogeneousMerge,
		ErrKindMismatch,
		ErrNotAField,
		ErrUnboundedQuery,
		ErrCycleDetected,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

// OffendingIDs extracts the ids attached to a validation error, if any.
func OffendingIDs(err error) []int64 {
	var ve *ValidationError
	if errors.As(err, &ve) {
		return ve.IDs
	}
	return nil
}

// NotFound wraps ErrNotFound with the kind of object and its id.
func NotFound(what string, id int64) error {
	return fmt.Errorf("%s %d: %w", what, id, ErrNotFound)
}
