// Package healtherr defines the error taxonomy shared by the scoring,
// aggregation and query components.
package healtherr

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"
)

var (
	// ErrInsufficientData reports that a domain has no raw records for the
	// requested period. Callers may exclude the domain or widen the window.
	ErrInsufficientData = errors.New("insufficient_data")
	// ErrUnknownStore reports a reference to a store id that does not exist.
	ErrUnknownStore = errors.New("unknown_store")
	// ErrScopeViolation reports a view context asking for data outside its
	// assignment. It is never narrowed silently.
	ErrScopeViolation = errors.New("scope_violation")
	// ErrInvalidRange reports malformed input: hour outside [0,24), bad
	// percentages or an inverted date range.
	ErrInvalidRange = errors.New("invalid_range")
)

const (
	ClassInsufficientData = "insufficient_data"
	ClassUnknownStore     = "unknown_store"
	ClassScopeViolation   = "scope_violation"
	ClassInvalidRange     = "invalid_range"
	ClassDeadline         = "deadline_exceeded"
	ClassDB               = "db"
	ClassUnknown          = "unknown"
)

// Classify maps err to a low-cardinality label for logs and metrics.
func Classify(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrInsufficientData):
		return ClassInsufficientData
	case errors.Is(err, ErrUnknownStore):
		return ClassUnknownStore
	case errors.Is(err, ErrScopeViolation):
		return ClassScopeViolation
	case errors.Is(err, ErrInvalidRange):
		return ClassInvalidRange
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		return ClassDeadline
	case isDBError(err):
		return ClassDB
	default:
		return ClassUnknown
	}
}

// IsTaxonomy reports whether err wraps one of the four sentinel errors.
func IsTaxonomy(err error) bool {
	return errors.Is(err, ErrInsufficientData) ||
		errors.Is(err, ErrUnknownStore) ||
		errors.Is(err, ErrScopeViolation) ||
		errors.Is(err, ErrInvalidRange)
}

// Retryable reports whether err is transient. Taxonomy errors describe a
// client or authorization mistake and are never retried.
func Retryable(err error) bool {
	if err == nil {
		return false
	}
	if IsTaxonomy(err) {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	return isDBError(err)
}

func isDBError(err error) bool {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return false
	}
	if errors.Is(err, gorm.ErrInvalidDB) ||
		errors.Is(err, gorm.ErrInvalidTransaction) ||
		errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr)
}
