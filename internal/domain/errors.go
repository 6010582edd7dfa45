// Package domain holds error kinds shared by every ledger component.
//
// Component packages derive their own not-found and conflict errors from the
// values here so the HTTP layer can classify failures with errors.Is without
// knowing every package.
package domain

import (
	"fmt"

	"github.com/go-faster/errors"
)

var (
	// ErrNotFound means the entity is missing or not visible to the caller.
	ErrNotFound = errors.New("not found")
	// ErrConflict means a concurrent write won and retries were exhausted.
	ErrConflict = errors.New("concurrent update conflict")
)

// MaxQuantity bounds any single quantity accepted from a caller, keeping
// stock and line counters well inside their INTEGER columns.
const MaxQuantity = 1_000_000

// CheckQuantity rejects a quantity whose magnitude exceeds MaxQuantity.
func CheckQuantity(field string, n int) error {
	if n > MaxQuantity || n < -MaxQuantity {
		return Invalid(field, fmt.Sprintf("must not exceed %d", MaxQuantity))
	}
	return nil
}

// ValidationError reports malformed or missing input.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Reason
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Reason)
}

// Invalid is a shorthand for building a ValidationError.
func Invalid(field, reason string) error {
	return &ValidationError{Field: field, Reason: reason}
}

// Page is a 1-based page request with a fixed size.
type Page struct {
	Number int
	Size   int
}

// Offset returns the row offset for the page.
func (p Page) Offset() int {
	if p.Number < 1 {
		return 0
	}
	return (p.Number - 1) * p.Size
}

// Limit returns the page size.
func (p Page) Limit() int {
	return p.Size
}
