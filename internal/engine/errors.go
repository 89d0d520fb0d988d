package engine

import (
	"errors"
	"fmt"
	"strings"
)

// IntegrityErrorCode categorizes view integrity violations.
type IntegrityErrorCode string

const (
	// ErrCodeDuplicateOccurrence means an item is visible more than once.
	ErrCodeDuplicateOccurrence IntegrityErrorCode = "DUPLICATE_OCCURRENCE"

	// ErrCodeMissingOccurrence means an item that was just placed is not visible.
	ErrCodeMissingOccurrence IntegrityErrorCode = "MISSING_OCCURRENCE"

	// ErrCodeIndexDrift means the identifier index disagreed with a full scan.
	ErrCodeIndexDrift IntegrityErrorCode = "INDEX_DRIFT"
)

// IntegrityError is a recoverable violation of the one-occurrence-per-item
// invariant. It is logged and reported to the observer, never raised as a
// panic.
type IntegrityError struct {
	Code   IntegrityErrorCode
	ItemID string

	// Count is the number of live occurrences found by the scan.
	Count int

	// Containers names every container holding an occurrence, in scan
	// order. A container appears once per occurrence.
	Containers []string
}

// Error implements the error interface.
func (e *IntegrityError) Error() string {
	if len(e.Containers) == 0 {
		return fmt.Sprintf("%s: item %s has %d occurrences", e.Code, e.ItemID, e.Count)
	}
	return fmt.Sprintf("%s: item %s has %d occurrences (containers=%s)",
		e.Code, e.ItemID, e.Count, strings.Join(e.Containers, ","))
}

// IsIntegrityError returns true if err wraps an IntegrityError.
func IsIntegrityError(err error) bool {
	var ie *IntegrityError
	return errors.As(err, &ie)
}

// ReloadError describes why the engine fell back to a full reload.
type ReloadError struct {
	Reason string
	ItemID string
	Err    error
}

func (e *ReloadError) Error() string {
	msg := "reload required: " + e.Reason
	if e.ItemID != "" {
		msg += " (item=" + e.ItemID + ")"
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *ReloadError) Unwrap() error {
	return e.Err
}
