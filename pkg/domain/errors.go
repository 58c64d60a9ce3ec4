package domain

import (
	"errors"
	"fmt"
	"strings"
)

// ErrorKind tags the variant carried by *Error.
type ErrorKind string

const (
	KindNotFound         ErrorKind = "not_found"
	KindValidation       ErrorKind = "validation_failed"
	KindBrandMismatch    ErrorKind = "brand_mismatch"
	KindCapacityExceeded ErrorKind = "capacity_exceeded"
	KindConflict         ErrorKind = "conflict"
	KindStoreFailure     ErrorKind = "store_failure"
)

// Entity names used in NotFound and Conflict errors.
const (
	EntityMechanic = "mechanic"
	EntityTask     = "task"
	EntityBrand    = "brand"
)

// Sentinels for errors.Is; they match any *Error of the same kind.
var (
	ErrNotFound         = &Error{Kind: KindNotFound}
	ErrValidation       = &Error{Kind: KindValidation}
	ErrBrandMismatch    = &Error{Kind: KindBrandMismatch}
	ErrCapacityExceeded = &Error{Kind: KindCapacityExceeded}
	ErrConflict         = &Error{Kind: KindConflict}
	ErrStoreFailure     = &Error{Kind: KindStoreFailure}
)

// Error is the outcome of a rejected operation. Only the fields of its Kind are set.
type Error struct {
	Kind ErrorKind

	// NotFound, Conflict
	Entity string
	// ValidationFailed
	Field  string
	Reason string
	// BrandMismatch
	Brand   string
	Allowed []string
	// CapacityExceeded
	WouldBe int
	Limit   int
	// StoreFailure
	Err error
}

func (e *Error) Error() string {
	switch e.Kind {
	case KindNotFound:
		return e.Entity + " not found"
	case KindValidation:
		if e.Reason != "" {
			return e.Field + " " + e.Reason
		}
		return e.Field + " is required"
	case KindBrandMismatch:
		return fmt.Sprintf("mechanic does not service brand %q, allowed: %s", e.Brand, strings.Join(e.Allowed, BrandDelimiter))
	case KindCapacityExceeded:
		return fmt.Sprintf("total complexity (%d) exceeds mechanic limit (%d)", e.WouldBe, e.Limit)
	case KindConflict:
		return e.Entity + " already exists"
	case KindStoreFailure:
		if e.Err == nil {
			return "store failure"
		}
		return "store failure: " + e.Err.Error()
	}
	return string(e.Kind)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches by kind so callers can test against the package sentinels.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind
}

func NotFound(entity string) *Error {
	return &Error{Kind: KindNotFound, Entity: entity}
}

func Validation(field string) *Error {
	return &Error{Kind: KindValidation, Field: field}
}

// Invalid reports a present but unacceptable field value.
func Invalid(field, reason string) *Error {
	return &Error{Kind: KindValidation, Field: field, Reason: reason}
}

func BrandMismatch(brand string, allowed BrandSet) *Error {
	return &Error{Kind: KindBrandMismatch, Brand: brand, Allowed: append([]string(nil), allowed...)}
}

func CapacityExceeded(wouldBe, limit int) *Error {
	return &Error{Kind: KindCapacityExceeded, WouldBe: wouldBe, Limit: limit}
}

func Conflict(entity string) *Error {
	return &Error{Kind: KindConflict, Entity: entity}
}

// StoreFailure wraps a persistence error. A nil cause yields nil.
func StoreFailure(err error) error {
	if err == nil {
		return nil
	}
	var de *Error
	if errors.As(err, &de) {
		return err
	}
	return &Error{Kind: KindStoreFailure, Err: err}
}

// KindOf returns the kind of err, or KindStoreFailure for untyped errors.
func KindOf(err error) ErrorKind {
	var de *Error
	if errors.As(err, &de) {
		return de.Kind
	}
	return KindStoreFailure
}
