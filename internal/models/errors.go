package models

import (
	"errors"
	"fmt"
)

// Entity names used in NotFoundError
const (
	EntityOrganization = "organization"
	EntitySystem       = "system"
	EntityRow          = "row"
	EntityProfile      = "profile"
	EntityReading      = "reading"
	EntityAlert        = "alert"
	EntityRule         = "rule"
)

// NotFoundError reports a missing referenced entity. It is surfaced to the
// caller and never retried internally.
type NotFoundError struct {
	Entity string
	Key    string
}

func (e *NotFoundError) Error() string {
	if e.Key == "" {
		return fmt.Sprintf("%s not found", e.Entity)
	}
	return fmt.Sprintf("%s not found: %s", e.Entity, e.Key)
}

// NewNotFound builds a NotFoundError for the given entity and lookup key.
func NewNotFound(entity, key string) error {
	return &NotFoundError{Entity: entity, Key: key}
}

// IsNotFound reports whether err is a NotFoundError, optionally for a
// specific entity (empty entity matches any).
func IsNotFound(err error, entity string) bool {
	var nf *NotFoundError
	if !errors.As(err, &nf) {
		return false
	}
	return entity == "" || nf.Entity == entity
}

// Taxonomy sentinels
var (
	// ErrCrossTenant rejects an operation linking entities from different
	// organizations. Never partially applied.
	ErrCrossTenant = errors.New("cross-tenant reference")

	// ErrDuplicateRoutingKey rejects a second system with an existing
	// routing key.
	ErrDuplicateRoutingKey = errors.New("routing key already in use")

	// ErrDuplicateRowNumber rejects a second row with an existing number
	// under the same system.
	ErrDuplicateRowNumber = errors.New("row number already in use")
)

// Validation errors for inbound readings
var (
	ErrEmptyRoutingKey = errors.New("routing key cannot be empty")
	ErrEmptyPayload    = errors.New("payload must contain at least one parameter")
	ErrZeroTimestamp   = errors.New("timestamp cannot be zero")
	ErrNegativeRow     = errors.New("row number cannot be negative")
)
