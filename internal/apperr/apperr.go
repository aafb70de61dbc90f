package apperr

import (
	"errors"
	"fmt"
)

// Kind classifies an error so callers can decide how to react to it.
type Kind string

const (
	KindValidation         Kind = "validation"
	KindEligibility        Kind = "eligibility"
	KindConflict           Kind = "conflict"
	KindNotFound           Kind = "not_found"
	KindExternalDependency Kind = "external_dependency"
	KindInternal           Kind = "internal"
)

// FieldError is used to indicate an error with a specific request field.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// ItemError reports why a single entity of a multi-entity request failed.
type ItemError struct {
	ID     string `json:"id"`
	Reason string `json:"reason"`
}

type Error struct {
	Kind     Kind
	Message  string
	EntityID string
	Fields   []FieldError
	Details  []ItemError
	Err      error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

func Validation(message string, fields ...FieldError) error {
	return &Error{Kind: KindValidation, Message: message, Fields: fields}
}

// Invalid is a validation failure tied to one entity rather than to a field.
func Invalid(entityID, message string) error {
	return &Error{Kind: KindValidation, Message: message, EntityID: entityID}
}

func Eligibility(message string, details []ItemError) error {
	return &Error{Kind: KindEligibility, Message: message, Details: details}
}

func Conflict(entityID, message string) error {
	return &Error{Kind: KindConflict, Message: message, EntityID: entityID}
}

func NotFound(entity, id string) error {
	return &Error{Kind: KindNotFound, Message: entity + " not found", EntityID: id}
}

// External wraps a failure of a collaborating service. It is never treated
// as an empty answer by the caller.
func External(service string, err error) error {
	return &Error{
		Kind:    KindExternalDependency,
		Message: service + " unavailable",
		Err:     err,
	}
}

// KindOf returns the Kind of err, or KindInternal for unclassified errors.
func KindOf(err error) Kind {
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr.Kind
	}
	return KindInternal
}

// As extracts the structured error from err.
func As(err error) (*Error, bool) {
	var appErr *Error
	ok := errors.As(err, &appErr)
	return appErr, ok
}

func Is(err error, kind Kind) bool {
	return KindOf(err) == kind
}

// Reason renders err for a per-row batch report.
func Reason(err error) string {
	if appErr, ok := As(err); ok {
		return appErr.Message
	}
	return err.Error()
}
