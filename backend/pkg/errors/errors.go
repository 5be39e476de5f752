package errors

import (
	"errors"
	"fmt"
	"time"
)

// ErrorType represents the category of error
type ErrorType string

const (
	// ErrorTypeValidation represents entity property schema violations
	ErrorTypeValidation ErrorType = "validation"
	// ErrorTypeBackend represents graph engine failures (network, timeout, bad query)
	ErrorTypeBackend ErrorType = "backend"
	// ErrorTypeNotFound represents operations targeting a missing id/uuid
	ErrorTypeNotFound ErrorType = "not_found"
	// ErrorTypeMergeConflict represents a failed profile transaction commit
	ErrorTypeMergeConflict ErrorType = "merge_conflict"
	// ErrorTypeConfig represents configuration errors
	ErrorTypeConfig ErrorType = "config"
	// ErrorTypeExtraction represents extractor collaborator failures
	ErrorTypeExtraction ErrorType = "extraction"
)

// BaseError is the base error type with common fields
type BaseError struct {
	Type      ErrorType
	Message   string
	Timestamp time.Time
	Err       error // Wrapped error
}

// Error implements the error interface
func (e *BaseError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Type, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Type, e.Message)
}

// Unwrap returns the wrapped error for error unwrapping
func (e *BaseError) Unwrap() error {
	return e.Err
}

// Kind returns the error category. Promoted to every typed error that
// embeds BaseError, so callers can branch without listing concrete types.
func (e *BaseError) Kind() ErrorType {
	return e.Type
}

// NewBaseError creates a new base error
func NewBaseError(errType ErrorType, message string, err error) *BaseError {
	return &BaseError{
		Type:      errType,
		Message:   message,
		Timestamp: time.Now(),
		Err:       err,
	}
}

// Validation Errors

// ValidationError is returned when entity properties violate the type schema.
// Never retried; always surfaced to the caller.
type ValidationError struct {
	*BaseError
	EntityType string
	Field      string
}

func NewMissingRequiredField(entityType, field string) *ValidationError {
	return &ValidationError{
		BaseError:  NewBaseError(ErrorTypeValidation, fmt.Sprintf("missing required field %q for entity type %s", field, entityType), nil),
		EntityType: entityType,
		Field:      field,
	}
}

func NewUnknownProperty(entityType, field string) *ValidationError {
	return &ValidationError{
		BaseError:  NewBaseError(ErrorTypeValidation, fmt.Sprintf("unknown property %q for entity type %s", field, entityType), nil),
		EntityType: entityType,
		Field:      field,
	}
}

func NewInvalidValue(entityType, field, reason string) *ValidationError {
	return &ValidationError{
		BaseError:  NewBaseError(ErrorTypeValidation, fmt.Sprintf("invalid value for %q on entity type %s: %s", field, entityType, reason), nil),
		EntityType: entityType,
		Field:      field,
	}
}

// Backend Errors

// BackendError is returned when a graph engine call fails
type BackendError struct {
	*BaseError
	Operation string
}

func NewBackendError(operation string, err error) *BackendError {
	return &BackendError{
		BaseError: NewBaseError(ErrorTypeBackend, fmt.Sprintf("graph operation failed: %s", operation), err),
		Operation: operation,
	}
}

// NotFound Errors

// NotFoundError is returned when a delete/update targets a missing id.
// Callers usually treat this as an expected steady-state outcome.
type NotFoundError struct {
	*BaseError
	Kind string
	ID   string
}

func NewNotFound(kind, id string) *NotFoundError {
	return &NotFoundError{
		BaseError: NewBaseError(ErrorTypeNotFound, fmt.Sprintf("%s not found: %s", kind, id), nil),
		Kind:      kind,
		ID:        id,
	}
}

// Merge Conflict Errors

// MergeConflictError is returned when a profile transaction fails to commit.
// The whole trait batch is rolled back; the caller may retry it.
type MergeConflictError struct {
	*BaseError
	UserID string
}

func NewMergeConflict(userID string, err error) *MergeConflictError {
	return &MergeConflictError{
		BaseError: NewBaseError(ErrorTypeMergeConflict, fmt.Sprintf("profile merge failed for user %s", userID), err),
		UserID:    userID,
	}
}

// Extraction Errors

// ExtractionError is returned when an extractor collaborator fails for a chunk
type ExtractionError struct {
	*BaseError
	ChunkIndex int
}

func NewExtractionFailed(chunkIndex int, err error) *ExtractionError {
	return &ExtractionError{
		BaseError:  NewBaseError(ErrorTypeExtraction, fmt.Sprintf("extraction failed for chunk %d", chunkIndex), err),
		ChunkIndex: chunkIndex,
	}
}

// NewExtraction wraps an extractor failure that is not tied to a chunk
func NewExtraction(message string, err error) *ExtractionError {
	return &ExtractionError{
		BaseError:  NewBaseError(ErrorTypeExtraction, message, err),
		ChunkIndex: -1,
	}
}

// Helper functions

// IsErrorType checks if an error (or any error it wraps) carries the given type
func IsErrorType(err error, errType ErrorType) bool {
	for err != nil {
		if kinded, ok := err.(interface{ Kind() ErrorType }); ok {
			return kinded.Kind() == errType
		}
		err = errors.Unwrap(err)
	}
	return false
}

// IsValidation reports whether err is a schema validation failure
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

// IsBackend reports whether err is a graph engine failure
func IsBackend(err error) bool {
	var be *BackendError
	return errors.As(err, &be)
}

// IsNotFound reports whether err is a missing-target failure
func IsNotFound(err error) bool {
	var nf *NotFoundError
	return errors.As(err, &nf)
}

// IsMergeConflict reports whether err is a failed profile commit
func IsMergeConflict(err error) bool {
	var mc *MergeConflictError
	return errors.As(err, &mc)
}

// IsRetryable checks if an error is worth retrying
func IsRetryable(err error) bool {
	// Validation failures never succeed on retry
	if IsValidation(err) {
		return false
	}
	// A fresh batch can be retried after a merge conflict
	if IsMergeConflict(err) {
		return true
	}
	// Backend failures are usually transient (network, timeout)
	if IsBackend(err) {
		return true
	}
	return false
}
