package errors

import (
	"fmt"
	"time"
)

// ErrorType represents the category of error
type ErrorType string

const (
	// ErrorTypeDataIntegrity represents malformed or incomplete modifier graph data
	ErrorTypeDataIntegrity ErrorType = "data_integrity"
	// ErrorTypeRetrieval represents candidate retrieval errors
	ErrorTypeRetrieval ErrorType = "retrieval"
	// ErrorTypeReward represents reward validation errors
	ErrorTypeReward ErrorType = "reward"
	// ErrorTypeArm represents bandit arm errors
	ErrorTypeArm ErrorType = "arm"
	// ErrorTypeStorage represents registry/ledger backend errors
	ErrorTypeStorage ErrorType = "storage"
	// ErrorTypeExternal represents collaborator service errors (embedding, LLM, analytics)
	ErrorTypeExternal ErrorType = "external"
	// ErrorTypeConfig represents configuration errors
	ErrorTypeConfig ErrorType = "config"
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

// NewBaseError creates a new base error
func NewBaseError(errType ErrorType, message string, err error) *BaseError {
	return &BaseError{
		Type:      errType,
		Message:   message,
		Timestamp: time.Now(),
		Err:       err,
	}
}

// Data Integrity Errors

// ErrGraphEmpty is returned when a modifier graph has no places
var ErrGraphEmpty = NewBaseError(ErrorTypeDataIntegrity, "modifier graph has no places", nil)

// ErrDataIntegrity is returned when graph data violates a structural invariant
type ErrDataIntegrity struct {
	*BaseError
	Entity string
	Detail string
}

func NewDataIntegrity(entity, detail string) *ErrDataIntegrity {
	return &ErrDataIntegrity{
		BaseError: NewBaseError(ErrorTypeDataIntegrity, fmt.Sprintf("corrupt graph data for %s: %s", entity, detail), nil),
		Entity:    entity,
		Detail:    detail,
	}
}

// Retrieval Errors

// ErrEmptyCandidateSet is returned when retrieval yields zero combinations
type ErrEmptyCandidateSet struct {
	*BaseError
	Topic string
}

func NewEmptyCandidateSet(topic string) *ErrEmptyCandidateSet {
	return &ErrEmptyCandidateSet{
		BaseError: NewBaseError(ErrorTypeRetrieval, fmt.Sprintf("no candidates found for topic: %s", topic), nil),
		Topic:     topic,
	}
}

// Reward Errors

// ErrInvalidReward is returned when a reward value is outside [0, 1] or not finite
type ErrInvalidReward struct {
	*BaseError
	CombinationKey string
	Value          float64
}

func NewInvalidReward(combinationKey string, value float64) *ErrInvalidReward {
	return &ErrInvalidReward{
		BaseError:      NewBaseError(ErrorTypeReward, fmt.Sprintf("reward must be in [0, 1], got %v", value), nil),
		CombinationKey: combinationKey,
		Value:          value,
	}
}

// Arm Errors

// ErrUnknownArm is returned by strict update policies when a combination key has no arm
type ErrUnknownArm struct {
	*BaseError
	CombinationKey string
}

func NewUnknownArm(combinationKey string) *ErrUnknownArm {
	return &ErrUnknownArm{
		BaseError:      NewBaseError(ErrorTypeArm, fmt.Sprintf("unknown combination: %s", combinationKey), nil),
		CombinationKey: combinationKey,
	}
}

// Storage Errors

// ErrStorageFailed is returned when a registry or ledger backend operation fails
type ErrStorageFailed struct {
	*BaseError
	Backend   string
	Operation string
}

func NewStorageFailed(backend, operation string, err error) *ErrStorageFailed {
	return &ErrStorageFailed{
		BaseError: NewBaseError(ErrorTypeStorage, fmt.Sprintf("%s %s failed", backend, operation), err),
		Backend:   backend,
		Operation: operation,
	}
}

// External Service Errors

// ErrExternalService is returned when a collaborator request fails
type ErrExternalService struct {
	*BaseError
	Service   string
	Attempts  int
	Retryable bool
}

func NewExternalService(service string, attempts int, retryable bool, err error) *ErrExternalService {
	return &ErrExternalService{
		BaseError: NewBaseError(ErrorTypeExternal, fmt.Sprintf("%s request failed after %d attempts", service, attempts), err),
		Service:   service,
		Attempts:  attempts,
		Retryable: retryable,
	}
}

// Config Errors

// ErrConfigValidationFailed is returned when configuration validation fails
type ErrConfigValidationFailed struct {
	*BaseError
	Field  string
	Reason string
}

func NewConfigValidationFailed(field, reason string) *ErrConfigValidationFailed {
	return &ErrConfigValidationFailed{
		BaseError: NewBaseError(ErrorTypeConfig, fmt.Sprintf("config validation failed: %s - %s", field, reason), nil),
		Field:     field,
		Reason:    reason,
	}
}

// ErrConfigMissingRequired is returned when a required config value is missing
type ErrConfigMissingRequired struct {
	*BaseError
	Field string
}

func NewConfigMissingRequired(field string) *ErrConfigMissingRequired {
	return &ErrConfigMissingRequired{
		BaseError: NewBaseError(ErrorTypeConfig, fmt.Sprintf("missing required config: %s", field), nil),
		Field:     field,
	}
}

// Helper functions

// typed is satisfied by BaseError and everything embedding it
type typed interface {
	errorType() ErrorType
}

func (e *BaseError) errorType() ErrorType {
	return e.Type
}

// IsErrorType checks if an error is of a specific type, walking wrapped errors.
// The outermost categorized error wins.
func IsErrorType(err error, errType ErrorType) bool {
	for err != nil {
		if t, ok := err.(typed); ok {
			return t.errorType() == errType
		}
		wrapper, ok := err.(interface{ Unwrap() error })
		if !ok {
			return false
		}
		err = wrapper.Unwrap()
	}
	return false
}

// IsRetryable checks if an error is retryable
func IsRetryable(err error) bool {
	if extErr, ok := err.(*ErrExternalService); ok {
		return extErr.Retryable
	}
	// Backend hiccups (conflicts, transient IO) are retryable
	if IsErrorType(err, ErrorTypeStorage) {
		return true
	}
	// Validation and data errors never resolve on retry
	return false
}
