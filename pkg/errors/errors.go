package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// Domain errors, one per failure kind
var (
	ErrInvalidArgument        = errors.New("invalid argument")
	ErrNotFound               = errors.New("not found")
	ErrConflict               = errors.New("conflict")
	ErrConcurrentModification = errors.New("concurrent modification")
	ErrIllegalTransition      = errors.New("illegal status transition")
	ErrIllegalState           = errors.New("illegal state")
	ErrUnavailable            = errors.New("dependency unavailable")
	ErrRejected               = errors.New("ledger transaction rejected")
)

// BusinessError represents a business logic error
type BusinessError struct {
	Code    string
	Message string
	Err     error
}

func (e *BusinessError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s (%v)", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *BusinessError) Unwrap() error {
	return e.Err
}

// NewBusinessError creates a new business error
func NewBusinessError(code, message string, err error) *BusinessError {
	return &BusinessError{
		Code:    code,
		Message: message,
		Err:     err,
	}
}

// Error codes
const (
	ErrCodeInvalidArgument        = "INVALID_ARGUMENT"
	ErrCodeNotFound               = "NOT_FOUND"
	ErrCodeConflict               = "CONFLICT"
	ErrCodeConcurrentModification = "CONCURRENT_MODIFICATION"
	ErrCodeIllegalTransition      = "ILLEGAL_TRANSITION"
	ErrCodeIllegalState           = "ILLEGAL_STATE"
	ErrCodeUnavailable            = "UNAVAILABLE"
	ErrCodeRejected               = "REJECTED"
	ErrCodeDatabaseError          = "DATABASE_ERROR"
	ErrCodeCacheError             = "CACHE_ERROR"
)

// kindSentinels pairs each code with the sentinel it wraps so callers can use errors.Is.
var kindSentinels = map[string]error{
	ErrCodeInvalidArgument:        ErrInvalidArgument,
	ErrCodeNotFound:               ErrNotFound,
	ErrCodeConflict:               ErrConflict,
	ErrCodeConcurrentModification: ErrConcurrentModification,
	ErrCodeIllegalTransition:      ErrIllegalTransition,
	ErrCodeIllegalState:           ErrIllegalState,
	ErrCodeUnavailable:            ErrUnavailable,
	ErrCodeRejected:               ErrRejected,
	ErrCodeDatabaseError:          ErrUnavailable,
}

// Is reports whether target is the sentinel of this error's kind, in addition to
// anything in the wrapped chain.
func (e *BusinessError) Is(target error) bool {
	sentinel, ok := kindSentinels[e.Code]
	return ok && sentinel == target
}

func WrapInvalidArgument(format string, args ...any) *BusinessError {
	return NewBusinessError(ErrCodeInvalidArgument, fmt.Sprintf(format, args...), nil)
}

func WrapNotFound(entity, id string) *BusinessError {
	return NewBusinessError(
		ErrCodeNotFound,
		fmt.Sprintf("%s with ID %s not found", entity, id),
		nil,
	)
}

func WrapConflict(message string) *BusinessError {
	return NewBusinessError(ErrCodeConflict, message, nil)
}

func WrapConcurrentModification(loanID string, err error) *BusinessError {
	return NewBusinessError(
		ErrCodeConcurrentModification,
		fmt.Sprintf("Loan with ID %s was modified concurrently, retry the request", loanID),
		err,
	)
}

func WrapIllegalTransition(entity, from, to string) *BusinessError {
	return NewBusinessError(
		ErrCodeIllegalTransition,
		fmt.Sprintf("%s cannot move from %s to %s", entity, from, to),
		nil,
	)
}

func WrapIllegalState(message string) *BusinessError {
	return NewBusinessError(ErrCodeIllegalState, message, nil)
}

func WrapUnavailable(message string, err error) *BusinessError {
	return NewBusinessError(ErrCodeUnavailable, message, err)
}

func WrapRejected(ref string, err error) *BusinessError {
	return NewBusinessError(
		ErrCodeRejected,
		fmt.Sprintf("Ledger transaction %s was rejected", ref),
		err,
	)
}

func WrapDatabaseError(err error) *BusinessError {
	return NewBusinessError(
		ErrCodeDatabaseError,
		"database operation failed",
		err,
	)
}

func WrapCacheError(err error) *BusinessError {
	return NewBusinessError(
		ErrCodeCacheError,
		"Cache operation failed",
		err,
	)
}

// Code extracts the machine-readable code of err, or an empty string for
// errors that did not come from this package.
func Code(err error) string {
	var be *BusinessError
	if errors.As(err, &be) {
		return be.Code
	}
	return ""
}

// HTTPStatus maps an error to the status code a handler should answer with.
func HTTPStatus(err error) int {
	switch Code(err) {
	case ErrCodeInvalidArgument, ErrCodeConflict:
		return http.StatusBadRequest
	case ErrCodeNotFound:
		return http.StatusNotFound
	case ErrCodeConcurrentModification, ErrCodeIllegalTransition, ErrCodeIllegalState:
		return http.StatusConflict
	case ErrCodeRejected:
		return http.StatusUnprocessableEntity
	case ErrCodeUnavailable, ErrCodeDatabaseError:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
