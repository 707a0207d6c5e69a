package errorutil

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// Error codes shared by services, the job queue and the HTTP layer.
const (
	CodeValidation         = "VALIDATION_FAILED"
	CodeNotFound           = "NOT_FOUND"
	CodeUnauthorized       = "UNAUTHORIZED"
	CodeForbidden          = "FORBIDDEN"
	CodeMemberNotEligible  = "MEMBER_NOT_ELIGIBLE"
	CodePolicyViolation    = "POLICY_VIOLATION"
	CodeCapacityExhausted  = "CAPACITY_EXHAUSTED"
	CodeAssignmentConflict = "ASSIGNMENT_CONFLICT"
	CodeSquadNotEmpty      = "SQUAD_NOT_EMPTY"
	CodeInternal           = "INTERNAL_ERROR"
)

// Sentinels for errors.Is checks. Matching is by Code, so any DomainError
// carrying the same code matches regardless of message or details.
var (
	ErrValidation         = &DomainError{Code: CodeValidation}
	ErrNotFound           = &DomainError{Code: CodeNotFound}
	ErrMemberNotEligible  = &DomainError{Code: CodeMemberNotEligible}
	ErrPolicyViolation    = &DomainError{Code: CodePolicyViolation}
	ErrCapacityExhausted  = &DomainError{Code: CodeCapacityExhausted}
	ErrAssignmentConflict = &DomainError{Code: CodeAssignmentConflict}
	ErrSquadNotEmpty      = &DomainError{Code: CodeSquadNotEmpty}
)

// DomainError standardizes application errors.
type DomainError struct {
	Code       string
	Message    string
	HTTPStatus int
	Details    map[string]any
	Err        error
}

func (e *DomainError) Error() string {
	msg := e.Message
	if msg == "" {
		msg = strings.ToLower(e.Code)
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

func (e *DomainError) Unwrap() error {
	return e.Err
}

// Is reports whether target is a DomainError with the same code.
func (e *DomainError) Is(target error) bool {
	t, ok := target.(*DomainError)
	if !ok {
		return false
	}
	return t.Code == e.Code
}

// Kind is the lower-case code used in job failure payloads.
func (e *DomainError) Kind() string {
	return strings.ToLower(e.Code)
}

// NewDomainError constructs a DomainError.
func NewDomainError(code, message string, status int, details map[string]any) *DomainError {
	return &DomainError{Code: code, Message: message, HTTPStatus: status, Details: details}
}

func NewValidationError(message string, details map[string]any) error {
	return NewDomainError(CodeValidation, message, http.StatusBadRequest, details)
}

func NewNotFound(resource string, details map[string]any) error {
	if details == nil {
		details = map[string]any{}
	}
	return &DomainError{
		Code:       CodeNotFound,
		Message:    fmt.Sprintf("%s not found", resource),
		HTTPStatus: http.StatusNotFound,
		Details:    details,
	}
}

func NewUnauthorized(message string) error {
	return NewDomainError(CodeUnauthorized, message, http.StatusUnauthorized, nil)
}

func NewForbidden(message string) error {
	return NewDomainError(CodeForbidden, message, http.StatusForbidden, nil)
}

func NewMemberNotEligible(message string, details map[string]any) error {
	return NewDomainError(CodeMemberNotEligible, message, http.StatusConflict, details)
}

func NewPolicyViolation(message string, details map[string]any) error {
	return NewDomainError(CodePolicyViolation, message, http.StatusConflict, details)
}

func NewCapacityExhausted(message string, details map[string]any) error {
	return NewDomainError(CodeCapacityExhausted, message, http.StatusConflict, details)
}

// NewAssignmentConflict wraps a storage-level conflict (lost race, lock
// failure, unique violation) so callers can retry.
func NewAssignmentConflict(message string, err error) error {
	return &DomainError{
		Code:       CodeAssignmentConflict,
		Message:    message,
		HTTPStatus: http.StatusConflict,
		Err:        err,
	}
}

func NewSquadNotEmpty(message string, details map[string]any) error {
	return NewDomainError(CodeSquadNotEmpty, message, http.StatusConflict, details)
}

func NewInternalError(err error) error {
	return &DomainError{
		Code:       CodeInternal,
		Message:    "internal server error",
		HTTPStatus: http.StatusInternalServerError,
		Err:        err,
	}
}

// ToDomainError converts generic errors to DomainError.
func ToDomainError(err error) *DomainError {
	if err == nil {
		return nil
	}
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		if domainErr.HTTPStatus == 0 {
			copied := *domainErr
			copied.HTTPStatus = statusForCode(domainErr.Code)
			return &copied
		}
		return domainErr
	}
	return &DomainError{
		Code:       CodeInternal,
		Message:    "internal server error",
		HTTPStatus: http.StatusInternalServerError,
		Err:        err,
	}
}

// Retryable reports whether an attempt that failed with err may succeed if
// repeated unchanged: write conflicts and infrastructure failures are,
// domain rejections are not.
func Retryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrAssignmentConflict) {
		return true
	}
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr.Code == CodeInternal
	}
	return true
}

func statusForCode(code string) int {
	switch code {
	case CodeValidation:
		return http.StatusBadRequest
	case CodeNotFound:
		return http.StatusNotFound
	case CodeUnauthorized:
		return http.StatusUnauthorized
	case CodeForbidden:
		return http.StatusForbidden
	case CodeMemberNotEligible, CodePolicyViolation, CodeCapacityExhausted, CodeAssignmentConflict, CodeSquadNotEmpty:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}
