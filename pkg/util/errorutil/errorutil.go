package errorutil

import (
	"errors"
	"fmt"
	"net/http"
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
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *DomainError) Unwrap() error {
	return e.Err
}

// Is matches another DomainError by code so wrapped instances still classify.
func (e *DomainError) Is(target error) bool {
	var other *DomainError
	if !errors.As(target, &other) {
		return false
	}
	return e.Code == other.Code
}

// Wrap returns a copy of e carrying cause.
func (e *DomainError) Wrap(cause error) *DomainError {
	cp := *e
	cp.Err = cause
	return &cp
}

// Access gate taxonomy. Messages are user visible and shared by the REST and realtime paths.
var (
	ErrCredentialMissing   = NewDomainError("CREDENTIAL_MISSING", "No token provided", http.StatusUnauthorized, nil)
	ErrCredentialMalformed = NewDomainError("CREDENTIAL_MALFORMED", "Invalid token format", http.StatusUnauthorized, nil)
	ErrCredentialExpired   = NewDomainError("CREDENTIAL_EXPIRED", "Unauthorized", http.StatusUnauthorized, nil)
	ErrCredentialInvalid   = NewDomainError("CREDENTIAL_INVALID", "Unauthorized", http.StatusUnauthorized, nil)
	ErrAccountNotFound     = NewDomainError("ACCOUNT_NOT_FOUND", "User not found", http.StatusUnauthorized, nil)
	ErrAccountDisabled     = NewDomainError("ACCOUNT_DISABLED", "Access disabled by System Manager", http.StatusForbidden, nil)
	ErrAuthorizationDenied = NewDomainError("AUTHORIZATION_DENIED", "Access denied", http.StatusForbidden, nil)
	ErrInvalidCredentials  = NewDomainError("INVALID_CREDENTIALS", "Invalid credentials", http.StatusUnauthorized, nil)
	ErrValidation          = NewDomainError("VALIDATION_FAILED", "Invalid request", http.StatusBadRequest, nil)
)

// NewDomainError constructs a DomainError.
func NewDomainError(code, message string, status int, details map[string]any) *DomainError {
	return &DomainError{Code: code, Message: message, HTTPStatus: status, Details: details}
}

func NewValidationError(message string, details map[string]any) error {
	return NewDomainError(ErrValidation.Code, message, http.StatusBadRequest, details)
}

func NewNotFound(resource string, details map[string]any) error {
	if details == nil {
		details = map[string]any{}
	}
	return &DomainError{
		Code:       "NOT_FOUND",
		Message:    fmt.Sprintf("%s not found", resource),
		HTTPStatus: http.StatusNotFound,
		Details:    details,
	}
}

func NewUnauthorized(message string) error {
	return NewDomainError("UNAUTHORIZED", message, http.StatusUnauthorized, nil)
}

// NewForbidden reports a capability mismatch with an endpoint specific wording.
func NewForbidden(message string) error {
	return NewDomainError(ErrAuthorizationDenied.Code, message, http.StatusForbidden, nil)
}

func NewConflict(message string, details map[string]any) error {
	return NewDomainError("CONFLICT", message, http.StatusConflict, details)
}

func NewInternalError(err error) error {
	return &DomainError{
		Code:       "INTERNAL_ERROR",
		Message:    "Server error",
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
		return domainErr
	}
	return &DomainError{
		Code:       "INTERNAL_ERROR",
		Message:    "Server error",
		HTTPStatus: http.StatusInternalServerError,
		Err:        err,
	}
}

func MapError(err error) error {
	return ToDomainError(err)
}
