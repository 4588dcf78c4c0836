package common

import (
	"errors"
	"fmt"
)

// AppError carries a stable code alongside a human-readable message.
type AppError struct {
	Code    string
	Message string
	Cause   error
}

func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Cause
}

// Pipeline error taxonomy. Every failure crossing the orchestrator boundary
// wraps exactly one of these; no raw engine errors reach the caller.
var (
	ErrValidation       = errors.New("validation error")
	ErrImageDecode      = errors.New("image decode error")
	ErrRender           = errors.New("render error")
	ErrRecognition      = errors.New("recognition error")
	ErrDuplicateInvoice = errors.New("duplicate invoice")

	ErrNotFound = errors.New("resource not found")
	ErrInternal = errors.New("internal error")
)

func NewAppError(code, message string, cause error) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
		Cause:   cause,
	}
}

func WrapError(err error, message string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", message, err)
}
