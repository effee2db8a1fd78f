package util

import (
	"errors"
	"fmt"
)

var (
	ErrUserNotFound      = errors.New("user not found")
	ErrEmailRegistered   = errors.New("email already registered")
	ErrInvalidCredential = errors.New("invalid email or password")
	ErrAccountPending    = errors.New("account is awaiting admin approval")
	ErrAccountRejected   = errors.New("account registration has been rejected")
	ErrPermissionDenied  = errors.New("permission denied")

	ErrValidation        = errors.New("validation failed")
	ErrNotFound          = errors.New("resource not found")
	ErrAssessmentMissing = fmt.Errorf("assessment %w", ErrNotFound)
	ErrSubmissionMissing = fmt.Errorf("submission %w", ErrNotFound)
	ErrAlreadySubmitted  = errors.New("assessment already submitted")

	ErrParse           = errors.New("document could not be parsed")
	ErrNoQuestions     = fmt.Errorf("%w: no valid questions found", ErrParse)
	ErrModelOutput     = errors.New("model response unparsable")
	ErrExternalService = errors.New("external service unavailable")
)

// Validationf 构造带 ErrValidation 语义的错误
func Validationf(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, args...))
}
