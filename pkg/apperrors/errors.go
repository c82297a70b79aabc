// Package apperrors defines the sentinel errors shared across the answer
// pipeline. Handlers map these to HTTP statuses with errors.Is/As.
package apperrors

import (
	"errors"
	"fmt"
)

var (
	ErrUnauthenticated     = errors.New("authentication required")
	ErrQuotaExceeded       = errors.New("question quota exceeded")
	ErrInvalidRequest      = errors.New("questionId and action are required")
	ErrInvalidAction       = errors.New("invalid action")
	ErrEmptyResponse       = errors.New("response text is empty after sanitization")
	ErrResponseTooLong     = errors.New("response text exceeds maximum length")
	ErrNoResponseAvailable = errors.New("no response text available for this question")
	ErrNotFound            = errors.New("not found")
	ErrConflict            = errors.New("conflict")
	ErrAccountInactive     = errors.New("marketplace account is inactive")
	ErrMissingCredentials  = errors.New("marketplace account has no credentials")
	ErrDecryptionFailed    = errors.New("credential decryption failed")
	ErrInvalidQuestionID   = errors.New("marketplace question id is not numeric")
)

// QuotaExceededError carries the plan-gate details alongside the
// ErrQuotaExceeded sentinel so handlers can surface the upgrade signal.
type QuotaExceededError struct {
	Reason          string
	UpgradeRequired bool
}

func (e *QuotaExceededError) Error() string {
	if e.Reason != "" {
		return fmt.Sprintf("question quota exceeded: %s", e.Reason)
	}
	return "question quota exceeded"
}

// Is makes errors.Is(err, ErrQuotaExceeded) match.
func (e *QuotaExceededError) Is(target error) bool {
	return target == ErrQuotaExceeded
}
