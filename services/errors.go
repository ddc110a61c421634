package services

import (
	"errors"
	"fmt"
)

var (
	ErrAccountNotFound  = errors.New("account not found")
	ErrRequestNotFound  = errors.New("request not found")
	ErrRequestFinalized = errors.New("request already finalized")
	ErrUnknownTier      = errors.New("unknown challenge tier")
	ErrChallengeNotMet  = errors.New("challenge target not reached")
	ErrReferralNotFound = errors.New("referral not found")

	// ErrSettlementExpired refuses to apply a request reviewed so long ago that
	// its idempotency marker may already have been compacted away.
	ErrSettlementExpired = errors.New("settlement window expired, reconcile manually")
)

// ValidationError rejects input before the store is touched.
type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

func invalid(field, message string) error {
	return &ValidationError{Field: field, Message: message}
}

// IsValidation reports whether err is a *ValidationError.
func IsValidation(err error) bool {
	var v *ValidationError
	return errors.As(err, &v)
}
