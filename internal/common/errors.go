// Package common defines shared constants and sentinel errors used across
// the KeyWarden layers. Callers should use errors.Is to match these values.
package common

import "errors"

var (
	// Repository-level errors.
	ErrorNotFound      = errors.New("not found")
	ErrVersionConflict = errors.New("version conflict")

	// Service-level errors (generic/internal flow control).
	ErrorInternal     = errors.New("internal error")
	ErrorUnauthorized = errors.New("unauthorized")

	// Auth errors (invalid or malformed token).
	ErrInvalidToken = errors.New("invalid token")

	// Key manager errors.
	ErrWeakDerivationInput = errors.New("weak derivation input")

	// Emergency access errors.
	ErrInactivityThresholdNotMet = errors.New("inactivity threshold not met")
	ErrDuplicateRequest          = errors.New("duplicate request")
	ErrContactNotEligible        = errors.New("contact not eligible")
	ErrIllegalTransition         = errors.New("illegal transition")
	ErrAlreadyResolved           = errors.New("already resolved")
	ErrRecordUnavailable         = errors.New("record unavailable")
	ErrDeliveryTimeout           = errors.New("delivery timeout")
)
