// Package common defines shared constants and sentinel errors used across
// client layers of kappi. Callers should use errors.Is to match these values
// and Classify to branch on the outcome of an operation.
package common

import "errors"

var (
	// Storage errors.
	ErrTamperDetected     = errors.New("tamper detected")
	ErrStorageUnavailable = errors.New("storage unavailable")

	// Session errors.
	ErrCredentialExpired = errors.New("credential expired")
	ErrNotAuthenticated  = errors.New("not authenticated")
	ErrTooManyAttempts   = errors.New("too many login attempts")
	ErrAlreadyRegistered = errors.New("this email is already registered. Please use the login screen instead")

	// Remote boundary errors.
	ErrRemoteRejected     = errors.New("remote rejected")
	ErrNetworkUnavailable = errors.New("network unavailable")

	// Local validation errors.
	ErrValidationFailed = errors.New("validation failed")

	// Queue errors.
	ErrRecordNotFound = errors.New("record not found")
)

// Outcome tags the result of an operation so callers can branch without
// inspecting error messages.
type Outcome int

const (
	OutcomeOK Outcome = iota
	OutcomeValidation
	OutcomeRejected
	OutcomeTransport
	OutcomeLocked
	OutcomeStorage
	OutcomeExpired
	OutcomeOther
)

func (o Outcome) String() string {
	switch o {
	case OutcomeOK:
		return "ok"
	case OutcomeValidation:
		return "validation_failed"
	case OutcomeRejected:
		return "remote_rejected"
	case OutcomeTransport:
		return "transport_failure"
	case OutcomeLocked:
		return "locked_out"
	case OutcomeStorage:
		return "storage_unavailable"
	case OutcomeExpired:
		return "credential_expired"
	default:
		return "other"
	}
}

// Classify maps err onto an Outcome. A nil error is OutcomeOK.
func Classify(err error) Outcome {
	switch {
	case err == nil:
		return OutcomeOK
	case errors.Is(err, ErrValidationFailed):
		return OutcomeValidation
	case errors.Is(err, ErrTooManyAttempts):
		return OutcomeLocked
	case errors.Is(err, ErrRemoteRejected), errors.Is(err, ErrAlreadyRegistered):
		return OutcomeRejected
	case errors.Is(err, ErrNetworkUnavailable):
		return OutcomeTransport
	case errors.Is(err, ErrStorageUnavailable):
		return OutcomeStorage
	case errors.Is(err, ErrCredentialExpired), errors.Is(err, ErrNotAuthenticated):
		return OutcomeExpired
	default:
		return OutcomeOther
	}
}
