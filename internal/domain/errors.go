package domain

import "errors"

var (
	ErrMalformedAttestation = errors.New("malformed attestation")
	ErrMalformedSignature   = errors.New("malformed signature")
	ErrTransport            = errors.New("transport error")
	ErrValidationRejected   = errors.New("rejected by ledger validation")
	ErrNotFound             = errors.New("not found")
	ErrUnauthorized         = errors.New("unauthorized")
	ErrRateLimited          = errors.New("rate limited")
	ErrLockHeld             = errors.New("lock already held")
)
