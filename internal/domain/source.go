package domain

import "context"

// AttestationSource fetches the current signed batch of one venue. Network
// and authentication failures are wrapped with ErrTransport.
type AttestationSource interface {
	Name() string
	Fetch(ctx context.Context, assets []string) ([]SignedAttestation, error)
}

// Submitter sends contract calls to the ledger and returns the transaction
// identifier. Failures wrap ErrTransport when a retry may succeed and
// ErrValidationRejected when the call content itself was refused.
// Implementations are single-owner: Submit must not run concurrently.
type Submitter interface {
	Submit(ctx context.Context, calls []ContractCallArgs) (string, error)
}
