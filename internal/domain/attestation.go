package domain

import "math/big"

// RawAttestation is a venue-signed Open Oracle message. The layout is fixed by
// the venue; at least 232 bytes are required to read every field.
type RawAttestation []byte

// RawSignature is the 96-byte signature over a RawAttestation, laid out as
// r(32) || s(32) || recovery marker(32), all big-endian.
type RawSignature []byte

// SignedAttestation is one element of a venue batch as returned by an
// AttestationSource. Ticker is decoded from the message and is empty when the
// message is too short to carry one.
type SignedAttestation struct {
	Message   RawAttestation
	Signature RawSignature
	Ticker    string
}

// DecodedAttestation holds the typed fields of a RawAttestation.
type DecodedAttestation struct {
	Timestamp uint64
	Price     uint64
	TickerLen uint64
	Ticker    string
	// TickerValue is the little-endian integer of the raw ticker window, which
	// is what the contract receives in its ticker slot.
	TickerValue uint64
}

// SplitUint256 represents an unsigned 256-bit integer as two 128-bit halves:
// v == Low + High<<128.
type SplitUint256 struct {
	Low  *big.Int
	High *big.Int
}

// NormalizedSignature is a signature re-encoded for the contract call.
type NormalizedSignature struct {
	R          SplitUint256
	S          SplitUint256
	RecoveryID uint8
}

// MatchedAttestation is a batch entry selected for a requested asset.
type MatchedAttestation struct {
	Asset             string // uppercased symbol
	Message           RawAttestation
	Signature         RawSignature
	PublisherIdentity *big.Int
}

// ContractCallArgs is the argument set of a single publishEntry call. Field
// order matches the contract ABI.
type ContractCallArgs struct {
	Timestamp         uint64
	Price             uint64
	TickerLen         uint64
	TickerValue       uint64
	RLow              *big.Int
	RHigh             *big.Int
	SLow              *big.Int
	SHigh             *big.Int
	RecoveryID        uint8
	PublisherIdentity *big.Int

	// Ticker is the decoded symbol. It is not part of the call.
	Ticker string
}
