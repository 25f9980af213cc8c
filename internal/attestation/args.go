package attestation

import (
	"fmt"
	"log/slog"
	"math/big"
	"strings"

	"github.com/alanyoungcy/openoracle/internal/domain"
)

// BuildCallArgs combines a decoded message, its normalized signature and the
// attesting venue's identity into publishEntry arguments. A nil identity is
// encoded as zero.
func BuildCallArgs(att domain.DecodedAttestation, sig domain.NormalizedSignature, identity *big.Int) domain.ContractCallArgs {
	publisher := new(big.Int)
	if identity != nil {
		publisher.Set(identity)
	}
	return domain.ContractCallArgs{
		Timestamp:         att.Timestamp,
		Price:             att.Price,
		TickerLen:         att.TickerLen,
		TickerValue:       att.TickerValue,
		RLow:              sig.R.Low,
		RHigh:             sig.R.High,
		SLow:              sig.S.Low,
		SHigh:             sig.S.High,
		RecoveryID:        sig.RecoveryID,
		PublisherIdentity: publisher,
		Ticker:            att.Ticker,
	}
}

// PrepareCallArgs decodes a matched attestation and builds its call
// arguments.
func PrepareCallArgs(m domain.MatchedAttestation, logger *slog.Logger) (domain.ContractCallArgs, error) {
	att, err := Decode(m.Message)
	if err != nil {
		return domain.ContractCallArgs{}, err
	}
	sig, err := NormalizeSignature(m.Signature, logger)
	if err != nil {
		return domain.ContractCallArgs{}, err
	}

	logger.Info("trying to publish attestation",
		slog.String("ticker", att.Ticker),
		slog.Uint64("price", att.Price),
		slog.Uint64("timestamp", att.Timestamp),
		slog.String("publisher", FormatIdentity(m.PublisherIdentity)),
	)

	return BuildCallArgs(att, sig, m.PublisherIdentity), nil
}

// ParseIdentity parses a hex publisher identity, with or without 0x prefix,
// into an unsigned 256-bit integer.
func ParseIdentity(s string) (*big.Int, error) {
	h := strings.TrimSpace(s)
	if len(h) >= 2 && strings.EqualFold(h[:2], "0x") {
		h = h[2:]
	}
	if h == "" {
		return nil, fmt.Errorf("attestation: publisher identity %q is empty", s)
	}
	v, ok := new(big.Int).SetString(h, 16)
	if !ok {
		return nil, fmt.Errorf("attestation: publisher identity %q is not hex", s)
	}
	if v.BitLen() > 256 {
		return nil, fmt.Errorf("attestation: publisher identity %q exceeds 256 bits", s)
	}
	return v, nil
}

// FormatIdentity renders an identity as 0x-prefixed hex.
func FormatIdentity(v *big.Int) string {
	if v == nil {
		return "0x0"
	}
	return "0x" + v.Text(16)
}
