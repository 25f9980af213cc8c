package attestation

import (
	"fmt"
	"log/slog"
	"math"

	"github.com/holiman/uint256"

	"github.com/alanyoungcy/openoracle/internal/domain"
)

// SignatureLen is the exact length of an Open Oracle signature.
const SignatureLen = 96

// mask128 is 2^128 - 1.
var mask128 = new(uint256.Int).Sub(
	new(uint256.Int).Lsh(uint256.NewInt(1), 128),
	uint256.NewInt(1),
)

// NormalizeSignature parses r || s || marker and re-encodes it for the
// contract: r and s are split into 128-bit halves and legacy recovery markers
// (27, 28) are mapped to 0 and 1.
func NormalizeSignature(raw domain.RawSignature, logger *slog.Logger) (domain.NormalizedSignature, error) {
	if len(raw) != SignatureLen {
		return domain.NormalizedSignature{}, fmt.Errorf("attestation: normalize signature: %w: got %d bytes, need %d",
			domain.ErrMalformedSignature, len(raw), SignatureLen)
	}

	r := new(uint256.Int).SetBytes32(raw[0:32])
	s := new(uint256.Int).SetBytes32(raw[32:64])
	marker := new(uint256.Int).SetBytes32(raw[64:96])

	v, err := RecoveryID(marker, logger)
	if err != nil {
		return domain.NormalizedSignature{}, err
	}

	return domain.NormalizedSignature{
		R:          Split(r),
		S:          Split(s),
		RecoveryID: v,
	}, nil
}

// RecoveryID maps a recovery marker onto the value the contract expects.
// Markers 27 and 28 become 0 and 1; 0 and 1 are kept. Any other marker that
// fits in a byte is forwarded unchanged and logged, since the contract will
// most likely refuse it. Larger markers are rejected.
func RecoveryID(marker *uint256.Int, logger *slog.Logger) (uint8, error) {
	if !marker.IsUint64() || marker.Uint64() > math.MaxUint8 {
		return 0, fmt.Errorf("attestation: recovery marker %s: %w: does not fit in a byte",
			marker.Dec(), domain.ErrMalformedSignature)
	}

	m := uint8(marker.Uint64())
	switch m {
	case 27, 28:
		return m - 27, nil
	case 0, 1:
		return m, nil
	default:
		logger.Warn("attestation: unexpected recovery marker, forwarding unchanged",
			slog.Int("marker", int(m)),
		)
		return m, nil
	}
}

// Split returns the low and high 128-bit halves of v.
func Split(v *uint256.Int) domain.SplitUint256 {
	low := new(uint256.Int).And(v, mask128)
	high := new(uint256.Int).Rsh(v, 128)
	return domain.SplitUint256{
		Low:  low.ToBig(),
		High: high.ToBig(),
	}
}
