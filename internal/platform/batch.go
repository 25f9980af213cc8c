// Package platform holds the wire helpers shared by the venue clients.
package platform

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/ethereum/go-ethereum/common/hexutil"

	"github.com/alanyoungcy/openoracle/internal/attestation"
	"github.com/alanyoungcy/openoracle/internal/domain"
)

// DecodeHex decodes a hex string with or without a 0x prefix.
func DecodeHex(s string) ([]byte, error) {
	s = strings.TrimSpace(s)
	if len(s) >= 2 && (s[:2] == "0x" || s[:2] == "0X") {
		s = s[2:]
	}
	return hexutil.Decode("0x" + s)
}

// ParseBatch turns the parallel hex message and signature lists a venue
// returns into signed attestations. The ticker of each entry is read from
// its message; messages too short to carry one get an empty ticker so they
// never match a requested asset. Entries that are not valid hex are logged
// and dropped. Only a length mismatch between the lists fails the batch.
func ParseBatch(messages, signatures []string, logger *slog.Logger) ([]domain.SignedAttestation, error) {
	if len(messages) != len(signatures) {
		return nil, fmt.Errorf("platform: %d messages but %d signatures", len(messages), len(signatures))
	}

	batch := make([]domain.SignedAttestation, 0, len(messages))
	for i := range messages {
		msg, err := DecodeHex(messages[i])
		if err != nil {
			logger.Warn("platform: dropping undecodable message",
				slog.Int("index", i),
				slog.String("error", err.Error()),
			)
			continue
		}
		sig, err := DecodeHex(signatures[i])
		if err != nil {
			logger.Warn("platform: dropping undecodable signature",
				slog.Int("index", i),
				slog.String("error", err.Error()),
			)
			continue
		}

		ticker, err := attestation.DecodeTicker(msg)
		if err != nil {
			ticker = ""
		}

		batch = append(batch, domain.SignedAttestation{
			Message:   msg,
			Signature: sig,
			Ticker:    ticker,
		})
	}
	return batch, nil
}
