package attestation

import (
	"log/slog"
	"math/big"
	"strings"

	"github.com/alanyoungcy/openoracle/internal/domain"
)

// MatchAssets selects, for each requested symbol in order, the first batch
// entry whose ticker equals the uppercased symbol. Symbols the venue did not
// sign are skipped; partial availability is not an error.
func MatchAssets(
	venue string,
	requested []string,
	batch []domain.SignedAttestation,
	identity *big.Int,
	logger *slog.Logger,
) []domain.MatchedAttestation {
	first := make(map[string]int, len(batch))
	for i, entry := range batch {
		if entry.Ticker == "" {
			continue
		}
		if _, seen := first[entry.Ticker]; !seen {
			first[entry.Ticker] = i
		}
	}

	out := make([]domain.MatchedAttestation, 0, len(requested))
	for _, asset := range requested {
		symbol := strings.ToUpper(strings.TrimSpace(asset))
		idx, ok := first[symbol]
		if !ok {
			logger.Info("asset not available in venue signed messages, skipping",
				slog.String("venue", venue),
				slog.String("asset", symbol),
			)
			continue
		}
		out = append(out, domain.MatchedAttestation{
			Asset:             symbol,
			Message:           batch[idx].Message,
			Signature:         batch[idx].Signature,
			PublisherIdentity: identity,
		})
	}
	return out
}
