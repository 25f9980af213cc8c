package attestation

import (
	"encoding/binary"
	"log/slog"
	"math/big"

	"github.com/alanyoungcy/openoracle/internal/domain"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}

// buildMessage lays out a synthetic Open Oracle message.
func buildMessage(ts, price uint64, ticker string) domain.RawAttestation {
	msg := make([]byte, MinMessageLen)
	binary.LittleEndian.PutUint64(msg[timestampOffset:], ts)
	binary.LittleEndian.PutUint64(msg[priceOffset:], price)
	binary.LittleEndian.PutUint64(msg[tickerLenOffset:], uint64(len(ticker)))
	copy(msg[tickerOffset:tickerOffset+wordLen], ticker)
	return msg
}

// buildSignature lays out r || s || marker, big-endian.
func buildSignature(r, s *big.Int, marker uint64) domain.RawSignature {
	sig := make([]byte, SignatureLen)
	r.FillBytes(sig[0:32])
	s.FillBytes(sig[32:64])
	new(big.Int).SetUint64(marker).FillBytes(sig[64:96])
	return sig
}
