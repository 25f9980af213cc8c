// Package attestation decodes Open Oracle signed messages and re-encodes them
// into publishEntry call arguments.
//
// An Open Oracle message is ABI-encoded by the venue, but the fields the
// contract needs are read from fixed little-endian windows:
//
//	[56:64)    timestamp
//	[120:128)  price
//	[216:224)  ticker length
//	[224:232)  ticker, NUL padded
package attestation

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"unicode/utf8"

	"github.com/alanyoungcy/openoracle/internal/domain"
)

// MinMessageLen is the shortest message Decode accepts.
const MinMessageLen = 232

const (
	timestampOffset = 56
	priceOffset     = 120
	tickerLenOffset = 216
	tickerOffset    = 224
	wordLen         = 8
)

// Decode extracts the typed fields of a signed message. It performs no
// plausibility checks on the values.
func Decode(raw domain.RawAttestation) (domain.DecodedAttestation, error) {
	if len(raw) < MinMessageLen {
		return domain.DecodedAttestation{}, fmt.Errorf("attestation: decode: %w: got %d bytes, need %d",
			domain.ErrMalformedAttestation, len(raw), MinMessageLen)
	}

	ticker, err := tickerText(raw[tickerOffset : tickerOffset+wordLen])
	if err != nil {
		return domain.DecodedAttestation{}, err
	}

	return domain.DecodedAttestation{
		Timestamp:   word(raw, timestampOffset),
		Price:       word(raw, priceOffset),
		TickerLen:   word(raw, tickerLenOffset),
		Ticker:      ticker,
		TickerValue: word(raw, tickerOffset),
	}, nil
}

// DecodeTicker returns only the ticker symbol of a message.
func DecodeTicker(raw domain.RawAttestation) (string, error) {
	if len(raw) < MinMessageLen {
		return "", fmt.Errorf("attestation: decode ticker: %w: got %d bytes, need %d",
			domain.ErrMalformedAttestation, len(raw), MinMessageLen)
	}
	return tickerText(raw[tickerOffset : tickerOffset+wordLen])
}

func word(raw []byte, offset int) uint64 {
	return binary.LittleEndian.Uint64(raw[offset : offset+wordLen])
}

// tickerText truncates the window at the first NUL byte.
func tickerText(window []byte) (string, error) {
	if i := bytes.IndexByte(window, 0); i >= 0 {
		window = window[:i]
	}
	if !utf8.Valid(window) {
		return "", fmt.Errorf("attestation: ticker %x: %w: not valid text", window, domain.ErrMalformedAttestation)
	}
	return string(window), nil
}
