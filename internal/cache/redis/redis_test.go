package redis

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/openoracle/internal/domain"
)

func TestPriceEncoding(t *testing.T) {
	in := domain.AttestedPrice{
		Price:      18_446_744_073_709_551_615,
		AttestedAt: time.Date(2026, 3, 1, 12, 0, 0, 5, time.UTC),
		TxHash:     "0xabc",
	}

	raw := encodePrice(in)
	vals := make(map[string]string, len(raw))
	for k, v := range raw {
		vals[k] = v.(string)
	}

	out, err := decodePrice(vals)
	require.NoError(t, err)
	assert.Equal(t, in, out)
}

func TestDecodePrice_Missing(t *testing.T) {
	_, err := decodePrice(map[string]string{"tx": "0x1"})
	assert.ErrorIs(t, err, domain.ErrNotFound)

	_, err = decodePrice(map[string]string{"price": "x", "attested_at": "1"})
	assert.Error(t, err)
}

func TestKeys(t *testing.T) {
	assert.Equal(t, "price:OKX:BTC", priceKey("OKX:BTC"))
	assert.Equal(t, "lock:publish:0xabcdef", lockKey(PublishLockKey("0xABCDEF")))
}

func TestHasPattern(t *testing.T) {
	assert.False(t, hasPattern(domain.PublishChannel))
	assert.True(t, hasPattern("openoracle:*"))
	assert.True(t, hasPattern("publish:[ab]"))
}
