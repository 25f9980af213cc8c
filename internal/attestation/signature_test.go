package attestation

import (
	"bytes"
	"log/slog"
	"math/big"
	"math/rand"
	"testing"

	"github.com/holiman/uint256"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/openoracle/internal/domain"
)

var two128 = new(big.Int).Lsh(big.NewInt(1), 128)

func recombine(s domain.SplitUint256) *big.Int {
	return new(big.Int).Add(s.Low, new(big.Int).Mul(s.High, two128))
}

func TestSplit_Recombines(t *testing.T) {
	max256 := new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), 256), big.NewInt(1))
	values := []*big.Int{
		big.NewInt(0),
		big.NewInt(1),
		new(big.Int).Sub(two128, big.NewInt(1)),
		new(big.Int).Set(two128),
		new(big.Int).Add(two128, big.NewInt(1)),
		max256,
	}

	rng := rand.New(rand.NewSource(42))
	for i := 0; i < 200; i++ {
		b := make([]byte, 32)
		rng.Read(b)
		values = append(values, new(big.Int).SetBytes(b))
	}

	for _, v := range values {
		u, overflow := uint256.FromBig(v)
		require.False(t, overflow)

		s := Split(u)
		assert.Equal(t, 0, recombine(s).Cmp(v), "value %s", v)
		assert.LessOrEqual(t, s.Low.BitLen(), 128)
		assert.LessOrEqual(t, s.High.BitLen(), 128)
	}
}

func TestRecoveryID(t *testing.T) {
	tests := []struct {
		marker uint64
		want   uint8
		warns  bool
	}{
		{marker: 27, want: 0},
		{marker: 28, want: 1},
		{marker: 0, want: 0},
		{marker: 1, want: 1},
		{marker: 35, want: 35, warns: true},
	}

	for _, tt := range tests {
		var logs bytes.Buffer
		logger := slog.New(slog.NewTextHandler(&logs, nil))

		got, err := RecoveryID(uint256.NewInt(tt.marker), logger)
		require.NoError(t, err)
		assert.Equal(t, tt.want, got, "marker %d", tt.marker)

		if tt.warns {
			assert.Contains(t, logs.String(), "level=WARN")
			assert.Contains(t, logs.String(), "unexpected recovery marker")
			assert.Contains(t, logs.String(), "marker=35")
		} else {
			assert.Empty(t, logs.String(), "marker %d", tt.marker)
		}
	}
}

func TestRecoveryID_TooLarge(t *testing.T) {
	_, err := RecoveryID(uint256.NewInt(256), discardLogger())
	require.ErrorIs(t, err, domain.ErrMalformedSignature)
}

func TestNormalizeSignature(t *testing.T) {
	r, _ := new(big.Int).SetString("c1f8ab47b2b3b57aeb8a5a4ed56f5e7f6e7b1c1d2e3f405162738495a6b7c8d9", 16)
	s, _ := new(big.Int).SetString("0fedcba98765432100112233445566778899aabbccddeeff0011223344556677", 16)

	got, err := NormalizeSignature(buildSignature(r, s, 28), discardLogger())
	require.NoError(t, err)

	assert.Equal(t, uint8(1), got.RecoveryID)
	assert.Equal(t, 0, recombine(got.R).Cmp(r))
	assert.Equal(t, 0, recombine(got.S).Cmp(s))

	wantRHigh, _ := new(big.Int).SetString("c1f8ab47b2b3b57aeb8a5a4ed56f5e7f", 16)
	wantRLow, _ := new(big.Int).SetString("6e7b1c1d2e3f405162738495a6b7c8d9", 16)
	assert.Equal(t, 0, got.R.High.Cmp(wantRHigh))
	assert.Equal(t, 0, got.R.Low.Cmp(wantRLow))
}

func TestNormalizeSignature_WrongLength(t *testing.T) {
	for _, n := range []int{0, 65, 95, 97} {
		_, err := NormalizeSignature(make([]byte, n), discardLogger())
		require.ErrorIs(t, err, domain.ErrMalformedSignature, "len %d", n)
	}
}
