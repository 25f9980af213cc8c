package crypto

import (
	"math/big"
	"os"
	"path/filepath"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Well-known development key; never funded on a real network.
const (
	devKey     = "ac0974bec39a17e36ba4a6b4d238ff944bacb478cbed5efcae784d7bf4f2ff80"
	devAddress = "0xf39Fd6e51aad88F6F4ce6aB8827279cffFb92266"
)

func TestCoinbaseHeadersAt(t *testing.T) {
	auth := &HMACAuth{
		Key:        "key-1",
		Secret:     "Y29pbmJhc2UtdGVzdC1zZWNyZXQ=",
		Passphrase: "pass",
	}

	h, err := auth.CoinbaseHeadersAt("GET", "/oracle", "", 1_700_000_000)
	require.NoError(t, err)

	assert.Equal(t, map[string]string{
		"CB-ACCESS-KEY":        "key-1",
		"CB-ACCESS-SIGN":       "BDUe5TullPHqOijxn7yS84zhL4MSBfswhq7AJLRpofo=",
		"CB-ACCESS-TIMESTAMP":  "1700000000",
		"CB-ACCESS-PASSPHRASE": "pass",
	}, h)
}

func TestCoinbaseHeaders_BadSecret(t *testing.T) {
	auth := &HMACAuth{Key: "k", Secret: "not base64!"}
	_, err := auth.CoinbaseHeaders("GET", "/oracle", "")
	assert.Error(t, err)
}

func TestHMACAuth_StringRedacts(t *testing.T) {
	auth := &HMACAuth{Key: "abcdefgh", Secret: "xyz"}
	s := auth.String()
	assert.Contains(t, s, "abcd****")
	assert.NotContains(t, s, "efgh")
	assert.NotContains(t, s, "xyz")
}

func TestNewSigner(t *testing.T) {
	s, err := NewSigner("0x"+devKey, 1)
	require.NoError(t, err)
	assert.Equal(t, common.HexToAddress(devAddress), s.Address())
	assert.Equal(t, int64(1), s.ChainID().Int64())

	_, err = NewSigner("zz", 1)
	assert.Error(t, err)
	_, err = NewSigner(devKey, 0)
	assert.Error(t, err)
}

func TestSigner_SignTx(t *testing.T) {
	s, err := NewSigner(devKey, 10)
	require.NoError(t, err)

	to := common.HexToAddress("0x0000000000000000000000000000000000000001")
	tx := types.NewTx(&types.DynamicFeeTx{
		ChainID:   big.NewInt(10),
		Nonce:     7,
		GasTipCap: big.NewInt(1),
		GasFeeCap: big.NewInt(2),
		Gas:       21_000,
		To:        &to,
		Value:     big.NewInt(0),
	})

	signed, err := s.SignTx(tx)
	require.NoError(t, err)

	from, err := types.Sender(types.LatestSignerForChainID(big.NewInt(10)), signed)
	require.NoError(t, err)
	assert.Equal(t, s.Address(), from)
}

func TestEncryptDecryptKey(t *testing.T) {
	blob, err := EncryptKey("0x"+devKey, "hunter2")
	require.NoError(t, err)

	got, err := DecryptKey(blob, "hunter2")
	require.NoError(t, err)
	assert.Equal(t, devKey, got)

	_, err = DecryptKey(blob, "wrong")
	assert.Error(t, err)

	_, err = EncryptKey(devKey, "")
	assert.Error(t, err)
}

func TestLoadKey(t *testing.T) {
	t.Run("raw key wins", func(t *testing.T) {
		k, err := LoadKey(KeyConfig{RawPrivateKey: "0x" + devKey, EncryptedKeyPath: "/nonexistent"})
		require.NoError(t, err)
		assert.Equal(t, devKey, k)
	})

	t.Run("raw key wrong length", func(t *testing.T) {
		_, err := LoadKey(KeyConfig{RawPrivateKey: "abcd"})
		assert.Error(t, err)
	})

	t.Run("encrypted file", func(t *testing.T) {
		blob, err := EncryptKey(devKey, "pw")
		require.NoError(t, err)
		path := filepath.Join(t.TempDir(), "key.json")
		require.NoError(t, os.WriteFile(path, blob, 0o600))

		s, err := LoadSigner(KeyConfig{EncryptedKeyPath: path, KeyPassword: "pw"}, 1)
		require.NoError(t, err)
		assert.Equal(t, common.HexToAddress(devAddress), s.Address())
	})

	t.Run("nothing configured", func(t *testing.T) {
		_, err := LoadKey(KeyConfig{})
		assert.ErrorIs(t, err, ErrNoKey)
	})
}
