package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testKey = "ac0974bec39a17e36ba4a6b4d238ff944bacb478cbed5efcae784d7bf4f2ff80"

func validConfig() Config {
	cfg := Defaults()
	cfg.Account.PrivateKey = testKey
	cfg.Ledger.RPCURL = "http://localhost:8545"
	cfg.Ledger.ContractAddress = "0x02557a5E05DeFeFFD4cAe6D83eA3d173B272c904"
	return cfg
}

func writeTOML(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

// clearAliases blanks the unprefixed variables Load honours so a developer's
// shell does not leak into the test.
func clearAliases(t *testing.T) {
	for _, k := range []string{"PRIVATE_KEY", "RPC_URL", "CONTRACT_ADDRESS", "API_KEY", "API_SECRET", "API_PASSPHRASE"} {
		t.Setenv(k, "")
	}
}

func TestDefaults_PublishSettings(t *testing.T) {
	cfg := Defaults()
	assert.Equal(t, []string{"btc", "eth"}, cfg.Publish.Assets)
	assert.Equal(t, "sequential", cfg.Publish.Mode)
	assert.Equal(t, 3, cfg.Publish.MaxRetries)
	assert.Equal(t, 10*time.Second, cfg.Publish.RetryDelay.Duration)
	assert.Equal(t, 5*time.Minute, cfg.Publish.Interval.Duration)
	assert.Equal(t, "once", cfg.Mode)
	assert.True(t, cfg.OKX.Enabled)
	assert.False(t, cfg.Coinbase.Enabled)
}

func TestValidate_ValidConfig(t *testing.T) {
	cfg := validConfig()
	require.NoError(t, cfg.Validate())
}

func TestValidate_CollectsEveryProblem(t *testing.T) {
	cfg := validConfig()
	cfg.Mode = "trade"
	cfg.Account.PrivateKey = ""
	cfg.Ledger.ContractAddress = "not-an-address"
	cfg.Publish.Mode = "parallel"
	cfg.Publish.MaxRetries = 0

	err := cfg.Validate()
	require.Error(t, err)
	msg := err.Error()
	assert.Contains(t, msg, `unknown mode "trade"`)
	assert.Contains(t, msg, "account: either private_key or encrypted_key_path")
	assert.Contains(t, msg, "ledger: contract_address")
	assert.Contains(t, msg, `publish: unknown mode "parallel"`)
	assert.Contains(t, msg, "publish: max_retries must be >= 1")
}

func TestValidate_RequiresAVenue(t *testing.T) {
	cfg := validConfig()
	cfg.OKX.Enabled = false
	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "at least one of okx.enabled or coinbase.enabled")
}

func TestValidate_CoinbaseNeedsCredentials(t *testing.T) {
	cfg := validConfig()
	cfg.Coinbase.Enabled = true
	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "coinbase: api_key and api_secret")

	cfg.Coinbase.APIKey = "key"
	cfg.Coinbase.APISecret = "c2VjcmV0"
	require.NoError(t, cfg.Validate())
}

func TestValidate_BatchedNeedsMulticall(t *testing.T) {
	cfg := validConfig()
	cfg.Publish.Mode = "batched"
	cfg.Ledger.MulticallAddress = ""
	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "multicall_address is required")
}

func TestValidate_EncryptedKeyNeedsPassword(t *testing.T) {
	cfg := validConfig()
	cfg.Account.PrivateKey = ""
	cfg.Account.EncryptedKeyPath = "/keys/account.json"
	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "key_password is required")
}

func TestValidate_StatusModeSkipsLedger(t *testing.T) {
	cfg := Defaults()
	cfg.Mode = "status"
	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "postgres or redis must be enabled")
	assert.NotContains(t, err.Error(), "ledger:")

	cfg.Redis.Enabled = true
	require.NoError(t, cfg.Validate())
}

func TestLoad_FileOverDefaults(t *testing.T) {
	clearAliases(t)
	path := writeTOML(t, `
mode = "daemon"

[account]
private_key = "`+testKey+`"

[ledger]
rpc_url = "http://localhost:8545"
contract_address = "0x02557a5E05DeFeFFD4cAe6D83eA3d173B272c904"
receipt_timeout = "45s"

[publish]
assets = ["btc"]
mode = "batched"
retry_delay = "2s"
`)

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "daemon", cfg.Mode)
	assert.Equal(t, []string{"btc"}, cfg.Publish.Assets)
	assert.Equal(t, "batched", cfg.Publish.Mode)
	assert.Equal(t, 2*time.Second, cfg.Publish.RetryDelay.Duration)
	assert.Equal(t, 45*time.Second, cfg.Ledger.ReceiptTimeout.Duration)
	// Untouched sections keep their defaults.
	assert.Equal(t, 3, cfg.Publish.MaxRetries)
	assert.Equal(t, "https://www.okx.com", cfg.OKX.BaseURL)
	require.NoError(t, cfg.Validate())
}

func TestLoad_EnvOverrides(t *testing.T) {
	clearAliases(t)
	path := writeTOML(t, `
[publish]
mode = "sequential"
`)
	t.Setenv("OPENORACLE_PUBLISH_MODE", "batched")
	t.Setenv("OPENORACLE_PUBLISH_ASSETS", " btc , eth ,, sol ")
	t.Setenv("OPENORACLE_PUBLISH_MAX_RETRIES", "5")
	t.Setenv("OPENORACLE_PUBLISH_INTERVAL", "90s")
	t.Setenv("OPENORACLE_LEDGER_CHAIN_ID", "11155111")
	t.Setenv("OPENORACLE_COINBASE_ENABLED", "true")
	t.Setenv("OPENORACLE_REDIS_ENABLED", "not-a-bool")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "batched", cfg.Publish.Mode)
	assert.Equal(t, []string{"btc", "eth", "sol"}, cfg.Publish.Assets)
	assert.Equal(t, 5, cfg.Publish.MaxRetries)
	assert.Equal(t, 90*time.Second, cfg.Publish.Interval.Duration)
	assert.Equal(t, int64(11155111), cfg.Ledger.ChainID)
	assert.True(t, cfg.Coinbase.Enabled)
	// Unparseable values leave the field alone.
	assert.False(t, cfg.Redis.Enabled)
}

func TestLoad_CompatibilityAliases(t *testing.T) {
	clearAliases(t)
	t.Setenv("PRIVATE_KEY", testKey)
	t.Setenv("RPC_URL", "http://rpc.local")
	t.Setenv("CONTRACT_ADDRESS", "0x02557a5E05DeFeFFD4cAe6D83eA3d173B272c904")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, testKey, cfg.Account.PrivateKey)
	assert.Equal(t, "http://rpc.local", cfg.Ledger.RPCURL)
	require.NoError(t, cfg.Validate())
}

func TestLoad_BadFile(t *testing.T) {
	path := writeTOML(t, "mode = ")
	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "config: decode")
}

func TestRedactedConfig(t *testing.T) {
	cfg := validConfig()
	cfg.Coinbase.APISecret = "c2VjcmV0"
	cfg.Postgres.Password = "pw"
	cfg.Notify.TelegramToken = "token"

	out := RedactedConfig(&cfg)
	assert.Equal(t, redacted, out.Account.PrivateKey)
	assert.Equal(t, redacted, out.Coinbase.APISecret)
	assert.Equal(t, redacted, out.Postgres.Password)
	assert.Equal(t, redacted, out.Notify.TelegramToken)
	// Empty secrets stay empty so operators can tell them apart.
	assert.Empty(t, out.Account.KeyPassword)
	// The original is untouched.
	assert.Equal(t, testKey, cfg.Account.PrivateKey)

	out.Publish.Assets[0] = "doge"
	assert.Equal(t, "btc", cfg.Publish.Assets[0])
}
