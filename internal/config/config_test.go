package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// validConfig returns a Config that passes Validate.
func validConfig() Config {
	cfg := Defaults()
	cfg.Wallet.PrivateKey = "ac0974bec39a17e36ba4a6b4d238ff944bacb478cbed5efcae784d7bf4f2ff80"
	cfg.Chain.ContractAddress = "0x5FbDB2315678afecb367f032d93F642f64180aa3"
	return cfg
}

func TestValidateAcceptsDefaults(t *testing.T) {
	cfg := validConfig()
	assert.NoError(t, cfg.Validate())
}

func TestValidateReportsAllProblems(t *testing.T) {
	cfg := validConfig()
	cfg.Mode = "dance"
	cfg.Chain.ContractAddress = "nope"
	cfg.Relayer.BaseURL = ""

	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown mode")
	assert.Contains(t, err.Error(), "contract_address")
	assert.Contains(t, err.Error(), "base_url")
}

func TestValidateWalletRequired(t *testing.T) {
	cfg := validConfig()
	cfg.Wallet.PrivateKey = ""
	assert.ErrorContains(t, cfg.Validate(), "wallet")

	cfg.Wallet.EncryptedKeyPath = "/keys/wallet.enc"
	assert.ErrorContains(t, cfg.Validate(), "key_password")

	cfg.Wallet.KeyPassword = "hunter2"
	assert.NoError(t, cfg.Validate())
}

func TestValidateArchiveNeedsBucket(t *testing.T) {
	cfg := validConfig()
	cfg.Mode = "archive"
	cfg.S3.Bucket = ""
	assert.ErrorContains(t, cfg.Validate(), "bucket")
}

func TestDurationUnmarshalText(t *testing.T) {
	var d duration
	require.NoError(t, d.UnmarshalText([]byte("90s")))
	assert.Equal(t, 90*time.Second, d.Duration)

	assert.Error(t, d.UnmarshalText([]byte("ninety seconds")))
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("CIPHERBET_CHAIN_RPC_URL", "https://rpc.example.org")
	t.Setenv("CIPHERBET_CHAIN_ID", "421614")
	t.Setenv("CIPHERBET_RELAYER_TIMEOUT", "45s")

	cfg := Defaults()
	applyEnvOverrides(&cfg)

	assert.Equal(t, "https://rpc.example.org", cfg.Chain.RPCURL)
	assert.Equal(t, int64(421614), cfg.Chain.ChainID)
	assert.Equal(t, 45*time.Second, cfg.Relayer.Timeout.Duration)
}

func TestRedactedConfigHidesSecrets(t *testing.T) {
	cfg := validConfig()
	cfg.Wallet.KeyPassword = "hunter2"
	cfg.Postgres.Password = "pgpass"
	cfg.Relayer.APIKey = "relayer-key"

	redacted := RedactedConfig(&cfg)

	assert.NotContains(t, redacted.Wallet.PrivateKey, cfg.Wallet.PrivateKey)
	assert.NotEqual(t, "hunter2", redacted.Wallet.KeyPassword)
	assert.NotEqual(t, "pgpass", redacted.Postgres.Password)
	assert.NotEqual(t, "relayer-key", redacted.Relayer.APIKey)

	// Non-secret fields pass through untouched.
	assert.Equal(t, cfg.Chain.RPCURL, redacted.Chain.RPCURL)
	assert.Equal(t, cfg.Mode, redacted.Mode)
}
