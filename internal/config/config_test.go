package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Chdir(t.TempDir())

	cfg, err := LoadWith(viper.New(), "")
	require.NoError(t, err)

	assert.Equal(t, "http://127.0.0.1:8545", cfg.Chain.NodeURL)
	assert.Equal(t, 30*time.Second, cfg.Chain.RequestTimeout)
	assert.Equal(t, int64(15724800), cfg.Migration.VestingOffset)
	assert.True(t, cfg.Migration.FailFast)
	assert.Equal(t, []string{"dough", "totalEscrowedBalance"}, cfg.Snapshot.PreviousFields)
	assert.Equal(t, []string{"dough", "totalEscrowedBalance", "sharesTimeLock"}, cfg.Snapshot.UpgradedFields)
	assert.Equal(t, "0x63cbd1858bd79de1a06c3c26462db360b834912d", cfg.Contracts.Proxy)
	assert.Equal(t, "impersonate", cfg.Signer.Mode)
	require.NoError(t, cfg.Validate())
}

func TestLoadFileAndEnvironment(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := []byte(`
chain:
  node_url: http://fork:8545
  retry_attempts: 5
migration:
  holders_file: /tmp/holders.csv
  fail_fast: false
signer:
  rpc_prefix: anvil
`)
	require.NoError(t, os.WriteFile(path, content, 0o600))

	t.Setenv("RPC_URL", "http://override:8545")
	t.Setenv("UPGRADE_CHECK_REPORT_COLOR", "false")

	cfg, err := LoadWith(viper.New(), path)
	require.NoError(t, err)

	assert.Equal(t, "http://override:8545", cfg.Chain.NodeURL)
	assert.Equal(t, 5, cfg.Chain.RetryAttempts)
	assert.Equal(t, "/tmp/holders.csv", cfg.Migration.HoldersFile)
	assert.False(t, cfg.Migration.FailFast)
	assert.Equal(t, "anvil", cfg.Signer.RPCPrefix)
	assert.False(t, cfg.Report.Color)
}

func TestLoadMissingExplicitFile(t *testing.T) {
	_, err := LoadWith(viper.New(), filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
}

func TestValidate(t *testing.T) {
	t.Chdir(t.TempDir())

	tests := []struct {
		name   string
		mutate func(c *Config)
		errMsg string
	}{
		{"empty node url", func(c *Config) { c.Chain.NodeURL = "" }, "node URL"},
		{"bad proxy", func(c *Config) { c.Contracts.Proxy = "0x12" }, "contracts.proxy"},
		{"unknown signer", func(c *Config) { c.Signer.Mode = "ledger" }, "unsupported signer mode"},
		{"key mode without keys", func(c *Config) { c.Signer.Mode = "key"; c.Signer.PrivateKeys = nil }, "private keys"},
		{"negative offset", func(c *Config) { c.Migration.VestingOffset = -1 }, "vesting offset"},
		{"webhook missing", func(c *Config) { c.Notifications.Enabled = true }, "webhook url"},
		{"no upgraded fields", func(c *Config) { c.Snapshot.UpgradedFields = nil }, "upgraded fields"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, err := LoadWith(viper.New(), "")
			require.NoError(t, err)

			tt.mutate(cfg)
			err = cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.errMsg)
		})
	}
}
