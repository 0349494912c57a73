package main

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/smartdevs17/edough-upgrade-check/internal/config"
	"github.com/smartdevs17/edough-upgrade-check/internal/models"
	"github.com/smartdevs17/edough-upgrade-check/pkg/utils"
)

func TestApplyFlags(t *testing.T) {
	cmd := &cobra.Command{Use: "run"}
	cmd.Flags().String("rpc-url", "", "")
	cmd.Flags().String("log-level", "info", "")
	cmd.Flags().String("holders", "", "")
	cmd.Flags().Bool("dry-run", false, "")
	cmd.Flags().Bool("continue-on-error", false, "")
	cmd.Flags().Bool("no-color", false, "")
	require.NoError(t, cmd.Flags().Parse([]string{
		"--rpc-url", "http://fork:8545",
		"--holders", "holders.csv",
		"--dry-run",
		"--continue-on-error",
		"--no-color",
	}))

	cfg := &config.Config{}
	cfg.Logging.Level = "warn"
	cfg.Migration.FailFast = true
	cfg.Report.Color = true
	applyFlags(cmd, cfg)

	assert.Equal(t, "http://fork:8545", cfg.Chain.NodeURL)
	assert.Equal(t, "warn", cfg.Logging.Level)
	assert.Equal(t, "holders.csv", cfg.Migration.HoldersFile)
	assert.True(t, cfg.Migration.DryRun)
	assert.False(t, cfg.Migration.FailFast)
	assert.False(t, cfg.Report.Color)
}

func TestHolderArgs(t *testing.T) {
	holders, err := holderArgs([]string{"0x0000000000000000000000000000000000000001"}, "")
	require.NoError(t, err)
	assert.Equal(t, []common.Address{common.HexToAddress("0x01")}, holders)

	_, err = holderArgs([]string{"not-an-address"}, "")
	assert.True(t, utils.IsCode(err, utils.ErrCodeValidation))

	file := filepath.Join(t.TempDir(), "holders.csv")
	require.NoError(t, os.WriteFile(file, []byte("0x0000000000000000000000000000000000000002\n"), 0o644))
	holders, err = holderArgs(nil, file)
	require.NoError(t, err)
	assert.Equal(t, []common.Address{common.HexToAddress("0x02")}, holders)
}

func TestConfigValidateCommand(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("storage:\n  enabled: true\n  type: sqlite\n"), 0o644))

	viper.Reset()
	t.Cleanup(viper.Reset)

	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetArgs([]string{"config", "validate", "--config", path})
	require.NoError(t, rootCmd.Execute())

	assert.Contains(t, out.String(), "Configuration is valid!")
	assert.Contains(t, out.String(), "Storage: sqlite")
}

func TestVersionCommand(t *testing.T) {
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetArgs([]string{"version"})
	require.NoError(t, rootCmd.Execute())
	assert.Equal(t, "upgrade-check 1.0.0\n", out.String())
}

func TestWriteRunsTable(t *testing.T) {
	var out bytes.Buffer
	writeRunsTable(&out, []models.RunSummary{{
		ID:                "run-1",
		StartedAt:         time.Date(2022, 4, 15, 10, 30, 0, 0, time.UTC),
		Status:            models.RunCompleted,
		TotalStaked:       "1234500000000000000000",
		HolderCount:       3,
		DiscrepancyCount:  1,
		FailedHolderCount: 0,
	}}, 18)

	text := out.String()
	assert.Contains(t, text, "TOTAL STAKED")
	assert.Contains(t, text, "run-1")
	assert.Contains(t, text, "2022-04-15 10:30:00")
	assert.Contains(t, text, "completed")
	assert.Contains(t, text, "1,234.50")
}
