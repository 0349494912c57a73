// File: internal/config/config.go
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/spf13/viper"
)

// Config holds all configuration for the application
type Config struct {
	App           AppConfig          `mapstructure:"app"`
	Chain         ChainConfig        `mapstructure:"chain"`
	Contracts     ContractsConfig    `mapstructure:"contracts"`
	Signer        SignerConfig       `mapstructure:"signer"`
	Snapshot      SnapshotConfig     `mapstructure:"snapshot"`
	Migration     MigrationConfig    `mapstructure:"migration"`
	Report        ReportConfig       `mapstructure:"report"`
	Storage       StorageConfig      `mapstructure:"storage"`
	Notifications NotificationConfig `mapstructure:"notifications"`
	Server        ServerConfig       `mapstructure:"server"`
	Logging       LoggingConfig      `mapstructure:"logging"`
}

// AppConfig contains application-level configuration
type AppConfig struct {
	Name        string `mapstructure:"name"`
	Version     string `mapstructure:"version"`
	Environment string `mapstructure:"environment"`
	Debug       bool   `mapstructure:"debug"`
}

// ChainConfig contains JSON-RPC connection configuration
type ChainConfig struct {
	NodeURL             string        `mapstructure:"node_url"`
	ChainID             int64         `mapstructure:"chain_id"` // 0 accepts whatever the node reports
	BackupNodes         []string      `mapstructure:"backup_nodes"`
	RequestTimeout      time.Duration `mapstructure:"request_timeout"`
	RetryAttempts       int           `mapstructure:"retry_attempts"`
	RetryDelay          time.Duration `mapstructure:"retry_delay"`
	MaxRetryDelay       time.Duration `mapstructure:"max_retry_delay"`
	ReceiptPollInterval time.Duration `mapstructure:"receipt_poll_interval"`
	ReceiptTimeout      time.Duration `mapstructure:"receipt_timeout"`
}

// ContractsConfig contains the addresses taking part in the upgrade
type ContractsConfig struct {
	Proxy                  string `mapstructure:"proxy"`
	Owner                  string `mapstructure:"owner"`
	Operator               string `mapstructure:"operator"`
	Timelock               string `mapstructure:"timelock"`
	VeDOUGH                string `mapstructure:"vedough"`
	ImplementationArtifact string `mapstructure:"implementation_artifact"`
}

// SignerConfig selects how transactions are sent
type SignerConfig struct {
	Mode        string   `mapstructure:"mode"`       // impersonate, key
	RPCPrefix   string   `mapstructure:"rpc_prefix"` // hardhat, anvil
	PrivateKeys []string `mapstructure:"private_keys"`
	FundWei     string   `mapstructure:"fund_wei"`
	GasLimit    uint64   `mapstructure:"gas_limit"`
}

// SnapshotConfig lists the view accessors read before and after the upgrade
type SnapshotConfig struct {
	PreviousFields []string `mapstructure:"previous_fields"`
	UpgradedFields []string `mapstructure:"upgraded_fields"`
}

// MigrationConfig contains migration verification configuration
type MigrationConfig struct {
	HoldersFile       string `mapstructure:"holders_file"`
	VestingOffset     int64  `mapstructure:"vesting_offset"`
	FailFast          bool   `mapstructure:"fail_fast"`
	DryRun            bool   `mapstructure:"dry_run"`
	FailOnDiscrepancy bool   `mapstructure:"fail_on_discrepancy"`
}

// ReportConfig contains console report configuration
type ReportConfig struct {
	Color    bool  `mapstructure:"color"`
	Decimals int32 `mapstructure:"decimals"`
}

// StorageConfig contains database configuration
type StorageConfig struct {
	Enabled          bool          `mapstructure:"enabled"`
	Type             string        `mapstructure:"type"` // sqlite, postgres
	ConnectionString string        `mapstructure:"connection_string"`
	MaxConnections   int           `mapstructure:"max_connections"`
	MaxIdleTime      time.Duration `mapstructure:"max_idle_time"`
}

// NotificationConfig contains run summary notification configuration
type NotificationConfig struct {
	Enabled             bool              `mapstructure:"enabled"`
	WebhookURL          string            `mapstructure:"webhook_url"`
	Headers             map[string]string `mapstructure:"headers"`
	OnlyOnDiscrepancy   bool              `mapstructure:"only_on_discrepancy"`
	NotificationTimeout time.Duration     `mapstructure:"notification_timeout"`
	RetryAttempts       int               `mapstructure:"retry_attempts"`
	RetryDelay          time.Duration     `mapstructure:"retry_delay"`
}

// ServerConfig contains HTTP server configuration
type ServerConfig struct {
	Port          int           `mapstructure:"port"`
	Host          string        `mapstructure:"host"`
	ReadTimeout   time.Duration `mapstructure:"read_timeout"`
	WriteTimeout  time.Duration `mapstructure:"write_timeout"`
	EnableMetrics bool          `mapstructure:"enable_metrics"`
	EnableHealth  bool          `mapstructure:"enable_health"`
}

// LoggingConfig contains logging configuration
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"` // json, text
	Output string `mapstructure:"output"` // stdout, stderr, file
	File   string `mapstructure:"file"`
}

// Load loads configuration from file and environment variables
func Load(configPath string) (*Config, error) {
	return LoadWith(viper.GetViper(), configPath)
}

// LoadWith loads configuration through the given viper instance, which lets
// the CLI bind flags into it before reading.
func LoadWith(v *viper.Viper, configPath string) (*Config, error) {
	v.SetConfigType("yaml")

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
	}

	v.SetEnvPrefix("UPGRADE_CHECK")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok || configPath != "" {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	if nodeURL := os.Getenv("RPC_URL"); nodeURL != "" {
		config.Chain.NodeURL = nodeURL
	}
	if dbURL := os.Getenv("DATABASE_URL"); dbURL != "" {
		config.Storage.ConnectionString = dbURL
	}
	if key := os.Getenv("OPERATOR_KEY"); key != "" {
		config.Signer.PrivateKeys = append(config.Signer.PrivateKeys, key)
	}

	return &config, nil
}

// setDefaults sets default configuration values. Contract addresses are the
// mainnet eDOUGH deployment.
func setDefaults(v *viper.Viper) {
	v.SetDefault("app.name", "edough-upgrade-check")
	v.SetDefault("app.version", "1.0.0")
	v.SetDefault("app.environment", "fork")
	v.SetDefault("app.debug", false)

	v.SetDefault("chain.node_url", "http://127.0.0.1:8545")
	v.SetDefault("chain.chain_id", 0)
	v.SetDefault("chain.request_timeout", "30s")
	v.SetDefault("chain.retry_attempts", 3)
	v.SetDefault("chain.retry_delay", "1s")
	v.SetDefault("chain.max_retry_delay", "10s")
	v.SetDefault("chain.receipt_poll_interval", "250ms")
	v.SetDefault("chain.receipt_timeout", "2m")

	v.SetDefault("contracts.proxy", "0x63cbd1858bd79de1a06c3c26462db360b834912d")
	v.SetDefault("contracts.owner", "0x6458A23B020f489651f2777Bd849ddEd34DfCcd2")
	v.SetDefault("contracts.operator", "0x3bfda5285416eb06ebc8bc0abf7d105813af06d0")
	v.SetDefault("contracts.timelock", "0x6Bd0D8c8aD8D3F1f97810d5Cc57E9296db73DC45")
	v.SetDefault("contracts.vedough", "0xE6136F2e90EeEA7280AE5a0a8e6F48Fb222AF945")
	v.SetDefault("contracts.implementation_artifact", "./artifacts/contracts/RewardEscrow.sol/RewardEscrow.json")

	v.SetDefault("signer.mode", "impersonate")
	v.SetDefault("signer.rpc_prefix", "hardhat")
	v.SetDefault("signer.fund_wei", "10000000000000000000")
	v.SetDefault("signer.gas_limit", 8000000)

	v.SetDefault("snapshot.previous_fields", []string{"dough", "totalEscrowedBalance"})
	v.SetDefault("snapshot.upgraded_fields", []string{"dough", "totalEscrowedBalance", "sharesTimeLock"})

	v.SetDefault("migration.holders_file", "./scripts/edough-holders.csv")
	v.SetDefault("migration.vesting_offset", 15724800)
	v.SetDefault("migration.fail_fast", true)
	v.SetDefault("migration.dry_run", false)
	v.SetDefault("migration.fail_on_discrepancy", false)

	v.SetDefault("report.color", true)
	v.SetDefault("report.decimals", 18)

	v.SetDefault("storage.enabled", false)
	v.SetDefault("storage.type", "sqlite")
	v.SetDefault("storage.connection_string", "./data/runs.db")
	v.SetDefault("storage.max_connections", 4)
	v.SetDefault("storage.max_idle_time", "15m")

	v.SetDefault("notifications.enabled", false)
	v.SetDefault("notifications.only_on_discrepancy", false)
	v.SetDefault("notifications.notification_timeout", "10s")
	v.SetDefault("notifications.retry_attempts", 3)
	v.SetDefault("notifications.retry_delay", "2s")

	v.SetDefault("server.port", 8081)
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.read_timeout", "10s")
	v.SetDefault("server.write_timeout", "10s")
	v.SetDefault("server.enable_metrics", true)
	v.SetDefault("server.enable_health", true)

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "text")
	v.SetDefault("logging.output", "stderr")
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.Chain.NodeURL == "" {
		return fmt.Errorf("chain node URL is required")
	}
	if c.Chain.RequestTimeout <= 0 {
		return fmt.Errorf("chain request timeout must be positive")
	}
	if c.Chain.RetryAttempts <= 0 {
		return fmt.Errorf("chain retry attempts must be positive")
	}

	addresses := map[string]string{
		"contracts.proxy":    c.Contracts.Proxy,
		"contracts.owner":    c.Contracts.Owner,
		"contracts.operator": c.Contracts.Operator,
		"contracts.timelock": c.Contracts.Timelock,
		"contracts.vedough":  c.Contracts.VeDOUGH,
	}
	for key, value := range addresses {
		if !common.IsHexAddress(value) {
			return fmt.Errorf("%s is not a valid address: %q", key, value)
		}
	}

	switch c.Signer.Mode {
	case "impersonate":
		if c.Signer.RPCPrefix == "" {
			return fmt.Errorf("signer rpc prefix is required in impersonate mode")
		}
	case "key":
		if len(c.Signer.PrivateKeys) == 0 {
			return fmt.Errorf("signer private keys are required in key mode")
		}
	default:
		return fmt.Errorf("unsupported signer mode: %q", c.Signer.Mode)
	}

	if c.Migration.HoldersFile == "" {
		return fmt.Errorf("migration holders file is required")
	}
	if c.Migration.VestingOffset < 0 {
		return fmt.Errorf("migration vesting offset must not be negative")
	}
	if len(c.Snapshot.UpgradedFields) == 0 {
		return fmt.Errorf("snapshot upgraded fields must not be empty")
	}
	if c.Storage.Enabled && c.Storage.ConnectionString == "" {
		return fmt.Errorf("storage connection string is required")
	}
	if c.Notifications.Enabled && c.Notifications.WebhookURL == "" {
		return fmt.Errorf("notification webhook url is required")
	}
	return nil
}

// Address parses one of the configured hex addresses. Callers run Validate
// first, so invalid input yields the zero address.
func Address(hex string) common.Address {
	return common.HexToAddress(hex)
}
