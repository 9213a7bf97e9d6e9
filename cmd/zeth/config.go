// config.go - Configuration management for the zeth client
package main

import (
	"encoding/json"
	"os"
	"path/filepath"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/pkg/errors"

	"zethclient/internal/ledger"
	"zethclient/internal/merkle"
)

// Config represents the client configuration
type Config struct {
	// Ledger
	RPCEndpoint     string `json:"rpc_endpoint"`
	MixerAddress    string `json:"mixer_address"`
	SyncBatchBlocks uint64 `json:"sync_batch_blocks"`

	// RPCRateLimit caps ledger requests per second; 0 disables the limit
	RPCRateLimit int `json:"rpc_rate_limit"`

	// Wallet
	WalletDir         string `json:"wallet_dir"`
	Username          string `json:"username"`
	SecretAddressFile string `json:"secret_address_file"`

	// Merkle tree and prover
	MerkleTreePath string `json:"merkle_tree_path"`
	TreeDepth      int    `json:"tree_depth"`
	KeyDir         string `json:"key_dir"`

	// Logging
	LogLevel     string `json:"log_level"`
	LogFile      string `json:"log_file"`
	EnableAudit  bool   `json:"enable_audit"`
	AuditLogPath string `json:"audit_log_path"`

	MetricsAddr    string `json:"metrics_addr"`
	TimeoutSeconds int    `json:"timeout_seconds"`
}

// DefaultConfig returns the default configuration
func DefaultConfig() *Config {
	return &Config{
		RPCEndpoint:       "http://localhost:8545",
		MixerAddress:      "0x0000000000000000000000000000000000000000",
		SyncBatchBlocks:   ledger.DefaultBatchSize,
		RPCRateLimit:      20,
		WalletDir:         "wallet",
		Username:          "zeth",
		SecretAddressFile: "zeth-address.priv",
		MerkleTreePath:    "merkle_tree",
		TreeDepth:         4,
		KeyDir:            "keys",
		LogLevel:          "info",
		LogFile:           "",
		EnableAudit:       false,
		AuditLogPath:      "audit.log",
		MetricsAddr:       "",
		TimeoutSeconds:    30,
	}
}

// LoadConfig loads configuration from file, creating it with defaults when
// it does not exist yet.
func LoadConfig(configPath string) (*Config, error) {
	if _, err := os.Stat(configPath); err == nil {
		file, err := os.Open(configPath)
		if err != nil {
			return nil, errors.Wrap(err, "failed to open config file")
		}
		defer file.Close()

		config := DefaultConfig()
		if err := json.NewDecoder(file).Decode(config); err != nil {
			return nil, errors.Wrap(err, "failed to decode config file")
		}
		return config, nil
	}

	config := DefaultConfig()
	if err := SaveConfig(config, configPath); err != nil {
		return nil, errors.Wrap(err, "failed to save default config")
	}
	return config, nil
}

// SaveConfig saves configuration to file
func SaveConfig(config *Config, configPath string) error {
	if err := os.MkdirAll(filepath.Dir(configPath), 0755); err != nil {
		return errors.Wrap(err, "failed to create config directory")
	}

	file, err := os.Create(configPath)
	if err != nil {
		return errors.Wrap(err, "failed to create config file")
	}
	defer file.Close()

	encoder := json.NewEncoder(file)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(config); err != nil {
		return errors.Wrap(err, "failed to encode config")
	}
	return nil
}

// Validate checks the configuration
func (c *Config) Validate() error {
	if c.RPCEndpoint == "" {
		return errors.New("rpc_endpoint must be set")
	}
	if !common.IsHexAddress(c.MixerAddress) {
		return errors.Errorf("mixer_address %q is not a hex address", c.MixerAddress)
	}
	if c.SyncBatchBlocks == 0 {
		return errors.New("sync_batch_blocks must be positive")
	}
	if c.RPCRateLimit < 0 {
		return errors.New("rpc_rate_limit must not be negative")
	}
	if c.TreeDepth < 1 || c.TreeDepth > merkle.MaxDepth {
		return errors.Errorf("tree_depth must be between 1 and %d", merkle.MaxDepth)
	}
	if c.WalletDir == "" || c.MerkleTreePath == "" || c.SecretAddressFile == "" {
		return errors.New("wallet_dir, merkle_tree_path and secret_address_file must be set")
	}
	if c.EnableAudit && c.AuditLogPath == "" {
		return errors.New("audit_log_path must be set when audit is enabled")
	}
	if c.TimeoutSeconds <= 0 {
		return errors.New("timeout_seconds must be positive")
	}
	return nil
}

// Timeout is the per-request deadline for ledger calls.
func (c *Config) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

func (c *Config) mixer() common.Address { return common.HexToAddress(c.MixerAddress) }
