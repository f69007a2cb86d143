package config

import (
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Defaults match the reference deployment: two local devnet nodes and a
// relayer signing key funded on both of them.
const (
	DefaultChainARPCURL      = "http://localhost:8545"
	DefaultChainBRPCURL      = "http://localhost:9545"
	DefaultConfirmationDepth = 3
	DefaultDBPath            = "./relayer/data/relayer.db"
	DefaultDeploymentsPath   = "./deployments"

	// Well-known devnet account #0 key. Never valid on a public network.
	DefaultPrivateKey = "ac0974bec39a17e36ba4a6b4d238ff944bacb478cbed5efcae784d7bf4f2ff80"
)

// Config holds the resolved relayer configuration.
type Config struct {
	ChainARPCURL      string `yaml:"chain_a_rpc_url"`
	ChainBRPCURL      string `yaml:"chain_b_rpc_url"`
	ConfirmationDepth uint64 `yaml:"confirmation_depth"`
	DBPath            string `yaml:"db_path"`
	PrivateKey        string `yaml:"private_key"`
	DeploymentsPath   string `yaml:"deployments_path"`
	AlertWebhookURL   string `yaml:"alert_webhook_url"`
}

// Load resolves configuration: defaults, then the optional YAML file at
// path, then environment variables (environment always wins). A .env file
// next to the config path (or in the working directory when path is empty)
// is loaded first.
func Load(path string) (*Config, error) {
	if err := loadDotEnv(path); err != nil {
		return nil, err
	}

	cfg := &Config{
		ChainARPCURL:      DefaultChainARPCURL,
		ChainBRPCURL:      DefaultChainBRPCURL,
		ConfirmationDepth: DefaultConfirmationDepth,
		DBPath:            DefaultDBPath,
		PrivateKey:        DefaultPrivateKey,
		DeploymentsPath:   DefaultDeploymentsPath,
	}

	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			if !os.IsNotExist(err) {
				return nil, fmt.Errorf("read config: %w", err)
			}
		} else if err := yaml.Unmarshal(raw, cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func loadDotEnv(configPath string) error {
	dir := "."
	if configPath != "" {
		dir = filepath.Dir(configPath)
	}
	envPath := filepath.Join(dir, ".env")
	if _, err := os.Stat(envPath); err == nil {
		if err := godotenv.Load(envPath); err != nil {
			return fmt.Errorf("load .env: %w", err)
		}
	}
	return nil
}

func (c *Config) applyEnv() error {
	setString(&c.ChainARPCURL, "CHAIN_A_RPC_URL")
	setString(&c.ChainBRPCURL, "CHAIN_B_RPC_URL")
	setString(&c.DBPath, "DB_PATH")
	setString(&c.PrivateKey, "DEPLOYER_PRIVATE_KEY")
	setString(&c.DeploymentsPath, "DEPLOYMENTS_PATH")
	setString(&c.AlertWebhookURL, "ALERT_WEBHOOK_URL")

	if v, ok := os.LookupEnv("CONFIRMATION_DEPTH"); ok {
		depth, err := strconv.ParseUint(v, 10, 64)
		if err != nil {
			return fmt.Errorf("parse CONFIRMATION_DEPTH %q: %w", v, err)
		}
		c.ConfirmationDepth = depth
	}
	return nil
}

func setString(dst *string, name string) {
	if v, ok := os.LookupEnv(name); ok && v != "" {
		*dst = v
	}
}

// Validate performs small, direct checks on the resolved values.
func (c *Config) Validate() error {
	if c.ChainARPCURL == "" {
		return errors.New("chain A RPC URL is required")
	}
	if c.ChainBRPCURL == "" {
		return errors.New("chain B RPC URL is required")
	}
	if c.DBPath == "" {
		return errors.New("database path is required")
	}
	if c.DeploymentsPath == "" {
		return errors.New("deployments path is required")
	}
	key := strings.TrimPrefix(c.PrivateKey, "0x")
	raw, err := hex.DecodeString(key)
	if err != nil {
		return fmt.Errorf("signing key is not hex: %w", err)
	}
	if len(raw) != 32 {
		return fmt.Errorf("signing key must be 32 bytes, got %d", len(raw))
	}
	return nil
}

// SigningKeyHex returns the signing key without any 0x prefix.
func (c *Config) SigningKeyHex() string {
	return strings.TrimPrefix(c.PrivateKey, "0x")
}
