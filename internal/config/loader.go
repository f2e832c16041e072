package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Load loads configuration from a YAML file
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

// LoadWithEnv loads configuration from a file and applies environment variable overrides
func LoadWithEnv(path string) (*Config, error) {
	cfg, err := Load(path)
	if err != nil {
		return nil, err
	}

	// Apply environment variable overrides
	if dbPath := os.Getenv("CERTLEDGER_DB_PATH"); dbPath != "" {
		cfg.Database.Path = dbPath
	}

	if listenAddr := os.Getenv("CERTLEDGER_LISTEN_ADDR"); listenAddr != "" {
		cfg.Server.ListenAddr = listenAddr
	}

	if endpoint := os.Getenv("CERTLEDGER_LEDGER_ENDPOINT"); endpoint != "" {
		cfg.Ledger.Endpoint = endpoint
	}

	if apiKey := os.Getenv("CERTLEDGER_LEDGER_API_KEY"); apiKey != "" {
		cfg.Ledger.APIKey = apiKey
	}

	if adminToken := os.Getenv("CERTLEDGER_ADMIN_TOKEN"); adminToken != "" {
		cfg.Admin.Token = adminToken
	}

	if totpSecret := os.Getenv("CERTLEDGER_ADMIN_TOTP_SECRET"); totpSecret != "" {
		cfg.Admin.TOTPSecret = totpSecret
	}

	// Validate again after env overrides
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration after env overrides: %w", err)
	}

	return cfg, nil
}
