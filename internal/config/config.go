package config

import (
	"fmt"
	"time"
)

// Config holds all configuration for the application
type Config struct {
	Server       ServerConfig       `yaml:"server"`
	Database     DatabaseConfig     `yaml:"database"`
	Ledger       LedgerConfig       `yaml:"ledger"`
	TextAnalysis TextAnalysisConfig `yaml:"text_analysis"`
	Renderer     RendererConfig     `yaml:"renderer"`
	Policy       PolicyConfig       `yaml:"policy"`
	Verification VerificationConfig `yaml:"verification"`
	Admin        AdminConfig        `yaml:"admin"`
	Logging      LoggingConfig      `yaml:"logging"`
}

// ServerConfig contains server configuration
type ServerConfig struct {
	ListenAddr string `yaml:"listen_addr"`
}

// DatabaseConfig contains database configuration
type DatabaseConfig struct {
	Path string `yaml:"path"`
}

// LedgerConfig contains ledger gateway configuration
type LedgerConfig struct {
	Endpoint        string `yaml:"endpoint"`
	APIKey          string `yaml:"api_key"`
	Timeout         string `yaml:"timeout"`
	DefaultGasPrice uint64 `yaml:"default_gas_price"`
	DefaultGasLimit uint64 `yaml:"default_gas_limit"`
}

// TextAnalysisConfig contains text analysis service configuration
type TextAnalysisConfig struct {
	Endpoint string `yaml:"endpoint"`
	Timeout  string `yaml:"timeout"`
}

// RendererConfig contains document renderer configuration
type RendererConfig struct {
	Endpoint string `yaml:"endpoint"`
	Timeout  string `yaml:"timeout"`
}

// PolicyConfig contains certificate issuance policy
type PolicyConfig struct {
	DefaultValidity string `yaml:"default_validity"`
	MaxValidity     string `yaml:"max_validity"`
	MaxCertsPerDay  int    `yaml:"max_certs_per_day"`
}

// VerificationConfig contains verification defaults
type VerificationConfig struct {
	BaseURL string `yaml:"base_url"`
}

// AdminConfig contains admin authentication configuration
type AdminConfig struct {
	Token      string `yaml:"token"`
	TOTPSecret string `yaml:"totp_secret"`
}

// LoggingConfig contains logging configuration
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.Server.ListenAddr == "" {
		return fmt.Errorf("server.listen_addr is required")
	}

	if c.Database.Path == "" {
		return fmt.Errorf("database.path is required")
	}

	if c.Ledger.Endpoint == "" {
		return fmt.Errorf("ledger.endpoint is required")
	}
	if c.Ledger.Timeout != "" {
		if _, err := time.ParseDuration(c.Ledger.Timeout); err != nil {
			return fmt.Errorf("ledger.timeout is invalid: %w", err)
		}
	}
	if c.Ledger.DefaultGasPrice == 0 {
		return fmt.Errorf("ledger.default_gas_price is required")
	}
	if c.Ledger.DefaultGasLimit == 0 {
		return fmt.Errorf("ledger.default_gas_limit is required")
	}

	if _, err := parseDuration(c.Policy.DefaultValidity); err != nil {
		return fmt.Errorf("policy.default_validity is invalid: %w", err)
	}
	if _, err := parseDuration(c.Policy.MaxValidity); err != nil {
		return fmt.Errorf("policy.max_validity is invalid: %w", err)
	}
	if c.Policy.MaxCertsPerDay <= 0 {
		return fmt.Errorf("policy.max_certs_per_day must be positive")
	}

	if c.Verification.BaseURL == "" {
		return fmt.Errorf("verification.base_url is required")
	}

	if c.Admin.Token == "" {
		return fmt.Errorf("admin.token is required")
	}
	if c.Admin.TOTPSecret == "" {
		return fmt.Errorf("admin.totp_secret is required")
	}

	validLogLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLogLevels[c.Logging.Level] {
		return fmt.Errorf("logging.level must be one of: debug, info, warn, error")
	}
	if c.Logging.Format != "json" && c.Logging.Format != "text" {
		return fmt.Errorf("logging.format must be 'json' or 'text'")
	}

	return nil
}

// GetDefaultValidityDuration returns the default certificate validity as time.Duration
func (c *Config) GetDefaultValidityDuration() time.Duration {
	d, _ := parseDuration(c.Policy.DefaultValidity)
	return d
}

// GetMaxValidityDuration returns the max certificate validity as time.Duration
func (c *Config) GetMaxValidityDuration() time.Duration {
	d, _ := parseDuration(c.Policy.MaxValidity)
	return d
}

// GetLedgerTimeout returns the ledger call timeout, defaulting to 10s
func (c *Config) GetLedgerTimeout() time.Duration {
	if c.Ledger.Timeout == "" {
		return 10 * time.Second
	}
	d, _ := time.ParseDuration(c.Ledger.Timeout)
	return d
}

// parseDuration parses duration with support for days (e.g., "30d")
func parseDuration(s string) (time.Duration, error) {
	// Handle "d" suffix for days
	if len(s) > 1 && s[len(s)-1] == 'd' {
		days := s[:len(s)-1]
		var d int
		if _, err := fmt.Sscanf(days, "%d", &d); err != nil {
			return 0, err
		}
		return time.Duration(d) * 24 * time.Hour, nil
	}
	return time.ParseDuration(s)
}
