// Package config provides configuration parsing and validation for
// cryptogateway.
package config

import (
	"fmt"
	"os"
	"regexp"
	"strings"
	"time"

	"github.com/skyformat99/cryptogateway/internal/gateway"
	"gopkg.in/yaml.v3"
)

// Config is the complete cryptogateway configuration.
type Config struct {
	Identity IdentityConfig `yaml:"identity"`
	Suite    SuiteConfig    `yaml:"suite"`
	Bank     BankConfig     `yaml:"bank"`
	Gateway  GatewayConfig  `yaml:"gateway"`
	Logging  LoggingConfig  `yaml:"logging"`
}

// IdentityConfig describes where this user's RSA keypair lives and how its
// file envelope is protected.
type IdentityConfig struct {
	// SaveDir is the directory holding the keypair and bank files.
	SaveDir string `yaml:"save_dir"`
	// Password seeds the stream cipher that wraps saved files. Empty uses
	// the library's fixed "default" password so files always round-trip.
	Password string `yaml:"password"`
	// WordLen is the RSA modulus width in 32-bit words (so bit length is
	// 32*WordLen). Must be even and >= 2.
	WordLen int `yaml:"word_len"`
	// HistoryMax bounds retired-key history length; Validate rejects values
	// outside 0..20 (rsakeypair.MaxHistory).
	HistoryMax int `yaml:"history_max"`
	// GenerationRounds is the Miller-Rabin round count used during
	// keypair generation. 0 uses primality.DefaultRounds.
	GenerationRounds int `yaml:"generation_rounds"`
}

// SuiteConfig names the algorithm suite this endpoint prefers.
type SuiteConfig struct {
	StreamAlgo    string `yaml:"stream_algo"`
	HashAlgo      string `yaml:"hash_algo"`
	HashSize      int    `yaml:"hash_size"`
	PublicKeyAlgo string `yaml:"public_key_algo"`
	PublicKeySize int    `yaml:"public_key_size"` // in 32-bit words
}

// BankConfig locates the key bank file.
type BankConfig struct {
	Path string `yaml:"path"`
}

// GatewayConfig carries the handshake's identity and timing knobs.
type GatewayConfig struct {
	GroupID  string `yaml:"group_id"`
	NodeName string `yaml:"node_name"`

	Timeout       time.Duration `yaml:"timeout"`
	SafeTimeout   time.Duration `yaml:"safe_timeout"`
	ErrorTimeout  time.Duration `yaml:"error_timeout"`
	StreamTimeout time.Duration `yaml:"stream_timeout"`
}

// LoggingConfig configures the structured logger.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Default returns a Config with sane defaults for local development.
func Default() *Config {
	return &Config{
		Identity: IdentityConfig{
			SaveDir:          "./data",
			WordLen:          8, // 256-bit modulus
			HistoryMax:       20,
			GenerationRounds: 0,
		},
		Suite: SuiteConfig{
			StreamAlgo:    "chacha20",
			HashAlgo:      "sha256",
			HashSize:      32,
			PublicKeyAlgo: "rsa-256",
			PublicKeySize: 8,
		},
		Bank: BankConfig{
			Path: "./data/bank.db",
		},
		Gateway: GatewayConfig{
			Timeout:       30 * time.Second,
			SafeTimeout:   22 * time.Second, // ~3/4 of Timeout
			ErrorTimeout:  10 * time.Second,
			StreamTimeout: 5 * time.Minute,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// Load reads and parses a configuration file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	return Parse(data)
}

// Parse parses configuration from YAML bytes, applying defaults first and
// validating afterward.
func Parse(data []byte) (*Config, error) {
	expanded := expandEnvVars(string(data))

	cfg := Default()
	if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return cfg, nil
}

// envVarRegex matches ${VAR} or $VAR patterns, including ${VAR:-default}.
var envVarRegex = regexp.MustCompile(`\$\{([^}]+)\}|\$([A-Za-z_][A-Za-z0-9_]*)`)

func expandEnvVars(s string) string {
	return envVarRegex.ReplaceAllStringFunc(s, func(match string) string {
		var name string
		if strings.HasPrefix(match, "${") {
			name = match[2 : len(match)-1]
		} else {
			name = match[1:]
		}
		if idx := strings.Index(name, ":-"); idx != -1 {
			varName := name[:idx]
			defaultVal := name[idx+2:]
			if val, ok := os.LookupEnv(varName); ok {
				return val
			}
			return defaultVal
		}
		if val, ok := os.LookupEnv(name); ok {
			return val
		}
		return match
	})
}

// Validate checks the configuration against the library's size bounds:
// the group/name width limits and the retired-key history cap of 20.
func (c *Config) Validate() error {
	var errs []string

	if len(c.Gateway.GroupID) > gateway.GroupSize {
		errs = append(errs, fmt.Sprintf("gateway.group_id exceeds %d bytes", gateway.GroupSize))
	}
	if len(c.Gateway.NodeName) > gateway.NameSize {
		errs = append(errs, fmt.Sprintf("gateway.node_name exceeds %d bytes", gateway.NameSize))
	}
	if c.Identity.WordLen < 2 || c.Identity.WordLen%2 != 0 {
		errs = append(errs, "identity.word_len must be even and >= 2")
	}
	if c.Identity.HistoryMax < 0 || c.Identity.HistoryMax > 20 {
		errs = append(errs, "identity.history_max must be between 0 and 20")
	}
	if c.Gateway.Timeout <= 0 {
		errs = append(errs, "gateway.timeout must be positive")
	}
	if c.Gateway.ErrorTimeout <= 0 {
		errs = append(errs, "gateway.error_timeout must be positive")
	}
	if c.Gateway.StreamTimeout <= 0 {
		errs = append(errs, "gateway.stream_timeout must be positive")
	}
	if !isValidLogLevel(c.Logging.Level) {
		errs = append(errs, fmt.Sprintf("logging.level %q is invalid", c.Logging.Level))
	}
	if !isValidLogFormat(c.Logging.Format) {
		errs = append(errs, fmt.Sprintf("logging.format %q is invalid", c.Logging.Format))
	}

	if len(errs) > 0 {
		return fmt.Errorf("invalid configuration:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}

func isValidLogLevel(level string) bool {
	switch strings.ToLower(level) {
	case "debug", "info", "warn", "warning", "error":
		return true
	}
	return false
}

func isValidLogFormat(format string) bool {
	switch strings.ToLower(format) {
	case "text", "json":
		return true
	}
	return false
}

// String returns a YAML rendering of c with Identity.Password redacted.
func (c *Config) String() string {
	redacted := *c
	if redacted.Identity.Password != "" {
		redacted.Identity.Password = "[REDACTED]"
	}
	data, _ := yaml.Marshal(&redacted)
	return string(data)
}
