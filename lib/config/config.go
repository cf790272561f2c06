// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/tidwall/jsonc"
	"gopkg.in/yaml.v3"
)

// EnvironmentVariable names the variable Load reads the config path
// from.
const EnvironmentVariable = "CUSTODY_CONFIG"

// Environment represents the deployment environment.
type Environment string

const (
	// Development is for local development machines.
	Development Environment = "development"
	// Production is for real identities.
	Production Environment = "production"
)

// Config is the configuration for custody binaries.
type Config struct {
	// Environment identifies the deployment type (development, production).
	Environment Environment `yaml:"environment"`

	// Paths configures file locations.
	Paths PathsConfig `yaml:"paths"`

	// Identity configures key generation and proof encoding.
	Identity IdentityConfig `yaml:"identity"`

	// Revocation configures the revocation authority client and cache.
	Revocation RevocationConfig `yaml:"revocation"`

	// Registry configures custody-revocationd.
	Registry RegistryConfig `yaml:"registry"`

	// Log configures structured logging.
	Log LogConfig `yaml:"log"`

	// Per-environment overrides, applied after the base config.
	Development *ConfigOverrides `yaml:"development,omitempty"`
	Production  *ConfigOverrides `yaml:"production,omitempty"`
}

// ConfigOverrides contains fields that can be overridden per environment.
type ConfigOverrides struct {
	Paths      *PathsConfig      `yaml:"paths,omitempty"`
	Revocation *RevocationConfig `yaml:"revocation,omitempty"`
	Log        *LogConfig        `yaml:"log,omitempty"`
}

// PathsConfig configures file locations.
type PathsConfig struct {
	// Root is the base directory for custody data.
	Root string `yaml:"root"`

	// Store is the SQLite record store.
	Store string `yaml:"store"`

	// Authenticator is the master secret of the software
	// authenticator. Only used in development.
	Authenticator string `yaml:"authenticator"`
}

// IdentityConfig configures the local identity.
type IdentityConfig struct {
	// Algorithm is the signing algorithm for new identities:
	// "ed25519" or "p256". Default: ed25519
	Algorithm string `yaml:"algorithm"`

	// RelyingParty scopes credentials. Default: custody.local
	RelyingParty string `yaml:"relying_party"`

	// Encoding is the multibase encoding of created proofs:
	// "base64" or "base64url". Default: base64
	Encoding string `yaml:"encoding"`
}

// RevocationConfig configures revocation checks.
type RevocationConfig struct {
	// URL is the base URL of the revocation authority.
	URL string `yaml:"url"`

	// Identity is the authority's DID. Revocation invocations are
	// addressed to it. Empty addresses them to the local identity.
	Identity string `yaml:"identity"`

	// TTL is how long a revocation status is trusted. Default: 5m
	TTL time.Duration `yaml:"ttl"`

	// Timeout bounds one remote check. Default: 10s
	Timeout time.Duration `yaml:"timeout"`

	// RateLimit is the sustained rate of outbound requests per second.
	// Zero disables limiting.
	RateLimit float64 `yaml:"rate_limit"`

	// Burst is the limiter's bucket size. Default: 10
	Burst int `yaml:"burst"`
}

// RegistryConfig configures the reference revocation service.
type RegistryConfig struct {
	// Listen is the HTTP listen address. Default: 127.0.0.1:8420
	Listen string `yaml:"listen"`

	// Store is the registry's SQLite database.
	Store string `yaml:"store"`

	// Identity is the DID invocations must be addressed to. Empty
	// accepts any audience.
	Identity string `yaml:"identity"`

	// Metrics enables /metrics on the listen address.
	Metrics bool `yaml:"metrics"`
}

// LogConfig configures logging.
type LogConfig struct {
	// Level is debug, info, warn, or error. Default: info
	Level string `yaml:"level"`

	// Format is text, json, or auto (text on a terminal). Default: auto
	Format string `yaml:"format"`
}

// Default returns the default configuration.
// These defaults are used as a base before loading the config file.
// They exist primarily to ensure all fields have sensible zero-values,
// not as a fallback - the config file is required.
func Default() *Config {
	homeDir, _ := os.UserHomeDir()
	defaultRoot := filepath.Join(homeDir, ".local", "share", "custody")

	return &Config{
		Environment: Development,
		Paths: PathsConfig{
			Root:          defaultRoot,
			Store:         filepath.Join(defaultRoot, "custody.db"),
			Authenticator: filepath.Join(defaultRoot, "authenticator.key"),
		},
		Identity: IdentityConfig{
			Algorithm:    "ed25519",
			RelyingParty: "custody.local",
			Encoding:     "base64",
		},
		Revocation: RevocationConfig{
			URL:     "http://127.0.0.1:8420",
			TTL:     5 * time.Minute,
			Timeout: 10 * time.Second,
			Burst:   10,
		},
		Registry: RegistryConfig{
			Listen: "127.0.0.1:8420",
			Store:  filepath.Join(defaultRoot, "revocations.db"),
		},
		Log: LogConfig{
			Level:  "info",
			Format: "auto",
		},
	}
}

// Load loads configuration from the CUSTODY_CONFIG environment
// variable.
//
// There are no fallbacks or defaults - if CUSTODY_CONFIG is not set,
// this fails.
func Load() (*Config, error) {
	configPath := os.Getenv(EnvironmentVariable)
	if configPath == "" {
		return nil, fmt.Errorf("%s environment variable not set; "+
			"set it to the path of your custody.yaml config file, or use --config flag", EnvironmentVariable)
	}

	return LoadFile(configPath)
}

// LoadFile loads configuration from a specific file path.
//
// Files ending in .json or .jsonc are read as JSON with comments and
// trailing commas; anything else is YAML. Environment variables do not
// override config values. The only expansion performed is ${HOME},
// ${CUSTODY_ROOT}, and ${VAR:-default} in path fields.
func LoadFile(path string) (*Config, error) {
	cfg := Default()

	if err := cfg.loadFile(path); err != nil {
		return nil, err
	}

	cfg.applyEnvironmentOverrides()
	cfg.expandVariables()

	return cfg, nil
}

// loadFile loads a single configuration file, merging into the current config.
func (c *Config) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".json", ".jsonc":
		// JSON is a subset of YAML, so one decoder serves both and
		// durations parse the same way.
		data = jsonc.ToJSON(data)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("parsing %s: %w", path, err)
	}
	return nil
}

// applyEnvironmentOverrides applies the environment-specific overrides.
func (c *Config) applyEnvironmentOverrides() {
	var overrides *ConfigOverrides

	switch c.Environment {
	case Development:
		overrides = c.Development
	case Production:
		overrides = c.Production
	}

	if overrides == nil {
		return
	}

	if overrides.Paths != nil {
		if overrides.Paths.Root != "" {
			c.Paths.Root = overrides.Paths.Root
		}
		if overrides.Paths.Store != "" {
			c.Paths.Store = overrides.Paths.Store
		}
		if overrides.Paths.Authenticator != "" {
			c.Paths.Authenticator = overrides.Paths.Authenticator
		}
	}

	if overrides.Revocation != nil {
		if overrides.Revocation.URL != "" {
			c.Revocation.URL = overrides.Revocation.URL
		}
		if overrides.Revocation.Identity != "" {
			c.Revocation.Identity = overrides.Revocation.Identity
		}
		if overrides.Revocation.TTL != 0 {
			c.Revocation.TTL = overrides.Revocation.TTL
		}
		if overrides.Revocation.Timeout != 0 {
			c.Revocation.Timeout = overrides.Revocation.Timeout
		}
		if overrides.Revocation.RateLimit != 0 {
			c.Revocation.RateLimit = overrides.Revocation.RateLimit
		}
		if overrides.Revocation.Burst != 0 {
			c.Revocation.Burst = overrides.Revocation.Burst
		}
	}

	if overrides.Log != nil {
		if overrides.Log.Level != "" {
			c.Log.Level = overrides.Log.Level
		}
		if overrides.Log.Format != "" {
			c.Log.Format = overrides.Log.Format
		}
	}
}

// expandVariables expands ${VAR} and ${VAR:-default} patterns in paths.
func (c *Config) expandVariables() {
	vars := map[string]string{
		"CUSTODY_ROOT": c.Paths.Root,
		"HOME":         os.Getenv("HOME"),
	}

	c.Paths.Root = expandVars(c.Paths.Root, vars)
	vars["CUSTODY_ROOT"] = c.Paths.Root // Update for dependent paths.

	c.Paths.Store = expandVars(c.Paths.Store, vars)
	c.Paths.Authenticator = expandVars(c.Paths.Authenticator, vars)
	c.Registry.Store = expandVars(c.Registry.Store, vars)
}

// expandVars expands ${VAR} and ${VAR:-default} patterns.
var varPattern = regexp.MustCompile(`\$\{([^}:]+)(?::-([^}]*))?\}`)

func expandVars(s string, vars map[string]string) string {
	return varPattern.ReplaceAllStringFunc(s, func(match string) string {
		parts := varPattern.FindStringSubmatch(match)
		if len(parts) < 2 {
			return match
		}

		name := parts[1]
		defaultValue := ""
		if len(parts) >= 3 {
			defaultValue = parts[2]
		}

		// Check provided vars first, then environment.
		if value, ok := vars[name]; ok && value != "" {
			return value
		}
		if value := os.Getenv(name); value != "" {
			return value
		}
		return defaultValue
	})
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	var errs []error

	if c.Environment != Development && c.Environment != Production {
		errs = append(errs, fmt.Errorf("invalid environment: %s", c.Environment))
	}

	if c.Paths.Store == "" {
		errs = append(errs, fmt.Errorf("paths.store is required"))
	}

	switch c.Identity.Algorithm {
	case "ed25519", "p256":
	default:
		errs = append(errs, fmt.Errorf("identity.algorithm must be ed25519 or p256, got %q", c.Identity.Algorithm))
	}
	if c.Identity.RelyingParty == "" {
		errs = append(errs, fmt.Errorf("identity.relying_party is required"))
	}
	switch c.Identity.Encoding {
	case "base64", "base64url":
	default:
		errs = append(errs, fmt.Errorf("identity.encoding must be base64 or base64url, got %q", c.Identity.Encoding))
	}

	if c.Revocation.URL == "" {
		errs = append(errs, fmt.Errorf("revocation.url is required"))
	} else if parsed, err := url.Parse(c.Revocation.URL); err != nil || parsed.Host == "" {
		errs = append(errs, fmt.Errorf("revocation.url %q is not an absolute URL", c.Revocation.URL))
	} else if c.Environment == Production && parsed.Scheme != "https" {
		errs = append(errs, fmt.Errorf("revocation.url must use https in production"))
	}
	if c.Revocation.TTL <= 0 {
		errs = append(errs, fmt.Errorf("revocation.ttl must be positive"))
	}
	if c.Revocation.Timeout <= 0 {
		errs = append(errs, fmt.Errorf("revocation.timeout must be positive"))
	}
	if c.Revocation.RateLimit < 0 || c.Revocation.Burst < 0 {
		errs = append(errs, fmt.Errorf("revocation.rate_limit and revocation.burst must not be negative"))
	}

	if !contains([]string{"debug", "info", "warn", "error"}, c.Log.Level) {
		errs = append(errs, fmt.Errorf("log.level must be one of debug, info, warn, error"))
	}
	if !contains([]string{"text", "json", "auto"}, c.Log.Format) {
		errs = append(errs, fmt.Errorf("log.format must be one of text, json, auto"))
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	return nil
}

// EnsurePaths creates the directories holding the configured files.
func (c *Config) EnsurePaths() error {
	paths := []string{
		c.Paths.Root,
		filepath.Dir(c.Paths.Store),
		filepath.Dir(c.Paths.Authenticator),
	}

	for _, path := range paths {
		if path == "" || path == "." {
			continue
		}
		if err := os.MkdirAll(path, 0700); err != nil {
			return fmt.Errorf("creating %s: %w", path, err)
		}
	}

	return nil
}

func contains(slice []string, s string) bool {
	for _, v := range slice {
		if v == s {
			return true
		}
	}
	return false
}
