// Package config provides configuration loading for the cherry-harvest application.
// It handles loading search settings, storage settings and other application
// settings from environment variables, a local JSON file and HashiCorp Vault.
package config

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/MyCarrier-DevOps/goLibMyCarrier/vault"

	"github.com/MyCarrier-DevOps/cherry-harvest/internal/domain"
	"github.com/MyCarrier-DevOps/cherry-harvest/internal/search"
)

// Environment variable names.
const (
	// EnvSearchConfig is the path to a local search configuration JSON file.
	EnvSearchConfig = "HARVEST_SEARCH_CONFIG"

	// EnvVaultSearchConfigPath is the path in Vault KV where search config is stored.
	EnvVaultSearchConfigPath = "VAULT_SEARCH_CONFIG_PATH"

	// EnvVaultSearchConfigMount is the Vault KV mount point (defaults to "secret").
	EnvVaultSearchConfigMount = "VAULT_SEARCH_CONFIG_MOUNT"

	EnvNumHashes = "HARVEST_NUM_HASHES"
	EnvBands     = "HARVEST_BANDS"
	EnvRows      = "HARVEST_ROWS"
	EnvThreshold = "HARVEST_THRESHOLD"
	EnvSeed      = "HARVEST_SEED"
	EnvWorkers   = "HARVEST_WORKERS"

	// EnvMethods is a comma-separated list of search methods.
	EnvMethods = "HARVEST_METHODS"

	// EnvOutput is the directory result files are written to.
	EnvOutput = "HARVEST_OUTPUT"

	// EnvDBPath is the SQLite database holding results and the harvest tracker.
	EnvDBPath = "HARVEST_DB_PATH"

	// EnvGitHubToken authenticates clones and fork listing.
	EnvGitHubToken = "GITHUB_TOKEN"

	EnvClickHouseAddr     = "CLICKHOUSE_ADDR"
	EnvClickHouseDatabase = "CLICKHOUSE_DATABASE"
	EnvClickHouseUsername = "CLICKHOUSE_USERNAME"
	EnvClickHousePassword = "CLICKHOUSE_PASSWORD"
	EnvClickHouseTLS      = "CLICKHOUSE_TLS"

	// EnvLogLevel is the log level (debug, info, error).
	EnvLogLevel = "LOG_LEVEL"

	// EnvLogAppName is the application name for log context.
	EnvLogAppName = "LOG_APP_NAME"
)

// Default values.
const (
	DefaultLogLevel         = "info"
	DefaultLogAppName       = "cherry-harvest"
	DefaultVaultSearchMount = "secret"
	DefaultClickHouseDB     = "ci"

	// DefaultSecretKey is the Vault secret key holding the search config as a JSON string.
	DefaultSecretKey = "config"
)

// Configuration errors.
var (
	// ErrSearchConfigNotFound indicates the search config file does not exist.
	ErrSearchConfigNotFound = errors.New("search configuration file not found")

	// ErrSearchConfigInvalid indicates the search config is not valid JSON.
	ErrSearchConfigInvalid = errors.New("search configuration is not valid JSON")

	// ErrInvalidSetting indicates an environment variable that could not be parsed.
	ErrInvalidSetting = errors.New("invalid setting")

	// ErrVaultClientFailed indicates failure to create or authenticate with Vault.
	ErrVaultClientFailed = errors.New("failed to create Vault client")

	// ErrVaultSecretNotFound indicates the secret was not found in Vault.
	ErrVaultSecretNotFound = errors.New("search configuration not found in Vault")
)

// VaultClient defines the interface for Vault operations.
// This interface allows for dependency injection and testing.
type VaultClient interface {
	// GetKVSecret retrieves a secret from Vault's KV v2 secrets engine.
	GetKVSecret(ctx context.Context, path, mount string) (map[string]interface{}, error)
}

// VaultClientFactory creates a VaultClient using AppRole authentication.
// This is the default factory used in production.
type VaultClientFactory func(ctx context.Context) (VaultClient, error)

// DefaultVaultClientFactory creates a VaultClient using goLibMyCarrier/vault with AppRole auth.
func DefaultVaultClientFactory(ctx context.Context) (VaultClient, error) {
	// Uses: VAULT_ADDRESS, VAULT_ROLE_ID, VAULT_SECRET_ID
	vaultConfig, err := vault.VaultLoadConfig()
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrVaultClientFailed, err)
	}

	client, err := vault.CreateVaultClient(ctx, vaultConfig)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrVaultClientFailed, err)
	}

	return client, nil
}

// SearchConfig holds the search method selection and the approximate search settings.
type SearchConfig struct {
	NumHashes int      `json:"num_hashes"`
	Bands     int      `json:"bands"`
	Rows      int      `json:"rows"`
	Threshold float64  `json:"threshold"`
	Seed      uint64   `json:"seed"`
	Workers   int      `json:"workers"`
	Methods   []string `json:"methods"`
}

// DefaultSearchConfig returns every method with the default LSH settings.
func DefaultSearchConfig() SearchConfig {
	a := search.DefaultApproximateConfig()
	return SearchConfig{
		NumHashes: a.NumHashes,
		Bands:     a.Bands,
		Rows:      a.Rows,
		Threshold: a.Threshold,
		Seed:      a.Seed,
		Methods:   append([]string(nil), search.DefaultMethods...),
	}
}

// Approximate returns the settings of the approximate search.
func (s SearchConfig) Approximate() search.ApproximateConfig {
	return search.ApproximateConfig{
		NumHashes: s.NumHashes,
		Bands:     s.Bands,
		Rows:      s.Rows,
		Threshold: s.Threshold,
		Seed:      s.Seed,
		Workers:   s.Workers,
	}
}

// Validate checks method names and the approximate search settings.
func (s SearchConfig) Validate() error {
	if len(s.Methods) == 0 {
		return domain.ErrNoMethods
	}
	for _, m := range s.Methods {
		if _, err := search.CanonicalName(m); err != nil {
			return err
		}
	}
	if s.Workers < 0 {
		return fmt.Errorf("%w: workers must not be negative, got %d", domain.ErrInvalidConfig, s.Workers)
	}
	return s.Approximate().Validate()
}

// ClickHouseConfig holds the optional results warehouse connection.
// The warehouse is disabled when Addr is empty.
type ClickHouseConfig struct {
	Addr     string
	Database string
	Username string
	Password string
	TLS      bool
}

// Enabled reports whether a warehouse address was configured.
func (c ClickHouseConfig) Enabled() bool {
	return c.Addr != ""
}

// Config holds all application configuration.
type Config struct {
	// Search holds method selection and LSH settings.
	Search SearchConfig

	// OutputDir is the directory result files are written to. Empty means stdout.
	OutputDir string

	// DBPath is the SQLite database for results and the harvest tracker. Empty disables it.
	DBPath string

	// GitHubToken authenticates clones and the GitHub API. Empty means anonymous.
	GitHubToken string

	// ClickHouse holds the optional warehouse connection.
	ClickHouse ClickHouseConfig

	// LogLevel is the logging level (debug, info, error).
	LogLevel string

	// LogAppName is the application name for log context.
	LogAppName string
}

// Load loads the application configuration from environment variables.
// Search settings start from defaults, are overlaid by Vault (preferred) or
// a local file when configured, and finally by HARVEST_* environment variables.
//
// For Vault loading, requires:
//   - VAULT_ADDRESS: Vault server address
//   - VAULT_ROLE_ID: AppRole role ID
//   - VAULT_SECRET_ID: AppRole secret ID
//   - VAULT_SEARCH_CONFIG_PATH: Path to the secret in Vault
//   - VAULT_SEARCH_CONFIG_MOUNT: KV mount point (optional, defaults to "secret")
//
// For file loading:
//   - HARVEST_SEARCH_CONFIG: Path to local JSON file
func Load() (*Config, error) {
	return LoadWithVaultClient(context.Background(), nil)
}

// LoadWithVaultClient loads configuration using the provided VaultClient factory.
// If vaultClientFactory is nil, DefaultVaultClientFactory is used.
// This function enables dependency injection for testing.
func LoadWithVaultClient(ctx context.Context, vaultClientFactory VaultClientFactory) (*Config, error) {
	searchCfg, err := loadSearchConfigWithVault(ctx, vaultClientFactory)
	if err != nil {
		return nil, err
	}

	if err := applySearchEnv(&searchCfg); err != nil {
		return nil, err
	}
	if err := searchCfg.Validate(); err != nil {
		return nil, err
	}

	chTLS, err := envBool(EnvClickHouseTLS)
	if err != nil {
		return nil, err
	}
	chDatabase := os.Getenv(EnvClickHouseDatabase)
	if chDatabase == "" {
		chDatabase = DefaultClickHouseDB
	}

	return &Config{
		Search:      searchCfg,
		OutputDir:   os.Getenv(EnvOutput),
		DBPath:      os.Getenv(EnvDBPath),
		GitHubToken: os.Getenv(EnvGitHubToken),
		ClickHouse: ClickHouseConfig{
			Addr:     os.Getenv(EnvClickHouseAddr),
			Database: chDatabase,
			Username: os.Getenv(EnvClickHouseUsername),
			Password: os.Getenv(EnvClickHousePassword),
			TLS:      chTLS,
		},
		LogLevel:   envOr(EnvLogLevel, DefaultLogLevel),
		LogAppName: envOr(EnvLogAppName, DefaultLogAppName),
	}, nil
}

// loadSearchConfigWithVault loads search config from Vault first, then from a
// local file, and falls back to defaults when neither is configured.
func loadSearchConfigWithVault(ctx context.Context, vaultClientFactory VaultClientFactory) (SearchConfig, error) {
	if vaultPath := os.Getenv(EnvVaultSearchConfigPath); vaultPath != "" {
		return loadSearchConfigFromVault(ctx, vaultClientFactory, vaultPath)
	}
	if path := os.Getenv(EnvSearchConfig); path != "" {
		return loadSearchConfigFromFile(path)
	}
	return DefaultSearchConfig(), nil
}

// loadSearchConfigFromVault loads search configuration from Vault KV v2.
func loadSearchConfigFromVault(
	ctx context.Context,
	vaultClientFactory VaultClientFactory,
	path string,
) (SearchConfig, error) {
	if vaultClientFactory == nil {
		vaultClientFactory = DefaultVaultClientFactory
	}

	client, err := vaultClientFactory(ctx)
	if err != nil {
		return SearchConfig{}, err
	}

	mount := envOr(EnvVaultSearchConfigMount, DefaultVaultSearchMount)
	secretPath, key := parseVaultPath(path)

	secretData, err := client.GetKVSecret(ctx, secretPath, mount)
	if err != nil {
		return SearchConfig{}, fmt.Errorf("%w at path %s: %w", ErrVaultSecretNotFound, secretPath, err)
	}

	return parseSearchConfigFromVault(secretData, key)
}

// parseVaultPath splits "path#key" into the secret path and the key holding
// the JSON document. Without a "#" the key is DefaultSecretKey.
func parseVaultPath(fullPath string) (string, string) {
	i := strings.LastIndex(fullPath, "#")
	if i < 0 {
		return fullPath, DefaultSecretKey
	}
	return fullPath[:i], fullPath[i+1:]
}

// parseSearchConfigFromVault parses search config from Vault secret data.
// Supports two formats:
// 1. The given key containing a JSON string
// 2. Direct mapping of search config fields in the secret
func parseSearchConfigFromVault(secretData map[string]interface{}, key string) (SearchConfig, error) {
	if configStr, ok := secretData[key].(string); ok {
		return decodeSearchConfig([]byte(configStr))
	}

	jsonData, err := json.Marshal(secretData)
	if err != nil {
		return SearchConfig{}, fmt.Errorf("%w: failed to marshal secret data: %w", ErrSearchConfigInvalid, err)
	}
	return decodeSearchConfig(jsonData)
}

// loadSearchConfigFromFile loads the search configuration from the specified file path.
func loadSearchConfigFromFile(path string) (SearchConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return SearchConfig{}, fmt.Errorf("%w: %s", ErrSearchConfigNotFound, path)
		}
		return SearchConfig{}, fmt.Errorf("failed to read search config: %w", err)
	}
	return decodeSearchConfig(data)
}

// decodeSearchConfig overlays the JSON document on the defaults, so partial
// documents only change the fields they name.
func decodeSearchConfig(data []byte) (SearchConfig, error) {
	cfg := DefaultSearchConfig()
	if err := json.Unmarshal(data, &cfg); err != nil {
		return SearchConfig{}, fmt.Errorf("%w: %w", ErrSearchConfigInvalid, err)
	}
	return cfg, nil
}

// applySearchEnv overrides search settings from HARVEST_* variables.
func applySearchEnv(cfg *SearchConfig) error {
	ints := []struct {
		name string
		dst  *int
	}{
		{EnvNumHashes, &cfg.NumHashes},
		{EnvBands, &cfg.Bands},
		{EnvRows, &cfg.Rows},
		{EnvWorkers, &cfg.Workers},
	}
	for _, v := range ints {
		s := os.Getenv(v.name)
		if s == "" {
			continue
		}
		n, err := strconv.Atoi(s)
		if err != nil {
			return fmt.Errorf("%w: %s=%q: %w", ErrInvalidSetting, v.name, s, err)
		}
		*v.dst = n
	}

	if s := os.Getenv(EnvThreshold); s != "" {
		f, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return fmt.Errorf("%w: %s=%q: %w", ErrInvalidSetting, EnvThreshold, s, err)
		}
		cfg.Threshold = f
	}

	if s := os.Getenv(EnvSeed); s != "" {
		n, err := strconv.ParseUint(s, 10, 64)
		if err != nil {
			return fmt.Errorf("%w: %s=%q: %w", ErrInvalidSetting, EnvSeed, s, err)
		}
		cfg.Seed = n
	}

	if s := os.Getenv(EnvMethods); s != "" {
		cfg.Methods = SplitList(s)
	}
	return nil
}

// SplitList splits a comma-separated list, dropping empty entries.
func SplitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func envOr(name, fallback string) string {
	if v := os.Getenv(name); v != "" {
		return v
	}
	return fallback
}

func envBool(name string) (bool, error) {
	s := os.Getenv(name)
	if s == "" {
		return false, nil
	}
	b, err := strconv.ParseBool(s)
	if err != nil {
		return false, fmt.Errorf("%w: %s=%q: %w", ErrInvalidSetting, name, s, err)
	}
	return b, nil
}
