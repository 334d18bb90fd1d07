package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
)

const (
	// EnvPrefix is prepended to every environment variable name
	EnvPrefix = "SCHEMASYNC_"

	// envNoDefaultTag is a tag no field carries, so the override pass only
	// touches fields whose variable is actually set
	envNoDefaultTag = "envOverrideDefault"
)

// Config represents the application configuration
type Config struct {
	Database   DatabaseConfig   `json:"database"`
	Migrations MigrationsConfig `json:"migrations"`
	Sync       SyncConfig       `json:"sync"`
	Logging    LoggingConfig    `json:"logging"`
	Metrics    MetricsConfig    `json:"metrics"`
	Debug      DebugConfig      `json:"debug"`
}

// DatabaseConfig represents database configuration
type DatabaseConfig struct {
	Path           string `json:"path"            env:"DB_PATH"            envDefault:"~/.local/share/schemasync/app.db"`
	Backend        string `json:"backend"         env:"DB_BACKEND"         envDefault:"sqlite"` // sqlite, memory
	BusyTimeout    string `json:"busy_timeout"    env:"DB_BUSY_TIMEOUT"    envDefault:"5s"`
	MaxConnections int    `json:"max_connections" env:"DB_MAX_CONNECTIONS" envDefault:"1"`
}

// MigrationsConfig points at the manifest describing the schema and its migrations
type MigrationsConfig struct {
	Manifest string `json:"manifest" env:"MANIFEST" envDefault:"schema.yaml"`
}

// SyncConfig represents sync configuration
type SyncConfig struct {
	// MigrationsEnabledAtVersion is the schema version at which migration
	// syncs were turned on. 0 leaves them off.
	MigrationsEnabledAtVersion int `json:"migrations_enabled_at_version" env:"SYNC_MIGRATIONS_ENABLED_AT_VERSION" envDefault:"0"`
}

// LoggingConfig represents logging configuration
type LoggingConfig struct {
	Level     string `json:"level"      env:"LOG_LEVEL"      envDefault:"info"`                                    // debug, info, warn, error
	Format    string `json:"format"     env:"LOG_FORMAT"     envDefault:"text"`                                    // text, json
	Output    string `json:"output"     env:"LOG_OUTPUT"     envDefault:"stderr"`                                  // stdout, stderr, file
	File      string `json:"file"       env:"LOG_FILE"       envDefault:"~/.local/share/schemasync/logs/app.log"` // log file path when output is file
	AddSource bool   `json:"add_source" env:"LOG_ADD_SOURCE" envDefault:"false"`                                   // add source file and line info to logs
}

// MetricsConfig represents Prometheus metrics configuration
type MetricsConfig struct {
	Enabled   bool   `json:"enabled"   env:"METRICS_ENABLED"   envDefault:"false"`
	Namespace string `json:"namespace" env:"METRICS_NAMESPACE" envDefault:"schemasync"`
	Textfile  string `json:"textfile"  env:"METRICS_TEXTFILE"` // node_exporter textfile written after each command
}

// DebugConfig represents debug configuration
type DebugConfig struct {
	Enabled bool `json:"enabled" env:"DEBUG"   envDefault:"false"`
	Verbose bool `json:"verbose" env:"VERBOSE" envDefault:"false"`
}

// DefaultConfig returns the configuration made of envDefault values only
func DefaultConfig() *Config {
	config := &Config{}

	// An empty environment cannot fail to parse
	_ = env.ParseWithOptions(config, env.Options{
		Prefix:      EnvPrefix,
		Environment: map[string]string{},
	})

	return config
}

// LoadConfigWithOverrides loads configuration with optional command-line flag overrides.
// Precedence, lowest first: defaults, config file, environment, flags.
func LoadConfigWithOverrides(flagOverrides map[string]interface{}) (*Config, error) {
	config := DefaultConfig()

	// Load from config file if it exists
	configPath := getConfigPath()
	if _, err := os.Stat(configPath); err == nil {
		if err := loadConfigFromFile(config, configPath); err != nil {
			return nil, fmt.Errorf("failed to load config file: %w", err)
		}
	}

	if err := applyEnvironmentOverrides(config); err != nil {
		return nil, err
	}

	// Apply command-line flag overrides
	if flagOverrides != nil {
		if err := applyFlagOverrides(config, flagOverrides); err != nil {
			return nil, fmt.Errorf("failed to apply flag overrides: %w", err)
		}
	}

	// Validate configuration
	if err := validateConfig(config); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return config, nil
}

// loadConfigFromFile loads configuration from a JSON file
func loadConfigFromFile(config *Config, configPath string) error {
	data, err := os.ReadFile(configPath)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}

	// Parse JSON into a temporary struct to merge with defaults
	var fileConfig Config
	if err := json.Unmarshal(data, &fileConfig); err != nil {
		return fmt.Errorf("failed to parse config file: %w", err)
	}

	mergeConfigs(config, &fileConfig)

	return nil
}

// applyEnvironmentOverrides sets fields whose environment variable is present
func applyEnvironmentOverrides(config *Config) error {
	if err := env.ParseWithOptions(config, env.Options{
		Prefix:              EnvPrefix,
		DefaultValueTagName: envNoDefaultTag,
	}); err != nil {
		return fmt.Errorf("failed to parse environment variables: %w", err)
	}

	return nil
}

// applyFlagOverrides applies command-line flag overrides to configuration
func applyFlagOverrides(config *Config, overrides map[string]interface{}) error {
	for key, value := range overrides {
		switch key {
		case "db-path":
			if str, ok := value.(string); ok && str != "" {
				config.Database.Path = str
			}
		case "backend":
			if str, ok := value.(string); ok && str != "" {
				config.Database.Backend = str
			}
		case "manifest":
			if str, ok := value.(string); ok && str != "" {
				config.Migrations.Manifest = str
			}
		case "migrations-enabled-at":
			if n, ok := value.(int); ok && n > 0 {
				config.Sync.MigrationsEnabledAtVersion = n
			}
		case "log-level":
			if str, ok := value.(string); ok && str != "" {
				config.Logging.Level = str
			}
		case "metrics-textfile":
			if str, ok := value.(string); ok && str != "" {
				config.Metrics.Textfile = str
				config.Metrics.Enabled = true
			}
		case "verbose":
			if b, ok := value.(bool); ok {
				config.Debug.Verbose = b
			}
		case "debug":
			if b, ok := value.(bool); ok {
				config.Debug.Enabled = b
			}
		default:
			return fmt.Errorf("unknown flag override: %s", key)
		}
	}

	return nil
}

// mergeConfigs merges source configuration into target configuration
func mergeConfigs(target, source *Config) {
	var mergeValues func(t, s reflect.Value)
	mergeValues = func(t, s reflect.Value) {
		if t.Kind() != s.Kind() {
			return
		}

		if t.Kind() == reflect.Struct {
			for i := range s.NumField() {
				mergeValues(t.Field(i), s.Field(i))
			}
		} else if s.Kind() == reflect.Bool {
			t.Set(s)
		} else if !s.IsZero() {
			t.Set(s)
		}
	}

	mergeValues(reflect.ValueOf(target).Elem(), reflect.ValueOf(source).Elem())
}

// validateConfig validates the configuration for common errors
func validateConfig(config *Config) error {
	validLogLevels := map[string]bool{
		"debug": true, "info": true, "warn": true, "error": true,
	}
	if !validLogLevels[strings.ToLower(config.Logging.Level)] {
		return fmt.Errorf(
			"invalid log level: %s (must be debug, info, warn, or error)",
			config.Logging.Level,
		)
	}

	validLogFormats := map[string]bool{
		"text": true, "json": true,
	}
	if !validLogFormats[strings.ToLower(config.Logging.Format)] {
		return fmt.Errorf("invalid log format: %s (must be text or json)", config.Logging.Format)
	}

	validLogOutputs := map[string]bool{
		"stdout": true, "stderr": true, "file": true,
	}
	if !validLogOutputs[strings.ToLower(config.Logging.Output)] {
		return fmt.Errorf(
			"invalid log output: %s (must be stdout, stderr, or file)",
			config.Logging.Output,
		)
	}

	validBackends := map[string]bool{
		"sqlite": true, "memory": true,
	}
	if !validBackends[strings.ToLower(config.Database.Backend)] {
		return fmt.Errorf("invalid database backend: %s (must be sqlite or memory)", config.Database.Backend)
	}

	if _, err := time.ParseDuration(config.Database.BusyTimeout); err != nil {
		return fmt.Errorf("invalid database busy timeout: %s", config.Database.BusyTimeout)
	}

	if config.Database.MaxConnections <= 0 {
		return fmt.Errorf(
			"database max connections must be positive: %d",
			config.Database.MaxConnections,
		)
	}

	if config.Sync.MigrationsEnabledAtVersion < 0 {
		return fmt.Errorf(
			"migrations enabled at version must not be negative: %d",
			config.Sync.MigrationsEnabledAtVersion,
		)
	}

	if config.Metrics.Enabled && config.Metrics.Namespace == "" {
		return fmt.Errorf("metrics namespace is required when metrics are enabled")
	}

	return nil
}

// SaveConfig saves configuration to file
func SaveConfig(config *Config) error {
	configPath := getConfigPath()

	// Ensure directory exists
	if err := os.MkdirAll(filepath.Dir(configPath), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := json.MarshalIndent(config, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(configPath, data, 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// ConfigPath returns the path configuration is loaded from and saved to
func ConfigPath() string {
	return getConfigPath()
}

// getConfigPath returns the path to the configuration file
func getConfigPath() string {
	// Check for custom config path from environment
	if configPath := os.Getenv(EnvPrefix + "CONFIG"); configPath != "" {
		return expandPath(configPath)
	}

	return filepath.Join(GetConfigDir(), "config.json")
}

// expandPath expands ~ to home directory in file paths
func expandPath(path string) string {
	if !strings.HasPrefix(path, "~") {
		return path
	}

	homeDir, err := os.UserHomeDir()
	if err != nil {
		return path
	}

	if path == "~" {
		return homeDir
	}

	if strings.HasPrefix(path, "~/") {
		return filepath.Join(homeDir, path[2:])
	}

	return path
}

// ExpandAllPaths expands all paths in the configuration
func (c *Config) ExpandAllPaths() {
	c.Database.Path = expandPath(c.Database.Path)
	c.Migrations.Manifest = expandPath(c.Migrations.Manifest)
	c.Logging.File = expandPath(c.Logging.File)
	c.Metrics.Textfile = expandPath(c.Metrics.Textfile)
}

// GetConfigDir returns the configuration directory
func GetConfigDir() string {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return ".config/schemasync"
	}

	return filepath.Join(homeDir, ".config", "schemasync")
}

// EnsureDirectories creates necessary directories for the configuration
func (c *Config) EnsureDirectories() error {
	var dirs []string

	if strings.ToLower(c.Logging.Output) == "file" {
		dirs = append(dirs, filepath.Dir(c.Logging.File))
	}

	if strings.ToLower(c.Database.Backend) == "sqlite" && c.Database.Path != ":memory:" {
		dirs = append(dirs, filepath.Dir(c.Database.Path))
	}

	if c.Metrics.Textfile != "" {
		dirs = append(dirs, filepath.Dir(c.Metrics.Textfile))
	}

	for _, dir := range dirs {
		if dir != "" && dir != "." {
			if err := os.MkdirAll(dir, 0755); err != nil {
				return fmt.Errorf("failed to create directory %s: %w", dir, err)
			}
		}
	}

	return nil
}
