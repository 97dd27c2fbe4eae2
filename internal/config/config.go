package config

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"runtime"
	"strings"

	"gopkg.in/yaml.v3"
)

// Supported backends.
const (
	EngineBleve = "bleve"
	EngineRedis = "redis"

	StorageSQLite = "sqlite"
	StorageMemory = "memory"
)

// Config holds the rowsearch server configuration.
type Config struct {
	HTTP    HTTPConfig    `yaml:"http"`
	Auth    AuthConfig    `yaml:"auth"`
	Logging LoggingConfig `yaml:"logging"`
	Index   IndexConfig   `yaml:"index"`
	Storage StorageConfig `yaml:"storage"`
	Sync    SyncConfig    `yaml:"sync"`
	Table   TableConfig   `yaml:"table"`
	Schema  SchemaConfig  `yaml:"schema"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level string `yaml:"level"` // debug, info, warn, error (default: determined by env)
}

// AuthConfig holds API authentication settings.
type AuthConfig struct {
	APIKeys []string `yaml:"api_keys"`
}

// HTTPConfig holds HTTP server settings.
type HTTPConfig struct {
	Port            int `yaml:"port"`
	ReadTimeoutSec  int `yaml:"read_timeout_sec"`
	WriteTimeoutSec int `yaml:"write_timeout_sec"`
	ShutdownSec     int `yaml:"shutdown_timeout_sec"`
}

// IndexConfig selects and configures the search engine.
type IndexConfig struct {
	Engine          string      `yaml:"engine"` // bleve, redis (default: bleve)
	Name            string      `yaml:"name"`
	Prefix          string      `yaml:"prefix"`
	DeleteBatchSize int         `yaml:"delete_batch_size"`
	Bleve           BleveConfig `yaml:"bleve"`
	Redis           RedisConfig `yaml:"redis"`
}

// BleveConfig holds embedded index settings.
type BleveConfig struct {
	Path string `yaml:"path"` // empty keeps the index in memory
}

// RedisConfig holds RediSearch connection settings.
type RedisConfig struct {
	Addrs            []string `yaml:"addrs"`
	Username         string   `yaml:"username"`
	Password         string   `yaml:"password"`
	DB               int      `yaml:"db"`
	ReadinessTimeout int      `yaml:"readiness_timeout_sec"`
}

// StorageConfig selects the row store.
type StorageConfig struct {
	Driver string `yaml:"driver"` // sqlite, memory (default: sqlite)
	DSN    string `yaml:"dsn"`
}

// SyncConfig holds indexing and materialization limits.
type SyncConfig struct {
	BatchSize        int `yaml:"batch_size"`
	MaxParallelReads int `yaml:"max_parallel_reads"`
}

// TableConfig declares the indexed table's columns as CQL type names.
type TableConfig struct {
	Name    string            `yaml:"name"`
	Columns map[string]string `yaml:"columns"`
}

// SchemaConfig declares the column mappings.
type SchemaConfig struct {
	DefaultAnalyzer string                  `yaml:"default_analyzer"`
	Columns         map[string]ColumnConfig `yaml:"columns"`
}

// ColumnConfig declares one column mapping.
type ColumnConfig struct {
	Type          string `yaml:"type"`
	Analyzer      string `yaml:"analyzer"`
	CaseSensitive *bool  `yaml:"case_sensitive"`
	Pattern       string `yaml:"pattern"`
	Digits        int    `yaml:"digits"`
	IntegerDigits int    `yaml:"integer_digits"`
	DecimalDigits int    `yaml:"decimal_digits"`
}

// Load reads configuration from a YAML file by environment name (local, dev, prod).
func Load(env string) (Config, error) {
	configPath := findConfigPath(env)

	data, err := os.ReadFile(filepath.Clean(configPath))
	if err != nil {
		return Config{}, fmt.Errorf("failed to read config %s: %w", configPath, err)
	}
	return Parse(data)
}

// Parse decodes, defaults and validates a YAML document.
func Parse(data []byte) (Config, error) {
	// Substitute env variables of the form ${VAR}
	data = expandEnvVars(data)

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("failed to parse config: %w", err)
	}

	cfg.ApplyDefaults()

	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("invalid config: %w", err)
	}

	return cfg, nil
}

// MustLoad loads configuration or panics.
func MustLoad(env string) Config {
	cfg, err := Load(env)
	if err != nil {
		panic(err)
	}
	return cfg
}

// GetEnv returns the current environment from the ENV variable, defaulting to "local".
func GetEnv() string {
	if env := os.Getenv("ENV"); env != "" {
		return env
	}
	return "local"
}

// ApplyDefaults fills empty fields with default values.
func (c *Config) ApplyDefaults() {
	if c.HTTP.ReadTimeoutSec <= 0 {
		c.HTTP.ReadTimeoutSec = 10
	}
	if c.HTTP.WriteTimeoutSec <= 0 {
		c.HTTP.WriteTimeoutSec = 10
	}
	if c.HTTP.ShutdownSec <= 0 {
		c.HTTP.ShutdownSec = 10
	}
	if c.Index.Engine == "" {
		c.Index.Engine = EngineBleve
	}
	if c.Index.Name == "" && c.Table.Name != "" {
		c.Index.Name = c.Table.Name + "_idx"
	}
	if c.Index.Prefix == "" {
		c.Index.Prefix = "rowsearch:"
	}
	if c.Index.Redis.ReadinessTimeout <= 0 {
		c.Index.Redis.ReadinessTimeout = 10
	}
	if c.Storage.Driver == "" {
		c.Storage.Driver = StorageSQLite
	}
	if c.Storage.Driver == StorageSQLite && c.Storage.DSN == "" {
		c.Storage.DSN = "rowsearch.db"
	}
	if c.Sync.BatchSize <= 0 {
		c.Sync.BatchSize = 1000
	}
	if c.Sync.MaxParallelReads <= 0 {
		c.Sync.MaxParallelReads = 8
	}
}

// Validate checks the configuration for correctness.
func (c *Config) Validate() error {
	if c.HTTP.Port <= 0 || c.HTTP.Port > 65535 {
		return fmt.Errorf("http.port must be between 1 and 65535, got %d", c.HTTP.Port)
	}
	switch c.Index.Engine {
	case EngineBleve:
	case EngineRedis:
		if len(c.Index.Redis.Addrs) == 0 {
			return fmt.Errorf("index.redis.addrs is required for the redis engine")
		}
	default:
		return fmt.Errorf("index.engine must be %q or %q, got %q", EngineBleve, EngineRedis, c.Index.Engine)
	}
	switch c.Storage.Driver {
	case StorageSQLite, StorageMemory:
	default:
		return fmt.Errorf("storage.driver must be %q or %q, got %q", StorageSQLite, StorageMemory, c.Storage.Driver)
	}
	if c.Table.Name == "" {
		return fmt.Errorf("table.name is required")
	}
	if len(c.Schema.Columns) == 0 {
		return fmt.Errorf("schema.columns must map at least one column")
	}
	for col, m := range c.Schema.Columns {
		if m.Type == "" {
			return fmt.Errorf("schema.columns.%s.type is required", col)
		}
		if _, ok := c.Table.Columns[col]; !ok {
			return fmt.Errorf("schema.columns.%s is not a column of table %q", col, c.Table.Name)
		}
	}
	return nil
}

// findConfigPath locates the config file.
func findConfigPath(env string) string {
	filename := fmt.Sprintf("%s.yaml", env)

	// 1. Check ./config/
	if path := filepath.Join("config", filename); fileExists(path) {
		return path
	}

	// 2. Check relative to the source file
	_, b, _, _ := runtime.Caller(0)
	projectRoot := filepath.Dir(filepath.Dir(filepath.Dir(b))) // internal/config -> project root
	if path := filepath.Join(projectRoot, "config", filename); fileExists(path) {
		return path
	}

	// 3. Fallback to ./config/
	return filepath.Join("config", filename)
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// expandEnvVars replaces ${VAR} and ${VAR:-default} with environment variable values.
var envVarRegex = regexp.MustCompile(`\$\{([^}]+)\}`)

func expandEnvVars(data []byte) []byte {
	return envVarRegex.ReplaceAllFunc(data, func(match []byte) []byte {
		expr := string(match[2 : len(match)-1]) // strip ${ and }
		varName, defaultVal, hasDefault := strings.Cut(expr, ":-")
		val := os.Getenv(varName)
		if val == "" && hasDefault {
			val = defaultVal
		}
		return []byte(val)
	})
}
