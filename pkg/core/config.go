package core

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config contains the complete configuration for a graphmem client.
//
// Example:
//
//	config := &core.Config{
//	    Log: core.LogConfig{
//	        Backend: "file",
//	        Path:    "./memory.jsonl",
//	    },
//	}
//	client, _ := core.NewClient(config)
type Config struct {
	// Log selects and configures the record log backend.
	Log LogConfig `json:"log"`

	// Query tunes recall ranking.
	Query QueryConfig `json:"query"`

	// Compaction controls opportunistic log compaction.
	Compaction CompactionConfig `json:"compaction"`

	// LLM configures the optional LLM provider for subject extraction
	// and importance scoring. Nil means rule-based heuristics only.
	LLM *LLMConfig `json:"llm,omitempty"`
}

// LogConfig selects the record log backend.
//
// Supported backends: file (default), sqlite, postgres, mysql.
type LogConfig struct {
	// Backend is the backend name.
	Backend string `json:"backend"`

	// Path is the log file location (file backend) or database file
	// (sqlite backend).
	Path string `json:"path,omitempty"`

	// TableName is the record table name for SQL backends.
	TableName string `json:"table_name,omitempty"`

	// Host, Port, User, Password, DBName configure server-backed SQL
	// backends (postgres, mysql).
	Host     string `json:"host,omitempty"`
	Port     int    `json:"port,omitempty"`
	User     string `json:"user,omitempty"`
	Password string `json:"password,omitempty"`
	DBName   string `json:"db_name,omitempty"`

	// SSLMode is the postgres SSL mode. Defaults to "disable".
	SSLMode string `json:"ssl_mode,omitempty"`
}

// QueryConfig tunes recall ranking.
type QueryConfig struct {
	// DefaultLimit bounds recall results when the caller does not pass a
	// limit. Defaults to 10.
	DefaultLimit int `json:"default_limit,omitempty"`

	// RecencyHalflifeHours is the age in hours at which the recency
	// bonus halves. Defaults to 168 (one week).
	RecencyHalflifeHours float64 `json:"recency_halflife_hours,omitempty"`
}

// CompactionConfig controls opportunistic log compaction.
//
// Auto-compaction runs after a mutation once the log holds at least
// Threshold records and more than GrowthFactor times the records a compact
// log would hold. Manual Compact calls are always allowed.
type CompactionConfig struct {
	// Auto enables opportunistic compaction.
	Auto bool `json:"auto"`

	// Threshold is the minimum log length before auto-compaction is
	// considered. Defaults to 1024.
	Threshold int `json:"threshold,omitempty"`

	// GrowthFactor is how much larger than its compact form the log must
	// be before auto-compaction runs. Defaults to 1.5.
	GrowthFactor float64 `json:"growth_factor,omitempty"`
}

// LLMConfig contains configuration for the LLM provider.
type LLMConfig struct {
	// Provider is the provider name. Only "openai" (and OpenAI-compatible
	// endpoints via BaseURL) is supported.
	Provider string `json:"provider"`

	// APIKey is the API key for the provider.
	APIKey string `json:"api_key"`

	// Model is the model name to use.
	Model string `json:"model,omitempty"`

	// BaseURL is the base URL for the API (optional).
	BaseURL string `json:"base_url,omitempty"`
}

// DefaultConfig returns a file-backed configuration writing to
// ./memory.jsonl with rule-based heuristics.
func DefaultConfig() *Config {
	return &Config{
		Log: LogConfig{
			Backend: "file",
			Path:    "./memory.jsonl",
		},
	}
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	switch c.Log.Backend {
	case "file":
		if c.Log.Path == "" {
			return NewMemoryError("Validate", ErrInvalidConfig)
		}
	case "sqlite":
		if c.Log.Path == "" {
			return NewMemoryError("Validate", ErrInvalidConfig)
		}
	case "postgres", "mysql":
		if c.Log.Host == "" || c.Log.DBName == "" {
			return NewMemoryError("Validate", ErrInvalidConfig)
		}
	default:
		return NewMemoryError("Validate", ErrInvalidConfig)
	}

	if c.LLM != nil && c.LLM.Provider != "openai" {
		return NewMemoryError("Validate", ErrInvalidConfig)
	}
	return nil
}

// recencyHalflife returns the configured halflife as a duration.
func (c *Config) recencyHalflife() time.Duration {
	if c.Query.RecencyHalflifeHours <= 0 {
		return 168 * time.Hour
	}
	return time.Duration(c.Query.RecencyHalflifeHours * float64(time.Hour))
}

// LoadConfigFromEnv loads configuration from environment variables.
//
// The function:
//  1. Searches for .env or .env.example files (up to 5 directory levels up)
//  2. Loads environment variables from the found file
//  3. Parses environment variables into a Config struct
//
// Supported environment variables:
//   - MEMORY_BACKEND (file, sqlite, postgres, mysql)
//   - MEMORY_PATH (file/sqlite backends), MEMORY_TABLE
//   - POSTGRES_HOST, POSTGRES_PORT, POSTGRES_USER, POSTGRES_PASSWORD,
//     POSTGRES_DATABASE, POSTGRES_SSLMODE
//   - MYSQL_HOST, MYSQL_PORT, MYSQL_USER, MYSQL_PASSWORD, MYSQL_DATABASE
//   - MEMORY_AUTO_COMPACT, MEMORY_COMPACT_THRESHOLD
//   - LLM_PROVIDER, LLM_API_KEY, LLM_MODEL, LLM_BASE_URL
//
// Returns a Config instance, or an error if loading fails.
func LoadConfigFromEnv() (*Config, error) {
	envPath, found := FindEnvFile()
	if found {
		_ = godotenv.Load(envPath)
	} else {
		_ = godotenv.Load()
	}

	cfg := DefaultConfig()
	cfg.Log.Backend = getEnvOrDefault("MEMORY_BACKEND", "file")

	switch cfg.Log.Backend {
	case "file":
		cfg.Log.Path = getEnvOrDefault("MEMORY_PATH", "./memory.jsonl")
	case "sqlite":
		cfg.Log.Path = getEnvOrDefault("MEMORY_PATH", "./memory.db")
		cfg.Log.TableName = getEnvOrDefault("MEMORY_TABLE", "records")
	case "postgres":
		port, _ := strconv.Atoi(getEnvOrDefault("POSTGRES_PORT", "5432"))
		cfg.Log.Host = getEnvOrDefault("POSTGRES_HOST", "localhost")
		cfg.Log.Port = port
		cfg.Log.User = getEnvOrDefault("POSTGRES_USER", "postgres")
		cfg.Log.Password = os.Getenv("POSTGRES_PASSWORD")
		cfg.Log.DBName = getEnvOrDefault("POSTGRES_DATABASE", "graphmem")
		cfg.Log.TableName = getEnvOrDefault("MEMORY_TABLE", "records")
		cfg.Log.SSLMode = getEnvOrDefault("POSTGRES_SSLMODE", "disable")
	case "mysql":
		port, _ := strconv.Atoi(getEnvOrDefault("MYSQL_PORT", "3306"))
		cfg.Log.Host = getEnvOrDefault("MYSQL_HOST", "127.0.0.1")
		cfg.Log.Port = port
		cfg.Log.User = getEnvOrDefault("MYSQL_USER", "root")
		cfg.Log.Password = os.Getenv("MYSQL_PASSWORD")
		cfg.Log.DBName = getEnvOrDefault("MYSQL_DATABASE", "graphmem")
		cfg.Log.TableName = getEnvOrDefault("MEMORY_TABLE", "records")
	}

	if auto, err := strconv.ParseBool(getEnvOrDefault("MEMORY_AUTO_COMPACT", "false")); err == nil {
		cfg.Compaction.Auto = auto
	}
	if threshold, err := strconv.Atoi(getEnvOrDefault("MEMORY_COMPACT_THRESHOLD", "0")); err == nil && threshold > 0 {
		cfg.Compaction.Threshold = threshold
	}

	if apiKey := os.Getenv("LLM_API_KEY"); apiKey != "" {
		cfg.LLM = &LLMConfig{
			Provider: getEnvOrDefault("LLM_PROVIDER", "openai"),
			APIKey:   apiKey,
			Model:    os.Getenv("LLM_MODEL"),
			BaseURL:  os.Getenv("LLM_BASE_URL"),
		}
	}

	return cfg, nil
}

// LoadConfigFromJSON loads configuration from a JSON file.
func LoadConfigFromJSON(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, NewMemoryError("LoadConfigFromJSON", err)
	}

	var config Config
	if err := json.Unmarshal(data, &config); err != nil {
		return nil, NewMemoryError("LoadConfigFromJSON", err)
	}

	return &config, nil
}

// getEnvOrDefault gets an environment variable or returns the default value.
func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// FindEnvFile searches for .env or .env.example files.
//
// The search:
//  1. Checks the current directory
//  2. Searches up to 5 directory levels up
//  3. Returns the first .env or .env.example file found
func FindEnvFile() (string, bool) {
	if _, err := os.Stat(".env"); err == nil {
		return ".env", true
	}
	if _, err := os.Stat(".env.example"); err == nil {
		return ".env.example", true
	}

	dir, _ := os.Getwd()
	for i := 0; i < 5; i++ {
		envPath := filepath.Join(dir, ".env")
		envExamplePath := filepath.Join(dir, ".env.example")

		if _, err := os.Stat(envPath); err == nil {
			return envPath, true
		}
		if _, err := os.Stat(envExamplePath); err == nil {
			return envExamplePath, true
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}

	return "", false
}
