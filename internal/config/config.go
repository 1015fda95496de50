package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/viper"
)

// Config holds all application configuration
type Config struct {
	// Claim handshake
	HMACSecret    string        // server-held key for claim signatures
	ClaimTTL      time.Duration // lifetime of a pending claim token (default: 10m)
	ClaimCooldown time.Duration // minimum interval between claim tokens per user (default: 30s)

	// Identity provider
	IDTokenSecret string
	IDTokenIssuer string

	// TMDB
	TMDBAPIKey  string
	TMDBBaseURL string

	// Ingest
	IngestMaxBodyBytes int64

	// Scheduler
	BackfillSchedule string

	// Server
	ServerPort string

	// Paths
	DatabaseFile string // $CONFIG_DIR/privatecinema.db

	// Logging
	LogLevel  string
	LogFormat string

	// Tracing
	TracingEnabled bool // log finished spans at debug level
}

// Load loads configuration from environment variables and .env file
func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigName(".env")
	v.SetConfigType("env")
	v.AddConfigPath(".")
	v.AutomaticEnv()

	// Load .env file if it exists (ignore if not found)
	_ = v.ReadInConfig()

	return fromViper(v)
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("CLAIM_TTL_MINUTES", 10)
	v.SetDefault("CLAIM_COOLDOWN_SECONDS", 30)
	v.SetDefault("ID_TOKEN_ISSUER", "privatecinema")
	v.SetDefault("TMDB_BASE_URL", "https://api.themoviedb.org/3")
	v.SetDefault("INGEST_MAX_BODY_BYTES", 5*1024*1024)
	v.SetDefault("BACKFILL_SCHEDULE", "0 */6 * * *")
	v.SetDefault("SERVER_PORT", "8080")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_FORMAT", "text")
	v.SetDefault("TRACING_ENABLED", false)
}

func fromViper(v *viper.Viper) (*Config, error) {
	setDefaults(v)

	configDir := v.GetString("CONFIG_DIR")
	if configDir == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("failed to get home directory: %w", err)
		}
		configDir = filepath.Join(homeDir, ".config", "privatecinema")
	} else {
		absPath, err := filepath.Abs(configDir)
		if err != nil {
			return nil, fmt.Errorf("failed to get absolute path for CONFIG_DIR: %w", err)
		}
		configDir = absPath
	}

	if err := os.MkdirAll(configDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create config directory: %w", err)
	}

	config := &Config{
		HMACSecret:    v.GetString("HMAC_SECRET"),
		ClaimTTL:      time.Duration(v.GetInt("CLAIM_TTL_MINUTES")) * time.Minute,
		ClaimCooldown: time.Duration(v.GetInt("CLAIM_COOLDOWN_SECONDS")) * time.Second,

		IDTokenSecret: v.GetString("ID_TOKEN_SECRET"),
		IDTokenIssuer: v.GetString("ID_TOKEN_ISSUER"),

		TMDBAPIKey:  v.GetString("TMDB_API_KEY"),
		TMDBBaseURL: v.GetString("TMDB_BASE_URL"),

		IngestMaxBodyBytes: v.GetInt64("INGEST_MAX_BODY_BYTES"),

		BackfillSchedule: v.GetString("BACKFILL_SCHEDULE"),

		ServerPort: v.GetString("SERVER_PORT"),

		DatabaseFile: filepath.Join(configDir, "privatecinema.db"),

		LogLevel:  v.GetString("LOG_LEVEL"),
		LogFormat: v.GetString("LOG_FORMAT"),

		TracingEnabled: v.GetBool("TRACING_ENABLED"),
	}

	// Validate required fields
	if config.HMACSecret == "" {
		return nil, fmt.Errorf("HMAC_SECRET is required")
	}
	if config.IDTokenSecret == "" {
		return nil, fmt.Errorf("ID_TOKEN_SECRET is required")
	}
	if config.ClaimTTL <= 0 {
		return nil, fmt.Errorf("CLAIM_TTL_MINUTES must be positive")
	}
	if config.ClaimCooldown < 0 {
		return nil, fmt.Errorf("CLAIM_COOLDOWN_SECONDS must not be negative")
	}
	if config.IngestMaxBodyBytes <= 0 {
		return nil, fmt.Errorf("INGEST_MAX_BODY_BYTES must be positive")
	}

	return config, nil
}

// AgentConfig holds the configuration of the cinema-agent CLI
type AgentConfig struct {
	ServerURL  string // base URL of the cloud functions
	KeyFile    string // where the agent API key is persisted
	DataDir    string // catalog.json lives here
	IgnoreFile string // path patterns skipped by scan
	MoviesPath string
	TVPath     string
	LogLevel   string
}

// LoadAgent loads agent configuration from environment variables and .env file
func LoadAgent() (*AgentConfig, error) {
	v := viper.New()
	v.SetConfigName(".env")
	v.SetConfigType("env")
	v.AddConfigPath(".")
	v.AutomaticEnv()
	_ = v.ReadInConfig()

	return agentFromViper(v)
}

func agentFromViper(v *viper.Viper) (*AgentConfig, error) {
	v.SetDefault("AGENT_DATA_DIR", ".data")
	v.SetDefault("LOG_LEVEL", "info")

	dataDir, err := filepath.Abs(v.GetString("AGENT_DATA_DIR"))
	if err != nil {
		return nil, fmt.Errorf("failed to get absolute path for AGENT_DATA_DIR: %w", err)
	}

	cfg := &AgentConfig{
		ServerURL:  v.GetString("AGENT_SERVER_URL"),
		KeyFile:    v.GetString("AGENT_KEY_FILE"),
		DataDir:    dataDir,
		IgnoreFile: v.GetString("AGENT_IGNORE_FILE"),
		MoviesPath: v.GetString("MOVIES_PATH"),
		TVPath:     v.GetString("TV_PATH"),
		LogLevel:   v.GetString("LOG_LEVEL"),
	}
	if cfg.KeyFile == "" {
		cfg.KeyFile = filepath.Join(dataDir, "agent.key")
	}
	if cfg.IgnoreFile == "" {
		cfg.IgnoreFile = filepath.Join(dataDir, "ignore.txt")
	}

	return cfg, nil
}
