package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all configuration for the CaptionForge server.
type Config struct {
	Server     ServerConfig
	Database   DatabaseConfig
	Redis      RedisConfig
	Vision     VisionConfig
	Preprocess PreprocessConfig
	Jobs       JobsConfig
}

type ServerConfig struct {
	Port               int
	Env                string
	LogLevel           slog.Level
	RateLimitPerMinute int
}

type DatabaseConfig struct {
	URL             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

type RedisConfig struct {
	URL string
}

// VisionConfig selects the default backend and model and bounds every backend call.
type VisionConfig struct {
	Backend      string
	DefaultModel string
	Timeout      time.Duration
	MaxTokens    int
	Ollama       OllamaConfig
	LMStudio     LMStudioConfig
}

type OllamaConfig struct {
	BaseURL string
}

type LMStudioConfig struct {
	BaseURL string
}

// PreprocessConfig controls how images are normalized before they are sent to a backend.
type PreprocessConfig struct {
	MaxResolution       int
	Quality             int
	Format              string
	MaintainAspectRatio bool
}

type JobsConfig struct {
	PollInterval time.Duration
}

var validBackends = map[string]bool{
	"ollama":   true,
	"lmstudio": true,
}

var validFormats = map[string]bool{
	"jpeg": true,
	"png":  true,
}

// Load reads configuration from environment variables and returns a validated Config.
// A .env file in the working directory is applied first when present; real environment
// variables take precedence over it.
// Returns an error with a descriptive message if any required value is missing or invalid.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	cfg := &Config{
		Server: ServerConfig{
			Port:               envInt("CAPTIONFORGE_PORT", 8080),
			Env:                envString("CAPTIONFORGE_ENV", "development"),
			LogLevel:           envLogLevel("LOG_LEVEL", slog.LevelInfo),
			RateLimitPerMinute: envInt("RATE_LIMIT_PER_MINUTE", 60),
		},
		Database: DatabaseConfig{
			URL:             os.Getenv("DATABASE_URL"),
			MaxOpenConns:    envInt("DATABASE_MAX_OPEN_CONNS", 25),
			MaxIdleConns:    envInt("DATABASE_MAX_IDLE_CONNS", 5),
			ConnMaxLifetime: envDuration("DATABASE_CONN_MAX_LIFETIME", 5*time.Minute),
		},
		Redis: RedisConfig{
			URL: os.Getenv("REDIS_URL"),
		},
		Vision: VisionConfig{
			Backend:      envString("VISION_BACKEND", "ollama"),
			DefaultModel: envString("VISION_DEFAULT_MODEL", "qwen2.5-vl:7b"),
			Timeout:      envDurationSecs("VISION_TIMEOUT_SECS", 120*time.Second),
			MaxTokens:    envInt("VISION_MAX_TOKENS", 1024),
			Ollama: OllamaConfig{
				BaseURL: envString("OLLAMA_BASE_URL", "http://localhost:11434"),
			},
			LMStudio: LMStudioConfig{
				BaseURL: envString("LMSTUDIO_BASE_URL", "http://localhost:1234"),
			},
		},
		Preprocess: PreprocessConfig{
			MaxResolution:       envInt("PREPROCESS_MAX_RESOLUTION", 1024),
			Quality:             envInt("PREPROCESS_QUALITY", 85),
			Format:              strings.ToLower(envString("PREPROCESS_FORMAT", "jpeg")),
			MaintainAspectRatio: envBool("PREPROCESS_MAINTAIN_ASPECT", true),
		},
		Jobs: JobsConfig{
			PollInterval: envDuration("JOBS_POLL_INTERVAL", time.Second),
		},
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) validate() error {
	if c.Database.URL == "" {
		return fmt.Errorf("DATABASE_URL is required")
	}

	if c.Redis.URL == "" {
		return fmt.Errorf("REDIS_URL is required")
	}

	if !validBackends[c.Vision.Backend] {
		return fmt.Errorf("VISION_BACKEND must be one of ollama, lmstudio; got %q", c.Vision.Backend)
	}
	if c.Vision.DefaultModel == "" {
		return fmt.Errorf("VISION_DEFAULT_MODEL must not be empty")
	}
	for name, u := range map[string]string{
		"OLLAMA_BASE_URL":   c.Vision.Ollama.BaseURL,
		"LMSTUDIO_BASE_URL": c.Vision.LMStudio.BaseURL,
	} {
		if !strings.HasPrefix(u, "http://") && !strings.HasPrefix(u, "https://") {
			return fmt.Errorf("%s must start with http:// or https://, got %q", name, u)
		}
	}
	if c.Vision.Timeout <= 0 {
		return fmt.Errorf("VISION_TIMEOUT_SECS must be positive")
	}
	if c.Vision.MaxTokens <= 0 {
		return fmt.Errorf("VISION_MAX_TOKENS must be positive")
	}

	if !validFormats[c.Preprocess.Format] {
		return fmt.Errorf("PREPROCESS_FORMAT must be one of jpeg, png; got %q", c.Preprocess.Format)
	}
	if c.Preprocess.MaxResolution <= 0 {
		return fmt.Errorf("PREPROCESS_MAX_RESOLUTION must be positive")
	}
	if c.Preprocess.Quality < 1 || c.Preprocess.Quality > 100 {
		return fmt.Errorf("PREPROCESS_QUALITY must be between 1 and 100, got %d", c.Preprocess.Quality)
	}

	if c.Jobs.PollInterval <= 0 {
		return fmt.Errorf("JOBS_POLL_INTERVAL must be positive")
	}

	return nil
}

func envString(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func envInt(key string, defaultVal int) int {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return defaultVal
	}
	return i
}

func envBool(key string, defaultVal bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return defaultVal
	}
	return b
}

func envDuration(key string, defaultVal time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return defaultVal
	}
	return d
}

func envDurationSecs(key string, defaultVal time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	secs, err := strconv.Atoi(v)
	if err != nil {
		return defaultVal
	}
	return time.Duration(secs) * time.Second
}

func envLogLevel(key string, defaultVal slog.Level) slog.Level {
	switch strings.ToLower(strings.TrimSpace(os.Getenv(key))) {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return defaultVal
	}
}
