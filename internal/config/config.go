package config

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type Config struct {
	DBPath string `validate:"required"`

	HTTPPort int `validate:"min=1,max=65535"`
	Token    string

	RedisURL string
	CacheTTL time.Duration `validate:"gte=0"`

	MonitorInterval    time.Duration `validate:"gt=0"`
	MonitorConcurrency int           `validate:"min=1,max=64"`

	LogLevel  string `validate:"oneof=debug info warn error"`
	LogFormat string `validate:"oneof=text json"`
}

type configFile struct {
	Database struct {
		Path string `yaml:"path"`
	} `yaml:"database"`
	Server struct {
		Port  int    `yaml:"port"`
		Token string `yaml:"token"`
	} `yaml:"server"`
	Cache struct {
		RedisURL   string `yaml:"redis_url"`
		TTLSeconds *int   `yaml:"ttl_seconds"`
	} `yaml:"cache"`
	Monitor struct {
		IntervalSeconds int `yaml:"interval_seconds"`
		Concurrency     int `yaml:"concurrency"`
	} `yaml:"monitor"`
	Log struct {
		Level  string `yaml:"level"`
		Format string `yaml:"format"`
	} `yaml:"log"`
}

func Default() Config {
	return Config{
		DBPath:             "./adlift.db",
		HTTPPort:           8080,
		CacheTTL:           30 * time.Second,
		MonitorInterval:    5 * time.Minute,
		MonitorConcurrency: 4,
		LogLevel:           "info",
		LogFormat:          "text",
	}
}

// LoadDotEnv loads ./.env into the process environment if it exists.
// Variables already set win.
func LoadDotEnv() error {
	err := godotenv.Load()
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	return err
}

// Load applies, in order: defaults, the YAML file at path (skipped when
// path is empty or the file does not exist), then ADLIFT_* variables.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		raw, err := os.ReadFile(path)
		switch {
		case err == nil:
			if err := applyFile(&cfg, raw); err != nil {
				return Config{}, err
			}
		case !errors.Is(err, fs.ErrNotExist):
			return Config{}, fmt.Errorf("read config file: %w", err)
		}
	}

	cfg.DBPath = envOrDefault("ADLIFT_DB_PATH", cfg.DBPath)
	cfg.HTTPPort = envInt("ADLIFT_PORT", cfg.HTTPPort)
	cfg.Token = envOrDefault("ADLIFT_TOKEN", cfg.Token)
	cfg.RedisURL = envOrDefault("ADLIFT_REDIS_URL", cfg.RedisURL)
	cfg.CacheTTL = time.Duration(envInt("ADLIFT_CACHE_TTL_SECONDS", int(cfg.CacheTTL.Seconds()))) * time.Second
	cfg.MonitorInterval = time.Duration(envInt("ADLIFT_MONITOR_INTERVAL_SECONDS", int(cfg.MonitorInterval.Seconds()))) * time.Second
	cfg.MonitorConcurrency = envInt("ADLIFT_MONITOR_CONCURRENCY", cfg.MonitorConcurrency)
	cfg.LogLevel = strings.ToLower(envOrDefault("ADLIFT_LOG_LEVEL", cfg.LogLevel))
	cfg.LogFormat = strings.ToLower(envOrDefault("ADLIFT_LOG_FORMAT", cfg.LogFormat))

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func applyFile(cfg *Config, raw []byte) error {
	var f configFile
	if err := yaml.Unmarshal(raw, &f); err != nil {
		return fmt.Errorf("parse config file: %w", err)
	}

	if f.Database.Path != "" {
		cfg.DBPath = f.Database.Path
	}
	if f.Server.Port > 0 {
		cfg.HTTPPort = f.Server.Port
	}
	if f.Server.Token != "" {
		cfg.Token = f.Server.Token
	}
	if f.Cache.RedisURL != "" {
		cfg.RedisURL = f.Cache.RedisURL
	}
	if f.Cache.TTLSeconds != nil {
		cfg.CacheTTL = time.Duration(*f.Cache.TTLSeconds) * time.Second
	}
	if f.Monitor.IntervalSeconds > 0 {
		cfg.MonitorInterval = time.Duration(f.Monitor.IntervalSeconds) * time.Second
	}
	if f.Monitor.Concurrency > 0 {
		cfg.MonitorConcurrency = f.Monitor.Concurrency
	}
	if f.Log.Level != "" {
		cfg.LogLevel = strings.ToLower(f.Log.Level)
	}
	if f.Log.Format != "" {
		cfg.LogFormat = strings.ToLower(f.Log.Format)
	}
	return nil
}

var validate = validator.New()

func (c Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}

// Logger builds the process logger described by the config.
func (c Config) Logger(w io.Writer) *slog.Logger {
	level := slog.LevelInfo
	switch c.LogLevel {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}

	opts := &slog.HandlerOptions{Level: level}
	if c.LogFormat == "json" {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

func envOrDefault(name, fallback string) string {
	if value := os.Getenv(name); value != "" {
		return value
	}
	return fallback
}

func envInt(name string, fallback int) int {
	raw := os.Getenv(name)
	if raw == "" {
		return fallback
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	return v
}
