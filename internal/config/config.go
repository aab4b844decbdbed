package config

import (
	"fmt"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/viper"
)

type Config struct {
	Port           string        `mapstructure:"PORT"`
	Env            string        `mapstructure:"ENV"`
	LogLevel       string        `mapstructure:"LOG_LEVEL"`
	MediaRoot      string        `mapstructure:"MEDIA_ROOT"`
	RecordsDir     string        `mapstructure:"RECORDS_DIR"`
	UploadsDir     string        `mapstructure:"UPLOADS_DIR"`
	MaxUploadSize  string        `mapstructure:"MAX_UPLOAD_SIZE"`
	RequestTimeout time.Duration `mapstructure:"REQUEST_TIMEOUT"`
	MetricsEnabled bool          `mapstructure:"METRICS_ENABLED"`
}

func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigFile(".env")
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("PORT", "8000")
	v.SetDefault("ENV", "development")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("MEDIA_ROOT", "./media")
	v.SetDefault("RECORDS_DIR", "medical_json")
	v.SetDefault("UPLOADS_DIR", "json_files")
	v.SetDefault("MAX_UPLOAD_SIZE", "5M")
	v.SetDefault("REQUEST_TIMEOUT", "30s")
	v.SetDefault("METRICS_ENABLED", true)

	// Bind env vars explicitly so Unmarshal picks them up
	v.BindEnv("PORT")
	v.BindEnv("ENV")
	v.BindEnv("LOG_LEVEL")
	v.BindEnv("MEDIA_ROOT")
	v.BindEnv("RECORDS_DIR")
	v.BindEnv("UPLOADS_DIR")
	v.BindEnv("MAX_UPLOAD_SIZE")
	v.BindEnv("REQUEST_TIMEOUT")
	v.BindEnv("METRICS_ENABLED")

	// Try reading .env file, but don't fail if missing
	_ = v.ReadInConfig()

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	return cfg, nil
}

func (c *Config) IsDev() bool {
	return c.Env == "development"
}

// RecordsPath is the directory created records and accepted uploads live in.
func (c *Config) RecordsPath() string {
	return filepath.Join(c.MediaRoot, c.RecordsDir)
}

// UploadsPath is the staging directory for upload candidates.
func (c *Config) UploadsPath() string {
	return filepath.Join(c.MediaRoot, c.UploadsDir)
}

// MaxUploadBytes returns MAX_UPLOAD_SIZE in bytes, or 0 if it does not parse.
func (c *Config) MaxUploadBytes() int64 {
	n, err := ParseSize(c.MaxUploadSize)
	if err != nil {
		return 0
	}
	return n
}

// Level returns the zerolog level named by LOG_LEVEL. Validate rejects
// unknown names; here they fall back to info.
func (c *Config) Level() zerolog.Level {
	lvl, err := zerolog.ParseLevel(strings.ToLower(c.LogLevel))
	if err != nil || c.LogLevel == "" {
		return zerolog.InfoLevel
	}
	return lvl
}

// Validate checks that the configuration is safe to run.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.MediaRoot) == "" {
		return fmt.Errorf("MEDIA_ROOT must not be empty")
	}
	if strings.TrimSpace(c.RecordsDir) == "" || strings.TrimSpace(c.UploadsDir) == "" {
		return fmt.Errorf("RECORDS_DIR and UPLOADS_DIR must not be empty")
	}
	if c.RecordsPath() == c.UploadsPath() {
		return fmt.Errorf("RECORDS_DIR and UPLOADS_DIR must differ, both resolve to %s", c.RecordsPath())
	}

	n, err := ParseSize(c.MaxUploadSize)
	if err != nil {
		return fmt.Errorf("MAX_UPLOAD_SIZE: %w", err)
	}
	if n <= 0 {
		return fmt.Errorf("MAX_UPLOAD_SIZE must be positive, got %q", c.MaxUploadSize)
	}

	if c.RequestTimeout < 0 {
		return fmt.Errorf("REQUEST_TIMEOUT must not be negative, got %s", c.RequestTimeout)
	}
	if _, err := zerolog.ParseLevel(strings.ToLower(c.LogLevel)); err != nil {
		return fmt.Errorf("LOG_LEVEL %q is not a valid level", c.LogLevel)
	}
	return nil
}

// ParseSize parses sizes such as "5M", "512K", "1G" or a plain byte count.
func ParseSize(s string) (int64, error) {
	s = strings.ToUpper(strings.TrimSpace(s))
	s = strings.TrimSuffix(s, "B")

	var multiplier int64 = 1
	switch {
	case strings.HasSuffix(s, "G"):
		multiplier = 1 << 30
	case strings.HasSuffix(s, "M"):
		multiplier = 1 << 20
	case strings.HasSuffix(s, "K"):
		multiplier = 1 << 10
	}
	if multiplier > 1 {
		s = s[:len(s)-1]
	}

	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid size %q", s)
	}
	return n * multiplier, nil
}
