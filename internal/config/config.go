// Package config loads the layered outpost configuration:
// defaults, then outpost.yaml, then OUTPOST_* environment variables.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/rendis/outpost/pkg/schema"
)

// Default values used when neither the config file nor the environment
// sets a field.
const (
	DefaultPoolSize = 10
	DefaultMaxAge   = 30 * 24 * time.Hour
)

// validate is the singleton validator instance.
var validate = validator.New()

// Config holds all outpost configuration.
// Priority: env vars > outpost.yaml > defaults.
type Config struct {
	DBPath         string          `yaml:"db_path" validate:"required"`
	CatalogDir     string          `yaml:"catalog_dir"`
	RulesPath      string          `yaml:"rules_path"`
	LogLevel       string          `yaml:"log_level" validate:"required,oneof=debug info warn error"`
	PoolSize       int             `yaml:"pool_size" validate:"gt=0"`
	ValidateOutput bool            `yaml:"validate_output"`
	MaskOnStore    bool            `yaml:"mask_on_store"`
	Retention      RetentionConfig `yaml:"retention"`
	Seal           SealConfig      `yaml:"seal"`
}

// RetentionConfig controls the execution purger.
type RetentionConfig struct {
	Schedule  string   `yaml:"schedule"`
	RawMaxAge string   `yaml:"max_age"` // e.g. "720h", "72h30m"
	Statuses  []string `yaml:"statuses" validate:"dive,oneof=succeeded failed timeout canceled abandoned"`
}

// MaxAge returns the configured retention age or the default.
func (r *RetentionConfig) MaxAge() time.Duration {
	if r.RawMaxAge != "" {
		if d, err := time.ParseDuration(r.RawMaxAge); err == nil && d > 0 {
			return d
		}
	}
	return DefaultMaxAge
}

// StatusList converts the configured status names to their typed form.
func (r *RetentionConfig) StatusList() []schema.ExecutionStatus {
	if len(r.Statuses) == 0 {
		return nil
	}
	statuses := make([]schema.ExecutionStatus, len(r.Statuses))
	for i, s := range r.Statuses {
		statuses[i] = schema.ExecutionStatus(s)
	}
	return statuses
}

// SealConfig carries the passphrase material for sealing raw results at
// rest. Sealing is enabled when a passphrase is set.
type SealConfig struct {
	Passphrase string `yaml:"passphrase"`
	Salt       string `yaml:"salt"`
}

// Enabled reports whether raw results should be sealed.
func (s *SealConfig) Enabled() bool {
	return s.Passphrase != ""
}

func defaultConfig() Config {
	return Config{
		DBPath:         filepath.Join(outpostDir(), "outpost.db"),
		LogLevel:       "info",
		PoolSize:       DefaultPoolSize,
		ValidateOutput: true,
	}
}

func outpostDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".outpost"
	}
	return filepath.Join(home, ".outpost")
}

// DefaultPath is where Load looks for outpost.yaml when no path is given.
func DefaultPath() string {
	return filepath.Join(outpostDir(), "outpost.yaml")
}

// Load builds the configuration. An explicitly given path must exist;
// the default location is optional. A .env file in the working directory
// is read first so OUTPOST_* variables can live there.
func Load(path string) (*Config, error) {
	_ = godotenv.Load()

	cfg := defaultConfig()

	explicit := path != ""
	if path == "" {
		path = DefaultPath()
	}

	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, schema.NewErrorf(schema.ErrCodeValidation,
				"parse config %s: %s", path, err.Error()).WithCause(err)
		}
	case explicit:
		return nil, schema.NewErrorf(schema.ErrCodeValidation,
			"read config %s: %s", path, err.Error()).WithCause(err)
	}

	applyEnv(&cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func applyEnv(cfg *Config) {
	if v := os.Getenv("OUTPOST_DB_PATH"); v != "" {
		cfg.DBPath = v
	}
	if v := os.Getenv("OUTPOST_CATALOG_DIR"); v != "" {
		cfg.CatalogDir = v
	}
	if v := os.Getenv("OUTPOST_RULES_PATH"); v != "" {
		cfg.RulesPath = v
	}
	if v := os.Getenv("OUTPOST_LOG_LEVEL"); v != "" {
		cfg.LogLevel = v
	}
	if v := os.Getenv("OUTPOST_POOL_SIZE"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.PoolSize = n
		}
	}
	if v := os.Getenv("OUTPOST_VALIDATE_OUTPUT"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.ValidateOutput = b
		}
	}
	if v := os.Getenv("OUTPOST_MASK_ON_STORE"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.MaskOnStore = b
		}
	}
	if v := os.Getenv("OUTPOST_RETENTION_SCHEDULE"); v != "" {
		cfg.Retention.Schedule = v
	}
	if v := os.Getenv("OUTPOST_RETENTION_MAX_AGE"); v != "" {
		cfg.Retention.RawMaxAge = v
	}
	if v := os.Getenv("OUTPOST_RETENTION_STATUSES"); v != "" {
		cfg.Retention.Statuses = splitList(v)
	}
	if v := os.Getenv("OUTPOST_SEAL_PASSPHRASE"); v != "" {
		cfg.Seal.Passphrase = v
	}
	if v := os.Getenv("OUTPOST_SEAL_SALT"); v != "" {
		cfg.Seal.Salt = v
	}
}

func splitList(v string) []string {
	parts := strings.Split(v, ",")
	var out []string
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// Validate applies the struct tags plus the cross-field checks.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			msgs := make([]string, len(verrs))
			for i, ve := range verrs {
				msgs[i] = fmt.Sprintf("%s failed %q", ve.Field(), ve.Tag())
			}
			return schema.NewErrorf(schema.ErrCodeValidation,
				"invalid configuration: %s", strings.Join(msgs, "; "))
		}
		return err
	}

	if c.Retention.RawMaxAge != "" {
		if _, err := time.ParseDuration(c.Retention.RawMaxAge); err != nil {
			return schema.NewErrorf(schema.ErrCodeValidation,
				"invalid retention.max_age %q", c.Retention.RawMaxAge).WithCause(err)
		}
	}
	if c.Seal.Passphrase != "" && c.Seal.Salt == "" {
		return schema.NewError(schema.ErrCodeValidation,
			"seal.salt is required when seal.passphrase is set")
	}
	return nil
}

// Level maps log_level to its slog level.
func (c *Config) Level() slog.Level {
	switch c.LogLevel {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
