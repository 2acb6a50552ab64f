// Package config loads Kartograph's configuration from an optional YAML
// file layered with environment variables, the same precedence the host
// platform uses: .env, then configs/config.yaml (or $CONFIG_FILE), then
// environment overrides via envdecode.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joeshaw/envdecode"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// DatabaseConfig controls the Postgres connection backing both the outbox
// and the graph store.
type DatabaseConfig struct {
	Driver          string `json:"driver" yaml:"driver" env:"DATABASE_DRIVER"`
	DSN             string `json:"dsn" yaml:"dsn" env:"DATABASE_DSN"`
	Host            string `json:"host" yaml:"host" env:"DATABASE_HOST"`
	Port            int    `json:"port" yaml:"port" env:"DATABASE_PORT"`
	User            string `json:"user" yaml:"user" env:"DATABASE_USER"`
	Password        string `json:"password" yaml:"password" env:"DATABASE_PASSWORD"`
	Name            string `json:"name" yaml:"name" env:"DATABASE_NAME"`
	SSLMode         string `json:"sslmode" yaml:"sslmode" env:"DATABASE_SSLMODE"`
	MaxOpenConns    int    `json:"max_open_conns" yaml:"max_open_conns" env:"DATABASE_MAX_OPEN_CONNS"`
	MaxIdleConns    int    `json:"max_idle_conns" yaml:"max_idle_conns" env:"DATABASE_MAX_IDLE_CONNS"`
	ConnMaxLifetime int    `json:"conn_max_lifetime" yaml:"conn_max_lifetime" env:"DATABASE_CONN_MAX_LIFETIME"`
	MigrateOnStart  bool   `json:"migrate_on_start" yaml:"migrate_on_start" env:"DATABASE_MIGRATE_ON_START"`
}

// ConnectionString builds a libpq connection string from host parameters.
func (c DatabaseConfig) ConnectionString() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Name, c.SSLMode,
	)
}

// LoggingConfig controls application logging.
type LoggingConfig struct {
	Level      string `json:"level" yaml:"level" env:"LOG_LEVEL"`
	Format     string `json:"format" yaml:"format" env:"LOG_FORMAT"`
	Output     string `json:"output" yaml:"output" env:"LOG_OUTPUT"`
	FilePrefix string `json:"file_prefix" yaml:"file_prefix" env:"LOG_FILE_PREFIX"`
}

// OutboxConfig controls the outbox worker (C6) and its event source (C5).
type OutboxConfig struct {
	Channel       string        `json:"channel" yaml:"channel" env:"OUTBOX_CHANNEL"`
	BatchSize     int           `json:"batch_size" yaml:"batch_size" env:"OUTBOX_BATCH_SIZE"`
	PollInterval  time.Duration `json:"poll_interval" yaml:"poll_interval" env:"OUTBOX_POLL_INTERVAL"`
	PollCron      string        `json:"poll_cron" yaml:"poll_cron" env:"OUTBOX_POLL_CRON"`
	MaxRetries    int           `json:"max_retries" yaml:"max_retries" env:"OUTBOX_MAX_RETRIES"`
	ClaimDeadline time.Duration `json:"claim_deadline" yaml:"claim_deadline" env:"OUTBOX_CLAIM_DEADLINE"`
}

// PolicyEngineConfig controls the connection to the SpiceDB-style policy
// engine consumed by the outbox worker. Mirrors the constructor parameters
// of the reference SpiceDB client (endpoint, preshared key, TLS toggle).
type PolicyEngineConfig struct {
	Endpoint     string        `json:"endpoint" yaml:"endpoint" env:"POLICY_ENGINE_ENDPOINT"`
	PresharedKey string        `json:"preshared_key" yaml:"preshared_key" env:"POLICY_ENGINE_PRESHARED_KEY"`
	UseTLS       bool          `json:"use_tls" yaml:"use_tls" env:"POLICY_ENGINE_USE_TLS"`
	CertPath     string        `json:"cert_path" yaml:"cert_path" env:"POLICY_ENGINE_CERT_PATH"`
	CallTimeout  time.Duration `json:"call_timeout" yaml:"call_timeout" env:"POLICY_ENGINE_CALL_TIMEOUT"`
}

// GraphConfig controls the bulk-loading pipeline (C7-C10).
type GraphConfig struct {
	GraphName string `json:"graph_name" yaml:"graph_name" env:"GRAPH_NAME"`
	BatchSize int    `json:"batch_size" yaml:"batch_size" env:"GRAPH_BATCH_SIZE"`
}

// Config is the top-level configuration structure.
type Config struct {
	Database     DatabaseConfig     `json:"database" yaml:"database"`
	Logging      LoggingConfig      `json:"logging" yaml:"logging"`
	Outbox       OutboxConfig       `json:"outbox" yaml:"outbox"`
	PolicyEngine PolicyEngineConfig `json:"policy_engine" yaml:"policy_engine"`
	Graph        GraphConfig        `json:"graph" yaml:"graph"`
}

// New returns a configuration populated with defaults.
func New() *Config {
	return &Config{
		Database: DatabaseConfig{
			Driver:          "postgres",
			MaxOpenConns:    10,
			MaxIdleConns:    5,
			ConnMaxLifetime: 300,
			MigrateOnStart:  true,
		},
		Logging: LoggingConfig{
			Level:      "info",
			Format:     "text",
			Output:     "stdout",
			FilePrefix: "kartograph",
		},
		Outbox: OutboxConfig{
			Channel:       "outbox_events",
			BatchSize:     100,
			PollInterval:  5 * time.Second,
			PollCron:      "*/5 * * * * *",
			MaxRetries:    5,
			ClaimDeadline: 30 * time.Second,
		},
		PolicyEngine: PolicyEngineConfig{
			UseTLS:      true,
			CallTimeout: 5 * time.Second,
		},
		Graph: GraphConfig{
			GraphName: "default",
			BatchSize: 1000,
		},
	}
}

// Load loads configuration from file (if present) and environment variables.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := New()

	if path := strings.TrimSpace(os.Getenv("CONFIG_FILE")); path != "" {
		if err := loadFromFile(path, cfg); err != nil {
			return nil, err
		}
	} else {
		_ = loadFromFile("configs/config.yaml", cfg)
	}

	if err := envdecode.Decode(cfg); err != nil {
		// envdecode errors out when no tagged fields are present in the
		// environment; treat that as "no overrides" so local runs work
		// without exporting every variable.
		if !strings.Contains(err.Error(), "none of the target fields were set") {
			return nil, fmt.Errorf("decode env: %w", err)
		}
	}

	applyDatabaseURLOverride(cfg)

	return cfg, nil
}

// LoadFile reads configuration from a YAML file, applying the same
// overrides as Load.
func LoadFile(path string) (*Config, error) {
	cfg := New()
	if err := loadFromFile(path, cfg); err != nil {
		return nil, err
	}
	applyDatabaseURLOverride(cfg)
	return cfg, nil
}

func loadFromFile(path string, cfg *Config) error {
	expanded, err := filepath.Abs(path)
	if err != nil {
		return err
	}
	data, err := os.ReadFile(expanded)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	return yaml.Unmarshal(data, cfg)
}

// applyDatabaseURLOverride lets DATABASE_URL override any file-based DSN,
// reducing setup friction in container environments that inject a single
// connection string.
func applyDatabaseURLOverride(cfg *Config) {
	if cfg == nil {
		return
	}
	if dsn := strings.TrimSpace(os.Getenv("DATABASE_URL")); dsn != "" {
		cfg.Database.DSN = dsn
	}
}
