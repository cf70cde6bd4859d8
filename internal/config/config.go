package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"
)

// EnvPrefix is the prefix for environment overrides, e.g. AUCTIONHOUSE_STORAGE_DRIVER.
const EnvPrefix = "AUCTIONHOUSE"

// Config represents the application configuration.
type Config struct {
	Storage        StorageConfig        `yaml:"storage"`
	Auction        AuctionConfig        `yaml:"auction"`
	Mailbox        MailboxConfig        `yaml:"mailbox"`
	Economy        EconomyConfig        `yaml:"economy"`
	Scheduler      SchedulerConfig      `yaml:"scheduler"`
	Server         ServerConfig         `yaml:"server"`
	Telemetry      TelemetryConfig      `yaml:"telemetry"`
	LeaderElection LeaderElectionConfig `yaml:"leader_election"`
	Announce       AnnounceConfig       `yaml:"announce"`
}

// StorageConfig selects and configures the snapshot backend.
type StorageConfig struct {
	Driver   string         `yaml:"driver" validate:"oneof=file sqlite postgres memory"`
	Dir      string         `yaml:"dir"`
	SQLite   SQLiteConfig   `yaml:"sqlite"`
	Postgres PostgresConfig `yaml:"postgres"`
}

// SQLiteConfig holds settings for the sqlite backend.
type SQLiteConfig struct {
	Path string `yaml:"path"`
}

// PostgresConfig holds Postgres connection settings.
type PostgresConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	DBName   string `yaml:"dbname"`
	SSLMode  string `yaml:"sslmode"`
}

// DSN returns the Postgres connection string.
func (d PostgresConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		d.Host, d.Port, d.User, d.Password, d.DBName, d.SSLMode,
	)
}

// AuctionConfig holds listing rules.
type AuctionConfig struct {
	MinPrice             float64       `yaml:"min_price" validate:"gt=0"`
	MaxListingsPerPlayer int           `yaml:"max_listings_per_player" validate:"gte=0"`
	DefaultDuration      time.Duration `yaml:"default_duration" validate:"gt=0"`
	MaxDuration          time.Duration `yaml:"max_duration" validate:"gt=0"`
	// SaleFeePercent is withheld from the seller's proceeds.
	SaleFeePercent float64       `yaml:"sale_fee_percent" validate:"gte=0,lt=100"`
	SessionTTL     time.Duration `yaml:"session_ttl" validate:"gt=0"`
}

// MailboxConfig holds mailbox settings.
type MailboxConfig struct {
	RetentionDays int `yaml:"retention_days" validate:"gt=0"`
	ClaimAllLimit int `yaml:"claim_all_limit" validate:"gt=0"`
}

// EconomyConfig holds settings for the bundled ledger.
type EconomyConfig struct {
	CurrencySymbol  string  `yaml:"currency_symbol"`
	StartingBalance float64 `yaml:"starting_balance" validate:"gte=0"`
}

// SchedulerConfig holds sweep cadence and locking settings.
type SchedulerConfig struct {
	ExpiryInterval       time.Duration `yaml:"expiry_interval" validate:"gt=0"`
	ExpiryBatchSize      int           `yaml:"expiry_batch_size" validate:"gt=0"`
	RetentionInterval    time.Duration `yaml:"retention_interval" validate:"gt=0"`
	MailboxRetentionDays int           `yaml:"mailbox_retention_days" validate:"gte=0"`
	AuctionRetentionDays int           `yaml:"auction_retention_days" validate:"gte=0"`
	RedisAddr            string        `yaml:"redis_addr"`
	RedisPassword        string        `yaml:"redis_password"`
	RedisDB              int           `yaml:"redis_db"`
	LockTTL              time.Duration `yaml:"lock_ttl"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port            int           `yaml:"port" validate:"min=1,max=65535"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// TelemetryConfig holds OpenTelemetry settings.
type TelemetryConfig struct {
	ServiceName    string `yaml:"service_name"`
	ServiceVersion string `yaml:"service_version"`
	OTLPEndpoint   string `yaml:"otlp_endpoint"`
	Insecure       bool   `yaml:"insecure"`
}

// LeaderElectionConfig holds Kubernetes leader election settings.
type LeaderElectionConfig struct {
	Enabled        bool          `yaml:"enabled"`
	LeaseName      string        `yaml:"lease_name"`
	LeaseNamespace string        `yaml:"lease_namespace"`
	LeaseDuration  time.Duration `yaml:"lease_duration"`
	RenewDeadline  time.Duration `yaml:"renew_deadline"`
	RetryPeriod    time.Duration `yaml:"retry_period"`
}

// AnnounceConfig controls Discord announcements of listings and sales.
type AnnounceConfig struct {
	Enabled     bool   `yaml:"enabled"`
	Token       string `yaml:"token"`
	ChannelID   string `yaml:"channel_id"`
	NewListings bool   `yaml:"new_listings"`
	Sales       bool   `yaml:"sales"`
}

// Defaults returns the built-in configuration.
func Defaults() *Config {
	return &Config{
		Storage: StorageConfig{
			Driver: "file",
			Dir:    "data",
			SQLite: SQLiteConfig{Path: "data/auctionhouse.db"},
			Postgres: PostgresConfig{
				Host:    "localhost",
				Port:    5432,
				SSLMode: "disable",
			},
		},
		Auction: AuctionConfig{
			MinPrice:             1.0,
			MaxListingsPerPlayer: 5,
			DefaultDuration:      24 * time.Hour,
			MaxDuration:          7 * 24 * time.Hour,
			SessionTTL:           5 * time.Minute,
		},
		Mailbox: MailboxConfig{
			RetentionDays: 30,
			ClaimAllLimit: 100,
		},
		Economy: EconomyConfig{
			CurrencySymbol: "$",
		},
		Scheduler: SchedulerConfig{
			ExpiryInterval:       time.Minute,
			ExpiryBatchSize:      100,
			RetentionInterval:    24 * time.Hour,
			MailboxRetentionDays: 7,
			LockTTL:              10 * time.Minute,
		},
		Server: ServerConfig{
			Port:            8080,
			ShutdownTimeout: 15 * time.Second,
		},
		Telemetry: TelemetryConfig{
			ServiceName:    "auctionhouse",
			ServiceVersion: "0.1.0",
		},
		LeaderElection: LeaderElectionConfig{
			Enabled:        false,
			LeaseName:      "auctionhouse-leader",
			LeaseNamespace: "default",
			LeaseDuration:  15 * time.Second,
			RenewDeadline:  10 * time.Second,
			RetryPeriod:    2 * time.Second,
		},
		Announce: AnnounceConfig{
			NewListings: true,
			Sales:       true,
		},
	}
}

// Load reads a YAML configuration file from the given path, applies
// AUCTIONHOUSE_* environment overrides and validates the result. A missing
// file is not an error; defaults and the environment still apply.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	data, err := os.ReadFile(filepath.Clean(path))
	switch {
	case errors.Is(err, os.ErrNotExist):
	case err != nil:
		return nil, fmt.Errorf("reading config file: %w", err)
	default:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing config file: %w", err)
		}
	}

	if err := envconfig.Process(EnvPrefix, cfg); err != nil {
		return nil, fmt.Errorf("applying environment overrides: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

var structValidator = validator.New()

// validate checks configuration invariants.
func (c *Config) validate() error {
	if err := structValidator.Struct(c); err != nil {
		return err
	}
	if c.Auction.DefaultDuration > c.Auction.MaxDuration {
		return fmt.Errorf("auction.default_duration %s exceeds auction.max_duration %s",
			c.Auction.DefaultDuration, c.Auction.MaxDuration)
	}
	switch c.Storage.Driver {
	case "file":
		if c.Storage.Dir == "" {
			return errors.New("storage.dir is required for the file driver")
		}
	case "sqlite":
		if c.Storage.SQLite.Path == "" {
			return errors.New("storage.sqlite.path is required for the sqlite driver")
		}
	case "postgres":
		if c.Storage.Postgres.DBName == "" {
			return errors.New("storage.postgres.dbname is required for the postgres driver")
		}
	}
	if c.Announce.Enabled && (c.Announce.Token == "" || c.Announce.ChannelID == "") {
		return errors.New("announce.token and announce.channel_id are required when announce.enabled is set")
	}
	return nil
}
