package config

import (
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all application configuration.
type Config struct {
	Server     ServerConfig     `mapstructure:"server"`
	Storage    StorageConfig    `mapstructure:"storage"`
	Database   DatabaseConfig   `mapstructure:"database"`
	Redis      RedisConfig      `mapstructure:"redis"`
	Ledger     LedgerConfig     `mapstructure:"ledger"`
	Token      TokenConfig      `mapstructure:"token"`
	Issuer     IssuerConfig     `mapstructure:"issuer"`
	KeyService KeyServiceConfig `mapstructure:"keyservice"`
	Nonce      NonceConfig      `mapstructure:"nonce"`
	Sweeper    SweeperConfig    `mapstructure:"sweeper"`
	RateLimit  RateLimitConfig  `mapstructure:"ratelimit"`
	Admin      AdminConfig      `mapstructure:"admin"`
	Log        LogConfig        `mapstructure:"log"`
}

type ServerConfig struct {
	Host        string `mapstructure:"host"`
	Port        int    `mapstructure:"port"`
	Mode        string `mapstructure:"mode"` // debug, release, test
	MaxBodySize int64  `mapstructure:"max_body_size"`
}

type StorageConfig struct {
	Driver string `mapstructure:"driver"` // postgres, memory
}

type DatabaseConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	User            string        `mapstructure:"user"`
	Password        string        `mapstructure:"password"`
	DBName          string        `mapstructure:"dbname"`
	SSLMode         string        `mapstructure:"sslmode"`
	MaxConns        int32         `mapstructure:"max_conns"`
	MinConns        int32         `mapstructure:"min_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	Isolation       string        `mapstructure:"isolation"` // read_committed, repeatable_read, serializable
	AutoMigrate     bool          `mapstructure:"auto_migrate"`
}

// DSN returns the PostgreSQL connection string.
func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		d.User, d.Password, d.Host, d.Port, d.DBName, d.SSLMode,
	)
}

type RedisConfig struct {
	Enabled  bool          `mapstructure:"enabled"`
	Host     string        `mapstructure:"host"`
	Port     int           `mapstructure:"port"`
	Password string        `mapstructure:"password"`
	DB       int           `mapstructure:"db"`
	PoolSize int           `mapstructure:"pool_size"`
	Timeout  time.Duration `mapstructure:"timeout"` // per command; nonce checks sit on the request path
}

// Addr returns the Redis address string.
func (r RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", r.Host, r.Port)
}

// LedgerConfig controls hold lifetimes and how token subjects map to accounts.
type LedgerConfig struct {
	AccountResolution string        `mapstructure:"account_resolution"` // id, subject
	SubjectPrefix     string        `mapstructure:"subject_prefix"`     // stripped before numeric id parsing, e.g. "user:"
	DefaultHoldTTL    time.Duration `mapstructure:"default_hold_ttl"`
	MinHoldTTL        time.Duration `mapstructure:"min_hold_ttl"`
	MaxHoldTTL        time.Duration `mapstructure:"max_hold_ttl"`
}

// TokenConfig controls ephemeral token issuance and verification.
type TokenConfig struct {
	DefaultTTL  time.Duration `mapstructure:"default_ttl"`
	MinTTL      time.Duration `mapstructure:"min_ttl"`
	MaxTTL      time.Duration `mapstructure:"max_ttl"`
	ClockSkew   time.Duration `mapstructure:"clock_skew"`
	PathPrefix  string        `mapstructure:"path_prefix"` // empty disables prefix-equivalent path matching
	KeyCacheTTL time.Duration `mapstructure:"key_cache_ttl"`
	AltHeader   string        `mapstructure:"alt_header"`
	Network     string        `mapstructure:"network"`
}

// IssuerConfig holds the Ed25519 signing identity. Seed is the base64 32-byte seed.
// Address defaults to the Algorand-style address derived from the public key.
type IssuerConfig struct {
	Seed    string `mapstructure:"seed"`
	Address string `mapstructure:"address"`
}

// SeedBytes decodes the configured seed.
func (i IssuerConfig) SeedBytes() ([]byte, error) {
	if i.Seed == "" {
		return nil, nil
	}
	b, err := base64.StdEncoding.DecodeString(i.Seed)
	if err != nil {
		return nil, fmt.Errorf("decoding issuer seed: %w", err)
	}
	if len(b) != 32 {
		return nil, fmt.Errorf("issuer seed must be 32 bytes, got %d", len(b))
	}
	return b, nil
}

// KeyServiceConfig points at the external service publishing the issuer public key.
// An empty URL makes the verifier use the local issuer key.
type KeyServiceConfig struct {
	URL     string        `mapstructure:"url"`
	Timeout time.Duration `mapstructure:"timeout"`
}

type NonceConfig struct {
	Backend string `mapstructure:"backend"` // postgres, redis, memory
}

// SweeperConfig drives expiry sweeps. The API runs one in-process every
// Interval; zero leaves sweeping to cmd/sweeper.
type SweeperConfig struct {
	Interval       time.Duration `mapstructure:"interval"`
	BatchSize      int           `mapstructure:"batch_size"`
	NonceRetention time.Duration `mapstructure:"nonce_retention"`
}

type RateLimitConfig struct {
	Enabled bool `mapstructure:"enabled"`
}

// AdminConfig protects operator routes (token issuance, adjustments, sweeps).
type AdminConfig struct {
	APIKeyHash string `mapstructure:"api_key_hash"` // argon2id encoded hash
}

type LogConfig struct {
	Level  string `mapstructure:"level"`  // debug, info, warn, error
	Pretty bool   `mapstructure:"pretty"` // human-readable output (dev only)
}

// Load reads configuration from file and environment variables.
// Environment variables override file values. Prefix: MCG_ (MicroCredit Gateway).
// Nested keys use underscore: MCG_DATABASE_HOST, MCG_ISSUER_SEED, etc.
func Load(path string) (*Config, error) {
	v := viper.New()

	// Defaults
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.mode", "debug")
	v.SetDefault("server.max_body_size", 1<<20)
	v.SetDefault("storage.driver", "postgres")
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "postgres")
	v.SetDefault("database.password", "postgres")
	v.SetDefault("database.dbname", "microcredit")
	v.SetDefault("database.sslmode", "disable")
	v.SetDefault("database.max_conns", 20)
	v.SetDefault("database.min_conns", 5)
	v.SetDefault("database.conn_max_lifetime", "30m")
	v.SetDefault("database.isolation", "read_committed")
	v.SetDefault("database.auto_migrate", true)
	v.SetDefault("redis.enabled", true)
	v.SetDefault("redis.host", "localhost")
	v.SetDefault("redis.port", 6379)
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.pool_size", 20)
	v.SetDefault("redis.timeout", "500ms")
	v.SetDefault("ledger.account_resolution", "id")
	v.SetDefault("ledger.subject_prefix", "user:")
	v.SetDefault("ledger.default_hold_ttl", "900s")
	v.SetDefault("ledger.min_hold_ttl", "10s")
	v.SetDefault("ledger.max_hold_ttl", "24h")
	v.SetDefault("token.default_ttl", "60s")
	v.SetDefault("token.min_ttl", "10s")
	v.SetDefault("token.max_ttl", "300s")
	v.SetDefault("token.clock_skew", "5s")
	v.SetDefault("token.path_prefix", "/api")
	v.SetDefault("token.key_cache_ttl", "10m")
	v.SetDefault("token.alt_header", "X-Ephemeral-Token")
	v.SetDefault("token.network", "testnet")
	v.SetDefault("issuer.seed", "")
	v.SetDefault("issuer.address", "")
	v.SetDefault("keyservice.url", "")
	v.SetDefault("keyservice.timeout", "8s")
	v.SetDefault("nonce.backend", "postgres")
	v.SetDefault("sweeper.interval", "30s")
	v.SetDefault("sweeper.batch_size", 500)
	v.SetDefault("sweeper.nonce_retention", "24h")
	v.SetDefault("ratelimit.enabled", true)
	v.SetDefault("admin.api_key_hash", "")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.pretty", false)

	// File config
	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
	}

	// Environment variables: MCG_DATABASE_HOST -> database.host
	v.SetEnvPrefix("MCG")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Read config file (not required, env vars can suffice)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	return &cfg, nil
}

// Validate checks cross-field constraints that defaults alone cannot guarantee.
func (c *Config) Validate() error {
	var errs []error

	switch c.Storage.Driver {
	case "postgres", "memory":
	default:
		errs = append(errs, fmt.Errorf("storage.driver: unsupported %q", c.Storage.Driver))
	}

	switch c.Ledger.AccountResolution {
	case "id", "subject":
	default:
		errs = append(errs, fmt.Errorf("ledger.account_resolution: unsupported %q", c.Ledger.AccountResolution))
	}
	if c.Ledger.MinHoldTTL <= 0 || c.Ledger.MaxHoldTTL < c.Ledger.MinHoldTTL {
		errs = append(errs, errors.New("ledger: hold ttl bounds are invalid"))
	}
	if c.Ledger.DefaultHoldTTL < c.Ledger.MinHoldTTL || c.Ledger.DefaultHoldTTL > c.Ledger.MaxHoldTTL {
		errs = append(errs, errors.New("ledger.default_hold_ttl: outside bounds"))
	}

	if c.Token.MinTTL <= 0 || c.Token.MaxTTL < c.Token.MinTTL {
		errs = append(errs, errors.New("token: ttl bounds are invalid"))
	}
	if c.Token.DefaultTTL < c.Token.MinTTL || c.Token.DefaultTTL > c.Token.MaxTTL {
		errs = append(errs, errors.New("token.default_ttl: outside bounds"))
	}
	if c.Token.PathPrefix != "" && (!strings.HasPrefix(c.Token.PathPrefix, "/") || strings.HasSuffix(c.Token.PathPrefix, "/")) {
		errs = append(errs, errors.New("token.path_prefix: must start with '/' and not end with '/'"))
	}

	switch c.Nonce.Backend {
	case "postgres", "redis", "memory":
	default:
		errs = append(errs, fmt.Errorf("nonce.backend: unsupported %q", c.Nonce.Backend))
	}
	if c.Nonce.Backend == "redis" && !c.Redis.Enabled {
		errs = append(errs, errors.New("nonce.backend=redis requires redis.enabled"))
	}
	if c.Nonce.Backend == "postgres" && c.Storage.Driver != "postgres" {
		errs = append(errs, errors.New("nonce.backend=postgres requires storage.driver=postgres"))
	}

	if _, err := c.Issuer.SeedBytes(); err != nil {
		errs = append(errs, err)
	}

	if c.Sweeper.Interval < 0 {
		errs = append(errs, errors.New("sweeper.interval: must not be negative"))
	}
	if c.Sweeper.BatchSize <= 0 {
		errs = append(errs, errors.New("sweeper.batch_size: must be positive"))
	}

	return errors.Join(errs...)
}
