package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Store    StoreConfig    `yaml:"store"`
	Secrets  SecretsConfig  `yaml:"secrets"`
	Password PasswordConfig `yaml:"password"`
	Log      LogConfig      `yaml:"log"`
}

type ServerConfig struct {
	Host    string `yaml:"host"`
	Port    int    `yaml:"port"`
	BaseURL string `yaml:"base_url"`
	// OwnerHeader carries the authenticated user id set by the identity proxy.
	OwnerHeader     string        `yaml:"owner_header"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

type StoreConfig struct {
	Type     string         `yaml:"type"`
	Redis    RedisConfig    `yaml:"redis"`
	Postgres PostgresConfig `yaml:"postgres"`
	// PurgeAfter is how long records outlive their expiry. Zero keeps them.
	PurgeAfter      time.Duration `yaml:"purge_after"`
	CleanupInterval time.Duration `yaml:"cleanup_interval"`
}

type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

type PostgresConfig struct {
	URL           string        `yaml:"url"`
	MaxConns      int32         `yaml:"max_conns"`
	Migrate       bool          `yaml:"migrate"`
	RetryAttempts int           `yaml:"retry_attempts"`
	RetryInterval time.Duration `yaml:"retry_interval"`
}

type SecretsConfig struct {
	MaxTTL             time.Duration `yaml:"max_ttl"`
	MaxCiphertextBytes int           `yaml:"max_ciphertext_bytes"`
}

// PasswordConfig holds the argon2id work factor.
type PasswordConfig struct {
	MemoryKiB   uint32 `yaml:"memory_kib"`
	Iterations  uint32 `yaml:"iterations"`
	Parallelism uint8  `yaml:"parallelism"`
	KeyLength   uint32 `yaml:"key_length"`
	SaltLength  uint32 `yaml:"salt_length"`
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Host:            "0.0.0.0",
			Port:            8080,
			BaseURL:         "http://localhost:8080",
			OwnerHeader:     "X-User-ID",
			ShutdownTimeout: 10 * time.Second,
		},
		Store: StoreConfig{
			Type: "memory",
			Redis: RedisConfig{
				Addr:     "localhost:6379",
				Password: "",
				DB:       0,
			},
			Postgres: PostgresConfig{
				MaxConns:      10,
				Migrate:       true,
				RetryAttempts: 3,
				RetryInterval: 2 * time.Second,
			},
			PurgeAfter:      7 * 24 * time.Hour,
			CleanupInterval: time.Minute,
		},
		Secrets: SecretsConfig{
			MaxTTL:             30 * 24 * time.Hour,
			MaxCiphertextBytes: 64 * 1024,
		},
		Password: PasswordConfig{
			MemoryKiB:   64 * 1024,
			Iterations:  3,
			Parallelism: 4,
			KeyLength:   32,
			SaltLength:  16,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

func Load(path string) (*Config, error) {
	// A missing .env is fine.
	_ = godotenv.Load()

	cfg := Default()

	if path != "" {
		if err := cfg.loadFromFile(path); err != nil {
			return nil, err
		}
	}

	cfg.loadFromEnv()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) loadFromFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil // File not found is OK, use defaults
		}
		return fmt.Errorf("reading config file: %w", err)
	}

	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("parsing config file: %w", err)
	}

	return nil
}

func (c *Config) loadFromEnv() {
	// Server
	if v := os.Getenv("HOST"); v != "" {
		c.Server.Host = v
	}
	if v := os.Getenv("PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			c.Server.Port = port
		}
	}
	if v := os.Getenv("BASE_URL"); v != "" {
		c.Server.BaseURL = v
	}
	if v := os.Getenv("OWNER_HEADER"); v != "" {
		c.Server.OwnerHeader = v
	}

	// Store
	if v := os.Getenv("STORE_TYPE"); v != "" {
		c.Store.Type = v
	}
	if v := os.Getenv("REDIS_ADDR"); v != "" {
		c.Store.Redis.Addr = v
	}
	if v := os.Getenv("REDIS_PASSWORD"); v != "" {
		c.Store.Redis.Password = v
	}
	if v := os.Getenv("REDIS_DB"); v != "" {
		if db, err := strconv.Atoi(v); err == nil {
			c.Store.Redis.DB = db
		}
	}
	if v := os.Getenv("POSTGRES_URL"); v != "" {
		c.Store.Postgres.URL = v
	}
	if v := os.Getenv("POSTGRES_MIGRATE"); v != "" {
		c.Store.Postgres.Migrate = v == "true" || v == "1"
	}
	if v := os.Getenv("PURGE_AFTER"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			c.Store.PurgeAfter = d
		}
	}

	// Secrets
	if v := os.Getenv("MAX_TTL"); v != "" {
		if ttl, err := time.ParseDuration(v); err == nil {
			c.Secrets.MaxTTL = ttl
		}
	}
	if v := os.Getenv("MAX_CIPHERTEXT_BYTES"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.Secrets.MaxCiphertextBytes = n
		}
	}

	// Password hashing
	if v := os.Getenv("ARGON2_MEMORY_KIB"); v != "" {
		if n, err := strconv.ParseUint(v, 10, 32); err == nil {
			c.Password.MemoryKiB = uint32(n)
		}
	}
	if v := os.Getenv("ARGON2_ITERATIONS"); v != "" {
		if n, err := strconv.ParseUint(v, 10, 32); err == nil {
			c.Password.Iterations = uint32(n)
		}
	}
	if v := os.Getenv("ARGON2_PARALLELISM"); v != "" {
		if n, err := strconv.ParseUint(v, 10, 8); err == nil {
			c.Password.Parallelism = uint8(n)
		}
	}

	// Logging
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		c.Log.Level = v
	}
	if v := os.Getenv("LOG_FORMAT"); v != "" {
		c.Log.Format = v
	}
}

func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid port: %d", c.Server.Port)
	}

	if c.Server.BaseURL == "" {
		return fmt.Errorf("base_url is required")
	}

	if c.Server.OwnerHeader == "" {
		return fmt.Errorf("owner_header is required")
	}

	switch c.Store.Type {
	case "memory":
	case "redis":
		if c.Store.Redis.Addr == "" {
			return fmt.Errorf("redis addr is required when store type is 'redis'")
		}
	case "postgres":
		if c.Store.Postgres.URL == "" {
			return fmt.Errorf("postgres url is required when store type is 'postgres'")
		}
	default:
		return fmt.Errorf("invalid store type: %s (must be 'memory', 'redis' or 'postgres')", c.Store.Type)
	}

	if c.Store.PurgeAfter < 0 {
		return fmt.Errorf("purge_after must not be negative")
	}

	if c.Secrets.MaxTTL <= 0 {
		return fmt.Errorf("max_ttl must be positive")
	}

	// Keep the hash memory-hard: at least 19 MiB and two passes.
	if c.Password.MemoryKiB < 19*1024 {
		return fmt.Errorf("password.memory_kib must be at least %d", 19*1024)
	}
	if c.Password.Iterations < 2 {
		return fmt.Errorf("password.iterations must be at least 2")
	}
	if c.Password.Parallelism < 1 {
		return fmt.Errorf("password.parallelism must be at least 1")
	}
	if c.Password.KeyLength < 16 || c.Password.SaltLength < 16 {
		return fmt.Errorf("password key_length and salt_length must be at least 16")
	}

	if c.Log.Format != "json" && c.Log.Format != "text" {
		return fmt.Errorf("invalid log format: %s (must be 'json' or 'text')", c.Log.Format)
	}

	return nil
}

func (c *Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}
