package config

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"os"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
)

const (
	EnvLocal = "local"
	EnvDev   = "dev"
	EnvProd  = "prod"
)

type Config struct {
	Env        string `yaml:"env" env:"APP_ENV" env-default:"local"`
	Version    string `yaml:"version" env:"APP_VERSION" env-default:"dev"`
	HTTPServer `yaml:"http_server"`
	Database   `yaml:"database"`
	Auth       `yaml:"auth"`
	Redis      `yaml:"redis"`
	Storage    `yaml:"storage"`
	Log        `yaml:"log"`
}

type HTTPServer struct {
	Address         string        `yaml:"address" env:"SERVER_ADDR" env-default:":5000"`
	ReadTimeout     time.Duration `yaml:"read_timeout" env:"SERVER_READ_TIMEOUT" env-default:"10s"`
	WriteTimeout    time.Duration `yaml:"write_timeout" env:"SERVER_WRITE_TIMEOUT" env-default:"30s"`
	IdleTimeout     time.Duration `yaml:"idle_timeout" env:"SERVER_IDLE_TIMEOUT" env-default:"60s"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" env:"SERVER_SHUTDOWN_TIMEOUT" env-default:"15s"`
	AllowedOrigins  []string      `yaml:"allowed_origins" env:"CORS_ALLOWED_ORIGINS" env-separator:"," env-default:"http://localhost:3000"`
}

// Database selects the SQL driver: postgres (lib/pq), pgx or sqlite.
type Database struct {
	Driver          string        `yaml:"driver" env:"DB_DRIVER" env-default:"sqlite"`
	DSN             string        `yaml:"dsn" env:"DB_DSN" env-default:"file:financetracker.db?_pragma=foreign_keys(1)"`
	MaxOpenConns    int           `yaml:"max_open_conns" env:"DB_MAX_OPEN_CONNS" env-default:"25"`
	MaxIdleConns    int           `yaml:"max_idle_conns" env:"DB_MAX_IDLE_CONNS" env-default:"10"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime" env:"DB_CONN_MAX_LIFETIME" env-default:"5m"`
}

type Auth struct {
	JWTSecret  string        `yaml:"jwt_secret" env:"JWT_SECRET"`
	TokenTTL   time.Duration `yaml:"token_ttl" env:"JWT_TTL" env-default:"168h"`
	Issuer     string        `yaml:"issuer" env:"JWT_ISSUER" env-default:"financetracker"`
	BcryptCost int           `yaml:"bcrypt_cost" env:"BCRYPT_COST" env-default:"12"`
}

// Redis is optional; an empty Addr disables caching.
type Redis struct {
	Addr     string        `yaml:"addr" env:"REDIS_ADDR"`
	Password string        `yaml:"password" env:"REDIS_PASSWORD"`
	DB       int           `yaml:"db" env:"REDIS_DB" env-default:"0"`
	CacheTTL time.Duration `yaml:"cache_ttl" env:"REDIS_CACHE_TTL" env-default:"1m"`
}

// Storage holds the export archive backend: none, minio or s3.
type Storage struct {
	Backend      string        `yaml:"backend" env:"STORAGE_BACKEND" env-default:"none"`
	Endpoint     string        `yaml:"endpoint" env:"STORAGE_ENDPOINT"`
	Region       string        `yaml:"region" env:"STORAGE_REGION" env-default:"us-east-1"`
	AccessKey    string        `yaml:"access_key" env:"STORAGE_ACCESS_KEY"`
	SecretKey    string        `yaml:"secret_key" env:"STORAGE_SECRET_KEY"`
	Bucket       string        `yaml:"bucket" env:"STORAGE_BUCKET" env-default:"finance-exports"`
	UseSSL       bool          `yaml:"use_ssl" env:"STORAGE_USE_SSL" env-default:"false"`
	UsePathStyle bool          `yaml:"use_path_style" env:"STORAGE_USE_PATH_STYLE" env-default:"true"`
	PresignTTL   time.Duration `yaml:"presign_ttl" env:"STORAGE_PRESIGN_TTL" env-default:"15m"`
}

type Log struct {
	Level string `yaml:"level" env:"LOG_LEVEL" env-default:"info"`
}

// Load reads path (when non-empty) and then applies environment overrides.
func Load(path string) (*Config, error) {
	var cfg Config

	if path != "" {
		if _, err := os.Stat(path); err != nil {
			return nil, fmt.Errorf("config file %s: %w", path, err)
		}
		if err := cleanenv.ReadConfig(path, &cfg); err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
	} else if err := cleanenv.ReadEnv(&cfg); err != nil {
		return nil, fmt.Errorf("read env: %w", err)
	}

	if cfg.Env == EnvLocal && cfg.JWTSecret == "" {
		cfg.JWTSecret = generateDefaultSecret()
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// MustLoad is Load for main packages.
func MustLoad(path string) *Config {
	cfg, err := Load(path)
	if err != nil {
		panic(fmt.Sprintf("failed to load config: %v", err))
	}
	return cfg
}

func (c *Config) Validate() error {
	switch c.Env {
	case EnvLocal, EnvDev, EnvProd:
	default:
		return fmt.Errorf("config: unknown env %q", c.Env)
	}
	if c.JWTSecret == "" {
		return fmt.Errorf("config: JWT_SECRET is required in %s", c.Env)
	}
	if c.TokenTTL <= 0 {
		return fmt.Errorf("config: token ttl must be positive")
	}
	switch c.Driver {
	case "postgres", "pgx", "sqlite":
	default:
		return fmt.Errorf("config: unsupported database driver %q", c.Driver)
	}
	switch c.Backend {
	case "none", "minio", "s3":
	default:
		return fmt.Errorf("config: unsupported storage backend %q", c.Backend)
	}
	return nil
}

func generateDefaultSecret() string {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "dev-secret-change-in-production"
	}
	return hex.EncodeToString(b)
}
