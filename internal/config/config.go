// Package config loads runtime settings from a .env file, the environment
// and command-line flags, in that order of precedence (flags win).
package config

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	DriverMemory   = "memory"
	DriverFile     = "file"
	DriverRedis    = "redis"
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

const devJWTSecret = "dev-secret-change-me"

type Config struct {
	Addr              string
	StoreDriver       string
	DBFile            string
	DBDSN             string
	RedisAddr         string
	RedisKey          string
	SQLitePath        string
	JWTSecret         string
	BcryptCost        int
	MinPasswordLength int
	StaticDir         string
	ShutdownTimeout   time.Duration
}

func defaultConfig() Config {
	return Config{
		Addr:              ":3000",
		StoreDriver:       DriverFile,
		DBFile:            "database.json",
		RedisAddr:         "localhost:6379",
		RedisKey:          "relay-chat:state",
		SQLitePath:        "relay-chat.db",
		JWTSecret:         devJWTSecret,
		BcryptCost:        10,
		MinPasswordLength: 6,
		StaticDir:         "public",
		ShutdownTimeout:   10 * time.Second,
	}
}

// GetEnv returns the value of an environment variable or a default value
func GetEnv(key, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists && value != "" {
		return value
	}
	return defaultValue
}

// GetEnvInt returns a positive integer environment variable or a default value
func GetEnvInt(key string, defaultValue int) int {
	if value, err := strconv.Atoi(GetEnv(key, "")); err == nil && value > 0 {
		return value
	}
	return defaultValue
}

// Load reads .env (if present), the environment, then args.
func Load(args []string) (*Config, error) {
	// A missing .env is normal outside development.
	_ = godotenv.Load()

	cfg := defaultConfig()
	if port := GetEnv("PORT", ""); port != "" {
		cfg.Addr = ":" + strings.TrimPrefix(port, ":")
	}
	cfg.StoreDriver = strings.ToLower(GetEnv("STORE_DRIVER", cfg.StoreDriver))
	cfg.DBFile = GetEnv("DB_FILE", cfg.DBFile)
	cfg.DBDSN = GetEnv("DB_DSN", cfg.DBDSN)
	cfg.RedisAddr = GetEnv("REDIS_ADDR", cfg.RedisAddr)
	cfg.RedisKey = GetEnv("REDIS_KEY", cfg.RedisKey)
	cfg.SQLitePath = GetEnv("SQLITE_PATH", cfg.SQLitePath)
	cfg.JWTSecret = GetEnv("JWT_SECRET", cfg.JWTSecret)
	cfg.BcryptCost = GetEnvInt("BCRYPT_COST", cfg.BcryptCost)
	cfg.MinPasswordLength = GetEnvInt("MIN_PASSWORD_LENGTH", cfg.MinPasswordLength)
	cfg.StaticDir = GetEnv("STATIC_DIR", cfg.StaticDir)
	cfg.ShutdownTimeout = time.Duration(GetEnvInt("SHUTDOWN_TIMEOUT", int(cfg.ShutdownTimeout/time.Second))) * time.Second

	fs := flag.NewFlagSet("relay-chat", flag.ContinueOnError)
	fs.StringVar(&cfg.Addr, "addr", cfg.Addr, "http service address")
	fs.StringVar(&cfg.StoreDriver, "store", cfg.StoreDriver, "state backend: memory, file, redis, postgres, sqlite")
	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) Validate() error {
	switch c.StoreDriver {
	case DriverMemory, DriverRedis, DriverSQLite:
	case DriverFile:
		if c.DBFile == "" {
			return errors.New("DB_FILE is required for the file store")
		}
	case DriverPostgres:
		if c.DBDSN == "" {
			return errors.New("DB_DSN is required for the postgres store")
		}
	default:
		return fmt.Errorf("unknown STORE_DRIVER %q", c.StoreDriver)
	}
	if c.Addr == "" {
		return errors.New("listen address is empty")
	}
	return nil
}

// UsesDevSecret reports whether tokens are signed with the built-in secret.
func (c *Config) UsesDevSecret() bool {
	return c.JWTSecret == devJWTSecret
}
