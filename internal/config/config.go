package config

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/joho/godotenv"
)

const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

type Config struct {
	DBDriver       string
	DBDSN          string
	ServerPort     string
	SessionSecret  string
	SecureCookie   bool
	LogLevel       string
	LogJSON        bool
	LoginRateLimit string // ulule/limiter format, e.g. "10-M"
}

// Load reads settings from the environment, after loading a .env file if one
// exists. The session secret and database location are required.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		DBDriver:       strings.ToLower(os.Getenv("DB_DRIVER")),
		DBDSN:          os.Getenv("DB_DSN"),
		ServerPort:     os.Getenv("SERVER_PORT"),
		SessionSecret:  os.Getenv("SESSION_SECRET"),
		SecureCookie:   parseBool(os.Getenv("SECURE_COOKIE")),
		LogLevel:       strings.ToLower(os.Getenv("LOG_LEVEL")),
		LogJSON:        parseBool(os.Getenv("LOG_JSON")),
		LoginRateLimit: os.Getenv("LOGIN_RATE_LIMIT"),
	}

	if cfg.DBDriver == "" {
		cfg.DBDriver = DriverPostgres
	}
	if cfg.ServerPort == "" {
		cfg.ServerPort = "8080"
	}
	if cfg.LogLevel == "" {
		cfg.LogLevel = "info"
	}
	if cfg.LoginRateLimit == "" {
		cfg.LoginRateLimit = "10-M"
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) Validate() error {
	var errs []error
	if c.DBDSN == "" {
		errs = append(errs, errors.New("DB_DSN is not set"))
	}
	if c.SessionSecret == "" {
		errs = append(errs, errors.New("SESSION_SECRET is not set"))
	}
	switch c.DBDriver {
	case DriverPostgres, DriverSQLite:
	default:
		errs = append(errs, fmt.Errorf("DB_DRIVER %q is not supported", c.DBDriver))
	}
	return errors.Join(errs...)
}

func parseBool(s string) bool {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "1", "true", "yes", "on":
		return true
	}
	return false
}
