package config

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/caarlos0/env/v6"
)

/*
Every setting comes from an environment variable; the most common ones also
have a command line flag. A set environment variable wins over the flag.

	RUN_ADDRESS   -a  address and port to listen on
	DATABASE_URI  -d  PostgreSQL DSN for the postgres backend
	STORE_BACKEND -s  postgres, rest or memory
	SECRET        -k  key that signs admin session cookies
*/

const (
	BackendPostgres = "postgres"
	BackendREST     = "rest"
	BackendMemory   = "memory"
)

var ErrUnknownBackend = errors.New("unknown store backend")

type ServerConfig struct {
	RunAddress   string `env:"RUN_ADDRESS"`
	DatabaseDSN  string `env:"DATABASE_URI"`
	StoreBackend string `env:"STORE_BACKEND"`
	StoreURL     string `env:"STORE_URL"`
	StoreAPIKey  string `env:"STORE_API_KEY"`
	StoreTable   string `env:"STORE_TABLE" envDefault:"orders"`
	SecretKey    string `env:"SECRET"`
	Secret       []byte

	CookieTTLSeconds int           `env:"AUTH_COOKIE_TTL" envDefault:"86400"`
	PollInterval     time.Duration `env:"POLL_INTERVAL" envDefault:"60s"`
	PollLimit        int           `env:"POLL_LIMIT" envDefault:"10"`
	CodeLength       int           `env:"CODE_LENGTH" envDefault:"12"`
	CodeMaxAttempts  int           `env:"CODE_MAX_ATTEMPTS" envDefault:"10"`
	RequestTimeout   time.Duration `env:"REQUEST_TIMEOUT" envDefault:"10s"`
	RequireOrderID   bool          `env:"REQUIRE_ORDER_ID"`
	AllowAdminSignup bool          `env:"ALLOW_ADMIN_SIGNUP"`
	AdminLogin       string        `env:"ADMIN_LOGIN"`
	AdminPassword    string        `env:"ADMIN_PASSWORD"`
	LogLevel         string        `env:"LOG_LEVEL" envDefault:"info"`
}

var ErrNotPositive = errors.New("must be positive")

func NewConfig() (*ServerConfig, error) {
	return parse(os.Args[1:])
}

func parse(args []string) (*ServerConfig, error) {
	var params ServerConfig
	err := env.Parse(&params)
	if err != nil {
		return nil, err
	}

	var commandLineParams ServerConfig

	flags := flag.NewFlagSet("redeemy", flag.ContinueOnError)
	flags.StringVar(&commandLineParams.RunAddress, "a", "localhost:8080", "Base address to listen on")
	flags.StringVar(&commandLineParams.DatabaseDSN, "d", "postgres://postgres@localhost:5432/redeemy?sslmode=disable", "Database DSN")
	flags.StringVar(&commandLineParams.StoreBackend, "s", BackendPostgres, "Store backend: postgres, rest or memory")
	flags.StringVar(&commandLineParams.SecretKey, "k", "secret", "Session signing secret")
	if err := flags.Parse(args); err != nil {
		return nil, err
	}

	if params.RunAddress == "" {
		params.RunAddress = commandLineParams.RunAddress
	}
	if params.DatabaseDSN == "" {
		params.DatabaseDSN = commandLineParams.DatabaseDSN
	}
	if params.StoreBackend == "" {
		params.StoreBackend = commandLineParams.StoreBackend
	}
	if params.SecretKey == "" {
		params.SecretKey = commandLineParams.SecretKey
	}

	switch params.StoreBackend {
	case BackendPostgres, BackendREST, BackendMemory:
	default:
		return nil, fmt.Errorf("%w %q", ErrUnknownBackend, params.StoreBackend)
	}
	if params.StoreBackend == BackendREST && params.StoreURL == "" {
		return nil, fmt.Errorf("STORE_URL is required for the %s backend", BackendREST)
	}

	for name, value := range map[string]int64{
		"AUTH_COOKIE_TTL":   int64(params.CookieTTLSeconds),
		"POLL_INTERVAL":     int64(params.PollInterval),
		"POLL_LIMIT":        int64(params.PollLimit),
		"CODE_LENGTH":       int64(params.CodeLength),
		"CODE_MAX_ATTEMPTS": int64(params.CodeMaxAttempts),
		"REQUEST_TIMEOUT":   int64(params.RequestTimeout),
	} {
		if value <= 0 {
			return nil, fmt.Errorf("%s %w", name, ErrNotPositive)
		}
	}

	params.Secret = []byte(params.SecretKey)
	return &params, nil
}
