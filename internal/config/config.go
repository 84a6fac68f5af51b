// Package config loads server settings from flags, with defaults taken from
// CXGAME_* environment variables.
package config

import (
	"bufio"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

// DefaultAdminSecret is the well-known secret a server should never run with.
const DefaultAdminSecret = "admin_admin"

// Config is the full server configuration.
type Config struct {
	ExchangePort int
	FeedPort     int
	Bind         string

	TimeLimit time.Duration
	UserLimit int
	Started   bool

	StartPrice    decimal.Decimal
	CurrencyStart decimal.Decimal
	AssetStart    decimal.Decimal

	WhitelistPath string
	Whitelist     []string

	AdminSecret string
	TokenSecret string
	PemFile     string

	DatabaseURL   string
	MigrationsDir string
	AMQPURL       string
	AMQPExchange  string

	LogLevel logrus.Level
}

// ExchangeAddr is the listen address of the command endpoint.
func (c *Config) ExchangeAddr() string { return fmt.Sprintf("%s:%d", c.Bind, c.ExchangePort) }

// FeedAddr is the listen address of the feed endpoint.
func (c *Config) FeedAddr() string { return fmt.Sprintf("%s:%d", c.Bind, c.FeedPort) }

// GetEnv reads key from the environment, falling back to defaultValue when
// it is unset.
func GetEnv[T any](key string, defaultValue T) (T, error) {
	v, exists := os.LookupEnv(key)
	if !exists {
		return defaultValue, nil
	}

	var err error
	var parsed any

	switch any(defaultValue).(type) {
	case string:
		return any(v).(T), nil
	case int:
		parsed, err = strconv.Atoi(v)
	case bool:
		parsed, err = strconv.ParseBool(v)
	case time.Duration:
		parsed, err = time.ParseDuration(v)
	case decimal.Decimal:
		parsed, err = decimal.NewFromString(v)
	default:
		return defaultValue, fmt.Errorf("unsupported type for env var %s: %T", key, defaultValue)
	}

	if err != nil {
		return defaultValue, fmt.Errorf("failed to parse env %s as %T: %w", key, defaultValue, err)
	}
	return parsed.(T), nil
}

// envDefaults collects GetEnv errors so Load can report the first one.
type envDefaults struct{ err error }

func envOr[T any](e *envDefaults, key string, def T) T {
	v, err := GetEnv(key, def)
	if err != nil && e.err == nil {
		e.err = err
	}
	return v
}

// decimalFlag adapts a decimal to flag.Value.
type decimalFlag struct{ d *decimal.Decimal }

func (f decimalFlag) String() string {
	if f.d == nil {
		return ""
	}
	return f.d.String()
}

func (f decimalFlag) Set(s string) error {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return err
	}
	*f.d = d
	return nil
}

// Load parses args (without the program name).
func Load(args []string) (*Config, error) {
	env := &envDefaults{}
	cfg := &Config{
		StartPrice:    envOr(env, "CXGAME_START_PRICE", decimal.RequireFromString("1000.00")),
		CurrencyStart: envOr(env, "CXGAME_USD_START", decimal.RequireFromString("10000.00")),
		AssetStart:    envOr(env, "CXGAME_CRYPTO_START", decimal.RequireFromString("10.0")),
	}
	var logLevel string

	fs := flag.NewFlagSet("cxserver", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	fs.IntVar(&cfg.ExchangePort, "exchange-port", envOr(env, "CXGAME_EXCHANGE_PORT", 9877), "Exchange server listen port.")
	fs.IntVar(&cfg.FeedPort, "feed-port", envOr(env, "CXGAME_FEED_PORT", 9876), "Feed server listen port.")
	fs.StringVar(&cfg.Bind, "bind", envOr(env, "CXGAME_BIND", "0.0.0.0"), "The address to listen on.")
	fs.DurationVar(&cfg.TimeLimit, "time-limit", envOr(env, "CXGAME_TIME_LIMIT", time.Duration(0)), "How long the exchange stays open (0 for no limit).")
	fs.IntVar(&cfg.UserLimit, "user-limit", envOr(env, "CXGAME_USER_LIMIT", 0), "Max number of registered users (0 for no limit).")
	fs.BoolVar(&cfg.Started, "started", envOr(env, "CXGAME_STARTED", true), "Accept trading commands at boot; when false the server waits for the admin \"start\" command.")
	fs.Var(decimalFlag{&cfg.StartPrice}, "start-price", "Initial market price.")
	fs.Var(decimalFlag{&cfg.CurrencyStart}, "usd-start", "Amount of USD each user starts with.")
	fs.Var(decimalFlag{&cfg.AssetStart}, "crypto-start", "Amount of cryptocurrency each user starts with.")
	fs.StringVar(&cfg.WhitelistPath, "whitelist", envOr(env, "CXGAME_WHITELIST", ""), "Path to a newline separated list of allowed usernames.")
	fs.StringVar(&cfg.AdminSecret, "admin-secret", envOr(env, "CXGAME_ADMIN_SECRET", DefaultAdminSecret), "The server admin password.")
	fs.StringVar(&cfg.TokenSecret, "token-secret", envOr(env, "CXGAME_TOKEN_SECRET", ""), "Key used to sign user tokens (random when empty).")
	fs.StringVar(&cfg.PemFile, "pem-file", envOr(env, "CXGAME_PEM_FILE", ""), "Path to a PEM file holding certificate and key (enables TLS).")
	fs.StringVar(&cfg.DatabaseURL, "database-url", envOr(env, "CXGAME_DATABASE_URL", ""), "PostgreSQL URL for the event journal (disabled when empty).")
	fs.StringVar(&cfg.MigrationsDir, "migrations", envOr(env, "CXGAME_MIGRATIONS", "migrations"), "Directory of SQL migrations applied to the journal database.")
	fs.StringVar(&cfg.AMQPURL, "amqp-url", envOr(env, "CXGAME_AMQP_URL", ""), "RabbitMQ URL to mirror the feed to (disabled when empty).")
	fs.StringVar(&cfg.AMQPExchange, "amqp-exchange", envOr(env, "CXGAME_AMQP_EXCHANGE", "cxgame.feed"), "RabbitMQ exchange the feed is published to.")
	fs.StringVar(&logLevel, "log-level", envOr(env, "CXGAME_LOG_LEVEL", "info"), "Log level.")

	if env.err != nil {
		return nil, env.err
	}
	if err := fs.Parse(args); err != nil {
		return nil, fmt.Errorf("failed to parse flags: %w", err)
	}

	level, err := logrus.ParseLevel(logLevel)
	if err != nil {
		return nil, fmt.Errorf("invalid log level: %w", err)
	}
	cfg.LogLevel = level

	if cfg.WhitelistPath != "" {
		f, err := os.Open(cfg.WhitelistPath)
		if err != nil {
			return nil, fmt.Errorf("failed to open whitelist: %w", err)
		}
		defer f.Close()
		if cfg.Whitelist, err = LoadWhitelist(f); err != nil {
			return nil, err
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks settings that cannot work together.
func (c *Config) Validate() error {
	if c.ExchangePort == c.FeedPort {
		return errors.New("feed port and exchange port cannot be the same")
	}
	if c.AdminSecret == "" {
		return errors.New("admin secret cannot be empty")
	}
	if c.CurrencyStart.IsNegative() || c.AssetStart.IsNegative() {
		return errors.New("starting balances cannot be negative")
	}
	if !c.StartPrice.IsPositive() {
		return errors.New("start price must be positive")
	}
	if c.TimeLimit < 0 || c.UserLimit < 0 {
		return errors.New("limits cannot be negative")
	}
	if c.PemFile != "" {
		if _, err := os.Stat(c.PemFile); err != nil {
			return fmt.Errorf("could not find pem file %q: %w", c.PemFile, err)
		}
	}
	return nil
}

// LoadWhitelist reads one username per line, skipping blank lines.
func LoadWhitelist(r io.Reader) ([]string, error) {
	var names []string
	sc := bufio.NewScanner(r)
	for sc.Scan() {
		if name := strings.TrimSpace(sc.Text()); name != "" {
			names = append(names, name)
		}
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("failed to read whitelist: %w", err)
	}
	return names, nil
}
