// Package config loads server settings from flags, the environment and an
// optional .env file. Flags win over the environment, which wins over
// defaults.
package config

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"go.uber.org/zap/zapcore"

	"auctionchess/internal/auction"
	"auctionchess/internal/lobby"
)

type Config struct {
	Port            string
	DBPath          string
	CORSOrigins     []string
	StartingBalance int64
	AllIn           auction.AllInPolicy
	HostColor       lobby.HostColor
	RateLimit       int // requests per minute per client, 0 disables
	LogLevel        zapcore.Level
	LogDev          bool
}

// Rules returns the auction rules new games are started with.
func (c Config) Rules() auction.Rules {
	rules := auction.DefaultRules()
	rules.Balances = auction.Balances{c.StartingBalance, c.StartingBalance}
	rules.AllIn = c.AllIn
	return rules
}

// Load parses args (without the program name). A missing .env file is not an
// error.
func Load(args []string) (Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return Config{}, fmt.Errorf("load .env: %w", err)
	}

	fs := flag.NewFlagSet("auctionchess", flag.ContinueOnError)
	port := fs.String("port", env("PORT", "8088"), "server port")
	dbPath := fs.String("db", env("DB_PATH", "auctionchess.db"), "SQLite database path")
	cors := fs.String("cors", env("CORS_ORIGINS", ""), "comma-separated allowed CORS origins (empty = allow all for dev)")
	balance := fs.String("balance", env("STARTING_BALANCE", strconv.Itoa(auction.StartingBalance)), "starting balance for each player")
	allIn := fs.String("all-in", env("ALL_IN_POLICY", "at_least"), "all-in threshold: at_least or exceeds")
	hostColor := fs.String("host-color", env("HOST_COLOR", "first"), "side the host plays: first, second or random")
	rateLimit := fs.String("rate-limit", env("RATE_LIMIT", "120"), "API requests per minute per client (0 disables)")
	logLevel := fs.String("log-level", env("LOG_LEVEL", "info"), "log level")
	logDev := fs.String("log-dev", env("LOG_DEV", "false"), "human-readable development logging")
	if err := fs.Parse(args); err != nil {
		return Config{}, err
	}

	cfg := Config{
		Port:        *port,
		DBPath:      *dbPath,
		CORSOrigins: splitList(*cors),
	}

	var err error
	if cfg.StartingBalance, err = strconv.ParseInt(*balance, 10, 64); err != nil || cfg.StartingBalance < 0 {
		return Config{}, fmt.Errorf("invalid starting balance %q", *balance)
	}
	if cfg.AllIn, err = auction.ParseAllInPolicy(*allIn); err != nil {
		return Config{}, err
	}
	if cfg.HostColor, err = lobby.ParseHostColor(*hostColor); err != nil {
		return Config{}, err
	}
	if cfg.RateLimit, err = strconv.Atoi(*rateLimit); err != nil || cfg.RateLimit < 0 {
		return Config{}, fmt.Errorf("invalid rate limit %q", *rateLimit)
	}
	if cfg.LogLevel, err = zapcore.ParseLevel(*logLevel); err != nil {
		return Config{}, err
	}
	if cfg.LogDev, err = strconv.ParseBool(*logDev); err != nil {
		return Config{}, fmt.Errorf("invalid log-dev %q", *logDev)
	}
	if cfg.Port == "" {
		return Config{}, errors.New("port must not be empty")
	}
	return cfg, nil
}

func env(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok {
		return v
	}
	return fallback
}

func splitList(s string) []string {
	if s == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
