package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/jwebster45206/loot-list/pkg/loot"
)

type Config struct {
	Port          string
	Environment   string
	LogLevel      slog.Level
	RedisURL      string
	DataDir       string
	FlagNamespace string
	DiceSeed      int64
	EventsEnabled bool
	ValidTypes    []string
	SessionIdle   time.Duration // editing sessions unused this long are discarded
}

func Load() *Config {
	return &Config{
		Port:          getEnv("PORT", "8080"),
		Environment:   getEnv("ENVIRONMENT", "development"),
		LogLevel:      parseLogLevel(getEnv("LOG_LEVEL", "info")),
		RedisURL:      getEnv("REDIS_URL", "localhost:6379"),
		DataDir:       getEnv("DATA_DIR", "./data"),
		FlagNamespace: getEnv("FLAG_NAMESPACE", "simple-loot-list"),
		DiceSeed:      parseInt64(getEnv("DICE_SEED", "0")),
		EventsEnabled: parseBool(getEnv("EVENTS_ENABLED", "true"), true),
		ValidTypes:    parseList(getEnv("VALID_ITEM_TYPES", "")),
		SessionIdle:   parseDuration(getEnv("SESSION_IDLE_TIMEOUT", "1h"), time.Hour),
	}
}

// Validate reports settings the service cannot start with
func (c *Config) Validate() error {
	var errs []error
	if strings.TrimSpace(c.FlagNamespace) == "" {
		errs = append(errs, errors.New("FLAG_NAMESPACE must not be empty"))
	}
	if _, err := strconv.Atoi(c.Port); err != nil {
		errs = append(errs, fmt.Errorf("PORT must be a number: %q", c.Port))
	}
	if strings.TrimSpace(c.DataDir) == "" {
		errs = append(errs, errors.New("DATA_DIR must not be empty"))
	}
	if c.SessionIdle <= 0 {
		errs = append(errs, fmt.Errorf("SESSION_IDLE_TIMEOUT must be positive: %s", c.SessionIdle))
	}
	return errors.Join(errs...)
}

// Loot returns the loot list settings shared by sessions, drops and grants
func (c *Config) Loot() loot.Config {
	cfg := loot.DefaultConfig()
	cfg.Namespace = c.FlagNamespace
	if len(c.ValidTypes) > 0 {
		cfg.ValidItemTypes = slices.Clone(c.ValidTypes)
	}
	return cfg
}

func parseLogLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func parseInt64(s string) int64 {
	n, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64)
	if err != nil {
		return 0
	}
	return n
}

func parseDuration(s string, defaultValue time.Duration) time.Duration {
	d, err := time.ParseDuration(strings.TrimSpace(s))
	if err != nil {
		return defaultValue
	}
	return d
}

func parseBool(s string, defaultValue bool) bool {
	b, err := strconv.ParseBool(strings.TrimSpace(s))
	if err != nil {
		return defaultValue
	}
	return b
}

// parseList splits a comma separated list, dropping blanks
func parseList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
