package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"callcenter/internal/queue"
	"callcenter/internal/storage"
)

// Config holds runtime configuration for the service.
type Config struct {
	HTTPAddr        string
	ShutdownTimeout time.Duration
	CORSOrigins     []string

	StorageDriver string // postgres | memory
	DB            storage.DBConfig
	Redis         storage.RedisConfig

	JWTSecret []byte

	SweepInterval    time.Duration
	AvgHandleMinutes int
	JoinPolicy       queue.JoinPolicy
	MaxPairsPerSweep int
	Ranking          string
	AgentSelector    string
	TriggerRate      float64

	LogLevel  string
	LogPretty bool

	// Warnings collects invalid values that fell back to defaults; they are
	// logged once the logger exists.
	Warnings []string
}

// LoadEnv reads .env unless ENV_CHEK is set, as in containers where the
// environment is injected directly.
func LoadEnv(paths ...string) error {
	if os.Getenv("ENV_CHEK") != "" {
		return nil
	}
	if err := godotenv.Load(paths...); err != nil {
		return fmt.Errorf("load .env: %w", err)
	}
	return nil
}

// Load builds a Config from the environment with defaults.
func Load() Config {
	cfg := Config{}
	cfg.HTTPAddr = firstNonEmpty(os.Getenv("HTTP_ADDR"), ":8080")
	cfg.ShutdownTimeout = cfg.duration("SHUTDOWN_TIMEOUT", 10*time.Second)
	cfg.CORSOrigins = parseCSV(os.Getenv("CORS_ORIGINS"))

	cfg.StorageDriver = strings.ToLower(firstNonEmpty(os.Getenv("STORAGE_DRIVER"), "postgres"))
	cfg.DB = storage.DBConfig{
		Host:     firstNonEmpty(os.Getenv("DB_HOST"), "localhost"),
		Port:     firstNonEmpty(os.Getenv("DB_PORT"), "5432"),
		User:     os.Getenv("DB_USER"),
		Password: os.Getenv("DB_PASSWORD"),
		Name:     os.Getenv("DB_NAME"),
	}
	cfg.Redis = storage.RedisConfig{
		Addr:     os.Getenv("REDIS_ADDR"),
		Password: os.Getenv("REDIS_PASSWORD"),
		DB:       cfg.integer("REDIS_DB", 0),
	}

	cfg.JWTSecret = []byte(os.Getenv("JWT_ACCESS_SECRET"))

	cfg.SweepInterval = cfg.duration("SWEEP_INTERVAL", 10*time.Second)
	cfg.AvgHandleMinutes = cfg.integer("AVG_HANDLE_MINUTES", queue.DefaultAvgHandleMinutes)
	cfg.MaxPairsPerSweep = cfg.integer("MATCH_MAX_PAIRS", 1)
	cfg.TriggerRate = cfg.float("TRIGGER_RATE", 5)

	switch p := queue.JoinPolicy(firstNonEmpty(os.Getenv("JOIN_POLICY"), string(queue.RejectDuplicate))); p {
	case queue.RejectDuplicate, queue.ReturnExisting:
		cfg.JoinPolicy = p
	default:
		cfg.warn("JOIN_POLICY", string(p))
		cfg.JoinPolicy = queue.RejectDuplicate
	}
	cfg.Ranking = cfg.oneOf("RANKING", "fifo", "fifo", "priority")
	cfg.AgentSelector = cfg.oneOf("AGENT_SELECTOR", "first", "first", "longest_idle", "preferred", "skills")

	cfg.LogLevel = firstNonEmpty(os.Getenv("LOG_LEVEL"), "info")
	cfg.LogPretty = cfg.boolean("LOG_PRETTY", false)
	return cfg
}

func (c *Config) warn(key, raw string) {
	c.Warnings = append(c.Warnings, fmt.Sprintf("invalid %s value %q, using default", key, raw))
}

func (c *Config) duration(key string, fallback time.Duration) time.Duration {
	raw := os.Getenv(key)
	if raw == "" {
		return fallback
	}
	d, err := time.ParseDuration(raw)
	if err != nil || d <= 0 {
		c.warn(key, raw)
		return fallback
	}
	return d
}

func (c *Config) integer(key string, fallback int) int {
	raw := os.Getenv(key)
	if raw == "" {
		return fallback
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v < 0 {
		c.warn(key, raw)
		return fallback
	}
	return v
}

func (c *Config) float(key string, fallback float64) float64 {
	raw := os.Getenv(key)
	if raw == "" {
		return fallback
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil || v < 0 {
		c.warn(key, raw)
		return fallback
	}
	return v
}

func (c *Config) boolean(key string, fallback bool) bool {
	raw := os.Getenv(key)
	if raw == "" {
		return fallback
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		c.warn(key, raw)
		return fallback
	}
	return v
}

func (c *Config) oneOf(key, fallback string, allowed ...string) string {
	raw := strings.ToLower(os.Getenv(key))
	if raw == "" {
		return fallback
	}
	for _, a := range allowed {
		if raw == a {
			return raw
		}
	}
	c.warn(key, raw)
	return fallback
}

// ServiceOptions maps the queue settings onto queue.Options.
func (c Config) ServiceOptions() queue.Options {
	return queue.Options{
		JoinPolicy:       c.JoinPolicy,
		MaxPairsPerSweep: c.MaxPairsPerSweep,
		Estimator:        queue.Estimator{AvgHandleMinutes: c.AvgHandleMinutes},
		Ranker:           queue.RankerByName(c.Ranking),
		Selector:         queue.SelectorByName(c.AgentSelector),
	}
}

func parseCSV(raw string) []string {
	if raw == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
