package config

import (
	"fmt"
	"os"
	"strconv"
)

type Config struct {
	Port     int
	LogLevel string
	Env      string

	// Remote storage (Postgres). Both are required: a missing value is a
	// deployment error and refuses to start.
	StoreURL        string
	StoreServiceKey string

	// Local storage fallback
	DataDir string

	// Redis (optional exclusion cache)
	RedisHost     string
	RedisPort     int
	RedisPassword string
	RedisDB       int

	// Chat API collaborator
	ChatAPIBaseURL string
	ChatAPIToken   string
	ChatAPITimeout int // seconds

	// Action card templates
	Card30MinID    string
	CardEndOfDayID string

	// Scheduling (cron specs)
	PollSpec    string
	CleanupSpec string

	// Timezone for business-hours and end-of-day decisions
	Timezone string
}

// Load reads configuration from environment variables with sensible defaults
func Load() (*Config, error) {
	cfg := &Config{
		Port:     8080,
		LogLevel: "info",
		Env:      "development",

		DataDir: "./data",

		RedisHost:     "localhost",
		RedisPort:     6379,
		RedisPassword: "",
		RedisDB:       0,

		ChatAPITimeout: 30,

		Card30MinID:    "card_wait_30min",
		CardEndOfDayID: "card_end_of_day",

		PollSpec:    "@every 1m",
		CleanupSpec: "0 3 * * *",

		Timezone: "Local",
	}

	if port := os.Getenv("PORT"); port != "" {
		p, err := strconv.Atoi(port)
		if err != nil {
			return nil, fmt.Errorf("invalid PORT: %w", err)
		}
		cfg.Port = p
	}

	if level := os.Getenv("LOG_LEVEL"); level != "" {
		cfg.LogLevel = level
	}

	if env := os.Getenv("ENV"); env != "" {
		cfg.Env = env
	}

	cfg.StoreURL = os.Getenv("STORE_URL")
	cfg.StoreServiceKey = os.Getenv("STORE_SERVICE_KEY")

	if dir := os.Getenv("DATA_DIR"); dir != "" {
		cfg.DataDir = dir
	}

	if host := os.Getenv("REDIS_HOST"); host != "" {
		cfg.RedisHost = host
	}

	if port := os.Getenv("REDIS_PORT"); port != "" {
		p, err := strconv.Atoi(port)
		if err != nil {
			return nil, fmt.Errorf("invalid REDIS_PORT: %w", err)
		}
		cfg.RedisPort = p
	}

	if password := os.Getenv("REDIS_PASSWORD"); password != "" {
		cfg.RedisPassword = password
	}

	if db := os.Getenv("REDIS_DB"); db != "" {
		d, err := strconv.Atoi(db)
		if err != nil {
			return nil, fmt.Errorf("invalid REDIS_DB: %w", err)
		}
		cfg.RedisDB = d
	}

	if url := os.Getenv("CHAT_API_BASE_URL"); url != "" {
		cfg.ChatAPIBaseURL = url
	}

	if token := os.Getenv("CHAT_API_TOKEN"); token != "" {
		cfg.ChatAPIToken = token
	}

	if timeout := os.Getenv("CHAT_API_TIMEOUT"); timeout != "" {
		t, err := strconv.Atoi(timeout)
		if err != nil {
			return nil, fmt.Errorf("invalid CHAT_API_TIMEOUT: %w", err)
		}
		cfg.ChatAPITimeout = t
	}

	if id := os.Getenv("CARD_30MIN_ID"); id != "" {
		cfg.Card30MinID = id
	}

	if id := os.Getenv("CARD_END_OF_DAY_ID"); id != "" {
		cfg.CardEndOfDayID = id
	}

	if spec := os.Getenv("POLL_SPEC"); spec != "" {
		cfg.PollSpec = spec
	}

	if spec := os.Getenv("CLEANUP_SPEC"); spec != "" {
		cfg.CleanupSpec = spec
	}

	if tz := os.Getenv("TIMEZONE"); tz != "" {
		cfg.Timezone = tz
	}

	return cfg, nil
}
