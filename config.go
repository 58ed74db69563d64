package main

import (
	"crypto/rand"
	"fmt"
	"strconv"
	"strings"
	"time"
)

const (
	backendMemory = "memory"
	backendRedis  = "redis"
	backendTables = "tables"
	backendSQLite = "sqlite"
)

type config struct {
	Debug      bool
	ListenAddr string

	SlotBackend   string
	ConnStr       string
	SlotsTable    string
	SQLitePath    string
	RedisConn     string
	SlotCacheTTL  time.Duration
	EventsChannel string
	EventsQueue   string

	GeminiKey      string
	GeminiModel    string
	GeminiBaseURL  string
	SuggestTimeout time.Duration
	SuggestLockTTL time.Duration

	Username      string
	Password      string
	SessionSecret []byte
	SessionTTL    time.Duration
	JWKSURL       string
	Audience      string
	Issuer        string

	BoardsFile string
	TZName     string
}

// loadConfig reads the server configuration through getenv.
func loadConfig(getenv func(string) string) (config, error) {
	cfg := config{
		ListenAddr:     ":8080",
		SlotBackend:    backendMemory,
		SQLitePath:     "taskflow.db",
		SlotCacheTTL:   10 * time.Minute,
		EventsChannel:  "taskflow-updates",
		SuggestTimeout: 20 * time.Second,
		SuggestLockTTL: time.Minute,
		Username:       "admin",
		Password:       "password",
		SessionTTL:     12 * time.Hour,
	}

	if v := getenv("DEBUG"); v != "" {
		dbg, err := strconv.ParseBool(v)
		if err != nil {
			return cfg, fmt.Errorf("invalid DEBUG: %w", err)
		}
		cfg.Debug = dbg
	}
	if v := getenv("LISTEN_ADDR"); v != "" {
		cfg.ListenAddr = v
	} else if port := getenv("FUNCTIONS_CUSTOMHANDLER_PORT"); port != "" {
		cfg.ListenAddr = ":" + port
	}

	if v := getenv("SLOT_BACKEND"); v != "" {
		cfg.SlotBackend = strings.ToLower(strings.TrimSpace(v))
	}
	cfg.ConnStr = getenv("STORAGE_CONNECTION_STRING")
	cfg.SlotsTable = getenv("SLOTS_TABLE")
	if v := getenv("SQLITE_PATH"); v != "" {
		cfg.SQLitePath = v
	}
	cfg.RedisConn = getenv("REDIS_CONNECTION_STRING")
	cfg.EventsQueue = getenv("EVENTS_QUEUE")
	if v := getenv("EVENTS_CHANNEL"); v != "" {
		cfg.EventsChannel = v
	}

	switch cfg.SlotBackend {
	case backendMemory, backendSQLite:
	case backendRedis:
		if cfg.RedisConn == "" {
			return cfg, fmt.Errorf("SLOT_BACKEND=redis requires REDIS_CONNECTION_STRING")
		}
	case backendTables:
		if cfg.ConnStr == "" || cfg.SlotsTable == "" {
			return cfg, fmt.Errorf("SLOT_BACKEND=tables requires STORAGE_CONNECTION_STRING and SLOTS_TABLE")
		}
	default:
		return cfg, fmt.Errorf("invalid SLOT_BACKEND %q", cfg.SlotBackend)
	}
	if cfg.EventsQueue != "" && cfg.ConnStr == "" {
		return cfg, fmt.Errorf("EVENTS_QUEUE requires STORAGE_CONNECTION_STRING")
	}

	var err error
	if cfg.SlotCacheTTL, err = durationEnv(getenv, "SLOT_CACHE_TTL", cfg.SlotCacheTTL, true); err != nil {
		return cfg, err
	}
	if cfg.SuggestTimeout, err = durationEnv(getenv, "SUGGEST_TIMEOUT", cfg.SuggestTimeout, false); err != nil {
		return cfg, err
	}
	if cfg.SuggestLockTTL, err = durationEnv(getenv, "SUGGEST_LOCK_TTL", cfg.SuggestLockTTL, false); err != nil {
		return cfg, err
	}
	if cfg.SessionTTL, err = durationEnv(getenv, "SESSION_TTL", cfg.SessionTTL, false); err != nil {
		return cfg, err
	}

	cfg.GeminiKey = getenv("GEMINI_API_KEY")
	cfg.GeminiModel = getenv("GEMINI_MODEL")
	cfg.GeminiBaseURL = getenv("GEMINI_BASE_URL")

	if v := getenv("TASKFLOW_USERNAME"); v != "" {
		cfg.Username = v
	}
	if v := getenv("TASKFLOW_PASSWORD"); v != "" {
		cfg.Password = v
	}
	if v := getenv("SESSION_SECRET"); v != "" {
		cfg.SessionSecret = []byte(v)
	} else {
		cfg.SessionSecret = make([]byte, 32)
		if _, err := rand.Read(cfg.SessionSecret); err != nil {
			return cfg, fmt.Errorf("session secret: %w", err)
		}
	}
	cfg.JWKSURL = getenv("AUTH_JWKS_URL")
	cfg.Audience = getenv("AUTH_AUDIENCE")
	cfg.Issuer = getenv("AUTH_ISSUER")

	cfg.BoardsFile = getenv("BOARDS_FILE")
	cfg.TZName = getenv("TZ_NAME")
	return cfg, nil
}

// durationEnv parses a positive duration. zeroOK also admits 0.
func durationEnv(getenv func(string) string, name string, def time.Duration, zeroOK bool) (time.Duration, error) {
	v := getenv(name)
	if v == "" {
		return def, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", name, err)
	}
	if d < 0 || (d == 0 && !zeroOK) {
		return 0, fmt.Errorf("invalid %s: must be greater than zero", name)
	}
	return d, nil
}
