package ksatagent

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Defaults used when the environment does not override them
const (
	DefaultBackendURL    = "http://localhost:8000"
	DefaultStreamTimeout = 600 * time.Second
	DefaultListTimeout   = 5 * time.Second
	DefaultLoadTimeout   = 10 * time.Second
)

// Config holds client and server configuration
type Config struct {
	BackendURL    string
	StreamTimeout time.Duration
	ListTimeout   time.Duration
	LoadTimeout   time.Duration

	Port          string
	SessionSecret string
	CacheDB       string
	LogDir        string
	Verbose       bool
}

// LoadConfig loads configuration from environment variables
func LoadConfig() *Config {
	// Try to load .env file (ignore error if it doesn't exist)
	_ = godotenv.Load()

	return &Config{
		BackendURL:    strings.TrimRight(getEnv("BACKEND_URL", DefaultBackendURL), "/"),
		StreamTimeout: getEnvDuration("STREAM_TIMEOUT", DefaultStreamTimeout),
		ListTimeout:   getEnvDuration("LIST_TIMEOUT", DefaultListTimeout),
		LoadTimeout:   getEnvDuration("LOAD_TIMEOUT", DefaultLoadTimeout),
		Port:          getEnv("PORT", "8180"),
		SessionSecret: getEnv("SESSION_SECRET", "ksat-agent-dev-secret"),
		CacheDB:       getEnv("CACHE_DB", "./outputs.db"),
		LogDir:        getEnv("LOG_DIR", "log"),
		Verbose:       getEnvBool("VERBOSE", false),
	}
}

func getEnv(key, def string) string {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	return v
}

// getEnvDuration accepts Go durations ("90s") or plain seconds ("600")
func getEnvDuration(key string, def time.Duration) time.Duration {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	if d, err := time.ParseDuration(v); err == nil && d > 0 {
		return d
	}
	if n, err := strconv.Atoi(v); err == nil && n > 0 {
		return time.Duration(n) * time.Second
	}
	return def
}

func getEnvBool(key string, def bool) bool {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def
	}
	return b
}
