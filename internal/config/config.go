package config

import (
	"os"
	"strconv"
	"time"
)

// Config holds every environment-sourced setting the process consumes.
// Values are read once at startup; nothing else in the tree touches os.Getenv.
type Config struct {
	// ListenAddr is the host:port the HTTP server binds to.
	ListenAddr string

	// BackendBaseURL is the persistent backend this tier forwards to when it
	// holds no controller for a tab. Empty on the persistent tier itself.
	BackendBaseURL string

	// Browserbase-style remote provisioning. When APIKey is empty the local
	// Docker provisioner is used instead.
	BrowserbaseAPIURL    string
	BrowserbaseAPIKey    string
	BrowserbaseProjectID string

	// DatabaseURL selects the Postgres session directory; empty falls back to
	// the in-memory directory (single-instance deployments and tests).
	DatabaseURL string

	// SessionRetention is how long a directory record may sit untouched
	// before the sweep marks it expired.
	SessionRetention time.Duration

	// LogBufferSize caps the in-process activity log.
	LogBufferSize int
}

// Load reads configuration from the environment, applying defaults.
func Load() Config {
	return Config{
		ListenAddr:           getenv("LISTEN_ADDR", ":8080"),
		BackendBaseURL:       os.Getenv("BACKEND_BASE_URL"),
		BrowserbaseAPIURL:    getenv("BROWSERBASE_API_URL", "https://api.browserbase.com"),
		BrowserbaseAPIKey:    os.Getenv("BROWSERBASE_API_KEY"),
		BrowserbaseProjectID: os.Getenv("BROWSERBASE_PROJECT_ID"),
		DatabaseURL:          os.Getenv("DATABASE_URL"),
		SessionRetention:     getduration("SESSION_RETENTION", time.Hour),
		LogBufferSize:        getint("LOG_BUFFER_SIZE", 1000),
	}
}

// UseRemoteProvisioner reports whether remote provisioning is configured.
func (c Config) UseRemoteProvisioner() bool {
	return c.BrowserbaseAPIKey != ""
}

func getenv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getint(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func getduration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}
