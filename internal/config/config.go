package config

import (
	"fmt"
	"log/slog"
	"net"
	"net/url"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"
	"time"
)

// Storage backends for the ledger document.
const (
	BackendSQLite = "sqlite"
	BackendMemory = "memory"
)

type Config struct {
	// HTTP Server
	Port string

	// Ledger
	LedgerOwner     string
	StudentDefaults bool

	// Storage
	DataBackend  string
	SQLiteDBPath string

	// AMQP, disabled when AMQPURL is empty
	AMQPURL          string
	AMQPExchange     string
	AMQPChangesQueue string
	AMQPSyncQueue    string

	// Google Sheets export, disabled when GoogleSpreadsheetID is empty
	GoogleSpreadsheetID   string
	GoogleSheetName       string
	GoogleOAuthClientFile string
	GoogleOAuthTokenFile  string
	GoogleOAuthClientJSON string
	GoogleOAuthTokenJSON  string

	// Worker
	RecurringInterval time.Duration

	// HTTP middleware and caching
	RateLimitPerMinute int
	ReportCacheSize    int
	ReportCacheTTL     time.Duration
	TrustedProxies     []string

	// Logging
	LogLevel  string
	LogFormat string
}

func Load() *Config {
	return &Config{
		Port: getEnv("PORT", "8081"),

		LedgerOwner:     getEnv("LEDGER_OWNER", "default"),
		StudentDefaults: getEnvBool("LEDGER_STUDENT_DEFAULTS", false),

		DataBackend:  getEnv("DATA_BACKEND", BackendSQLite),
		SQLiteDBPath: getEnv("SQLITE_DB_PATH", "./data/moneymind.db"),

		AMQPURL:          getEnv("AMQP_URL", ""),
		AMQPExchange:     getEnv("AMQP_EXCHANGE", "moneymind"),
		AMQPChangesQueue: getEnv("LEDGER_CHANGES_QUEUE", "ledger_changed"),
		AMQPSyncQueue:    getEnv("LEDGER_SYNC_QUEUE", "ledger_sync"),

		GoogleSpreadsheetID:   getEnv("GOOGLE_SPREADSHEET_ID", ""),
		GoogleSheetName:       getEnv("GOOGLE_SHEET_NAME", "Transactions"),
		GoogleOAuthClientFile: getEnv("GOOGLE_OAUTH_CLIENT_FILE", ""),
		GoogleOAuthTokenFile:  getEnv("GOOGLE_OAUTH_TOKEN_FILE", ""),
		GoogleOAuthClientJSON: getEnv("GOOGLE_OAUTH_CLIENT_JSON", ""),
		GoogleOAuthTokenJSON:  getEnv("GOOGLE_OAUTH_TOKEN_JSON", ""),

		RecurringInterval: getEnvDuration("RECURRING_PROCESSOR_INTERVAL", time.Hour),

		RateLimitPerMinute: getEnvInt("RATE_LIMIT_PER_MINUTE", 120),
		ReportCacheSize:    getEnvInt("REPORT_CACHE_SIZE", 256),
		ReportCacheTTL:     getEnvDuration("REPORT_CACHE_TTL", 5*time.Minute),
		TrustedProxies:     getEnvList("TRUSTED_PROXIES"),

		LogLevel:  getEnv("LOG_LEVEL", "info"),
		LogFormat: getEnv("LOG_FORMAT", "text"),
	}
}

// AMQPEnabled reports whether change events and sync deliveries are wired.
func (c *Config) AMQPEnabled() bool { return c.AMQPURL != "" }

// SheetsEnabled reports whether the Google Sheets exporter is configured.
func (c *Config) SheetsEnabled() bool { return c.GoogleSpreadsheetID != "" }

// SlogLevel maps LogLevel to a slog level, defaulting to info.
func (c *Config) SlogLevel() slog.Level {
	var level slog.Level
	if err := level.UnmarshalText([]byte(c.LogLevel)); err != nil {
		return slog.LevelInfo
	}
	return level
}

// Validate validates the configuration and returns an error listing every problem.
func (c *Config) Validate() error {
	var errors []string

	if port, err := strconv.Atoi(c.Port); err != nil {
		errors = append(errors, fmt.Sprintf("invalid port '%s': must be a number", c.Port))
	} else if port < 1 || port > 65535 {
		errors = append(errors, fmt.Sprintf("invalid port %d: must be between 1 and 65535", port))
	}

	if strings.TrimSpace(c.LedgerOwner) == "" {
		errors = append(errors, "ledger owner cannot be empty")
	}

	validBackends := []string{BackendMemory, BackendSQLite}
	if !slices.Contains(validBackends, c.DataBackend) {
		errors = append(errors, fmt.Sprintf("invalid data backend '%s': must be one of %v", c.DataBackend, validBackends))
	}

	if c.DataBackend == BackendSQLite {
		if c.SQLiteDBPath == "" {
			errors = append(errors, "SQLite database path cannot be empty when using sqlite backend")
		} else if dir := filepath.Dir(c.SQLiteDBPath); dir != "." && dir != "" {
			if _, err := os.Stat(dir); os.IsNotExist(err) {
				if err := os.MkdirAll(dir, 0755); err != nil {
					errors = append(errors, fmt.Sprintf("cannot create SQLite database directory '%s': %v", dir, err))
				}
			}
		}
	}

	if c.AMQPEnabled() {
		if parsedURL, err := url.Parse(c.AMQPURL); err != nil {
			errors = append(errors, fmt.Sprintf("invalid AMQP URL '%s': %v", c.AMQPURL, err))
		} else if parsedURL.Scheme != "amqp" && parsedURL.Scheme != "amqps" {
			errors = append(errors, fmt.Sprintf("invalid AMQP URL scheme '%s': must be 'amqp' or 'amqps'", parsedURL.Scheme))
		}
		if c.AMQPExchange == "" {
			errors = append(errors, "AMQP exchange name cannot be empty when AMQP URL is provided")
		}
		if c.AMQPChangesQueue == "" || c.AMQPSyncQueue == "" {
			errors = append(errors, "AMQP change and sync queue names cannot be empty when AMQP URL is provided")
		}
		if c.AMQPChangesQueue != "" && c.AMQPChangesQueue == c.AMQPSyncQueue {
			errors = append(errors, "AMQP change and sync queues must differ")
		}
	}

	if c.SheetsEnabled() {
		if c.GoogleSheetName == "" {
			errors = append(errors, "Google Sheet name is required when a spreadsheet is configured")
		}
		if c.GoogleOAuthClientFile == "" && c.GoogleOAuthClientJSON == "" {
			errors = append(errors, "either GOOGLE_OAUTH_CLIENT_FILE or GOOGLE_OAUTH_CLIENT_JSON must be provided for sheets export")
		}
		if c.GoogleOAuthTokenFile == "" && c.GoogleOAuthTokenJSON == "" {
			errors = append(errors, "either GOOGLE_OAUTH_TOKEN_FILE or GOOGLE_OAUTH_TOKEN_JSON must be provided for sheets export")
		}
		if c.GoogleOAuthClientFile != "" {
			if _, err := os.Stat(c.GoogleOAuthClientFile); os.IsNotExist(err) {
				errors = append(errors, fmt.Sprintf("Google OAuth client file does not exist: %s", c.GoogleOAuthClientFile))
			}
		}
		if c.GoogleOAuthTokenFile != "" {
			if _, err := os.Stat(c.GoogleOAuthTokenFile); os.IsNotExist(err) {
				errors = append(errors, fmt.Sprintf("Google OAuth token file does not exist: %s", c.GoogleOAuthTokenFile))
			}
		}
	}

	if c.RecurringInterval < time.Second {
		errors = append(errors, fmt.Sprintf("invalid recurring interval %v: must be at least 1 second", c.RecurringInterval))
	} else if c.RecurringInterval > 24*time.Hour {
		errors = append(errors, fmt.Sprintf("invalid recurring interval %v: must be at most 24 hours", c.RecurringInterval))
	}

	if c.RateLimitPerMinute < 1 {
		errors = append(errors, fmt.Sprintf("invalid rate limit %d: must be at least 1 request per minute", c.RateLimitPerMinute))
	}
	if c.ReportCacheSize < 1 {
		errors = append(errors, fmt.Sprintf("invalid report cache size %d: must be at least 1", c.ReportCacheSize))
	}

	for _, proxy := range c.TrustedProxies {
		if _, _, err := net.ParseCIDR(proxy); err != nil && net.ParseIP(proxy) == nil {
			errors = append(errors, fmt.Sprintf("invalid trusted proxy '%s': must be an IP or CIDR", proxy))
		}
	}

	if c.LogFormat != "text" && c.LogFormat != "json" {
		errors = append(errors, fmt.Sprintf("invalid log format '%s': must be text or json", c.LogFormat))
	}

	if len(errors) > 0 {
		return fmt.Errorf("configuration validation failed:\n- %s", strings.Join(errors, "\n- "))
	}

	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}

// getEnvList splits a comma separated variable, dropping empty items.
func getEnvList(key string) []string {
	var out []string
	for _, item := range strings.Split(os.Getenv(key), ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}
