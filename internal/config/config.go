package config

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
	"gopkg.in/yaml.v3"

	"leadboard/internal/core"
)

// ConfigPathEnv names the optional YAML file read before env overrides.
const ConfigPathEnv = "LEADBOARD_CONFIG_PATH"

type Config struct {
	// HTTP Server
	Port string `yaml:"port"`

	// Backend selection
	DataBackend string `yaml:"dataBackend"`
	DocumentID  string `yaml:"documentId"`
	SeedFile    string `yaml:"seedFile"`
	TeamFile    string `yaml:"teamFile"`

	// Reconciler
	DebounceDelay time.Duration `yaml:"debounceDelay"`

	// Calendar
	CalendarStart string `yaml:"calendarStart"`
	CalendarWeeks int    `yaml:"calendarWeeks"`

	// Database
	SQLiteDBPath string `yaml:"sqliteDbPath"`

	// AMQP
	AMQPURL      string `yaml:"amqpUrl"`
	AMQPExchange string `yaml:"amqpExchange"`

	// MongoDB
	MongoURI        string `yaml:"mongoUri"`
	MongoDatabase   string `yaml:"mongoDatabase"`
	MongoCollection string `yaml:"mongoCollection"`

	// Google Sheets export
	GoogleSpreadsheetID   string `yaml:"googleSpreadsheetId"`
	GoogleOAuthClientFile string `yaml:"googleOAuthClientFile"`
	GoogleOAuthTokenFile  string `yaml:"googleOAuthTokenFile"`
	GoogleOAuthClientJSON string `yaml:"-"`
	GoogleOAuthTokenJSON  string `yaml:"-"`

	// Exporter
	ExportSchedule string `yaml:"exportSchedule"`
	ExportDBPath   string `yaml:"exportDbPath"`

	CacheSize int `yaml:"cacheSize"`

	// Logging
	LogLevel string `yaml:"logLevel"`
	LogFile  string `yaml:"logFile"`
}

// Default returns the configuration used when nothing is set.
func Default() *Config {
	return &Config{
		Port:            "8081",
		DataBackend:     "memory",
		DocumentID:      core.DefaultDocumentID,
		DebounceDelay:   500 * time.Millisecond,
		CalendarStart:   core.DefaultCalendarStart,
		CalendarWeeks:   core.DefaultCalendarWeeks,
		SQLiteDBPath:    "./data/leadboard.db",
		AMQPExchange:    "leadboard",
		MongoDatabase:   "leadboard",
		MongoCollection: "reports",
		ExportSchedule:  "0 * * * *",
		CacheSize:       256,
		LogLevel:        "info",
	}
}

// Load builds the configuration from defaults, then the YAML file named by
// LEADBOARD_CONFIG_PATH if set, then environment variables.
func Load() (*Config, error) {
	cfg := Default()
	if path := os.Getenv(ConfigPathEnv); path != "" {
		if err := cfg.loadFile(path); err != nil {
			return nil, err
		}
	}
	cfg.applyEnv()
	return cfg, nil
}

func (c *Config) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("parse config file %s: %w", path, err)
	}
	return nil
}

func (c *Config) applyEnv() {
	c.Port = getEnv("PORT", c.Port)

	c.DataBackend = getEnv("DATA_BACKEND", c.DataBackend)
	c.DocumentID = getEnv("DOCUMENT_ID", c.DocumentID)
	c.SeedFile = getEnv("SEED_FILE", c.SeedFile)
	c.TeamFile = getEnv("TEAM_FILE", c.TeamFile)

	c.DebounceDelay = getEnvDuration("DEBOUNCE_DELAY", c.DebounceDelay)
	c.CalendarStart = getEnv("CALENDAR_START", c.CalendarStart)
	c.CalendarWeeks = getEnvInt("CALENDAR_WEEKS", c.CalendarWeeks)

	c.SQLiteDBPath = getEnv("SQLITE_DB_PATH", c.SQLiteDBPath)

	c.AMQPURL = getEnv("AMQP_URL", c.AMQPURL)
	c.AMQPExchange = getEnv("AMQP_EXCHANGE", c.AMQPExchange)

	c.MongoURI = getEnv("MONGO_URI", c.MongoURI)
	c.MongoDatabase = getEnv("MONGO_DATABASE", c.MongoDatabase)
	c.MongoCollection = getEnv("MONGO_COLLECTION", c.MongoCollection)

	c.GoogleSpreadsheetID = getEnv("GOOGLE_SPREADSHEET_ID", c.GoogleSpreadsheetID)
	c.GoogleOAuthClientFile = getEnv("GOOGLE_OAUTH_CLIENT_FILE", c.GoogleOAuthClientFile)
	c.GoogleOAuthTokenFile = getEnv("GOOGLE_OAUTH_TOKEN_FILE", c.GoogleOAuthTokenFile)
	c.GoogleOAuthClientJSON = getEnv("GOOGLE_OAUTH_CLIENT_JSON", c.GoogleOAuthClientJSON)
	c.GoogleOAuthTokenJSON = getEnv("GOOGLE_OAUTH_TOKEN_JSON", c.GoogleOAuthTokenJSON)

	c.ExportSchedule = getEnv("EXPORT_SCHEDULE", c.ExportSchedule)
	c.ExportDBPath = getEnv("EXPORT_DB_PATH", c.ExportDBPath)
	c.CacheSize = getEnvInt("CACHE_SIZE", c.CacheSize)

	c.LogLevel = getEnv("LOG_LEVEL", c.LogLevel)
	c.LogFile = getEnv("LOG_FILE", c.LogFile)
}

// Backends lists the accepted DataBackend values.
var Backends = []string{"memory", "sqlite", "mongo"}

// Validate validates the configuration and returns an error if invalid
func (c *Config) Validate() error {
	var errors []string

	// Validate port
	if port, err := strconv.Atoi(c.Port); err != nil {
		errors = append(errors, fmt.Sprintf("invalid port '%s': must be a number", c.Port))
	} else if port < 1 || port > 65535 {
		errors = append(errors, fmt.Sprintf("invalid port %d: must be between 1 and 65535", port))
	}

	// Validate data backend
	isValidBackend := false
	for _, backend := range Backends {
		if c.DataBackend == backend {
			isValidBackend = true
			break
		}
	}
	if !isValidBackend {
		errors = append(errors, fmt.Sprintf("invalid data backend '%s': must be one of %v", c.DataBackend, Backends))
	}

	if strings.TrimSpace(c.DocumentID) == "" {
		errors = append(errors, "document id cannot be empty")
	}

	if c.DataBackend == "sqlite" {
		if c.SQLiteDBPath == "" {
			errors = append(errors, "SQLite database path cannot be empty when using sqlite backend")
		} else if err := ensureDir(c.SQLiteDBPath); err != nil {
			errors = append(errors, err.Error())
		}
	}

	if c.DataBackend == "mongo" && c.MongoURI == "" {
		errors = append(errors, "MONGO_URI is required when using mongo backend")
	}

	// AMQP is optional; when set it must be usable
	if c.AMQPURL != "" {
		if parsedURL, err := url.Parse(c.AMQPURL); err != nil {
			errors = append(errors, fmt.Sprintf("invalid AMQP URL '%s': %v", c.AMQPURL, err))
		} else if parsedURL.Scheme != "amqp" && parsedURL.Scheme != "amqps" {
			errors = append(errors, fmt.Sprintf("invalid AMQP URL scheme '%s': must be 'amqp' or 'amqps'", parsedURL.Scheme))
		}
		if c.AMQPExchange == "" {
			errors = append(errors, "AMQP exchange name cannot be empty when AMQP URL is provided")
		}
	}

	if c.DebounceDelay < 0 {
		errors = append(errors, fmt.Sprintf("invalid debounce delay %v: must not be negative", c.DebounceDelay))
	} else if c.DebounceDelay > time.Minute {
		errors = append(errors, fmt.Sprintf("invalid debounce delay %v: must be at most 1 minute", c.DebounceDelay))
	}

	if err := core.ValidateMonday(c.CalendarStart); err != nil {
		errors = append(errors, fmt.Sprintf("invalid calendar start '%s': %v", c.CalendarStart, err))
	}
	if c.CalendarWeeks < 1 || c.CalendarWeeks > 520 {
		errors = append(errors, fmt.Sprintf("invalid calendar weeks %d: must be between 1 and 520", c.CalendarWeeks))
	}

	if c.CacheSize < 0 {
		errors = append(errors, fmt.Sprintf("invalid cache size %d: must not be negative", c.CacheSize))
	}

	switch strings.ToLower(c.LogLevel) {
	case "debug", "info", "warn", "warning", "error":
	default:
		errors = append(errors, fmt.Sprintf("invalid log level '%s': must be debug, info, warn or error", c.LogLevel))
	}

	// Return combined errors
	if len(errors) > 0 {
		return fmt.Errorf("configuration validation failed:\n- %s", strings.Join(errors, "\n- "))
	}

	return nil
}

// ValidateExport checks the settings only the exporter needs.
func (c *Config) ValidateExport() error {
	var errors []string

	if _, err := cron.ParseStandard(c.ExportSchedule); err != nil {
		errors = append(errors, fmt.Sprintf("invalid export schedule '%s': %v", c.ExportSchedule, err))
	}

	if c.GoogleSpreadsheetID != "" {
		hasClientFile := c.GoogleOAuthClientFile != ""
		hasClientJSON := c.GoogleOAuthClientJSON != ""
		if !hasClientFile && !hasClientJSON {
			errors = append(errors, "either GOOGLE_OAUTH_CLIENT_FILE or GOOGLE_OAUTH_CLIENT_JSON must be provided for the sheets export")
		}

		hasTokenFile := c.GoogleOAuthTokenFile != ""
		hasTokenJSON := c.GoogleOAuthTokenJSON != ""
		if !hasTokenFile && !hasTokenJSON {
			errors = append(errors, "either GOOGLE_OAUTH_TOKEN_FILE or GOOGLE_OAUTH_TOKEN_JSON must be provided for the sheets export")
		}

		if hasClientFile {
			if _, err := os.Stat(c.GoogleOAuthClientFile); os.IsNotExist(err) {
				errors = append(errors, fmt.Sprintf("Google OAuth client file does not exist: %s", c.GoogleOAuthClientFile))
			}
		}
		if hasTokenFile {
			if _, err := os.Stat(c.GoogleOAuthTokenFile); os.IsNotExist(err) {
				errors = append(errors, fmt.Sprintf("Google OAuth token file does not exist: %s", c.GoogleOAuthTokenFile))
			}
		}
	}

	if c.ExportDBPath != "" {
		if err := ensureDir(c.ExportDBPath); err != nil {
			errors = append(errors, err.Error())
		}
	}

	if len(errors) > 0 {
		return fmt.Errorf("export configuration validation failed:\n- %s", strings.Join(errors, "\n- "))
	}
	return nil
}

// ensureDir creates the parent directory of a database file if needed.
func ensureDir(path string) error {
	dir := filepath.Dir(path)
	if dir == "." || dir == "" {
		return nil
	}
	if _, err := os.Stat(dir); os.IsNotExist(err) {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("cannot create database directory '%s': %v", dir, err)
		}
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

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
