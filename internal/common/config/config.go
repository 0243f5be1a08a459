package config

import (
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Database     DatabaseConfig     `yaml:"database"`
	GTFSStatic   GTFSStaticConfig   `yaml:"gtfs_static"`
	GTFSRealtime GTFSRealtimeConfig `yaml:"gtfs_realtime"`
	HTTP         HTTPConfig         `yaml:"http"`
	Logging      LoggingConfig      `yaml:"logging"`
	Timezone     string             `yaml:"timezone" validate:"required"`
}

type DatabaseConfig struct {
	Driver     string `yaml:"driver" validate:"oneof=postgres sqlite"`
	Host       string `yaml:"host"`
	Port       string `yaml:"port"`
	User       string `yaml:"user"`
	Password   string `yaml:"password"`
	DBName     string `yaml:"dbname"`
	SSLMode    string `yaml:"sslmode"`
	SQLitePath string `yaml:"sqlite_path"`
}

// GTFSStaticConfig for the schedule bundle download and import
type GTFSStaticConfig struct {
	URL                  string        `yaml:"url" validate:"omitempty,url"`
	CheckInterval        time.Duration `yaml:"check_interval" validate:"gt=0"`
	DownloadDir          string        `yaml:"download_dir" validate:"required"`
	KeepInactiveVersions int           `yaml:"keep_inactive_versions" validate:"gte=0"`
}

// GTFSRealtimeConfig for the trip-updates feed
type GTFSRealtimeConfig struct {
	TripUpdatesURL    string        `yaml:"trip_updates_url" validate:"omitempty,url"`
	APIKeyHeader      string        `yaml:"api_key_header"`
	APIKeyValue       string        `yaml:"api_key_value"`
	Timeout           time.Duration `yaml:"timeout" validate:"gt=0"`
	AllStopsStaleness time.Duration `yaml:"all_stops_staleness" validate:"gt=0"`
	StopStaleness     time.Duration `yaml:"stop_staleness" validate:"gt=0"`
}

type HTTPConfig struct {
	Addr           string   `yaml:"addr" validate:"required"`
	AllowedOrigins []string `yaml:"allowed_origins"`
}

type LoggingConfig struct {
	Level      string `yaml:"level"`
	FilePath   string `yaml:"file_path"`
	DiscordURL string `yaml:"discord_url" validate:"omitempty,url"`
}

// Defaults returns the configuration used when neither a file nor the environment sets a value.
func Defaults() *Config {
	return &Config{
		Database: DatabaseConfig{
			Driver:     "postgres",
			Host:       "localhost",
			Port:       "5432",
			User:       "postgres",
			DBName:     "ttctransit",
			SSLMode:    "disable",
			SQLitePath: "data/gtfs.sqlite",
		},
		GTFSStatic: GTFSStaticConfig{
			CheckInterval:        6 * time.Hour,
			DownloadDir:          os.TempDir(),
			KeepInactiveVersions: 1,
		},
		GTFSRealtime: GTFSRealtimeConfig{
			Timeout:           15 * time.Second,
			AllStopsStaleness: 20 * time.Minute,
			StopStaleness:     30 * time.Minute,
		},
		HTTP: HTTPConfig{
			Addr:           ":8080",
			AllowedOrigins: []string{"*"},
		},
		Logging: LoggingConfig{
			Level: "info",
		},
		Timezone: "America/Toronto",
	}
}

// Load reads an optional YAML file named by CONFIG_FILE, applies environment
// overrides and validates the result.
func Load() (*Config, error) {
	cfg := Defaults()

	if path := os.Getenv("CONFIG_FILE"); path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing config file: %w", err)
		}
	}

	applyEnv(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func applyEnv(cfg *Config) {
	cfg.Database.Driver = getEnv("DB_DRIVER", cfg.Database.Driver)
	cfg.Database.Host = getEnv("DB_HOST", cfg.Database.Host)
	cfg.Database.Port = getEnv("DB_PORT", cfg.Database.Port)
	cfg.Database.User = getEnv("DB_USER", cfg.Database.User)
	cfg.Database.Password = getEnv("DB_PASSWORD", cfg.Database.Password)
	cfg.Database.DBName = getEnv("DB_NAME", cfg.Database.DBName)
	cfg.Database.SSLMode = getEnv("DB_SSLMODE", cfg.Database.SSLMode)
	cfg.Database.SQLitePath = getEnv("GTFS_DB_PATH", cfg.Database.SQLitePath)

	cfg.GTFSStatic.URL = getEnv("GTFS_STATIC_URL", cfg.GTFSStatic.URL)
	cfg.GTFSStatic.CheckInterval = getDurationEnv("GTFS_STATIC_CHECK_INTERVAL", cfg.GTFSStatic.CheckInterval)
	cfg.GTFSStatic.DownloadDir = getEnv("GTFS_STATIC_DOWNLOAD_DIR", cfg.GTFSStatic.DownloadDir)
	cfg.GTFSStatic.KeepInactiveVersions = getIntEnv("GTFS_STATIC_KEEP_INACTIVE", cfg.GTFSStatic.KeepInactiveVersions)

	cfg.GTFSRealtime.TripUpdatesURL = getEnv("REALTIME_TRIP_UPDATES_URL", cfg.GTFSRealtime.TripUpdatesURL)
	cfg.GTFSRealtime.APIKeyHeader = getEnv("REALTIME_API_KEY_HEADER", cfg.GTFSRealtime.APIKeyHeader)
	cfg.GTFSRealtime.APIKeyValue = getEnv("REALTIME_API_KEY_VALUE", cfg.GTFSRealtime.APIKeyValue)
	cfg.GTFSRealtime.Timeout = getDurationEnv("REALTIME_TIMEOUT", cfg.GTFSRealtime.Timeout)

	cfg.HTTP.Addr = getEnv("HTTP_ADDR", cfg.HTTP.Addr)
	if origins := os.Getenv("HTTP_ALLOWED_ORIGINS"); origins != "" {
		cfg.HTTP.AllowedOrigins = splitList(origins)
	}

	cfg.Logging.Level = getEnv("LOG_LEVEL", cfg.Logging.Level)
	cfg.Logging.FilePath = getEnv("LOG_FILE", cfg.Logging.FilePath)
	cfg.Logging.DiscordURL = getEnv("DISCORD_WEBHOOK_URL", cfg.Logging.DiscordURL)

	cfg.Timezone = getEnv("TZ_AGENCY", cfg.Timezone)
}

// Validate checks struct tags and that the timezone resolves.
func (c *Config) Validate() error {
	v := validator.New()
	if err := v.Struct(c); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	if _, err := time.LoadLocation(c.Timezone); err != nil {
		return fmt.Errorf("invalid timezone %q: %w", c.Timezone, err)
	}
	return c.Database.Validate()
}

// Location returns the agency timezone. Validate must have succeeded.
func (c *Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

func (c *DatabaseConfig) Validate() error {
	switch c.Driver {
	case "sqlite":
		if c.SQLitePath == "" {
			return fmt.Errorf("sqlite driver requires GTFS_DB_PATH")
		}
	case "postgres":
		if c.Host == "" || c.DBName == "" {
			return fmt.Errorf("postgres driver requires DB_HOST and DB_NAME")
		}
	default:
		return fmt.Errorf("unsupported database driver %q", c.Driver)
	}
	return nil
}

// ConnectionString returns the DSN for the configured driver.
func (c *DatabaseConfig) ConnectionString() string {
	if c.Driver == "sqlite" {
		return fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)", c.SQLitePath)
	}
	return fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.DBName, c.SSLMode)
}

// Configured reports whether a realtime feed endpoint is set.
func (c GTFSRealtimeConfig) Configured() bool {
	return strings.TrimSpace(c.TripUpdatesURL) != ""
}

// RedactedURL strips query parameters, which some agencies use for API keys.
func (c GTFSRealtimeConfig) RedactedURL() string {
	u, err := url.Parse(c.TripUpdatesURL)
	if err != nil {
		return ""
	}
	u.RawQuery = ""
	return u.String()
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getDurationEnv(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}

func getIntEnv(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if n, err := strconv.Atoi(value); err == nil {
			return n
		}
	}
	return defaultValue
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
