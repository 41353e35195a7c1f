// Package common provides shared utilities for KI7MT space-weather lab applications.
package common

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// DateLayout is the date format used by every tool for range flags and file names.
const DateLayout = "2006-01-02"

// Config holds common configuration for all applications.
type Config struct {
	AppEnv   string
	LogLevel string

	DataDir string

	DonkiBaseURL string
	DonkiAPIKey  string

	// Observation window shared by the download and overlay steps.
	Start string
	End   string

	ClickHouseHost     string
	ClickHousePort     int
	ClickHouseDatabase string
	ClickHouseUser     string
	ClickHousePassword string
}

// DefaultConfig returns configuration with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		AppEnv:             getEnv("APP_ENV", "dev"),
		LogLevel:           getEnv("LOG_LEVEL", "info"),
		DataDir:            getEnv("KI7MT_DATA_DIR", "/var/lib/ki7mt-ai-lab"),
		DonkiBaseURL:       getEnv("DONKI_BASE_URL", "https://api.nasa.gov/DONKI"),
		DonkiAPIKey:        getEnv("DONKI_API_KEY", "DEMO_KEY"),
		Start:              getEnv("SWX_START", "2024-10-01"),
		End:                getEnv("SWX_END", "2024-10-31"),
		ClickHouseHost:     getEnv("CLICKHOUSE_HOST", "localhost"),
		ClickHousePort:     getEnvInt("CLICKHOUSE_PORT", 9000),
		ClickHouseDatabase: getEnv("CLICKHOUSE_DATABASE", "swx"),
		ClickHouseUser:     getEnv("CLICKHOUSE_USER", "default"),
		ClickHousePassword: getEnv("CLICKHOUSE_PASSWORD", ""),
	}
}

// LoadConfig reads an optional dotenv file into the process environment and
// returns the validated configuration. A missing dotenv file is not an error.
func LoadConfig(envFile string) (*Config, error) {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("load %s: %w", envFile, err)
		}
	}

	cfg := DefaultConfig()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the fields that have a closed set of values.
func (c *Config) Validate() error {
	switch c.AppEnv {
	case "dev", "prod":
	default:
		return fmt.Errorf("invalid APP_ENV %q (allowed: dev, prod)", c.AppEnv)
	}
	if _, err := ParseLogLevel(c.LogLevel); err != nil {
		return err
	}
	if _, _, err := ParseDateRange(c.Start, c.End); err != nil {
		return err
	}
	if c.ClickHousePort < 1 || c.ClickHousePort > 65535 {
		return fmt.Errorf("invalid CLICKHOUSE_PORT %q (allowed: 1-65535)",
			getEnv("CLICKHOUSE_PORT", strconv.Itoa(c.ClickHousePort)))
	}
	return nil
}

// ClickHouseAddr returns host:port for the native protocol.
func (c *Config) ClickHouseAddr() string {
	return fmt.Sprintf("%s:%d", c.ClickHouseHost, c.ClickHousePort)
}

// DonkiDir returns the DONKI download directory path.
func (c *Config) DonkiDir() string {
	return filepath.Join(c.DataDir, "donki")
}

// CactusDir returns the CACTus catalog directory path.
func (c *Config) CactusDir() string {
	return filepath.Join(c.DataDir, "cactus")
}

// SwisDir returns the SWIS CDF directory path.
func (c *Config) SwisDir() string {
	return filepath.Join(c.DataDir, "swis")
}

// OverlayDir returns the overlay output directory path.
func (c *Config) OverlayDir() string {
	return filepath.Join(c.DataDir, "overlay")
}

// ParseDateRange parses a YYYY-MM-DD pair and rejects inverted ranges.
func ParseDateRange(start, end string) (time.Time, time.Time, error) {
	s, err := time.Parse(DateLayout, strings.TrimSpace(start))
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("invalid start date %q: %w", start, err)
	}
	e, err := time.Parse(DateLayout, strings.TrimSpace(end))
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("invalid end date %q: %w", end, err)
	}
	if s.After(e) {
		return time.Time{}, time.Time{}, fmt.Errorf("start date %s is after end date %s", start, end)
	}
	return s, e, nil
}

func getEnv(key, defaultValue string) string {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		return value
	}
	return defaultValue
}

// getEnvInt returns -1 for a value that is not an integer so Validate can
// report it.
func getEnvInt(key string, defaultValue int) int {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return defaultValue
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		return -1
	}
	return n
}
