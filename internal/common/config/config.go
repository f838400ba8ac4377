package config

import (
	"fmt"
	"os"
	"time"

	"github.com/go-playground/validator/v10"
)

type Config struct {
	Database Database
	Feeds    Feeds
	HTTP     HTTP
	Logging  Logging
}

type Database struct {
	Host     string `validate:"required"`
	Port     string `validate:"required"`
	User     string `validate:"required"`
	Password string `validate:"required"`
	DBName   string `validate:"required"`
}

// Feeds configures the GTFS-realtime feed groups polled each cycle.
type Feeds struct {
	Groups        []Group
	FetchTimeout  time.Duration `validate:"gt=0"`
	CycleInterval time.Duration `validate:"gt=0"`
}

// Group is one named realtime endpoint covering a subset of routes.
type Group struct {
	Name string `validate:"required"`
	URL  string `validate:"required,url"`
}

type HTTP struct {
	Addr string `validate:"required"`
}

type Logging struct {
	Level    string
	FilePath string
}

// mtaFeedGroups are the NYCT subway realtime endpoints, one per line group,
// plus the system-wide subway alerts feed.
var mtaFeedGroups = []Group{
	{Name: "one_to_seven", URL: "https://api-endpoint.mta.info/Dataservice/mtagtfsfeeds/nyct%2Fgtfs"},
	{Name: "ACE", URL: "https://api-endpoint.mta.info/Dataservice/mtagtfsfeeds/nyct%2Fgtfs-ace"},
	{Name: "BDFM", URL: "https://api-endpoint.mta.info/Dataservice/mtagtfsfeeds/nyct%2Fgtfs-bdfm"},
	{Name: "G", URL: "https://api-endpoint.mta.info/Dataservice/mtagtfsfeeds/nyct%2Fgtfs-g"},
	{Name: "JZ", URL: "https://api-endpoint.mta.info/Dataservice/mtagtfsfeeds/nyct%2Fgtfs-jz"},
	{Name: "L", URL: "https://api-endpoint.mta.info/Dataservice/mtagtfsfeeds/nyct%2Fgtfs-l"},
	{Name: "NQRW", URL: "https://api-endpoint.mta.info/Dataservice/mtagtfsfeeds/nyct%2Fgtfs-nqrw"},
	{Name: "SIR", URL: "https://api-endpoint.mta.info/Dataservice/mtagtfsfeeds/nyct%2Fgtfs-si"},
	{Name: "alerts", URL: "https://api-endpoint.mta.info/Dataservice/mtagtfsfeeds/camsys%2Fsubway-alerts"},
}

// Load reads configuration from the environment and validates it. Missing
// database credentials are a hard error; the caller is expected to treat it
// as fatal.
func Load() (*Config, error) {
	cfg := &Config{
		Database: Database{
			Host:     getEnv("DB_HOST", "localhost"),
			Port:     getEnv("DB_PORT", "5432"),
			User:     getEnv("DB_USER", "postgres"),
			Password: os.Getenv("DB_PASSWORD"),
			DBName:   getEnv("DB_NAME", "mtatracker"),
		},
		Feeds: Feeds{
			Groups:        mtaFeedGroups,
			FetchTimeout:  getDurationEnv("FEED_FETCH_TIMEOUT", 15*time.Second),
			CycleInterval: getDurationEnv("FEED_CYCLE_INTERVAL", 30*time.Second),
		},
		HTTP: HTTP{
			Addr: getEnv("HTTP_ADDR", ":8080"),
		},
		Logging: Logging{
			Level:    getEnv("LOG_LEVEL", "info"),
			FilePath: getEnv("LOG_FILE", "mtatracker.log"),
		},
	}

	if err := validator.New().Struct(cfg); err != nil {
		return nil, fmt.Errorf("validating configuration: %w", err)
	}

	return cfg, nil
}

func (d *Database) ConnectionString() string {
	return fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=disable",
		d.Host, d.Port, d.User, d.Password, d.DBName)
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
