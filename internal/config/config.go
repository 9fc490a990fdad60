package config

import (
	"fmt"
	"log"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
)

var validate = validator.New()

// Common holds the settings shared by both binaries.
type Common struct {
	AppEnv   string `validate:"oneof=dev prod"`
	LogLevel slog.Level
}

// MQTT holds broker settings. An empty Broker disables MQTT.
type MQTT struct {
	Broker   string
	Port     int `validate:"min=1,max=65535"`
	Topic    string
	ClientID string
}

// DashboardConfig configures the live dashboard client.
type DashboardConfig struct {
	Common

	// BackendURL is the fixed base address of the weather backend.
	BackendURL string `validate:"required,url"`

	// FeedTransport selects how snapshots are received.
	FeedTransport string `validate:"oneof=sse mqtt"`
	FeedPath      string `validate:"required,startswith=/"`

	// HTTPTimeout bounds each backend request (0 = no timeout).
	HTTPTimeout time.Duration `validate:"min=0"`

	MQTT MQTT
}

// BackendConfig configures the reference weather backend.
type BackendConfig struct {
	Common

	Port string `validate:"required,numeric"`

	Provider          string `validate:"oneof=wttr openweather"`
	OpenWeatherAPIKey string `validate:"required_if=Provider openweather"`

	// FetchInterval controls how often we fetch data for each tracked city.
	FetchInterval time.Duration `validate:"gt=0"`
	// PushInterval controls how often a snapshot is pushed to subscribers.
	PushInterval time.Duration `validate:"gt=0"`
	HTTPTimeout  time.Duration `validate:"min=0"`

	// Reading retention in the in-memory store (0 = unlimited).
	StoreMaxAge time.Duration `validate:"min=0"`

	SQLitePath string `validate:"required"`

	MQTT MQTT
}

// LoadDashboard reads the dashboard configuration from the environment.
func LoadDashboard() (*DashboardConfig, error) {
	loadDotEnv()

	common, err := loadCommon()
	if err != nil {
		return nil, err
	}

	timeout, err := getenvDuration("HTTP_TIMEOUT", "0s")
	if err != nil {
		return nil, err
	}

	cfg := &DashboardConfig{
		Common:        common,
		BackendURL:    strings.TrimRight(getenvDefault("BACKEND_URL", "http://localhost:8000"), "/"),
		FeedTransport: strings.ToLower(getenvDefault("FEED_TRANSPORT", "sse")),
		FeedPath:      getenvDefault("FEED_PATH", "/sse"),
		HTTPTimeout:   timeout,
	}
	if cfg.MQTT, err = loadMQTT("weather-dashboard"); err != nil {
		return nil, err
	}

	if err := validate.Struct(cfg); err != nil {
		return nil, fmt.Errorf("invalid dashboard config: %w", err)
	}
	if cfg.FeedTransport == "mqtt" && cfg.MQTT.Broker == "" {
		return nil, fmt.Errorf("invalid dashboard config: FEED_TRANSPORT=mqtt requires MQTT_BROKER")
	}
	return cfg, nil
}

// LoadBackend reads the backend configuration from the environment.
func LoadBackend() (*BackendConfig, error) {
	loadDotEnv()

	common, err := loadCommon()
	if err != nil {
		return nil, err
	}

	cfg := &BackendConfig{
		Common:            common,
		Port:              getenvDefault("PORT", "8000"),
		Provider:          strings.ToLower(getenvDefault("WEATHER_PROVIDER", "wttr")),
		OpenWeatherAPIKey: os.Getenv("OPENWEATHER_API_KEY"),
		SQLitePath:        getenvDefault("SQLITE_PATH", "file::memory:?cache=shared"),
	}
	if cfg.MQTT, err = loadMQTT("weather-backend"); err != nil {
		return nil, err
	}

	if cfg.FetchInterval, err = getenvDuration("FETCH_INTERVAL", "2s"); err != nil {
		return nil, err
	}
	if cfg.PushInterval, err = getenvDuration("PUSH_INTERVAL", "5s"); err != nil {
		return nil, err
	}
	if cfg.HTTPTimeout, err = getenvDuration("HTTP_TIMEOUT", "10s"); err != nil {
		return nil, err
	}
	if cfg.StoreMaxAge, err = getenvDuration("STORE_MAX_AGE", "0s"); err != nil {
		return nil, err
	}

	if err := validate.Struct(cfg); err != nil {
		return nil, fmt.Errorf("invalid backend config: %w", err)
	}
	return cfg, nil
}

func loadDotEnv() {
	if err := godotenv.Load(); err != nil {
		log.Printf("INFO: No .env file found or error loading it: %v", err)
	}
}

func loadCommon() (Common, error) {
	level, err := parseLogLevel(getenvDefault("LOG_LEVEL", "info"))
	if err != nil {
		return Common{}, err
	}
	return Common{
		AppEnv:   getenvDefault("APP_ENV", "dev"),
		LogLevel: level,
	}, nil
}

// loadMQTT reads the broker settings. The broker has no default: an empty
// MQTT_BROKER turns MQTT off.
func loadMQTT(defaultClientID string) (MQTT, error) {
	port, err := getenvInt("MQTT_PORT", 1883)
	if err != nil {
		return MQTT{}, err
	}
	return MQTT{
		Broker:   getenvDefault("MQTT_BROKER", ""),
		Port:     port,
		Topic:    getenvDefault("MQTT_TOPIC", "weather/snapshot"),
		ClientID: getenvDefault("MQTT_CLIENT_ID", defaultClientID),
	}, nil
}

func parseLogLevel(s string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug, nil
	case "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("invalid LOG_LEVEL %q (allowed: debug, info, warn, error)", s)
	}
}

func getenvDefault(key, def string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return def
}

func getenvInt(key string, def int) (int, error) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return n, nil
}

func getenvDuration(key, def string) (time.Duration, error) {
	s := getenvDefault(key, def)
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return d, nil
}
