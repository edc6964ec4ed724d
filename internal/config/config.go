package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config contains all runtime settings for the messaging assistant.
type Config struct {
	BindAddr         string
	ShutdownTimeout  time.Duration
	MetricsNamespace string
	AllowAnyOrigin   bool
	// DevChat mounts the developer websocket channel.
	DevChat bool

	LogLevel  string
	LogFormat string

	SessionStore string
	DatabaseURL  string
	SQLitePath   string

	PivotLanguage       string
	LanguageCatalogPath string

	TranslateProvider     string
	GoogleTranslateAPIKey string
	GoogleTranslateURL    string
	LibreTranslateURL     string
	LibreTranslateAPIKey  string
	TranslateTimeout      time.Duration

	AdvisorMode       string
	OpenAIAPIKey      string
	OpenAIBaseURL     string
	OpenAIModel       string
	OpenAIVisionModel string
	AdvisorHTTPURL    string
	QueryTimeout      time.Duration
	HistoryTurns      int

	OpenWeatherAPIKey  string
	OpenWeatherBaseURL string

	TwilioAccountSID  string
	TwilioAuthToken   string
	TwilioPhoneNumber string
	TwilioAPIBaseURL  string

	OutboundChunkRunes int
}

// TwilioConfigured reports whether outbound WhatsApp delivery is possible.
func (c Config) TwilioConfigured() bool {
	return c.TwilioAccountSID != "" && c.TwilioAuthToken != "" && c.TwilioPhoneNumber != ""
}

// Load reads environment variables and applies safe defaults.
func Load() (Config, error) {
	cfg := Config{
		BindAddr:         envOrDefault("APP_BIND_ADDR", ":8080"),
		MetricsNamespace: envOrDefault("APP_METRICS_NAMESPACE", "agriloop"),
		LogLevel:         strings.ToLower(envOrDefault("LOG_LEVEL", "info")),
		LogFormat:        strings.ToLower(envOrDefault("LOG_FORMAT", "json")),
		SessionStore:     strings.ToLower(envOrDefault("SESSION_STORE", "auto")),
		DatabaseURL:      stringsTrimSpace("DATABASE_URL"),
		SQLitePath:       stringsTrimSpace("SQLITE_PATH"),

		PivotLanguage:       strings.ToLower(envOrDefault("PIVOT_LANGUAGE", "en")),
		LanguageCatalogPath: stringsTrimSpace("LANGUAGE_CATALOG_PATH"),

		TranslateProvider:     strings.ToLower(envOrDefault("TRANSLATE_PROVIDER", "auto")),
		GoogleTranslateAPIKey: stringsTrimSpace("GOOGLE_TRANSLATE_API_KEY"),
		GoogleTranslateURL:    envOrDefault("GOOGLE_TRANSLATE_URL", "https://translation.googleapis.com/language/translate/v2"),
		LibreTranslateURL:     stringsTrimSpace("LIBRETRANSLATE_URL"),
		LibreTranslateAPIKey:  stringsTrimSpace("LIBRETRANSLATE_API_KEY"),
		TranslateTimeout:      8 * time.Second,

		AdvisorMode:       strings.ToLower(envOrDefault("ADVISOR_MODE", "auto")),
		OpenAIAPIKey:      stringsTrimSpace("OPENAI_API_KEY"),
		OpenAIBaseURL:     stringsTrimSpace("OPENAI_BASE_URL"),
		OpenAIModel:       envOrDefault("OPENAI_MODEL", "gpt-4o-mini"),
		OpenAIVisionModel: envOrDefault("OPENAI_VISION_MODEL", "gpt-4o"),
		// Empty by default; the HTTP advisor is only used when explicitly set.
		AdvisorHTTPURL: stringsTrimSpace("ADVISOR_HTTP_URL"),
		QueryTimeout:   25 * time.Second,
		HistoryTurns:   3,

		OpenWeatherAPIKey:  stringsTrimSpace("OPENWEATHER_API_KEY"),
		OpenWeatherBaseURL: envOrDefault("OPENWEATHER_BASE_URL", "https://api.openweathermap.org/data/2.5"),

		TwilioAccountSID:  stringsTrimSpace("TWILIO_ACCOUNT_SID"),
		TwilioAuthToken:   stringsTrimSpace("TWILIO_AUTH_TOKEN"),
		TwilioPhoneNumber: strings.TrimPrefix(stringsTrimSpace("TWILIO_PHONE_NUMBER"), "whatsapp:"),
		TwilioAPIBaseURL:  envOrDefault("TWILIO_API_BASE_URL", "https://api.twilio.com"),

		// WhatsApp caps a body at 1600 characters; leave headroom.
		OutboundChunkRunes: 1590,
		ShutdownTimeout:    15 * time.Second,
	}
	var err error
	cfg.ShutdownTimeout, err = durationFromEnv("APP_SHUTDOWN_TIMEOUT", cfg.ShutdownTimeout)
	if err != nil {
		return Config{}, err
	}
	cfg.AllowAnyOrigin, err = boolFromEnv("APP_ALLOW_ANY_ORIGIN", cfg.AllowAnyOrigin)
	if err != nil {
		return Config{}, err
	}
	cfg.DevChat, err = boolFromEnv("APP_DEV_CHAT", cfg.DevChat)
	if err != nil {
		return Config{}, err
	}
	cfg.TranslateTimeout, err = durationFromEnv("TRANSLATE_TIMEOUT", cfg.TranslateTimeout)
	if err != nil {
		return Config{}, err
	}
	cfg.QueryTimeout, err = durationFromEnv("QUERY_TIMEOUT", cfg.QueryTimeout)
	if err != nil {
		return Config{}, err
	}
	cfg.HistoryTurns, err = intFromEnv("HISTORY_TURNS", cfg.HistoryTurns)
	if err != nil {
		return Config{}, err
	}
	cfg.OutboundChunkRunes, err = intFromEnv("OUTBOUND_CHUNK_RUNES", cfg.OutboundChunkRunes)
	if err != nil {
		return Config{}, err
	}

	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) validate() error {
	if !oneOf(c.LogLevel, "debug", "info", "warn", "error") {
		return fmt.Errorf("LOG_LEVEL must be one of debug, info, warn, error")
	}
	if !oneOf(c.LogFormat, "json", "text") {
		return fmt.Errorf("LOG_FORMAT must be json or text")
	}
	if !oneOf(c.SessionStore, "auto", "memory", "postgres", "sqlite") {
		return fmt.Errorf("SESSION_STORE must be one of auto, memory, postgres, sqlite")
	}
	if c.SessionStore == "postgres" && c.DatabaseURL == "" {
		return fmt.Errorf("SESSION_STORE=postgres requires DATABASE_URL")
	}
	if c.SessionStore == "sqlite" && c.SQLitePath == "" {
		return fmt.Errorf("SESSION_STORE=sqlite requires SQLITE_PATH")
	}
	if c.PivotLanguage == "" {
		return fmt.Errorf("PIVOT_LANGUAGE must not be empty")
	}
	if !oneOf(c.TranslateProvider, "auto", "google", "libre", "none", "mock") {
		return fmt.Errorf("TRANSLATE_PROVIDER must be one of auto, google, libre, none")
	}
	if !oneOf(c.AdvisorMode, "auto", "openai", "http", "mock") {
		return fmt.Errorf("ADVISOR_MODE must be one of auto, openai, http, mock")
	}
	if c.QueryTimeout < time.Second {
		return fmt.Errorf("QUERY_TIMEOUT must be at least 1s")
	}
	if c.TranslateTimeout <= 0 {
		return fmt.Errorf("TRANSLATE_TIMEOUT must be positive")
	}
	if c.HistoryTurns < 0 {
		return fmt.Errorf("HISTORY_TURNS must be >= 0")
	}
	if c.OutboundChunkRunes < 160 || c.OutboundChunkRunes > 1600 {
		return fmt.Errorf("OUTBOUND_CHUNK_RUNES must be between 160 and 1600")
	}
	return nil
}

func oneOf(v string, allowed ...string) bool {
	for _, a := range allowed {
		if v == a {
			return true
		}
	}
	return false
}

func envOrDefault(key, fallback string) string {
	v := stringsTrimSpace(key)
	if v == "" {
		return fallback
	}
	return v
}

func stringsTrimSpace(key string) string {
	return strings.TrimSpace(os.Getenv(key))
}

func durationFromEnv(key string, fallback time.Duration) (time.Duration, error) {
	v := stringsTrimSpace(key)
	if v == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("%s parse error: %w", key, err)
	}
	return d, nil
}

func intFromEnv(key string, fallback int) (int, error) {
	v := stringsTrimSpace(key)
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%s parse error: %w", key, err)
	}
	return n, nil
}

func boolFromEnv(key string, fallback bool) (bool, error) {
	v := strings.ToLower(stringsTrimSpace(key))
	if v == "" {
		return fallback, nil
	}
	switch v {
	case "1", "true", "t", "yes", "y", "on":
		return true, nil
	case "0", "false", "f", "no", "n", "off":
		return false, nil
	default:
		return false, fmt.Errorf("%s parse error: expected bool", key)
	}
}
