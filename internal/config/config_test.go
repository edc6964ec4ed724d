package config

import (
	"strings"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	setCoreEnvEmpty(t)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.SessionStore != "auto" {
		t.Fatalf("SessionStore = %q, want auto", cfg.SessionStore)
	}
	if cfg.PivotLanguage != "en" {
		t.Fatalf("PivotLanguage = %q, want en", cfg.PivotLanguage)
	}
	if cfg.AdvisorHTTPURL != "" {
		t.Fatalf("AdvisorHTTPURL = %q, want empty default", cfg.AdvisorHTTPURL)
	}
	if cfg.QueryTimeout != 25*time.Second {
		t.Fatalf("QueryTimeout = %s, want 25s", cfg.QueryTimeout)
	}
	if cfg.OutboundChunkRunes != 1590 {
		t.Fatalf("OutboundChunkRunes = %d, want 1590", cfg.OutboundChunkRunes)
	}
	if cfg.TwilioConfigured() {
		t.Fatalf("TwilioConfigured() = true with no credentials")
	}
	if cfg.DevChat {
		t.Fatalf("DevChat = true, want off by default")
	}
}

func TestLoadExplicitValues(t *testing.T) {
	setCoreEnvEmpty(t)
	t.Setenv("APP_BIND_ADDR", ":9191")
	t.Setenv("SESSION_STORE", "SQLite")
	t.Setenv("SQLITE_PATH", "/tmp/agriloop.db")
	t.Setenv("QUERY_TIMEOUT", "40s")
	t.Setenv("HISTORY_TURNS", "0")
	t.Setenv("TWILIO_ACCOUNT_SID", "AC123")
	t.Setenv("TWILIO_AUTH_TOKEN", "secret")
	t.Setenv("TWILIO_PHONE_NUMBER", "whatsapp:+14155238886")
	t.Setenv("APP_DEV_CHAT", "true")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.BindAddr != ":9191" || cfg.SessionStore != "sqlite" || cfg.SQLitePath != "/tmp/agriloop.db" {
		t.Fatalf("unexpected store config: %+v", cfg)
	}
	if cfg.QueryTimeout != 40*time.Second || cfg.HistoryTurns != 0 {
		t.Fatalf("QueryTimeout=%s HistoryTurns=%d", cfg.QueryTimeout, cfg.HistoryTurns)
	}
	if cfg.TwilioPhoneNumber != "+14155238886" {
		t.Fatalf("TwilioPhoneNumber = %q, want prefix stripped", cfg.TwilioPhoneNumber)
	}
	if !cfg.TwilioConfigured() {
		t.Fatalf("TwilioConfigured() = false")
	}
	if !cfg.DevChat {
		t.Fatalf("DevChat = false, want true")
	}
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	tests := []struct {
		key, value, want string
	}{
		{"SESSION_STORE", "redis", "SESSION_STORE"},
		{"SESSION_STORE", "postgres", "DATABASE_URL"},
		{"TRANSLATE_PROVIDER", "deepl", "TRANSLATE_PROVIDER"},
		{"ADVISOR_MODE", "cli", "ADVISOR_MODE"},
		{"QUERY_TIMEOUT", "soon", "QUERY_TIMEOUT"},
		{"QUERY_TIMEOUT", "10ms", "QUERY_TIMEOUT"},
		{"HISTORY_TURNS", "-1", "HISTORY_TURNS"},
		{"OUTBOUND_CHUNK_RUNES", "5000", "OUTBOUND_CHUNK_RUNES"},
		{"APP_ALLOW_ANY_ORIGIN", "maybe", "APP_ALLOW_ANY_ORIGIN"},
		{"APP_DEV_CHAT", "sometimes", "APP_DEV_CHAT"},
		{"LOG_FORMAT", "xml", "LOG_FORMAT"},
	}
	for _, tt := range tests {
		t.Run(tt.key+"="+tt.value, func(t *testing.T) {
			setCoreEnvEmpty(t)
			t.Setenv(tt.key, tt.value)
			_, err := Load()
			if err == nil {
				t.Fatalf("Load() error = nil, want error mentioning %s", tt.want)
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Fatalf("Load() error = %v, want mention of %s", err, tt.want)
			}
		})
	}
}

func setCoreEnvEmpty(t *testing.T) {
	t.Helper()
	keys := []string{
		"APP_BIND_ADDR",
		"APP_SHUTDOWN_TIMEOUT",
		"APP_METRICS_NAMESPACE",
		"APP_ALLOW_ANY_ORIGIN",
		"APP_DEV_CHAT",
		"LOG_LEVEL",
		"LOG_FORMAT",
		"SESSION_STORE",
		"DATABASE_URL",
		"SQLITE_PATH",
		"PIVOT_LANGUAGE",
		"LANGUAGE_CATALOG_PATH",
		"TRANSLATE_PROVIDER",
		"GOOGLE_TRANSLATE_API_KEY",
		"GOOGLE_TRANSLATE_URL",
		"LIBRETRANSLATE_URL",
		"LIBRETRANSLATE_API_KEY",
		"TRANSLATE_TIMEOUT",
		"ADVISOR_MODE",
		"OPENAI_API_KEY",
		"OPENAI_BASE_URL",
		"OPENAI_MODEL",
		"OPENAI_VISION_MODEL",
		"ADVISOR_HTTP_URL",
		"QUERY_TIMEOUT",
		"HISTORY_TURNS",
		"OPENWEATHER_API_KEY",
		"OPENWEATHER_BASE_URL",
		"TWILIO_ACCOUNT_SID",
		"TWILIO_AUTH_TOKEN",
		"TWILIO_PHONE_NUMBER",
		"TWILIO_API_BASE_URL",
		"OUTBOUND_CHUNK_RUNES",
	}
	for _, key := range keys {
		t.Setenv(key, "")
	}
}
