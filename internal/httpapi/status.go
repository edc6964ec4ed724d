package httpapi

import (
	"fmt"
	"net/http"
)

// Status describes how the running service is wired.
type Status struct {
	SessionStore string
	MemoryStore  string
	Translator   string
	Pivot        string
	Advisor      string
	Weather      bool
	Outbound     string
	Languages    int
	DefaultLang  string
}

type statusCheck struct {
	ID     string `json:"id"`
	Status string `json:"status"` // ok|warn|error
	Label  string `json:"label"`
	Detail string `json:"detail,omitempty"`
	Fix    string `json:"fix,omitempty"`
}

type statusResponse struct {
	Status        string        `json:"status"`
	SessionStore  string        `json:"session_store"`
	MemoryStore   string        `json:"memory_store"`
	Translator    string        `json:"translator"`
	PivotLanguage string        `json:"pivot_language"`
	Advisor       string        `json:"advisor"`
	Outbound      string        `json:"outbound"`
	WSConnections int           `json:"ws_connections"`
	Checks        []statusCheck `json:"checks"`
}

func (s *Server) handleStatus(w http.ResponseWriter, _ *http.Request) {
	checks := s.status.checks()
	overall := "ok"
	for _, c := range checks {
		if c.Status != "ok" {
			overall = "degraded"
			break
		}
	}
	conns := 0
	if s.hub != nil {
		conns = s.hub.Connections()
	}
	respondJSON(w, http.StatusOK, statusResponse{
		Status:        overall,
		SessionStore:  s.status.SessionStore,
		MemoryStore:   s.status.MemoryStore,
		Translator:    s.status.Translator,
		PivotLanguage: s.status.Pivot,
		Advisor:       s.status.Advisor,
		Outbound:      s.status.Outbound,
		WSConnections: conns,
		Checks:        checks,
	})
}

func (st Status) checks() []statusCheck {
	checks := make([]statusCheck, 0, 6)

	switch st.SessionStore {
	case "postgres", "sqlite":
		checks = append(checks, statusCheck{ID: "session_store", Status: "ok", Label: "Session persistence", Detail: st.SessionStore})
	default:
		checks = append(checks, statusCheck{
			ID:     "session_store",
			Status: "warn",
			Label:  "Session persistence",
			Detail: "in-memory only",
			Fix:    "Set DATABASE_URL or SQLITE_PATH to keep registrations across restarts.",
		})
	}

	if st.Translator == "" || st.Translator == "none" {
		checks = append(checks, statusCheck{
			ID:     "translation",
			Status: "warn",
			Label:  "Translation",
			Detail: "disabled; replies are sent in " + st.Pivot,
			Fix:    "Set GOOGLE_TRANSLATE_API_KEY or LIBRETRANSLATE_URL.",
		})
	} else {
		checks = append(checks, statusCheck{ID: "translation", Status: "ok", Label: "Translation", Detail: st.Translator})
	}

	if st.Advisor == "" || st.Advisor == "mock" {
		checks = append(checks, statusCheck{
			ID:     "advisor",
			Status: "warn",
			Label:  "Farming advisor",
			Detail: "mock answers",
			Fix:    "Set OPENAI_API_KEY or ADVISOR_HTTP_URL.",
		})
	} else {
		checks = append(checks, statusCheck{ID: "advisor", Status: "ok", Label: "Farming advisor", Detail: st.Advisor})
	}

	if st.Weather {
		checks = append(checks, statusCheck{ID: "weather", Status: "ok", Label: "Weather lookup", Detail: "openweathermap"})
	} else {
		checks = append(checks, statusCheck{
			ID:     "weather",
			Status: "warn",
			Label:  "Weather lookup",
			Detail: "not configured",
			Fix:    "Set OPENWEATHER_API_KEY.",
		})
	}

	if st.Outbound == "twilio" {
		checks = append(checks, statusCheck{ID: "outbound", Status: "ok", Label: "WhatsApp delivery", Detail: "twilio"})
	} else {
		checks = append(checks, statusCheck{
			ID:     "outbound",
			Status: "warn",
			Label:  "WhatsApp delivery",
			Detail: "replies are logged, not sent",
			Fix:    "Set TWILIO_ACCOUNT_SID, TWILIO_AUTH_TOKEN and TWILIO_PHONE_NUMBER.",
		})
	}

	if st.Languages > 0 {
		checks = append(checks, statusCheck{
			ID:     "languages",
			Status: "ok",
			Label:  "Language catalog",
			Detail: fmt.Sprintf("%d languages, default %s", st.Languages, st.DefaultLang),
		})
	} else {
		checks = append(checks, statusCheck{ID: "languages", Status: "error", Label: "Language catalog", Detail: "empty"})
	}
	return checks
}
