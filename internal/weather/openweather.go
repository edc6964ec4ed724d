// Package weather looks up current conditions and a short forecast for a
// farmer's location.
package weather

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/NAME-ASHWANIYADAV/agriloop/internal/reliability"
)

const defaultBaseURL = "https://api.openweathermap.org/data/2.5"

var (
	ErrNotConfigured    = errors.New("weather lookup not configured")
	ErrLocationNotFound = errors.New("location not found")
)

// Provider is the weather lookup contract used by the advisor.
type Provider interface {
	Lookup(ctx context.Context, location string) (Report, error)
}

// Report is current conditions plus the next few forecast slots.
type Report struct {
	Location    string    `json:"location"`
	Description string    `json:"description"`
	TempC       float64   `json:"temp_c"`
	FeelsLikeC  float64   `json:"feels_like_c"`
	Humidity    int       `json:"humidity_pct"`
	WindMS      float64   `json:"wind_m_s"`
	RainMM      float64   `json:"rain_1h_mm,omitempty"`
	ObservedAt  time.Time `json:"observed_at"`
	Forecast    []Slot    `json:"forecast,omitempty"`
}

// Slot is one three-hour forecast entry.
type Slot struct {
	At          time.Time `json:"at"`
	Description string    `json:"description"`
	TempC       float64   `json:"temp_c"`
	RainChance  float64   `json:"rain_chance"`
}

// Summary renders the report as one plain-text block for a model prompt.
func (r Report) Summary() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s: %s, %.1f°C (feels %.1f°C), humidity %d%%, wind %.1f m/s",
		r.Location, r.Description, r.TempC, r.FeelsLikeC, r.Humidity, r.WindMS)
	if r.RainMM > 0 {
		fmt.Fprintf(&b, ", rain %.1f mm last hour", r.RainMM)
	}
	for _, s := range r.Forecast {
		fmt.Fprintf(&b, "\n%s UTC: %s, %.1f°C, rain chance %.0f%%",
			s.At.UTC().Format("Mon 15:04"), s.Description, s.TempC, s.RainChance*100)
	}
	return b.String()
}

// OpenWeather queries the OpenWeatherMap 2.5 API.
type OpenWeather struct {
	baseURL       string
	apiKey        string
	forecastSlots int
	client        *http.Client
}

func NewOpenWeather(baseURL, apiKey string) *OpenWeather {
	baseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	return &OpenWeather{
		baseURL:       baseURL,
		apiKey:        strings.TrimSpace(apiKey),
		forecastSlots: 8,
		client:        &http.Client{Timeout: 10 * time.Second},
	}
}

type owCondition struct {
	Description string `json:"description"`
}

type owCurrent struct {
	Name    string        `json:"name"`
	Dt      int64         `json:"dt"`
	Weather []owCondition `json:"weather"`
	Main    struct {
		Temp      float64 `json:"temp"`
		FeelsLike float64 `json:"feels_like"`
		Humidity  int     `json:"humidity"`
	} `json:"main"`
	Wind struct {
		Speed float64 `json:"speed"`
	} `json:"wind"`
	Rain struct {
		OneHour float64 `json:"1h"`
	} `json:"rain"`
}

type owForecast struct {
	List []struct {
		Dt      int64         `json:"dt"`
		Weather []owCondition `json:"weather"`
		Main    struct {
			Temp float64 `json:"temp"`
		} `json:"main"`
		Pop float64 `json:"pop"`
	} `json:"list"`
}

func (o *OpenWeather) Lookup(ctx context.Context, location string) (Report, error) {
	location = strings.TrimSpace(location)
	if o.apiKey == "" {
		return Report{}, ErrNotConfigured
	}
	if location == "" {
		return Report{}, ErrLocationNotFound
	}

	var cur owCurrent
	if err := o.get(ctx, "/weather", location, &cur); err != nil {
		return Report{}, err
	}
	rep := Report{
		Location:   cur.Name,
		TempC:      cur.Main.Temp,
		FeelsLikeC: cur.Main.FeelsLike,
		Humidity:   cur.Main.Humidity,
		WindMS:     cur.Wind.Speed,
		RainMM:     cur.Rain.OneHour,
		ObservedAt: time.Unix(cur.Dt, 0).UTC(),
	}
	if rep.Location == "" {
		rep.Location = location
	}
	if len(cur.Weather) > 0 {
		rep.Description = cur.Weather[0].Description
	}

	// The forecast is a nice-to-have; current conditions alone still answer.
	var fc owForecast
	if err := o.get(ctx, "/forecast", location, &fc); err == nil {
		for i, item := range fc.List {
			if i >= o.forecastSlots {
				break
			}
			slot := Slot{At: time.Unix(item.Dt, 0).UTC(), TempC: item.Main.Temp, RainChance: item.Pop}
			if len(item.Weather) > 0 {
				slot.Description = item.Weather[0].Description
			}
			rep.Forecast = append(rep.Forecast, slot)
		}
	}
	return rep, nil
}

func (o *OpenWeather) get(ctx context.Context, path, location string, out any) error {
	q := url.Values{}
	q.Set("q", location)
	q.Set("appid", o.apiKey)
	q.Set("units", "metric")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, o.baseURL+path+"?"+q.Encode(), nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	res, err := o.client.Do(req)
	if err != nil {
		return fmt.Errorf("send request: %w", err)
	}
	defer res.Body.Close()

	switch {
	case res.StatusCode == http.StatusNotFound:
		return fmt.Errorf("%w: %q", ErrLocationNotFound, location)
	case res.StatusCode < 200 || res.StatusCode >= 300:
		body, _ := io.ReadAll(io.LimitReader(res.Body, 4<<10))
		err := fmt.Errorf("openweather http status %d: %s", res.StatusCode, string(body))
		if reliability.IsRetryableHTTPStatus(res.StatusCode) {
			return &reliability.RetryableError{Err: err}
		}
		return err
	}
	if err := json.NewDecoder(io.LimitReader(res.Body, 1<<20)).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
