package weather

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newServer(t *testing.T, forecastStatus int) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "key", r.URL.Query().Get("appid"))
		assert.Equal(t, "metric", r.URL.Query().Get("units"))
		if r.URL.Query().Get("q") == "Atlantis" {
			http.NotFound(w, r)
			return
		}
		switch r.URL.Path {
		case "/weather":
			_, _ = w.Write([]byte(`{"name":"Nashik","dt":1767225600,"weather":[{"description":"light rain"}],
				"main":{"temp":24.5,"feels_like":25.1,"humidity":81},"wind":{"speed":3.2},"rain":{"1h":1.4}}`))
		case "/forecast":
			if forecastStatus != http.StatusOK {
				w.WriteHeader(forecastStatus)
				return
			}
			_, _ = w.Write([]byte(`{"list":[{"dt":1767236400,"weather":[{"description":"overcast"}],"main":{"temp":23},"pop":0.6}]}`))
		}
	}))
}

func TestOpenWeatherLookup(t *testing.T) {
	srv := newServer(t, http.StatusOK)
	defer srv.Close()

	rep, err := NewOpenWeather(srv.URL, "key").Lookup(context.Background(), "Nashik")
	require.NoError(t, err)
	assert.Equal(t, "Nashik", rep.Location)
	assert.Equal(t, "light rain", rep.Description)
	assert.Equal(t, 81, rep.Humidity)
	require.Len(t, rep.Forecast, 1)
	assert.InDelta(t, 0.6, rep.Forecast[0].RainChance, 1e-9)

	summary := rep.Summary()
	assert.Contains(t, summary, "light rain")
	assert.Contains(t, summary, "rain chance 60%")
}

func TestOpenWeatherForecastFailureKeepsCurrent(t *testing.T) {
	srv := newServer(t, http.StatusBadGateway)
	defer srv.Close()

	rep, err := NewOpenWeather(srv.URL, "key").Lookup(context.Background(), "Nashik")
	require.NoError(t, err)
	assert.Empty(t, rep.Forecast)
	assert.InDelta(t, 24.5, rep.TempC, 1e-9)
}

func TestOpenWeatherErrors(t *testing.T) {
	srv := newServer(t, http.StatusOK)
	defer srv.Close()

	_, err := NewOpenWeather(srv.URL, "key").Lookup(context.Background(), "Atlantis")
	assert.ErrorIs(t, err, ErrLocationNotFound)

	_, err = NewOpenWeather(srv.URL, "").Lookup(context.Background(), "Nashik")
	assert.ErrorIs(t, err, ErrNotConfigured)
}
