// Package provider fetches multi-day forecasts from upstream weather APIs.
package provider

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/sony/gobreaker"

	"sanjeevani-backend/internal/forecast"
	"sanjeevani-backend/internal/resilience"
	"sanjeevani-backend/pkg/logging"
	"sanjeevani-backend/pkg/metrics"
)

// OpenWeatherName is the provenance label for OpenWeatherMap data
const OpenWeatherName = "OpenWeatherMap"

// ErrNoAPIKey is returned when no OpenWeatherMap key is configured
var ErrNoAPIKey = errors.New("openweather api key is not configured")

// OpenWeatherConfig configures the OpenWeatherMap 5 day / 3 hour forecast client
type OpenWeatherConfig struct {
	APIKey     string
	BaseURL    string
	Timeout    time.Duration
	MaxRetries int
}

// OpenWeatherProvider fetches forecasts from OpenWeatherMap
type OpenWeatherProvider struct {
	apiKey   string
	endpoint string
	httpCfg  resilience.HTTPClientConfig
	circuit  *gobreaker.CircuitBreaker
	logger   *logging.StructuredLogger
	metrics  *metrics.Collector
}

// NewOpenWeatherProvider creates a forecast client
func NewOpenWeatherProvider(cfg OpenWeatherConfig, logger *logging.StructuredLogger, metricsCollector *metrics.Collector) *OpenWeatherProvider {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = "https://api.openweathermap.org"
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	return &OpenWeatherProvider{
		apiKey:   cfg.APIKey,
		endpoint: strings.TrimRight(baseURL, "/") + "/data/2.5/forecast",
		httpCfg: resilience.HTTPClientConfig{
			Client: &http.Client{Timeout: timeout},
			Backoff: resilience.BackoffConfig{
				MaxRetries:      cfg.MaxRetries,
				InitialInterval: 500 * time.Millisecond,
				MaxInterval:     5 * time.Second,
			},
		},
		circuit: resilience.NewCircuitBreaker("openweather-forecast"),
		logger:  logger,
		metrics: metricsCollector,
	}
}

// Name returns the provenance label stored with ingested blocks
func (p *OpenWeatherProvider) Name() string {
	return OpenWeatherName
}

type owForecastResponse struct {
	List []owForecastItem `json:"list"`
	City struct {
		Timezone int `json:"timezone"`
	} `json:"city"`
}

type owForecastItem struct {
	Dt   int64 `json:"dt"`
	Main struct {
		Temp     float64 `json:"temp"`
		Humidity float64 `json:"humidity"`
	} `json:"main"`
	Rain *struct {
		ThreeHour float64 `json:"3h"`
	} `json:"rain,omitempty"`
}

// FetchForecast returns the forecast samples for a coordinate in provider
// order. An empty provider list yields a forecast with no samples.
func (p *OpenWeatherProvider) FetchForecast(ctx context.Context, latitude, longitude float64) (forecast.Forecast, error) {
	if p.apiKey == "" {
		return forecast.Forecast{}, ErrNoAPIKey
	}

	status := "success"
	start := time.Now()
	defer func() {
		p.metrics.ProviderRequestDuration.WithLabelValues(OpenWeatherName, status).Observe(time.Since(start).Seconds())
	}()

	buildRequest := func() (*http.Request, error) {
		values := url.Values{}
		values.Set("lat", strconv.FormatFloat(latitude, 'f', -1, 64))
		values.Set("lon", strconv.FormatFloat(longitude, 'f', -1, 64))
		values.Set("appid", p.apiKey)
		values.Set("units", "metric")

		return http.NewRequest(http.MethodGet, p.endpoint+"?"+values.Encode(), nil)
	}

	resp, err := resilience.DoRequest(ctx, p.httpCfg, p.circuit, buildRequest)
	if err != nil {
		status = "error"
		p.logger.Error(ctx, "[PROVIDER_ERROR] Forecast request failed", logging.Fields{
			"provider":  OpenWeatherName,
			"latitude":  latitude,
			"longitude": longitude,
		}, err)
		return forecast.Forecast{}, fmt.Errorf("openweather forecast request failed: %w", err)
	}
	defer resp.Body.Close()

	f, err := DecodeForecast(resp.Body, latitude, longitude)
	if err != nil {
		status = "decode_error"
		return forecast.Forecast{}, err
	}

	p.logger.Debug(ctx, "[PROVIDER_FETCH] Forecast received", logging.Fields{
		"provider":           OpenWeatherName,
		"samples":            len(f.Samples),
		"utc_offset_seconds": f.UTCOffsetSeconds,
	})

	return f, nil
}

// DecodeForecast reads an OpenWeatherMap forecast document, such as a saved
// /data/2.5/forecast response, into samples in document order
func DecodeForecast(r io.Reader, latitude, longitude float64) (forecast.Forecast, error) {
	var payload owForecastResponse
	if err := json.NewDecoder(r).Decode(&payload); err != nil {
		return forecast.Forecast{}, fmt.Errorf("failed to decode openweather forecast: %w", err)
	}

	f := forecast.Forecast{
		Samples:          make([]forecast.Sample, 0, len(payload.List)),
		UTCOffsetSeconds: payload.City.Timezone,
		Latitude:         latitude,
		Longitude:        longitude,
	}
	for _, item := range payload.List {
		sample := forecast.Sample{
			Timestamp:       time.Unix(item.Dt, 0).UTC(),
			TemperatureC:    item.Main.Temp,
			HumidityPercent: item.Main.Humidity,
		}
		if item.Rain != nil {
			sample.RainfallMm = item.Rain.ThreeHour
		}
		f.Samples = append(f.Samples, sample)
	}

	return f, nil
}
