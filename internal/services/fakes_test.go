package services

import (
	"context"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"sanjeevani-backend/internal/classifier"
	"sanjeevani-backend/internal/forecast"
	"sanjeevani-backend/internal/models"
	"sanjeevani-backend/internal/repository"
	"sanjeevani-backend/pkg/logging"
	"sanjeevani-backend/pkg/metrics"
)

const istOffset = 19800

var ist = time.FixedZone("IST", istOffset)

func testDeps(t *testing.T) (*logging.StructuredLogger, *metrics.Collector) {
	t.Helper()
	logger := logging.NewStructuredLogger("test", "0", logging.DebugLevel)
	logger.SetOutput(io.Discard)
	return logger, metrics.NewCollector("test", prometheus.NewRegistry())
}

type fakeSource struct {
	mu       sync.Mutex
	forecast forecast.Forecast
	err      error
	calls    int
}

func (f *fakeSource) Name() string { return "fake" }

func (f *fakeSource) FetchForecast(_ context.Context, lat, lon float64) (forecast.Forecast, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.err != nil {
		return forecast.Forecast{}, f.err
	}
	out := f.forecast
	out.Latitude, out.Longitude = lat, lon
	return out, nil
}

// fakeWeatherRepo keeps rows in memory keyed by unique key
type fakeWeatherRepo struct {
	mu          sync.Mutex
	blocks      map[string]*models.WeatherBlock
	predictions map[string]*models.SprayPrediction
	upserts     int

	upsertErr error
	latestErr error
}

var _ repository.WeatherRepository = (*fakeWeatherRepo)(nil)

func newFakeWeatherRepo() *fakeWeatherRepo {
	return &fakeWeatherRepo{
		blocks:      make(map[string]*models.WeatherBlock),
		predictions: make(map[string]*models.SprayPrediction),
	}
}

func (r *fakeWeatherRepo) UpsertBlocks(_ context.Context, blocks []*models.WeatherBlock) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.upsertErr != nil {
		return r.upsertErr
	}
	r.upserts++
	for _, b := range blocks {
		copied := *b
		r.blocks[b.UniqueKey] = &copied
	}
	return nil
}

func (r *fakeWeatherRepo) LatestSession(context.Context) (time.Time, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.latestErr != nil {
		return time.Time{}, r.latestErr
	}
	var latest time.Time
	for _, b := range r.blocks {
		if b.CreatedAt.After(latest) {
			latest = b.CreatedAt
		}
	}
	if latest.IsZero() {
		return time.Time{}, &repository.NotFoundError{Resource: "weather_session", ID: "latest"}
	}
	return latest, nil
}

func (r *fakeWeatherRepo) GetSessionBlocks(_ context.Context, createdAt time.Time) ([]*models.WeatherBlock, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*models.WeatherBlock
	for _, b := range r.blocks {
		if b.CreatedAt.Equal(createdAt) {
			out = append(out, b)
		}
	}
	return out, nil
}

func (r *fakeWeatherRepo) UpsertPredictions(_ context.Context, predictions []*models.SprayPrediction) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.upsertErr != nil {
		return r.upsertErr
	}
	for _, p := range predictions {
		r.predictions[p.UniqueKey] = p
	}
	return nil
}

func (r *fakeWeatherRepo) GetFavorablePredictions(_ context.Context, createdAt time.Time, labels []string) ([]*models.SprayPrediction, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*models.SprayPrediction
	for _, p := range r.predictions {
		if !p.CreatedAt.Equal(createdAt) {
			continue
		}
		for _, l := range labels {
			if p.Status == l {
				out = append(out, p)
				break
			}
		}
	}
	return out, nil
}

func (r *fakeWeatherRepo) HealthCheck(context.Context) error { return nil }

// fakeClassifier labels blocks by temperature and fails for listed temperatures
type fakeClassifier struct {
	favorableAbove float64
	failOn         map[float64]bool
}

func (c *fakeClassifier) Name() string { return "fake" }

func (c *fakeClassifier) Classify(_ context.Context, f classifier.Features) (string, error) {
	if c.failOn[f.TemperatureC] {
		return "", io.ErrUnexpectedEOF
	}
	if f.TemperatureC > c.favorableAbove {
		return forecast.StatusFavorable, nil
	}
	return forecast.StatusUnfavorable, nil
}

// istSample builds a provider sample at a local IST wall time
func istSample(day, hour int, temp, humidity, rain float64) forecast.Sample {
	return forecast.Sample{
		Timestamp:       time.Date(2026, 3, day, hour, 0, 0, 0, ist).UTC(),
		TemperatureC:    temp,
		HumidityPercent: humidity,
		RainfallMm:      rain,
	}
}
