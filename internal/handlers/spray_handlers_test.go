package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sanjeevani-backend/internal/forecast"
	"sanjeevani-backend/internal/services"
	"sanjeevani-backend/pkg/logging"
	"sanjeevani-backend/pkg/metrics"
)

func testDeps(t *testing.T) (*logging.StructuredLogger, *metrics.Collector) {
	t.Helper()
	logger := logging.NewStructuredLogger("test", "0", logging.DebugLevel)
	logger.SetOutput(io.Discard)
	return logger, metrics.NewCollector("test", prometheus.NewRegistry())
}

type stubCapturer struct {
	got    services.CaptureRequest
	result *services.CaptureResult
	err    error
	calls  int
}

func (s *stubCapturer) CaptureForecast(_ context.Context, req services.CaptureRequest) (*services.CaptureResult, error) {
	s.calls++
	s.got = req
	return s.result, s.err
}

type stubPredictor struct {
	result *services.PredictionResult
	err    error
	calls  int
}

func (s *stubPredictor) RunSprayPrediction(context.Context) (*services.PredictionResult, error) {
	s.calls++
	return s.result, s.err
}

type stubWindows struct {
	windows []forecast.ClassifiedBlock
	err     error
}

func (s *stubWindows) BestSprayTimes(context.Context) ([]forecast.ClassifiedBlock, error) {
	return s.windows, s.err
}

type stubHealth struct{ err error }

func (s stubHealth) HealthCheck(context.Context) error { return s.err }

type sprayFixture struct {
	router    *mux.Router
	capturer  *stubCapturer
	predictor *stubPredictor
	windows   *stubWindows
	metrics   *metrics.Collector
}

func newSprayFixture(t *testing.T, healthErr error) *sprayFixture {
	t.Helper()
	logger, collector := testDeps(t)
	f := &sprayFixture{
		router:    mux.NewRouter(),
		capturer:  &stubCapturer{result: &services.CaptureResult{Blocks: 20, Days: 5}},
		predictor: &stubPredictor{result: &services.PredictionResult{Classified: 20, Favorable: 6}},
		windows:   &stubWindows{},
		metrics:   collector,
	}
	h := NewSprayHandler(f.capturer, f.predictor, f.windows, stubHealth{err: healthErr}, logger, collector)
	h.RegisterRoutes(f.router)
	return f
}

func (f *sprayFixture) do(method, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)
	return rec
}

func TestSprayHandler_CaptureLogin(t *testing.T) {
	f := newSprayFixture(t, nil)

	rec := f.do(http.MethodPost, "/weather/capture-login", `{"latitude": 12.97, "longitude": 77.59, "session_id": "a1b2c3"}`)

	require.Equal(t, http.StatusOK, rec.Code)
	var resp CaptureLoginResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.True(t, resp.Success)
	assert.Equal(t, 20, resp.Blocks)
	assert.Equal(t, 20, resp.Classified)
	assert.Zero(t, resp.Unclassified)

	assert.Equal(t, services.CaptureRequest{Latitude: 12.97, Longitude: 77.59, SessionID: "a1b2c3"}, f.capturer.got)
	assert.Equal(t, 1, f.predictor.calls)
	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.APIRequestsTotal.WithLabelValues("/weather/capture-login", "POST", "200")))
}

func TestSprayHandler_CaptureLoginRejectsBadInput(t *testing.T) {
	tests := []struct {
		name        string
		body        string
		wantMessage string
	}{
		{"malformed JSON", `{"latitude":`, "invalid JSON body"},
		{"missing session", `{"latitude": 1, "longitude": 2}`, "session_id is required"},
		{"session with separator", `{"latitude": 1, "longitude": 2, "session_id": "a_b"}`, `session_id must not contain "_"`},
		{"missing latitude", `{"longitude": 2, "session_id": "abc"}`, "latitude is required"},
		{"latitude out of range", `{"latitude": 91, "longitude": 2, "session_id": "abc"}`, "latitude failed lte=90"},
		{"longitude out of range", `{"latitude": 1, "longitude": -181, "session_id": "abc"}`, "longitude failed gte=-180"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newSprayFixture(t, nil)

			rec := f.do(http.MethodPost, "/weather/capture-login", tt.body)

			require.Equal(t, http.StatusBadRequest, rec.Code)
			var resp ErrorResponse
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
			assert.Equal(t, tt.wantMessage, resp.Message)
			assert.Zero(t, f.capturer.calls)
		})
	}
}

func TestSprayHandler_CaptureLoginZeroCoordinatesAreValid(t *testing.T) {
	f := newSprayFixture(t, nil)

	rec := f.do(http.MethodPost, "/weather/capture-login", `{"latitude": 0, "longitude": 0, "session_id": "equator"}`)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 1, f.capturer.calls)
}

func TestSprayHandler_CaptureLoginFailuresDoNotFailTheRequest(t *testing.T) {
	tests := []struct {
		name           string
		captureErr     error
		predictErr     error
		predictResult  *services.PredictionResult
		wantSuccess    bool
		wantPredict    int
		wantUnclassify int
	}{
		{
			name:        "capture fails",
			captureErr:  errors.New("provider unavailable"),
			wantSuccess: false,
			wantPredict: 0,
		},
		{
			name:        "prediction fails",
			predictErr:  errors.New("model timeout"),
			wantSuccess: false,
			wantPredict: 1,
		},
		{
			name:           "some blocks unclassified",
			predictResult:  &services.PredictionResult{Classified: 18, Failures: errors.New("2 errors occurred")},
			wantSuccess:    true,
			wantPredict:    1,
			wantUnclassify: 2,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newSprayFixture(t, nil)
			f.capturer.err = tt.captureErr
			if tt.captureErr != nil {
				f.capturer.result = nil
			}
			f.predictor.err = tt.predictErr
			if tt.predictResult != nil {
				f.predictor.result = tt.predictResult
			}

			rec := f.do(http.MethodPost, "/weather/capture-login", `{"latitude": 12.97, "longitude": 77.59, "session_id": "s1"}`)

			require.Equal(t, http.StatusOK, rec.Code)
			var resp CaptureLoginResponse
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
			assert.Equal(t, tt.wantSuccess, resp.Success)
			assert.NotEmpty(t, resp.Message)
			assert.Equal(t, tt.wantUnclassify, resp.Unclassified)
			assert.Equal(t, tt.wantPredict, f.predictor.calls)
		})
	}
}

func TestSprayHandler_BestTime(t *testing.T) {
	ist := time.FixedZone("IST", 19800)
	f := newSprayFixture(t, nil)
	f.windows.windows = []forecast.ClassifiedBlock{
		{
			Block: forecast.Block{
				TemperatureC:    24.5,
				HumidityPercent: 61,
				RainfallMm:      0,
				ReferenceTime:   time.Date(2026, 3, 10, 5, 30, 0, 0, ist),
			},
			Status: "1.0",
		},
	}

	rec := f.do(http.MethodGet, "/spray/best-time", "")

	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{
		"success": true,
		"data": [{
			"temperature_c": 24.5,
			"humidity_percent": 61,
			"rainfall_mm": 0,
			"forecast_date": "2026-03-10T05:30:00+05:30",
			"status": "1.0"
		}]
	}`, rec.Body.String())
}

func TestSprayHandler_BestTimeEmptyAndFailure(t *testing.T) {
	t.Run("empty store", func(t *testing.T) {
		f := newSprayFixture(t, nil)
		f.windows.windows = []forecast.ClassifiedBlock{}

		rec := f.do(http.MethodGet, "/spray/best-time", "")

		require.Equal(t, http.StatusOK, rec.Code)
		assert.JSONEq(t, `{"success": true, "data": []}`, rec.Body.String())
	})

	t.Run("store failure", func(t *testing.T) {
		f := newSprayFixture(t, nil)
		f.windows.err = errors.New("db down")

		rec := f.do(http.MethodGet, "/spray/best-time", "")

		require.Equal(t, http.StatusInternalServerError, rec.Code)
		var resp ErrorResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		assert.Equal(t, http.StatusInternalServerError, resp.Code)
		assert.NotContains(t, rec.Body.String(), "db down")
	})
}

func TestSprayHandler_HealthCheck(t *testing.T) {
	tests := []struct {
		name       string
		healthErr  error
		wantCode   int
		wantStatus string
	}{
		{"database up", nil, http.StatusOK, "healthy"},
		{"database down", errors.New("connection refused"), http.StatusServiceUnavailable, "degraded"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newSprayFixture(t, tt.healthErr)

			rec := f.do(http.MethodGet, "/health", "")

			require.Equal(t, tt.wantCode, rec.Code)
			var body map[string]string
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
			assert.Equal(t, tt.wantStatus, body["status"])
		})
	}
}

func TestRequestID(t *testing.T) {
	var seen string
	h := RequestID(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = logging.RequestIDFromContext(r.Context())
	}))

	t.Run("generated", func(t *testing.T) {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

		assert.NotEmpty(t, seen)
		assert.Equal(t, seen, rec.Header().Get(RequestIDHeader))
	})

	t.Run("propagated", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set(RequestIDHeader, "req-42")
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)

		assert.Equal(t, "req-42", seen)
		assert.Equal(t, "req-42", rec.Header().Get(RequestIDHeader))
	})
}

func TestOpenAPISpecListsRoutes(t *testing.T) {
	router := mux.NewRouter()
	RegisterDocsRoutes(router)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/docs/openapi.json", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	var doc struct {
		Paths map[string]json.RawMessage `json:"paths"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &doc))
	for _, path := range []string{"/weather/capture-login", "/spray/best-time", "/upload-image", "/predict/{crop}", "/diagnosis/{id}", "/health"} {
		assert.Contains(t, doc.Paths, path)
	}
}
