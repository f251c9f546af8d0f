package classifier

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sanjeevani-backend/internal/forecast"
)

func TestThresholdClassifier_Classify(t *testing.T) {
	c := NewThresholdClassifier(DefaultThresholds())

	tests := []struct {
		name     string
		features Features
		want     string
	}{
		{"mild and dry", Features{TemperatureC: 24, HumidityPercent: 60, RainfallMm: 0}, "1"},
		{"at lower bounds", Features{TemperatureC: 10, HumidityPercent: 40, RainfallMm: 0.49}, "1"},
		{"too hot", Features{TemperatureC: 35, HumidityPercent: 60}, "0"},
		{"too cold", Features{TemperatureC: 4, HumidityPercent: 60}, "0"},
		{"too dry air", Features{TemperatureC: 24, HumidityPercent: 20}, "0"},
		{"saturated", Features{TemperatureC: 24, HumidityPercent: 95}, "0"},
		{"raining", Features{TemperatureC: 24, HumidityPercent: 60, RainfallMm: 0.5}, "0"},
		{"placeholder block", Features{}, "0"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := c.Classify(context.Background(), tt.features)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestFeaturesOf(t *testing.T) {
	f := FeaturesOf(forecast.Block{TemperatureC: 21.5, HumidityPercent: 70, RainfallMm: 1.2})

	assert.Equal(t, Features{TemperatureC: 21.5, HumidityPercent: 70, RainfallMm: 1.2}, f)
}

func TestRemoteClassifier_Classify(t *testing.T) {
	tests := []struct {
		name     string
		response string
		want     string
		wantErr  bool
	}{
		{"string label", `{"status": "1"}`, "1", false},
		{"integer label", `{"status": 0}`, "0", false},
		{"float label", `{"status": 1.0}`, "1", false},
		{"boolean label", `{"status": true}`, "1", false},
		{"missing status", `{}`, "", true},
		{"object status", `{"status": {"v": 1}}`, "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				assert.Equal(t, http.MethodPost, r.Method)
				assert.Equal(t, "application/json", r.Header.Get("Content-Type"))

				var got Features
				assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
				assert.Equal(t, 24.0, got.TemperatureC)

				io.WriteString(w, tt.response)
			}))
			defer srv.Close()

			c := NewRemoteClassifier(srv.URL, time.Second)
			got, err := c.Classify(context.Background(), Features{TemperatureC: 24, HumidityPercent: 60})

			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestRemoteClassifier_UpstreamFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	_, err := NewRemoteClassifier(srv.URL, time.Second).Classify(context.Background(), Features{})

	require.Error(t, err)
	assert.Contains(t, err.Error(), "spray model request failed")
}

func TestNewSelectsImplementation(t *testing.T) {
	assert.Equal(t, "threshold", New("", time.Second, DefaultThresholds()).Name())
	assert.Equal(t, "remote", New("http://model.local/predict", time.Second, DefaultThresholds()).Name())
}
