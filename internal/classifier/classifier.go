// Package classifier assigns a spray status label to an operational block.
package classifier

import (
	"context"
	"time"

	"sanjeevani-backend/internal/forecast"
)

// Features are the block values a classifier sees
type Features struct {
	TemperatureC    float64 `json:"temperature_c"`
	HumidityPercent float64 `json:"humidity_percent"`
	RainfallMm      float64 `json:"rainfall_mm"`
}

// FeaturesOf extracts classifier features from a block
func FeaturesOf(b forecast.Block) Features {
	return Features{
		TemperatureC:    b.TemperatureC,
		HumidityPercent: b.HumidityPercent,
		RainfallMm:      b.RainfallMm,
	}
}

// Classifier returns a status label, forecast.StatusFavorable or
// forecast.StatusUnfavorable for the built-in implementations.
type Classifier interface {
	Name() string
	Classify(ctx context.Context, f Features) (string, error)
}

// Thresholds bound the conditions considered favorable for spraying
type Thresholds struct {
	MinTemperatureC float64
	MaxTemperatureC float64
	MinHumidity     float64
	MaxHumidity     float64
	MaxRainfallMm   float64
}

// DefaultThresholds are moderate temperature, moderate humidity, and
// practically no rain
func DefaultThresholds() Thresholds {
	return Thresholds{
		MinTemperatureC: 10,
		MaxTemperatureC: 32,
		MinHumidity:     40,
		MaxHumidity:     90,
		MaxRainfallMm:   0.5,
	}
}

// ThresholdClassifier is a rule-based classifier used when no model endpoint is configured
type ThresholdClassifier struct {
	thresholds Thresholds
}

// NewThresholdClassifier creates a rule-based classifier
func NewThresholdClassifier(t Thresholds) *ThresholdClassifier {
	return &ThresholdClassifier{thresholds: t}
}

// Name identifies the classifier in logs and metrics
func (c *ThresholdClassifier) Name() string {
	return "threshold"
}

// Classify marks a block favorable when every feature is within bounds.
// Bounds are inclusive except rainfall, which must stay below the maximum.
func (c *ThresholdClassifier) Classify(_ context.Context, f Features) (string, error) {
	t := c.thresholds

	switch {
	case f.TemperatureC < t.MinTemperatureC || f.TemperatureC > t.MaxTemperatureC:
		return forecast.StatusUnfavorable, nil
	case f.HumidityPercent < t.MinHumidity || f.HumidityPercent > t.MaxHumidity:
		return forecast.StatusUnfavorable, nil
	case f.RainfallMm >= t.MaxRainfallMm:
		return forecast.StatusUnfavorable, nil
	}

	return forecast.StatusFavorable, nil
}

// New returns the remote classifier when modelURL is set and the threshold
// classifier otherwise
func New(modelURL string, timeout time.Duration, t Thresholds) Classifier {
	if modelURL != "" {
		return NewRemoteClassifier(modelURL, timeout)
	}
	return NewThresholdClassifier(t)
}
