package models

import (
	"time"

	"sanjeevani-backend/internal/forecast"
)

// WeatherBlock is a persisted operational block, keyed by UniqueKey
type WeatherBlock struct {
	ID               int64     `json:"id" db:"id"`
	UniqueKey        string    `json:"unique_key" db:"unique_key"`
	SessionID        string    `json:"session_id" db:"session_id"`
	DayIndex         int       `json:"day_index" db:"day_index"`
	BlockIndex       int       `json:"block_index" db:"block_index"`
	TemperatureC     float64   `json:"temperature_c" db:"temperature_c"`
	HumidityPercent  float64   `json:"humidity_percent" db:"humidity_percent"`
	RainfallMm       float64   `json:"rainfall_mm" db:"rainfall_mm"`
	ForecastTime     time.Time `json:"forecast_time" db:"forecast_time"`
	UTCOffsetSeconds int       `json:"utc_offset_seconds" db:"utc_offset_seconds"`
	Latitude         float64   `json:"latitude" db:"latitude"`
	Longitude        float64   `json:"longitude" db:"longitude"`
	Source           string    `json:"source" db:"source"`
	Synthesized      bool      `json:"synthesized" db:"synthesized"`
	CreatedAt        time.Time `json:"created_at" db:"created_at"`
}

// NewWeatherBlock prepares a block for storage. createdAt is the session
// marker shared by every block of one ingestion.
func NewWeatherBlock(b forecast.Block, sessionID, source string, createdAt time.Time) (*WeatherBlock, error) {
	key, err := forecast.IdentityKey(sessionID, b.DayIndex, b.BlockIndex)
	if err != nil {
		return nil, err
	}

	_, offset := b.ReferenceTime.Zone()

	return &WeatherBlock{
		UniqueKey:        key,
		SessionID:        sessionID,
		DayIndex:         b.DayIndex,
		BlockIndex:       b.BlockIndex,
		TemperatureC:     b.TemperatureC,
		HumidityPercent:  b.HumidityPercent,
		RainfallMm:       b.RainfallMm,
		ForecastTime:     b.ReferenceTime,
		UTCOffsetSeconds: offset,
		Latitude:         b.Latitude,
		Longitude:        b.Longitude,
		Source:           source,
		Synthesized:      b.Synthesized,
		CreatedAt:        createdAt,
	}, nil
}

// LocalForecastTime restores the location-local wall time the block was built with
func (w *WeatherBlock) LocalForecastTime() time.Time {
	return forecast.LocalTime(w.ForecastTime, w.UTCOffsetSeconds)
}

// ToBlock converts the stored row back into a domain block
func (w *WeatherBlock) ToBlock() forecast.Block {
	return forecast.Block{
		DayIndex:        w.DayIndex,
		BlockIndex:      w.BlockIndex,
		TemperatureC:    w.TemperatureC,
		HumidityPercent: w.HumidityPercent,
		RainfallMm:      w.RainfallMm,
		ReferenceTime:   w.LocalForecastTime(),
		Latitude:        w.Latitude,
		Longitude:       w.Longitude,
		Synthesized:     w.Synthesized,
	}
}

// SprayPrediction is a classified block, keyed by the block's UniqueKey
type SprayPrediction struct {
	ID               int64     `json:"id" db:"id"`
	UniqueKey        string    `json:"unique_key" db:"unique_key"`
	TemperatureC     float64   `json:"temperature_c" db:"temperature_c"`
	HumidityPercent  float64   `json:"humidity_percent" db:"humidity_percent"`
	RainfallMm       float64   `json:"rainfall_mm" db:"rainfall_mm"`
	ForecastTime     time.Time `json:"forecast_time" db:"forecast_time"`
	UTCOffsetSeconds int       `json:"utc_offset_seconds" db:"utc_offset_seconds"`
	Status           string    `json:"status" db:"status"`
	CreatedAt        time.Time `json:"created_at" db:"created_at"`
	UpdatedAt        time.Time `json:"updated_at" db:"updated_at"`
}

// NewSprayPrediction attaches a classifier status to a stored block
func NewSprayPrediction(block *WeatherBlock, status string, now time.Time) *SprayPrediction {
	return &SprayPrediction{
		UniqueKey:        block.UniqueKey,
		TemperatureC:     block.TemperatureC,
		HumidityPercent:  block.HumidityPercent,
		RainfallMm:       block.RainfallMm,
		ForecastTime:     block.ForecastTime,
		UTCOffsetSeconds: block.UTCOffsetSeconds,
		Status:           status,
		CreatedAt:        block.CreatedAt,
		UpdatedAt:        now,
	}
}

// ToClassifiedBlock converts the stored prediction for window selection
func (p *SprayPrediction) ToClassifiedBlock() forecast.ClassifiedBlock {
	return forecast.ClassifiedBlock{
		Block: forecast.Block{
			TemperatureC:    p.TemperatureC,
			HumidityPercent: p.HumidityPercent,
			RainfallMm:      p.RainfallMm,
			ReferenceTime:   forecast.LocalTime(p.ForecastTime, p.UTCOffsetSeconds),
		},
		Status:           p.Status,
		SessionCreatedAt: p.CreatedAt,
	}
}

// ValidationError represents a data validation error
type ValidationError struct {
	Field   string
	Value   string
	Message string
}

func (e *ValidationError) Error() string {
	return e.Message
}

// IsTransient returns false as validation errors are permanent
func (e *ValidationError) IsTransient() bool {
	return false
}
