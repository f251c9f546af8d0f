// Package forecast turns coarse multi-day weather forecasts into fixed
// six-hour operational blocks and picks favorable spray windows from them.
// Everything here is pure and safe for concurrent use.
package forecast

import (
	"fmt"
	"time"
)

const (
	// MaxForecastDays is the horizon kept from a single ingestion
	MaxForecastDays = 5
	// BlocksPerDay is the number of operational blocks in each day
	BlocksPerDay = 4
	// WindowsPerDay caps the favorable windows returned for one date
	WindowsPerDay = 2

	// WindowStartHour and WindowEndHour bound the local hours, [start, end),
	// in which a block may be offered as a spray window.
	WindowStartHour = 4
	WindowEndHour   = 22
)

// Status labels produced by spray classifiers
const (
	StatusFavorable   = "1"
	StatusUnfavorable = "0"
)

// FavorableLabels lists every status label treated as favorable
var FavorableLabels = []string{"1", "1.0"}

// Sample is one provider forecast point
type Sample struct {
	// Timestamp is the instant the sample describes
	Timestamp       time.Time
	TemperatureC    float64
	HumidityPercent float64
	// RainfallMm is accumulated over the preceding provider interval
	RainfallMm float64
}

// Forecast is one provider response for a location
type Forecast struct {
	Samples          []Sample
	UTCOffsetSeconds int
	Latitude         float64
	Longitude        float64
}

// Date is a calendar date in location-local time
type Date struct {
	Year  int
	Month time.Month
	Day   int
}

// DateOf returns the calendar date of t in t's location
func DateOf(t time.Time) Date {
	y, m, d := t.Date()
	return Date{Year: y, Month: m, Day: d}
}

// Before reports whether d is earlier than other
func (d Date) Before(other Date) bool {
	if d.Year != other.Year {
		return d.Year < other.Year
	}
	if d.Month != other.Month {
		return d.Month < other.Month
	}
	return d.Day < other.Day
}

// AddDays returns the date n days after d (n may be negative)
func (d Date) AddDays(n int) Date {
	return DateOf(time.Date(d.Year, d.Month, d.Day+n, 12, 0, 0, 0, time.UTC))
}

// At returns the instant hour:00 on d in loc
func (d Date) At(hour int, loc *time.Location) time.Time {
	return time.Date(d.Year, d.Month, d.Day, hour, 0, 0, 0, loc)
}

func (d Date) String() string {
	return fmt.Sprintf("%04d-%02d-%02d", d.Year, d.Month, d.Day)
}

// Slot identifies the operational day and block a sample belongs to
type Slot struct {
	Day   Date
	Block int
}

// Block is one aggregated six-hour operational block
type Block struct {
	// DayIndex is the 1-based rank of the operational day in the ingestion
	DayIndex int
	// BlockIndex is 1..BlocksPerDay
	BlockIndex      int
	TemperatureC    float64
	HumidityPercent float64
	RainfallMm      float64
	// ReferenceTime is location-local: the first sample's local time, or the
	// block anchor hour when no sample fell in the block
	ReferenceTime time.Time
	Latitude      float64
	Longitude     float64
	// Synthesized marks blocks emitted with placeholder values
	Synthesized bool
}

// ClassifiedBlock is a stored block with its spray status attached
type ClassifiedBlock struct {
	Block
	Status string
	// SessionCreatedAt is the ingestion marker shared by every block of a session
	SessionCreatedAt time.Time
}
