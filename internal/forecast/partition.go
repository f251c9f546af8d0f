package forecast

import "time"

// LocalTime converts an instant to location-local wall time for a fixed UTC offset
func LocalTime(ts time.Time, utcOffsetSeconds int) time.Time {
	return ts.In(time.FixedZone("", utcOffsetSeconds))
}

// BlockAnchorHour is the local hour a block starts at: 4, 10, 16 or 22
func BlockAnchorHour(block int) int {
	return WindowStartHour + (block-1)*6
}

// Classify maps a local time to its operational slot. Hours [0,2) belong to
// the last block of the previous day; hours [2,4) are outside every block and
// reported with ok == false.
func Classify(local time.Time) (slot Slot, ok bool) {
	day := DateOf(local)

	switch hour := local.Hour(); {
	case hour >= 4 && hour < 10:
		return Slot{Day: day, Block: 1}, true
	case hour >= 10 && hour < 16:
		return Slot{Day: day, Block: 2}, true
	case hour >= 16 && hour < 22:
		return Slot{Day: day, Block: 3}, true
	case hour >= 22:
		return Slot{Day: day, Block: 4}, true
	case hour < 2:
		return Slot{Day: day.AddDays(-1), Block: 4}, true
	default:
		return Slot{}, false
	}
}

// Placement is a sample with its local time and slot resolved
type Placement struct {
	Sample Sample
	Local  time.Time
	Slot   Slot
}

// Partition classifies every sample of f in input order. Samples in the
// uncovered hours are dropped and counted in rejected.
func Partition(f Forecast) (placed []Placement, rejected int) {
	placed = make([]Placement, 0, len(f.Samples))
	for _, s := range f.Samples {
		local := LocalTime(s.Timestamp, f.UTCOffsetSeconds)
		slot, ok := Classify(local)
		if !ok {
			rejected++
			continue
		}
		placed = append(placed, Placement{Sample: s, Local: local, Slot: slot})
	}
	return placed, rejected
}
