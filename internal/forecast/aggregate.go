package forecast

import (
	"math"
	"sort"
	"time"
)

type slotAccumulator struct {
	temperatureSum float64
	humiditySum    float64
	rainfallSum    float64
	count          int
	first          time.Time
}

// Aggregate groups placed samples by slot and emits exactly BlocksPerDay
// blocks for each of the first MaxForecastDays operational days. Slots with no
// sample get zero values anchored at the block's start hour. Values are
// rounded to two decimals on emission only.
func Aggregate(placed []Placement, latitude, longitude float64) []Block {
	if len(placed) == 0 {
		return nil
	}
	loc := placed[0].Local.Location()

	slots := make(map[Slot]*slotAccumulator)
	seenDays := make(map[Date]struct{})
	for _, p := range placed {
		acc, ok := slots[p.Slot]
		if !ok {
			acc = &slotAccumulator{first: p.Local}
			slots[p.Slot] = acc
		}
		acc.temperatureSum += p.Sample.TemperatureC
		acc.humiditySum += p.Sample.HumidityPercent
		acc.rainfallSum += p.Sample.RainfallMm
		acc.count++

		seenDays[p.Slot.Day] = struct{}{}
	}

	days := make([]Date, 0, len(seenDays))
	for d := range seenDays {
		days = append(days, d)
	}
	sort.Slice(days, func(i, j int) bool { return days[i].Before(days[j]) })
	if len(days) > MaxForecastDays {
		days = days[:MaxForecastDays]
	}

	blocks := make([]Block, 0, len(days)*BlocksPerDay)
	for i, day := range days {
		for b := 1; b <= BlocksPerDay; b++ {
			block := Block{
				DayIndex:   i + 1,
				BlockIndex: b,
				Latitude:   latitude,
				Longitude:  longitude,
			}

			acc, ok := slots[Slot{Day: day, Block: b}]
			if !ok {
				block.ReferenceTime = day.At(BlockAnchorHour(b), loc)
				block.Synthesized = true
				blocks = append(blocks, block)
				continue
			}

			n := float64(acc.count)
			block.TemperatureC = round2(acc.temperatureSum / n)
			block.HumidityPercent = round2(acc.humiditySum / n)
			block.RainfallMm = round2(acc.rainfallSum)
			block.ReferenceTime = acc.first
			blocks = append(blocks, block)
		}
	}

	return blocks
}

// BuildBlocks partitions and aggregates a whole forecast. rejected counts the
// samples that fell outside every block.
func BuildBlocks(f Forecast) (blocks []Block, rejected int) {
	placed, rejected := Partition(f)
	return Aggregate(placed, f.Latitude, f.Longitude), rejected
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
