package forecast

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func classified(day, hour int, status string, temp float64) ClassifiedBlock {
	return ClassifiedBlock{
		Block: Block{
			TemperatureC:  temp,
			ReferenceTime: time.Date(2026, 3, day, hour, 0, 0, 0, ist),
		},
		Status: status,
	}
}

func TestSelectWindows_CapsPerDate(t *testing.T) {
	// 3, 2 and 2 favorable blocks over three dates, delivered unordered
	input := []ClassifiedBlock{
		classified(12, 10, "1", 7),
		classified(10, 16, "1", 3),
		classified(11, 10, "1.0", 5),
		classified(10, 4, "1", 1),
		classified(12, 4, "1", 6),
		classified(10, 10, "1", 2),
		classified(11, 4, "1", 4),
	}

	got := SelectWindows(input)

	require.Len(t, got, 6)
	var temps []float64
	for _, b := range got {
		temps = append(temps, b.TemperatureC)
	}
	assert.Equal(t, []float64{1, 2, 4, 5, 6, 7}, temps)
}

func TestSelectWindows_Filters(t *testing.T) {
	tests := []struct {
		name  string
		input []ClassifiedBlock
		want  []float64
	}{
		{
			name:  "unfavorable dropped",
			input: []ClassifiedBlock{classified(10, 4, "0", 1), classified(10, 10, "0.0", 2), classified(10, 16, "1", 3)},
			want:  []float64{3},
		},
		{
			name:  "block four at twenty two excluded",
			input: []ClassifiedBlock{classified(10, 22, "1", 1), classified(10, 23, "1", 2)},
			want:  nil,
		},
		{
			name:  "early morning rollover excluded",
			input: []ClassifiedBlock{classified(10, 1, "1", 1), classified(10, 3, "1", 2), classified(10, 4, "1", 3)},
			want:  []float64{3},
		},
		{
			name:  "unknown labels are not favorable",
			input: []ClassifiedBlock{classified(10, 10, "yes", 1), classified(10, 11, "", 2), classified(10, 12, " 1", 3)},
			want:  nil,
		},
		{
			name:  "empty input",
			input: nil,
			want:  nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := SelectWindows(tt.input)

			var temps []float64
			for _, b := range got {
				temps = append(temps, b.TemperatureC)
			}
			assert.Equal(t, tt.want, temps)
		})
	}
}

func TestSelectWindows_StableOnTies(t *testing.T) {
	input := []ClassifiedBlock{
		classified(10, 10, "1", 1),
		classified(10, 10, "1", 2),
		classified(10, 10, "1", 3),
	}

	got := SelectWindows(input)

	require.Len(t, got, 2)
	assert.Equal(t, 1.0, got[0].TemperatureC)
	assert.Equal(t, 2.0, got[1].TemperatureC)
}

func TestSelectWindows_OrderedAndCapped(t *testing.T) {
	var input []ClassifiedBlock
	for day := 20; day >= 1; day-- {
		for _, hour := range []int{16, 4, 10} {
			input = append(input, classified(day%7+1, hour, "1", float64(day)))
		}
	}

	got := SelectWindows(input)

	perDate := make(map[Date]int)
	for i, b := range got {
		perDate[DateOf(b.ReferenceTime)]++
		if i > 0 {
			assert.False(t, b.ReferenceTime.Before(got[i-1].ReferenceTime), "not ordered at %d", i)
		}
	}
	for d, n := range perDate {
		assert.LessOrEqual(t, n, WindowsPerDay, "date %s", d)
	}
}

func TestIsFavorable(t *testing.T) {
	assert.True(t, IsFavorable("1"))
	assert.True(t, IsFavorable("1.0"))
	assert.False(t, IsFavorable("0"))
	assert.False(t, IsFavorable("true"))
}
