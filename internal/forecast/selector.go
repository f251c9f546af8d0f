package forecast

import "sort"

// IsFavorable reports whether a classifier status label marks a good window
func IsFavorable(status string) bool {
	for _, label := range FavorableLabels {
		if status == label {
			return true
		}
	}
	return false
}

// SelectWindows keeps favorable blocks whose local reference hour is within
// [WindowStartHour, WindowEndHour), and returns at most WindowsPerDay of them
// per calendar date. Dates are ascending and blocks within a date are ordered
// by reference time; blocks with equal times keep their input order.
func SelectWindows(blocks []ClassifiedBlock) []ClassifiedBlock {
	byDate := make(map[Date][]ClassifiedBlock)
	for _, b := range blocks {
		hour := b.ReferenceTime.Hour()
		if hour < WindowStartHour || hour >= WindowEndHour {
			continue
		}
		if !IsFavorable(b.Status) {
			continue
		}
		d := DateOf(b.ReferenceTime)
		byDate[d] = append(byDate[d], b)
	}

	dates := make([]Date, 0, len(byDate))
	for d := range byDate {
		dates = append(dates, d)
	}
	sort.Slice(dates, func(i, j int) bool { return dates[i].Before(dates[j]) })

	selected := make([]ClassifiedBlock, 0, len(dates)*WindowsPerDay)
	for _, d := range dates {
		group := byDate[d]
		sort.SliceStable(group, func(i, j int) bool {
			return group[i].ReferenceTime.Before(group[j].ReferenceTime)
		})
		if len(group) > WindowsPerDay {
			group = group[:WindowsPerDay]
		}
		selected = append(selected, group...)
	}

	return selected
}
