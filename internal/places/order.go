package places

import (
	"sort"

	"github.com/samber/lo"
)

// normalize renumbers every day to a contiguous 0..n-1 order, keeping the
// relative order of orderIndex (ties by slice position). Unplaced places
// get -1/-1.
func normalize(list []Place) {
	days := map[int][]int{}
	for i := range list {
		if !list[i].Placed() {
			list[i].DayIndex = Unplaced
			list[i].OrderIndex = Unplaced
			continue
		}
		days[list[i].DayIndex] = append(days[list[i].DayIndex], i)
	}

	for _, idx := range days {
		sort.SliceStable(idx, func(a, b int) bool {
			return list[idx[a]].OrderIndex < list[idx[b]].OrderIndex
		})
		for order, i := range idx {
			list[i].OrderIndex = order
		}
	}
}

// dayOf returns the places of one day ordered by orderIndex.
func dayOf(list []Place, day int) []Place {
	out := lo.Filter(list, func(p Place, _ int) bool {
		return p.DayIndex == day
	})
	sort.SliceStable(out, func(a, b int) bool {
		return out[a].OrderIndex < out[b].OrderIndex
	})
	return out
}

// move relocates the place at position from to (toDay, toIndex). toIndex is
// clamped to the destination day; toDay Unplaced removes it from its day.
func move(list []Place, from int, toDay, toIndex int) {
	target := &list[from]
	sourceDay := target.DayIndex

	// close the gap in the source day
	if sourceDay >= 0 {
		for i := range list {
			if i != from && list[i].DayIndex == sourceDay && list[i].OrderIndex > target.OrderIndex {
				list[i].OrderIndex--
			}
		}
	}

	if toDay < 0 {
		target.DayIndex = Unplaced
		target.OrderIndex = Unplaced
		return
	}

	size := 0
	for i := range list {
		if i != from && list[i].DayIndex == toDay {
			size++
		}
	}
	if toIndex < 0 {
		toIndex = 0
	}
	if toIndex > size {
		toIndex = size
	}

	// open a slot in the destination day
	for i := range list {
		if i != from && list[i].DayIndex == toDay && list[i].OrderIndex >= toIndex {
			list[i].OrderIndex++
		}
	}
	target.DayIndex = toDay
	target.OrderIndex = toIndex
}

// distribute spreads list evenly over numDays in saved order; the first
// len%numDays days get one extra place.
func distribute(list []Place, numDays int) {
	if numDays <= 0 {
		for i := range list {
			list[i].DayIndex = Unplaced
			list[i].OrderIndex = Unplaced
		}
		return
	}

	base := len(list) / numDays
	extra := len(list) % numDays

	i := 0
	for day := 0; day < numDays; day++ {
		count := base
		if day < extra {
			count++
		}
		for order := 0; order < count; order++ {
			list[i].DayIndex = day
			list[i].OrderIndex = order
			i++
		}
	}
}
