package storage

import "sort"

const (
	Hour = int64(3600)
	Week = 7 * 24 * Hour
)

// MergeScheduleEvents sorts template events by offset and coalesces entries
// whose boundaries touch, producing the normalized stored form.
func MergeScheduleEvents(events []ScheduleEvent) []ScheduleEvent {
	if len(events) == 0 {
		return nil
	}
	sorted := make([]ScheduleEvent, len(events))
	copy(sorted, events)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Start < sorted[j].Start })

	merged := []ScheduleEvent{sorted[0]}
	for _, ev := range sorted[1:] {
		last := &merged[len(merged)-1]
		if ev.Start == last.Start+last.Duration {
			last.Duration += ev.Duration
		} else {
			merged = append(merged, ev)
		}
	}
	return merged
}

// ValidSimpleSchedule reports whether a set of template events can be
// represented in simple mode: one event of one or two weeks, or 7 or 14
// events of exactly 12 hours.
func ValidSimpleSchedule(events []ScheduleEvent) bool {
	if len(events) == 1 {
		d := events[0].Duration
		return d == Week || d == 2*Week
	}
	if len(events) != 7 && len(events) != 14 {
		return false
	}
	for _, ev := range events {
		if ev.Duration != 12*Hour {
			return false
		}
	}
	return true
}
