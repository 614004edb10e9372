// Package timeline implements range algebra over a media timeline.
// All times share time.Duration as their base unit.
package timeline

import (
	"fmt"
	"sort"
	"time"
)

// TimeRange is a half-open span [Start, Start+Duration).
type TimeRange struct {
	Start    time.Duration `json:"start"`
	Duration time.Duration `json:"duration"`
}

// NewRange builds a range from start/end points. A negative span is treated as empty.
func NewRange(start, end time.Duration) TimeRange {
	if end < start {
		end = start
	}
	return TimeRange{Start: start, Duration: end - start}
}

func (r TimeRange) End() time.Duration {
	return r.Start + r.Duration
}

func (r TimeRange) IsEmpty() bool {
	return r.Duration <= 0
}

// Contains reports whether t lies in [Start, End).
func (r TimeRange) Contains(t time.Duration) bool {
	return t >= r.Start && t < r.End()
}

func (r TimeRange) String() string {
	return fmt.Sprintf("[%s, %s)", r.Start, r.End())
}

// ClipTo bounds r to [0, full]. The result may be empty.
func ClipTo(r TimeRange, full time.Duration) TimeRange {
	start := r.Start
	end := r.End()
	if start < 0 {
		start = 0
	}
	if end > full {
		end = full
	}
	return NewRange(start, end)
}

// SortedCopy returns the non-empty ranges sorted by start. The input is not modified.
func SortedCopy(ranges []TimeRange) []TimeRange {
	out := make([]TimeRange, 0, len(ranges))
	for _, r := range ranges {
		if r.IsEmpty() {
			continue
		}
		out = append(out, r)
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Start < out[j].Start
	})
	return out
}

// MergeRanges coalesces overlapping or touching ranges into sorted disjoint runs.
func MergeRanges(ranges []TimeRange) []TimeRange {
	sorted := SortedCopy(ranges)
	if len(sorted) == 0 {
		return nil
	}

	merged := []TimeRange{sorted[0]}
	for _, r := range sorted[1:] {
		last := &merged[len(merged)-1]
		if r.Start <= last.End() {
			if r.End() > last.End() {
				last.Duration = r.End() - last.Start
			}
			continue
		}
		merged = append(merged, r)
	}
	return merged
}

// ComputeIncludedRanges returns what remains of [0, full) after removing the exclusions.
// The result is sorted and pairwise disjoint, and is empty when the exclusions cover everything.
func ComputeIncludedRanges(full time.Duration, exclusions []TimeRange) []TimeRange {
	if full <= 0 {
		return nil
	}
	if len(exclusions) == 0 {
		return []TimeRange{{Start: 0, Duration: full}}
	}

	var included []TimeRange
	cursor := time.Duration(0)
	for _, run := range MergeRanges(exclusions) {
		if cursor >= full {
			break
		}
		if cursor < run.Start {
			included = append(included, NewRange(cursor, min(run.Start, full)))
		}
		if run.End() > cursor {
			cursor = run.End()
		}
	}
	if cursor < full {
		included = append(included, NewRange(cursor, full))
	}
	return included
}

// TotalDuration sums the durations of ranges.
func TotalDuration(ranges []TimeRange) time.Duration {
	var total time.Duration
	for _, r := range ranges {
		total += r.Duration
	}
	return total
}

// ExcludedDuration is the merged exclusion coverage clipped to [0, full].
func ExcludedDuration(full time.Duration, exclusions []TimeRange) time.Duration {
	var total time.Duration
	for _, run := range MergeRanges(exclusions) {
		total += ClipTo(run, full).Duration
	}
	return total
}
