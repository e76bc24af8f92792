package domain

import (
	"fmt"
	"iter"
	"time"
)

// TimeRange is a closed-open interval [Start, End) in UTC.
type TimeRange struct {
	Start time.Time
	End   time.Time
}

// Window is one contiguous sub-interval of a TimeRange.
type Window struct {
	Start time.Time
	End   time.Time
}

// NewTimeRange normalises start and end to UTC and rejects start after end.
func NewTimeRange(start, end time.Time) (TimeRange, error) {
	start, end = start.UTC(), end.UTC()
	if start.After(end) {
		return TimeRange{}, fmt.Errorf("range start %s is after end %s",
			start.Format(time.RFC3339), end.Format(time.RFC3339))
	}
	return TimeRange{Start: start, End: end}, nil
}

// Duration returns End - Start.
func (r TimeRange) Duration() time.Duration {
	return r.End.Sub(r.Start)
}

// IsEmpty reports whether the range has no extent.
func (r TimeRange) IsEmpty() bool {
	return !r.Start.Before(r.End)
}

// Windows yields consecutive windows of the given size covering the range.
// The final window is clipped to End. A zero-length range yields nothing,
// as does a non-positive size.
func (r TimeRange) Windows(size time.Duration) iter.Seq[Window] {
	return func(yield func(Window) bool) {
		if size <= 0 {
			return
		}
		for current := r.Start; current.Before(r.End); current = current.Add(size) {
			next := current.Add(size)
			if next.After(r.End) {
				next = r.End
			}
			if !yield(Window{Start: current, End: next}) {
				return
			}
		}
	}
}

// WindowCount returns ceil(Duration / size), the number of windows Windows yields.
func (r TimeRange) WindowCount(size time.Duration) int {
	if size <= 0 || r.IsEmpty() {
		return 0
	}
	d := r.Duration()
	n := d / size
	if d%size != 0 {
		n++
	}
	return int(n)
}

// Duration returns the window length.
func (w Window) Duration() time.Duration {
	return w.End.Sub(w.Start)
}

func (w Window) String() string {
	return fmt.Sprintf("[%s, %s)", w.Start.Format(time.RFC3339), w.End.Format(time.RFC3339))
}
