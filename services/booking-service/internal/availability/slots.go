package availability

import "time"

// Interval is the half-open span [Start, End).
type Interval struct {
	Start time.Time
	End   time.Time
}

func (i Interval) Overlaps(o Interval) bool {
	return i.Start.Before(o.End) && o.Start.Before(i.End)
}

func (i Interval) Covers(o Interval) bool {
	return !o.Start.Before(i.Start) && !o.End.After(i.End)
}

// Free reports whether c overlaps none of busy.
func Free(c Interval, busy []Interval) bool {
	for _, b := range busy {
		if c.Overlaps(b) {
			return false
		}
	}
	return true
}

// AvailableSlots steps through window and keeps every start whose booking of
// length duration stays inside window, misses busy and is not before notBefore.
func AvailableSlots(window Interval, duration, step time.Duration, busy []Interval, notBefore time.Time) []time.Time {
	if duration <= 0 || step <= 0 {
		return nil
	}
	var out []time.Time
	for c := (Interval{Start: window.Start, End: window.Start.Add(duration)}); window.Covers(c); c = (Interval{Start: c.Start.Add(step), End: c.End.Add(step)}) {
		if c.Start.Before(notBefore) || !Free(c, busy) {
			continue
		}
		out = append(out, c.Start)
	}
	return out
}
