package availability

import (
	"testing"
	"time"
)

var slotDay = time.Date(2024, 6, 13, 0, 0, 0, 0, time.UTC)

func at(h, m int) time.Time {
	return slotDay.Add(time.Duration(h)*time.Hour + time.Duration(m)*time.Minute)
}

func TestAvailableSlotsSkipsBusy(t *testing.T) {
	window := Interval{Start: at(9, 0), End: at(12, 0)}
	busy := []Interval{{Start: at(10, 0), End: at(11, 0)}}

	slots := AvailableSlots(window, time.Hour, 30*time.Minute, busy, slotDay)
	want := []time.Time{at(9, 0), at(11, 0)}
	if len(slots) != len(want) {
		t.Fatalf("expected %v, got %v", want, slots)
	}
	for i := range want {
		if !slots[i].Equal(want[i]) {
			t.Fatalf("slot %d: expected %s, got %s", i, want[i].Format("15:04"), slots[i].Format("15:04"))
		}
	}
}

func TestAvailableSlotsNotBefore(t *testing.T) {
	window := Interval{Start: at(9, 0), End: at(11, 0)}

	slots := AvailableSlots(window, 30*time.Minute, 30*time.Minute, nil, at(9, 40))
	if len(slots) != 2 || !slots[0].Equal(at(10, 0)) || !slots[1].Equal(at(10, 30)) {
		t.Fatalf("expected 10:00 and 10:30, got %v", slots)
	}
}

func TestAvailableSlotsDegenerate(t *testing.T) {
	short := Interval{Start: at(9, 0), End: at(9, 30)}
	if slots := AvailableSlots(short, time.Hour, 15*time.Minute, nil, slotDay); slots != nil {
		t.Fatalf("expected no slots for a short window, got %v", slots)
	}
	if slots := AvailableSlots(Interval{Start: at(9, 0), End: at(17, 0)}, time.Hour, 0, nil, slotDay); slots != nil {
		t.Fatalf("expected nil for zero step, got %v", slots)
	}
}

func TestIntervalEdgesTouchWithoutOverlap(t *testing.T) {
	a := Interval{Start: at(9, 0), End: at(10, 0)}
	b := Interval{Start: at(10, 0), End: at(11, 0)}
	if a.Overlaps(b) || b.Overlaps(a) {
		t.Fatal("adjacent intervals must not overlap")
	}
	if !(Interval{Start: at(9, 0), End: at(11, 0)}).Covers(b) {
		t.Fatal("expected cover")
	}
}
