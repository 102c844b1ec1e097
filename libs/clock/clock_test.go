package clock

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestRealSleepHonoursContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := (Real{}).Sleep(ctx, time.Hour); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func TestFakeAdvancesOnSleep(t *testing.T) {
	start := time.Date(2024, 3, 6, 9, 0, 0, 0, time.UTC)
	f := NewFake(start)
	if err := f.Sleep(context.Background(), 3*time.Second); err != nil {
		t.Fatalf("sleep: %v", err)
	}
	f.Advance(time.Minute)
	if got := f.Now().Sub(start); got != 63*time.Second {
		t.Fatalf("expected 63s elapsed, got %s", got)
	}
	if len(f.Sleeps()) != 1 {
		t.Fatalf("expected one recorded sleep, got %v", f.Sleeps())
	}
}
