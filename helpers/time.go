package helpers

import (
	"context"
	"time"
)

func IntSecondDefault(x int, def time.Duration) time.Duration {
	if x == 0 {
		return def
	}
	return time.Duration(x) * time.Second
}

// SleepContext returns ctx.Err() if context is done before d passed.
func SleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// SleepRecorder replaces time.Sleep in tests, accumulating total virtual time.
type SleepRecorder struct {
	Calls []time.Duration
	Total time.Duration
}

func (r *SleepRecorder) Sleep(d time.Duration) {
	r.Calls = append(r.Calls, d)
	r.Total += d
}

func (r *SleepRecorder) SleepContext(ctx context.Context, d time.Duration) error {
	r.Sleep(d)
	return ctx.Err()
}
