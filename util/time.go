package util

import (
	"context"
	"time"
)

// Clock is the time source for the control loop and the tachometer. Tests
// inject a fake one.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time {
	return time.Now()
}

// SystemClock returns the wall clock.
func SystemClock() Clock {
	return systemClock{}
}

var (
	UpSince = time.Now()
)

func UptimeInString() string {
	t := time.Now()
	d := t.Sub(UpSince)

	return d.Round(time.Second).String()
}

func UptimeInSec() float64 {
	return time.Since(UpSince).Seconds()
}

// Sleep waits for d or until ctx is done. It reports whether the full
// duration elapsed.
func Sleep(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}

	t := time.NewTimer(d)
	defer t.Stop()

	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
