// Package telemetry records what the controller decided on every tick.
package telemetry

import (
	"errors"
	"time"

	"pwmfan/control"
)

// Record is one controller tick.
type Record struct {
	Time        time.Time
	Temperature float64
	Average     float64
	Mode        control.Mode
	DutyCycle   int
	// RPM is nil when no tachometer is configured.
	RPM *int
	// Err is the reason for a FAIL_SAFE tick.
	Err error
}

type Sink interface {
	Write(r Record) error
	Close() error
}

// Multi fans a record out to every sink. A failing sink does not stop the
// others.
type Multi []Sink

func (m Multi) Write(r Record) error {
	var errs []error
	for _, s := range m {
		if err := s.Write(r); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (m Multi) Close() error {
	var errs []error
	for _, s := range m {
		if err := s.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
