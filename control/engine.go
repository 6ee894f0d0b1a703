// Package control holds the decision engine that turns a temperature sample
// into a fan mode and duty cycle.
package control

import (
	"errors"
	"fmt"
	"time"

	"pwmfan/config"
)

type Mode int

const (
	BelowOff Mode = iota
	BelowMin
	AboveEase
	AboveMax
	FailSafe
)

var modeNames = [...]string{
	BelowOff:  "BELOW_OFF",
	BelowMin:  "BELOW_MIN",
	AboveEase: "ABOVE_EASE",
	AboveMax:  "ABOVE_MAX",
	FailSafe:  "FAIL_SAFE",
}

func (m Mode) String() string {
	if m < 0 || int(m) >= len(modeNames) {
		return fmt.Sprintf("Mode(%d)", int(m))
	}
	return modeNames[m]
}

func (m Mode) MarshalText() ([]byte, error) {
	return []byte(m.String()), nil
}

// Plausible temperature bounds in degrees Celsius, both exclusive.
const (
	TempOOBLow  = 0.0
	TempOOBHigh = 120.0
)

var ErrImplausibleTemp = errors.New("temperature outside plausible range")

// Decision is produced fresh on every tick.
type Decision struct {
	Mode        Mode
	DutyCycle   int
	Temperature float64
	// Average is the smoothed input to the easing curve.
	Average float64
	// ActiveMin is the lower threshold used for this tick.
	ActiveMin float64
	// Err is set for FailSafe decisions.
	Err error
}

// CheckReading returns the reason a sample cannot be used, or nil.
func CheckReading(celsius float64, readErr error) error {
	if readErr != nil {
		return readErr
	}
	if celsius <= TempOOBLow || celsius >= TempOOBHigh {
		return fmt.Errorf("%w: %.2fC", ErrImplausibleTemp, celsius)
	}
	return nil
}

// Engine owns the smoothing window and the hysteresis state. It is not safe
// for concurrent use; the control loop is its only caller.
type Engine struct {
	cfg *config.Config
	win *window

	lastAboveMin time.Time

	// lastTick is the clock value of the latest accepted sample; a second
	// sample at the same clock value replaces it instead of shifting the
	// window.
	lastTick    time.Time
	haveTick    bool
	fanRunning  bool
	tickRunning bool
}

// NewEngine returns an engine whose window reads as MaxTemp, so a cold start
// errs towards full speed, and whose grace timer starts at start.
func NewEngine(cfg *config.Config, start time.Time) *Engine {
	return &Engine{
		cfg:          cfg,
		win:          newWindow(cfg.MaxTemp),
		lastAboveMin: start,
	}
}

// Decide runs one tick of the control function. readErr is the error of the
// temperature read, if any.
func (e *Engine) Decide(now time.Time, celsius float64, readErr error) Decision {
	if err := CheckReading(celsius, readErr); err != nil {
		return Decision{
			Mode:        FailSafe,
			DutyCycle:   e.cfg.MaxDutyCycle,
			Temperature: celsius,
			Err:         err,
		}
	}

	if e.haveTick && now.Equal(e.lastTick) {
		e.win.replaceHead(celsius)
	} else {
		e.win.push(celsius)
		e.lastTick = now
		e.haveTick = true
		e.tickRunning = e.fanRunning
	}

	activeMin := e.activeMin()
	if celsius > activeMin {
		e.lastAboveMin = now
	}
	graceElapsed := now.Sub(e.lastAboveMin)

	d := Decision{
		Temperature: celsius,
		Average:     e.win.average(),
		ActiveMin:   activeMin,
	}

	switch {
	case celsius <= activeMin && graceElapsed < e.cfg.FanOffGrace:
		d.Mode = BelowMin
		d.DutyCycle = e.cfg.MinDutyCycle
	case celsius <= activeMin:
		d.Mode = BelowOff
		d.DutyCycle = 0
	case celsius >= e.cfg.MaxTemp:
		d.Mode = AboveMax
		d.DutyCycle = e.cfg.MaxDutyCycle
	default:
		d.Mode = AboveEase
		d.DutyCycle = QuarticEase(d.Average, e.cfg.MinOffTemp, e.cfg.MaxTemp, e.cfg.MinDutyCycle, e.cfg.MaxDutyCycle)
	}

	e.fanRunning = d.DutyCycle > 0
	return d
}

func (e *Engine) activeMin() float64 {
	if e.cfg.HysteresisPolicy == config.PolicyWiden && e.tickRunning {
		return e.cfg.MinOffTemp
	}
	return e.cfg.MinOnTemp
}

// Window returns a copy of the smoothing window, most recent first.
func (e *Engine) Window() []float64 {
	return e.win.snapshot()
}

// LastAboveMin is the last tick whose temperature exceeded the active minimum.
func (e *Engine) LastAboveMin() time.Time {
	return e.lastAboveMin
}
