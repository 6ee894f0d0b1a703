package fan

import (
	"fmt"
	"sync"

	"pwmfan/config"
	"pwmfan/device/pwm"
	"pwmfan/log"
)

// Fan is a PWM controlled fan on a single sysfs channel.
type Fan struct {
	mu      sync.Mutex
	pin     *pwm.PWMPin
	freqHz  int
	maxDuty int
	current int
}

func New(cfg *config.Config) *Fan {
	return &Fan{
		pin:     pwm.NewPin(cfg.PWMChip, cfg.PWMChannel),
		freqHz:  cfg.PWMFreqHz,
		maxDuty: cfg.MaxDutyCycle,
		current: -1,
	}
}

// Setup exports and enables the channel at the configured frequency.
func (f *Fan) Setup() (err error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	log.Debugf("PWM channel %s exporting...", f.pin)
	if err = f.pin.Export(); err != nil {
		return
	}

	log.Debugf("Setting PWM frequency to %dHz...", f.freqHz)
	if err = f.pin.SetFrequency(f.freqHz); err != nil {
		return
	}

	if err = f.pin.Enable(true); err != nil {
		return
	}
	log.Debugf("PWM channel %s enabled", f.pin)

	return nil
}

// SetDutyCycle applies percent (0..100) to the channel.
func (f *Fan) SetDutyCycle(percent int) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	return f.set(percent)
}

func (f *Fan) set(percent int) error {
	if percent < 0 || percent > 100 {
		return fmt.Errorf("%w: %d%%", pwm.ErrDutyOutOfRange, percent)
	}
	if err := f.pin.SetDutyCyclePercent(uint32(percent)); err != nil {
		return err
	}
	f.current = percent
	return nil
}

// SetMaxDutyCycle drives the fan to the configured maximum. It writes one
// step below first so the change registers even if the channel already
// holds the maximum.
func (f *Fan) SetMaxDutyCycle() error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.maxDuty > 0 {
		if err := f.set(f.maxDuty - 1); err != nil {
			return err
		}
	}
	return f.set(f.maxDuty)
}

// DutyCycle returns the last percentage written, or -1 before the first write.
func (f *Fan) DutyCycle() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.current
}
