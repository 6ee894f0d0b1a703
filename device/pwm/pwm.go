package pwm

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"strconv"
	"syscall"
	"time"
)

// Duty cycles above this (in ns) are refused. 800us covers fans with PWM
// frequencies down to 1.25 kHz.
const DutyCycleNsOOBHigh = 800000

var ErrDutyOutOfRange = errors.New("duty cycle out of range")

var (
	// SysfsRoot is the sysfs PWM class directory.
	SysfsRoot = "/sys/class/pwm"

	// exportSettle gives udev time to fix up permissions of a freshly
	// exported channel.
	exportSettle = 200 * time.Millisecond
)

type PWMPin struct {
	chipPath string
	channel  string
	enabled  bool
	period   uint32
}

func NewPin(pwmChipID int, channel int) *PWMPin {
	return &PWMPin{
		chipPath: SysfsRoot + "/pwmchip" + strconv.Itoa(pwmChipID),
		channel:  strconv.Itoa(channel),
		enabled:  false,
	}
}

func (p *PWMPin) String() string {
	return p.pinDir()
}

func (p *PWMPin) Export() error {
	err := os.WriteFile(p.chipPath+"/export", []byte(p.channel), 0644)
	if err != nil {
		e, ok := err.(*os.PathError)
		if !ok || e.Err != syscall.EBUSY {
			return err
		}
	}

	time.Sleep(exportSettle)

	return nil
}

func (p *PWMPin) pinDir() string {
	return p.chipPath + "/pwm" + p.channel
}

func (p *PWMPin) Enable(enable bool) error {
	if p.enabled == enable {
		return nil
	}

	val := "0"
	if enable {
		val = "1"
	}
	if err := os.WriteFile(p.pinDir()+"/enable", []byte(val), 0644); err != nil {
		return err
	}
	p.enabled = enable
	return nil
}

func (p *PWMPin) GetPeriod() (period uint32, err error) {
	if p.period != 0 {
		return p.period, nil
	}

	buf, err := os.ReadFile(p.pinDir() + "/period")
	if err != nil {
		return 0, err
	}
	if len(buf) == 0 {
		return 0, nil
	}

	v := bytes.TrimSpace(buf)
	val, e := strconv.Atoi(string(v))
	if e == nil {
		p.period = uint32(val)
	}
	return uint32(val), e
}

func (p *PWMPin) SetPeriod(period uint32) error {
	err := os.WriteFile(p.pinDir()+"/period", []byte(fmt.Sprintf("%v", period)), 0644)
	if err == nil {
		p.period = period
	}
	return err
}

// SetFrequency sets the period for the given frequency in Hz.
func (p *PWMPin) SetFrequency(hz int) error {
	if hz <= 0 {
		return fmt.Errorf("invalid pwm frequency %d", hz)
	}
	return p.SetPeriod(uint32(1000000000 / hz))
}

func (p *PWMPin) SetDutyCycle(duty uint32) error {
	if duty > DutyCycleNsOOBHigh {
		return fmt.Errorf("%w: %dns", ErrDutyOutOfRange, duty)
	}
	return os.WriteFile(p.pinDir()+"/duty_cycle", []byte(fmt.Sprintf("%v", duty)), 0644)
}

func (p *PWMPin) SetDutyCyclePercent(percent uint32) error {
	if percent > 100 {
		return fmt.Errorf("%w: %d%%", ErrDutyOutOfRange, percent)
	}
	period, err := p.GetPeriod()
	if err != nil {
		return err
	}
	duty := uint64(period) * uint64(percent) / 100
	return p.SetDutyCycle(uint32(duty))
}
