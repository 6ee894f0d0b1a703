package fan

import "pwmfan/log"

// Alarm watches the measured speed of a fan that is commanded to spin and
// raises once when it falls below a minimum RPM.
type Alarm struct {
	minRPM    int
	pollCount uint
	active    bool
}

func NewAlarm(minRPM int) *Alarm {
	return &Alarm{minRPM: minRPM}
}

// Check evaluates one sample. dutyCycle is the commanded duty; a fan that
// is commanded off cannot be in alarm. It reports the alarm state.
func (a *Alarm) Check(rpm int, dutyCycle int) bool {
	if a.minRPM <= 0 {
		return false
	}

	a.pollCount++
	if a.pollCount <= 1 { // Ignore first poll data - always 0
		return false
	}

	if dutyCycle > 0 && rpm < a.minRPM {
		if !a.active { // Spam control - only alert first time
			log.Errorf("ALARM: Fan speed %d RPM is below threshold %d RPM at %d%% duty, poll %d", rpm, a.minRPM, dutyCycle, a.pollCount)
		}
		a.active = true
	} else {
		if a.active {
			log.Infof("Fan speed %d RPM is back above threshold %d RPM, poll %d", rpm, a.minRPM, a.pollCount)
		}
		a.active = false
	}

	return a.active
}

func (a *Alarm) Active() bool {
	return a.active
}
