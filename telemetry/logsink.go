package telemetry

import (
	"pwmfan/control"
	"pwmfan/log"
)

// LogSink writes one structured line per tick. Without every it only logs
// mode changes.
type LogSink struct {
	every    bool
	lastMode control.Mode
	started  bool
}

func NewLogSink(every bool) *LogSink {
	return &LogSink{every: every}
}

func (l *LogSink) Write(r Record) error {
	changed := !l.started || r.Mode != l.lastMode
	l.started = true
	l.lastMode = r.Mode

	if !l.every && !changed {
		return nil
	}

	kv := []interface{}{
		"temp", r.Temperature,
		"avg", r.Average,
		"mode", r.Mode,
		"duty", r.DutyCycle,
	}
	if r.RPM != nil {
		kv = append(kv, "rpm", *r.RPM)
	}

	if r.Err != nil {
		log.ErrorS(r.Err, "fan tick", kv...)
		return nil
	}
	log.InfoS("fan tick", kv...)
	return nil
}

func (l *LogSink) Close() error { return nil }
