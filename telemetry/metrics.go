package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"pwmfan/control"
	"pwmfan/device/fan"
	"pwmfan/util"
)

var allModes = []control.Mode{
	control.BelowOff,
	control.BelowMin,
	control.AboveEase,
	control.AboveMax,
	control.FailSafe,
}

// Metrics exports ticks as Prometheus gauges and counters.
type Metrics struct {
	factory   promauto.Factory
	namespace string

	temperature prometheus.Gauge
	average     prometheus.Gauge
	dutyCycle   prometheus.Gauge
	rpm         prometheus.Gauge
	mode        *prometheus.GaugeVec
	ticks       *prometheus.CounterVec
}

func NewMetrics(namespace string, reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)

	m := &Metrics{
		factory:   f,
		namespace: namespace,
		temperature: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "temperature_celsius",
			Help:      "Latest temperature sample",
		}),
		average: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "temperature_smoothed_celsius",
			Help:      "Average of the smoothing window",
		}),
		dutyCycle: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "duty_cycle_percent",
			Help:      "Duty cycle applied to the fan",
		}),
		rpm: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "fan_rpm",
			Help:      "Measured fan speed",
		}),
		mode: f.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "mode",
			Help:      "1 for the mode decided on the latest tick, 0 otherwise",
		}, []string{"mode"}),
		ticks: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ticks_total",
			Help:      "Controller ticks by decided mode",
		}, []string{"mode"}),
	}

	f.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "uptime_seconds",
		Help:      "Seconds since the controller started",
	}, util.UptimeInSec)

	for _, mode := range allModes {
		m.mode.WithLabelValues(mode.String()).Set(0)
		m.ticks.WithLabelValues(mode.String())
	}

	return m
}

func (m *Metrics) Write(r Record) error {
	if r.Mode != control.FailSafe {
		m.temperature.Set(r.Temperature)
		m.average.Set(r.Average)
	}
	m.dutyCycle.Set(float64(r.DutyCycle))
	if r.RPM != nil {
		m.rpm.Set(float64(*r.RPM))
	}

	for _, mode := range allModes {
		v := 0.0
		if mode == r.Mode {
			v = 1
		}
		m.mode.WithLabelValues(mode.String()).Set(v)
	}
	m.ticks.WithLabelValues(r.Mode.String()).Inc()
	return nil
}

// WatchCapture exports the tachometer capture counters. stats is called on
// every scrape.
func (m *Metrics) WatchCapture(stats func() fan.CaptureStats) {
	counter := func(name, help string, get func(fan.CaptureStats) uint64) {
		m.factory.NewCounterFunc(prometheus.CounterOpts{
			Namespace: m.namespace,
			Subsystem: "tach",
			Name:      name,
			Help:      help,
		}, func() float64 { return float64(get(stats())) })
	}

	counter("edges_total", "Falling edges seen", func(s fan.CaptureStats) uint64 { return s.Edges })
	counter("bounces_total", "Edges rejected as bounce", func(s fan.CaptureStats) uint64 { return s.Bounces })
	counter("updates_total", "RPM values published", func(s fan.CaptureStats) uint64 { return s.Updates })
	counter("stalls_total", "Transitions to 0 RPM after the stall timeout", func(s fan.CaptureStats) uint64 { return s.Stalls })
	counter("wait_errors_total", "Failed edge waits", func(s fan.CaptureStats) uint64 { return s.WaitErrors })
}

func (m *Metrics) Close() error { return nil }
