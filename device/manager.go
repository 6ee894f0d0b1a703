package device

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/oklog/run"

	"pwmfan/config"
	"pwmfan/control"
	"pwmfan/device/fan"
	"pwmfan/device/temperature"
	"pwmfan/log"
	"pwmfan/telemetry"
	"pwmfan/util"
)

// DutyCycleSetter is the fan output driven by the manager.
type DutyCycleSetter interface {
	SetDutyCycle(percent int) error
	SetMaxDutyCycle() error
}

// Deps are the collaborators of a Manager. Edges and Sink are optional.
type Deps struct {
	Fan   DutyCycleSetter
	Temp  temperature.Source
	Edges fan.EdgeWaiter
	Sink  telemetry.Sink
	Clock util.Clock
}

// Status is a snapshot of the latest tick.
type Status struct {
	Time        time.Time    `json:"time"`
	Temperature float64      `json:"temperature_c"`
	Average     float64      `json:"average_c"`
	ActiveMin   float64      `json:"active_min_c"`
	Mode        control.Mode `json:"mode"`
	DutyCycle   int          `json:"duty_cycle"`
	RPM         *int         `json:"rpm,omitempty"`
	RPMAlarm    bool         `json:"rpm_alarm"`
	Error       string       `json:"error,omitempty"`
	Window      []float64    `json:"window"`
	Ticks       uint64       `json:"ticks"`
	Uptime      string       `json:"uptime"`
}

// Manager runs the control loop and, when a tachometer is configured, the
// capture loop next to it.
type Manager struct {
	cfg   *config.Config
	clock util.Clock

	fan     DutyCycleSetter
	temp    temperature.Source
	edges   fan.EdgeWaiter
	capture *fan.Capture
	alarm   *fan.Alarm
	sink    telemetry.Sink
	engine  *control.Engine

	failures   uint
	sinkErrors uint

	mu     sync.RWMutex
	status Status
	ready  bool
}

func NewManager(cfg *config.Config, deps Deps) *Manager {
	if deps.Clock == nil {
		deps.Clock = util.SystemClock()
	}
	if deps.Sink == nil {
		deps.Sink = telemetry.Multi{}
	}

	m := &Manager{
		cfg:    cfg,
		clock:  deps.Clock,
		fan:    deps.Fan,
		temp:   deps.Temp,
		edges:  deps.Edges,
		sink:   deps.Sink,
		engine: control.NewEngine(cfg, deps.Clock.Now()),
	}

	if deps.Edges != nil {
		m.capture = fan.NewCapture(deps.Edges, cfg, deps.Clock, &fan.RPM{})
		m.alarm = fan.NewAlarm(cfg.AlarmMinRPM)
	}

	return m
}

// Run blips the fan, then ticks until ctx is done. On return the fan is at
// its maximum duty cycle and the capture loop has exited.
func (m *Manager) Run(ctx context.Context) error {
	defer m.halt()

	if m.cfg.BlipDuration > 0 {
		log.Info("Starting fans")
		if err := m.fan.SetMaxDutyCycle(); err != nil {
			log.Errorf("fan blip failed: %s", err)
		}
		if !util.Sleep(ctx, m.cfg.BlipDuration) {
			return nil
		}
	}

	var g run.Group

	if m.capture != nil {
		cctx, cancel := context.WithCancel(ctx)
		g.Add(func() error {
			return m.capture.Run(cctx)
		}, func(error) {
			cancel()
		})
	}

	{
		lctx, cancel := context.WithCancel(ctx)
		g.Add(func() error {
			return m.loop(lctx)
		}, func(error) {
			cancel()
		})
	}

	return g.Run()
}

func (m *Manager) loop(ctx context.Context) error {
	for ctx.Err() == nil {
		m.Tick()
		if !util.Sleep(ctx, m.cfg.TickInterval) {
			break
		}
	}
	return nil
}

func (m *Manager) halt() {
	log.Info("Halt received, setting fan to max")
	if err := m.fan.SetMaxDutyCycle(); err != nil {
		log.Errorf("failed to set fan to max on halt: %s", err)
	}

	if m.edges != nil {
		if err := m.edges.Close(); err != nil {
			log.Errorf("close tachometer: %s", err)
		}
	}
	if err := m.temp.Close(); err != nil {
		log.Errorf("close temperature source %s: %s", m.temp, err)
	}
}

// Tick runs one control step and returns the resulting status.
func (m *Manager) Tick() Status {
	now := m.clock.Now()
	celsius, readErr := m.temp.Read()
	d := m.engine.Decide(now, celsius, readErr)

	if d.Mode == control.FailSafe {
		m.failures++
		if m.failures < 2 || m.failures%100 == 0 { // Don't spam the log
			log.Errorf("temperature %s unusable (%d times), fan to max: %s", m.temp, m.failures, d.Err)
		}
		if err := m.fan.SetMaxDutyCycle(); err != nil {
			log.Errorf("set max duty cycle: %s", err)
		}
	} else {
		if m.failures > 0 {
			log.Infof("temperature %s readable again after %d failures", m.temp, m.failures)
			m.failures = 0
		}
		if err := m.fan.SetDutyCycle(d.DutyCycle); err != nil {
			log.Errorf("set duty cycle %d%%: %s", d.DutyCycle, err)
		}
	}

	rec := telemetry.Record{
		Time:        now,
		Temperature: d.Temperature,
		Average:     d.Average,
		Mode:        d.Mode,
		DutyCycle:   d.DutyCycle,
		Err:         d.Err,
	}

	alarm := false
	if m.capture != nil {
		var rpm int
		if m.cfg.TachDrainOnRead {
			rpm = m.capture.RPM().ReadAndReset()
		} else {
			rpm = m.capture.RPM().Read()
		}
		rec.RPM = util.Int(rpm)
		alarm = m.alarm.Check(rpm, d.DutyCycle)
	}

	if err := m.sink.Write(rec); err != nil {
		m.sinkErrors++
		if m.sinkErrors < 2 || m.sinkErrors%100 == 0 {
			log.Errorf("telemetry write failed (%d times): %s", m.sinkErrors, err)
		}
	}

	return m.publish(rec, d, alarm)
}

func (m *Manager) publish(rec telemetry.Record, d control.Decision, alarm bool) Status {
	m.mu.Lock()
	defer m.mu.Unlock()

	st := Status{
		Time:        rec.Time,
		Temperature: rec.Temperature,
		Average:     rec.Average,
		ActiveMin:   d.ActiveMin,
		Mode:        rec.Mode,
		DutyCycle:   rec.DutyCycle,
		RPM:         rec.RPM,
		RPMAlarm:    alarm,
		Window:      m.engine.Window(),
		Ticks:       m.status.Ticks + 1,
	}
	if rec.Err != nil {
		st.Error = rec.Err.Error()
	}

	m.status = st
	m.ready = true
	return st
}

var ErrNoTick = errors.New("no tick yet")

// Status returns the latest tick. It fails before the first tick.
func (m *Manager) Status() (Status, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if !m.ready {
		return Status{}, ErrNoTick
	}
	st := m.status
	st.Window = append([]float64(nil), m.status.Window...)
	st.Uptime = util.UptimeInString()
	return st, nil
}

// CaptureStats reports the tachometer counters; ok is false without a
// tachometer.
func (m *Manager) CaptureStats() (stats fan.CaptureStats, ok bool) {
	if m.capture == nil {
		return fan.CaptureStats{}, false
	}
	return m.capture.Stats(), true
}

func (m *Manager) Config() *config.Config {
	return m.cfg
}
