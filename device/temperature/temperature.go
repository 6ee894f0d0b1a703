// Package temperature provides the readings the controller acts on.
package temperature

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/shirou/gopsutil/host"

	"pwmfan/config"
	"pwmfan/device/smbus"
	"pwmfan/log"
)

// Source yields one temperature in degrees Celsius per call.
type Source interface {
	Read() (float64, error)
	Close() error
	String() string
}

var ErrNoSensor = errors.New("no matching temperature sensor")

// Open returns the source selected by cfg.
func Open(cfg *config.Config) (Source, error) {
	switch cfg.TempSource {
	case config.SourceThermal:
		return NewThermalZone(cfg.ThermalZone), nil
	case config.SourceLM75:
		bus, err := smbus.New(cfg.I2CBus)
		if err != nil {
			return nil, err
		}
		lm := NewLM75(bus, cfg.I2CAddr)
		if err := lm.Wake(); err != nil {
			bus.Close()
			return nil, fmt.Errorf("wake %s: %w", lm, err)
		}
		return lm, nil
	case config.SourceHostSensor:
		return NewHostSensor(cfg.HostSensorKey), nil
	default:
		return nil, fmt.Errorf("unknown temperature source %q", cfg.TempSource)
	}
}

// ThermalZone reads a kernel thermal zone file holding millidegrees.
type ThermalZone struct {
	path string
}

func NewThermalZone(path string) *ThermalZone {
	return &ThermalZone{path: path}
}

func (z *ThermalZone) Read() (float64, error) {
	buf, err := os.ReadFile(z.path)
	if err != nil {
		return 0, err
	}

	milli, err := strconv.Atoi(string(bytes.TrimSpace(buf)))
	if err != nil {
		return 0, fmt.Errorf("parse %s: %w", z.path, err)
	}
	return float64(milli) / 1000, nil
}

func (z *ThermalZone) Close() error { return nil }

func (z *ThermalZone) String() string { return z.path }

const (
	lm75TempReg  = 0x00
	lm75ConfReg  = 0x01
	lm75Shutdown = 0x01
)

// LM75 reads an LM75 compatible sensor over SMBus.
type LM75 struct {
	bus  *smbus.SysIF
	addr uint16
}

func NewLM75(bus *smbus.SysIF, addr uint16) *LM75 {
	return &LM75{bus: bus, addr: addr}
}

// Wake clears the shutdown bit in the configuration register so the sensor
// converts continuously. Other configuration bits are kept.
func (s *LM75) Wake() error {
	conf, err := s.bus.ReadByte(s.addr, lm75ConfReg)
	if err != nil {
		return err
	}
	if conf&lm75Shutdown == 0 {
		return nil
	}

	log.Infof("%s: leaving shutdown mode", s)
	return s.bus.WriteN(s.addr, lm75ConfReg, []byte{conf &^ lm75Shutdown})
}

func (s *LM75) Read() (float64, error) {
	temp, err := s.bus.ReadN(s.addr, lm75TempReg, 2)
	if err != nil {
		return 0, err
	}
	return float64(int8(temp[0])) + float64(temp[1])/256, nil
}

func (s *LM75) Close() error { return s.bus.Close() }

func (s *LM75) String() string {
	return fmt.Sprintf("lm75 %s@0x%02x", s.bus, s.addr)
}

// HostSensor picks a sensor from the host's hwmon readings. An empty key
// takes the hottest sensor.
type HostSensor struct {
	key  string
	read func() ([]host.TemperatureStat, error)

	warned bool
}

func NewHostSensor(key string) *HostSensor {
	return &HostSensor{key: key, read: host.SensorsTemperatures}
}

func (h *HostSensor) Read() (float64, error) {
	stats, err := h.read()
	if err != nil {
		if len(stats) == 0 {
			return 0, err
		}
		// Some hwmon entries commonly fail to read, the rest are usable.
		if !h.warned {
			log.Debugf("host sensors read with warnings: %s", err)
			h.warned = true
		}
	}

	found := false
	best := 0.0
	for _, s := range stats {
		if h.key != "" && !strings.EqualFold(s.SensorKey, h.key) {
			continue
		}
		if !found || s.Temperature > best {
			best = s.Temperature
			found = true
		}
	}

	if !found {
		if h.key == "" {
			return 0, ErrNoSensor
		}
		return 0, fmt.Errorf("%w: %s", ErrNoSensor, h.key)
	}
	return best, nil
}

func (h *HostSensor) Close() error { return nil }

func (h *HostSensor) String() string {
	if h.key == "" {
		return "hostsensor"
	}
	return "hostsensor " + h.key
}
