package fan

import (
	"errors"
	"fmt"
	"time"

	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/gpio/gpioreg"
	"periph.io/x/host/v3"

	"pwmfan/config"
)

var ErrUnsupported = errors.New("tachometer backend not supported on this platform")

// OpenEdgeWaiter opens the tachometer input selected by cfg.
func OpenEdgeWaiter(cfg *config.Config) (EdgeWaiter, error) {
	switch cfg.TachBackend {
	case config.TachBackendGpiod:
		return openGpiodEdges(cfg.TachChip, cfg.TachPin)
	case config.TachBackendPeriph:
		return openPeriphEdges(fmt.Sprintf("GPIO%d", cfg.TachPin))
	case config.TachBackendSysfs:
		return openSysfsEdges(cfg.TachPin)
	default:
		return nil, fmt.Errorf("unknown tachometer backend %q", cfg.TachBackend)
	}
}

// periphEdges uses the periph.io edge detection, which blocks in the driver
// until an edge or the timeout.
type periphEdges struct {
	pin gpio.PinIO
}

func openPeriphEdges(name string) (EdgeWaiter, error) {
	if _, err := host.Init(); err != nil {
		return nil, err
	}

	pin := gpioreg.ByName(name)
	if pin == nil {
		return nil, fmt.Errorf("gpio %s not found", name)
	}

	if err := pin.In(gpio.PullUp, gpio.FallingEdge); err != nil {
		return nil, fmt.Errorf("configure %s for falling edges: %w", name, err)
	}

	return &periphEdges{pin: pin}, nil
}

func (p *periphEdges) WaitForEdge(timeout time.Duration) (bool, error) {
	return p.pin.WaitForEdge(timeout), nil
}

func (p *periphEdges) Close() error {
	return p.pin.Halt()
}
