//go:build linux
// +build linux

package fan

import (
	"fmt"
	"os"
	"time"

	"github.com/warthog618/gpiod"
	"gobot.io/x/gobot/sysfs"
	"golang.org/x/sys/unix"
)

const gpioSysfsPath = "/sys/class/gpio"

// gpiodEdges receives edges from the gpiod event handler goroutine. Edges
// that arrive while one is still pending collapse into it.
type gpiodEdges struct {
	line   *gpiod.Line
	events chan struct{}
}

func openGpiodEdges(chip string, offset int) (EdgeWaiter, error) {
	g := &gpiodEdges{events: make(chan struct{}, 1)}

	line, err := gpiod.RequestLine(chip, offset,
		gpiod.AsInput,
		gpiod.WithPullUp,
		gpiod.WithFallingEdge,
		gpiod.WithConsumer("pwmfan"),
		gpiod.WithEventHandler(g.eventHandler))
	if err != nil {
		return nil, fmt.Errorf("request %s line %d: %w", chip, offset, err)
	}
	g.line = line

	return g, nil
}

func (g *gpiodEdges) eventHandler(evt gpiod.LineEvent) {
	if evt.Type != gpiod.LineEventFallingEdge {
		return
	}
	select {
	case g.events <- struct{}{}:
	default:
	}
}

func (g *gpiodEdges) WaitForEdge(timeout time.Duration) (bool, error) {
	t := time.NewTimer(timeout)
	defer t.Stop()

	select {
	case <-g.events:
		return true, nil
	case <-t.C:
		return false, nil
	}
}

func (g *gpiodEdges) Close() error {
	return g.line.Close()
}

// sysfsEdges is the legacy sysfs GPIO interface: gobot exports the pin and
// sets it as input, the edge file arms the interrupt and poll(2) reports it
// as POLLPRI on the value file.
type sysfsEdges struct {
	pin sysfs.DigitalPinner
	fd  int
	fds []unix.PollFd
	buf [8]byte
}

func openSysfsEdges(pin int) (EdgeWaiter, error) {
	p := sysfs.NewDigitalPin(pin)
	if err := p.Export(); err != nil {
		return nil, fmt.Errorf("export gpio %d: %w", pin, err)
	}
	if err := p.Direction(sysfs.IN); err != nil {
		_ = p.Unexport()
		return nil, fmt.Errorf("set gpio %d direction: %w", pin, err)
	}

	dir := fmt.Sprintf("%s/gpio%d", gpioSysfsPath, pin)
	for _, w := range []struct{ file, value string }{
		{"active_low", "0"},
		{"edge", "falling"},
	} {
		if err := os.WriteFile(dir+"/"+w.file, []byte(w.value), 0644); err != nil {
			_ = p.Unexport()
			return nil, err
		}
	}

	fd, err := unix.Open(dir+"/value", unix.O_RDONLY|unix.O_NONBLOCK, 0)
	if err != nil {
		_ = p.Unexport()
		return nil, fmt.Errorf("open gpio %d value: %w", pin, err)
	}

	s := &sysfsEdges{
		pin: p,
		fd:  fd,
		fds: []unix.PollFd{{Fd: int32(fd), Events: unix.POLLPRI}},
	}
	// clear the initial level so the first poll waits for a real edge
	_, _ = unix.Read(fd, s.buf[:])

	return s, nil
}

func (s *sysfsEdges) WaitForEdge(timeout time.Duration) (bool, error) {
	s.fds[0].Revents = 0
	n, err := unix.Poll(s.fds, int(timeout.Milliseconds()))
	if err != nil {
		if err == unix.EINTR {
			return false, nil
		}
		return false, err
	}
	if n == 0 || s.fds[0].Revents&unix.POLLPRI == 0 {
		return false, nil
	}

	if _, err := unix.Seek(s.fd, 0, 0); err != nil {
		return true, err
	}
	_, _ = unix.Read(s.fd, s.buf[:])

	return true, nil
}

func (s *sysfsEdges) Close() error {
	err := unix.Close(s.fd)
	if uerr := s.pin.Unexport(); err == nil {
		err = uerr
	}
	return err
}
