// Package smbus is a wrapper around the periph.io library for I2C communication.
// It avoids using cgo, unsafe and syscalls.
package smbus

import (
	"fmt"
	"sync"

	"periph.io/x/conn/v3/i2c"
	"periph.io/x/conn/v3/i2c/i2creg"
	"periph.io/x/host/v3"
)

// SysIF is the system interface to the I2C bus.
type SysIF struct {
	BusFile string
	Bus     i2c.BusCloser
	i2cmu   sync.Mutex
}

func New(busFile string) (*SysIF, error) {
	if _, err := host.Init(); err != nil {
		return nil, err
	}

	bus, err := i2creg.Open(busFile)
	if err != nil {
		return nil, fmt.Errorf("open i2c bus %s: %w", busFile, err)
	}
	return NewWithBus(busFile, bus), nil
}

// NewWithBus wraps an already opened bus.
func NewWithBus(name string, bus i2c.BusCloser) *SysIF {
	return &SysIF{BusFile: name, Bus: bus}
}

// Close the I2C bus.
func (s *SysIF) Close() error {
	s.i2cmu.Lock()
	defer s.i2cmu.Unlock()
	return s.Bus.Close()
}

// ReadN writes the register pointer cmd and reads nbytes back in one
// transaction.
//
// periph.io takes 16 bit addresses so 10 bit devices fit; ours are 7 bit.
func (s *SysIF) ReadN(addr uint16, cmd uint8, nbytes int) ([]byte, error) {
	s.i2cmu.Lock()
	defer s.i2cmu.Unlock()

	d := &i2c.Dev{Addr: addr, Bus: s.Bus}

	read := make([]byte, nbytes)
	if err := d.Tx([]byte{cmd}, read); err != nil {
		return nil, err
	}
	return read, nil
}

// WriteN writes cmd followed by data.
func (s *SysIF) WriteN(addr uint16, cmd uint8, data []byte) error {
	s.i2cmu.Lock()
	defer s.i2cmu.Unlock()

	d := &i2c.Dev{Addr: addr, Bus: s.Bus}
	_, err := d.Write(append([]byte{cmd}, data...))
	return err
}

// ReadByte reads a byte from the I2C bus.
func (s *SysIF) ReadByte(addr uint16, cmd uint8) (byte, error) {
	ret, err := s.ReadN(addr, cmd, 1)
	if err != nil {
		return 0, err
	}
	return ret[0], nil
}

func (s *SysIF) String() string {
	return s.BusFile
}
