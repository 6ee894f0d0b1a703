package telemetry

import (
	"encoding/csv"
	"fmt"
	"os"
	"strconv"
	"sync"

	"github.com/tebeka/atexit"
)

// CSVSink writes ticks as rows of cur_temp_c,decided_mode,duty_cycle_set_val
// with a trailing tach_rpm column when the tachometer is enabled.
type CSVSink struct {
	mu     sync.Mutex
	file   *os.File
	w      *csv.Writer
	tach   bool
	closed bool
}

// NewCSVSink creates path, truncating an existing file, and writes the
// header. The file is flushed and closed at process exit.
func NewCSVSink(path string, tach bool) (*CSVSink, error) {
	file, err := os.Create(path)
	if err != nil {
		return nil, err
	}

	s := &CSVSink{file: file, w: csv.NewWriter(file), tach: tach}

	header := []string{"cur_temp_c", "decided_mode", "duty_cycle_set_val"}
	if tach {
		header = append(header, "tach_rpm")
	}
	if err := s.w.Write(header); err != nil {
		file.Close()
		return nil, err
	}
	s.w.Flush()

	atexit.Register(func() { s.Close() })

	return s, nil
}

func (s *CSVSink) Write(r Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return fmt.Errorf("csv sink %s closed", s.file.Name())
	}

	row := []string{
		strconv.FormatFloat(r.Temperature, 'f', 3, 64),
		r.Mode.String(),
		strconv.Itoa(r.DutyCycle),
	}
	if s.tach {
		rpm := ""
		if r.RPM != nil {
			rpm = strconv.Itoa(*r.RPM)
		}
		row = append(row, rpm)
	}

	if err := s.w.Write(row); err != nil {
		return err
	}
	s.w.Flush()
	return s.w.Error()
}

func (s *CSVSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true

	s.w.Flush()
	if err := s.w.Error(); err != nil {
		s.file.Close()
		return err
	}
	return s.file.Close()
}
