package fan

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"pwmfan/config"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Set(t time.Time) {
	c.mu.Lock()
	c.now = t
	c.mu.Unlock()
}

type step struct {
	at   time.Duration
	edge bool
	err  error
}

// scriptedEdges replays steps against a fake clock. Each WaitForEdge call
// moves the clock to the step's offset. Once the script runs out it calls
// done so the capture loop stops.
type scriptedEdges struct {
	clock *fakeClock
	start time.Time
	steps []step
	i     int
	done  func()
}

func (s *scriptedEdges) WaitForEdge(time.Duration) (bool, error) {
	if s.i >= len(s.steps) {
		s.done()
		return false, nil
	}
	st := s.steps[s.i]
	s.i++
	s.clock.Set(s.start.Add(st.at))
	return st.edge, st.err
}

func (s *scriptedEdges) Close() error { return nil }

func testTachConfig() *config.Config {
	cfg := config.Default()
	cfg.TachPin = 17
	cfg.TachPulsesPerRev = 2
	cfg.TachMinPulseInterval = 2 * time.Millisecond
	cfg.TachPollTimeout = time.Millisecond
	cfg.RPMStallTimeout = time.Second
	return cfg
}

func runScript(t *testing.T, cfg *config.Config, steps []step) *Capture {
	t.Helper()

	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	clock := &fakeClock{now: start}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	edges := &scriptedEdges{clock: clock, start: start, steps: steps, done: cancel}
	c := NewCapture(edges, cfg, clock, &RPM{})
	require.NoError(t, c.Run(ctx))
	return c
}

func TestCaptureRejectsBounce(t *testing.T) {
	c := runScript(t, testTachConfig(), []step{
		{at: 0, edge: true},
		{at: time.Millisecond, edge: true},
		{at: 300 * time.Millisecond, edge: true},
	})

	st := c.Stats()
	require.Equal(t, uint64(3), st.Edges)
	require.Equal(t, uint64(1), st.Bounces)
	require.Equal(t, uint64(1), st.Updates)
	require.Equal(t, 100, c.RPM().Read())
}

func TestCaptureComputesRPM(t *testing.T) {
	tests := []struct {
		name     string
		ppr      int
		interval time.Duration
		want     int
	}{
		{"2ppr 100ms", 2, 100 * time.Millisecond, 300},
		{"2ppr 20ms", 2, 20 * time.Millisecond, 1500},
		{"1ppr 50ms", 1, 50 * time.Millisecond, 1200},
		{"4ppr 7ms", 4, 7 * time.Millisecond, 2143},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := testTachConfig()
			cfg.TachPulsesPerRev = tt.ppr
			c := runScript(t, cfg, []step{
				{at: 0, edge: true},
				{at: tt.interval, edge: true},
			})
			require.Equal(t, tt.want, c.RPM().Read())
		})
	}
}

func TestCaptureStall(t *testing.T) {
	steps := []step{
		{at: 0, edge: true},
		{at: 100 * time.Millisecond, edge: true},
	}
	for at := 200 * time.Millisecond; at <= 1500*time.Millisecond; at += 100 * time.Millisecond {
		steps = append(steps, step{at: at})
	}

	c := runScript(t, testTachConfig(), steps)

	require.Equal(t, 0, c.RPM().Read())
	st := c.Stats()
	require.Equal(t, uint64(1), st.Updates)
	require.Equal(t, uint64(1), st.Stalls)
}

func TestCaptureHoldsRPMBeforeStallTimeout(t *testing.T) {
	c := runScript(t, testTachConfig(), []step{
		{at: 0, edge: true},
		{at: 100 * time.Millisecond, edge: true},
		{at: 600 * time.Millisecond},
		{at: 1099 * time.Millisecond},
	})

	require.Equal(t, 300, c.RPM().Read())
	require.Zero(t, c.Stats().Stalls)
}

func TestCaptureRecoversAfterStall(t *testing.T) {
	c := runScript(t, testTachConfig(), []step{
		{at: 0, edge: true},
		{at: 100 * time.Millisecond, edge: true},
		{at: 1200 * time.Millisecond},
		// first edge after the stall only re-arms the timer
		{at: 2000 * time.Millisecond, edge: true},
		{at: 2150 * time.Millisecond, edge: true},
	})

	require.Equal(t, 200, c.RPM().Read())
	st := c.Stats()
	require.Equal(t, uint64(1), st.Stalls)
	require.Equal(t, uint64(2), st.Updates)
}

func TestCaptureStallWithoutAnyEdge(t *testing.T) {
	c := runScript(t, testTachConfig(), []step{
		{at: 500 * time.Millisecond},
		{at: time.Second},
	})

	require.Equal(t, 0, c.RPM().Read())
	require.Equal(t, uint64(1), c.Stats().Stalls)
}

func TestCaptureWaitErrors(t *testing.T) {
	c := runScript(t, testTachConfig(), []step{
		{at: 0, err: errors.New("poll: bad file descriptor")},
		{at: 10 * time.Millisecond, edge: true},
		{at: 20 * time.Millisecond, edge: true, err: errors.New("read value")},
		{at: 40 * time.Millisecond, edge: true},
	})

	st := c.Stats()
	require.Equal(t, uint64(2), st.WaitErrors)
	require.Equal(t, uint64(2), st.Edges)
	require.Equal(t, 1000, c.RPM().Read())
}

// sleepyEdges never sees an edge and honours the timeout in real time.
type sleepyEdges struct{}

func (sleepyEdges) WaitForEdge(timeout time.Duration) (bool, error) {
	time.Sleep(timeout)
	return false, nil
}

func (sleepyEdges) Close() error { return nil }

func TestCaptureStopsOnCancel(t *testing.T) {
	cfg := testTachConfig()
	cfg.TachPollTimeout = 10 * time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	c := NewCapture(sleepyEdges{}, cfg, &fakeClock{now: time.Now()}, &RPM{})

	done := make(chan error, 1)
	go func() { done <- c.Run(ctx) }()

	time.Sleep(30 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("capture did not stop after cancel")
	}
}

func TestRPMReadAndReset(t *testing.T) {
	var r RPM
	r.Write(1234)
	require.Equal(t, 1234, r.Read())
	require.Equal(t, 1234, r.Read())
	require.Equal(t, 1234, r.ReadAndReset())
	require.Equal(t, 0, r.Read())
	require.Equal(t, 0, r.ReadAndReset())
}
