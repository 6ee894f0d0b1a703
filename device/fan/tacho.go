package fan

import (
	"context"
	"math"
	"sync"
	"sync/atomic"
	"time"

	"pwmfan/config"
	"pwmfan/log"
	"pwmfan/util"
)

// EdgeWaiter abstracts the tachometer input. Interrupt driven and polled
// platforms both fit behind it.
type EdgeWaiter interface {
	// WaitForEdge blocks until a falling edge is seen or timeout elapses and
	// reports whether an edge occurred since the previous call.
	WaitForEdge(timeout time.Duration) (bool, error)
	Close() error
}

// RPM is the value shared between the capture loop (sole writer) and the
// control loop (sole reader).
type RPM struct {
	mu  sync.Mutex
	rpm int
}

func (r *RPM) Write(v int) {
	r.mu.Lock()
	r.rpm = v
	r.mu.Unlock()
}

func (r *RPM) Read() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.rpm
}

// ReadAndReset drains the value: it returns the current RPM and zeroes it.
func (r *RPM) ReadAndReset() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	v := r.rpm
	r.rpm = 0
	return v
}

type CaptureStats struct {
	Edges      uint64
	Bounces    uint64
	Updates    uint64
	Stalls     uint64
	WaitErrors uint64
}

// Capture turns falling edges into an RPM estimate. The first edge after
// start or after a stall only arms the timer; every later edge that is not a
// bounce yields an RPM computed from the interval to the previous pulse.
type Capture struct {
	edges EdgeWaiter
	clock util.Clock
	rpm   *RPM

	pulsesPerRev int
	minInterval  time.Duration
	pollTimeout  time.Duration
	stallTimeout time.Duration

	// owned by the Run goroutine
	lastPulse time.Time
	primed    bool
	stalled   bool

	nEdges, nBounces, nUpdates, nStalls, nWaitErrors atomic.Uint64
}

func NewCapture(edges EdgeWaiter, cfg *config.Config, clock util.Clock, rpm *RPM) *Capture {
	return &Capture{
		edges:        edges,
		clock:        clock,
		rpm:          rpm,
		pulsesPerRev: cfg.TachPulsesPerRev,
		minInterval:  cfg.TachMinPulseInterval,
		pollTimeout:  cfg.TachPollTimeout,
		stallTimeout: cfg.RPMStallTimeout,
	}
}

func (c *Capture) RPM() *RPM {
	return c.rpm
}

// Run loops until ctx is done. It returns within one poll timeout of
// cancellation.
func (c *Capture) Run(ctx context.Context) error {
	c.lastPulse = c.clock.Now()

	for ctx.Err() == nil {
		edge, err := c.edges.WaitForEdge(c.pollTimeout)
		if err != nil {
			n := c.nWaitErrors.Add(1)
			if n < 2 || n%100 == 0 { // Don't spam the log
				log.Errorf("tachometer wait failed (%d times): %s", n, err)
			}
			util.Sleep(ctx, c.pollTimeout)
			edge = false
		}

		now := c.clock.Now()
		if edge {
			c.onEdge(now)
		} else {
			c.onTimeout(now)
		}
	}

	return nil
}

func (c *Capture) onEdge(now time.Time) {
	c.nEdges.Add(1)

	if !c.primed {
		c.primed = true
		c.stalled = false
		c.lastPulse = now
		return
	}

	delta := now.Sub(c.lastPulse)
	if delta <= 0 || delta < c.minInterval {
		c.nBounces.Add(1)
		log.Debugf("tachometer bounce rejected, %v since last pulse", delta)
		return
	}

	rpm := int(math.Round(1 / delta.Seconds() / float64(c.pulsesPerRev) * 60))
	c.rpm.Write(rpm)
	c.nUpdates.Add(1)
	c.lastPulse = now
}

func (c *Capture) onTimeout(now time.Time) {
	if now.Sub(c.lastPulse) < c.stallTimeout {
		return
	}

	c.rpm.Write(0)
	c.primed = false
	if !c.stalled {
		c.stalled = true
		c.nStalls.Add(1)
		log.Debugf("no tachometer pulse for %v, reporting 0 RPM", now.Sub(c.lastPulse))
	}
}

func (c *Capture) Stats() CaptureStats {
	return CaptureStats{
		Edges:      c.nEdges.Load(),
		Bounces:    c.nBounces.Load(),
		Updates:    c.nUpdates.Load(),
		Stalls:     c.nStalls.Load(),
		WaitErrors: c.nWaitErrors.Load(),
	}
}
