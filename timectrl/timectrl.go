package timectrl

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"
)

// Mode describes how the TimeController advances simulation time.
type Mode int

const (
	// RealTime paces ticks against the wall clock, one per Tick.
	RealTime Mode = iota
	// Accelerated emits ticks as fast as the consumer asks for them while
	// still stepping simulation time by Tick.
	Accelerated
)

func (m Mode) String() string {
	switch m {
	case RealTime:
		return "realtime"
	case Accelerated:
		return "accelerated"
	default:
		return fmt.Sprintf("mode(%d)", int(m))
	}
}

// ParseMode maps a config string onto a Mode.
func ParseMode(s string) (Mode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "realtime", "real-time", "real_time":
		return RealTime, nil
	case "accelerated", "fast":
		return Accelerated, nil
	default:
		return RealTime, fmt.Errorf("timectrl: unknown mode %q", s)
	}
}

// TimeController drives simulation time for one session.
type TimeController struct {
	mu        sync.RWMutex
	StartTime time.Time
	Tick      time.Duration
	Mode      Mode

	currentTime time.Time
	ticks       int
	ticker      *time.Ticker
}

// NewTimeController constructs a controller. A non-positive tick defaults to
// one second.
func NewTimeController(start time.Time, tick time.Duration, mode Mode) *TimeController {
	if tick <= 0 {
		tick = time.Second
	}
	return &TimeController{
		StartTime:   start,
		Tick:        tick,
		Mode:        mode,
		currentTime: start,
	}
}

// Now returns the current simulation time.
func (tc *TimeController) Now() time.Time {
	tc.mu.RLock()
	defer tc.mu.RUnlock()
	return tc.currentTime
}

// Ticks reports how many ticks Next has emitted.
func (tc *TimeController) Ticks() int {
	tc.mu.RLock()
	defer tc.mu.RUnlock()
	return tc.ticks
}

// Next blocks until the next tick is due, advances simulation time by Tick
// and returns the new time. In RealTime mode the wait follows a wall-clock
// ticker created on first use; Accelerated mode only checks ctx. Next returns
// ctx.Err() once ctx is done.
func (tc *TimeController) Next(ctx context.Context) (time.Time, error) {
	if err := ctx.Err(); err != nil {
		return time.Time{}, err
	}

	if tc.Mode == RealTime {
		tc.mu.Lock()
		if tc.ticker == nil {
			tc.ticker = time.NewTicker(tc.Tick)
		}
		ticker := tc.ticker
		tc.mu.Unlock()

		select {
		case <-ctx.Done():
			return time.Time{}, ctx.Err()
		case <-ticker.C:
		}
	}

	tc.mu.Lock()
	defer tc.mu.Unlock()
	tc.currentTime = tc.currentTime.Add(tc.Tick)
	tc.ticks++
	return tc.currentTime, nil
}

// Stop releases the wall-clock ticker, if any. The controller may be reused;
// a later Next starts a fresh ticker.
func (tc *TimeController) Stop() {
	tc.mu.Lock()
	defer tc.mu.Unlock()
	if tc.ticker != nil {
		tc.ticker.Stop()
		tc.ticker = nil
	}
}
