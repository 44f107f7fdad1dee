package state

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/signalsfoundry/satellite-telemetry-sim/internal/driver"
	"github.com/signalsfoundry/satellite-telemetry-sim/internal/logging"
)

type stubMetricsRecorder struct {
	mu      sync.Mutex
	active  []int
	deleted []string
}

func (r *stubMetricsRecorder) SetActiveSessions(n int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.active = append(r.active, n)
}

func (r *stubMetricsRecorder) DeleteSession(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.deleted = append(r.deleted, id)
}

func (r *stubMetricsRecorder) last() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.active) == 0 {
		return -1
	}
	return r.active[len(r.active)-1]
}

func TestSessionRegistryLifecycle(t *testing.T) {
	recorder := &stubMetricsRecorder{}
	reg := NewSessionRegistry(logging.Noop(), WithMetricsRecorder(recorder))
	now := time.Date(2024, time.January, 1, 0, 0, 0, 0, time.UTC)

	if err := reg.Open("b", "10.0.0.2:5555", now.Add(time.Second)); err != nil {
		t.Fatalf("Open b: %v", err)
	}
	if err := reg.Open("a", "10.0.0.1:5555", now); err != nil {
		t.Fatalf("Open a: %v", err)
	}
	if recorder.last() != 2 {
		t.Fatalf("active sessions gauge = %d, want 2", recorder.last())
	}
	if err := reg.Open("a", "", now); !errors.Is(err, ErrSessionExists) {
		t.Fatalf("duplicate Open error = %v, want ErrSessionExists", err)
	}
	if err := reg.Open("", "", now); !errors.Is(err, ErrSessionInvalid) {
		t.Fatalf("empty id error = %v, want ErrSessionInvalid", err)
	}

	list := reg.List()
	if len(list) != 2 || list[0].ID != "a" || list[1].ID != "b" {
		t.Fatalf("List order = %+v, want a then b", list)
	}

	if err := reg.Close("a"); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if err := reg.Close("a"); !errors.Is(err, ErrSessionNotFound) {
		t.Fatalf("second Close error = %v, want ErrSessionNotFound", err)
	}
	if reg.Len() != 1 || recorder.last() != 1 {
		t.Fatalf("Len=%d gauge=%d after close, want 1", reg.Len(), recorder.last())
	}
	if len(recorder.deleted) != 1 || recorder.deleted[0] != "a" {
		t.Fatalf("per-session metrics not dropped: %v", recorder.deleted)
	}
}

func TestObserveFrameKeepsLatestFrame(t *testing.T) {
	reg := NewSessionRegistry(nil)
	if err := reg.Open("s", "", time.Now()); err != nil {
		t.Fatalf("Open: %v", err)
	}

	ctx := context.Background()
	reg.ObserveFrame(ctx, driver.Frame{Session: "s", Tick: 1, Event: "Overheating"})
	reg.ObserveFrame(ctx, driver.Frame{Session: "s", Tick: 2, Event: "Solar Storm", Actions: []string{"Delete unnecessary data"}})
	reg.ObserveFrame(ctx, driver.Frame{Session: "ghost", Tick: 9})

	info, err := reg.Get("s")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if info.Ticks != 2 || info.LastFrame == nil || info.LastFrame.Event != "Solar Storm" {
		t.Fatalf("unexpected session info: %+v", info)
	}

	info.LastFrame.Actions[0] = "mutated"
	again, _ := reg.Get("s")
	if again.LastFrame.Actions[0] != "Delete unnecessary data" {
		t.Fatalf("Get leaked internal frame storage")
	}
	if _, err := reg.Get("ghost"); !errors.Is(err, ErrSessionNotFound) {
		t.Fatalf("frames must not register sessions implicitly")
	}
}

func TestSessionRegistryConcurrentAccess(t *testing.T) {
	reg := NewSessionRegistry(logging.Noop())
	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			id := logging.NewID()
			if err := reg.Open(id, "", time.Now()); err != nil {
				t.Errorf("Open: %v", err)
				return
			}
			for tick := 1; tick <= 50; tick++ {
				reg.ObserveFrame(context.Background(), driver.Frame{Session: id, Tick: tick})
				_ = reg.List()
			}
			if err := reg.Close(id); err != nil {
				t.Errorf("Close: %v", err)
			}
		}(i)
	}
	wg.Wait()
	if reg.Len() != 0 {
		t.Fatalf("Len = %d after all sessions closed", reg.Len())
	}
}

func TestOpenIfBelowNeverOvershootsLimit(t *testing.T) {
	const limit = 3
	reg := NewSessionRegistry(logging.Noop())

	var (
		wg     sync.WaitGroup
		mu     sync.Mutex
		opened int
		full   int
	)
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := reg.OpenIfBelow(logging.NewID(), "", time.Now(), limit)
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				opened++
			case errors.Is(err, ErrRegistryFull):
				full++
			default:
				t.Errorf("OpenIfBelow: %v", err)
			}
		}()
	}
	wg.Wait()

	if opened != limit || full != 32-limit || reg.Len() != limit {
		t.Fatalf("opened=%d full=%d len=%d, want %d/%d/%d", opened, full, reg.Len(), limit, 32-limit, limit)
	}

	ids := reg.List()
	if err := reg.Close(ids[0].ID); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if err := reg.OpenIfBelow("late", "", time.Now(), limit); err != nil {
		t.Fatalf("freed slot not reusable: %v", err)
	}
	if err := reg.OpenIfBelow("unbounded", "", time.Now(), 0); err != nil {
		t.Fatalf("non-positive limit should be unlimited: %v", err)
	}
}
