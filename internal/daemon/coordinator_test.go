package daemon

import (
	"errors"
	"testing"
	"time"

	"github.com/Govanator12/smart-meeting-sign/internal/schedule"
)

// fakeOutput records hardware calls for assertions
type fakeOutput struct {
	relay       bool
	relayCalls  int
	led         bool
	blinks      int
	errorFlashs int
}

func (f *fakeOutput) SetRelay(on bool) error {
	f.relay = on
	f.relayCalls++
	return nil
}
func (f *fakeOutput) SetLED(on bool) error {
	f.led = on
	return nil
}

func (f *fakeOutput) Blink(int, time.Duration) error {
	f.blinks++
	return nil
}

func (f *fakeOutput) ErrorFlash() error {
	f.errorFlashs++
	return nil
}

func (f *fakeOutput) Close() error {
	return nil
}

func newEvalCoordinator(buffer time.Duration) (*Coordinator, *schedule.Cache, *fakeOutput) {
	cache := schedule.NewCache()
	out := &fakeOutput{}
	c := New(Options{
		Cache:   cache,
		Machine: schedule.NewMachine(buffer),
		Output:  out,
	})
	return c, cache, out
}

func TestEvaluateDrivesRelayOnTransitionOnly(t *testing.T) {
	c, cache, out := newEvalCoordinator(2 * time.Minute)

	start := time.Date(2026, 3, 10, 14, 0, 0, 0, time.UTC)
	cache.Replace([]schedule.Event{
		{Summary: "Standup", Start: start.Unix(), End: start.Add(30 * time.Minute).Unix()},
	}, start)

	// Before the meeting: no transition, no relay write
	c.evaluate(start.Add(-10 * time.Minute))
	if out.relayCalls != 0 {
		t.Errorf("Relay written without transition: %d calls", out.relayCalls)
	}

	// Into the meeting: exactly one relay write, on
	c.evaluate(start)
	if out.relayCalls != 1 || !out.relay {
		t.Errorf("Expected one relay-on write, got %d calls, relay=%v", out.relayCalls, out.relay)
	}

	// Re-evaluating during the meeting must not rewrite the relay
	c.evaluate(start.Add(5 * time.Minute))
	c.evaluate(start.Add(10 * time.Minute))
	if out.relayCalls != 1 {
		t.Errorf("Relay chattered: %d calls", out.relayCalls)
	}

	// Past the buffered end: one more write, off
	c.evaluate(start.Add(33 * time.Minute))
	if out.relayCalls != 2 || out.relay {
		t.Errorf("Expected relay-off write, got %d calls, relay=%v", out.relayCalls, out.relay)
	}
}

func TestRecordAppErrorSelfHealsAtThreshold(t *testing.T) {
	c, _, out := newEvalCoordinator(2 * time.Minute)

	for i := 0; i < appErrorThreshold-1; i++ {
		c.recordAppError(errors.New("fetch failed"))
	}
	if out.errorFlashs != 0 {
		t.Errorf("Error flash before threshold: %d", out.errorFlashs)
	}
	if c.appErrors != appErrorThreshold-1 {
		t.Errorf("Streak = %d, want %d", c.appErrors, appErrorThreshold-1)
	}

	c.recordAppError(errors.New("fetch failed again"))
	if out.errorFlashs != 1 {
		t.Errorf("Expected one error flash at threshold, got %d", out.errorFlashs)
	}
	if c.appErrors != 0 {
		t.Errorf("Streak not reset after flash: %d", c.appErrors)
	}
	if c.lastError == "" {
		t.Error("Last error not recorded")
	}
}

func TestHealthSnapshot(t *testing.T) {
	c, cache, _ := newEvalCoordinator(2 * time.Minute)

	refreshed := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	cache.Replace([]schedule.Event{{Summary: "ev", Start: 1, End: 2}}, refreshed)
	c.conn.RecordSuccess()

	h := c.Health()
	if h.RelayState != string(schedule.StateIdle) {
		t.Errorf("RelayState = %q", h.RelayState)
	}
	if !h.Connected {
		t.Error("Connected = false after success")
	}
	if h.CachedEvents != 1 {
		t.Errorf("CachedEvents = %d", h.CachedEvents)
	}
	if !h.LastRefresh.Equal(refreshed) {
		t.Errorf("LastRefresh = %v", h.LastRefresh)
	}
}

func TestHealthFileRoundtrip(t *testing.T) {
	dir := t.TempDir()

	h := Health{
		RelayState:          "IN_MEETING",
		Reason:              "Standup",
		Connected:           true,
		ConsecutiveFailures: 0,
		CurrentBackoff:      "5s",
		CachedEvents:        3,
		LastRefresh:         time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC),
		UpdatedAt:           time.Date(2026, 3, 10, 12, 1, 0, 0, time.UTC),
	}
	if err := WriteHealthFile(dir, h); err != nil {
		t.Fatalf("WriteHealthFile failed: %v", err)
	}

	got, err := ReadHealthFile(dir)
	if err != nil {
		t.Fatalf("ReadHealthFile failed: %v", err)
	}
	if got.RelayState != h.RelayState || got.Reason != h.Reason || got.CachedEvents != h.CachedEvents {
		t.Errorf("Roundtrip mismatch: %+v", got)
	}
	if !got.LastRefresh.Equal(h.LastRefresh) {
		t.Errorf("LastRefresh = %v, want %v", got.LastRefresh, h.LastRefresh)
	}
}

func TestReadHealthFileMissing(t *testing.T) {
	if _, err := ReadHealthFile(t.TempDir()); err == nil {
		t.Error("Expected error for missing snapshot")
	}
}
