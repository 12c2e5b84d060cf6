package schedule

import (
	"testing"
	"time"
)

func evAt(summary string, start, end time.Time) Event {
	return Event{Summary: summary, Start: start.Unix(), End: end.Unix()}
}

func TestMachineBufferedTransition(t *testing.T) {
	buffer := 2 * time.Minute
	m := NewMachine(buffer)

	start := time.Date(2026, 3, 10, 14, 0, 0, 0, time.UTC)
	end := start.Add(30 * time.Minute)
	events := []Event{evAt("Standup", start, end)}

	// Just before the buffered window: still idle, no transition
	if tr := m.Evaluate(events, start.Add(-buffer-time.Second)); tr != nil {
		t.Errorf("Expected no transition before buffered start, got %+v", tr)
	}

	// Exactly buffer before start: light turns on
	tr := m.Evaluate(events, start.Add(-buffer))
	if tr == nil {
		t.Fatal("Expected transition at buffered start, got none")
	}
	if tr.To != StateInMeeting {
		t.Errorf("Expected IN_MEETING, got %s", tr.To)
	}
	if tr.Reason != "Standup" {
		t.Errorf("Expected reason from matching event, got %q", tr.Reason)
	}

	// Still inside the buffered end: no change
	if tr := m.Evaluate(events, end.Add(buffer)); tr != nil {
		t.Errorf("Expected no transition inside buffered end, got %+v", tr)
	}

	// Past buffered end: light turns off
	tr = m.Evaluate(events, end.Add(buffer+time.Second))
	if tr == nil {
		t.Fatal("Expected transition past buffered end, got none")
	}
	if tr.To != StateIdle {
		t.Errorf("Expected IDLE, got %s", tr.To)
	}
	if tr.Reason != "no active meeting" {
		t.Errorf("Expected idle reason, got %q", tr.Reason)
	}
}

func TestMachineIdempotentEvaluation(t *testing.T) {
	m := NewMachine(2 * time.Minute)

	start := time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)
	events := []Event{evAt("Planning", start, start.Add(time.Hour))}

	now := start.Add(10 * time.Minute)
	if tr := m.Evaluate(events, now); tr == nil {
		t.Fatal("Expected initial transition into meeting")
	}

	// Re-evaluating the same instant repeatedly must never re-emit
	for i := 0; i < 5; i++ {
		if tr := m.Evaluate(events, now.Add(time.Duration(i)*time.Second)); tr != nil {
			t.Errorf("Evaluation %d produced spurious transition %+v", i, tr)
		}
	}
	if m.State() != StateInMeeting {
		t.Errorf("Expected state to remain IN_MEETING, got %s", m.State())
	}
}

func TestMachineOverlappingEventsExtendInterval(t *testing.T) {
	m := NewMachine(2 * time.Minute)

	first := time.Date(2026, 3, 10, 10, 0, 0, 0, time.UTC)
	events := []Event{
		evAt("Design review", first, first.Add(30*time.Minute)),
		evAt("1:1", first.Add(25*time.Minute), first.Add(55*time.Minute)),
	}

	if tr := m.Evaluate(events, first.Add(5*time.Minute)); tr == nil || tr.Reason != "Design review" {
		t.Fatalf("Expected transition named after the first matching event, got %+v", tr)
	}

	// In the overlap and through the second event: state holds
	for _, offset := range []time.Duration{27 * time.Minute, 40 * time.Minute, 55 * time.Minute} {
		if tr := m.Evaluate(events, first.Add(offset)); tr != nil {
			t.Errorf("At +%s expected no transition, got %+v", offset, tr)
		}
	}

	// Only after the second event's buffered end does it go idle
	tr := m.Evaluate(events, first.Add(57*time.Minute).Add(time.Second))
	if tr == nil || tr.To != StateIdle {
		t.Fatalf("Expected idle transition after both events, got %+v", tr)
	}
}

func TestMachineBackToBackMeetingsNoGap(t *testing.T) {
	m := NewMachine(2 * time.Minute)

	start := time.Date(2026, 3, 10, 13, 0, 0, 0, time.UTC)
	events := []Event{
		evAt("Sync A", start, start.Add(30*time.Minute)),
		evAt("Sync B", start.Add(30*time.Minute), start.Add(time.Hour)),
	}

	if tr := m.Evaluate(events, start); tr == nil {
		t.Fatal("Expected transition into first meeting")
	}

	// At the boundary between the two, the buffers overlap: no off blip
	if tr := m.Evaluate(events, start.Add(30*time.Minute)); tr != nil {
		t.Errorf("Expected no transition at back-to-back boundary, got %+v", tr)
	}
}

func TestMachineEmptyCacheGoesIdle(t *testing.T) {
	m := NewMachine(2 * time.Minute)

	start := time.Date(2026, 3, 10, 16, 0, 0, 0, time.UTC)
	events := []Event{evAt("Retro", start, start.Add(time.Hour))}
	if tr := m.Evaluate(events, start.Add(time.Minute)); tr == nil {
		t.Fatal("Expected transition into meeting")
	}

	// Cache replaced with nothing (e.g. meeting cancelled): back to idle
	tr := m.Evaluate(nil, start.Add(2*time.Minute))
	if tr == nil || tr.To != StateIdle {
		t.Fatalf("Expected idle transition on empty cache, got %+v", tr)
	}
}
