package schedule

import "time"

// State represents the logical relay state
type State string

const (
	StateIdle      State = "IDLE"
	StateInMeeting State = "IN_MEETING"
)

// Transition records an actual state change and the event that caused it
type Transition struct {
	To     State
	Reason string
	At     time.Time
}

// Machine converts the event cache plus wall-clock time into a debounced
// relay decision. The buffer widens every event interval symmetrically so
// the light turns on up to buffer before nominal start and off up to buffer
// after nominal end. Transitions are emitted only on actual change, so a
// fast evaluation cadence never chatters the relay.
type Machine struct {
	state      State
	lastReason string
	buffer     time.Duration
}

func NewMachine(buffer time.Duration) *Machine {
	return &Machine{
		state:  StateIdle,
		buffer: buffer,
	}
}

// State returns the current state
func (m *Machine) State() State {
	return m.state
}

// LastReason returns the reason string of the last transition
func (m *Machine) LastReason() string {
	return m.lastReason
}

// InMeeting reports whether the machine currently considers a meeting active
func (m *Machine) InMeeting() bool {
	return m.state == StateInMeeting
}

// Evaluate computes the target state for now against the given events and
// returns a Transition only when the state actually changes. Overlapping
// events extend the active interval for as long as any buffered interval
// contains now; the first matching event in cache order (provider start-time
// order) is recorded as the active meeting.
func (m *Machine) Evaluate(events []Event, now time.Time) *Transition {
	target := StateIdle
	reason := ""

	for _, ev := range events {
		if ev.ActiveAt(now, m.buffer) {
			target = StateInMeeting
			reason = ev.Summary
			break
		}
	}

	if target == m.state {
		return nil
	}

	m.state = target
	if target == StateIdle {
		reason = "no active meeting"
	}
	m.lastReason = reason

	return &Transition{
		To:     target,
		Reason: reason,
		At:     now,
	}
}
