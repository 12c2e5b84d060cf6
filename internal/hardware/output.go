// Package hardware drives the relay and status LED. The Output interface
// keeps the control loop testable without GPIO access; the gpiocdev
// implementation targets the Linux character-device interface.
package hardware

import "time"

// Output is the physical indicator surface: a relay latched to meeting
// state and a secondary LED used for connection/error feedback.
type Output interface {
	// SetRelay latches the relay. Calls are idempotent: the relay state
	// enum owned by the state machine is the source of truth and the
	// physical output is a projection of it.
	SetRelay(on bool) error
	// SetLED sets the status LED
	SetLED(on bool) error
	// Blink flashes the status LED n times with the given on/off duration
	Blink(n int, d time.Duration) error
	// ErrorFlash performs the fixed fatal-error flash sequence on the
	// relay and LED together
	ErrorFlash() error
	Close() error
}

// Noop is an Output that does nothing, used when hardware is disabled
// (development hosts) and in tests.
type Noop struct{}

func (Noop) SetRelay(bool) error            { return nil }
func (Noop) SetLED(bool) error              { return nil }
func (Noop) Blink(int, time.Duration) error { return nil }
func (Noop) ErrorFlash() error              { return nil }
func (Noop) Close() error                   { return nil }
