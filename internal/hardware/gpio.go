package hardware

import (
	"fmt"
	"time"

	gpiod "github.com/warthog618/go-gpiocdev"

	"github.com/Govanator12/smart-meeting-sign/internal/logger"
)

// errorFlashCount and errorFlashPeriod define the fatal-error indication:
// a repeating on/off flash of relay and LED together.
const (
	errorFlashCount  = 3
	errorFlashPeriod = time.Second
)

// GPIO drives the relay and LED through the Linux GPIO character device.
type GPIO struct {
	chip      *gpiod.Chip
	relay     *gpiod.Line
	led       *gpiod.Line
	activeLow bool
	feed      func()

	relayOn bool
	ledOn   bool
}

// Options configures the GPIO lines
type Options struct {
	Chip      string
	RelayLine int
	LEDLine   int
	// ActiveLow marks relay wiring where driving the line low energizes
	// the relay (the common opto-isolated relay board arrangement).
	ActiveLow bool
	// Feed is the liveness hook, invoked at least once per second while a
	// blink or flash sequence holds the loop. Optional.
	Feed func()
}

// NewGPIO requests both lines as outputs with the relay de-energized and
// the LED off.
func NewGPIO(opts Options) (*GPIO, error) {
	chip, err := gpiod.NewChip(opts.Chip)
	if err != nil {
		return nil, fmt.Errorf("failed to open GPIO chip %s: %w", opts.Chip, err)
	}

	g := &GPIO{
		chip:      chip,
		activeLow: opts.ActiveLow,
		feed:      opts.Feed,
	}
	if g.feed == nil {
		g.feed = func() {}
	}

	relay, err := chip.RequestLine(opts.RelayLine, gpiod.AsOutput(g.relayValue(false)))
	if err != nil {
		_ = chip.Close()
		return nil, fmt.Errorf("failed to request relay line %d: %w", opts.RelayLine, err)
	}
	g.relay = relay

	led, err := chip.RequestLine(opts.LEDLine, gpiod.AsOutput(0))
	if err != nil {
		_ = relay.Close()
		_ = chip.Close()
		return nil, fmt.Errorf("failed to request LED line %d: %w", opts.LEDLine, err)
	}
	g.led = led

	logger.Info("hardware initialized",
		"chip", opts.Chip,
		"relay_line", opts.RelayLine,
		"led_line", opts.LEDLine,
		"relay_active_low", opts.ActiveLow)

	return g, nil
}

// relayValue maps the logical relay state to the line value
func (g *GPIO) relayValue(on bool) int {
	if on != g.activeLow {
		return 1
	}
	return 0
}

// SetRelay latches the relay to the requested state
func (g *GPIO) SetRelay(on bool) error {
	if err := g.relay.SetValue(g.relayValue(on)); err != nil {
		return fmt.Errorf("failed to set relay: %w", err)
	}
	g.relayOn = on
	return nil
}

// SetLED sets the status LED
func (g *GPIO) SetLED(on bool) error {
	v := 0
	if on {
		v = 1
	}
	if err := g.led.SetValue(v); err != nil {
		return fmt.Errorf("failed to set LED: %w", err)
	}
	g.ledOn = on
	return nil
}

// Blink flashes the status LED n times, restoring its previous state
func (g *GPIO) Blink(n int, d time.Duration) error {
	prev := g.ledOn
	for i := 0; i < n; i++ {
		if err := g.SetLED(true); err != nil {
			return err
		}
		pauseFeeding(g.feed, d)
		if err := g.SetLED(false); err != nil {
			return err
		}
		pauseFeeding(g.feed, d)
	}
	return g.SetLED(prev)
}

// ErrorFlash flashes relay and LED together to signal an unrecoverable but
// non-fatal error, then restores the relay to its previous state so a
// transient failure never leaves the light in the wrong position. The whole
// sequence holds the control loop for several seconds, so every hold feeds
// the liveness hook.
func (g *GPIO) ErrorFlash() error {
	prevRelay := g.relayOn
	prevLED := g.ledOn
	for i := 0; i < errorFlashCount; i++ {
		_ = g.SetRelay(true)
		_ = g.SetLED(true)
		pauseFeeding(g.feed, errorFlashPeriod)
		_ = g.SetRelay(false)
		_ = g.SetLED(false)
		pauseFeeding(g.feed, errorFlashPeriod)
	}
	if err := g.SetRelay(prevRelay); err != nil {
		return err
	}
	return g.SetLED(prevLED)
}

// pauseFeeding sleeps for d in sub-second segments, invoking feed before
// each, so no indicator hold exceeds the supervisory timeout.
func pauseFeeding(feed func(), d time.Duration) {
	const segment = 500 * time.Millisecond
	for remaining := d; remaining > 0; remaining -= segment {
		feed()
		step := segment
		if remaining < step {
			step = remaining
		}
		time.Sleep(step)
	}
}

// Close releases both lines, leaving the relay de-energized
func (g *GPIO) Close() error {
	_ = g.SetRelay(false)
	_ = g.SetLED(false)
	if err := g.relay.Close(); err != nil {
		return err
	}
	if err := g.led.Close(); err != nil {
		return err
	}
	return g.chip.Close()
}
