// Package daemon contains the connectivity and liveness coordinator: the
// single-threaded cooperative loop that keeps the link up, refreshes the
// schedule, evaluates meeting state, and feeds the supervisory watchdog
// through every wait.
package daemon

import (
	"context"
	"errors"
	"runtime"
	"runtime/debug"
	"time"

	"github.com/Govanator12/smart-meeting-sign/internal/auth"
	"github.com/Govanator12/smart-meeting-sign/internal/calendar"
	"github.com/Govanator12/smart-meeting-sign/internal/hardware"
	"github.com/Govanator12/smart-meeting-sign/internal/logger"
	"github.com/Govanator12/smart-meeting-sign/internal/schedule"
	"github.com/Govanator12/smart-meeting-sign/internal/telemetry"
)

const (
	iterationSleep    = time.Second
	feedInterval      = time.Second
	telemetryInterval = 60 * time.Second

	// retryAfterFetchFailure reschedules a failed calendar fetch well
	// before the full refresh interval
	retryAfterFetchFailure = 30 * time.Second

	// appErrorThreshold is the consecutive soft-error count at which the
	// coordinator flashes the error pattern and resets the streak. Soft
	// errors self-heal; they never force a restart.
	appErrorThreshold = 5

	// heapLimitBytes is the memory-pressure line. Crossing it once
	// truncates the cache; crossing it again in the main loop is the one
	// condition that escalates to a supervised restart.
	heapLimitBytes = 64 << 20
)

// ErrMemoryExhausted signals unrecoverable memory pressure; the process
// must exit and let the supervisor restart it.
var ErrMemoryExhausted = errors.New("memory exhausted beyond local recovery")

// Options wires the coordinator's collaborators
type Options struct {
	Cache    *schedule.Cache
	Machine  *schedule.Machine
	Pipeline *calendar.Pipeline
	Tokens   *auth.Manager
	Output   hardware.Output
	// Publisher may be nil (telemetry disabled)
	Publisher *telemetry.Publisher
	Prober    Prober
	// Feed is the liveness hook, invoked at least once per second
	Feed func()
	// StateDir receives the health snapshot file
	StateDir string
	// Interface names the wireless interface for link-quality telemetry
	Interface string

	RefreshInterval      time.Duration
	EvaluateInterval     time.Duration
	ConnectivityInterval time.Duration
}

// Coordinator drives one iteration at a time through time-sliced polling.
// There are no parallel workers and no shared-state locking: every
// suspension point is a segmented, hook-feeding sleep.
type Coordinator struct {
	opts  Options
	conn  *Connectivity
	sched *Scheduler

	appErrors     int
	lastError     string
	memoryStrikes int
}

func New(opts Options) *Coordinator {
	if opts.Feed == nil {
		opts.Feed = func() {}
	}
	if opts.Output == nil {
		opts.Output = hardware.Noop{}
	}
	return &Coordinator{
		opts: opts,
		conn: NewConnectivity(),
	}
}

// Health returns the current snapshot
func (c *Coordinator) Health() Health {
	return Health{
		RelayState:          string(c.opts.Machine.State()),
		Reason:              c.opts.Machine.LastReason(),
		Connected:           c.conn.Connected(),
		ConsecutiveFailures: c.conn.ConsecutiveFailures(),
		CurrentBackoff:      c.conn.Backoff().String(),
		AppErrorStreak:      c.appErrors,
		LastError:           c.lastError,
		CachedEvents:        c.opts.Cache.Len(),
		LastRefresh:         c.opts.Cache.LastRefreshed(),
		UpdatedAt:           time.Now().UTC(),
	}
}

// Run executes the control loop until ctx is cancelled. It returns an
// error only for the unrecoverable memory condition; everything else is
// managed in place.
func (c *Coordinator) Run(ctx context.Context) error {
	// Project the initial IDLE state onto the relay; idempotent
	if err := c.opts.Output.SetRelay(false); err != nil {
		logger.Error("failed to initialize relay", "error", err)
	}

	c.connectWithBackoff(ctx)
	_ = c.opts.Output.Blink(1, 500*time.Millisecond)

	c.sched = NewScheduler()
	// Registration order is the starvation policy: a due evaluation always
	// runs before a due calendar refresh or connectivity check.
	c.sched.Add(&Task{Name: "evaluate", Interval: c.opts.EvaluateInterval, Run: c.evaluate})
	c.sched.Add(&Task{Name: "calendar", Interval: c.opts.RefreshInterval, Run: func(now time.Time) { c.refreshCalendar(ctx, now) }})
	c.sched.Add(&Task{Name: "connectivity", Interval: c.opts.ConnectivityInterval, Run: func(now time.Time) { c.checkConnectivity(ctx) }})
	c.sched.Add(&Task{Name: "telemetry", Interval: telemetryInterval, Run: c.publishHealth})

	logger.Info("control loop started",
		"evaluate_interval", c.opts.EvaluateInterval,
		"refresh_interval", c.opts.RefreshInterval)

	for {
		c.opts.Feed()

		if err := c.checkMemory(); err != nil {
			return err
		}

		c.sched.RunDue(time.Now())

		if err := c.sleepFeeding(ctx, iterationSleep); err != nil {
			logger.Info("control loop stopping", "reason", err)
			return nil
		}
	}
}

// evaluate runs the meeting state machine against the cache and projects
// any transition onto the relay. No transition means no side effect.
func (c *Coordinator) evaluate(now time.Time) {
	if !c.opts.Machine.InMeeting() {
		// Heartbeat blink while idle, matching the sign's long-standing
		// "I'm alive" behavior
		_ = c.opts.Output.Blink(1, 50*time.Millisecond)
	}

	transition := c.opts.Machine.Evaluate(c.opts.Cache.Events(), now)
	if transition == nil {
		return
	}

	on := transition.To == schedule.StateInMeeting
	if err := c.opts.Output.SetRelay(on); err != nil {
		logger.Error("failed to set relay", "error", err)
	}
	if err := c.opts.Output.SetLED(on); err != nil {
		logger.Error("failed to set LED", "error", err)
	}

	logger.Info("meeting state changed",
		"state", transition.To,
		"reason", transition.Reason)

	c.opts.Publisher.PublishJSON("transition", transition, false)
}

// refreshCalendar fetches the next window into the cache. Failures leave
// the cache untouched and schedule a near-term retry instead of waiting
// out the full refresh interval.
func (c *Coordinator) refreshCalendar(ctx context.Context, now time.Time) {
	if !c.conn.Connected() {
		logger.Debug("skipping calendar refresh while disconnected")
		return
	}

	// Fetch indicator
	_ = c.opts.Output.Blink(3, 100*time.Millisecond)

	err := c.opts.Pipeline.FetchWindow(ctx, now.UTC())
	if err == nil {
		c.appErrors = 0
		c.lastError = ""
		return
	}

	c.recordAppError(err)

	if errors.Is(err, calendar.ErrUnauthorized) {
		// Force a refresh before the next attempt rather than serving the
		// rejected token again
		c.opts.Tokens.Invalidate()
		if refreshErr := c.opts.Tokens.Refresh(ctx); refreshErr != nil {
			logger.Warn("token refresh after 401 failed", "error", refreshErr)
		}
	}

	c.sched.Reschedule("calendar", now.Add(retryAfterFetchFailure))
	logger.Warn("calendar refresh failed, keeping previous schedule",
		"retry_in", retryAfterFetchFailure,
		"error", err)
}

// checkConnectivity defensively verifies the link even without a drop
// notification, and runs the backoff reconnect when it is down.
func (c *Coordinator) checkConnectivity(ctx context.Context) {
	if err := c.opts.Prober.Probe(); err != nil {
		wasConnected := c.conn.Connected()
		wait := c.conn.RecordFailure()
		if wasConnected {
			logger.Warn("connectivity lost", "error", err)
		}
		logger.Info("reconnect scheduled",
			"consecutive_failures", c.conn.ConsecutiveFailures(),
			"backoff", wait)
		c.sched.Reschedule("connectivity", time.Now().Add(wait))
		return
	}

	if !c.conn.Connected() {
		logger.Info("connectivity restored")
	}
	c.conn.RecordSuccess()
	checkLinkQuality(c.opts.Interface)
}

// connectWithBackoff blocks until the first successful probe, doubling the
// wait per failure and feeding the liveness hook throughout.
func (c *Coordinator) connectWithBackoff(ctx context.Context) {
	for {
		if err := ctx.Err(); err != nil {
			return
		}
		if err := c.opts.Prober.Probe(); err == nil {
			c.conn.RecordSuccess()
			logger.Info("connectivity established")
			return
		} else {
			wait := c.conn.RecordFailure()
			logger.Warn("initial connect failed",
				"consecutive_failures", c.conn.ConsecutiveFailures(),
				"retry_in", wait,
				"error", err)
			if sleepErr := c.sleepFeeding(ctx, wait); sleepErr != nil {
				return
			}
		}
	}
}

// recordAppError tracks consecutive soft application errors. Reaching the
// threshold flashes the error pattern and resets the streak: these are
// self-healing failures, not restart conditions.
func (c *Coordinator) recordAppError(err error) {
	c.appErrors++
	c.lastError = err.Error()

	if c.appErrors >= appErrorThreshold {
		logger.Error("repeated application errors, signaling on indicator",
			"streak", c.appErrors,
			"last_error", c.lastError)
		if flashErr := c.opts.Output.ErrorFlash(); flashErr != nil {
			logger.Error("error flash failed", "error", flashErr)
		}
		c.appErrors = 0
	}
}

// checkMemory watches heap usage. First strike truncates the cache and
// releases memory; a second consecutive strike is unrecoverable and
// escalates to a supervised restart.
func (c *Coordinator) checkMemory() error {
	var ms runtime.MemStats
	runtime.ReadMemStats(&ms)

	if ms.HeapAlloc <= heapLimitBytes {
		c.memoryStrikes = 0
		return nil
	}

	c.memoryStrikes++
	logger.Warn("heap above limit",
		"heap_alloc", ms.HeapAlloc,
		"limit", uint64(heapLimitBytes),
		"strike", c.memoryStrikes)

	if c.memoryStrikes == 1 {
		c.opts.Pipeline.HandleMemoryPressure()
		debug.FreeOSMemory()
		return nil
	}

	return ErrMemoryExhausted
}

// publishHealth writes the snapshot file and publishes it retained
func (c *Coordinator) publishHealth(now time.Time) {
	h := c.Health()
	if c.opts.StateDir != "" {
		if err := WriteHealthFile(c.opts.StateDir, h); err != nil {
			logger.Warn("failed to write health snapshot", "error", err)
		}
	}
	c.opts.Publisher.PublishJSON("health", h, true)
}

// sleepFeeding sleeps for d in sub-second segments, feeding the liveness
// hook before each, so no wait exceeds the supervisory timeout.
func (c *Coordinator) sleepFeeding(ctx context.Context, d time.Duration) error {
	for remaining := d; remaining > 0; remaining -= feedInterval {
		c.opts.Feed()
		step := feedInterval
		if remaining < step {
			step = remaining
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(step):
		}
	}
	return nil
}
