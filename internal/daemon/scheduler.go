package daemon

import (
	"time"
)

// Task is a named periodic task with its own interval and next-due time.
// The manual "timestamp vs last-run marker" bookkeeping lives here instead
// of being scattered through the loop body, which makes ordering and
// starvation behavior explicit and testable.
type Task struct {
	Name     string
	Interval time.Duration
	Run      func(now time.Time)

	nextDue time.Time
}

// Scheduler drives named periodic tasks cooperatively on a single thread.
// When several tasks are simultaneously due they run in registration
// order, one full pass per call; a slow task delays but never skips a due
// peer.
type Scheduler struct {
	tasks []*Task
}

func NewScheduler() *Scheduler {
	return &Scheduler{}
}

// Add registers a task. A zero nextDue means the task is due immediately.
func (s *Scheduler) Add(t *Task) {
	s.tasks = append(s.tasks, t)
}

// RunDue runs every task whose due time has arrived, in registration order,
// and reschedules each for one interval after it ran. The next due time is
// stamped before the task runs, so a Reschedule issued from inside the
// task's own callback (a failed fetch pulling its retry in, a connectivity
// probe pushing its next attempt out to the backoff wait) takes precedence
// over the regular interval.
func (s *Scheduler) RunDue(now time.Time) {
	for _, t := range s.tasks {
		if now.Before(t.nextDue) {
			continue
		}
		t.nextDue = now.Add(t.Interval)
		t.Run(now)
	}
}

// Reschedule overrides a task's next due time, e.g. to retry a failed
// calendar fetch sooner than the full refresh interval.
func (s *Scheduler) Reschedule(name string, at time.Time) bool {
	for _, t := range s.tasks {
		if t.Name == name {
			t.nextDue = at
			return true
		}
	}
	return false
}

// NextDue returns a task's next due time, for inspection
func (s *Scheduler) NextDue(name string) (time.Time, bool) {
	for _, t := range s.tasks {
		if t.Name == name {
			return t.nextDue, true
		}
	}
	return time.Time{}, false
}
