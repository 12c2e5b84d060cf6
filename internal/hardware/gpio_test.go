package hardware

import (
	"testing"
	"time"
)

func TestPauseFeedingFeedsThroughLongHolds(t *testing.T) {
	feeds := 0
	started := time.Now()

	// One error-flash hold
	pauseFeeding(func() { feeds++ }, errorFlashPeriod)

	elapsed := time.Since(started)
	if elapsed < errorFlashPeriod {
		t.Errorf("Pause returned after %s, want at least %s", elapsed, errorFlashPeriod)
	}
	// A 1s hold is two 500ms segments, each fed before sleeping
	if feeds < 2 {
		t.Errorf("Fed %d times across a %s hold, want at least 2", feeds, errorFlashPeriod)
	}
}

func TestPauseFeedingShortHold(t *testing.T) {
	feeds := 0
	pauseFeeding(func() { feeds++ }, 100*time.Millisecond)
	if feeds != 1 {
		t.Errorf("Fed %d times for a sub-segment hold, want 1", feeds)
	}

	feeds = 0
	pauseFeeding(func() { feeds++ }, 0)
	if feeds != 0 {
		t.Errorf("Fed %d times for a zero hold, want 0", feeds)
	}
}

func TestFeedCountOverFullErrorFlash(t *testing.T) {
	// The full flash sequence is errorFlashCount on/off pairs; the feed
	// cadence during it must never exceed one segment.
	feeds := 0
	feed := func() { feeds++ }
	for i := 0; i < errorFlashCount; i++ {
		pauseFeeding(feed, errorFlashPeriod)
		pauseFeeding(feed, errorFlashPeriod)
	}
	if want := errorFlashCount * 2 * 2; feeds < want {
		t.Errorf("Fed %d times across the flash sequence, want at least %d", feeds, want)
	}
}
