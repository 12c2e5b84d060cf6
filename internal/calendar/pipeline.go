// Package calendar implements the sync pipeline: it turns the provider's
// noisy, mixed-timezone event feed into the minimal authoritative schedule
// the state machine evaluates.
package calendar

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	gcal "google.golang.org/api/calendar/v3"
	"google.golang.org/api/googleapi"

	"github.com/Govanator12/smart-meeting-sign/internal/config"
	"github.com/Govanator12/smart-meeting-sign/internal/logger"
	"github.com/Govanator12/smart-meeting-sign/internal/schedule"
)

// maxResults bounds one fetch page; the device never paginates
const maxResults = 50

// memoryFallbackSize is the cache size after a memory-pressure truncation
const memoryFallbackSize = 10

// ErrUnauthorized signals a provider 401: the token is invalid and must be
// refreshed before the next fetch attempt.
var ErrUnauthorized = errors.New("calendar credentials rejected")

// oooMarkers are the case-insensitive title substrings treated as
// out-of-office. Providers encode OOO inconsistently, so this free-text
// check backs up the eventType and transparency checks.
var oooMarkers = []string{"ooo", "out of office", "vacation"}

// Pipeline fetches a bounded future window of events, applies the exclusion
// filters, and atomically replaces the schedule cache on success. On any
// failure the previous cache is left untouched.
type Pipeline struct {
	svc        *gcal.Service
	cache      *schedule.Cache
	calendarID string
	filters    config.FilterConfig
}

func NewPipeline(svc *gcal.Service, cache *schedule.Cache, calendarID string, filters config.FilterConfig) *Pipeline {
	if calendarID == "" {
		calendarID = "primary"
	}
	return &Pipeline{
		svc:        svc,
		cache:      cache,
		calendarID: calendarID,
		filters:    filters,
	}
}

// FetchWindow retrieves the [ref, ref+48h] window of single-instance events
// and replaces the cache with the filtered, normalized result. A 401 is
// reported as ErrUnauthorized so the caller can force a token refresh.
func (p *Pipeline) FetchWindow(ctx context.Context, ref time.Time) error {
	timeMin, timeMax := requestWindow(ref)

	logger.Debug("fetching calendar window",
		"calendar_id", p.calendarID,
		"time_min", timeMin,
		"time_max", timeMax)

	resp, err := p.svc.Events.List(p.calendarID).
		TimeMin(timeMin).
		TimeMax(timeMax).
		SingleEvents(true).
		OrderBy("startTime").
		MaxResults(maxResults).
		TimeZone("UTC").
		Context(ctx).
		Do()
	if err != nil {
		var apiErr *googleapi.Error
		if errors.As(err, &apiErr) && apiErr.Code == 401 {
			return fmt.Errorf("%w: %v", ErrUnauthorized, err)
		}
		return fmt.Errorf("event list request failed: %w", err)
	}

	events := make([]schedule.Event, 0, len(resp.Items))
	for _, item := range resp.Items {
		if p.shouldSkip(item) {
			continue
		}

		normalized, ok := p.normalize(item)
		if !ok {
			continue
		}
		events = append(events, normalized)
	}

	p.cache.Replace(events, ref)
	logger.Info("schedule cache refreshed",
		"fetched", len(resp.Items),
		"kept", len(events))
	return nil
}

// normalize parses both timestamps strictly; an event missing either, or
// with a malformed one, is dropped alone without aborting the fetch.
func (p *Pipeline) normalize(item *gcal.Event) (schedule.Event, bool) {
	var ev schedule.Event

	startStr := dateTimeOf(item.Start)
	endStr := dateTimeOf(item.End)
	if startStr == "" || endStr == "" {
		logger.Debug("dropping event without dateTime bounds", "summary", item.Summary)
		return ev, false
	}

	start, err := parseTimestamp(startStr)
	if err != nil {
		logger.Warn("dropping event with malformed start", "summary", item.Summary, "error", err)
		return ev, false
	}
	end, err := parseTimestamp(endStr)
	if err != nil {
		logger.Warn("dropping event with malformed end", "summary", item.Summary, "error", err)
		return ev, false
	}

	ev.Summary = schedule.TruncateSummary(item.Summary)
	ev.Start = start
	ev.End = end
	return ev, true
}

// shouldSkip applies the exclusion filters in order, each independently
// toggleable by configuration.
func (p *Pipeline) shouldSkip(item *gcal.Event) bool {
	if p.filters.IgnoreDeclined && p.selfDeclined(item) {
		logger.Debug("skipping declined event", "summary", item.Summary)
		return true
	}

	if p.filters.IgnoreAllDay && item.Start != nil && item.Start.Date != "" {
		logger.Debug("skipping all-day event", "summary", item.Summary)
		return true
	}

	if item.ColorId != "" &&
		(item.ColorId == p.filters.PersonalWorkColorID || item.ColorId == p.filters.FocusTimeColorID) {
		logger.Debug("skipping color-tagged event", "summary", item.Summary, "color_id", item.ColorId)
		return true
	}

	if p.filters.IgnoreOutOfOffice && isOutOfOffice(item) {
		logger.Debug("skipping out-of-office event", "summary", item.Summary)
		return true
	}

	return false
}

// selfDeclined reports whether the requesting identity declined the event
func (p *Pipeline) selfDeclined(item *gcal.Event) bool {
	for _, attendee := range item.Attendees {
		if attendee.Self && attendee.ResponseStatus == "declined" {
			return true
		}
	}
	return false
}

// isOutOfOffice applies the OOO triple check: explicit event type,
// non-blocking transparency, or a title marker. The three signals can
// disagree; any one of them excludes the event.
func isOutOfOffice(item *gcal.Event) bool {
	if item.EventType == "outOfOffice" {
		return true
	}
	if item.Transparency == "transparent" {
		return true
	}

	summary := strings.ToLower(item.Summary)
	for _, marker := range oooMarkers {
		if strings.Contains(summary, marker) {
			return true
		}
	}
	return false
}

func dateTimeOf(edt *gcal.EventDateTime) string {
	if edt == nil {
		return ""
	}
	return edt.DateTime
}

// HandleMemoryPressure degrades the cache to its first entries instead of
// failing outright; order is provider start-time order so the near-term
// schedule survives.
func (p *Pipeline) HandleMemoryPressure() {
	if dropped := p.cache.Truncate(memoryFallbackSize); dropped > 0 {
		logger.Warn("memory pressure: truncated schedule cache",
			"dropped", dropped,
			"kept", p.cache.Len())
	}
}
