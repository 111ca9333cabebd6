package session

import (
	"fmt"
	"time"
)

type Phase string

const (
	PhaseIdle               Phase = "Idle"
	PhaseRangeEstablishing  Phase = "RangeEstablishing"
	PhaseActiveEntry        Phase = "ActiveEntry"
	PhasePositionMonitoring Phase = "PositionMonitoring"
	PhaseForcedFlatten      Phase = "ForcedFlatten"
)

// phaseCodes give the Prometheus gauge a stable numeric encoding.
var phaseCodes = map[Phase]float64{
	PhaseIdle:               0,
	PhaseRangeEstablishing:  1,
	PhaseActiveEntry:        2,
	PhasePositionMonitoring: 3,
	PhaseForcedFlatten:      4,
}

// Clock resolves the configured session boundaries against wall-clock time
// in the exchange timezone. It holds no per-day state.
type Clock struct {
	loc          *time.Location
	open         dayMinute
	rangeEnd     dayMinute
	entryCutoff  dayMinute
	tightenAfter dayMinute
	close        dayMinute
	flattenLead  time.Duration
}

type dayMinute struct {
	hour, min int
}

func parseDayMinute(s string) (dayMinute, error) {
	t, err := time.Parse("15:04", s)
	if err != nil {
		return dayMinute{}, fmt.Errorf("bad session time %q: %w", s, err)
	}
	return dayMinute{hour: t.Hour(), min: t.Minute()}, nil
}

func NewClock(timezone, open, rangeEnd, entryCutoff, tightenAfter, closeTime string, flattenLeadMins int) (*Clock, error) {
	loc, err := time.LoadLocation(timezone)
	if err != nil {
		return nil, fmt.Errorf("bad session timezone %q: %w", timezone, err)
	}

	c := &Clock{loc: loc, flattenLead: time.Duration(flattenLeadMins) * time.Minute}
	if c.open, err = parseDayMinute(open); err != nil {
		return nil, err
	}
	if c.rangeEnd, err = parseDayMinute(rangeEnd); err != nil {
		return nil, err
	}
	if c.entryCutoff, err = parseDayMinute(entryCutoff); err != nil {
		return nil, err
	}
	if c.tightenAfter, err = parseDayMinute(tightenAfter); err != nil {
		return nil, err
	}
	if c.close, err = parseDayMinute(closeTime); err != nil {
		return nil, err
	}
	return c, nil
}

func (c *Clock) Location() *time.Location { return c.loc }

func (c *Clock) at(now time.Time, m dayMinute) time.Time {
	local := now.In(c.loc)
	return time.Date(local.Year(), local.Month(), local.Day(), m.hour, m.min, 0, 0, c.loc)
}

func (c *Clock) OpenAt(now time.Time) time.Time         { return c.at(now, c.open) }
func (c *Clock) RangeEndAt(now time.Time) time.Time     { return c.at(now, c.rangeEnd) }
func (c *Clock) EntryCutoffAt(now time.Time) time.Time  { return c.at(now, c.entryCutoff) }
func (c *Clock) TightenAfterAt(now time.Time) time.Time { return c.at(now, c.tightenAfter) }
func (c *Clock) CloseAt(now time.Time) time.Time        { return c.at(now, c.close) }

// FlattenAt is the forced-flatten boundary: close minus the lead time.
func (c *Clock) FlattenAt(now time.Time) time.Time {
	return c.CloseAt(now).Add(-c.flattenLead)
}

// TradingDay keys per-day state.
func (c *Clock) TradingDay(now time.Time) string {
	return now.In(c.loc).Format("2006-01-02")
}

// IsWeekend reports Saturday/Sunday in the session timezone.
func (c *Clock) IsWeekend(now time.Time) bool {
	wd := now.In(c.loc).Weekday()
	return wd == time.Saturday || wd == time.Sunday
}
