package session

import (
	"errors"
	"time"

	"github.com/tmcferran/rangerider/Internal/types"
)

var ErrRangeAlreadySet = errors.New("opening range is write-once per trading day")

// DayState holds the per-day facts: the opening range and the battle lines.
// Both are captured once and never overwritten until the next day's reset.
type DayState struct {
	day      string
	lines    types.BattleLines
	linesSet bool

	rng    types.OpeningRange
	rngSet bool

	// rolling extremes accumulated during the range window
	trackOpen, trackHigh, trackLow float64
}

func NewDayState(day string) *DayState {
	return &DayState{day: day}
}

func (d *DayState) Day() string { return d.day }

func (d *DayState) SetBattleLines(lines types.BattleLines) {
	if !d.linesSet {
		d.lines = lines
		d.linesSet = true
	}
}

func (d *DayState) BattleLines() types.BattleLines { return d.lines }

// Track folds one observation into the opening-range accumulator. Calls
// after the range is sealed are ignored.
func (d *DayState) Track(price float64) {
	if d.rngSet || price <= 0 {
		return
	}
	if d.trackOpen == 0 {
		d.trackOpen = price
	}
	if d.trackHigh == 0 || price > d.trackHigh {
		d.trackHigh = price
	}
	if d.trackLow == 0 || price < d.trackLow {
		d.trackLow = price
	}
}

// SealRange freezes the accumulated extremes as the day's opening range.
func (d *DayState) SealRange(at time.Time) error {
	if d.rngSet {
		return ErrRangeAlreadySet
	}
	d.rng = types.OpeningRange{
		Open:       d.trackOpen,
		High:       d.trackHigh,
		Low:        d.trackLow,
		CapturedAt: at,
	}
	d.rngSet = true
	return nil
}

func (d *DayState) Range() types.OpeningRange { return d.rng }
func (d *DayState) RangeSealed() bool         { return d.rngSet }
