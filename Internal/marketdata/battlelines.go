package marketdata

import (
	"fmt"
	"time"

	"github.com/tmcferran/rangerider/Internal/types"
)

// BattleLines assembles the day's reference levels: previous day high/low
// from daily bars, overnight and pre-market extremes from today's minute
// bars ahead of the open.
func (p *Provider) BattleLines(symbol string, sessionOpen time.Time) (types.BattleLines, error) {
	var lines types.BattleLines

	daily, err := p.GetBars(symbol, "1Day", 3)
	if err != nil {
		return lines, fmt.Errorf("failed to fetch daily bars: %w", err)
	}
	// The last daily bar may be today's partial bar; walk back to the most
	// recent bar from a prior day.
	today := sessionOpen.Format("2006-01-02")
	for i := len(daily) - 1; i >= 0; i-- {
		if daily[i].Time().Format("2006-01-02") != today {
			lines.PDH = daily[i].High
			lines.PDL = daily[i].Low
			break
		}
	}

	minutes, err := p.GetBars(symbol, "1Min", 600)
	if err != nil {
		return lines, fmt.Errorf("failed to fetch minute bars: %w", err)
	}

	loc := sessionOpen.Location()
	midnight := time.Date(sessionOpen.Year(), sessionOpen.Month(), sessionOpen.Day(), 0, 0, 0, 0, loc)
	premarketStart := midnight.Add(7 * time.Hour)

	for _, b := range minutes {
		ts := b.Time().In(loc)
		if ts.Before(midnight) || !ts.Before(sessionOpen) {
			continue
		}
		if lines.OvernightHigh == 0 || b.High > lines.OvernightHigh {
			lines.OvernightHigh = b.High
		}
		if lines.OvernightLow == 0 || b.Low < lines.OvernightLow {
			lines.OvernightLow = b.Low
		}
		if !ts.Before(premarketStart) {
			if lines.PremarketHigh == 0 || b.High > lines.PremarketHigh {
				lines.PremarketHigh = b.High
			}
			if lines.PremarketLow == 0 || b.Low < lines.PremarketLow {
				lines.PremarketLow = b.Low
			}
		}
	}
	return lines, nil
}
