package types

import "time"

type Bar struct {
	Timestamp string  `json:"t"`
	Open      float64 `json:"o"`
	High      float64 `json:"h"`
	Low       float64 `json:"l"`
	Close     float64 `json:"c"`
	Volume    int64   `json:"v"`
}

// Time parses the bar timestamp. Alpaca returns RFC3339.
func (b Bar) Time() time.Time {
	t, _ := time.Parse(time.RFC3339, b.Timestamp)
	return t
}

type OptionType string

const (
	Call OptionType = "CALL"
	Put  OptionType = "PUT"
)

// OptionContract is one row of an option chain snapshot with Greeks.
type OptionContract struct {
	Symbol       string // OCC contract symbol, e.g. SPY250829C00580000
	Underlying   string
	Strike       float64
	Expiry       time.Time
	Type         OptionType
	Bid          float64
	Ask          float64
	Delta        float64
	Gamma        float64
	Theta        float64
	IV           float64
	OpenInterest int64
	Volume       int64
}

// Mid returns the bid/ask midpoint, falling back to whichever side exists.
func (c OptionContract) Mid() float64 {
	if c.Bid > 0 && c.Ask > 0 {
		return (c.Bid + c.Ask) / 2
	}
	if c.Ask > 0 {
		return c.Ask
	}
	return c.Bid
}

// SpreadPct returns the bid-ask spread as a fraction of the ask.
func (c OptionContract) SpreadPct() float64 {
	if c.Ask <= 0 {
		return 1.0
	}
	return (c.Ask - c.Bid) / c.Ask
}

// DTE returns whole days until expiry measured from now.
func (c OptionContract) DTE(now time.Time) int {
	return int(c.Expiry.Sub(now).Hours() / 24)
}

// MarketSnapshot is one immutable observation of the market. It is recreated
// on every poll; nothing mutates it after construction.
type MarketSnapshot struct {
	Symbol      string
	Timestamp   time.Time
	LastPrice   float64
	Bars        []Bar // most recent last
	VWAP        float64
	VolumeRatio float64          // current bar volume / rolling average
	Chain       []OptionContract // nil when no chain was requested
}

// LastBar returns the most recent bar, or a zero Bar when the series is empty.
func (s *MarketSnapshot) LastBar() Bar {
	if len(s.Bars) == 0 {
		return Bar{}
	}
	return s.Bars[len(s.Bars)-1]
}

// BattleLines are the key reference levels captured once before each session:
// previous day high/low, overnight futures high/low, and pre-market high/low.
type BattleLines struct {
	PDH           float64
	PDL           float64
	OvernightHigh float64
	OvernightLow  float64
	PremarketHigh float64
	PremarketLow  float64
}

// OpeningRange is the high/low band established during the range window.
// Write-once per trading day.
type OpeningRange struct {
	Open       float64
	High       float64
	Low        float64
	CapturedAt time.Time
}

func (r OpeningRange) Established() bool {
	return r.High > 0 && r.Low > 0
}
