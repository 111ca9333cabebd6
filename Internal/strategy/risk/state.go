package risk

import (
	"time"

	log "github.com/sirupsen/logrus"
)

// State is the per-account risk ledger for one trading day. It is a value
// object: transition methods return a new State instead of mutating, so
// every sizing decision is a pure function of its inputs.
type State struct {
	Capital           float64
	DailyPnL          float64
	ConsecutiveWins   int
	ConsecutiveLosses int
	TradesToday       int

	DailyLossBreached       bool
	ConsecutiveLossBreached bool

	Day time.Time
}

// Limits are the account-level circuit breakers.
type Limits struct {
	DailyLossLimit       float64 // dollars, positive
	ConsecutiveLossLimit int
	MaxTradesPerDay      int
}

func NewState(capital float64, day time.Time) State {
	return State{Capital: capital, Day: day}
}

// StartOfDay resets the daily counters while carrying capital forward.
// Breach flags never survive into a new day.
func (s State) StartOfDay(day time.Time) State {
	return State{Capital: s.Capital, Day: day}
}

// ApplyTradeResult folds one closed trade into the state and re-evaluates
// the circuit breakers. Once a breach flag is set it stays set for the day.
func (s State) ApplyTradeResult(pnl float64, lim Limits) State {
	next := s
	next.Capital += pnl
	next.DailyPnL += pnl
	next.TradesToday++

	if pnl < 0 {
		next.ConsecutiveLosses++
		next.ConsecutiveWins = 0
	} else if pnl > 0 {
		next.ConsecutiveWins++
		next.ConsecutiveLosses = 0
	}

	if lim.DailyLossLimit > 0 && next.DailyPnL <= -lim.DailyLossLimit {
		if !next.DailyLossBreached {
			log.WithFields(log.Fields{
				"daily_pnl": next.DailyPnL,
				"limit":     lim.DailyLossLimit,
			}).Warn("⛔ Daily loss limit hit, no new entries today")
		}
		next.DailyLossBreached = true
	}
	if lim.ConsecutiveLossLimit > 0 && next.ConsecutiveLosses >= lim.ConsecutiveLossLimit {
		if !next.ConsecutiveLossBreached {
			log.WithFields(log.Fields{
				"losses": next.ConsecutiveLosses,
				"limit":  lim.ConsecutiveLossLimit,
			}).Warn("⛔ Consecutive loss limit hit, no new entries today")
		}
		next.ConsecutiveLossBreached = true
	}
	return next
}

// CanEnter reports whether a new entry is permitted. A set breach flag
// blocks entries for the rest of the day regardless of signal quality.
func (s State) CanEnter(lim Limits) error {
	if s.DailyLossBreached {
		return ErrDailyLimitReached
	}
	if s.ConsecutiveLossBreached {
		return ErrConsecutiveLossLimit
	}
	if lim.MaxTradesPerDay > 0 && s.TradesToday >= lim.MaxTradesPerDay {
		return ErrMaxTradesReached
	}
	return nil
}
