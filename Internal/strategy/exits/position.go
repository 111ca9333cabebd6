package exits

import (
	"time"

	"github.com/google/uuid"

	"github.com/tmcferran/rangerider/Internal/types"
)

type PositionStatus string

const (
	PositionOpen   PositionStatus = "OPEN"
	PositionClosed PositionStatus = "CLOSED"
)

// Position is one open options trade under exit management. The exit
// manager is the only mutator after open.
type Position struct {
	ID        string
	Symbol    string // underlying
	Contract  types.OptionContract
	Direction string // LONG or SHORT on the underlying thesis
	Qty       int
	Remaining int

	EntryPrice float64 // premium paid per unit
	EntryTime  time.Time

	// R is the premium distance from entry to stop for one unit.
	R float64

	StopPrice float64
	Target1   float64
	Target2   float64

	TrailArmed   bool
	TrailLevel   float64
	MaxFavorable float64

	Target1Done bool
	TimeStopAt  time.Time

	Status   PositionStatus
	LedgerID string

	ExitPrice  float64
	ExitTime   time.Time
	ExitReason ExitReason

	// PendingExit holds an intent whose broker order has not confirmed
	// filled yet. It is retried each cycle until confirmed.
	PendingExit *Intent
}

// PlanConfig shapes the levels computed at open.
type PlanConfig struct {
	StopLossR        float64
	Target1R         float64
	Target1SizePct   float64
	Target2R         float64
	TrailActivationR float64
	TrailDistanceR   float64
	TimeStop         time.Duration
	LateTimeStop     time.Duration // applied to entries after LateEntryAfter
	LateEntryAfter   time.Time     // zero disables tightening
	BreakevenAfterT1 bool
}

func DefaultPlanConfig() PlanConfig {
	return PlanConfig{
		StopLossR:        1.0,
		Target1R:         1.5,
		Target1SizePct:   0.5,
		Target2R:         3.0,
		TrailActivationR: 1.5,
		TrailDistanceR:   0.5,
		TimeStop:         60 * time.Minute,
		LateTimeStop:     30 * time.Minute,
		BreakevenAfterT1: true,
	}
}

// NewPosition computes the full exit plan for a freshly filled entry.
// riskPerUnit is the premium distance to the stop for one contract unit.
func NewPosition(contract types.OptionContract, qty int, entryPrice, riskPerUnit float64, entryTime time.Time, cfg PlanConfig) *Position {
	r := riskPerUnit
	timeStop := cfg.TimeStop
	if !cfg.LateEntryAfter.IsZero() && entryTime.After(cfg.LateEntryAfter) && cfg.LateTimeStop > 0 {
		timeStop = cfg.LateTimeStop
	}

	return &Position{
		ID:           uuid.New().String(),
		Symbol:       contract.Underlying,
		Contract:     contract,
		Qty:          qty,
		Remaining:    qty,
		EntryPrice:   entryPrice,
		EntryTime:    entryTime,
		R:            r,
		StopPrice:    entryPrice - r*cfg.StopLossR,
		Target1:      entryPrice + r*cfg.Target1R,
		Target2:      entryPrice + r*cfg.Target2R,
		MaxFavorable: entryPrice,
		TimeStopAt:   entryTime.Add(timeStop),
		Status:       PositionOpen,
	}
}

// RMultiple returns the position's current profit in R units at the given
// premium price.
func (p *Position) RMultiple(price float64) float64 {
	if p.R == 0 {
		return 0
	}
	return (price - p.EntryPrice) / p.R
}
