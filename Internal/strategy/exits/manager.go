package exits

import (
	"math"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/tmcferran/rangerider/Internal/metrics"
)

type ExitReason string

const (
	ReasonStopLoss     ExitReason = "StopLoss"
	ReasonTarget       ExitReason = "Target"
	ReasonTrailingStop ExitReason = "TrailingStop"
	ReasonTimeStop     ExitReason = "TimeStop"
	ReasonSessionEnd   ExitReason = "SessionEnd"
)

// Intent is one exit decision: close Qty contracts at roughly Price for
// Reason. Partial reports whether the position survives the exit.
type Intent struct {
	Reason  ExitReason
	Qty     int
	Price   float64
	Partial bool
}

// Manager evaluates open positions against the exit plan. Conditions are
// checked in a fixed priority order and the first match wins, so two
// simultaneously true conditions can never produce conflicting exits.
type Manager struct {
	cfg PlanConfig
}

func NewManager(cfg PlanConfig) *Manager {
	return &Manager{cfg: cfg}
}

// Evaluate inspects one position at the current premium price. It mutates
// only the trailing state and returns a non-nil Intent when an exit is due.
// forceFlatten short-circuits everything with SessionEnd.
func (m *Manager) Evaluate(p *Position, price float64, now time.Time, forceFlatten bool) *Intent {
	if p.Status != PositionOpen || p.Remaining <= 0 {
		return nil
	}

	// An unconfirmed exit is retried before anything else is considered.
	// Once the session forces a flatten, a pending partial is escalated to
	// a full close so the whole position goes out in one order.
	if p.PendingExit != nil {
		if forceFlatten && p.PendingExit.Partial {
			p.PendingExit = &Intent{Reason: ReasonSessionEnd, Qty: p.Remaining, Price: price}
		}
		return p.PendingExit
	}

	m.updateTrail(p, price)

	var intent *Intent
	switch {
	case price <= p.StopPrice:
		intent = &Intent{Reason: ReasonStopLoss, Qty: p.Remaining, Price: price}

	case !p.Target1Done && price >= p.Target1:
		qty := int(math.Round(float64(p.Qty) * m.cfg.Target1SizePct))
		if qty < 1 {
			qty = 1
		}
		if qty >= p.Remaining {
			intent = &Intent{Reason: ReasonTarget, Qty: p.Remaining, Price: price}
		} else {
			intent = &Intent{Reason: ReasonTarget, Qty: qty, Price: price, Partial: true}
		}

	case price >= p.Target2:
		intent = &Intent{Reason: ReasonTarget, Qty: p.Remaining, Price: price}

	case p.TrailArmed && price <= p.TrailLevel:
		intent = &Intent{Reason: ReasonTrailingStop, Qty: p.Remaining, Price: price}

	case !now.Before(p.TimeStopAt):
		intent = &Intent{Reason: ReasonTimeStop, Qty: p.Remaining, Price: price}
	}

	if forceFlatten && intent == nil {
		intent = &Intent{Reason: ReasonSessionEnd, Qty: p.Remaining, Price: price}
	}
	if intent == nil {
		return nil
	}

	p.PendingExit = intent
	metrics.ExitsTriggered.WithLabelValues(string(intent.Reason)).Inc()
	log.WithFields(log.Fields{
		"position": p.ID,
		"reason":   intent.Reason,
		"qty":      intent.Qty,
		"price":    price,
	}).Info("🚪 Exit triggered")
	return intent
}

// updateTrail tracks the high-water mark and arms the trailing stop once
// price has moved the configured R multiple in favor.
func (m *Manager) updateTrail(p *Position, price float64) {
	if price > p.MaxFavorable {
		p.MaxFavorable = price
	}
	if !p.TrailArmed && p.RMultiple(p.MaxFavorable) >= m.cfg.TrailActivationR {
		p.TrailArmed = true
		log.WithField("position", p.ID).Debug("🔔 Trailing stop armed")
	}
	if p.TrailArmed {
		level := p.MaxFavorable - m.cfg.TrailDistanceR*p.R
		if level > p.TrailLevel {
			p.TrailLevel = level
		}
	}
}

// Confirm applies a filled exit to the position. On a partial target fill
// the stop optionally jumps to breakeven for the remainder; on a full fill
// the position closes.
func (m *Manager) Confirm(p *Position, intent *Intent, fillPrice float64, fillTime time.Time) {
	p.PendingExit = nil

	if intent.Partial {
		p.Remaining -= intent.Qty
		p.Target1Done = true
		if m.cfg.BreakevenAfterT1 && p.EntryPrice > p.StopPrice {
			p.StopPrice = p.EntryPrice
		}
		log.WithFields(log.Fields{
			"position":  p.ID,
			"remaining": p.Remaining,
			"stop":      p.StopPrice,
		}).Info("✂️  Partial exit filled, stop adjusted")
		return
	}

	p.Remaining = 0
	p.Status = PositionClosed
	p.ExitPrice = fillPrice
	p.ExitTime = fillTime
	p.ExitReason = intent.Reason
}

// Retry re-queues an exit whose broker order was rejected or expired. The
// position must never silently leave monitoring without a confirmed close.
func (m *Manager) Retry(p *Position) {
	if p.PendingExit != nil {
		log.WithFields(log.Fields{
			"position": p.ID,
			"reason":   p.PendingExit.Reason,
		}).Warn("🔁 Exit order not filled, retrying next cycle")
	}
}
