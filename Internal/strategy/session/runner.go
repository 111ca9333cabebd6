package session

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"

	"github.com/tmcferran/rangerider/Internal/broker"
	datafeed "github.com/tmcferran/rangerider/Internal/database"
	"github.com/tmcferran/rangerider/Internal/metrics"
	"github.com/tmcferran/rangerider/Internal/strategy/exits"
	"github.com/tmcferran/rangerider/Internal/strategy/options"
	"github.com/tmcferran/rangerider/Internal/strategy/risk"
	"github.com/tmcferran/rangerider/Internal/strategy/signals"
	"github.com/tmcferran/rangerider/Internal/types"
	"github.com/tmcferran/rangerider/Internal/utils/config"
)

const snapshotBarCount = 40

// MarketData is the slice of the data provider the session loop needs.
type MarketData interface {
	Snapshot(symbol string, barCount int, withChain bool) (*types.MarketSnapshot, error)
	GetOptionPremium(occSymbol string) (float64, error)
	BattleLines(symbol string, sessionOpen time.Time) (types.BattleLines, error)
}

// Broker is the order surface the session loop needs.
type Broker interface {
	PlaceOrder(req broker.OrderRequest) (string, error)
	OrderFilled(orderID string) (bool, float64, error)
	CancelOrder(orderID string) error
	Equity() (float64, error)
}

// Ledger is the persistence boundary for trade records.
type Ledger interface {
	RecordEntry(t *datafeed.TradeRecord) (string, error)
	RecordExit(tradeID string, exitPrice decimal.Decimal, exitTime time.Time, reason string) (decimal.Decimal, error)
	RecordPartialExit(tradeID string, qty, exitPrice decimal.Decimal, exitTime time.Time, reason string) (string, decimal.Decimal, error)
	UpdateStop(tradeID string, stop decimal.Decimal) error
}

// Runner drives one account's trading day through the phase cycle
// Idle, RangeEstablishing, ActiveEntry, PositionMonitoring, ForcedFlatten.
// Entry and exit evaluation are strictly sequential within one tick.
type Runner struct {
	cfg    *config.Config
	clock  *Clock
	md     MarketData
	broker Broker
	ledger Ledger

	engine   *signals.Engine
	selector *options.Selector
	exitMgr  *exits.Manager

	sizerCfg risk.SizerConfig
	limits   risk.Limits
	state    risk.State

	phase      Phase
	day        *DayState
	position   *exits.Position
	partialPnL float64

	// halted blocks re-entry for the rest of the day after a fatal
	// broker error; cleared at the next day roll.
	halted bool

	// fillWait bounds how long an order is polled before being cancelled.
	fillWait     time.Duration
	fillInterval time.Duration
}

func NewRunner(cfg *config.Config, clock *Clock, md MarketData, b Broker, ledger Ledger) *Runner {
	return &Runner{
		cfg:    cfg,
		clock:  clock,
		md:     md,
		broker: b,
		ledger: ledger,
		engine: signals.NewEngine(signals.Params{
			MinScore:     cfg.Signals.MinScore,
			VolumePeriod: cfg.Signals.VolumePeriod,
			RSIPeriod:    cfg.Signals.RSIPeriod,
			RSIOversold:  cfg.Signals.RSIOversold,
		}),
		selector: options.NewSelector(options.Config{
			TargetDelta:     cfg.Options.TargetDelta,
			DeltaTolerance:  cfg.Options.DeltaTolerance,
			MaxDTE:          cfg.Options.MaxDTE,
			MinVolume:       cfg.Options.MinVolume,
			MinOpenInterest: cfg.Options.MinOpenInterest,
			MaxSpreadPct:    cfg.Options.MaxSpreadPct,
			LiquidityWeight: cfg.Options.LiquidityWeight,
			CacheTTL:        time.Duration(cfg.Options.CacheTTLSecs) * time.Second,
		}),
		sizerCfg: risk.SizerConfig{
			BaseRiskPct:           cfg.Risk.BaseRiskPct,
			MaxRiskPct:            cfg.Risk.MaxRiskPct,
			SmallAccountLimit:     cfg.Risk.SmallAccountLimit,
			SmallAccountBoost:     cfg.Risk.SmallAccountBoost,
			LossStreakStep:        cfg.Risk.LossStreakStep,
			WinStreakStep:         cfg.Risk.WinStreakStep,
			StreakFloor:           cfg.Risk.StreakFloor,
			StreakCeiling:         cfg.Risk.StreakCeiling,
			HighVolThreshold:      cfg.Risk.HighVolThreshold,
			HighVolMultiplier:     cfg.Risk.HighVolMultiplier,
			LateSessionMultiplier: cfg.Risk.LateSessionMultiplier,
			MinScore:              cfg.Signals.MinScore,
		},
		limits: risk.Limits{
			DailyLossLimit:       cfg.Risk.DailyLossLimit,
			ConsecutiveLossLimit: cfg.Risk.ConsecutiveLossLimit,
			MaxTradesPerDay:      cfg.Risk.MaxTradesPerDay,
		},
		phase:        PhaseIdle,
		fillWait:     10 * time.Second,
		fillInterval: time.Second,
	}
}

func (r *Runner) planConfig(now time.Time) exits.PlanConfig {
	e := r.cfg.Exits
	return exits.PlanConfig{
		StopLossR:        e.StopLossR,
		Target1R:         e.Target1R,
		Target1SizePct:   e.Target1SizePct,
		Target2R:         e.Target2R,
		TrailActivationR: e.TrailActivationR,
		TrailDistanceR:   e.TrailDistanceR,
		TimeStop:         time.Duration(e.TimeStopMinutes) * time.Minute,
		LateTimeStop:     time.Duration(e.TimeStopMinutes) * time.Minute / 2,
		LateEntryAfter:   r.clock.TightenAfterAt(now),
		BreakevenAfterT1: e.BreakevenAfterT1,
	}
}

// regimePlan adjusts the base exit plan for the current tape: a high
// volatility read widens the stop, and price running a full range-width
// beyond the opening range extends the final target.
func (r *Runner) regimePlan(now time.Time, lastPrice, realizedVol float64) exits.PlanConfig {
	plan := r.planConfig(now)
	e := r.cfg.Exits
	if e.HighVolStopWiden > 0 && realizedVol > r.cfg.Risk.HighVolThreshold {
		plan.StopLossR *= e.HighVolStopWiden
	}
	if e.TrendTargetExtend > 0 {
		if or := r.day.Range(); or.Established() {
			width := or.High - or.Low
			if width > 0 && (lastPrice > or.High+width || lastPrice < or.Low-width) {
				plan.Target2R *= e.TrendTargetExtend
			}
		}
	}
	return plan
}

// Run polls until the context is cancelled, then attempts to flatten any
// open position before returning.
func (r *Runner) Run(ctx context.Context) error {
	log.WithField("symbol", r.cfg.Symbol).Info("🚀 Session loop started")
	for {
		select {
		case <-ctx.Done():
			return r.shutdown()
		case <-time.After(r.pollInterval()):
			if err := r.Tick(time.Now()); err != nil {
				log.WithError(err).Error("Session tick failed")
			}
		}
	}
}

// pollInterval is fast while entries or an open position need sub-5s
// reaction time, slow otherwise.
func (r *Runner) pollInterval() time.Duration {
	switch r.phase {
	case PhaseActiveEntry, PhasePositionMonitoring, PhaseForcedFlatten:
		return time.Duration(r.cfg.Session.FastPollSecs) * time.Second
	default:
		return time.Duration(r.cfg.Session.SlowPollSecs) * time.Second
	}
}

// Tick advances the state machine one step. Transitions are driven purely
// by wall-clock time against the configured boundaries.
func (r *Runner) Tick(now time.Time) error {
	if r.clock.IsWeekend(now) {
		return nil
	}
	if day := r.clock.TradingDay(now); r.day == nil || r.day.Day() != day {
		if err := r.rollDay(now, day); err != nil {
			return err
		}
	}

	switch r.phase {
	case PhaseIdle:
		if r.halted {
			return nil
		}
		if !now.Before(r.clock.OpenAt(now)) && now.Before(r.clock.CloseAt(now)) {
			r.captureBattleLines(now)
			r.setPhase(PhaseRangeEstablishing)
		}

	case PhaseRangeEstablishing:
		snap, err := r.md.Snapshot(r.cfg.Symbol, snapshotBarCount, false)
		if err != nil {
			return err
		}
		r.day.Track(snap.LastPrice)
		if !now.Before(r.clock.RangeEndAt(now)) {
			if err := r.day.SealRange(now); err == nil {
				rng := r.day.Range()
				log.WithFields(log.Fields{
					"high": rng.High,
					"low":  rng.Low,
				}).Info("📏 Opening range established")
			}
			r.setPhase(PhaseActiveEntry)
		}

	case PhaseActiveEntry:
		if !now.Before(r.clock.FlattenAt(now)) {
			r.setPhase(PhaseForcedFlatten)
			return nil
		}
		if !now.Before(r.clock.EntryCutoffAt(now)) {
			r.setPhase(PhasePositionMonitoring)
			return nil
		}
		if err := r.tryEnter(now); err != nil {
			return err
		}
		if r.position != nil {
			r.setPhase(PhasePositionMonitoring)
		}

	case PhasePositionMonitoring:
		if !now.Before(r.clock.FlattenAt(now)) {
			r.setPhase(PhaseForcedFlatten)
			return nil
		}
		if r.position == nil {
			// Entry window still open and no position: go look again.
			if now.Before(r.clock.EntryCutoffAt(now)) {
				r.setPhase(PhaseActiveEntry)
			}
			return nil
		}
		return r.manageExits(now, false)

	case PhaseForcedFlatten:
		if r.position == nil {
			r.setPhase(PhaseIdle)
			return nil
		}
		return r.manageExits(now, true)
	}
	return nil
}

func (r *Runner) setPhase(p Phase) {
	if r.phase == p {
		return
	}
	log.WithFields(log.Fields{"from": r.phase, "to": p}).Info("🔄 Session phase change")
	r.phase = p
	metrics.SessionPhase.Set(phaseCodes[p])
}

// rollDay resets per-day state and refreshes capital from the broker.
func (r *Runner) rollDay(now time.Time, day string) error {
	equity, err := r.broker.Equity()
	if err != nil {
		return err
	}
	if r.day == nil {
		r.state = risk.NewState(equity, now)
	} else {
		r.state = r.state.StartOfDay(now)
		r.state.Capital = equity
	}
	r.day = NewDayState(day)
	r.partialPnL = 0
	r.halted = false
	r.setPhase(PhaseIdle)
	metrics.DailyPnL.Set(0)
	log.WithFields(log.Fields{"day": day, "capital": equity}).Info("🌅 New trading day")
	return nil
}

func (r *Runner) captureBattleLines(now time.Time) {
	lines, err := r.md.BattleLines(r.cfg.Symbol, r.clock.OpenAt(now))
	if err != nil {
		// Detectors tolerate zero levels; better to trade without lines
		// than to stall the whole session.
		log.WithError(err).Warn("Failed to capture battle lines")
		return
	}
	r.day.SetBattleLines(lines)
	log.WithFields(log.Fields{"pdh": lines.PDH, "pdl": lines.PDL}).Info("⚔️  Battle lines captured")
}

// tryEnter runs one detect-size-select-order cycle.
func (r *Runner) tryEnter(now time.Time) error {
	if err := r.state.CanEnter(r.limits); err != nil {
		// Limit breach is a state, not an error: stay in the loop so any
		// open position keeps being monitored.
		return nil
	}

	snap, err := r.md.Snapshot(r.cfg.Symbol, snapshotBarCount, true)
	if err != nil {
		return err
	}
	r.day.Track(snap.LastPrice)

	sctx := &signals.Context{
		OpeningRange:  r.day.Range(),
		BattleLines:   r.day.BattleLines(),
		HoursToExpiry: r.clock.CloseAt(now).Sub(now).Hours(),
	}
	sig := r.engine.Best(snap, sctx)
	if sig == nil {
		return nil
	}

	side := types.Call
	if sig.Direction == signals.Short {
		side = types.Put
	}
	contract, err := r.selector.Select(snap.Chain, side, snap.LastPrice, now)
	if err != nil {
		if errors.Is(err, options.ErrNoLiquidContract) {
			metrics.OrdersRejected.WithLabelValues("no_liquid_contract").Inc()
			log.WithField("signal", sig.Kind).Debug("No liquid contract, skipping signal")
			return nil
		}
		return err
	}

	premium := contract.Mid()
	stopPerUnit := premium * r.cfg.Exits.StopPremiumPct
	realizedVol := risk.RealizedVol(snap.Bars)
	decision, err := risk.Size(risk.Inputs{
		State:       r.state,
		Limits:      r.limits,
		Score:       sig.Score,
		RealizedVol: realizedVol,
		LateSession: now.After(r.clock.TightenAfterAt(now)),
		StopPerUnit: stopPerUnit,
	}, r.sizerCfg)
	if err != nil {
		metrics.OrdersRejected.WithLabelValues(rejectReason(err)).Inc()
		log.WithError(err).WithField("signal", sig.Kind).Info("Entry rejected by sizing")
		return nil
	}

	metrics.OrdersAttempted.Inc()
	orderID, err := r.broker.PlaceOrder(broker.OrderRequest{
		Symbol: contract.Symbol,
		Qty:    int64(decision.Contracts),
		Side:   broker.Buy,
	})
	if err != nil {
		metrics.OrdersFailed.Inc()
		if broker.Classify(err) == broker.Fatal {
			// Credential failure or rejected order: resubmitting would
			// just fail again, so stop entering for the day.
			log.WithError(err).Error("🚨 Fatal broker error, halting entries for the day")
			r.halted = true
			r.setPhase(PhaseForcedFlatten)
			return nil
		}
		return err
	}
	metrics.OrdersPlaced.Inc()

	filled, fillPrice, err := r.waitForFill(orderID)
	if err != nil {
		return err
	}
	if !filled {
		log.WithField("order", orderID).Warn("Entry order not filled in time, cancelling")
		if err := r.broker.CancelOrder(orderID); err != nil {
			log.WithError(err).Warn("Cancel failed")
		}
		return nil
	}

	pos := exits.NewPosition(*contract, decision.Contracts, fillPrice, stopPerUnit, now,
		r.regimePlan(now, snap.LastPrice, realizedVol))
	pos.Direction = string(sig.Direction)

	ledgerID, err := r.ledger.RecordEntry(&datafeed.TradeRecord{
		Strategy: r.cfg.Mode,
		Symbol:   r.cfg.Symbol,
		Contract: contract.Symbol,
		// Entries are always buy-to-open; a short bias is expressed by
		// holding puts, so ledger P&L stays on the long-premium formula.
		Direction:   "LONG",
		SignalType:  string(sig.Kind),
		Quantity:    decimal.NewFromInt(int64(decision.Contracts)),
		EntryPrice:  decimal.NewFromFloat(fillPrice),
		EntryTime:   now,
		RiskUnit:    decimal.NewFromFloat(decision.RiskUnit),
		StopPrice:   decimal.NewFromFloat(pos.StopPrice),
		TargetPrice: decimal.NewFromFloat(pos.Target2),
	})
	if err != nil {
		// The position is live even if persistence hiccuped; keep trading
		// and let the operator reconcile from broker history.
		log.WithError(err).Error("Failed to record trade entry")
	}
	pos.LedgerID = ledgerID
	r.position = pos
	r.exitMgr = exits.NewManager(r.planConfig(now))

	log.WithFields(log.Fields{
		"contract": contract.Symbol,
		"qty":      decision.Contracts,
		"entry":    fillPrice,
		"stop":     pos.StopPrice,
		"signal":   sig.Kind,
	}).Info("✅ Position opened")
	return nil
}

// manageExits evaluates the open position and executes at most one exit
// intent per tick.
func (r *Runner) manageExits(now time.Time, force bool) error {
	pos := r.position
	premium, err := r.md.GetOptionPremium(pos.Contract.Symbol)
	if err != nil {
		return err
	}

	intent := r.exitMgr.Evaluate(pos, premium, now, force)
	if intent == nil {
		return nil
	}

	orderID, err := r.broker.PlaceOrder(broker.OrderRequest{
		Symbol: pos.Contract.Symbol,
		Qty:    int64(intent.Qty),
		Side:   broker.Sell,
	})
	if err != nil {
		r.exitMgr.Retry(pos)
		return err
	}

	filled, fillPrice, err := r.waitForFill(orderID)
	if err != nil || !filled {
		// The day order must not stay live while the exit is re-armed.
		log.WithField("order", orderID).Warn("Exit order not filled in time, cancelling")
		if cerr := r.broker.CancelOrder(orderID); cerr != nil {
			log.WithError(cerr).Warn("Cancel failed")
		}
		r.exitMgr.Retry(pos)
		return err
	}

	reason := string(intent.Reason)
	if intent.Partial {
		_, pnl, lerr := r.ledger.RecordPartialExit(pos.LedgerID,
			decimal.NewFromInt(int64(intent.Qty)), decimal.NewFromFloat(fillPrice), now, reason)
		if lerr != nil {
			log.WithError(lerr).Error("Failed to record partial exit")
		} else {
			r.partialPnL += pnl.InexactFloat64()
		}
		r.exitMgr.Confirm(pos, intent, fillPrice, now)
		if uerr := r.ledger.UpdateStop(pos.LedgerID, decimal.NewFromFloat(pos.StopPrice)); uerr != nil {
			log.WithError(uerr).Warn("Failed to persist stop adjustment")
		}
		return nil
	}

	pnl, lerr := r.ledger.RecordExit(pos.LedgerID, decimal.NewFromFloat(fillPrice), now, reason)
	realized := r.partialPnL
	if lerr != nil {
		log.WithError(lerr).Error("Failed to record exit")
	} else {
		realized += pnl.InexactFloat64()
	}
	r.exitMgr.Confirm(pos, intent, fillPrice, now)

	r.state = r.state.ApplyTradeResult(realized, r.limits)
	metrics.DailyPnL.Set(r.state.DailyPnL)

	log.WithFields(log.Fields{
		"contract": pos.Contract.Symbol,
		"reason":   reason,
		"pnl":      realized,
	}).Info("🏁 Position closed")

	r.position = nil
	r.partialPnL = 0
	if r.phase == PhaseForcedFlatten {
		r.setPhase(PhaseIdle)
	}
	return nil
}

// waitForFill polls the order until filled or the wait budget runs out.
func (r *Runner) waitForFill(orderID string) (bool, float64, error) {
	deadline := time.Now().Add(r.fillWait)
	for {
		filled, price, err := r.broker.OrderFilled(orderID)
		if err != nil {
			return false, 0, err
		}
		if filled {
			return true, price, nil
		}
		if time.Now().After(deadline) {
			return false, 0, nil
		}
		time.Sleep(r.fillInterval)
	}
}

// shutdown stops new entries and attempts to flatten before exit. A flatten
// that cannot confirm within the timeout is logged, never silently dropped.
func (r *Runner) shutdown() error {
	log.Info("🛑 Shutdown requested, no further entries")
	if r.position == nil {
		return nil
	}

	r.setPhase(PhaseForcedFlatten)
	deadline := time.Now().Add(30 * time.Second)
	for r.position != nil && time.Now().Before(deadline) {
		if err := r.manageExits(time.Now(), true); err != nil {
			log.WithError(err).Warn("Flatten attempt failed")
		}
		if r.position != nil {
			time.Sleep(2 * time.Second)
		}
	}
	if r.position != nil {
		log.WithField("contract", r.position.Contract.Symbol).
			Error("⚠️ Unresolved open position at shutdown, manual close required")
	}
	return nil
}

func rejectReason(err error) string {
	switch {
	case errors.Is(err, risk.ErrDailyLimitReached):
		return "daily_loss_limit"
	case errors.Is(err, risk.ErrConsecutiveLossLimit):
		return "consecutive_loss_limit"
	case errors.Is(err, risk.ErrMaxTradesReached):
		return "max_trades"
	case errors.Is(err, risk.ErrInsufficientSize):
		return "insufficient_size"
	default:
		return "validation"
	}
}
