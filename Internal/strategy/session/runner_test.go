package session

import (
	"fmt"
	"testing"
	"time"

	"github.com/alpacahq/alpaca-trade-api-go/v3/alpaca"
	"github.com/shopspring/decimal"

	"github.com/tmcferran/rangerider/Internal/broker"
	datafeed "github.com/tmcferran/rangerider/Internal/database"
	"github.com/tmcferran/rangerider/Internal/types"
	"github.com/tmcferran/rangerider/Internal/utils/config"
)

type fakeMD struct {
	snap    *types.MarketSnapshot
	premium float64
	lines   types.BattleLines
}

func (f *fakeMD) Snapshot(symbol string, barCount int, withChain bool) (*types.MarketSnapshot, error) {
	s := *f.snap
	if !withChain {
		s.Chain = nil
	}
	return &s, nil
}

func (f *fakeMD) GetOptionPremium(occSymbol string) (float64, error) {
	return f.premium, nil
}

func (f *fakeMD) BattleLines(symbol string, sessionOpen time.Time) (types.BattleLines, error) {
	return f.lines, nil
}

type fakeBroker struct {
	equity    float64
	fillPrice float64
	orders    []broker.OrderRequest
	cancels   []string
	nextID    int
	placeErr  error
	noFills   bool
}

func (f *fakeBroker) PlaceOrder(req broker.OrderRequest) (string, error) {
	if f.placeErr != nil {
		return "", f.placeErr
	}
	f.orders = append(f.orders, req)
	f.nextID++
	return fmt.Sprintf("order-%d", f.nextID), nil
}

func (f *fakeBroker) OrderFilled(orderID string) (bool, float64, error) {
	if f.noFills {
		return false, 0, nil
	}
	return true, f.fillPrice, nil
}

func (f *fakeBroker) CancelOrder(orderID string) error {
	f.cancels = append(f.cancels, orderID)
	return nil
}

func (f *fakeBroker) Equity() (float64, error) { return f.equity, nil }

type ledgerEntry struct {
	record *datafeed.TradeRecord
	exits  []string
}

type fakeLedger struct {
	entries map[string]*ledgerEntry
	nextID  int
}

func newFakeLedger() *fakeLedger {
	return &fakeLedger{entries: map[string]*ledgerEntry{}}
}

func (f *fakeLedger) RecordEntry(t *datafeed.TradeRecord) (string, error) {
	f.nextID++
	id := fmt.Sprintf("trade-%d", f.nextID)
	t.ID = id
	f.entries[id] = &ledgerEntry{record: t}
	return id, nil
}

func (f *fakeLedger) pnl(id string, qty, exitPrice decimal.Decimal) decimal.Decimal {
	rec := f.entries[id].record
	return exitPrice.Sub(rec.EntryPrice).Mul(qty).Mul(decimal.NewFromInt(100))
}

func (f *fakeLedger) RecordExit(id string, exitPrice decimal.Decimal, exitTime time.Time, reason string) (decimal.Decimal, error) {
	e := f.entries[id]
	e.exits = append(e.exits, reason)
	return f.pnl(id, e.record.Quantity, exitPrice), nil
}

func (f *fakeLedger) RecordPartialExit(id string, qty, exitPrice decimal.Decimal, exitTime time.Time, reason string) (string, decimal.Decimal, error) {
	e := f.entries[id]
	e.exits = append(e.exits, "partial:"+reason)
	e.record.Quantity = e.record.Quantity.Sub(qty)
	return id + "-leg", f.pnl(id, qty, exitPrice), nil
}

func (f *fakeLedger) UpdateStop(id string, stop decimal.Decimal) error { return nil }

func entryChain(expiry time.Time) []types.OptionContract {
	return []types.OptionContract{
		{Symbol: "SPY250602C00500000", Underlying: "SPY", Strike: 500, Type: types.Call, Expiry: expiry,
			Bid: 1.45, Ask: 1.50, Delta: 0.51, Gamma: 0.06, Theta: -0.40, Volume: 2500, OpenInterest: 9000},
		{Symbol: "SPY250602P00500000", Underlying: "SPY", Strike: 500, Type: types.Put, Expiry: expiry,
			Bid: 1.40, Ask: 1.45, Delta: -0.49, Gamma: 0.06, Theta: -0.39, Volume: 2100, OpenInterest: 8000},
	}
}

func flatBars(n int, close float64) []types.Bar {
	bars := make([]types.Bar, n)
	for i := range bars {
		bars[i] = types.Bar{Open: close, High: close, Low: close, Close: close, Volume: 1000}
	}
	return bars
}

func testRunner(t *testing.T) (*Runner, *fakeMD, *fakeBroker, *fakeLedger) {
	t.Helper()
	cfg := config.Defaults()
	cfg.Session.Timezone = "UTC"

	clock, err := NewClock("UTC", "09:30", "09:45", "11:00", "10:30", "16:00", 15)
	if err != nil {
		t.Fatal(err)
	}

	md := &fakeMD{
		snap: &types.MarketSnapshot{
			Symbol:    "SPY",
			LastPrice: 500.00,
			Bars:      flatBars(40, 500.00),
		},
		lines: types.BattleLines{PDH: 501.50, PDL: 497.00, PremarketHigh: 500.80, PremarketLow: 498.20},
	}
	b := &fakeBroker{equity: 5000, fillPrice: 1.48}
	l := newFakeLedger()

	r := NewRunner(cfg, clock, md, b, l)
	r.fillWait = 0
	r.fillInterval = 0
	return r, md, b, l
}

func at(hour, min int) time.Time {
	return time.Date(2025, 6, 2, hour, min, 0, 0, time.UTC)
}

func TestRunnerPhaseProgression(t *testing.T) {
	r, _, _, _ := testRunner(t)

	if err := r.Tick(at(9, 0)); err != nil {
		t.Fatal(err)
	}
	if r.phase != PhaseIdle {
		t.Fatalf("phase before open = %s, want Idle", r.phase)
	}

	if err := r.Tick(at(9, 31)); err != nil {
		t.Fatal(err)
	}
	if r.phase != PhaseRangeEstablishing {
		t.Fatalf("phase after open = %s, want RangeEstablishing", r.phase)
	}

	if err := r.Tick(at(9, 40)); err != nil {
		t.Fatal(err)
	}
	if err := r.Tick(at(9, 46)); err != nil {
		t.Fatal(err)
	}
	if r.phase != PhaseActiveEntry {
		t.Fatalf("phase after range window = %s, want ActiveEntry", r.phase)
	}
	if !r.day.RangeSealed() {
		t.Error("opening range should be sealed")
	}
}

func TestRunnerFullRoundTrip(t *testing.T) {
	r, md, b, l := testRunner(t)

	// Walk to ActiveEntry on a quiet tape.
	for _, tick := range []time.Time{at(9, 31), at(9, 40), at(9, 46)} {
		if err := r.Tick(tick); err != nil {
			t.Fatal(err)
		}
	}

	// Breakout over PDH on heavy volume: opening drive fires long.
	md.snap = &types.MarketSnapshot{
		Symbol:      "SPY",
		LastPrice:   502.10,
		Bars:        flatBars(40, 502.00),
		VolumeRatio: 2.5,
		Chain:       entryChain(at(20, 0)),
	}
	if err := r.Tick(at(9, 50)); err != nil {
		t.Fatal(err)
	}
	if r.position == nil {
		t.Fatal("expected an open position")
	}
	if r.phase != PhasePositionMonitoring {
		t.Fatalf("phase = %s, want PositionMonitoring", r.phase)
	}
	if len(b.orders) != 1 || b.orders[0].Side != broker.Buy {
		t.Fatalf("orders = %+v, want one buy", b.orders)
	}
	if b.orders[0].Symbol != "SPY250602C00500000" {
		t.Errorf("bought %s, want the call contract", b.orders[0].Symbol)
	}

	// Premium holds: no exit.
	md.premium = 1.50
	if err := r.Tick(at(9, 52)); err != nil {
		t.Fatal(err)
	}
	if r.position == nil {
		t.Fatal("position closed with no exit condition met")
	}

	// Premium collapses through the stop.
	md.premium = 1.05
	b.fillPrice = 1.05
	if err := r.Tick(at(9, 54)); err != nil {
		t.Fatal(err)
	}
	if r.position != nil {
		t.Fatal("position should be closed after stop loss")
	}

	var rec *ledgerEntry
	for _, e := range l.entries {
		rec = e
	}
	if rec == nil {
		t.Fatal("no ledger entry written")
	}
	if len(rec.exits) != 1 || rec.exits[0] != "StopLoss" {
		t.Errorf("exits = %v, want [StopLoss]", rec.exits)
	}

	if r.state.TradesToday != 1 {
		t.Errorf("TradesToday = %d, want 1", r.state.TradesToday)
	}
	if r.state.ConsecutiveLosses != 1 {
		t.Errorf("ConsecutiveLosses = %d, want 1", r.state.ConsecutiveLosses)
	}
	if r.state.DailyPnL >= 0 {
		t.Errorf("DailyPnL = %.2f, want negative", r.state.DailyPnL)
	}
}

func TestUnfilledExitOrderCancelledBeforeRetry(t *testing.T) {
	r, md, b, _ := testRunner(t)

	for _, tick := range []time.Time{at(9, 31), at(9, 40), at(9, 46)} {
		if err := r.Tick(tick); err != nil {
			t.Fatal(err)
		}
	}

	md.snap = &types.MarketSnapshot{
		Symbol:      "SPY",
		LastPrice:   502.10,
		Bars:        flatBars(40, 502.00),
		VolumeRatio: 2.5,
		Chain:       entryChain(at(20, 0)),
	}
	if err := r.Tick(at(9, 50)); err != nil {
		t.Fatal(err)
	}
	if r.position == nil {
		t.Fatal("expected an open position")
	}

	// Stop breached, but the broker accepts sells and never fills them.
	md.premium = 1.05
	b.noFills = true
	for _, tick := range []time.Time{at(9, 52), at(9, 54)} {
		if err := r.Tick(tick); err != nil {
			t.Fatal(err)
		}
	}
	if r.position == nil {
		t.Fatal("position closed despite no fill")
	}

	var sells []string
	for i, req := range b.orders {
		if req.Side == broker.Sell {
			sells = append(sells, fmt.Sprintf("order-%d", i+1))
		}
	}
	if len(sells) != 2 {
		t.Fatalf("sell orders = %d, want 2 (one per stuck tick)", len(sells))
	}
	// Each stuck sell must be cancelled before the next one goes out, so
	// only one exit order is ever live.
	if len(b.cancels) != 2 || b.cancels[0] != sells[0] || b.cancels[1] != sells[1] {
		t.Fatalf("cancels = %v, want %v", b.cancels, sells)
	}

	// Fills resume: the retried exit completes normally.
	b.noFills = false
	b.fillPrice = 1.05
	if err := r.Tick(at(9, 56)); err != nil {
		t.Fatal(err)
	}
	if r.position != nil {
		t.Fatal("position should be closed once the exit fills")
	}
	if len(b.cancels) != 2 {
		t.Errorf("cancels = %d after the fill, want still 2", len(b.cancels))
	}
}

func TestRunnerForcedFlatten(t *testing.T) {
	r, md, b, _ := testRunner(t)

	for _, tick := range []time.Time{at(9, 31), at(9, 40), at(9, 46)} {
		if err := r.Tick(tick); err != nil {
			t.Fatal(err)
		}
	}

	md.snap = &types.MarketSnapshot{
		Symbol:      "SPY",
		LastPrice:   502.10,
		Bars:        flatBars(40, 502.00),
		VolumeRatio: 2.5,
		Chain:       entryChain(at(20, 0)),
	}
	if err := r.Tick(at(9, 50)); err != nil {
		t.Fatal(err)
	}
	if r.position == nil {
		t.Fatal("expected an open position")
	}

	// Premium still inside stop and targets at the flatten boundary: the
	// position must be closed regardless.
	md.premium = 1.50
	b.fillPrice = 1.50
	if err := r.Tick(at(15, 46)); err != nil {
		t.Fatal(err)
	}
	if r.phase != PhaseForcedFlatten {
		t.Fatalf("phase = %s, want ForcedFlatten", r.phase)
	}
	if err := r.Tick(at(15, 47)); err != nil {
		t.Fatal(err)
	}
	if r.position != nil {
		t.Fatal("forced flatten left a position open")
	}
	if r.phase != PhaseIdle {
		t.Errorf("phase after flatten = %s, want Idle", r.phase)
	}
}

func TestRegimePlanAdjustments(t *testing.T) {
	r, _, _, _ := testRunner(t)
	r.day = NewDayState("2025-06-02")
	r.day.Track(500.00)
	r.day.Track(501.00)
	r.day.Track(499.00)
	if err := r.day.SealRange(at(9, 45)); err != nil {
		t.Fatal(err)
	}
	base := r.planConfig(at(10, 0))

	// Quiet tape, price inside the range: plan unchanged.
	plan := r.regimePlan(at(10, 0), 500.50, 0.10)
	if plan.StopLossR != base.StopLossR || plan.Target2R != base.Target2R {
		t.Errorf("quiet tape changed the plan: stop %v target %v", plan.StopLossR, plan.Target2R)
	}

	// High realized vol widens the stop.
	plan = r.regimePlan(at(10, 0), 500.50, 0.40)
	want := base.StopLossR * r.cfg.Exits.HighVolStopWiden
	if plan.StopLossR != want {
		t.Errorf("high vol stop = %v, want %v", plan.StopLossR, want)
	}

	// Price a full range-width above the range high extends the target.
	plan = r.regimePlan(at(10, 0), 503.50, 0.10)
	want = base.Target2R * r.cfg.Exits.TrendTargetExtend
	if plan.Target2R != want {
		t.Errorf("trending target = %v, want %v", plan.Target2R, want)
	}
}

func TestRunnerHaltsOnFatalBrokerError(t *testing.T) {
	r, md, b, _ := testRunner(t)
	b.placeErr = &alpaca.APIError{StatusCode: 422, Message: "insufficient buying power"}

	for _, tick := range []time.Time{at(9, 31), at(9, 40), at(9, 46)} {
		if err := r.Tick(tick); err != nil {
			t.Fatal(err)
		}
	}

	md.snap = &types.MarketSnapshot{
		Symbol:      "SPY",
		LastPrice:   502.10,
		Bars:        flatBars(40, 502.00),
		VolumeRatio: 2.5,
		Chain:       entryChain(at(20, 0)),
	}
	if err := r.Tick(at(9, 50)); err != nil {
		t.Fatal(err)
	}
	if r.position != nil {
		t.Fatal("no position should open when the broker rejects the order")
	}
	if r.phase != PhaseForcedFlatten {
		t.Fatalf("phase after fatal broker error = %s, want ForcedFlatten", r.phase)
	}

	// Nothing open, so the flatten pass lands back in Idle and stays there
	// for the rest of the day even though the entry window is open.
	if err := r.Tick(at(9, 51)); err != nil {
		t.Fatal(err)
	}
	if r.phase != PhaseIdle {
		t.Fatalf("phase after flatten with no position = %s, want Idle", r.phase)
	}
	if err := r.Tick(at(9, 55)); err != nil {
		t.Fatal(err)
	}
	if r.phase != PhaseIdle {
		t.Fatalf("halted session should stay Idle, got %s", r.phase)
	}
}

func TestRunnerBlocksEntriesAfterLimitBreach(t *testing.T) {
	r, md, b, _ := testRunner(t)

	for _, tick := range []time.Time{at(9, 31), at(9, 40), at(9, 46)} {
		if err := r.Tick(tick); err != nil {
			t.Fatal(err)
		}
	}

	// Breach the daily loss limit directly.
	r.state = r.state.ApplyTradeResult(-600, r.limits)

	md.snap = &types.MarketSnapshot{
		Symbol:      "SPY",
		LastPrice:   502.10,
		Bars:        flatBars(40, 502.00),
		VolumeRatio: 2.5,
		Chain:       entryChain(at(20, 0)),
	}
	if err := r.Tick(at(9, 50)); err != nil {
		t.Fatal(err)
	}
	if r.position != nil {
		t.Fatal("entry permitted despite daily loss breach")
	}
	if len(b.orders) != 0 {
		t.Fatalf("orders placed despite breach: %+v", b.orders)
	}
}

func TestRunnerStaysInMonitoringAfterEntryCutoff(t *testing.T) {
	// No position and a closed entry window must not bounce the machine
	// back to ActiveEntry.
	r, _, _, _ := testRunner(t)
	r.day = NewDayState("2025-06-02")
	r.phase = PhasePositionMonitoring

	if err := r.Tick(at(12, 0)); err != nil {
		t.Fatal(err)
	}
	if r.phase != PhasePositionMonitoring {
		t.Errorf("phase = %s, want PositionMonitoring after entry cutoff", r.phase)
	}
}
