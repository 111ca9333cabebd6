package exits

import (
	"testing"
	"time"

	"github.com/tmcferran/rangerider/Internal/types"
)

func testContract() types.OptionContract {
	return types.OptionContract{
		Symbol:     "SPY250602C00500000",
		Underlying: "SPY",
		Strike:     500,
		Type:       types.Call,
	}
}

func openPosition(t *testing.T, qty int) *Position {
	t.Helper()
	entry := time.Date(2025, 6, 2, 9, 50, 0, 0, time.UTC)
	// Entry 2.00, R 0.40: stop 1.60, T1 2.60, T2 3.20.
	return NewPosition(testContract(), qty, 2.00, 0.40, entry, DefaultPlanConfig())
}

func TestNewPositionLevels(t *testing.T) {
	p := openPosition(t, 4)

	if p.StopPrice != 1.60 {
		t.Errorf("StopPrice = %.2f, want 1.60", p.StopPrice)
	}
	if p.Target1 != 2.60 {
		t.Errorf("Target1 = %.2f, want 2.60", p.Target1)
	}
	if p.Target2 != 3.20 {
		t.Errorf("Target2 = %.2f, want 3.20", p.Target2)
	}
	if !p.TimeStopAt.Equal(p.EntryTime.Add(60 * time.Minute)) {
		t.Errorf("TimeStopAt = %v, want entry+60m", p.TimeStopAt)
	}
}

func TestLateEntryTightensTimeStop(t *testing.T) {
	cfg := DefaultPlanConfig()
	cfg.LateEntryAfter = time.Date(2025, 6, 2, 10, 30, 0, 0, time.UTC)

	late := time.Date(2025, 6, 2, 10, 45, 0, 0, time.UTC)
	p := NewPosition(testContract(), 2, 2.00, 0.40, late, cfg)

	if !p.TimeStopAt.Equal(late.Add(30 * time.Minute)) {
		t.Errorf("late entry TimeStopAt = %v, want entry+30m", p.TimeStopAt)
	}
}

func TestStopLossWinsOverTarget(t *testing.T) {
	// Stop higher than target1: both conditions true at once must resolve
	// to the stop.
	p := openPosition(t, 2)
	p.StopPrice = 2.70
	p.Target1 = 2.60

	m := NewManager(DefaultPlanConfig())
	intent := m.Evaluate(p, 2.65, p.EntryTime.Add(time.Minute), false)
	if intent == nil {
		t.Fatal("expected an exit intent")
	}
	if intent.Reason != ReasonStopLoss {
		t.Errorf("reason = %s, want StopLoss", intent.Reason)
	}
	if intent.Qty != 2 {
		t.Errorf("qty = %d, want full 2", intent.Qty)
	}
}

func TestPartialTargetThenBreakeven(t *testing.T) {
	p := openPosition(t, 4)
	m := NewManager(DefaultPlanConfig())
	now := p.EntryTime.Add(5 * time.Minute)

	intent := m.Evaluate(p, 2.60, now, false)
	if intent == nil {
		t.Fatal("expected target exit at 1.5R")
	}
	if intent.Reason != ReasonTarget || !intent.Partial {
		t.Fatalf("got %+v, want partial Target", intent)
	}
	if intent.Qty != 2 {
		t.Errorf("partial qty = %d, want 2 (half of 4)", intent.Qty)
	}

	m.Confirm(p, intent, 2.60, now)
	if p.Remaining != 2 {
		t.Errorf("Remaining = %d, want 2", p.Remaining)
	}
	if p.StopPrice != p.EntryPrice {
		t.Errorf("stop after partial = %.2f, want breakeven %.2f", p.StopPrice, p.EntryPrice)
	}
	if p.Status != PositionOpen {
		t.Error("position should stay open after partial close")
	}

	// Second touch of T1 must not re-trigger the staged target.
	if again := m.Evaluate(p, 2.61, now.Add(time.Minute), false); again != nil && again.Partial {
		t.Error("staged target fired twice")
	}
}

func TestFinalTargetFullClose(t *testing.T) {
	p := openPosition(t, 4)
	p.Target1Done = true
	m := NewManager(DefaultPlanConfig())
	now := p.EntryTime.Add(10 * time.Minute)

	intent := m.Evaluate(p, 3.25, now, false)
	if intent == nil || intent.Reason != ReasonTarget || intent.Partial {
		t.Fatalf("got %+v, want full Target close", intent)
	}

	m.Confirm(p, intent, 3.25, now)
	if p.Status != PositionClosed {
		t.Error("position should be closed")
	}
	if p.ExitReason != ReasonTarget {
		t.Errorf("ExitReason = %s, want Target", p.ExitReason)
	}
}

func TestTrailingStop(t *testing.T) {
	p := openPosition(t, 2)
	p.Target1Done = true // isolate the trail from the staged target
	m := NewManager(DefaultPlanConfig())
	now := p.EntryTime

	// 2.60 is 1.5R favorable: arms the trail at 2.60 - 0.5R = 2.40.
	if intent := m.Evaluate(p, 2.60, now, false); intent != nil && intent.Reason == ReasonTrailingStop {
		t.Fatal("trail fired on the bar that armed it")
	}
	if !p.TrailArmed {
		t.Fatal("trail should be armed at 1.5R")
	}

	// New high ratchets the trail up.
	m.Evaluate(p, 2.90, now.Add(time.Minute), false)
	wantLevel := 2.90 - 0.5*0.40
	if p.TrailLevel != wantLevel {
		t.Errorf("TrailLevel = %.2f, want %.2f", p.TrailLevel, wantLevel)
	}

	// Retrace through the trail closes the position.
	intent := m.Evaluate(p, 2.65, now.Add(2*time.Minute), false)
	if intent == nil || intent.Reason != ReasonTrailingStop {
		t.Fatalf("got %+v, want TrailingStop", intent)
	}
}

func TestTimeStop(t *testing.T) {
	p := openPosition(t, 2)
	m := NewManager(DefaultPlanConfig())

	if intent := m.Evaluate(p, 2.10, p.EntryTime.Add(59*time.Minute), false); intent != nil {
		t.Fatalf("time stop fired early: %+v", intent)
	}
	intent := m.Evaluate(p, 2.10, p.EntryTime.Add(61*time.Minute), false)
	if intent == nil || intent.Reason != ReasonTimeStop {
		t.Fatalf("got %+v, want TimeStop", intent)
	}
}

func TestSessionEndFlattensUnconditionally(t *testing.T) {
	p := openPosition(t, 3)
	m := NewManager(DefaultPlanConfig())

	// Price comfortably inside all levels; only the flatten flag applies.
	intent := m.Evaluate(p, 2.10, p.EntryTime.Add(2*time.Minute), true)
	if intent == nil || intent.Reason != ReasonSessionEnd {
		t.Fatalf("got %+v, want SessionEnd", intent)
	}
	if intent.Qty != 3 {
		t.Errorf("qty = %d, want full 3", intent.Qty)
	}
}

func TestPendingExitRetriedBeforeNewEvaluation(t *testing.T) {
	p := openPosition(t, 2)
	m := NewManager(DefaultPlanConfig())
	now := p.EntryTime.Add(time.Minute)

	first := m.Evaluate(p, 1.55, now, false)
	if first == nil || first.Reason != ReasonStopLoss {
		t.Fatalf("got %+v, want StopLoss", first)
	}

	// Unconfirmed: the same intent must come back even if price recovered.
	second := m.Evaluate(p, 2.50, now.Add(time.Minute), false)
	if second != first {
		t.Errorf("expected the pending intent to be retried, got %+v", second)
	}

	m.Confirm(p, first, 1.55, now)
	if p.Status != PositionClosed {
		t.Error("position should close once the exit confirms")
	}
}

func TestForceFlattenEscalatesPendingPartial(t *testing.T) {
	p := openPosition(t, 4)
	m := NewManager(DefaultPlanConfig())
	now := p.EntryTime.Add(5 * time.Minute)

	staged := m.Evaluate(p, 2.60, now, false)
	if staged == nil || !staged.Partial {
		t.Fatalf("got %+v, want pending partial Target", staged)
	}

	// The unconfirmed partial must not survive a forced flatten as-is.
	intent := m.Evaluate(p, 2.40, now.Add(time.Minute), true)
	if intent.Reason != ReasonSessionEnd || intent.Partial {
		t.Fatalf("got %+v, want full SessionEnd", intent)
	}
	if intent.Qty != 4 {
		t.Errorf("qty = %d, want the full remaining 4", intent.Qty)
	}

	m.Confirm(p, intent, 2.40, now.Add(time.Minute))
	if p.Status != PositionClosed || p.Remaining != 0 {
		t.Errorf("after confirm: status=%s remaining=%d, want closed with 0", p.Status, p.Remaining)
	}
}

func TestClosedPositionNotEvaluated(t *testing.T) {
	p := openPosition(t, 1)
	p.Status = PositionClosed
	m := NewManager(DefaultPlanConfig())

	if intent := m.Evaluate(p, 1.00, p.EntryTime.Add(time.Minute), true); intent != nil {
		t.Errorf("closed position produced an intent: %+v", intent)
	}
}
