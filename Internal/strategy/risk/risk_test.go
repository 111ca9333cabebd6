package risk

import (
	"errors"
	"math"
	"testing"
	"time"
)

var testLimits = Limits{
	DailyLossLimit:       500,
	ConsecutiveLossLimit: 3,
	MaxTradesPerDay:      5,
}

func testDay() time.Time {
	return time.Date(2025, 6, 2, 9, 30, 0, 0, time.UTC)
}

func TestApplyTradeResultStreaks(t *testing.T) {
	s := NewState(5000, testDay())

	s = s.ApplyTradeResult(-100, testLimits)
	s = s.ApplyTradeResult(-50, testLimits)
	if s.ConsecutiveLosses != 2 {
		t.Errorf("ConsecutiveLosses = %d, want 2", s.ConsecutiveLosses)
	}

	s = s.ApplyTradeResult(200, testLimits)
	if s.ConsecutiveLosses != 0 || s.ConsecutiveWins != 1 {
		t.Errorf("after win: losses=%d wins=%d, want 0/1", s.ConsecutiveLosses, s.ConsecutiveWins)
	}
	if s.Capital != 5050 {
		t.Errorf("Capital = %.2f, want 5050", s.Capital)
	}
	if s.TradesToday != 3 {
		t.Errorf("TradesToday = %d, want 3", s.TradesToday)
	}
}

func TestConsecutiveLossLimitBlocksFourthEntry(t *testing.T) {
	s := NewState(5000, testDay())
	for i := 0; i < 3; i++ {
		if err := s.CanEnter(testLimits); err != nil {
			t.Fatalf("entry %d unexpectedly blocked: %v", i+1, err)
		}
		s = s.ApplyTradeResult(-50, testLimits)
	}

	if !s.ConsecutiveLossBreached {
		t.Fatal("expected consecutive loss breach after 3 losses")
	}
	if err := s.CanEnter(testLimits); !errors.Is(err, ErrConsecutiveLossLimit) {
		t.Errorf("CanEnter = %v, want ErrConsecutiveLossLimit", err)
	}

	// A breach flag never clears mid-day, even after a win.
	s = s.ApplyTradeResult(300, testLimits)
	if err := s.CanEnter(testLimits); !errors.Is(err, ErrConsecutiveLossLimit) {
		t.Errorf("breach flag cleared by a win, CanEnter = %v", err)
	}

	// A new day clears it.
	s = s.StartOfDay(testDay().Add(24 * time.Hour))
	if err := s.CanEnter(testLimits); err != nil {
		t.Errorf("CanEnter after day reset = %v, want nil", err)
	}
}

func TestDailyLossLimitBlocksEntries(t *testing.T) {
	s := NewState(5000, testDay())
	s = s.ApplyTradeResult(-500, testLimits)

	if !s.DailyLossBreached {
		t.Fatal("expected daily loss breach at -500")
	}
	if err := s.CanEnter(testLimits); !errors.Is(err, ErrDailyLimitReached) {
		t.Errorf("CanEnter = %v, want ErrDailyLimitReached", err)
	}
}

func TestSizeRejectsWhenLimitBreached(t *testing.T) {
	s := NewState(5000, testDay()).ApplyTradeResult(-600, testLimits)

	_, err := Size(Inputs{
		State:       s,
		Limits:      testLimits,
		Score:       9.5, // score is irrelevant once a limit is breached
		StopPerUnit: 0.50,
	}, DefaultSizerConfig())
	if !errors.Is(err, ErrDailyLimitReached) {
		t.Errorf("Size = %v, want ErrDailyLimitReached", err)
	}
}

func TestSizeMonotonicInScore(t *testing.T) {
	s := NewState(5000, testDay())
	cfg := DefaultSizerConfig()

	prev := 0
	for _, score := range []float64{6.0, 7.0, 8.0, 9.0, 10.0} {
		d, err := Size(Inputs{State: s, Limits: testLimits, Score: score, StopPerUnit: 0.30}, cfg)
		if err != nil {
			t.Fatalf("Size(score=%.1f) error: %v", score, err)
		}
		if d.Contracts < prev {
			t.Errorf("size decreased with higher score: %d contracts at %.1f, previous %d", d.Contracts, score, prev)
		}
		prev = d.Contracts
	}
}

func TestSizeSmallAccountBoost(t *testing.T) {
	cfg := DefaultSizerConfig()
	small := NewState(5000, testDay())
	big := NewState(50000, testDay())

	dSmall, err := Size(Inputs{State: small, Limits: testLimits, Score: 8, StopPerUnit: 0.50}, cfg)
	if err != nil {
		t.Fatal(err)
	}
	dBig, err := Size(Inputs{State: big, Limits: testLimits, Score: 8, StopPerUnit: 0.50}, cfg)
	if err != nil {
		t.Fatal(err)
	}

	smallPct := dSmall.RiskAmount / small.Capital
	bigPct := dBig.RiskAmount / big.Capital
	if smallPct <= bigPct {
		t.Errorf("small account risk %.4f should exceed big account risk %.4f as a fraction", smallPct, bigPct)
	}
	if smallPct > cfg.MaxRiskPct+1e-9 {
		t.Errorf("risk fraction %.4f exceeds hard cap %.4f", smallPct, cfg.MaxRiskPct)
	}
}

func TestSizeInsufficientSize(t *testing.T) {
	s := NewState(1000, testDay())
	// Stop distance so wide one contract already exceeds the risk budget.
	_, err := Size(Inputs{State: s, Limits: testLimits, Score: 7, StopPerUnit: 5.00}, DefaultSizerConfig())
	if !errors.Is(err, ErrInsufficientSize) {
		t.Errorf("Size = %v, want ErrInsufficientSize", err)
	}
}

func TestSizeValidation(t *testing.T) {
	cfg := DefaultSizerConfig()
	tests := []struct {
		name string
		in   Inputs
	}{
		{"zero capital", Inputs{State: State{}, Score: 7, StopPerUnit: 0.5}},
		{"negative score", Inputs{State: NewState(5000, testDay()), Score: -1, StopPerUnit: 0.5}},
		{"score above ten", Inputs{State: NewState(5000, testDay()), Score: 11, StopPerUnit: 0.5}},
		{"zero stop distance", Inputs{State: NewState(5000, testDay()), Score: 7}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := Size(tt.in, cfg); err == nil {
				t.Error("expected a validation error, got nil")
			}
		})
	}
}

func TestStreakMultiplierBounds(t *testing.T) {
	cfg := DefaultSizerConfig()

	deep := State{ConsecutiveLosses: 10}
	if m := streakMultiplier(deep, cfg); m != cfg.StreakFloor {
		t.Errorf("deep loss streak multiplier = %.2f, want floor %.2f", m, cfg.StreakFloor)
	}

	hot := State{ConsecutiveWins: 20}
	if m := streakMultiplier(hot, cfg); m != cfg.StreakCeiling {
		t.Errorf("long win streak multiplier = %.2f, want ceiling %.2f", m, cfg.StreakCeiling)
	}

	if m := streakMultiplier(State{}, cfg); m != 1.0 {
		t.Errorf("neutral multiplier = %.2f, want 1.0", m)
	}
}

func TestStrengthMultiplierRange(t *testing.T) {
	if m := strengthMultiplier(6.0, 6.0); math.Abs(m-0.8) > 1e-9 {
		t.Errorf("strength at threshold = %.3f, want 0.8", m)
	}
	if m := strengthMultiplier(10.0, 6.0); math.Abs(m-1.2) > 1e-9 {
		t.Errorf("strength at 10 = %.3f, want 1.2", m)
	}
	if m := strengthMultiplier(8.0, 6.0); math.Abs(m-1.0) > 1e-9 {
		t.Errorf("strength at midpoint = %.3f, want 1.0", m)
	}
}

func TestQuarterKelly(t *testing.T) {
	if k := QuarterKelly(0.6, 1.5); k <= 0 {
		t.Errorf("positive edge should size positive, got %.4f", k)
	}
	if k := QuarterKelly(0.3, 1.0); k != 0 {
		t.Errorf("negative edge should size zero, got %.4f", k)
	}
	full := 0.6 - 0.4/1.5
	if k := QuarterKelly(0.6, 1.5); math.Abs(k-full/4) > 1e-9 {
		t.Errorf("QuarterKelly = %.4f, want %.4f", k, full/4)
	}
}
