package options

import (
	"errors"
	"testing"
	"time"

	"github.com/tmcferran/rangerider/Internal/types"
)

func testNow() time.Time {
	return time.Date(2025, 6, 2, 10, 0, 0, 0, time.UTC)
}

func sameDayExpiry() time.Time {
	return time.Date(2025, 6, 2, 20, 0, 0, 0, time.UTC)
}

func testChain() []types.OptionContract {
	exp := sameDayExpiry()
	return []types.OptionContract{
		{Symbol: "SPY250602C00498000", Strike: 498, Type: types.Call, Expiry: exp,
			Bid: 2.45, Ask: 2.50, Delta: 0.62, Gamma: 0.04, Theta: -0.35, Volume: 900, OpenInterest: 4000},
		{Symbol: "SPY250602C00500000", Strike: 500, Type: types.Call, Expiry: exp,
			Bid: 1.45, Ask: 1.50, Delta: 0.51, Gamma: 0.06, Theta: -0.40, Volume: 2500, OpenInterest: 9000},
		{Symbol: "SPY250602C00502000", Strike: 502, Type: types.Call, Expiry: exp,
			Bid: 0.70, Ask: 0.74, Delta: 0.41, Gamma: 0.05, Theta: -0.38, Volume: 1800, OpenInterest: 6000},
		{Symbol: "SPY250602C00504000", Strike: 504, Type: types.Call, Expiry: exp,
			Bid: 0.28, Ask: 0.33, Delta: 0.27, Gamma: 0.04, Theta: -0.30, Volume: 1200, OpenInterest: 5000},
		{Symbol: "SPY250602P00500000", Strike: 500, Type: types.Put, Expiry: exp,
			Bid: 1.40, Ask: 1.45, Delta: -0.49, Gamma: 0.06, Theta: -0.39, Volume: 2100, OpenInterest: 8000},
	}
}

func TestSelectPicksNearTargetDelta(t *testing.T) {
	sel := NewSelector(DefaultConfig())
	got, err := sel.Select(testChain(), types.Call, 500.20, testNow())
	if err != nil {
		t.Fatal(err)
	}
	if got.Strike != 500 {
		t.Errorf("selected strike %.0f, want 500 (delta 0.51 vs target 0.50)", got.Strike)
	}
}

func TestSelectPutSide(t *testing.T) {
	sel := NewSelector(DefaultConfig())
	got, err := sel.Select(testChain(), types.Put, 500.20, testNow())
	if err != nil {
		t.Fatal(err)
	}
	if got.Type != types.Put {
		t.Errorf("selected %s contract, want put", got.Type)
	}
}

func TestSelectIdempotent(t *testing.T) {
	sel := NewSelector(DefaultConfig())
	first, err := sel.Select(testChain(), types.Call, 500.20, testNow())
	if err != nil {
		t.Fatal(err)
	}
	for i := 0; i < 5; i++ {
		again, err := sel.Select(testChain(), types.Call, 500.20, testNow())
		if err != nil {
			t.Fatal(err)
		}
		if again.Symbol != first.Symbol {
			t.Fatalf("run %d selected %s, first run selected %s", i, again.Symbol, first.Symbol)
		}
	}
}

func TestSelectRejectsWideSpread(t *testing.T) {
	exp := sameDayExpiry()
	// Perfect delta fit but an 18% spread.
	chain := []types.OptionContract{
		{Symbol: "SPY250602C00500000", Strike: 500, Type: types.Call, Expiry: exp,
			Bid: 1.23, Ask: 1.50, Delta: 0.50, Gamma: 0.06, Theta: -0.40, Volume: 2500, OpenInterest: 9000},
	}

	sel := NewSelector(DefaultConfig())
	_, err := sel.Select(chain, types.Call, 500.20, testNow())
	if !errors.Is(err, ErrNoLiquidContract) {
		t.Errorf("Select = %v, want ErrNoLiquidContract", err)
	}
}

func TestSelectFilters(t *testing.T) {
	exp := sameDayExpiry()
	base := types.OptionContract{
		Strike: 500, Type: types.Call, Expiry: exp,
		Bid: 1.45, Ask: 1.50, Delta: 0.50, Gamma: 0.06, Theta: -0.40,
		Volume: 2500, OpenInterest: 9000,
	}

	tests := []struct {
		name   string
		mutate func(*types.OptionContract)
	}{
		{"volume below floor", func(c *types.OptionContract) { c.Volume = 10 }},
		{"open interest below floor", func(c *types.OptionContract) { c.OpenInterest = 100 }},
		{"delta outside tolerance", func(c *types.OptionContract) { c.Delta = 0.25 }},
		{"expiry too far out", func(c *types.OptionContract) { c.Expiry = exp.AddDate(0, 0, 10) }},
		{"already expired", func(c *types.OptionContract) { c.Expiry = exp.AddDate(0, 0, -2) }},
		{"no bid", func(c *types.OptionContract) { c.Bid = 0 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := base
			tt.mutate(&c)
			sel := NewSelector(DefaultConfig())
			if _, err := sel.Select([]types.OptionContract{c}, types.Call, 500.20, testNow()); !errors.Is(err, ErrNoLiquidContract) {
				t.Errorf("Select = %v, want ErrNoLiquidContract", err)
			}
		})
	}
}

func TestSelectEmptyChain(t *testing.T) {
	sel := NewSelector(DefaultConfig())
	if _, err := sel.Select(nil, types.Call, 500.20, testNow()); !errors.Is(err, ErrNoLiquidContract) {
		t.Errorf("Select = %v, want ErrNoLiquidContract", err)
	}
}
