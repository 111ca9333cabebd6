package metrics

import (
	"math"
	"testing"

	"github.com/shopspring/decimal"

	datafeed "github.com/tmcferran/rangerider/Internal/database"
)

func closedTrade(signal string, pnl, riskUnit float64) datafeed.TradeRecord {
	return datafeed.TradeRecord{
		SignalType:  signal,
		Status:      datafeed.StatusClosed,
		RealizedPnL: decimal.NewFromFloat(pnl),
		RiskUnit:    decimal.NewFromFloat(riskUnit),
	}
}

func TestBySignalType(t *testing.T) {
	trades := []datafeed.TradeRecord{
		closedTrade("OPENING_DRIVE", 150, 100),
		closedTrade("OPENING_DRIVE", -100, 100),
		closedTrade("OPENING_DRIVE", 300, 100),
		closedTrade("VWAP_RECLAIM", -80, 100),
		{SignalType: "VWAP_RECLAIM", Status: datafeed.StatusOpen}, // open trades excluded
	}

	stats := BySignalType(trades)

	od := stats["OPENING_DRIVE"]
	if od == nil {
		t.Fatal("missing OPENING_DRIVE stats")
	}
	if od.TotalTrades != 3 || od.Wins != 2 || od.Losses != 1 {
		t.Errorf("counts = %d/%d/%d, want 3/2/1", od.TotalTrades, od.Wins, od.Losses)
	}
	if math.Abs(od.WinRate-66.666) > 0.01 {
		t.Errorf("WinRate = %.3f, want ~66.666", od.WinRate)
	}
	if od.TotalPnL != 350 {
		t.Errorf("TotalPnL = %.2f, want 350", od.TotalPnL)
	}
	if math.Abs(od.ProfitFactor-4.5) > 1e-9 {
		t.Errorf("ProfitFactor = %.2f, want 4.5 (450/100)", od.ProfitFactor)
	}
	if math.Abs(od.AvgRMultiple-350.0/3/100) > 1e-9 {
		t.Errorf("AvgRMultiple = %.4f", od.AvgRMultiple)
	}

	vr := stats["VWAP_RECLAIM"]
	if vr == nil || vr.TotalTrades != 1 {
		t.Fatalf("VWAP_RECLAIM stats = %+v, want exactly 1 closed trade", vr)
	}
	if vr.ProfitFactor != 0 {
		t.Errorf("all-loss ProfitFactor = %.2f, want 0", vr.ProfitFactor)
	}
}

func TestMaxDrawdown(t *testing.T) {
	trades := []datafeed.TradeRecord{
		closedTrade("X", 200, 100),
		closedTrade("X", -150, 100),
		closedTrade("X", -100, 100),
		closedTrade("X", 400, 100),
	}
	// Peak 200, trough -50: drawdown 250.
	if dd := MaxDrawdown(trades); dd != 250 {
		t.Errorf("MaxDrawdown = %.2f, want 250", dd)
	}
	if dd := MaxDrawdown(nil); dd != 0 {
		t.Errorf("empty MaxDrawdown = %.2f, want 0", dd)
	}
}

func TestSharpeAndSortino(t *testing.T) {
	trades := []datafeed.TradeRecord{
		closedTrade("X", 150, 100),
		closedTrade("X", -50, 100),
		closedTrade("X", 100, 100),
	}

	sharpe := SharpeRatio(trades, 0)
	if sharpe <= 0 {
		t.Errorf("positive-expectancy Sharpe = %.3f, want > 0", sharpe)
	}

	// Single downside return has zero deviation: Sortino degrades to 0.
	if sortino := SortinoRatio(trades, 0); sortino != 0 {
		t.Errorf("Sortino with one loss = %.3f, want 0", sortino)
	}

	if s := SharpeRatio(nil, 0); s != 0 {
		t.Errorf("empty Sharpe = %.3f, want 0", s)
	}
}
