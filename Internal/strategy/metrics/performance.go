package metrics

import (
	"math"

	datafeed "github.com/tmcferran/rangerider/Internal/database"
	"github.com/tmcferran/rangerider/Internal/utils"
)

// SignalStats summarizes closed trades for one signal kind.
type SignalStats struct {
	SignalType   string
	TotalTrades  int
	Wins         int
	Losses       int
	WinRate      float64
	TotalPnL     float64
	Expectancy   float64 // average P&L per trade
	ProfitFactor float64 // gross wins / gross losses
	AvgRMultiple float64
	SharpeRatio  float64
	SortinoRatio float64
}

// rMultiples converts closed trades into R-multiple returns, skipping
// records with no risk unit.
func rMultiples(trades []datafeed.TradeRecord) []float64 {
	var out []float64
	for _, t := range trades {
		if t.Status != datafeed.StatusClosed {
			continue
		}
		r, _ := t.RiskUnit.Float64()
		if r <= 0 {
			continue
		}
		pnl, _ := t.RealizedPnL.Float64()
		out = append(out, pnl/r)
	}
	return out
}

// SharpeRatio computes the per-trade Sharpe over R-multiple returns.
func SharpeRatio(trades []datafeed.TradeRecord, riskFree float64) float64 {
	returns := rMultiples(trades)
	if len(returns) == 0 {
		return 0
	}
	sd := utils.StdDev(returns)
	if sd == 0 {
		return 0
	}
	return (utils.Average(returns) - riskFree) / sd
}

// SortinoRatio penalizes only downside deviation.
func SortinoRatio(trades []datafeed.TradeRecord, riskFree float64) float64 {
	returns := rMultiples(trades)
	if len(returns) == 0 {
		return 0
	}
	var downside []float64
	for _, r := range returns {
		if r < 0 {
			downside = append(downside, r)
		}
	}
	dd := utils.StdDev(downside)
	if dd == 0 {
		return 0
	}
	return (utils.Average(returns) - riskFree) / dd
}

// MaxDrawdown returns the deepest peak-to-trough equity dip over the trade
// sequence, in dollars.
func MaxDrawdown(trades []datafeed.TradeRecord) float64 {
	equity, peak, maxDD := 0.0, 0.0, 0.0
	for _, t := range trades {
		if t.Status != datafeed.StatusClosed {
			continue
		}
		pnl, _ := t.RealizedPnL.Float64()
		equity += pnl
		if equity > peak {
			peak = equity
		}
		if dd := peak - equity; dd > maxDD {
			maxDD = dd
		}
	}
	return maxDD
}

// BySignalType groups closed trades by the signal that produced them and
// computes per-kind statistics.
func BySignalType(trades []datafeed.TradeRecord) map[string]*SignalStats {
	grouped := make(map[string][]datafeed.TradeRecord)
	for _, t := range trades {
		if t.Status != datafeed.StatusClosed {
			continue
		}
		grouped[t.SignalType] = append(grouped[t.SignalType], t)
	}

	results := make(map[string]*SignalStats, len(grouped))
	for kind, group := range grouped {
		stats := &SignalStats{SignalType: kind, TotalTrades: len(group)}

		var grossWin, grossLoss float64
		for _, t := range group {
			pnl, _ := t.RealizedPnL.Float64()
			stats.TotalPnL += pnl
			if pnl > 0 {
				stats.Wins++
				grossWin += pnl
			} else if pnl < 0 {
				stats.Losses++
				grossLoss += -pnl
			}
		}

		if stats.TotalTrades > 0 {
			stats.WinRate = float64(stats.Wins) / float64(stats.TotalTrades) * 100
			stats.Expectancy = stats.TotalPnL / float64(stats.TotalTrades)
		}
		if grossLoss > 0 {
			stats.ProfitFactor = grossWin / grossLoss
		} else if grossWin > 0 {
			stats.ProfitFactor = math.Inf(1)
		}
		if rs := rMultiples(group); len(rs) > 0 {
			stats.AvgRMultiple = utils.Average(rs)
		}
		stats.SharpeRatio = SharpeRatio(group, 0)
		stats.SortinoRatio = SortinoRatio(group, 0)

		results[kind] = stats
	}
	return results
}
