package risk

import (
	"math"

	"github.com/tmcferran/rangerider/Internal/types"
	"github.com/tmcferran/rangerider/Internal/utils"
)

// minutesPerTradingYear for annualizing one-minute bar returns.
const minutesPerTradingYear = 252 * 390

// RealizedVol estimates annualized volatility from close-to-close log
// returns of one-minute bars. Returns 0 when the series is too short.
func RealizedVol(bars []types.Bar) float64 {
	if len(bars) < 3 {
		return 0
	}
	returns := make([]float64, 0, len(bars)-1)
	for i := 1; i < len(bars); i++ {
		prev := bars[i-1].Close
		cur := bars[i].Close
		if prev <= 0 || cur <= 0 {
			continue
		}
		returns = append(returns, math.Log(cur/prev))
	}
	if len(returns) < 2 {
		return 0
	}
	return utils.StdDev(returns) * math.Sqrt(minutesPerTradingYear)
}
