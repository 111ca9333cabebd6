package indicators

import (
	"fmt"

	"github.com/tmcferran/rangerider/Internal/types"
)

// CalculateRSI returns the Wilder-smoothed RSI series for the given closes.
// The result has len(closes)-period values; the first corresponds to the
// close at index period.
func CalculateRSI(closes []float64, period int) ([]float64, error) {
	if period <= 0 {
		return nil, fmt.Errorf("RSI period must be positive, got %d", period)
	}
	if len(closes) < period+1 {
		return nil, fmt.Errorf("need at least %d closes for RSI(%d), got %d", period+1, period, len(closes))
	}

	var gainSum, lossSum float64
	for i := 1; i <= period; i++ {
		change := closes[i] - closes[i-1]
		if change > 0 {
			gainSum += change
		} else {
			lossSum -= change
		}
	}
	avgGain := gainSum / float64(period)
	avgLoss := lossSum / float64(period)

	rsi := make([]float64, 0, len(closes)-period)
	rsi = append(rsi, rsiValue(avgGain, avgLoss))

	for i := period + 1; i < len(closes); i++ {
		change := closes[i] - closes[i-1]
		gain, loss := 0.0, 0.0
		if change > 0 {
			gain = change
		} else {
			loss = -change
		}
		avgGain = (avgGain*float64(period-1) + gain) / float64(period)
		avgLoss = (avgLoss*float64(period-1) + loss) / float64(period)
		rsi = append(rsi, rsiValue(avgGain, avgLoss))
	}
	return rsi, nil
}

func rsiValue(avgGain, avgLoss float64) float64 {
	if avgLoss == 0 {
		return 100
	}
	rs := avgGain / avgLoss
	return 100 - 100/(1+rs)
}

// LatestRSI is a convenience wrapper returning only the most recent value.
func LatestRSI(bars []types.Bar, period int) (float64, error) {
	closes := make([]float64, len(bars))
	for i, b := range bars {
		closes[i] = b.Close
	}
	series, err := CalculateRSI(closes, period)
	if err != nil {
		return 0, err
	}
	return series[len(series)-1], nil
}

// VWAP computes the volume weighted average price over the bars using the
// typical price (H+L+C)/3 per bar.
func VWAP(bars []types.Bar) float64 {
	var pv, vol float64
	for _, b := range bars {
		typical := (b.High + b.Low + b.Close) / 3
		pv += typical * float64(b.Volume)
		vol += float64(b.Volume)
	}
	if vol == 0 {
		return 0
	}
	return pv / vol
}

// AverageVolume returns the mean volume of the last period bars, or of all
// bars when fewer are available.
func AverageVolume(bars []types.Bar, period int) float64 {
	if len(bars) == 0 {
		return 0
	}
	start := len(bars) - period
	if start < 0 {
		start = 0
	}
	var sum float64
	for _, b := range bars[start:] {
		sum += float64(b.Volume)
	}
	return sum / float64(len(bars)-start)
}
