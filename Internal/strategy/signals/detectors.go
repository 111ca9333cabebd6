package signals

import (
	"fmt"

	"github.com/tmcferran/rangerider/Internal/strategy/indicators"
	"github.com/tmcferran/rangerider/Internal/types"
	"github.com/tmcferran/rangerider/Internal/utils"
)

// Score caps per detector. A detector can stack evidence but never exceed
// its cap, which keeps the kinds comparable on the shared [0,10] scale.
const (
	capGammaSqueeze    = 8.5
	capOpeningDrive    = 7.5
	capVwapReclaim     = 7.0
	capLiquidityVacuum = 6.5
	capRsiBounce       = 7.0
	capSupportTest     = 6.5
	capOptionsPin      = 6.0
	capDarkPoolFlow    = 5.5
)

func newSignal(kind Kind, score float64, dir Direction, snap *types.MarketSnapshot, md map[string]string) *Signal {
	return &Signal{
		Kind:      kind,
		Score:     score,
		Direction: dir,
		Metadata:  md,
		Timestamp: snap.Timestamp,
	}
}

// GammaSqueezeDetector looks for market maker gamma positioning imbalances:
// heavy open interest near the spot price combined with fast movement.
type GammaSqueezeDetector struct{}

func (GammaSqueezeDetector) Kind() Kind { return KindGammaSqueeze }

func (GammaSqueezeDetector) Detect(snap *types.MarketSnapshot, sctx *Context, p Params) *Signal {
	if len(snap.Chain) == 0 || len(snap.Bars) < 2 {
		return nil
	}

	score := 0.0
	md := map[string]string{}

	for _, opt := range snap.Chain {
		if utils.Abs(snap.LastPrice-opt.Strike) < 1.0 && opt.OpenInterest > 1000 {
			score += 4.0
			md["oi_strike"] = fmt.Sprintf("%.2f", opt.Strike)
			break
		}
	}

	last := snap.Bars[len(snap.Bars)-1]
	prev := snap.Bars[len(snap.Bars)-2]
	move := last.Close - prev.Close
	if utils.Abs(move) > 0.20 {
		score += 3.0
		md["last_move"] = fmt.Sprintf("%.2f", move)
	}
	if snap.VolumeRatio > 2.0 {
		score += 1.5
		md["volume_ratio"] = fmt.Sprintf("%.1f", snap.VolumeRatio)
	}

	if score < p.MinScore {
		return nil
	}
	dir := Long
	if move < 0 {
		dir = Short
	}
	return newSignal(KindGammaSqueeze, utils.Clamp(score, 0, capGammaSqueeze), dir, snap, md)
}

// OpeningDriveDetector fires on a strong directional move off the open that
// takes out one of the battle lines with volume confirmation.
type OpeningDriveDetector struct{}

func (OpeningDriveDetector) Kind() Kind { return KindOpeningDrive }

func (OpeningDriveDetector) Detect(snap *types.MarketSnapshot, sctx *Context, p Params) *Signal {
	if !sctx.OpeningRange.Established() {
		return nil
	}

	open := sctx.OpeningRange.Open
	if open <= 0 {
		return nil
	}
	move := snap.LastPrice - open
	movePct := move / open * 100

	score := 0.0
	md := map[string]string{"move_pct": fmt.Sprintf("%.2f", movePct)}

	if utils.Abs(movePct) > 0.20 {
		score += 3.0
		if move > 0 {
			if snap.LastPrice > sctx.BattleLines.PDH {
				score += 2.5
				md["broke"] = "pdh"
			} else if snap.LastPrice > sctx.BattleLines.PremarketHigh {
				score += 2.0
				md["broke"] = "premarket_high"
			}
		} else {
			if snap.LastPrice < sctx.BattleLines.PDL {
				score += 2.5
				md["broke"] = "pdl"
			} else if snap.LastPrice < sctx.BattleLines.PremarketLow {
				score += 2.0
				md["broke"] = "premarket_low"
			}
		}
	}
	if snap.VolumeRatio > 2.0 {
		score += 2.0
		md["volume_ratio"] = fmt.Sprintf("%.1f", snap.VolumeRatio)
	}

	if score < p.MinScore {
		return nil
	}
	dir := Long
	if move < 0 {
		dir = Short
	}
	return newSignal(KindOpeningDrive, utils.Clamp(score, 0, capOpeningDrive), dir, snap, md)
}

// VwapReclaimDetector fires when price is converging back onto VWAP with
// volume behind it, a mean reversion setup.
type VwapReclaimDetector struct{}

func (VwapReclaimDetector) Kind() Kind { return KindVwapReclaim }

func (VwapReclaimDetector) Detect(snap *types.MarketSnapshot, sctx *Context, p Params) *Signal {
	if snap.VWAP <= 0 || len(snap.Bars) < 2 {
		return nil
	}

	score := 0.0
	md := map[string]string{"vwap": fmt.Sprintf("%.2f", snap.VWAP)}

	distance := utils.Abs(snap.LastPrice - snap.VWAP)
	if distance < 0.20 {
		score += 4.0
	}
	if snap.VolumeRatio > 1.5 {
		score += 2.0
		md["volume_ratio"] = fmt.Sprintf("%.1f", snap.VolumeRatio)
	}

	last := snap.Bars[len(snap.Bars)-1]
	prev := snap.Bars[len(snap.Bars)-2]
	if utils.Abs(last.Close-snap.VWAP) < utils.Abs(prev.Close-snap.VWAP) {
		score += 1.0
		md["converging"] = "true"
	}

	if score < p.MinScore {
		return nil
	}
	dir := Long
	if snap.LastPrice < snap.VWAP {
		dir = Short
	}
	return newSignal(KindVwapReclaim, utils.Clamp(score, 0, capVwapReclaim), dir, snap, md)
}

// LiquidityVacuumDetector fires on a large price move carried by thin
// volume, which tends to continue until liquidity returns.
type LiquidityVacuumDetector struct{}

func (LiquidityVacuumDetector) Kind() Kind { return KindLiquidityVacuum }

func (LiquidityVacuumDetector) Detect(snap *types.MarketSnapshot, sctx *Context, p Params) *Signal {
	if len(snap.Bars) < 3 {
		return nil
	}

	last := snap.Bars[len(snap.Bars)-1]
	prev := snap.Bars[len(snap.Bars)-2]
	if prev.Close <= 0 {
		return nil
	}

	score := 0.0
	md := map[string]string{}

	changePct := utils.Abs(last.Close-prev.Close) / prev.Close * 100
	avgVol := indicators.AverageVolume(snap.Bars[:len(snap.Bars)-1], p.VolumePeriod)
	volRatio := 1.0
	if avgVol > 0 {
		volRatio = float64(last.Volume) / avgVol
	}

	if changePct > 0.15 && volRatio < 0.8 {
		score += 4.0
		md["velocity_pct"] = fmt.Sprintf("%.2f", changePct)
		md["volume_efficiency"] = fmt.Sprintf("%.2f", volRatio)
	}
	gap := utils.Abs(last.Open - prev.Close)
	if gap > 0.20 {
		score += 2.0
		md["gap"] = fmt.Sprintf("%.2f", gap)
	}

	if score < p.MinScore {
		return nil
	}
	dir := Long
	if last.Close < prev.Close {
		dir = Short
	}
	return newSignal(KindLiquidityVacuum, utils.Clamp(score, 0, capLiquidityVacuum), dir, snap, md)
}

// RsiBounceDetector fires on an oversold RSI turning back up.
type RsiBounceDetector struct{}

func (RsiBounceDetector) Kind() Kind { return KindRsiBounce }

func (RsiBounceDetector) Detect(snap *types.MarketSnapshot, sctx *Context, p Params) *Signal {
	if len(snap.Bars) < p.RSIPeriod+2 {
		return nil
	}

	closes := make([]float64, len(snap.Bars))
	for i, b := range snap.Bars {
		closes[i] = b.Close
	}
	series, err := indicators.CalculateRSI(closes, p.RSIPeriod)
	if err != nil || len(series) < 2 {
		return nil
	}
	rsi := series[len(series)-1]
	prevRSI := series[len(series)-2]

	score := 0.0
	md := map[string]string{"rsi": fmt.Sprintf("%.1f", rsi)}

	if prevRSI < p.RSIOversold && rsi > prevRSI {
		score += 5.0
	}
	if rsi < p.RSIOversold {
		score += 1.0
	}
	if snap.VolumeRatio > 1.5 {
		score += 1.5
		md["volume_ratio"] = fmt.Sprintf("%.1f", snap.VolumeRatio)
	}

	if score < p.MinScore {
		return nil
	}
	return newSignal(KindRsiBounce, utils.Clamp(score, 0, capRsiBounce), Long, snap, md)
}

// SupportTestDetector fires when price probes a battle line from above and
// holds it, a long setup off defended support.
type SupportTestDetector struct{}

func (SupportTestDetector) Kind() Kind { return KindSupportTest }

func (SupportTestDetector) Detect(snap *types.MarketSnapshot, sctx *Context, p Params) *Signal {
	if len(snap.Bars) < 2 {
		return nil
	}

	supports := []struct {
		name  string
		level float64
	}{
		{"pdl", sctx.BattleLines.PDL},
		{"overnight_low", sctx.BattleLines.OvernightLow},
		{"premarket_low", sctx.BattleLines.PremarketLow},
		{"range_low", sctx.OpeningRange.Low},
	}

	last := snap.Bars[len(snap.Bars)-1]
	score := 0.0
	md := map[string]string{}

	for _, s := range supports {
		if s.level <= 0 {
			continue
		}
		// Wick below the level with a close back above it.
		if last.Low <= s.level && last.Close > s.level {
			score += 4.5
			md["level"] = s.name
			md["price"] = fmt.Sprintf("%.2f", s.level)
			break
		}
	}
	if score > 0 && snap.VolumeRatio > 1.5 {
		score += 2.0
		md["volume_ratio"] = fmt.Sprintf("%.1f", snap.VolumeRatio)
	}

	if score < p.MinScore {
		return nil
	}
	return newSignal(KindSupportTest, utils.Clamp(score, 0, capSupportTest), Long, snap, md)
}

// OptionsPinDetector fires when price consolidates near the chain's highest
// open interest strike, which acts as a magnet into expiry.
type OptionsPinDetector struct{}

func (OptionsPinDetector) Kind() Kind { return KindOptionsPin }

func (OptionsPinDetector) Detect(snap *types.MarketSnapshot, sctx *Context, p Params) *Signal {
	if len(snap.Chain) == 0 {
		return nil
	}

	var maxCallStrike, maxPutStrike float64
	var maxCallOI, maxPutOI int64
	for _, opt := range snap.Chain {
		switch opt.Type {
		case types.Call:
			if opt.OpenInterest > maxCallOI {
				maxCallOI = opt.OpenInterest
				maxCallStrike = opt.Strike
			}
		case types.Put:
			if opt.OpenInterest > maxPutOI {
				maxPutOI = opt.OpenInterest
				maxPutStrike = opt.Strike
			}
		}
	}

	score := 0.0
	md := map[string]string{}
	pinStrike := 0.0

	if maxCallStrike > 0 && utils.Abs(snap.LastPrice-maxCallStrike) < 0.50 {
		score += 3.0
		pinStrike = maxCallStrike
		md["call_pin"] = fmt.Sprintf("%.2f", maxCallStrike)
	}
	if maxPutStrike > 0 && utils.Abs(snap.LastPrice-maxPutStrike) < 0.50 {
		score += 3.0
		if pinStrike == 0 {
			pinStrike = maxPutStrike
		}
		md["put_pin"] = fmt.Sprintf("%.2f", maxPutStrike)
	}

	if pinStrike > 0 && len(snap.Bars) >= 5 {
		recent := snap.Bars[len(snap.Bars)-5:]
		high := recent[0].High
		low := recent[0].Low
		for _, b := range recent[1:] {
			high = utils.Max(high, b.High)
			if b.Low < low {
				low = b.Low
			}
		}
		if high-low < 0.50 {
			score += 1.0
			md["consolidating"] = "true"
		}
	}

	// Pins tighten as expiry approaches.
	if sctx.HoursToExpiry > 0 && sctx.HoursToExpiry < 4 {
		score *= 1.2
		md["near_expiry"] = "true"
	}

	if score < p.MinScore {
		return nil
	}
	dir := Long
	if pinStrike > 0 && snap.LastPrice > pinStrike {
		dir = Short
	}
	return newSignal(KindOptionsPin, utils.Clamp(score, 0, capOptionsPin), dir, snap, md)
}

// DarkPoolFlowDetector uses volume spikes on narrow-range bars as a proxy
// for institutional prints and reads directional bias off the latest one.
type DarkPoolFlowDetector struct{}

func (DarkPoolFlowDetector) Kind() Kind { return KindDarkPoolFlow }

func (DarkPoolFlowDetector) Detect(snap *types.MarketSnapshot, sctx *Context, p Params) *Signal {
	if len(snap.Bars) < 10 {
		return nil
	}

	avgVol := indicators.AverageVolume(snap.Bars[:len(snap.Bars)-1], len(snap.Bars)-1)
	if avgVol <= 0 {
		return nil
	}

	score := 0.0
	md := map[string]string{}
	prints := 0
	lastPrintPrice := 0.0

	for _, b := range snap.Bars {
		spike := float64(b.Volume) / avgVol
		if spike > 3.0 && b.High-b.Low < 0.20 {
			prints++
			lastPrintPrice = b.Close
			score += 2.0
		}
	}
	if prints == 0 {
		return nil
	}
	md["prints"] = fmt.Sprintf("%d", prints)
	md["last_print"] = fmt.Sprintf("%.2f", lastPrintPrice)
	if prints >= 2 {
		score += 1.5
	}

	if score < p.MinScore {
		return nil
	}
	dir := Long
	if snap.LastPrice < lastPrintPrice {
		dir = Short
	}
	return newSignal(KindDarkPoolFlow, utils.Clamp(score, 0, capDarkPoolFlow), dir, snap, md)
}
