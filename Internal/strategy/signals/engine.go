package signals

import (
	log "github.com/sirupsen/logrus"

	"github.com/tmcferran/rangerider/Internal/metrics"
	"github.com/tmcferran/rangerider/Internal/types"
)

// Engine runs every detector against a snapshot and picks the entry
// candidate for the cycle.
type Engine struct {
	detectors []Detector
	params    Params
}

func NewEngine(p Params) *Engine {
	if p.MinScore == 0 {
		p = DefaultParams()
	}
	return &Engine{
		detectors: []Detector{
			GammaSqueezeDetector{},
			OpeningDriveDetector{},
			VwapReclaimDetector{},
			LiquidityVacuumDetector{},
			RsiBounceDetector{},
			SupportTestDetector{},
			OptionsPinDetector{},
			DarkPoolFlowDetector{},
		},
		params: p,
	}
}

// DetectAll returns every signal that cleared the minimum score this cycle.
func (e *Engine) DetectAll(snap *types.MarketSnapshot, sctx *Context) []*Signal {
	var out []*Signal
	for _, d := range e.detectors {
		sig := d.Detect(snap, sctx, e.params)
		if sig == nil {
			continue
		}
		if sig.Score < e.params.MinScore {
			continue
		}
		metrics.SignalsDetected.WithLabelValues(string(sig.Kind)).Inc()
		log.WithFields(log.Fields{
			"kind":      sig.Kind,
			"score":     sig.Score,
			"direction": sig.Direction,
		}).Debug("🔍 Signal detected")
		out = append(out, sig)
	}
	return out
}

// Best returns the highest scoring signal, breaking score ties by the fixed
// Priority order. Returns nil when nothing fired.
func (e *Engine) Best(snap *types.MarketSnapshot, sctx *Context) *Signal {
	return pickBest(e.DetectAll(snap, sctx))
}

func pickBest(candidates []*Signal) *Signal {
	if len(candidates) == 0 {
		return nil
	}
	best := candidates[0]
	for _, sig := range candidates[1:] {
		if sig.Score > best.Score {
			best = sig
			continue
		}
		if sig.Score == best.Score && priorityIndex(sig.Kind) < priorityIndex(best.Kind) {
			best = sig
		}
	}
	return best
}
