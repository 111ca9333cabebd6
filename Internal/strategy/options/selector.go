package options

import (
	"errors"
	"fmt"
	"sort"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/tmcferran/rangerider/Internal/marketdata"
	"github.com/tmcferran/rangerider/Internal/types"
	"github.com/tmcferran/rangerider/Internal/utils"
)

var ErrNoLiquidContract = errors.New("no contract survived liquidity filtering")

// Config holds the filter thresholds and scoring weights.
type Config struct {
	TargetDelta     float64
	DeltaTolerance  float64
	MaxDTE          int
	MinVolume       int64
	MinOpenInterest int64
	MaxSpreadPct    float64
	LiquidityWeight float64 // Greek fit gets the remainder
	CacheTTL        time.Duration
}

func DefaultConfig() Config {
	return Config{
		TargetDelta:     0.50,
		DeltaTolerance:  0.10,
		MaxDTE:          1,
		MinVolume:       50,
		MinOpenInterest: 500,
		MaxSpreadPct:    0.10,
		LiquidityWeight: 0.40,
		CacheTTL:        60 * time.Second,
	}
}

// Selector picks one tradable contract from a chain snapshot. Identical
// requests inside the cache TTL return the cached pick to avoid rescanning
// the chain every poll.
type Selector struct {
	cfg   Config
	cache *marketdata.Cache
}

func NewSelector(cfg Config) *Selector {
	if cfg.CacheTTL == 0 {
		cfg = DefaultConfig()
	}
	return &Selector{cfg: cfg, cache: marketdata.NewCache(cfg.CacheTTL)}
}

// Select filters the chain to the configured expiry window and liquidity
// floor, scores survivors by liquidity and Greek fit, and returns the top
// contract. Deterministic for identical inputs.
func (s *Selector) Select(chain []types.OptionContract, side types.OptionType, spot float64, now time.Time) (*types.OptionContract, error) {
	if len(chain) == 0 {
		return nil, ErrNoLiquidContract
	}

	key := s.cacheKey(side, spot, now)
	if cached, ok := s.cache.Get(key); ok {
		c := cached.(types.OptionContract)
		return &c, nil
	}

	candidates := s.filter(chain, side, now)
	if len(candidates) == 0 {
		return nil, ErrNoLiquidContract
	}

	best := s.rank(candidates)
	s.cache.Set(key, *best)

	log.WithFields(log.Fields{
		"contract": best.Symbol,
		"delta":    best.Delta,
		"spread":   fmt.Sprintf("%.1f%%", best.SpreadPct()*100),
	}).Debug("🎯 Contract selected")
	return best, nil
}

func (s *Selector) filter(chain []types.OptionContract, side types.OptionType, now time.Time) []types.OptionContract {
	var out []types.OptionContract
	for _, c := range chain {
		if c.Type != side {
			continue
		}
		dte := c.DTE(now)
		if dte < 0 || dte > s.cfg.MaxDTE {
			continue
		}
		if c.Volume < s.cfg.MinVolume || c.OpenInterest < s.cfg.MinOpenInterest {
			continue
		}
		if c.Bid <= 0 || c.Ask <= 0 {
			continue
		}
		if c.SpreadPct() > s.cfg.MaxSpreadPct {
			continue
		}
		if utils.Abs(utils.Abs(c.Delta)-s.cfg.TargetDelta) > s.cfg.DeltaTolerance {
			continue
		}
		out = append(out, c)
	}
	return out
}

// rank scores candidates and returns the winner. Ties fall to the lower
// strike so the result is stable across runs.
func (s *Selector) rank(candidates []types.OptionContract) *types.OptionContract {
	maxVol, maxOI := int64(1), int64(1)
	for _, c := range candidates {
		if c.Volume > maxVol {
			maxVol = c.Volume
		}
		if c.OpenInterest > maxOI {
			maxOI = c.OpenInterest
		}
	}

	sort.Slice(candidates, func(i, j int) bool {
		return candidates[i].Strike < candidates[j].Strike
	})

	best := 0
	bestScore := -1.0
	for i, c := range candidates {
		score := s.score(c, maxVol, maxOI)
		if score > bestScore {
			bestScore = score
			best = i
		}
	}
	return &candidates[best]
}

func (s *Selector) score(c types.OptionContract, maxVol, maxOI int64) float64 {
	liquidity := s.liquidityScore(c, maxVol, maxOI)
	greeks := s.greekScore(c)
	w := s.cfg.LiquidityWeight
	return w*liquidity + (1-w)*greeks
}

// liquidityScore blends normalized volume, open interest and inverse spread.
func (s *Selector) liquidityScore(c types.OptionContract, maxVol, maxOI int64) float64 {
	vol := float64(c.Volume) / float64(maxVol)
	oi := float64(c.OpenInterest) / float64(maxOI)
	spread := 1 - utils.Clamp(c.SpreadPct()/s.cfg.MaxSpreadPct, 0, 1)
	return (vol + oi + spread) / 3
}

// greekScore rewards delta close to target, then gamma for convexity with a
// small penalty for theta bleed.
func (s *Selector) greekScore(c types.OptionContract) float64 {
	deltaFit := 1 - utils.Clamp(utils.Abs(utils.Abs(c.Delta)-s.cfg.TargetDelta)/s.cfg.DeltaTolerance, 0, 1)
	gamma := utils.Clamp(c.Gamma*10, 0, 1)
	theta := utils.Clamp(utils.Abs(c.Theta), 0, 1)
	return 0.7*deltaFit + 0.2*gamma + 0.1*(1-theta)
}

// cacheKey buckets spot to the nearest half dollar so small ticks reuse the
// cached selection.
func (s *Selector) cacheKey(side types.OptionType, spot float64, now time.Time) string {
	bucket := int(spot * 2)
	return fmt.Sprintf("select:%s:%d:%.2f:%s", side, bucket, s.cfg.TargetDelta, now.Format("2006-01-02"))
}
