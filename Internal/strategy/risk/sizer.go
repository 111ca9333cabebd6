package risk

import (
	"errors"
	"fmt"
	"math"

	log "github.com/sirupsen/logrus"

	"github.com/tmcferran/rangerider/Internal/utils"
)

var (
	ErrDailyLimitReached    = errors.New("daily loss limit reached")
	ErrConsecutiveLossLimit = errors.New("consecutive loss limit reached")
	ErrMaxTradesReached     = errors.New("max trades per day reached")
	ErrInsufficientSize     = errors.New("position size rounds to zero contracts")
)

// SizerConfig holds the multiplier curves. These are tuned empirically and
// treated as configuration, not contract.
type SizerConfig struct {
	BaseRiskPct       float64
	MaxRiskPct        float64
	SmallAccountLimit float64
	SmallAccountBoost float64

	LossStreakStep float64
	WinStreakStep  float64
	StreakFloor    float64
	StreakCeiling  float64

	HighVolThreshold  float64
	HighVolMultiplier float64

	LateSessionMultiplier float64

	MinScore float64
}

func DefaultSizerConfig() SizerConfig {
	return SizerConfig{
		BaseRiskPct:           0.035,
		MaxRiskPct:            0.06,
		SmallAccountLimit:     10000,
		SmallAccountBoost:     1.5,
		LossStreakStep:        0.25,
		WinStreakStep:         0.10,
		StreakFloor:           0.25,
		StreakCeiling:         1.30,
		HighVolThreshold:      0.25,
		HighVolMultiplier:     0.70,
		LateSessionMultiplier: 0.75,
		MinScore:              6.0,
	}
}

// Inputs is everything one sizing decision reads.
type Inputs struct {
	State       State
	Limits      Limits
	Score       float64 // [MinScore, 10]
	RealizedVol float64 // annualized fraction
	LateSession bool
	StopPerUnit float64 // premium distance entry to stop, per contract unit
	Multiplier  float64 // contract multiplier, 100 for equity options
}

// Decision is the sized order. RiskUnit is the dollar R the trade actually
// carries after rounding to whole contracts.
type Decision struct {
	Contracts  int
	RiskAmount float64
	RiskUnit   float64
	Factors    map[string]float64
}

// Size composes the risk amount as a chain of multiplicative factors, then
// converts it to whole contracts. Pure calculation, no side effects.
func Size(in Inputs, cfg SizerConfig) (*Decision, error) {
	if in.State.Capital <= 0 {
		return nil, fmt.Errorf("invalid capital %.2f", in.State.Capital)
	}
	if in.Score < 0 || in.Score > 10 {
		return nil, fmt.Errorf("invalid signal score %.2f", in.Score)
	}
	if in.StopPerUnit <= 0 {
		return nil, fmt.Errorf("invalid stop distance %.4f", in.StopPerUnit)
	}
	if err := in.State.CanEnter(in.Limits); err != nil {
		return nil, err
	}

	factors := map[string]float64{}
	risk := in.State.Capital * cfg.BaseRiskPct
	factors["base"] = risk

	// Small accounts take proportionally larger per-trade risk so a win
	// still clears fixed costs.
	if in.State.Capital < cfg.SmallAccountLimit {
		risk *= cfg.SmallAccountBoost
		factors["capital_tier"] = cfg.SmallAccountBoost
	}

	streak := streakMultiplier(in.State, cfg)
	risk *= streak
	factors["streak"] = streak

	if cfg.HighVolThreshold > 0 && in.RealizedVol > cfg.HighVolThreshold {
		risk *= cfg.HighVolMultiplier
		factors["volatility"] = cfg.HighVolMultiplier
	}

	if in.LateSession {
		risk *= cfg.LateSessionMultiplier
		factors["late_session"] = cfg.LateSessionMultiplier
	}

	strength := strengthMultiplier(in.Score, cfg.MinScore)
	risk *= strength
	factors["strength"] = strength

	hardCap := in.State.Capital * cfg.MaxRiskPct
	if risk > hardCap {
		risk = hardCap
		factors["capped"] = hardCap
	}

	mult := in.Multiplier
	if mult <= 0 {
		mult = 100
	}
	perContract := in.StopPerUnit * mult
	contracts := int(math.Floor(risk / perContract))
	if contracts < 1 {
		return nil, ErrInsufficientSize
	}

	d := &Decision{
		Contracts:  contracts,
		RiskAmount: risk,
		RiskUnit:   float64(contracts) * perContract,
		Factors:    factors,
	}
	log.WithFields(log.Fields{
		"contracts":   d.Contracts,
		"risk_amount": fmt.Sprintf("%.2f", d.RiskAmount),
		"risk_unit":   fmt.Sprintf("%.2f", d.RiskUnit),
	}).Debug("📐 Position sized")
	return d, nil
}

// streakMultiplier cuts size after consecutive losses and bumps it modestly
// after consecutive wins, bounded both ways.
func streakMultiplier(s State, cfg SizerConfig) float64 {
	m := 1.0
	if s.ConsecutiveLosses > 0 {
		m -= float64(s.ConsecutiveLosses) * cfg.LossStreakStep
	} else if s.ConsecutiveWins > 1 {
		m += float64(s.ConsecutiveWins-1) * cfg.WinStreakStep
	}
	return utils.Clamp(m, cfg.StreakFloor, cfg.StreakCeiling)
}

// strengthMultiplier maps score linearly from [minScore, 10] onto [0.8, 1.2].
func strengthMultiplier(score, minScore float64) float64 {
	if minScore >= 10 {
		return 1.0
	}
	frac := (score - minScore) / (10 - minScore)
	return 0.8 + 0.4*utils.Clamp(frac, 0, 1)
}

// QuarterKelly returns a conservative Kelly fraction for the given edge.
// winLossRatio is average win over average loss.
func QuarterKelly(winRate, winLossRatio float64) float64 {
	if winLossRatio <= 0 || winRate <= 0 || winRate >= 1 {
		return 0
	}
	kelly := winRate - (1-winRate)/winLossRatio
	if kelly <= 0 {
		return 0
	}
	return kelly / 4
}
