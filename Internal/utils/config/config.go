package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/tmcferran/rangerider/Internal/logger"
)

type Config struct {
	Symbol string `yaml:"symbol"`
	Mode   string `yaml:"mode"` // which strategy profile to run

	Session struct {
		Timezone        string `yaml:"timezone"`       // e.g. America/New_York
		Open            string `yaml:"open"`           // "09:30"
		RangeEnd        string `yaml:"range_end"`      // "09:45"
		EntryCutoff     string `yaml:"entry_cutoff"`   // "11:00"
		TightenAfter    string `yaml:"tighten_after"`  // entries after this get the short time stop
		Close           string `yaml:"close"`          // "16:00"
		FlattenLeadMins int    `yaml:"flatten_lead_minutes"`
		FastPollSecs    int    `yaml:"fast_poll_seconds"`
		SlowPollSecs    int    `yaml:"slow_poll_seconds"`
	} `yaml:"session"`

	Risk struct {
		BaseRiskPct          float64 `yaml:"base_risk_pct"`           // fraction, e.g. 0.035
		MaxRiskPct           float64 `yaml:"max_risk_pct"`            // hard cap, e.g. 0.06
		SmallAccountLimit    float64 `yaml:"small_account_limit"`     // capital tier boundary
		SmallAccountBoost    float64 `yaml:"small_account_boost"`     // e.g. 1.5
		DailyLossLimit       float64 `yaml:"daily_loss_limit"`        // dollars
		ConsecutiveLossLimit int     `yaml:"consecutive_loss_limit"`
		MaxTradesPerDay      int     `yaml:"max_trades_per_day"`
		LossStreakStep       float64 `yaml:"loss_streak_step"`  // size cut per consecutive loss
		WinStreakStep        float64 `yaml:"win_streak_step"`   // size bump per consecutive win
		StreakFloor          float64 `yaml:"streak_floor"`
		StreakCeiling        float64 `yaml:"streak_ceiling"`
		HighVolThreshold     float64 `yaml:"high_vol_threshold"` // realized vol fraction
		HighVolMultiplier    float64 `yaml:"high_vol_multiplier"`
		LateSessionMultiplier float64 `yaml:"late_session_multiplier"`
	} `yaml:"risk"`

	Signals struct {
		MinScore     float64 `yaml:"min_score"`
		VolumePeriod int     `yaml:"volume_period"`
		RSIPeriod    int     `yaml:"rsi_period"`
		RSIOversold  float64 `yaml:"rsi_oversold"`
	} `yaml:"signals"`

	Options struct {
		TargetDelta     float64 `yaml:"target_delta"`
		DeltaTolerance  float64 `yaml:"delta_tolerance"`
		MaxDTE          int     `yaml:"max_dte"`
		MinVolume       int64   `yaml:"min_volume"`
		MinOpenInterest int64   `yaml:"min_open_interest"`
		MaxSpreadPct    float64 `yaml:"max_spread_pct"`
		LiquidityWeight float64 `yaml:"liquidity_weight"` // remainder goes to Greek fit
		CacheTTLSecs    int     `yaml:"cache_ttl_seconds"`
	} `yaml:"options"`

	Exits struct {
		StopPremiumPct     float64 `yaml:"stop_premium_pct"` // premium fraction defining 1R
		StopLossR          float64 `yaml:"stop_loss_r"`
		Target1R           float64 `yaml:"target_1_r"`
		Target1SizePct     float64 `yaml:"target_1_size_pct"`
		Target2R           float64 `yaml:"target_2_r"`
		TrailActivationR   float64 `yaml:"trailing_activation_r"`
		TrailDistanceR     float64 `yaml:"trailing_distance_r"`
		TimeStopMinutes    int     `yaml:"time_stop_minutes"`
		HighVolStopWiden   float64 `yaml:"high_vol_stop_widen"`   // regime stop multiplier
		TrendTargetExtend  float64 `yaml:"trend_target_extend"`   // regime target multiplier
		BreakevenAfterT1   bool    `yaml:"breakeven_after_t1"`
	} `yaml:"exits"`

	Logging logger.Config `yaml:"logging"`
}

// Defaults mirror the morning momentum profile the bot ships with.
func Defaults() *Config {
	cfg := &Config{Symbol: "SPY", Mode: "morning"}
	cfg.Session.Timezone = "America/New_York"
	cfg.Session.Open = "09:30"
	cfg.Session.RangeEnd = "09:45"
	cfg.Session.EntryCutoff = "11:00"
	cfg.Session.TightenAfter = "10:30"
	cfg.Session.Close = "16:00"
	cfg.Session.FlattenLeadMins = 15
	cfg.Session.FastPollSecs = 3
	cfg.Session.SlowPollSecs = 30

	cfg.Risk.BaseRiskPct = 0.035
	cfg.Risk.MaxRiskPct = 0.06
	cfg.Risk.SmallAccountLimit = 10000
	cfg.Risk.SmallAccountBoost = 1.5
	cfg.Risk.DailyLossLimit = 500
	cfg.Risk.ConsecutiveLossLimit = 3
	cfg.Risk.MaxTradesPerDay = 5
	cfg.Risk.LossStreakStep = 0.25
	cfg.Risk.WinStreakStep = 0.10
	cfg.Risk.StreakFloor = 0.25
	cfg.Risk.StreakCeiling = 1.30
	cfg.Risk.HighVolThreshold = 0.25
	cfg.Risk.HighVolMultiplier = 0.70
	cfg.Risk.LateSessionMultiplier = 0.75

	cfg.Signals.MinScore = 6.0
	cfg.Signals.VolumePeriod = 20
	cfg.Signals.RSIPeriod = 14
	cfg.Signals.RSIOversold = 30

	cfg.Options.TargetDelta = 0.50
	cfg.Options.DeltaTolerance = 0.10
	cfg.Options.MaxDTE = 1
	cfg.Options.MinVolume = 50
	cfg.Options.MinOpenInterest = 500
	cfg.Options.MaxSpreadPct = 0.10
	cfg.Options.LiquidityWeight = 0.40
	cfg.Options.CacheTTLSecs = 60

	cfg.Exits.StopPremiumPct = 0.25
	cfg.Exits.StopLossR = 1.0
	cfg.Exits.Target1R = 1.5
	cfg.Exits.Target1SizePct = 0.5
	cfg.Exits.Target2R = 3.0
	cfg.Exits.TrailActivationR = 1.5
	cfg.Exits.TrailDistanceR = 0.5
	cfg.Exits.TimeStopMinutes = 60
	cfg.Exits.HighVolStopWiden = 1.5
	cfg.Exits.TrendTargetExtend = 1.25
	cfg.Exits.BreakevenAfterT1 = true

	cfg.Logging.Level = "info"
	return cfg
}

// LoadConfig reads config.yaml, trying a few locations the way the bot is
// usually launched (repo root, Internal/utils/config). Missing file falls
// back to defaults; a malformed file is an error.
func LoadConfig() (*Config, error) {
	cfg := Defaults()

	possiblePaths := []string{
		"config.yaml",
		"Internal/utils/config/config.yaml",
	}

	var data []byte
	var err error
	found := false
	for _, path := range possiblePaths {
		data, err = os.ReadFile(path)
		if err == nil {
			found = true
			break
		}
	}
	if !found {
		return cfg, nil
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) Validate() error {
	if c.Risk.BaseRiskPct <= 0 || c.Risk.BaseRiskPct > c.Risk.MaxRiskPct {
		return fmt.Errorf("base_risk_pct %.4f out of range (max %.4f)", c.Risk.BaseRiskPct, c.Risk.MaxRiskPct)
	}
	if c.Signals.MinScore < 0 || c.Signals.MinScore > 10 {
		return fmt.Errorf("min_score %.1f outside [0,10]", c.Signals.MinScore)
	}
	if c.Options.TargetDelta <= 0 || c.Options.TargetDelta >= 1 {
		return fmt.Errorf("target_delta %.2f outside (0,1)", c.Options.TargetDelta)
	}
	if c.Exits.Target1SizePct <= 0 || c.Exits.Target1SizePct >= 1 {
		return fmt.Errorf("target_1_size_pct %.2f outside (0,1)", c.Exits.Target1SizePct)
	}
	return nil
}

func SaveConfig(cfg *Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	return os.WriteFile("config.yaml", data, 0644)
}
