package signals

import (
	"time"

	"github.com/tmcferran/rangerider/Internal/types"
)

type Kind string

const (
	KindGammaSqueeze    Kind = "GAMMA_SQUEEZE"
	KindOpeningDrive    Kind = "OPENING_DRIVE"
	KindVwapReclaim     Kind = "VWAP_RECLAIM"
	KindLiquidityVacuum Kind = "LIQUIDITY_VACUUM"
	KindRsiBounce       Kind = "RSI_BOUNCE"
	KindSupportTest     Kind = "SUPPORT_TEST"
	KindOptionsPin      Kind = "OPTIONS_PIN"
	KindDarkPoolFlow    Kind = "DARK_POOL_FLOW"
)

// Priority breaks score ties between detectors. Earlier kinds win.
var Priority = []Kind{
	KindGammaSqueeze,
	KindOpeningDrive,
	KindVwapReclaim,
	KindLiquidityVacuum,
	KindRsiBounce,
	KindSupportTest,
	KindOptionsPin,
	KindDarkPoolFlow,
}

type Direction string

const (
	Long  Direction = "LONG"
	Short Direction = "SHORT"
)

// Signal is one scored entry candidate. Signals live for a single
// evaluation cycle; the session loop consumes or discards them.
type Signal struct {
	Kind      Kind
	Score     float64 // [0, 10]
	Direction Direction
	Metadata  map[string]string
	Timestamp time.Time
}

// Params are the tunables the detectors read. Zero values are filled by
// DefaultParams.
type Params struct {
	MinScore     float64
	VolumePeriod int
	RSIPeriod    int
	RSIOversold  float64
}

func DefaultParams() Params {
	return Params{
		MinScore:     6.0,
		VolumePeriod: 20,
		RSIPeriod:    14,
		RSIOversold:  30,
	}
}

// Context carries per-day session facts the snapshot itself doesn't hold.
type Context struct {
	OpeningRange  types.OpeningRange
	BattleLines   types.BattleLines
	HoursToExpiry float64
}

// Detector inspects one snapshot and returns a signal or nil. Detectors
// hold no mutable state; missing inputs (no chain, too few bars) yield nil
// rather than an error.
type Detector interface {
	Kind() Kind
	Detect(snap *types.MarketSnapshot, sctx *Context, p Params) *Signal
}

func priorityIndex(k Kind) int {
	for i, p := range Priority {
		if p == k {
			return i
		}
	}
	return len(Priority)
}
