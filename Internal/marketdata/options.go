package marketdata

import (
	"fmt"
	"net/url"
	"sort"
	"strconv"
	"time"

	"github.com/tmcferran/rangerider/Internal/types"
)

// GetOptionChain fetches an option chain snapshot with Greeks for strikes in
// [minStrike, maxStrike], sorted by strike. Contract metadata (strike,
// expiry, type) is decoded from the OCC symbol.
func (p *Provider) GetOptionChain(symbol string, minStrike, maxStrike float64) ([]types.OptionContract, error) {
	cacheKey := fmt.Sprintf("chain:%s:%d:%d", symbol, int(minStrike), int(maxStrike))
	if cached, ok := p.cache.Get(cacheKey); ok {
		return cached.([]types.OptionContract), nil
	}

	apiURL := fmt.Sprintf("%s/v1beta1/options/snapshots/%s?feed=indicative&limit=500",
		dataBaseURL, url.PathEscape(symbol))

	var r struct {
		Snapshots map[string]struct {
			LatestQuote struct {
				Bid float64 `json:"bp"`
				Ask float64 `json:"ap"`
			} `json:"latestQuote"`
			Greeks struct {
				Delta float64 `json:"delta"`
				Gamma float64 `json:"gamma"`
				Theta float64 `json:"theta"`
			} `json:"greeks"`
			ImpliedVolatility float64 `json:"impliedVolatility"`
			OpenInterest      int64   `json:"openInterest"`
			DailyBar          struct {
				Volume int64 `json:"v"`
			} `json:"dailyBar"`
		} `json:"snapshots"`
	}
	if err := p.get(apiURL, &r); err != nil {
		return nil, fmt.Errorf("failed to fetch option chain for %s: %w", symbol, err)
	}

	chain := make([]types.OptionContract, 0, len(r.Snapshots))
	for occ, snap := range r.Snapshots {
		contract, err := ParseOCCSymbol(occ)
		if err != nil {
			continue
		}
		if contract.Strike < minStrike || contract.Strike > maxStrike {
			continue
		}

		contract.Bid = snap.LatestQuote.Bid
		contract.Ask = snap.LatestQuote.Ask
		contract.Delta = snap.Greeks.Delta
		contract.Gamma = snap.Greeks.Gamma
		contract.Theta = snap.Greeks.Theta
		contract.IV = snap.ImpliedVolatility
		contract.OpenInterest = snap.OpenInterest
		contract.Volume = snap.DailyBar.Volume
		chain = append(chain, contract)
	}

	sort.Slice(chain, func(i, j int) bool { return chain[i].Strike < chain[j].Strike })

	p.cache.Set(cacheKey, chain)
	return chain, nil
}

// GetOptionPremium returns the latest bid/ask midpoint for one contract.
// Not cached: exit management needs a fresh premium every poll.
func (p *Provider) GetOptionPremium(occSymbol string) (float64, error) {
	apiURL := fmt.Sprintf("%s/v1beta1/options/quotes/latest?feed=indicative&symbols=%s",
		dataBaseURL, url.QueryEscape(occSymbol))

	var r struct {
		Quotes map[string]struct {
			Bid float64 `json:"bp"`
			Ask float64 `json:"ap"`
		} `json:"quotes"`
	}
	if err := p.get(apiURL, &r); err != nil {
		return 0, fmt.Errorf("failed to fetch quote for %s: %w", occSymbol, err)
	}

	q, ok := r.Quotes[occSymbol]
	if !ok {
		return 0, fmt.Errorf("no quote returned for %s", occSymbol)
	}
	if q.Bid > 0 && q.Ask > 0 {
		return (q.Bid + q.Ask) / 2, nil
	}
	if q.Ask > 0 {
		return q.Ask, nil
	}
	if q.Bid > 0 {
		return q.Bid, nil
	}
	return 0, fmt.Errorf("empty quote for %s", occSymbol)
}

// ParseOCCSymbol decodes an OCC option symbol such as SPY250829C00580000
// into underlying, expiry, type and strike.
func ParseOCCSymbol(occ string) (types.OptionContract, error) {
	// Last 15 characters are fixed: YYMMDD + C/P + 8-digit strike (price*1000).
	if len(occ) < 16 {
		return types.OptionContract{}, fmt.Errorf("OCC symbol too short: %q", occ)
	}
	tail := occ[len(occ)-15:]
	underlying := occ[:len(occ)-15]

	expiry, err := time.Parse("060102", tail[:6])
	if err != nil {
		return types.OptionContract{}, fmt.Errorf("bad expiry in OCC symbol %q: %w", occ, err)
	}

	var optType types.OptionType
	switch tail[6] {
	case 'C':
		optType = types.Call
	case 'P':
		optType = types.Put
	default:
		return types.OptionContract{}, fmt.Errorf("bad option type in OCC symbol %q", occ)
	}

	raw, err := strconv.ParseInt(tail[7:], 10, 64)
	if err != nil {
		return types.OptionContract{}, fmt.Errorf("bad strike in OCC symbol %q: %w", occ, err)
	}

	return types.OptionContract{
		Symbol:     occ,
		Underlying: underlying,
		Expiry:     expiry,
		Type:       optType,
		Strike:     float64(raw) / 1000,
	}, nil
}
