package marketdata

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/tmcferran/rangerider/Internal/types"
	"github.com/tmcferran/rangerider/Internal/utils"
)

type Bar = types.Bar

const dataBaseURL = "https://data.alpaca.markets"

// Provider fetches bars, quotes and option chains from the Alpaca data API
// and assembles them into immutable MarketSnapshots. A short-TTL cache in
// front of the HTTP calls keeps multiple bot processes from hammering the
// feed with duplicate requests.
type Provider struct {
	apiKey    string
	secretKey string
	client    *http.Client
	cache     *Cache
	stream    *Stream // optional live price source
}

func NewProvider(cache *Cache) *Provider {
	return &Provider{
		apiKey:    os.Getenv("ALPACA_API_KEY"),
		secretKey: os.Getenv("ALPACA_API_SECRET"),
		client:    &http.Client{Timeout: 10 * time.Second},
		cache:     cache,
	}
}

// AttachStream wires a live websocket price feed in front of the REST quote
// lookup. Optional; polling works without it.
func (p *Provider) AttachStream(s *Stream) { p.stream = s }

func (p *Provider) get(apiURL string, out interface{}) error {
	return utils.RetryWithBackoff(func() error {
		req, err := http.NewRequest("GET", apiURL, nil)
		if err != nil {
			return err
		}
		req.Header.Set("APCA-API-KEY-ID", p.apiKey)
		req.Header.Set("APCA-API-SECRET-KEY", p.secretKey)

		resp, err := p.client.Do(req)
		if err != nil {
			return err
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			return fmt.Errorf("data API returned status %d", resp.StatusCode)
		}
		return json.NewDecoder(resp.Body).Decode(out)
	}, utils.DefaultRetryConfig())
}

// GetBars fetches recent bars for a symbol, most recent last.
func (p *Provider) GetBars(symbol, timeframe string, limit int) ([]Bar, error) {
	cacheKey := fmt.Sprintf("bars:%s:%s:%d", symbol, timeframe, limit)
	if cached, ok := p.cache.Get(cacheKey); ok {
		return cached.([]Bar), nil
	}

	start := time.Now().UTC().Add(-timeframeDuration(timeframe) * time.Duration(limit+2))
	apiURL := fmt.Sprintf("%s/v2/stocks/%s/bars?timeframe=%s&limit=%d&start=%s",
		dataBaseURL, url.PathEscape(symbol), timeframe, limit, start.Format(time.RFC3339))

	var r struct {
		Bars []Bar `json:"bars"`
	}
	if err := p.get(apiURL, &r); err != nil {
		return nil, fmt.Errorf("failed to fetch bars for %s: %w", symbol, err)
	}

	p.cache.Set(cacheKey, r.Bars)
	return r.Bars, nil
}

// GetLastPrice returns the latest trade price, preferring the live stream
// when one is attached and fresh.
func (p *Provider) GetLastPrice(symbol string) (float64, error) {
	if p.stream != nil {
		if px, ok := p.stream.LastPrice(symbol); ok {
			return px, nil
		}
	}

	cacheKey := "quote:" + symbol
	if cached, ok := p.cache.Get(cacheKey); ok {
		return cached.(float64), nil
	}

	apiURL := fmt.Sprintf("%s/v2/stocks/%s/trades/latest", dataBaseURL, url.PathEscape(symbol))
	var r struct {
		Trade struct {
			Price float64 `json:"p"`
		} `json:"trade"`
	}
	if err := p.get(apiURL, &r); err != nil {
		return 0, fmt.Errorf("failed to fetch last trade for %s: %w", symbol, err)
	}

	p.cache.Set(cacheKey, r.Trade.Price)
	return r.Trade.Price, nil
}

// Snapshot assembles one market observation: last price, recent minute bars,
// session VWAP and volume ratio, plus the option chain when withChain is set.
func (p *Provider) Snapshot(symbol string, barCount int, withChain bool) (*types.MarketSnapshot, error) {
	bars, err := p.GetBars(symbol, "1Min", barCount)
	if err != nil {
		return nil, err
	}

	price, err := p.GetLastPrice(symbol)
	if err != nil {
		return nil, err
	}

	snap := &types.MarketSnapshot{
		Symbol:      symbol,
		Timestamp:   time.Now().UTC(),
		LastPrice:   price,
		Bars:        bars,
		VWAP:        computeVWAP(bars),
		VolumeRatio: computeVolumeRatio(bars, 20),
	}

	if withChain {
		chain, err := p.GetOptionChain(symbol, price-5, price+5)
		if err != nil {
			// A Greek-based detector without a chain just stays quiet;
			// the snapshot is still usable for price-based detectors.
			log.Warnf("⚠️  Option chain unavailable for %s: %v", symbol, err)
		} else {
			snap.Chain = chain
		}
	}

	return snap, nil
}

func timeframeDuration(tf string) time.Duration {
	switch tf {
	case "1Min":
		return time.Minute
	case "5Min":
		return 5 * time.Minute
	case "15Min":
		return 15 * time.Minute
	case "1Hour":
		return time.Hour
	case "1Day":
		return 24 * time.Hour
	default:
		return time.Minute
	}
}

func computeVWAP(bars []Bar) float64 {
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

func computeVolumeRatio(bars []Bar, period int) float64 {
	if len(bars) < 2 {
		return 1.0
	}
	if len(bars) < period+1 {
		period = len(bars) - 1
	}

	current := float64(bars[len(bars)-1].Volume)
	total := 0.0
	for i := len(bars) - 1 - period; i < len(bars)-1; i++ {
		total += float64(bars[i].Volume)
	}
	avg := total / float64(period)
	if avg == 0 {
		return 1.0
	}
	return current / avg
}
