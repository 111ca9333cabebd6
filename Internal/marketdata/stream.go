package marketdata

import (
	"context"
	"encoding/json"
	"os"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	log "github.com/sirupsen/logrus"
)

const streamURL = "wss://stream.data.alpaca.markets/v2/iex"

// Stream maintains a websocket subscription to the Alpaca data feed and
// keeps the latest trade price per symbol. Prices older than staleAfter are
// ignored so a dead connection cannot feed stale data into decisions.
type Stream struct {
	symbols    []string
	staleAfter time.Duration

	mu     sync.RWMutex
	last   map[string]streamTick

	reconnectMin time.Duration
	reconnectMax time.Duration
}

type streamTick struct {
	price float64
	at    time.Time
}

func NewStream(symbols []string) *Stream {
	return &Stream{
		symbols:      symbols,
		staleAfter:   10 * time.Second,
		last:         make(map[string]streamTick),
		reconnectMin: time.Second,
		reconnectMax: 30 * time.Second,
	}
}

// Run connects and reads until ctx is cancelled, reconnecting with backoff
// on any failure.
func (s *Stream) Run(ctx context.Context) {
	backoff := s.reconnectMin
	for {
		if err := s.connectAndRead(ctx); err != nil {
			if ctx.Err() != nil {
				return
			}
			log.Warnf("⚠️  Data stream disconnected: %v (reconnecting in %s)", err, backoff)
			select {
			case <-ctx.Done():
				return
			case <-time.After(backoff):
			}
			backoff *= 2
			if backoff > s.reconnectMax {
				backoff = s.reconnectMax
			}
			continue
		}
		return
	}
}

func (s *Stream) connectAndRead(ctx context.Context) error {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, streamURL, nil)
	if err != nil {
		return err
	}
	defer conn.Close()
	conn.SetReadLimit(1 << 20)

	auth := map[string]string{
		"action": "auth",
		"key":    os.Getenv("ALPACA_API_KEY"),
		"secret": os.Getenv("ALPACA_API_SECRET"),
	}
	if err := conn.WriteJSON(auth); err != nil {
		return err
	}

	sub := map[string]interface{}{
		"action": "subscribe",
		"trades": s.symbols,
	}
	if err := conn.WriteJSON(sub); err != nil {
		return err
	}

	log.Infof("📡 Data stream connected, subscribed to %v", s.symbols)

	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			conn.Close()
		case <-done:
		}
	}()

	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}

		var msgs []struct {
			Type      string  `json:"T"`
			Symbol    string  `json:"S"`
			Price     float64 `json:"p"`
			Timestamp string  `json:"t"`
		}
		if err := json.Unmarshal(raw, &msgs); err != nil {
			log.Debugf("Unparseable stream message: %v", err)
			continue
		}

		for _, msg := range msgs {
			if msg.Type != "t" || msg.Price <= 0 {
				continue
			}
			s.mu.Lock()
			s.last[msg.Symbol] = streamTick{price: msg.Price, at: time.Now()}
			s.mu.Unlock()
		}
	}
}

// LastPrice returns the freshest streamed trade price for a symbol, if any.
func (s *Stream) LastPrice(symbol string) (float64, bool) {
	s.mu.RLock()
	tick, ok := s.last[symbol]
	s.mu.RUnlock()

	if !ok || time.Since(tick.at) > s.staleAfter {
		return 0, false
	}
	return tick.price, true
}
