package broker

import (
	"fmt"
	"os"

	"github.com/alpacahq/alpaca-trade-api-go/v3/alpaca"
	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"
)

// Broker wraps the Alpaca trading client behind the narrow contract the
// session loop needs: account, orders, positions.
type Broker struct {
	client *alpaca.Client
}

func NewFromEnv() (*Broker, error) {
	apiKey := os.Getenv("ALPACA_API_KEY")
	secretKey := os.Getenv("ALPACA_API_SECRET")
	if apiKey == "" || secretKey == "" {
		return nil, fmt.Errorf("ALPACA_API_KEY or ALPACA_API_SECRET not set")
	}

	baseURL := os.Getenv("ALPACA_BASE_URL")
	if baseURL == "" {
		baseURL = "https://paper-api.alpaca.markets"
	}

	client := alpaca.NewClient(alpaca.ClientOpts{
		APIKey:    apiKey,
		APISecret: secretKey,
		BaseURL:   baseURL,
	})

	return &Broker{client: client}, nil
}

func New(client *alpaca.Client) *Broker {
	return &Broker{client: client}
}

// Equity returns current account equity in dollars.
func (b *Broker) Equity() (float64, error) {
	account, err := b.client.GetAccount()
	if err != nil {
		return 0, fmt.Errorf("failed to fetch account: %w", err)
	}
	equity, _ := account.Equity.Float64()
	return equity, nil
}

type OrderSide string

const (
	Buy  OrderSide = "buy"
	Sell OrderSide = "sell"
)

type OrderRequest struct {
	Symbol     string // share symbol or OCC option contract symbol
	Qty        int64
	Side       OrderSide
	LimitPrice float64 // 0 means market order
}

// PlaceOrder submits a day order and returns the broker order ID.
func (b *Broker) PlaceOrder(req OrderRequest) (string, error) {
	if req.Qty <= 0 {
		return "", fmt.Errorf("invalid order quantity: %d", req.Qty)
	}

	side := alpaca.Buy
	if req.Side == Sell {
		side = alpaca.Sell
	}

	qty := decimal.NewFromInt(req.Qty)
	placeReq := alpaca.PlaceOrderRequest{
		Symbol:      req.Symbol,
		Qty:         &qty,
		Side:        side,
		Type:        alpaca.Market,
		TimeInForce: alpaca.Day,
	}
	if req.LimitPrice > 0 {
		limitPrice := decimal.NewFromFloat(req.LimitPrice)
		placeReq.Type = alpaca.Limit
		placeReq.LimitPrice = &limitPrice
	}

	order, err := b.client.PlaceOrder(placeReq)
	if err != nil {
		return "", fmt.Errorf("failed to place order for %s: %w", req.Symbol, err)
	}

	log.Infof("📨 Order placed: %s %s x%d (ID: %s)", req.Side, req.Symbol, req.Qty, order.ID)
	return order.ID, nil
}

// OrderFilled reports whether an order has fully filled, and the average
// fill price when it has.
func (b *Broker) OrderFilled(orderID string) (bool, float64, error) {
	order, err := b.client.GetOrder(orderID)
	if err != nil {
		return false, 0, fmt.Errorf("failed to fetch order %s: %w", orderID, err)
	}
	if order.Status != "filled" {
		return false, 0, nil
	}
	price := 0.0
	if order.FilledAvgPrice != nil {
		price, _ = order.FilledAvgPrice.Float64()
	}
	return true, price, nil
}

func (b *Broker) CancelOrder(orderID string) error {
	if err := b.client.CancelOrder(orderID); err != nil {
		return fmt.Errorf("failed to cancel order %s: %w", orderID, err)
	}
	return nil
}

// OpenQty returns the signed open quantity the broker holds for a symbol.
// Zero with no error means the broker shows the position closed.
func (b *Broker) OpenQty(symbol string) (int64, error) {
	positions, err := b.client.GetPositions()
	if err != nil {
		return 0, fmt.Errorf("failed to fetch positions: %w", err)
	}
	for _, pos := range positions {
		if pos.Symbol == symbol {
			qty, _ := pos.Qty.Float64()
			return int64(qty), nil
		}
	}
	return 0, nil
}
