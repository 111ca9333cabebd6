package internal

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"
	"github.com/tmcferran/rangerider/Internal/broker"
	datafeed "github.com/tmcferran/rangerider/Internal/database"
	"github.com/tmcferran/rangerider/Internal/strategy/metrics"
	"github.com/tmcferran/rangerider/Internal/utils/formatting"
)

type API struct {
	Broker     *broker.Broker
	JWTManager *JWTManager
}

// parseRange reads from/to query params. Defaults to the trailing 30 days
// when absent.
func parseRange(r *http.Request) (time.Time, time.Time, error) {
	now := time.Now()
	from := now.AddDate(0, 0, -30)
	to := now

	if v := r.URL.Query().Get("from"); v != "" {
		t := formatting.ParseDate(v)
		if t.IsZero() {
			return time.Time{}, time.Time{}, fmt.Errorf("unparseable date %q", v)
		}
		from = t
	}
	if v := r.URL.Query().Get("to"); v != "" {
		t := formatting.ParseDate(v)
		if t.IsZero() {
			return time.Time{}, time.Time{}, fmt.Errorf("unparseable date %q", v)
		}
		to = t.Add(24 * time.Hour)
	}
	return from, to, nil
}

func (api *API) HandleGetPositions(w http.ResponseWriter, r *http.Request) {
	trades, err := datafeed.GetOpenTrades()
	if err != nil {
		log.Errorf("Error fetching open trades: %v", err)
		WriteError(w, http.StatusInternalServerError, "Failed to fetch open trades")
		return
	}

	WriteJSON(w, http.StatusOK, map[string]interface{}{
		"positions": trades,
		"count":     len(trades),
	})
}

func (api *API) HandleGetTrades(w http.ResponseWriter, r *http.Request) {
	from, to, err := parseRange(r)
	if err != nil {
		WriteError(w, http.StatusBadRequest, "Invalid date format")
		return
	}

	trades, err := datafeed.GetTradesByDateRange(from, to)
	if err != nil {
		log.Errorf("Error fetching trades: %v", err)
		WriteError(w, http.StatusInternalServerError, "Failed to fetch trades")
		return
	}

	WriteJSON(w, http.StatusOK, map[string]interface{}{
		"trades": trades,
		"count":  len(trades),
	})
}

func (api *API) HandleGetTradeByID(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	trade, err := datafeed.GetTradeByID(id)
	if err != nil {
		WriteError(w, http.StatusNotFound, "Trade not found")
		return
	}
	WriteJSON(w, http.StatusOK, trade)
}

func (api *API) HandleGetStats(w http.ResponseWriter, r *http.Request) {
	from, to, err := parseRange(r)
	if err != nil {
		WriteError(w, http.StatusBadRequest, "Invalid date format")
		return
	}

	stats, err := datafeed.GetTradeStats(from, to)
	if err != nil {
		log.Errorf("Error computing trade stats: %v", err)
		WriteError(w, http.StatusInternalServerError, "Failed to compute trade stats")
		return
	}

	closed, err := datafeed.GetTradesByDateRange(from, to)
	if err != nil {
		log.Errorf("Error fetching trades: %v", err)
		WriteError(w, http.StatusInternalServerError, "Failed to fetch trades")
		return
	}

	WriteJSON(w, http.StatusOK, map[string]interface{}{
		"stats":         stats,
		"sharpe_ratio":  metrics.SharpeRatio(closed, 0.0),
		"sortino_ratio": metrics.SortinoRatio(closed, 0.0),
		"max_drawdown":  metrics.MaxDrawdown(closed),
	})
}

func (api *API) HandleSignalPerformance(w http.ResponseWriter, r *http.Request) {
	from, to, err := parseRange(r)
	if err != nil {
		WriteError(w, http.StatusBadRequest, "Invalid date format")
		return
	}

	trades, err := datafeed.GetTradesByDateRange(from, to)
	if err != nil {
		log.Errorf("Error fetching trades: %v", err)
		WriteError(w, http.StatusInternalServerError, "Failed to fetch trades")
		return
	}

	WriteJSON(w, http.StatusOK, metrics.BySignalType(trades))
}

func (api *API) HandleGetRiskStatus(w http.ResponseWriter, r *http.Request) {
	dailyPnL, err := datafeed.DailyRealizedPnL(time.Now())
	if err != nil {
		log.Errorf("Error computing daily P&L: %v", err)
		WriteError(w, http.StatusInternalServerError, "Failed to compute daily P&L")
		return
	}

	response := map[string]interface{}{
		"daily_pnl": dailyPnL,
	}

	if api.Broker != nil {
		equity, err := api.Broker.Equity()
		if err != nil {
			log.Warnf("Could not fetch account equity: %v", err)
		} else {
			response["equity"] = equity
		}
	}

	WriteJSON(w, http.StatusOK, response)
}

func (api *API) HandleGenerateToken(w http.ResponseWriter, r *http.Request) {
	var req struct {
		UserID string `json:"user_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.UserID == "" {
		WriteError(w, http.StatusBadRequest, "user_id is required")
		return
	}

	token, err := api.JWTManager.GenerateToken(req.UserID, 24)
	if err != nil {
		log.Errorf("Error generating token: %v", err)
		WriteError(w, http.StatusInternalServerError, "Failed to generate token")
		return
	}

	WriteJSON(w, http.StatusOK, map[string]interface{}{
		"token":      token,
		"expires_in": 24 * 3600,
	})
}

func (api *API) HandleUpdateStop(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	var req struct {
		Stop string `json:"stop"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		WriteError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	stop, err := decimal.NewFromString(req.Stop)
	if err != nil || stop.IsNegative() {
		WriteError(w, http.StatusBadRequest, "stop must be a non-negative decimal")
		return
	}

	if err := datafeed.UpdateStop(id, stop); err != nil {
		log.Errorf("Error updating stop for trade %s: %v", id, err)
		WriteError(w, http.StatusInternalServerError, "Failed to update stop")
		return
	}

	WriteJSON(w, http.StatusOK, map[string]interface{}{
		"trade_id": id,
		"stop":     stop,
	})
}

// HandleClosePosition market-sells the full broker quantity for an option
// contract. The ledger is reconciled by the trading process when the fill
// lands, so this only submits the order.
func (api *API) HandleClosePosition(w http.ResponseWriter, r *http.Request) {
	if api.Broker == nil {
		WriteError(w, http.StatusServiceUnavailable, "Broker not configured")
		return
	}

	contract := chi.URLParam(r, "contract")
	qty, err := api.Broker.OpenQty(contract)
	if err != nil {
		log.Errorf("Error fetching open quantity for %s: %v", contract, err)
		WriteError(w, http.StatusInternalServerError, "Failed to fetch open quantity")
		return
	}
	if qty <= 0 {
		WriteError(w, http.StatusNotFound, "No open position for contract")
		return
	}

	orderID, err := api.Broker.PlaceOrder(broker.OrderRequest{
		Symbol: contract,
		Qty:    qty,
		Side:   broker.Sell,
	})
	if err != nil {
		log.Errorf("Error placing close order for %s: %v", contract, err)
		WriteError(w, http.StatusInternalServerError, "Failed to place close order")
		return
	}

	log.Infof("🛑 Manual close submitted for %s x%d (order %s)", contract, qty, orderID)
	WriteJSON(w, http.StatusOK, map[string]interface{}{
		"contract": contract,
		"qty":      qty,
		"order_id": orderID,
	})
}

// HandleFlatten market-sells every contract the ledger shows open. Partial
// failures are reported per contract rather than aborting the sweep.
func (api *API) HandleFlatten(w http.ResponseWriter, r *http.Request) {
	if api.Broker == nil {
		WriteError(w, http.StatusServiceUnavailable, "Broker not configured")
		return
	}

	open, err := datafeed.GetOpenTrades()
	if err != nil {
		log.Errorf("Error fetching open trades: %v", err)
		WriteError(w, http.StatusInternalServerError, "Failed to fetch open trades")
		return
	}

	results := make([]map[string]interface{}, 0, len(open))
	for _, t := range open {
		result := map[string]interface{}{"contract": t.Contract}

		qty, err := api.Broker.OpenQty(t.Contract)
		if err != nil {
			result["error"] = err.Error()
			results = append(results, result)
			continue
		}
		if qty <= 0 {
			result["skipped"] = "no broker position"
			results = append(results, result)
			continue
		}

		orderID, err := api.Broker.PlaceOrder(broker.OrderRequest{
			Symbol: t.Contract,
			Qty:    qty,
			Side:   broker.Sell,
		})
		if err != nil {
			result["error"] = err.Error()
		} else {
			log.Infof("🛑 Flatten order submitted for %s x%d (order %s)", t.Contract, qty, orderID)
			result["qty"] = qty
			result["order_id"] = orderID
		}
		results = append(results, result)
	}

	WriteJSON(w, http.StatusOK, map[string]interface{}{
		"flattened": results,
		"count":     len(results),
	})
}
