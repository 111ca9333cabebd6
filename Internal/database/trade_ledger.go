package datafeed

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"
)

// ContractMultiplier is the share deliverable per option contract.
var ContractMultiplier = decimal.NewFromInt(100)

type TradeStatus string

const (
	StatusOpen   TradeStatus = "OPEN"
	StatusClosed TradeStatus = "CLOSED"
)

type TradeRecord struct {
	ID          string
	Strategy    string
	Symbol      string
	Contract    string
	Direction   string
	SignalType  string
	Quantity    decimal.Decimal
	EntryPrice  decimal.Decimal
	EntryTime   time.Time
	RiskUnit    decimal.Decimal
	StopPrice   decimal.Decimal
	TargetPrice decimal.Decimal
	Status      TradeStatus
	ExitPrice   decimal.Decimal
	ExitTime    time.Time
	ExitReason  string
	RealizedPnL decimal.Decimal
}

// RecordEntry appends an open trade to the ledger. If the record has no ID
// one is assigned and returned.
func RecordEntry(t *TradeRecord) (string, error) {
	if DB == nil {
		return "", fmt.Errorf("database not initialized")
	}
	if t.ID == "" {
		t.ID = uuid.New().String()
	}
	if t.Status == "" {
		t.Status = StatusOpen
	}

	_, err := DB.Exec(`
		INSERT INTO trades (id, strategy, symbol, contract, direction, signal_type,
			quantity, entry_price, entry_time, risk_unit, stop_price, target_price, status)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`,
		t.ID, t.Strategy, t.Symbol, t.Contract, t.Direction, t.SignalType,
		t.Quantity.String(), t.EntryPrice.String(), t.EntryTime,
		t.RiskUnit.String(), t.StopPrice.String(), t.TargetPrice.String(), string(t.Status))
	if err != nil {
		return "", fmt.Errorf("failed to record trade entry: %w", err)
	}

	log.WithFields(log.Fields{
		"trade_id": t.ID,
		"contract": t.Contract,
		"quantity": t.Quantity.String(),
		"entry":    t.EntryPrice.String(),
	}).Info("📒 Trade entry recorded")
	return t.ID, nil
}

// RecordExit closes an open trade in full and stores the realized P&L.
func RecordExit(tradeID string, exitPrice decimal.Decimal, exitTime time.Time, reason string) (decimal.Decimal, error) {
	t, err := GetTradeByID(tradeID)
	if err != nil {
		return decimal.Zero, err
	}
	if t.Status == StatusClosed {
		return decimal.Zero, fmt.Errorf("trade %s is already closed", tradeID)
	}

	pnl := realizedPnL(t.EntryPrice, exitPrice, t.Quantity, t.Direction)

	_, err = DB.Exec(`
		UPDATE trades
		SET status = $1, exit_price = $2, exit_time = $3, exit_reason = $4, realized_pnl = $5
		WHERE id = $6`,
		string(StatusClosed), exitPrice.String(), exitTime, reason, pnl.String(), tradeID)
	if err != nil {
		return decimal.Zero, fmt.Errorf("failed to record trade exit: %w", err)
	}

	log.WithFields(log.Fields{
		"trade_id": tradeID,
		"exit":     exitPrice.String(),
		"reason":   reason,
		"pnl":      pnl.String(),
	}).Info("📒 Trade exit recorded")
	return pnl, nil
}

// RecordPartialExit closes part of an open trade. The closed leg is written
// as its own CLOSED row and the remaining quantity stays on the original row.
// Returns the new leg's ID and its realized P&L.
func RecordPartialExit(tradeID string, qty, exitPrice decimal.Decimal, exitTime time.Time, reason string) (string, decimal.Decimal, error) {
	t, err := GetTradeByID(tradeID)
	if err != nil {
		return "", decimal.Zero, err
	}
	if t.Status == StatusClosed {
		return "", decimal.Zero, fmt.Errorf("trade %s is already closed", tradeID)
	}
	if qty.GreaterThanOrEqual(t.Quantity) {
		pnl, err := RecordExit(tradeID, exitPrice, exitTime, reason)
		return tradeID, pnl, err
	}

	tx, err := DB.Begin()
	if err != nil {
		return "", decimal.Zero, err
	}
	defer tx.Rollback()

	legID := uuid.New().String()
	pnl := realizedPnL(t.EntryPrice, exitPrice, qty, t.Direction)

	_, err = tx.Exec(`
		INSERT INTO trades (id, strategy, symbol, contract, direction, signal_type,
			quantity, entry_price, entry_time, risk_unit, stop_price, target_price,
			status, exit_price, exit_time, exit_reason, realized_pnl)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17)`,
		legID, t.Strategy, t.Symbol, t.Contract, t.Direction, t.SignalType,
		qty.String(), t.EntryPrice.String(), t.EntryTime,
		t.RiskUnit.String(), t.StopPrice.String(), t.TargetPrice.String(),
		string(StatusClosed), exitPrice.String(), exitTime, reason, pnl.String())
	if err != nil {
		return "", decimal.Zero, fmt.Errorf("failed to record partial exit leg: %w", err)
	}

	remaining := t.Quantity.Sub(qty)
	_, err = tx.Exec(`UPDATE trades SET quantity = $1 WHERE id = $2`, remaining.String(), tradeID)
	if err != nil {
		return "", decimal.Zero, fmt.Errorf("failed to reduce open quantity: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return "", decimal.Zero, err
	}

	log.WithFields(log.Fields{
		"trade_id":  tradeID,
		"leg_id":    legID,
		"closed":    qty.String(),
		"remaining": remaining.String(),
		"pnl":       pnl.String(),
	}).Info("📒 Partial exit recorded")
	return legID, pnl, nil
}

// UpdateStop persists a stop adjustment, e.g. a move to breakeven.
func UpdateStop(tradeID string, stop decimal.Decimal) error {
	if DB == nil {
		return fmt.Errorf("database not initialized")
	}
	_, err := DB.Exec(`UPDATE trades SET stop_price = $1 WHERE id = $2`, stop.String(), tradeID)
	return err
}

func GetTradeByID(tradeID string) (*TradeRecord, error) {
	if DB == nil {
		return nil, fmt.Errorf("database not initialized")
	}
	row := DB.QueryRow(`
		SELECT id, strategy, symbol, contract, direction, COALESCE(signal_type, ''),
			quantity, entry_price, entry_time, risk_unit,
			COALESCE(stop_price, '0'), COALESCE(target_price, '0'), status,
			COALESCE(exit_price, '0'), COALESCE(exit_time, entry_time),
			COALESCE(exit_reason, ''), COALESCE(realized_pnl, '0')
		FROM trades WHERE id = $1`, tradeID)
	return scanTrade(row)
}

func GetOpenTrades() ([]TradeRecord, error) {
	return queryTrades(`WHERE status = 'OPEN' ORDER BY entry_time`)
}

func GetTradesByDateRange(from, to time.Time) ([]TradeRecord, error) {
	return queryTrades(`WHERE entry_time >= $1 AND entry_time < $2 ORDER BY entry_time`, from, to)
}

func GetTradesByStatus(status TradeStatus) ([]TradeRecord, error) {
	return queryTrades(`WHERE status = $1 ORDER BY entry_time`, string(status))
}

type TradeStats struct {
	TotalTrades   int
	WinningTrades int
	LosingTrades  int
	WinRate       float64
	TotalPnL      decimal.Decimal
	AverageWin    decimal.Decimal
	AverageLoss   decimal.Decimal
	LargestWin    decimal.Decimal
	LargestLoss   decimal.Decimal
	ByStrategy    map[string]decimal.Decimal
}

// GetTradeStats aggregates closed trades over a date range.
func GetTradeStats(from, to time.Time) (*TradeStats, error) {
	trades, err := GetTradesByDateRange(from, to)
	if err != nil {
		return nil, err
	}

	stats := &TradeStats{
		TotalPnL:   decimal.Zero,
		ByStrategy: make(map[string]decimal.Decimal),
	}
	var winSum, lossSum decimal.Decimal

	for _, t := range trades {
		if t.Status != StatusClosed {
			continue
		}
		stats.TotalTrades++
		stats.TotalPnL = stats.TotalPnL.Add(t.RealizedPnL)
		stats.ByStrategy[t.Strategy] = stats.ByStrategy[t.Strategy].Add(t.RealizedPnL)

		if t.RealizedPnL.GreaterThan(decimal.Zero) {
			stats.WinningTrades++
			winSum = winSum.Add(t.RealizedPnL)
			if t.RealizedPnL.GreaterThan(stats.LargestWin) {
				stats.LargestWin = t.RealizedPnL
			}
		} else if t.RealizedPnL.LessThan(decimal.Zero) {
			stats.LosingTrades++
			lossSum = lossSum.Add(t.RealizedPnL)
			if t.RealizedPnL.LessThan(stats.LargestLoss) {
				stats.LargestLoss = t.RealizedPnL
			}
		}
	}

	if stats.TotalTrades > 0 {
		stats.WinRate = float64(stats.WinningTrades) / float64(stats.TotalTrades) * 100
	}
	if stats.WinningTrades > 0 {
		stats.AverageWin = winSum.Div(decimal.NewFromInt(int64(stats.WinningTrades)))
	}
	if stats.LosingTrades > 0 {
		stats.AverageLoss = lossSum.Div(decimal.NewFromInt(int64(stats.LosingTrades)))
	}
	return stats, nil
}

// DailyRealizedPnL sums realized P&L for trades closed on the given day.
func DailyRealizedPnL(day time.Time) (decimal.Decimal, error) {
	if DB == nil {
		return decimal.Zero, fmt.Errorf("database not initialized")
	}
	start := time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, day.Location())
	end := start.Add(24 * time.Hour)

	rows, err := DB.Query(`
		SELECT COALESCE(realized_pnl, '0') FROM trades
		WHERE status = 'CLOSED' AND exit_time >= $1 AND exit_time < $2`, start, end)
	if err != nil {
		return decimal.Zero, err
	}
	defer rows.Close()

	total := decimal.Zero
	for rows.Next() {
		var s string
		if err := rows.Scan(&s); err != nil {
			return decimal.Zero, err
		}
		pnl, err := decimal.NewFromString(s)
		if err != nil {
			return decimal.Zero, fmt.Errorf("corrupt pnl value %q: %w", s, err)
		}
		total = total.Add(pnl)
	}
	return total, rows.Err()
}

func realizedPnL(entry, exit, qty decimal.Decimal, direction string) decimal.Decimal {
	perContract := exit.Sub(entry)
	if direction == "SHORT" {
		perContract = entry.Sub(exit)
	}
	return perContract.Mul(qty).Mul(ContractMultiplier)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTrade(row rowScanner) (*TradeRecord, error) {
	var t TradeRecord
	var status, qty, entry, risk, stop, target, exit, pnl string
	err := row.Scan(&t.ID, &t.Strategy, &t.Symbol, &t.Contract, &t.Direction, &t.SignalType,
		&qty, &entry, &t.EntryTime, &risk, &stop, &target, &status,
		&exit, &t.ExitTime, &t.ExitReason, &pnl)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("trade not found")
	}
	if err != nil {
		return nil, err
	}

	t.Status = TradeStatus(status)
	for _, f := range []struct {
		dst *decimal.Decimal
		src string
	}{
		{&t.Quantity, qty}, {&t.EntryPrice, entry}, {&t.RiskUnit, risk},
		{&t.StopPrice, stop}, {&t.TargetPrice, target},
		{&t.ExitPrice, exit}, {&t.RealizedPnL, pnl},
	} {
		d, err := decimal.NewFromString(f.src)
		if err != nil {
			return nil, fmt.Errorf("corrupt decimal value %q: %w", f.src, err)
		}
		*f.dst = d
	}
	return &t, nil
}

func queryTrades(where string, args ...any) ([]TradeRecord, error) {
	if DB == nil {
		return nil, fmt.Errorf("database not initialized")
	}
	rows, err := DB.Query(`
		SELECT id, strategy, symbol, contract, direction, COALESCE(signal_type, ''),
			quantity, entry_price, entry_time, risk_unit,
			COALESCE(stop_price, '0'), COALESCE(target_price, '0'), status,
			COALESCE(exit_price, '0'), COALESCE(exit_time, entry_time),
			COALESCE(exit_reason, ''), COALESCE(realized_pnl, '0')
		FROM trades `+where, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var trades []TradeRecord
	for rows.Next() {
		t, err := scanTrade(rows)
		if err != nil {
			return nil, err
		}
		trades = append(trades, *t)
	}
	return trades, rows.Err()
}
