package datafeed

import (
	"time"

	"github.com/shopspring/decimal"
)

// Store adapts the package-level ledger functions to an injectable value,
// which keeps the session loop testable against a fake.
type Store struct{}

func NewStore() *Store { return &Store{} }

func (Store) RecordEntry(t *TradeRecord) (string, error) {
	return RecordEntry(t)
}

func (Store) RecordExit(tradeID string, exitPrice decimal.Decimal, exitTime time.Time, reason string) (decimal.Decimal, error) {
	return RecordExit(tradeID, exitPrice, exitTime, reason)
}

func (Store) RecordPartialExit(tradeID string, qty, exitPrice decimal.Decimal, exitTime time.Time, reason string) (string, decimal.Decimal, error) {
	return RecordPartialExit(tradeID, qty, exitPrice, exitTime, reason)
}

func (Store) UpdateStop(tradeID string, stop decimal.Decimal) error {
	return UpdateStop(tradeID, stop)
}
