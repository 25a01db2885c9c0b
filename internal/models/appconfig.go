package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// AppConfig is the system-wide spend control singleton. Read by the purchase
// orchestrator before every spend; mutated only by admin tooling.
type AppConfig struct {
	StopAllTransactions  bool              `db:"stop_all_transactions"`
	StopSomeTransactions []TransactionType `db:"stop_some_transactions"`
	TransactionLimit     decimal.Decimal   `db:"transaction_limit"`
	Maintenance          bool              `db:"maintenance"`
	UpdatedAt            time.Time         `db:"updated_at"`
}

// TypeDisabled reports whether spends of type t are currently switched off.
func (c *AppConfig) TypeDisabled(t TransactionType) bool {
	for _, disabled := range c.StopSomeTransactions {
		if disabled == t {
			return true
		}
	}
	return false
}
