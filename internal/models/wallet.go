package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Wallet holds a user's spendable balance and transaction PIN state. The
// balance is only ever mutated through the store's atomic operations, never
// written directly.
type Wallet struct {
	UserID    uuid.UUID       `db:"user_id"`
	Balance   decimal.Decimal `db:"balance"`
	PinHash   *string         `db:"pin_hash"`
	HasSetPin bool            `db:"has_set_pin"`
	CreatedAt time.Time       `db:"created_at"`
	UpdatedAt time.Time       `db:"updated_at"`
}

// Contact caches the most recent beneficiary (phone or meter number) a user
// purchased for, per transaction type. Best-effort convenience data, not part
// of the consistency-critical path.
type Contact struct {
	UserID    uuid.UUID       `json:"user_id"`
	Type      TransactionType `json:"type"`
	Recipient string          `json:"recipient"`
	UpdatedAt time.Time       `json:"updated_at"`
}
