package models

import (
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// ErrInvalidTransition is returned when a status change would violate the
// transaction lifecycle (e.g. success back to pending).
var ErrInvalidTransition = errors.New("invalid transaction status transition")

// TransactionType identifies what a ledger entry paid for.
type TransactionType string

const (
	TypeFunding      TransactionType = "funding"
	TypeAirtime      TransactionType = "airtime"
	TypeData         TransactionType = "data"
	TypeBill         TransactionType = "bill"
	TypeExam         TransactionType = "exam"
	TypeRechargeCard TransactionType = "recharge-card"
	TypeRefund       TransactionType = "refund"
)

// SpendTypes are the transaction types a user can purchase. Funding and
// refund entries are created by the system, never by a spend request.
var SpendTypes = []TransactionType{TypeAirtime, TypeData, TypeBill, TypeExam, TypeRechargeCard}

// IsSpendType reports whether t is a user-purchasable type.
func IsSpendType(t TransactionType) bool {
	for _, st := range SpendTypes {
		if t == st {
			return true
		}
	}
	return false
}

// PaymentMethod records how a funding or spend was sourced.
type PaymentMethod string

const (
	MethodOwnAccount       PaymentMethod = "ownAccount"
	MethodVirtualAccount   PaymentMethod = "virtualAccount"
	MethodDedicatedAccount PaymentMethod = "dedicatedAccount"
)

// TransactionStatus represents the lifecycle state of a ledger entry.
type TransactionStatus string

const (
	StatusPending TransactionStatus = "pending"
	StatusSuccess TransactionStatus = "success"
	StatusFailed  TransactionStatus = "failed"
)

// IsValidTransition checks if a status transition is allowed. Pending may
// resolve to either terminal state; terminal states never change — a refund
// appends a new reversing entry instead of mutating the original.
func IsValidTransition(from, to TransactionStatus) bool {
	validTransitions := map[TransactionStatus][]TransactionStatus{
		StatusPending: {StatusSuccess, StatusFailed},
		// No transitions allowed from terminal states
		StatusSuccess: {},
		StatusFailed:  {},
	}

	allowed, exists := validTransitions[from]
	if !exists {
		return false
	}

	for _, validTo := range allowed {
		if validTo == to {
			return true
		}
	}

	return false
}

// Transaction is the append-only ledger record for every balance-affecting
// event: funding, spends and refunds. TxRef is the idempotency boundary —
// unique across the ledger, correlating a client request, the ledger row and
// the vendor-side reference.
type Transaction struct {
	ID            uuid.UUID         `db:"id"`
	TxRef         string            `db:"tx_ref"`
	UserID        uuid.UUID         `db:"user_id"`
	Type          TransactionType   `db:"type"`
	Amount        decimal.Decimal   `db:"amount"`
	Status        TransactionStatus `db:"status"`
	PaymentMethod PaymentMethod     `db:"payment_method"`
	AccountID     *string           `db:"account_id"` // vendor-side reference, where one exists
	Note          string            `db:"note"`
	Meta          []byte            `db:"meta"` // provider-specific payload, opaque to the ledger (JSONB)
	ReversalOf    *string           `db:"reversal_of"`
	CreatedAt     time.Time         `db:"created_at"`
	UpdatedAt     time.Time         `db:"updated_at"`
	CompletedAt   *time.Time        `db:"completed_at"`
}

// IsReversal reports whether the entry reverses an earlier transaction.
func (t *Transaction) IsReversal() bool {
	return t.ReversalOf != nil && *t.ReversalOf != ""
}
