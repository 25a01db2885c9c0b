// Package wallet is the balance guard: the only path through which a user's
// balance may be mutated. Every mutation pairs the balance change with a
// ledger entry in one atomic store operation, so a balance change without an
// audit row (or vice versa) cannot occur.
package wallet

import (
	"context"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/vtupay/wallet-engine/internal/models"
	"github.com/vtupay/wallet-engine/internal/store"
)

// Guard validates and applies balance mutations.
type Guard struct {
	repo store.Repository
}

func NewGuard(repo store.Repository) *Guard {
	return &Guard{repo: repo}
}

// Balance returns the current spendable balance.
func (g *Guard) Balance(ctx context.Context, userID uuid.UUID) (decimal.Decimal, error) {
	w, err := g.repo.GetWallet(ctx, userID)
	if err != nil {
		return decimal.Zero, err
	}
	return w.Balance, nil
}

// Reserve debits amount from the wallet and records the given pending ledger
// entry atomically. The balance can never go negative: the store rejects the
// debit with ErrInsufficientBalance before any write. Reservation here is an
// immediate debit — reversal on fulfillment failure restores it.
func (g *Guard) Reserve(ctx context.Context, userID uuid.UUID, amount decimal.Decimal, entry *models.Transaction) (decimal.Decimal, error) {
	if amount.LessThanOrEqual(decimal.Zero) {
		return decimal.Zero, store.ErrInvalidAmount
	}
	return g.repo.DebitAndRecord(ctx, userID, amount, entry)
}

// Credit adds amount to the wallet and records the given ledger entry
// atomically.
func (g *Guard) Credit(ctx context.Context, userID uuid.UUID, amount decimal.Decimal, entry *models.Transaction) (decimal.Decimal, error) {
	if amount.LessThanOrEqual(decimal.Zero) {
		return decimal.Zero, store.ErrInvalidAmount
	}
	return g.repo.CreditAndRecord(ctx, userID, amount, entry)
}
