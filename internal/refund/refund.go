// Package refund implements the correction paths over the ledger: the
// admin-triggered refund of a settled spend, and the reconciliation of
// transactions the vendor left pending. Both follow the same atomic
// balance-mutation discipline as purchases; the ledger stays append-only —
// a refund writes a new reversing entry and never touches the original.
package refund

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"github.com/vtupay/wallet-engine/internal/models"
	"github.com/vtupay/wallet-engine/internal/store"
)

var (
	ErrRefundAlreadyApplied = errors.New("transaction has already been refunded")
	ErrNotRefundable        = errors.New("only settled successful transactions can be refunded")
)

// Outcome is a terminal resolution for a pending transaction.
type Outcome string

const (
	OutcomeSuccess Outcome = "success"
	OutcomeFailed  Outcome = "failed"
)

// Result describes an applied refund.
type Result struct {
	OriginalRef string
	RefundRef   string
	Amount      decimal.Decimal
	NewBalance  decimal.Decimal
}

// Engine applies refunds and resolves pending transactions.
type Engine struct {
	repo store.Repository
}

func NewEngine(repo store.Repository) *Engine {
	return &Engine{repo: repo}
}

// Refund reverses a previously settled spend: credits the user's balance by
// the original amount and appends a new reversing ledger entry. Only spend
// entries are refundable — a funding credit has nothing to credit back.
// Caller authorization is enforced upstream; this is the effect only.
//
// The no-existing-reversal check and the credit happen in one store-level
// atomic unit, so concurrent refunds of the same original cannot both apply.
func (e *Engine) Refund(ctx context.Context, txRef string) (*Result, error) {
	original, err := e.repo.FindTransactionByRef(ctx, txRef)
	if err != nil {
		return nil, err
	}
	if original.Status != models.StatusSuccess {
		return nil, ErrNotRefundable
	}
	if !models.IsSpendType(original.Type) || original.IsReversal() {
		return nil, ErrNotRefundable
	}

	refundRef := uuid.NewString()
	reversalOf := txRef
	entry := &models.Transaction{
		TxRef:         refundRef,
		UserID:        original.UserID,
		Type:          models.TypeRefund,
		Amount:        original.Amount,
		Status:        models.StatusSuccess,
		PaymentMethod: original.PaymentMethod,
		Note:          fmt.Sprintf("refund of %s (%s)", txRef, original.Type),
		ReversalOf:    &reversalOf,
	}

	newBalance, err := e.repo.RefundAndRecord(ctx, txRef, entry)
	if errors.Is(err, store.ErrAlreadyReversed) {
		return nil, ErrRefundAlreadyApplied
	}
	if err != nil {
		return nil, fmt.Errorf("failed to apply refund credit: %w", err)
	}

	log.Info().
		Str("tx_ref", txRef).
		Str("refund_ref", refundRef).
		Str("amount", original.Amount.String()).
		Msg("refund applied")

	return &Result{
		OriginalRef: txRef,
		RefundRef:   refundRef,
		Amount:      original.Amount,
		NewBalance:  newBalance,
	}, nil
}

// ResolvePending settles a transaction the vendor left pending. A success
// resolution keeps the debit and marks the entry settled; a failed
// resolution restores the balance in the same atomic unit as the status
// change. Used by the reconciliation worker and the admin path.
func (e *Engine) ResolvePending(ctx context.Context, txRef string, outcome Outcome, vendorRef *string, reason string) error {
	entry, err := e.repo.FindTransactionByRef(ctx, txRef)
	if err != nil {
		return err
	}
	if entry.Status != models.StatusPending {
		return models.ErrInvalidTransition
	}

	switch outcome {
	case OutcomeSuccess:
		return e.repo.SettleSuccess(ctx, txRef, vendorRef, nil)
	case OutcomeFailed:
		return e.repo.SettleFailedAndRefund(ctx, txRef, reason)
	default:
		return fmt.Errorf("unknown reconciliation outcome %q", outcome)
	}
}
