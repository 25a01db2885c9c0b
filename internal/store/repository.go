// Package store defines the data access contract for the wallet engine and
// its PostgreSQL implementation. The balance-affecting operations are the
// atomicity boundary required by the ledger: a balance mutation and its
// corresponding transaction row commit together or not at all.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/vtupay/wallet-engine/internal/models"
)

var (
	ErrWalletNotFound      = errors.New("wallet not found")
	ErrTransactionNotFound = errors.New("transaction not found")
	ErrInsufficientBalance = errors.New("insufficient balance")
	ErrInvalidAmount       = errors.New("amount must be positive")
	ErrDuplicateReference  = errors.New("duplicate transaction reference")
	ErrAccountNotFound     = errors.New("funding account not found")
	ErrAlreadyReversed     = errors.New("transaction already has a reversal")
)

// Repository is the set of persistence operations the services are built on.
// Implementations must guarantee that each method is atomic: concurrent
// callers observe either all of a method's writes or none of them, and
// balance reads inside a mutation are transactionally consistent (no
// double-spend via stale reads).
type Repository interface {
	// Wallet access.
	GetWallet(ctx context.Context, userID uuid.UUID) (*models.Wallet, error)
	SetPinHash(ctx context.Context, userID uuid.UUID, hash string) error

	// DebitAndRecord atomically subtracts amount from the user's balance and
	// inserts the ledger entry. Fails with ErrInsufficientBalance without any
	// write when the balance cannot cover the amount, and with
	// ErrDuplicateReference when the entry's tx_ref already exists.
	// Returns the new balance.
	DebitAndRecord(ctx context.Context, userID uuid.UUID, amount decimal.Decimal, entry *models.Transaction) (decimal.Decimal, error)

	// CreditAndRecord atomically adds amount to the user's balance and inserts
	// the ledger entry. Returns the new balance.
	CreditAndRecord(ctx context.Context, userID uuid.UUID, amount decimal.Decimal, entry *models.Transaction) (decimal.Decimal, error)

	// SettleSuccess resolves a pending entry to success, attaching the
	// vendor reference and provider metadata. Settling an already-successful
	// entry is a no-op; settling a failed entry is ErrInvalidTransition.
	SettleSuccess(ctx context.Context, txRef string, vendorRef *string, meta []byte) error

	// SettleFailedAndRefund resolves a pending entry to failed and, in the
	// same atomic unit, credits the entry's amount back to the owning wallet.
	SettleFailedAndRefund(ctx context.Context, txRef string, reason string) error

	// RefundAndRecord reverses a settled spend: inserts the reversing entry
	// and credits the original amount back to the owning wallet. The
	// no-existing-reversal check happens inside the same atomic unit as the
	// credit, so concurrent refunds of one original cannot both apply; the
	// loser gets ErrAlreadyReversed. Returns the new balance.
	RefundAndRecord(ctx context.Context, originalTxRef string, entry *models.Transaction) (decimal.Decimal, error)

	// Ledger queries.
	FindTransactionByRef(ctx context.Context, txRef string) (*models.Transaction, error)
	FindReversalOf(ctx context.Context, txRef string) (*models.Transaction, error)
	ListPendingOlderThan(ctx context.Context, cutoff time.Time, limit int) ([]models.Transaction, error)

	// FindUserByAccountRef maps a payment provider's dedicated-account
	// reference to the owning user. Misses are ErrAccountNotFound — inbound
	// funds for an unknown account are rejected, never silently dropped.
	FindUserByAccountRef(ctx context.Context, accountRef string) (uuid.UUID, error)

	// GetAppConfig returns the spend-control singleton.
	GetAppConfig(ctx context.Context) (*models.AppConfig, error)
}
