// Package storetest provides an in-memory Repository for service tests.
// A single mutex stands in for the database's row locks: each method is a
// critical section, which models the transactional consistency the postgres
// implementation guarantees.
package storetest

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/vtupay/wallet-engine/internal/models"
	"github.com/vtupay/wallet-engine/internal/store"
)

type FakeRepository struct {
	mu           sync.Mutex
	wallets      map[uuid.UUID]*models.Wallet
	transactions map[string]*models.Transaction // keyed by tx_ref
	accounts     map[string]uuid.UUID           // funding account ref -> user
	config       models.AppConfig

	// FailSettleSuccess makes the next n SettleSuccess calls fail, to
	// exercise the orchestrator's ledger-write retry.
	FailSettleSuccess int
}

func NewFakeRepository() *FakeRepository {
	return &FakeRepository{
		wallets:      make(map[uuid.UUID]*models.Wallet),
		transactions: make(map[string]*models.Transaction),
		accounts:     make(map[string]uuid.UUID),
		config: models.AppConfig{
			TransactionLimit: decimal.NewFromInt(100000),
		},
	}
}

// SeedWallet registers a wallet with the given balance and optional pin hash.
func (f *FakeRepository) SeedWallet(userID uuid.UUID, balance decimal.Decimal, pinHash string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	w := &models.Wallet{
		UserID:    userID,
		Balance:   balance,
		CreatedAt: time.Now(),
		UpdatedAt: time.Now(),
	}
	if pinHash != "" {
		w.PinHash = &pinHash
		w.HasSetPin = true
	}
	f.wallets[userID] = w
}

// SetConfig replaces the spend-control singleton.
func (f *FakeRepository) SetConfig(cfg models.AppConfig) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.config = cfg
}

// Balance returns the current balance for assertions.
func (f *FakeRepository) Balance(userID uuid.UUID) decimal.Decimal {
	f.mu.Lock()
	defer f.mu.Unlock()
	if w, ok := f.wallets[userID]; ok {
		return w.Balance
	}
	return decimal.Zero
}

// Transactions returns a snapshot of all ledger entries.
func (f *FakeRepository) Transactions() []models.Transaction {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]models.Transaction, 0, len(f.transactions))
	for _, t := range f.transactions {
		out = append(out, *t)
	}
	return out
}

func (f *FakeRepository) GetWallet(_ context.Context, userID uuid.UUID) (*models.Wallet, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	w, ok := f.wallets[userID]
	if !ok {
		return nil, store.ErrWalletNotFound
	}
	cp := *w
	return &cp, nil
}

func (f *FakeRepository) SetPinHash(_ context.Context, userID uuid.UUID, hash string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	w, ok := f.wallets[userID]
	if !ok {
		return store.ErrWalletNotFound
	}
	w.PinHash = &hash
	w.HasSetPin = true
	return nil
}

func (f *FakeRepository) DebitAndRecord(_ context.Context, userID uuid.UUID, amount decimal.Decimal, entry *models.Transaction) (decimal.Decimal, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if amount.LessThanOrEqual(decimal.Zero) {
		return decimal.Zero, store.ErrInvalidAmount
	}
	// Duplicate check before the balance check, mirroring the postgres
	// implementation: replays stay deterministic after the balance drains.
	if _, exists := f.transactions[entry.TxRef]; exists {
		return decimal.Zero, store.ErrDuplicateReference
	}
	w, ok := f.wallets[userID]
	if !ok {
		return decimal.Zero, store.ErrWalletNotFound
	}
	if w.Balance.LessThan(amount) {
		return decimal.Zero, store.ErrInsufficientBalance
	}

	w.Balance = w.Balance.Sub(amount)
	f.insert(entry)
	return w.Balance, nil
}

func (f *FakeRepository) CreditAndRecord(_ context.Context, userID uuid.UUID, amount decimal.Decimal, entry *models.Transaction) (decimal.Decimal, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if amount.LessThanOrEqual(decimal.Zero) {
		return decimal.Zero, store.ErrInvalidAmount
	}
	w, ok := f.wallets[userID]
	if !ok {
		return decimal.Zero, store.ErrWalletNotFound
	}
	if _, exists := f.transactions[entry.TxRef]; exists {
		return decimal.Zero, store.ErrDuplicateReference
	}

	w.Balance = w.Balance.Add(amount)
	f.insert(entry)
	return w.Balance, nil
}

func (f *FakeRepository) SettleSuccess(_ context.Context, txRef string, vendorRef *string, meta []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.FailSettleSuccess > 0 {
		f.FailSettleSuccess--
		return context.DeadlineExceeded
	}

	t, ok := f.transactions[txRef]
	if !ok {
		return store.ErrTransactionNotFound
	}
	if t.Status == models.StatusSuccess {
		return nil
	}
	if !models.IsValidTransition(t.Status, models.StatusSuccess) {
		return models.ErrInvalidTransition
	}
	t.Status = models.StatusSuccess
	if vendorRef != nil {
		t.AccountID = vendorRef
	}
	if meta != nil {
		t.Meta = meta
	}
	now := time.Now()
	t.CompletedAt = &now
	return nil
}

func (f *FakeRepository) SettleFailedAndRefund(_ context.Context, txRef string, reason string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	t, ok := f.transactions[txRef]
	if !ok {
		return store.ErrTransactionNotFound
	}
	if t.Status == models.StatusFailed {
		return nil
	}
	if !models.IsValidTransition(t.Status, models.StatusFailed) {
		return models.ErrInvalidTransition
	}

	w, ok := f.wallets[t.UserID]
	if !ok {
		return store.ErrWalletNotFound
	}
	t.Status = models.StatusFailed
	if reason != "" {
		t.Note = strings.TrimSpace(t.Note + " | " + reason)
	}
	now := time.Now()
	t.CompletedAt = &now
	w.Balance = w.Balance.Add(t.Amount)
	return nil
}

func (f *FakeRepository) RefundAndRecord(_ context.Context, originalTxRef string, entry *models.Transaction) (decimal.Decimal, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	original, ok := f.transactions[originalTxRef]
	if !ok {
		return decimal.Zero, store.ErrTransactionNotFound
	}
	if original.Status != models.StatusSuccess {
		return decimal.Zero, models.ErrInvalidTransition
	}
	for _, t := range f.transactions {
		if t.ReversalOf != nil && *t.ReversalOf == originalTxRef {
			return decimal.Zero, store.ErrAlreadyReversed
		}
	}
	if _, exists := f.transactions[entry.TxRef]; exists {
		return decimal.Zero, store.ErrDuplicateReference
	}

	w, ok := f.wallets[original.UserID]
	if !ok {
		return decimal.Zero, store.ErrWalletNotFound
	}
	w.Balance = w.Balance.Add(original.Amount)
	f.insert(entry)
	return w.Balance, nil
}

func (f *FakeRepository) FindTransactionByRef(_ context.Context, txRef string) (*models.Transaction, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	t, ok := f.transactions[txRef]
	if !ok {
		return nil, store.ErrTransactionNotFound
	}
	cp := *t
	return &cp, nil
}

func (f *FakeRepository) FindReversalOf(_ context.Context, txRef string) (*models.Transaction, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, t := range f.transactions {
		if t.ReversalOf != nil && *t.ReversalOf == txRef {
			cp := *t
			return &cp, nil
		}
	}
	return nil, store.ErrTransactionNotFound
}

func (f *FakeRepository) ListPendingOlderThan(_ context.Context, cutoff time.Time, limit int) ([]models.Transaction, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []models.Transaction
	for _, t := range f.transactions {
		if t.Status == models.StatusPending && t.Type != models.TypeFunding && t.CreatedAt.Before(cutoff) {
			out = append(out, *t)
			if len(out) == limit {
				break
			}
		}
	}
	return out, nil
}

// SeedFundingAccount maps a provider account reference to a user.
func (f *FakeRepository) SeedFundingAccount(accountRef string, userID uuid.UUID) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.accounts[accountRef] = userID
}

func (f *FakeRepository) FindUserByAccountRef(_ context.Context, accountRef string) (uuid.UUID, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	userID, ok := f.accounts[accountRef]
	if !ok {
		return uuid.Nil, store.ErrAccountNotFound
	}
	return userID, nil
}

func (f *FakeRepository) GetAppConfig(_ context.Context) (*models.AppConfig, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	cfg := f.config
	return &cfg, nil
}

func (f *FakeRepository) insert(entry *models.Transaction) {
	cp := *entry
	if cp.ID == uuid.Nil {
		cp.ID = uuid.New()
	}
	if cp.CreatedAt.IsZero() {
		cp.CreatedAt = time.Now()
	}
	cp.UpdatedAt = time.Now()
	if cp.Status == models.StatusSuccess {
		now := time.Now()
		cp.CompletedAt = &now
	}
	f.transactions[cp.TxRef] = &cp
}
