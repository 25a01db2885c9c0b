package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/vtupay/wallet-engine/internal/models"
)

// PostgresRepository implements Repository on a pgx connection pool.
// Balance-affecting methods open a database transaction, take a row lock on
// the wallet with SELECT ... FOR UPDATE, and commit the balance update and
// ledger insert as one unit.
type PostgresRepository struct {
	db *pgxpool.Pool
}

func NewPostgresRepository(db *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{db: db}
}

const transactionColumns = `
	id, tx_ref, user_id, type, amount, status, payment_method,
	account_id, note, meta, reversal_of, created_at, updated_at, completed_at`

func (r *PostgresRepository) GetWallet(ctx context.Context, userID uuid.UUID) (*models.Wallet, error) {
	query := `SELECT user_id, balance, pin_hash, has_set_pin, created_at, updated_at
	          FROM wallets WHERE user_id = $1`

	var w models.Wallet
	err := r.db.QueryRow(ctx, query, userID).Scan(
		&w.UserID, &w.Balance, &w.PinHash, &w.HasSetPin, &w.CreatedAt, &w.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrWalletNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load wallet: %w", err)
	}
	return &w, nil
}

func (r *PostgresRepository) SetPinHash(ctx context.Context, userID uuid.UUID, hash string) error {
	query := `UPDATE wallets SET pin_hash = $1, has_set_pin = TRUE, updated_at = NOW() WHERE user_id = $2`
	result, err := r.db.Exec(ctx, query, hash, userID)
	if err != nil {
		return fmt.Errorf("failed to set pin: %w", err)
	}
	if result.RowsAffected() == 0 {
		return ErrWalletNotFound
	}
	return nil
}

// DebitAndRecord subtracts amount and inserts the ledger entry in one
// database transaction. The FOR UPDATE lock serializes concurrent spends on
// the same wallet, so two purchases that individually fit the balance but
// not in combination cannot both succeed.
func (r *PostgresRepository) DebitAndRecord(ctx context.Context, userID uuid.UUID, amount decimal.Decimal, entry *models.Transaction) (decimal.Decimal, error) {
	if amount.LessThanOrEqual(decimal.Zero) {
		return decimal.Zero, ErrInvalidAmount
	}

	tx, err := r.db.Begin(ctx)
	if err != nil {
		return decimal.Zero, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	// Duplicate check before the balance check: a replayed tx_ref must get
	// ErrDuplicateReference (and the recorded outcome) even when the balance
	// can no longer cover the amount.
	var exists bool
	if err := tx.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM transactions WHERE tx_ref = $1)`, entry.TxRef).Scan(&exists); err != nil {
		return decimal.Zero, fmt.Errorf("failed to check transaction reference: %w", err)
	}
	if exists {
		return decimal.Zero, ErrDuplicateReference
	}

	var balance decimal.Decimal
	err = tx.QueryRow(ctx, `SELECT balance FROM wallets WHERE user_id = $1 FOR UPDATE`, userID).Scan(&balance)
	if errors.Is(err, pgx.ErrNoRows) {
		return decimal.Zero, ErrWalletNotFound
	}
	if err != nil {
		return decimal.Zero, fmt.Errorf("failed to lock wallet: %w", err)
	}

	if balance.LessThan(amount) {
		return decimal.Zero, ErrInsufficientBalance
	}

	newBalance := balance.Sub(amount)
	if _, err := tx.Exec(ctx, `UPDATE wallets SET balance = $1, updated_at = NOW() WHERE user_id = $2`, newBalance, userID); err != nil {
		return decimal.Zero, fmt.Errorf("failed to debit wallet: %w", err)
	}

	if err := insertTransaction(ctx, tx, entry); err != nil {
		return decimal.Zero, err
	}

	if err := tx.Commit(ctx); err != nil {
		return decimal.Zero, fmt.Errorf("failed to commit debit: %w", err)
	}
	return newBalance, nil
}

// CreditAndRecord adds amount and inserts the ledger entry in one database
// transaction.
func (r *PostgresRepository) CreditAndRecord(ctx context.Context, userID uuid.UUID, amount decimal.Decimal, entry *models.Transaction) (decimal.Decimal, error) {
	if amount.LessThanOrEqual(decimal.Zero) {
		return decimal.Zero, ErrInvalidAmount
	}

	tx, err := r.db.Begin(ctx)
	if err != nil {
		return decimal.Zero, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	var balance decimal.Decimal
	err = tx.QueryRow(ctx, `SELECT balance FROM wallets WHERE user_id = $1 FOR UPDATE`, userID).Scan(&balance)
	if errors.Is(err, pgx.ErrNoRows) {
		return decimal.Zero, ErrWalletNotFound
	}
	if err != nil {
		return decimal.Zero, fmt.Errorf("failed to lock wallet: %w", err)
	}

	newBalance := balance.Add(amount)
	if _, err := tx.Exec(ctx, `UPDATE wallets SET balance = $1, updated_at = NOW() WHERE user_id = $2`, newBalance, userID); err != nil {
		return decimal.Zero, fmt.Errorf("failed to credit wallet: %w", err)
	}

	if err := insertTransaction(ctx, tx, entry); err != nil {
		return decimal.Zero, err
	}

	if err := tx.Commit(ctx); err != nil {
		return decimal.Zero, fmt.Errorf("failed to commit credit: %w", err)
	}
	return newBalance, nil
}

func insertTransaction(ctx context.Context, tx pgx.Tx, entry *models.Transaction) error {
	insertSQL := `
		INSERT INTO transactions (
			id, tx_ref, user_id, type, amount, status,
			payment_method, account_id, note, meta, reversal_of
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`

	if entry.ID == uuid.Nil {
		entry.ID = uuid.New()
	}

	_, err := tx.Exec(ctx, insertSQL,
		entry.ID, entry.TxRef, entry.UserID, entry.Type, entry.Amount, entry.Status,
		entry.PaymentMethod, entry.AccountID, entry.Note, entry.Meta, entry.ReversalOf,
	)
	if err != nil {
		// Unique violation on tx_ref is the idempotency boundary.
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return ErrDuplicateReference
		}
		return fmt.Errorf("failed to insert transaction: %w", err)
	}
	return nil
}

// SettleSuccess flips a pending entry to success. The status guard in the
// WHERE clause makes replays harmless: a second settle of the same reference
// matches zero rows and is reported as a no-op.
func (r *PostgresRepository) SettleSuccess(ctx context.Context, txRef string, vendorRef *string, meta []byte) error {
	updateSQL := `
		UPDATE transactions
		SET status = $1,
		    account_id = COALESCE($2, account_id),
		    meta = COALESCE($3, meta),
		    completed_at = NOW(),
		    updated_at = NOW()
		WHERE tx_ref = $4 AND status = $5`

	result, err := r.db.Exec(ctx, updateSQL, models.StatusSuccess, vendorRef, meta, txRef, models.StatusPending)
	if err != nil {
		return fmt.Errorf("failed to settle transaction: %w", err)
	}
	if result.RowsAffected() > 0 {
		return nil
	}

	existing, err := r.FindTransactionByRef(ctx, txRef)
	if err != nil {
		return err
	}
	if existing.Status == models.StatusSuccess {
		return nil // already settled
	}
	return models.ErrInvalidTransition
}

// SettleFailedAndRefund flips a pending entry to failed and credits the
// amount back to the owning wallet, both in one database transaction.
func (r *PostgresRepository) SettleFailedAndRefund(ctx context.Context, txRef string, reason string) error {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	var (
		userID uuid.UUID
		amount decimal.Decimal
		status models.TransactionStatus
	)
	err = tx.QueryRow(ctx,
		`SELECT user_id, amount, status FROM transactions WHERE tx_ref = $1 FOR UPDATE`, txRef,
	).Scan(&userID, &amount, &status)
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrTransactionNotFound
	}
	if err != nil {
		return fmt.Errorf("failed to lock transaction: %w", err)
	}

	if status == models.StatusFailed {
		return nil // already reversed
	}
	if !models.IsValidTransition(status, models.StatusFailed) {
		return models.ErrInvalidTransition
	}

	updateSQL := `
		UPDATE transactions
		SET status = $1, note = note || ' | ' || $2, completed_at = NOW(), updated_at = NOW()
		WHERE tx_ref = $3`
	if _, err := tx.Exec(ctx, updateSQL, models.StatusFailed, reason, txRef); err != nil {
		return fmt.Errorf("failed to mark transaction failed: %w", err)
	}

	creditSQL := `UPDATE wallets SET balance = balance + $1, updated_at = NOW() WHERE user_id = $2`
	if _, err := tx.Exec(ctx, creditSQL, amount, userID); err != nil {
		return fmt.Errorf("failed to restore balance: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit reversal: %w", err)
	}
	return nil
}

// RefundAndRecord locks the original entry, verifies no reversal exists yet,
// inserts the reversing entry and credits the wallet in one database
// transaction. The FOR UPDATE lock on the original serializes concurrent
// refunds of the same spend.
func (r *PostgresRepository) RefundAndRecord(ctx context.Context, originalTxRef string, entry *models.Transaction) (decimal.Decimal, error) {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return decimal.Zero, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	var (
		userID uuid.UUID
		amount decimal.Decimal
		status models.TransactionStatus
	)
	err = tx.QueryRow(ctx,
		`SELECT user_id, amount, status FROM transactions WHERE tx_ref = $1 FOR UPDATE`, originalTxRef,
	).Scan(&userID, &amount, &status)
	if errors.Is(err, pgx.ErrNoRows) {
		return decimal.Zero, ErrTransactionNotFound
	}
	if err != nil {
		return decimal.Zero, fmt.Errorf("failed to lock transaction: %w", err)
	}
	if status != models.StatusSuccess {
		return decimal.Zero, models.ErrInvalidTransition
	}

	var reversed bool
	if err := tx.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM transactions WHERE reversal_of = $1)`, originalTxRef).Scan(&reversed); err != nil {
		return decimal.Zero, fmt.Errorf("failed to check for existing reversal: %w", err)
	}
	if reversed {
		return decimal.Zero, ErrAlreadyReversed
	}

	var balance decimal.Decimal
	err = tx.QueryRow(ctx, `SELECT balance FROM wallets WHERE user_id = $1 FOR UPDATE`, userID).Scan(&balance)
	if errors.Is(err, pgx.ErrNoRows) {
		return decimal.Zero, ErrWalletNotFound
	}
	if err != nil {
		return decimal.Zero, fmt.Errorf("failed to lock wallet: %w", err)
	}

	newBalance := balance.Add(amount)
	if _, err := tx.Exec(ctx, `UPDATE wallets SET balance = $1, updated_at = NOW() WHERE user_id = $2`, newBalance, userID); err != nil {
		return decimal.Zero, fmt.Errorf("failed to credit wallet: %w", err)
	}

	if err := insertTransaction(ctx, tx, entry); err != nil {
		return decimal.Zero, err
	}

	if err := tx.Commit(ctx); err != nil {
		return decimal.Zero, fmt.Errorf("failed to commit refund: %w", err)
	}
	return newBalance, nil
}

func (r *PostgresRepository) FindTransactionByRef(ctx context.Context, txRef string) (*models.Transaction, error) {
	query := `SELECT ` + transactionColumns + ` FROM transactions WHERE tx_ref = $1`
	return r.scanTransaction(r.db.QueryRow(ctx, query, txRef))
}

func (r *PostgresRepository) FindReversalOf(ctx context.Context, txRef string) (*models.Transaction, error) {
	query := `SELECT ` + transactionColumns + ` FROM transactions WHERE reversal_of = $1`
	return r.scanTransaction(r.db.QueryRow(ctx, query, txRef))
}

func (r *PostgresRepository) ListPendingOlderThan(ctx context.Context, cutoff time.Time, limit int) ([]models.Transaction, error) {
	query := `SELECT ` + transactionColumns + `
	          FROM transactions
	          WHERE status = $1 AND created_at < $2 AND type != $3
	          ORDER BY created_at ASC
	          LIMIT $4`

	rows, err := r.db.Query(ctx, query, models.StatusPending, cutoff, models.TypeFunding, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list pending transactions: %w", err)
	}
	defer rows.Close()

	var entries []models.Transaction
	for rows.Next() {
		var t models.Transaction
		if err := rows.Scan(
			&t.ID, &t.TxRef, &t.UserID, &t.Type, &t.Amount, &t.Status, &t.PaymentMethod,
			&t.AccountID, &t.Note, &t.Meta, &t.ReversalOf, &t.CreatedAt, &t.UpdatedAt, &t.CompletedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan transaction: %w", err)
		}
		entries = append(entries, t)
	}
	return entries, rows.Err()
}

func (r *PostgresRepository) FindUserByAccountRef(ctx context.Context, accountRef string) (uuid.UUID, error) {
	query := `SELECT user_id FROM funding_accounts WHERE account_ref = $1`

	var userID uuid.UUID
	err := r.db.QueryRow(ctx, query, accountRef).Scan(&userID)
	if errors.Is(err, pgx.ErrNoRows) {
		return uuid.Nil, ErrAccountNotFound
	}
	if err != nil {
		return uuid.Nil, fmt.Errorf("failed to resolve funding account: %w", err)
	}
	return userID, nil
}

func (r *PostgresRepository) GetAppConfig(ctx context.Context) (*models.AppConfig, error) {
	query := `SELECT stop_all_transactions, stop_some_transactions, transaction_limit, maintenance, updated_at
	          FROM app_config LIMIT 1`

	var (
		cfg      models.AppConfig
		disabled []string
	)
	err := r.db.QueryRow(ctx, query).Scan(
		&cfg.StopAllTransactions, &disabled, &cfg.TransactionLimit, &cfg.Maintenance, &cfg.UpdatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to load app config: %w", err)
	}
	for _, d := range disabled {
		cfg.StopSomeTransactions = append(cfg.StopSomeTransactions, models.TransactionType(d))
	}
	return &cfg, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func (r *PostgresRepository) scanTransaction(row rowScanner) (*models.Transaction, error) {
	var t models.Transaction
	err := row.Scan(
		&t.ID, &t.TxRef, &t.UserID, &t.Type, &t.Amount, &t.Status, &t.PaymentMethod,
		&t.AccountID, &t.Note, &t.Meta, &t.ReversalOf, &t.CreatedAt, &t.UpdatedAt, &t.CompletedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrTransactionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan transaction: %w", err)
	}
	return &t, nil
}
