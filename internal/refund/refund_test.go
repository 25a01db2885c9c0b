package refund

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vtupay/wallet-engine/internal/models"
	"github.com/vtupay/wallet-engine/internal/store"
	"github.com/vtupay/wallet-engine/internal/store/storetest"
)

func seedSpend(t *testing.T, repo *storetest.FakeRepository, userID uuid.UUID, amount int64, status models.TransactionStatus) string {
	t.Helper()
	txRef := uuid.NewString()
	entry := &models.Transaction{
		TxRef:         txRef,
		UserID:        userID,
		Type:          models.TypeAirtime,
		Amount:        decimal.NewFromInt(amount),
		Status:        models.StatusPending,
		PaymentMethod: models.MethodOwnAccount,
		Note:          "airtime purchase",
	}
	_, err := repo.DebitAndRecord(context.Background(), userID, decimal.NewFromInt(amount), entry)
	require.NoError(t, err)
	if status == models.StatusSuccess {
		require.NoError(t, repo.SettleSuccess(context.Background(), txRef, nil, nil))
	}
	return txRef
}

func newEngine(t *testing.T, balance int64) (*Engine, *storetest.FakeRepository, uuid.UUID) {
	t.Helper()
	repo := storetest.NewFakeRepository()
	userID := uuid.New()
	repo.SeedWallet(userID, decimal.NewFromInt(balance), "")
	return NewEngine(repo), repo, userID
}

func TestRefundRestoresBalanceAndAppends(t *testing.T) {
	engine, repo, userID := newEngine(t, 500)
	txRef := seedSpend(t, repo, userID, 200, models.StatusSuccess)
	require.True(t, repo.Balance(userID).Equal(decimal.NewFromInt(300)))

	result, err := engine.Refund(context.Background(), txRef)
	require.NoError(t, err)

	assert.True(t, result.NewBalance.Equal(decimal.NewFromInt(500)))
	assert.True(t, repo.Balance(userID).Equal(decimal.NewFromInt(500)))

	// The original entry is untouched; a new reversing entry exists.
	original, err := repo.FindTransactionByRef(context.Background(), txRef)
	require.NoError(t, err)
	assert.Equal(t, models.StatusSuccess, original.Status)
	assert.True(t, original.Amount.Equal(decimal.NewFromInt(200)))

	reversal, err := repo.FindReversalOf(context.Background(), txRef)
	require.NoError(t, err)
	assert.Equal(t, models.TypeRefund, reversal.Type)
	assert.True(t, reversal.Amount.Equal(decimal.NewFromInt(200)))
	assert.Equal(t, result.RefundRef, reversal.TxRef)
}

func TestRefundTwiceRejected(t *testing.T) {
	engine, repo, userID := newEngine(t, 500)
	txRef := seedSpend(t, repo, userID, 200, models.StatusSuccess)

	_, err := engine.Refund(context.Background(), txRef)
	require.NoError(t, err)

	_, err = engine.Refund(context.Background(), txRef)
	require.ErrorIs(t, err, ErrRefundAlreadyApplied)
	assert.True(t, repo.Balance(userID).Equal(decimal.NewFromInt(500)),
		"second refund must not credit again")
}

func TestRefundConcurrentOnlyOneCredits(t *testing.T) {
	engine, repo, userID := newEngine(t, 500)
	txRef := seedSpend(t, repo, userID, 200, models.StatusSuccess)
	require.True(t, repo.Balance(userID).Equal(decimal.NewFromInt(300)))

	const racers = 8
	var wg sync.WaitGroup
	results := make([]error, racers)
	for i := 0; i < racers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := engine.Refund(context.Background(), txRef)
			results[i] = err
		}(i)
	}
	wg.Wait()

	var applied, rejected int
	for _, err := range results {
		switch {
		case err == nil:
			applied++
		case errors.Is(err, ErrRefundAlreadyApplied):
			rejected++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}

	assert.Equal(t, 1, applied, "exactly one of the racing refunds may apply")
	assert.Equal(t, racers-1, rejected)
	assert.True(t, repo.Balance(userID).Equal(decimal.NewFromInt(500)),
		"the original amount is credited back exactly once")

	var reversals int
	for _, tx := range repo.Transactions() {
		if tx.ReversalOf != nil && *tx.ReversalOf == txRef {
			reversals++
		}
	}
	assert.Equal(t, 1, reversals)
}

func TestRefundOfFundingRejected(t *testing.T) {
	engine, repo, userID := newEngine(t, 100)

	txRef := uuid.NewString()
	_, err := repo.CreditAndRecord(context.Background(), userID, decimal.NewFromInt(1000), &models.Transaction{
		TxRef:         txRef,
		UserID:        userID,
		Type:          models.TypeFunding,
		Amount:        decimal.NewFromInt(1000),
		Status:        models.StatusSuccess,
		PaymentMethod: models.MethodDedicatedAccount,
	})
	require.NoError(t, err)

	_, err = engine.Refund(context.Background(), txRef)
	require.ErrorIs(t, err, ErrNotRefundable,
		"crediting back a funding credit would pay the user twice")
	assert.True(t, repo.Balance(userID).Equal(decimal.NewFromInt(1100)))
}

func TestRefundOfPendingRejected(t *testing.T) {
	engine, repo, userID := newEngine(t, 500)
	txRef := seedSpend(t, repo, userID, 200, models.StatusPending)

	_, err := engine.Refund(context.Background(), txRef)
	require.ErrorIs(t, err, ErrNotRefundable)
}

func TestRefundOfRefundRejected(t *testing.T) {
	engine, repo, userID := newEngine(t, 500)
	txRef := seedSpend(t, repo, userID, 200, models.StatusSuccess)

	result, err := engine.Refund(context.Background(), txRef)
	require.NoError(t, err)

	_, err = engine.Refund(context.Background(), result.RefundRef)
	require.ErrorIs(t, err, ErrNotRefundable)
}

func TestRefundUnknownRef(t *testing.T) {
	engine, _, _ := newEngine(t, 500)

	_, err := engine.Refund(context.Background(), "missing-ref")
	require.ErrorIs(t, err, store.ErrTransactionNotFound)
}

func TestResolvePendingToSuccessKeepsDebit(t *testing.T) {
	engine, repo, userID := newEngine(t, 500)
	txRef := seedSpend(t, repo, userID, 200, models.StatusPending)

	vendorRef := "VND-55"
	require.NoError(t, engine.ResolvePending(context.Background(), txRef, OutcomeSuccess, &vendorRef, ""))

	entry, err := repo.FindTransactionByRef(context.Background(), txRef)
	require.NoError(t, err)
	assert.Equal(t, models.StatusSuccess, entry.Status)
	assert.True(t, repo.Balance(userID).Equal(decimal.NewFromInt(300)))
}

func TestResolvePendingToFailedRestoresBalance(t *testing.T) {
	engine, repo, userID := newEngine(t, 500)
	txRef := seedSpend(t, repo, userID, 200, models.StatusPending)

	require.NoError(t, engine.ResolvePending(context.Background(), txRef, OutcomeFailed, nil, "vendor reversed"))

	entry, err := repo.FindTransactionByRef(context.Background(), txRef)
	require.NoError(t, err)
	assert.Equal(t, models.StatusFailed, entry.Status)
	assert.True(t, repo.Balance(userID).Equal(decimal.NewFromInt(500)))
}

func TestResolveSettledTransactionRejected(t *testing.T) {
	engine, repo, userID := newEngine(t, 500)
	txRef := seedSpend(t, repo, userID, 200, models.StatusSuccess)

	err := engine.ResolvePending(context.Background(), txRef, OutcomeFailed, nil, "late failure")
	require.ErrorIs(t, err, models.ErrInvalidTransition)
	assert.True(t, repo.Balance(userID).Equal(decimal.NewFromInt(300)),
		"a settled success must not be silently reversed")
}
