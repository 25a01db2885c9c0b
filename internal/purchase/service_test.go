package purchase

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vtupay/wallet-engine/internal/mailer"
	"github.com/vtupay/wallet-engine/internal/models"
	"github.com/vtupay/wallet-engine/internal/pin"
	"github.com/vtupay/wallet-engine/internal/provider"
	"github.com/vtupay/wallet-engine/internal/store"
	"github.com/vtupay/wallet-engine/internal/store/storetest"
	"github.com/vtupay/wallet-engine/internal/wallet"
)

type fakeProvider struct {
	mu     sync.Mutex
	calls  int
	result *provider.FulfillResult
	err    error
}

func (f *fakeProvider) Fulfill(_ context.Context, _ provider.FulfillRequest) (*provider.FulfillResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return f.result, nil
}

func (f *fakeProvider) QueryStatus(_ context.Context, _ string) (*provider.FulfillResult, error) {
	return f.result, f.err
}

func (f *fakeProvider) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

type fakeContacts struct {
	mu      sync.Mutex
	entries map[string]string
}

func (f *fakeContacts) Upsert(_ context.Context, userID uuid.UUID, kind models.TransactionType, recipient string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.entries == nil {
		f.entries = make(map[string]string)
	}
	f.entries[userID.String()+":"+string(kind)] = recipient
	return nil
}

type fakeReceipts struct {
	mu       sync.Mutex
	receipts []mailer.Receipt
}

func (f *fakeReceipts) DispatchReceipt(_ context.Context, r mailer.Receipt) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.receipts = append(f.receipts, r)
	return nil
}

type fixture struct {
	repo     *storetest.FakeRepository
	prov     *fakeProvider
	contacts *fakeContacts
	receipts *fakeReceipts
	svc      *Service
	userID   uuid.UUID
}

const testPin = "1234"

func newFixture(t *testing.T, balance int64) *fixture {
	t.Helper()

	repo := storetest.NewFakeRepository()
	userID := uuid.New()
	hash, err := pin.Hash(testPin)
	require.NoError(t, err)
	repo.SeedWallet(userID, decimal.NewFromInt(balance), hash)

	prov := &fakeProvider{result: &provider.FulfillResult{
		Status:    provider.OutcomeSuccess,
		VendorRef: "VND-001",
		Message:   "delivered",
	}}
	fc := &fakeContacts{}
	fr := &fakeReceipts{}

	guard := wallet.NewGuard(repo)
	svc := NewService(repo, guard, pin.NewService(repo), prov, fc, fr, time.Second)

	return &fixture{repo: repo, prov: prov, contacts: fc, receipts: fr, svc: svc, userID: userID}
}

func (fx *fixture) request(kind models.TransactionType, amount int64) Request {
	return Request{
		UserID:    fx.userID,
		Email:     "user@example.com",
		Kind:      kind,
		Amount:    decimal.NewFromInt(amount),
		Recipient: "08012345678",
		ServiceID: "mtn",
		Pin:       testPin,
	}
}

func TestPurchaseSuccess(t *testing.T) {
	fx := newFixture(t, 500)

	result, err := fx.svc.Purchase(context.Background(), fx.request(models.TypeAirtime, 200))
	require.NoError(t, err)

	assert.Equal(t, StateSettledSuccess, result.State)
	assert.Equal(t, models.StatusSuccess, result.Status)
	assert.Equal(t, "VND-001", result.VendorRef)
	assert.True(t, fx.repo.Balance(fx.userID).Equal(decimal.NewFromInt(300)),
		"balance should decrease by exactly the purchase amount")

	txns := fx.repo.Transactions()
	require.Len(t, txns, 1)
	assert.Equal(t, models.TypeAirtime, txns[0].Type)
	assert.Equal(t, models.StatusSuccess, txns[0].Status)
	assert.True(t, txns[0].Amount.Equal(decimal.NewFromInt(200)))

	assert.Equal(t, "08012345678", fx.contacts.entries[fx.userID.String()+":airtime"])
}

func TestPurchaseVendorFailureReversesDebit(t *testing.T) {
	fx := newFixture(t, 500)
	fx.prov.err = provider.ErrVendorRejected

	result, err := fx.svc.Purchase(context.Background(), fx.request(models.TypeData, 200))
	require.Error(t, err)
	require.NotNil(t, result)

	assert.Equal(t, StateSettledFailed, result.State)
	assert.True(t, fx.repo.Balance(fx.userID).Equal(decimal.NewFromInt(500)),
		"failed purchase must be net zero on the balance")

	txns := fx.repo.Transactions()
	require.Len(t, txns, 1)
	assert.Equal(t, models.StatusFailed, txns[0].Status, "failed attempts are persisted for audit")
}

func TestPurchaseWrongPinNeverReachesVendor(t *testing.T) {
	fx := newFixture(t, 500)

	req := fx.request(models.TypeAirtime, 100)
	req.Pin = "9999"

	_, err := fx.svc.Purchase(context.Background(), req)
	require.ErrorIs(t, err, pin.ErrPinMismatch)

	assert.Equal(t, 0, fx.prov.callCount(), "unauthorized request must not hit the vendor")
	assert.True(t, fx.repo.Balance(fx.userID).Equal(decimal.NewFromInt(500)))
	assert.Empty(t, fx.repo.Transactions())
}

func TestPurchasePinNotSet(t *testing.T) {
	fx := newFixture(t, 500)
	noPinUser := uuid.New()
	fx.repo.SeedWallet(noPinUser, decimal.NewFromInt(500), "")

	req := fx.request(models.TypeAirtime, 100)
	req.UserID = noPinUser

	_, err := fx.svc.Purchase(context.Background(), req)
	require.ErrorIs(t, err, pin.ErrPinNotSet)
	assert.Equal(t, 0, fx.prov.callCount())
}

func TestPurchaseInsufficientBalance(t *testing.T) {
	fx := newFixture(t, 50)

	_, err := fx.svc.Purchase(context.Background(), fx.request(models.TypeAirtime, 100))
	require.ErrorIs(t, err, store.ErrInsufficientBalance)

	assert.Equal(t, 0, fx.prov.callCount(), "reservation failure must precede the vendor call")
	assert.True(t, fx.repo.Balance(fx.userID).Equal(decimal.NewFromInt(50)))
	assert.Empty(t, fx.repo.Transactions())
}

func TestPurchaseGating(t *testing.T) {
	tests := []struct {
		name    string
		cfg     models.AppConfig
		kind    models.TransactionType
		amount  int64
		wantErr error
	}{
		{
			name:    "maintenance mode",
			cfg:     models.AppConfig{Maintenance: true},
			kind:    models.TypeAirtime,
			amount:  100,
			wantErr: ErrSystemUnderMaintenance,
		},
		{
			name:    "all transactions stopped",
			cfg:     models.AppConfig{StopAllTransactions: true},
			kind:    models.TypeAirtime,
			amount:  100,
			wantErr: ErrSystemUnderMaintenance,
		},
		{
			name: "type disabled",
			cfg: models.AppConfig{
				StopSomeTransactions: []models.TransactionType{models.TypeData},
			},
			kind:    models.TypeData,
			amount:  100,
			wantErr: ErrTransactionTypeDisabled,
		},
		{
			name:    "limit exceeded",
			cfg:     models.AppConfig{TransactionLimit: decimal.NewFromInt(150)},
			kind:    models.TypeAirtime,
			amount:  200,
			wantErr: ErrTransactionLimitExceeded,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fx := newFixture(t, 1000)
			fx.repo.SetConfig(tt.cfg)

			_, err := fx.svc.Purchase(context.Background(), fx.request(tt.kind, tt.amount))
			require.ErrorIs(t, err, tt.wantErr)

			assert.Equal(t, 0, fx.prov.callCount())
			assert.True(t, fx.repo.Balance(fx.userID).Equal(decimal.NewFromInt(1000)))
			assert.Empty(t, fx.repo.Transactions())
		})
	}
}

func TestPurchaseNonSpendTypeRejected(t *testing.T) {
	fx := newFixture(t, 1000)

	_, err := fx.svc.Purchase(context.Background(), fx.request(models.TypeFunding, 100))
	require.ErrorIs(t, err, ErrTransactionTypeDisabled)
	assert.Equal(t, 0, fx.prov.callCount())
}

func TestPurchasePendingKeepsDebit(t *testing.T) {
	fx := newFixture(t, 500)
	fx.prov.result = &provider.FulfillResult{
		Status:  provider.OutcomePending,
		Message: "processing",
	}

	result, err := fx.svc.Purchase(context.Background(), fx.request(models.TypeBill, 200))
	require.NoError(t, err)

	assert.Equal(t, StateSettledPending, result.State)
	assert.Equal(t, models.StatusPending, result.Status)
	assert.True(t, fx.repo.Balance(fx.userID).Equal(decimal.NewFromInt(300)),
		"pending outcome keeps the debit until reconciliation")

	txns := fx.repo.Transactions()
	require.Len(t, txns, 1)
	assert.Equal(t, models.StatusPending, txns[0].Status)
}

func TestPurchaseConcurrentDebitsCannotOverspend(t *testing.T) {
	fx := newFixture(t, 100)

	var wg sync.WaitGroup
	results := make([]error, 2)
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := fx.svc.Purchase(context.Background(), fx.request(models.TypeAirtime, 80))
			results[i] = err
		}(i)
	}
	wg.Wait()

	var successes, insufficient int
	for _, err := range results {
		switch {
		case err == nil:
			successes++
		case errors.Is(err, store.ErrInsufficientBalance):
			insufficient++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}

	assert.Equal(t, 1, successes, "exactly one of the racing purchases may succeed")
	assert.Equal(t, 1, insufficient)
	assert.True(t, fx.repo.Balance(fx.userID).Equal(decimal.NewFromInt(20)),
		"final balance reflects exactly one 80 debit")
}

func TestPurchaseReplaySameRefHasNoNewEffect(t *testing.T) {
	fx := newFixture(t, 500)

	req := fx.request(models.TypeAirtime, 200)
	req.TxRef = uuid.NewString()

	first, err := fx.svc.Purchase(context.Background(), req)
	require.NoError(t, err)
	require.Equal(t, models.StatusSuccess, first.Status)

	replay, err := fx.svc.Purchase(context.Background(), req)
	require.NoError(t, err)

	assert.Equal(t, first.TxRef, replay.TxRef)
	assert.Equal(t, models.StatusSuccess, replay.Status)
	assert.Equal(t, 1, fx.prov.callCount(), "replayed reference must not re-invoke the vendor")
	assert.True(t, fx.repo.Balance(fx.userID).Equal(decimal.NewFromInt(300)),
		"replay must not double-charge")
	assert.Len(t, fx.repo.Transactions(), 1)
}

func TestPurchaseReplayAfterBalanceDrained(t *testing.T) {
	fx := newFixture(t, 200)

	req := fx.request(models.TypeAirtime, 200)
	req.TxRef = uuid.NewString()

	first, err := fx.svc.Purchase(context.Background(), req)
	require.NoError(t, err)
	require.Equal(t, models.StatusSuccess, first.Status)
	require.True(t, fx.repo.Balance(fx.userID).Equal(decimal.Zero))

	// Even with the wallet empty, a replayed reference must get the recorded
	// outcome, not an insufficient-balance rejection.
	replay, err := fx.svc.Purchase(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, models.StatusSuccess, replay.Status)
	assert.Equal(t, 1, fx.prov.callCount())
	assert.True(t, fx.repo.Balance(fx.userID).Equal(decimal.Zero))
}

func TestPurchaseSettleWriteRetriesAfterVendorSuccess(t *testing.T) {
	fx := newFixture(t, 500)
	fx.repo.FailSettleSuccess = 1

	result, err := fx.svc.Purchase(context.Background(), fx.request(models.TypeAirtime, 200))
	require.NoError(t, err)

	assert.Equal(t, models.StatusSuccess, result.Status)
	assert.Equal(t, 1, fx.prov.callCount(), "the ledger write is retried, never the vendor call")
}

func TestPurchaseSettleWriteExhaustedLeavesPending(t *testing.T) {
	fx := newFixture(t, 500)
	fx.repo.FailSettleSuccess = 10

	result, err := fx.svc.Purchase(context.Background(), fx.request(models.TypeAirtime, 200))
	require.NoError(t, err)

	assert.Equal(t, StateSettledPending, result.State)
	assert.Equal(t, models.StatusPending, result.Status)
	assert.True(t, fx.repo.Balance(fx.userID).Equal(decimal.NewFromInt(300)),
		"debit stands; reconciliation will settle the row")
	assert.Equal(t, 1, fx.prov.callCount())
}

func TestPurchaseExamDispatchesReceipt(t *testing.T) {
	fx := newFixture(t, 500)

	req := fx.request(models.TypeExam, 150)
	_, err := fx.svc.Purchase(context.Background(), req)
	require.NoError(t, err)

	require.Len(t, fx.receipts.receipts, 1)
	assert.Equal(t, "user@example.com", fx.receipts.receipts[0].To)
}

func TestPurchaseAirtimeDoesNotDispatchReceipt(t *testing.T) {
	fx := newFixture(t, 500)

	_, err := fx.svc.Purchase(context.Background(), fx.request(models.TypeAirtime, 100))
	require.NoError(t, err)
	assert.Empty(t, fx.receipts.receipts)
}
