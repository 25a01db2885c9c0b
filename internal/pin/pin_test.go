package pin

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vtupay/wallet-engine/internal/store"
	"github.com/vtupay/wallet-engine/internal/store/storetest"
)

func TestSetAndVerify(t *testing.T) {
	repo := storetest.NewFakeRepository()
	userID := uuid.New()
	repo.SeedWallet(userID, decimal.Zero, "")
	svc := NewService(repo)

	require.NoError(t, svc.Set(context.Background(), userID, "4321"))
	assert.NoError(t, svc.Verify(context.Background(), userID, "4321"))
	assert.ErrorIs(t, svc.Verify(context.Background(), userID, "0000"), ErrPinMismatch)
}

func TestVerifyWithoutPinSet(t *testing.T) {
	repo := storetest.NewFakeRepository()
	userID := uuid.New()
	repo.SeedWallet(userID, decimal.Zero, "")
	svc := NewService(repo)

	assert.ErrorIs(t, svc.Verify(context.Background(), userID, "1234"), ErrPinNotSet)
}

func TestVerifyUnknownWallet(t *testing.T) {
	svc := NewService(storetest.NewFakeRepository())

	err := svc.Verify(context.Background(), uuid.New(), "1234")
	assert.ErrorIs(t, err, store.ErrWalletNotFound)
}

func TestSetRejectsShortPin(t *testing.T) {
	repo := storetest.NewFakeRepository()
	userID := uuid.New()
	repo.SeedWallet(userID, decimal.Zero, "")
	svc := NewService(repo)

	assert.Error(t, svc.Set(context.Background(), userID, "12"))
}

func TestHashNeverStoresCleartext(t *testing.T) {
	hash, err := Hash("1234")
	require.NoError(t, err)
	assert.NotContains(t, hash, "1234")
}
