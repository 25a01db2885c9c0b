// Package pin implements the transaction PIN check that authorizes spends,
// independent of session authentication. The stored PIN is a bcrypt hash;
// cleartext never leaves this package.
package pin

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/vtupay/wallet-engine/internal/store"
)

var (
	ErrPinNotSet   = errors.New("transaction pin has not been set")
	ErrPinMismatch = errors.New("transaction pin is incorrect")
)

const cost = 12 // bcrypt cost factor

// Service verifies and manages transaction PINs.
type Service struct {
	repo store.Repository
}

func NewService(repo store.Repository) *Service {
	return &Service{repo: repo}
}

// Verify checks the supplied PIN against the stored hash. Fails closed:
// callers must not proceed to reserve funds or invoke a vendor on any error.
func (s *Service) Verify(ctx context.Context, userID uuid.UUID, suppliedPin string) error {
	w, err := s.repo.GetWallet(ctx, userID)
	if err != nil {
		return err
	}
	if !w.HasSetPin || w.PinHash == nil {
		return ErrPinNotSet
	}
	if bcrypt.CompareHashAndPassword([]byte(*w.PinHash), []byte(suppliedPin)) != nil {
		return ErrPinMismatch
	}
	return nil
}

// Set hashes and stores a new transaction PIN.
func (s *Service) Set(ctx context.Context, userID uuid.UUID, newPin string) error {
	if len(newPin) < 4 {
		return fmt.Errorf("pin must be at least 4 digits")
	}
	hash, err := Hash(newPin)
	if err != nil {
		return fmt.Errorf("failed to hash pin: %w", err)
	}
	return s.repo.SetPinHash(ctx, userID, hash)
}

// Hash produces a bcrypt hash of a PIN.
func Hash(pin string) (string, error) {
	bytes, err := bcrypt.GenerateFromPassword([]byte(pin), cost)
	return string(bytes), err
}
