// Package purchase implements the orchestrator coordinating a spend:
// authorize, reserve funds, call the fulfillment provider, settle. Ordering
// is strict — PIN check before reservation, reservation before the vendor
// call — so an unauthorized request never reaches a paid upstream API and a
// user who failed authorization is never charged.
package purchase

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"github.com/vtupay/wallet-engine/internal/mailer"
	"github.com/vtupay/wallet-engine/internal/models"
	"github.com/vtupay/wallet-engine/internal/pin"
	"github.com/vtupay/wallet-engine/internal/provider"
	"github.com/vtupay/wallet-engine/internal/store"
	"github.com/vtupay/wallet-engine/internal/wallet"
)

var (
	ErrSystemUnderMaintenance  = errors.New("transactions are temporarily suspended")
	ErrTransactionTypeDisabled = errors.New("this transaction type is currently disabled")
	ErrTransactionLimitExceeded = errors.New("amount exceeds the single-transaction limit")
)

const (
	settleRetries      = 3
	settleRetryBackoff = 200 * time.Millisecond
)

// ContactRecorder records the beneficiary of a successful purchase.
// Best-effort; errors are logged, never propagated.
type ContactRecorder interface {
	Upsert(ctx context.Context, userID uuid.UUID, kind models.TransactionType, recipient string) error
}

// ReceiptDispatcher hands a settled purchase off for e-mail notification.
type ReceiptDispatcher interface {
	DispatchReceipt(ctx context.Context, r mailer.Receipt) error
}

// Request is one user-initiated spend.
type Request struct {
	UserID    uuid.UUID
	Email     string
	Kind      models.TransactionType
	Amount    decimal.Decimal
	Recipient string // phone number, meter number or exam profile
	ServiceID string // vendor product identifier
	Pin       string
	Note      string
	// TxRef is the client-supplied idempotency key. Left empty, the
	// orchestrator generates one; a retry that replays the same ref gets the
	// recorded outcome back with no new side effects.
	TxRef string
}

// Result is the settled (or pending) outcome of a purchase attempt.
type Result struct {
	TxRef      string
	State      State
	Status     models.TransactionStatus
	VendorRef  string
	Message    string
	NewBalance decimal.Decimal
}

// Service is the purchase orchestrator.
type Service struct {
	repo      store.Repository
	guard     *wallet.Guard
	pins      *pin.Service
	prov      provider.Provider
	contacts  ContactRecorder
	receipts  ReceiptDispatcher
	fulfillTO time.Duration
}

func NewService(repo store.Repository, guard *wallet.Guard, pins *pin.Service, prov provider.Provider, contacts ContactRecorder, receipts ReceiptDispatcher, fulfillTimeout time.Duration) *Service {
	if fulfillTimeout == 0 {
		fulfillTimeout = 45 * time.Second
	}
	return &Service{
		repo:      repo,
		guard:     guard,
		pins:      pins,
		prov:      prov,
		contacts:  contacts,
		receipts:  receipts,
		fulfillTO: fulfillTimeout,
	}
}

// Purchase runs one spend through the state machine. Validation-class
// failures (gating, PIN, insufficient balance) abort with no side effect.
// Once funds are reserved the attempt can only settle to success, failed
// (with the debit reversed) or pending (debit stands until reconciliation).
func (s *Service) Purchase(ctx context.Context, req Request) (*Result, error) {
	att := newAttempt()

	if err := s.authorize(ctx, req); err != nil {
		return nil, err
	}
	if err := att.transition(StateAuthorized); err != nil {
		return nil, err
	}

	txRef := req.TxRef
	if txRef == "" {
		txRef = uuid.NewString()
	}

	entry := &models.Transaction{
		TxRef:         txRef,
		UserID:        req.UserID,
		Type:          req.Kind,
		Amount:        req.Amount,
		Status:        models.StatusPending,
		PaymentMethod: models.MethodOwnAccount,
		Note:          req.Note,
	}

	newBalance, err := s.guard.Reserve(ctx, req.UserID, req.Amount, entry)
	if errors.Is(err, store.ErrDuplicateReference) {
		return s.replayResult(ctx, txRef)
	}
	if err != nil {
		return nil, err
	}
	if err := att.transition(StateReserved); err != nil {
		return nil, err
	}

	if err := att.transition(StateFulfilling); err != nil {
		return nil, err
	}

	fctx, cancel := context.WithTimeout(ctx, s.fulfillTO)
	defer cancel()
	outcome, ferr := s.prov.Fulfill(fctx, provider.FulfillRequest{
		Kind:           req.Kind,
		Amount:         req.Amount,
		Recipient:      req.Recipient,
		ServiceID:      req.ServiceID,
		IdempotencyRef: txRef,
	})

	if ferr != nil {
		return s.settleFailed(ctx, att, txRef, req, newBalance, ferr)
	}

	switch outcome.Status {
	case provider.OutcomeSuccess:
		return s.settleSuccess(ctx, att, txRef, req, newBalance, outcome)
	case provider.OutcomePending:
		if err := att.transition(StateSettledPending); err != nil {
			return nil, err
		}
		log.Info().Str("tx_ref", txRef).Str("kind", string(req.Kind)).
			Msg("vendor outcome pending, awaiting reconciliation")
		return &Result{
			TxRef:      txRef,
			State:      att.state,
			Status:     models.StatusPending,
			VendorRef:  outcome.VendorRef,
			Message:    outcome.Message,
			NewBalance: newBalance,
		}, nil
	default:
		return s.settleFailed(ctx, att, txRef, req, newBalance, fmt.Errorf("%w: %s", provider.ErrVendorRejected, outcome.Message))
	}
}

// authorize applies the app-wide gates and the PIN check, in that order,
// before any state is touched.
func (s *Service) authorize(ctx context.Context, req Request) error {
	if !models.IsSpendType(req.Kind) {
		return ErrTransactionTypeDisabled
	}
	if req.Amount.LessThanOrEqual(decimal.Zero) {
		return store.ErrInvalidAmount
	}

	cfg, err := s.repo.GetAppConfig(ctx)
	if err != nil {
		return fmt.Errorf("failed to load spend controls: %w", err)
	}
	if cfg.Maintenance || cfg.StopAllTransactions {
		return ErrSystemUnderMaintenance
	}
	if cfg.TypeDisabled(req.Kind) {
		return ErrTransactionTypeDisabled
	}
	if cfg.TransactionLimit.IsPositive() && req.Amount.GreaterThan(cfg.TransactionLimit) {
		return ErrTransactionLimitExceeded
	}

	return s.pins.Verify(ctx, req.UserID, req.Pin)
}

func (s *Service) settleSuccess(ctx context.Context, att *attempt, txRef string, req Request, newBalance decimal.Decimal, outcome *provider.FulfillResult) (*Result, error) {
	var vendorRef *string
	if outcome.VendorRef != "" {
		vendorRef = &outcome.VendorRef
	}

	// The vendor has delivered; the ledger write must land. Retry the write,
	// never the vendor call.
	var err error
	for i := 0; i < settleRetries; i++ {
		if err = s.repo.SettleSuccess(ctx, txRef, vendorRef, outcome.Raw); err == nil {
			break
		}
		log.Warn().Err(err).Str("tx_ref", txRef).Int("attempt", i+1).
			Msg("settle write failed after vendor success, retrying")
		time.Sleep(settleRetryBackoff << i)
	}
	if err != nil {
		// Vendor success with no durable success row. Leave the entry pending
		// for reconciliation instead of guessing.
		log.Error().Err(err).Str("tx_ref", txRef).
			Msg("could not persist settlement after vendor success; left pending for reconciliation")
		if terr := att.transition(StateSettledPending); terr != nil {
			return nil, terr
		}
		return &Result{
			TxRef:      txRef,
			State:      att.state,
			Status:     models.StatusPending,
			VendorRef:  outcome.VendorRef,
			Message:    "settlement deferred to reconciliation",
			NewBalance: newBalance,
		}, nil
	}

	if err := att.transition(StateSettledSuccess); err != nil {
		return nil, err
	}

	s.recordContact(ctx, req)
	s.dispatchReceipt(ctx, req, outcome)

	return &Result{
		TxRef:      txRef,
		State:      att.state,
		Status:     models.StatusSuccess,
		VendorRef:  outcome.VendorRef,
		Message:    outcome.Message,
		NewBalance: newBalance,
	}, nil
}

func (s *Service) settleFailed(ctx context.Context, att *attempt, txRef string, req Request, reservedBalance decimal.Decimal, cause error) (*Result, error) {
	if err := s.repo.SettleFailedAndRefund(ctx, txRef, cause.Error()); err != nil {
		log.Error().Err(err).Str("tx_ref", txRef).
			Msg("failed to reverse reservation after vendor failure")
		return nil, fmt.Errorf("failed to reverse reservation for %s: %w", txRef, err)
	}
	if err := att.transition(StateSettledFailed); err != nil {
		return nil, err
	}

	log.Info().Str("tx_ref", txRef).Str("kind", string(req.Kind)).Err(cause).
		Msg("purchase failed, reservation reversed")

	return &Result{
		TxRef:      txRef,
		State:      att.state,
		Status:     models.StatusFailed,
		Message:    cause.Error(),
		NewBalance: reservedBalance.Add(req.Amount),
	}, cause
}

// replayResult returns the recorded outcome for an already-seen tx_ref
// without re-running any side effects.
func (s *Service) replayResult(ctx context.Context, txRef string) (*Result, error) {
	existing, err := s.repo.FindTransactionByRef(ctx, txRef)
	if err != nil {
		return nil, err
	}

	result := &Result{
		TxRef:   txRef,
		Status:  existing.Status,
		Message: "replayed: reference already processed",
	}
	if existing.AccountID != nil {
		result.VendorRef = *existing.AccountID
	}
	switch existing.Status {
	case models.StatusSuccess:
		result.State = StateSettledSuccess
	case models.StatusFailed:
		result.State = StateSettledFailed
	default:
		result.State = StateSettledPending
	}
	return result, nil
}

func (s *Service) recordContact(ctx context.Context, req Request) {
	if s.contacts == nil || req.Recipient == "" {
		return
	}
	if err := s.contacts.Upsert(ctx, req.UserID, req.Kind, req.Recipient); err != nil {
		log.Warn().Err(err).Str("user_id", req.UserID.String()).
			Msg("failed to record recent contact")
	}
}

func (s *Service) dispatchReceipt(ctx context.Context, req Request, outcome *provider.FulfillResult) {
	if s.receipts == nil || req.Kind != models.TypeExam || req.Email == "" {
		return
	}
	r := mailer.Receipt{
		To:      req.Email,
		Subject: "Your exam token",
		Body:    outcome.Message,
	}
	if err := s.receipts.DispatchReceipt(ctx, r); err != nil {
		log.Warn().Err(err).Str("email", req.Email).
			Msg("failed to dispatch receipt email")
	}
}
