// Package funding applies inbound payment notifications (bank transfer to a
// dedicated virtual account) to a user's wallet exactly once. The provider
// signature is verified before any payload field is trusted.
package funding

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"github.com/vtupay/wallet-engine/internal/models"
	"github.com/vtupay/wallet-engine/internal/store"
	"github.com/vtupay/wallet-engine/internal/wallet"
)

var (
	ErrInvalidSignature = errors.New("webhook signature mismatch")
	ErrIgnoredEvent     = errors.New("webhook event is not a payment notification")
)

// Wire values from the payment provider.
const (
	EventPaymentNotification = "SUCCESSFUL_TRANSACTION"
	AccountTypeReserved      = "RESERVED_ACCOUNT"
)

// Notification is the inbound funding payload.
type Notification struct {
	Event string           `json:"event"`
	Data  NotificationData `json:"data"`
}

type NotificationData struct {
	Type             string          `json:"type"`
	Reference        string          `json:"reference"`
	Amount           decimal.Decimal `json:"amount"`
	AccountReference string          `json:"account_reference"`
	PayerName        string          `json:"payer_name"`
}

// FeePolicy is the provider fee deducted from gross funding amounts.
// Configurable rather than hard-coded: percent of gross, clamped to the
// optional min/max bounds when they are positive.
type FeePolicy struct {
	Percent decimal.Decimal
	Min     decimal.Decimal
	Max     decimal.Decimal
}

// FeeFor computes the fee on a gross amount.
func (p FeePolicy) FeeFor(gross decimal.Decimal) decimal.Decimal {
	fee := gross.Mul(p.Percent).Div(decimal.NewFromInt(100))
	if p.Min.IsPositive() && fee.LessThan(p.Min) {
		fee = p.Min
	}
	if p.Max.IsPositive() && fee.GreaterThan(p.Max) {
		fee = p.Max
	}
	return fee
}

// ApplyResult reports what a webhook delivery did.
type ApplyResult struct {
	TxRef     string
	Applied   bool // false for duplicate deliveries
	Gross     decimal.Decimal
	Fee       decimal.Decimal
	NetCredit decimal.Decimal
}

// Handler verifies and applies funding notifications.
type Handler struct {
	repo   store.Repository
	guard  *wallet.Guard
	secret []byte
	fees   FeePolicy
}

func NewHandler(repo store.Repository, guard *wallet.Guard, secret []byte, fees FeePolicy) *Handler {
	return &Handler{repo: repo, guard: guard, secret: secret, fees: fees}
}

// VerifySignature checks the provider's HMAC-SHA256 signature over the raw
// request body. Computed hash and header value are compared in constant time.
func (h *Handler) VerifySignature(body []byte, signature string) error {
	mac := hmac.New(sha256.New, h.secret)
	mac.Write(body)
	expected := hex.EncodeToString(mac.Sum(nil))
	if !hmac.Equal([]byte(expected), []byte(signature)) {
		return ErrInvalidSignature
	}
	return nil
}

// Apply processes one signed webhook delivery. Replays of a reference that
// already settled are acknowledged as a no-op — a provider retrying delivery
// must never double-credit.
func (h *Handler) Apply(ctx context.Context, body []byte, signature string) (*ApplyResult, error) {
	if err := h.VerifySignature(body, signature); err != nil {
		return nil, err
	}

	var n Notification
	if err := json.Unmarshal(body, &n); err != nil {
		return nil, fmt.Errorf("failed to parse webhook payload: %w", err)
	}
	if n.Event != EventPaymentNotification {
		return nil, fmt.Errorf("%w: %q", ErrIgnoredEvent, n.Event)
	}
	if n.Data.Type != AccountTypeReserved {
		return nil, fmt.Errorf("%w: unsupported data type %q", ErrIgnoredEvent, n.Data.Type)
	}
	if n.Data.Reference == "" {
		return nil, fmt.Errorf("webhook payload missing transaction reference")
	}
	if !n.Data.Amount.IsPositive() {
		return nil, fmt.Errorf("webhook payload has non-positive amount")
	}

	// Duplicate delivery check by the provider's reference.
	if existing, err := h.repo.FindTransactionByRef(ctx, n.Data.Reference); err == nil {
		if existing.Status == models.StatusSuccess {
			log.Info().Str("tx_ref", n.Data.Reference).Msg("duplicate funding webhook acknowledged")
			return &ApplyResult{TxRef: existing.TxRef, Applied: false, Gross: n.Data.Amount}, nil
		}
		return nil, store.ErrDuplicateReference
	} else if !errors.Is(err, store.ErrTransactionNotFound) {
		return nil, err
	}

	userID, err := h.repo.FindUserByAccountRef(ctx, n.Data.AccountReference)
	if err != nil {
		return nil, err
	}

	fee := h.fees.FeeFor(n.Data.Amount)
	net := n.Data.Amount.Sub(fee)
	if !net.IsPositive() {
		return nil, fmt.Errorf("funding amount %s does not cover the provider fee %s", n.Data.Amount, fee)
	}

	vendorRef := n.Data.Reference
	entry := &models.Transaction{
		TxRef:         n.Data.Reference,
		UserID:        userID,
		Type:          models.TypeFunding,
		Amount:        net,
		Status:        models.StatusSuccess,
		PaymentMethod: models.MethodDedicatedAccount,
		AccountID:     &vendorRef,
		Note:          fmt.Sprintf("wallet funding via bank transfer (%s)", n.Data.PayerName),
		Meta:          body,
	}

	if _, err := h.guard.Credit(ctx, userID, net, entry); err != nil {
		if errors.Is(err, store.ErrDuplicateReference) {
			// Lost a race against a concurrent delivery of the same webhook.
			log.Info().Str("tx_ref", n.Data.Reference).Msg("concurrent duplicate funding webhook acknowledged")
			return &ApplyResult{TxRef: n.Data.Reference, Applied: false, Gross: n.Data.Amount}, nil
		}
		return nil, err
	}

	log.Info().
		Str("tx_ref", n.Data.Reference).
		Str("user_id", userID.String()).
		Str("gross", n.Data.Amount.String()).
		Str("net", net.String()).
		Msg("funding applied")

	return &ApplyResult{
		TxRef:     n.Data.Reference,
		Applied:   true,
		Gross:     n.Data.Amount,
		Fee:       fee,
		NetCredit: net,
	}, nil
}
