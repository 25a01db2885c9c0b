// Package provider abstracts the upstream fulfillment vendors (airtime,
// data, bill-pay, exam tokens) behind one interface. The orchestrator treats
// every vendor kind identically past this boundary.
package provider

import (
	"context"
	"errors"

	"github.com/shopspring/decimal"

	"github.com/vtupay/wallet-engine/internal/models"
)

var (
	// ErrVendorUnavailable covers transport failures and vendor 5xx responses
	// where the request was definitively not accepted.
	ErrVendorUnavailable = errors.New("vendor unavailable")
	// ErrVendorRejected covers explicit vendor-reported failures.
	ErrVendorRejected = errors.New("vendor rejected the request")
)

// Outcome is the normalized vendor result.
type Outcome string

const (
	OutcomeSuccess Outcome = "success"
	OutcomePending Outcome = "pending"
	OutcomeFailed  Outcome = "failed"
)

// FulfillRequest describes one purchase to deliver upstream.
type FulfillRequest struct {
	Kind      models.TransactionType
	Amount    decimal.Decimal
	Recipient string // phone number, meter number or candidate profile id
	ServiceID string // vendor-side product/network identifier
	// IdempotencyRef is the ledger tx_ref. The adapter is called at most once
	// per ref from the orchestrator; a vendor that deduplicates by reference
	// therefore cannot double-fulfill on retries.
	IdempotencyRef string
}

// FulfillResult is the normalized vendor outcome.
type FulfillResult struct {
	Status    Outcome
	VendorRef string
	Message   string
	Raw       []byte // vendor payload, stored opaquely in the ledger meta
}

// Provider is the uniform fulfillment interface.
//
// A timeout maps to OutcomePending, never to failed or success: the vendor
// may have accepted the request even though the response did not arrive.
// Pending must be resolved later by requery or webhook, not guessed at.
type Provider interface {
	Fulfill(ctx context.Context, req FulfillRequest) (*FulfillResult, error)

	// QueryStatus looks up the current vendor state for a previously
	// submitted reference. Used by the reconciliation worker.
	QueryStatus(ctx context.Context, idempotencyRef string) (*FulfillResult, error)
}
