// Package worker runs the background side of the engine: resolving
// transactions the vendor left pending, and delivering receipt emails.
package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/hibiken/asynq"
	"github.com/rs/zerolog/log"

	"github.com/vtupay/wallet-engine/internal/mailer"
	"github.com/vtupay/wallet-engine/internal/provider"
	"github.com/vtupay/wallet-engine/internal/refund"
	"github.com/vtupay/wallet-engine/internal/store"
)

// Processor handles background job processing.
type Processor struct {
	repo           store.Repository
	engine         *refund.Engine
	prov           provider.Provider
	mail           mailer.Mailer
	reconcileAfter time.Duration
	batchSize      int
}

func NewProcessor(repo store.Repository, engine *refund.Engine, prov provider.Provider, mail mailer.Mailer, reconcileAfter time.Duration, batchSize int) *Processor {
	if batchSize <= 0 {
		batchSize = 50
	}
	return &Processor{
		repo:           repo,
		engine:         engine,
		prov:           prov,
		mail:           mail,
		reconcileAfter: reconcileAfter,
		batchSize:      batchSize,
	}
}

// ProcessReconcile requeries the vendor for every spend that has sat pending
// past the threshold and resolves it. Pending stays pending until the vendor
// reports a terminal state — never resolved optimistically.
func (p *Processor) ProcessReconcile(ctx context.Context, _ *asynq.Task) error {
	cutoff := time.Now().Add(-p.reconcileAfter)
	entries, err := p.repo.ListPendingOlderThan(ctx, cutoff, p.batchSize)
	if err != nil {
		return fmt.Errorf("failed to list pending transactions: %w", err)
	}
	if len(entries) == 0 {
		return nil
	}

	log.Info().Int("count", len(entries)).Msg("reconciling pending transactions")

	for _, entry := range entries {
		if err := p.reconcileOne(ctx, entry.TxRef); err != nil {
			log.Warn().Err(err).Str("tx_ref", entry.TxRef).Msg("reconciliation deferred")
		}
	}
	return nil
}

func (p *Processor) reconcileOne(ctx context.Context, txRef string) error {
	result, err := p.prov.QueryStatus(ctx, txRef)
	if err != nil {
		if errors.Is(err, provider.ErrVendorRejected) {
			return p.engine.ResolvePending(ctx, txRef, refund.OutcomeFailed, nil, err.Error())
		}
		// Vendor unreachable; try again on the next sweep.
		return err
	}

	switch result.Status {
	case provider.OutcomeSuccess:
		var vendorRef *string
		if result.VendorRef != "" {
			vendorRef = &result.VendorRef
		}
		if err := p.engine.ResolvePending(ctx, txRef, refund.OutcomeSuccess, vendorRef, ""); err != nil {
			return err
		}
		log.Info().Str("tx_ref", txRef).Msg("pending transaction resolved to success")
	case provider.OutcomeFailed:
		if err := p.engine.ResolvePending(ctx, txRef, refund.OutcomeFailed, nil, result.Message); err != nil {
			return err
		}
		log.Info().Str("tx_ref", txRef).Msg("pending transaction resolved to failed, balance restored")
	default:
		// Still pending upstream.
	}
	return nil
}

// ProcessEmailReceipt delivers one queued receipt email.
func (p *Processor) ProcessEmailReceipt(ctx context.Context, t *asynq.Task) error {
	var r mailer.Receipt
	if err := json.Unmarshal(t.Payload(), &r); err != nil {
		return fmt.Errorf("failed to unmarshal receipt: %w", err)
	}
	return p.mail.SendReceipt(ctx, r)
}
