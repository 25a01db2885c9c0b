package worker

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/hibiken/asynq"

	"github.com/vtupay/wallet-engine/internal/mailer"
)

const (
	TypeReconcilePending = "reconcile:pending"
	TypeEmailReceipt     = "email:receipt"
)

// NewReconcileTask creates a task that sweeps stale pending transactions.
func NewReconcileTask() *asynq.Task {
	return asynq.NewTask(TypeReconcilePending, nil)
}

// NewEmailReceiptTask creates a receipt email dispatch task.
func NewEmailReceiptTask(r mailer.Receipt) (*asynq.Task, error) {
	payload, err := json.Marshal(r)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal receipt: %w", err)
	}
	return asynq.NewTask(TypeEmailReceipt, payload), nil
}

// Dispatcher enqueues receipt emails for background delivery. Satisfies the
// orchestrator's ReceiptDispatcher so mail failure can never block a
// settlement — the task retries on its own schedule.
type Dispatcher struct {
	client *asynq.Client
}

func NewDispatcher(client *asynq.Client) *Dispatcher {
	return &Dispatcher{client: client}
}

func (d *Dispatcher) DispatchReceipt(_ context.Context, r mailer.Receipt) error {
	task, err := NewEmailReceiptTask(r)
	if err != nil {
		return err
	}
	_, err = d.client.Enqueue(task, asynq.Queue("low"), asynq.MaxRetry(5))
	return err
}
