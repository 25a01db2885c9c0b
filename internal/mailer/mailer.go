// Package mailer is the boundary to the e-mail dispatch collaborator.
// Delivery is fire-and-forget relative to the transactional core: a mailer
// failure never rolls back a settled purchase.
package mailer

import (
	"context"

	"github.com/rs/zerolog/log"
)

// Receipt is a purchase receipt notification, currently used for exam-token
// deliveries where the token itself travels by mail.
type Receipt struct {
	To      string
	Subject string
	Body    string
}

// Mailer sends purchase receipts.
type Mailer interface {
	SendReceipt(ctx context.Context, r Receipt) error
}

// LogMailer writes receipts to the log instead of dispatching them. Used in
// development and as the default until an SMTP collaborator is wired in.
type LogMailer struct{}

func (LogMailer) SendReceipt(_ context.Context, r Receipt) error {
	log.Info().
		Str("to", r.To).
		Str("subject", r.Subject).
		Msg("receipt email dispatched (log only)")
	return nil
}
