// SPDX-License-Identifier: AGPL-3.0-or-later
package mail

import (
	"context"

	"github.com/skyfunnel/warmup-worker/internal/domain/models"
)

// singleSender implements Dispatcher, selecting VendorAPI when the
// credential is Gmail with a full OAuth token+client pair, else SMTP
// (spec.md §4.4 step 1 — "a tagged-variant over credential presence").
type singleSender struct {
	smtp  *SMTPDispatcher
	gmail *GmailDispatcher
}

// NewDispatcher builds the credential-presence selector over both transports.
func NewDispatcher(smtp *SMTPDispatcher, gmail *GmailDispatcher) Dispatcher {
	return &singleSender{smtp: smtp, gmail: gmail}
}

func (s *singleSender) Dispatch(ctx context.Context, reply Reply, creds *models.Credentials) models.DispatchOutcome {
	if creds.IsGmail() && creds.HasOAuth() {
		return s.gmail.Send(ctx, reply, creds)
	}
	return s.smtp.Send(ctx, reply, creds)
}
