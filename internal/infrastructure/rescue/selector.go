// SPDX-License-Identifier: AGPL-3.0-or-later
package rescue

import (
	"context"

	"github.com/skyfunnel/warmup-worker/internal/domain/models"
)

// providerSelector picks the Gmail vendor API when OAuth is available for a
// Gmail mailbox, else falls back to IMAP — the same credential-presence
// selector C4 uses (spec.md §9: "Spam Rescuer likewise chooses backend per
// provider").
type providerSelector struct {
	imap  *IMAPRescuer
	gmail *GmailRescuer
}

func NewRescuer(imap *IMAPRescuer, gmail *GmailRescuer) Rescuer {
	return &providerSelector{imap: imap, gmail: gmail}
}

func (s *providerSelector) Rescue(ctx context.Context, customMailID, senderAddr string, creds *models.Credentials) models.DispatchOutcome {
	if creds.IsGmail() && creds.HasOAuth() {
		return s.gmail.Rescue(ctx, customMailID, senderAddr, creds)
	}
	return s.imap.Rescue(ctx, customMailID, senderAddr, creds)
}
