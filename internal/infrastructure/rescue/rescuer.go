// SPDX-License-Identifier: AGPL-3.0-or-later
package rescue

import (
	"context"

	"github.com/skyfunnel/warmup-worker/internal/domain/models"
)

// Rescuer moves a prior warmup message out of the spam folder and marks it
// read, so the conversation counts as inbox-delivered (spec.md §4.5).
// Failures are caught and swallowed by the caller except for AuthFailure,
// which bubbles up the same way C4's does.
type Rescuer interface {
	Rescue(ctx context.Context, customMailID, senderAddr string, creds *models.Credentials) models.DispatchOutcome
}
