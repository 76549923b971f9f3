// SPDX-License-Identifier: AGPL-3.0-or-later
package mail

import (
	"context"
	"strings"

	"github.com/skyfunnel/warmup-worker/internal/domain/models"
)

// Reply is a single outbound warmup reply, assembled from a WarmupRequest by
// the batch processor.
type Reply struct {
	From            string
	To              string
	Subject         string
	Body            string
	InReplyTo       string
	ReferenceID     string
	OriginalSubject string
}

// Dispatcher sends a warmup reply from the tenant's own mailbox, picking
// SMTP or the vendor API depending on which credentials are present.
type Dispatcher interface {
	Dispatch(ctx context.Context, reply Reply, creds *models.Credentials) models.DispatchOutcome
}

// classifyError maps a transport error to a two-way DispatchOutcome split,
// narrowed from the teacher's three-way EmailErrorType categorization down
// to the two outcomes this dispatcher reports (spec.md §7: only auth
// failures get the cooldown/block treatment; everything else is transient).
func classifyError(err error) models.DispatchOutcome {
	if err == nil {
		return models.Success
	}

	errStr := strings.ToLower(err.Error())

	authMarkers := []string{
		"auth", "authentication", "invalid credentials", "login failed", "535", "534",
	}
	for _, marker := range authMarkers {
		if strings.Contains(errStr, marker) {
			return models.AuthFailure
		}
	}

	return models.TransientFailure
}
