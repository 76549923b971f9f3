// SPDX-License-Identifier: AGPL-3.0-or-later
package rescue

import (
	"strings"

	"github.com/skyfunnel/warmup-worker/internal/domain/models"
)

// classifyErrorMessage applies the same substring classification C4 uses
// (spec.md §4.5: "AuthFailure bubbles up to C7 the same way as C4's").
func classifyErrorMessage(errStr string) models.DispatchOutcome {
	errStr = strings.ToLower(errStr)

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
