// SPDX-License-Identifier: AGPL-3.0-or-later
package models

import "time"

// WarmupLogStatus enumerates the terminal states a warmup reply can reach
// in the relational log.
type WarmupLogStatus string

const (
	StatusReplied WarmupLogStatus = "REPLIED"
	StatusInSpam  WarmupLogStatus = "IN_SPAM"
	StatusSent    WarmupLogStatus = "SENT"
)

// WarmupEmailLog mirrors WarmupEmailLogs(id, warmupId, recipientEmail,
// status, sentAt).
type WarmupEmailLog struct {
	ID             string
	WarmupID       string
	RecipientEmail string
	Status         WarmupLogStatus
	SentAt         time.Time
}

// IssuePriority enumerates the severity of a critical-error sink row.
type IssuePriority string

const (
	PriorityLow    IssuePriority = "LOW"
	PriorityMedium IssuePriority = "MEDIUM"
	PriorityHigh   IssuePriority = "HIGH"
)

// Issue mirrors Issue(id, title, description, service, priority,
// probableCause[], context) — the critical-error sink written by the
// process-global uncaught-error handler.
type Issue struct {
	ID            string
	Title         string
	Description   string
	Service       string
	Priority      IssuePriority
	ProbableCause []string
	Context       map[string]any
}
