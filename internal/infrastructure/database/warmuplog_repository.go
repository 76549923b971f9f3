// SPDX-License-Identifier: AGPL-3.0-or-later
package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/skyfunnel/warmup-worker/internal/domain/models"
	"github.com/skyfunnel/warmup-worker/internal/infrastructure/logger"
)

// WarmupLogRepository records terminal outcomes of warmup replies into the
// relational WarmupEmailLogs table.
type WarmupLogRepository struct {
	db *sql.DB
}

func NewWarmupLogRepository(db *sql.DB) *WarmupLogRepository {
	return &WarmupLogRepository{db: db}
}

// Record appends a status transition row (REPLIED / IN_SPAM / SENT).
func (r *WarmupLogRepository) Record(ctx context.Context, warmupID, recipientEmail string, status models.WarmupLogStatus) error {
	query := `
		INSERT INTO warmup_email_logs (warmup_id, recipient_email, status, sent_at)
		VALUES ($1, $2, $3, $4)
	`

	_, err := r.db.ExecContext(ctx, query, warmupID, recipientEmail, string(status), time.Now().UTC())
	if err != nil {
		logger.Component("warmuplog").Error("failed to record warmup log",
			"error", err.Error(), "warmup_id", warmupID, "status", status)
		return fmt.Errorf("failed to record warmup log: %w", err)
	}

	logger.Component("warmuplog").Info("recorded warmup log",
		"warmup_id", warmupID, "recipient", recipientEmail, "status", status)
	return nil
}
