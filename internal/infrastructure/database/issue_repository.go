// SPDX-License-Identifier: AGPL-3.0-or-later
package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/skyfunnel/warmup-worker/internal/domain/models"
	"github.com/skyfunnel/warmup-worker/internal/infrastructure/logger"
)

// IssueRepository is the insert-only critical-error sink (spec.md §6:
// Issue(id, title, description, service, priority, probableCause[], context)).
type IssueRepository struct {
	db *sql.DB
}

func NewIssueRepository(db *sql.DB) *IssueRepository {
	return &IssueRepository{db: db}
}

// Report writes a critical-error row. Failures to write are logged but never
// propagated — the process-global uncaught-error handler must keep running
// even if the sink itself is unreachable.
func (r *IssueRepository) Report(ctx context.Context, issue models.Issue) {
	if issue.ID == "" {
		issue.ID = uuid.NewString()
	}
	if issue.Priority == "" {
		issue.Priority = models.PriorityMedium
	}
	if issue.ProbableCause == nil {
		issue.ProbableCause = []string{}
	}

	contextJSON, err := json.Marshal(issue.Context)
	if err != nil {
		contextJSON = []byte("{}")
	}

	query := `
		INSERT INTO issues (id, title, description, service, priority, probable_cause, context)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`

	_, err = r.db.ExecContext(ctx, query, issue.ID, issue.Title, issue.Description,
		issue.Service, string(issue.Priority), pq.Array(issue.ProbableCause), contextJSON)
	if err != nil {
		logger.Component("issues").Error("failed to write issue row",
			"error", fmt.Sprintf("%v", err), "title", issue.Title)
		return
	}

	logger.Component("issues").Error("critical error reported",
		"issue_id", issue.ID, "title", issue.Title, "priority", issue.Priority)
}
