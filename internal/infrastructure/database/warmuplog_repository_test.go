// SPDX-License-Identifier: AGPL-3.0-or-later
//go:build integration

package database

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/skyfunnel/warmup-worker/internal/domain/models"
)

func TestWarmupLogRepository_Record(t *testing.T) {
	db := mustOpenTestDB(t)
	repo := NewWarmupLogRepository(db)
	ctx := context.Background()

	err := repo.Record(ctx, "warmup-123", "bob@example.com", models.StatusReplied)
	require.NoError(t, err)
}
