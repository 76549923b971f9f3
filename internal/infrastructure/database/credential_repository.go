// SPDX-License-Identifier: AGPL-3.0-or-later
package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/skyfunnel/warmup-worker/internal/domain/models"
	"github.com/skyfunnel/warmup-worker/internal/infrastructure/logger"
)

// ErrCredentialNotFound is returned when no credential row exists for an
// address.
var ErrCredentialNotFound = errors.New("credential not found")

// CredentialRepository wraps WarmupEmailServiceEmailCredential.
type CredentialRepository struct {
	db *sql.DB
}

func NewCredentialRepository(db *sql.DB) *CredentialRepository {
	return &CredentialRepository{db: db}
}

// GetByAddress looks up the ciphertext row for a reply-from mailbox.
func (r *CredentialRepository) GetByAddress(ctx context.Context, addr string) (*models.EmailCredential, error) {
	query := `
		SELECT email_id, service, password_ciphertext, access_token_ciphertext,
		       refresh_token_ciphertext, oauth_client_id, oauth_client_secret
		FROM warmup_email_service_email_credentials
		WHERE email_id = $1
	`

	row := r.db.QueryRowContext(ctx, query, addr)

	var cred models.EmailCredential
	var accessCT, refreshCT, clientID, clientSecret sql.NullString
	err := row.Scan(&cred.EmailID, &cred.Service, &cred.PasswordCiphertext,
		&accessCT, &refreshCT, &clientID, &clientSecret)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrCredentialNotFound
	}
	if err != nil {
		logger.Component("credentials").Error("failed to fetch credential", "error", err.Error(), "addr", addr)
		return nil, fmt.Errorf("failed to fetch credential for %s: %w", addr, err)
	}

	cred.AccessTokenCiphertext = accessCT.String
	cred.RefreshTokenCiphertext = refreshCT.String
	cred.OAuthClientID = clientID.String
	cred.OAuthClientSecret = clientSecret.String

	return &cred, nil
}

// UpdateAccessToken persists a refreshed OAuth access token ciphertext.
// Non-fatal on failure per spec.md §4.3 — the caller logs and continues
// using the in-memory refreshed token for the rest of this process's
// lifetime.
func (r *CredentialRepository) UpdateAccessToken(ctx context.Context, addr, accessTokenCiphertext string) error {
	query := `
		UPDATE warmup_email_service_email_credentials
		SET access_token_ciphertext = $2
		WHERE email_id = $1
	`

	if _, err := r.db.ExecContext(ctx, query, addr, accessTokenCiphertext); err != nil {
		return fmt.Errorf("failed to persist refreshed access token for %s: %w", addr, err)
	}
	return nil
}
