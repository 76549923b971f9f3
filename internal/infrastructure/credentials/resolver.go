// SPDX-License-Identifier: AGPL-3.0-or-later
package credentials

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/oauth2"

	"github.com/skyfunnel/warmup-worker/internal/domain/models"
	"github.com/skyfunnel/warmup-worker/internal/infrastructure/config"
	"github.com/skyfunnel/warmup-worker/internal/infrastructure/crypto"
	"github.com/skyfunnel/warmup-worker/internal/infrastructure/database"
	"github.com/skyfunnel/warmup-worker/internal/infrastructure/logger"
)

// Repository is the persistence surface the resolver needs (satisfied by
// database.CredentialRepository).
type Repository interface {
	GetByAddress(ctx context.Context, addr string) (*models.EmailCredential, error)
	UpdateAccessToken(ctx context.Context, addr, accessTokenCiphertext string) error
}

// Resolver decrypts a mailbox's stored credential row and, for OAuth
// mailboxes, exchanges the refresh token for a new access token when
// RefreshAccessToken is called. Resolve itself never refreshes a token.
type Resolver struct {
	repo          Repository
	encryptionKey []byte
	oauthEndpoint oauth2.Endpoint
}

// NewResolver builds a Resolver from config. oauthEndpoint is the provider
// token endpoint (e.g. Google's) used to refresh access tokens; per-mailbox
// client id/secret come from the stored credential row, not from config.
func NewResolver(repo Repository, cryptoCfg config.CryptoConfig, oauthEndpoint oauth2.Endpoint) (*Resolver, error) {
	key, err := crypto.KeyFromHex(cryptoCfg.EncryptionKeyHex)
	if err != nil {
		return nil, fmt.Errorf("failed to load encryption key: %w", err)
	}
	return &Resolver{repo: repo, encryptionKey: key, oauthEndpoint: oauthEndpoint}, nil
}

// Resolve decrypts the stored credential for addr. A field that fails to
// decrypt is treated as absent rather than a fatal error — the dispatcher
// then falls back to whichever transport the remaining fields support.
func (r *Resolver) Resolve(ctx context.Context, addr string) (*models.Credentials, error) {
	row, err := r.repo.GetByAddress(ctx, addr)
	if err != nil {
		return nil, err
	}

	creds := &models.Credentials{
		Service:            row.Service,
		OAuthClientID:      row.OAuthClientID,
		OAuthClientSecret:  row.OAuthClientSecret,
	}

	if row.PasswordCiphertext != "" {
		if pw, err := crypto.Decrypt(row.PasswordCiphertext, r.encryptionKey); err == nil {
			creds.SMTPPassword = pw
		} else {
			logger.Component("credentials").Warn("failed to decrypt smtp password, treating as absent", "addr", addr, "error", err.Error())
		}
	}

	if row.AccessTokenCiphertext != "" {
		if at, err := crypto.Decrypt(row.AccessTokenCiphertext, r.encryptionKey); err == nil {
			creds.OAuthAccess = at
		} else {
			logger.Component("credentials").Warn("failed to decrypt access token, treating as absent", "addr", addr, "error", err.Error())
		}
	}

	if row.RefreshTokenCiphertext != "" {
		if rt, err := crypto.Decrypt(row.RefreshTokenCiphertext, r.encryptionKey); err == nil {
			creds.OAuthRefresh = rt
		} else {
			logger.Component("credentials").Warn("failed to decrypt refresh token, treating as absent", "addr", addr, "error", err.Error())
		}
	}

	return creds, nil
}

// RefreshAccessToken exchanges a refresh token for a new access token via
// the configured OAuth endpoint, persisting the re-encrypted access token.
// Persistence failure is logged and non-fatal — the caller keeps using the
// freshly refreshed token in-memory for the remainder of this process's
// lifetime (mirrors storeRefreshToken's "encrypt then update, log on
// failure" shape).
func (r *Resolver) RefreshAccessToken(ctx context.Context, addr string, creds *models.Credentials) (string, error) {
	if creds.OAuthRefresh == "" {
		return "", fmt.Errorf("no refresh token available for %s", addr)
	}

	oauthCfg := &oauth2.Config{
		ClientID:     creds.OAuthClientID,
		ClientSecret: creds.OAuthClientSecret,
		Endpoint:     r.oauthEndpoint,
	}

	tokenCtx, cancel := context.WithTimeout(ctx, 15*time.Second)
	defer cancel()

	source := oauthCfg.TokenSource(tokenCtx, &oauth2.Token{RefreshToken: creds.OAuthRefresh})
	refreshed, err := source.Token()
	if err != nil {
		return "", fmt.Errorf("failed to refresh oauth access token for %s: %w", addr, err)
	}

	r.persistRefreshedAccess(ctx, addr, refreshed.AccessToken)

	return refreshed.AccessToken, nil
}

func (r *Resolver) persistRefreshedAccess(ctx context.Context, addr, accessToken string) {
	ciphertext, err := crypto.Encrypt(accessToken, r.encryptionKey)
	if err != nil {
		logger.Component("credentials").Error("failed to encrypt refreshed access token (non-fatal)", "addr", addr, "error", err.Error())
		return
	}

	if err := r.repo.UpdateAccessToken(ctx, addr, ciphertext); err != nil {
		logger.Component("credentials").Error("failed to persist refreshed access token (non-fatal)", "addr", addr, "error", err.Error())
		return
	}

	logger.Component("credentials").Info("refreshed and persisted oauth access token", "addr", addr)
}

var _ Repository = (*database.CredentialRepository)(nil)
