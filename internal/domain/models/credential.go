// SPDX-License-Identifier: AGPL-3.0-or-later
package models

// EmailCredential mirrors the logical
// WarmupEmailServiceEmailCredential(emailId, service, password_ciphertext,
// accessToken_ciphertext?, refreshToken_ciphertext?) row.
type EmailCredential struct {
	EmailID               string
	Service               string
	PasswordCiphertext    string
	AccessTokenCiphertext string
	RefreshTokenCiphertext string
	OAuthClientID         string
	OAuthClientSecret     string
}

// Credentials is the decrypted, ready-to-use view C3 hands to C4/C5.
type Credentials struct {
	Service       string
	SMTPPassword  string
	OAuthAccess   string
	OAuthRefresh  string
	OAuthClientID string
	OAuthClientSecret string
}

// HasOAuth reports whether both OAuth tokens and a client pair are present,
// the condition spec.md §4.4 uses to prefer the vendor-API path.
func (c *Credentials) HasOAuth() bool {
	return c.OAuthAccess != "" && c.OAuthRefresh != "" && c.OAuthClientID != "" && c.OAuthClientSecret != ""
}

// IsGmail reports whether the credential's service is the Gmail vendor API.
func (c *Credentials) IsGmail() bool {
	return c.Service == "gmail"
}
