// SPDX-License-Identifier: AGPL-3.0-or-later
package mail

import (
	"encoding/base64"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/skyfunnel/warmup-worker/internal/domain/models"
)

func TestClassifyError(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want models.DispatchOutcome
	}{
		{"nil is success", nil, models.Success},
		{"535 auth code", fmt.Errorf("535 5.7.8 authentication failed"), models.AuthFailure},
		{"invalid credentials phrase", fmt.Errorf("invalid credentials"), models.AuthFailure},
		{"login failed phrase", fmt.Errorf("login failed for user"), models.AuthFailure},
		{"timeout is transient", fmt.Errorf("dial tcp: i/o timeout"), models.TransientFailure},
		{"connection reset is transient", fmt.Errorf("connection reset by peer"), models.TransientFailure},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, classifyError(tc.err))
		})
	}
}

func TestReplySubject(t *testing.T) {
	assert.Equal(t, "Re: hello", replySubject("hello"))
	assert.Equal(t, "Re: hello", replySubject("Re: hello"))
}

func TestBuildRFC2822_IsValidBase64URL(t *testing.T) {
	reply := Reply{
		From:            "sender@example.com",
		To:              "recipient@example.com",
		OriginalSubject: "Let's talk",
		Body:            "Sounds good to me.",
		InReplyTo:       "<msg-1@example.com>",
		ReferenceID:     "<msg-1@example.com>",
	}

	raw, err := buildRFC2822(reply)
	require.NoError(t, err)

	decoded, err := base64.URLEncoding.DecodeString(raw)
	require.NoError(t, err)

	body := string(decoded)
	assert.Contains(t, body, "From: sender@example.com")
	assert.Contains(t, body, "To: recipient@example.com")
	assert.Contains(t, body, "Subject: Re: Let's talk")
	assert.Contains(t, body, "In-Reply-To: <msg-1@example.com>")
	assert.True(t, strings.Contains(body, "Sounds good to me."))
}

func TestCredentials_GmailWithFullOAuthMeetsVendorAPICondition(t *testing.T) {
	creds := &models.Credentials{
		Service:           "gmail",
		OAuthAccess:       "access",
		OAuthRefresh:      "refresh",
		OAuthClientID:     "id",
		OAuthClientSecret: "secret",
	}
	assert.True(t, creds.IsGmail())
	assert.True(t, creds.HasOAuth())
}

func TestCredentials_GmailWithoutOAuthFailsVendorAPICondition(t *testing.T) {
	creds := &models.Credentials{Service: "gmail", SMTPPassword: "hunter2"}
	assert.True(t, creds.IsGmail())
	assert.False(t, creds.HasOAuth())
}
