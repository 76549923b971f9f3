// SPDX-License-Identifier: AGPL-3.0-or-later
package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSMTPEndpointFor(t *testing.T) {
	endpoint, err := SMTPEndpointFor("gmail")
	require.NoError(t, err)
	assert.Equal(t, "smtp.gmail.com", endpoint.Host)
	assert.Equal(t, 587, endpoint.Port)
	assert.False(t, endpoint.SSL)

	_, err = SMTPEndpointFor("unknown-provider")
	assert.Error(t, err)
}

func TestMailboxFoldersFor(t *testing.T) {
	folders, err := MailboxFoldersFor("outlook")
	require.NoError(t, err)
	assert.Equal(t, "Spam", folders.Spam)
	assert.Equal(t, "Inbox", folders.Inbox)

	folders, err = MailboxFoldersFor("unknown-provider")
	require.NoError(t, err)
	assert.Equal(t, "[Gmail]/Spam", folders.Spam, "unknown services default to Gmail's folders")
}
