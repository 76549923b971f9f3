// SPDX-License-Identifier: AGPL-3.0-or-later
package rescue

import (
	"context"
	"crypto/tls"
	"fmt"
	"strings"
	"time"

	"github.com/emersion/go-imap"
	"github.com/emersion/go-imap/client"
	"github.com/emersion/go-imap/move"

	"github.com/skyfunnel/warmup-worker/internal/domain/models"
	"github.com/skyfunnel/warmup-worker/internal/infrastructure/logger"
)

// logoutTimeout bounds how long a rescue waits for a clean IMAP logout
// before abandoning the connection (spec.md §4.5: 5s watchdog).
const logoutTimeout = 5 * time.Second

// IMAPRescuer connects to a mailbox's own IMAP server, grounded on the
// pack's Gmail-IMAP backup tool's connect/search/fetch shape.
type IMAPRescuer struct {
	dialTimeout time.Duration
}

func NewIMAPRescuer() *IMAPRescuer {
	return &IMAPRescuer{dialTimeout: 30 * time.Second}
}

func (r *IMAPRescuer) Rescue(ctx context.Context, customMailID, senderAddr string, creds *models.Credentials) models.DispatchOutcome {
	folders, err := models.MailboxFoldersFor(creds.Service)
	if err != nil {
		logger.Component("rescue").Warn("no IMAP folder mapping, skipping rescue", "service", creds.Service, "error", err.Error())
		return models.TransientFailure
	}

	endpoint, err := models.SMTPEndpointFor(creds.Service)
	if err != nil {
		return models.TransientFailure
	}

	c, err := r.connect(endpoint.Host, senderAddr, creds.SMTPPassword)
	if err != nil {
		logger.Component("rescue").Warn("imap connect/login failed", "addr", senderAddr, "error", err.Error())
		return classifyIMAPError(err)
	}
	defer r.logoutWithWatchdog(c)

	if _, err := c.Select(folders.Spam, false); err != nil {
		logger.Component("rescue").Warn("failed to select spam folder", "folder", folders.Spam, "error", err.Error())
		return classifyIMAPError(err)
	}

	uids, err := r.findMatchingUIDs(c, customMailID)
	if err != nil {
		logger.Component("rescue").Warn("imap search/fetch failed", "tag", customMailID, "error", err.Error())
		return classifyIMAPError(err)
	}

	if len(uids) == 0 {
		logger.Component("rescue").Debug("no spam messages matched tag", "tag", customMailID)
		return models.Success
	}

	seqset := new(imap.SeqSet)
	seqset.AddNum(uids...)

	// \Seen is stored while the UIDs are still in the spam folder; MOVE
	// carries the flag over to the inbox copy.
	flagItem := imap.FormatFlagsOp(imap.AddFlags, true)
	if err := c.UidStore(seqset, flagItem, []interface{}{imap.SeenFlag}, nil); err != nil {
		logger.Component("rescue").Warn("imap mark-seen failed", "tag", customMailID, "error", err.Error())
		return classifyIMAPError(err)
	}

	moveClient := move.NewClient(c)
	if err := moveClient.UidMove(seqset, folders.Inbox); err != nil {
		logger.Component("rescue").Warn("imap move failed", "tag", customMailID, "error", err.Error())
		return classifyIMAPError(err)
	}

	logger.Component("rescue").Info("rescued messages from spam", "tag", customMailID, "count", len(uids))
	return models.Success
}

func (r *IMAPRescuer) connect(host, username, password string) (*client.Client, error) {
	addr := fmt.Sprintf("%s:993", imapHostFor(host))
	c, err := client.DialTLS(addr, &tls.Config{ServerName: imapHostFor(host)})
	if err != nil {
		return nil, fmt.Errorf("failed to dial imap: %w", err)
	}
	c.Timeout = r.dialTimeout

	if err := c.Login(username, password); err != nil {
		_ = c.Logout()
		return nil, fmt.Errorf("imap login failed: %w", err)
	}

	return c, nil
}

// imapHostFor maps an SMTP host to its IMAP counterpart for well-known
// providers; the "skyfunnel" endpoint is assumed to serve both protocols
// off the same host.
func imapHostFor(smtpHost string) string {
	switch smtpHost {
	case "smtp.gmail.com":
		return "imap.gmail.com"
	case "smtp.office365.com":
		return "outlook.office365.com"
	default:
		return smtpHost
	}
}

// findMatchingUIDs searches the selected folder for unseen messages whose
// Subject header contains tag, then fetches their UIDs. Per spec.md §4.5
// no IMAP command may be issued inside the fetch-iterator loop; the
// collection below only appends to a local slice and all follow-up IMAP
// commands run after the channel is fully drained.
func (r *IMAPRescuer) findMatchingUIDs(c *client.Client, tag string) ([]uint32, error) {
	criteria := imap.NewSearchCriteria()
	criteria.Header.Set("Subject", tag)
	criteria.WithoutFlags = []string{imap.SeenFlag}

	seqNums, err := c.Search(criteria)
	if err != nil {
		return nil, fmt.Errorf("imap search failed: %w", err)
	}
	if len(seqNums) == 0 {
		return nil, nil
	}

	seqset := new(imap.SeqSet)
	seqset.AddNum(seqNums...)

	messages := make(chan *imap.Message, len(seqNums))
	done := make(chan error, 1)
	go func() {
		done <- c.Fetch(seqset, []imap.FetchItem{imap.FetchUid, imap.FetchEnvelope}, messages)
	}()

	var uids []uint32
	for msg := range messages {
		if msg.Envelope != nil && !containsTag(msg.Envelope.Subject, tag) {
			continue
		}
		uids = append(uids, msg.Uid)
	}

	if err := <-done; err != nil {
		return nil, fmt.Errorf("imap fetch failed: %w", err)
	}

	return uids, nil
}

func containsTag(subject, tag string) bool {
	if tag == "" {
		return true
	}
	return strings.Contains(subject, tag)
}

// logoutWithWatchdog races a clean logout against a timeout so a stuck
// server connection can never block a rescue indefinitely.
func (r *IMAPRescuer) logoutWithWatchdog(c *client.Client) {
	done := make(chan struct{})
	go func() {
		_ = c.Logout()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(logoutTimeout):
		logger.Component("rescue").Warn("imap logout timed out, abandoning connection")
		_ = c.Terminate()
	}
}

func classifyIMAPError(err error) models.DispatchOutcome {
	if err == nil {
		return models.Success
	}
	return classifyErrorMessage(err.Error())
}
