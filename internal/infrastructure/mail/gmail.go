// SPDX-License-Identifier: AGPL-3.0-or-later
package mail

import (
	"context"
	"encoding/base64"
	"fmt"
	"strings"

	"golang.org/x/oauth2"
	"google.golang.org/api/gmail/v1"
	"google.golang.org/api/option"

	"github.com/skyfunnel/warmup-worker/internal/domain/models"
	"github.com/skyfunnel/warmup-worker/internal/infrastructure/credentials"
	"github.com/skyfunnel/warmup-worker/internal/infrastructure/logger"
)

// GmailDispatcher sends a reply through the Gmail vendor API
// (users.messages.send), threading it into the original conversation when
// a thread id can be resolved (spec.md §4.4 step 3).
type GmailDispatcher struct {
	resolver *credentials.Resolver
}

func NewGmailDispatcher(resolver *credentials.Resolver) *GmailDispatcher {
	return &GmailDispatcher{resolver: resolver}
}

// Send builds an authenticated Gmail service client from the credential's
// OAuth tokens, resolves the thread id when threading headers are present,
// and sends the reply as a URL-safe-base64 RFC-2822 blob.
func (d *GmailDispatcher) Send(ctx context.Context, reply Reply, creds *models.Credentials) models.DispatchOutcome {
	svc, err := d.newService(ctx, reply.From, creds)
	if err != nil {
		logger.Component("mail").Warn("failed to build gmail service client", "from", reply.From, "error", err.Error())
		return classifyError(err)
	}

	threadID := d.resolveThreadID(svc, reply)

	raw, err := buildRFC2822(reply)
	if err != nil {
		logger.Component("mail").Error("failed to build rfc2822 message", "error", err.Error())
		return models.TransientFailure
	}

	msg := &gmail.Message{Raw: raw, ThreadId: threadID}
	if _, err := svc.Users.Messages.Send("me", msg).Context(ctx).Do(); err != nil {
		logger.Component("mail").Warn("gmail send failed", "to", reply.To, "error", err.Error())
		return classifyError(err)
	}

	logger.Component("mail").Info("gmail reply sent", "to", reply.To, "thread_id", threadID)
	return models.Success
}

// newService constructs a Gmail API client from the stored access token.
// The token is only refreshed through the resolver when no access token is
// stored; a stored token that has expired or is rejected by the Gmail API is
// not refreshed, and the send fails with that error.
func (d *GmailDispatcher) newService(ctx context.Context, addr string, creds *models.Credentials) (*gmail.Service, error) {
	tokenSource := &refreshingTokenSource{
		ctx:      ctx,
		addr:     addr,
		creds:    creds,
		resolver: d.resolver,
		current:  &oauth2.Token{AccessToken: creds.OAuthAccess},
	}

	return gmail.NewService(ctx, option.WithTokenSource(tokenSource))
}

// refreshingTokenSource serves the stored access token when there is one.
// Otherwise it refreshes the access token through the credential resolver
// the first time it is asked for a token, then serves that token for the
// life of the Gmail service client (one per dispatch call, so this matches
// the "persist, then keep using in-memory" contract).
type refreshingTokenSource struct {
	ctx      context.Context
	addr     string
	creds    *models.Credentials
	resolver *credentials.Resolver
	current  *oauth2.Token
	refreshed bool
}

func (s *refreshingTokenSource) Token() (*oauth2.Token, error) {
	if s.current != nil && s.current.AccessToken != "" {
		return s.current, nil
	}

	access, err := s.resolver.RefreshAccessToken(s.ctx, s.addr, s.creds)
	if err != nil {
		return nil, err
	}

	s.current = &oauth2.Token{AccessToken: access}
	s.refreshed = true
	return s.current, nil
}

// resolveThreadID looks up the thread containing the original message-id
// via users.messages.list, so the reply lands in the same Gmail
// conversation (spec.md §4.4 step 3).
func (d *GmailDispatcher) resolveThreadID(svc *gmail.Service, reply Reply) string {
	messageID := reply.InReplyTo
	if messageID == "" {
		messageID = reply.ReferenceID
	}
	if messageID == "" {
		return ""
	}

	query := fmt.Sprintf("rfc822msgid:%s", strings.Trim(messageID, "<>"))
	resp, err := svc.Users.Messages.List("me").Q(query).MaxResults(1).Do()
	if err != nil || len(resp.Messages) == 0 {
		return ""
	}

	return resp.Messages[0].ThreadId
}

func buildRFC2822(reply Reply) (string, error) {
	var b strings.Builder
	fmt.Fprintf(&b, "From: %s\r\n", reply.From)
	fmt.Fprintf(&b, "To: %s\r\n", reply.To)
	fmt.Fprintf(&b, "Subject: %s\r\n", replySubject(reply.OriginalSubject))
	if reply.InReplyTo != "" {
		fmt.Fprintf(&b, "In-Reply-To: %s\r\n", reply.InReplyTo)
	}
	if reply.ReferenceID != "" {
		fmt.Fprintf(&b, "References: %s\r\n", reply.ReferenceID)
	}
	b.WriteString("Content-Type: text/plain; charset=\"UTF-8\"\r\n")
	b.WriteString("\r\n")
	b.WriteString(reply.Body)

	return base64.URLEncoding.EncodeToString([]byte(b.String())), nil
}
