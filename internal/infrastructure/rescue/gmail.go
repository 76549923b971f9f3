// SPDX-License-Identifier: AGPL-3.0-or-later
package rescue

import (
	"context"
	"fmt"
	"strings"

	"golang.org/x/oauth2"
	"google.golang.org/api/gmail/v1"
	"google.golang.org/api/option"

	"github.com/skyfunnel/warmup-worker/internal/domain/models"
	"github.com/skyfunnel/warmup-worker/internal/infrastructure/credentials"
	"github.com/skyfunnel/warmup-worker/internal/infrastructure/logger"
)

// GmailRescuer moves spam-flagged messages to the inbox through the Gmail
// vendor API (spec.md §4.5 VendorAPI path).
type GmailRescuer struct {
	resolver *credentials.Resolver
}

func NewGmailRescuer(resolver *credentials.Resolver) *GmailRescuer {
	return &GmailRescuer{resolver: resolver}
}

func (r *GmailRescuer) Rescue(ctx context.Context, customMailID, senderAddr string, creds *models.Credentials) models.DispatchOutcome {
	tokenSource := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: creds.OAuthAccess})
	svc, err := gmail.NewService(ctx, option.WithTokenSource(tokenSource))
	if err != nil {
		logger.Component("rescue").Warn("failed to build gmail service client", "addr", senderAddr, "error", err.Error())
		return classifyIMAPError(err)
	}

	query := fmt.Sprintf(`in:spam subject:"%s"`, customMailID)
	resp, err := svc.Users.Messages.List("me").Q(query).Context(ctx).Do()
	if err != nil {
		logger.Component("rescue").Warn("gmail spam list failed", "tag", customMailID, "error", err.Error())
		return classifyIMAPError(err)
	}

	var matchIDs []string
	for _, msg := range resp.Messages {
		full, err := svc.Users.Messages.Get("me", msg.Id).Format("metadata").MetadataHeaders("Subject").Context(ctx).Do()
		if err != nil {
			continue
		}
		if subjectContains(full, customMailID) {
			matchIDs = append(matchIDs, msg.Id)
		}
	}

	if len(matchIDs) == 0 {
		logger.Component("rescue").Debug("no spam messages matched tag", "tag", customMailID)
		return models.Success
	}

	_, err = svc.Users.Messages.BatchModify("me", &gmail.BatchModifyMessagesRequest{
		Ids:            matchIDs,
		RemoveLabelIds: []string{"SPAM"},
		AddLabelIds:    []string{"INBOX"},
	}).Context(ctx).Do()
	if err != nil {
		logger.Component("rescue").Warn("gmail batch-modify failed", "tag", customMailID, "error", err.Error())
		return classifyIMAPError(err)
	}

	logger.Component("rescue").Info("rescued messages from spam", "tag", customMailID, "count", len(matchIDs))
	return models.Success
}

func subjectContains(msg *gmail.Message, tag string) bool {
	if msg.Payload == nil {
		return false
	}
	for _, header := range msg.Payload.Headers {
		if strings.EqualFold(header.Name, "Subject") {
			return strings.Contains(header.Value, tag)
		}
	}
	return false
}
