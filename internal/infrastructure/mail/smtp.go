// SPDX-License-Identifier: AGPL-3.0-or-later
package mail

import (
	"context"
	"crypto/tls"
	"fmt"
	"time"

	gomail "github.com/go-mail/mail/v2"

	"github.com/skyfunnel/warmup-worker/internal/domain/models"
	"github.com/skyfunnel/warmup-worker/internal/infrastructure/logger"
)

// SMTPDispatcher sends a reply over SMTP, authenticating with a decrypted
// mailbox password. Built the way SMTPSender.Send configures STARTTLS vs.
// implicit SSL and dials with a bounded timeout.
type SMTPDispatcher struct {
	dialTimeout time.Duration
}

func NewSMTPDispatcher() *SMTPDispatcher {
	return &SMTPDispatcher{dialTimeout: 10 * time.Second}
}

// Send delivers one reply over its own SMTP connection, retrying once
// after a 2-second sleep on a transient failure (spec.md §4.4 step 4).
func (d *SMTPDispatcher) Send(ctx context.Context, reply Reply, creds *models.Credentials) models.DispatchOutcome {
	endpoint, err := models.SMTPEndpointFor(creds.Service)
	if err != nil {
		logger.Component("mail").Error("no SMTP endpoint for service", "service", creds.Service, "error", err.Error())
		return models.TransientFailure
	}

	outcome := d.sendOnce(reply, creds, endpoint)
	if outcome == models.TransientFailure {
		time.Sleep(2 * time.Second)
		outcome = d.sendOnce(reply, creds, endpoint)
	}
	return outcome
}

// SendBatch shares one SMTP dialer/transport across a sender's entries to
// avoid a per-message handshake (spec.md §4.4 "sendBatch"), processed
// strictly sequentially. An AuthFailure on any entry aborts the remaining
// entries for this sender; those are reported as TransientFailure.
func (d *SMTPDispatcher) SendBatch(ctx context.Context, replies []Reply, creds *models.Credentials) []models.DispatchOutcome {
	outcomes := make([]models.DispatchOutcome, len(replies))
	for i := range outcomes {
		outcomes[i] = models.TransientFailure
	}

	endpoint, err := models.SMTPEndpointFor(creds.Service)
	if err != nil {
		logger.Component("mail").Error("no SMTP endpoint for service", "service", creds.Service, "error", err.Error())
		for i := range outcomes {
			outcomes[i] = models.TransientFailure
		}
		return outcomes
	}

	dialer := d.newDialer(replies[0].From, creds, endpoint)
	sender, closer, err := dialer.Dial()
	if err != nil {
		logger.Component("mail").Warn("failed to dial shared SMTP transport, falling back to per-message dial", "error", err.Error())
		for i, reply := range replies {
			outcomes[i] = d.sendOnce(reply, creds, endpoint)
			if outcomes[i] == models.AuthFailure {
				break
			}
		}
		return outcomes
	}
	defer func() { _ = closer.Close() }()

	for i, reply := range replies {
		m := d.buildMessage(reply, creds)
		if err := gomail.Send(sender, m); err != nil {
			outcomes[i] = classifyError(err)
			logger.Component("mail").Warn("smtp send failed", "to", reply.To, "error", err.Error())
			if outcomes[i] == models.AuthFailure {
				break
			}
			continue
		}
		outcomes[i] = models.Success
	}

	return outcomes
}

func (d *SMTPDispatcher) sendOnce(reply Reply, creds *models.Credentials, endpoint models.SMTPEndpoint) models.DispatchOutcome {
	dialer := d.newDialer(reply.From, creds, endpoint)
	m := d.buildMessage(reply, creds)

	if err := dialer.DialAndSend(m); err != nil {
		logger.Component("mail").Warn("smtp send failed", "to", reply.To, "error", err.Error())
		return classifyError(err)
	}

	logger.Component("mail").Info("smtp reply sent", "to", reply.To, "from", reply.From)
	return models.Success
}

func (d *SMTPDispatcher) newDialer(username string, creds *models.Credentials, endpoint models.SMTPEndpoint) *gomail.Dialer {
	dialer := gomail.NewDialer(endpoint.Host, endpoint.Port, username, creds.SMTPPassword)
	dialer.Timeout = d.dialTimeout

	if endpoint.SSL {
		dialer.SSL = true
		dialer.TLSConfig = &tls.Config{ServerName: endpoint.Host}
	} else {
		dialer.TLSConfig = &tls.Config{ServerName: endpoint.Host}
		dialer.StartTLSPolicy = gomail.MandatoryStartTLS
	}

	return dialer
}

func (d *SMTPDispatcher) buildMessage(reply Reply, creds *models.Credentials) *gomail.Message {
	m := gomail.NewMessage()
	m.SetHeader("From", reply.From)
	m.SetHeader("To", reply.To)
	m.SetHeader("Subject", replySubject(reply.OriginalSubject))

	if reply.InReplyTo != "" {
		m.SetHeader("In-Reply-To", reply.InReplyTo)
	}
	if reply.ReferenceID != "" {
		m.SetHeader("References", reply.ReferenceID)
	}

	m.SetBody("text/plain", reply.Body)
	return m
}

func replySubject(originalSubject string) string {
	if len(originalSubject) >= 3 && originalSubject[:3] == "Re:" {
		return originalSubject
	}
	return fmt.Sprintf("Re: %s", originalSubject)
}
