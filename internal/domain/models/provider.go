// SPDX-License-Identifier: AGPL-3.0-or-later
package models

import "fmt"

// SMTPEndpoint describes where to dial for a given mailbox provider
// (spec.md §6: "Gmail-compatible STARTTLS on 587 or SSL on 465").
type SMTPEndpoint struct {
	Host string
	Port int
	SSL  bool // true = implicit TLS (465); false = STARTTLS (587)
}

var smtpEndpoints = map[string]SMTPEndpoint{
	"gmail":     {Host: "smtp.gmail.com", Port: 587, SSL: false},
	"outlook":   {Host: "smtp.office365.com", Port: 587, SSL: false},
	"skyfunnel": {Host: "smtp.skyfunnel.app", Port: 465, SSL: true},
}

// SMTPEndpointFor looks up the dial target for a credential's service.
func SMTPEndpointFor(service string) (SMTPEndpoint, error) {
	endpoint, ok := smtpEndpoints[service]
	if !ok {
		return SMTPEndpoint{}, fmt.Errorf("no SMTP endpoint configured for service %q", service)
	}
	return endpoint, nil
}

// MailboxFolders names the IMAP mailboxes (Spam and Inbox) the spam rescuer
// moves messages between, per provider (spec.md §6).
type MailboxFolders struct {
	Spam  string
	Inbox string
}

var imapFolders = map[string]MailboxFolders{
	"gmail":     {Spam: "[Gmail]/Spam", Inbox: "INBOX"},
	"outlook":   {Spam: "Spam", Inbox: "Inbox"},
	"skyfunnel": {Spam: "SPAM", Inbox: "INBOX"},
}

// MailboxFoldersFor looks up the spam/inbox folder names for a service,
// defaulting to Gmail's folder names for an unrecognized service since
// Gmail is the documented common case.
func MailboxFoldersFor(service string) (MailboxFolders, error) {
	if folders, ok := imapFolders[service]; ok {
		return folders, nil
	}
	return imapFolders["gmail"], nil
}
