// SPDX-License-Identifier: AGPL-3.0-or-later
package models

import (
	"fmt"
	"time"
)

// WarmupRequest is the wire payload of a queue message.
type WarmupRequest struct {
	To              string `json:"to"`
	OriginalSubject string `json:"originalSubject"`
	Body            string `json:"body"`
	Keyword         string `json:"keyword"`
	WarmupID        string `json:"warmupId"`
	ReferenceID     string `json:"referenceId,omitempty"`
	InReplyTo       string `json:"inReplyTo,omitempty"`
	ReplyFrom       string `json:"replyFrom"`
	CustomMailID    string `json:"customMailId"`
	ShouldReply     *bool  `json:"shouldReply,omitempty"`
	ScheduledFor    *int64 `json:"scheduledFor,omitempty"`
}

// Validate checks the fields that must be present after parsing, per the
// wire-payload invariant: to, originalSubject, body, warmupId, replyFrom,
// customMailId are required.
func (r *WarmupRequest) Validate() error {
	switch {
	case r.To == "":
		return fmt.Errorf("missing required field: to")
	case r.OriginalSubject == "":
		return fmt.Errorf("missing required field: originalSubject")
	case r.Body == "":
		return fmt.Errorf("missing required field: body")
	case r.WarmupID == "":
		return fmt.Errorf("missing required field: warmupId")
	case r.ReplyFrom == "":
		return fmt.Errorf("missing required field: replyFrom")
	case r.CustomMailID == "":
		return fmt.Errorf("missing required field: customMailId")
	}
	return nil
}

// WantsReply returns shouldReply, defaulting to true when absent.
func (r *WarmupRequest) WantsReply() bool {
	return r.ShouldReply == nil || *r.ShouldReply
}

// IsScheduledAfter reports whether scheduledFor is set and is after now
// (milliseconds since epoch).
func (r *WarmupRequest) IsScheduledAfter(nowMs int64) bool {
	return r.ScheduledFor != nil && *r.ScheduledFor > nowMs
}

// DedupKey is the coalescing key within an hour bucket: "<replyFrom>-><to>".
func (r *WarmupRequest) DedupKey() string {
	return DedupKey(r.ReplyFrom, r.To)
}

// DedupKey builds the coalescing key for a (replyFrom, to) pair.
func DedupKey(replyFrom, to string) string {
	return replyFrom + "->" + to
}

// BatchEntry is a WarmupRequest plus the queue bookkeeping needed to resolve
// it later: the receipt handle, insertion time, and the receive count
// observed at the moment of admission.
type BatchEntry struct {
	WarmupRequest
	ReceiptHandle string    `json:"receiptHandle"`
	AddedAt       time.Time `json:"addedAt"`
	ReceiveCount  int       `json:"receiveCount"`
}

// HourBucketKey returns the logical bucket key for the hour containing t.
func HourBucketKey(t time.Time) string {
	hour := t.UnixMilli() / 3_600_000
	return fmt.Sprintf("email_batch:%d", hour)
}

// QueueEnvelope is what the queue adapter hands back per message.
type QueueEnvelope struct {
	Body                    string
	ReceiptHandle           string
	ApproximateReceiveCount int
}
