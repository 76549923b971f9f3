// SPDX-License-Identifier: AGPL-3.0-or-later
package cooldown

import (
	"context"
	"time"

	"github.com/skyfunnel/warmup-worker/internal/domain/models"
)

// BlockTTL is the lifetime of an auth_fail:<addr> key (spec.md §4.2: 8h).
const BlockTTL = 8 * time.Hour

// CooldownTTL is the lifetime of a warmup_cooldown:<addr> key (spec.md §4.2: 2d).
const CooldownTTL = 48 * time.Hour

// BucketTTL is the lifetime of an hour bucket, refreshed on every write
// (spec.md §4.2: 2x hour-length from last write).
const BucketTTL = 2 * time.Hour

// Entry is one admitted warmup request sitting in the current hour bucket,
// serialized as a hash field value.
type Entry struct {
	models.WarmupRequest
	ReceiptHandle string    `json:"receiptHandle"`
	AddedAt       time.Time `json:"addedAt"`
	ReceiveCount  int       `json:"receiveCount"`
}

// Store is the cooldown/coalescing store the ingest and batch loops share.
type Store interface {
	MarkBlocked(ctx context.Context, addr string) error
	IsBlocked(ctx context.Context, addr string) (bool, error)
	ClearBlocked(ctx context.Context, addr string) error

	MarkCooldown(ctx context.Context, addr string) error
	IsInCooldown(ctx context.Context, addr string) (bool, error)

	// AddToBucket inserts entry into the current hour bucket under
	// "<replyFrom>-><entry.To>", only if that field is absent. inserted is
	// false both for a genuine duplicate and for a store failure — in
	// either case the caller must not delete the queue message.
	AddToBucket(ctx context.Context, replyFrom string, entry Entry) (inserted bool, err error)

	// ReadBucket returns the current hour bucket's entries grouped by
	// reply-from sender (the field name's first segment).
	ReadBucket(ctx context.Context) (map[string][]Entry, error)

	// RemoveSenders deletes every bucket field belonging to the given
	// senders.
	RemoveSenders(ctx context.Context, senders []string) error
}
