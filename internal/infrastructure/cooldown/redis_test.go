// SPDX-License-Identifier: AGPL-3.0-or-later
package cooldown

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/skyfunnel/warmup-worker/internal/domain/models"
)

func newTestStore(t *testing.T) (*RedisStore, *miniredis.Miniredis) {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	return &RedisStore{client: client}, mr
}

func TestMarkAndIsBlocked(t *testing.T) {
	store, mr := newTestStore(t)
	ctx := context.Background()

	blocked, err := store.IsBlocked(ctx, "sender@example.com")
	require.NoError(t, err)
	require.False(t, blocked)

	require.NoError(t, store.MarkBlocked(ctx, "sender@example.com"))

	blocked, err = store.IsBlocked(ctx, "sender@example.com")
	require.NoError(t, err)
	require.True(t, blocked)

	ttl := mr.TTL(blockKeyPrefix + "sender@example.com")
	require.InDelta(t, BlockTTL.Seconds(), ttl.Seconds(), 2)

	require.NoError(t, store.ClearBlocked(ctx, "sender@example.com"))
	blocked, err = store.IsBlocked(ctx, "sender@example.com")
	require.NoError(t, err)
	require.False(t, blocked)
}

func TestMarkAndIsInCooldown(t *testing.T) {
	store, mr := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.MarkCooldown(ctx, "sender@example.com"))

	inCooldown, err := store.IsInCooldown(ctx, "sender@example.com")
	require.NoError(t, err)
	require.True(t, inCooldown)

	ttl := mr.TTL(cooldownKeyPrefix + "sender@example.com")
	require.InDelta(t, CooldownTTL.Seconds(), ttl.Seconds(), 2)
}

func TestAddToBucket_InsertsOnceAndDedupes(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	entry := Entry{
		WarmupRequest: models.WarmupRequest{To: "bob@example.com"},
		ReceiptHandle: "handle-1",
		AddedAt:       time.Now(),
	}

	inserted, err := store.AddToBucket(ctx, "alice@example.com", entry)
	require.NoError(t, err)
	require.True(t, inserted)

	inserted, err = store.AddToBucket(ctx, "alice@example.com", entry)
	require.NoError(t, err)
	require.False(t, inserted, "duplicate insert must report inserted=false")
}

func TestAddToBucket_RefreshesTTL(t *testing.T) {
	store, mr := newTestStore(t)
	ctx := context.Background()

	entry := Entry{WarmupRequest: models.WarmupRequest{To: "bob@example.com"}}
	_, err := store.AddToBucket(ctx, "alice@example.com", entry)
	require.NoError(t, err)

	bucketKey := models.HourBucketKey(time.Now())
	ttl := mr.TTL(bucketKey)
	require.InDelta(t, BucketTTL.Seconds(), ttl.Seconds(), 2)
}

func TestReadBucket_GroupsBySender(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	_, err := store.AddToBucket(ctx, "alice@example.com", Entry{WarmupRequest: models.WarmupRequest{To: "bob@example.com"}})
	require.NoError(t, err)
	_, err = store.AddToBucket(ctx, "alice@example.com", Entry{WarmupRequest: models.WarmupRequest{To: "carol@example.com"}})
	require.NoError(t, err)
	_, err = store.AddToBucket(ctx, "dave@example.com", Entry{WarmupRequest: models.WarmupRequest{To: "erin@example.com"}})
	require.NoError(t, err)

	grouped, err := store.ReadBucket(ctx)
	require.NoError(t, err)
	require.Len(t, grouped["alice@example.com"], 2)
	require.Len(t, grouped["dave@example.com"], 1)
}

func TestRemoveSenders(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	_, err := store.AddToBucket(ctx, "alice@example.com", Entry{WarmupRequest: models.WarmupRequest{To: "bob@example.com"}})
	require.NoError(t, err)
	_, err = store.AddToBucket(ctx, "dave@example.com", Entry{WarmupRequest: models.WarmupRequest{To: "erin@example.com"}})
	require.NoError(t, err)

	require.NoError(t, store.RemoveSenders(ctx, []string{"alice@example.com"}))

	grouped, err := store.ReadBucket(ctx)
	require.NoError(t, err)
	require.NotContains(t, grouped, "alice@example.com")
	require.Contains(t, grouped, "dave@example.com")
}

func TestRemoveSenders_EmptyListNoop(t *testing.T) {
	store, _ := newTestStore(t)
	require.NoError(t, store.RemoveSenders(context.Background(), nil))
}
