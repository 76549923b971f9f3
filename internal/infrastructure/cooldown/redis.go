// SPDX-License-Identifier: AGPL-3.0-or-later
package cooldown

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/skyfunnel/warmup-worker/internal/domain/models"
	"github.com/skyfunnel/warmup-worker/internal/infrastructure/config"
	"github.com/skyfunnel/warmup-worker/internal/infrastructure/logger"
)

const (
	blockKeyPrefix    = "auth_fail:"
	cooldownKeyPrefix = "warmup_cooldown:"
)

// RedisStore implements Store over github.com/redis/go-redis/v9.
type RedisStore struct {
	client *redis.Client
}

// NewRedisStore dials Redis from config and verifies connectivity with a
// bounded PING, the way the teacher's own infra constructors ping their
// dependency before returning it usable.
func NewRedisStore(ctx context.Context, cfg config.CooldownConfig) (*RedisStore, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to cooldown store: %w", err)
	}

	logger.Component("cooldown").Info("cooldown store connected", "addr", cfg.Addr)

	return &RedisStore{client: client}, nil
}

func (s *RedisStore) MarkBlocked(ctx context.Context, addr string) error {
	if err := s.client.Set(ctx, blockKeyPrefix+addr, "1", BlockTTL).Err(); err != nil {
		return fmt.Errorf("%w: %s", models.ErrStoreUnavailable, err)
	}
	return nil
}

func (s *RedisStore) IsBlocked(ctx context.Context, addr string) (bool, error) {
	return s.exists(ctx, blockKeyPrefix+addr)
}

func (s *RedisStore) ClearBlocked(ctx context.Context, addr string) error {
	if err := s.client.Del(ctx, blockKeyPrefix+addr).Err(); err != nil {
		return fmt.Errorf("%w: %s", models.ErrStoreUnavailable, err)
	}
	return nil
}

func (s *RedisStore) MarkCooldown(ctx context.Context, addr string) error {
	if err := s.client.Set(ctx, cooldownKeyPrefix+addr, "1", CooldownTTL).Err(); err != nil {
		return fmt.Errorf("%w: %s", models.ErrStoreUnavailable, err)
	}
	return nil
}

func (s *RedisStore) IsInCooldown(ctx context.Context, addr string) (bool, error) {
	return s.exists(ctx, cooldownKeyPrefix+addr)
}

func (s *RedisStore) exists(ctx context.Context, key string) (bool, error) {
	n, err := s.client.Exists(ctx, key).Result()
	if err != nil {
		return false, fmt.Errorf("%w: %s", models.ErrStoreUnavailable, err)
	}
	return n > 0, nil
}

// AddToBucket HSETNX's the entry under the hour bucket key, refreshing the
// bucket's TTL on every call regardless of whether this particular field was
// newly inserted (spec.md §4.2: TTL refreshed on last write).
func (s *RedisStore) AddToBucket(ctx context.Context, replyFrom string, entry Entry) (bool, error) {
	bucketKey := models.HourBucketKey(time.Now())
	field := models.DedupKey(replyFrom, entry.To)

	payload, err := json.Marshal(entry)
	if err != nil {
		return false, fmt.Errorf("failed to serialize bucket entry: %w", err)
	}

	inserted, err := s.client.HSetNX(ctx, bucketKey, field, payload).Result()
	if err != nil {
		return false, fmt.Errorf("%w: %s", models.ErrStoreUnavailable, err)
	}

	if err := s.client.Expire(ctx, bucketKey, BucketTTL).Err(); err != nil {
		logger.Component("cooldown").Warn("failed to refresh bucket TTL", "error", err.Error(), "bucket", bucketKey)
	}

	return inserted, nil
}

// ReadBucket reads the current hour bucket and regroups fields by the
// sender segment preceding "->".
func (s *RedisStore) ReadBucket(ctx context.Context) (map[string][]Entry, error) {
	bucketKey := models.HourBucketKey(time.Now())

	fields, err := s.client.HGetAll(ctx, bucketKey).Result()
	if err != nil {
		return nil, fmt.Errorf("%w: %s", models.ErrStoreUnavailable, err)
	}

	grouped := make(map[string][]Entry)
	for field, raw := range fields {
		sender, _, ok := strings.Cut(field, "->")
		if !ok {
			logger.Component("cooldown").Warn("malformed bucket field, skipping", "field", field)
			continue
		}

		var entry Entry
		if err := json.Unmarshal([]byte(raw), &entry); err != nil {
			logger.Component("cooldown").Warn("failed to deserialize bucket entry, skipping", "field", field, "error", err.Error())
			continue
		}

		grouped[sender] = append(grouped[sender], entry)
	}

	return grouped, nil
}

// RemoveSenders deletes every field in the current hour bucket whose sender
// segment matches one of senders.
func (s *RedisStore) RemoveSenders(ctx context.Context, senders []string) error {
	if len(senders) == 0 {
		return nil
	}

	bucketKey := models.HourBucketKey(time.Now())

	fields, err := s.client.HKeys(ctx, bucketKey).Result()
	if err != nil {
		return fmt.Errorf("%w: %s", models.ErrStoreUnavailable, err)
	}

	wanted := make(map[string]struct{}, len(senders))
	for _, sender := range senders {
		wanted[sender] = struct{}{}
	}

	toDelete := make([]string, 0, len(fields))
	for _, field := range fields {
		sender, _, ok := strings.Cut(field, "->")
		if !ok {
			continue
		}
		if _, match := wanted[sender]; match {
			toDelete = append(toDelete, field)
		}
	}

	if len(toDelete) == 0 {
		return nil
	}

	if err := s.client.HDel(ctx, bucketKey, toDelete...).Err(); err != nil {
		return fmt.Errorf("%w: %s", models.ErrStoreUnavailable, err)
	}
	return nil
}
