package cache

import (
	"context"
	stderrors "errors"
	"fmt"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/goccy/go-json"
	"github.com/redis/go-redis/v9"

	"project-recommender/internal/common/errors"
)

const purgeBatch = 100

// RedisStore is the shared second-level cache. Every failure is reported as
// CacheUnavailable.
type RedisStore struct {
	client   *redis.Client
	prefix   string
	indexTTL time.Duration
}

// NewRedisStore stores entries under prefix. indexTTL bounds the per-user key
// index and should be at least the longest entry TTL.
func NewRedisStore(client *redis.Client, prefix string, indexTTL time.Duration) *RedisStore {
	return &RedisStore{client: client, prefix: prefix, indexTTL: indexTTL}
}

func (s *RedisStore) entryKey(key string) string {
	return fmt.Sprintf("%sentry:%016x", s.prefix, xxhash.Sum64String(key))
}

func (s *RedisStore) userKey(userID string) string {
	return s.prefix + "user:" + userID
}

func (s *RedisStore) Get(ctx context.Context, key string) (*Entry, error) {
	data, err := s.client.Get(ctx, s.entryKey(key)).Bytes()
	if stderrors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, errors.NewCacheUnavailableError(err)
	}
	var entry Entry
	if err := json.Unmarshal(data, &entry); err != nil {
		return nil, errors.NewCacheUnavailableError(fmt.Errorf("decode entry: %w", err))
	}
	// different request sharing the hashed key
	if entry.Key != key {
		return nil, nil
	}
	return &entry, nil
}

func (s *RedisStore) Set(ctx context.Context, entry *Entry) error {
	data, err := json.Marshal(entry)
	if err != nil {
		return errors.NewCacheUnavailableError(fmt.Errorf("encode entry: %w", err))
	}
	k := s.entryKey(entry.Key)
	pipe := s.client.TxPipeline()
	pipe.Set(ctx, k, data, entry.TTL)
	if userID := entry.Request.UserID(); userID != "" {
		pipe.SAdd(ctx, s.userKey(userID), k)
		pipe.Expire(ctx, s.userKey(userID), s.indexTTL)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return errors.NewCacheUnavailableError(err)
	}
	return nil
}

func (s *RedisStore) DeleteUser(ctx context.Context, userID string) error {
	index := s.userKey(userID)
	keys, err := s.client.SMembers(ctx, index).Result()
	if err != nil {
		return errors.NewCacheUnavailableError(err)
	}
	if err := s.client.Del(ctx, append(keys, index)...).Err(); err != nil {
		return errors.NewCacheUnavailableError(err)
	}
	return nil
}

func (s *RedisStore) Purge(ctx context.Context) error {
	iter := s.client.Scan(ctx, 0, s.prefix+"*", purgeBatch).Iterator()
	batch := make([]string, 0, purgeBatch)
	for iter.Next(ctx) {
		batch = append(batch, iter.Val())
		if len(batch) == purgeBatch {
			if err := s.client.Del(ctx, batch...).Err(); err != nil {
				return errors.NewCacheUnavailableError(err)
			}
			batch = batch[:0]
		}
	}
	if err := iter.Err(); err != nil {
		return errors.NewCacheUnavailableError(err)
	}
	if len(batch) > 0 {
		if err := s.client.Del(ctx, batch...).Err(); err != nil {
			return errors.NewCacheUnavailableError(err)
		}
	}
	return nil
}
