package redis

import (
	"context"
	"errors"
	"fmt"

	goredis "github.com/redis/go-redis/v9"

	"github.com/chatpe/chatpe-server/internal/store"
)

// DefaultPrefix is prepended to every key written by the store.
const DefaultPrefix = "chatpe:"

// RedisStore implements store.Store on a Redis server, one string key per room.
type RedisStore struct {
	client *goredis.Client
	prefix string
}

// New connects to the Redis server described by a redis:// URL.
func New(ctx context.Context, url, prefix string) (*RedisStore, error) {
	opts, err := goredis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	client := goredis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return NewWithClient(client, prefix), nil
}

// NewWithClient wraps an existing client.
func NewWithClient(client *goredis.Client, prefix string) *RedisStore {
	if prefix == "" {
		prefix = DefaultPrefix
	}
	return &RedisStore{client: client, prefix: prefix}
}

// Load retrieves the snapshot of a room.
func (s *RedisStore) Load(ctx context.Context, key string) (*store.Snapshot, error) {
	data, err := s.client.Get(ctx, s.buildKey(key)).Bytes()
	if err != nil {
		if errors.Is(err, goredis.Nil) {
			return nil, store.ErrNotFound
		}
		return nil, fmt.Errorf("get snapshot: %w", err)
	}
	return store.Decode(data)
}

// Save stores the snapshot without expiry; message TTL is enforced by pruning.
func (s *RedisStore) Save(ctx context.Context, key string, snap *store.Snapshot) error {
	data, err := store.Encode(snap)
	if err != nil {
		return err
	}
	if err := s.client.Set(ctx, s.buildKey(key), data, 0).Err(); err != nil {
		return fmt.Errorf("set snapshot: %w", err)
	}
	return nil
}

// Close closes the client.
func (s *RedisStore) Close() error {
	return s.client.Close()
}

func (s *RedisStore) buildKey(key string) string {
	return s.prefix + "room:" + key
}
