package redis

import (
	"context"
	"errors"
	"testing"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"

	"github.com/chatpe/chatpe-server/internal/store"
)

func setupTestRedis(t *testing.T) (*miniredis.Miniredis, *RedisStore) {
	t.Helper()

	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("start miniredis: %v", err)
	}
	t.Cleanup(mr.Close)

	client := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	s := NewWithClient(client, "")
	t.Cleanup(func() { _ = s.Close() })
	return mr, s
}

func TestLoadMissing(t *testing.T) {
	_, s := setupTestRedis(t)

	if _, err := s.Load(context.Background(), "ME"); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestSaveUsesPrefixedKey(t *testing.T) {
	mr, s := setupTestRedis(t)
	ctx := context.Background()

	snap := &store.Snapshot{Key: "ME", DisplayName: "Mechanical", Owner: "22ME010"}
	if err := s.Save(ctx, "ME", snap); err != nil {
		t.Fatalf("save: %v", err)
	}

	if !mr.Exists(DefaultPrefix + "room:ME") {
		t.Fatalf("expected key %q to exist", DefaultPrefix+"room:ME")
	}
	if ttl := mr.TTL(DefaultPrefix + "room:ME"); ttl != 0 {
		t.Fatalf("expected no expiry, got %v", ttl)
	}

	got, err := s.Load(ctx, "ME")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if got.Owner != "22ME010" || got.DisplayName != "Mechanical" {
		t.Fatalf("unexpected snapshot: %+v", got)
	}
}
