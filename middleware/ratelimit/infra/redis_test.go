package infra

import (
	"context"
	"os"
	"strconv"
	"testing"
	"time"

	"cab-gateway/middleware/ratelimit/domain"

	"github.com/redis/go-redis/v9"
)

// Os testes abaixo precisam de um Redis real: REDIS_ADDR=localhost:6379 go test ./...
func testRedis(t *testing.T) *redis.Client {
	t.Helper()
	addr := os.Getenv("REDIS_ADDR")
	if addr == "" {
		t.Skip("REDIS_ADDR not set")
	}
	rdb := redis.NewClient(&redis.Options{Addr: addr})
	t.Cleanup(func() { _ = rdb.Close() })

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		t.Skipf("redis not reachable: %v", err)
	}
	return rdb
}

func TestRedisWindowStore_RejectsAfterMax(t *testing.T) {
	rdb := testRedis(t)
	prefix := "test:window:" + strconv.FormatInt(time.Now().UnixNano(), 10)
	s := NewRedisWindowStore(rdb, time.Minute, 2, WithWindowPrefix(prefix))
	ctx := context.Background()
	now := time.Now()

	for i := 0; i < 2; i++ {
		dec, err := s.Admit(ctx, "k", now)
		if err != nil {
			t.Fatalf("admit: %v", err)
		}
		if !dec.Allowed {
			t.Fatalf("expected request %d admitted", i+1)
		}
	}
	dec, err := s.Admit(ctx, "k", now)
	if err != nil {
		t.Fatalf("admit: %v", err)
	}
	if dec.Allowed {
		t.Fatalf("expected third request rejected")
	}
	if dec.RetryAfter <= 0 || dec.RetryAfter > time.Minute {
		t.Fatalf("expected RetryAfter within the window, got %s", dec.RetryAfter)
	}
}

func TestRedisStatsStore_RecordsTotals(t *testing.T) {
	rdb := testRedis(t)
	prefix := "test:stats:" + strconv.FormatInt(time.Now().UnixNano(), 10)
	s := NewRedisStatsStore(rdb, WithStatsPrefix(prefix), WithStatsBucket("none"))
	ctx := context.Background()

	if err := s.Record(ctx, domain.StatsEvent{Key: "k", Allowed: true, Method: "GET", Path: "/x"}); err != nil {
		t.Fatalf("record: %v", err)
	}
	if err := s.Record(ctx, domain.StatsEvent{Key: "k", Allowed: false, Method: "GET", Path: "/x"}); err != nil {
		t.Fatalf("record: %v", err)
	}

	got, err := rdb.HGetAll(ctx, prefix+":total").Result()
	if err != nil {
		t.Fatalf("hgetall: %v", err)
	}
	if got["allowed"] != "1" || got["denied"] != "1" {
		t.Fatalf("unexpected totals: %v", got)
	}
}

func TestRedisStatsStore_BucketKeyLayouts(t *testing.T) {
	at := time.Date(2024, 3, 5, 14, 7, 0, 0, time.UTC)

	cases := map[string]string{
		"minute": "p:minute:202403051407",
		"hour":   "p:hour:2024030514",
		"day":    "p:day:20240305",
		"none":   "",
	}
	for bucket, want := range cases {
		s := NewRedisStatsStore(nil, WithStatsPrefix("p:"), WithStatsBucket(bucket))
		if got := s.bucketKey(at); got != want {
			t.Fatalf("bucket %q: expected %q, got %q", bucket, want, got)
		}
	}
}
