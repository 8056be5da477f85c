package testutil

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// GetTestRedisAddr returns the Redis address to test against and whether it answered PING.
// REDIS_ADDR wins; otherwise the docker-compose service name, the default port and the local
// test port are tried in turn.
func GetTestRedisAddr(t TestingTB) (string, bool) {
	t.Helper()
	if addr := os.Getenv("REDIS_ADDR"); addr != "" {
		return addr, pingRedis(t, addr)
	}
	for _, candidate := range []string{"redis:6379", "localhost:6379"} {
		if pingRedis(t, candidate) {
			return candidate, true
		}
	}
	const local = "localhost:56379"
	return local, pingRedis(t, local)
}

func pingRedis(t TestingTB, addr string) bool {
	t.Helper()
	client := redis.NewClient(&redis.Options{Addr: addr})
	defer func() { _ = client.Close() }()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		t.Logf("Redis not available at %s: %v", addr, err)
		return false
	}
	return true
}

// selectTestRedisDB picks a logical DB so parallel packages do not flush each other's keys.
// TEST_REDIS_DB overrides; otherwise a DB in 1..15 is reserved with a lock key in DB 0.
func selectTestRedisDB(t TestingTB, addr string) int {
	if v := os.Getenv("TEST_REDIS_DB"); v != "" {
		if i, err := strconv.Atoi(v); err == nil && i >= 0 {
			return i
		}
		t.Logf("Invalid TEST_REDIS_DB=%q, falling back to auto-select", v)
	}

	meta := redis.NewClient(&redis.Options{Addr: addr, DB: 0})
	defer func() { _ = meta.Close() }()

	for i := 1; i <= 15; i++ {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		lockKey := fmt.Sprintf("enquiry:testutil:db_lock:%d", i)
		ok, err := meta.SetNX(ctx, lockKey, strconv.Itoa(os.Getpid()), 30*time.Minute).Result()
		cancel()
		if err != nil || !ok {
			continue
		}
		registerCleanup(t, func() {
			c := redis.NewClient(&redis.Options{Addr: addr, DB: 0})
			ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			if err := c.Del(ctx, lockKey).Err(); err != nil {
				t.Logf("warning: failed to release redis db lock %s: %v", lockKey, err)
			}
			_ = c.Close()
		})
		return i
	}
	t.Logf("Falling back to Redis DB=1 for tests at %s", addr)
	return 1
}

// SetupTestRedis returns a client on a flushed, reserved DB, or skips the test when Redis is
// unreachable.
func SetupTestRedis(t TestingTB) *redis.Client {
	t.Helper()
	addr, ok := GetTestRedisAddr(t)
	if !ok {
		skipOrFail(t, requireRedis(), "Redis not available for testing")
		return nil
	}
	client := redis.NewClient(&redis.Options{Addr: addr, DB: selectTestRedisDB(t, addr)})
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := client.FlushDB(ctx).Err(); err != nil {
		_ = client.Close()
		t.Fatalf("flush test redis db: %v", err)
	}
	return client
}
