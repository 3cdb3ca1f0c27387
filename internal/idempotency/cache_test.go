package idempotency

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	sqlite "github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/tbourn/course-platform-backend/internal/config"
	"github.com/tbourn/course-platform-backend/internal/repo"
)

func TestKey(t *testing.T) {
	assert.Equal(t, "payment-123", Key("payment", "123"))
	topic, id := splitKey("merchant_order-9-9")
	assert.Equal(t, "merchant_order", topic)
	assert.Equal(t, "9-9", id)
}

func TestMemory_MarkAndSeen(t *testing.T) {
	ctx := context.Background()
	m := NewMemory(0, 0)

	seen, err := m.Seen(ctx, "payment-1")
	require.NoError(t, err)
	assert.False(t, seen)

	require.NoError(t, m.Mark(ctx, "payment-1"))
	require.NoError(t, m.Mark(ctx, "payment-1"))
	seen, _ = m.Seen(ctx, "payment-1")
	assert.True(t, seen)
	assert.Equal(t, 1, m.Len())
}

func TestMemory_EvictsOldestBatchOverCapacity(t *testing.T) {
	ctx := context.Background()
	m := NewMemory(1000, 100)

	for i := 0; i < 1000; i++ {
		require.NoError(t, m.Mark(ctx, Key("payment", fmt.Sprint(i))))
	}
	assert.Equal(t, 1000, m.Len(), "at capacity nothing is evicted")

	require.NoError(t, m.Mark(ctx, "payment-1000"))
	assert.Equal(t, 901, m.Len())

	for i := 0; i < 100; i++ {
		seen, _ := m.Seen(ctx, Key("payment", fmt.Sprint(i)))
		assert.False(t, seen, "key %d should have been evicted", i)
	}
	for _, i := range []int{100, 500, 999, 1000} {
		seen, _ := m.Seen(ctx, Key("payment", fmt.Sprint(i)))
		assert.True(t, seen, "key %d should survive", i)
	}
}

func TestMemory_ConcurrentMarks(t *testing.T) {
	ctx := context.Background()
	m := NewMemory(50, 10)

	var wg sync.WaitGroup
	for g := 0; g < 8; g++ {
		wg.Add(1)
		go func(g int) {
			defer wg.Done()
			for i := 0; i < 200; i++ {
				_ = m.Mark(ctx, fmt.Sprintf("k-%d-%d", g, i))
				_, _ = m.Seen(ctx, fmt.Sprintf("k-%d-%d", g, i))
			}
		}(g)
	}
	wg.Wait()
	assert.LessOrEqual(t, m.Len(), 50)
}

func TestNewMemory_ClampsEvict(t *testing.T) {
	m := NewMemory(5, 50)
	assert.Equal(t, 5, m.evict)
}

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:idem_%s?mode=memory&cache=shared", uuid.NewString())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	require.NoError(t, err)
	require.NoError(t, repo.AutoMigrate(db))
	return db
}

func TestDatabase_MarkSeenAndExpiry(t *testing.T) {
	ctx := context.Background()
	d := NewDatabase(newTestDB(t), time.Hour)
	base := time.Now().UTC()
	d.now = func() time.Time { return base }

	seen, err := d.Seen(ctx, "payment-77")
	require.NoError(t, err)
	assert.False(t, seen)

	require.NoError(t, d.Mark(ctx, "payment-77"))
	require.NoError(t, d.Mark(ctx, "payment-77"))
	seen, err = d.Seen(ctx, "payment-77")
	require.NoError(t, err)
	assert.True(t, seen)

	d.now = func() time.Time { return base.Add(2 * time.Hour) }
	seen, _ = d.Seen(ctx, "payment-77")
	assert.False(t, seen, "expired rows are not seen")
}

func TestRedis_MarkAndSeen(t *testing.T) {
	client := redis.NewClient(&redis.Options{Addr: "localhost:6379", DB: 15})
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		t.Skipf("redis not reachable: %v", err)
	}
	t.Cleanup(func() { _ = client.Close() })

	r := NewRedis(client, time.Minute)
	key := Key("payment", uuid.NewString())
	t.Cleanup(func() { client.Del(context.Background(), RedisPrefix+key) })

	seen, err := r.Seen(ctx, key)
	require.NoError(t, err)
	assert.False(t, seen)

	require.NoError(t, r.Mark(ctx, key))
	seen, err = r.Seen(ctx, key)
	require.NoError(t, err)
	assert.True(t, seen)

	ttl, err := client.TTL(ctx, RedisPrefix+key).Result()
	require.NoError(t, err)
	assert.Greater(t, ttl, time.Duration(0))
}

func TestNew_SelectsBackend(t *testing.T) {
	c, err := New(config.IdempotencyConfig{Backend: "memory", Capacity: 10, Evict: 2}, nil, nil)
	require.NoError(t, err)
	assert.IsType(t, &Memory{}, c)

	c, err = New(config.IdempotencyConfig{Backend: "database"}, nil, newTestDB(t))
	require.NoError(t, err)
	assert.IsType(t, &Database{}, c)

	_, err = New(config.IdempotencyConfig{Backend: "redis"}, nil, nil)
	assert.Error(t, err)

	_, err = New(config.IdempotencyConfig{Backend: "etcd"}, nil, nil)
	assert.Error(t, err)
}
