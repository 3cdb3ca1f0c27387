// Package idempotency remembers which payment-provider notifications have
// already been handled, so redeliveries of the same notification are no-ops.
//
// Three flavours share the Cache interface:
//   - Memory:   bounded, process-local, insertion-ordered eviction.
//   - Redis:    shared across replicas with a TTL per key.
//   - Database: durable rows in processed_notifications, purged by the sweep.
//
// The cache is a fast path only. The authoritative duplicate guard is the
// transaction-id check inside the entitlement grant transaction.
package idempotency

import (
	"context"
	"fmt"
	"strings"

	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"

	"github.com/tbourn/course-platform-backend/internal/config"
)

// Cache records processed notification keys.
type Cache interface {
	// Seen reports whether key was marked and has not been evicted or expired.
	Seen(ctx context.Context, key string) (bool, error)
	// Mark records key as processed.
	Mark(ctx context.Context, key string) error
}

// Key builds the cache key "<topic>-<resourceId>".
func Key(topic, resourceID string) string {
	return topic + "-" + resourceID
}

// splitKey is the inverse of Key for the database flavour's bookkeeping columns.
func splitKey(key string) (topic, resourceID string) {
	if i := strings.Index(key, "-"); i >= 0 {
		return key[:i], key[i+1:]
	}
	return key, ""
}

// New builds the cache selected by cfg.Backend.
func New(cfg config.IdempotencyConfig, rdb *redis.Client, db *gorm.DB) (Cache, error) {
	switch cfg.Backend {
	case "", "memory":
		return NewMemory(cfg.Capacity, cfg.Evict), nil
	case "redis":
		if rdb == nil {
			return nil, fmt.Errorf("idempotency: redis backend needs a client")
		}
		return NewRedis(rdb, cfg.TTL), nil
	case "database":
		if db == nil {
			return nil, fmt.Errorf("idempotency: database backend needs a db handle")
		}
		return NewDatabase(db, cfg.TTL), nil
	default:
		return nil, fmt.Errorf("idempotency: unknown backend %q", cfg.Backend)
	}
}
