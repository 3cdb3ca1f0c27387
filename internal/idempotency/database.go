package idempotency

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/tbourn/course-platform-backend/internal/domain"
	"github.com/tbourn/course-platform-backend/internal/repo"
)

// Database persists keys in processed_notifications. Expired rows are ignored
// by Seen and removed by repo.PurgeNotifications.
type Database struct {
	db  *gorm.DB
	ttl time.Duration
	now func() time.Time
}

// NewDatabase returns a cache over db. A non-positive ttl defaults to 24h.
func NewDatabase(db *gorm.DB, ttl time.Duration) *Database {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &Database{db: db, ttl: ttl, now: func() time.Time { return time.Now().UTC() }}
}

// Seen implements Cache.
func (d *Database) Seen(ctx context.Context, key string) (bool, error) {
	return repo.NotificationSeen(ctx, d.db, key, d.now())
}

// Mark implements Cache.
func (d *Database) Mark(ctx context.Context, key string) error {
	topic, id := splitKey(key)
	rec := domain.ProcessedNotification{Key: key, Topic: topic, ResourceID: id}
	_, err := repo.MarkNotification(ctx, d.db, rec, d.ttl, d.now())
	return err
}
