// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides helpers for the processed_notifications
// table that backs the database flavour of the webhook notification cache.
package repo

import (
	"context"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/tbourn/course-platform-backend/internal/domain"
)

// MarkNotification records key as processed until now+ttl. Marking an already
// present key refreshes its expiry. It reports whether a new row was inserted.
func MarkNotification(ctx context.Context, db *gorm.DB, rec domain.ProcessedNotification, ttl time.Duration, now time.Time) (bool, error) {
	rec.CreatedAt = now
	rec.ExpiresAt = now.Add(ttl)

	var existing int64
	if err := db.WithContext(ctx).
		Model(&domain.ProcessedNotification{}).
		Where("notification_key = ?", rec.Key).
		Count(&existing).Error; err != nil {
		return false, err
	}

	err := db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "notification_key"}},
			DoUpdates: clause.AssignmentColumns([]string{"expires_at"}),
		}).
		Create(&rec).Error
	if err != nil {
		return false, err
	}
	return existing == 0, nil
}

// NotificationSeen reports whether key has a non-expired row at now.
func NotificationSeen(ctx context.Context, db *gorm.DB, key string, now time.Time) (bool, error) {
	var n int64
	err := db.WithContext(ctx).
		Model(&domain.ProcessedNotification{}).
		Where("notification_key = ? AND expires_at > ?", key, now).
		Count(&n).Error
	return n > 0, err
}

// PurgeNotifications deletes rows that expired before now.
func PurgeNotifications(ctx context.Context, db *gorm.DB, now time.Time) (int64, error) {
	res := db.WithContext(ctx).
		Where("expires_at <= ?", now).
		Delete(&domain.ProcessedNotification{})
	return res.RowsAffected, res.Error
}
