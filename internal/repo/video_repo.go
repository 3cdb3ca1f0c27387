// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides repository functions for videos and
// per-user viewing progress.
//
// Functions:
//
//   - CreateVideo(ctx, db, v) -> error
//   - GetVideo(ctx, db, id) -> *domain.Video, error
//     Loads the video with its category; soft-deleted rows are excluded.
//   - ListVideosPage(ctx, db, filter, offset, limit) -> []domain.Video, error
//   - CountVideos(ctx, db, filter) -> int64, error
//   - UpdateVideo(ctx, db, id, fields) -> error
//   - DeleteVideo(ctx, db, id) -> error (soft delete)
//   - UpsertView(ctx, db, view) -> error
//   - GetView(ctx, db, userID, videoID) -> *domain.VideoView, error
package repo

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/tbourn/course-platform-backend/internal/domain"
)

// VideoFilter narrows video listings.
type VideoFilter struct {
	CategoryID    string
	Search        string // case-insensitive substring of title or description
	PublishedOnly bool
}

func (f VideoFilter) apply(db *gorm.DB) *gorm.DB {
	if f.CategoryID != "" {
		db = db.Where("category_id = ?", f.CategoryID)
	}
	if s := strings.TrimSpace(f.Search); s != "" {
		like := "%" + strings.ToLower(s) + "%"
		db = db.Where("LOWER(title) LIKE ? OR LOWER(description) LIKE ?", like, like)
	}
	if f.PublishedOnly {
		db = db.Where("is_published = ?", true)
	}
	return db
}

// CreateVideo inserts v, assigning an ID when empty.
func CreateVideo(ctx context.Context, db *gorm.DB, v *domain.Video) error {
	if v.ID == "" {
		v.ID = uuid.NewString()
	}
	return db.WithContext(ctx).Omit("Category").Create(v).Error
}

// GetVideo fetches a non-deleted video with its category, or ErrNotFound.
func GetVideo(ctx context.Context, db *gorm.DB, id string) (*domain.Video, error) {
	var v domain.Video
	err := db.WithContext(ctx).
		Preload("Category").
		Where("id = ?", id).
		First(&v).Error
	if err != nil {
		return nil, err
	}
	return &v, nil
}

// CountVideos returns the number of non-deleted videos matching f.
func CountVideos(ctx context.Context, db *gorm.DB, f VideoFilter) (int64, error) {
	var total int64
	err := f.apply(db.WithContext(ctx).Model(&domain.Video{})).Count(&total).Error
	return total, err
}

// ListVideosPage returns a page of videos matching f, ordered by category and
// position. Use CountVideos for pagination metadata.
func ListVideosPage(ctx context.Context, db *gorm.DB, f VideoFilter, offset, limit int) ([]domain.Video, error) {
	var out []domain.Video
	err := f.apply(db.WithContext(ctx).Preload("Category")).
		Order("category_id asc").
		Order("sort_order asc").
		Offset(offset).
		Limit(limit).
		Find(&out).Error
	return out, err
}

// UpdateVideo applies fields to the video. It returns ErrNotFound when the
// video does not exist or is soft-deleted.
func UpdateVideo(ctx context.Context, db *gorm.DB, id string, fields map[string]any) error {
	res := db.WithContext(ctx).
		Model(&domain.Video{}).
		Where("id = ?", id).
		Updates(fields)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// DeleteVideo soft-deletes the video, or returns ErrNotFound.
func DeleteVideo(ctx context.Context, db *gorm.DB, id string) error {
	res := db.WithContext(ctx).Where("id = ?", id).Delete(&domain.Video{})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// UpsertView inserts or updates the (user, video) viewing row in one statement.
func UpsertView(ctx context.Context, db *gorm.DB, v *domain.VideoView) error {
	if v.ID == "" {
		v.ID = uuid.NewString()
	}
	if v.LastWatchedAt.IsZero() {
		v.LastWatchedAt = time.Now().UTC()
	}
	return db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "user_id"}, {Name: "video_id"}},
			DoUpdates: clause.AssignmentColumns([]string{
				"watched_seconds", "total_seconds", "progress", "completed", "last_watched_at", "updated_at",
			}),
		}).
		Create(v).Error
}

// TouchView records that the user opened the video without altering progress.
func TouchView(ctx context.Context, db *gorm.DB, userID, videoID string, now time.Time) error {
	v := &domain.VideoView{
		ID:            uuid.NewString(),
		UserID:        userID,
		VideoID:       videoID,
		LastWatchedAt: now,
	}
	return db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "user_id"}, {Name: "video_id"}},
			DoUpdates: clause.AssignmentColumns([]string{"last_watched_at", "updated_at"}),
		}).
		Create(v).Error
}

// GetView returns the (user, video) viewing row, or ErrNotFound.
func GetView(ctx context.Context, db *gorm.DB, userID, videoID string) (*domain.VideoView, error) {
	var v domain.VideoView
	err := db.WithContext(ctx).
		Where("user_id = ? AND video_id = ?", userID, videoID).
		First(&v).Error
	if err != nil {
		return nil, err
	}
	return &v, nil
}
