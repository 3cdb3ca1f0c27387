package repo

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/tbourn/course-platform-backend/internal/domain"
)

// AuditFilter narrows audit listings. Empty fields match everything.
type AuditFilter struct {
	Entity   string
	EntityID string
	UserID   string
}

func (f AuditFilter) apply(db *gorm.DB) *gorm.DB {
	if f.Entity != "" {
		db = db.Where("entity = ?", f.Entity)
	}
	if f.EntityID != "" {
		db = db.Where("entity_id = ?", f.EntityID)
	}
	if f.UserID != "" {
		db = db.Where("user_id = ?", f.UserID)
	}
	return db
}

// CreateAuditLog inserts e, assigning an ID when empty.
func CreateAuditLog(ctx context.Context, db *gorm.DB, e *domain.AuditLog) error {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	return db.WithContext(ctx).Create(e).Error
}

// CountAuditLogs counts the entries matching f.
func CountAuditLogs(ctx context.Context, db *gorm.DB, f AuditFilter) (int64, error) {
	var n int64
	err := f.apply(db.WithContext(ctx).Model(&domain.AuditLog{})).Count(&n).Error
	return n, err
}

// ListAuditLogsPage returns one page of entries matching f, newest first.
func ListAuditLogsPage(ctx context.Context, db *gorm.DB, f AuditFilter, offset, limit int) ([]domain.AuditLog, error) {
	var out []domain.AuditLog
	err := f.apply(db.WithContext(ctx)).
		Order("created_at desc").
		Offset(offset).
		Limit(limit).
		Find(&out).Error
	return out, err
}
