// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides repository functions for entitlements
// (the category_purchases table).
//
// All functions are context-aware and accept a *gorm.DB handle, so they can run
// inside a transaction opened by the service layer.
//
// Error semantics:
//   - Missing rows yield ErrNotFound (an alias of gorm.ErrRecordNotFound).
//   - Unique violations on (user_id, category_id) yield ErrDuplicate.
//   - Other DB errors are propagated unchanged.
package repo

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/tbourn/course-platform-backend/internal/domain"
)

// ErrNotFound is returned when a requested record does not exist.
// It aliases gorm.ErrRecordNotFound for convenience and consistency
// across the service layer and handlers.
var ErrNotFound = gorm.ErrRecordNotFound

// ErrDuplicate indicates that a row violating a unique index already exists.
var ErrDuplicate = errors.New("duplicate")

// isDuplicate recognises unique violations across drivers.
func isDuplicate(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	// glebarez/sqlite often returns plain-text errors for UNIQUE violations.
	low := strings.ToLower(err.Error())
	return strings.Contains(low, "unique constraint failed") ||
		strings.Contains(low, "constraint failed: unique") ||
		strings.Contains(low, "duplicate key") ||
		strings.Contains(low, "duplicate entry")
}

// ActiveAt is a GORM scope encoding domain.Entitlement.ActiveAt: the row must
// be flagged active and either permanent or expiring strictly after now.
func ActiveAt(now time.Time) func(*gorm.DB) *gorm.DB {
	return func(db *gorm.DB) *gorm.DB {
		return db.Where("is_active = ? AND (expires_at IS NULL OR expires_at > ?)", true, now)
	}
}

// HasActiveEntitlement reports whether userID holds an active entitlement to
// any of categoryIDs at now.
func HasActiveEntitlement(ctx context.Context, db *gorm.DB, userID string, categoryIDs []string, now time.Time) (bool, error) {
	if userID == "" || len(categoryIDs) == 0 {
		return false, nil
	}
	var n int64
	err := db.WithContext(ctx).
		Model(&domain.Entitlement{}).
		Scopes(ActiveAt(now)).
		Where("user_id = ? AND category_id IN ?", userID, categoryIDs).
		Count(&n).Error
	return n > 0, err
}

// TransactionProcessed reports whether any entitlement already carries
// transactionID.
func TransactionProcessed(ctx context.Context, db *gorm.DB, transactionID string) (bool, error) {
	var n int64
	err := db.WithContext(ctx).
		Model(&domain.Entitlement{}).
		Where("transaction_id = ?", transactionID).
		Count(&n).Error
	return n > 0, err
}

// FindEntitlement returns the (user, category) row regardless of its state,
// or ErrNotFound.
func FindEntitlement(ctx context.Context, db *gorm.DB, userID, categoryID string) (*domain.Entitlement, error) {
	var e domain.Entitlement
	err := db.WithContext(ctx).
		Where("user_id = ? AND category_id = ?", userID, categoryID).
		First(&e).Error
	if err != nil {
		return nil, err
	}
	return &e, nil
}

// CreateEntitlement inserts e, assigning an ID when empty. A unique violation
// on (user_id, category_id) is reported as ErrDuplicate.
func CreateEntitlement(ctx context.Context, db *gorm.DB, e *domain.Entitlement) error {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if err := db.WithContext(ctx).Create(e).Error; err != nil {
		if isDuplicate(err) {
			return ErrDuplicate
		}
		return err
	}
	return nil
}

// SaveEntitlement updates every column of an existing entitlement.
func SaveEntitlement(ctx context.Context, db *gorm.DB, e *domain.Entitlement) error {
	return db.WithContext(ctx).Save(e).Error
}

// ListUserEntitlements returns the user's entitlements with their category,
// newest first.
func ListUserEntitlements(ctx context.Context, db *gorm.DB, userID string) ([]domain.Entitlement, error) {
	var out []domain.Entitlement
	err := db.WithContext(ctx).
		Preload("Category").
		Where("user_id = ?", userID).
		Order("created_at desc").
		Find(&out).Error
	return out, err
}

// DeactivateByTransaction flips every entitlement carrying transactionID to
// inactive with the given payment status. It returns the number of rows changed.
func DeactivateByTransaction(ctx context.Context, db *gorm.DB, transactionID, status string, now time.Time) (int64, error) {
	res := db.WithContext(ctx).
		Model(&domain.Entitlement{}).
		Where("transaction_id = ? AND is_active = ?", transactionID, true).
		Updates(map[string]any{
			"is_active":      false,
			"payment_status": status,
			"updated_at":     now,
		})
	return res.RowsAffected, res.Error
}

// DeactivateExpired flips active entitlements whose expiry lies before now.
// Permanent rows (nil expiry) are never touched.
func DeactivateExpired(ctx context.Context, db *gorm.DB, now time.Time) (int64, error) {
	res := db.WithContext(ctx).
		Model(&domain.Entitlement{}).
		Where("is_active = ? AND expires_at IS NOT NULL AND expires_at < ?", true, now).
		Updates(map[string]any{
			"is_active":  false,
			"updated_at": now,
		})
	return res.RowsAffected, res.Error
}

// DeleteEntitlement removes the (user, category) row. It returns ErrNotFound
// when nothing was deleted.
func DeleteEntitlement(ctx context.Context, db *gorm.DB, userID, categoryID string) error {
	res := db.WithContext(ctx).
		Where("user_id = ? AND category_id = ?", userID, categoryID).
		Delete(&domain.Entitlement{})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}
