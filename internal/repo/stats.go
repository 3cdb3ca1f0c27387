// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides aggregate queries over entitlements used
// by the admin stats endpoint and the expiry sweep.
package repo

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/tbourn/course-platform-backend/internal/domain"
)

// EntitlementCounts summarises the entitlement table at a point in time.
//
// Fields:
//   - Total:            all rows
//   - Active:           rows flagged is_active
//   - ExpiredButActive: flagged active but already past expires_at (sweep backlog)
//   - ExpiringSoon:     flagged active and expiring within the horizon
type EntitlementCounts struct {
	Total            int64 `json:"total"`
	Active           int64 `json:"active"`
	ExpiredButActive int64 `json:"expired_but_active"`
	ExpiringSoon     int64 `json:"expiring_soon"`
}

// EntitlementStats runs four count queries against category_purchases.
func EntitlementStats(ctx context.Context, db *gorm.DB, now time.Time, horizon time.Duration) (EntitlementCounts, error) {
	var out EntitlementCounts
	base := func() *gorm.DB { return db.WithContext(ctx).Model(&domain.Entitlement{}) }

	if err := base().Count(&out.Total).Error; err != nil {
		return EntitlementCounts{}, err
	}
	if err := base().Where("is_active = ?", true).Count(&out.Active).Error; err != nil {
		return EntitlementCounts{}, err
	}
	if err := base().
		Where("is_active = ? AND expires_at IS NOT NULL AND expires_at < ?", true, now).
		Count(&out.ExpiredButActive).Error; err != nil {
		return EntitlementCounts{}, err
	}
	if err := base().
		Where("is_active = ? AND expires_at >= ? AND expires_at <= ?", true, now, now.Add(horizon)).
		Count(&out.ExpiringSoon).Error; err != nil {
		return EntitlementCounts{}, err
	}
	return out, nil
}
