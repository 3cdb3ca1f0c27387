package services

import (
	"fmt"
	"testing"
	"time"

	sqlite "github.com/glebarez/sqlite" // pure-Go SQLite
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/tbourn/course-platform-backend/internal/domain"
	"github.com/tbourn/course-platform-backend/internal/repo"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:svc_%s?mode=memory&cache=shared", uuid.NewString())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})
	if err := repo.AutoMigrate(db); err != nil {
		t.Fatalf("automigrate: %v", err)
	}
	return db
}

func seedUser(t *testing.T, db *gorm.DB, id, role string) *domain.User {
	t.Helper()
	u := &domain.User{ID: id, Email: id + "@example.com", PasswordHash: "x", Role: role, IsActive: true}
	if err := db.Create(u).Error; err != nil {
		t.Fatalf("seed user %s: %v", id, err)
	}
	return u
}

func seedCategory(t *testing.T, db *gorm.DB, id string, free bool) *domain.Category {
	t.Helper()
	c := &domain.Category{ID: id, Name: "Course " + id, Slug: "course-" + id, PriceARS: 1000, PriceUSD: 10, IsFree: free, IsActive: true}
	if err := db.Create(c).Error; err != nil {
		t.Fatalf("seed category %s: %v", id, err)
	}
	return c
}

func seedVideo(t *testing.T, db *gorm.DB, id, categoryID string, order int, published bool) *domain.Video {
	t.Helper()
	v := &domain.Video{ID: id, Title: "Video " + id, VimeoID: "v-" + id, Duration: 600, CategoryID: categoryID, SortOrder: order, IsPublished: published}
	if err := db.Omit("Category").Create(v).Error; err != nil {
		t.Fatalf("seed video %s: %v", id, err)
	}
	return v
}

func seedEntitlement(t *testing.T, db *gorm.DB, userID, categoryID string, active bool, expires *time.Time) *domain.Entitlement {
	t.Helper()
	e := &domain.Entitlement{
		ID: uuid.NewString(), UserID: userID, CategoryID: categoryID,
		Amount: 100, Currency: "ARS", PaymentStatus: domain.PaymentStatusManual,
		IsActive: active, ExpiresAt: expires,
	}
	if err := db.Create(e).Error; err != nil {
		t.Fatalf("seed entitlement: %v", err)
	}
	return e
}

func fixedClock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}
