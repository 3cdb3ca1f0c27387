package repo

import (
	"fmt"
	"testing"

	sqlite "github.com/glebarez/sqlite" // pure-Go SQLite
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/tbourn/course-platform-backend/internal/domain"
)

func newRepoDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:repo_%s?mode=memory&cache=shared", uuid.NewString())
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
	if err := AutoMigrate(db); err != nil {
		t.Fatalf("automigrate: %v", err)
	}
	return db
}

func seedCategory(t *testing.T, db *gorm.DB, id string, free bool) *domain.Category {
	t.Helper()
	c := &domain.Category{ID: id, Name: "Course " + id, Slug: "course-" + id, PriceARS: 1000, PriceUSD: 10, IsFree: free, IsActive: true}
	if err := db.Create(c).Error; err != nil {
		t.Fatalf("seed category %s: %v", id, err)
	}
	return c
}

