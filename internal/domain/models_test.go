package domain

import (
	"fmt"
	"testing"
	"time"

	sqlite "github.com/glebarez/sqlite" // pure-Go SQLite (no CGO)
	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func newDomainDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:domain_%s?mode=memory&cache=shared", uuid.NewString())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	// Enforce FKs so cascades actually execute.
	db.Exec("PRAGMA foreign_keys=ON;")
	return db
}

func allModels() []any {
	return []any{
		&User{}, &Category{}, &Cart{}, &CartItem{}, &Entitlement{},
		&Video{}, &VideoView{}, &ProcessedNotification{},
		&Poll{}, &PollOption{}, &PollVote{},
	}
}

func TestTableNames(t *testing.T) {
	cases := map[string]string{
		User{}.TableName():                  "users",
		Category{}.TableName():              "categories",
		Cart{}.TableName():                  "carts",
		CartItem{}.TableName():              "cart_items",
		Entitlement{}.TableName():           "category_purchases",
		Video{}.TableName():                 "videos",
		VideoView{}.TableName():             "video_views",
		ProcessedNotification{}.TableName(): "processed_notifications",
		Poll{}.TableName():                  "presencial_polls",
		PollOption{}.TableName():            "presencial_poll_options",
		PollVote{}.TableName():              "presencial_poll_votes",
	}
	for got, want := range cases {
		if got != want {
			t.Fatalf("TableName() = %q; want %q", got, want)
		}
	}
}

func TestRoles(t *testing.T) {
	if !IsAdminRole(RoleAdmin) || !IsAdminRole(RoleSubadmin) {
		t.Fatalf("ADMIN and SUBADMIN must be admin roles")
	}
	if IsAdminRole(RoleUser) || IsAdminRole("") {
		t.Fatalf("USER and anonymous must not be admin roles")
	}
	if !(User{Role: RoleSubadmin}).IsAdmin() {
		t.Fatalf("subadmin user should report IsAdmin")
	}
}

func TestEntitlement_ActiveAt(t *testing.T) {
	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	past := now.Add(-time.Hour)
	future := now.Add(time.Hour)

	tests := []struct {
		name string
		e    Entitlement
		want bool
	}{
		{"permanent", Entitlement{IsActive: true}, true},
		{"future expiry", Entitlement{IsActive: true, ExpiresAt: &future}, true},
		{"expired but flagged active", Entitlement{IsActive: true, ExpiresAt: &past}, false},
		{"expires exactly now", Entitlement{IsActive: true, ExpiresAt: &now}, false},
		{"inactive", Entitlement{IsActive: false}, false},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := tc.e.ActiveAt(now); got != tc.want {
				t.Fatalf("ActiveAt = %v; want %v", got, tc.want)
			}
		})
	}
}

func TestVideo_IsPreview(t *testing.T) {
	if !(Video{SortOrder: 0}).IsPreview() {
		t.Fatalf("order 0 should be the preview")
	}
	if (Video{SortOrder: 3}).IsPreview() {
		t.Fatalf("order 3 should not be the preview")
	}
}

func TestPollOverride_Matches(t *testing.T) {
	o := PollOverride{Email: "Ana@Example.com", Allowed: true}
	if !o.Matches("u1", "ana@example.com") {
		t.Fatalf("email match should be case-insensitive")
	}
	if o.Matches("u1", "") {
		t.Fatalf("empty email must not match")
	}
	byID := PollOverride{UserID: "u9"}
	if !byID.Matches("u9", "") || byID.Matches("u8", "") {
		t.Fatalf("user id match mismatch")
	}
}

func TestPoll_OpenAt(t *testing.T) {
	now := time.Now().UTC()
	later := now.Add(time.Hour)
	earlier := now.Add(-time.Hour)

	if !(Poll{Status: PollStatusOpen}).OpenAt(now) {
		t.Fatalf("open poll without deadline should accept votes")
	}
	if !(Poll{Status: PollStatusOpen, DeadlineAt: &later}).OpenAt(now) {
		t.Fatalf("open poll before deadline should accept votes")
	}
	if (Poll{Status: PollStatusOpen, DeadlineAt: &earlier}).OpenAt(now) {
		t.Fatalf("poll past deadline should be closed")
	}
	if (Poll{Status: PollStatusClosed}).OpenAt(now) {
		t.Fatalf("closed poll should reject votes")
	}
}

func TestMigrations_Indexes_AndCascades(t *testing.T) {
	db := newDomainDB(t)
	if err := db.AutoMigrate(allModels()...); err != nil {
		t.Fatalf("automigrate: %v", err)
	}
	m := db.Migrator()

	for _, tbl := range allModels() {
		if !m.HasTable(tbl) {
			t.Fatalf("expected table for %T to exist", tbl)
		}
	}

	indexes := []struct {
		model any
		name  string
	}{
		{&User{}, "ux_users_email"},
		{&Category{}, "ux_categories_slug"},
		{&Cart{}, "ux_carts_user"},
		{&CartItem{}, "ux_cart_items_cart_category"},
		{&Entitlement{}, "ux_entitlements_user_category"},
		{&Entitlement{}, "idx_entitlements_transaction"},
		{&Entitlement{}, "idx_entitlements_active_expiry"},
		{&Video{}, "idx_videos_category_order"},
		{&VideoView{}, "ux_video_views_user_video"},
		{&PollVote{}, "ux_poll_votes_poll_user"},
	}
	for _, ix := range indexes {
		if !m.HasIndex(ix.model, ix.name) {
			t.Fatalf("expected index %s on %T", ix.name, ix.model)
		}
	}

	now := time.Now().UTC()
	cat := &Category{ID: "cat1", Name: "Go", Slug: "go", PriceARS: 1000, PriceUSD: 10, IsActive: true}
	if err := db.Create(cat).Error; err != nil {
		t.Fatalf("insert category: %v", err)
	}

	// One entitlement per (user, category).
	e1 := &Entitlement{ID: "e1", UserID: "u1", CategoryID: "cat1", Amount: 1000, Currency: "ARS", PaymentStatus: PaymentStatusCompleted, IsActive: true}
	if err := db.Create(e1).Error; err != nil {
		t.Fatalf("insert entitlement: %v", err)
	}
	e2 := &Entitlement{ID: "e2", UserID: "u1", CategoryID: "cat1", Amount: 1, Currency: "ARS", PaymentStatus: PaymentStatusCompleted, IsActive: true}
	if err := db.Create(e2).Error; err == nil {
		t.Fatalf("expected unique violation on duplicate (user, category)")
	}

	// CASCADE: deleting a cart removes its items.
	cart := &Cart{ID: "cart1", UserID: "u1", CreatedAt: now, UpdatedAt: now}
	if err := db.Create(cart).Error; err != nil {
		t.Fatalf("insert cart: %v", err)
	}
	item := &CartItem{ID: "ci1", CartID: "cart1", CategoryID: "cat1", PriceARS: 1000, PriceUSD: 10}
	if err := db.Create(item).Error; err != nil {
		t.Fatalf("insert cart item: %v", err)
	}
	if err := db.Delete(&Cart{}, "id = ?", "cart1").Error; err != nil {
		t.Fatalf("delete cart: %v", err)
	}
	var cnt int64
	if err := db.Model(&CartItem{}).Where("cart_id = ?", "cart1").Count(&cnt).Error; err != nil {
		t.Fatalf("count items: %v", err)
	}
	if cnt != 0 {
		t.Fatalf("expected cart items to cascade-delete, got count=%d", cnt)
	}
}

func TestPoll_EligibilityRoundTrip(t *testing.T) {
	db := newDomainDB(t)
	if err := db.AutoMigrate(&Poll{}, &PollOption{}); err != nil {
		t.Fatalf("automigrate: %v", err)
	}

	p := &Poll{
		ID:     "p1",
		Title:  "Clase presencial",
		Status: PollStatusOpen,
		Eligibility: datatypes.NewJSONType(PollEligibility{
			CourseIDs:     []string{"cat1", "cat2"},
			UserOverrides: []PollOverride{{Email: "vip@example.com", Allowed: true}},
		}),
		Options: []PollOption{{ID: "o1", Date: time.Now().UTC(), StartTime: "10:00", DurationMinutes: 120}},
	}
	if err := db.Create(p).Error; err != nil {
		t.Fatalf("insert poll: %v", err)
	}

	var got Poll
	if err := db.Preload("Options").First(&got, "id = ?", "p1").Error; err != nil {
		t.Fatalf("load poll: %v", err)
	}
	el := got.Eligibility.Data()
	if len(el.CourseIDs) != 2 || el.CourseIDs[1] != "cat2" {
		t.Fatalf("course ids not persisted: %+v", el.CourseIDs)
	}
	if len(el.UserOverrides) != 1 || !el.UserOverrides[0].Allowed {
		t.Fatalf("overrides not persisted: %+v", el.UserOverrides)
	}
	if len(got.Options) != 1 || got.Options[0].PollID != "p1" {
		t.Fatalf("options not linked: %+v", got.Options)
	}
}
