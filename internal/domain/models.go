// Package domain defines the persistence models for users, purchasable course
// categories, carts, videos and viewing telemetry. These types are mapped with
// GORM and form the core data layer of the course platform.
package domain

import (
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// User roles.
const (
	RoleAdmin    = "ADMIN"
	RoleSubadmin = "SUBADMIN"
	RoleUser     = "USER"
)

// IsAdminRole reports whether role carries unrestricted content access.
func IsAdminRole(role string) bool {
	return role == RoleAdmin || role == RoleSubadmin
}

// User is an account of the platform. Identity management lives outside the
// purchase pipeline, but entitlements, carts and views reference it.
//
// Fields:
//   - ID: UUID primary key (char(36)).
//   - Email: unique login identifier.
//   - PasswordHash: bcrypt hash; never serialized.
//   - Role: ADMIN, SUBADMIN or USER.
//   - IsActive: disabled accounts cannot sign in.
//   - DeletedAt: soft deletion marker.
type User struct {
	ID           string         `json:"id"         gorm:"type:char(36);primaryKey"`
	Email        string         `json:"email"      gorm:"type:varchar(255);not null;uniqueIndex:ux_users_email"`
	PasswordHash string         `json:"-"          gorm:"type:varchar(255);not null"`
	FirstName    string         `json:"first_name" gorm:"type:varchar(100)"`
	LastName     string         `json:"last_name"  gorm:"type:varchar(100)"`
	Role         string         `json:"role"       gorm:"type:varchar(16);not null;index"`
	IsActive     bool           `json:"is_active"  gorm:"not null"`
	CreatedAt    time.Time      `json:"created_at"`
	UpdatedAt    time.Time      `json:"updated_at"`
	DeletedAt    gorm.DeletedAt `json:"-"          gorm:"index"`
}

// TableName returns the database table name for User.
func (User) TableName() string { return "users" }

// IsAdmin reports whether the user is ADMIN or SUBADMIN.
func (u User) IsAdmin() bool { return IsAdminRole(u.Role) }

// Category is a purchasable course. Prices are snapshotted into cart items and
// entitlements so later admin edits do not rewrite history.
//
// Fields:
//   - Slug: unique, URL-safe identifier.
//   - PriceARS / PriceUSD: list prices in both currencies.
//   - IsFree: every video of a free category is open to signed-in users.
//   - IsActive: inactive categories cannot be added to a cart.
type Category struct {
	ID          string         `json:"id"          gorm:"type:char(36);primaryKey"`
	Name        string         `json:"name"        gorm:"type:varchar(255);not null"`
	Slug        string         `json:"slug"        gorm:"type:varchar(255);not null;uniqueIndex:ux_categories_slug"`
	Description string         `json:"description" gorm:"type:text"`
	Image       string         `json:"image"       gorm:"type:varchar(512)"`
	PriceARS    float64        `json:"price_ars"   gorm:"type:decimal(12,2);not null"`
	PriceUSD    float64        `json:"price_usd"   gorm:"type:decimal(12,2);not null"`
	IsFree      bool           `json:"is_free"     gorm:"not null"`
	IsActive    bool           `json:"is_active"   gorm:"not null"`
	CreatedAt   time.Time      `json:"created_at"`
	UpdatedAt   time.Time      `json:"updated_at"`
	DeletedAt   gorm.DeletedAt `json:"-"           gorm:"index"`
}

// TableName returns the database table name for Category.
func (Category) TableName() string { return "categories" }

// Cart is the single shopping cart of a user.
type Cart struct {
	ID        string     `json:"id"      gorm:"type:char(36);primaryKey"`
	UserID    string     `json:"user_id" gorm:"type:char(36);not null;uniqueIndex:ux_carts_user"`
	Items     []CartItem `json:"items"   gorm:"foreignKey:CartID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
}

// TableName returns the database table name for Cart.
func (Cart) TableName() string { return "carts" }

// CartItem is a category placed in a cart, with the prices in force when it
// was added. A category appears at most once per cart.
type CartItem struct {
	ID         string    `json:"id"          gorm:"type:char(36);primaryKey"`
	CartID     string    `json:"cart_id"     gorm:"type:char(36);not null;uniqueIndex:ux_cart_items_cart_category,priority:1"`
	CategoryID string    `json:"category_id" gorm:"type:char(36);not null;uniqueIndex:ux_cart_items_cart_category,priority:2"`
	PriceARS   float64   `json:"price_ars"   gorm:"type:decimal(12,2);not null"`
	PriceUSD   float64   `json:"price_usd"   gorm:"type:decimal(12,2);not null"`
	CreatedAt  time.Time `json:"created_at"`

	Category Category `json:"category" gorm:"foreignKey:CategoryID;references:ID"`
}

// TableName returns the database table name for CartItem.
func (CartItem) TableName() string { return "cart_items" }

// Video is a lesson hosted on the video provider and owned by a category.
// Order 0 marks the free preview of its category.
//
// Fields:
//   - VimeoID: provider identifier; exposed to admins only.
//   - VimeoURL: provider page URL; never exposed.
//   - SortOrder: position in the category (0 = public preview).
//   - Contenidos: syllabus text.
//   - Downloads: JSON document describing downloadable resources.
type Video struct {
	ID              string         `json:"id"               gorm:"type:char(36);primaryKey"`
	Title           string         `json:"title"            gorm:"type:varchar(255);not null"`
	Description     string         `json:"description"      gorm:"type:text"`
	VimeoID         string         `json:"vimeo_id"         gorm:"type:varchar(64);not null;index"`
	VimeoURL        string         `json:"vimeo_url"        gorm:"type:varchar(512)"`
	Thumbnail       string         `json:"thumbnail"        gorm:"type:varchar(512)"`
	Duration        int            `json:"duration"`
	CategoryID      string         `json:"category_id"      gorm:"type:char(36);not null;index:idx_videos_category_order,priority:1"`
	SortOrder       int            `json:"order"            gorm:"not null;index:idx_videos_category_order,priority:2"`
	IsPublished     bool           `json:"is_published"     gorm:"not null"`
	PublishedAt     *time.Time     `json:"published_at"`
	Contenidos      string         `json:"contenidos"       gorm:"type:text"`
	Downloads       datatypes.JSON `json:"downloads"`
	MetaTitle       string         `json:"meta_title"       gorm:"type:varchar(255)"`
	MetaDescription string         `json:"meta_description" gorm:"type:text"`
	CreatedAt       time.Time      `json:"created_at"`
	UpdatedAt       time.Time      `json:"updated_at"`
	DeletedAt       gorm.DeletedAt `json:"-"                gorm:"index"`

	Category Category `json:"category" gorm:"foreignKey:CategoryID;references:ID"`
}

// TableName returns the database table name for Video.
func (Video) TableName() string { return "videos" }

// IsPreview reports whether the video is the free sample of its category.
func (v Video) IsPreview() bool { return v.SortOrder == 0 }

// VideoView tracks a user's viewing of one video.
type VideoView struct {
	ID             string    `json:"id"              gorm:"type:char(36);primaryKey"`
	UserID         string    `json:"user_id"         gorm:"type:char(36);not null;uniqueIndex:ux_video_views_user_video,priority:1"`
	VideoID        string    `json:"video_id"        gorm:"type:char(36);not null;uniqueIndex:ux_video_views_user_video,priority:2"`
	WatchedSeconds int       `json:"watched_seconds" gorm:"not null"`
	TotalSeconds   int       `json:"total_seconds"   gorm:"not null"`
	Progress       int       `json:"progress"        gorm:"not null"`
	Completed      bool      `json:"completed"       gorm:"not null"`
	LastWatchedAt  time.Time `json:"last_watched_at"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// TableName returns the database table name for VideoView.
func (VideoView) TableName() string { return "video_views" }
