package domain

import "time"

// Payment status values recorded on entitlements.
const (
	PaymentStatusCompleted   = "completed"
	PaymentStatusManual      = "manual"
	PaymentStatusRefunded    = "refunded"
	PaymentStatusChargedBack = "charged_back"
)

// Entitlement records that a user may access a category. It is the
// authoritative access record: at most one row exists per (user, category).
//
// Fields:
//   - Amount / Currency / PaymentMethod: price paid for this category.
//   - TransactionID: provider payment id; nil for manual grants. Any row
//     carrying a transaction id proves that transaction was processed.
//   - PaymentStatus: completed, manual, refunded or charged_back.
//   - IsActive: flipped to false by the expiry sweep or a refund.
//   - ExpiresAt: nil means permanent.
type Entitlement struct {
	ID            string     `json:"id"             gorm:"type:char(36);primaryKey"`
	UserID        string     `json:"user_id"        gorm:"type:char(36);not null;uniqueIndex:ux_entitlements_user_category,priority:1"`
	CategoryID    string     `json:"category_id"    gorm:"type:char(36);not null;uniqueIndex:ux_entitlements_user_category,priority:2;index"`
	Amount        float64    `json:"amount"         gorm:"type:decimal(12,2);not null"`
	Currency      string     `json:"currency"       gorm:"type:varchar(8);not null"`
	PaymentMethod string     `json:"payment_method" gorm:"type:varchar(64)"`
	TransactionID *string    `json:"transaction_id" gorm:"type:varchar(64);index:idx_entitlements_transaction"`
	PaymentStatus string     `json:"payment_status" gorm:"type:varchar(32);not null"`
	IsActive      bool       `json:"is_active"      gorm:"not null;index:idx_entitlements_active_expiry,priority:1"`
	ExpiresAt     *time.Time `json:"expires_at"     gorm:"index:idx_entitlements_active_expiry,priority:2"`
	CreatedAt     time.Time  `json:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at"`

	Category *Category `json:"category,omitempty" gorm:"foreignKey:CategoryID;references:ID"`
}

// TableName keeps the historical table name.
func (Entitlement) TableName() string { return "category_purchases" }

// ActiveAt reports whether the entitlement grants access at t: it must be
// active and either permanent or expiring strictly after t. Expiry is checked
// here independently of the sweep that flips IsActive.
func (e Entitlement) ActiveAt(t time.Time) bool {
	if !e.IsActive {
		return false
	}
	return e.ExpiresAt == nil || e.ExpiresAt.After(t)
}
