package domain

import "time"

// ProcessedNotification marks a provider notification (keyed by
// "<topic>-<resourceId>") as handled. It backs the database flavour of the
// notification cache and is purged once ExpiresAt passes.
type ProcessedNotification struct {
	Key        string    `gorm:"column:notification_key;type:varchar(191);primaryKey"`
	Topic      string    `gorm:"type:varchar(64);not null"`
	ResourceID string    `gorm:"type:varchar(64);not null"`
	CreatedAt  time.Time `gorm:"not null;autoCreateTime"`
	ExpiresAt  time.Time `gorm:"not null;index"`
}

// TableName implements the GORM tabler interface.
func (ProcessedNotification) TableName() string { return "processed_notifications" }
