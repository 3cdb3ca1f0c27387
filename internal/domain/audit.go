package domain

import (
	"time"

	"gorm.io/datatypes"
)

// Audited entities.
const (
	AuditEntityVideo       = "video"
	AuditEntityCategory    = "category"
	AuditEntityPoll        = "poll"
	AuditEntityEntitlement = "entitlement"
)

// AuditLog records an administrative change: who did what to which entity,
// and from where.
//
// Fields:
//   - Action: verb such as CREATE, UPDATE or DELETE.
//   - EntityID: id of the changed row, or "unknown" when none is known.
//   - NewValues: JSON snapshot supplied by the handler, if any.
type AuditLog struct {
	ID        string         `json:"id"         gorm:"type:char(36);primaryKey"`
	UserID    string         `json:"user_id"    gorm:"type:char(36);index"`
	Action    string         `json:"action"     gorm:"type:varchar(32);not null"`
	Entity    string         `json:"entity"     gorm:"type:varchar(32);not null;index:idx_audit_logs_entity,priority:1"`
	EntityID  string         `json:"entity_id"  gorm:"type:varchar(128);not null;index:idx_audit_logs_entity,priority:2"`
	NewValues datatypes.JSON `json:"new_values"`
	IPAddress string         `json:"ip_address" gorm:"type:varchar(64)"`
	UserAgent string         `json:"user_agent" gorm:"type:varchar(512)"`
	CreatedAt time.Time      `json:"created_at" gorm:"index"`
}

// TableName returns the database table name for AuditLog.
func (AuditLog) TableName() string { return "audit_logs" }
