package domain

import (
	"strings"
	"time"

	"gorm.io/datatypes"
)

// Poll statuses.
const (
	PollStatusOpen   = "open"
	PollStatusClosed = "closed"
)

// PollOverride explicitly allows (or lists) a user by id or email regardless
// of course ownership.
type PollOverride struct {
	UserID  string `json:"userId,omitempty"`
	Email   string `json:"email,omitempty"`
	Allowed bool   `json:"allowed"`
}

// Matches reports whether the override targets the given user.
func (o PollOverride) Matches(userID, email string) bool {
	if o.UserID != "" && o.UserID == userID {
		return true
	}
	return o.Email != "" && email != "" && strings.EqualFold(o.Email, email)
}

// PollEligibility decides who may see and vote in a poll: holders of an active
// entitlement to any of CourseIDs, plus allowed overrides.
type PollEligibility struct {
	CourseIDs     []string       `json:"courseIds"`
	UserOverrides []PollOverride `json:"userOverrides"`
}

// Poll schedules an in-person class by letting eligible students vote on
// candidate dates.
type Poll struct {
	ID          string                              `json:"id"          gorm:"type:char(36);primaryKey"`
	Title       string                              `json:"title"       gorm:"type:varchar(255);not null"`
	Description string                              `json:"description" gorm:"type:text"`
	DeadlineAt  *time.Time                          `json:"deadline_at"`
	Status      string                              `json:"status"      gorm:"type:varchar(16);not null;index"`
	Eligibility datatypes.JSONType[PollEligibility] `json:"eligibility"`
	Options     []PollOption                        `json:"options"     gorm:"foreignKey:PollID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE"`
	CreatedAt   time.Time                           `json:"created_at"`
	UpdatedAt   time.Time                           `json:"updated_at"`
}

// TableName returns the database table name for Poll.
func (Poll) TableName() string { return "presencial_polls" }

// OpenAt reports whether votes are accepted at t.
func (p Poll) OpenAt(t time.Time) bool {
	if p.Status != PollStatusOpen {
		return false
	}
	return p.DeadlineAt == nil || t.Before(*p.DeadlineAt)
}

// PollOption is a candidate date and start time.
type PollOption struct {
	ID              string    `json:"id"               gorm:"type:char(36);primaryKey"`
	PollID          string    `json:"poll_id"          gorm:"type:char(36);not null;index"`
	Date            time.Time `json:"date"             gorm:"not null"`
	StartTime       string    `json:"start_time"       gorm:"type:varchar(5);not null"`
	DurationMinutes int       `json:"duration_minutes" gorm:"not null"`
}

// TableName returns the database table name for PollOption.
func (PollOption) TableName() string { return "presencial_poll_options" }

// PollVote is a user's single choice in a poll; re-voting replaces it.
type PollVote struct {
	ID        string    `json:"id"        gorm:"type:char(36);primaryKey"`
	PollID    string    `json:"poll_id"   gorm:"type:char(36);not null;uniqueIndex:ux_poll_votes_poll_user,priority:1"`
	UserID    string    `json:"user_id"   gorm:"type:char(36);not null;uniqueIndex:ux_poll_votes_poll_user,priority:2"`
	OptionID  string    `json:"option_id" gorm:"type:char(36);not null;index"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// TableName returns the database table name for PollVote.
func (PollVote) TableName() string { return "presencial_poll_votes" }
