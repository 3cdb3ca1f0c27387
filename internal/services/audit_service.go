// Package services – AuditService
//
// AuditService stores and lists the trail of administrative changes. Entries
// are written after a mutation succeeded; a failed write is logged and never
// fails the request that triggered it.
package services

import (
	"context"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"

	"github.com/tbourn/course-platform-backend/internal/domain"
	"github.com/tbourn/course-platform-backend/internal/repo"
	"github.com/tbourn/course-platform-backend/internal/utils"
)

const maxAuditUserAgent = 512

// AuditQuery filters and pages the audit trail.
type AuditQuery struct {
	Page     int
	Limit    int
	Entity   string
	EntityID string
	UserID   string
}

// AuditPage is one page of the audit trail.
type AuditPage struct {
	Data []domain.AuditLog `json:"data"`
	Meta utils.PageMeta    `json:"meta"`
}

// AuditService implements audit operations.
type AuditService struct {
	DB  *gorm.DB
	Now func() time.Time
	Log zerolog.Logger
}

// NewAuditService constructs an AuditService.
func NewAuditService(db *gorm.DB) *AuditService {
	return &AuditService{
		DB:  db,
		Now: func() time.Time { return time.Now().UTC() },
		Log: log.Logger,
	}
}

// Record stores e. Entries without an entity id are filed as "unknown".
func (s *AuditService) Record(ctx context.Context, e domain.AuditLog) error {
	if strings.TrimSpace(e.Action) == "" || strings.TrimSpace(e.Entity) == "" {
		return ErrInvalidInput
	}
	if e.EntityID == "" {
		e.EntityID = "unknown"
	}
	if len(e.UserAgent) > maxAuditUserAgent {
		e.UserAgent = e.UserAgent[:maxAuditUserAgent]
	}
	if e.CreatedAt.IsZero() && s.Now != nil {
		e.CreatedAt = s.Now()
	}
	if err := repo.CreateAuditLog(ctx, s.DB, &e); err != nil {
		s.Log.Error().Err(err).
			Str("action", e.Action).
			Str("entity", e.Entity).
			Str("entity_id", e.EntityID).
			Msg("audit write failed")
		return err
	}
	return nil
}

// List returns one page of entries matching q, newest first.
func (s *AuditService) List(ctx context.Context, q AuditQuery) (*AuditPage, error) {
	page, limit, offset := utils.Paginate(q.Page, q.Limit, defaultPageLimit, maxPageLimit)
	f := repo.AuditFilter{Entity: q.Entity, EntityID: q.EntityID, UserID: q.UserID}

	total, err := repo.CountAuditLogs(ctx, s.DB, f)
	if err != nil {
		return nil, err
	}
	out := &AuditPage{Data: []domain.AuditLog{}, Meta: utils.NewPageMeta(page, limit, total)}
	if total == 0 {
		return out, nil
	}
	rows, err := repo.ListAuditLogsPage(ctx, s.DB, f, offset, limit)
	if err != nil {
		return nil, err
	}
	out.Data = rows
	return out, nil
}
