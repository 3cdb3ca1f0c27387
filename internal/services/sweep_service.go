// Package services – SweepService
//
// SweepService keeps entitlement flags in line with their expiry dates. The
// access gate already treats an expired row as inactive, so the sweep only
// tidies data for listings and stats; it also purges expired rows of the
// database-backed notification cache.
package services

import (
	"context"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"

	"go.opentelemetry.io/otel"

	"github.com/tbourn/course-platform-backend/internal/repo"
)

// ExpiringSoonHorizon is the window counted as "expiring soon" in stats.
const ExpiringSoonHorizon = 30 * 24 * time.Hour

// SweepResult reports what one sweep changed.
type SweepResult struct {
	Deactivated         int64 `json:"deactivated"`
	NotificationsPurged int64 `json:"notifications_purged"`
}

// SweepService deactivates expired entitlements.
type SweepService struct {
	DB  *gorm.DB
	Now func() time.Time
	Log zerolog.Logger
}

// NewSweepService constructs a SweepService.
func NewSweepService(db *gorm.DB) *SweepService {
	return &SweepService{
		DB:  db,
		Now: func() time.Time { return time.Now().UTC() },
		Log: log.Logger,
	}
}

func (s *SweepService) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now().UTC()
}

// DeactivateExpired flips is_active on every active entitlement whose expiry
// has passed and purges expired processed notifications.
func (s *SweepService) DeactivateExpired(ctx context.Context) (SweepResult, error) {
	tr := otel.Tracer("services/SweepService")
	ctx, span := tr.Start(ctx, "DeactivateExpired")
	defer span.End()

	now := s.now()
	n, err := repo.DeactivateExpired(ctx, s.DB, now)
	if err != nil {
		s.Log.Error().Err(err).Msg("entitlement expiry sweep failed")
		return SweepResult{}, err
	}
	entitlementsExpired.Add(float64(n))

	purged, err := repo.PurgeNotifications(ctx, s.DB, now)
	if err != nil {
		// The entitlement half already committed; report it anyway.
		s.Log.Warn().Err(err).Msg("purging processed notifications failed")
		purged = 0
	}

	s.Log.Info().Int64("deactivated", n).Int64("notifications_purged", purged).Msg("entitlement expiry sweep done")
	return SweepResult{Deactivated: n, NotificationsPurged: purged}, nil
}

// Run adapts DeactivateExpired to the scheduler's job signature.
func (s *SweepService) Run(ctx context.Context) error {
	_, err := s.DeactivateExpired(ctx)
	return err
}

// Stats summarises entitlements, counting rows expiring within 30 days as
// expiring soon.
func (s *SweepService) Stats(ctx context.Context) (repo.EntitlementCounts, error) {
	tr := otel.Tracer("services/SweepService")
	ctx, span := tr.Start(ctx, "Stats")
	defer span.End()

	return repo.EntitlementStats(ctx, s.DB, s.now(), ExpiringSoonHorizon)
}
