// Package services – AccessService
//
// AccessService is the gate in front of video playback. It decides, per
// request, whether a viewer may obtain a short-lived player URL:
//
//  1. Unpublished videos are hidden from everyone but admins.
//  2. The preview (order 0) of every category is public.
//  3. Anything else needs a signed-in viewer holding an active entitlement
//     to the video's category, or a free category.
//  4. Admins (ADMIN, SUBADMIN) bypass rules 2 and 3.
//
// Entitlement expiry is evaluated at request time, independently of the
// nightly sweep that flips is_active.
package services

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/tbourn/course-platform-backend/internal/domain"
	"github.com/tbourn/course-platform-backend/internal/repo"
)

// StreamURLTTL is advertised to clients as the player URL lifetime.
const StreamURLTTL = time.Hour

// Viewer identifies who is asking. A zero Viewer is anonymous.
type Viewer struct {
	UserID string
	Email  string
	Role   string
}

// Anonymous reports whether no user is signed in.
func (v Viewer) Anonymous() bool { return v.UserID == "" }

// IsAdmin reports whether the viewer bypasses content gating.
func (v Viewer) IsAdmin() bool { return !v.Anonymous() && domain.IsAdminRole(v.Role) }

// SecureURLProvider issues playable URLs for provider video ids.
type SecureURLProvider interface {
	SecurePlayerURL(ctx context.Context, vimeoID string) (string, error)
}

// TaskRunner runs fire-and-forget work after the response is produced.
type TaskRunner interface {
	Go(ctx context.Context, name string, fn func(ctx context.Context) error)
}

// StreamURL is the gate's successful answer.
type StreamURL struct {
	StreamURL string `json:"stream_url"`
	ExpiresIn int    `json:"expires_in"`
}

// AccessService decides who may stream what.
type AccessService struct {
	DB       *gorm.DB
	Provider SecureURLProvider
	Tasks    TaskRunner
	Now      func() time.Time
	Log      zerolog.Logger
}

// NewAccessService constructs an AccessService.
func NewAccessService(db *gorm.DB, provider SecureURLProvider, tasks TaskRunner) *AccessService {
	return &AccessService{
		DB:       db,
		Provider: provider,
		Tasks:    tasks,
		Now:      func() time.Time { return time.Now().UTC() },
		Log:      log.Logger,
	}
}

func (s *AccessService) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now().UTC()
}

// CanView applies the gate rules to an already loaded video.
func (s *AccessService) CanView(ctx context.Context, v *domain.Video, viewer Viewer) error {
	admin := viewer.IsAdmin()

	if !v.IsPublished && !admin {
		return ErrVideoUnavailable
	}
	if admin || v.IsPreview() {
		return nil
	}
	if viewer.Anonymous() {
		return ErrSignInRequired
	}

	ids := []string{v.CategoryID}
	free, err := repo.AnyFreeCategory(ctx, s.DB, ids)
	if err != nil {
		return err
	}
	if free {
		return nil
	}
	ok, err := repo.HasActiveEntitlement(ctx, s.DB, viewer.UserID, ids, s.now())
	if err != nil {
		return err
	}
	if !ok {
		return ErrPurchaseRequired
	}
	return nil
}

// Stream returns a player URL for videoID when viewer passes the gate.
func (s *AccessService) Stream(ctx context.Context, videoID string, viewer Viewer) (*StreamURL, error) {
	tr := otel.Tracer("services/AccessService")
	ctx, span := tr.Start(ctx, "Stream",
		trace.WithAttributes(
			attribute.String("video.id", videoID),
			attribute.Bool("viewer.anonymous", viewer.Anonymous()),
		),
	)
	defer span.End()

	v, err := repo.GetVideo(ctx, s.DB, videoID)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return nil, ErrVideoNotFound
		}
		return nil, err
	}

	if err := s.CanView(ctx, v, viewer); err != nil {
		if !errors.Is(err, ErrPurchaseRequired) && !errors.Is(err, ErrSignInRequired) && !errors.Is(err, ErrVideoUnavailable) {
			return nil, err
		}
		s.Log.Info().Str("video_id", videoID).Str("user_id", viewer.UserID).Err(err).Msg("stream denied")
		return nil, err
	}

	url, err := s.Provider.SecurePlayerURL(ctx, v.VimeoID)
	if err != nil {
		return nil, err
	}

	if !viewer.Anonymous() && s.Tasks != nil {
		userID, now := viewer.UserID, s.now()
		s.Tasks.Go(ctx, "touch_view", func(ctx context.Context) error {
			return repo.TouchView(ctx, s.DB, userID, videoID, now)
		})
	}

	return &StreamURL{StreamURL: url, ExpiresIn: int(StreamURLTTL / time.Second)}, nil
}
