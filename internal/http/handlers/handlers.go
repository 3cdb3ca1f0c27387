package handlers

import (
	"context"

	"github.com/tbourn/course-platform-backend/internal/domain"
	"github.com/tbourn/course-platform-backend/internal/repo"
	"github.com/tbourn/course-platform-backend/internal/services"
)

//
// Service contracts consumed by the handlers. Implementations live in
// internal/services and must honor ctx cancellation.
//

// VideoService manages lessons, uploads and viewing progress.
type VideoService interface {
	List(ctx context.Context, q services.VideoQuery, viewer services.Viewer) (*services.VideoPage, error)
	Get(ctx context.Context, id string, viewer services.Viewer) (*services.VideoResponse, error)
	Create(ctx context.Context, in services.VideoInput, viewer services.Viewer) (*services.VideoResponse, error)
	Update(ctx context.Context, id string, p services.VideoPatch, viewer services.Viewer) (*services.VideoResponse, error)
	Delete(ctx context.Context, id string) error
	Upload(ctx context.Context, in services.UploadInput) (*services.VideoResponse, error)
	UploadStatus(ctx context.Context, id string) (*services.UploadStatusView, error)
	UpdateProgress(ctx context.Context, userID, videoID string, watchedSeconds int, completed bool) (*services.Progress, error)
	GetProgress(ctx context.Context, userID, videoID string) (*services.Progress, error)
}

// AccessService issues playback URLs behind the access gate.
type AccessService interface {
	Stream(ctx context.Context, videoID string, viewer services.Viewer) (*services.StreamURL, error)
}

// CartService manages the caller's cart.
type CartService interface {
	Get(ctx context.Context, userID string) (*services.CartView, error)
	Add(ctx context.Context, userID, categoryID string) (*services.CartView, error)
	Remove(ctx context.Context, userID, itemID string) (*services.CartView, error)
	Clear(ctx context.Context, userID string) error
	Summary(ctx context.Context, userID string) (*services.CartSummary, error)
}

// EntitlementService lists and administers entitlements.
type EntitlementService interface {
	ListForUser(ctx context.Context, userID string) ([]domain.Entitlement, error)
	GrantManual(ctx context.Context, in services.ManualGrant) (*domain.Entitlement, error)
	Revoke(ctx context.Context, userID, categoryID string) error
}

// SweepService runs the expiry sweep on demand and reports counts.
type SweepService interface {
	DeactivateExpired(ctx context.Context) (services.SweepResult, error)
	Stats(ctx context.Context) (repo.EntitlementCounts, error)
}

// PollService manages in-person class polls.
type PollService interface {
	Create(ctx context.Context, in services.PollInput) (*domain.Poll, error)
	ListFor(ctx context.Context, viewer services.Viewer) ([]domain.Poll, error)
	Get(ctx context.Context, id string, viewer services.Viewer) (*domain.Poll, error)
	Vote(ctx context.Context, pollID, optionID string, viewer services.Viewer) (*domain.PollVote, error)
	Update(ctx context.Context, id string, p services.PollPatch) (*domain.Poll, error)
	Close(ctx context.Context, id string) (*domain.Poll, error)
	Stats(ctx context.Context, id string) (*services.PollStats, error)
	Votes(ctx context.Context, id string) (*services.PollVotes, error)
}

// AuthService signs users in.
type AuthService interface {
	Login(ctx context.Context, email, password string) (*services.LoginResult, error)
	Me(ctx context.Context, userID string) (*domain.User, error)
}

// CategoryService exposes the course catalog.
type CategoryService interface {
	Create(ctx context.Context, in services.CategoryInput) (*domain.Category, error)
	Get(ctx context.Context, idOrSlug string) (*domain.Category, error)
	ListActive(ctx context.Context) ([]domain.Category, error)
	ListAll(ctx context.Context) ([]domain.Category, error)
	Update(ctx context.Context, id string, p services.CategoryPatch) (*domain.Category, error)
	Delete(ctx context.Context, id string) error
}

// AuditService lists the trail of administrative changes.
type AuditService interface {
	List(ctx context.Context, q services.AuditQuery) (*services.AuditPage, error)
}

// NotificationDispatcher processes an acknowledged webhook notification.
type NotificationDispatcher interface {
	Dispatch(ctx context.Context, n services.Notification) error
}

// SignatureVerifier checks webhook bodies against their signature header.
type SignatureVerifier interface {
	Verify(body []byte, signature string) (bool, error)
}

// TaskRunner runs work after the response has been written.
type TaskRunner interface {
	Go(ctx context.Context, name string, fn func(ctx context.Context) error)
}

//
// Handler wiring
//

// Services bundles the dependencies of Handlers. Nil services leave their
// routes unusable; the router always wires all of them.
type Services struct {
	Videos        VideoService
	Access        AccessService
	Carts         CartService
	Entitlements  EntitlementService
	Sweeps        SweepService
	Polls         PollService
	Auth          AuthService
	Categories    CategoryService
	Audit         AuditService
	Notifications NotificationDispatcher
	Verifier      SignatureVerifier
	Tasks         TaskRunner
}

// Options carries transport settings.
type Options struct {
	// UploadDir receives spooled multipart uploads ("" = os.TempDir()).
	UploadDir string
	// UploadMaxBytes caps a single video upload.
	UploadMaxBytes int64
	// SecureCookies marks the access_token cookie Secure.
	SecureCookies bool
}

// Handlers groups every HTTP endpoint.
type Handlers struct {
	svc  Services
	opts Options
}

// New constructs Handlers.
func New(svc Services, opts Options) *Handlers {
	return &Handlers{svc: svc, opts: opts}
}
