// Package services – VideoService
//
// VideoService manages lesson videos: catalog CRUD backed by provider
// metadata, admin uploads streamed to the provider, processing status and
// per-user viewing progress.
//
// Responses are shaped by a serialization profile: the admin profile adds the
// provider id, the public one omits it. The provider page URL is never
// exposed.
package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/tbourn/course-platform-backend/internal/domain"
	"github.com/tbourn/course-platform-backend/internal/repo"
	"github.com/tbourn/course-platform-backend/internal/storage"
	"github.com/tbourn/course-platform-backend/internal/utils"
	"github.com/tbourn/course-platform-backend/internal/vimeo"
)

const (
	thumbnailWidth   = 640
	minVideoTitle    = 3
	maxVideoTitle    = 200
	defaultPageLimit = 10
	maxPageLimit     = 100
)

// Serialization profiles.
const (
	ProfilePublic = "public"
	ProfileAdmin  = "admin"
)

// ProfileFor picks the serialization profile for a viewer.
func ProfileFor(v Viewer) string {
	if v.IsAdmin() {
		return ProfileAdmin
	}
	return ProfilePublic
}

// VideoProvider is the slice of the video host the service needs.
type VideoProvider interface {
	GetVideo(ctx context.Context, id string) (*vimeo.Video, error)
	Thumbnail(ctx context.Context, id string, width int) string
	Upload(ctx context.Context, path, name, description string, onProgress vimeo.ProgressFunc) (string, error)
	Status(ctx context.Context, id string) (vimeo.UploadStatus, error)
}

// CategoryRef is the category as embedded in a video response.
type CategoryRef struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	Slug string `json:"slug"`
}

// VideoResponse is the client view of a video.
type VideoResponse struct {
	ID              string          `json:"id"`
	Title           string          `json:"title"`
	Description     string          `json:"description,omitempty"`
	Thumbnail       string          `json:"thumbnail,omitempty"`
	Duration        int             `json:"duration"`
	CategoryID      string          `json:"category_id"`
	Category        *CategoryRef    `json:"category,omitempty"`
	Order           int             `json:"order"`
	IsPublished     bool            `json:"is_published"`
	PublishedAt     *time.Time      `json:"published_at,omitempty"`
	Contenidos      string          `json:"contenidos,omitempty"`
	Downloads       json.RawMessage `json:"downloads,omitempty"`
	MetaTitle       string          `json:"meta_title,omitempty"`
	MetaDescription string          `json:"meta_description,omitempty"`
	CreatedAt       time.Time       `json:"created_at"`
	UpdatedAt       time.Time       `json:"updated_at"`

	// Admin profile only.
	VimeoID string `json:"vimeo_id,omitempty"`
}

// NewVideoResponse renders v under profile.
func NewVideoResponse(v *domain.Video, profile string) VideoResponse {
	r := VideoResponse{
		ID:              v.ID,
		Title:           v.Title,
		Description:     v.Description,
		Thumbnail:       v.Thumbnail,
		Duration:        v.Duration,
		CategoryID:      v.CategoryID,
		Order:           v.SortOrder,
		IsPublished:     v.IsPublished,
		PublishedAt:     v.PublishedAt,
		Contenidos:      v.Contenidos,
		MetaTitle:       v.MetaTitle,
		MetaDescription: v.MetaDescription,
		CreatedAt:       v.CreatedAt,
		UpdatedAt:       v.UpdatedAt,
	}
	if len(v.Downloads) > 0 {
		r.Downloads = json.RawMessage(v.Downloads)
	}
	if v.Category.ID != "" {
		r.Category = &CategoryRef{ID: v.Category.ID, Name: v.Category.Name, Slug: v.Category.Slug}
	}
	if profile == ProfileAdmin {
		r.VimeoID = v.VimeoID
	}
	return r
}

// VideoInput creates a video from an existing provider id.
type VideoInput struct {
	Title           string
	Description     string
	VimeoID         string
	CategoryID      string
	Order           int
	IsPublished     bool
	Contenidos      string
	Downloads       json.RawMessage
	MetaTitle       string
	MetaDescription string
}

// VideoPatch updates selected fields; nil means unchanged.
type VideoPatch struct {
	Title           *string
	Description     *string
	VimeoID         *string
	CategoryID      *string
	Order           *int
	IsPublished     *bool
	Contenidos      *string
	Downloads       json.RawMessage
	MetaTitle       *string
	MetaDescription *string
}

// VideoQuery filters and pages listings.
type VideoQuery struct {
	Page       int
	Limit      int
	CategoryID string
	Search     string
}

// VideoPage is one page of a listing.
type VideoPage struct {
	Data []VideoResponse `json:"data"`
	Meta utils.PageMeta  `json:"meta"`
}

// UploadInput describes a source file already spooled to local disk.
type UploadInput struct {
	Path        string
	Filename    string
	Title       string
	Description string
	CategoryID  string
	Order       int
	IsPublished bool
}

// UploadStatusView is the processing state reported to admins.
type UploadStatusView struct {
	Status   string `json:"status"`
	Progress int    `json:"progress"`
	Message  string `json:"message"`
}

var statusMessages = map[string]string{
	vimeo.StateUploading:  "The video is being uploaded to the provider.",
	vimeo.StateProcessing: "The provider is processing the video. This may take several minutes.",
	vimeo.StateAvailable:  "The video is ready for playback.",
	vimeo.StateError:      "The provider failed to process the video.",
}

// Progress is a user's viewing progress on one video.
type Progress struct {
	WatchedSeconds int        `json:"watched_seconds"`
	Progress       int        `json:"progress"`
	Completed      bool       `json:"completed"`
	LastWatchedAt  *time.Time `json:"last_watched_at,omitempty"`
}

// VideoService implements video operations.
type VideoService struct {
	DB       *gorm.DB
	Provider VideoProvider
	Archiver storage.Archiver

	PollInterval time.Duration
	PollAttempts int

	Now func() time.Time
	Log zerolog.Logger
}

// NewVideoService constructs a VideoService. A nil archiver disables archiving.
func NewVideoService(db *gorm.DB, provider VideoProvider, archiver storage.Archiver, pollInterval time.Duration, pollAttempts int) *VideoService {
	if archiver == nil {
		archiver = storage.NopArchiver{}
	}
	if pollInterval <= 0 {
		pollInterval = 10 * time.Second
	}
	if pollAttempts < 1 {
		pollAttempts = 30
	}
	return &VideoService{
		DB:           db,
		Provider:     provider,
		Archiver:     archiver,
		PollInterval: pollInterval,
		PollAttempts: pollAttempts,
		Now:          func() time.Time { return time.Now().UTC() },
		Log:          log.Logger,
	}
}

func (s *VideoService) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now().UTC()
}

func validTitle(t string) bool {
	n := utf8.RuneCountInString(t)
	return n >= minVideoTitle && n <= maxVideoTitle
}

func (s *VideoService) requireCategory(ctx context.Context, id string) error {
	if _, err := repo.GetCategory(ctx, s.DB, id); err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return ErrCategoryNotFound
		}
		return err
	}
	return nil
}

// Create registers a video already hosted at the provider.
func (s *VideoService) Create(ctx context.Context, in VideoInput, viewer Viewer) (*VideoResponse, error) {
	tr := otel.Tracer("services/VideoService")
	ctx, span := tr.Start(ctx, "Create",
		trace.WithAttributes(
			attribute.String("video.vimeo_id", in.VimeoID),
			attribute.String("category.id", in.CategoryID),
		),
	)
	defer span.End()

	in.Title = strings.TrimSpace(in.Title)
	in.VimeoID = strings.TrimSpace(in.VimeoID)
	if !validTitle(in.Title) || in.VimeoID == "" || in.Order < 0 {
		return nil, ErrInvalidInput
	}
	if in.Downloads != nil && !json.Valid(in.Downloads) {
		return nil, ErrInvalidInput
	}
	if err := s.requireCategory(ctx, in.CategoryID); err != nil {
		return nil, err
	}

	meta, err := s.Provider.GetVideo(ctx, in.VimeoID)
	if err != nil {
		return nil, fmt.Errorf("fetch provider metadata: %w", err)
	}

	v := &domain.Video{
		Title:           in.Title,
		Description:     in.Description,
		VimeoID:         in.VimeoID,
		VimeoURL:        meta.Link,
		Thumbnail:       s.Provider.Thumbnail(ctx, in.VimeoID, thumbnailWidth),
		Duration:        meta.Duration,
		CategoryID:      in.CategoryID,
		SortOrder:       in.Order,
		IsPublished:     in.IsPublished,
		Contenidos:      in.Contenidos,
		MetaTitle:       in.MetaTitle,
		MetaDescription: in.MetaDescription,
	}
	if in.Downloads != nil {
		v.Downloads = datatypes.JSON(in.Downloads)
	}
	if v.IsPublished {
		now := s.now()
		v.PublishedAt = &now
	}
	if err := repo.CreateVideo(ctx, s.DB, v); err != nil {
		return nil, err
	}
	s.Log.Info().Str("video_id", v.ID).Str("vimeo_id", v.VimeoID).Msg("video created")
	return s.Get(ctx, v.ID, viewer)
}

// Get returns one video rendered for viewer. Unpublished videos are hidden
// from non-admins.
func (s *VideoService) Get(ctx context.Context, id string, viewer Viewer) (*VideoResponse, error) {
	v, err := repo.GetVideo(ctx, s.DB, id)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return nil, ErrVideoNotFound
		}
		return nil, err
	}
	if !v.IsPublished && !viewer.IsAdmin() {
		return nil, ErrVideoNotFound
	}
	r := NewVideoResponse(v, ProfileFor(viewer))
	return &r, nil
}

// List returns a page of videos. Non-admins only see published ones.
func (s *VideoService) List(ctx context.Context, q VideoQuery, viewer Viewer) (*VideoPage, error) {
	tr := otel.Tracer("services/VideoService")
	ctx, span := tr.Start(ctx, "List",
		trace.WithAttributes(
			attribute.Int("page", q.Page),
			attribute.Int("limit", q.Limit),
		),
	)
	defer span.End()

	page, limit, offset := utils.Paginate(q.Page, q.Limit, defaultPageLimit, maxPageLimit)
	f := repo.VideoFilter{CategoryID: q.CategoryID, Search: q.Search, PublishedOnly: !viewer.IsAdmin()}

	total, err := repo.CountVideos(ctx, s.DB, f)
	if err != nil {
		return nil, err
	}
	out := &VideoPage{Data: []VideoResponse{}, Meta: utils.NewPageMeta(page, limit, total)}
	if total == 0 {
		return out, nil
	}

	rows, err := repo.ListVideosPage(ctx, s.DB, f, offset, limit)
	if err != nil {
		return nil, err
	}
	profile := ProfileFor(viewer)
	for i := range rows {
		out.Data = append(out.Data, NewVideoResponse(&rows[i], profile))
	}
	return out, nil
}

// Update applies p. Changing the provider id refreshes link, thumbnail and
// duration from the provider.
func (s *VideoService) Update(ctx context.Context, id string, p VideoPatch, viewer Viewer) (*VideoResponse, error) {
	tr := otel.Tracer("services/VideoService")
	ctx, span := tr.Start(ctx, "Update", trace.WithAttributes(attribute.String("video.id", id)))
	defer span.End()

	cur, err := repo.GetVideo(ctx, s.DB, id)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return nil, ErrVideoNotFound
		}
		return nil, err
	}

	fields := map[string]any{}
	if p.Title != nil {
		t := strings.TrimSpace(*p.Title)
		if !validTitle(t) {
			return nil, ErrInvalidInput
		}
		fields["title"] = t
	}
	if p.Description != nil {
		fields["description"] = *p.Description
	}
	if p.CategoryID != nil && *p.CategoryID != cur.CategoryID {
		if err := s.requireCategory(ctx, *p.CategoryID); err != nil {
			return nil, err
		}
		fields["category_id"] = *p.CategoryID
	}
	if p.Order != nil {
		if *p.Order < 0 {
			return nil, ErrInvalidInput
		}
		fields["sort_order"] = *p.Order
	}
	if p.IsPublished != nil {
		fields["is_published"] = *p.IsPublished
		if *p.IsPublished && cur.PublishedAt == nil {
			fields["published_at"] = s.now()
		}
	}
	if p.Contenidos != nil {
		fields["contenidos"] = *p.Contenidos
	}
	if p.Downloads != nil {
		if !json.Valid(p.Downloads) {
			return nil, ErrInvalidInput
		}
		fields["downloads"] = datatypes.JSON(p.Downloads)
	}
	if p.MetaTitle != nil {
		fields["meta_title"] = *p.MetaTitle
	}
	if p.MetaDescription != nil {
		fields["meta_description"] = *p.MetaDescription
	}
	if p.VimeoID != nil {
		vid := strings.TrimSpace(*p.VimeoID)
		if vid == "" {
			return nil, ErrInvalidInput
		}
		if vid != cur.VimeoID {
			meta, err := s.Provider.GetVideo(ctx, vid)
			if err != nil {
				return nil, fmt.Errorf("fetch provider metadata: %w", err)
			}
			fields["vimeo_id"] = vid
			fields["vimeo_url"] = meta.Link
			fields["duration"] = meta.Duration
			fields["thumbnail"] = s.Provider.Thumbnail(ctx, vid, thumbnailWidth)
		}
	}

	if len(fields) > 0 {
		if err := repo.UpdateVideo(ctx, s.DB, id, fields); err != nil {
			if errors.Is(err, repo.ErrNotFound) {
				return nil, ErrVideoNotFound
			}
			return nil, err
		}
	}
	return s.Get(ctx, id, viewer)
}

// Delete soft-deletes the video.
func (s *VideoService) Delete(ctx context.Context, id string) error {
	if err := repo.DeleteVideo(ctx, s.DB, id); err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return ErrVideoNotFound
		}
		return err
	}
	s.Log.Info().Str("video_id", id).Msg("video deleted")
	return nil
}

// Upload sends the spooled file to the provider, waits for processing,
// records the video and archives the source. The local file is always
// removed.
func (s *VideoService) Upload(ctx context.Context, in UploadInput) (*VideoResponse, error) {
	tr := otel.Tracer("services/VideoService")
	ctx, span := tr.Start(ctx, "Upload",
		trace.WithAttributes(
			attribute.String("category.id", in.CategoryID),
			attribute.String("upload.filename", in.Filename),
		),
	)
	defer span.End()

	lg := s.Log.With().Str("file", in.Filename).Str("category_id", in.CategoryID).Logger()
	defer func() {
		if err := os.Remove(in.Path); err != nil && !os.IsNotExist(err) {
			lg.Warn().Err(err).Str("path", in.Path).Msg("removing temp upload failed")
		}
	}()

	in.Title = strings.TrimSpace(in.Title)
	if !validTitle(in.Title) || in.Order < 0 {
		return nil, ErrInvalidInput
	}
	if err := s.requireCategory(ctx, in.CategoryID); err != nil {
		return nil, err
	}

	lastPct := -1
	vimeoID, err := s.Provider.Upload(ctx, in.Path, in.Title, in.Description, func(sent, total int64) {
		if total <= 0 {
			return
		}
		if pct := int(sent * 100 / total); pct/10 != lastPct/10 {
			lastPct = pct
			lg.Info().Int("percent", pct).Int64("sent", sent).Int64("total", total).Msg("upload progress")
		}
	})
	if err != nil {
		lg.Error().Err(err).Msg("upload to provider failed")
		return nil, err
	}
	lg = lg.With().Str("vimeo_id", vimeoID).Logger()
	lg.Info().Msg("upload to provider finished")

	if err := s.WaitForAvailability(ctx, vimeoID); err != nil {
		return nil, err
	}

	meta, err := s.Provider.GetVideo(ctx, vimeoID)
	if err != nil {
		return nil, fmt.Errorf("fetch provider metadata: %w", err)
	}
	v := &domain.Video{
		Title:       in.Title,
		Description: in.Description,
		VimeoID:     vimeoID,
		VimeoURL:    meta.Link,
		Thumbnail:   s.Provider.Thumbnail(ctx, vimeoID, thumbnailWidth),
		Duration:    meta.Duration,
		CategoryID:  in.CategoryID,
		SortOrder:   in.Order,
		IsPublished: in.IsPublished,
	}
	if v.IsPublished {
		now := s.now()
		v.PublishedAt = &now
	}
	if err := repo.CreateVideo(ctx, s.DB, v); err != nil {
		return nil, err
	}

	name := in.Filename
	if name == "" {
		name = filepath.Base(in.Path)
	}
	if err := s.Archiver.Archive(ctx, in.Path, storage.ObjectKey(vimeoID, name, s.now())); err != nil {
		lg.Warn().Err(err).Msg("archiving source video failed")
	}

	lg.Info().Str("video_id", v.ID).Msg("uploaded video recorded")
	saved, err := repo.GetVideo(ctx, s.DB, v.ID)
	if err != nil {
		return nil, err
	}
	r := NewVideoResponse(saved, ProfileAdmin)
	return &r, nil
}

// WaitForAvailability polls the provider until the video is available, up to
// PollAttempts times. A provider-side processing error fails the upload; a
// status lookup error or running out of attempts lets it proceed, since the
// admin can check status later.
func (s *VideoService) WaitForAvailability(ctx context.Context, vimeoID string) error {
	lg := s.Log.With().Str("vimeo_id", vimeoID).Logger()

	for attempt := 1; ; attempt++ {
		st, err := s.Provider.Status(ctx, vimeoID)
		if err != nil {
			lg.Warn().Err(err).Msg("status check failed, continuing")
			return nil
		}
		switch st.Status {
		case vimeo.StateAvailable:
			lg.Info().Int("attempt", attempt).Msg("video available")
			return nil
		case vimeo.StateError:
			return ErrUploadFailed
		}
		if attempt >= s.PollAttempts {
			lg.Warn().Int("attempts", attempt).Msg("timed out waiting for processing, continuing")
			return nil
		}

		t := time.NewTimer(s.PollInterval)
		select {
		case <-ctx.Done():
			t.Stop()
			return ctx.Err()
		case <-t.C:
		}
	}
}

// UploadStatus reports the provider processing state of a stored video.
func (s *VideoService) UploadStatus(ctx context.Context, id string) (*UploadStatusView, error) {
	v, err := repo.GetVideo(ctx, s.DB, id)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return nil, ErrVideoNotFound
		}
		return nil, err
	}
	st, err := s.Provider.Status(ctx, v.VimeoID)
	if err != nil {
		return nil, err
	}
	return &UploadStatusView{Status: st.Status, Progress: st.Progress, Message: statusMessages[st.Status]}, nil
}

// UpdateProgress records how far userID has watched videoID.
func (s *VideoService) UpdateProgress(ctx context.Context, userID, videoID string, watchedSeconds int, completed bool) (*Progress, error) {
	if watchedSeconds < 0 {
		return nil, ErrInvalidInput
	}
	v, err := repo.GetVideo(ctx, s.DB, videoID)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return nil, ErrVideoNotFound
		}
		return nil, err
	}
	pct := 0
	if v.Duration > 0 {
		pct = int(math.Min(100, math.Round(float64(watchedSeconds)/float64(v.Duration)*100)))
	}
	now := s.now()
	view := &domain.VideoView{
		UserID:         userID,
		VideoID:        videoID,
		WatchedSeconds: watchedSeconds,
		TotalSeconds:   v.Duration,
		Progress:       pct,
		Completed:      completed,
		LastWatchedAt:  now,
		UpdatedAt:      now,
	}
	if err := repo.UpsertView(ctx, s.DB, view); err != nil {
		return nil, err
	}
	return &Progress{WatchedSeconds: watchedSeconds, Progress: pct, Completed: completed, LastWatchedAt: &now}, nil
}

// GetProgress returns the user's progress, zero when never watched.
func (s *VideoService) GetProgress(ctx context.Context, userID, videoID string) (*Progress, error) {
	view, err := repo.GetView(ctx, s.DB, userID, videoID)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return &Progress{}, nil
		}
		return nil, err
	}
	at := view.LastWatchedAt
	return &Progress{WatchedSeconds: view.WatchedSeconds, Progress: view.Progress, Completed: view.Completed, LastWatchedAt: &at}, nil
}
