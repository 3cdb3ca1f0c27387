// Video HTTP handlers.
//
//   - GET    /videos                    (paginated; optional auth)
//   - GET    /videos/{id}               (optional auth)
//   - GET    /videos/{id}/stream        (optional auth; access gate)
//   - GET    /videos/{id}/progress      (auth)
//   - POST   /videos/{id}/progress      (auth)
//   - POST   /videos                    (admin)
//   - PATCH  /videos/{id}               (admin)
//   - DELETE /videos/{id}               (admin)
//   - POST   /videos/upload             (admin, multipart)
//   - GET    /videos/{id}/upload-status (admin)
//
// Responses are rendered by the service under the caller's profile: the
// provider id is only ever shown to admins.
package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/tbourn/course-platform-backend/internal/http/middleware"
	"github.com/tbourn/course-platform-backend/internal/services"
	"github.com/tbourn/course-platform-backend/internal/utils"
)

//
// DTOs
//

// CreateVideoRequest registers a video already hosted on the provider.
type CreateVideoRequest struct {
	Title           string          `json:"title"            binding:"required,min=3,max=200" example:"Intro to knife skills"`
	Description     string          `json:"description"      binding:"max=5000"`
	VimeoID         string          `json:"vimeo_id"         binding:"required,max=64" example:"76979871"`
	CategoryID      string          `json:"category_id"      binding:"required" format:"uuid"`
	Order           *int            `json:"order"            binding:"omitempty,min=0" example:"1"`
	IsPublished     bool            `json:"is_published"`
	Contenidos      string          `json:"contenidos"`
	Downloads       json.RawMessage `json:"downloads"        swaggertype:"object"`
	MetaTitle       string          `json:"meta_title"       binding:"max=255"`
	MetaDescription string          `json:"meta_description"`
}

// UpdateVideoRequest changes selected fields; omitted fields are unchanged.
type UpdateVideoRequest struct {
	Title           *string         `json:"title"            binding:"omitempty,min=3,max=200"`
	Description     *string         `json:"description"      binding:"omitempty,max=5000"`
	VimeoID         *string         `json:"vimeo_id"         binding:"omitempty,max=64"`
	CategoryID      *string         `json:"category_id"`
	Order           *int            `json:"order"            binding:"omitempty,min=0"`
	IsPublished     *bool           `json:"is_published"`
	Contenidos      *string         `json:"contenidos"`
	Downloads       json.RawMessage `json:"downloads"        swaggertype:"object"`
	MetaTitle       *string         `json:"meta_title"       binding:"omitempty,max=255"`
	MetaDescription *string         `json:"meta_description"`
}

// ProgressRequest reports how far the caller watched a video.
type ProgressRequest struct {
	WatchedSeconds int  `json:"watched_seconds" binding:"min=0" example:"120"`
	Completed      bool `json:"completed"`
}

// uploadForm are the non-file fields of an upload.
type uploadForm struct {
	Title       string `form:"title"        binding:"required,min=3,max=200"`
	Description string `form:"description"  binding:"max=5000"`
	CategoryID  string `form:"category_id"  binding:"required"`
	Order       int    `form:"order"        binding:"min=0"`
	IsPublished bool   `form:"is_published"`
}

var videoExtensions = map[string]struct{}{
	".mp4": {}, ".mov": {}, ".m4v": {}, ".mkv": {}, ".webm": {}, ".avi": {}, ".mpeg": {}, ".mpg": {},
}

const (
	defaultVideoPage  = 1
	defaultVideoLimit = 10
)

//
// Handlers
//

// ListVideos godoc
// @ID          listVideos
// @Summary     List videos
// @Description Returns a page of videos. Non-admins only see published videos.
// @Tags        Videos
// @Produce     json
// @Security    BearerAuth
//
// @Param       page         query  int     false  "Page number"     minimum(1) default(1)
// @Param       limit        query  int     false  "Items per page"  minimum(1) maximum(100) default(10)
// @Param       category_id  query  string  false  "Filter by category"
// @Param       search       query  string  false  "Title or description contains"
//
// @Success     200  {object}  services.VideoPage
// @Failure     500  {object}  handlers.ErrorResponse
// @Router      /videos [get]
func (h *Handlers) ListVideos(c *gin.Context) {
	q := services.VideoQuery{
		Page:       utils.AtoiDefault(c.Query("page"), defaultVideoPage),
		Limit:      utils.AtoiDefault(c.Query("limit"), defaultVideoLimit),
		CategoryID: strings.TrimSpace(firstQuery(c, "category_id", "categoryId")),
		Search:     strings.TrimSpace(c.Query("search")),
	}
	page, err := h.svc.Videos.List(c.Request.Context(), q, viewerFrom(c))
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, http.StatusOK, page)
}

// GetVideo godoc
// @ID          getVideo
// @Summary     Get a video
// @Tags        Videos
// @Produce     json
// @Security    BearerAuth
// @Param       id   path  string  true  "Video ID"  format(uuid)
// @Success     200  {object}  services.VideoResponse
// @Failure     404  {object}  handlers.ErrorResponse
// @Router      /videos/{id} [get]
func (h *Handlers) GetVideo(c *gin.Context) {
	v, err := h.svc.Videos.Get(c.Request.Context(), c.Param("id"), viewerFrom(c))
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, http.StatusOK, v)
}

// StreamVideo godoc
// @ID          streamVideo
// @Summary     Get a playback URL
// @Description Returns a short-lived player URL when the caller may watch the video. Previews are public; other lessons need an active entitlement or a free category.
// @Tags        Videos
// @Produce     json
// @Security    BearerAuth
// @Param       id   path  string  true  "Video ID"  format(uuid)
// @Success     200  {object}  services.StreamURL
// @Failure     401  {object}  handlers.ErrorResponse  "sign_in_required"
// @Failure     403  {object}  handlers.ErrorResponse  "purchase_required or video_unavailable"
// @Failure     404  {object}  handlers.ErrorResponse
// @Failure     502  {object}  handlers.ErrorResponse  "Video provider error"
// @Router      /videos/{id}/stream [get]
func (h *Handlers) StreamVideo(c *gin.Context) {
	out, err := h.svc.Access.Stream(c.Request.Context(), c.Param("id"), viewerFrom(c))
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, http.StatusOK, out)
}

// UpdateProgress godoc
// @ID          updateVideoProgress
// @Summary     Record viewing progress
// @Tags        Videos
// @Accept      json
// @Produce     json
// @Security    BearerAuth
// @Param       id    path  string                    true  "Video ID"  format(uuid)
// @Param       body  body  handlers.ProgressRequest  true  "Progress"
// @Success     200  {object}  services.Progress
// @Failure     400  {object}  handlers.ErrorResponse
// @Failure     404  {object}  handlers.ErrorResponse
// @Router      /videos/{id}/progress [post]
func (h *Handlers) UpdateProgress(c *gin.Context) {
	var req ProgressRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, bindingMessage(err))
		return
	}
	p, err := h.svc.Videos.UpdateProgress(c.Request.Context(), viewerFrom(c).UserID, c.Param("id"), req.WatchedSeconds, req.Completed)
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, http.StatusOK, p)
}

// GetProgress godoc
// @ID          getVideoProgress
// @Summary     Get viewing progress
// @Tags        Videos
// @Produce     json
// @Security    BearerAuth
// @Param       id   path  string  true  "Video ID"  format(uuid)
// @Success     200  {object}  services.Progress
// @Router      /videos/{id}/progress [get]
func (h *Handlers) GetProgress(c *gin.Context) {
	p, err := h.svc.Videos.GetProgress(c.Request.Context(), viewerFrom(c).UserID, c.Param("id"))
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, http.StatusOK, p)
}

// CreateVideo godoc
// @ID          createVideo
// @Summary     Register a hosted video (admin)
// @Description Fetches duration and thumbnail from the provider and stores the lesson.
// @Tags        Videos
// @Accept      json
// @Produce     json
// @Security    BearerAuth
// @Param       body  body  handlers.CreateVideoRequest  true  "Video"
// @Success     201  {object}  services.VideoResponse
// @Failure     400  {object}  handlers.ErrorResponse
// @Failure     404  {object}  handlers.ErrorResponse  "Category not found"
// @Failure     502  {object}  handlers.ErrorResponse
// @Router      /videos [post]
func (h *Handlers) CreateVideo(c *gin.Context) {
	var req CreateVideoRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, bindingMessage(err))
		return
	}
	in := services.VideoInput{
		Title:           strings.TrimSpace(req.Title),
		Description:     req.Description,
		VimeoID:         strings.TrimSpace(req.VimeoID),
		CategoryID:      req.CategoryID,
		IsPublished:     req.IsPublished,
		Contenidos:      req.Contenidos,
		Downloads:       req.Downloads,
		MetaTitle:       req.MetaTitle,
		MetaDescription: req.MetaDescription,
	}
	if req.Order != nil {
		in.Order = *req.Order
	}
	v, err := h.svc.Videos.Create(c.Request.Context(), in, viewerFrom(c))
	if err != nil {
		failErr(c, err)
		return
	}
	middleware.SetAuditTarget(c, v.ID, req)
	ok(c, http.StatusCreated, v)
}

// UpdateVideo godoc
// @ID          updateVideo
// @Summary     Update a video (admin)
// @Tags        Videos
// @Accept      json
// @Produce     json
// @Security    BearerAuth
// @Param       id    path  string                       true  "Video ID"  format(uuid)
// @Param       body  body  handlers.UpdateVideoRequest  true  "Fields to change"
// @Success     200  {object}  services.VideoResponse
// @Failure     400  {object}  handlers.ErrorResponse
// @Failure     404  {object}  handlers.ErrorResponse
// @Router      /videos/{id} [patch]
func (h *Handlers) UpdateVideo(c *gin.Context) {
	var req UpdateVideoRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, bindingMessage(err))
		return
	}
	p := services.VideoPatch{
		Title:           req.Title,
		Description:     req.Description,
		VimeoID:         req.VimeoID,
		CategoryID:      req.CategoryID,
		Order:           req.Order,
		IsPublished:     req.IsPublished,
		Contenidos:      req.Contenidos,
		Downloads:       req.Downloads,
		MetaTitle:       req.MetaTitle,
		MetaDescription: req.MetaDescription,
	}
	v, err := h.svc.Videos.Update(c.Request.Context(), c.Param("id"), p, viewerFrom(c))
	if err != nil {
		failErr(c, err)
		return
	}
	middleware.SetAuditTarget(c, v.ID, req)
	ok(c, http.StatusOK, v)
}

// DeleteVideo godoc
// @ID          deleteVideo
// @Summary     Delete a video (admin)
// @Tags        Videos
// @Security    BearerAuth
// @Param       id  path  string  true  "Video ID"  format(uuid)
// @Success     204  {string}  string  "No Content"
// @Failure     404  {object}  handlers.ErrorResponse
// @Router      /videos/{id} [delete]
func (h *Handlers) DeleteVideo(c *gin.Context) {
	if err := h.svc.Videos.Delete(c.Request.Context(), c.Param("id")); err != nil {
		failErr(c, err)
		return
	}
	noContent(c)
}

// UploadVideo godoc
// @ID          uploadVideo
// @Summary     Upload a video file (admin)
// @Description Spools the file, uploads it to the provider, waits for processing and stores the lesson. The request stays open until the provider reports the video or gives up.
// @Tags        Videos
// @Accept      multipart/form-data
// @Produce     json
// @Security    BearerAuth
// @Param       file          formData  file    true   "Video file"
// @Param       title         formData  string  true   "Title"
// @Param       description   formData  string  false  "Description"
// @Param       category_id   formData  string  true   "Category ID"
// @Param       order         formData  int     false  "Position in the category (0 = preview)"
// @Param       is_published  formData  bool    false  "Publish immediately"
// @Success     201  {object}  services.VideoResponse
// @Failure     400  {object}  handlers.ErrorResponse
// @Failure     413  {object}  handlers.ErrorResponse
// @Failure     502  {object}  handlers.ErrorResponse
// @Router      /videos/upload [post]
func (h *Handlers) UploadVideo(c *gin.Context) {
	lg := middleware.LoggerFrom(c)

	// Large bodies and provider polling outlive the server-wide deadlines.
	rc := http.NewResponseController(c.Writer)
	if err := rc.SetReadDeadline(time.Time{}); err != nil {
		lg.Warn().Err(err).Msg("upload: cannot lift read deadline")
	}
	if err := rc.SetWriteDeadline(time.Time{}); err != nil {
		lg.Warn().Err(err).Msg("upload: cannot lift write deadline")
	}

	if h.opts.UploadMaxBytes > 0 {
		// Multipart framing needs a little room on top of the file itself.
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, h.opts.UploadMaxBytes+(1<<20))
	}

	fh, err := c.FormFile("file")
	if err != nil {
		var mbe *http.MaxBytesError
		if errors.As(err, &mbe) {
			fail(c, http.StatusRequestEntityTooLarge, ErrCodeBadRequest, "file too large")
			return
		}
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "multipart field 'file' is required")
		return
	}
	if h.opts.UploadMaxBytes > 0 && fh.Size > h.opts.UploadMaxBytes {
		fail(c, http.StatusRequestEntityTooLarge, ErrCodeBadRequest, "file too large")
		return
	}
	ext := strings.ToLower(filepath.Ext(fh.Filename))
	if _, known := videoExtensions[ext]; !known && !strings.HasPrefix(fh.Header.Get("Content-Type"), "video/") {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "file must be a video")
		return
	}

	var form uploadForm
	if err := c.ShouldBind(&form); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, bindingMessage(err))
		return
	}

	dir := h.opts.UploadDir
	if dir == "" {
		dir = os.TempDir()
	}
	if err := os.MkdirAll(dir, 0o750); err != nil {
		failErr(c, err)
		return
	}
	path := filepath.Join(dir, uuid.NewString()+ext)
	if err := c.SaveUploadedFile(fh, path); err != nil {
		_ = os.Remove(path)
		failErr(c, err)
		return
	}
	lg.Info().Str("file", fh.Filename).Int64("bytes", fh.Size).Msg("upload spooled")

	// The service owns the spooled file from here and removes it.
	v, err := h.svc.Videos.Upload(c.Request.Context(), services.UploadInput{
		Path:        path,
		Filename:    fh.Filename,
		Title:       form.Title,
		Description: form.Description,
		CategoryID:  form.CategoryID,
		Order:       form.Order,
		IsPublished: form.IsPublished,
	})
	if err != nil {
		failErr(c, err)
		return
	}
	middleware.SetAuditTarget(c, v.ID, nil)
	ok(c, http.StatusCreated, v)
}

// UploadStatus godoc
// @ID          videoUploadStatus
// @Summary     Provider processing status (admin)
// @Tags        Videos
// @Produce     json
// @Security    BearerAuth
// @Param       id   path  string  true  "Video ID"  format(uuid)
// @Success     200  {object}  services.UploadStatusView
// @Failure     404  {object}  handlers.ErrorResponse
// @Failure     502  {object}  handlers.ErrorResponse
// @Router      /videos/{id}/upload-status [get]
func (h *Handlers) UploadStatus(c *gin.Context) {
	st, err := h.svc.Videos.UploadStatus(c.Request.Context(), c.Param("id"))
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, http.StatusOK, st)
}

// firstQuery returns the first non-empty query value among keys.
func firstQuery(c *gin.Context, keys ...string) string {
	for _, k := range keys {
		if v := c.Query(k); v != "" {
			return v
		}
	}
	return ""
}
