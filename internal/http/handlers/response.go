package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/course-platform-backend/internal/http/middleware"
	"github.com/tbourn/course-platform-backend/internal/mercadopago"
	"github.com/tbourn/course-platform-backend/internal/services"
	"github.com/tbourn/course-platform-backend/internal/vimeo"
)

// ErrorResponse is the error envelope returned by every endpoint.
type ErrorResponse struct {
	// Correlates server logs and client errors
	RequestID string `json:"request_id,omitempty" example:"123e4567-e89b-12d3-a456-426614174000"`
	// Stable, machine-readable code (see errors.go)
	Code string `json:"code" example:"not_found"`
	// Human-readable message
	Message string `json:"message" example:"video not found"`
}

// fail aborts with the error envelope. 5xx responses are logged with the
// request-scoped logger.
func fail(c *gin.Context, status int, code, msg string) {
	if status >= http.StatusInternalServerError {
		middleware.LoggerFrom(c).Error().
			Int("status", status).
			Str("code", code).
			Str("message", msg).
			Msg("api error")
	}
	c.AbortWithStatusJSON(status, ErrorResponse{
		RequestID: c.Writer.Header().Get("X-Request-ID"),
		Code:      code,
		Message:   msg,
	})
}

// Fail is the exported variant of fail for the router's fallbacks.
func Fail(c *gin.Context, status int, code, msg string) { fail(c, status, code, msg) }

// errorMapping translates a service error into status and code. The service
// error text is safe to show and becomes the message.
type errorMapping struct {
	err    error
	status int
	code   string
}

var serviceErrors = []errorMapping{
	{services.ErrSignInRequired, http.StatusUnauthorized, ErrCodeSignInRequired},
	{services.ErrPurchaseRequired, http.StatusForbidden, ErrCodePurchaseRequired},
	{services.ErrVideoUnavailable, http.StatusForbidden, ErrCodeVideoUnavailable},
	{services.ErrInvalidCredentials, http.StatusUnauthorized, ErrCodeUnauthorized},
	{services.ErrNotEligible, http.StatusForbidden, ErrCodeForbidden},

	{services.ErrVideoNotFound, http.StatusNotFound, ErrCodeNotFound},
	{services.ErrCategoryNotFound, http.StatusNotFound, ErrCodeNotFound},
	{services.ErrCartNotFound, http.StatusNotFound, ErrCodeNotFound},
	{services.ErrCartItemNotFound, http.StatusNotFound, ErrCodeNotFound},
	{services.ErrPollNotFound, http.StatusNotFound, ErrCodeNotFound},
	{services.ErrEntitlementNotFound, http.StatusNotFound, ErrCodeNotFound},
	{services.ErrUserNotFound, http.StatusNotFound, ErrCodeNotFound},

	{services.ErrSlugTaken, http.StatusConflict, ErrCodeConflict},
	{services.ErrAlreadyPurchased, http.StatusConflict, ErrCodeConflict},
	{services.ErrAlreadyInCart, http.StatusConflict, ErrCodeConflict},
	{services.ErrCategoryHasVideos, http.StatusConflict, ErrCodeConflict},

	{services.ErrInvalidInput, http.StatusBadRequest, ErrCodeBadRequest},
	{services.ErrInvalidPollOption, http.StatusBadRequest, ErrCodeBadRequest},
	{services.ErrPollClosed, http.StatusBadRequest, ErrCodeBadRequest},
	{services.ErrCategoryInactive, http.StatusBadRequest, ErrCodeBadRequest},
	{vimeo.ErrNotFound, http.StatusBadRequest, ErrCodeBadRequest},

	{services.ErrUploadFailed, http.StatusBadGateway, ErrCodeUpstream},
	{vimeo.ErrProvider, http.StatusBadGateway, ErrCodeUpstream},
	{vimeo.ErrNoEmbed, http.StatusBadGateway, ErrCodeUpstream},
}

// failErr maps err through serviceErrors; anything unknown is a 500 with a
// generic message so internals never leak.
func failErr(c *gin.Context, err error) {
	for _, m := range serviceErrors {
		if errors.Is(err, m.err) {
			if m.status >= http.StatusInternalServerError {
				_ = c.Error(err)
			}
			fail(c, m.status, m.code, m.err.Error())
			return
		}
	}
	var up *mercadopago.UpstreamError
	if errors.As(err, &up) {
		_ = c.Error(err)
		fail(c, http.StatusBadGateway, ErrCodeUpstream, "payment provider error")
		return
	}
	_ = c.Error(err)
	fail(c, http.StatusInternalServerError, ErrCodeInternal, "internal server error")
}

// ok writes a JSON success response.
func ok(c *gin.Context, status int, body any) {
	c.JSON(status, body)
}

// noContent writes 204.
func noContent(c *gin.Context) {
	c.Status(http.StatusNoContent)
}

// viewerFrom builds the service viewer from the identity set by
// middleware.Authenticate. Anonymous requests yield the zero Viewer.
func viewerFrom(c *gin.Context) services.Viewer {
	return services.Viewer{
		UserID: middleware.UserID(c),
		Email:  middleware.Email(c),
		Role:   middleware.Role(c),
	}
}
