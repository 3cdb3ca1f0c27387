// Authentication handlers. Tokens are returned in the body and also set as
// an HttpOnly cookie for browser clients.
package handlers

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/course-platform-backend/internal/http/middleware"
)

// LoginRequest holds credentials.
type LoginRequest struct {
	Email    string `json:"email"    binding:"required,email" example:"student@example.com"`
	Password string `json:"password" binding:"required,min=1,max=128"`
}

// Login godoc
// @ID          login
// @Summary     Sign in
// @Tags        Auth
// @Accept      json
// @Produce     json
// @Param       body  body  handlers.LoginRequest  true  "Credentials"
// @Success     200  {object}  services.LoginResult
// @Failure     400  {object}  handlers.ErrorResponse
// @Failure     401  {object}  handlers.ErrorResponse  "Invalid credentials"
// @Router      /auth/login [post]
func (h *Handlers) Login(c *gin.Context) {
	var req LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, bindingMessage(err))
		return
	}
	res, err := h.svc.Auth.Login(c.Request.Context(), strings.TrimSpace(req.Email), req.Password)
	if err != nil {
		failErr(c, err)
		return
	}
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(middleware.AccessTokenCookie, res.AccessToken, res.ExpiresIn, "/", "", h.opts.SecureCookies, true)
	ok(c, http.StatusOK, res)
}

// Me godoc
// @ID          me
// @Summary     Current user
// @Tags        Auth
// @Produce     json
// @Security    BearerAuth
// @Success     200  {object}  domain.User
// @Failure     401  {object}  handlers.ErrorResponse
// @Router      /auth/me [get]
func (h *Handlers) Me(c *gin.Context) {
	u, err := h.svc.Auth.Me(c.Request.Context(), viewerFrom(c).UserID)
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, http.StatusOK, u)
}

// Logout godoc
// @ID          logout
// @Summary     Sign out
// @Description Expires the access_token cookie. Bearer tokens stay valid until they expire.
// @Tags        Auth
// @Produce     json
// @Success     200  {object}  handlers.LogoutResponse
// @Router      /auth/logout [post]
func (h *Handlers) Logout(c *gin.Context) {
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(middleware.AccessTokenCookie, "", -1, "/", "", h.opts.SecureCookies, true)
	ok(c, http.StatusOK, LogoutResponse{Success: true, Message: "signed out"})
}

// LogoutResponse acknowledges a logout.
type LogoutResponse struct {
	Success bool   `json:"success" example:"true"`
	Message string `json:"message" example:"signed out"`
}
