// Entitlement HTTP handlers: the caller's own entitlements plus the admin
// tools for manual grants, revocation and the expiry sweep.
package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/course-platform-backend/internal/domain"
	"github.com/tbourn/course-platform-backend/internal/http/middleware"
	"github.com/tbourn/course-platform-backend/internal/services"
)

// EntitlementView is an entitlement as shown to clients. Active reflects
// expiry at response time, not just the stored flag.
type EntitlementView struct {
	domain.Entitlement
	Active bool `json:"active"`
}

// ManualGrantRequest grants a category outside the payment flow.
type ManualGrantRequest struct {
	CategoryID string  `json:"category_id" binding:"required" format:"uuid"`
	Amount     float64 `json:"amount"      binding:"min=0"`
	Currency   string  `json:"currency"    binding:"omitempty,oneof=ARS USD" example:"ARS"`
	Method     string  `json:"method"      binding:"max=64" example:"manual"`
}

func entitlementViews(rows []domain.Entitlement, now time.Time) []EntitlementView {
	out := make([]EntitlementView, 0, len(rows))
	for _, e := range rows {
		out = append(out, EntitlementView{Entitlement: e, Active: e.ActiveAt(now)})
	}
	return out
}

// MyEntitlements godoc
// @ID          myEntitlements
// @Summary     List the caller's entitlements
// @Tags        Entitlements
// @Produce     json
// @Security    BearerAuth
// @Success     200  {array}   handlers.EntitlementView
// @Failure     401  {object}  handlers.ErrorResponse
// @Router      /me/entitlements [get]
func (h *Handlers) MyEntitlements(c *gin.Context) {
	rows, err := h.svc.Entitlements.ListForUser(c.Request.Context(), viewerFrom(c).UserID)
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, http.StatusOK, entitlementViews(rows, time.Now()))
}

// GrantEntitlement godoc
// @ID          grantEntitlement
// @Summary     Grant a category to a user (admin)
// @Description Creates a permanent entitlement, or reactivates the existing one as permanent.
// @Tags        Admin
// @Accept      json
// @Produce     json
// @Security    BearerAuth
// @Param       id    path  string                       true  "User ID"
// @Param       body  body  handlers.ManualGrantRequest  true  "Grant"
// @Success     201  {object}  domain.Entitlement
// @Failure     400  {object}  handlers.ErrorResponse
// @Failure     404  {object}  handlers.ErrorResponse  "User or category not found"
// @Router      /admin/users/{id}/entitlements [post]
func (h *Handlers) GrantEntitlement(c *gin.Context) {
	var req ManualGrantRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, bindingMessage(err))
		return
	}
	userID := c.Param("id")
	e, err := h.svc.Entitlements.GrantManual(c.Request.Context(), services.ManualGrant{
		UserID:     userID,
		CategoryID: req.CategoryID,
		Amount:     req.Amount,
		Currency:   req.Currency,
		Method:     req.Method,
	})
	if err != nil {
		failErr(c, err)
		return
	}
	middleware.LoggerFrom(c).Info().
		Str("admin_id", middleware.UserID(c)).
		Str("user_id", userID).
		Str("category_id", req.CategoryID).
		Msg("manual entitlement granted")
	middleware.SetAuditTarget(c, e.ID, req)
	ok(c, http.StatusCreated, e)
}

// RevokeEntitlement godoc
// @ID          revokeEntitlement
// @Summary     Revoke a user's entitlement (admin)
// @Tags        Admin
// @Security    BearerAuth
// @Param       id          path  string  true  "User ID"
// @Param       categoryId  path  string  true  "Category ID"
// @Success     204  {string}  string  "No Content"
// @Failure     404  {object}  handlers.ErrorResponse
// @Router      /admin/users/{id}/entitlements/{categoryId} [delete]
func (h *Handlers) RevokeEntitlement(c *gin.Context) {
	userID, categoryID := c.Param("id"), c.Param("categoryId")
	if err := h.svc.Entitlements.Revoke(c.Request.Context(), userID, categoryID); err != nil {
		failErr(c, err)
		return
	}
	middleware.LoggerFrom(c).Info().
		Str("admin_id", middleware.UserID(c)).
		Str("user_id", userID).
		Str("category_id", categoryID).
		Msg("entitlement revoked")
	middleware.SetAuditTarget(c, userID+"/"+categoryID, nil)
	noContent(c)
}

// RunSweep godoc
// @ID          runEntitlementSweep
// @Summary     Run the expiry sweep now (admin)
// @Tags        Admin
// @Produce     json
// @Security    BearerAuth
// @Success     200  {object}  services.SweepResult
// @Router      /admin/entitlements/sweep [post]
func (h *Handlers) RunSweep(c *gin.Context) {
	res, err := h.svc.Sweeps.DeactivateExpired(c.Request.Context())
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, http.StatusOK, res)
}

// EntitlementStats godoc
// @ID          entitlementStats
// @Summary     Entitlement counters (admin)
// @Tags        Admin
// @Produce     json
// @Security    BearerAuth
// @Success     200  {object}  repo.EntitlementCounts
// @Router      /admin/entitlements/stats [get]
func (h *Handlers) EntitlementStats(c *gin.Context) {
	st, err := h.svc.Sweeps.Stats(c.Request.Context())
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, http.StatusOK, st)
}
