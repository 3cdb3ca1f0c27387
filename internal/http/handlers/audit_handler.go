// Audit trail handlers.
package handlers

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/course-platform-backend/internal/services"
	"github.com/tbourn/course-platform-backend/internal/utils"
)

const (
	defaultAuditPage  = 1
	defaultAuditLimit = 20
)

// ListAuditLogs godoc
// @ID          listAuditLogs
// @Summary     Audit trail of administrative changes (admin)
// @Tags        Admin
// @Produce     json
// @Security    BearerAuth
//
// @Param       page       query  int     false  "Page number"     minimum(1) default(1)
// @Param       limit      query  int     false  "Items per page"  minimum(1) maximum(100) default(20)
// @Param       entity     query  string  false  "video, category, poll or entitlement"
// @Param       entity_id  query  string  false  "Changed entity"
// @Param       user_id    query  string  false  "Acting admin"
//
// @Success     200  {object}  services.AuditPage
// @Router      /admin/audit-logs [get]
func (h *Handlers) ListAuditLogs(c *gin.Context) {
	page, err := h.svc.Audit.List(c.Request.Context(), services.AuditQuery{
		Page:     utils.AtoiDefault(c.Query("page"), defaultAuditPage),
		Limit:    utils.AtoiDefault(c.Query("limit"), defaultAuditLimit),
		Entity:   strings.TrimSpace(c.Query("entity")),
		EntityID: strings.TrimSpace(firstQuery(c, "entity_id", "entityId")),
		UserID:   strings.TrimSpace(firstQuery(c, "user_id", "userId")),
	})
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, http.StatusOK, page)
}
