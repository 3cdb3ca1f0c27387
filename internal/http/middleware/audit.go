package middleware

import (
	"context"
	"encoding/json"

	"github.com/gin-gonic/gin"
	"gorm.io/datatypes"

	"github.com/tbourn/course-platform-backend/internal/domain"
)

// Audit actions.
const (
	AuditCreate = "CREATE"
	AuditUpdate = "UPDATE"
	AuditDelete = "DELETE"
)

const (
	auditEntityIDKey = "audit.entityID"
	auditValuesKey   = "audit.values"
)

// AuditRecorder persists audit entries.
type AuditRecorder interface {
	Record(ctx context.Context, e domain.AuditLog) error
}

// SetAuditTarget tells Audit which entity the handler changed. values, when
// not nil, is stored as the entry's JSON snapshot.
func SetAuditTarget(c *gin.Context, entityID string, values any) {
	c.Set(auditEntityIDKey, entityID)
	if values != nil {
		c.Set(auditValuesKey, values)
	}
}

// Audit records action on entity once the handler answered with a 2xx. The
// entity id comes from SetAuditTarget, else the :id path parameter. Write
// failures are logged by the recorder and never change the response.
// The response writer is not wrapped.
func Audit(rec AuditRecorder, action, entity string) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if rec == nil {
			return
		}
		if s := c.Writer.Status(); s < 200 || s >= 300 {
			return
		}

		entityID := c.Param("id")
		if v, ok := c.Get(auditEntityIDKey); ok {
			entityID = asString(v)
		}
		e := domain.AuditLog{
			UserID:    UserID(c),
			Action:    action,
			Entity:    entity,
			EntityID:  entityID,
			IPAddress: c.ClientIP(),
			UserAgent: c.Request.UserAgent(),
		}
		if v, ok := c.Get(auditValuesKey); ok {
			if b, err := json.Marshal(v); err == nil {
				e.NewValues = datatypes.JSON(b)
			} else {
				LoggerFrom(c).Warn().Err(err).Str("entity", entity).Msg("audit snapshot not serialisable")
			}
		}
		// Record even when the client has gone away.
		_ = rec.Record(context.WithoutCancel(c.Request.Context()), e)
	}
}
