package middleware

import (
	"strconv"

	"github.com/arcadia-ops/backoffice/audit"
	"github.com/arcadia-ops/backoffice/model"
	"github.com/gin-gonic/gin"
)

// ActorNameKey lets handlers surface the acting username for the audit trail
// (the login handler sets it, since no token exists yet at that point).
const ActorNameKey = "actor_name"

// AuditTrail records one audit entry per completed auditable request. The
// action kind comes from the method+route classifier; unclassified requests
// are skipped silently. Recording is fire-and-forget and can never change
// the response already written.
func AuditTrail(svc *audit.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		action, ok := audit.Classify(c.Request.Method, c.FullPath())
		if !ok {
			return
		}

		status := model.AuditSuccess
		if c.Writer.Status() >= 400 {
			status = model.AuditFailed
		}

		var actorID *int64
		if id := GetAccountID(c); id != 0 {
			actorID = &id
		}

		var resourceID *int64
		if raw := c.Param("id"); raw != "" {
			if id, err := strconv.ParseInt(raw, 10, 64); err == nil {
				resourceID = &id
			}
		}

		svc.Record(audit.Entry{
			TraceID:    GetTraceID(c),
			ActorID:    actorID,
			ActorName:  c.GetString(ActorNameKey),
			Action:     action,
			Status:     status,
			ResourceID: resourceID,
			Details: map[string]interface{}{
				"method": c.Request.Method,
				"path":   c.Request.URL.Path,
				"code":   c.Writer.Status(),
			},
			IP: c.ClientIP(),
		})
	}
}
