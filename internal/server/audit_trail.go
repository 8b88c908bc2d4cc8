package server

import (
	"github.com/gin-gonic/gin"
	auditdomain "github.com/smallbiznis/telemetra/internal/audit/domain"
	"github.com/smallbiznis/telemetra/internal/tenantctx"
	"gorm.io/datatypes"
)

// AuditTrail records every authenticated call after the handler runs.
func (s *Server) AuditTrail() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		ctx := c.Request.Context()
		clientID := tenantctx.ClientIDFromContext(ctx)
		if clientID == "" {
			return
		}

		outcome := "ok"
		if last := c.Errors.Last(); last != nil {
			outcome = last.Err.Error()
		}

		route := c.FullPath()
		if route == "" {
			route = c.Request.URL.Path
		}

		s.auditSvc.Record(ctx, &auditdomain.AuditLog{
			ClientID:   clientID,
			Tenant:     tenantctx.TenantFromContext(ctx),
			Method:     c.Request.Method,
			Endpoint:   route,
			StatusCode: c.Writer.Status(),
			Outcome:    outcome,
			Metadata: datatypes.JSONMap{
				"remote_addr": c.ClientIP(),
			},
		})
	}
}
