package server

import (
	"crypto/subtle"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	"github.com/lib/pq"
	apikeydomain "github.com/smallbiznis/telemetra/internal/apikey/domain"
	"github.com/smallbiznis/telemetra/internal/tenantctx"
)

// APIKeyRequired authenticates requests with a bearer API key. Client
// identity and tenant are derived solely from the api_keys table.
func (s *Server) APIKeyRequired() gin.HandlerFunc {
	return func(c *gin.Context) {
		header := strings.TrimSpace(c.GetHeader("Authorization"))
		if header == "" {
			AbortWithError(c, apikeydomain.ErrUnauthorized)
			return
		}

		parts := strings.Fields(header)
		if len(parts) != 2 || parts[0] != "Bearer" || strings.TrimSpace(parts[1]) == "" {
			AbortWithError(c, apikeydomain.ErrUnauthorized)
			return
		}

		hash := apikeydomain.HashAPIKey(parts[1])
		now := s.clock.Now().UTC()

		var record struct {
			ID       snowflake.ID   `gorm:"column:id"`
			ClientID string         `gorm:"column:client_id"`
			Tenant   string         `gorm:"column:tenant"`
			KeyHash  string         `gorm:"column:key_hash"`
			Scopes   pq.StringArray `gorm:"column:scopes"`
		}

		if err := s.db.WithContext(c.Request.Context()).Raw(
			`SELECT id, client_id, tenant, key_hash, scopes
			 FROM api_keys
			 WHERE key_hash = ?
			   AND is_active = true
			   AND (expires_at IS NULL OR expires_at > ?)
			 LIMIT 1`,
			hash,
			now,
		).Scan(&record).Error; err != nil {
			AbortWithError(c, err)
			return
		}

		if record.ID == 0 || subtle.ConstantTimeCompare([]byte(record.KeyHash), []byte(hash)) != 1 {
			AbortWithError(c, apikeydomain.ErrUnauthorized)
			return
		}

		scopes := make([]string, 0, len(record.Scopes))
		scopes = append(scopes, record.Scopes...)

		ctx := tenantctx.WithClient(c.Request.Context(), record.ClientID, record.Tenant, scopes)
		c.Request = c.Request.WithContext(ctx)

		go s.touchAPIKey(record.ID, now)

		c.Next()
	}
}

// RequireScope gates a route on one granted scope.
func (s *Server) RequireScope(scope string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if !tenantctx.HasScope(c.Request.Context(), scope) {
			AbortWithError(c, apikeydomain.ErrForbidden)
			return
		}
		c.Next()
	}
}

func (s *Server) touchAPIKey(id snowflake.ID, at time.Time) {
	_ = s.db.Exec(`UPDATE api_keys SET last_used_at = ? WHERE id = ?`, at, id).Error
}
