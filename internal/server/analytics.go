package server

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	analyticsdomain "github.com/smallbiznis/telemetra/internal/analytics/domain"
)

// QueryAnalytics serves federated usage series. The response carries
// partial=true with the missing range when the historical half of a split
// query could not be answered.
func (s *Server) QueryAnalytics(c *gin.Context) {
	start, ok := parseTimeParam(c.Query("period"))
	if !ok {
		AbortWithError(c, newValidationError("period", "invalid", "period must be RFC3339 or YYYY-MM-DD"))
		return
	}
	end, ok := parseTimeParam(c.Query("periodEnd"))
	if !ok {
		AbortWithError(c, newValidationError("periodEnd", "invalid", "periodEnd must be RFC3339 or YYYY-MM-DD"))
		return
	}

	req := analyticsdomain.QueryRequest{
		Tenant:             strings.TrimSpace(c.Query("tenant")),
		Customer:           strings.TrimSpace(c.Query("customer")),
		Subscribers:        splitParam(c.QueryArray("imsi")),
		ExcludeSubscribers: splitParam(c.QueryArray("excludeImsi")),
		Networks:           splitParam(c.QueryArray("mccmnc")),
		PeriodStart:        start,
		PeriodEnd:          end,
		Granularity:        strings.TrimSpace(c.Query("granularity")),
	}

	resp, err := s.analyticsSvc.Query(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

func parseTimeParam(raw string) (time.Time, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return time.Time{}, false
	}
	if ts, err := time.Parse(time.RFC3339, raw); err == nil {
		return ts.UTC(), true
	}
	if ts, err := time.Parse("2006-01-02", raw); err == nil {
		return ts.UTC(), true
	}
	return time.Time{}, false
}

// splitParam flattens repeated query params and comma-separated lists.
func splitParam(values []string) []string {
	var out []string
	for _, value := range values {
		for _, part := range strings.Split(value, ",") {
			part = strings.TrimSpace(part)
			if part != "" {
				out = append(out, part)
			}
		}
	}
	return out
}
