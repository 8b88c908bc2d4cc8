package server

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	ingestdomain "github.com/smallbiznis/telemetra/internal/ingest/domain"
	usagecycledomain "github.com/smallbiznis/telemetra/internal/usagecycle/domain"
)

const maxBatchSize = 1000

// SubmitUsage ingests one usage record. Accepted and replayed records both
// return 202; the body tells them apart.
func (s *Server) SubmitUsage(c *gin.Context) {
	var req ingestdomain.SubmitRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, newValidationError("body", "invalid_json", "request body is not valid JSON"))
		return
	}

	result, err := s.ingestSvc.Submit(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusAccepted, result)
}

// SubmitUsageBatch ingests records independently and returns positional
// per-record outcomes. The batch itself always answers 202.
func (s *Server) SubmitUsageBatch(c *gin.Context) {
	var reqs []ingestdomain.SubmitRequest
	if err := c.ShouldBindJSON(&reqs); err != nil {
		AbortWithError(c, newValidationError("body", "invalid_json", "request body is not valid JSON"))
		return
	}
	if len(reqs) == 0 {
		AbortWithError(c, newValidationError("body", "empty_batch", "batch contains no records"))
		return
	}
	if len(reqs) > maxBatchSize {
		AbortWithError(c, newValidationError("body", "batch_too_large", "batch exceeds the maximum size"))
		return
	}

	results := s.ingestSvc.SubmitBatch(c.Request.Context(), reqs)
	c.JSON(http.StatusAccepted, gin.H{"results": results})
}

type cycleResponse struct {
	SubscriberID   string                       `json:"iccid"`
	CycleStart     string                       `json:"cycleStart"`
	CycleEnd       string                       `json:"cycleEnd"`
	DataLimitBytes uint64                       `json:"dataLimitBytes"`
	SMSLimit       uint32                       `json:"smsLimit"`
	UsedBytes      uint64                       `json:"usedBytes"`
	UsedSMS        uint32                       `json:"usedSms"`
	Status         usagecycledomain.CycleStatus `json:"status"`
}

func toCycleResponse(cycle *usagecycledomain.UsageCycle) cycleResponse {
	return cycleResponse{
		SubscriberID:   cycle.SubscriberID,
		CycleStart:     cycle.CycleStart.UTC().Format(time.RFC3339),
		CycleEnd:       cycle.CycleEnd.UTC().Format(time.RFC3339),
		DataLimitBytes: cycle.DataLimitBytes,
		SMSLimit:       cycle.SMSLimit,
		UsedBytes:      cycle.UsedBytes,
		UsedSMS:        cycle.UsedSMS,
		Status:         cycle.Status,
	}
}

// GetCurrentCycle returns the active billing cycle for a subscriber.
func (s *Server) GetCurrentCycle(c *gin.Context) {
	subscriberID := strings.TrimSpace(c.Query("iccid"))
	if subscriberID == "" {
		AbortWithError(c, newValidationError("iccid", "missing", "iccid is required"))
		return
	}

	cycle, err := s.cycleSvc.GetCurrentCycle(c.Request.Context(), subscriberID)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, toCycleResponse(cycle))
}

// ResetCycle closes the active cycle and opens a fresh one.
func (s *Server) ResetCycle(c *gin.Context) {
	var req struct {
		SubscriberID string `json:"iccid"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, newValidationError("body", "invalid_json", "request body is not valid JSON"))
		return
	}

	cycle, err := s.cycleSvc.ResetCycle(c.Request.Context(), req.SubscriberID)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, toCycleResponse(cycle))
}
