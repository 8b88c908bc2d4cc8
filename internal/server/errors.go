package server

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	analyticsdomain "github.com/smallbiznis/telemetra/internal/analytics/domain"
	apikeydomain "github.com/smallbiznis/telemetra/internal/apikey/domain"
	ingestdomain "github.com/smallbiznis/telemetra/internal/ingest/domain"
	usagecycledomain "github.com/smallbiznis/telemetra/internal/usagecycle/domain"
	"gorm.io/gorm"
)

type ValidationError struct {
	Field   string `json:"field"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

type ValidationErrors struct {
	Errors []ValidationError `json:"errors"`
}

func (v ValidationErrors) Error() string {
	return "validation error"
}

type errorPayload struct {
	Type    string            `json:"type"`
	Message string            `json:"message"`
	Errors  []ValidationError `json:"errors,omitempty"`
}

type errorResponse struct {
	Error errorPayload `json:"error"`
}

func ErrorHandlingMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if c.Writer.Written() {
			return
		}

		lastErr := c.Errors.Last()
		if lastErr == nil {
			return
		}

		status, payload := mapError(lastErr.Err)
		c.Header("Content-Type", "application/json")
		c.AbortWithStatusJSON(status, errorResponse{Error: payload})
	}
}

func AbortWithError(c *gin.Context, err error) {
	if err == nil {
		return
	}
	_ = c.Error(err)
	c.Abort()
}

func newValidationError(field, code, message string) error {
	return &ValidationErrors{
		Errors: []ValidationError{
			{
				Field:   field,
				Code:    code,
				Message: message,
			},
		},
	}
}

// validationSentinels are domain errors that surface as 400s. The error
// message doubles as the machine-readable code.
var validationSentinels = map[error]string{
	ingestdomain.ErrMissingRecordID:       "record_id",
	ingestdomain.ErrMissingSubscriber:     "subscriber_id",
	ingestdomain.ErrInvalidPeriod:         "period",
	ingestdomain.ErrNegativeCounter:       "usage",
	usagecycledomain.ErrInvalidSubscriber: "subscriber_id",
	usagecycledomain.ErrInvalidCycleRange: "cycle",
	analyticsdomain.ErrInvalidRange:       "period",
	analyticsdomain.ErrInvalidGranularity: "granularity",
}

func mapError(err error) (int, errorPayload) {
	if err == nil {
		return http.StatusInternalServerError, errorPayload{
			Type:    "internal_error",
			Message: "internal server error",
		}
	}

	var vErrs *ValidationErrors
	if errors.As(err, &vErrs) {
		return http.StatusBadRequest, errorPayload{
			Type:    "validation_error",
			Message: "validation error",
			Errors:  vErrs.Errors,
		}
	}

	for sentinel, field := range validationSentinels {
		if errors.Is(err, sentinel) {
			return http.StatusBadRequest, errorPayload{
				Type:    "validation_error",
				Message: "validation error",
				Errors: []ValidationError{
					{Field: field, Code: sentinel.Error(), Message: sentinel.Error()},
				},
			}
		}
	}

	switch {
	case errors.Is(err, apikeydomain.ErrUnauthorized):
		return http.StatusUnauthorized, errorPayload{
			Type:    "unauthorized",
			Message: "unauthorized",
		}
	case errors.Is(err, apikeydomain.ErrForbidden):
		return http.StatusForbidden, errorPayload{
			Type:    "forbidden",
			Message: "forbidden",
		}
	case errors.Is(err, usagecycledomain.ErrCycleOverlap):
		return http.StatusConflict, errorPayload{
			Type:    "conflict",
			Message: "cycle overlaps an existing cycle",
		}
	case errors.Is(err, usagecycledomain.ErrCycleNotFound), errors.Is(err, gorm.ErrRecordNotFound):
		return http.StatusNotFound, errorPayload{
			Type:    "not_found",
			Message: "not found",
		}
	case errors.Is(err, analyticsdomain.ErrBackendUnavailable):
		return http.StatusBadGateway, errorPayload{
			Type:    "bad_gateway",
			Message: "history backend unavailable",
		}
	}

	return http.StatusInternalServerError, errorPayload{
		Type:    "internal_error",
		Message: "internal server error",
	}
}
