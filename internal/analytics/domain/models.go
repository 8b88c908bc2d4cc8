// Package domain defines the federated usage analytics query contract.
package domain

import (
	"context"
	"errors"
	"time"
)

// Granularity of the returned series.
const (
	GranularityDay   = "day"
	GranularityMonth = "month"
)

var (
	ErrInvalidRange       = errors.New("invalid_range")
	ErrInvalidGranularity = errors.New("invalid_granularity")
	ErrBackendUnavailable = errors.New("history_backend_unavailable")
)

// QueryRequest selects usage series over [PeriodStart, PeriodEnd).
type QueryRequest struct {
	Tenant             string    `json:"tenant,omitempty"`
	Customer           string    `json:"customer,omitempty"`
	Subscribers        []string  `json:"subscribers,omitempty"`
	ExcludeSubscribers []string  `json:"excludeSubscribers,omitempty"`
	Networks           []string  `json:"networks,omitempty"`
	PeriodStart        time.Time `json:"periodStart"`
	PeriodEnd          time.Time `json:"periodEnd"`
	Granularity        string    `json:"granularity"`
}

// SeriesPoint is one bucket of the merged series.
type SeriesPoint struct {
	SubscriberID  string    `json:"iccid"`
	Date          time.Time `json:"date"`
	TotalBytes    uint64    `json:"totalBytes"`
	UploadBytes   uint64    `json:"dataUploadBytes"`
	DownloadBytes uint64    `json:"dataDownloadBytes"`
	SMSCount      uint32    `json:"smsCount"`
}

// Range is a half-open time interval.
type Range struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// QueryResponse carries the merged series. Partial is set when the
// historical half of a split query failed; MissingRange then names the
// interval the series does not cover.
type QueryResponse struct {
	Series       []SeriesPoint `json:"series"`
	Partial      bool          `json:"partial"`
	MissingRange *Range        `json:"missingRange,omitempty"`
}

// HistoricalBackend serves usage series older than the local retention
// window.
type HistoricalBackend interface {
	Query(ctx context.Context, req QueryRequest) ([]SeriesPoint, error)
}

// Service routes analytics queries across local aggregates and the
// historical backend.
type Service interface {
	Query(ctx context.Context, req QueryRequest) (*QueryResponse, error)
}
