// Package domain defines the ingestion contract for usage records.
package domain

import (
	"context"
	"errors"
	"time"

	"github.com/smallbiznis/telemetra/pkg/metadata"
)

// Status classifies the outcome of one submitted record.
type Status string

const (
	StatusAccepted  Status = "ACCEPTED"
	StatusDuplicate Status = "DUPLICATE"
	StatusError     Status = "ERROR"
)

var (
	ErrMissingRecordID   = errors.New("missing_record_id")
	ErrMissingSubscriber = errors.New("missing_subscriber")
	ErrInvalidPeriod     = errors.New("invalid_period")
	ErrNegativeCounter   = errors.New("negative_counter")
)

// Counters carries the usage volumes of one record. They are signed on the
// wire so a negative value is rejected instead of wrapping.
type Counters struct {
	TotalBytes    int64 `json:"totalBytes"`
	UploadBytes   int64 `json:"dataUploadBytes"`
	DownloadBytes int64 `json:"dataDownloadBytes"`
	SMSCount      int64 `json:"smsCount"`
}

// SubmitRequest is one metering record as reported by an upstream source.
type SubmitRequest struct {
	SubscriberID string       `json:"iccid"`
	RecordID     string       `json:"recordId"`
	PeriodStart  time.Time    `json:"periodStart"`
	PeriodEnd    time.Time    `json:"periodEnd"`
	Usage        Counters     `json:"usage"`
	Source       string       `json:"source"`
	Tenant       string       `json:"tenant"`
	Customer     string       `json:"customer"`
	Metadata     metadata.Map `json:"metadata"`
}

// Result is the per-record ingestion outcome. Reason is set only for ERROR.
type Result struct {
	RecordID string `json:"recordId"`
	Status   Status `json:"status"`
	Reason   string `json:"reason,omitempty"`
}

// Service ingests usage records.
type Service interface {
	// Submit stores one record. A replay of an already-stored
	// (subscriber, record) pair yields StatusDuplicate without error.
	Submit(ctx context.Context, req SubmitRequest) (Result, error)

	// SubmitBatch processes records independently; one bad record never
	// aborts its neighbours. Results are positional.
	SubmitBatch(ctx context.Context, reqs []SubmitRequest) []Result
}
