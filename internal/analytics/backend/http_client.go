// Package backend implements the HTTP client for the historical usage store.
package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	domain "github.com/smallbiznis/telemetra/internal/analytics/domain"
	"go.uber.org/zap"
)

// HTTPBackend queries the remote historical store over JSON/HTTP.
type HTTPBackend struct {
	baseURL string
	token   string
	client  *http.Client
	log     *zap.Logger
}

func NewHTTPBackend(baseURL, token string, timeout time.Duration, log *zap.Logger) *HTTPBackend {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &HTTPBackend{
		baseURL: baseURL,
		token:   token,
		client:  &http.Client{Timeout: timeout},
		log:     log.Named("history_backend"),
	}
}

func (b *HTTPBackend) Query(ctx context.Context, req domain.QueryRequest) ([]domain.SeriesPoint, error) {
	if b.baseURL == "" {
		return nil, fmt.Errorf("%w: no backend configured", domain.ErrBackendUnavailable)
	}

	body, err := json.Marshal(req)
	if err != nil {
		return nil, err
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, b.baseURL+"/v1/usage/query", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if b.token != "" {
		httpReq.Header.Set("Authorization", "Bearer "+b.token)
	}

	resp, err := b.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrBackendUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		// drain so the connection can be reused
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		b.log.Warn("history backend returned non-200",
			zap.Int("status", resp.StatusCode),
		)
		return nil, fmt.Errorf("%w: status %d", domain.ErrBackendUnavailable, resp.StatusCode)
	}

	var payload struct {
		Series []domain.SeriesPoint `json:"series"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("%w: decode: %v", domain.ErrBackendUnavailable, err)
	}
	return payload.Series, nil
}
