package server

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	"github.com/glebarez/sqlite"
	"github.com/lib/pq"
	aggregatedomain "github.com/smallbiznis/telemetra/internal/aggregate/domain"
	aggregaterepo "github.com/smallbiznis/telemetra/internal/aggregate/repository"
	analyticsbackend "github.com/smallbiznis/telemetra/internal/analytics/backend"
	analyticsservice "github.com/smallbiznis/telemetra/internal/analytics/service"
	apikeydomain "github.com/smallbiznis/telemetra/internal/apikey/domain"
	auditdomain "github.com/smallbiznis/telemetra/internal/audit/domain"
	auditservice "github.com/smallbiznis/telemetra/internal/audit/service"
	"github.com/smallbiznis/telemetra/internal/clock"
	"github.com/smallbiznis/telemetra/internal/config"
	ingestservice "github.com/smallbiznis/telemetra/internal/ingest/service"
	usagecycledomain "github.com/smallbiznis/telemetra/internal/usagecycle/domain"
	usagecycleservice "github.com/smallbiznis/telemetra/internal/usagecycle/service"
	usagerecorddomain "github.com/smallbiznis/telemetra/internal/usagerecord/domain"
	usagerecordrepo "github.com/smallbiznis/telemetra/internal/usagerecord/repository"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const (
	ingestKey    = "test-ingest-key"
	analyticsKey = "test-analytics-key"
)

func setupServer(t *testing.T) (*gin.Engine, *gorm.DB) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	gdb, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{TranslateError: true})
	require.NoError(t, err)
	require.NoError(t, gdb.AutoMigrate(
		&usagerecorddomain.UsageRecord{},
		&aggregatedomain.DailyUsageAggregate{},
		&aggregatedomain.DirtyKey{},
		&aggregatedomain.Watermark{},
		&usagecycledomain.UsageCycle{},
		&apikeydomain.APIKey{},
		&auditdomain.AuditLog{},
	))

	node, err := snowflake.NewNode(1)
	require.NoError(t, err)
	fakeClock := clock.NewFakeClock(time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC))
	log := zap.NewNop()
	cfg := config.Config{
		Cycle: config.CycleConfig{
			DefaultDataLimitBytes: 10 << 30,
			DefaultSMSLimit:       1000,
			DefaultLengthDays:     30,
		},
		Analytics: config.AnalyticsConfig{
			RetentionDays: 180,
			LocalTimeout:  5 * time.Second,
		},
	}

	records := usagerecordrepo.NewRepository()
	aggregates := aggregaterepo.NewRepository(aggregaterepo.Params{DB: gdb, Node: node, Records: records})
	cycles := usagecycleservice.NewService(usagecycleservice.Params{
		DB: gdb, Node: node, Clock: fakeClock, Config: cfg, Log: log,
	})
	ingestSvc := ingestservice.NewService(ingestservice.Params{
		DB: gdb, Node: node, Clock: fakeClock,
		Records: records, Aggregates: aggregates, Cycles: cycles, Log: log,
	})
	analyticsSvc := analyticsservice.NewService(analyticsservice.Params{
		Aggregates: aggregates,
		Backend:    analyticsbackend.NewHTTPBackend("", "", time.Second, log),
		Clock:      fakeClock,
		Config:     cfg,
		Log:        log,
	})
	auditSvc := auditservice.NewService(auditservice.Params{
		DB: gdb, Node: node, Clock: fakeClock, Log: log,
	})

	engine := NewEngine(nil)
	NewServer(ServerParams{
		Gin:          engine,
		Cfg:          cfg,
		DB:           gdb,
		Clock:        fakeClock,
		GenID:        node,
		Log:          log,
		IngestSvc:    ingestSvc,
		CycleSvc:     cycles,
		AnalyticsSvc: analyticsSvc,
		AuditSvc:     auditSvc,
	})

	seedKey(t, gdb, node, ingestKey, []string{apikeydomain.ScopeIngest, apikeydomain.ScopeManage})
	seedKey(t, gdb, node, analyticsKey, []string{apikeydomain.ScopeAnalytics})

	return engine, gdb
}

func seedKey(t *testing.T, gdb *gorm.DB, node *snowflake.Node, raw string, scopes []string) {
	t.Helper()
	require.NoError(t, gdb.Create(&apikeydomain.APIKey{
		ID:       node.Generate(),
		ClientID: "client-" + raw,
		Tenant:   "tenant-a",
		KeyHash:  apikeydomain.HashAPIKey(raw),
		Scopes:   pq.StringArray(scopes),
		IsActive: true,
	}).Error)
}

func doRequest(engine *gin.Engine, method, path, key, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	if key != "" {
		req.Header.Set("Authorization", "Bearer "+key)
	}
	w := httptest.NewRecorder()
	engine.ServeHTTP(w, req)
	return w
}

const usageBody = `{
	"iccid": "8988303000000000001",
	"recordId": "rec-1",
	"periodStart": "2026-03-10T09:00:00Z",
	"periodEnd": "2026-03-10T10:00:00Z",
	"usage": {"totalBytes": 1500, "dataUploadBytes": 500, "dataDownloadBytes": 1000, "smsCount": 2},
	"source": "mediation-a"
}`

func TestSubmitRequiresAuth(t *testing.T) {
	engine, _ := setupServer(t)

	w := doRequest(engine, http.MethodPost, "/api/usage", "", usageBody)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = doRequest(engine, http.MethodPost, "/api/usage", "wrong-key", usageBody)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestSubmitEnforcesScope(t *testing.T) {
	engine, _ := setupServer(t)

	w := doRequest(engine, http.MethodPost, "/api/usage", analyticsKey, usageBody)
	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestSubmitAcceptedThenDuplicate(t *testing.T) {
	engine, _ := setupServer(t)

	w := doRequest(engine, http.MethodPost, "/api/usage", ingestKey, usageBody)
	require.Equal(t, http.StatusAccepted, w.Code)
	assert.Contains(t, w.Body.String(), `"ACCEPTED"`)

	w = doRequest(engine, http.MethodPost, "/api/usage", ingestKey, usageBody)
	require.Equal(t, http.StatusAccepted, w.Code)
	assert.Contains(t, w.Body.String(), `"DUPLICATE"`)
}

func TestSubmitValidationIsBadRequest(t *testing.T) {
	engine, _ := setupServer(t)

	body := strings.Replace(usageBody, `"rec-1"`, `""`, 1)
	w := doRequest(engine, http.MethodPost, "/api/usage", ingestKey, body)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "validation_error")
}

func TestCycleEndpoints(t *testing.T) {
	engine, _ := setupServer(t)

	// no cycle yet
	w := doRequest(engine, http.MethodGet, "/api/usage/cycle?iccid=8988303000000000001", ingestKey, "")
	assert.Equal(t, http.StatusNotFound, w.Code)

	// ingest provisions a default cycle
	w = doRequest(engine, http.MethodPost, "/api/usage", ingestKey, usageBody)
	require.Equal(t, http.StatusAccepted, w.Code)

	w = doRequest(engine, http.MethodGet, "/api/usage/cycle?iccid=8988303000000000001", ingestKey, "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"usedBytes":1500`)

	w = doRequest(engine, http.MethodPost, "/api/usage/reset", ingestKey, `{"iccid":"8988303000000000001"}`)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"usedBytes":0`)
}

func TestAnalyticsValidation(t *testing.T) {
	engine, _ := setupServer(t)

	w := doRequest(engine, http.MethodGet, "/api/analytics/usage?period=bogus&periodEnd=2026-03-10", analyticsKey, "")
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = doRequest(engine, http.MethodGet,
		"/api/analytics/usage?period=2026-03-01&periodEnd=2026-03-09&granularity=day",
		analyticsKey, "")
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestAuditTrailWritesEntries(t *testing.T) {
	engine, gdb := setupServer(t)

	w := doRequest(engine, http.MethodPost, "/api/usage", ingestKey, usageBody)
	require.Equal(t, http.StatusAccepted, w.Code)

	var count int64
	require.NoError(t, gdb.Model(&auditdomain.AuditLog{}).Count(&count).Error)
	assert.Equal(t, int64(1), count)
}
