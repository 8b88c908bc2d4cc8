package server

import (
	"context"
	"net/http"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/smallbiznis/telemetra/internal/aggregate"
	"github.com/smallbiznis/telemetra/internal/analytics"
	analyticsdomain "github.com/smallbiznis/telemetra/internal/analytics/domain"
	apikeydomain "github.com/smallbiznis/telemetra/internal/apikey/domain"
	"github.com/smallbiznis/telemetra/internal/audit"
	auditdomain "github.com/smallbiznis/telemetra/internal/audit/domain"
	"github.com/smallbiznis/telemetra/internal/clock"
	"github.com/smallbiznis/telemetra/internal/config"
	"github.com/smallbiznis/telemetra/internal/ingest"
	ingestdomain "github.com/smallbiznis/telemetra/internal/ingest/domain"
	"github.com/smallbiznis/telemetra/internal/observability/metrics"
	"github.com/smallbiznis/telemetra/internal/usagecycle"
	usagecycledomain "github.com/smallbiznis/telemetra/internal/usagecycle/domain"
	"github.com/smallbiznis/telemetra/internal/usagerecord"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var Module = fx.Module("http.server",
	fx.Provide(registerGin),
	audit.Module,
	usagerecord.Module,
	aggregate.Module,
	usagecycle.Module,
	ingest.Module,
	analytics.Module,
	fx.Invoke(NewServer),
	fx.Invoke(run),
)

func NewEngine(m *metrics.Metrics) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(metrics.GinMiddleware(m))
	r.Use(ErrorHandlingMiddleware())

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	return r
}

func registerGin(m *metrics.Metrics) *gin.Engine {
	return NewEngine(m)
}

func run(lc fx.Lifecycle, cfg config.Config, r *gin.Engine) {
	srv := &http.Server{
		Addr:    cfg.HTTPAddr,
		Handler: r,
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			go func() {
				if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
					panic(err)
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		},
	})
}

type Server struct {
	engine       *gin.Engine
	cfg          config.Config
	db           *gorm.DB
	clock        clock.Clock
	genID        *snowflake.Node
	log          *zap.Logger
	ingestSvc    ingestdomain.Service
	cycleSvc     usagecycledomain.Service
	analyticsSvc analyticsdomain.Service
	auditSvc     auditdomain.Service
	metrics      *metrics.Metrics
}

type ServerParams struct {
	fx.In

	Gin          *gin.Engine
	Cfg          config.Config
	DB           *gorm.DB
	Clock        clock.Clock
	GenID        *snowflake.Node
	Log          *zap.Logger
	IngestSvc    ingestdomain.Service
	CycleSvc     usagecycledomain.Service
	AnalyticsSvc analyticsdomain.Service
	AuditSvc     auditdomain.Service
	Metrics      *metrics.Metrics `optional:"true"`
}

func NewServer(p ServerParams) *Server {
	s := &Server{
		engine:       p.Gin,
		cfg:          p.Cfg,
		db:           p.DB,
		clock:        p.Clock,
		genID:        p.GenID,
		log:          p.Log.Named("server"),
		ingestSvc:    p.IngestSvc,
		cycleSvc:     p.CycleSvc,
		analyticsSvc: p.AnalyticsSvc,
		auditSvc:     p.AuditSvc,
		metrics:      p.Metrics,
	}
	s.registerRoutes()
	return s
}

func (s *Server) registerRoutes() {
	api := s.engine.Group("/api")
	api.Use(s.APIKeyRequired())
	api.Use(s.AuditTrail())

	api.POST("/usage", s.RequireScope(apikeydomain.ScopeIngest), s.SubmitUsage)
	api.POST("/usage/batch", s.RequireScope(apikeydomain.ScopeIngest), s.SubmitUsageBatch)
	api.POST("/usage/reset", s.RequireScope(apikeydomain.ScopeManage), s.ResetCycle)
	api.GET("/usage/cycle", s.RequireScope(apikeydomain.ScopeManage), s.GetCurrentCycle)
	api.GET("/analytics/usage", s.RequireScope(apikeydomain.ScopeAnalytics), s.QueryAnalytics)
}
