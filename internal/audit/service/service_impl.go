package service

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	domain "github.com/smallbiznis/telemetra/internal/audit/domain"
	"github.com/smallbiznis/telemetra/internal/clock"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB    *gorm.DB
	Node  *snowflake.Node
	Clock clock.Clock
	Log   *zap.Logger
}

type Service struct {
	db    *gorm.DB
	node  *snowflake.Node
	clock clock.Clock
	log   *zap.Logger
}

func NewService(p Params) domain.Service {
	return &Service{
		db:    p.DB,
		node:  p.Node,
		clock: p.Clock,
		log:   p.Log.Named("audit"),
	}
}

func (s *Service) Record(ctx context.Context, entry *domain.AuditLog) {
	if entry == nil {
		return
	}
	entry.ID = s.node.Generate()
	entry.CreatedAt = s.clock.Now().UTC()

	writeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	if err := s.db.WithContext(writeCtx).Create(entry).Error; err != nil {
		s.log.Warn("audit write failed",
			zap.String("client_id", entry.ClientID),
			zap.String("endpoint", entry.Endpoint),
			zap.Error(err),
		)
	}
}
