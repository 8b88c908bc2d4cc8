package service

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	"github.com/smallbiznis/telemetra/internal/clock"
	"github.com/smallbiznis/telemetra/internal/config"
	domain "github.com/smallbiznis/telemetra/internal/usagecycle/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

func setup(t *testing.T) (domain.Service, *gorm.DB, *clock.FakeClock) {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	gdb, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{TranslateError: true})
	require.NoError(t, err)
	require.NoError(t, gdb.AutoMigrate(&domain.UsageCycle{}))

	node, err := snowflake.NewNode(1)
	require.NoError(t, err)
	fakeClock := clock.NewFakeClock(time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC))

	svc := NewService(Params{
		DB:    gdb,
		Node:  node,
		Clock: fakeClock,
		Config: config.Config{Cycle: config.CycleConfig{
			DefaultDataLimitBytes: 10 << 30,
			DefaultSMSLimit:       1000,
			DefaultLengthDays:     30,
		}},
		Log: zap.NewNop(),
	})
	return svc, gdb, fakeClock
}

func TestCreateCycleRejectsOverlap(t *testing.T) {
	svc, _, clk := setup(t)
	ctx := context.Background()
	now := clk.Now()

	_, err := svc.CreateCycle(ctx, &domain.UsageCycle{
		SubscriberID:   "8988303000000000001",
		CycleStart:     now,
		CycleEnd:       now.AddDate(0, 1, 0),
		DataLimitBytes: 5 << 30,
		SMSLimit:       500,
	})
	require.NoError(t, err)

	_, err = svc.CreateCycle(ctx, &domain.UsageCycle{
		SubscriberID:   "8988303000000000001",
		CycleStart:     now.AddDate(0, 0, 15),
		CycleEnd:       now.AddDate(0, 1, 15),
		DataLimitBytes: 5 << 30,
		SMSLimit:       500,
	})
	assert.ErrorIs(t, err, domain.ErrCycleOverlap)

	// an adjacent cycle is fine: ranges are half-open
	_, err = svc.CreateCycle(ctx, &domain.UsageCycle{
		SubscriberID:   "8988303000000000001",
		CycleStart:     now.AddDate(0, 1, 0),
		CycleEnd:       now.AddDate(0, 2, 0),
		DataLimitBytes: 5 << 30,
		SMSLimit:       500,
	})
	assert.NoError(t, err)
}

func TestResetClosesAndReopens(t *testing.T) {
	svc, gdb, clk := setup(t)
	ctx := context.Background()
	now := clk.Now()

	created, err := svc.CreateCycle(ctx, &domain.UsageCycle{
		SubscriberID:   "8988303000000000002",
		CycleStart:     now.AddDate(0, 0, -10),
		CycleEnd:       now.AddDate(0, 0, 20),
		DataLimitBytes: 5 << 30,
		SMSLimit:       500,
	})
	require.NoError(t, err)

	clk.SetNow(now.Add(48 * time.Hour))
	fresh, err := svc.ResetCycle(ctx, "8988303000000000002")
	require.NoError(t, err)

	assert.Equal(t, domain.CycleOpen, fresh.Status)
	assert.Equal(t, uint64(0), fresh.UsedBytes)
	assert.Equal(t, created.DataLimitBytes, fresh.DataLimitBytes)
	assert.Equal(t, created.SMSLimit, fresh.SMSLimit)
	assert.True(t, fresh.CycleStart.Equal(clk.Now()))
	// new cycle keeps the previous cycle's length
	assert.Equal(t, created.CycleEnd.Sub(created.CycleStart), fresh.CycleEnd.Sub(fresh.CycleStart))

	var closed domain.UsageCycle
	require.NoError(t, gdb.First(&closed, "id = ?", created.ID).Error)
	assert.Equal(t, domain.CycleClosed, closed.Status)
	require.NotNil(t, closed.ClosedAt)
	// the closed cycle ends where the new one begins
	assert.True(t, closed.CycleEnd.Equal(fresh.CycleStart))
}

func TestApplyUsageTreatsZeroLimitsAsUnlimited(t *testing.T) {
	svc, gdb, clk := setup(t)
	ctx := context.Background()
	now := clk.Now()

	created, err := svc.CreateCycle(ctx, &domain.UsageCycle{
		SubscriberID: "8988303000000000005",
		CycleStart:   now.AddDate(0, 0, -1),
		CycleEnd:     now.AddDate(0, 0, 29),
	})
	require.NoError(t, err)

	require.NoError(t, svc.ApplyUsage(ctx, gdb, "8988303000000000005", 5000, 10, now))

	var cycle domain.UsageCycle
	require.NoError(t, gdb.First(&cycle, "id = ?", created.ID).Error)
	assert.Equal(t, domain.CycleOpen, cycle.Status)
	assert.Nil(t, cycle.OverLimitAt)
	assert.Equal(t, uint64(5000), cycle.UsedBytes)
	assert.Equal(t, uint32(10), cycle.UsedSMS)
}

func TestResetWithoutActiveCycle(t *testing.T) {
	svc, _, _ := setup(t)

	_, err := svc.ResetCycle(context.Background(), "no-such-subscriber")
	assert.ErrorIs(t, err, domain.ErrCycleNotFound)
}

func TestGetCurrentCycle(t *testing.T) {
	svc, _, clk := setup(t)
	ctx := context.Background()
	now := clk.Now()

	_, err := svc.GetCurrentCycle(ctx, "8988303000000000003")
	assert.ErrorIs(t, err, domain.ErrCycleNotFound)

	_, err = svc.CreateCycle(ctx, &domain.UsageCycle{
		SubscriberID:   "8988303000000000003",
		CycleStart:     now.AddDate(0, 0, -1),
		CycleEnd:       now.AddDate(0, 0, 29),
		DataLimitBytes: 5 << 30,
		SMSLimit:       500,
	})
	require.NoError(t, err)

	cycle, err := svc.GetCurrentCycle(ctx, "8988303000000000003")
	require.NoError(t, err)
	assert.Equal(t, domain.CycleOpen, cycle.Status)
	assert.True(t, cycle.Covers(now))
}
