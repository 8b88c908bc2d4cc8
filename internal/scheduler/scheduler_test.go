package scheduler

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	aggregatedomain "github.com/smallbiznis/telemetra/internal/aggregate/domain"
	aggregaterepo "github.com/smallbiznis/telemetra/internal/aggregate/repository"
	"github.com/smallbiznis/telemetra/internal/clock"
	usagerecorddomain "github.com/smallbiznis/telemetra/internal/usagerecord/domain"
	usagerecordrepo "github.com/smallbiznis/telemetra/internal/usagerecord/repository"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type fixture struct {
	scheduler  *Scheduler
	aggregates aggregatedomain.Repository
	records    usagerecorddomain.Repository
	lease      *LocalLease
	db         *gorm.DB
	node       *snowflake.Node
	clock      *clock.FakeClock
}

func setup(t *testing.T) *fixture {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	gdb, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{TranslateError: true})
	require.NoError(t, err)
	require.NoError(t, gdb.AutoMigrate(
		&usagerecorddomain.UsageRecord{},
		&aggregatedomain.DailyUsageAggregate{},
		&aggregatedomain.DirtyKey{},
		&aggregatedomain.Watermark{},
	))

	node, err := snowflake.NewNode(1)
	require.NoError(t, err)
	fakeClock := clock.NewFakeClock(time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC))

	records := usagerecordrepo.NewRepository()
	aggregates := aggregaterepo.NewRepository(aggregaterepo.Params{
		DB:      gdb,
		Node:    node,
		Records: records,
	})
	lease := NewLocalLease()

	// single worker keeps sqlite's shared-cache locking out of the picture
	sched := New(Config{
		BatchSize:      100,
		Workers:        1,
		MaxRunDuration: time.Minute,
		RetryAttempts:  1,
		RetryBaseDelay: time.Millisecond,
	}, lease, aggregates, fakeClock, zap.NewNop(), nil)

	return &fixture{
		scheduler:  sched,
		aggregates: aggregates,
		records:    records,
		lease:      lease,
		db:         gdb,
		node:       node,
		clock:      fakeClock,
	}
}

func (f *fixture) insertRecord(t *testing.T, recordID string, start, end time.Time, bytes uint64, sms uint32) {
	t.Helper()
	inserted, err := f.records.Insert(context.Background(), f.db, &usagerecorddomain.UsageRecord{
		ID:           f.node.Generate(),
		SubscriberID: "8988303000000000001",
		RecordID:     recordID,
		PeriodStart:  start,
		PeriodEnd:    end,
		TotalBytes:   bytes,
		SMSCount:     sms,
		ReceivedAt:   f.clock.Now(),
	})
	require.NoError(t, err)
	require.True(t, inserted)
}

func (f *fixture) markDirty(t *testing.T, days ...time.Time) {
	t.Helper()
	require.NoError(t, f.aggregates.MarkDirty(context.Background(), f.db, "8988303000000000001", days, f.clock.Now()))
}

func (f *fixture) loadAggregate(t *testing.T, day time.Time) *aggregatedomain.DailyUsageAggregate {
	t.Helper()
	var agg aggregatedomain.DailyUsageAggregate
	err := f.db.First(&agg, "subscriber_id = ? AND day = ?", "8988303000000000001", day).Error
	if err != nil {
		return nil
	}
	return &agg
}

func TestRunOnceRecomputesDirtyDays(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	day := time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC)

	f.insertRecord(t, "rec-1", day.Add(2*time.Hour), day.Add(3*time.Hour), 1000, 1)
	f.insertRecord(t, "rec-2", day.Add(5*time.Hour), day.Add(6*time.Hour), 500, 0)
	f.markDirty(t, day)

	require.NoError(t, f.scheduler.RunOnce(ctx))

	agg := f.loadAggregate(t, day)
	require.NotNil(t, agg)
	assert.Equal(t, uint64(1500), agg.TotalBytes)
	assert.Equal(t, uint32(1), agg.SMSCount)

	var dirty int64
	require.NoError(t, f.db.Model(&aggregatedomain.DirtyKey{}).Count(&dirty).Error)
	assert.Equal(t, int64(0), dirty)

	wm, err := f.aggregates.GetWatermark(ctx)
	require.NoError(t, err)
	require.NotNil(t, wm)
	assert.Equal(t, "ok", wm.LastRunStatus)
}

func TestLateArrivalOverwritesAggregate(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	day := time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC)

	f.insertRecord(t, "rec-1", day.Add(2*time.Hour), day.Add(3*time.Hour), 1000, 0)
	f.markDirty(t, day)
	require.NoError(t, f.scheduler.RunOnce(ctx))

	// a record for the same day arrives after the first aggregation
	f.clock.Advance(time.Hour)
	f.insertRecord(t, "rec-late", day.Add(8*time.Hour), day.Add(9*time.Hour), 250, 2)
	f.markDirty(t, day)
	require.NoError(t, f.scheduler.RunOnce(ctx))

	agg := f.loadAggregate(t, day)
	require.NotNil(t, agg)
	assert.Equal(t, uint64(1250), agg.TotalBytes)
	assert.Equal(t, uint32(2), agg.SMSCount)
}

func TestMultiDayRecordCountsFullyInEachDay(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	day1 := time.Date(2026, 3, 9, 0, 0, 0, 0, time.UTC)
	day2 := time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC)

	f.insertRecord(t, "rec-overnight", day1.Add(23*time.Hour), day2.Add(time.Hour), 1000, 0)
	f.markDirty(t, day1, day2)

	require.NoError(t, f.scheduler.RunOnce(ctx))

	for _, day := range []time.Time{day1, day2} {
		agg := f.loadAggregate(t, day)
		require.NotNil(t, agg)
		assert.Equal(t, uint64(1000), agg.TotalBytes)
	}
}

func TestRunOnceSkipsWhenLeaseHeld(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	day := time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC)

	f.insertRecord(t, "rec-1", day.Add(time.Hour), day.Add(2*time.Hour), 1000, 0)
	f.markDirty(t, day)

	held, err := f.lease.TryAcquire(ctx, time.Minute)
	require.NoError(t, err)
	require.True(t, held)

	require.NoError(t, f.scheduler.RunOnce(ctx))
	assert.Nil(t, f.loadAggregate(t, day))

	require.NoError(t, f.lease.Release(ctx))
	require.NoError(t, f.scheduler.RunOnce(ctx))
	assert.NotNil(t, f.loadAggregate(t, day))
}

func TestRecomputeDeletesEmptyDay(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	day := time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC)

	// dirty mark without any stored records for the day
	f.markDirty(t, day)
	require.NoError(t, f.scheduler.RunOnce(ctx))
	assert.Nil(t, f.loadAggregate(t, day))

	var dirty int64
	require.NoError(t, f.db.Model(&aggregatedomain.DirtyKey{}).Count(&dirty).Error)
	assert.Equal(t, int64(0), dirty)
}
