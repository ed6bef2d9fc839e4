package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"referral-ledger/eligibility"
	"referral-ledger/ledger"
	"referral-ledger/models"

	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func setupTestLedger(t *testing.T) (*gorm.DB, *ledger.GormLedger) {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())),
		&gorm.Config{TranslateError: true})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	gl := ledger.NewGormLedger(db)
	require.NoError(t, gl.Migrate())
	return db, gl
}

type memUploader struct {
	key, contentType string
	body             []byte
	err              error
}

func (u *memUploader) Upload(_ context.Context, key, contentType string, body []byte) (string, error) {
	if u.err != nil {
		return "", u.err
	}
	u.key, u.contentType, u.body = key, contentType, body
	return "mem://" + key, nil
}

func TestSnapshotExport(t *testing.T) {
	ctx := context.Background()
	_, gl := setupTestLedger(t)
	_, err := gl.CreateDriver(ctx, models.Driver{ID: "driverA", Name: "Driver A"})
	require.NoError(t, err)
	require.NoError(t, gl.IncrementDriverCounter(ctx, "driverA", models.CounterRedemptions, 5))

	up := &memUploader{}
	svc := NewSnapshotService(gl, up, eligibility.DefaultThresholds)
	svc.now = func() time.Time { return time.Date(2025, 6, 1, 9, 30, 0, 0, time.UTC) }

	loc, err := svc.Export(ctx)
	require.NoError(t, err)
	assert.Equal(t, "mem://snapshots/drivers-20250601-093000.json", loc)
	assert.Equal(t, "application/json", up.contentType)

	var snap Snapshot
	require.NoError(t, json.Unmarshal(up.body, &snap))
	require.Len(t, snap.Drivers, 1)
	assert.True(t, snap.Drivers[0].Eligible)
	assert.Equal(t, []string{"5 redemptions"}, snap.Drivers[0].Reasons)
}

func TestSnapshotExport_UploadFailure(t *testing.T) {
	_, gl := setupTestLedger(t)
	svc := NewSnapshotService(gl, &memUploader{err: errors.New("bucket gone")}, eligibility.DefaultThresholds)

	_, err := svc.Export(context.Background())
	require.Error(t, err)
	assert.True(t, strings.Contains(err.Error(), "bucket gone"))
}

func TestSchedulerRunsSweepImmediately(t *testing.T) {
	ctx := context.Background()
	db, gl := setupTestLedger(t)
	_, err := gl.CreateDriver(ctx, models.Driver{ID: "driverA", Name: "Driver A"})
	require.NoError(t, err)
	require.NoError(t, gl.IncrementDriverCounter(ctx, "driverA", models.CounterReferrals, 10))

	payouts := NewPayoutService(db, gl, eligibility.DefaultThresholds)
	sched, err := StartScheduler(ctx, SchedulerConfig{Payouts: payouts, SweepInterval: time.Hour})
	require.NoError(t, err)
	t.Cleanup(func() { _ = sched.Shutdown() })

	assert.Eventually(t, func() bool {
		history, err := payouts.History(ctx, "driverA")
		return err == nil && len(history) == 1
	}, 5*time.Second, 20*time.Millisecond)
}
