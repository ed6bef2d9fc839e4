package ledger

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"referral-ledger/models"

	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func setupTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{TranslateError: true})
	require.NoError(t, err, "open sqlite")
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })
	require.NoError(t, db.AutoMigrate(models.AllModels()...), "migrate")
	return db
}

func newTestLedger(t *testing.T) *GormLedger {
	t.Helper()
	return NewGormLedger(setupTestDB(t))
}

func TestCreateAndGetDriver(t *testing.T) {
	ctx := context.Background()
	l := newTestLedger(t)

	created, err := l.CreateDriver(ctx, models.Driver{ID: "driverA", Name: "  Ada Lovelace "})
	require.NoError(t, err)
	assert.Equal(t, "Ada Lovelace", created.Name)

	got, err := l.GetDriver(ctx, "driverA")
	require.NoError(t, err)
	assert.Equal(t, "Ada Lovelace", got.Name)
	assert.Zero(t, got.Referrals)
	assert.Zero(t, got.Redemptions)

	_, err = l.CreateDriver(ctx, models.Driver{ID: "driverA", Name: "Dup"})
	assert.Error(t, err, "ids are unique")
}

func TestCreateDriver_GeneratesID(t *testing.T) {
	l := newTestLedger(t)

	d, err := l.CreateDriver(context.Background(), models.Driver{Name: "No Id"})
	require.NoError(t, err)
	assert.Len(t, d.ID, 8)
	assert.True(t, ValidID(d.ID))
}

func TestGetDriver_NotFound(t *testing.T) {
	l := newTestLedger(t)

	_, err := l.GetDriver(context.Background(), "ghost")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.True(t, IsNotFound(err))
}

func TestGetDriver_InvalidID(t *testing.T) {
	l := newTestLedger(t)

	_, err := l.GetDriver(context.Background(), "../etc")
	assert.ErrorIs(t, err, ErrInvalid)
}

func TestIncrementDriverCounter(t *testing.T) {
	ctx := context.Background()
	l := newTestLedger(t)
	_, err := l.CreateDriver(ctx, models.Driver{ID: "driverA", Name: "A"})
	require.NoError(t, err)

	require.NoError(t, l.IncrementDriverCounter(ctx, "driverA", models.CounterReferrals, 1))
	require.NoError(t, l.IncrementDriverCounter(ctx, "driverA", models.CounterRedemptions, 2))

	d, err := l.GetDriver(ctx, "driverA")
	require.NoError(t, err)
	assert.EqualValues(t, 1, d.Referrals)
	assert.EqualValues(t, 2, d.Redemptions)
}

func TestIncrementDriverCounter_Rejects(t *testing.T) {
	ctx := context.Background()
	l := newTestLedger(t)
	_, err := l.CreateDriver(ctx, models.Driver{ID: "driverA", Name: "A"})
	require.NoError(t, err)

	assert.ErrorIs(t, l.IncrementDriverCounter(ctx, "driverA", models.CounterField("name"), 1), ErrInvalid)
	assert.ErrorIs(t, l.IncrementDriverCounter(ctx, "driverA", models.CounterReferrals, 0), ErrInvalid)
	assert.ErrorIs(t, l.IncrementDriverCounter(ctx, "driverA", models.CounterReferrals, -1), ErrInvalid)
	assert.ErrorIs(t, l.IncrementDriverCounter(ctx, "ghost", models.CounterReferrals, 1), ErrNotFound)
}

func TestIncrementDriverCounter_ConcurrentWriters(t *testing.T) {
	ctx := context.Background()
	l := newTestLedger(t)
	_, err := l.CreateDriver(ctx, models.Driver{ID: "driverA", Name: "A"})
	require.NoError(t, err)
	// start from a non-zero value
	require.NoError(t, l.IncrementDriverCounter(ctx, "driverA", models.CounterReferrals, 7))

	const devices = 50
	var wg sync.WaitGroup
	errs := make(chan error, devices)
	for i := 0; i < devices; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs <- l.IncrementDriverCounter(ctx, "driverA", models.CounterReferrals, 1)
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	d, err := l.GetDriver(ctx, "driverA")
	require.NoError(t, err)
	assert.EqualValues(t, 7+devices, d.Referrals, "no lost updates")
}

func TestSetUser_IsFullOverwrite(t *testing.T) {
	ctx := context.Background()
	l := newTestLedger(t)
	installed := time.Date(2025, 5, 1, 12, 0, 0, 0, time.UTC)

	require.NoError(t, l.SetUser(ctx, "user-1", models.UserRecord{Referrer: "driverA", InstallDate: installed}))
	require.NoError(t, l.SetUser(ctx, "user-1", models.UserRecord{Referrer: "driverA", InstallDate: installed}))

	u, err := l.GetUser(ctx, "user-1")
	require.NoError(t, err)
	assert.Equal(t, "driverA", u.Referrer)
	assert.True(t, u.InstallDate.Equal(installed))
	assert.False(t, u.HasRedeemed)

	var count int64
	require.NoError(t, l.DB.Model(&models.UserRecord{}).Count(&count).Error)
	assert.EqualValues(t, 1, count)
}

func TestSetUser_DefaultsUnknownReferrer(t *testing.T) {
	ctx := context.Background()
	l := newTestLedger(t)

	require.NoError(t, l.SetUser(ctx, "user-2", models.UserRecord{InstallDate: time.Now()}))
	u, err := l.GetUser(ctx, "user-2")
	require.NoError(t, err)
	assert.Equal(t, models.UnknownReferrer, u.Referrer)
}

func TestUpdateUser(t *testing.T) {
	ctx := context.Background()
	l := newTestLedger(t)
	redeemed := true

	assert.ErrorIs(t, l.UpdateUser(ctx, "ghost", models.UserPatch{HasRedeemed: &redeemed}), ErrNotFound)

	require.NoError(t, l.SetUser(ctx, "user-1", models.UserRecord{Referrer: "driverA", InstallDate: time.Now()}))
	require.NoError(t, l.UpdateUser(ctx, "user-1", models.UserPatch{HasRedeemed: &redeemed}))
	require.NoError(t, l.UpdateUser(ctx, "user-1", models.UserPatch{HasRedeemed: &redeemed}), "setting true twice is harmless")
	require.NoError(t, l.UpdateUser(ctx, "user-1", models.UserPatch{}))

	u, err := l.GetUser(ctx, "user-1")
	require.NoError(t, err)
	assert.True(t, u.HasRedeemed)
}

func TestCreditRedemption_OncePerUser(t *testing.T) {
	ctx := context.Background()
	l := newTestLedger(t)
	_, err := l.CreateDriver(ctx, models.Driver{ID: "driverA", Name: "A"})
	require.NoError(t, err)

	credited, err := l.CreditRedemption(ctx, "user-1", "driverA")
	require.NoError(t, err)
	assert.True(t, credited)

	credited, err = l.CreditRedemption(ctx, "user-1", "driverA")
	require.NoError(t, err)
	assert.False(t, credited, "duplicate trigger does not double-credit")

	credited, err = l.CreditRedemption(ctx, "user-2", "driverA")
	require.NoError(t, err)
	assert.True(t, credited)

	d, err := l.GetDriver(ctx, "driverA")
	require.NoError(t, err)
	assert.EqualValues(t, 2, d.Redemptions)
}

func TestCreditRedemption_UnknownDriverLeavesNoToken(t *testing.T) {
	ctx := context.Background()
	l := newTestLedger(t)

	_, err := l.CreditRedemption(ctx, "user-1", "ghost")
	assert.ErrorIs(t, err, ErrNotFound)

	var tokens int64
	require.NoError(t, l.DB.Model(&models.Redemption{}).Count(&tokens).Error)
	assert.Zero(t, tokens, "token insert rolled back with the failed increment")
}

func TestRenameAndReassignDriver(t *testing.T) {
	ctx := context.Background()
	l := newTestLedger(t)
	_, err := l.CreateDriver(ctx, models.Driver{ID: "a1b2c3d4", Name: "Old Name"})
	require.NoError(t, err)
	require.NoError(t, l.IncrementDriverCounter(ctx, "a1b2c3d4", models.CounterReferrals, 3))
	require.NoError(t, l.IncrementDriverCounter(ctx, "a1b2c3d4", models.CounterRedemptions, 1))

	require.NoError(t, l.RenameDriver(ctx, "a1b2c3d4", "New Name"))
	assert.ErrorIs(t, l.RenameDriver(ctx, "ghost", "x"), ErrNotFound)

	moved, err := l.ReassignDriver(ctx, "a1b2c3d4", "8435550199", "Moved Name")
	require.NoError(t, err)
	assert.Equal(t, "8435550199", moved.ID)
	assert.EqualValues(t, 3, moved.Referrals)
	assert.EqualValues(t, 1, moved.Redemptions)

	_, err = l.GetDriver(ctx, "a1b2c3d4")
	assert.ErrorIs(t, err, ErrNotFound)

	same, err := l.ReassignDriver(ctx, "8435550199", "8435550199", "Same Id")
	require.NoError(t, err)
	assert.Equal(t, "Same Id", same.Name)
	assert.EqualValues(t, 3, same.Referrals)
}

func TestReassignDriver_MovesHistory(t *testing.T) {
	ctx := context.Background()
	l := newTestLedger(t)
	_, err := l.CreateDriver(ctx, models.Driver{ID: "a1b2c3d4", Name: "Driver"})
	require.NoError(t, err)
	credited, err := l.CreditRedemption(ctx, "user-1", "a1b2c3d4")
	require.NoError(t, err)
	require.True(t, credited)
	require.NoError(t, l.DB.Create(&models.PayoutMilestone{
		ID: "m1", DriverID: "a1b2c3d4", Kind: models.CounterRedemptions, Threshold: 1, Count: 1,
		Status: models.PayoutStatusPaid, ReachedAt: time.Now(),
	}).Error)

	_, err = l.ReassignDriver(ctx, "a1b2c3d4", "8435550199", "Driver")
	require.NoError(t, err)

	var pm models.PayoutMilestone
	require.NoError(t, l.DB.Where("id = ?", "m1").First(&pm).Error)
	assert.Equal(t, "8435550199", pm.DriverID)
	assert.Equal(t, models.PayoutStatusPaid, pm.Status)

	var token models.Redemption
	require.NoError(t, l.DB.Where("user_id = ?", "user-1").First(&token).Error)
	assert.Equal(t, "8435550199", token.DriverID)

	var orphans int64
	require.NoError(t, l.DB.Model(&models.PayoutMilestone{}).Where("driver_id = ?", "a1b2c3d4").Count(&orphans).Error)
	assert.Zero(t, orphans)
}

func TestDeleteAndListDrivers(t *testing.T) {
	ctx := context.Background()
	l := newTestLedger(t)
	for _, id := range []string{"b", "a", "c"} {
		_, err := l.CreateDriver(ctx, models.Driver{ID: id, Name: "Driver " + id})
		require.NoError(t, err)
	}

	require.NoError(t, l.DeleteDriver(ctx, "b"))
	assert.ErrorIs(t, l.DeleteDriver(ctx, "b"), ErrNotFound)

	drivers, err := l.ListDrivers(ctx)
	require.NoError(t, err)
	require.Len(t, drivers, 2)
	assert.Equal(t, "a", drivers[0].ID)
	assert.Equal(t, "c", drivers[1].ID)
}
