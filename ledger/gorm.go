package ledger

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"referral-ledger/models"
	"referral-ledger/observability"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// GormLedger is the database-backed Ledger (postgres in production, sqlite in dev/tests).
type GormLedger struct {
	DB      *gorm.DB
	metrics *observability.LedgerMetrics
	now     func() time.Time
}

var _ Ledger = (*GormLedger)(nil)

func NewGormLedger(db *gorm.DB) *GormLedger {
	return &GormLedger{
		DB:      db,
		metrics: observability.Ledger(),
		now:     time.Now,
	}
}

// Migrate creates or updates the ledger tables.
func (l *GormLedger) Migrate() error {
	return l.DB.AutoMigrate(models.AllModels()...)
}

// mapError folds database errors into the ledger taxonomy.
func mapError(op string, err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, ErrNotFound), errors.Is(err, ErrInvalid), errors.Is(err, ErrConflict), errors.Is(err, ErrTransient):
		return fmt.Errorf("%s: %w", op, err)
	case errors.Is(err, gorm.ErrRecordNotFound):
		return fmt.Errorf("%s: %w", op, ErrNotFound)
	case errors.Is(err, gorm.ErrDuplicatedKey):
		return fmt.Errorf("%s: %w", op, ErrConflict)
	default:
		return fmt.Errorf("%s: %w: %v", op, ErrTransient, err)
	}
}

func outcome(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrInvalid):
		return "invalid"
	default:
		return "error"
	}
}

func requireID(kind, id string) error {
	if !ValidID(id) {
		return fmt.Errorf("%w: bad %s id %q", ErrInvalid, kind, id)
	}
	return nil
}

func (l *GormLedger) GetDriver(ctx context.Context, id string) (models.Driver, error) {
	var d models.Driver
	if err := requireID("driver", id); err != nil {
		return d, err
	}
	if err := l.DB.WithContext(ctx).Where("id = ?", id).First(&d).Error; err != nil {
		return d, mapError("get driver "+id, err)
	}
	return d, nil
}

func (l *GormLedger) ListDrivers(ctx context.Context) ([]models.Driver, error) {
	var drivers []models.Driver
	if err := l.DB.WithContext(ctx).Order("name ASC, id ASC").Find(&drivers).Error; err != nil {
		return nil, mapError("list drivers", err)
	}
	return drivers, nil
}

// CreateDriver inserts a driver with zeroed counters. An empty id gets an
// 8-character random id.
func (l *GormLedger) CreateDriver(ctx context.Context, d models.Driver) (models.Driver, error) {
	if d.ID == "" {
		d.ID = strings.ReplaceAll(uuid.NewString(), "-", "")[:8]
	}
	if err := requireID("driver", d.ID); err != nil {
		return models.Driver{}, err
	}
	d.Name = strings.TrimSpace(d.Name)
	d.Referrals = 0
	d.Redemptions = 0
	if err := l.DB.WithContext(ctx).Create(&d).Error; err != nil {
		return models.Driver{}, mapError("create driver "+d.ID, err)
	}
	log.Printf("✅ [LEDGER] Driver created: %s (%s)", d.ID, d.Name)
	return d, nil
}

func (l *GormLedger) RenameDriver(ctx context.Context, id, name string) error {
	if err := requireID("driver", id); err != nil {
		return err
	}
	res := l.DB.WithContext(ctx).Model(&models.Driver{}).Where("id = ?", id).
		Update("name", strings.TrimSpace(name))
	if res.Error != nil {
		return mapError("rename driver "+id, res.Error)
	}
	if res.RowsAffected == 0 {
		return mapError("rename driver "+id, ErrNotFound)
	}
	return nil
}

// ReassignDriver copies the driver to newID and removes the old row in one
// transaction, moving its payout milestones and redemption tokens along. The
// old row is locked so no increment lands between the copy and the delete.
func (l *GormLedger) ReassignDriver(ctx context.Context, oldID, newID, name string) (models.Driver, error) {
	if err := requireID("driver", oldID); err != nil {
		return models.Driver{}, err
	}
	if err := requireID("driver", newID); err != nil {
		return models.Driver{}, err
	}
	if oldID == newID {
		if err := l.RenameDriver(ctx, oldID, name); err != nil {
			return models.Driver{}, err
		}
		return l.GetDriver(ctx, oldID)
	}

	var moved models.Driver
	err := l.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var old models.Driver
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("id = ?", oldID).First(&old).Error; err != nil {
			return err
		}
		moved = models.Driver{
			ID:          newID,
			Name:        strings.TrimSpace(name),
			Referrals:   old.Referrals,
			Redemptions: old.Redemptions,
		}
		if err := tx.Create(&moved).Error; err != nil {
			return err
		}
		// payout history and redemption tokens follow the driver
		if err := tx.Model(&models.PayoutMilestone{}).Where("driver_id = ?", oldID).
			Update("driver_id", newID).Error; err != nil {
			return err
		}
		if err := tx.Model(&models.Redemption{}).Where("driver_id = ?", oldID).
			Update("driver_id", newID).Error; err != nil {
			return err
		}
		return tx.Delete(&models.Driver{}, "id = ?", oldID).Error
	})
	if err != nil {
		return models.Driver{}, mapError(fmt.Sprintf("reassign driver %s -> %s", oldID, newID), err)
	}
	log.Printf("✅ [LEDGER] Driver %s re-keyed to %s (referrals=%d, redemptions=%d)",
		oldID, newID, moved.Referrals, moved.Redemptions)
	return moved, nil
}

func (l *GormLedger) DeleteDriver(ctx context.Context, id string) error {
	if err := requireID("driver", id); err != nil {
		return err
	}
	res := l.DB.WithContext(ctx).Delete(&models.Driver{}, "id = ?", id)
	if res.Error != nil {
		return mapError("delete driver "+id, res.Error)
	}
	if res.RowsAffected == 0 {
		return mapError("delete driver "+id, ErrNotFound)
	}
	log.Printf("🗑️ [LEDGER] Driver deleted: %s", id)
	return nil
}

func (l *GormLedger) GetUser(ctx context.Context, id string) (models.UserRecord, error) {
	var u models.UserRecord
	if err := requireID("user", id); err != nil {
		return u, err
	}
	if err := l.DB.WithContext(ctx).Where("id = ?", id).First(&u).Error; err != nil {
		return u, mapError("get user "+id, err)
	}
	return u, nil
}

// SetUser is a full overwrite, so retrying it after an ambiguous failure is safe.
func (l *GormLedger) SetUser(ctx context.Context, id string, rec models.UserRecord) (err error) {
	defer func() { l.metrics.ObserveUserWrite("set", outcome(err)) }()

	if err := requireID("user", id); err != nil {
		return err
	}
	rec.ID = id
	if rec.Referrer == "" {
		rec.Referrer = models.UnknownReferrer
	}
	if rec.InstallDate.IsZero() {
		rec.InstallDate = l.now()
	}
	rec.InstallDate = rec.InstallDate.UTC()

	err = l.DB.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		DoUpdates: clause.AssignmentColumns([]string{"referrer", "install_date", "has_redeemed", "updated_at"}),
	}).Create(&rec).Error
	return mapError("set user "+id, err)
}

func (l *GormLedger) UpdateUser(ctx context.Context, id string, patch models.UserPatch) (err error) {
	defer func() { l.metrics.ObserveUserWrite("update", outcome(err)) }()

	if err := requireID("user", id); err != nil {
		return err
	}
	updates := map[string]interface{}{}
	if patch.HasRedeemed != nil {
		updates["has_redeemed"] = *patch.HasRedeemed
	}
	if len(updates) == 0 {
		_, err := l.GetUser(ctx, id)
		return err
	}
	res := l.DB.WithContext(ctx).Model(&models.UserRecord{}).Where("id = ?", id).Updates(updates)
	if res.Error != nil {
		return mapError("update user "+id, res.Error)
	}
	if res.RowsAffected == 0 {
		return mapError("update user "+id, ErrNotFound)
	}
	return nil
}

func incrementExpr(field models.CounterField, delta int64) map[string]interface{} {
	col := string(field)
	return map[string]interface{}{col: gorm.Expr(col+" + ?", delta)}
}

func (l *GormLedger) IncrementDriverCounter(ctx context.Context, id string, field models.CounterField, delta int64) (err error) {
	defer func() { l.metrics.ObserveIncrement(string(field), outcome(err)) }()

	if err := requireID("driver", id); err != nil {
		return err
	}
	if !field.Valid() {
		return fmt.Errorf("%w: unknown counter %q", ErrInvalid, field)
	}
	if delta <= 0 {
		return fmt.Errorf("%w: counter delta must be positive, got %d", ErrInvalid, delta)
	}

	res := l.DB.WithContext(ctx).Model(&models.Driver{}).Where("id = ?", id).
		Updates(incrementExpr(field, delta))
	if res.Error != nil {
		return mapError(fmt.Sprintf("increment %s of driver %s", field, id), res.Error)
	}
	if res.RowsAffected == 0 {
		return mapError(fmt.Sprintf("increment %s of driver %s", field, id), ErrNotFound)
	}
	return nil
}

func (l *GormLedger) CreditRedemption(ctx context.Context, userID, driverID string) (credited bool, err error) {
	defer func() {
		switch {
		case err == nil && credited:
			l.metrics.ObserveRedemption("credited")
		case err == nil:
			l.metrics.ObserveRedemption("duplicate")
		default:
			l.metrics.ObserveRedemption(outcome(err))
		}
	}()

	if err := requireID("user", userID); err != nil {
		return false, err
	}
	if err := requireID("driver", driverID); err != nil {
		return false, err
	}

	err = l.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		token := models.Redemption{UserID: userID, DriverID: driverID, RedeemedAt: l.now().UTC()}
		ins := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&token)
		if ins.Error != nil {
			return ins.Error
		}
		if ins.RowsAffected == 0 {
			return nil
		}
		inc := tx.Model(&models.Driver{}).Where("id = ?", driverID).
			Updates(incrementExpr(models.CounterRedemptions, 1))
		if inc.Error != nil {
			return inc.Error
		}
		if inc.RowsAffected == 0 {
			return ErrNotFound
		}
		credited = true
		return nil
	})
	if err != nil {
		return false, mapError(fmt.Sprintf("credit redemption of user %s to driver %s", userID, driverID), err)
	}
	return credited, nil
}
