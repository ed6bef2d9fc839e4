package services

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"referral-ledger/eligibility"
	"referral-ledger/ledger"
	"referral-ledger/models"
	"referral-ledger/observability"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// PayoutService records payout milestones and serves payout history.
type PayoutService struct {
	DB         *gorm.DB
	Ledger     ledger.Ledger
	Thresholds eligibility.Thresholds
	now        func() time.Time
}

func NewPayoutService(db *gorm.DB, l ledger.Ledger, t eligibility.Thresholds) *PayoutService {
	return &PayoutService{DB: db, Ledger: l, Thresholds: t, now: time.Now}
}

// Sweep evaluates every driver and records any milestone reached for the
// first time. Safe to run repeatedly; returns how many new milestones were written.
func (s *PayoutService) Sweep(ctx context.Context) (int, error) {
	drivers, err := s.Ledger.ListDrivers(ctx)
	if err != nil {
		return 0, fmt.Errorf("payout sweep: %w", err)
	}

	recorded := 0
	for _, d := range drivers {
		for _, m := range eligibility.Milestones(d, s.Thresholds) {
			pm := models.PayoutMilestone{
				ID:        uuid.NewString(),
				DriverID:  d.ID,
				Kind:      m.Kind,
				Threshold: m.Threshold,
				Count:     m.Count,
				Status:    models.PayoutStatusPending,
				ReachedAt: s.now().UTC(),
			}
			res := s.DB.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(&pm)
			if res.Error != nil {
				log.Printf("[PayoutSweep] Failed to record %s for driver %s: %v", m.Reason(), d.ID, res.Error)
				continue
			}
			if res.RowsAffected == 1 {
				recorded++
				observability.Ledger().ObserveMilestone(string(m.Kind))
				log.Printf("🎉 [PayoutSweep] Driver %s (%s) reached %s", d.ID, d.Name, m.Reason())
			}
		}
	}
	return recorded, nil
}

// History returns a driver's milestones, newest first.
func (s *PayoutService) History(ctx context.Context, driverID string) ([]models.PayoutMilestone, error) {
	var out []models.PayoutMilestone
	err := s.DB.WithContext(ctx).
		Where("driver_id = ?", driverID).
		Order("reached_at DESC").
		Find(&out).Error
	return out, err
}

var ErrMilestoneNotFound = errors.New("payout milestone not found")

// MarkPaid flags a milestone as paid out.
func (s *PayoutService) MarkPaid(ctx context.Context, id string) (models.PayoutMilestone, error) {
	var pm models.PayoutMilestone
	if err := s.DB.WithContext(ctx).Where("id = ?", id).First(&pm).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return pm, ErrMilestoneNotFound
		}
		return pm, err
	}
	if pm.Status == models.PayoutStatusPaid {
		return pm, nil
	}
	pm.Status = models.PayoutStatusPaid
	if err := s.DB.WithContext(ctx).Model(&pm).Update("status", pm.Status).Error; err != nil {
		return pm, err
	}
	log.Printf("✅ [Payout] Milestone %s for driver %s marked paid", pm.ID, pm.DriverID)
	return pm, nil
}
