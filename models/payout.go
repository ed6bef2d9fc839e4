package models

import "time"

// PayoutStatus tracks a milestone through the (manual) payout process
type PayoutStatus string

const (
	PayoutStatusPending PayoutStatus = "pending"
	PayoutStatusPaid    PayoutStatus = "paid"
)

// PayoutMilestone records the first time a driver crossed a configured threshold.
// Written by the payout sweep; unique per driver, counter and threshold.
type PayoutMilestone struct {
	ID        string       `gorm:"primaryKey;type:varchar(36)" json:"id"`
	DriverID  string       `gorm:"not null;uniqueIndex:idx_payout_milestone" json:"driver_id"`
	Kind      CounterField `gorm:"type:varchar(16);not null;uniqueIndex:idx_payout_milestone" json:"kind"`
	Threshold int64        `gorm:"not null;uniqueIndex:idx_payout_milestone" json:"threshold"`
	Count     int64        `gorm:"not null" json:"count"` // counter value observed by the sweep
	Status    PayoutStatus `gorm:"type:varchar(16);not null;default:'pending'" json:"status"`
	ReachedAt time.Time    `gorm:"not null" json:"reached_at"`

	Timestamps
}

// AllModels lists every table AutoMigrate must create.
func AllModels() []interface{} {
	return []interface{}{
		&Driver{},
		&UserRecord{},
		&Redemption{},
		&PayoutMilestone{},
	}
}
