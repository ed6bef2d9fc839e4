package models

import "time"

// Redemption is the per-user idempotency token for redemption crediting.
// One row per user; its insert and the driver increment commit together.
type Redemption struct {
	UserID     string    `gorm:"primaryKey;type:varchar(64)" json:"user_id"`
	DriverID   string    `gorm:"index;not null" json:"driver_id"`
	RedeemedAt time.Time `gorm:"not null" json:"redeemed_at"`
}
