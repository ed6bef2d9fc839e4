package models

import "time"

// UnknownReferrer is written when an install carries no captured referral code.
const UnknownReferrer = "unknown"

// UserRecord is the remote install record, keyed by the per-installation identifier.
type UserRecord struct {
	ID          string    `gorm:"primaryKey;type:varchar(64)" json:"id"`
	Referrer    string    `gorm:"index;not null" json:"referrer"`
	InstallDate time.Time `gorm:"not null" json:"install_date"`
	HasRedeemed bool      `gorm:"not null;default:false" json:"has_redeemed"`

	Timestamps
}

// UserPatch is a partial update of a UserRecord. Nil fields are left alone.
type UserPatch struct {
	HasRedeemed *bool `json:"has_redeemed,omitempty"`
}

// Timestamps adds GORM auto-times
type Timestamps struct {
	CreatedAt time.Time `json:"created_at" gorm:"autoCreateTime"`
	UpdatedAt time.Time `json:"updated_at" gorm:"autoUpdateTime"`
}
