package models

// CounterField names one of the two driver counters the ledger may increment.
type CounterField string

const (
	CounterReferrals   CounterField = "referrals"
	CounterRedemptions CounterField = "redemptions"
)

// Valid reports whether f is a known counter column.
func (f CounterField) Valid() bool {
	return f == CounterReferrals || f == CounterRedemptions
}

// Driver is the referring party credited for installs and redemptions.
// Counters only move through atomic increments; never write them back from a read.
type Driver struct {
	ID          string `gorm:"primaryKey;type:varchar(64)" json:"id"`
	Name        string `gorm:"not null;default:''" json:"name"`
	Referrals   int64  `gorm:"not null;default:0" json:"referrals"`
	Redemptions int64  `gorm:"not null;default:0" json:"redemptions"`

	Timestamps
}
