// Package eligibility decides whether a driver's counters qualify for a payout.
// Everything here is pure: no I/O, no clocks.
package eligibility

import (
	"fmt"

	"referral-ledger/models"
)

// Thresholds are the configured payout goals shared by every driver.
type Thresholds struct {
	Referrals   int64 `json:"referral_threshold"`
	Redemptions int64 `json:"redemption_threshold"`
}

// DefaultThresholds are the goals shown to drivers in the app.
var DefaultThresholds = Thresholds{Referrals: 10, Redemptions: 5}

// Verdict is what the dashboard shows for one driver.
type Verdict struct {
	DriverID           string     `json:"driver_id"`
	Name               string     `json:"name"`
	Referrals          int64      `json:"referrals"`
	Redemptions        int64      `json:"redemptions"`
	Thresholds         Thresholds `json:"thresholds"`
	Eligible           bool       `json:"eligible"`
	ReferralProgress   float64    `json:"referral_progress"`
	RedemptionProgress float64    `json:"redemption_progress"`
	Reasons            []string   `json:"reasons,omitempty"`
}

// IsEligible is true once either counter reaches its threshold.
func IsEligible(d models.Driver, t Thresholds) bool {
	return d.Referrals >= t.Referrals || d.Redemptions >= t.Redemptions
}

// Progress returns count/threshold clamped to [0, 1]. A non-positive
// threshold is already met.
func Progress(count, threshold int64) float64 {
	if threshold <= 0 {
		return 1.0
	}
	if count <= 0 {
		return 0
	}
	p := float64(count) / float64(threshold)
	if p > 1.0 {
		return 1.0
	}
	return p
}

// Milestone is one threshold a driver has reached.
type Milestone struct {
	Kind      models.CounterField
	Threshold int64
	Count     int64
}

// Reason renders the milestone the way payout history lists it, e.g. "10 referrals".
func (m Milestone) Reason() string {
	return fmt.Sprintf("%d %s", m.Threshold, m.Kind)
}

// Milestones lists the thresholds d currently meets, referrals first.
func Milestones(d models.Driver, t Thresholds) []Milestone {
	var out []Milestone
	if d.Referrals >= t.Referrals {
		out = append(out, Milestone{Kind: models.CounterReferrals, Threshold: t.Referrals, Count: d.Referrals})
	}
	if d.Redemptions >= t.Redemptions {
		out = append(out, Milestone{Kind: models.CounterRedemptions, Threshold: t.Redemptions, Count: d.Redemptions})
	}
	return out
}

// Evaluate builds the full verdict for d.
func Evaluate(d models.Driver, t Thresholds) Verdict {
	v := Verdict{
		DriverID:           d.ID,
		Name:               d.Name,
		Referrals:          d.Referrals,
		Redemptions:        d.Redemptions,
		Thresholds:         t,
		Eligible:           IsEligible(d, t),
		ReferralProgress:   Progress(d.Referrals, t.Referrals),
		RedemptionProgress: Progress(d.Redemptions, t.Redemptions),
	}
	for _, m := range Milestones(d, t) {
		v.Reasons = append(v.Reasons, m.Reason())
	}
	return v
}
