package eligibility

import (
	"testing"

	"referral-ledger/models"

	"github.com/stretchr/testify/assert"
)

func TestIsEligible_Boundaries(t *testing.T) {
	th := Thresholds{Referrals: 10, Redemptions: 5}

	tests := []struct {
		name   string
		driver models.Driver
		want   bool
	}{
		{"referrals alone meet threshold", models.Driver{Referrals: 10, Redemptions: 0}, true},
		{"just below both", models.Driver{Referrals: 9, Redemptions: 4}, false},
		{"redemptions alone meet threshold", models.Driver{Referrals: 0, Redemptions: 5}, true},
		{"both exceeded", models.Driver{Referrals: 40, Redemptions: 12}, true},
		{"fresh driver", models.Driver{}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsEligible(tt.driver, th))
		})
	}
}

func TestProgress(t *testing.T) {
	assert.Equal(t, 0.0, Progress(0, 10))
	assert.InDelta(t, 0.9, Progress(9, 10), 1e-9)
	assert.Equal(t, 1.0, Progress(10, 10))
	assert.Equal(t, 1.0, Progress(25, 10), "progress is clamped")
	assert.Equal(t, 1.0, Progress(0, 0), "non-positive threshold is already met")
	assert.Equal(t, 0.0, Progress(-3, 10))
}

func TestEvaluate(t *testing.T) {
	d := models.Driver{ID: "4155550100", Name: "Ada Lovelace", Referrals: 10, Redemptions: 2}
	v := Evaluate(d, DefaultThresholds)

	assert.Equal(t, "4155550100", v.DriverID)
	assert.True(t, v.Eligible)
	assert.Equal(t, 1.0, v.ReferralProgress)
	assert.InDelta(t, 0.4, v.RedemptionProgress, 1e-9)
	assert.Equal(t, []string{"10 referrals"}, v.Reasons)
	assert.Equal(t, DefaultThresholds, v.Thresholds)
}

func TestMilestones(t *testing.T) {
	th := Thresholds{Referrals: 10, Redemptions: 5}

	assert.Empty(t, Milestones(models.Driver{Referrals: 9, Redemptions: 4}, th))

	ms := Milestones(models.Driver{Referrals: 12, Redemptions: 5}, th)
	if assert.Len(t, ms, 2) {
		assert.Equal(t, Milestone{Kind: models.CounterReferrals, Threshold: 10, Count: 12}, ms[0])
		assert.Equal(t, Milestone{Kind: models.CounterRedemptions, Threshold: 5, Count: 5}, ms[1])
		assert.Equal(t, "5 redemptions", ms[1].Reason())
	}
}
