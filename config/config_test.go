package config

import (
	"testing"
	"time"

	"referral-ledger/eligibility"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func clearEnv(t *testing.T) {
	for _, key := range []string{
		"DATABASE_URL", "LEDGER_SERVICE_TOKEN", "DEVICE_SERVICE_TOKEN", "REFERRAL_THRESHOLD", "REDEMPTION_THRESHOLD",
		"PAYOUT_SWEEP_INTERVAL", "SNAPSHOT_INTERVAL", "R2_BUCKET_NAME", "CLOUDFLARE_ACCOUNT_ID",
		"ALLOWED_ORIGINS", "LISTEN_ADDR",
	} {
		t.Setenv(key, "")
	}
}

func TestLoadDefaults(t *testing.T) {
	clearEnv(t)

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, ":5200", cfg.ListenAddr)
	assert.Equal(t, eligibility.DefaultThresholds, cfg.Thresholds)
	assert.Equal(t, 5*time.Minute, cfg.SweepInterval)
	assert.Equal(t, 24*time.Hour, cfg.SnapshotInterval)
	assert.False(t, cfg.SnapshotsEnabled())
	assert.Error(t, cfg.ValidateServer(), "database url and token are required")
}

func TestLoadOverrides(t *testing.T) {
	clearEnv(t)
	t.Setenv("DATABASE_URL", "sqlite:ledger.db")
	t.Setenv("LEDGER_SERVICE_TOKEN", "secret")
	t.Setenv("DEVICE_SERVICE_TOKEN", "device-secret")
	t.Setenv("REFERRAL_THRESHOLD", "3")
	t.Setenv("REDEMPTION_THRESHOLD", "2")
	t.Setenv("PAYOUT_SWEEP_INTERVAL", "30s")
	t.Setenv("ALLOWED_ORIGINS", "https://a.example, https://b.example")
	t.Setenv("R2_BUCKET_NAME", "snapshots")
	t.Setenv("CLOUDFLARE_ACCOUNT_ID", "acct")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, eligibility.Thresholds{Referrals: 3, Redemptions: 2}, cfg.Thresholds)
	assert.Equal(t, 30*time.Second, cfg.SweepInterval)
	assert.Equal(t, "https://a.example,https://b.example", cfg.Origins())
	assert.True(t, cfg.SnapshotsEnabled())
	assert.NoError(t, cfg.ValidateServer())
}

func TestLoadRejectsBadValues(t *testing.T) {
	clearEnv(t)
	t.Setenv("REFERRAL_THRESHOLD", "ten")
	_, err := Load()
	assert.Error(t, err)

	clearEnv(t)
	t.Setenv("PAYOUT_SWEEP_INTERVAL", "-1m")
	_, err = Load()
	assert.Error(t, err)

	clearEnv(t)
	t.Setenv("DATABASE_URL", "sqlite:ledger.db")
	t.Setenv("LEDGER_SERVICE_TOKEN", "secret")
	t.Setenv("DEVICE_SERVICE_TOKEN", "device-secret")
	t.Setenv("REDEMPTION_THRESHOLD", "0")
	cfg, err := Load()
	require.NoError(t, err)
	assert.Error(t, cfg.ValidateServer())
}

func TestValidateServer_SeparatesDeviceToken(t *testing.T) {
	clearEnv(t)
	t.Setenv("DATABASE_URL", "sqlite:ledger.db")
	t.Setenv("LEDGER_SERVICE_TOKEN", "secret")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Error(t, cfg.ValidateServer(), "device token is required")

	t.Setenv("DEVICE_SERVICE_TOKEN", "secret")
	cfg, err = Load()
	require.NoError(t, err)
	assert.Error(t, cfg.ValidateServer(), "devices must not share the gateway token")
}
