package config

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"referral-ledger/eligibility"

	"github.com/joho/godotenv"
)

// Config is everything the server and the device agent read from the environment.
type Config struct {
	// Server
	DatabaseURL    string
	ListenAddr     string
	ServiceToken   string
	DeviceToken    string
	AllowedOrigins string
	AdminRole      string

	Thresholds      eligibility.Thresholds
	SweepInterval   time.Duration
	ReferralBaseURL string

	// Snapshot export to R2; disabled when R2Bucket is empty.
	SnapshotInterval  time.Duration
	R2AccountID       string
	R2AccessKeyID     string
	R2AccessKeySecret string
	R2Bucket          string

	// Device agent
	DeviceStatePath string
	LedgerURL       string
	DeviceUserID    string
}

// LoadEnv reads a .env file if one exists. Missing files are not an error.
func LoadEnv(files ...string) {
	if err := godotenv.Load(files...); err != nil {
		log.Println("⚠️  No .env file found, reading environment variables directly")
	}
}

// Load builds a Config from the environment, applying defaults.
func Load() (*Config, error) {
	cfg := &Config{
		DatabaseURL:       os.Getenv("DATABASE_URL"),
		ListenAddr:        getenv("LISTEN_ADDR", ":5200"),
		ServiceToken:      os.Getenv("LEDGER_SERVICE_TOKEN"),
		DeviceToken:       os.Getenv("DEVICE_SERVICE_TOKEN"),
		AllowedOrigins:    getenv("ALLOWED_ORIGINS", "http://localhost:3000"),
		AdminRole:         getenv("ADMIN_ROLE", "admin"),
		ReferralBaseURL:   getenv("REFERRAL_BASE_URL", "https://shawnconboy.github.io/touristapp-referral/"),
		R2AccountID:       os.Getenv("CLOUDFLARE_ACCOUNT_ID"),
		R2AccessKeyID:     os.Getenv("R2_ACCESS_KEY_ID"),
		R2AccessKeySecret: os.Getenv("R2_ACCESS_KEY_SECRET"),
		R2Bucket:          os.Getenv("R2_BUCKET_NAME"),
		DeviceStatePath:   getenv("DEVICE_STATE_PATH", "./device-state"),
		LedgerURL:         getenv("LEDGER_URL", "http://localhost:5200"),
		DeviceUserID:      os.Getenv("DEVICE_USER_ID"),
	}

	var err error
	if cfg.Thresholds.Referrals, err = getInt("REFERRAL_THRESHOLD", eligibility.DefaultThresholds.Referrals); err != nil {
		return nil, err
	}
	if cfg.Thresholds.Redemptions, err = getInt("REDEMPTION_THRESHOLD", eligibility.DefaultThresholds.Redemptions); err != nil {
		return nil, err
	}
	if cfg.SweepInterval, err = getDuration("PAYOUT_SWEEP_INTERVAL", 5*time.Minute); err != nil {
		return nil, err
	}
	if cfg.SnapshotInterval, err = getDuration("SNAPSHOT_INTERVAL", 24*time.Hour); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ValidateServer checks the settings `serve` cannot run without.
func (c *Config) ValidateServer() error {
	if c.DatabaseURL == "" {
		return fmt.Errorf("DATABASE_URL environment variable not set")
	}
	if c.ServiceToken == "" {
		return fmt.Errorf("LEDGER_SERVICE_TOKEN environment variable not set")
	}
	if c.DeviceToken == "" {
		return fmt.Errorf("DEVICE_SERVICE_TOKEN environment variable not set")
	}
	if c.DeviceToken == c.ServiceToken {
		return fmt.Errorf("DEVICE_SERVICE_TOKEN must differ from LEDGER_SERVICE_TOKEN")
	}
	if c.Thresholds.Referrals <= 0 || c.Thresholds.Redemptions <= 0 {
		return fmt.Errorf("thresholds must be positive (referrals=%d, redemptions=%d)",
			c.Thresholds.Referrals, c.Thresholds.Redemptions)
	}
	return nil
}

// SnapshotsEnabled reports whether R2 export is configured.
func (c *Config) SnapshotsEnabled() bool {
	return c.R2Bucket != "" && c.R2AccountID != ""
}

// Origins splits ALLOWED_ORIGINS and trims each entry.
func (c *Config) Origins() string {
	list := strings.Split(c.AllowedOrigins, ",")
	for i, origin := range list {
		list[i] = strings.TrimSpace(origin)
	}
	return strings.Join(list, ",")
}

func getenv(key, fallback string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return fallback
}

func getInt(key string, fallback int64) (int64, error) {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return fallback, nil
	}
	v, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%s: invalid integer %q: %w", key, raw, err)
	}
	return v, nil
}

func getDuration(key string, fallback time.Duration) (time.Duration, error) {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return fallback, nil
	}
	v, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("%s: invalid duration %q: %w", key, raw, err)
	}
	if v <= 0 {
		return 0, fmt.Errorf("%s: duration must be positive, got %s", key, v)
	}
	return v, nil
}
