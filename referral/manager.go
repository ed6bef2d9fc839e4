// Package referral attributes installs to referring drivers and credits
// their referral and redemption counters.
//
// A Manager is built once per device around that device's state store and a
// remote ledger, and is handed to whatever reacts to link opens, app launches
// and redeem taps.
package referral

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"referral-ledger/devicestate"
	"referral-ledger/eligibility"
	"referral-ledger/ledger"
	"referral-ledger/models"

	"golang.org/x/sync/singleflight"
)

// RemoteLedger is the part of the ledger a device needs.
type RemoteLedger interface {
	GetDriver(ctx context.Context, id string) (models.Driver, error)
	ListDrivers(ctx context.Context) ([]models.Driver, error)
	SetUser(ctx context.Context, id string, rec models.UserRecord) error
	UpdateUser(ctx context.Context, id string, patch models.UserPatch) error
	IncrementDriverCounter(ctx context.Context, id string, field models.CounterField, delta int64) error
	CreditRedemption(ctx context.Context, userID, driverID string) (bool, error)
}

// Options tune a Manager. Zero values pick sensible defaults.
type Options struct {
	// UserID keys the remote user record. Empty means the installation id.
	UserID     string
	Thresholds eligibility.Thresholds
	Now        func() time.Time
}

type Manager struct {
	state      *devicestate.Store
	ledger     RemoteLedger
	userID     string
	thresholds eligibility.Thresholds
	now        func() time.Time

	installs singleflight.Group
}

func NewManager(state *devicestate.Store, l RemoteLedger, opts Options) *Manager {
	m := &Manager{
		state:      state,
		ledger:     l,
		userID:     opts.UserID,
		thresholds: opts.Thresholds,
		now:        opts.Now,
	}
	if m.thresholds == (eligibility.Thresholds{}) {
		m.thresholds = eligibility.DefaultThresholds
	}
	if m.now == nil {
		m.now = time.Now
	}
	return m
}

func (m *Manager) resolveUserID(st devicestate.State) string {
	if m.userID != "" {
		return m.userID
	}
	return st.InstallationID
}

// State returns the device's current referral state.
func (m *Manager) State() (devicestate.State, error) {
	return m.state.Load()
}

// CaptureLink records the referrer carried by an activation link. Links
// without a usable ref parameter are ignored. The first captured referrer
// sticks for the life of the device.
func (m *Manager) CaptureLink(link string) (devicestate.State, bool, error) {
	code, ok := ParseReferralCode(link)
	if !ok {
		log.Printf("ℹ️ [CAPTURE] No usable referral code in link %q", link)
		st, err := m.state.Load()
		return st, false, err
	}

	st, captured, err := m.state.CaptureReferral(code, m.now())
	if err != nil {
		log.Printf("❌ [CAPTURE] Failed to persist referrer %s: %v", code, err)
		return st, false, err
	}
	if captured {
		log.Printf("✅ [CAPTURE] Referrer saved: %s", code)
	} else if st.ReferrerCode != code {
		log.Printf("ℹ️ [CAPTURE] Device already attributed to %s, ignoring %s", st.ReferrerCode, code)
	}
	return st, captured, nil
}

// InstallResult describes one install-logging attempt.
type InstallResult struct {
	UserID           string    `json:"user_id"`
	Referrer         string    `json:"referrer"`
	InstallDate      time.Time `json:"install_date"`
	AlreadyLogged    bool      `json:"already_logged"`
	ReferralCredited bool      `json:"referral_credited"`
}

// LogInstall records this device's install exactly once. Concurrent calls
// share a single attempt, which runs detached from any one caller's
// cancellation. A failed user-record write leaves the device unlogged so the
// next activation retries; a failed referral increment after a successful
// write is logged and dropped.
func (m *Manager) LogInstall(ctx context.Context) (InstallResult, error) {
	shared := context.WithoutCancel(ctx)
	v, err, _ := m.installs.Do("install", func() (interface{}, error) {
		return m.logInstall(shared)
	})
	res, _ := v.(InstallResult)
	return res, err
}

func (m *Manager) logInstall(ctx context.Context) (InstallResult, error) {
	st, err := m.state.Load()
	if err != nil {
		return InstallResult{}, fmt.Errorf("load device state: %w", err)
	}
	res := InstallResult{UserID: m.resolveUserID(st), Referrer: st.ReferrerCode}
	if st.InstallLogged {
		log.Printf("ℹ️ [INSTALL] Install already logged for this device.")
		res.AlreadyLogged = true
		return res, nil
	}
	if !st.HasReferrer() {
		res.Referrer = models.UnknownReferrer
	}

	res.InstallDate, err = m.state.EnsureInstallDate(m.now())
	if err != nil {
		return res, fmt.Errorf("seed install date: %w", err)
	}

	rec := models.UserRecord{
		Referrer:    res.Referrer,
		InstallDate: res.InstallDate,
		HasRedeemed: false,
	}
	if err := m.ledger.SetUser(ctx, res.UserID, rec); err != nil {
		log.Printf("❌ [INSTALL] Error logging install for %s: %v", res.UserID, err)
		return res, fmt.Errorf("log install for %s: %w", res.UserID, err)
	}
	log.Printf("✅ [INSTALL] User install logged: %s (referrer=%s)", res.UserID, res.Referrer)

	if res.Referrer != models.UnknownReferrer {
		err := m.ledger.IncrementDriverCounter(ctx, res.Referrer, models.CounterReferrals, 1)
		switch {
		case err == nil:
			res.ReferralCredited = true
			log.Printf("✅ [INSTALL] Driver %s referral count incremented.", res.Referrer)
		case ledger.IsNotFound(err):
			log.Printf("⚠️ [INSTALL] Referrer %s not found, attribution dropped: %v", res.Referrer, err)
		default:
			log.Printf("⚠️ [INSTALL] Error updating driver %s referral count, increment lost: %v", res.Referrer, err)
		}
	}

	if err := m.state.MarkInstallLogged(); err != nil {
		return res, fmt.Errorf("mark install logged: %w", err)
	}
	return res, nil
}

// TriggerInstallLogging runs LogInstall in the background. The outcome is
// only logged; the returned channel may be ignored.
func (m *Manager) TriggerInstallLogging(ctx context.Context) <-chan error {
	done := make(chan error, 1)
	ctx = context.WithoutCancel(ctx)
	go func() {
		_, err := m.LogInstall(ctx)
		if err != nil {
			log.Printf("⚠️ [INSTALL] Background install logging failed, will retry on next activation: %v", err)
		}
		done <- err
	}()
	return done
}

// RedemptionResult describes one redemption.
type RedemptionResult struct {
	UserID   string `json:"user_id"`
	Referrer string `json:"referrer,omitempty"`
	Credited bool   `json:"credited"`
}

// Redeem marks the user's deal as redeemed and credits the device's referrer.
// A pending install is logged first, so a later install retry can never
// overwrite the redeemed flag. Errors are returned so the caller can offer a
// retry. Repeated calls never credit the referrer twice.
func (m *Manager) Redeem(ctx context.Context, userID string) (RedemptionResult, error) {
	st, err := m.state.Load()
	if err != nil {
		return RedemptionResult{}, fmt.Errorf("load device state: %w", err)
	}
	if !st.InstallLogged {
		log.Printf("ℹ️ [REDEEM] Install not logged yet, logging it before redeeming")
		if _, err := m.LogInstall(ctx); err != nil {
			return RedemptionResult{UserID: userID, Referrer: st.ReferrerCode}, fmt.Errorf("redeem before install logged: %w", err)
		}
	}
	if userID == "" {
		userID = m.resolveUserID(st)
	}
	res := RedemptionResult{UserID: userID, Referrer: st.ReferrerCode}

	redeemed := true
	if err := m.ledger.UpdateUser(ctx, userID, models.UserPatch{HasRedeemed: &redeemed}); err != nil {
		log.Printf("❌ [REDEEM] Failed to mark %s as redeemed: %v", userID, err)
		return res, fmt.Errorf("redeem for %s: %w", userID, err)
	}

	if !st.HasReferrer() {
		log.Printf("✅ [REDEEM] %s redeemed (no referrer to credit)", userID)
		return res, nil
	}

	credited, err := m.ledger.CreditRedemption(ctx, userID, st.ReferrerCode)
	switch {
	case err == nil && credited:
		res.Credited = true
		log.Printf("✅ [REDEEM] Driver %s credited for redemption by %s", st.ReferrerCode, userID)
	case err == nil:
		log.Printf("ℹ️ [REDEEM] Redemption by %s already credited to %s", userID, st.ReferrerCode)
	case errors.Is(err, ledger.ErrNotFound):
		log.Printf("⚠️ [REDEEM] Referrer %s not found, redemption credit dropped: %v", st.ReferrerCode, err)
	default:
		log.Printf("❌ [REDEEM] Failed to credit %s for %s: %v", st.ReferrerCode, userID, err)
		return res, fmt.Errorf("credit redemption to %s: %w", st.ReferrerCode, err)
	}
	return res, nil
}

// CurrentEligibility reads the driver and evaluates it against the configured thresholds.
func (m *Manager) CurrentEligibility(ctx context.Context, driverID string) (eligibility.Verdict, error) {
	d, err := m.ledger.GetDriver(ctx, driverID)
	if err != nil {
		return eligibility.Verdict{}, err
	}
	return eligibility.Evaluate(d, m.thresholds), nil
}

// DriverList returns every driver record.
func (m *Manager) DriverList(ctx context.Context) ([]models.Driver, error) {
	return m.ledger.ListDrivers(ctx)
}
