package referral

import (
	"net/url"
	"strings"

	"referral-ledger/ledger"
)

// RefParam is the activation-link query parameter carrying the driver id.
const RefParam = "ref"

// ParseReferralCode extracts the referral code from an activation link.
// Anything unusable (unparsable link, missing or empty parameter, an id the
// ledger could never hold) is reported as absent, never as an error.
func ParseReferralCode(link string) (string, bool) {
	u, err := url.Parse(strings.TrimSpace(link))
	if err != nil {
		return "", false
	}
	code := strings.TrimSpace(u.Query().Get(RefParam))
	if code == "" || !ledger.ValidID(code) {
		return "", false
	}
	return code, true
}

// BuildReferralLink appends ref=<driverID> to base, keeping any existing query.
func BuildReferralLink(base, driverID string) (string, error) {
	u, err := url.Parse(base)
	if err != nil {
		return "", err
	}
	q := u.Query()
	q.Set(RefParam, driverID)
	u.RawQuery = q.Encode()
	return u.String(), nil
}
