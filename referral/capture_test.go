package referral

import (
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseReferralCode(t *testing.T) {
	tests := []struct {
		name string
		link string
		want string
		ok   bool
	}{
		{"plain", "https://example.com/?ref=driverA", "driverA", true},
		{"custom scheme", "touristapp://activate?ref=8435550199", "8435550199", true},
		{"extra params", "https://example.com/r?utm=qr&ref=abc_123", "abc_123", true},
		{"padded value", "https://example.com/?ref=%20driverA%20", "driverA", true},
		{"missing param", "https://example.com/", "", false},
		{"empty param", "https://example.com/?ref=", "", false},
		{"path separator", "https://example.com/?ref=a%2Fb", "", false},
		{"unparsable", "://bad link", "", false},
		{"empty link", "", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := ParseReferralCode(tt.link)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestBuildReferralLink(t *testing.T) {
	link, err := BuildReferralLink("https://example.com/referral/?src=qr", "driverA")
	require.NoError(t, err)

	u, err := url.Parse(link)
	require.NoError(t, err)
	assert.Equal(t, "driverA", u.Query().Get(RefParam))
	assert.Equal(t, "qr", u.Query().Get("src"))

	code, ok := ParseReferralCode(link)
	assert.True(t, ok)
	assert.Equal(t, "driverA", code)
}
