package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestAlertTier_InWindow(t *testing.T) {
	now := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

	tests := []struct {
		name       string
		tier       AlertTier
		expiryDate time.Time
		want       bool
	}{
		// A date ten days out sits in the 15 and 30 day windows but not 7
		{"10 days out in 30d window", Tier30Days, now.AddDate(0, 0, 10), true},
		{"10 days out in 15d window", Tier15Days, now.AddDate(0, 0, 10), true},
		{"10 days out not in 7d window", Tier7Days, now.AddDate(0, 0, 10), false},
		{"10 days out not expired", TierExpired, now.AddDate(0, 0, 10), false},

		{"window upper bound inclusive", Tier7Days, now.AddDate(0, 0, 7), true},
		{"beyond 30 days not in any window", Tier30Days, now.AddDate(0, 0, 31), false},
		{"past date only in expired tier", TierExpired, now.AddDate(0, 0, -1), true},
		{"past date not in day tiers", Tier30Days, now.AddDate(0, 0, -1), false},
		{"exactly now is not expired", TierExpired, now, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.tier.InWindow(tt.expiryDate, now))
		})
	}
}

func TestAlertTier_Days(t *testing.T) {
	assert.Equal(t, 30, Tier30Days.Days())
	assert.Equal(t, 15, Tier15Days.Days())
	assert.Equal(t, 7, Tier7Days.Days())
	assert.Equal(t, 0, TierExpired.Days())
}

func TestExpiryTracking_AlertFired(t *testing.T) {
	rec := &ExpiryTracking{Alert15Days: true}

	assert.True(t, rec.AlertFired(Tier15Days))
	assert.False(t, rec.AlertFired(Tier30Days))
	assert.False(t, rec.AlertFired(Tier7Days))
	assert.False(t, rec.AlertFired(TierExpired))
}
