package models

import (
	"time"
)

// ExpiryTracking status constants
const (
	ExpiryStatusActive    = "ACTIVE"
	ExpiryStatusRenewed   = "RENEWED"
	ExpiryStatusExpired   = "EXPIRED"
	ExpiryStatusCancelled = "CANCELLED"
)

// Expiry type constants (the document classes that carry expiry dates)
const (
	ExpiryTypeContract            = "CONTRACT"
	ExpiryTypeBankGuarantee       = "BANK_GUARANTEE"
	ExpiryTypeLetterOfCredit      = "LETTER_OF_CREDIT"
	ExpiryTypePerformanceSecurity = "PERFORMANCE_SECURITY"
	ExpiryTypeLicense             = "LICENSE"
)

// AlertTier identifies one of the fixed expiry-alert thresholds.
type AlertTier string

const (
	Tier30Days  AlertTier = "30D"
	Tier15Days  AlertTier = "15D"
	Tier7Days   AlertTier = "7D"
	TierExpired AlertTier = "EXPIRED"
)

// Days returns the window width of the tier, or 0 for TierExpired.
func (t AlertTier) Days() int {
	switch t {
	case Tier30Days:
		return 30
	case Tier15Days:
		return 15
	case Tier7Days:
		return 7
	}
	return 0
}

// InWindow reports whether an expiry date falls in the tier's alert window
// at the given time: now..now+Nd for the day tiers, strictly before now for
// TierExpired.
func (t AlertTier) InWindow(expiryDate, now time.Time) bool {
	if t == TierExpired {
		return expiryDate.Before(now)
	}
	if expiryDate.Before(now) {
		return false
	}
	return !expiryDate.After(now.AddDate(0, 0, t.Days()))
}

// ExpiryTracking tracks a document's expiry date against tiered alert
// thresholds. Each alert flag flips false -> true at most once; renewal never
// resets flags in place but supersedes the record with a fresh one.
type ExpiryTracking struct {
	ID         string    `json:"id"`
	DocumentID string    `json:"document_id"`
	ExpiryType string    `json:"expiry_type"`
	ExpiryDate time.Time `json:"expiry_date"`
	Status     string    `json:"status"`

	Alert30Days  bool `json:"alert_30_days"`
	Alert15Days  bool `json:"alert_15_days"`
	Alert7Days   bool `json:"alert_7_days"`
	AlertExpired bool `json:"alert_expired"`

	AssignedTo string `json:"assigned_to"`
	Department string `json:"department"`

	// RenewedFromID links a renewal record back to the record it supersedes.
	RenewedFromID *string    `json:"renewed_from_id,omitempty"`
	RenewalDate   *time.Time `json:"renewal_date,omitempty"`
	Notes         *string    `json:"notes,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// AlertFired reports whether the alert for the given tier has already fired.
func (e *ExpiryTracking) AlertFired(tier AlertTier) bool {
	switch tier {
	case Tier30Days:
		return e.Alert30Days
	case Tier15Days:
		return e.Alert15Days
	case Tier7Days:
		return e.Alert7Days
	case TierExpired:
		return e.AlertExpired
	}
	return false
}
