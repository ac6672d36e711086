package domain

import "time"

const (
	SubscriptionStatusActive   = "active"
	SubscriptionStatusInactive = "inactive"
)

// Subscription represents a user's current plan. CurrentPeriodEnd is nil for
// plans that never lapse (the free tier).
type Subscription struct {
	UserID           string     `json:"user_id"`
	PlanID           string     `json:"plan"`
	Status           string     `json:"status"`
	CurrentPeriodEnd *time.Time `json:"current_period_end"`
	UpdatedAt        time.Time  `json:"updated_at"`
}

// IsActive reports whether the subscription grants its plan at the given instant.
func (s *Subscription) IsActive(now time.Time) bool {
	if s == nil || s.Status != SubscriptionStatusActive {
		return false
	}
	return s.CurrentPeriodEnd == nil || s.CurrentPeriodEnd.After(now)
}
