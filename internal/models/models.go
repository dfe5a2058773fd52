package models

import (
	"strings"
	"time"
)

// Alert conditions. An alert fires when the current price crosses its
// target in the configured direction; equality counts as crossed.
const (
	ConditionAbove = "above"
	ConditionBelow = "below"
)

// PriceAlert represents a price alert for a cryptocurrency
type PriceAlert struct {
	ID                string     `json:"id" db:"id"`
	UserID            string     `json:"user_id" db:"user_id"`
	Cryptocurrency    string     `json:"cryptocurrency" db:"cryptocurrency"`
	TargetPrice       float64    `json:"target_price" db:"target_price"`
	Condition         string     `json:"condition" db:"condition"`
	IsActive          bool       `json:"is_active" db:"is_active"`
	TriggeredAt       *time.Time `json:"triggered_at,omitempty" db:"triggered_at"`
	EmailNotification bool       `json:"email_notification" db:"email_notification"`
	CreatedAt         time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt         time.Time  `json:"updated_at" db:"updated_at"`

	// Email is joined from the owning user record and never written back.
	Email string `json:"-" db:"email"`
}

// Symbol returns the lowercase asset symbol used for price lookups. The
// store may hold mixed case.
func (a *PriceAlert) Symbol() string {
	return strings.ToLower(a.Cryptocurrency)
}

// ShouldTrigger reports whether currentPrice satisfies the alert condition.
// above: current >= target; below: current <= target.
func (a *PriceAlert) ShouldTrigger(currentPrice float64) bool {
	switch a.Condition {
	case ConditionAbove:
		return currentPrice >= a.TargetPrice
	case ConditionBelow:
		return currentPrice <= a.TargetPrice
	default:
		return false
	}
}

// ValidCondition reports whether c is a recognized alert condition.
func ValidCondition(c string) bool {
	return c == ConditionAbove || c == ConditionBelow
}
