package subscription

import (
	"time"
)

// MembershipTier is a priced level a creator offers. This core only reads
// it for validation and maintains the subscriber-count bookkeeping.
type MembershipTier struct {
	TierID             string    `gorm:"column:tier_id;primaryKey"`
	CampaignID         string    `gorm:"column:campaign_id;index"`
	CreatorID          string    `gorm:"column:creator_id;index"`
	Name               string    `gorm:"column:name"`
	PriceCents         int64     `gorm:"column:price_cents"`
	Interval           string    `gorm:"column:interval"` // month or year
	MaxSubscribers     int       `gorm:"column:max_subscribers"` // 0 = unlimited
	CurrentSubscribers int       `gorm:"column:current_subscribers"`
	Active             bool      `gorm:"column:active"`
	CreatedAt          time.Time `gorm:"column:created_at"`
	UpdatedAt          time.Time `gorm:"column:updated_at"`
}

type Status string

const (
	StatusActive    Status = "ACTIVE"
	StatusPastDue   Status = "PAST_DUE"
	StatusCancelled Status = "CANCELLED"
	StatusPaused    Status = "PAUSED"
)

// StatusFromProvider maps the payment processor's subscription status onto
// the local enum. Unknown values map to the empty status and are ignored
// by callers.
func StatusFromProvider(s string) Status {
	switch s {
	case "active", "trialing":
		return StatusActive
	case "past_due", "unpaid", "incomplete":
		return StatusPastDue
	case "canceled", "incomplete_expired":
		return StatusCancelled
	case "paused":
		return StatusPaused
	default:
		return ""
	}
}

// Subscription is created only once a checkout-completed event has been
// reconciled; until then the pending flow lives entirely in the provider.
// CANCELLED is terminal.
type Subscription struct {
	SubscriptionID       string     `gorm:"column:subscription_id;primaryKey"`
	SubscriberID         string     `gorm:"column:subscriber_id;index"`
	CreatorID            string     `gorm:"column:creator_id;index"`
	TierID               string     `gorm:"column:tier_id;index"`
	Status               Status     `gorm:"column:status;index"`
	StartDate            time.Time  `gorm:"column:start_date"`
	NextBillingDate      *time.Time `gorm:"column:next_billing_date"`
	EndDate              *time.Time `gorm:"column:end_date"`
	CancelledAt          *time.Time `gorm:"column:cancelled_at"`
	StripeSubscriptionID string     `gorm:"column:stripe_subscription_id;uniqueIndex"`
	StripeCustomerID     string     `gorm:"column:stripe_customer_id;index"`
	CreatedAt            time.Time  `gorm:"column:created_at"`
	UpdatedAt            time.Time  `gorm:"column:updated_at"`
}
