package ledger

import (
	"time"
)

type CampaignStatus string

const (
	CampaignStatusActive    CampaignStatus = "ACTIVE"
	CampaignStatusCompleted CampaignStatus = "COMPLETED"
	CampaignStatusCancelled CampaignStatus = "CANCELLED"
)

// Campaign carries the authoritative balance. current_amount is mutated
// only by this package: credited on donation insert, debited on withdrawal
// completion. It must never go negative.
type Campaign struct {
	CampaignID    string         `gorm:"column:campaign_id;primaryKey"`
	CreatorID     string         `gorm:"column:creator_id;index"`
	Title         string         `gorm:"column:title"`
	GoalAmount    float64        `gorm:"column:goal_amount"`
	CurrentAmount float64        `gorm:"column:current_amount"`
	Status        CampaignStatus `gorm:"column:status"`
	CreatedAt     time.Time      `gorm:"column:created_at"`
	UpdatedAt     time.Time      `gorm:"column:updated_at"`
}

type DonationStatus string

const (
	DonationStatusCompleted DonationStatus = "COMPLETED"
)

// Donation rows are immutable once created. The balance credit happens in
// the same transaction as the insert, keyed by ReferenceID, so a retried
// request cannot credit twice.
type Donation struct {
	DonationID  string         `gorm:"column:donation_id;primaryKey"`
	CampaignID  string         `gorm:"column:campaign_id;index"`
	DonorID     string         `gorm:"column:donor_id;index"`
	Amount      float64        `gorm:"column:amount"`
	Status      DonationStatus `gorm:"column:status"`
	ReferenceID string         `gorm:"column:reference_id;uniqueIndex"`
	Message     string         `gorm:"column:message"`
	CreatedAt   time.Time      `gorm:"column:created_at"`
}
