package withdrawal

import (
	"time"
)

type Status string

const (
	StatusPending   Status = "PENDING"
	StatusApproved  Status = "APPROVED"
	StatusRejected  Status = "REJECTED"
	StatusCompleted Status = "COMPLETED"
)

// ValidStatus reports whether s is one of the four recognised workflow
// states.
func ValidStatus(s Status) bool {
	switch s {
	case StatusPending, StatusApproved, StatusRejected, StatusCompleted:
		return true
	default:
		return false
	}
}

// Withdrawal is a creator's request to remove funds from a campaign
// balance. At most one PENDING row may exist per campaign, and only the
// transition into COMPLETED debits the ledger.
type Withdrawal struct {
	WithdrawalID string     `gorm:"column:withdrawal_id;primaryKey"`
	CampaignID   string     `gorm:"column:campaign_id;index"`
	UserID       string     `gorm:"column:user_id;index"`
	AmountCents  int64      `gorm:"column:amount_cents"`
	Status       Status     `gorm:"column:status;index"`
	RequestedAt  time.Time  `gorm:"column:requested_at"`
	ProcessedAt  *time.Time `gorm:"column:processed_at"`
	Notes        string     `gorm:"column:notes"`
	BankAccount  string     `gorm:"column:bank_account"`
	CreatedAt    time.Time  `gorm:"column:created_at"`
	UpdatedAt    time.Time  `gorm:"column:updated_at"`
}
