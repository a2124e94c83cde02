package webhook

import (
	"time"

	"gorm.io/datatypes"
)

// ProviderEvent is the processed-event journal. The unique index over
// (provider, provider_event_id) is what makes redelivered events
// harmless: the second insert of the same event id is rejected.
type ProviderEvent struct {
	ID              string         `gorm:"column:id;primaryKey"`
	Provider        string         `gorm:"column:provider;uniqueIndex:idx_provider_event"`
	ProviderEventID string         `gorm:"column:provider_event_id;uniqueIndex:idx_provider_event"`
	EventType       string         `gorm:"column:event_type;index"`
	Payload         datatypes.JSON `gorm:"column:payload"`
	SignatureValid  bool           `gorm:"column:signature_valid"`
	ReceivedAt      time.Time      `gorm:"column:received_at"`
	ProcessedAt     *time.Time     `gorm:"column:processed_at"`
	ProcessingError string         `gorm:"column:processing_error"`
}
