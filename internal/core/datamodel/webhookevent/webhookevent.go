package webhookevent

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type Outcome string

const (
	OutcomeUpdated   Outcome = "updated"
	OutcomeUnchanged Outcome = "unchanged"
	OutcomeIgnored   Outcome = "ignored"
	OutcomeNotFound  Outcome = "not_found"
	OutcomeFailed    Outcome = "failed"
)

// WebhookEvent is the audit record of one authenticated gateway delivery.
type WebhookEvent struct {
	ID              string         `gorm:"primaryKey;type:uuid"`
	Provider        string         `gorm:"column:provider;size:30;not null"`
	EventType       string         `gorm:"column:event_type;size:60;not null;index"`
	Reference       *string        `gorm:"column:reference;index"`
	Payload         datatypes.JSON `gorm:"column:payload;not null"`
	Signature       string         `gorm:"column:signature;not null"`
	SourceIP        *string        `gorm:"column:source_ip"`
	Outcome         Outcome        `gorm:"column:outcome;size:20;not null"`
	ProcessingError *string        `gorm:"column:processing_error"`
	ReceivedAt      time.Time      `gorm:"column:received_at;not null"`
	ProcessedAt     *time.Time     `gorm:"column:processed_at"`
}

func (WebhookEvent) TableName() string {
	return "webhook_events"
}

func (e *WebhookEvent) BeforeCreate(tx *gorm.DB) error {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	return nil
}
