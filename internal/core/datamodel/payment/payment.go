package payment

import (
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type Status string

const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
	StatusCancelled  Status = "cancelled"
	StatusRefunded   Status = "refunded"
)

// IsTerminal reports whether the gateway can no longer move the payment.
// Refunded is reachable from completed only through a refund flow.
func (s Status) IsTerminal() bool {
	switch s {
	case StatusCompleted, StatusFailed, StatusCancelled, StatusRefunded:
		return true
	}
	return false
}

// Stamped reports whether entering s records processed_at.
func (s Status) Stamped() bool {
	return s == StatusCompleted || s == StatusFailed
}

var SupportedCurrencies = []string{"NGN", "USD", "GHS", "ZAR", "KES"}

const DefaultCurrency = "NGN"

// ErrStatusConflict is returned by a compare-and-swap status update when the
// stored status no longer matches the expected one.
var ErrStatusConflict = errors.New("payment status changed concurrently")

// ErrDuplicateReference is returned when a payment reference is already taken.
var ErrDuplicateReference = errors.New("payment reference already exists")

type Payment struct {
	ID                   string          `gorm:"primaryKey;type:uuid"`
	PaymentReference     string          `gorm:"column:payment_reference;not null;uniqueIndex"`
	MerchantID           string          `gorm:"column:merchant_id;not null;index"`
	PaymentMethodID      string          `gorm:"column:payment_method_id;not null"`
	Amount               decimal.Decimal `gorm:"column:amount;type:decimal(12,2);not null"`
	Currency             string          `gorm:"column:currency;size:3;not null"`
	Status               Status          `gorm:"column:status;size:20;not null;index"`
	Description          *string         `gorm:"column:description"`
	CustomerEmail        string          `gorm:"column:customer_email;not null"`
	CustomerName         *string         `gorm:"column:customer_name"`
	CustomerPhone        *string         `gorm:"column:customer_phone"`
	GatewayTransactionID *string         `gorm:"column:gateway_transaction_id"`
	GatewayResponse      datatypes.JSON  `gorm:"column:gateway_response"`
	Metadata             datatypes.JSON  `gorm:"column:metadata"`
	FailureReason        *string         `gorm:"column:failure_reason"`
	ProcessedAt          *time.Time      `gorm:"column:processed_at"`
	CreatedAt            time.Time       `gorm:"column:created_at"`
	UpdatedAt            time.Time       `gorm:"column:updated_at"`
}

func (Payment) TableName() string {
	return "payments"
}

func (p *Payment) BeforeCreate(tx *gorm.DB) error {
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	if p.Status == "" {
		p.Status = StatusPending
	}
	return nil
}

// StatusUpdate carries the fields written together with a status change.
// Nil pointers leave the stored column untouched.
type StatusUpdate struct {
	Status               Status
	GatewayTransactionID *string
	GatewayResponse      datatypes.JSON
	FailureReason        *string
	ProcessedAt          *time.Time
}
