package paymentmethod

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type Type string

const (
	TypeCreditCard    Type = "credit_card"
	TypeDebitCard     Type = "debit_card"
	TypeBankTransfer  Type = "bank_transfer"
	TypeDigitalWallet Type = "digital_wallet"
)

type PaymentMethod struct {
	ID             string         `gorm:"primaryKey;type:uuid"`
	MerchantID     string         `gorm:"column:merchant_id;not null;index"`
	Type           Type           `gorm:"column:type;size:20;not null"`
	ProviderName   string         `gorm:"column:provider_name;not null"`
	LastFourDigits *string        `gorm:"column:last_four_digits;size:4"`
	ExpiryMonth    *string        `gorm:"column:expiry_month;size:2"`
	ExpiryYear     *string        `gorm:"column:expiry_year;size:4"`
	HolderName     *string        `gorm:"column:holder_name"`
	Metadata       datatypes.JSON `gorm:"column:metadata"`
	IsActive       bool           `gorm:"column:is_active;not null"`
	CreatedAt      time.Time      `gorm:"column:created_at"`
	UpdatedAt      time.Time      `gorm:"column:updated_at"`
}

func (PaymentMethod) TableName() string {
	return "payment_methods"
}

func (m *PaymentMethod) BeforeCreate(tx *gorm.DB) error {
	if m.ID == "" {
		m.ID = uuid.NewString()
	}
	return nil
}
