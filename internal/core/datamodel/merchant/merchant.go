package merchant

import "time"

// Merchant is read through sqlx, hence the db tags.
type Merchant struct {
	ID           string    `db:"id"`
	Name         string    `db:"name"`
	Email        string    `db:"email"`
	PasswordHash string    `db:"password_hash"`
	MerchantCode string    `db:"merchant_code"`
	WebhookURL   *string   `db:"webhook_url"`
	IsActive     bool      `db:"is_active"`
	CreatedAt    time.Time `db:"created_at"`
	UpdatedAt    time.Time `db:"updated_at"`
}
