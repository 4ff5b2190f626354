package postgres

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/frahmantamala/payment-reconciler/internal/core/datamodel/merchant"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
)

const merchantColumns = `id, name, email, password_hash, merchant_code, webhook_url, is_active, created_at, updated_at`

type MerchantRepository struct {
	db *sqlx.DB
}

func NewMerchantRepository(db *sqlx.DB) *MerchantRepository {
	return &MerchantRepository{db: db}
}

func (r *MerchantRepository) GetByEmail(ctx context.Context, email string) (*merchant.Merchant, error) {
	return r.get(ctx, `SELECT `+merchantColumns+` FROM merchants WHERE email = ?`, email)
}

func (r *MerchantRepository) GetByID(ctx context.Context, id string) (*merchant.Merchant, error) {
	return r.get(ctx, `SELECT `+merchantColumns+` FROM merchants WHERE id = ?`, id)
}

func (r *MerchantRepository) get(ctx context.Context, query string, arg interface{}) (*merchant.Merchant, error) {
	var m merchant.Merchant
	err := r.db.GetContext(ctx, &m, r.db.Rebind(query), arg)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &m, nil
}

// Create inserts the merchant, or returns the existing row when the email is
// already registered.
func (r *MerchantRepository) Create(ctx context.Context, m *merchant.Merchant) (*merchant.Merchant, error) {
	existing, err := r.GetByEmail(ctx, m.Email)
	if err != nil || existing != nil {
		return existing, err
	}

	if m.ID == "" {
		m.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if m.CreatedAt.IsZero() {
		m.CreatedAt = now
	}
	m.UpdatedAt = now

	_, err = r.db.NamedExecContext(ctx, `
		INSERT INTO merchants (id, name, email, password_hash, merchant_code, webhook_url, is_active, created_at, updated_at)
		VALUES (:id, :name, :email, :password_hash, :merchant_code, :webhook_url, :is_active, :created_at, :updated_at)`, m)
	if err != nil {
		return nil, err
	}
	return m, nil
}
