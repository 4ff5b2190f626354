package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/frahmantamala/payment-reconciler/internal/core/datamodel/paymentmethod"
	paymentpkg "github.com/frahmantamala/payment-reconciler/internal/payment"
	paymentmethodpkg "github.com/frahmantamala/payment-reconciler/internal/paymentmethod"
	"gorm.io/gorm"
)

var (
	_ paymentpkg.PaymentMethodRepositoryAPI = (*PaymentMethodRepository)(nil)
	_ paymentmethodpkg.RepositoryAPI        = (*PaymentMethodRepository)(nil)
)

type PaymentMethodRepository struct {
	db *gorm.DB
}

func NewPaymentMethodRepository(db *gorm.DB) *PaymentMethodRepository {
	return &PaymentMethodRepository{db: db}
}

// FindActiveByID returns nil when the method does not exist, is inactive or
// belongs to another merchant.
func (r *PaymentMethodRepository) FindActiveByID(ctx context.Context, id, merchantID string) (*paymentmethod.PaymentMethod, error) {
	return r.first(ctx, r.db.Where("id = ? AND merchant_id = ? AND is_active = ?", id, merchantID, true))
}

func (r *PaymentMethodRepository) GetByIDForMerchant(ctx context.Context, id, merchantID string) (*paymentmethod.PaymentMethod, error) {
	return r.first(ctx, r.db.Where("id = ? AND merchant_id = ?", id, merchantID))
}

func (r *PaymentMethodRepository) first(ctx context.Context, query *gorm.DB) (*paymentmethod.PaymentMethod, error) {
	var m paymentmethod.PaymentMethod
	err := query.WithContext(ctx).First(&m).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &m, nil
}

func (r *PaymentMethodRepository) ListActiveByMerchant(ctx context.Context, merchantID string) ([]*paymentmethod.PaymentMethod, error) {
	var methods []*paymentmethod.PaymentMethod
	err := r.db.WithContext(ctx).
		Where("merchant_id = ? AND is_active = ?", merchantID, true).
		Order("created_at DESC").
		Find(&methods).Error
	return methods, err
}

func (r *PaymentMethodRepository) Create(ctx context.Context, m *paymentmethod.PaymentMethod) error {
	return r.db.WithContext(ctx).Create(m).Error
}

// Update writes the merchant-editable columns only.
func (r *PaymentMethodRepository) Update(ctx context.Context, m *paymentmethod.PaymentMethod) error {
	m.UpdatedAt = time.Now().UTC()
	return r.db.WithContext(ctx).
		Model(&paymentmethod.PaymentMethod{}).
		Where("id = ? AND merchant_id = ?", m.ID, m.MerchantID).
		Updates(map[string]interface{}{
			"holder_name": m.HolderName,
			"metadata":    m.Metadata,
			"is_active":   m.IsActive,
			"updated_at":  m.UpdatedAt,
		}).Error
}

// Deactivate reports false when no method with id belongs to the merchant.
func (r *PaymentMethodRepository) Deactivate(ctx context.Context, id, merchantID string) (bool, error) {
	result := r.db.WithContext(ctx).
		Model(&paymentmethod.PaymentMethod{}).
		Where("id = ? AND merchant_id = ?", id, merchantID).
		Updates(map[string]interface{}{
			"is_active":  false,
			"updated_at": time.Now().UTC(),
		})
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}
