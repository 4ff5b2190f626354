package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/frahmantamala/payment-reconciler/internal/core/datamodel/payment"
	paymentpkg "github.com/frahmantamala/payment-reconciler/internal/payment"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type PaymentRepository struct {
	db *gorm.DB
}

func NewPaymentRepository(db *gorm.DB) paymentpkg.RepositoryAPI {
	return &PaymentRepository{
		db: db,
	}
}

func (r *PaymentRepository) Create(ctx context.Context, p *payment.Payment) error {
	err := r.db.WithContext(ctx).Create(p).Error
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return payment.ErrDuplicateReference
	}
	return err
}

func (r *PaymentRepository) GetByReference(ctx context.Context, reference string) (*payment.Payment, error) {
	return r.first(ctx, r.db.Where("payment_reference = ?", reference))
}

func (r *PaymentRepository) GetByReferenceForMerchant(ctx context.Context, reference, merchantID string) (*payment.Payment, error) {
	return r.first(ctx, r.db.Where("payment_reference = ? AND merchant_id = ?", reference, merchantID))
}

func (r *PaymentRepository) first(ctx context.Context, query *gorm.DB) (*payment.Payment, error) {
	var p payment.Payment
	err := query.WithContext(ctx).First(&p).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// TransitionStatus is a compare-and-swap on status. processed_at is only
// written the first time it is set.
func (r *PaymentRepository) TransitionStatus(ctx context.Context, id string, from payment.Status, update payment.StatusUpdate) (*payment.Payment, error) {
	updates := map[string]interface{}{
		"status":     update.Status,
		"updated_at": time.Now().UTC(),
	}

	if update.GatewayTransactionID != nil {
		updates["gateway_transaction_id"] = *update.GatewayTransactionID
	}

	if len(update.GatewayResponse) > 0 {
		updates["gateway_response"] = update.GatewayResponse
	}

	if update.FailureReason != nil {
		updates["failure_reason"] = *update.FailureReason
	}

	if update.ProcessedAt != nil {
		updates["processed_at"] = gorm.Expr("COALESCE(processed_at, ?)", *update.ProcessedAt)
	}

	result := r.db.WithContext(ctx).
		Model(&payment.Payment{}).
		Where("id = ? AND status = ?", id, from).
		Updates(updates)
	if result.Error != nil {
		return nil, result.Error
	}
	if result.RowsAffected == 0 {
		return nil, payment.ErrStatusConflict
	}

	return r.first(ctx, r.db.Where("id = ?", id))
}

func (r *PaymentRepository) SaveGatewayResponse(ctx context.Context, id string, response datatypes.JSON) error {
	return r.db.WithContext(ctx).
		Model(&payment.Payment{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"gateway_response": response,
			"updated_at":       time.Now().UTC(),
		}).Error
}

func (r *PaymentRepository) ListByMerchant(ctx context.Context, merchantID string, offset, limit int) ([]*payment.Payment, int64, error) {
	var total int64
	base := r.db.WithContext(ctx).Model(&payment.Payment{}).Where("merchant_id = ?", merchantID)
	if err := base.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var payments []*payment.Payment
	err := r.db.WithContext(ctx).
		Where("merchant_id = ?", merchantID).
		Order("created_at DESC").
		Offset(offset).
		Limit(limit).
		Find(&payments).Error
	return payments, total, err
}

func (r *PaymentRepository) ListStale(ctx context.Context, olderThan time.Time, limit int) ([]*payment.Payment, error) {
	var payments []*payment.Payment
	err := r.db.WithContext(ctx).
		Where("status IN ? AND updated_at < ?", []payment.Status{payment.StatusPending, payment.StatusProcessing}, olderThan).
		Order("updated_at ASC").
		Limit(limit).
		Find(&payments).Error
	return payments, err
}
