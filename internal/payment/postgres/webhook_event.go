package postgres

import (
	"context"

	"github.com/frahmantamala/payment-reconciler/internal/core/datamodel/webhookevent"
	paymentpkg "github.com/frahmantamala/payment-reconciler/internal/payment"
	"gorm.io/gorm"
)

type WebhookEventRepository struct {
	db *gorm.DB
}

func NewWebhookEventRepository(db *gorm.DB) paymentpkg.WebhookEventRepositoryAPI {
	return &WebhookEventRepository{db: db}
}

func (r *WebhookEventRepository) Record(ctx context.Context, event *webhookevent.WebhookEvent) error {
	return r.db.WithContext(ctx).Create(event).Error
}
