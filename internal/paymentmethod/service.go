package paymentmethod

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/google/uuid"
	"gorm.io/datatypes"

	errors "github.com/frahmantamala/payment-reconciler/internal"
	"github.com/frahmantamala/payment-reconciler/internal/core/datamodel/paymentmethod"
)

// RepositoryAPI lookups return nil, nil when the method does not exist or
// belongs to another merchant.
type RepositoryAPI interface {
	Create(ctx context.Context, m *paymentmethod.PaymentMethod) error
	ListActiveByMerchant(ctx context.Context, merchantID string) ([]*paymentmethod.PaymentMethod, error)
	GetByIDForMerchant(ctx context.Context, id, merchantID string) (*paymentmethod.PaymentMethod, error)
	Update(ctx context.Context, m *paymentmethod.PaymentMethod) error
	Deactivate(ctx context.Context, id, merchantID string) (bool, error)
}

type Service struct {
	repo   RepositoryAPI
	logger *slog.Logger
}

func NewService(repo RepositoryAPI, logger *slog.Logger) *Service {
	return &Service{
		repo:   repo,
		logger: logger,
	}
}

func (s *Service) Create(ctx context.Context, merchantID string, req *CreatePaymentMethodRequest) (*paymentmethod.PaymentMethod, error) {
	req.Normalize()
	if err := req.Validate(); err != nil {
		return nil, err
	}

	metadata, err := encodeMetadata(req.Metadata)
	if err != nil {
		return nil, err
	}

	m := &paymentmethod.PaymentMethod{
		MerchantID:     merchantID,
		Type:           paymentmethod.Type(req.Type),
		ProviderName:   req.ProviderName,
		LastFourDigits: req.LastFourDigits,
		ExpiryMonth:    req.ExpiryMonth,
		ExpiryYear:     req.ExpiryYear,
		HolderName:     req.HolderName,
		Metadata:       metadata,
		IsActive:       true,
	}
	if err := s.repo.Create(ctx, m); err != nil {
		s.logger.Error("failed to create payment method", "error", err, "merchant_id", merchantID)
		return nil, errors.NewInternalError("failed to create payment method", err)
	}

	s.logger.Info("payment method created", "payment_method_id", m.ID, "merchant_id", merchantID, "type", m.Type)
	return m, nil
}

// List returns the merchant's active methods, newest first.
func (s *Service) List(ctx context.Context, merchantID string) ([]*paymentmethod.PaymentMethod, error) {
	methods, err := s.repo.ListActiveByMerchant(ctx, merchantID)
	if err != nil {
		s.logger.Error("failed to list payment methods", "error", err, "merchant_id", merchantID)
		return nil, errors.NewInternalError("failed to list payment methods", err)
	}
	return methods, nil
}

// Get returns the method whether or not it is active.
func (s *Service) Get(ctx context.Context, id, merchantID string) (*paymentmethod.PaymentMethod, error) {
	if err := validateID(id); err != nil {
		return nil, err
	}
	m, err := s.repo.GetByIDForMerchant(ctx, id, merchantID)
	if err != nil {
		s.logger.Error("failed to load payment method", "error", err, "payment_method_id", id)
		return nil, errors.NewInternalError("failed to load payment method", err)
	}
	if m == nil {
		return nil, errors.ErrPaymentMethodNotFound
	}
	return m, nil
}

func (s *Service) Update(ctx context.Context, id, merchantID string, req *UpdatePaymentMethodRequest) (*paymentmethod.PaymentMethod, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	m, err := s.Get(ctx, id, merchantID)
	if err != nil {
		return nil, err
	}
	if req.Empty() {
		return m, nil
	}

	if req.IsActive != nil {
		m.IsActive = *req.IsActive
	}
	if req.HolderName != nil {
		m.HolderName = req.HolderName
	}
	if req.Metadata != nil {
		metadata, err := encodeMetadata(req.Metadata)
		if err != nil {
			return nil, err
		}
		m.Metadata = metadata
	}

	if err := s.repo.Update(ctx, m); err != nil {
		s.logger.Error("failed to update payment method", "error", err, "payment_method_id", id)
		return nil, errors.NewInternalError("failed to update payment method", err)
	}

	s.logger.Info("payment method updated", "payment_method_id", id, "merchant_id", merchantID, "is_active", m.IsActive)
	return m, nil
}

// Delete deactivates the method. Payments keep referencing it, so the row
// stays.
func (s *Service) Delete(ctx context.Context, id, merchantID string) error {
	if err := validateID(id); err != nil {
		return err
	}
	found, err := s.repo.Deactivate(ctx, id, merchantID)
	if err != nil {
		s.logger.Error("failed to deactivate payment method", "error", err, "payment_method_id", id)
		return errors.NewInternalError("failed to delete payment method", err)
	}
	if !found {
		return errors.ErrPaymentMethodNotFound
	}

	s.logger.Info("payment method deactivated", "payment_method_id", id, "merchant_id", merchantID)
	return nil
}

func validateID(id string) error {
	if _, err := uuid.Parse(id); err != nil {
		return errors.NewValidationFieldError("id", "id must be a valid UUID", errors.ErrCodeInvalidID)
	}
	return nil
}

func encodeMetadata(metadata map[string]interface{}) (datatypes.JSON, error) {
	if len(metadata) == 0 {
		return nil, nil
	}
	raw, err := json.Marshal(metadata)
	if err != nil {
		return nil, errors.NewValidationFieldError("metadata", "metadata must be a JSON object", errors.ErrCodeInvalidPaymentMethod)
	}
	return datatypes.JSON(raw), nil
}
