package payment

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"log/slog"
	"time"

	errors "github.com/frahmantamala/payment-reconciler/internal"
	"github.com/frahmantamala/payment-reconciler/internal/core/datamodel/payment"
	gw "github.com/frahmantamala/payment-reconciler/internal/core/datamodel/paymentgateway"
	"github.com/frahmantamala/payment-reconciler/internal/core/datamodel/paymentmethod"
	"github.com/frahmantamala/payment-reconciler/internal/core/datamodel/webhookevent"
	"github.com/frahmantamala/payment-reconciler/internal/core/events"
	"github.com/frahmantamala/payment-reconciler/internal/lock"
	"github.com/frahmantamala/payment-reconciler/internal/paymentgateway"
	"github.com/frahmantamala/payment-reconciler/pkg/logger"
	"gorm.io/datatypes"
)

const (
	maxApplyAttempts     = 3
	maxReferenceAttempts = 3
	defaultLockTimeout   = 20 * time.Second
	defaultFailureReason = "Payment failed"
)

// RepositoryAPI persists payments. Lookups return (nil, nil) when the row
// does not exist.
type RepositoryAPI interface {
	Create(ctx context.Context, p *payment.Payment) error
	GetByReference(ctx context.Context, reference string) (*payment.Payment, error)
	GetByReferenceForMerchant(ctx context.Context, reference, merchantID string) (*payment.Payment, error)
	// TransitionStatus applies update only if the stored status still equals
	// from, returning payment.ErrStatusConflict otherwise.
	TransitionStatus(ctx context.Context, id string, from payment.Status, update payment.StatusUpdate) (*payment.Payment, error)
	SaveGatewayResponse(ctx context.Context, id string, response datatypes.JSON) error
	ListByMerchant(ctx context.Context, merchantID string, offset, limit int) ([]*payment.Payment, int64, error)
	ListStale(ctx context.Context, olderThan time.Time, limit int) ([]*payment.Payment, error)
}

type PaymentMethodRepositoryAPI interface {
	FindActiveByID(ctx context.Context, id, merchantID string) (*paymentmethod.PaymentMethod, error)
}

type WebhookEventRepositoryAPI interface {
	Record(ctx context.Context, event *webhookevent.WebhookEvent) error
}

// Gateway is the payment provider capability the reconciler depends on.
type Gateway interface {
	Provider() string
	Initialize(ctx context.Context, req *gw.InitializeRequest) (*gw.InitializeResult, error)
	Verify(ctx context.Context, reference string) (*gw.Verification, error)
	AuthenticateWebhook(body []byte, signature, sourceIP string) gw.WebhookResult
	ListBanks(ctx context.Context, country string) ([]gw.Bank, error)
	ResolveAccount(ctx context.Context, accountNumber, bankCode string) (*gw.AccountResolution, error)
}

// EventPublisher delivers lifecycle events best-effort.
type EventPublisher interface {
	Publish(ctx context.Context, event events.Event) error
}

type Deps struct {
	Payments       RepositoryAPI
	PaymentMethods PaymentMethodRepositoryAPI
	WebhookEvents  WebhookEventRepositoryAPI
	Gateway        Gateway
	Publisher      EventPublisher
	Locker         lock.Locker
	Logger         *slog.Logger
}

type Config struct {
	CallbackURL string
	Channels    []string
	LockTimeout time.Duration
}

// Service is the only component that mutates payment status.
type Service struct {
	payments      RepositoryAPI
	methods       PaymentMethodRepositoryAPI
	webhookEvents WebhookEventRepositoryAPI
	gateway       Gateway
	publisher     EventPublisher
	locker        lock.Locker
	logger        *slog.Logger
	config        Config
	now           func() time.Time
}

func NewService(deps Deps, config Config) *Service {
	if deps.Locker == nil {
		deps.Locker = lock.NewMemoryLocker()
	}
	if deps.Logger == nil {
		deps.Logger = logger.LoggerWrapper()
	}
	if config.LockTimeout <= 0 {
		config.LockTimeout = defaultLockTimeout
	}
	return &Service{
		payments:      deps.Payments,
		methods:       deps.PaymentMethods,
		webhookEvents: deps.WebhookEvents,
		gateway:       deps.Gateway,
		publisher:     deps.Publisher,
		locker:        deps.Locker,
		logger:        deps.Logger,
		config:        config,
		now:           func() time.Time { return time.Now().UTC() },
	}
}

func (s *Service) Initiate(ctx context.Context, merchantID string, req *InitiatePaymentRequest) (*InitiateResult, error) {
	req.Normalize()
	if err := req.Validate(); err != nil {
		return nil, err
	}

	method, err := s.methods.FindActiveByID(ctx, req.PaymentMethodID, merchantID)
	if err != nil {
		s.logger.Error("failed to load payment method", "error", err, "payment_method_id", req.PaymentMethodID)
		return nil, errors.NewInternalError("failed to load payment method", err)
	}
	if method == nil {
		return nil, errors.ErrPaymentMethodNotFound
	}

	var metadata datatypes.JSON
	if len(req.Metadata) > 0 {
		encoded, err := json.Marshal(req.Metadata)
		if err != nil {
			return nil, errors.NewValidationFieldError("metadata", "metadata must be a JSON object", errors.ErrCodeValidationFailed)
		}
		metadata = encoded
	}

	p := &payment.Payment{
		MerchantID:      merchantID,
		PaymentMethodID: method.ID,
		Amount:          req.Amount,
		Currency:        req.Currency,
		Status:          payment.StatusPending,
		Description:     req.Description,
		CustomerEmail:   req.CustomerEmail,
		CustomerName:    req.CustomerName,
		CustomerPhone:   req.CustomerPhone,
		Metadata:        metadata,
	}
	if err := s.createWithFreshReference(ctx, p); err != nil {
		return nil, err
	}

	log := logger.From(ctx).With("payment_reference", p.PaymentReference, "merchant_id", merchantID)
	log.Info("payment created", "amount", p.Amount.StringFixed(2), "currency", p.Currency)

	callbackURL := req.CallbackURL
	if callbackURL == "" {
		callbackURL = s.config.CallbackURL
	}
	channels := req.Channels
	if len(channels) == 0 {
		channels = s.config.Channels
	}

	gatewayMetadata := make(map[string]interface{}, len(req.Metadata)+4)
	for k, v := range req.Metadata {
		gatewayMetadata[k] = v
	}
	gatewayMetadata["merchantId"] = merchantID
	gatewayMetadata["paymentId"] = p.ID
	if p.CustomerName != nil {
		gatewayMetadata["customerName"] = *p.CustomerName
	}
	if p.CustomerPhone != nil {
		gatewayMetadata["customerPhone"] = *p.CustomerPhone
	}

	init, err := s.gateway.Initialize(ctx, &gw.InitializeRequest{
		Email:       p.CustomerEmail,
		Amount:      p.Amount,
		Currency:    p.Currency,
		Reference:   p.PaymentReference,
		CallbackURL: callbackURL,
		Metadata:    gatewayMetadata,
		Channels:    channels,
	})
	if err != nil {
		log.Error("gateway initialization failed", "error", err)
		s.failInitiation(ctx, p, failureReason(err))
		return nil, errors.NewGatewayError(gatewayReason(err), err)
	}

	if err := s.payments.SaveGatewayResponse(ctx, p.ID, datatypes.JSON(init.Raw)); err != nil {
		log.Error("failed to store gateway response", "error", err)
		return nil, errors.NewInternalError("failed to store gateway response", err)
	}
	p.GatewayResponse = datatypes.JSON(init.Raw)

	s.publish(ctx, events.NewPaymentInitiatedEvent(p))

	return &InitiateResult{
		Payment:          p,
		AuthorizationURL: init.AuthorizationURL,
		AccessCode:       init.AccessCode,
	}, nil
}

func (s *Service) createWithFreshReference(ctx context.Context, p *payment.Payment) error {
	var err error
	for attempt := 0; attempt < maxReferenceAttempts; attempt++ {
		p.PaymentReference = paymentgateway.GenerateReference()
		err = s.payments.Create(ctx, p)
		if err == nil {
			return nil
		}
		if !stderrors.Is(err, payment.ErrDuplicateReference) {
			break
		}
		s.logger.Warn("payment reference collision, regenerating", "payment_reference", p.PaymentReference)
	}
	if stderrors.Is(err, payment.ErrDuplicateReference) {
		s.logger.Error("could not allocate a unique payment reference", "attempts", maxReferenceAttempts)
		return errors.NewConflictError("could not allocate a unique payment reference, try again", errors.ErrCodeReferenceConflict)
	}
	s.logger.Error("failed to create payment", "error", err)
	return errors.NewInternalError("failed to create payment", err)
}

func (s *Service) failInitiation(ctx context.Context, p *payment.Payment, reason string) {
	now := s.now()
	updated, err := s.payments.TransitionStatus(ctx, p.ID, payment.StatusPending, payment.StatusUpdate{
		Status:        payment.StatusFailed,
		FailureReason: &reason,
		ProcessedAt:   &now,
	})
	if err != nil {
		s.logger.Error("failed to mark payment failed after gateway error",
			"error", err,
			"payment_reference", p.PaymentReference)
		return
	}
	*p = *updated
	s.publish(ctx, events.NewPaymentFailedEvent(p))
}

// ConfirmCallback reconciles a payment after the customer returns from
// checkout. The gateway is asked for the authoritative status; the callback
// parameters themselves are not trusted.
func (s *Service) ConfirmCallback(ctx context.Context, reference string) (*payment.Payment, error) {
	p, err := s.payments.GetByReference(ctx, reference)
	if err != nil {
		return nil, errors.NewInternalError("failed to load payment", err)
	}
	if p == nil {
		return nil, errors.ErrPaymentNotFound
	}
	return s.verifyAndApply(ctx, p.PaymentReference)
}

// ForceVerify re-queries the gateway on a merchant's behalf.
func (s *Service) ForceVerify(ctx context.Context, reference, merchantID string) (*payment.Payment, error) {
	p, err := s.payments.GetByReferenceForMerchant(ctx, reference, merchantID)
	if err != nil {
		return nil, errors.NewInternalError("failed to load payment", err)
	}
	if p == nil {
		return nil, errors.ErrPaymentNotFound
	}
	return s.verifyAndApply(ctx, p.PaymentReference)
}

func (s *Service) verifyAndApply(ctx context.Context, reference string) (*payment.Payment, error) {
	unlock, err := s.acquire(ctx, reference)
	if err != nil {
		return nil, err
	}
	defer unlock()

	log := logger.From(ctx).With("payment_reference", reference)

	verification, err := s.gateway.Verify(ctx, reference)
	if err != nil {
		log.Error("gateway verification failed", "error", err)
		return nil, errors.NewVerificationError(gatewayReason(err), err)
	}

	target := MapGatewayStatus(verification.Status)
	update := payment.StatusUpdate{
		Status:          target,
		GatewayResponse: datatypes.JSON(verification.Raw),
	}
	if verification.TransactionID != "" {
		txID := verification.TransactionID
		update.GatewayTransactionID = &txID
	}
	if target == payment.StatusFailed {
		reason := verification.GatewayResponse
		if reason == "" {
			reason = defaultFailureReason
		}
		update.FailureReason = &reason
	}

	p, changed, err := s.apply(ctx, reference, update)
	if err != nil {
		return nil, err
	}
	if changed {
		s.checkAmount(log, p, verification.Amount.StringFixed(2), verification.Currency)
		s.publishStatusChange(ctx, p)
	}
	return p, nil
}

// ConfirmWebhook authenticates and applies a gateway webhook. Deliveries
// for unknown references or unhandled events are acknowledged without any
// change so the gateway stops retrying them.
func (s *Service) ConfirmWebhook(ctx context.Context, delivery WebhookDelivery) (*WebhookOutcome, error) {
	result := s.gateway.AuthenticateWebhook(delivery.Body, delivery.Signature, delivery.SourceIP)
	if !result.IsValid {
		logger.From(ctx).Warn("rejected webhook delivery", "source_ip", delivery.SourceIP)
		return nil, errors.NewInvalidSignatureError()
	}

	outcome := &WebhookOutcome{Event: result.Event}
	record := &webhookevent.WebhookEvent{
		Provider:   s.gateway.Provider(),
		EventType:  result.Event,
		Payload:    datatypes.JSON(delivery.Body),
		Signature:  delivery.Signature,
		ReceivedAt: s.now(),
	}
	if delivery.SourceIP != "" {
		ip := delivery.SourceIP
		record.SourceIP = &ip
	}

	err := s.handleWebhook(ctx, result, outcome)
	record.Outcome = webhookevent.Outcome(outcome.Outcome)
	if outcome.Reference != "" {
		ref := outcome.Reference
		record.Reference = &ref
	}
	if err != nil {
		msg := err.Error()
		record.Outcome = webhookevent.OutcomeFailed
		record.ProcessingError = &msg
	} else {
		processedAt := s.now()
		record.ProcessedAt = &processedAt
	}
	s.recordWebhook(ctx, record)

	if err != nil {
		return nil, err
	}
	return outcome, nil
}

func (s *Service) handleWebhook(ctx context.Context, result gw.WebhookResult, outcome *WebhookOutcome) error {
	log := logger.From(ctx).With("event", result.Event)

	var target payment.Status
	switch result.Event {
	case gw.EventChargeSuccess:
		target = payment.StatusCompleted
	case gw.EventChargeFailed:
		target = payment.StatusFailed
	default:
		log.Info("ignoring unhandled webhook event")
		outcome.Outcome = string(webhookevent.OutcomeIgnored)
		return nil
	}

	var data gw.ChargeData
	if err := json.Unmarshal(result.Data, &data); err != nil || data.Reference == "" {
		log.Warn("webhook data has no usable reference", "error", err)
		outcome.Outcome = string(webhookevent.OutcomeIgnored)
		return nil
	}
	outcome.Reference = data.Reference
	log = log.With("payment_reference", data.Reference)

	existing, err := s.payments.GetByReference(ctx, data.Reference)
	if err != nil {
		return errors.NewInternalError("failed to load payment", err)
	}
	if existing == nil {
		log.Warn("webhook for unknown payment reference")
		outcome.Outcome = string(webhookevent.OutcomeNotFound)
		return nil
	}

	// No reference lock here: the webhook already carries the final status
	// and apply's compare-and-swap settles races with a concurrent verify.
	update := payment.StatusUpdate{
		Status:          target,
		GatewayResponse: datatypes.JSON(result.Data),
	}
	if txID := data.ID.String(); txID != "" {
		update.GatewayTransactionID = &txID
	}
	if target == payment.StatusFailed {
		reason := data.GatewayResponse
		if reason == "" {
			reason = defaultFailureReason
		}
		update.FailureReason = &reason
	}

	p, changed, err := s.apply(ctx, data.Reference, update)
	if err != nil {
		return err
	}
	outcome.Payment = p
	if !changed {
		outcome.Outcome = string(webhookevent.OutcomeUnchanged)
		return nil
	}

	outcome.Outcome = string(webhookevent.OutcomeUpdated)
	s.checkAmount(log, p, paymentgateway.FromMinorUnits(data.Amount).StringFixed(2), data.Currency)
	s.publishStatusChange(ctx, p)
	return nil
}

// apply moves the payment identified by reference to update.Status if the
// state machine allows it. Concurrent writers are detected by the store's
// compare-and-swap; the payment is then reloaded and re-evaluated.
func (s *Service) apply(ctx context.Context, reference string, update payment.StatusUpdate) (*payment.Payment, bool, error) {
	log := logger.From(ctx).With("payment_reference", reference)

	for attempt := 0; attempt < maxApplyAttempts; attempt++ {
		current, err := s.payments.GetByReference(ctx, reference)
		if err != nil {
			return nil, false, errors.NewInternalError("failed to load payment", err)
		}
		if current == nil {
			return nil, false, errors.ErrPaymentNotFound
		}

		if current.Status == update.Status {
			if len(update.GatewayResponse) > 0 {
				if err := s.payments.SaveGatewayResponse(ctx, current.ID, update.GatewayResponse); err != nil {
					return nil, false, errors.NewInternalError("failed to store gateway response", err)
				}
				current.GatewayResponse = update.GatewayResponse
			}
			return current, false, nil
		}

		if !CanTransition(current.Status, update.Status) {
			log.Info("ignoring disallowed status transition",
				"from", current.Status,
				"to", update.Status)
			return current, false, nil
		}

		next := update
		if next.Status.Stamped() {
			now := s.now()
			next.ProcessedAt = &now
		}

		updated, err := s.payments.TransitionStatus(ctx, current.ID, current.Status, next)
		if stderrors.Is(err, payment.ErrStatusConflict) {
			log.Warn("concurrent status change detected, retrying", "attempt", attempt+1)
			continue
		}
		if err != nil {
			return nil, false, errors.NewInternalError("failed to update payment status", err)
		}

		log.Info("payment status updated", "from", current.Status, "to", updated.Status)
		return updated, true, nil
	}

	return nil, false, errors.NewInternalError("failed to update payment status", payment.ErrStatusConflict)
}

func (s *Service) GetPayment(ctx context.Context, reference, merchantID string) (*payment.Payment, error) {
	p, err := s.payments.GetByReferenceForMerchant(ctx, reference, merchantID)
	if err != nil {
		return nil, errors.NewInternalError("failed to load payment", err)
	}
	if p == nil {
		return nil, errors.ErrPaymentNotFound
	}
	return p, nil
}

func (s *Service) ListPayments(ctx context.Context, merchantID string, query ListPaymentsQuery) (*PaymentPage, error) {
	if err := query.Validate(); err != nil {
		return nil, err
	}

	items, total, err := s.payments.ListByMerchant(ctx, merchantID, query.Offset(), query.Limit)
	if err != nil {
		s.logger.Error("failed to list payments", "error", err, "merchant_id", merchantID)
		return nil, errors.NewInternalError("failed to list payments", err)
	}

	return &PaymentPage{Items: items, Total: total, Page: query.Page, Limit: query.Limit}, nil
}

// StalePayments returns non-terminal payments last touched before olderThan.
func (s *Service) StalePayments(ctx context.Context, olderThan time.Time, limit int) ([]*payment.Payment, error) {
	return s.payments.ListStale(ctx, olderThan, limit)
}

func (s *Service) ListBanks(ctx context.Context, country string) ([]gw.Bank, error) {
	banks, err := s.gateway.ListBanks(ctx, country)
	if err != nil {
		return nil, errors.NewGatewayError(gatewayReason(err), err)
	}
	return banks, nil
}

func (s *Service) ResolveAccount(ctx context.Context, query ResolveAccountQuery) (*gw.AccountResolution, error) {
	if err := query.Validate(); err != nil {
		return nil, err
	}
	resolution, err := s.gateway.ResolveAccount(ctx, query.AccountNumber, query.BankCode)
	if err != nil {
		return nil, errors.NewGatewayError(gatewayReason(err), err)
	}
	return resolution, nil
}

func (s *Service) acquire(ctx context.Context, reference string) (lock.Unlock, error) {
	lockCtx, cancel := context.WithTimeout(ctx, s.config.LockTimeout)
	defer cancel()

	unlock, err := s.locker.Acquire(lockCtx, reference)
	if err != nil {
		s.logger.Error("failed to acquire payment lock", "error", err, "payment_reference", reference)
		return nil, errors.NewInternalError("payment is busy, try again", err)
	}
	return unlock, nil
}

func (s *Service) publishStatusChange(ctx context.Context, p *payment.Payment) {
	switch p.Status {
	case payment.StatusCompleted:
		s.publish(ctx, events.NewPaymentCompletedEvent(p))
	case payment.StatusFailed:
		s.publish(ctx, events.NewPaymentFailedEvent(p))
	}
}

func (s *Service) publish(ctx context.Context, event *events.PaymentEvent) {
	if s.publisher == nil {
		return
	}
	event.WithTraceID(logger.TraceID(ctx))
	if err := s.publisher.Publish(ctx, event); err != nil {
		s.logger.Warn("failed to publish payment event",
			"error", err,
			"event_type", event.EventType(),
			"payment_reference", event.PaymentReference)
	}
}

func (s *Service) recordWebhook(ctx context.Context, record *webhookevent.WebhookEvent) {
	if s.webhookEvents == nil {
		return
	}
	if err := s.webhookEvents.Record(ctx, record); err != nil {
		s.logger.Error("failed to record webhook event", "error", err, "event", record.EventType)
	}
}

// checkAmount flags a settled amount that differs from what was requested.
// The status still follows the gateway.
func (s *Service) checkAmount(log *slog.Logger, p *payment.Payment, amount, currency string) {
	if p.Status != payment.StatusCompleted {
		return
	}
	expected := p.Amount.StringFixed(2)
	if amount != expected || (currency != "" && currency != p.Currency) {
		log.Warn("settled amount differs from payment",
			"expected_amount", expected,
			"expected_currency", p.Currency,
			"settled_amount", amount,
			"settled_currency", currency)
	}
}

// gatewayReason is the fixed text returned to callers in error details.
func gatewayReason(err error) string {
	var gwErr *paymentgateway.Error
	if stderrors.As(err, &gwErr) {
		return gwErr.Summary()
	}
	return "gateway unavailable"
}

// failureReason is stored on the payment and may carry the gateway's message.
func failureReason(err error) string {
	var gwErr *paymentgateway.Error
	if stderrors.As(err, &gwErr) {
		return gwErr.Reason()
	}
	return "gateway unavailable"
}
