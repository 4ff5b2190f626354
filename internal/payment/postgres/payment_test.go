package postgres

import (
	"context"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/frahmantamala/payment-reconciler/internal/core/datamodel/payment"
	"github.com/frahmantamala/payment-reconciler/internal/core/datamodel/paymentmethod"
	"github.com/frahmantamala/payment-reconciler/internal/core/datamodel/webhookevent"
	paymentpkg "github.com/frahmantamala/payment-reconciler/internal/payment"
)

const (
	merchantA = "0b7c0f39-5a43-4c3e-9d2b-4d1b6c7f2a11"
	merchantB = "6f1e2d3c-4b5a-4978-8a6b-5c4d3e2f1a00"
	methodID  = "9d8c7b6a-5f4e-4d3c-8b2a-1f0e9d8c7b6a"
)

func newPayment(reference, merchantID string) *payment.Payment {
	return &payment.Payment{
		PaymentReference: reference,
		MerchantID:       merchantID,
		PaymentMethodID:  methodID,
		Amount:           decimal.RequireFromString("5000.00"),
		Currency:         "NGN",
		CustomerEmail:    "ada@example.com",
	}
}

var _ = Describe("PaymentRepository", func() {
	var (
		ctx  context.Context
		db   *gorm.DB
		repo paymentpkg.RepositoryAPI
	)

	BeforeEach(func() {
		ctx = context.Background()
		db = openTestDB()
		repo = NewPaymentRepository(db)
	})

	AfterEach(func() {
		closeTestDB(db)
	})

	Describe("Create", func() {
		It("assigns an id and defaults the status to pending", func() {
			p := newPayment("PAY_1_AAAAAAAAA", merchantA)
			Expect(repo.Create(ctx, p)).To(Succeed())
			Expect(p.ID).NotTo(BeEmpty())
			Expect(p.Status).To(Equal(payment.StatusPending))
		})

		It("reports a reused reference as a duplicate", func() {
			Expect(repo.Create(ctx, newPayment("PAY_1_DUPLICATE", merchantA))).To(Succeed())

			err := repo.Create(ctx, newPayment("PAY_1_DUPLICATE", merchantB))
			Expect(err).To(MatchError(payment.ErrDuplicateReference))
		})
	})

	Describe("lookups", func() {
		var created *payment.Payment

		BeforeEach(func() {
			created = newPayment("PAY_2_LOOKUP", merchantA)
			Expect(repo.Create(ctx, created)).To(Succeed())
		})

		It("finds a payment by reference", func() {
			found, err := repo.GetByReference(ctx, "PAY_2_LOOKUP")
			Expect(err).NotTo(HaveOccurred())
			Expect(found).NotTo(BeNil())
			Expect(found.ID).To(Equal(created.ID))
			Expect(found.Amount.StringFixed(2)).To(Equal("5000.00"))
		})

		It("returns nil for an unknown reference", func() {
			found, err := repo.GetByReference(ctx, "PAY_2_MISSING")
			Expect(err).NotTo(HaveOccurred())
			Expect(found).To(BeNil())
		})

		It("scopes merchant lookups to the owning merchant", func() {
			found, err := repo.GetByReferenceForMerchant(ctx, "PAY_2_LOOKUP", merchantB)
			Expect(err).NotTo(HaveOccurred())
			Expect(found).To(BeNil())

			found, err = repo.GetByReferenceForMerchant(ctx, "PAY_2_LOOKUP", merchantA)
			Expect(err).NotTo(HaveOccurred())
			Expect(found).NotTo(BeNil())
		})
	})

	Describe("TransitionStatus", func() {
		var created *payment.Payment

		BeforeEach(func() {
			created = newPayment("PAY_3_TRANSITION", merchantA)
			Expect(repo.Create(ctx, created)).To(Succeed())
		})

		It("applies the update when the expected status matches", func() {
			txID := "4099260516"
			processedAt := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

			updated, err := repo.TransitionStatus(ctx, created.ID, payment.StatusPending, payment.StatusUpdate{
				Status:               payment.StatusCompleted,
				GatewayTransactionID: &txID,
				GatewayResponse:      datatypes.JSON(`{"status":"success"}`),
				ProcessedAt:          &processedAt,
			})
			Expect(err).NotTo(HaveOccurred())
			Expect(updated.Status).To(Equal(payment.StatusCompleted))
			Expect(*updated.GatewayTransactionID).To(Equal(txID))
			Expect(updated.ProcessedAt).NotTo(BeNil())
			Expect(updated.ProcessedAt.Equal(processedAt)).To(BeTrue())
			Expect(string(updated.GatewayResponse)).To(MatchJSON(`{"status":"success"}`))
		})

		It("returns a conflict when the stored status has moved on", func() {
			_, err := repo.TransitionStatus(ctx, created.ID, payment.StatusProcessing, payment.StatusUpdate{
				Status: payment.StatusCompleted,
			})
			Expect(err).To(MatchError(payment.ErrStatusConflict))

			found, err := repo.GetByReference(ctx, created.PaymentReference)
			Expect(err).NotTo(HaveOccurred())
			Expect(found.Status).To(Equal(payment.StatusPending))
		})

		It("never overwrites an existing processed_at", func() {
			first := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
			second := first.Add(time.Hour)

			_, err := repo.TransitionStatus(ctx, created.ID, payment.StatusPending, payment.StatusUpdate{
				Status:      payment.StatusCompleted,
				ProcessedAt: &first,
			})
			Expect(err).NotTo(HaveOccurred())

			updated, err := repo.TransitionStatus(ctx, created.ID, payment.StatusCompleted, payment.StatusUpdate{
				Status:      payment.StatusRefunded,
				ProcessedAt: &second,
			})
			Expect(err).NotTo(HaveOccurred())
			Expect(updated.Status).To(Equal(payment.StatusRefunded))
			Expect(updated.ProcessedAt.Equal(first)).To(BeTrue())
		})
	})

	Describe("SaveGatewayResponse", func() {
		It("stores the raw response without touching the status", func() {
			p := newPayment("PAY_4_RESPONSE", merchantA)
			Expect(repo.Create(ctx, p)).To(Succeed())

			Expect(repo.SaveGatewayResponse(ctx, p.ID, datatypes.JSON(`{"access_code":"abc"}`))).To(Succeed())

			found, err := repo.GetByReference(ctx, p.PaymentReference)
			Expect(err).NotTo(HaveOccurred())
			Expect(found.Status).To(Equal(payment.StatusPending))
			Expect(string(found.GatewayResponse)).To(MatchJSON(`{"access_code":"abc"}`))
		})
	})

	Describe("ListByMerchant", func() {
		BeforeEach(func() {
			for _, ref := range []string{"PAY_5_A", "PAY_5_B", "PAY_5_C"} {
				Expect(repo.Create(ctx, newPayment(ref, merchantA))).To(Succeed())
			}
			Expect(repo.Create(ctx, newPayment("PAY_5_OTHER", merchantB))).To(Succeed())
		})

		It("pages through the merchant's payments only", func() {
			items, total, err := repo.ListByMerchant(ctx, merchantA, 0, 2)
			Expect(err).NotTo(HaveOccurred())
			Expect(total).To(Equal(int64(3)))
			Expect(items).To(HaveLen(2))

			items, _, err = repo.ListByMerchant(ctx, merchantA, 2, 2)
			Expect(err).NotTo(HaveOccurred())
			Expect(items).To(HaveLen(1))
			Expect(items[0].MerchantID).To(Equal(merchantA))
		})
	})

	Describe("ListStale", func() {
		It("returns only non-terminal payments older than the cutoff", func() {
			old := time.Now().UTC().Add(-2 * time.Hour)

			stale := newPayment("PAY_6_STALE", merchantA)
			Expect(repo.Create(ctx, stale)).To(Succeed())
			done := newPayment("PAY_6_DONE", merchantA)
			done.Status = payment.StatusCompleted
			Expect(repo.Create(ctx, done)).To(Succeed())
			Expect(repo.Create(ctx, newPayment("PAY_6_FRESH", merchantA))).To(Succeed())

			Expect(db.Model(&payment.Payment{}).
				Where("payment_reference IN ?", []string{"PAY_6_STALE", "PAY_6_DONE"}).
				UpdateColumn("updated_at", old).Error).To(Succeed())

			items, err := repo.ListStale(ctx, time.Now().UTC().Add(-time.Hour), 10)
			Expect(err).NotTo(HaveOccurred())
			Expect(items).To(HaveLen(1))
			Expect(items[0].PaymentReference).To(Equal("PAY_6_STALE"))
		})
	})
})

var _ = Describe("PaymentMethodRepository", func() {
	var (
		ctx  context.Context
		db   *gorm.DB
		repo *PaymentMethodRepository
	)

	BeforeEach(func() {
		ctx = context.Background()
		db = openTestDB()
		repo = NewPaymentMethodRepository(db)
	})

	AfterEach(func() {
		closeTestDB(db)
	})

	It("finds active methods owned by the merchant", func() {
		m := &paymentmethod.PaymentMethod{
			MerchantID:   merchantA,
			Type:         paymentmethod.TypeCreditCard,
			ProviderName: "paystack",
			IsActive:     true,
		}
		Expect(repo.Create(ctx, m)).To(Succeed())

		found, err := repo.FindActiveByID(ctx, m.ID, merchantA)
		Expect(err).NotTo(HaveOccurred())
		Expect(found).NotTo(BeNil())
		Expect(found.ProviderName).To(Equal("paystack"))

		found, err = repo.FindActiveByID(ctx, m.ID, merchantB)
		Expect(err).NotTo(HaveOccurred())
		Expect(found).To(BeNil())
	})

	It("hides inactive methods", func() {
		m := &paymentmethod.PaymentMethod{
			MerchantID:   merchantA,
			Type:         paymentmethod.TypeBankTransfer,
			ProviderName: "paystack",
			IsActive:     false,
		}
		Expect(repo.Create(ctx, m)).To(Succeed())

		found, err := repo.FindActiveByID(ctx, m.ID, merchantA)
		Expect(err).NotTo(HaveOccurred())
		Expect(found).To(BeNil())

		found, err = repo.GetByIDForMerchant(ctx, m.ID, merchantA)
		Expect(err).NotTo(HaveOccurred())
		Expect(found).NotTo(BeNil())
		Expect(found.IsActive).To(BeFalse())
	})

	It("lists only the merchant's active methods, newest first", func() {
		older := &paymentmethod.PaymentMethod{MerchantID: merchantA, Type: paymentmethod.TypeCreditCard, ProviderName: "visa", IsActive: true, CreatedAt: time.Now().Add(-time.Hour)}
		newer := &paymentmethod.PaymentMethod{MerchantID: merchantA, Type: paymentmethod.TypeDebitCard, ProviderName: "verve", IsActive: true, CreatedAt: time.Now()}
		inactive := &paymentmethod.PaymentMethod{MerchantID: merchantA, Type: paymentmethod.TypeBankTransfer, ProviderName: "gtbank", IsActive: false}
		foreign := &paymentmethod.PaymentMethod{MerchantID: merchantB, Type: paymentmethod.TypeCreditCard, ProviderName: "visa", IsActive: true}
		for _, m := range []*paymentmethod.PaymentMethod{older, newer, inactive, foreign} {
			Expect(repo.Create(ctx, m)).To(Succeed())
		}

		methods, err := repo.ListActiveByMerchant(ctx, merchantA)
		Expect(err).NotTo(HaveOccurred())
		Expect(methods).To(HaveLen(2))
		Expect(methods[0].ID).To(Equal(newer.ID))
		Expect(methods[1].ID).To(Equal(older.ID))
	})

	It("updates the editable columns", func() {
		m := &paymentmethod.PaymentMethod{MerchantID: merchantA, Type: paymentmethod.TypeCreditCard, ProviderName: "visa", IsActive: true}
		Expect(repo.Create(ctx, m)).To(Succeed())

		holder := "Ada Lovelace"
		m.HolderName = &holder
		m.Metadata = datatypes.JSON(`{"brand":"Visa"}`)
		m.IsActive = false
		Expect(repo.Update(ctx, m)).To(Succeed())

		found, err := repo.GetByIDForMerchant(ctx, m.ID, merchantA)
		Expect(err).NotTo(HaveOccurred())
		Expect(*found.HolderName).To(Equal("Ada Lovelace"))
		Expect(string(found.Metadata)).To(MatchJSON(`{"brand":"Visa"}`))
		Expect(found.IsActive).To(BeFalse())
		Expect(found.ProviderName).To(Equal("visa"))
	})

	It("deactivates only the merchant's own method", func() {
		m := &paymentmethod.PaymentMethod{MerchantID: merchantA, Type: paymentmethod.TypeCreditCard, ProviderName: "visa", IsActive: true}
		Expect(repo.Create(ctx, m)).To(Succeed())

		found, err := repo.Deactivate(ctx, m.ID, merchantB)
		Expect(err).NotTo(HaveOccurred())
		Expect(found).To(BeFalse())

		found, err = repo.Deactivate(ctx, m.ID, merchantA)
		Expect(err).NotTo(HaveOccurred())
		Expect(found).To(BeTrue())

		active, err := repo.FindActiveByID(ctx, m.ID, merchantA)
		Expect(err).NotTo(HaveOccurred())
		Expect(active).To(BeNil())
	})
})

var _ = Describe("WebhookEventRepository", func() {
	It("records a delivery", func() {
		db := openTestDB()
		defer closeTestDB(db)

		ref := "PAY_7_HOOK"
		event := &webhookevent.WebhookEvent{
			Provider:   "paystack",
			EventType:  "charge.success",
			Reference:  &ref,
			Payload:    datatypes.JSON(`{"event":"charge.success"}`),
			Signature:  "abc123",
			Outcome:    webhookevent.OutcomeUpdated,
			ReceivedAt: time.Now().UTC(),
		}
		Expect(NewWebhookEventRepository(db).Record(context.Background(), event)).To(Succeed())
		Expect(event.ID).NotTo(BeEmpty())

		var count int64
		Expect(db.Model(&webhookevent.WebhookEvent{}).Where("reference = ?", ref).Count(&count).Error).To(Succeed())
		Expect(count).To(Equal(int64(1)))
	})
})
