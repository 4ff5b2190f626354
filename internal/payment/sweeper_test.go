package payment_test

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/frahmantamala/payment-reconciler/internal/core/datamodel/payment"
	paymentpkg "github.com/frahmantamala/payment-reconciler/internal/payment"
)

type stubVerifier struct {
	mu       sync.Mutex
	stale    []*payment.Payment
	verified map[string]int
	release  chan struct{}
}

func (s *stubVerifier) StalePayments(_ context.Context, _ time.Time, _ int) ([]*payment.Payment, error) {
	return s.stale, nil
}

func (s *stubVerifier) ForceVerify(ctx context.Context, reference, _ string) (*payment.Payment, error) {
	s.mu.Lock()
	s.verified[reference]++
	s.mu.Unlock()

	if s.release != nil {
		select {
		case <-s.release:
		case <-ctx.Done():
		}
	}
	return &payment.Payment{PaymentReference: reference, Status: payment.StatusCompleted}, nil
}

func (s *stubVerifier) count(reference string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.verified[reference]
}

var _ = Describe("Sweeper", func() {
	var (
		verifier *stubVerifier
		sweeper  *paymentpkg.Sweeper
	)

	BeforeEach(func() {
		verifier = &stubVerifier{
			stale: []*payment.Payment{
				{PaymentReference: "PAY_1_STALEAAAA", MerchantID: testMerchant},
				{PaymentReference: "PAY_1_STALEBBBB", MerchantID: testMerchant},
			},
			verified: make(map[string]int),
		}
	})

	AfterEach(func() {
		if verifier.release != nil {
			close(verifier.release)
		}
		sweeper.Shutdown()
	})

	newSweeper := func() *paymentpkg.Sweeper {
		return paymentpkg.NewSweeper(verifier, paymentpkg.SweeperConfig{
			Interval:   time.Hour,
			StaleAfter: time.Minute,
			MaxWorkers: 2,
		}, slog.New(slog.NewTextHandler(io.Discard, nil)))
	}

	It("force-verifies stale payments on start", func() {
		sweeper = newSweeper()
		sweeper.Start()

		Eventually(func() int { return verifier.count("PAY_1_STALEAAAA") }).Should(Equal(1))
		Eventually(func() int { return verifier.count("PAY_1_STALEBBBB") }).Should(Equal(1))
	})

	It("does not enqueue a payment that is still being verified", func() {
		verifier.stale = verifier.stale[:1]
		verifier.release = make(chan struct{})
		sweeper = newSweeper()
		sweeper.Start()

		Eventually(func() int { return verifier.count("PAY_1_STALEAAAA") }).Should(Equal(1))

		enqueued, err := sweeper.SweepOnce(context.Background())
		Expect(err).NotTo(HaveOccurred())
		Expect(enqueued).To(Equal(0))
		Consistently(func() int { return verifier.count("PAY_1_STALEAAAA") }, 100*time.Millisecond).Should(Equal(1))
	})

	It("drains a single sweep without the periodic loop", func() {
		sweeper = newSweeper()
		sweeper.StartWorkers()

		enqueued, err := sweeper.SweepOnce(context.Background())
		Expect(err).NotTo(HaveOccurred())
		Expect(enqueued).To(Equal(2))

		sweeper.Drain()
		Expect(verifier.count("PAY_1_STALEAAAA")).To(Equal(1))
		Expect(verifier.count("PAY_1_STALEBBBB")).To(Equal(1))
	})
})
