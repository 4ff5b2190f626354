package lock_test

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/frahmantamala/payment-reconciler/internal/lock"
)

var _ = Describe("MemoryLocker", func() {
	var locker *lock.MemoryLocker

	BeforeEach(func() {
		locker = lock.NewMemoryLocker()
	})

	It("serializes holders of the same key", func() {
		var (
			active  int32
			maxSeen int32
			wg      sync.WaitGroup
		)

		for i := 0; i < 8; i++ {
			wg.Add(1)
			go func() {
				defer GinkgoRecover()
				defer wg.Done()

				unlock, err := locker.Acquire(context.Background(), "PAY_1")
				Expect(err).NotTo(HaveOccurred())
				n := atomic.AddInt32(&active, 1)
				for {
					seen := atomic.LoadInt32(&maxSeen)
					if n <= seen || atomic.CompareAndSwapInt32(&maxSeen, seen, n) {
						break
					}
				}
				time.Sleep(2 * time.Millisecond)
				atomic.AddInt32(&active, -1)
				unlock()
			}()
		}
		wg.Wait()

		Expect(maxSeen).To(Equal(int32(1)))
		Expect(locker.Size()).To(BeZero())
	})

	It("does not block different keys", func() {
		unlockA, err := locker.Acquire(context.Background(), "PAY_A")
		Expect(err).NotTo(HaveOccurred())
		defer unlockA()

		ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
		defer cancel()
		unlockB, err := locker.Acquire(ctx, "PAY_B")
		Expect(err).NotTo(HaveOccurred())
		unlockB()
	})

	It("gives up when the context ends while waiting", func() {
		unlock, err := locker.Acquire(context.Background(), "PAY_1")
		Expect(err).NotTo(HaveOccurred())

		ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
		defer cancel()
		_, err = locker.Acquire(ctx, "PAY_1")
		Expect(err).To(MatchError(lock.ErrNotAcquired))

		unlock()
		unlock()
		Expect(locker.Size()).To(BeZero())
	})
})
