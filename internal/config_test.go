package internal_test

import (
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/frahmantamala/payment-reconciler/internal"
)

var _ = Describe("LockConfig", func() {
	gateway := internal.GatewayConfig{Timeout: 15 * time.Second}

	It("accepts the default timeouts", func() {
		cfg := internal.LoadConfigFromEnv()
		Expect(cfg.Lock.ValidateAgainst(cfg.Gateway)).To(Succeed())
	})

	It("rejects a wait timeout no longer than a gateway call", func() {
		lock := internal.LockConfig{Driver: internal.LockDriverMemory, TTL: time.Minute, WaitTimeout: 10 * time.Second}
		Expect(lock.ValidateAgainst(gateway)).To(MatchError(ContainSubstring("wait_timeout")))
	})

	It("rejects a ttl that can expire during a gateway call", func() {
		lock := internal.LockConfig{Driver: internal.LockDriverMemory, TTL: 15 * time.Second, WaitTimeout: 20 * time.Second}
		Expect(lock.ValidateAgainst(gateway)).To(MatchError(ContainSubstring("ttl")))
	})

	It("surfaces the conflict from Config.Validate", func() {
		cfg := internal.LoadConfigFromEnv()
		cfg.Lock.WaitTimeout = cfg.Gateway.Timeout
		Expect(cfg.Validate()).To(MatchError(ContainSubstring("must exceed gateway.timeout")))
	})
})
