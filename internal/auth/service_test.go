package auth_test

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"errors"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"golang.org/x/crypto/bcrypt"

	apperrors "github.com/frahmantamala/payment-reconciler/internal"
	"github.com/frahmantamala/payment-reconciler/internal/auth"
	"github.com/frahmantamala/payment-reconciler/internal/core/datamodel/merchant"
)

const (
	activeMerchantID   = "c3d4e5f6-a7b8-4c9d-8e0f-1a2b3c4d5e6f"
	inactiveMerchantID = "d4e5f6a7-b8c9-4d0e-8f1a-2b3c4d5e6f70"
)

type mockMerchantRepository struct {
	byEmail map[string]*merchant.Merchant
	err     error
}

func newMockMerchantRepository() *mockMerchantRepository {
	hash, _ := bcrypt.GenerateFromPassword([]byte("correct_password"), bcrypt.MinCost)
	return &mockMerchantRepository{
		byEmail: map[string]*merchant.Merchant{
			"shop@example.com":   {ID: activeMerchantID, Email: "shop@example.com", PasswordHash: string(hash), IsActive: true},
			"closed@example.com": {ID: inactiveMerchantID, Email: "closed@example.com", PasswordHash: string(hash), IsActive: false},
		},
	}
}

func (m *mockMerchantRepository) GetByEmail(_ context.Context, email string) (*merchant.Merchant, error) {
	if m.err != nil {
		return nil, m.err
	}
	return m.byEmail[email], nil
}

func (m *mockMerchantRepository) GetByID(_ context.Context, id string) (*merchant.Merchant, error) {
	if m.err != nil {
		return nil, m.err
	}
	for _, candidate := range m.byEmail {
		if candidate.ID == id {
			return candidate, nil
		}
	}
	return nil, nil
}

var _ = Describe("AuthService", func() {
	var (
		ctx       context.Context
		repo      *mockMerchantRepository
		generator *auth.JWTTokenGenerator
		service   *auth.Service
	)

	BeforeEach(func() {
		ctx = context.Background()
		repo = newMockMerchantRepository()
		generator = auth.NewJWTTokenGenerator(signingKey, &signingKey.PublicKey, time.Minute)
		service = auth.NewService(repo, generator, bcrypt.MinCost)
	})

	Describe("Authenticate", func() {
		It("issues a token for valid credentials", func() {
			tokens, err := service.Authenticate(ctx, auth.LoginDTO{Email: " Shop@Example.com ", Password: "correct_password"})
			Expect(err).NotTo(HaveOccurred())
			Expect(tokens.AccessToken).NotTo(BeEmpty())
			Expect(tokens.TokenType).To(Equal("Bearer"))

			claims, err := generator.ValidateToken(tokens.AccessToken)
			Expect(err).NotTo(HaveOccurred())
			Expect(claims.MerchantID).To(Equal(activeMerchantID))
		})

		It("rejects a wrong password", func() {
			_, err := service.Authenticate(ctx, auth.LoginDTO{Email: "shop@example.com", Password: "wrong"})
			Expect(err).To(Equal(apperrors.ErrInvalidCredentials))
		})

		It("rejects an unknown email with the same error", func() {
			_, err := service.Authenticate(ctx, auth.LoginDTO{Email: "nobody@example.com", Password: "correct_password"})
			Expect(err).To(Equal(apperrors.ErrInvalidCredentials))
		})

		It("rejects an inactive merchant", func() {
			_, err := service.Authenticate(ctx, auth.LoginDTO{Email: "closed@example.com", Password: "correct_password"})
			Expect(err).To(Equal(apperrors.ErrMerchantInactive))
		})

		It("validates input", func() {
			_, err := service.Authenticate(ctx, auth.LoginDTO{Email: "not-an-email"})
			appErr, ok := apperrors.IsAppError(err)
			Expect(ok).To(BeTrue())
			Expect(appErr.Type).To(Equal(apperrors.ErrorTypeValidation))
		})

		It("wraps repository failures", func() {
			repo.err = errors.New("connection refused")
			_, err := service.Authenticate(ctx, auth.LoginDTO{Email: "shop@example.com", Password: "correct_password"})
			appErr, ok := apperrors.IsAppError(err)
			Expect(ok).To(BeTrue())
			Expect(appErr.Type).To(Equal(apperrors.ErrorTypeInternal))
		})
	})

	Describe("AuthorizeToken", func() {
		It("returns the merchant for a valid token", func() {
			tokens, err := generator.GenerateAccessToken(activeMerchantID, "shop@example.com")
			Expect(err).NotTo(HaveOccurred())

			m, err := service.AuthorizeToken(ctx, tokens.AccessToken)
			Expect(err).NotTo(HaveOccurred())
			Expect(m.ID).To(Equal(activeMerchantID))
		})

		It("rejects a token for a deactivated merchant", func() {
			tokens, err := generator.GenerateAccessToken(inactiveMerchantID, "closed@example.com")
			Expect(err).NotTo(HaveOccurred())

			_, err = service.AuthorizeToken(ctx, tokens.AccessToken)
			Expect(err).To(Equal(apperrors.ErrMerchantInactive))
		})

		It("rejects an expired token", func() {
			expiring := auth.NewJWTTokenGenerator(signingKey, &signingKey.PublicKey, time.Nanosecond)
			tokens, err := expiring.GenerateAccessToken(activeMerchantID, "shop@example.com")
			Expect(err).NotTo(HaveOccurred())
			time.Sleep(1100 * time.Millisecond)

			_, err = generator.ValidateToken(tokens.AccessToken)
			Expect(err).To(Equal(apperrors.ErrTokenExpired))
		})

		It("rejects a token signed with another key", func() {
			otherKey, err := rsa.GenerateKey(rand.Reader, 2048)
			Expect(err).NotTo(HaveOccurred())
			forged := auth.NewJWTTokenGenerator(otherKey, &otherKey.PublicKey, time.Minute)
			tokens, err := forged.GenerateAccessToken(activeMerchantID, "shop@example.com")
			Expect(err).NotTo(HaveOccurred())

			_, err = service.AuthorizeToken(ctx, tokens.AccessToken)
			Expect(err).To(Equal(apperrors.ErrInvalidToken))
		})

		It("rejects garbage", func() {
			_, err := service.AuthorizeToken(ctx, "not.a.jwt")
			Expect(err).To(Equal(apperrors.ErrInvalidToken))
		})
	})
})
