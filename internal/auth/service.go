package auth

import (
	"context"

	errors "github.com/frahmantamala/payment-reconciler/internal"
	"github.com/frahmantamala/payment-reconciler/internal/core/datamodel/merchant"
	"golang.org/x/crypto/bcrypt"
)

type ServiceAPI interface {
	Authenticate(ctx context.Context, dto LoginDTO) (AuthTokens, error)
	AuthorizeToken(ctx context.Context, token string) (*merchant.Merchant, error)
}

type Service struct {
	merchants      MerchantRepository
	tokenGenerator TokenGenerator
	bcryptCost     int
}

func NewService(merchants MerchantRepository, tokenGen TokenGenerator, bcryptCost int) *Service {
	if bcryptCost < bcrypt.MinCost {
		bcryptCost = bcrypt.DefaultCost
	}
	return &Service{
		merchants:      merchants,
		tokenGenerator: tokenGen,
		bcryptCost:     bcryptCost,
	}
}

// Authenticate validates merchant credentials and returns an access token.
func (s *Service) Authenticate(ctx context.Context, dto LoginDTO) (AuthTokens, error) {
	dto.Normalize()
	if err := dto.Validate(); err != nil {
		return AuthTokens{}, err
	}

	m, err := s.merchants.GetByEmail(ctx, dto.Email)
	if err != nil {
		return AuthTokens{}, errors.NewInternalError("failed to load merchant", err)
	}
	if m == nil {
		return AuthTokens{}, errors.ErrInvalidCredentials
	}

	if err := bcrypt.CompareHashAndPassword([]byte(m.PasswordHash), []byte(dto.Password)); err != nil {
		return AuthTokens{}, errors.ErrInvalidCredentials
	}

	if !m.IsActive {
		return AuthTokens{}, errors.ErrMerchantInactive
	}

	tokens, err := s.tokenGenerator.GenerateAccessToken(m.ID, m.Email)
	if err != nil {
		return AuthTokens{}, errors.NewInternalError("failed to issue token", err)
	}
	return tokens, nil
}

// AuthorizeToken validates a bearer token and returns the active merchant it
// was issued to.
func (s *Service) AuthorizeToken(ctx context.Context, token string) (*merchant.Merchant, error) {
	claims, err := s.tokenGenerator.ValidateToken(token)
	if err != nil {
		return nil, err
	}

	m, err := s.merchants.GetByID(ctx, claims.MerchantID)
	if err != nil {
		return nil, errors.NewInternalError("failed to load merchant", err)
	}
	if m == nil {
		return nil, errors.ErrInvalidToken
	}
	if !m.IsActive {
		return nil, errors.ErrMerchantInactive
	}
	return m, nil
}

// HashPassword creates a bcrypt hash of the password
func (s *Service) HashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), s.bcryptCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}
