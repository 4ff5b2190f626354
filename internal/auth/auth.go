package auth

import (
	"context"
	"crypto/rsa"
	stderrors "errors"
	"fmt"
	"time"

	errors "github.com/frahmantamala/payment-reconciler/internal"
	"github.com/frahmantamala/payment-reconciler/internal/core/datamodel/merchant"
	"github.com/golang-jwt/jwt/v5"
)

const tokenIssuer = "payment-reconciler"

// Claims represents JWT token claims
type Claims struct {
	MerchantID string `json:"merchant_id"`
	Email      string `json:"email"`
	jwt.RegisteredClaims
}

type AuthTokens struct {
	AccessToken string    `json:"access_token"`
	TokenType   string    `json:"token_type"`
	ExpiresAt   time.Time `json:"expires_at"`
}

// TokenGenerator creates and validates merchant access tokens.
type TokenGenerator interface {
	GenerateAccessToken(merchantID, email string) (AuthTokens, error)
	ValidateToken(tokenString string) (*Claims, error)
}

type MerchantRepository interface {
	GetByEmail(ctx context.Context, email string) (*merchant.Merchant, error)
	GetByID(ctx context.Context, id string) (*merchant.Merchant, error)
}

// JWTTokenGenerator signs RS256 tokens with the configured key pair.
type JWTTokenGenerator struct {
	PrivateKey     *rsa.PrivateKey
	PublicKey      *rsa.PublicKey
	AccessTokenTTL time.Duration
	now            func() time.Time
}

func NewJWTTokenGenerator(privateKey *rsa.PrivateKey, publicKey *rsa.PublicKey, ttl time.Duration) *JWTTokenGenerator {
	if ttl <= 0 {
		ttl = 15 * time.Minute
	}
	return &JWTTokenGenerator{
		PrivateKey:     privateKey,
		PublicKey:      publicKey,
		AccessTokenTTL: ttl,
		now:            time.Now,
	}
}

func (j *JWTTokenGenerator) GenerateAccessToken(merchantID, email string) (AuthTokens, error) {
	now := j.now()
	expiresAt := now.Add(j.AccessTokenTTL)

	claims := &Claims{
		MerchantID: merchantID,
		Email:      email,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    tokenIssuer,
			Subject:   merchantID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	}

	token, err := jwt.NewWithClaims(jwt.SigningMethodRS256, claims).SignedString(j.PrivateKey)
	if err != nil {
		return AuthTokens{}, fmt.Errorf("sign access token: %w", err)
	}

	return AuthTokens{AccessToken: token, TokenType: "Bearer", ExpiresAt: expiresAt.UTC()}, nil
}

func (j *JWTTokenGenerator) ValidateToken(tokenString string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodRSA); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return j.PublicKey, nil
	}, jwt.WithIssuer(tokenIssuer), jwt.WithTimeFunc(j.now))

	if err != nil {
		if stderrors.Is(err, jwt.ErrTokenExpired) {
			return nil, errors.ErrTokenExpired
		}
		return nil, errors.ErrInvalidToken
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid || claims.MerchantID == "" {
		return nil, errors.ErrInvalidToken
	}
	return claims, nil
}
