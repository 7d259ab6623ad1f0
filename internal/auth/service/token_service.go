package service

//go:generate mockgen -destination=../../mocks/mock_token_generator.go -package=mocks github.com/alexizher/onboarding-back-sub000/internal/auth/service TokenGenerator

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/alexizher/onboarding-back-sub000/internal/auth/domain"
	"github.com/alexizher/onboarding-back-sub000/internal/auth/policy"
	autherror "github.com/alexizher/onboarding-back-sub000/internal/errors"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

type TokenGenerator interface {
	Generate(user *domain.User) (token string, jti string, expiresAt time.Time, err error)
	Verify(ctx context.Context, tokenString string) (*JWTCustomClaims, error)
	ExtractClaims(tokenString string) (*JWTCustomClaims, error)
	Fingerprint(tokenString string) string
	RevokeID(ctx context.Context, jti, userID, reason string) error
	GetAccessTokenExpiry() time.Duration
}

type JWTCustomClaims struct {
	jwt.RegisteredClaims
	UserID      string   `json:"user_id"`
	Email       string   `json:"email"`
	Username    string   `json:"username"`
	Role        string   `json:"role"`
	Permissions []string `json:"permissions"`
}

type TokenService struct {
	AccessTokenSecret string
	AccessTokenExpiry time.Duration

	fingerprintKey []byte
	revocations    domain.RevocationRepository
	policies       *policy.Table
	clock          domain.Clock
}

func NewTokenService(accessSecret, fingerprintKey string, expiry time.Duration,
	revocations domain.RevocationRepository, policies *policy.Table, clock domain.Clock) *TokenService {
	return &TokenService{
		AccessTokenSecret: accessSecret,
		AccessTokenExpiry: expiry,
		fingerprintKey:    []byte(fingerprintKey),
		revocations:       revocations,
		policies:          policies,
		clock:             clock,
	}
}

// Generate mints a signed bearer token with a fresh jti. The jti is the
// revocation key for the token's whole lifetime.
func (ts *TokenService) Generate(user *domain.User) (string, string, time.Time, error) {
	now := ts.clock.Now()
	jti := uuid.NewString()
	expiresAt := now.Add(ts.AccessTokenExpiry)

	claims := JWTCustomClaims{
		UserID:      user.ID,
		Email:       user.Email,
		Username:    user.Username,
		Role:        user.RoleName,
		Permissions: ts.policies.Permissions(user.RoleName),
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        jti,
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			IssuedAt:  jwt.NewNumericDate(now),
		},
	}

	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(ts.AccessTokenSecret))
	if err != nil {
		return "", "", time.Time{}, err
	}

	return token, jti, expiresAt, nil
}

// Verify is the full validation path: signature, expiry, then the revocation
// registry. Every authorization decision must come through here; ExtractClaims
// exists only for logging.
func (ts *TokenService) Verify(ctx context.Context, tokenString string) (*JWTCustomClaims, error) {
	claims := &JWTCustomClaims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		// Ensure the token's signing method is HMAC.
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return []byte(ts.AccessTokenSecret), nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, autherror.ErrTokenExpired
		}
		return nil, autherror.ErrTokenInvalid
	}
	if !token.Valid {
		return nil, autherror.ErrTokenInvalid
	}

	revoked, err := ts.revocations.IsRevoked(ctx, claims.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to check token revocation: %w", err)
	}
	if revoked {
		return nil, autherror.ErrTokenRevoked
	}

	return claims, nil
}

// ExtractClaims parses without verifying signature or expiry. For audit
// detail only, never for authorization.
func (ts *TokenService) ExtractClaims(tokenString string) (*JWTCustomClaims, error) {
	claims := &JWTCustomClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(tokenString, claims); err != nil {
		return nil, autherror.ErrTokenInvalid
	}
	return claims, nil
}

// Fingerprint returns the keyed digest under which sessions store a bearer
// token. The raw token never reaches storage.
func (ts *TokenService) Fingerprint(tokenString string) string {
	mac := hmac.New(sha256.New, ts.fingerprintKey)
	mac.Write([]byte(tokenString))
	return hex.EncodeToString(mac.Sum(nil))
}

// RevokeID blacklists a jti. Idempotent.
func (ts *TokenService) RevokeID(ctx context.Context, jti, userID, reason string) error {
	return ts.revocations.Revoke(ctx, &domain.RevokedToken{
		TokenID:   jti,
		UserID:    userID,
		Reason:    reason,
		RevokedAt: ts.clock.Now(),
	})
}

func (ts *TokenService) GetAccessTokenExpiry() time.Duration {
	return ts.AccessTokenExpiry
}
