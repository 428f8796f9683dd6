package service

import (
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/noah-isme/sis-student-api/pkg/config"
	appErrors "github.com/noah-isme/sis-student-api/pkg/errors"
)

// Claims carries the authenticated caller identity.
type Claims struct {
	UserID string `json:"uid"`
	Role   string `json:"role"`
	jwt.RegisteredClaims
}

// TokenService issues and validates the bearer tokens guarding mutating
// endpoints. Tokens are minted by the identity gateway with the shared
// secret; this service only needs to verify them, Issue exists for tests
// and local tooling.
type TokenService struct {
	secret     []byte
	expiration time.Duration
}

// NewTokenService constructs a token service from config.
func NewTokenService(cfg config.JWTConfig) *TokenService {
	return &TokenService{secret: []byte(cfg.Secret), expiration: cfg.Expiration}
}

// Issue mints a signed token for the given subject.
func (s *TokenService) Issue(userID, role string) (string, error) {
	now := time.Now().UTC()
	claims := Claims{
		UserID: userID,
		Role:   role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.expiration)),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(s.secret)
	if err != nil {
		return "", appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to sign token")
	}
	return signed, nil
}

// ValidateToken parses and verifies a bearer token.
func (s *TokenService) ValidateToken(raw string) (*Claims, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(raw, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, appErrors.Clone(appErrors.ErrUnauthorized, "unexpected signing method")
		}
		return s.secret, nil
	})
	if err != nil || !token.Valid {
		return nil, appErrors.Clone(appErrors.ErrUnauthorized, "invalid or expired token")
	}
	return claims, nil
}
