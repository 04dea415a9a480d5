package auth

import (
	"errors"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// VerificationClaims is the payload of a signed email verification
// token. Purpose pins the token to the verification flow so a token
// minted for one purpose cannot be replayed for another.
type VerificationClaims struct {
	Email   string `json:"email"`
	Purpose string `json:"purpose"`
	jwt.RegisteredClaims
}

const verificationPurpose = "email-verification"

var (
	ErrMissingToken = errors.New("missing token")
	ErrInvalidToken = errors.New("invalid token")
)

// VerificationManager mints and validates email verification tokens.
type VerificationManager struct {
	secret []byte
	expiry time.Duration
}

func NewVerificationManager(secret string, expiry time.Duration) *VerificationManager {
	return &VerificationManager{secret: []byte(secret), expiry: expiry}
}

func (m *VerificationManager) Generate(userID, email string) (string, error) {
	if userID == "" || email == "" {
		return "", ErrInvalidToken
	}

	now := time.Now()
	claims := &VerificationClaims{
		Email:   email,
		Purpose: verificationPurpose,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(m.expiry)),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(m.secret)
}

func (m *VerificationManager) Validate(tokenString string) (*VerificationClaims, error) {
	if strings.TrimSpace(tokenString) == "" {
		return nil, ErrMissingToken
	}

	parsed, err := jwt.ParseWithClaims(tokenString, &VerificationClaims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, ErrInvalidToken
		}
		return m.secret, nil
	})
	if err != nil {
		return nil, ErrInvalidToken
	}

	claims, ok := parsed.Claims.(*VerificationClaims)
	if !ok || !parsed.Valid || claims.Purpose != verificationPurpose {
		return nil, ErrInvalidToken
	}
	return claims, nil
}
