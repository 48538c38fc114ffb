package services

import (
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Token verification failure kinds. All collapse to a single
// "unauthenticated" outcome at the HTTP boundary.
const (
	ErrKindTokenExpired   AuthErrorKind = "token_expired"
	ErrKindTokenInvalid   AuthErrorKind = "token_invalid"
	ErrKindSubjectMissing AuthErrorKind = "subject_missing"
)

// accessClaims is the claim set carried by a session token.
type accessClaims struct {
	jwt.RegisteredClaims
	TelegramID int64  `json:"telegram_id"`
	TokenType  string `json:"type"`
}

// TokenService mints and verifies stateless session tokens. Validity is
// entirely signature plus expiry; there is no revocation list.
type TokenService struct {
	secret          []byte
	lifetimeSeconds int64
	now             func() time.Time
}

func NewTokenService(secret string, lifetimeSeconds int64) *TokenService {
	return &TokenService{
		secret:          []byte(secret),
		lifetimeSeconds: lifetimeSeconds,
		now:             time.Now,
	}
}

// LifetimeSeconds reports how long issued tokens stay valid.
func (s *TokenService) LifetimeSeconds() int64 {
	return s.lifetimeSeconds
}

// Issue creates a signed access token bound to the internal user id.
func (s *TokenService) Issue(userID, telegramID int64) (string, error) {
	now := s.now()
	claims := accessClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   strconv.FormatInt(userID, 10),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(time.Duration(s.lifetimeSeconds) * time.Second)),
		},
		TelegramID: telegramID,
		TokenType:  "access",
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}

// Verify checks signature and expiry and returns the internal user id the
// token is bound to.
func (s *TokenService) Verify(tokenString string) (int64, *AuthError) {
	var claims accessClaims
	_, err := jwt.ParseWithClaims(tokenString, &claims, func(token *jwt.Token) (interface{}, error) {
		return s.secret, nil
	}, jwt.WithValidMethods([]string{"HS256"}))
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return 0, authErrorf(ErrKindTokenExpired, "token has expired")
		}
		return 0, authErrorf(ErrKindTokenInvalid, "invalid token: %v", err)
	}

	if claims.Subject == "" {
		return 0, authErrorf(ErrKindSubjectMissing, "invalid token: missing user ID")
	}
	userID, err := strconv.ParseInt(claims.Subject, 10, 64)
	if err != nil {
		return 0, authErrorf(ErrKindTokenInvalid, "invalid token subject: %v", err)
	}

	return userID, nil
}
