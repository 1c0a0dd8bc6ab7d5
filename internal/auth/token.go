package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/Duong-Anh-Duc/KH/internal/domain"
	apperrors "github.com/Duong-Anh-Duc/KH/pkg/errors"
)

const (
	issuer = "elearning-api"

	typeAccess  = "access"
	typeRefresh = "refresh"
)

// AccessClaims are the claims carried by an access token.
type AccessClaims struct {
	UserID string `json:"user_id"`
	Role   string `json:"role"`
	Type   string `json:"typ"`
	jwt.RegisteredClaims
}

// RefreshClaims are the claims carried by a refresh token.
type RefreshClaims struct {
	UserID string `json:"user_id"`
	Type   string `json:"typ"`
	jwt.RegisteredClaims
}

// SessionStore is the part of the session cache that refresh depends on.
type SessionStore interface {
	Get(ctx context.Context, userID string) (*domain.Session, error)
	Set(ctx context.Context, s *domain.Session) error
}

// TokenService mints and verifies the access/refresh pair. Access
// verification is stateless; refresh always consults the session store.
type TokenService struct {
	accessSecret  []byte
	refreshSecret []byte
	accessTTL     time.Duration
	refreshTTL    time.Duration
	sessions      SessionStore
	now           func() time.Time
}

func NewTokenService(accessSecret, refreshSecret string, accessTTL, refreshTTL time.Duration, sessions SessionStore) *TokenService {
	return &TokenService{
		accessSecret:  []byte(accessSecret),
		refreshSecret: []byte(refreshSecret),
		accessTTL:     accessTTL,
		refreshTTL:    refreshTTL,
		sessions:      sessions,
		now:           time.Now,
	}
}

// RefreshTTL is the lifetime of refresh tokens, which is also the session TTL.
func (s *TokenService) RefreshTTL() time.Duration { return s.refreshTTL }

// Issue mints a fresh access/refresh pair for the session.
func (s *TokenService) Issue(sess *domain.Session) (domain.TokenPair, error) {
	now := s.now().UTC()

	access := jwt.NewWithClaims(jwt.SigningMethodHS256, &AccessClaims{
		UserID: sess.ID,
		Role:   sess.Role,
		Type:   typeAccess,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   sess.ID,
			Issuer:    issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.accessTTL)),
		},
	})
	accessToken, err := access.SignedString(s.accessSecret)
	if err != nil {
		return domain.TokenPair{}, fmt.Errorf("sign access token: %w", err)
	}

	refresh := jwt.NewWithClaims(jwt.SigningMethodHS256, &RefreshClaims{
		UserID: sess.ID,
		Type:   typeRefresh,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   sess.ID,
			Issuer:    issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.refreshTTL)),
		},
	})
	refreshToken, err := refresh.SignedString(s.refreshSecret)
	if err != nil {
		return domain.TokenPair{}, fmt.Errorf("sign refresh token: %w", err)
	}

	return domain.TokenPair{AccessToken: accessToken, RefreshToken: refreshToken}, nil
}

// VerifyAccess checks signature and expiry of an access token.
func (s *TokenService) VerifyAccess(token string) (*AccessClaims, error) {
	claims := &AccessClaims{}
	if err := s.parse(token, claims, s.accessSecret); err != nil {
		return nil, err
	}
	if claims.Type != typeAccess || claims.UserID == "" {
		return nil, apperrors.InvalidToken()
	}
	return claims, nil
}

// VerifyRefresh checks signature and expiry of a refresh token.
func (s *TokenService) VerifyRefresh(token string) (*RefreshClaims, error) {
	claims := &RefreshClaims{}
	if err := s.parse(token, claims, s.refreshSecret); err != nil {
		return nil, err
	}
	if claims.Type != typeRefresh || claims.UserID == "" {
		return nil, apperrors.InvalidToken()
	}
	return claims, nil
}

// Refresh exchanges a refresh token for a new pair. The session must still
// exist and must not be banned; it is rewritten with a fresh TTL.
func (s *TokenService) Refresh(ctx context.Context, refreshToken string) (*domain.Session, domain.TokenPair, error) {
	claims, err := s.VerifyRefresh(refreshToken)
	if err != nil {
		return nil, domain.TokenPair{}, err
	}

	sess, err := s.sessions.Get(ctx, claims.UserID)
	if err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			return nil, domain.TokenPair{}, apperrors.SessionExpired()
		}
		return nil, domain.TokenPair{}, err
	}
	if sess.IsBanned {
		return nil, domain.TokenPair{}, apperrors.SessionExpired()
	}

	if err := s.sessions.Set(ctx, sess); err != nil {
		return nil, domain.TokenPair{}, err
	}

	pair, err := s.Issue(sess)
	if err != nil {
		return nil, domain.TokenPair{}, err
	}
	return sess, pair, nil
}

func (s *TokenService) parse(token string, claims jwt.Claims, secret []byte) error {
	parsed, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return secret, nil
	},
		jwt.WithIssuer(issuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(s.now),
	)
	if err != nil || !parsed.Valid {
		return apperrors.InvalidToken()
	}
	return nil
}
