// Package tokens issues and verifies stateless access tokens and issues,
// rotates and revokes stateful refresh tokens.
package tokens

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/Skotchmaster/user_auth/internal/apperr"
	"github.com/Skotchmaster/user_auth/internal/models"
	"github.com/Skotchmaster/user_auth/pkg/logging"
)

const (
	RefreshTTL          = 30 * 24 * time.Hour
	refreshEntropyBytes = 40
	TokenType           = "Bearer"
)

type RefreshStore interface {
	CreateRefreshToken(ctx context.Context, t *models.RefreshToken) error
	FindRefreshToken(ctx context.Context, token string) (*models.RefreshToken, error)
	DeleteRefreshToken(ctx context.Context, token string) (bool, error)
}

type AccessClaims struct {
	jwt.RegisteredClaims
}

type Service struct {
	Secret    []byte
	AccessTTL time.Duration
	Store     RefreshStore

	Now    func() time.Time
	Random io.Reader
}

func NewService(secret []byte, accessTTL time.Duration, store RefreshStore) *Service {
	return &Service{
		Secret:    secret,
		AccessTTL: accessTTL,
		Store:     store,
		Now:       time.Now,
		Random:    rand.Reader,
	}
}

func (s *Service) now() time.Time {
	if s.Now == nil {
		return time.Now()
	}
	return s.Now()
}

// IssueAccess signs {sub, iat, exp} for the user with HS256.
func (s *Service) IssueAccess(u *models.User) (string, time.Time, error) {
	if u == nil || u.ID == uuid.Nil {
		return "", time.Time{}, errors.New("issue access token: user is required")
	}
	if len(s.Secret) == 0 {
		return "", time.Time{}, errors.New("issue access token: secret is not configured")
	}

	now := s.now().UTC()
	exp := now.Add(s.AccessTTL)
	claims := AccessClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   u.ID.String(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(exp),
		},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.Secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("sign access token: %w", err)
	}
	return signed, exp, nil
}

// Verify checks signature and expiry and returns the subject.
func (s *Service) Verify(token string) (string, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return "", fmt.Errorf("%w: empty token", apperr.ErrTokenInvalid)
	}

	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		// jwt counts now == exp as expired; a token lapses only once now > exp.
		jwt.WithTimeFunc(func() time.Time { return s.now().Add(-time.Nanosecond) }),
	)

	var claims AccessClaims
	tkn, err := parser.ParseWithClaims(token, &claims, func(*jwt.Token) (any, error) {
		return s.Secret, nil
	})
	switch {
	case errors.Is(err, jwt.ErrTokenExpired):
		return "", fmt.Errorf("%w: %w", apperr.ErrTokenExpired, err)
	case err != nil:
		return "", fmt.Errorf("%w: %w", apperr.ErrTokenInvalid, err)
	case !tkn.Valid:
		return "", apperr.ErrTokenInvalid
	}

	if strings.TrimSpace(claims.Subject) == "" {
		return "", fmt.Errorf("%w: subject missing", apperr.ErrTokenInvalid)
	}
	return claims.Subject, nil
}

// IssueRefresh persists a new opaque "<userID>.<hex>" token valid for 30 days.
func (s *Service) IssueRefresh(ctx context.Context, u *models.User) (*models.RefreshToken, error) {
	buf := make([]byte, refreshEntropyBytes)
	if _, err := io.ReadFull(s.Random, buf); err != nil {
		return nil, fmt.Errorf("read refresh entropy: %w", err)
	}

	rt := &models.RefreshToken{
		Token:     u.ID.String() + "." + hex.EncodeToString(buf),
		UserID:    u.ID,
		UserEmail: u.Email,
		ExpiresAt: s.now().UTC().Add(RefreshTTL),
	}
	if err := s.Store.CreateRefreshToken(ctx, rt); err != nil {
		return nil, fmt.Errorf("save refresh token: %w", err)
	}
	return rt, nil
}

// Rotate redeems a refresh token exactly once. The caller issues the new pair
// for the returned record's user.
func (s *Service) Rotate(ctx context.Context, email, token string) (*models.RefreshToken, error) {
	l := logging.FromContext(ctx).With("svc", "tokens.rotate")

	rt, err := s.Store.FindRefreshToken(ctx, token)
	if err != nil {
		if errors.Is(err, apperr.ErrNotFound) {
			l.Warn("rotate_failed", "reason", "unknown refresh token")
			return nil, fmt.Errorf("%w: unknown refresh token", apperr.ErrUnauthorized)
		}
		return nil, err
	}
	if !strings.HasPrefix(token, rt.UserID.String()+".") || !strings.EqualFold(rt.UserEmail, email) {
		l.Warn("rotate_failed", "reason", "refresh token attribution mismatch")
		return nil, fmt.Errorf("%w: refresh token does not belong to caller", apperr.ErrUnauthorized)
	}

	deleted, err := s.Store.DeleteRefreshToken(ctx, token)
	if err != nil {
		return nil, err
	}
	if rt.Expired(s.now()) {
		l.Warn("rotate_failed", "reason", "refresh token expired")
		return nil, fmt.Errorf("%w: refresh token expired", apperr.ErrUnauthorized)
	}
	if !deleted {
		l.Warn("rotate_failed", "reason", "refresh token already redeemed")
		return nil, fmt.Errorf("%w: refresh token already redeemed", apperr.ErrUnauthorized)
	}
	return rt, nil
}

// Revoke deletes the refresh token; unknown tokens are not an error.
func (s *Service) Revoke(ctx context.Context, token string) error {
	if strings.TrimSpace(token) == "" {
		return nil
	}
	_, err := s.Store.DeleteRefreshToken(ctx, token)
	return err
}
