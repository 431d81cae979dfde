// Package auth issues and reads the bearer tokens that identify a requester.
package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/amirasaad/carefund/pkg/config"
	"github.com/amirasaad/carefund/pkg/domain"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// Service signs HS256 tokens whose subject is the requester id.
type Service struct {
	cfg    *config.Jwt
	logger *slog.Logger
	now    func() time.Time
}

func NewWithJWT(cfg *config.Jwt, logger *slog.Logger) *Service {
	return &Service{cfg: cfg, logger: logger.With("component", "auth"), now: time.Now}
}

// GenerateToken signs a token for subject, a caregiver, funder or operator id.
func (s *Service) GenerateToken(_ context.Context, subject uuid.UUID) (string, error) {
	if s.cfg == nil || s.cfg.Secret == "" {
		return "", errors.New("jwt secret is not configured")
	}
	if subject == uuid.Nil {
		return "", fmt.Errorf("token subject is required: %w", domain.ErrValidation)
	}
	now := s.now()
	expiry := s.cfg.Expiry
	if expiry <= 0 {
		expiry = 24 * time.Hour
	}
	claims := jwt.RegisteredClaims{
		Subject:   subject.String(),
		Issuer:    s.cfg.Issuer,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(expiry)),
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(s.cfg.Secret))
	if err != nil {
		s.logger.Error("GenerateToken failed", "subject", subject, "error", err)
		return "", err
	}
	s.logger.Debug("GenerateToken completed", "subject", subject)
	return signed, nil
}

// GetCurrentUserId returns the requester id carried by a verified token.
// The "sub" claim is preferred; "user_id" is accepted for older tokens.
func (s *Service) GetCurrentUserId(token *jwt.Token) (uuid.UUID, error) {
	if token == nil || !token.Valid {
		return uuid.Nil, domain.ErrUnauthorized
	}
	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return uuid.Nil, domain.ErrUnauthorized
	}
	raw, err := claims.GetSubject()
	if err != nil || raw == "" {
		raw, _ = claims["user_id"].(string)
	}
	id, err := uuid.Parse(raw)
	if err != nil || id == uuid.Nil {
		s.logger.Warn("GetCurrentUserId failed", "error", "missing or malformed subject")
		return uuid.Nil, fmt.Errorf("token subject: %w", domain.ErrUnauthorized)
	}
	return id, nil
}
