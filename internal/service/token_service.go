package service

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/vigilcbt/vigil-backend/internal/config"
)

// Claims scope a session token to exactly one attempt. Students are
// anonymous, so the attempt id is the whole identity.
type Claims struct {
	jwt.RegisteredClaims
	AttemptID uuid.UUID `json:"attempt_id"`
	ExamID    uuid.UUID `json:"exam_id"`
}

// TokenService mints and validates per-attempt session tokens.
type TokenService struct {
	cfg *config.Config
}

// NewTokenService creates a new TokenService.
func NewTokenService(cfg *config.Config) *TokenService {
	return &TokenService{cfg: cfg}
}

// GenerateAttemptToken signs a token valid for the exam duration plus slack,
// so a token never expires while its exam can still legitimately run.
func (s *TokenService) GenerateAttemptToken(attemptID, examID uuid.UUID, examDuration time.Duration) (string, error) {
	now := time.Now()
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.New().String(),
			Subject:   attemptID.String(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(examDuration + s.cfg.TokenSlack)),
		},
		AttemptID: attemptID,
		ExamID:    examID,
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(s.cfg.TokenSecret))
}

// ValidateToken parses and verifies a session token.
func (s *TokenService) ValidateToken(tokenStr string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenStr, &Claims{}, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return []byte(s.cfg.TokenSecret), nil
	})
	if err != nil {
		return nil, err
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, errors.New("invalid token claims")
	}
	// A malformed id fails unmarshal above; an absent one decodes to the
	// zero uuid and is just as unusable.
	if claims.AttemptID == uuid.Nil || claims.ExamID == uuid.Nil {
		return nil, errors.New("token claims missing attempt scope")
	}
	return claims, nil
}
