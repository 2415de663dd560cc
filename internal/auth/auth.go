// Package auth protects the read-only inspection API with JWT sessions.
// Webhook endpoints authenticate per source and never pass through here.
package auth

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"

	"lifelog-ingest/internal/common/errors"
	"lifelog-ingest/internal/common/logging"
)

type contextKey string

const usernameKey contextKey = "username"

// Service issues and validates session tokens for the admin user.
type Service struct {
	jwtSecret    []byte
	username     string
	passwordHash string
	tokenTTL     time.Duration
	logger       logging.Logger
	now          func() time.Time
}

// NewService creates the auth service. tokenTTL of zero defaults to 24h.
func NewService(jwtSecret, username, passwordHash string, tokenTTL time.Duration, logger logging.Logger) *Service {
	if tokenTTL <= 0 {
		tokenTTL = 24 * time.Hour
	}
	if logger == nil {
		logger = logging.Global()
	}
	return &Service{
		jwtSecret:    []byte(jwtSecret),
		username:     username,
		passwordHash: passwordHash,
		tokenTTL:     tokenTTL,
		logger:       logger,
		now:          time.Now,
	}
}

// Login checks credentials and returns a signed token.
func (s *Service) Login(username, password string) (string, error) {
	if username != s.username {
		return "", errors.AuthError("invalid credentials")
	}
	if err := bcrypt.CompareHashAndPassword([]byte(s.passwordHash), []byte(password)); err != nil {
		return "", errors.AuthError("invalid credentials")
	}

	now := s.now()
	claims := jwt.RegisteredClaims{
		Subject:   username,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(s.tokenTTL)),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(s.jwtSecret)
	if err != nil {
		return "", errors.InternalError("token signing failed", err)
	}
	return signed, nil
}

// Validate parses a token and returns its subject.
func (s *Service) Validate(tokenString string) (string, error) {
	token, err := jwt.ParseWithClaims(tokenString, &jwt.RegisteredClaims{}, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.AuthError("unexpected signing method")
		}
		return s.jwtSecret, nil
	})
	if err != nil || !token.Valid {
		return "", errors.AuthError("invalid token")
	}
	claims, ok := token.Claims.(*jwt.RegisteredClaims)
	if !ok {
		return "", errors.AuthError("invalid token claims")
	}
	return claims.Subject, nil
}

// Middleware rejects requests without a valid bearer token.
func (s *Service) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get("Authorization")
		if !strings.HasPrefix(header, "Bearer ") {
			http.Error(w, `{"error":"missing bearer token"}`, http.StatusUnauthorized)
			return
		}
		subject, err := s.Validate(strings.TrimPrefix(header, "Bearer "))
		if err != nil {
			s.logger.Warn("Rejected API request", logging.Err(err))
			http.Error(w, `{"error":"invalid token"}`, http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), usernameKey, subject)))
	})
}

// Username returns the authenticated subject from a request context.
func Username(ctx context.Context) string {
	if u, ok := ctx.Value(usernameKey).(string); ok {
		return u
	}
	return ""
}
