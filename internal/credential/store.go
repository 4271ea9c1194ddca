// Package credential persists role-scoped session tokens. It is the
// console's analogue of the browser's local storage: one token per role,
// plaintext, surviving restarts.
package credential

import (
	"context"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/redis/go-redis/v9"

	"github.com/prescripto/clinic-console/internal/api"
)

// Store provides persistence for role credentials.
type Store struct {
	redis *redis.Client
}

// NewStore creates a credential store.
func NewStore(redisClient *redis.Client) *Store {
	return &Store{redis: redisClient}
}

func (s *Store) key(role api.Role) string {
	return fmt.Sprintf("console:credential:%s", role)
}

// Save overwrites the persisted token for a role.
func (s *Store) Save(ctx context.Context, role api.Role, token string) error {
	if err := s.redis.Set(ctx, s.key(role), token, 0).Err(); err != nil {
		return fmt.Errorf("credential: save %s token: %w", role, err)
	}
	return nil
}

// Load returns the persisted token for a role, or "" when none is stored.
// An empty token means the viewer is unauthenticated for that role.
func (s *Store) Load(ctx context.Context, role api.Role) (string, error) {
	token, err := s.redis.Get(ctx, s.key(role)).Result()
	if err == redis.Nil {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("credential: load %s token: %w", role, err)
	}
	return token, nil
}

// Clear removes the persisted token for a role (logout).
func (s *Store) Clear(ctx context.Context, role api.Role) error {
	if err := s.redis.Del(ctx, s.key(role)).Err(); err != nil {
		return fmt.Errorf("credential: clear %s token: %w", role, err)
	}
	return nil
}

// TokenInfo describes what could be read out of a credential token.
type TokenInfo struct {
	Subject   string
	ExpiresAt time.Time
	HasExpiry bool
	Expired   bool
}

// Inspect reads expiry and subject from a JWT credential without verifying
// the signature. The token is opaque to the console; this exists only to warn
// the operator about an already-expired session before a request fails.
// Non-JWT tokens report no expiry.
func Inspect(token string, now time.Time) TokenInfo {
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return TokenInfo{}
	}

	info := TokenInfo{}
	if sub, err := claims.GetSubject(); err == nil {
		info.Subject = sub
	}
	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil {
		return info
	}
	info.ExpiresAt = exp.Time
	info.HasExpiry = true
	info.Expired = exp.Time.Before(now)
	return info
}
