package auth

import (
	"context"
	"errors"
	"log"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/example/ec-storefront/internal/infrastructure/profile"
)

const tokenKey = "access_token"

// TokenStore holds the bearer credential for this profile. Absence means
// anonymous. It satisfies api.TokenSource, so the HTTP client consults it
// on every outbound request and clears it on any unauthorized response.
type TokenStore struct {
	profile profile.Store
}

func NewTokenStore(p profile.Store) *TokenStore {
	return &TokenStore{profile: p}
}

// Token returns the current credential, or "" when anonymous. A token
// whose JWT claims show it already expired is treated as absent and
// erased, sparing a round trip that would only come back unauthorized.
func (s *TokenStore) Token() string {
	entry, err := s.profile.Get(context.Background(), tokenKey)
	if err != nil {
		if !errors.Is(err, profile.ErrKeyNotFound) {
			log.Printf("[Auth] Failed to read token: %v", err)
		}
		return ""
	}
	if tokenExpired(entry.Value) {
		s.Clear()
		return ""
	}
	return entry.Value
}

// Set persists a new credential, replacing any previous one.
func (s *TokenStore) Set(token string) error {
	return s.profile.Set(context.Background(), tokenKey, token)
}

// Clear erases the credential. The cart id is a separate key and is
// deliberately left alone.
func (s *TokenStore) Clear() {
	if err := s.profile.Delete(context.Background(), tokenKey); err != nil {
		log.Printf("[Auth] Failed to clear token: %v", err)
	}
}

// tokenExpired inspects the token's registered claims without verifying
// the signature; verification is the server's job. Tokens that do not
// parse as JWTs are kept as-is since the credential is opaque by
// contract.
func tokenExpired(token string) bool {
	claims := &jwt.RegisteredClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return false
	}
	return claims.ExpiresAt != nil && time.Now().After(claims.ExpiresAt.Time)
}
