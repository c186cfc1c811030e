package auth

import (
	"context"
	"fmt"

	"github.com/example/ec-storefront/internal/api"
)

// Backend is the slice of the storefront API the auth service uses.
type Backend interface {
	Login(ctx context.Context, username, password string) (*api.Token, error)
	Register(ctx context.Context, email, password string) (*api.User, error)
	ForgotPassword(ctx context.Context, email string) error
	ResetPassword(ctx context.Context, token, newPassword string) error
}

// Service drives the account flows and keeps the TokenStore in sync
// with their outcomes.
type Service struct {
	backend Backend
	tokens  *TokenStore
}

func NewService(backend Backend, tokens *TokenStore) *Service {
	return &Service{backend: backend, tokens: tokens}
}

// Login exchanges credentials for a token and persists it on success.
func (s *Service) Login(ctx context.Context, email, password string) error {
	token, err := s.backend.Login(ctx, email, password)
	if err != nil {
		return fmt.Errorf("login failed: %w", err)
	}
	if err := s.tokens.Set(token.AccessToken); err != nil {
		return fmt.Errorf("failed to persist token: %w", err)
	}
	return nil
}

// Logout erases the credential. The cart survives logout.
func (s *Service) Logout() {
	s.tokens.Clear()
}

// LoggedIn reports whether a usable credential is present.
func (s *Service) LoggedIn() bool {
	return s.tokens.Token() != ""
}

func (s *Service) Register(ctx context.Context, email, password string) (*api.User, error) {
	return s.backend.Register(ctx, email, password)
}

func (s *Service) ForgotPassword(ctx context.Context, email string) error {
	return s.backend.ForgotPassword(ctx, email)
}

func (s *Service) ResetPassword(ctx context.Context, token, newPassword string) error {
	return s.backend.ResetPassword(ctx, token, newPassword)
}
