package auth

import (
	"context"
	"errors"
	"fmt"

	"stockhelper.org/internal/obs"
)

// LoginService checks operator credentials.
type LoginService struct {
	users *UserService
	cfg   settings
}

func NewLoginService(users *UserService, opts ...Option) (*LoginService, error) {
	if users == nil {
		return nil, errors.New("auth: user service is required")
	}
	cfg, err := newSettings(opts)
	if err != nil {
		return nil, err
	}
	cfg.log = cfg.log.With().Str("component", "login").Logger()
	return &LoginService{users: users, cfg: cfg}, nil
}

// Login returns the hydrated user when name and password match an active account.
// Every mismatch is reported as ErrInvalidCredentials.
func (s *LoginService) Login(ctx context.Context, name, password string) (*User, error) {
	if name == "" || password == "" {
		obs.LoginAttempts.WithLabelValues("invalid").Inc()
		return nil, ErrInvalidCredentials
	}
	u, err := s.users.GetByName(ctx, name)
	if err != nil {
		if errors.Is(err, ErrNotFound) || errors.Is(err, ErrInvalidInput) {
			obs.LoginAttempts.WithLabelValues("invalid").Inc()
			return nil, ErrInvalidCredentials
		}
		obs.LoginAttempts.WithLabelValues("error").Inc()
		return nil, fmt.Errorf("auth: load user: %w", err)
	}

	legacy, ok := VerifyPassword(u.Password, password)
	if u.Name != name || !ok || !u.IsActive {
		obs.LoginAttempts.WithLabelValues("invalid").Inc()
		s.cfg.log.Info().Str("user", name).Msg("login rejected")
		return nil, ErrInvalidCredentials
	}
	if legacy {
		s.cfg.log.Warn().Str("user", u.Name).Msg("user password is stored in plaintext")
	}
	obs.LoginAttempts.WithLabelValues("success").Inc()
	return u, nil
}

// Authenticate reports whether the credentials are valid. Only store failures return an error.
func (s *LoginService) Authenticate(ctx context.Context, name, password string) (bool, error) {
	_, err := s.Login(ctx, name, password)
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, ErrInvalidCredentials):
		return false, nil
	default:
		return false, err
	}
}
