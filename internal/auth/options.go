package auth

import (
	"crypto/rand"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"stockhelper.org/internal/obs"
)

const (
	DefaultCacheTTL     = 30 * time.Minute
	DefaultIDAttempts   = 10
	PasswordModeBcrypt  = "bcrypt"
	PasswordModePlain   = "plaintext"
	defaultPasswordMode = PasswordModeBcrypt
)

type settings struct {
	now          func() time.Time
	random       io.Reader
	cacheTTL     time.Duration
	idAttempts   int
	passwordMode string
	log          zerolog.Logger
}

func newSettings(opts []Option) (settings, error) {
	s := settings{
		now:          time.Now,
		random:       rand.Reader,
		cacheTTL:     DefaultCacheTTL,
		idAttempts:   DefaultIDAttempts,
		passwordMode: defaultPasswordMode,
		log:          *obs.Logger(),
	}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		if err := opt(&s); err != nil {
			return settings{}, err
		}
	}
	return s, nil
}

// Option configures the permission, user and login services.
type Option func(*settings) error

// WithClock overrides time source (useful for tests).
func WithClock(fn func() time.Time) Option {
	return func(s *settings) error {
		if fn != nil {
			s.now = fn
		}
		return nil
	}
}

// WithRandom sets the entropy source for identifier generation.
func WithRandom(r io.Reader) Option {
	return func(s *settings) error {
		if r == nil {
			return errors.New("auth: random source is nil")
		}
		s.random = r
		return nil
	}
}

// WithCacheTTL sets how long the permission snapshot stays valid.
func WithCacheTTL(ttl time.Duration) Option {
	return func(s *settings) error {
		if ttl > 0 {
			s.cacheTTL = ttl
		}
		return nil
	}
}

// WithIDAttempts caps identifier generation retries.
func WithIDAttempts(n int) Option {
	return func(s *settings) error {
		if n < 1 {
			return fmt.Errorf("auth: id attempts must be positive, got %d", n)
		}
		s.idAttempts = n
		return nil
	}
}

// WithPasswordMode selects how new passwords are stored: bcrypt or plaintext.
func WithPasswordMode(mode string) Option {
	return func(s *settings) error {
		mode = strings.ToLower(strings.TrimSpace(mode))
		switch mode {
		case "":
			return nil
		case PasswordModeBcrypt, PasswordModePlain:
			s.passwordMode = mode
			return nil
		default:
			return fmt.Errorf("auth: unsupported password mode %q", mode)
		}
	}
}

// WithLogger replaces the process logger for the service.
func WithLogger(l zerolog.Logger) Option {
	return func(s *settings) error {
		s.log = l
		return nil
	}
}
