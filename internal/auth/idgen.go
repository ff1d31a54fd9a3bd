package auth

import (
	"context"
	"fmt"
	"io"

	"github.com/google/uuid"

	"stockhelper.org/internal/obs"
)

// ExistsFunc reports whether an identifier is already taken.
type ExistsFunc func(ctx context.Context, id uuid.UUID) (bool, error)

// NewUniqueID draws random identifiers from r until one is not taken, trying at most attempts times.
func NewUniqueID(ctx context.Context, r io.Reader, attempts int, exists ExistsFunc) (uuid.UUID, error) {
	if attempts < 1 {
		attempts = DefaultIDAttempts
	}
	for i := 1; i <= attempts; i++ {
		if err := ctx.Err(); err != nil {
			return uuid.Nil, err
		}
		id, err := uuid.NewRandomFromReader(r)
		if err != nil {
			return uuid.Nil, fmt.Errorf("auth: read random id: %w", err)
		}
		taken, err := exists(ctx, id)
		if err != nil {
			return uuid.Nil, err
		}
		if !taken {
			obs.IDGenerationAttempts.Observe(float64(i))
			return id, nil
		}
	}
	return uuid.Nil, fmt.Errorf("%w: no free identifier after %d attempts", ErrResourceExhausted, attempts)
}
