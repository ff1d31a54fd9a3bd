package audit

import (
	"context"
	"errors"
	"sort"
	"strings"

	"github.com/rs/zerolog"

	"stockhelper.org/internal/auth"
	"stockhelper.org/internal/obs"
)

type ctxKey string

const requestIDKey ctxKey = "audit_request_id"

// WithRequestID attaches the request identifier to the context for audit logging.
func WithRequestID(ctx context.Context, requestID string) context.Context {
	requestID = strings.TrimSpace(requestID)
	if requestID == "" {
		return ctx
	}
	return context.WithValue(ctx, requestIDKey, requestID)
}

// RequestIDFromContext returns the request id stored by WithRequestID.
func RequestIDFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	if v, ok := ctx.Value(requestIDKey).(string); ok {
		return v
	}
	return ""
}

// LogEvent writes an audit log entry enriched with request and user context.
func LogEvent(ctx context.Context, event string, fields map[string]any) error {
	event = strings.TrimSpace(event)
	if event == "" {
		return errors.New("event name is required")
	}

	l := obs.Logger()
	entry := l.Info().
		Str("type", "audit").
		Str("event", event)
	if rid := RequestIDFromContext(ctx); rid != "" {
		entry = entry.Str("request_id", rid)
	}
	if u, ok := auth.UserFromContext(ctx); ok {
		entry = entry.Str("user_id", u.ID.String()).Str("user", u.Name)
	}

	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	dict := zerolog.Dict()
	for _, k := range keys {
		dict = dict.Interface(k, fields[k])
	}
	entry.Dict("fields", dict).Msg("audit")
	return nil
}
