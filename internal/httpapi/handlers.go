package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"stockhelper.org/internal/audit"
	"stockhelper.org/internal/auth"
	"stockhelper.org/internal/i18n"
	"stockhelper.org/internal/obs"
)

const defaultMaxBodyBytes = 1 << 20

// Pinger reports whether a backing store is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Deps are the collaborators of the admin API.
type Deps struct {
	Permissions *auth.PermissionService
	Users       *auth.UserService
	Login       *auth.LoginService
	// Translator localizes error messages. Nil leaves them in English.
	Translator *i18n.Translator
	// Ready is pinged by /readyz. Nil means always ready.
	Ready   Pinger
	Version string

	RatePerSecond float64
	RateBurst     int
	MaxBodyBytes  int64
}

// API is the HTTP layer.
type API struct {
	mux   *http.ServeMux
	perms *auth.PermissionService
	users *auth.UserService
	login *auth.LoginService
	tr    *i18n.Translator
	ready Pinger

	version       string
	ratePerSecond float64
	rateBurst     int
	maxBodyBytes  int64
}

func New(d Deps) *API {
	a := &API{
		mux:           http.NewServeMux(),
		perms:         d.Permissions,
		users:         d.Users,
		login:         d.Login,
		tr:            d.Translator,
		ready:         d.Ready,
		version:       d.Version,
		ratePerSecond: d.RatePerSecond,
		rateBurst:     d.RateBurst,
		maxBodyBytes:  d.MaxBodyBytes,
	}
	if a.maxBodyBytes <= 0 {
		a.maxBodyBytes = defaultMaxBodyBytes
	}

	// health/ready/info
	a.mux.HandleFunc("/healthz", a.Healthz)
	a.mux.HandleFunc("/readyz", a.Ready)
	a.mux.HandleFunc("/v1/info", a.Info)
	a.mux.Handle("/metrics", obs.Handler())

	a.mux.HandleFunc("/v1/login", a.handleLogin)
	a.mux.HandleFunc("/v1/me", a.handleMe)

	a.mux.HandleFunc("/v1/patents", a.handlePatents)
	a.mux.HandleFunc("/v1/families", a.handleFamilies)
	a.mux.HandleFunc("/v1/components/{id}", a.handleComponent)

	a.mux.HandleFunc("/v1/users", a.handleUsers)
	a.mux.HandleFunc("/v1/users/{id}", a.handleUser)

	a.mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		writeError(w, r, http.StatusNotFound, a.translate(r, "resource not found"))
	})

	return a
}

// Handler wraps the routes with the middleware chain.
func (a *API) Handler() http.Handler {
	var h http.Handler = a.mux
	h = a.withAuth(h)
	h = MaxBodyBytes(h, a.maxBodyBytes)
	if a.ratePerSecond > 0 && a.rateBurst > 0 {
		h = RateLimit(h, a.rateBurst, a.ratePerSecond)
	}
	h = SecurityHeaders(h)
	h = Logging(h)
	h = RequestID(h)
	return obs.Instrument(h)
}

func (a *API) Healthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"service": "stockhelper-api",
		"version": a.version,
	})
}

func (a *API) Ready(w http.ResponseWriter, r *http.Request) {
	if a.ready != nil {
		if err := a.ready.Ping(r.Context()); err != nil {
			writeJSON(w, http.StatusServiceUnavailable, map[string]any{
				"status": "not_ready",
				"error":  err.Error(),
			})
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status": "ready",
	})
}

func (a *API) Info(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"name":    "stockhelper-api",
		"time":    time.Now().UTC().Format(time.RFC3339),
		"version": a.version,
	})
}

// translate localizes msg for the request's Accept-Language.
func (a *API) translate(r *http.Request, msg string) string {
	if a.tr == nil {
		return msg
	}
	return a.tr.Translate(a.tr.Match(r.Header.Get("Accept-Language")), msg)
}

func (a *API) audit(ctx context.Context, event, resourceType, resourceID string, fields map[string]string) {
	payload := map[string]any{
		"resource_type": resourceType,
		"resource_id":   resourceID,
	}
	for k, v := range fields {
		payload[k] = v
	}
	_ = audit.LogEvent(ctx, event, payload)
}

// --- helpers ---

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, r *http.Request, code int, msg string) {
	writeErrorPayload(w, r, code, map[string]any{"error": msg})
}

func writeErrorPayload(w http.ResponseWriter, r *http.Request, code int, payload map[string]any) {
	if rid := audit.RequestIDFromContext(r.Context()); rid != "" {
		payload["request_id"] = rid
	}
	writeJSON(w, code, payload)
}

func methodNotAllowed(w http.ResponseWriter, r *http.Request, allowed ...string) {
	w.Header().Set("Allow", strings.Join(allowed, ", "))
	writeError(w, r, http.StatusMethodNotAllowed, "method not allowed")
}

func decodeJSON(r *http.Request, dst any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return errors.New("request body is required")
		}
		return err
	}
	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		if err == nil {
			return errors.New("unexpected data after JSON body")
		}
		return err
	}
	return nil
}
