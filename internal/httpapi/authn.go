package httpapi

import (
	"errors"
	"net/http"

	"stockhelper.org/internal/auth"
)

const realm = `Basic realm="stockhelper", charset="UTF-8"`

var publicPaths = []string{
	"/v1/login",
	"/v1/info",
	"/metrics",
	"/healthz",
	"/readyz",
}

// withAuth resolves HTTP Basic credentials through the login service and
// stores the user in the request context.
func (a *API) withAuth(next http.Handler) http.Handler {
	if a == nil || a.login == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if isPublicPath(r.URL.Path) {
			next.ServeHTTP(w, r)
			return
		}

		name, password, ok := r.BasicAuth()
		if !ok {
			w.Header().Set("WWW-Authenticate", realm)
			writeError(w, r, http.StatusUnauthorized, a.translate(r, "credentials required"))
			return
		}
		user, err := a.login.Login(r.Context(), name, password)
		if err != nil {
			if errors.Is(err, auth.ErrInvalidCredentials) {
				w.Header().Set("WWW-Authenticate", realm)
				writeError(w, r, http.StatusUnauthorized, a.translate(r, "invalid credentials"))
				return
			}
			writeError(w, r, http.StatusInternalServerError, a.translate(r, "authentication error"))
			return
		}
		next.ServeHTTP(w, r.WithContext(auth.ContextWithUser(r.Context(), user)))
	})
}

// ensurePermissions writes 401/403 and returns false unless the caller holds every permission.
func (a *API) ensurePermissions(w http.ResponseWriter, r *http.Request, perms ...string) bool {
	if a.login == nil {
		return true
	}
	user, ok := auth.UserFromContext(r.Context())
	if !ok {
		writeError(w, r, http.StatusUnauthorized, a.translate(r, "credentials required"))
		return false
	}
	if !user.HasAllPermissions(perms...) {
		writeErrorPayload(w, r, http.StatusForbidden, map[string]any{
			"error":    a.translate(r, "permission denied"),
			"required": perms,
		})
		return false
	}
	return true
}

func isPublicPath(path string) bool {
	for _, p := range publicPaths {
		if path == p {
			return true
		}
	}
	return false
}
