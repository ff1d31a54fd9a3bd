package httpapi

import (
	"errors"
	"net/http"

	"stockhelper.org/internal/auth"
)

type loginRequest struct {
	Name     string `json:"name"`
	Password string `json:"password"`
}

func (a *API) handleLogin(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	if a.login == nil {
		writeError(w, r, http.StatusServiceUnavailable, "login service unavailable")
		return
	}

	var req loginRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}

	user, err := a.login.Login(r.Context(), req.Name, req.Password)
	if err != nil {
		if errors.Is(err, auth.ErrInvalidCredentials) {
			a.audit(r.Context(), "auth.login.rejected", "user", "", map[string]string{"name": req.Name})
		}
		a.handleAuthError(w, r, err)
		return
	}
	ctx := auth.ContextWithUser(r.Context(), user)
	a.audit(ctx, "auth.login", "user", user.ID.String(), nil)
	writeJSON(w, http.StatusOK, toUserView(user))
}

// handleMe returns the authenticated caller with its effective permissions.
func (a *API) handleMe(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}
	user, ok := auth.UserFromContext(r.Context())
	if !ok {
		writeError(w, r, http.StatusUnauthorized, a.translate(r, "credentials required"))
		return
	}
	writeJSON(w, http.StatusOK, toUserView(user))
}
