package httpapi

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/google/uuid"

	"stockhelper.org/internal/auth"
)

type componentView struct {
	ID       uuid.UUID       `json:"id"`
	Name     string          `json:"name"`
	Kind     auth.Kind       `json:"kind"`
	Children []componentView `json:"children,omitempty"`
}

type userView struct {
	ID          uuid.UUID `json:"id"`
	Name        string    `json:"name"`
	IsActive    bool      `json:"is_active"`
	Role        string    `json:"role,omitempty"`
	Roles       []string  `json:"roles"`
	Permissions []string  `json:"permissions"`
}

type patentRequest struct {
	Name string `json:"name"`
}

type familyRequest struct {
	Name     string      `json:"name"`
	Children []uuid.UUID `json:"children"`
}

// componentUpdateRequest leaves a family's children unchanged when Children is absent.
type componentUpdateRequest struct {
	Name     string       `json:"name"`
	Children *[]uuid.UUID `json:"children"`
}

type userRequest struct {
	Name     string `json:"name"`
	Password string `json:"password"`
	Role     string `json:"role"`
	IsActive *bool  `json:"is_active"`
}

func toComponentView(c auth.Component) componentView {
	meta := c.Identity()
	v := componentView{ID: meta.ID, Name: meta.Name, Kind: c.Kind()}
	for _, child := range c.Children() {
		v.Children = append(v.Children, toComponentView(child))
	}
	return v
}

func toUserView(u *auth.User) userView {
	v := userView{
		ID:          u.ID,
		Name:        u.Name,
		IsActive:    u.IsActive,
		Role:        u.Role,
		Roles:       []string{},
		Permissions: u.PermissionNames(),
	}
	for _, f := range u.Roles() {
		v.Roles = append(v.Roles, f.Name)
	}
	if v.Permissions == nil {
		v.Permissions = []string{}
	}
	return v
}

// --- components ---

func (a *API) handlePatents(w http.ResponseWriter, r *http.Request) {
	if !a.ensurePermissions(w, r, auth.PermPermissionManagement) {
		return
	}
	switch r.Method {
	case http.MethodGet:
		patents, err := a.perms.Patents(r.Context())
		if err != nil {
			a.handleAuthError(w, r, err)
			return
		}
		out := make([]componentView, 0, len(patents))
		for _, p := range patents {
			out = append(out, toComponentView(p))
		}
		writeJSON(w, http.StatusOK, out)
	case http.MethodPost:
		var req patentRequest
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, r, http.StatusBadRequest, err.Error())
			return
		}
		p := auth.NewPatent(req.Name)
		if err := a.perms.Insert(r.Context(), p); err != nil {
			a.handleAuthError(w, r, err)
			return
		}
		a.audit(r.Context(), "rbac.patent.create", "patent", p.ID.String(), map[string]string{"name": p.Name})
		w.Header().Set("Location", fmt.Sprintf("/v1/components/%s", p.ID))
		writeJSON(w, http.StatusCreated, toComponentView(p))
	default:
		methodNotAllowed(w, r, http.MethodGet, http.MethodPost)
	}
}

func (a *API) handleFamilies(w http.ResponseWriter, r *http.Request) {
	if !a.ensurePermissions(w, r, auth.PermPermissionManagement) {
		return
	}
	switch r.Method {
	case http.MethodGet:
		families, err := a.perms.Families(r.Context())
		if err != nil {
			a.handleAuthError(w, r, err)
			return
		}
		out := make([]componentView, 0, len(families))
		for _, f := range families {
			out = append(out, toComponentView(f))
		}
		writeJSON(w, http.StatusOK, out)
	case http.MethodPost:
		var req familyRequest
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, r, http.StatusBadRequest, err.Error())
			return
		}
		children, err := a.resolveChildren(r, req.Children)
		if err != nil {
			a.handleAuthError(w, r, err)
			return
		}
		f := auth.NewFamily(req.Name, children...)
		if err := a.perms.Insert(r.Context(), f); err != nil {
			a.handleAuthError(w, r, err)
			return
		}
		a.audit(r.Context(), "rbac.family.create", "family", f.ID.String(), map[string]string{
			"name":     f.Name,
			"children": strconv.Itoa(len(children)),
		})
		w.Header().Set("Location", fmt.Sprintf("/v1/components/%s", f.ID))
		writeJSON(w, http.StatusCreated, toComponentView(f))
	default:
		methodNotAllowed(w, r, http.MethodGet, http.MethodPost)
	}
}

func (a *API) handleComponent(w http.ResponseWriter, r *http.Request) {
	if !a.ensurePermissions(w, r, auth.PermPermissionManagement) {
		return
	}
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		writeError(w, r, http.StatusBadRequest, a.translate(r, "invalid id"))
		return
	}
	switch r.Method {
	case http.MethodGet:
		c, err := a.perms.GetByID(r.Context(), id)
		if err != nil {
			a.handleAuthError(w, r, err)
			return
		}
		if c == nil {
			writeError(w, r, http.StatusNotFound, a.translate(r, "component not found"))
			return
		}
		writeJSON(w, http.StatusOK, toComponentView(c))
	case http.MethodPut:
		a.updateComponent(w, r, id)
	case http.MethodDelete:
		if err := a.perms.Delete(r.Context(), id); err != nil {
			a.handleAuthError(w, r, err)
			return
		}
		a.audit(r.Context(), "rbac.component.delete", "component", id.String(), nil)
		w.WriteHeader(http.StatusNoContent)
	default:
		methodNotAllowed(w, r, http.MethodGet, http.MethodPut, http.MethodDelete)
	}
}

func (a *API) updateComponent(w http.ResponseWriter, r *http.Request, id uuid.UUID) {
	var req componentUpdateRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	current, err := a.perms.GetByID(r.Context(), id)
	if err != nil {
		a.handleAuthError(w, r, err)
		return
	}
	if current == nil {
		writeError(w, r, http.StatusNotFound, a.translate(r, "component not found"))
		return
	}

	if strings.TrimSpace(req.Name) == "" {
		req.Name = current.Identity().Name
	}

	// cached components are shared, so the update works on a fresh value
	var next auth.Component
	switch current.Kind() {
	case auth.KindFamily:
		children := current.Children()
		if req.Children != nil {
			if children, err = a.resolveChildren(r, *req.Children); err != nil {
				a.handleAuthError(w, r, err)
				return
			}
		}
		f := auth.NewFamily(req.Name, children...)
		f.ID = id
		next = f
	default:
		if req.Children != nil {
			a.handleAuthError(w, r, auth.ErrLeafComponent)
			return
		}
		p := auth.NewPatent(req.Name)
		p.ID = id
		next = p
	}
	if err := a.perms.Update(r.Context(), next); err != nil {
		a.handleAuthError(w, r, err)
		return
	}
	a.audit(r.Context(), "rbac.component.update", string(next.Kind()), id.String(), map[string]string{
		"name": next.Identity().Name,
	})
	writeJSON(w, http.StatusOK, toComponentView(next))
}

// resolveChildren maps ids onto catalog components.
func (a *API) resolveChildren(r *http.Request, ids []uuid.UUID) ([]auth.Component, error) {
	out := make([]auth.Component, 0, len(ids))
	for _, id := range ids {
		c, err := a.perms.GetByID(r.Context(), id)
		if err != nil {
			return nil, err
		}
		if c == nil {
			return nil, fmt.Errorf("%w: component %s", auth.ErrReferenceNotFound, id)
		}
		out = append(out, c)
	}
	return out, nil
}

// --- users ---

func (a *API) handleUsers(w http.ResponseWriter, r *http.Request) {
	if !a.ensurePermissions(w, r, auth.PermUserManagement) {
		return
	}
	switch r.Method {
	case http.MethodGet:
		var (
			users []*auth.User
			err   error
		)
		if active, _ := strconv.ParseBool(r.URL.Query().Get("active")); active {
			users, err = a.users.GetAllActive(r.Context())
		} else {
			users, err = a.users.GetAll(r.Context())
		}
		if err != nil {
			a.handleAuthError(w, r, err)
			return
		}
		out := make([]userView, 0, len(users))
		for _, u := range users {
			out = append(out, toUserView(u))
		}
		writeJSON(w, http.StatusOK, out)
	case http.MethodPost:
		var req userRequest
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, r, http.StatusBadRequest, err.Error())
			return
		}
		u := &auth.User{Name: req.Name, Password: req.Password, Role: req.Role, IsActive: true}
		if req.IsActive != nil {
			u.IsActive = *req.IsActive
		}
		if err := a.users.Insert(r.Context(), u); err != nil {
			a.handleAuthError(w, r, err)
			return
		}
		a.audit(r.Context(), "rbac.user.create", "user", u.ID.String(), map[string]string{
			"name": u.Name,
			"role": u.Role,
		})
		w.Header().Set("Location", fmt.Sprintf("/v1/users/%s", u.ID))
		writeJSON(w, http.StatusCreated, toUserView(u))
	default:
		methodNotAllowed(w, r, http.MethodGet, http.MethodPost)
	}
}

func (a *API) handleUser(w http.ResponseWriter, r *http.Request) {
	if !a.ensurePermissions(w, r, auth.PermUserManagement) {
		return
	}
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		writeError(w, r, http.StatusBadRequest, a.translate(r, "invalid id"))
		return
	}
	switch r.Method {
	case http.MethodGet:
		u, err := a.users.GetByID(r.Context(), id)
		if err != nil {
			a.handleAuthError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, toUserView(u))
	case http.MethodPut:
		var req userRequest
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, r, http.StatusBadRequest, err.Error())
			return
		}
		current, err := a.users.GetByID(r.Context(), id)
		if err != nil {
			a.handleAuthError(w, r, err)
			return
		}
		u := &auth.User{ID: id, Name: req.Name, Password: req.Password, Role: req.Role, IsActive: current.IsActive}
		if strings.TrimSpace(u.Name) == "" {
			u.Name = current.Name
		}
		if req.IsActive != nil {
			u.IsActive = *req.IsActive
		}
		if err := a.users.Update(r.Context(), u); err != nil {
			a.handleAuthError(w, r, err)
			return
		}
		updated, err := a.users.GetByID(r.Context(), id)
		if err != nil {
			a.handleAuthError(w, r, err)
			return
		}
		a.audit(r.Context(), "rbac.user.update", "user", id.String(), map[string]string{
			"name":            updated.Name,
			"role":            updated.Role,
			"active":          strconv.FormatBool(updated.IsActive),
			"password_change": strconv.FormatBool(req.Password != ""),
		})
		writeJSON(w, http.StatusOK, toUserView(updated))
	case http.MethodDelete:
		if err := a.users.Delete(r.Context(), id); err != nil {
			a.handleAuthError(w, r, err)
			return
		}
		a.audit(r.Context(), "rbac.user.delete", "user", id.String(), nil)
		w.WriteHeader(http.StatusNoContent)
	default:
		methodNotAllowed(w, r, http.MethodGet, http.MethodPut, http.MethodDelete)
	}
}

// handleAuthError maps the auth error taxonomy onto status codes. The error
// message is translated; the raw error goes into "detail" for client errors only.
func (a *API) handleAuthError(w http.ResponseWriter, r *http.Request, err error) {
	var inUse *auth.FamilyInUseError
	if errors.As(err, &inUse) {
		writeErrorPayload(w, r, http.StatusConflict, map[string]any{
			"error":  a.translate(r, "role is assigned to users"),
			"detail": err.Error(),
			"users":  inUse.Users,
		})
		return
	}

	var (
		code int
		msg  string
	)
	switch {
	case errors.Is(err, auth.ErrInvalidInput), errors.Is(err, auth.ErrLeafComponent):
		code, msg = http.StatusBadRequest, "invalid request"
	case errors.Is(err, auth.ErrInvalidCredentials):
		code, msg = http.StatusUnauthorized, "invalid credentials"
	case errors.Is(err, auth.ErrForbidden):
		code, msg = http.StatusForbidden, "permission denied"
	case errors.Is(err, auth.ErrNotFound):
		code, msg = http.StatusNotFound, "resource not found"
	case errors.Is(err, auth.ErrReferenceNotFound):
		code, msg = http.StatusNotFound, "referenced resource not found"
	case errors.Is(err, auth.ErrBusinessRule):
		code, msg = http.StatusConflict, "request conflicts with existing data"
	case errors.Is(err, auth.ErrResourceExhausted):
		code, msg = http.StatusInternalServerError, "could not allocate an identifier"
	default:
		code, msg = http.StatusInternalServerError, "internal error"
	}
	payload := map[string]any{"error": a.translate(r, msg)}
	if code < http.StatusInternalServerError && code != http.StatusUnauthorized {
		payload["detail"] = err.Error()
	}
	writeErrorPayload(w, r, code, payload)
}
