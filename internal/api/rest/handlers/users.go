package handlers

import (
	"net/http"

	"github.com/go-chi/chi"

	"github.com/danilovkiri/dk-go-balance-tracker/internal/models/modeldto"
)

// HandleListUsers lists users, optionally by role and activity.
func (h *Handler) HandleListUsers() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := h.requestContext(r)
		defer cancel()
		query := modeldto.UserQuery{Role: r.URL.Query().Get("role")}
		var err error
		if query.Active, err = queryBool(r, "active"); err != nil {
			h.fail(w, "HandleListUsers", err)
			return
		}
		if query.Limit, query.Offset, err = pagination(r); err != nil {
			h.fail(w, "HandleListUsers", err)
			return
		}
		users, err := h.service.ListUsers(ctx, query)
		if err != nil {
			h.fail(w, "HandleListUsers", err)
			return
		}
		h.respond(w, "HandleListUsers", http.StatusOK, users)
	}
}

// HandleCreateUser creates a user.
func (h *Handler) HandleCreateUser() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := h.requestContext(r)
		defer cancel()
		p, err := principal(r)
		if err != nil {
			h.fail(w, "HandleCreateUser", err)
			return
		}
		var req modeldto.CreateUserRequest
		if err = h.decode(w, r, &req); err != nil {
			h.fail(w, "HandleCreateUser", err)
			return
		}
		user, err := h.service.CreateUser(ctx, p, req)
		if err != nil {
			h.fail(w, "HandleCreateUser", err)
			return
		}
		h.respond(w, "HandleCreateUser", http.StatusCreated, user)
	}
}

// HandleGetUser returns a single user.
func (h *Handler) HandleGetUser() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := h.requestContext(r)
		defer cancel()
		p, err := principal(r)
		if err != nil {
			h.fail(w, "HandleGetUser", err)
			return
		}
		user, err := h.service.GetUser(ctx, p, chi.URLParam(r, "id"))
		if err != nil {
			h.fail(w, "HandleGetUser", err)
			return
		}
		h.respond(w, "HandleGetUser", http.StatusOK, user)
	}
}

// HandleUpdateUser changes a user.
func (h *Handler) HandleUpdateUser() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := h.requestContext(r)
		defer cancel()
		p, err := principal(r)
		if err != nil {
			h.fail(w, "HandleUpdateUser", err)
			return
		}
		var req modeldto.UpdateUserRequest
		if err = h.decode(w, r, &req); err != nil {
			h.fail(w, "HandleUpdateUser", err)
			return
		}
		user, err := h.service.UpdateUser(ctx, p, chi.URLParam(r, "id"), req)
		if err != nil {
			h.fail(w, "HandleUpdateUser", err)
			return
		}
		h.respond(w, "HandleUpdateUser", http.StatusOK, user)
	}
}

// HandleDeleteUser deactivates a user.
func (h *Handler) HandleDeleteUser() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := h.requestContext(r)
		defer cancel()
		p, err := principal(r)
		if err != nil {
			h.fail(w, "HandleDeleteUser", err)
			return
		}
		if err = h.service.DeactivateUser(ctx, p, chi.URLParam(r, "id")); err != nil {
			h.fail(w, "HandleDeleteUser", err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

// HandleResetPassword replaces the password of a user with a temporary one.
func (h *Handler) HandleResetPassword() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := h.requestContext(r)
		defer cancel()
		p, err := principal(r)
		if err != nil {
			h.fail(w, "HandleResetPassword", err)
			return
		}
		reset, err := h.service.ResetPassword(ctx, p, chi.URLParam(r, "id"))
		if err != nil {
			h.fail(w, "HandleResetPassword", err)
			return
		}
		h.respond(w, "HandleResetPassword", http.StatusOK, reset)
	}
}
