package handlers

import (
	"net/http"

	"github.com/go-chi/chi"

	"github.com/danilovkiri/dk-go-balance-tracker/internal/models/modeldto"
)

// HandleLogin processes user login requests.
func (h *Handler) HandleLogin() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := h.requestContext(r)
		defer cancel()
		var credentials modeldto.Credentials
		if err := h.decode(w, r, &credentials); err != nil {
			h.fail(w, "HandleLogin", err)
			return
		}
		h.log.Info().Msgf("login request detected for %s", credentials.Username)
		token, err := h.service.Login(ctx, credentials)
		if err != nil {
			h.fail(w, "HandleLogin", err)
			return
		}
		h.respond(w, "HandleLogin", http.StatusOK, token)
	}
}

// HandleRegister processes user register requests.
func (h *Handler) HandleRegister() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := h.requestContext(r)
		defer cancel()
		var req modeldto.RegisterRequest
		if err := h.decode(w, r, &req); err != nil {
			h.fail(w, "HandleRegister", err)
			return
		}
		h.log.Info().Msgf("new user register request detected for %s", req.Username)
		user, err := h.service.Register(ctx, req)
		if err != nil {
			h.fail(w, "HandleRegister", err)
			return
		}
		h.respond(w, "HandleRegister", http.StatusCreated, user)
	}
}

// HandleMe returns the profile of the caller.
func (h *Handler) HandleMe() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := h.requestContext(r)
		defer cancel()
		p, err := principal(r)
		if err != nil {
			h.fail(w, "HandleMe", err)
			return
		}
		user, err := h.service.Me(ctx, p)
		if err != nil {
			h.fail(w, "HandleMe", err)
			return
		}
		h.respond(w, "HandleMe", http.StatusOK, user)
	}
}

// HandleChangePassword processes password change requests.
func (h *Handler) HandleChangePassword() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := h.requestContext(r)
		defer cancel()
		p, err := principal(r)
		if err != nil {
			h.fail(w, "HandleChangePassword", err)
			return
		}
		var req modeldto.ChangePasswordRequest
		if err = h.decode(w, r, &req); err != nil {
			h.fail(w, "HandleChangePassword", err)
			return
		}
		token, err := h.service.ChangePassword(ctx, p, req)
		if err != nil {
			h.fail(w, "HandleChangePassword", err)
			return
		}
		h.respond(w, "HandleChangePassword", http.StatusOK, token)
	}
}

// HandleCreateAPIKey issues an API key for the caller.
func (h *Handler) HandleCreateAPIKey() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := h.requestContext(r)
		defer cancel()
		p, err := principal(r)
		if err != nil {
			h.fail(w, "HandleCreateAPIKey", err)
			return
		}
		var req modeldto.APIKeyRequest
		if err = h.decode(w, r, &req); err != nil {
			h.fail(w, "HandleCreateAPIKey", err)
			return
		}
		key, err := h.service.CreateAPIKey(ctx, p, req)
		if err != nil {
			h.fail(w, "HandleCreateAPIKey", err)
			return
		}
		h.respond(w, "HandleCreateAPIKey", http.StatusCreated, key)
	}
}

// HandleListAPIKeys lists the API keys of the caller.
func (h *Handler) HandleListAPIKeys() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := h.requestContext(r)
		defer cancel()
		p, err := principal(r)
		if err != nil {
			h.fail(w, "HandleListAPIKeys", err)
			return
		}
		keys, err := h.service.ListAPIKeys(ctx, p)
		if err != nil {
			h.fail(w, "HandleListAPIKeys", err)
			return
		}
		h.respond(w, "HandleListAPIKeys", http.StatusOK, keys)
	}
}

// HandleRevokeAPIKey revokes an API key.
func (h *Handler) HandleRevokeAPIKey() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := h.requestContext(r)
		defer cancel()
		p, err := principal(r)
		if err != nil {
			h.fail(w, "HandleRevokeAPIKey", err)
			return
		}
		if err = h.service.RevokeAPIKey(ctx, p, chi.URLParam(r, "id")); err != nil {
			h.fail(w, "HandleRevokeAPIKey", err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}
