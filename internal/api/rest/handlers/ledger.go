package handlers

import (
	"net/http"

	"github.com/go-chi/chi"

	"github.com/danilovkiri/dk-go-balance-tracker/internal/models/modeldto"
)

// HandleListBalances lists balances of the caller, or of ?user_id= for admins.
func (h *Handler) HandleListBalances() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := h.requestContext(r)
		defer cancel()
		p, err := principal(r)
		if err != nil {
			h.fail(w, "HandleListBalances", err)
			return
		}
		balances, err := h.service.ListBalances(ctx, p, r.URL.Query().Get("user_id"))
		if err != nil {
			h.fail(w, "HandleListBalances", err)
			return
		}
		h.respond(w, "HandleListBalances", http.StatusOK, balances)
	}
}

// HandleGetBalance returns one balance.
func (h *Handler) HandleGetBalance() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := h.requestContext(r)
		defer cancel()
		p, err := principal(r)
		if err != nil {
			h.fail(w, "HandleGetBalance", err)
			return
		}
		balance, err := h.service.GetBalance(ctx, p, r.URL.Query().Get("user_id"), chi.URLParam(r, "currency"))
		if err != nil {
			h.fail(w, "HandleGetBalance", err)
			return
		}
		h.respond(w, "HandleGetBalance", http.StatusOK, balance)
	}
}

// HandleGetTotal sums balances in ?currency=, the base currency by default.
func (h *Handler) HandleGetTotal() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := h.requestContext(r)
		defer cancel()
		p, err := principal(r)
		if err != nil {
			h.fail(w, "HandleGetTotal", err)
			return
		}
		query := r.URL.Query()
		total, err := h.service.GetTotal(ctx, p, query.Get("user_id"), query.Get("currency"))
		if err != nil {
			h.fail(w, "HandleGetTotal", err)
			return
		}
		h.respond(w, "HandleGetTotal", http.StatusOK, total)
	}
}

// HandleCreateTransaction processes deposits, withdrawals, transfers and exchanges.
func (h *Handler) HandleCreateTransaction() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := h.requestContext(r)
		defer cancel()
		p, err := principal(r)
		if err != nil {
			h.fail(w, "HandleCreateTransaction", err)
			return
		}
		var req modeldto.TransactionRequest
		if err = h.decode(w, r, &req); err != nil {
			h.fail(w, "HandleCreateTransaction", err)
			return
		}
		h.log.Info().Msgf("new %s request detected for %s %s by %s", req.Type, req.Amount, req.Currency, p.Username)
		tx, err := h.service.CreateTransaction(ctx, p, req)
		if err != nil {
			h.fail(w, "HandleCreateTransaction", err)
			return
		}
		h.respond(w, "HandleCreateTransaction", http.StatusCreated, tx)
	}
}

// HandleAdjustBalance applies an administrative correction.
func (h *Handler) HandleAdjustBalance() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := h.requestContext(r)
		defer cancel()
		p, err := principal(r)
		if err != nil {
			h.fail(w, "HandleAdjustBalance", err)
			return
		}
		var req modeldto.AdjustBalanceRequest
		if err = h.decode(w, r, &req); err != nil {
			h.fail(w, "HandleAdjustBalance", err)
			return
		}
		tx, err := h.service.AdjustBalance(ctx, p, req)
		if err != nil {
			h.fail(w, "HandleAdjustBalance", err)
			return
		}
		h.respond(w, "HandleAdjustBalance", http.StatusCreated, tx)
	}
}

// HandleListTransactions lists transactions, filtered by the query string.
func (h *Handler) HandleListTransactions() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := h.requestContext(r)
		defer cancel()
		p, err := principal(r)
		if err != nil {
			h.fail(w, "HandleListTransactions", err)
			return
		}
		values := r.URL.Query()
		query := modeldto.TransactionQuery{
			UserID:   values.Get("user_id"),
			Type:     values.Get("type"),
			Currency: values.Get("currency"),
		}
		if query.From, err = queryTime(r, "from"); err != nil {
			h.fail(w, "HandleListTransactions", err)
			return
		}
		if query.To, err = queryTime(r, "to"); err != nil {
			h.fail(w, "HandleListTransactions", err)
			return
		}
		if query.Limit, query.Offset, err = pagination(r); err != nil {
			h.fail(w, "HandleListTransactions", err)
			return
		}
		transactions, err := h.service.ListTransactions(ctx, p, query)
		if err != nil {
			h.fail(w, "HandleListTransactions", err)
			return
		}
		h.respond(w, "HandleListTransactions", http.StatusOK, transactions)
	}
}

// HandleGetTransaction returns a single transaction.
func (h *Handler) HandleGetTransaction() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := h.requestContext(r)
		defer cancel()
		p, err := principal(r)
		if err != nil {
			h.fail(w, "HandleGetTransaction", err)
			return
		}
		tx, err := h.service.GetTransaction(ctx, p, chi.URLParam(r, "id"))
		if err != nil {
			h.fail(w, "HandleGetTransaction", err)
			return
		}
		h.respond(w, "HandleGetTransaction", http.StatusOK, tx)
	}
}

// HandleStats returns figures for the admin dashboard.
func (h *Handler) HandleStats() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := h.requestContext(r)
		defer cancel()
		stats, err := h.service.Stats(ctx)
		if err != nil {
			h.fail(w, "HandleStats", err)
			return
		}
		h.respond(w, "HandleStats", http.StatusOK, stats)
	}
}

// HandleHealth reports the state of the database and of the rate limiter backend.
func (h *Handler) HandleHealth() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := h.requestContext(r)
		defer cancel()
		health := modeldto.Health{Status: "ok", Database: "ok", RateLimiter: "disabled"}
		status := http.StatusOK
		if err := h.service.Ping(ctx); err != nil {
			h.log.Error().Err(err).Msg("database health check failed")
			health.Status, health.Database = "unavailable", "unavailable"
			status = http.StatusServiceUnavailable
		}
		if h.limiter != nil {
			health.RateLimiter = h.limiter.Status(ctx)
		}
		h.respond(w, "HandleHealth", status, health)
	}
}
