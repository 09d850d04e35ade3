package handlers

import (
	"net/http"

	"github.com/go-chi/chi"

	"github.com/danilovkiri/dk-go-balance-tracker/internal/models/modeldto"
)

// HandleListCurrencies lists currencies; ?active=true hides inactive ones.
func (h *Handler) HandleListCurrencies() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := h.requestContext(r)
		defer cancel()
		active, err := queryBool(r, "active")
		if err != nil {
			h.fail(w, "HandleListCurrencies", err)
			return
		}
		currencies, err := h.service.ListCurrencies(ctx, active != nil && *active)
		if err != nil {
			h.fail(w, "HandleListCurrencies", err)
			return
		}
		h.respond(w, "HandleListCurrencies", http.StatusOK, currencies)
	}
}

// HandleGetCurrency returns a single currency.
func (h *Handler) HandleGetCurrency() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := h.requestContext(r)
		defer cancel()
		currency, err := h.service.GetCurrency(ctx, chi.URLParam(r, "code"))
		if err != nil {
			h.fail(w, "HandleGetCurrency", err)
			return
		}
		h.respond(w, "HandleGetCurrency", http.StatusOK, currency)
	}
}

// HandleCreateCurrency registers a currency.
func (h *Handler) HandleCreateCurrency() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := h.requestContext(r)
		defer cancel()
		var req modeldto.CurrencyRequest
		if err := h.decode(w, r, &req); err != nil {
			h.fail(w, "HandleCreateCurrency", err)
			return
		}
		currency, err := h.service.CreateCurrency(ctx, req)
		if err != nil {
			h.fail(w, "HandleCreateCurrency", err)
			return
		}
		h.respond(w, "HandleCreateCurrency", http.StatusCreated, currency)
	}
}

// HandleUpdateCurrency changes a currency.
func (h *Handler) HandleUpdateCurrency() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := h.requestContext(r)
		defer cancel()
		var req modeldto.UpdateCurrencyRequest
		if err := h.decode(w, r, &req); err != nil {
			h.fail(w, "HandleUpdateCurrency", err)
			return
		}
		currency, err := h.service.UpdateCurrency(ctx, chi.URLParam(r, "code"), req)
		if err != nil {
			h.fail(w, "HandleUpdateCurrency", err)
			return
		}
		h.respond(w, "HandleUpdateCurrency", http.StatusOK, currency)
	}
}

// HandleSyncRates refreshes exchange rates from the rates provider.
func (h *Handler) HandleSyncRates() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := h.requestContext(r)
		defer cancel()
		result, err := h.service.SyncRates(ctx)
		if err != nil {
			h.fail(w, "HandleSyncRates", err)
			return
		}
		h.respond(w, "HandleSyncRates", http.StatusOK, result)
	}
}
