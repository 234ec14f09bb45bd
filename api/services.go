package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/paygate-labs/x402-gateway-go/gate"
	"github.com/paygate-labs/x402-gateway-go/registry"
	"github.com/paygate-labs/x402-gateway-go/types"
)

// register handles POST /services. Duplicate identifiers upsert: descriptor
// fields are replaced while counters and registration time survive.
func (h *Handler) register(w http.ResponseWriter, r *http.Request) {

	// Decode the registration descriptor
	var descriptor types.ServiceDescriptor
	if err := json.NewDecoder(r.Body).Decode(&descriptor); err != nil {
		h.writeError(w, types.ErrorCodeInvalidDescriptor, "")
		return
	}

	// Register the service; no partial record is created on failure
	record, err := h.store.Register(r.Context(), descriptor)
	if errors.Is(err, registry.ErrInvalidDescriptor) {
		h.writeError(w, types.ErrorCodeInvalidDescriptor, "")
		return
	}
	if err != nil {
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}

	h.log.WithField("service", record.ID).Info("service registered")
	h.writeJSON(w, http.StatusOK, record)
}

// list handles GET /services.
func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	records, err := h.store.List(r.Context())
	if err != nil {
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}
	if records == nil {
		records = []types.ServiceRecord{}
	}
	h.writeJSON(w, http.StatusOK, records)
}

// get handles GET /services/{id}.
func (h *Handler) get(w http.ResponseWriter, r *http.Request) {
	record, err := h.store.Get(r.Context(), chi.URLParam(r, "id"))
	if errors.Is(err, registry.ErrNotFound) {
		h.writeError(w, types.ErrorCodeNotFound, "")
		return
	}
	if err != nil {
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}
	h.writeJSON(w, http.StatusOK, record)
}

// deactivate handles DELETE /services/{id}.
func (h *Handler) deactivate(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	err := h.store.Deactivate(r.Context(), id)
	if errors.Is(err, registry.ErrNotFound) {
		h.writeError(w, types.ErrorCodeNotFound, "")
		return
	}
	if err != nil {
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}

	h.log.WithField("service", id).Info("service deactivated")
	h.writeJSON(w, http.StatusOK, map[string]string{"id": id, "status": string(types.ServiceStatusInactive)})
}

// quote handles GET /services/{id}/quote: a dry-run challenge without the
// 402 status, for callers that want the price before invoking.
func (h *Handler) quote(w http.ResponseWriter, r *http.Request) {

	// Run the machine without a proof; CHALLENGED carries the requirements
	machine := h.gate.NewMachine(chi.URLParam(r, "id"))
	outcome, err := machine.Admit(r.Context(), "")
	if err != nil {
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}

	if outcome.State != gate.StateChallenged {
		h.writeError(w, types.ErrorCodeNotFound, "")
		return
	}

	h.writeJSON(w, http.StatusOK, types.QuoteResponse{
		Service: outcome.Service,
		Payment: types.QuotePayment{
			X402Version: types.X402Version1,
			Accepts:     []types.PaymentRequirements{outcome.Requirements},
		},
	})
}
