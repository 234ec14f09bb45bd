package api

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/paygate-labs/x402-gateway-go/gate"
	"github.com/paygate-labs/x402-gateway-go/types"
)

// invoke handles POST /services/{id}/invoke: the pay-per-call flow. Without
// a proof the caller gets a 402 challenge; with a valid proof the payment is
// settled and the requested task executes.
func (h *Handler) invoke(w http.ResponseWriter, r *http.Request) {

	// Decode the task request body
	var request types.InvokeRequest
	if err := json.NewDecoder(r.Body).Decode(&request); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	// Run the request through a fresh access-gate machine
	machine := h.gate.NewMachine(chi.URLParam(r, "id"))
	outcome, err := machine.Admit(r.Context(), r.Header.Get(PaymentHeader))
	if err != nil {
		h.log.WithField("error", err).Error("gate failure")
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}

	switch outcome.State {
	case gate.StateNotFound:
		h.writeError(w, types.ErrorCodeNotFound, "")
		return

	case gate.StateChallenged:
		// One-shot challenge: the requirements payload is self-describing,
		// so no server-side session links it to the redemption
		h.writeJSON(w, http.StatusPaymentRequired, types.PaymentRequiredResponse{
			X402Version: types.X402Version1,
			Error:       "payment required",
			Accepts:     []types.PaymentRequirements{outcome.Requirements},
		})
		return

	case gate.StateRejected:
		h.writeError(w, outcome.Code, outcome.Reason)
		return

	case gate.StateAdmitted:
		// Payment captured: dispatch the purchased task
		result, err := h.dispatcher.Dispatch(r.Context(), request.Task, request.Params)
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}

		h.writeJSON(w, http.StatusOK, types.InvokeResponse{
			Success:   true,
			ServiceID: outcome.Service.ID,
			Task:      request.Task,
			Result:    result,
			Settlement: types.InvokeSettlement{
				Status:      outcome.Receipt.Status,
				Amount:      outcome.Receipt.Amount,
				Network:     outcome.Requirements.Network,
				Transaction: outcome.Receipt.Transaction,
			},
			Timestamp: time.Now().UTC(),
		})
		return
	}

	http.Error(w, "Internal Server Error", http.StatusInternalServerError)
}
