// Package api exposes the gateway's HTTP surface: service registration and
// discovery, payment quotes, paid invocation and facilitator discovery.
package api

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/sirupsen/logrus"

	"github.com/paygate-labs/x402-gateway-go/auth"
	"github.com/paygate-labs/x402-gateway-go/dispatch"
	"github.com/paygate-labs/x402-gateway-go/gate"
	"github.com/paygate-labs/x402-gateway-go/registry"
	"github.com/paygate-labs/x402-gateway-go/types"
)

// PaymentHeader is the request header carrying the payment proof.
const PaymentHeader = "X-Payment"

// Handler serves the gateway routes.
type Handler struct {
	store      registry.Store
	gate       *gate.Gate
	dispatcher *dispatch.Dispatcher
	auth       *auth.Authenticator
	supported  []types.SupportedKind
	log        *logrus.Logger
}

// NewHandler creates the HTTP handler over the gateway components.
func NewHandler(
	store registry.Store,
	g *gate.Gate,
	dispatcher *dispatch.Dispatcher,
	authenticator *auth.Authenticator,
	supported []types.SupportedKind,
	log *logrus.Logger,
) *Handler {
	return &Handler{
		store:      store,
		gate:       g,
		dispatcher: dispatcher,
		auth:       authenticator,
		supported:  supported,
		log:        log,
	}
}

// Router builds the chi router for the gateway.
func (h *Handler) Router() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", h.healthz)
	r.Get("/facilitator", h.facilitator)

	r.Route("/services", func(r chi.Router) {
		r.With(h.auth.Middleware).Post("/", h.register)
		r.Get("/", h.list)
		r.Get("/{id}", h.get)
		r.With(h.auth.Middleware).Delete("/{id}", h.deactivate)
		r.Get("/{id}/quote", h.quote)
		r.Post("/{id}/invoke", h.invoke)
	})

	return r
}

func (h *Handler) healthz(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// writeJSON marshals the value and writes it with the status code.
func (h *Handler) writeJSON(w http.ResponseWriter, status int, v any) {

	// Marshal the response to JSON bytes
	body, err := json.Marshal(v)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	// Set the content type and write the status code
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	// Write the response bytes to the response body
	if _, err := w.Write(body); err != nil {
		// Header already written so we log the error
		h.log.WithField("error", err).Error("failed to write response")
	}
}

// writeError writes the typed error body for a rejected request.
func (h *Handler) writeError(w http.ResponseWriter, code types.ErrorCode, reason types.InvalidReason) {
	h.writeJSON(w, code.Status(), types.ErrorResponse{
		Error:  code,
		Reason: reason,
	})
}
