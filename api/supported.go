package api

import (
	"net/http"

	"github.com/paygate-labs/x402-gateway-go/types"
)

// facilitator handles GET /facilitator?query=supportedSchemes, describing
// the payment schemes and networks the gateway accepts.
func (h *Handler) facilitator(w http.ResponseWriter, r *http.Request) {

	// Only the supportedSchemes query is defined
	if query := r.URL.Query().Get("query"); query != "supportedSchemes" {
		http.Error(w, "unsupported query", http.StatusBadRequest)
		return
	}

	// Combine the configured kinds into the response
	kinds := make([]types.SupportedKind, 0, len(h.supported))
	kinds = append(kinds, h.supported...)

	h.writeJSON(w, http.StatusOK, types.SupportedResponse{
		Kinds: kinds,
	})
}

// SupportedKinds builds the accepted scheme list for the configured
// networks. A network is supported when its RPC URL is configured.
func SupportedKinds(networks map[types.Network]string) []types.SupportedKind {
	var kinds []types.SupportedKind

	// Check if the sepolia network is supported
	if networks[types.NetworkSepolia] != "" {
		kinds = append(kinds, types.SupportedKind{
			X402Version: types.X402Version1,
			Scheme:      types.SchemeExact,
			Network:     types.NetworkSepolia,
		})
	}

	// Check if the base sepolia network is supported
	if networks[types.NetworkBaseSepolia] != "" {
		kinds = append(kinds, types.SupportedKind{
			X402Version: types.X402Version1,
			Scheme:      types.SchemeExact,
			Network:     types.NetworkBaseSepolia,
		})
	}

	return kinds
}
