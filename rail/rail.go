// Package rail abstracts the payment rail that verifies and settles value
// transfer. The gate never fabricates settlement data; everything comes
// from a PaymentRail implementation.
package rail

import (
	"context"

	"github.com/paygate-labs/x402-gateway-go/types"
)

// PaymentRail verifies payment proofs and settles captured payments.
// Implementations must make Settle idempotent per proof: retrying settlement
// for an already-settled proof returns the original receipt.
type PaymentRail interface {
	Verify(ctx context.Context, payload types.PaymentPayload, requirements types.PaymentRequirements) (types.VerifyResult, error)
	Settle(ctx context.Context, payload types.PaymentPayload, requirements types.PaymentRequirements) (types.SettleResult, error)
	Network() types.Network
}
