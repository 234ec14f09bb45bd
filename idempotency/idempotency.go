// Package idempotency guarantees at-most-one settlement per payment proof.
// It wraps a payment rail so that retrying settlement for an already-settled
// proof returns the original receipt instead of charging twice. Failed
// settlements are not cached, which allows legitimate retries.
package idempotency

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"time"

	"github.com/paygate-labs/x402-gateway-go/rail"
	"github.com/paygate-labs/x402-gateway-go/types"
)

// DefaultTTL bounds how long a captured result is remembered. On-chain
// nonce protection takes over once the settlement confirms.
const DefaultTTL = 10 * time.Minute

// ErrNoSettlement is returned when a waited-on settlement attempt failed
// and left no result behind.
var ErrNoSettlement = errors.New("no settlement result available")

// Store is the deduplication backend. CheckAndMark atomically returns a
// cached result, reports an in-flight settlement, or marks the key as
// in-flight for this caller.
type Store interface {
	CheckAndMark(ctx context.Context, key string) (*types.SettleResult, bool, error)
	WaitForResult(ctx context.Context, key string) (*types.SettleResult, error)
	Complete(ctx context.Context, key string, result types.SettleResult) error
	Fail(ctx context.Context, key string) error
}

// Wrapped is a payment rail with idempotent settlement.
type Wrapped struct {
	rail.PaymentRail
	store Store
}

// Wrap decorates a payment rail with settlement idempotency.
func Wrap(r rail.PaymentRail, store Store) *Wrapped {
	return &Wrapped{PaymentRail: r, store: store}
}

// Settle settles at most once per proof. Concurrent settlements of the same
// proof wait for the first attempt and share its result.
func (w *Wrapped) Settle(ctx context.Context, payload types.PaymentPayload, requirements types.PaymentRequirements) (types.SettleResult, error) {

	// Derive the deduplication key from the proof
	key := ProofKey(payload)

	// Check for a cached or in-flight settlement
	cached, inFlight, err := w.store.CheckAndMark(ctx, key)
	if err != nil {
		return types.SettleResult{}, err
	}
	if cached != nil {
		return *cached, nil
	}
	if inFlight {
		result, err := w.store.WaitForResult(ctx, key)
		if err != nil {
			return types.SettleResult{}, err
		}
		return *result, nil
	}

	// First attempt for this proof: settle on the rail
	result, err := w.PaymentRail.Settle(ctx, payload, requirements)

	// Clear the in-flight marker on failure so the proof can be retried
	if err != nil || !result.Success {
		if failErr := w.store.Fail(ctx, key); failErr != nil && err == nil {
			return types.SettleResult{}, failErr
		}
		return result, err
	}

	// Cache the captured result
	if err := w.store.Complete(ctx, key, result); err != nil {
		return types.SettleResult{}, err
	}
	return result, nil
}

// ProofKey derives the deduplication key for a payment proof.
func ProofKey(payload types.PaymentPayload) string {
	auth := payload.Payload.Authorization
	sum := sha256.Sum256([]byte(payload.Payload.Signature + "|" + auth.Nonce + "|" + auth.From))
	return hex.EncodeToString(sum[:])
}
