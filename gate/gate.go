// Package gate implements the per-request access state machine: challenge
// unpaid requests with 402 payment requirements, verify and settle supplied
// proofs, and admit paid requests to task execution.
package gate

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/paygate-labs/x402-gateway-go/pricing"
	"github.com/paygate-labs/x402-gateway-go/rail"
	"github.com/paygate-labs/x402-gateway-go/registry"
	"github.com/paygate-labs/x402-gateway-go/types"
)

// State is the access-gate state enum.
type State string

const (
	StateUnchallenged State = "UNCHALLENGED"
	StateChallenged   State = "CHALLENGED"
	StateVerifying    State = "VERIFYING"
	StateAdmitted     State = "ADMITTED"
	StateRejected     State = "REJECTED"
	StateNotFound     State = "NOT_FOUND"
)

// Gate orchestrates the registry, requirements generator and payment rail.
// Each request runs on a fresh Machine; no challenge state survives between
// requests because the requirements payload is self-describing.
type Gate struct {
	registry  registry.Store
	generator *pricing.Generator
	rail      rail.PaymentRail
	log       *logrus.Logger
}

// New creates a gate over the given collaborators.
func New(store registry.Store, generator *pricing.Generator, paymentRail rail.PaymentRail, log *logrus.Logger) *Gate {
	return &Gate{
		registry:  store,
		generator: generator,
		rail:      paymentRail,
		log:       log,
	}
}

// Outcome is the terminal result of one pass through the machine.
type Outcome struct {
	State        State
	Service      types.ServiceRecord
	Requirements types.PaymentRequirements
	Code         types.ErrorCode
	Reason       types.InvalidReason
	Receipt      types.SettlementReceipt
	Payer        string
}

// Machine is the per-request state machine.
type Machine struct {
	gate      *Gate
	serviceID string
	state     State
}

// NewMachine creates a fresh machine for one request.
func (g *Gate) NewMachine(serviceID string) *Machine {
	return &Machine{
		gate:      g,
		serviceID: serviceID,
		state:     StateUnchallenged,
	}
}

// State returns the machine's current state.
func (m *Machine) State() State {
	return m.state
}

// to transitions the machine and logs the step.
func (m *Machine) to(next State) {
	m.gate.log.WithFields(logrus.Fields{
		"service": m.serviceID,
		"from":    m.state,
		"to":      next,
	}).Debug("gate transition")
	m.state = next
}

// Admit runs the request through the machine. proofHeader is the raw
// X-Payment header value, empty when the caller supplied no proof.
func (m *Machine) Admit(ctx context.Context, proofHeader string) (Outcome, error) {

	// Look up the target service; unknown and inactive are equivalent
	record, err := m.gate.registry.Get(ctx, m.serviceID)
	if errors.Is(err, registry.ErrNotFound) || (err == nil && record.Status != types.ServiceStatusActive) {
		m.to(StateNotFound)
		return Outcome{State: m.state, Code: types.ErrorCodeNotFound}, nil
	}
	if err != nil {
		return Outcome{}, err
	}

	// Requirements are regenerated on every pass so price changes take
	// effect immediately
	requirements, err := m.gate.generator.Requirements(record)
	if err != nil {
		return Outcome{}, err
	}

	// No proof supplied: challenge with 402 payment requirements
	if proofHeader == "" {
		m.to(StateChallenged)
		return Outcome{
			State:        m.state,
			Service:      record,
			Requirements: requirements,
		}, nil
	}

	m.to(StateVerifying)

	// Decode the payment proof from the header
	payload, reason := decodeProof(proofHeader)
	if reason != "" {
		return m.reject(record, reason), nil
	}

	// Check the proof targets the expected protocol version, scheme and network
	if payload.X402Version != types.X402Version1 {
		return m.reject(record, types.InvalidReasonInvalidX402Version), nil
	}
	if payload.Scheme != requirements.Scheme {
		return m.reject(record, types.InvalidReasonInvalidSchemeMismatch), nil
	}
	if payload.Network != requirements.Network {
		return m.reject(record, types.InvalidReasonInvalidNetworkMismatch), nil
	}

	// Bound verification and settlement by the challenge timeout; the rail
	// call must not be left pending indefinitely
	railCtx, cancel := context.WithTimeout(ctx, time.Duration(requirements.MaxTimeoutSeconds)*time.Second)
	defer cancel()

	// Verify the proof against the regenerated requirements
	verifyResult, err := m.gate.rail.Verify(railCtx, payload, requirements)
	if err != nil {
		// A rail fault after the deadline elapsed is a timeout, not a 5xx
		if errors.Is(err, context.DeadlineExceeded) || railCtx.Err() != nil {
			return m.rejectCode(record, types.ErrorCodeTimeout, ""), nil
		}
		return Outcome{}, err
	}
	if !verifyResult.IsValid {
		return m.reject(record, verifyResult.InvalidReason), nil
	}

	// Settle the verified payment; no task runs unless capture succeeds
	settleResult, err := m.gate.rail.Settle(railCtx, payload, requirements)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || railCtx.Err() != nil {
			return m.rejectCode(record, types.ErrorCodeTimeout, ""), nil
		}
		return Outcome{}, err
	}
	if !settleResult.Success {
		// Distinct from a verification failure: the caller may retry the
		// same proof after a transient rail fault
		return m.rejectCode(record, types.ErrorCodeSettlementFailure, settleResult.ErrorReason), nil
	}

	// Record the paid call against the service counters
	if err := m.gate.registry.RecordCall(ctx, record.ID, record.Price); err != nil {
		m.gate.log.WithFields(logrus.Fields{
			"service": record.ID,
			"error":   err,
		}).Warn("failed to record call")
	}

	m.to(StateAdmitted)
	m.gate.log.WithFields(logrus.Fields{
		"service": record.ID,
		"payer":   verifyResult.Payer,
		"tx":      settleResult.Receipt.Transaction,
	}).Info("payment captured")

	return Outcome{
		State:        m.state,
		Service:      record,
		Requirements: requirements,
		Receipt:      settleResult.Receipt,
		Payer:        verifyResult.Payer,
	}, nil
}

// reject terminates the machine with a proof-level reason.
func (m *Machine) reject(record types.ServiceRecord, reason types.InvalidReason) Outcome {
	return m.rejectCode(record, reason.Code(), reason)
}

// rejectCode terminates the machine with an explicit error code.
func (m *Machine) rejectCode(record types.ServiceRecord, code types.ErrorCode, reason types.InvalidReason) Outcome {
	m.to(StateRejected)
	m.gate.log.WithFields(logrus.Fields{
		"service": record.ID,
		"code":    code,
		"reason":  reason,
	}).Info("payment rejected")
	return Outcome{
		State:   m.state,
		Service: record,
		Code:    code,
		Reason:  reason,
	}
}

// decodeProof parses the base64-encoded JSON payment payload carried in the
// X-Payment header.
func decodeProof(header string) (types.PaymentPayload, types.InvalidReason) {
	raw, err := base64.StdEncoding.DecodeString(header)
	if err != nil {
		return types.PaymentPayload{}, types.InvalidReasonInvalidPaymentHeader
	}

	var payload types.PaymentPayload
	if err := json.Unmarshal(raw, &payload); err != nil {
		return types.PaymentPayload{}, types.InvalidReasonInvalidPaymentHeader
	}
	return payload, ""
}
