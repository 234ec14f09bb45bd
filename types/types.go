package types

import "time"

// ServiceRecord is a registered metered service. Owned by the registry;
// mutated only through registry operations.
type ServiceRecord struct {
	ID           string        `json:"id"`
	Name         string        `json:"name"`
	Description  string        `json:"description"`
	Endpoint     string        `json:"endpoint"`
	Network      Network       `json:"network"`
	Price        string        `json:"price"`
	PayTo        string        `json:"payTo"`
	Capabilities []string      `json:"capabilities"`
	Status       ServiceStatus `json:"status"`
	RegisteredAt time.Time     `json:"registeredAt"`
	Calls        uint64        `json:"calls"`
	Earned       string        `json:"earned"`
}

// ServiceDescriptor is the registration input for a service.
type ServiceDescriptor struct {
	ID           string   `json:"id"`
	Name         string   `json:"name"`
	Description  string   `json:"description"`
	Endpoint     string   `json:"endpoint"`
	Network      Network  `json:"network"`
	Price        string   `json:"price"`
	PayTo        string   `json:"payTo"`
	Capabilities []string `json:"capabilities"`
}

// PaymentRequirements is the challenge payload describing the payment a
// caller must supply. Derived deterministically from a ServiceRecord and
// never persisted.
type PaymentRequirements struct {
	Scheme            Scheme  `json:"scheme"`
	Network           Network `json:"network"`
	MaxAmountRequired string  `json:"maxAmountRequired"`
	Resource          string  `json:"resource"`
	Description       string  `json:"description"`
	PayTo             string  `json:"payTo"`
	Asset             string  `json:"asset"`
	MaxTimeoutSeconds int64   `json:"maxTimeoutSeconds"`
	Extra             Extra   `json:"extra"`
}

// Extra is the asset metadata of the payment requirements.
type Extra struct {
	Name    string `json:"name"`
	Version string `json:"version"`
}

// PaymentPayload is the decoded payment proof supplied by the caller.
type PaymentPayload struct {
	X402Version X402Version `json:"x402Version"`
	Scheme      Scheme      `json:"scheme"`
	Network     Network     `json:"network"`
	Payload     Payload     `json:"payload"`
}

// Payload is the signed authorization of the payment payload.
type Payload struct {
	Signature     string        `json:"signature"`
	Authorization Authorization `json:"authorization"`
}

// Authorization is the transfer authorization of the payload.
type Authorization struct {
	From        string `json:"from"`
	To          string `json:"to"`
	Value       string `json:"value"`
	ValidAfter  string `json:"validAfter"`
	ValidBefore string `json:"validBefore"`
	Nonce       string `json:"nonce"`
}

// SettlementReceipt is the immutable record of a captured payment.
type SettlementReceipt struct {
	Transaction  string           `json:"transaction"`
	Confirmation uint64           `json:"confirmation"`
	Amount       string           `json:"amount"`
	Status       SettlementStatus `json:"status"`
	Timestamp    time.Time        `json:"timestamp"`
}

// VerifyResult is the outcome of proof verification.
type VerifyResult struct {
	IsValid       bool          `json:"isValid"`
	Payer         string        `json:"payer,omitempty"`
	InvalidReason InvalidReason `json:"invalidReason,omitempty"`
}

// SettleResult is the outcome of a settlement attempt.
type SettleResult struct {
	Success     bool              `json:"success"`
	Receipt     SettlementReceipt `json:"receipt,omitempty"`
	ErrorReason InvalidReason     `json:"errorReason,omitempty"`
}

// PaymentRequiredResponse is the 402 challenge body.
type PaymentRequiredResponse struct {
	X402Version X402Version           `json:"x402Version"`
	Error       string                `json:"error"`
	Accepts     []PaymentRequirements `json:"accepts"`
}

// QuoteResponse is the response of the quote operation.
type QuoteResponse struct {
	Service ServiceRecord `json:"service"`
	Payment QuotePayment  `json:"payment"`
}

// QuotePayment wraps the accepted payment requirements of a quote.
type QuotePayment struct {
	X402Version X402Version           `json:"x402Version"`
	Accepts     []PaymentRequirements `json:"accepts"`
}

// InvokeRequest is the request body of the invoke operation.
type InvokeRequest struct {
	Task   string         `json:"task"`
	Params map[string]any `json:"params"`
}

// InvokeResponse is the response of a paid, admitted invocation.
type InvokeResponse struct {
	Success    bool             `json:"success"`
	ServiceID  string           `json:"serviceId"`
	Task       string           `json:"task"`
	Result     map[string]any   `json:"result"`
	Settlement InvokeSettlement `json:"settlement"`
	Timestamp  time.Time        `json:"timestamp"`
}

// InvokeSettlement is the settlement summary attached to an invoke response.
type InvokeSettlement struct {
	Status      SettlementStatus `json:"status"`
	Amount      string           `json:"amount"`
	Network     Network          `json:"network"`
	Transaction string           `json:"transaction"`
}

// ErrorResponse is the error body returned for rejected requests.
type ErrorResponse struct {
	Error  ErrorCode     `json:"error"`
	Reason InvalidReason `json:"reason,omitempty"`
}

// SupportedKind describes one accepted payment scheme of the facilitator.
type SupportedKind struct {
	X402Version X402Version `json:"x402Version"`
	Scheme      Scheme      `json:"scheme"`
	Network     Network     `json:"network"`
}

// SupportedResponse is the response of the facilitator discovery operation.
type SupportedResponse struct {
	Kinds []SupportedKind `json:"kinds"`
}
