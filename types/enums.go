package types

import "net/http"

// X402Version is the x402 version enum.
type X402Version int

const (
	X402Version1 X402Version = 1
)

// Scheme is the payment scheme enum.
type Scheme string

const (
	SchemeExact Scheme = "exact"
)

// Network is the network enum.
type Network string

const (
	NetworkSepolia     Network = "sepolia"
	NetworkBaseSepolia Network = "base-sepolia"
)

// ServiceStatus is the service status enum.
type ServiceStatus string

const (
	ServiceStatusActive   ServiceStatus = "active"
	ServiceStatusInactive ServiceStatus = "inactive"
)

// SettlementStatus is the settlement status enum.
type SettlementStatus string

const (
	SettlementStatusCaptured SettlementStatus = "captured"
	SettlementStatusFailed   SettlementStatus = "failed"
)

// ErrorCode is the request-level failure taxonomy enum.
type ErrorCode string

const (
	ErrorCodeInvalidDescriptor ErrorCode = "invalid_descriptor"
	ErrorCodeNotFound          ErrorCode = "not_found"
	ErrorCodeExpired           ErrorCode = "expired"
	ErrorCodeInvalidProof      ErrorCode = "invalid_proof"
	ErrorCodeTimeout           ErrorCode = "timeout"
	ErrorCodeSettlementFailure ErrorCode = "settlement_failure"
)

// Status returns the HTTP status code for the error code.
func (c ErrorCode) Status() int {
	switch c {
	case ErrorCodeInvalidDescriptor:
		return http.StatusBadRequest
	case ErrorCodeNotFound:
		return http.StatusNotFound
	case ErrorCodeExpired, ErrorCodeInvalidProof:
		return http.StatusPaymentRequired
	case ErrorCodeTimeout:
		return http.StatusGatewayTimeout
	case ErrorCodeSettlementFailure:
		return http.StatusBadGateway
	}
	return http.StatusInternalServerError
}

// InvalidReason is the fine-grained proof rejection reason enum.
type InvalidReason string

const (
	InvalidReasonInvalidX402Version                 InvalidReason = "invalid_x402_version"
	InvalidReasonInvalidScheme                      InvalidReason = "invalid_scheme"
	InvalidReasonInvalidNetwork                     InvalidReason = "invalid_network"
	InvalidReasonInvalidPaymentHeader               InvalidReason = "invalid_payment_header"
	InvalidReasonInvalidSchemeMismatch              InvalidReason = "invalid_scheme_mismatch"
	InvalidReasonInvalidNetworkMismatch             InvalidReason = "invalid_network_mismatch"
	InvalidReasonInvalidAuthorizationTimeWindow     InvalidReason = "invalid_authorization_time_window"
	InvalidReasonInvalidAuthorizationValidAfter     InvalidReason = "invalid_authorization_valid_after"
	InvalidReasonInvalidAuthorizationValidBefore    InvalidReason = "invalid_authorization_valid_before"
	InvalidReasonInvalidAuthorizationValue          InvalidReason = "invalid_authorization_value"
	InvalidReasonInvalidAuthorizationValueMismatch  InvalidReason = "invalid_authorization_value_mismatch"
	InvalidReasonInvalidAuthorizationFromAddress    InvalidReason = "invalid_authorization_from_address"
	InvalidReasonInvalidAuthorizationToAddress      InvalidReason = "invalid_authorization_to_address"
	InvalidReasonInvalidAuthorizationToMismatch     InvalidReason = "invalid_authorization_to_address_mismatch"
	InvalidReasonInvalidAuthorizationNonce          InvalidReason = "invalid_authorization_nonce"
	InvalidReasonInvalidAuthorizationNonceLength    InvalidReason = "invalid_authorization_nonce_length"
	InvalidReasonInvalidAuthorizationSignature      InvalidReason = "invalid_authorization_signature"
	InvalidReasonInvalidAuthorizationSignatureLen   InvalidReason = "invalid_authorization_signature_length"
	InvalidReasonInvalidAuthorizationSenderMismatch InvalidReason = "invalid_authorization_sender_mismatch"
	InvalidReasonInvalidRequirementsAsset           InvalidReason = "invalid_requirements_asset"
	InvalidReasonInvalidRequirementsAssetMismatch   InvalidReason = "invalid_requirements_asset_mismatch"
	InvalidReasonInvalidRequirementsPayToAddress    InvalidReason = "invalid_requirements_pay_to_address"
	InvalidReasonInvalidRequirementsMaxAmount       InvalidReason = "invalid_requirements_max_amount"
	InvalidReasonInvalidRequirementsMaxTimeout      InvalidReason = "invalid_requirements_max_timeout"
	InvalidReasonAuthorizationExpired               InvalidReason = "authorization_expired"
	InvalidReasonInsufficientFunds                  InvalidReason = "insufficient_funds"
	InvalidReasonRailRejected                       InvalidReason = "rail_rejected"
)

// Code maps a rejection reason to its request-level error code.
func (r InvalidReason) Code() ErrorCode {
	switch r {
	case InvalidReasonAuthorizationExpired, InvalidReasonInvalidAuthorizationValidBefore:
		return ErrorCodeExpired
	case InvalidReasonRailRejected:
		return ErrorCodeSettlementFailure
	}
	return ErrorCodeInvalidProof
}
