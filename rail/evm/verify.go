package evm

import (
	"context"
	"encoding/hex"
	"fmt"
	"math/big"
	"strconv"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"

	"github.com/paygate-labs/x402-gateway-go/types"
)

// Verify checks the payment proof against the requirements: authorization
// time window, exact amount, addresses, payer balance and the EIP-712
// signature. Invalid proofs return a typed reason and a nil error; an error
// return means an infrastructure fault.
func (r *Rail) Verify(ctx context.Context, payload types.PaymentPayload, requirements types.PaymentRequirements) (types.VerifyResult, error) {

	now := time.Now()
	auth := payload.Payload.Authorization

	// Convert the authorization valid after to int64
	validAfterInt, err := strconv.ParseInt(auth.ValidAfter, 10, 64)
	if err != nil {
		return invalid(types.InvalidReasonInvalidAuthorizationValidAfter), nil
	}

	// Convert the authorization valid before to int64
	validBeforeInt, err := strconv.ParseInt(auth.ValidBefore, 10, 64)
	if err != nil {
		return invalid(types.InvalidReasonInvalidAuthorizationValidBefore), nil
	}

	// Verify the authorization time window is coherent
	if validAfterInt >= validBeforeInt {
		return invalid(types.InvalidReasonInvalidAuthorizationTimeWindow), nil
	}

	// Verify the authorization valid after time is in the past
	if !now.After(time.Unix(validAfterInt, 0)) {
		return invalid(types.InvalidReasonInvalidAuthorizationValidAfter), nil
	}

	// Verify the authorization has not expired
	if !now.Before(time.Unix(validBeforeInt, 0)) {
		return invalid(types.InvalidReasonAuthorizationExpired), nil
	}

	// Convert the authorization value from string to big.Int
	authValue := new(big.Int)
	_, ok := authValue.SetString(auth.Value, 10)
	if !ok {
		return invalid(types.InvalidReasonInvalidAuthorizationValue), nil
	}

	// Verify the authorization value is non-negative
	if authValue.Sign() < 0 {
		return invalid(types.InvalidReasonInvalidAuthorizationValue), nil
	}

	// Convert the required amount from string to big.Int
	requiredAmount := new(big.Int)
	_, ok = requiredAmount.SetString(requirements.MaxAmountRequired, 10)
	if !ok {
		return invalid(types.InvalidReasonInvalidRequirementsMaxAmount), nil
	}

	// Requirements are deterministic, so the authorization value must match
	// the required amount exactly
	if authValue.Cmp(requiredAmount) != 0 {
		return invalid(types.InvalidReasonInvalidAuthorizationValueMismatch), nil
	}

	// Verify the requirements max timeout seconds is positive
	if requirements.MaxTimeoutSeconds <= 0 {
		return invalid(types.InvalidReasonInvalidRequirementsMaxTimeout), nil
	}

	// Verify authorization from is a valid address
	if !common.IsHexAddress(auth.From) {
		return invalid(types.InvalidReasonInvalidAuthorizationFromAddress), nil
	}
	fromAddress := common.HexToAddress(auth.From)

	// Verify requirements asset is a valid address
	if !common.IsHexAddress(requirements.Asset) {
		return invalid(types.InvalidReasonInvalidRequirementsAsset), nil
	}
	assetAddress := common.HexToAddress(requirements.Asset)

	// Verify authorization to is a valid address
	if !common.IsHexAddress(auth.To) {
		return invalid(types.InvalidReasonInvalidAuthorizationToAddress), nil
	}

	// Verify requirements pay to is a valid address
	if !common.IsHexAddress(requirements.PayTo) {
		return invalid(types.InvalidReasonInvalidRequirementsPayToAddress), nil
	}

	// Verify the authorization to address matches the required pay to address
	if common.HexToAddress(auth.To) != common.HexToAddress(requirements.PayTo) {
		return invalid(types.InvalidReasonInvalidAuthorizationToMismatch), nil
	}

	// Decode the nonce from hex to bytes
	nonceBytes, err := hex.DecodeString(strings.TrimPrefix(auth.Nonce, "0x"))
	if err != nil {
		return invalid(types.InvalidReasonInvalidAuthorizationNonce), nil
	}

	// Validate the nonce is exactly 32 bytes
	if len(nonceBytes) != 32 {
		return invalid(types.InvalidReasonInvalidAuthorizationNonceLength), nil
	}
	var nonce [32]byte
	copy(nonce[:], nonceBytes)

	// Construct the typed data for the authorization
	typedData := transferAuthorizationTypedData(
		r.config.ChainID,
		requirements.Asset,
		requirements.Extra,
		auth.From,
		auth.To,
		authValue,
		big.NewInt(validAfterInt),
		big.NewInt(validBeforeInt),
		nonce,
	)

	// Compute the domain hash
	domainSeparator, err := typedData.HashStruct("EIP712Domain", typedData.Domain.Map())
	if err != nil {
		return types.VerifyResult{}, fmt.Errorf("failed to hash domain: %v", err)
	}

	// Compute the message hash
	typedDataHash, err := typedData.HashStruct(typedData.PrimaryType, typedData.Message)
	if err != nil {
		return types.VerifyResult{}, fmt.Errorf("failed to hash message: %v", err)
	}

	// Construct the signature hash
	rawData := append(append([]byte("\x19\x01"), domainSeparator...), typedDataHash...)
	sighash := crypto.Keccak256(rawData)

	// Parse the payload signature
	signature, err := common.ParseHexOrString(payload.Payload.Signature)
	if err != nil {
		return invalid(types.InvalidReasonInvalidAuthorizationSignature), nil
	}

	// Verify the signature is exactly 65 bytes (32 bytes r + 32 bytes s + 1 byte v)
	if len(signature) != 65 {
		return invalid(types.InvalidReasonInvalidAuthorizationSignatureLen), nil
	}

	// Convert the V value of the signature if necessary (27/28 → 0/1)
	if signature[64] == 27 || signature[64] == 28 {
		signature[64] -= 27
	}

	// Recover the public key
	pubkey, err := crypto.Ecrecover(sighash, signature)
	if err != nil {
		return invalid(types.InvalidReasonInvalidAuthorizationSignature), nil
	}

	// Unmarshal the public key
	recoveredPubkey, err := crypto.UnmarshalPubkey(pubkey)
	if err != nil {
		return invalid(types.InvalidReasonInvalidAuthorizationSignature), nil
	}

	// Verify the recovered sender matches the authorization from
	sender := crypto.PubkeyToAddress(*recoveredPubkey)
	if sender != fromAddress {
		return invalid(types.InvalidReasonInvalidAuthorizationSenderMismatch), nil
	}

	// Verify the payer has sufficient funds on the asset contract
	hasFunds, err := r.checkBalance(ctx, assetAddress, fromAddress, authValue)
	if err != nil {
		return types.VerifyResult{}, err
	}
	if !hasFunds {
		return invalid(types.InvalidReasonInsufficientFunds), nil
	}

	// Return valid with the payer address
	return types.VerifyResult{
		IsValid: true,
		Payer:   sender.Hex(),
	}, nil
}

// checkBalance reads the payer's ERC-20 balance on the asset contract.
func (r *Rail) checkBalance(ctx context.Context, asset, payer common.Address, amount *big.Int) (bool, error) {

	// Set the raw JSON for balanceOf
	balanceOfJSON := `[{
		"type": "function",
		"name": "balanceOf",
		"inputs": [
			{"name": "account", "type": "address"}
		],
		"outputs": [
			{"name": "", "type": "uint256"}
		],
		"constant": true
	}]`

	// Parse the contract ABI for balanceOf
	balanceOfABI, err := abi.JSON(strings.NewReader(balanceOfJSON))
	if err != nil {
		return false, fmt.Errorf("failed to parse balanceOf ABI: %v", err)
	}

	// Pack the balanceOf function call data
	balanceOfData, err := balanceOfABI.Pack("balanceOf", payer)
	if err != nil {
		return false, fmt.Errorf("failed to pack balanceOf call data: %v", err)
	}

	// Verify the RPC URL is configured
	if r.config.RPCURL == "" {
		return false, fmt.Errorf("rail RPC URL is not configured")
	}

	// Dial the Ethereum RPC client
	client, err := NewEthClient(r.config.RPCURL)
	if err != nil {
		return false, fmt.Errorf("failed to dial RPC client: %v", err)
	}

	// Get the ERC20 token balance of the payer
	balanceResult, err := client.CallContract(ctx, ethereum.CallMsg{
		To:   &asset,
		Data: balanceOfData,
	}, nil)
	if err != nil {
		return false, fmt.Errorf("failed to get token balance: %v", err)
	}

	// Verify the balance result is 32 bytes
	if len(balanceResult) != 32 {
		return false, fmt.Errorf("failed to get token balance: balance result is not 32 bytes")
	}

	// Compare the balance against the authorized amount
	balance := new(big.Int).SetBytes(balanceResult)
	return balance.Cmp(amount) >= 0, nil
}

// invalid builds a failed verify result with the given reason.
func invalid(reason types.InvalidReason) types.VerifyResult {
	return types.VerifyResult{
		IsValid:       false,
		InvalidReason: reason,
	}
}
