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
	ethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"

	"github.com/paygate-labs/x402-gateway-go/types"
)

// Settle submits the EIP-3009 transferWithAuthorization transaction for a
// verified proof and returns the settlement receipt. The contract rejects a
// reused authorization nonce, so a proof cannot be charged twice on chain;
// request-level idempotence is layered on top by the caller.
func (r *Rail) Settle(ctx context.Context, payload types.PaymentPayload, requirements types.PaymentRequirements) (types.SettleResult, error) {

	auth := payload.Payload.Authorization

	// Set the contract address
	contractAddress := common.HexToAddress(requirements.Asset)

	// Set the raw JSON for transferWithAuthorization
	contractJSON := `[{
		"type": "function",
		"name": "transferWithAuthorization",
		"inputs": [
			{"name": "from", "type": "address"},
			{"name": "to", "type": "address"},
			{"name": "value", "type": "uint256"},
			{"name": "validAfter", "type": "uint256"},
			{"name": "validBefore", "type": "uint256"},
			{"name": "nonce", "type": "bytes32"},
			{"name": "v", "type": "uint8"},
			{"name": "r", "type": "bytes32"},
			{"name": "s", "type": "bytes32"}
		],
		"outputs": [],
		"constant": false
	}]`

	// Parse the contract ABI for transferWithAuthorization
	contractABI, err := abi.JSON(strings.NewReader(contractJSON))
	if err != nil {
		return types.SettleResult{}, fmt.Errorf("failed to parse contract ABI: %v", err)
	}

	// Convert the authorization value from string to big.Int
	authValue := new(big.Int)
	_, ok := authValue.SetString(auth.Value, 10)
	if !ok {
		return failed(types.InvalidReasonInvalidAuthorizationValue), nil
	}

	// Convert the authorization time window bounds
	validAfterInt, err := strconv.ParseInt(auth.ValidAfter, 10, 64)
	if err != nil {
		return failed(types.InvalidReasonInvalidAuthorizationValidAfter), nil
	}
	validBeforeInt, err := strconv.ParseInt(auth.ValidBefore, 10, 64)
	if err != nil {
		return failed(types.InvalidReasonInvalidAuthorizationValidBefore), nil
	}

	// Decode the authorization nonce from hex to bytes
	authNonceBytes, err := hex.DecodeString(strings.TrimPrefix(auth.Nonce, "0x"))
	if err != nil {
		return failed(types.InvalidReasonInvalidAuthorizationNonce), nil
	}

	// Validate the nonce is exactly 32 bytes
	if len(authNonceBytes) != 32 {
		return failed(types.InvalidReasonInvalidAuthorizationNonceLength), nil
	}
	var authNonce [32]byte
	copy(authNonce[:], authNonceBytes)

	// Parse the authorization signature from the payment payload
	authSignature, err := common.ParseHexOrString(payload.Payload.Signature)
	if err != nil {
		return failed(types.InvalidReasonInvalidAuthorizationSignature), nil
	}

	// Verify the signature is exactly 65 bytes (32 bytes r + 32 bytes s + 1 byte v)
	if len(authSignature) != 65 {
		return failed(types.InvalidReasonInvalidAuthorizationSignatureLen), nil
	}

	// Extract R, S, and V from the authorization signature
	var authSignatureR [32]byte
	var authSignatureS [32]byte
	copy(authSignatureR[:], authSignature[0:32])
	copy(authSignatureS[:], authSignature[32:64])
	authSignatureV := authSignature[64]

	// Convert the V value of the signature if necessary (0/1 → 27/28)
	if authSignatureV == 0 || authSignatureV == 1 {
		authSignatureV += 27
	}

	// Pack the function call data
	txData, err := contractABI.Pack(
		"transferWithAuthorization",
		common.HexToAddress(auth.From),
		common.HexToAddress(auth.To),
		authValue,
		big.NewInt(validAfterInt),
		big.NewInt(validBeforeInt),
		authNonce,
		authSignatureV,
		authSignatureR,
		authSignatureS,
	)
	if err != nil {
		return failed(types.InvalidReasonInvalidAuthorizationSignature), nil
	}

	// Verify the RPC URL is configured
	if r.config.RPCURL == "" {
		return types.SettleResult{}, fmt.Errorf("rail RPC URL is not configured")
	}

	// Dial the Ethereum RPC client
	client, err := NewEthClient(r.config.RPCURL)
	if err != nil {
		return types.SettleResult{}, fmt.Errorf("failed to dial RPC client: %v", err)
	}

	// Verify the settlement private key is configured
	if r.config.PrivateKey == "" {
		return types.SettleResult{}, fmt.Errorf("rail private key is not configured")
	}

	// Parse the settlement private key
	settlementKey, err := crypto.HexToECDSA(strings.TrimPrefix(r.config.PrivateKey, "0x"))
	if err != nil {
		return types.SettleResult{}, fmt.Errorf("failed to parse settlement private key: %v", err)
	}

	// Get the settlement account address
	settlementAddress := crypto.PubkeyToAddress(settlementKey.PublicKey)

	// Get the pending nonce for the settlement account
	txNonce, err := client.PendingNonceAt(ctx, settlementAddress)
	if err != nil {
		return types.SettleResult{}, fmt.Errorf("failed to get pending nonce: %v", err)
	}

	// Get the suggested gas tip cap
	gasTipCap, err := client.SuggestGasTipCap(ctx)
	if err != nil {
		return types.SettleResult{}, fmt.Errorf("failed to suggest gas tip cap: %v", err)
	}

	// Get the latest block header for the base fee
	blockHeader, err := client.HeaderByNumber(ctx, nil)
	if err != nil {
		return types.SettleResult{}, fmt.Errorf("failed to get block header: %v", err)
	}

	// Verify the block header base fee is not nil
	if blockHeader.BaseFee == nil {
		return types.SettleResult{}, fmt.Errorf("block header missing base fee: network may not support EIP-1559")
	}

	// Determine the gas fee cap (2x base fee + gas tip cap)
	gasFeeCap := new(big.Int).Add(
		new(big.Int).Mul(blockHeader.BaseFee, big.NewInt(2)),
		gasTipCap,
	)

	// Estimate the gas limit for the transfer
	gasLimit, err := client.EstimateGas(ctx, ethereum.CallMsg{
		From: settlementAddress,
		To:   &contractAddress,
		Data: txData,
	})
	if err != nil {
		// An estimation revert means the rail rejected the transfer
		return failed(types.InvalidReasonRailRejected), nil
	}

	// Add 20% buffer to the gas estimate
	gasLimit = gasLimit * 120 / 100

	// Create the transaction using EIP-1559
	transaction := ethtypes.NewTx(&ethtypes.DynamicFeeTx{
		ChainID:   big.NewInt(r.config.ChainID),
		Nonce:     txNonce,
		GasTipCap: gasTipCap,
		GasFeeCap: gasFeeCap,
		Gas:       gasLimit,
		To:        &contractAddress,
		Value:     big.NewInt(0),
		Data:      txData,
	})

	// Sign the transaction with the settlement key
	signer := ethtypes.NewLondonSigner(big.NewInt(r.config.ChainID))
	signedTx, err := ethtypes.SignTx(transaction, signer, settlementKey)
	if err != nil {
		return types.SettleResult{}, fmt.Errorf("failed to sign transaction: %v", err)
	}

	// Send the signed transaction
	err = client.SendTransaction(ctx, signedTx)
	if err != nil {
		return failed(types.InvalidReasonRailRejected), nil
	}

	// Return the captured settlement receipt
	return types.SettleResult{
		Success: true,
		Receipt: types.SettlementReceipt{
			Transaction:  signedTx.Hash().Hex(),
			Confirmation: txNonce,
			Amount:       authValue.String(),
			Status:       types.SettlementStatusCaptured,
			Timestamp:    time.Now().UTC(),
		},
	}, nil
}

// failed builds a failed settle result with the given reason.
func failed(reason types.InvalidReason) types.SettleResult {
	return types.SettleResult{
		Success:     false,
		ErrorReason: reason,
		Receipt: types.SettlementReceipt{
			Status:    types.SettlementStatusFailed,
			Timestamp: time.Now().UTC(),
		},
	}
}
