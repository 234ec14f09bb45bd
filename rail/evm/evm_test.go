package evm

import (
	"context"
	"encoding/hex"
	"math/big"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	ethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/paygate-labs/x402-gateway-go/types"
)

const (
	testChainID = int64(11155111)
	testAsset   = "0x1c7D4B196Cb0C7B01d743Fbc6116a902379C7238"
	testPayTo   = "0x2222222222222222222222222222222222222222"
	testNonce   = "0x0000000000000000000000000000000000000000000000000000000000000001"
)

// mockEthClient scripts the Ethereum client with function fields.
type mockEthClient struct {
	callContract     func(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error)
	pendingNonceAt   func(ctx context.Context, account common.Address) (uint64, error)
	suggestGasTipCap func(ctx context.Context) (*big.Int, error)
	headerByNumber   func(ctx context.Context, number *big.Int) (*ethtypes.Header, error)
	estimateGas      func(ctx context.Context, msg ethereum.CallMsg) (uint64, error)
	sendTransaction  func(ctx context.Context, tx *ethtypes.Transaction) error
}

func (m *mockEthClient) CallContract(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error) {
	if m.callContract != nil {
		return m.callContract(ctx, msg, blockNumber)
	}
	balance := new(big.Int).Lsh(big.NewInt(1), 64)
	return common.LeftPadBytes(balance.Bytes(), 32), nil
}

func (m *mockEthClient) PendingNonceAt(ctx context.Context, account common.Address) (uint64, error) {
	if m.pendingNonceAt != nil {
		return m.pendingNonceAt(ctx, account)
	}
	return 7, nil
}

func (m *mockEthClient) SuggestGasTipCap(ctx context.Context) (*big.Int, error) {
	if m.suggestGasTipCap != nil {
		return m.suggestGasTipCap(ctx)
	}
	return big.NewInt(1000000000), nil
}

func (m *mockEthClient) HeaderByNumber(ctx context.Context, number *big.Int) (*ethtypes.Header, error) {
	if m.headerByNumber != nil {
		return m.headerByNumber(ctx, number)
	}
	return &ethtypes.Header{BaseFee: big.NewInt(20000000000)}, nil
}

func (m *mockEthClient) EstimateGas(ctx context.Context, msg ethereum.CallMsg) (uint64, error) {
	if m.estimateGas != nil {
		return m.estimateGas(ctx, msg)
	}
	return 60000, nil
}

func (m *mockEthClient) SendTransaction(ctx context.Context, tx *ethtypes.Transaction) error {
	if m.sendTransaction != nil {
		return m.sendTransaction(ctx, tx)
	}
	return nil
}

func setupMockEthClient(t *testing.T, client *mockEthClient) {
	t.Helper()

	original := NewEthClient
	t.Cleanup(func() { NewEthClient = original })

	NewEthClient = func(rpcURL string) (EthClientInterface, error) {
		return client, nil
	}
}

func testRail() *Rail {
	return New(Config{
		Network: types.NetworkSepolia,
		ChainID: testChainID,
		RPCURL:  "http://localhost:8545",
	})
}

// signedProof builds a payment payload whose authorization is signed by a
// freshly generated key.
func signedProof(t *testing.T, value string, validAfter, validBefore int64) (types.PaymentPayload, common.Address) {
	t.Helper()

	privateKey, err := crypto.GenerateKey()
	require.NoError(t, err)

	signer := crypto.PubkeyToAddress(privateKey.PublicKey)

	authValue, ok := new(big.Int).SetString(value, 10)
	require.True(t, ok)

	nonceBytes, err := hex.DecodeString(strings.TrimPrefix(testNonce, "0x"))
	require.NoError(t, err)
	var nonce [32]byte
	copy(nonce[:], nonceBytes)

	typedData := transferAuthorizationTypedData(
		testChainID,
		testAsset,
		types.Extra{Name: "USDC", Version: "2"},
		signer.Hex(),
		testPayTo,
		authValue,
		big.NewInt(validAfter),
		big.NewInt(validBefore),
		nonce,
	)

	domainSeparator, err := typedData.HashStruct("EIP712Domain", typedData.Domain.Map())
	require.NoError(t, err)

	typedDataHash, err := typedData.HashStruct(typedData.PrimaryType, typedData.Message)
	require.NoError(t, err)

	rawData := append(append([]byte("\x19\x01"), domainSeparator...), typedDataHash...)
	sighash := crypto.Keccak256(rawData)

	signature, err := crypto.Sign(sighash, privateKey)
	require.NoError(t, err)

	payload := types.PaymentPayload{
		X402Version: types.X402Version1,
		Scheme:      types.SchemeExact,
		Network:     types.NetworkSepolia,
		Payload: types.Payload{
			Signature: "0x" + hex.EncodeToString(signature),
			Authorization: types.Authorization{
				From:        signer.Hex(),
				To:          testPayTo,
				Value:       value,
				ValidAfter:  strconv.FormatInt(validAfter, 10),
				ValidBefore: strconv.FormatInt(validBefore, 10),
				Nonce:       testNonce,
			},
		},
	}
	return payload, signer
}

func testRequirements(amount string) types.PaymentRequirements {
	return types.PaymentRequirements{
		Scheme:            types.SchemeExact,
		Network:           types.NetworkSepolia,
		MaxAmountRequired: amount,
		Resource:          "/api/services/svc-1",
		PayTo:             testPayTo,
		Asset:             testAsset,
		MaxTimeoutSeconds: 60,
		Extra:             types.Extra{Name: "USDC", Version: "2"},
	}
}

func windowAround(now time.Time) (int64, int64) {
	return now.Add(-time.Minute).Unix(), now.Add(time.Hour).Unix()
}

func TestVerifyValidProof(t *testing.T) {
	setupMockEthClient(t, &mockEthClient{})

	validAfter, validBefore := windowAround(time.Now())
	payload, signer := signedProof(t, "2000", validAfter, validBefore)

	result, err := testRail().Verify(context.Background(), payload, testRequirements("2000"))
	require.NoError(t, err)

	assert.True(t, result.IsValid)
	assert.Equal(t, signer.Hex(), result.Payer)
	assert.Empty(t, result.InvalidReason)
}

func TestVerifyRejections(t *testing.T) {
	setupMockEthClient(t, &mockEthClient{})
	now := time.Now()

	t.Run("expired authorization", func(t *testing.T) {
		payload, _ := signedProof(t, "2000", now.Add(-2*time.Hour).Unix(), now.Add(-time.Hour).Unix())

		result, err := testRail().Verify(context.Background(), payload, testRequirements("2000"))
		require.NoError(t, err)
		assert.False(t, result.IsValid)
		assert.Equal(t, types.InvalidReasonAuthorizationExpired, result.InvalidReason)
	})

	t.Run("authorization not yet valid", func(t *testing.T) {
		payload, _ := signedProof(t, "2000", now.Add(time.Hour).Unix(), now.Add(2*time.Hour).Unix())

		result, err := testRail().Verify(context.Background(), payload, testRequirements("2000"))
		require.NoError(t, err)
		assert.False(t, result.IsValid)
		assert.Equal(t, types.InvalidReasonInvalidAuthorizationValidAfter, result.InvalidReason)
	})

	t.Run("inverted time window", func(t *testing.T) {
		payload, _ := signedProof(t, "2000", now.Add(time.Hour).Unix(), now.Add(-time.Hour).Unix())

		result, err := testRail().Verify(context.Background(), payload, testRequirements("2000"))
		require.NoError(t, err)
		assert.Equal(t, types.InvalidReasonInvalidAuthorizationTimeWindow, result.InvalidReason)
	})

	t.Run("amount mismatch", func(t *testing.T) {
		validAfter, validBefore := windowAround(now)
		payload, _ := signedProof(t, "1999", validAfter, validBefore)

		result, err := testRail().Verify(context.Background(), payload, testRequirements("2000"))
		require.NoError(t, err)
		assert.Equal(t, types.InvalidReasonInvalidAuthorizationValueMismatch, result.InvalidReason)
	})

	t.Run("overpayment is also a mismatch", func(t *testing.T) {
		validAfter, validBefore := windowAround(now)
		payload, _ := signedProof(t, "2001", validAfter, validBefore)

		result, err := testRail().Verify(context.Background(), payload, testRequirements("2000"))
		require.NoError(t, err)
		assert.Equal(t, types.InvalidReasonInvalidAuthorizationValueMismatch, result.InvalidReason)
	})

	t.Run("pay to mismatch", func(t *testing.T) {
		validAfter, validBefore := windowAround(now)
		payload, _ := signedProof(t, "2000", validAfter, validBefore)
		payload.Payload.Authorization.To = "0x3333333333333333333333333333333333333333"

		result, err := testRail().Verify(context.Background(), payload, testRequirements("2000"))
		require.NoError(t, err)
		assert.Equal(t, types.InvalidReasonInvalidAuthorizationToMismatch, result.InvalidReason)
	})

	t.Run("tampered sender", func(t *testing.T) {
		validAfter, validBefore := windowAround(now)
		payload, _ := signedProof(t, "2000", validAfter, validBefore)
		payload.Payload.Authorization.From = "0x4444444444444444444444444444444444444444"

		result, err := testRail().Verify(context.Background(), payload, testRequirements("2000"))
		require.NoError(t, err)
		assert.Equal(t, types.InvalidReasonInvalidAuthorizationSenderMismatch, result.InvalidReason)
	})

	t.Run("short nonce", func(t *testing.T) {
		validAfter, validBefore := windowAround(now)
		payload, _ := signedProof(t, "2000", validAfter, validBefore)
		payload.Payload.Authorization.Nonce = "0x01"

		result, err := testRail().Verify(context.Background(), payload, testRequirements("2000"))
		require.NoError(t, err)
		assert.Equal(t, types.InvalidReasonInvalidAuthorizationNonceLength, result.InvalidReason)
	})

	t.Run("malformed signature", func(t *testing.T) {
		validAfter, validBefore := windowAround(now)
		payload, _ := signedProof(t, "2000", validAfter, validBefore)
		payload.Payload.Signature = "0xdead"

		result, err := testRail().Verify(context.Background(), payload, testRequirements("2000"))
		require.NoError(t, err)
		assert.Equal(t, types.InvalidReasonInvalidAuthorizationSignatureLen, result.InvalidReason)
	})
}

func TestVerifyInsufficientFunds(t *testing.T) {
	setupMockEthClient(t, &mockEthClient{
		callContract: func(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error) {
			return common.LeftPadBytes(big.NewInt(1).Bytes(), 32), nil
		},
	})

	validAfter, validBefore := windowAround(time.Now())
	payload, _ := signedProof(t, "2000", validAfter, validBefore)

	result, err := testRail().Verify(context.Background(), payload, testRequirements("2000"))
	require.NoError(t, err)
	assert.False(t, result.IsValid)
	assert.Equal(t, types.InvalidReasonInsufficientFunds, result.InvalidReason)
}

func settleRail(t *testing.T) *Rail {
	t.Helper()

	privateKey, err := crypto.GenerateKey()
	require.NoError(t, err)

	return New(Config{
		Network:    types.NetworkSepolia,
		ChainID:    testChainID,
		RPCURL:     "http://localhost:8545",
		PrivateKey: hex.EncodeToString(crypto.FromECDSA(privateKey)),
	})
}

func TestSettleCaptured(t *testing.T) {
	setupMockEthClient(t, &mockEthClient{})

	validAfter, validBefore := windowAround(time.Now())
	payload, _ := signedProof(t, "2000", validAfter, validBefore)

	result, err := settleRail(t).Settle(context.Background(), payload, testRequirements("2000"))
	require.NoError(t, err)

	require.True(t, result.Success)
	assert.Equal(t, types.SettlementStatusCaptured, result.Receipt.Status)
	assert.NotEmpty(t, result.Receipt.Transaction)
	assert.Equal(t, "2000", result.Receipt.Amount)
	assert.Equal(t, uint64(7), result.Receipt.Confirmation)
	assert.False(t, result.Receipt.Timestamp.IsZero())
}

func TestSettleRailRejected(t *testing.T) {
	t.Run("estimation revert", func(t *testing.T) {
		setupMockEthClient(t, &mockEthClient{
			estimateGas: func(ctx context.Context, msg ethereum.CallMsg) (uint64, error) {
				return 0, ethereum.NotFound
			},
		})

		validAfter, validBefore := windowAround(time.Now())
		payload, _ := signedProof(t, "2000", validAfter, validBefore)

		result, err := settleRail(t).Settle(context.Background(), payload, testRequirements("2000"))
		require.NoError(t, err)
		assert.False(t, result.Success)
		assert.Equal(t, types.InvalidReasonRailRejected, result.ErrorReason)
		assert.Equal(t, types.SettlementStatusFailed, result.Receipt.Status)
	})

	t.Run("broadcast failure", func(t *testing.T) {
		setupMockEthClient(t, &mockEthClient{
			sendTransaction: func(ctx context.Context, tx *ethtypes.Transaction) error {
				return ethereum.NotFound
			},
		})

		validAfter, validBefore := windowAround(time.Now())
		payload, _ := signedProof(t, "2000", validAfter, validBefore)

		result, err := settleRail(t).Settle(context.Background(), payload, testRequirements("2000"))
		require.NoError(t, err)
		assert.False(t, result.Success)
		assert.Equal(t, types.InvalidReasonRailRejected, result.ErrorReason)
	})
}

func TestSettleMalformedProof(t *testing.T) {
	setupMockEthClient(t, &mockEthClient{})

	validAfter, validBefore := windowAround(time.Now())
	payload, _ := signedProof(t, "2000", validAfter, validBefore)
	payload.Payload.Authorization.Nonce = "0x01"

	result, err := settleRail(t).Settle(context.Background(), payload, testRequirements("2000"))
	require.NoError(t, err)
	assert.False(t, result.Success)
	assert.Equal(t, types.InvalidReasonInvalidAuthorizationNonceLength, result.ErrorReason)
}
