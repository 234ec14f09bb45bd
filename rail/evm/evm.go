// Package evm implements the payment rail on an EVM chain: proofs are
// EIP-712 TransferWithAuthorization signatures and settlement submits the
// EIP-3009 transfer on behalf of the payer.
package evm

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common/math"
	"github.com/ethereum/go-ethereum/signer/core/apitypes"

	"github.com/paygate-labs/x402-gateway-go/types"
)

// Config is the configuration for the EVM rail.
type Config struct {
	Network    types.Network
	ChainID    int64
	RPCURL     string
	PrivateKey string
}

// Rail is the EVM payment rail.
type Rail struct {
	config Config
}

// New creates an EVM rail for the configured chain.
func New(config Config) *Rail {
	return &Rail{config: config}
}

// Network returns the network tag the rail settles on.
func (r *Rail) Network() types.Network {
	return r.config.Network
}

// transferAuthorizationTypedData constructs the EIP-712 typed data for a
// TransferWithAuthorization message.
func transferAuthorizationTypedData(
	chainID int64,
	asset string,
	extra types.Extra,
	from string,
	to string,
	value *big.Int,
	validAfter *big.Int,
	validBefore *big.Int,
	nonce [32]byte,
) apitypes.TypedData {

	// Convert the chain ID to hex or decimal
	bigChainID := big.NewInt(chainID)
	hexChainID := math.HexOrDecimal256(*bigChainID)

	return apitypes.TypedData{
		Types: apitypes.Types{
			"EIP712Domain": []apitypes.Type{
				{Name: "name", Type: "string"},
				{Name: "version", Type: "string"},
				{Name: "chainId", Type: "uint256"},
				{Name: "verifyingContract", Type: "address"},
			},
			"TransferWithAuthorization": []apitypes.Type{
				{Name: "from", Type: "address"},
				{Name: "to", Type: "address"},
				{Name: "value", Type: "uint256"},
				{Name: "validAfter", Type: "uint256"},
				{Name: "validBefore", Type: "uint256"},
				{Name: "nonce", Type: "bytes32"},
			},
		},
		PrimaryType: "TransferWithAuthorization",
		Domain: apitypes.TypedDataDomain{
			Name:              extra.Name,
			Version:           extra.Version,
			ChainId:           &hexChainID,
			VerifyingContract: asset,
		},
		Message: apitypes.TypedDataMessage{
			"from":        from,
			"to":          to,
			"value":       value,
			"validAfter":  validAfter,
			"validBefore": validBefore,
			"nonce":       nonce,
		},
	}
}
