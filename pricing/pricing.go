// Package pricing derives payment requirements from service records.
package pricing

import (
	"fmt"
	"math/big"

	"github.com/paygate-labs/x402-gateway-go/types"
)

// AssetConfig is the configuration for the payment asset.
type AssetConfig struct {
	Address  string
	Decimals int
	Name     string
	Version  string
}

// Generator derives payment requirements for a service. Requirements are
// recomputed on every challenge so price changes take effect immediately.
type Generator struct {
	asset          AssetConfig
	scheme         types.Scheme
	timeoutSeconds int64
}

// NewGenerator creates a generator for the configured asset.
func NewGenerator(asset AssetConfig, timeoutSeconds int64) *Generator {
	return &Generator{
		asset:          asset,
		scheme:         types.SchemeExact,
		timeoutSeconds: timeoutSeconds,
	}
}

// Requirements builds the payment requirements for a service record.
func (g *Generator) Requirements(record types.ServiceRecord) (types.PaymentRequirements, error) {

	// Convert the decimal price to atomic units
	amount, err := AtomicAmount(record.Price, g.asset.Decimals)
	if err != nil {
		return types.PaymentRequirements{}, err
	}

	// Return the requirements derived from the record
	return types.PaymentRequirements{
		Scheme:            g.scheme,
		Network:           record.Network,
		MaxAmountRequired: amount.String(),
		Resource:          record.Endpoint,
		Description:       record.Description,
		PayTo:             record.PayTo,
		Asset:             g.asset.Address,
		MaxTimeoutSeconds: g.timeoutSeconds,
		Extra: types.Extra{
			Name:    g.asset.Name,
			Version: g.asset.Version,
		},
	}, nil
}

// AtomicAmount converts a decimal price string to the asset's smallest unit,
// computed as floor(price * 10^decimals).
func AtomicAmount(price string, decimals int) (*big.Int, error) {

	// Parse the decimal price as an exact rational
	rat, ok := new(big.Rat).SetString(price)
	if !ok {
		return nil, fmt.Errorf("invalid price %q", price)
	}

	// Reject negative prices
	if rat.Sign() < 0 {
		return nil, fmt.Errorf("negative price %q", price)
	}

	// Scale by 10^decimals
	scale := new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(decimals)), nil)
	rat.Mul(rat, new(big.Rat).SetInt(scale))

	// Floor the scaled value
	return new(big.Int).Quo(rat.Num(), rat.Denom()), nil
}
