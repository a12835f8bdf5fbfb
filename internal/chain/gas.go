package chain

import (
	"context"
	"fmt"
	"math/big"

	"github.com/shopspring/decimal"

	"dexradar/internal/domain"
)

// GasSource reads current gas pricing from the chain. It satisfies the
// domain.GasPriceSource interface consumed by the gas tracker.
type GasSource struct {
	client *Client
}

func NewGasSource(client *Client) *GasSource {
	return &GasSource{client: client}
}

// GasPrice returns a point-in-time gas quote in wei. The legacy gas price is
// mandatory; the EIP-1559 fields are best effort and left zero when the
// endpoint cannot supply them.
func (g *GasSource) GasPrice(ctx context.Context) (domain.GasQuote, error) {
	price, err := g.client.SuggestGasPrice(ctx)
	if err != nil {
		return domain.GasQuote{}, fmt.Errorf("chain: suggest gas price: %w", err)
	}
	quote := domain.GasQuote{GasPrice: decimal.NewFromBigInt(price, 0)}

	tip, err := g.client.SuggestGasTipCap(ctx)
	if err != nil {
		return quote, nil
	}
	quote.MaxPriorityFeePerGas = decimal.NewFromBigInt(tip, 0)

	head, err := g.client.HeaderByNumber(ctx, nil)
	if err != nil || head.BaseFee == nil {
		return quote, nil
	}
	maxFee := new(big.Int).Add(new(big.Int).Mul(head.BaseFee, big.NewInt(2)), tip)
	quote.MaxFeePerGas = decimal.NewFromBigInt(maxFee, 0)
	return quote, nil
}
