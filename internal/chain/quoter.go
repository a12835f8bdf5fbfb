package chain

import (
	"context"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"

	"dexradar/internal/domain"
)

// constantProductSwapGas approximates the execution cost of one V2-style
// swap; the quoter contract only reports estimates for concentrated pools.
const constantProductSwapGas = 120_000

var one = decimal.NewFromInt(1)

type quoteParams struct {
	TokenIn           common.Address
	TokenOut          common.Address
	AmountIn          *big.Int
	Fee               *big.Int
	SqrtPriceLimitX96 *big.Int
}

// Quoter answers exact-input quote requests against live chain state:
// concentrated venues go through their QuoterV2 contract, constant-product
// venues are computed from current reserves with the x*y=k formula.
type Quoter struct {
	client    *Client
	reader    *PoolReader
	tokens    map[string]domain.Token
	venues    map[string]domain.Venue
	quoterABI abi.ABI
}

func NewQuoter(client *Client, reader *PoolReader, tokens map[string]domain.Token, venues map[string]domain.Venue) (*Quoter, error) {
	parsed, err := abi.JSON(strings.NewReader(quoterV2ABI))
	if err != nil {
		return nil, fmt.Errorf("chain: parse quoter ABI: %w", err)
	}
	return &Quoter{
		client:    client,
		reader:    reader,
		tokens:    tokens,
		venues:    venues,
		quoterABI: parsed,
	}, nil
}

func (q *Quoter) QuoteExactInput(ctx context.Context, venue, tokenIn, tokenOut string, feeTier int, amountIn decimal.Decimal) (domain.Quote, error) {
	v, ok := q.venues[venue]
	if !ok {
		return domain.Quote{}, fmt.Errorf("chain: unknown venue %q", venue)
	}
	in, ok := q.tokens[tokenIn]
	if !ok {
		return domain.Quote{}, fmt.Errorf("chain: %w: %s", domain.ErrUnsupportedToken, tokenIn)
	}
	out, ok := q.tokens[tokenOut]
	if !ok {
		return domain.Quote{}, fmt.Errorf("chain: %w: %s", domain.ErrUnsupportedToken, tokenOut)
	}
	if !amountIn.IsPositive() {
		return domain.Quote{}, fmt.Errorf("chain: quote amount must be positive")
	}

	switch v.Kind {
	case domain.VenueKindConcentrated:
		return q.quoteConcentrated(ctx, v, in, out, feeTier, amountIn)
	case domain.VenueKindConstantProduct:
		return q.quoteConstantProduct(ctx, v, in, out, amountIn)
	default:
		return domain.Quote{}, fmt.Errorf("chain: unknown venue kind %q", v.Kind)
	}
}

func (q *Quoter) quoteConcentrated(ctx context.Context, v domain.Venue, in, out domain.Token, feeTier int, amountIn decimal.Decimal) (domain.Quote, error) {
	quoter := common.HexToAddress(v.QuoterAddress)
	if quoter == (common.Address{}) {
		return domain.Quote{}, fmt.Errorf("chain: venue %s has no quoter contract", v.Name)
	}

	params := quoteParams{
		TokenIn:           common.HexToAddress(in.Address),
		TokenOut:          common.HexToAddress(out.Address),
		AmountIn:          amountIn.Shift(int32(in.Decimals)).BigInt(),
		Fee:               big.NewInt(int64(feeTier)),
		SqrtPriceLimitX96: big.NewInt(0),
	}
	data, err := q.quoterABI.Pack("quoteExactInputSingle", params)
	if err != nil {
		return domain.Quote{}, fmt.Errorf("chain: pack quote: %w", err)
	}

	res, err := q.client.CallContract(ctx, ethereum.CallMsg{To: &quoter, Data: data}, nil)
	if err != nil {
		return domain.Quote{}, fmt.Errorf("chain: quoter call %s %s->%s: %w", v.Name, in.Symbol, out.Symbol, err)
	}
	unpacked, err := q.quoterABI.Unpack("quoteExactInputSingle", res)
	if err != nil {
		return domain.Quote{}, fmt.Errorf("chain: unpack quote: %w", err)
	}
	if len(unpacked) < 4 {
		return domain.Quote{}, fmt.Errorf("chain: unexpected quote result length %d", len(unpacked))
	}
	amountOut, ok := unpacked[0].(*big.Int)
	if !ok {
		return domain.Quote{}, fmt.Errorf("chain: amountOut type assertion failed")
	}
	gasEstimate, ok := unpacked[3].(*big.Int)
	if !ok {
		return domain.Quote{}, fmt.Errorf("chain: gasEstimate type assertion failed")
	}

	return domain.Quote{
		AmountOut:   decimal.NewFromBigInt(amountOut, -int32(out.Decimals)),
		GasEstimate: gasEstimate.Uint64(),
	}, nil
}

func (q *Quoter) quoteConstantProduct(ctx context.Context, v domain.Venue, in, out domain.Token, amountIn decimal.Decimal) (domain.Quote, error) {
	snap, err := q.reader.Reserves(ctx, v.Name, in.Symbol, out.Symbol)
	if err != nil {
		return domain.Quote{}, err
	}
	if snap == nil {
		return domain.Quote{}, fmt.Errorf("chain: %w: %s %s/%s", domain.ErrNoPool, v.Name, in.Symbol, out.Symbol)
	}

	reserveIn, reserveOut := snap.Reserve0, snap.Reserve1
	if !tokenAIsToken0(in.Address, out.Address) {
		reserveIn, reserveOut = snap.Reserve1, snap.Reserve0
	}
	if reserveIn.IsZero() || reserveOut.IsZero() {
		return domain.Quote{}, fmt.Errorf("chain: %w: %s %s/%s empty reserves", domain.ErrZeroPrice, v.Name, in.Symbol, out.Symbol)
	}

	amountInRaw := amountIn.Shift(int32(in.Decimals))
	inWithFee := amountInRaw.Mul(one.Sub(v.SwapFeeRate))
	outRaw := inWithFee.Mul(reserveOut).Div(reserveIn.Add(inWithFee))

	return domain.Quote{
		AmountOut:   outRaw.Shift(-int32(out.Decimals)),
		GasEstimate: constantProductSwapGas,
	}, nil
}
