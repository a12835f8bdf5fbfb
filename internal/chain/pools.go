package chain

import (
	"context"
	"fmt"
	"log/slog"
	"math/big"
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"

	"dexradar/internal/domain"
)

var q96 = decimal.NewFromBigInt(new(big.Int).Lsh(big.NewInt(1), 96), 0)

// PoolReader resolves pool addresses through venue factories and reads raw
// pricing state. Resolved addresses are cached for the life of the process;
// a factory answering the zero address is remembered as pool-not-deployed.
type PoolReader struct {
	client *Client
	tokens map[string]domain.Token
	venues map[string]domain.Venue
	logger *slog.Logger

	pairABI      abi.ABI
	v2FactoryABI abi.ABI
	v3FactoryABI abi.ABI
	v3PoolABI    abi.ABI

	mu    sync.Mutex
	addrs map[string]common.Address
}

func NewPoolReader(client *Client, tokens map[string]domain.Token, venues map[string]domain.Venue, logger *slog.Logger) (*PoolReader, error) {
	if logger == nil {
		logger = slog.Default()
	}
	r := &PoolReader{
		client: client,
		tokens: tokens,
		venues: venues,
		logger: logger.With(slog.String("component", "pool_reader")),
		addrs:  make(map[string]common.Address),
	}
	for _, spec := range []struct {
		raw string
		dst *abi.ABI
	}{
		{pairABI, &r.pairABI},
		{v2FactoryABI, &r.v2FactoryABI},
		{v3FactoryABI, &r.v3FactoryABI},
		{v3PoolABI, &r.v3PoolABI},
	} {
		parsed, err := abi.JSON(strings.NewReader(spec.raw))
		if err != nil {
			return nil, fmt.Errorf("chain: parse ABI: %w", err)
		}
		*spec.dst = parsed
	}
	return r, nil
}

// PoolState reads the pool's current raw price ratio. The returned ratio is
// oriented tokenB-per-tokenA in raw units regardless of the pool's internal
// token ordering. A (nil, nil) return means the pool is not deployed.
func (r *PoolReader) PoolState(ctx context.Context, venue, tokenA, tokenB string, feeTier int) (*domain.PoolState, error) {
	v, ta, tb, err := r.lookup(venue, tokenA, tokenB)
	if err != nil {
		return nil, err
	}
	addr, err := r.poolAddress(ctx, v, ta, tb, feeTier)
	if err != nil {
		return nil, err
	}
	if addr == (common.Address{}) {
		return nil, nil
	}

	block, err := r.client.BlockNumber(ctx)
	if err != nil {
		return nil, fmt.Errorf("chain: block number: %w", err)
	}

	switch v.Kind {
	case domain.VenueKindConstantProduct:
		r0, r1, err := r.reserves(ctx, addr)
		if err != nil {
			return nil, err
		}
		if r0.Sign() == 0 || r1.Sign() == 0 {
			return nil, fmt.Errorf("chain: %w: %s %s/%s empty reserves", domain.ErrZeroPrice, venue, tokenA, tokenB)
		}
		d0 := decimal.NewFromBigInt(r0, 0)
		d1 := decimal.NewFromBigInt(r1, 0)
		ratio := d1.Div(d0)
		if !tokenAIsToken0(ta.Address, tb.Address) {
			ratio = d0.Div(d1)
		}
		liq := decimal.NewFromBigInt(new(big.Int).Sqrt(new(big.Int).Mul(r0, r1)), 0)
		return &domain.PoolState{RawPriceRatio: ratio, Liquidity: liq, BlockHeight: block}, nil

	case domain.VenueKindConcentrated:
		sqrtPrice, liq, err := r.slot0(ctx, addr)
		if err != nil {
			return nil, err
		}
		if sqrtPrice.Sign() == 0 {
			return nil, fmt.Errorf("chain: %w: %s %s/%s uninitialized pool", domain.ErrZeroPrice, venue, tokenA, tokenB)
		}
		s := decimal.NewFromBigInt(sqrtPrice, 0).Div(q96)
		ratio := s.Mul(s)
		if !tokenAIsToken0(ta.Address, tb.Address) {
			ratio = decimal.NewFromInt(1).Div(ratio)
		}
		return &domain.PoolState{
			RawPriceRatio: ratio,
			Liquidity:     decimal.NewFromBigInt(liq, 0),
			BlockHeight:   block,
		}, nil

	default:
		return nil, fmt.Errorf("chain: unknown venue kind %q", v.Kind)
	}
}

// Reserves reads raw constant-product reserves in pool-native ordering.
// Returns (nil, nil) when the pool is not deployed.
func (r *PoolReader) Reserves(ctx context.Context, venue, tokenA, tokenB string) (*domain.ReserveSnapshot, error) {
	v, ta, tb, err := r.lookup(venue, tokenA, tokenB)
	if err != nil {
		return nil, err
	}
	if v.Kind != domain.VenueKindConstantProduct {
		return nil, fmt.Errorf("chain: venue %s is not constant-product", venue)
	}
	addr, err := r.poolAddress(ctx, v, ta, tb, 0)
	if err != nil {
		return nil, err
	}
	if addr == (common.Address{}) {
		return nil, nil
	}
	block, err := r.client.BlockNumber(ctx)
	if err != nil {
		return nil, fmt.Errorf("chain: block number: %w", err)
	}
	r0, r1, err := r.reserves(ctx, addr)
	if err != nil {
		return nil, err
	}
	return &domain.ReserveSnapshot{
		Reserve0:    decimal.NewFromBigInt(r0, 0),
		Reserve1:    decimal.NewFromBigInt(r1, 0),
		BlockHeight: block,
	}, nil
}

func (r *PoolReader) lookup(venue, tokenA, tokenB string) (domain.Venue, domain.Token, domain.Token, error) {
	v, ok := r.venues[venue]
	if !ok {
		return domain.Venue{}, domain.Token{}, domain.Token{}, fmt.Errorf("chain: unknown venue %q", venue)
	}
	ta, ok := r.tokens[tokenA]
	if !ok {
		return domain.Venue{}, domain.Token{}, domain.Token{}, fmt.Errorf("chain: %w: %s", domain.ErrUnsupportedToken, tokenA)
	}
	tb, ok := r.tokens[tokenB]
	if !ok {
		return domain.Venue{}, domain.Token{}, domain.Token{}, fmt.Errorf("chain: %w: %s", domain.ErrUnsupportedToken, tokenB)
	}
	return v, ta, tb, nil
}

func (r *PoolReader) poolAddress(ctx context.Context, v domain.Venue, ta, tb domain.Token, feeTier int) (common.Address, error) {
	key := fmt.Sprintf("%s:%s:%s:%d", v.Name, ta.Symbol, tb.Symbol, feeTier)
	r.mu.Lock()
	addr, ok := r.addrs[key]
	r.mu.Unlock()
	if ok {
		return addr, nil
	}

	factory := common.HexToAddress(v.FactoryAddress)
	addrA := common.HexToAddress(ta.Address)
	addrB := common.HexToAddress(tb.Address)

	var (
		data []byte
		err  error
	)
	switch v.Kind {
	case domain.VenueKindConstantProduct:
		data, err = r.v2FactoryABI.Pack("getPair", addrA, addrB)
	case domain.VenueKindConcentrated:
		data, err = r.v3FactoryABI.Pack("getPool", addrA, addrB, big.NewInt(int64(feeTier)))
	default:
		return common.Address{}, fmt.Errorf("chain: unknown venue kind %q", v.Kind)
	}
	if err != nil {
		return common.Address{}, fmt.Errorf("chain: pack factory call: %w", err)
	}

	out, err := r.client.CallContract(ctx, ethereum.CallMsg{To: &factory, Data: data}, nil)
	if err != nil {
		return common.Address{}, fmt.Errorf("chain: factory lookup %s: %w", key, err)
	}
	addr = common.BytesToAddress(out)
	if addr == (common.Address{}) {
		r.logger.Debug("pool not deployed", slog.String("pool", key))
	}

	r.mu.Lock()
	r.addrs[key] = addr
	r.mu.Unlock()
	return addr, nil
}

func (r *PoolReader) reserves(ctx context.Context, pool common.Address) (*big.Int, *big.Int, error) {
	data, err := r.pairABI.Pack("getReserves")
	if err != nil {
		return nil, nil, fmt.Errorf("chain: pack getReserves: %w", err)
	}
	out, err := r.client.CallContract(ctx, ethereum.CallMsg{To: &pool, Data: data}, nil)
	if err != nil {
		return nil, nil, fmt.Errorf("chain: getReserves: %w", err)
	}
	unpacked, err := r.pairABI.Unpack("getReserves", out)
	if err != nil {
		return nil, nil, fmt.Errorf("chain: unpack getReserves: %w", err)
	}
	if len(unpacked) < 2 {
		return nil, nil, fmt.Errorf("chain: unexpected getReserves result length %d", len(unpacked))
	}
	r0, ok := unpacked[0].(*big.Int)
	if !ok {
		return nil, nil, fmt.Errorf("chain: reserve0 type assertion failed")
	}
	r1, ok := unpacked[1].(*big.Int)
	if !ok {
		return nil, nil, fmt.Errorf("chain: reserve1 type assertion failed")
	}
	return r0, r1, nil
}

func (r *PoolReader) slot0(ctx context.Context, pool common.Address) (sqrtPrice, liquidity *big.Int, err error) {
	data, err := r.v3PoolABI.Pack("slot0")
	if err != nil {
		return nil, nil, fmt.Errorf("chain: pack slot0: %w", err)
	}
	out, err := r.client.CallContract(ctx, ethereum.CallMsg{To: &pool, Data: data}, nil)
	if err != nil {
		return nil, nil, fmt.Errorf("chain: slot0: %w", err)
	}
	unpacked, err := r.v3PoolABI.Unpack("slot0", out)
	if err != nil {
		return nil, nil, fmt.Errorf("chain: unpack slot0: %w", err)
	}
	if len(unpacked) == 0 {
		return nil, nil, fmt.Errorf("chain: empty slot0 result")
	}
	sqrtPrice, ok := unpacked[0].(*big.Int)
	if !ok {
		return nil, nil, fmt.Errorf("chain: sqrtPriceX96 type assertion failed")
	}

	data, err = r.v3PoolABI.Pack("liquidity")
	if err != nil {
		return nil, nil, fmt.Errorf("chain: pack liquidity: %w", err)
	}
	out, err = r.client.CallContract(ctx, ethereum.CallMsg{To: &pool, Data: data}, nil)
	if err != nil {
		return nil, nil, fmt.Errorf("chain: liquidity: %w", err)
	}
	unpacked, err = r.v3PoolABI.Unpack("liquidity", out)
	if err != nil || len(unpacked) == 0 {
		return nil, nil, fmt.Errorf("chain: unpack liquidity: %w", err)
	}
	liquidity, ok = unpacked[0].(*big.Int)
	if !ok {
		return nil, nil, fmt.Errorf("chain: liquidity type assertion failed")
	}
	return sqrtPrice, liquidity, nil
}

// tokenAIsToken0 mirrors the factories' canonical ordering: token0 is the
// numerically lower address.
func tokenAIsToken0(addrA, addrB string) bool {
	a := common.HexToAddress(addrA)
	b := common.HexToAddress(addrB)
	return strings.ToLower(a.Hex()) < strings.ToLower(b.Hex())
}
