package chain

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
)

// Config carries the RPC connection settings.
type Config struct {
	Endpoints []string
	ChainID   int64
	// EndpointCooldown is how long a failing endpoint is skipped before it is
	// tried again.
	EndpointCooldown time.Duration
}

type endpoint struct {
	url string
	cli *ethclient.Client

	mu       sync.Mutex
	failedAt time.Time
}

// Client fans RPC calls out over a list of JSON-RPC endpoints. Calls go to
// the first healthy endpoint; an endpoint that errors is put on cooldown and
// the call falls through to the next one.
type Client struct {
	endpoints []*endpoint
	cooldown  time.Duration
	logger    *slog.Logger
}

// Dial connects to every configured endpoint. At least one must be reachable.
func Dial(ctx context.Context, cfg Config, logger *slog.Logger) (*Client, error) {
	if len(cfg.Endpoints) == 0 {
		return nil, errors.New("chain: no RPC endpoints configured")
	}
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With(slog.String("component", "chain_client"))

	cooldown := cfg.EndpointCooldown
	if cooldown <= 0 {
		cooldown = 30 * time.Second
	}

	var eps []*endpoint
	for _, url := range cfg.Endpoints {
		cli, err := ethclient.DialContext(ctx, url)
		if err != nil {
			logger.Warn("endpoint dial failed", slog.String("url", url), slog.String("error", err.Error()))
			continue
		}
		if cfg.ChainID > 0 {
			id, err := cli.ChainID(ctx)
			if err != nil || id.Int64() != cfg.ChainID {
				logger.Warn("endpoint chain id mismatch", slog.String("url", url))
				cli.Close()
				continue
			}
		}
		eps = append(eps, &endpoint{url: url, cli: cli})
	}
	if len(eps) == 0 {
		return nil, fmt.Errorf("chain: none of %d endpoints reachable", len(cfg.Endpoints))
	}
	logger.Info("connected", slog.Int("endpoints", len(eps)))
	return &Client{endpoints: eps, cooldown: cooldown, logger: logger}, nil
}

func (c *Client) Close() {
	for _, ep := range c.endpoints {
		ep.cli.Close()
	}
}

func (ep *endpoint) healthy(now time.Time, cooldown time.Duration) bool {
	ep.mu.Lock()
	defer ep.mu.Unlock()
	return ep.failedAt.IsZero() || now.Sub(ep.failedAt) >= cooldown
}

func (ep *endpoint) markFailed(now time.Time) {
	ep.mu.Lock()
	ep.failedAt = now
	ep.mu.Unlock()
}

func (ep *endpoint) markHealthy() {
	ep.mu.Lock()
	ep.failedAt = time.Time{}
	ep.mu.Unlock()
}

// do runs fn against endpoints in order until one succeeds. Endpoints on
// cooldown are skipped unless every endpoint is on cooldown.
func (c *Client) do(ctx context.Context, fn func(*ethclient.Client) error) error {
	now := time.Now()
	var lastErr error
	tried := 0
	for pass := 0; pass < 2; pass++ {
		for _, ep := range c.endpoints {
			if pass == 0 && !ep.healthy(now, c.cooldown) {
				continue
			}
			tried++
			if err := fn(ep.cli); err != nil {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				ep.markFailed(now)
				c.logger.Debug("endpoint call failed",
					slog.String("url", ep.url),
					slog.String("error", err.Error()),
				)
				lastErr = err
				continue
			}
			ep.markHealthy()
			return nil
		}
		if tried == len(c.endpoints) {
			break
		}
	}
	if lastErr == nil {
		lastErr = errors.New("no endpoint available")
	}
	return fmt.Errorf("chain: all endpoints failed: %w", lastErr)
}

func (c *Client) CallContract(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error) {
	var out []byte
	err := c.do(ctx, func(cli *ethclient.Client) error {
		res, err := cli.CallContract(ctx, msg, blockNumber)
		if err != nil {
			return err
		}
		out = res
		return nil
	})
	return out, err
}

func (c *Client) BlockNumber(ctx context.Context) (uint64, error) {
	var out uint64
	err := c.do(ctx, func(cli *ethclient.Client) error {
		n, err := cli.BlockNumber(ctx)
		if err != nil {
			return err
		}
		out = n
		return nil
	})
	return out, err
}

func (c *Client) HeaderByNumber(ctx context.Context, number *big.Int) (*types.Header, error) {
	var out *types.Header
	err := c.do(ctx, func(cli *ethclient.Client) error {
		h, err := cli.HeaderByNumber(ctx, number)
		if err != nil {
			return err
		}
		out = h
		return nil
	})
	return out, err
}

func (c *Client) SuggestGasPrice(ctx context.Context) (*big.Int, error) {
	var out *big.Int
	err := c.do(ctx, func(cli *ethclient.Client) error {
		p, err := cli.SuggestGasPrice(ctx)
		if err != nil {
			return err
		}
		out = p
		return nil
	})
	return out, err
}

func (c *Client) SuggestGasTipCap(ctx context.Context) (*big.Int, error) {
	var out *big.Int
	err := c.do(ctx, func(cli *ethclient.Client) error {
		p, err := cli.SuggestGasTipCap(ctx)
		if err != nil {
			return err
		}
		out = p
		return nil
	})
	return out, err
}
