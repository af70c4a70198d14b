package eth

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	ethtypes "github.com/ethereum/go-ethereum/core/types"
	"golang.org/x/time/rate"
)

// rateLimitedClient bounds the request rate sent to a chain, shared by every tracked
// submission.
type rateLimitedClient struct {
	client  EthClient
	limiter *rate.Limiter
}

// NewRateLimitedClient wraps client with a limiter of rps requests per second. A non-positive
// rps returns client unchanged.
func NewRateLimitedClient(client EthClient, rps float64, burst int) EthClient {
	if rps <= 0 {
		return client
	}
	if burst <= 0 {
		burst = 1
	}

	return &rateLimitedClient{
		client:  client,
		limiter: rate.NewLimiter(rate.Limit(rps), burst),
	}
}

func (c *rateLimitedClient) Start() {
	c.client.Start()
}

func (c *rateLimitedClient) ChainID(ctx context.Context) (*big.Int, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	return c.client.ChainID(ctx)
}

func (c *rateLimitedClient) BlockNumber(ctx context.Context) (uint64, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return 0, err
	}

	return c.client.BlockNumber(ctx)
}

func (c *rateLimitedClient) TransactionReceipt(ctx context.Context, txHash common.Hash) (*ethtypes.Receipt, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	return c.client.TransactionReceipt(ctx, txHash)
}
