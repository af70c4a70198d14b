package client

import (
	"context"
	"fmt"

	"github.com/sisu-network/lib/log"
	"github.com/sisu-network/xeyes/types"
	"github.com/ybbus/jsonrpc/v3"
)

// Client talks to a running xeyes server.
type Client interface {
	CheckHealth(ctx context.Context) error
	TrackTx(ctx context.Context, req *types.TrackRequest) error
	GetResult(ctx context.Context, txHash string) (*types.TrackRecord, error)
	Stats(ctx context.Context) (*types.TrackStats, error)
}

type DefaultClient struct {
	client jsonrpc.RPCClient
	url    string
}

func NewClient(url string) Client {
	return &DefaultClient{
		client: jsonrpc.NewClient(url),
		url:    url,
	}
}

// call wraps params in an array since the server only accepts positional params.
func (c *DefaultClient) call(ctx context.Context, out interface{}, method string, params ...interface{}) error {
	var res *jsonrpc.RPCResponse
	var err error
	if len(params) == 0 {
		res, err = c.client.Call(ctx, method)
	} else {
		res, err = c.client.Call(ctx, method, params)
	}
	if err != nil {
		return err
	}
	if res.Error != nil {
		return res.Error
	}
	if out == nil {
		return nil
	}

	return res.GetObject(out)
}

func (c *DefaultClient) CheckHealth(ctx context.Context) error {
	return c.call(ctx, nil, "xeyes_checkHealth")
}

func (c *DefaultClient) TrackTx(ctx context.Context, req *types.TrackRequest) error {
	log.Verbose("Submitting tx to track ", req.TxHash, " to ", c.url)

	if err := c.call(ctx, nil, "xeyes_trackTx", req); err != nil {
		return fmt.Errorf("cannot submit tx %s: %w", req.TxHash, err)
	}

	return nil
}

func (c *DefaultClient) GetResult(ctx context.Context, txHash string) (*types.TrackRecord, error) {
	record := &types.TrackRecord{}
	if err := c.call(ctx, record, "xeyes_getResult", txHash); err != nil {
		return nil, err
	}

	return record, nil
}

func (c *DefaultClient) Stats(ctx context.Context) (*types.TrackStats, error) {
	stats := &types.TrackStats{}
	if err := c.call(ctx, stats, "xeyes_stats"); err != nil {
		return nil, err
	}

	return stats, nil
}
