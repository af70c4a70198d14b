package tracker

import (
	"context"
	"errors"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	etypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/sisu-network/lib/log"
	"github.com/sisu-network/xeyes/types"
)

var errNotFinal = errors.New("receipt does not have enough confirmations")

// receiptWait describes one blocking receipt lookup on one chain.
type receiptWait struct {
	stage         types.Stage
	chain         types.ChainRef
	client        ChainClient
	hash          common.Hash
	confirmations uint64
	timeout       time.Duration
	start         time.Time

	timeoutErr  error
	revertedErr error
}

// awaitReceipt polls for a final receipt until the wait's timeout. The poll interval starts at
// MinPollInterval and doubles up to MaxPollInterval.
func (t *Tracker) awaitReceipt(ctx context.Context, w *receiptWait) (*types.Receipt, *types.StageError) {
	deadlineCtx, cancel := context.WithTimeout(ctx, w.timeout)
	defer cancel()

	interval := t.opts.MinPollInterval
	var lastErr error

	for {
		receipt, err := t.getFinalReceipt(deadlineCtx, w)
		if err == nil {
			r := types.NewReceipt(w.chain, w.hash, receipt)
			if !r.Success() {
				serr := types.NewStageError(w.stage, w.revertedErr, w.hash, time.Since(w.start))
				serr.Receipt = r
				return r, serr
			}

			return r, nil
		}

		if !errors.Is(err, ethereum.NotFound) && !errors.Is(err, errNotFinal) && deadlineCtx.Err() == nil {
			log.Verbosef("Cannot get receipt for tx %s on chain %s, err = %v", w.hash.Hex(), w.chain.Name, err)
			lastErr = err
		}

		timer := time.NewTimer(interval)
		select {
		case <-deadlineCtx.Done():
			timer.Stop()

			reason := w.timeoutErr
			if errors.Is(ctx.Err(), context.Canceled) {
				reason = types.ErrCanceled
			}
			serr := types.NewStageError(w.stage, reason, w.hash, time.Since(w.start))
			serr.Cause = lastErr
			return nil, serr

		case <-timer.C:
		}

		interval *= 2
		if interval > t.opts.MaxPollInterval {
			interval = t.opts.MaxPollInterval
		}
	}
}

// getFinalReceipt returns the receipt once it has the wait's number of confirmations.
func (t *Tracker) getFinalReceipt(ctx context.Context, w *receiptWait) (*etypes.Receipt, error) {
	rpcCtx, cancel := t.rpcContext(ctx)
	defer cancel()

	receipt, err := w.client.TransactionReceipt(rpcCtx, w.hash)
	if err != nil {
		return nil, err
	}
	if receipt == nil {
		return nil, ethereum.NotFound
	}

	if w.confirmations <= 1 {
		return receipt, nil
	}
	if receipt.BlockNumber == nil {
		return nil, errNotFinal
	}

	head, err := w.client.BlockNumber(rpcCtx)
	if err != nil {
		return nil, err
	}

	included := receipt.BlockNumber.Uint64()
	if head < included || head-included+1 < w.confirmations {
		return nil, errNotFinal
	}

	return receipt, nil
}

func (t *Tracker) rpcContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if t.opts.RpcTimeout <= 0 {
		return context.WithCancel(ctx)
	}

	return context.WithTimeout(ctx, t.opts.RpcTimeout)
}
