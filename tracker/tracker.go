package tracker

import (
	"context"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"
	etypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/sisu-network/xeyes/config"
	"github.com/sisu-network/xeyes/types"
)

// ChainClient is the read capability the tracker needs from a chain.
type ChainClient interface {
	BlockNumber(ctx context.Context) (uint64, error)
	TransactionReceipt(ctx context.Context, txHash common.Hash) (*etypes.Receipt, error)
}

// SourceChainClient reads the chain where deposits are submitted.
type SourceChainClient interface {
	ChainClient
}

// DestinationChainClient reads the chain where deposits are executed.
type DestinationChainClient interface {
	ChainClient
}

// DepositDecoder computes the destination transaction hashes encoded by the deposit logs of a
// source receipt. It must be pure: the same receipt always yields the same sequence.
type DepositDecoder interface {
	DecodeDepositLogs(receipt *types.Receipt) ([]common.Hash, error)
}

type Options struct {
	MinPollInterval time.Duration
	MaxPollInterval time.Duration
	RpcTimeout      time.Duration

	// Used when a caller passes a non-positive timeout.
	SourceTimeout      time.Duration
	DestinationTimeout time.Duration

	SourceConfirmations      uint64
	DestinationConfirmations uint64
}

func OptionsFromConfig(cfg *config.XEyes) Options {
	return Options{
		MinPollInterval:          cfg.Tracker.MinPollInterval(),
		MaxPollInterval:          cfg.Tracker.MaxPollInterval(),
		RpcTimeout:               cfg.Tracker.RpcTimeout(),
		SourceTimeout:            cfg.Tracker.SourceTimeout(),
		DestinationTimeout:       cfg.Tracker.DestinationTimeout(),
		SourceConfirmations:      cfg.Source.Confirmations,
		DestinationConfirmations: cfg.Destination.Confirmations,
	}
}

// Tracker follows a deposit from its source chain receipt to its destination chain receipt.
// It keeps no per-submission state and is safe for concurrent use.
type Tracker struct {
	source      types.ChainRef
	destination types.ChainRef

	sourceClient      SourceChainClient
	destinationClient DestinationChainClient
	decoder           DepositDecoder
	observer          Observer
	opts              Options
}

func NewTracker(
	source, destination types.ChainRef,
	sourceClient SourceChainClient,
	destinationClient DestinationChainClient,
	decoder DepositDecoder,
	opts Options,
	observer Observer,
) (*Tracker, error) {
	if sourceClient == nil || destinationClient == nil || decoder == nil {
		return nil, fmt.Errorf("chain clients and deposit decoder are required")
	}
	if opts.MinPollInterval <= 0 {
		return nil, fmt.Errorf("min poll interval must be positive, got %s", opts.MinPollInterval)
	}
	if opts.MaxPollInterval < opts.MinPollInterval {
		opts.MaxPollInterval = opts.MinPollInterval
	}
	if observer == nil {
		observer = NoopObserver{}
	}

	return &Tracker{
		source:            source,
		destination:       destination,
		sourceClient:      sourceClient,
		destinationClient: destinationClient,
		decoder:           decoder,
		observer:          observer,
		opts:              opts,
	}, nil
}

func (t *Tracker) Source() types.ChainRef {
	return t.source
}

func (t *Tracker) Destination() types.ChainRef {
	return t.destination
}

// AwaitSourceReceipt blocks until the submission is final on the source chain. The returned
// error is a *types.StageError wrapping ErrSourceTimeout, ErrSourceReverted or ErrCanceled.
func (t *Tracker) AwaitSourceReceipt(ctx context.Context, sub *types.Submission, timeout time.Duration) (*types.Receipt, error) {
	receipt, err := t.awaitSourceReceipt(ctx, sub, timeout, time.Now())
	if err != nil {
		return receipt, err
	}

	return receipt, nil
}

// DeriveDestinationIds returns the destination transaction hashes of every deposit in the
// receipt, in log order. An empty sequence is reported as ErrDerivationEmpty.
func (t *Tracker) DeriveDestinationIds(receipt *types.Receipt) ([]common.Hash, error) {
	ids, err := t.deriveDestinationIds(receipt, time.Now())
	if err != nil {
		return ids, err
	}

	return ids, nil
}

// AwaitDestinationReceipt blocks until id is final on the destination chain. The returned error
// is a *types.StageError wrapping ErrDestinationTimeout, ErrDestinationReverted or ErrCanceled.
func (t *Tracker) AwaitDestinationReceipt(ctx context.Context, id common.Hash, timeout time.Duration) (*types.Receipt, error) {
	receipt, err := t.awaitDestinationReceipt(ctx, id, timeout, time.Now())
	if err != nil {
		return receipt, err
	}

	return receipt, nil
}

// Track runs the pipeline for the first deposit of the submission.
func (t *Tracker) Track(ctx context.Context, sub *types.Submission, sourceTimeout, destinationTimeout time.Duration) *types.ConfirmationResult {
	return t.TrackDeposit(ctx, sub, 0, sourceTimeout, destinationTimeout)
}

// TrackDeposit runs source await, derivation and destination await in order for the deposit at
// index and stops at the first failing stage. It makes a single attempt; retrying is up to the
// caller.
func (t *Tracker) TrackDeposit(
	ctx context.Context,
	sub *types.Submission,
	index int,
	sourceTimeout, destinationTimeout time.Duration,
) *types.ConfirmationResult {
	start := time.Now()
	result := &types.ConfirmationResult{
		Submission:   sub,
		DepositIndex: index,
		State:        types.StateSubmitted,
	}
	t.emit(result, types.StageSource, 0, nil, start)

	sourceReceipt, serr := t.awaitSourceReceipt(ctx, sub, sourceTimeout, start)
	result.SourceReceipt = sourceReceipt
	if serr != nil {
		return t.fail(result, serr, start)
	}
	result.State = types.StateSourceConfirmed
	t.emit(result, types.StageSource, sourceReceipt.BlockNumber, nil, start)

	ids, serr := t.deriveDestinationIds(sourceReceipt, start)
	result.DerivedIds = ids
	if serr != nil {
		return t.fail(result, serr, start)
	}
	if index < 0 || index >= len(ids) {
		serr = types.NewStageError(types.StageDerivation, types.ErrDepositIndexOutOfRange, sub.TxHash, time.Since(start))
		serr.Receipt = sourceReceipt
		serr.Cause = fmt.Errorf("index %d, %d deposit(s) found", index, len(ids))
		return t.fail(result, serr, start)
	}
	result.State = types.StateDerived
	t.emit(result, types.StageDerivation, sourceReceipt.BlockNumber, nil, start)

	destinationReceipt, serr := t.awaitDestinationReceipt(ctx, ids[index], destinationTimeout, start)
	result.DestinationReceipt = destinationReceipt
	if serr != nil {
		return t.fail(result, serr, start)
	}

	result.State = types.StateDestinationConfirmed
	result.Outcome = types.OutcomeConfirmed
	result.Elapsed = time.Since(start)
	t.emit(result, types.StageDestination, destinationReceipt.BlockNumber, nil, start)

	return result
}

func (t *Tracker) awaitSourceReceipt(ctx context.Context, sub *types.Submission, timeout time.Duration, start time.Time) (*types.Receipt, *types.StageError) {
	if timeout <= 0 {
		timeout = t.opts.SourceTimeout
	}

	return t.awaitReceipt(ctx, &receiptWait{
		stage:         types.StageSource,
		chain:         t.source,
		client:        t.sourceClient,
		hash:          sub.TxHash,
		confirmations: t.opts.SourceConfirmations,
		timeout:       timeout,
		start:         start,
		timeoutErr:    types.ErrSourceTimeout,
		revertedErr:   types.ErrSourceReverted,
	})
}

func (t *Tracker) awaitDestinationReceipt(ctx context.Context, id common.Hash, timeout time.Duration, start time.Time) (*types.Receipt, *types.StageError) {
	if timeout <= 0 {
		timeout = t.opts.DestinationTimeout
	}

	return t.awaitReceipt(ctx, &receiptWait{
		stage:         types.StageDestination,
		chain:         t.destination,
		client:        t.destinationClient,
		hash:          id,
		confirmations: t.opts.DestinationConfirmations,
		timeout:       timeout,
		start:         start,
		timeoutErr:    types.ErrDestinationTimeout,
		revertedErr:   types.ErrDestinationReverted,
	})
}

func (t *Tracker) deriveDestinationIds(receipt *types.Receipt, start time.Time) ([]common.Hash, *types.StageError) {
	ids, err := t.decoder.DecodeDepositLogs(receipt)
	if err != nil {
		serr := types.NewStageError(types.StageDerivation, types.ErrMalformedDepositLog, receipt.TxHash, time.Since(start))
		serr.Receipt = receipt
		serr.Cause = err
		return nil, serr
	}

	if len(ids) == 0 {
		serr := types.NewStageError(types.StageDerivation, types.ErrDerivationEmpty, receipt.TxHash, time.Since(start))
		serr.Receipt = receipt
		return ids, serr
	}

	return ids, nil
}

func (t *Tracker) fail(result *types.ConfirmationResult, serr *types.StageError, start time.Time) *types.ConfirmationResult {
	result.State = types.StateFailed
	result.Outcome = types.OutcomeForError(serr)
	result.Err = serr
	result.Elapsed = time.Since(start)

	var height uint64
	if serr.Receipt != nil {
		height = serr.Receipt.BlockNumber
	}
	t.emit(result, serr.Stage, height, serr, start)

	return result
}

func (t *Tracker) emit(result *types.ConfirmationResult, stage types.Stage, height uint64, serr *types.StageError, start time.Time) {
	update := &types.TrackUpdate{
		Chain:       result.Submission.Chain.Name,
		Hash:        result.Submission.TxHash.Hex(),
		State:       result.State,
		Stage:       stage,
		BlockHeight: int64(height),
		Result:      types.TrackResultPending,
		Elapsed:     time.Since(start),
	}

	switch {
	case serr != nil:
		update.Err = serr
		update.Result = types.ResultFromError(serr)
	case result.State.Terminal():
		update.Result = types.TrackResultConfirmed
	}

	t.observer.OnTrackUpdate(update)
}
