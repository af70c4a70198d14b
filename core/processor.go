package core

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/golang/groupcache/lru"
	"github.com/sisu-network/lib/log"
	"github.com/sisu-network/xeyes/config"
	"github.com/sisu-network/xeyes/database"
	"github.com/sisu-network/xeyes/types"
	"go.uber.org/atomic"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"
)

var (
	ErrNotStarted      = errors.New("processor is not started")
	ErrAlreadyTracking = errors.New("tx is already being tracked")
	ErrNotFound        = errors.New("result not found")
)

// DepositTracker runs the confirmation pipeline of one submission.
type DepositTracker interface {
	Source() types.ChainRef
	Destination() types.ChainRef
	TrackDeposit(ctx context.Context, sub *types.Submission, index int, sourceTimeout, destinationTimeout time.Duration) *types.ConfirmationResult
}

// Processor tracks deposits on behalf of API and CLI callers, keeps recent results in memory
// and persists every final result.
type Processor struct {
	cfg       config.XEyes
	db        database.Database
	tracker   DepositTracker
	txTrackCh <-chan *types.TrackUpdate

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
	done   chan struct{}

	// Bounds the pipelines running at once across Track, TrackAll and Submit.
	slots *semaphore.Weighted

	cacheLock sync.Mutex
	cache     *lru.Cache

	// Latest state of async submissions, keyed by lower case source tx hash.
	inFlightLock sync.Mutex
	inFlight     map[string]*types.TrackRecord

	started   atomic.Bool
	running   atomic.Int64
	confirmed atomic.Int64
	failed    atomic.Int64
}

// NewProcessor creates a processor. txTrackCh must be the channel the tracker's observer
// writes to; the processor drains it once started.
func NewProcessor(
	cfg *config.XEyes,
	db database.Database,
	tracker DepositTracker,
	txTrackCh <-chan *types.TrackUpdate,
) *Processor {
	ctx, cancel := context.WithCancel(context.Background())
	limit := cfg.MaxConcurrentTracks
	if limit <= 0 {
		limit = config.DefaultMaxConcurrentTracks
	}

	return &Processor{
		cfg:       *cfg,
		db:        db,
		tracker:   tracker,
		txTrackCh: txTrackCh,
		ctx:       ctx,
		cancel:    cancel,
		done:      make(chan struct{}),
		slots:     semaphore.NewWeighted(int64(limit)),
		cache:     lru.New(cfg.ResultCacheSize),
		inFlight:  make(map[string]*types.TrackRecord),
	}
}

func (p *Processor) Start() {
	log.Info("Starting deposit processor...")
	log.Infof("Source chain = %s, destination chain = %s", p.tracker.Source(), p.tracker.Destination())

	p.started.Store(true)
	go p.listen()
}

// Stop cancels async submissions and waits for them to finish.
func (p *Processor) Stop() {
	if !p.started.CAS(true, false) {
		return
	}

	p.cancel()
	p.wg.Wait()
	close(p.done)
}

func (p *Processor) listen() {
	for {
		select {
		case update := <-p.txTrackCh:
			if update == nil {
				continue
			}
			p.onTrackUpdate(update)

		case <-p.done:
			return
		}
	}
}

func (p *Processor) onTrackUpdate(update *types.TrackUpdate) {
	if update.Err != nil {
		log.Verbosef("Tx %s stopped at stage %s: %v", update.Hash, update.Stage, update.Err)
	} else {
		log.Verbosef("Tx %s reached state %s, height = %d", update.Hash, update.State, update.BlockHeight)
	}

	p.inFlightLock.Lock()
	defer p.inFlightLock.Unlock()

	record := p.inFlight[strings.ToLower(update.Hash)]
	if record == nil {
		return
	}
	record.State = update.State
	record.Stage = update.Stage
	record.ElapsedMs = update.Elapsed.Milliseconds()
	if update.BlockHeight > 0 && update.Stage == types.StageSource {
		record.SourceBlock = update.BlockHeight
	}
}

// Track runs the pipeline synchronously. The returned error only reports an invalid request.
func (p *Processor) Track(ctx context.Context, req *types.TrackRequest) (*types.ConfirmationResult, error) {
	sub, err := p.parseRequest(req)
	if err != nil {
		return nil, err
	}

	return p.track(ctx, sub, req), nil
}

// TrackAll tracks every request with at most max_concurrent_tracks pipelines running at once.
// Results are in request order.
func (p *Processor) TrackAll(ctx context.Context, reqs []*types.TrackRequest) ([]*types.ConfirmationResult, error) {
	subs := make([]*types.Submission, len(reqs))
	for i, req := range reqs {
		sub, err := p.parseRequest(req)
		if err != nil {
			return nil, fmt.Errorf("request %d: %w", i, err)
		}
		subs[i] = sub
	}

	results := make([]*types.ConfirmationResult, len(reqs))
	g := &errgroup.Group{}
	g.SetLimit(p.cfg.MaxConcurrentTracks)
	for i := range reqs {
		i := i
		g.Go(func() error {
			results[i] = p.track(ctx, subs[i], reqs[i])
			return nil
		})
	}
	g.Wait()

	return results, nil
}

// Submit starts tracking in the background. A tx that is still being tracked is rejected.
func (p *Processor) Submit(req *types.TrackRequest) error {
	if !p.started.Load() {
		return ErrNotStarted
	}

	sub, err := p.parseRequest(req)
	if err != nil {
		return err
	}

	key := strings.ToLower(sub.TxHash.Hex())
	p.inFlightLock.Lock()
	if _, ok := p.inFlight[key]; ok {
		p.inFlightLock.Unlock()
		return ErrAlreadyTracking
	}
	p.inFlight[key] = &types.TrackRecord{
		SourceChain:  sub.Chain.Name,
		SourceTxHash: sub.TxHash.Hex(),
		DepositIndex: req.DepositIndex,
		State:        types.StateSubmitted,
	}
	p.inFlightLock.Unlock()

	// A previous final result must not shadow the new attempt.
	p.cacheLock.Lock()
	p.cache.Remove(key)
	p.cacheLock.Unlock()

	log.Infof("Tracking tx %s on chain %s", sub.TxHash.Hex(), sub.Chain.Name)

	p.wg.Add(1)
	go func() {
		defer p.wg.Done()

		p.track(p.ctx, sub, req)

		p.inFlightLock.Lock()
		delete(p.inFlight, key)
		p.inFlightLock.Unlock()
	}()

	return nil
}

// GetResult returns the final result of a source tx or, while it is being tracked, its latest
// state.
func (p *Processor) GetResult(txHash string) (*types.TrackRecord, error) {
	hash, err := parseTxHash(txHash)
	if err != nil {
		return nil, err
	}
	key := strings.ToLower(hash.Hex())

	p.inFlightLock.Lock()
	pending, ok := p.inFlight[key]
	if ok {
		copied := *pending
		p.inFlightLock.Unlock()
		return &copied, nil
	}
	p.inFlightLock.Unlock()

	p.cacheLock.Lock()
	cached, ok := p.cache.Get(key)
	p.cacheLock.Unlock()
	if ok {
		return cached.(*types.TrackRecord), nil
	}

	record, err := p.db.LoadResult(key)
	if err != nil {
		return nil, err
	}
	if record == nil {
		return nil, ErrNotFound
	}

	p.cacheResult(key, record)
	return record, nil
}

func (p *Processor) Stats() *types.TrackStats {
	return &types.TrackStats{
		InFlight:  p.running.Load(),
		Confirmed: p.confirmed.Load(),
		Failed:    p.failed.Load(),
	}
}

func (p *Processor) track(ctx context.Context, sub *types.Submission, req *types.TrackRequest) *types.ConfirmationResult {
	var result *types.ConfirmationResult
	if !p.acquire(ctx) {
		result = canceledResult(sub, req)
	} else {
		p.running.Inc()
		result = p.tracker.TrackDeposit(
			ctx,
			sub,
			req.DepositIndex,
			time.Duration(req.SourceTimeoutMs)*time.Millisecond,
			time.Duration(req.DestinationTimeoutMs)*time.Millisecond,
		)
		p.running.Dec()
		p.slots.Release(1)
	}

	if result.Confirmed() {
		p.confirmed.Inc()
	} else {
		p.failed.Inc()
	}

	record := types.NewTrackRecord(result, p.tracker.Destination())
	p.cacheResult(strings.ToLower(record.SourceTxHash), record)
	if err := p.db.SaveResult(record); err != nil {
		log.Error("Cannot save track result, err = ", err)
	}

	return result
}

// acquire waits for a pipeline slot. It fails once ctx is done, even if a slot was free.
func (p *Processor) acquire(ctx context.Context) bool {
	if err := p.slots.Acquire(ctx, 1); err != nil {
		return false
	}
	if ctx.Err() != nil {
		p.slots.Release(1)
		return false
	}

	return true
}

// canceledResult is the result of a submission whose context ended while it waited for a slot.
func canceledResult(sub *types.Submission, req *types.TrackRequest) *types.ConfirmationResult {
	serr := types.NewStageError(types.StageSource, types.ErrCanceled, sub.TxHash, 0)
	return &types.ConfirmationResult{
		Submission:   sub,
		DepositIndex: req.DepositIndex,
		Outcome:      types.OutcomeForError(serr),
		State:        types.StateFailed,
		Err:          serr,
	}
}

func (p *Processor) cacheResult(key string, record *types.TrackRecord) {
	p.cacheLock.Lock()
	defer p.cacheLock.Unlock()

	p.cache.Add(key, record)
}

func (p *Processor) parseRequest(req *types.TrackRequest) (*types.Submission, error) {
	if req == nil {
		return nil, fmt.Errorf("empty track request")
	}
	if req.DepositIndex < 0 {
		return nil, fmt.Errorf("invalid deposit index %d", req.DepositIndex)
	}
	if req.SourceTimeoutMs < 0 || req.DestinationTimeoutMs < 0 {
		return nil, fmt.Errorf("timeouts cannot be negative")
	}

	hash, err := parseTxHash(req.TxHash)
	if err != nil {
		return nil, err
	}

	return types.NewSubmission(p.tracker.Source(), hash), nil
}

func parseTxHash(s string) (common.Hash, error) {
	if !strings.HasPrefix(s, "0x") && !strings.HasPrefix(s, "0X") {
		s = "0x" + s
	}

	b, err := hexutil.Decode(s)
	if err != nil {
		return common.Hash{}, fmt.Errorf("invalid tx hash %q: %w", s, err)
	}
	if len(b) != common.HashLength {
		return common.Hash{}, fmt.Errorf("invalid tx hash %q: expected %d bytes, got %d", s, common.HashLength, len(b))
	}

	return common.BytesToHash(b), nil
}
