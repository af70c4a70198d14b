package tracker

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	etypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/sisu-network/xeyes/chains/eth"
	"github.com/sisu-network/xeyes/deposit"
	"github.com/sisu-network/xeyes/types"
	"github.com/stretchr/testify/require"
	"go.uber.org/atomic"
)

var (
	testSource      = types.NewChainRef("l1", 900, []string{"http://localhost:8545"}, types.RoleSource)
	testDestination = types.NewChainRef("l2", 901, []string{"http://localhost:9545"}, types.RoleDestination)
	testPortal      = common.HexToAddress("0x6900000000000000000000000000000000000001")

	sourceTxHash = common.HexToHash("0xaa")
	destTxHash   = common.HexToHash("0xbb")
)

type mockDecoder struct {
	calls *atomic.Int32
	ids   []common.Hash
	err   error
}

func newMockDecoder(ids ...common.Hash) *mockDecoder {
	return &mockDecoder{calls: atomic.NewInt32(0), ids: ids}
}

func (d *mockDecoder) DecodeDepositLogs(receipt *types.Receipt) ([]common.Hash, error) {
	d.calls.Inc()
	if d.err != nil {
		return nil, d.err
	}

	ids := make([]common.Hash, len(d.ids))
	copy(ids, d.ids)
	return ids, nil
}

type recordingObserver struct {
	lock    sync.Mutex
	updates []*types.TrackUpdate
}

func (o *recordingObserver) OnTrackUpdate(update *types.TrackUpdate) {
	o.lock.Lock()
	defer o.lock.Unlock()

	o.updates = append(o.updates, update)
}

func (o *recordingObserver) states() []types.TrackState {
	o.lock.Lock()
	defer o.lock.Unlock()

	states := make([]types.TrackState, 0, len(o.updates))
	for _, u := range o.updates {
		states = append(states, u.State)
	}
	return states
}

func (o *recordingObserver) results() []types.TrackResult {
	o.lock.Lock()
	defer o.lock.Unlock()

	results := make([]types.TrackResult, 0, len(o.updates))
	for _, u := range o.updates {
		results = append(results, u.Result)
	}
	return results
}

// receiptClient returns the receipts in its map and NotFound for anything else.
func receiptClient(calls *atomic.Int32, receipts map[common.Hash]*etypes.Receipt) *eth.MockEthClient {
	return &eth.MockEthClient{
		TransactionReceiptFunc: func(ctx context.Context, txHash common.Hash) (*etypes.Receipt, error) {
			calls.Inc()
			if r, ok := receipts[txHash]; ok {
				return r, nil
			}
			return nil, ethereum.NotFound
		},
	}
}

func successReceipt(block int64, logs ...*etypes.Log) *etypes.Receipt {
	return &etypes.Receipt{
		Status:      etypes.ReceiptStatusSuccessful,
		BlockNumber: big.NewInt(block),
		BlockHash:   common.BigToHash(big.NewInt(block)),
		Logs:        logs,
	}
}

func revertedReceipt(block int64) *etypes.Receipt {
	r := successReceipt(block)
	r.Status = etypes.ReceiptStatusFailed
	return r
}

func testOptions() Options {
	return Options{
		MinPollInterval:    time.Millisecond,
		MaxPollInterval:    5 * time.Millisecond,
		RpcTimeout:         time.Second,
		SourceTimeout:      100 * time.Millisecond,
		DestinationTimeout: 100 * time.Millisecond,
	}
}

func newTestTracker(t *testing.T, source, destination ChainClient, decoder DepositDecoder, observer Observer) *Tracker {
	tracker, err := NewTracker(testSource, testDestination, source, destination, decoder, testOptions(), observer)
	require.Nil(t, err)
	return tracker
}

func TestNewTracker(t *testing.T) {
	client := &eth.MockEthClient{}

	_, err := NewTracker(testSource, testDestination, client, client, newMockDecoder(), Options{}, nil)
	require.NotNil(t, err)

	_, err = NewTracker(testSource, testDestination, client, nil, newMockDecoder(), testOptions(), nil)
	require.NotNil(t, err)

	opts := testOptions()
	opts.MaxPollInterval = 0
	tracker, err := NewTracker(testSource, testDestination, client, client, newMockDecoder(), opts, nil)
	require.Nil(t, err)
	require.Equal(t, opts.MinPollInterval, tracker.opts.MaxPollInterval)
}

func TestTrack_Confirmed(t *testing.T) {
	sourceCalls, destCalls := atomic.NewInt32(0), atomic.NewInt32(0)
	sourceDone := atomic.NewBool(false)

	source := receiptClient(sourceCalls, map[common.Hash]*etypes.Receipt{sourceTxHash: successReceipt(10)})
	dest := &eth.MockEthClient{
		TransactionReceiptFunc: func(ctx context.Context, txHash common.Hash) (*etypes.Receipt, error) {
			destCalls.Inc()
			if !sourceDone.Load() {
				return nil, fmt.Errorf("destination polled before source was confirmed")
			}
			if txHash != destTxHash {
				return nil, ethereum.NotFound
			}
			return successReceipt(20), nil
		},
	}
	decoder := newMockDecoder(destTxHash)
	observer := &recordingObserver{}
	tracker := newTestTracker(t, source, dest, &orderedDecoder{decoder, sourceDone}, observer)

	result := tracker.Track(context.Background(), types.NewSubmission(testSource, sourceTxHash), time.Second, time.Second)

	require.Nil(t, result.Err)
	require.Equal(t, types.OutcomeConfirmed, result.Outcome)
	require.Equal(t, types.StateDestinationConfirmed, result.State)
	require.True(t, result.Confirmed())
	require.Equal(t, sourceTxHash, result.SourceReceipt.TxHash)
	require.Equal(t, uint64(10), result.SourceReceipt.BlockNumber)
	require.Equal(t, testSource, result.SourceReceipt.Chain)
	require.Equal(t, destTxHash, result.DestinationReceipt.TxHash)
	require.Equal(t, uint64(20), result.DestinationReceipt.BlockNumber)
	require.Equal(t, testDestination, result.DestinationReceipt.Chain)
	require.Equal(t, []common.Hash{destTxHash}, result.DerivedIds)
	require.Equal(t, int32(1), destCalls.Load())

	require.Equal(t, []types.TrackState{
		types.StateSubmitted,
		types.StateSourceConfirmed,
		types.StateDerived,
		types.StateDestinationConfirmed,
	}, observer.states())

	// Only the final transition reports a result.
	require.Equal(t, []types.TrackResult{
		types.TrackResultPending,
		types.TrackResultPending,
		types.TrackResultPending,
		types.TrackResultConfirmed,
	}, observer.results())
}

// orderedDecoder flags the moment derivation happens, which is after the source receipt.
type orderedDecoder struct {
	*mockDecoder
	done *atomic.Bool
}

func (d *orderedDecoder) DecodeDepositLogs(receipt *types.Receipt) ([]common.Hash, error) {
	d.done.Store(true)
	return d.mockDecoder.DecodeDepositLogs(receipt)
}

func TestTrack_DestinationTimeout(t *testing.T) {
	sourceCalls, destCalls := atomic.NewInt32(0), atomic.NewInt32(0)
	source := receiptClient(sourceCalls, map[common.Hash]*etypes.Receipt{sourceTxHash: successReceipt(10)})
	dest := receiptClient(destCalls, nil)
	observer := &recordingObserver{}
	tracker := newTestTracker(t, source, dest, newMockDecoder(destTxHash), observer)

	start := time.Now()
	result := tracker.Track(context.Background(), types.NewSubmission(testSource, sourceTxHash), time.Second, 50*time.Millisecond)

	require.True(t, time.Since(start) < time.Second)
	require.Equal(t, types.OutcomeFailedAtDestination, result.Outcome)
	require.Equal(t, types.StateFailed, result.State)
	require.NotNil(t, result.Err)
	require.Equal(t, types.StageDestination, result.Err.Stage)
	require.True(t, errors.Is(result.Error(), types.ErrDestinationTimeout))
	require.Equal(t, destTxHash, result.Err.TxHash)
	require.NotNil(t, result.SourceReceipt)
	require.Nil(t, result.DestinationReceipt)
	require.True(t, destCalls.Load() > 1)
	require.False(t, result.Confirmed())

	states := observer.states()
	require.Equal(t, types.StateFailed, states[len(states)-1])
	require.Equal(t, []types.TrackResult{
		types.TrackResultPending,
		types.TrackResultPending,
		types.TrackResultPending,
		types.TrackResultTimeout,
	}, observer.results())
}

func TestTrack_SourceTimeout(t *testing.T) {
	sourceCalls, destCalls := atomic.NewInt32(0), atomic.NewInt32(0)
	source := receiptClient(sourceCalls, nil)
	dest := receiptClient(destCalls, nil)
	decoder := newMockDecoder(destTxHash)
	tracker := newTestTracker(t, source, dest, decoder, nil)

	result := tracker.Track(context.Background(), types.NewSubmission(testSource, sourceTxHash), 30*time.Millisecond, time.Second)

	require.Equal(t, types.OutcomeFailedAtSource, result.Outcome)
	require.Equal(t, types.StageSource, result.Err.Stage)
	require.True(t, errors.Is(result.Error(), types.ErrSourceTimeout))
	require.True(t, result.Err.Timeout())
	require.True(t, result.Err.Elapsed >= 30*time.Millisecond)
	require.True(t, sourceCalls.Load() > 1)
	require.Equal(t, int32(0), destCalls.Load())
	require.Equal(t, int32(0), decoder.calls.Load())
}

func TestTrack_SourceReverted(t *testing.T) {
	sourceCalls, destCalls := atomic.NewInt32(0), atomic.NewInt32(0)
	source := receiptClient(sourceCalls, map[common.Hash]*etypes.Receipt{sourceTxHash: revertedReceipt(10)})
	dest := receiptClient(destCalls, nil)
	decoder := newMockDecoder(destTxHash)
	tracker := newTestTracker(t, source, dest, decoder, nil)

	result := tracker.Track(context.Background(), types.NewSubmission(testSource, sourceTxHash), time.Second, time.Second)

	require.Equal(t, types.OutcomeFailedAtSource, result.Outcome)
	require.True(t, errors.Is(result.Error(), types.ErrSourceReverted))
	require.Equal(t, int32(1), sourceCalls.Load())
	require.Equal(t, int32(0), decoder.calls.Load())
	require.Equal(t, int32(0), destCalls.Load())
	require.NotNil(t, result.Err.Receipt)
	require.Equal(t, types.ReceiptStatusReverted, result.SourceReceipt.Status)
}

func TestTrack_DestinationReverted(t *testing.T) {
	sourceCalls, destCalls := atomic.NewInt32(0), atomic.NewInt32(0)
	source := receiptClient(sourceCalls, map[common.Hash]*etypes.Receipt{sourceTxHash: successReceipt(10)})
	dest := receiptClient(destCalls, map[common.Hash]*etypes.Receipt{destTxHash: revertedReceipt(20)})
	tracker := newTestTracker(t, source, dest, newMockDecoder(destTxHash), nil)

	result := tracker.Track(context.Background(), types.NewSubmission(testSource, sourceTxHash), time.Second, time.Second)

	require.Equal(t, types.OutcomeFailedAtDestination, result.Outcome)
	require.True(t, errors.Is(result.Error(), types.ErrDestinationReverted))
	require.False(t, result.Confirmed())
	require.Equal(t, types.ReceiptStatusReverted, result.DestinationReceipt.Status)
}

func TestTrack_DerivationEmpty(t *testing.T) {
	sourceCalls, destCalls := atomic.NewInt32(0), atomic.NewInt32(0)
	source := receiptClient(sourceCalls, map[common.Hash]*etypes.Receipt{sourceTxHash: successReceipt(10)})
	dest := receiptClient(destCalls, nil)
	decoder := newMockDecoder()
	tracker := newTestTracker(t, source, dest, decoder, nil)

	result := tracker.Track(context.Background(), types.NewSubmission(testSource, sourceTxHash), time.Second, time.Second)

	require.Equal(t, types.OutcomeDerivationEmpty, result.Outcome)
	require.Equal(t, types.StageDerivation, result.Err.Stage)
	require.True(t, errors.Is(result.Error(), types.ErrDerivationEmpty))
	require.Equal(t, int32(1), decoder.calls.Load())
	require.Equal(t, int32(1), sourceCalls.Load())
	require.Equal(t, int32(0), destCalls.Load())
}

func TestTrack_MalformedDeposit(t *testing.T) {
	sourceCalls, destCalls := atomic.NewInt32(0), atomic.NewInt32(0)
	source := receiptClient(sourceCalls, map[common.Hash]*etypes.Receipt{sourceTxHash: successReceipt(10)})
	dest := receiptClient(destCalls, nil)
	decoder := newMockDecoder()
	decoder.err = fmt.Errorf("bad opaque data")
	tracker := newTestTracker(t, source, dest, decoder, nil)

	result := tracker.Track(context.Background(), types.NewSubmission(testSource, sourceTxHash), time.Second, time.Second)

	require.Equal(t, types.OutcomeFailedAtDerivation, result.Outcome)
	require.True(t, errors.Is(result.Error(), types.ErrMalformedDepositLog))
	require.Equal(t, decoder.err, errors.Unwrap(result.Err))
	require.Equal(t, int32(0), destCalls.Load())
}

func TestTrackDeposit_Index(t *testing.T) {
	ids := []common.Hash{common.HexToHash("0x01"), common.HexToHash("0x02"), common.HexToHash("0x03")}

	t.Run("selects_by_index", func(t *testing.T) {
		sourceCalls, destCalls := atomic.NewInt32(0), atomic.NewInt32(0)
		source := receiptClient(sourceCalls, map[common.Hash]*etypes.Receipt{sourceTxHash: successReceipt(10)})
		dest := receiptClient(destCalls, map[common.Hash]*etypes.Receipt{ids[2]: successReceipt(20)})
		tracker := newTestTracker(t, source, dest, newMockDecoder(ids...), nil)

		result := tracker.TrackDeposit(context.Background(), types.NewSubmission(testSource, sourceTxHash), 2, time.Second, time.Second)

		require.Nil(t, result.Err)
		require.Equal(t, ids, result.DerivedIds)
		require.Equal(t, ids[2], result.DestinationReceipt.TxHash)
		id, ok := result.DestinationId()
		require.True(t, ok)
		require.Equal(t, ids[2], id)
	})

	t.Run("out_of_range", func(t *testing.T) {
		sourceCalls, destCalls := atomic.NewInt32(0), atomic.NewInt32(0)
		source := receiptClient(sourceCalls, map[common.Hash]*etypes.Receipt{sourceTxHash: successReceipt(10)})
		dest := receiptClient(destCalls, nil)
		tracker := newTestTracker(t, source, dest, newMockDecoder(ids...), nil)

		result := tracker.TrackDeposit(context.Background(), types.NewSubmission(testSource, sourceTxHash), 3, time.Second, time.Second)

		require.Equal(t, types.OutcomeFailedAtDerivation, result.Outcome)
		require.True(t, errors.Is(result.Error(), types.ErrDepositIndexOutOfRange))
		require.Equal(t, ids, result.DerivedIds)
		require.Equal(t, int32(0), destCalls.Load())
	})
}

func TestAwaitSourceReceipt_TransientErrors(t *testing.T) {
	t.Run("recovers", func(t *testing.T) {
		calls := atomic.NewInt32(0)
		source := &eth.MockEthClient{
			TransactionReceiptFunc: func(ctx context.Context, txHash common.Hash) (*etypes.Receipt, error) {
				if calls.Inc() < 3 {
					return nil, fmt.Errorf("connection refused")
				}
				return successReceipt(10), nil
			},
		}
		tracker := newTestTracker(t, source, &eth.MockEthClient{}, newMockDecoder(), nil)

		receipt, err := tracker.AwaitSourceReceipt(context.Background(), types.NewSubmission(testSource, sourceTxHash), time.Second)
		require.Nil(t, err)
		require.True(t, receipt.Success())
		require.Equal(t, int32(3), calls.Load())
	})

	t.Run("reports_last_error", func(t *testing.T) {
		rpcErr := fmt.Errorf("connection refused")
		source := &eth.MockEthClient{
			TransactionReceiptFunc: func(ctx context.Context, txHash common.Hash) (*etypes.Receipt, error) {
				return nil, rpcErr
			},
		}
		tracker := newTestTracker(t, source, &eth.MockEthClient{}, newMockDecoder(), nil)

		_, err := tracker.AwaitSourceReceipt(context.Background(), types.NewSubmission(testSource, sourceTxHash), 20*time.Millisecond)
		require.NotNil(t, err)
		require.True(t, errors.Is(err, types.ErrSourceTimeout))
		require.True(t, errors.Is(err, rpcErr))
	})

	t.Run("default_timeout", func(t *testing.T) {
		tracker := newTestTracker(t, &eth.MockEthClient{}, &eth.MockEthClient{}, newMockDecoder(), nil)

		start := time.Now()
		_, err := tracker.AwaitSourceReceipt(context.Background(), types.NewSubmission(testSource, sourceTxHash), 0)
		require.True(t, errors.Is(err, types.ErrSourceTimeout))
		require.True(t, time.Since(start) >= testOptions().SourceTimeout)
	})
}

func TestAwaitDestinationReceipt_Confirmations(t *testing.T) {
	head := atomic.NewUint64(10)
	dest := &eth.MockEthClient{
		TransactionReceiptFunc: func(ctx context.Context, txHash common.Hash) (*etypes.Receipt, error) {
			return successReceipt(10), nil
		},
		BlockNumberFunc: func(ctx context.Context) (uint64, error) {
			return head.Inc() - 1, nil
		},
	}

	opts := testOptions()
	opts.DestinationConfirmations = 3
	tracker, err := NewTracker(testSource, testDestination, &eth.MockEthClient{}, dest, newMockDecoder(), opts, nil)
	require.Nil(t, err)

	receipt, err := tracker.AwaitDestinationReceipt(context.Background(), destTxHash, time.Second)
	require.Nil(t, err)
	require.Equal(t, uint64(10), receipt.BlockNumber)
	// Heads 10 and 11 are not enough, 12 is the third confirmation.
	require.Equal(t, uint64(13), head.Load())
}

func TestAwaitReceipt_Canceled(t *testing.T) {
	tracker := newTestTracker(t, &eth.MockEthClient{}, &eth.MockEthClient{}, newMockDecoder(), nil)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()

	_, err := tracker.AwaitDestinationReceipt(ctx, destTxHash, time.Minute)
	require.True(t, errors.Is(err, types.ErrCanceled))
	require.Equal(t, types.TrackResultCanceled, types.ResultFromError(err))
}

func TestTrack_PortalDecoder(t *testing.T) {
	to := common.HexToAddress("0x1df10ec981ac5871240be4a94f250dd238b77901")
	blockHash := common.HexToHash("0x1234")

	deposits := make([]*deposit.DepositTx, 0)
	logs := make([]*etypes.Log, 0)
	for i := 0; i < 2; i++ {
		dep := &deposit.DepositTx{
			From:  common.HexToAddress("0xf39fd6e51aad88f6f4ce6ab8827279cfffb92266"),
			To:    &to,
			Value: big.NewInt(int64(i)),
			Gas:   100_000,
		}
		l, err := deposit.MarshalDepositLogEvent(testPortal, dep)
		require.Nil(t, err)
		l.BlockHash = blockHash
		l.Index = uint(i)

		decoded, err := deposit.UnmarshalDepositLogEvent(l)
		require.Nil(t, err)
		deposits = append(deposits, decoded)
		logs = append(logs, l)
	}

	sourceReceipt := successReceipt(10, logs...)
	sourceReceipt.BlockHash = blockHash

	sourceCalls, destCalls := atomic.NewInt32(0), atomic.NewInt32(0)
	source := receiptClient(sourceCalls, map[common.Hash]*etypes.Receipt{sourceTxHash: sourceReceipt})
	dest := receiptClient(destCalls, map[common.Hash]*etypes.Receipt{deposits[0].Hash(): successReceipt(30)})
	tracker := newTestTracker(t, source, dest, deposit.NewPortalDecoder(testPortal), nil)

	receipt, err := tracker.AwaitSourceReceipt(context.Background(), types.NewSubmission(testSource, sourceTxHash), time.Second)
	require.Nil(t, err)

	ids, err := tracker.DeriveDestinationIds(receipt)
	require.Nil(t, err)
	require.Equal(t, []common.Hash{deposits[0].Hash(), deposits[1].Hash()}, ids)

	// Derivation is deterministic.
	again, err := tracker.DeriveDestinationIds(receipt)
	require.Nil(t, err)
	require.Equal(t, ids, again)

	result := tracker.Track(context.Background(), types.NewSubmission(testSource, sourceTxHash), time.Second, time.Second)
	require.Nil(t, result.Err)
	require.Equal(t, deposits[0].Hash(), result.DestinationReceipt.TxHash)
}

func TestTrack_Concurrent(t *testing.T) {
	n := 16
	receipts := make(map[common.Hash]*etypes.Receipt)
	destReceipts := make(map[common.Hash]*etypes.Receipt)
	for i := 0; i < n; i++ {
		receipts[common.BigToHash(big.NewInt(int64(i+1)))] = successReceipt(int64(i))
		destReceipts[common.BigToHash(big.NewInt(int64(i+1000)))] = successReceipt(int64(i))
	}

	decoder := &shiftDecoder{}
	source := receiptClient(atomic.NewInt32(0), receipts)
	dest := receiptClient(atomic.NewInt32(0), destReceipts)
	tracker := newTestTracker(t, source, dest, decoder, nil)

	wg := &sync.WaitGroup{}
	results := make([]*types.ConfirmationResult, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			sub := types.NewSubmission(testSource, common.BigToHash(big.NewInt(int64(i+1))))
			results[i] = tracker.Track(context.Background(), sub, time.Second, time.Second)
		}(i)
	}
	wg.Wait()

	for i, result := range results {
		require.Nil(t, result.Err)
		require.Equal(t, common.BigToHash(big.NewInt(int64(i+1000))), result.DestinationReceipt.TxHash)
	}
}

// shiftDecoder maps source tx i+1 (block i) to destination tx i+1000.
type shiftDecoder struct{}

func (shiftDecoder) DecodeDepositLogs(receipt *types.Receipt) ([]common.Hash, error) {
	return []common.Hash{common.BigToHash(big.NewInt(int64(receipt.BlockNumber) + 1000))}, nil
}
