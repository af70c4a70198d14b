package core

import (
	"context"
	"time"

	"github.com/sisu-network/xeyes/types"
)

type MockTracker struct {
	SourceFunc       func() types.ChainRef
	DestinationFunc  func() types.ChainRef
	TrackDepositFunc func(ctx context.Context, sub *types.Submission, index int, sourceTimeout, destinationTimeout time.Duration) *types.ConfirmationResult
}

func (m *MockTracker) Source() types.ChainRef {
	if m.SourceFunc != nil {
		return m.SourceFunc()
	}

	return types.NewChainRef("l1", 900, nil, types.RoleSource)
}

func (m *MockTracker) Destination() types.ChainRef {
	if m.DestinationFunc != nil {
		return m.DestinationFunc()
	}

	return types.NewChainRef("l2", 901, nil, types.RoleDestination)
}

func (m *MockTracker) TrackDeposit(ctx context.Context, sub *types.Submission, index int, sourceTimeout, destinationTimeout time.Duration) *types.ConfirmationResult {
	if m.TrackDepositFunc != nil {
		return m.TrackDepositFunc(ctx, sub, index, sourceTimeout, destinationTimeout)
	}

	return &types.ConfirmationResult{
		Submission:   sub,
		DepositIndex: index,
		State:        types.StateFailed,
		Outcome:      types.OutcomeFailedAtSource,
		Err:          types.NewStageError(types.StageSource, types.ErrSourceTimeout, sub.TxHash, sourceTimeout),
	}
}
