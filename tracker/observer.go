package tracker

import (
	"github.com/sisu-network/lib/log"
	"github.com/sisu-network/xeyes/types"
)

// Observer receives every state transition of tracked submissions. Implementations must be safe
// for concurrent use.
type Observer interface {
	OnTrackUpdate(update *types.TrackUpdate)
}

type NoopObserver struct{}

func (NoopObserver) OnTrackUpdate(update *types.TrackUpdate) {}

// LogObserver writes transitions to the log.
type LogObserver struct{}

func (LogObserver) OnTrackUpdate(update *types.TrackUpdate) {
	switch {
	case update.Err == nil:
		log.Infof("Tx %s on chain %s reached state %s (stage = %s, height = %d, elapsed = %s)",
			update.Hash, update.Chain, update.State, update.Stage, update.BlockHeight, update.Elapsed)
	case update.Result == types.TrackResultTimeout || update.Result == types.TrackResultCanceled:
		log.Warnf("Tracking tx %s on chain %s stopped: %v", update.Hash, update.Chain, update.Err)
	default:
		log.Errorf("Tracking tx %s on chain %s failed: %v", update.Hash, update.Chain, update.Err)
	}
}

// ChannelObserver forwards transitions to a channel. Sends block until the update is received.
type ChannelObserver struct {
	ch chan<- *types.TrackUpdate
}

func NewChannelObserver(ch chan<- *types.TrackUpdate) *ChannelObserver {
	return &ChannelObserver{ch: ch}
}

func (o *ChannelObserver) OnTrackUpdate(update *types.TrackUpdate) {
	o.ch <- update
}
