package types

import "time"

type TrackResult int

const (
	TrackResultConfirmed TrackResult = iota
	TrackResultFailure
	TrackResultTimeout
	TrackResultCanceled
	// Not final yet.
	TrackResultPending
)

func (r TrackResult) String() string {
	switch r {
	case TrackResultConfirmed:
		return "confirmed"
	case TrackResultTimeout:
		return "timeout"
	case TrackResultCanceled:
		return "canceled"
	case TrackResultPending:
		return "pending"
	default:
		return "failure"
	}
}

type TrackState string

const (
	StateSubmitted            TrackState = "submitted"
	StateSourceConfirmed      TrackState = "source_confirmed"
	StateDerived              TrackState = "derived"
	StateDestinationConfirmed TrackState = "destination_confirmed"
	StateFailed               TrackState = "failed"
)

func (s TrackState) Terminal() bool {
	return s == StateDestinationConfirmed || s == StateFailed
}

// TrackUpdate is emitted on every state transition of a tracked submission.
type TrackUpdate struct {
	Chain       string
	Hash        string
	State       TrackState
	Stage       Stage
	BlockHeight int64
	Result      TrackResult
	Elapsed     time.Duration
	Err         error
}

// ResultFromError maps a stage failure to the coarse track result reported to observers.
func ResultFromError(err error) TrackResult {
	stageErr, ok := err.(*StageError)
	if !ok {
		return TrackResultFailure
	}

	switch {
	case stageErr.Reason == ErrCanceled:
		return TrackResultCanceled
	case stageErr.Timeout():
		return TrackResultTimeout
	default:
		return TrackResultFailure
	}
}
