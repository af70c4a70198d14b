package types

import (
	"time"

	"github.com/ethereum/go-ethereum/common"
)

type Outcome string

const (
	OutcomeConfirmed           Outcome = "confirmed"
	OutcomeFailedAtSource      Outcome = "failed_at_source"
	OutcomeDerivationEmpty     Outcome = "derivation_empty"
	OutcomeFailedAtDerivation  Outcome = "failed_at_derivation"
	OutcomeFailedAtDestination Outcome = "failed_at_destination"
)

// ConfirmationResult is the outcome of one tracked submission.
type ConfirmationResult struct {
	Submission         *Submission
	SourceReceipt      *Receipt
	DerivedIds         []common.Hash
	DepositIndex       int
	DestinationReceipt *Receipt
	Outcome            Outcome
	State              TrackState
	Elapsed            time.Duration
	Err                *StageError
}

func (r *ConfirmationResult) Confirmed() bool {
	return r.Outcome == OutcomeConfirmed && r.SourceReceipt.Success() && r.DestinationReceipt.Success()
}

// Error returns the stage error as a plain error, nil when confirmed.
func (r *ConfirmationResult) Error() error {
	if r.Err == nil {
		return nil
	}

	return r.Err
}

// DestinationId returns the derived identifier selected for the destination await.
func (r *ConfirmationResult) DestinationId() (common.Hash, bool) {
	if r.DepositIndex < 0 || r.DepositIndex >= len(r.DerivedIds) {
		return common.Hash{}, false
	}

	return r.DerivedIds[r.DepositIndex], true
}

// OutcomeForError picks the outcome of a failed stage.
func OutcomeForError(err *StageError) Outcome {
	switch err.Stage {
	case StageSource:
		return OutcomeFailedAtSource
	case StageDerivation:
		if err.Reason == ErrDerivationEmpty {
			return OutcomeDerivationEmpty
		}
		return OutcomeFailedAtDerivation
	default:
		return OutcomeFailedAtDestination
	}
}

// TrackRequest is the API form of a track call.
type TrackRequest struct {
	TxHash               string `json:"tx_hash"`
	DepositIndex         int    `json:"deposit_index,omitempty"`
	SourceTimeoutMs      int64  `json:"source_timeout_ms,omitempty"`
	DestinationTimeoutMs int64  `json:"destination_timeout_ms,omitempty"`
}

// TrackRecord is the flat, persisted view of a ConfirmationResult.
type TrackRecord struct {
	SourceChain       string     `json:"source_chain"`
	SourceTxHash      string     `json:"source_tx_hash"`
	SourceBlock       int64      `json:"source_block,omitempty"`
	DepositCount      int        `json:"deposit_count"`
	DepositIndex      int        `json:"deposit_index"`
	DestinationChain  string     `json:"destination_chain,omitempty"`
	DestinationTxHash string     `json:"destination_tx_hash,omitempty"`
	DestinationBlock  int64      `json:"destination_block,omitempty"`
	Outcome           Outcome    `json:"outcome"`
	State             TrackState `json:"state"`
	Stage             Stage      `json:"stage,omitempty"`
	Error             string     `json:"error,omitempty"`
	ElapsedMs         int64      `json:"elapsed_ms"`
}

func NewTrackRecord(result *ConfirmationResult, destination ChainRef) *TrackRecord {
	record := &TrackRecord{
		SourceChain:  result.Submission.Chain.Name,
		SourceTxHash: result.Submission.TxHash.Hex(),
		DepositCount: len(result.DerivedIds),
		DepositIndex: result.DepositIndex,
		Outcome:      result.Outcome,
		State:        result.State,
		ElapsedMs:    result.Elapsed.Milliseconds(),
	}

	if result.SourceReceipt != nil {
		record.SourceBlock = int64(result.SourceReceipt.BlockNumber)
	}

	if id, ok := result.DestinationId(); ok {
		record.DestinationChain = destination.Name
		record.DestinationTxHash = id.Hex()
	}

	if result.DestinationReceipt != nil {
		record.DestinationBlock = int64(result.DestinationReceipt.BlockNumber)
	}

	if result.Err != nil {
		record.Stage = result.Err.Stage
		record.Error = result.Err.Error()
	}

	return record
}

// TrackStats counts tracked submissions since the processor started.
type TrackStats struct {
	InFlight  int64 `json:"in_flight"`
	Confirmed int64 `json:"confirmed"`
	Failed    int64 `json:"failed"`
}
