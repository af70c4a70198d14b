package types

import (
	"errors"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

var (
	ErrSourceTimeout          = errors.New("source receipt not found before deadline")
	ErrSourceReverted         = errors.New("source transaction reverted")
	ErrDerivationEmpty        = errors.New("no deposit logs in source receipt")
	ErrMalformedDepositLog    = errors.New("malformed deposit log")
	ErrDepositIndexOutOfRange = errors.New("deposit index out of range")
	ErrDestinationTimeout     = errors.New("destination receipt not found before deadline")
	ErrDestinationReverted    = errors.New("destination transaction reverted")
	ErrCanceled               = errors.New("tracking canceled")
)

type Stage string

const (
	StageSource      Stage = "source"
	StageDerivation  Stage = "derivation"
	StageDestination Stage = "destination"
)

// StageError is the failure of a single pipeline stage. Reason is one of the Err* values
// above and can be matched with errors.Is.
type StageError struct {
	Stage   Stage
	Reason  error
	TxHash  common.Hash
	Receipt *Receipt
	Elapsed time.Duration

	// Cause is the last error returned by the chain client or the decoder, if any.
	Cause error
}

func NewStageError(stage Stage, reason error, txHash common.Hash, elapsed time.Duration) *StageError {
	return &StageError{
		Stage:   stage,
		Reason:  reason,
		TxHash:  txHash,
		Elapsed: elapsed,
	}
}

func (e *StageError) Error() string {
	msg := fmt.Sprintf("%s stage failed for tx %s after %s: %v", e.Stage, e.TxHash.Hex(),
		e.Elapsed.Round(time.Millisecond), e.Reason)
	if e.Cause != nil {
		msg = fmt.Sprintf("%s, cause = %v", msg, e.Cause)
	}

	return msg
}

func (e *StageError) Is(target error) bool {
	return target == e.Reason
}

func (e *StageError) Unwrap() error {
	return e.Cause
}

func (e *StageError) Timeout() bool {
	return e.Reason == ErrSourceTimeout || e.Reason == ErrDestinationTimeout
}
