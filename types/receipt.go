package types

import (
	"github.com/ethereum/go-ethereum/common"
	etypes "github.com/ethereum/go-ethereum/core/types"
)

type ReceiptStatus int

const (
	ReceiptStatusReverted ReceiptStatus = iota
	ReceiptStatusSuccess
)

func (s ReceiptStatus) String() string {
	if s == ReceiptStatusSuccess {
		return "success"
	}

	return "reverted"
}

// Receipt is a finalized receipt of a transaction on one chain.
type Receipt struct {
	Chain       ChainRef
	TxHash      common.Hash
	Status      ReceiptStatus
	BlockNumber uint64
	BlockHash   common.Hash
	Logs        []*etypes.Log
}

// NewReceipt converts a go-ethereum receipt fetched for txHash.
func NewReceipt(chain ChainRef, txHash common.Hash, receipt *etypes.Receipt) *Receipt {
	status := ReceiptStatusReverted
	if receipt.Status == etypes.ReceiptStatusSuccessful {
		status = ReceiptStatusSuccess
	}

	var blockNumber uint64
	if receipt.BlockNumber != nil {
		blockNumber = receipt.BlockNumber.Uint64()
	}

	return &Receipt{
		Chain:       chain,
		TxHash:      txHash,
		Status:      status,
		BlockNumber: blockNumber,
		BlockHash:   receipt.BlockHash,
		Logs:        receipt.Logs,
	}
}

func (r *Receipt) Success() bool {
	return r != nil && r.Status == ReceiptStatusSuccess
}
