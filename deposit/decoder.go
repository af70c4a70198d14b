package deposit

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	etypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/sisu-network/xeyes/types"
)

// PortalDecoder derives L2 deposit transaction hashes from the TransactionDeposited logs of an
// L1 receipt.
type PortalDecoder struct {
	portal common.Address
}

// NewPortalDecoder returns a decoder for logs emitted by portal. A zero address accepts deposit
// logs from any emitter.
func NewPortalDecoder(portal common.Address) *PortalDecoder {
	return &PortalDecoder{portal: portal}
}

// DecodeDepositLogs returns one hash per deposit log, in log order. Duplicates are kept.
func (d *PortalDecoder) DecodeDepositLogs(receipt *types.Receipt) ([]common.Hash, error) {
	ids := make([]common.Hash, 0)
	for _, l := range receipt.Logs {
		if !d.isDepositLog(l) {
			continue
		}

		ev := l
		if ev.BlockHash == (common.Hash{}) {
			cp := *l
			cp.BlockHash = receipt.BlockHash
			ev = &cp
		}

		dep, err := UnmarshalDepositLogEvent(ev)
		if err != nil {
			return nil, fmt.Errorf("cannot decode deposit log %d of tx %s: %w", l.Index, receipt.TxHash.Hex(), err)
		}
		ids = append(ids, dep.Hash())
	}

	return ids, nil
}

func (d *PortalDecoder) isDepositLog(l *etypes.Log) bool {
	if l == nil || l.Removed || len(l.Topics) == 0 || l.Topics[0] != DepositEventABIHash {
		return false
	}

	return d.portal == (common.Address{}) || l.Address == d.portal
}
