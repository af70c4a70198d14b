package types

import (
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

type ChainRole string

const (
	RoleSource      ChainRole = "source"
	RoleDestination ChainRole = "destination"
)

// ChainRef identifies one side of a cross-layer pair. It is built once from config and only
// read afterwards.
type ChainRef struct {
	Name    string
	ChainId int64
	Rpcs    []string
	Role    ChainRole
}

func NewChainRef(name string, chainId int64, rpcs []string, role ChainRole) ChainRef {
	cp := make([]string, len(rpcs))
	copy(cp, rpcs)

	return ChainRef{
		Name:    name,
		ChainId: chainId,
		Rpcs:    cp,
		Role:    role,
	}
}

func (c ChainRef) String() string {
	return fmt.Sprintf("%s(%d)", c.Name, c.ChainId)
}

// Submission is a transaction that has been broadcast on the source chain.
type Submission struct {
	Chain       ChainRef
	TxHash      common.Hash
	SubmittedAt time.Time
}

func NewSubmission(chain ChainRef, txHash common.Hash) *Submission {
	return &Submission{
		Chain:       chain,
		TxHash:      txHash,
		SubmittedAt: time.Now(),
	}
}
