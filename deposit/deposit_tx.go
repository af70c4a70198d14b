package deposit

import (
	"encoding/binary"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/rlp"
	"golang.org/x/crypto/sha3"
)

const (
	// DepositTxType is the EIP-2718 type byte of L2 deposit transactions.
	DepositTxType = 0x7E

	UserDepositSourceDomain = 0
)

// DepositTx is the L2 transaction created for every deposit event on L1. The field order is the
// RLP order used to compute its hash.
type DepositTx struct {
	SourceHash          common.Hash
	From                common.Address
	To                  *common.Address `rlp:"nil"`
	Mint                *big.Int        `rlp:"nil"`
	Value               *big.Int
	Gas                 uint64
	IsSystemTransaction bool
	Data                []byte
}

// Hash returns the L2 transaction hash: keccak256(0x7E || rlp(tx)).
func (tx *DepositTx) Hash() common.Hash {
	hasher := sha3.NewLegacyKeccak256()
	hasher.Write([]byte{DepositTxType})
	rlp.Encode(hasher, tx)

	var h common.Hash
	hasher.Sum(h[:0])
	return h
}

// UserDepositSource identifies a user deposit by the L1 block and log that created it.
type UserDepositSource struct {
	L1BlockHash common.Hash
	LogIndex    uint64
}

func (dep *UserDepositSource) SourceHash() common.Hash {
	var input [32 * 2]byte
	copy(input[:32], dep.L1BlockHash[:])
	binary.BigEndian.PutUint64(input[32*2-8:], dep.LogIndex)
	depositIDHash := crypto.Keccak256Hash(input[:])

	var domainInput [32 * 2]byte
	binary.BigEndian.PutUint64(domainInput[32-8:32], UserDepositSourceDomain)
	copy(domainInput[32:], depositIDHash[:])
	return crypto.Keccak256Hash(domainInput[:])
}
