package deposit

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	etypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
)

var (
	DepositEventABI      = "TransactionDeposited(address,address,uint256,bytes)"
	DepositEventABIHash  = crypto.Keccak256Hash([]byte(DepositEventABI))
	DepositEventVersion0 = common.Hash{}
)

const opaqueVersion0Len = 32 + 32 + 8 + 1

// UnmarshalDepositLogEvent decodes a TransactionDeposited log into the L2 deposit transaction it
// produces. The log must carry its block hash and index, both are part of the source hash.
//
// Event layout:
//
//	topic0: event signature
//	topic1: indexed from
//	topic2: indexed to
//	topic3: indexed version
//	data:   abi encoded bytes opaqueData
func UnmarshalDepositLogEvent(ev *etypes.Log) (*DepositTx, error) {
	if len(ev.Topics) != 4 {
		return nil, fmt.Errorf("expected 4 event topics (event identity, indexed from, indexed to, indexed version), got %d", len(ev.Topics))
	}
	if ev.Topics[0] != DepositEventABIHash {
		return nil, fmt.Errorf("invalid deposit event selector: %s, expected %s", ev.Topics[0], DepositEventABIHash)
	}
	if len(ev.Data) < 64 {
		return nil, fmt.Errorf("incomplete opaqueData slice header (%d bytes)", len(ev.Data))
	}
	if len(ev.Data)%32 != 0 {
		return nil, fmt.Errorf("expected log data to be multiple of 32 bytes: got %d bytes", len(ev.Data))
	}

	from := common.BytesToAddress(ev.Topics[1][12:])
	to := common.BytesToAddress(ev.Topics[2][12:])
	version := ev.Topics[3]

	var expectedOffset [32]byte
	expectedOffset[31] = 32
	if !bytes.Equal(ev.Data[:32], expectedOffset[:]) {
		return nil, fmt.Errorf("invalid opaqueData slice header offset: %x", ev.Data[:32])
	}

	length := new(big.Int).SetBytes(ev.Data[32:64])
	if !length.IsUint64() || length.Uint64() > uint64(len(ev.Data)-64) {
		return nil, fmt.Errorf("opaqueData length %s exceeds log data (%d bytes)", length, len(ev.Data)-64)
	}
	opaqueLen := length.Uint64()
	if padded := (opaqueLen + 31) / 32 * 32; padded != uint64(len(ev.Data)-64) {
		return nil, fmt.Errorf("opaqueData length %d does not match padded log data length %d", opaqueLen, len(ev.Data)-64)
	}
	for _, b := range ev.Data[64+opaqueLen:] {
		if b != 0 {
			return nil, fmt.Errorf("non-zero opaqueData padding")
		}
	}
	opaqueData := ev.Data[64 : 64+opaqueLen]

	source := UserDepositSource{
		L1BlockHash: ev.BlockHash,
		LogIndex:    uint64(ev.Index),
	}
	dep := &DepositTx{
		SourceHash: source.SourceHash(),
		From:       from,
	}

	var err error
	switch version {
	case DepositEventVersion0:
		err = unmarshalDepositVersion0(dep, to, opaqueData)
	default:
		return nil, fmt.Errorf("invalid deposit version, got %s", version)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to decode deposit (version %s): %w", version, err)
	}

	return dep, nil
}

func unmarshalDepositVersion0(dep *DepositTx, to common.Address, opaqueData []byte) error {
	if len(opaqueData) < opaqueVersion0Len {
		return fmt.Errorf("unexpected opaqueData length: %d", len(opaqueData))
	}
	offset := uint64(0)

	// uint256 mint
	dep.Mint = new(big.Int).SetBytes(opaqueData[offset : offset+32])
	// A zero mint is encoded as nil.
	if dep.Mint.Sign() == 0 {
		dep.Mint = nil
	}
	offset += 32

	// uint256 value
	dep.Value = new(big.Int).SetBytes(opaqueData[offset : offset+32])
	offset += 32

	// uint64 gas
	dep.Gas = binary.BigEndian.Uint64(opaqueData[offset : offset+8])
	offset += 8

	// uint8 isCreation
	if opaqueData[offset] == 1 {
		dep.To = nil
	} else {
		dep.To = &to
	}
	offset++

	txData := make([]byte, uint64(len(opaqueData))-offset)
	copy(txData, opaqueData[offset:])
	dep.Data = txData

	return nil
}

// MarshalDepositLogEvent builds the TransactionDeposited log the portal emits for a deposit.
// Block hash and log index are left for the caller to set.
func MarshalDepositLogEvent(portal common.Address, dep *DepositTx) (*etypes.Log, error) {
	toBytes := common.Hash{}
	if dep.To != nil {
		toBytes = common.BytesToHash(dep.To[:])
	}
	topics := []common.Hash{
		DepositEventABIHash,
		common.BytesToHash(dep.From[:]),
		toBytes,
		DepositEventVersion0,
	}

	opaqueData, err := marshalDepositVersion0(dep)
	if err != nil {
		return nil, err
	}

	data := make([]byte, 64, 64+len(opaqueData)+32)
	data[31] = 32
	binary.BigEndian.PutUint64(data[64-8:], uint64(len(opaqueData)))
	data = append(data, opaqueData...)
	if rem := len(data) % 32; rem != 0 {
		data = append(data, make([]byte, 32-rem)...)
	}

	return &etypes.Log{
		Address: portal,
		Topics:  topics,
		Data:    data,
	}, nil
}

func marshalDepositVersion0(dep *DepositTx) ([]byte, error) {
	opaqueData := make([]byte, opaqueVersion0Len, opaqueVersion0Len+len(dep.Data))
	offset := 0

	if dep.Mint != nil {
		if dep.Mint.Sign() < 0 || dep.Mint.BitLen() > 256 {
			return nil, fmt.Errorf("mint %s does not fit uint256", dep.Mint)
		}
		dep.Mint.FillBytes(opaqueData[offset : offset+32])
	}
	offset += 32

	if dep.Value != nil {
		if dep.Value.Sign() < 0 || dep.Value.BitLen() > 256 {
			return nil, fmt.Errorf("value %s does not fit uint256", dep.Value)
		}
		dep.Value.FillBytes(opaqueData[offset : offset+32])
	}
	offset += 32

	binary.BigEndian.PutUint64(opaqueData[offset:offset+8], dep.Gas)
	offset += 8

	if dep.To == nil {
		opaqueData[offset] = 1
	}

	return append(opaqueData, dep.Data...), nil
}
