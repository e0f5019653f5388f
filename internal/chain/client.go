package chain

import (
	"context"

	"github.com/shopspring/decimal"
)

// TxStatus 交易执行状态
type TxStatus string

const (
	TxPending  TxStatus = "pending"  // 尚未打包
	TxSuccess  TxStatus = "success"  // 已打包且执行成功
	TxReverted TxStatus = "reverted" // 已打包但执行失败
)

// TransactionRecord 链上交易的只读视图
type TransactionRecord struct {
	Hash        string
	From        string
	To          string
	Value       decimal.Decimal
	BlockNumber *uint64 // 未打包时为空
	BlockHash   string
	Status      TxStatus
}

// Mined 交易是否已打包
func (t *TransactionRecord) Mined() bool {
	return t.BlockNumber != nil
}

// BlockRecord 区块的只读视图
type BlockRecord struct {
	Number       uint64
	Hash         string
	ParentHash   string
	Transactions []TransactionRecord
}

// Contains 区块是否包含指定交易
func (b *BlockRecord) Contains(txHash string) bool {
	for i := range b.Transactions {
		if b.Transactions[i].Hash == txHash {
			return true
		}
	}
	return false
}

// Client 只读链访问
// 错误为 errs.ErrUnavailable（节点不可达或超时）或 errs.ErrNotFound
type Client interface {
	GetTransaction(ctx context.Context, hash string) (*TransactionRecord, error)
	GetBlockHeight(ctx context.Context) (uint64, error)
	GetBlock(ctx context.Context, number uint64) (*BlockRecord, error)
	SubscribeHeights(ctx context.Context) (<-chan uint64, error)
}
