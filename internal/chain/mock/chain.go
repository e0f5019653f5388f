package mock

import (
	"context"
	"fmt"
	"sync"

	"github.com/blues/ilr/internal/chain"
	"github.com/blues/ilr/internal/errs"
	"github.com/blues/ilr/internal/logger"
	"github.com/shopspring/decimal"
)

// Chain 内存中的 EVM 链，实现 chain.Client，供测试与本地联调使用
type Chain struct {
	mu          sync.RWMutex
	blocks      []*chain.BlockRecord // 下标即区块号，0 为创世块
	pending     map[string]chain.TransactionRecord
	statuses    map[string]chain.TxStatus
	unavailable bool
	fork        int // 每次重组递增，保证重新出块的哈希不同
	txSeq       int
	subs        []chan uint64
}

var _ chain.Client = (*Chain)(nil)

// New 创建只含创世块的链
func New() *Chain {
	c := &Chain{
		pending:  make(map[string]chain.TransactionRecord),
		statuses: make(map[string]chain.TxStatus),
	}
	c.blocks = []*chain.BlockRecord{{Number: 0, Hash: c.blockHash(0)}}
	return c
}

// Send 广播一笔交易，返回交易哈希，交易进入内存池等待打包
func (c *Chain) Send(from, to string, value decimal.Decimal) string {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.txSeq++
	hash := fmt.Sprintf("0x%064x", c.txSeq)
	c.pending[hash] = chain.TransactionRecord{
		Hash:   hash,
		From:   from,
		To:     to,
		Value:  value,
		Status: chain.TxPending,
	}
	logger.Debug("[MockChain] Tx %s queued (%s -> %s, %s)", hash, from, to, value)
	return hash
}

// Mine 出一个新块，打包指定的内存池交易，返回区块号
func (c *Chain) Mine(txHashes ...string) uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()

	number := uint64(len(c.blocks))
	block := &chain.BlockRecord{
		Number:     number,
		Hash:       c.blockHash(number),
		ParentHash: c.blocks[number-1].Hash,
	}
	for _, h := range txHashes {
		tx, ok := c.pending[h]
		if !ok {
			continue
		}
		delete(c.pending, h)
		tx.BlockNumber = &number
		tx.BlockHash = block.Hash
		tx.Status = ""
		block.Transactions = append(block.Transactions, tx)
	}
	c.blocks = append(c.blocks, block)

	for _, ch := range c.subs {
		select {
		case ch <- number:
		default:
		}
	}
	return number
}

// MineEmpty 连续出 n 个空块，返回最新高度
func (c *Chain) MineEmpty(n int) uint64 {
	for i := 0; i < n; i++ {
		c.Mine()
	}
	return c.Height()
}

// MineTo 出空块直到达到指定高度
func (c *Chain) MineTo(height uint64) {
	for c.Height() < height {
		c.Mine()
	}
}

// Reorg 丢弃 from 及之后的区块
// requeue 为 true 时被丢弃的交易回到内存池，否则从链上消失
func (c *Chain) Reorg(from uint64, requeue bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if from == 0 || from >= uint64(len(c.blocks)) {
		return
	}
	for _, b := range c.blocks[from:] {
		for _, tx := range b.Transactions {
			if requeue {
				tx.BlockNumber = nil
				tx.BlockHash = ""
				tx.Status = chain.TxPending
				c.pending[tx.Hash] = tx
			}
		}
	}
	c.blocks = c.blocks[:from]
	c.fork++
	logger.Debug("[MockChain] Reorg from block %d (requeue=%v)", from, requeue)
}

// SetStatus 设置已打包交易的执行结果，默认成功
func (c *Chain) SetStatus(txHash string, status chain.TxStatus) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.statuses[txHash] = status
}

// SetUnavailable 模拟节点不可达
func (c *Chain) SetUnavailable(unavailable bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.unavailable = unavailable
}

// Height 当前高度
func (c *Chain) Height() uint64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return uint64(len(c.blocks) - 1)
}

func (c *Chain) GetTransaction(ctx context.Context, hash string) (*chain.TransactionRecord, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if err := c.check(ctx, "get transaction"); err != nil {
		return nil, err
	}
	if tx, ok := c.pending[hash]; ok {
		return &tx, nil
	}
	for _, b := range c.blocks {
		for _, tx := range b.Transactions {
			if tx.Hash == hash {
				tx.Status = chain.TxSuccess
				if s, ok := c.statuses[hash]; ok {
					tx.Status = s
				}
				return &tx, nil
			}
		}
	}
	return nil, errs.NotFound("transaction %s", hash)
}

func (c *Chain) GetBlockHeight(ctx context.Context) (uint64, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if err := c.check(ctx, "get block height"); err != nil {
		return 0, err
	}
	return uint64(len(c.blocks) - 1), nil
}

func (c *Chain) GetBlock(ctx context.Context, number uint64) (*chain.BlockRecord, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if err := c.check(ctx, "get block"); err != nil {
		return nil, err
	}
	if number >= uint64(len(c.blocks)) {
		return nil, errs.NotFound("block %d", number)
	}
	b := *c.blocks[number]
	b.Transactions = append([]chain.TransactionRecord(nil), b.Transactions...)
	return &b, nil
}

// SubscribeHeights 每次出块推送新高度，ctx 结束时关闭通道
func (c *Chain) SubscribeHeights(ctx context.Context) (<-chan uint64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.check(ctx, "subscribe heights"); err != nil {
		return nil, err
	}
	ch := make(chan uint64, 64)
	c.subs = append(c.subs, ch)

	go func() {
		<-ctx.Done()
		c.mu.Lock()
		defer c.mu.Unlock()
		for i, s := range c.subs {
			if s == ch {
				c.subs = append(c.subs[:i], c.subs[i+1:]...)
				break
			}
		}
		close(ch)
	}()
	return ch, nil
}

func (c *Chain) check(ctx context.Context, op string) error {
	if err := ctx.Err(); err != nil {
		return errs.Unavailable(op, err)
	}
	if c.unavailable {
		return errs.Unavailable(op, fmt.Errorf("mock node offline"))
	}
	return nil
}

func (c *Chain) blockHash(number uint64) string {
	return fmt.Sprintf("0x%032x%032x", c.fork, number)
}
