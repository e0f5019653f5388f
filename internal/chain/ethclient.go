package chain

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"sync"
	"time"

	"github.com/blues/ilr/internal/config"
	"github.com/blues/ilr/internal/errs"
	"github.com/blues/ilr/internal/logger"
	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/shopspring/decimal"
)

// 仅限区块内交易类型都能被 types.Transaction 解码的链
var supportedChainTypes = []string{"ethereum", "polygon", "bsc"}

// EthClient 基于 ethclient 的 EVM 链只读客户端
type EthClient struct {
	mu       sync.RWMutex
	client   *ethclient.Client // HTTP/WS 查询
	wsClient *ethclient.Client // 新区块订阅，未配置 ws_url 时为空
	signer   types.Signer
	config   config.ChainConfig
}

// NewEthClient 连接节点并校验链ID
func NewEthClient(ctx context.Context, cfg config.ChainConfig) (*EthClient, error) {
	logger.Info("Initializing chain client (type: %s, id: %d)", cfg.ChainType, cfg.ChainId)

	if cfg.RpcUrl == "" {
		return nil, errs.Validation("no RPC URL configured")
	}
	if !isSupportedChainType(cfg.ChainType) {
		return nil, errs.Validation("unsupported chain type %s, supported types: %v", cfg.ChainType, supportedChainTypes)
	}

	client, err := ethclient.DialContext(ctx, cfg.RpcUrl)
	if err != nil {
		return nil, errs.Unavailable("dial rpc", err)
	}

	c := &EthClient{
		client: client,
		signer: types.LatestSignerForChainID(big.NewInt(cfg.ChainId)),
		config: cfg,
	}

	if err := c.testConnection(ctx); err != nil {
		client.Close()
		return nil, err
	}

	if cfg.WsUrl != "" {
		ws, err := ethclient.DialContext(ctx, cfg.WsUrl)
		if err != nil {
			client.Close()
			return nil, errs.Unavailable("dial websocket", err)
		}
		c.wsClient = ws
	}

	logger.Info("Successfully created %s client", cfg.ChainType)
	return c, nil
}

func isSupportedChainType(chainType string) bool {
	for _, t := range supportedChainTypes {
		if t == chainType {
			return true
		}
	}
	return false
}

// testConnection 确认节点可达且链ID与配置一致
func (c *EthClient) testConnection(ctx context.Context) error {
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()

	id, err := c.client.ChainID(ctx)
	if err != nil {
		return errs.Unavailable("get chain id", err)
	}
	if c.config.ChainId != 0 && id.Int64() != c.config.ChainId {
		return errs.Validation("node chain id %d does not match configured %d", id.Int64(), c.config.ChainId)
	}
	return nil
}

// GetTransaction 读取交易及其回执
// 交易仍在内存池时 BlockNumber 为空
func (c *EthClient) GetTransaction(ctx context.Context, hash string) (*TransactionRecord, error) {
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()

	h := common.HexToHash(hash)
	tx, isPending, err := c.client.TransactionByHash(ctx, h)
	if err != nil {
		return nil, mapError("get transaction "+hash, err)
	}

	record := c.toRecord(tx)
	record.Status = TxPending
	if isPending {
		return &record, nil
	}

	receipt, err := c.client.TransactionReceipt(ctx, h)
	if err != nil {
		if errors.Is(err, ethereum.NotFound) {
			return &record, nil
		}
		return nil, mapError("get receipt "+hash, err)
	}
	if receipt.BlockNumber != nil {
		n := receipt.BlockNumber.Uint64()
		record.BlockNumber = &n
		record.BlockHash = receipt.BlockHash.Hex()
	}
	if receipt.Status == types.ReceiptStatusSuccessful {
		record.Status = TxSuccess
	} else {
		record.Status = TxReverted
	}
	return &record, nil
}

// GetBlockHeight 获取当前最新区块号
func (c *EthClient) GetBlockHeight(ctx context.Context) (uint64, error) {
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()

	n, err := c.client.BlockNumber(ctx)
	if err != nil {
		return 0, mapError("get block number", err)
	}
	return n, nil
}

// GetBlock 获取区块及其交易
func (c *EthClient) GetBlock(ctx context.Context, number uint64) (*BlockRecord, error) {
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()

	block, err := c.client.BlockByNumber(ctx, new(big.Int).SetUint64(number))
	if err != nil {
		return nil, mapError(fmt.Sprintf("get block %d", number), err)
	}

	n := block.NumberU64()
	record := &BlockRecord{
		Number:       n,
		Hash:         block.Hash().Hex(),
		ParentHash:   block.ParentHash().Hex(),
		Transactions: make([]TransactionRecord, 0, len(block.Transactions())),
	}
	for _, tx := range block.Transactions() {
		r := c.toRecord(tx)
		r.BlockNumber = &n
		r.BlockHash = record.Hash
		record.Transactions = append(record.Transactions, r)
	}
	return record, nil
}

// SubscribeHeights 订阅新区块高度，需要配置 ws_url
// ctx 结束或订阅出错时关闭返回的通道
func (c *EthClient) SubscribeHeights(ctx context.Context) (<-chan uint64, error) {
	c.mu.RLock()
	ws := c.wsClient
	c.mu.RUnlock()
	if ws == nil {
		return nil, errs.Validation("ws_url not configured, height subscription unavailable")
	}

	headers := make(chan *types.Header, 16)
	sub, err := ws.SubscribeNewHead(ctx, headers)
	if err != nil {
		return nil, mapError("subscribe new head", err)
	}

	out := make(chan uint64, 16)
	go func() {
		defer close(out)
		defer sub.Unsubscribe()
		for {
			select {
			case <-ctx.Done():
				return
			case err := <-sub.Err():
				if err != nil {
					logger.Warn("New head subscription ended: %v", err)
				}
				return
			case h := <-headers:
				if h == nil || h.Number == nil {
					continue
				}
				select {
				case out <- h.Number.Uint64():
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out, nil
}

// ChainId 获取链ID
func (c *EthClient) ChainId() int64 {
	return c.config.ChainId
}

// Close 关闭连接
func (c *EthClient) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.client != nil {
		c.client.Close()
	}
	if c.wsClient != nil {
		c.wsClient.Close()
		c.wsClient = nil
	}
	logger.Info("Chain client closed")
	return nil
}

func (c *EthClient) toRecord(tx *types.Transaction) TransactionRecord {
	record := TransactionRecord{
		Hash:  tx.Hash().Hex(),
		Value: WeiToDecimal(tx.Value(), c.config.ValueDecimals),
	}
	if to := tx.To(); to != nil {
		record.To = to.Hex()
	}
	if from, err := types.Sender(c.signer, tx); err == nil {
		record.From = from.Hex()
	}
	return record
}

func (c *EthClient) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	timeout := c.config.RequestTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return context.WithTimeout(ctx, timeout)
}

// WeiToDecimal 最小单位转换为带精度的金额
func WeiToDecimal(v *big.Int, decimals int32) decimal.Decimal {
	if v == nil {
		return decimal.Zero
	}
	return decimal.NewFromBigInt(v, -decimals)
}

// mapError 节点返回的 NotFound 映射为 ErrNotFound，其余一律视为不可用
func mapError(op string, err error) error {
	if errors.Is(err, ethereum.NotFound) {
		return errs.NotFound("%s", op)
	}
	return errs.Unavailable(op, err)
}
