package watcher

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/blues/ilr/internal/chain"
	"github.com/blues/ilr/internal/confirmation"
	"github.com/blues/ilr/internal/errs"
	"github.com/blues/ilr/internal/logger"
	"github.com/blues/ilr/internal/model"
	"github.com/blues/ilr/internal/repository"
	"github.com/panjf2000/ants/v2"
)

// Store 监听器依赖的账本存储操作
type Store interface {
	EnsureCursor(ctx context.Context, chainId int64, start uint64) (uint64, error)
	AdvanceCursor(ctx context.Context, chainId int64, from, to uint64) (bool, error)
	RewindCursor(ctx context.Context, chainId int64, to uint64) error
	ListAwaitingByWallets(ctx context.Context, wallets []string) ([]model.IntentModel, error)
	ListIntentsByState(ctx context.Context, states []model.IntentState, limit int) ([]model.IntentModel, error)
	ListFinalizedSince(ctx context.Context, minBlock uint64) ([]model.IntentModel, error)
	ListExpirable(ctx context.Context, before time.Time, limit int) ([]model.IntentModel, error)
	KnownTxHashes(ctx context.Context, hashes []string) (map[string]bool, error)
	RecordObservedTransaction(ctx context.Context, obs repository.ObservedTx, expectedVersion int64) (bool, error)
	GetObservedTransaction(ctx context.Context, txHash string) (*model.ObservedTransactionModel, error)
	UpdateObservedBlock(ctx context.Context, txHash string, blockNumber uint64, blockHash string) error
	UpdateObservedDepth(ctx context.Context, txHash string, depth uint64) error
	RecordAttemptFailure(ctx context.Context, intentId string, cause error) (int, error)
	ResetAttempts(ctx context.Context, intentId string) error
}

// Reconciler 状态推进与入账，由对账引擎实现
type Reconciler interface {
	Finalize(ctx context.Context, intent model.IntentModel) (bool, error)
	HandleReorg(ctx context.Context, intent model.IntentModel, reason string) (bool, error)
	Fail(ctx context.Context, intent model.IntentModel, reason string) (bool, error)
	Expire(ctx context.Context, intent model.IntentModel) (bool, error)
	Advance(ctx context.Context, intent model.IntentModel, to model.IntentState) (bool, error)
}

// Config 监听参数
type Config struct {
	ChainId       int64
	StartBlock    uint64
	ScanBatchSize uint64
	Concurrency   int
	MaxAttempts   int
	IntentTTL     time.Duration
}

// CycleReport 单轮对账统计
type CycleReport struct {
	Height    uint64
	Scanned   int // 扫描的区块数
	Matched   int // 新认领的交易数
	Evaluated int // 评估的意向数
	Expired   int
}

// Watcher 交易监听器：扫描区块认领交易，并按确认深度推进意向
type Watcher struct {
	cfg        Config
	store      Store
	reconciler Reconciler
	chain      chain.Client
	policy     confirmation.Policy
	pool       *ants.Pool // 意向评估协程池
	inflight   sync.Map   // 本进程正在评估的意向
	cycleMu    sync.Mutex
	now        func() time.Time
}

// New 创建监听器
func New(cfg Config, store Store, reconciler Reconciler, client chain.Client, policy confirmation.Policy) (*Watcher, error) {
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 1
	}
	if cfg.ScanBatchSize == 0 {
		cfg.ScanBatchSize = 100
	}
	pool, err := ants.NewPool(cfg.Concurrency, ants.WithPanicHandler(func(p interface{}) {
		logger.Error("Intent evaluation panicked: %v", p)
	}))
	if err != nil {
		return nil, fmt.Errorf("failed to create evaluation pool: %w", err)
	}
	return &Watcher{
		cfg:        cfg,
		store:      store,
		reconciler: reconciler,
		chain:      client,
		policy:     policy,
		pool:       pool,
		now:        time.Now,
	}, nil
}

// Release 释放协程池
func (w *Watcher) Release() {
	w.pool.Release()
}

// RunCycle 执行一轮对账：读高度、扫描新区块、评估在途意向、处理过期
// 同一进程内不会并发执行，正在运行时直接跳过
func (w *Watcher) RunCycle(ctx context.Context) (CycleReport, error) {
	var report CycleReport
	if !w.cycleMu.TryLock() {
		logger.Debug("Reconcile cycle already running, skipping")
		return report, nil
	}
	defer w.cycleMu.Unlock()

	height, err := w.chain.GetBlockHeight(ctx)
	if err != nil {
		logger.Error("Failed to get current block number: %v", err)
		if errors.Is(err, errs.ErrUnavailable) {
			w.recordOutage(ctx, err)
		}
		return report, err
	}
	report.Height = height
	logger.Debug("Current block number: %d", height)

	var cycleErr error
	scanned, matched, err := w.scan(ctx, height)
	report.Scanned, report.Matched = scanned, matched
	if err != nil {
		logger.Error("Error scanning blocks: %v", err)
		cycleErr = errors.Join(cycleErr, err)
	}

	evaluated, err := w.evaluateAll(ctx, height)
	report.Evaluated = evaluated
	if err != nil {
		cycleErr = errors.Join(cycleErr, err)
	}

	expired, err := w.expire(ctx)
	report.Expired = expired
	if err != nil {
		cycleErr = errors.Join(cycleErr, err)
	}

	logger.Debug("Cycle done at height %d: scanned=%d matched=%d evaluated=%d expired=%d",
		height, report.Scanned, report.Matched, report.Evaluated, report.Expired)
	return report, cycleErr
}

// Follow 每收到一个新高度执行一轮，通道关闭或 ctx 结束时返回
func (w *Watcher) Follow(ctx context.Context, heights <-chan uint64) {
	logger.Info("Following new chain heads")
	for {
		select {
		case <-ctx.Done():
			logger.Info("Head follower stopped")
			return
		case h, ok := <-heights:
			if !ok {
				logger.Warn("Head subscription closed, falling back to polling")
				return
			}
			logger.Debug("New head %d", h)
			if _, err := w.RunCycle(ctx); err != nil {
				logger.Warn("Cycle triggered by head %d failed: %v", h, err)
			}
		}
	}
}

// recordOutage 节点整体不可用时为所有在途意向累加失败次数
func (w *Watcher) recordOutage(ctx context.Context, cause error) {
	intents, err := w.store.ListIntentsByState(ctx, []model.IntentState{model.IntentSubmitted, model.IntentConfirming}, 0)
	if err != nil {
		logger.Error("Failed to list in-flight intents: %v", err)
		return
	}
	for _, intent := range intents {
		w.onUnavailable(ctx, intent, cause)
	}
}

// expire 待提交超时的意向标记为过期
func (w *Watcher) expire(ctx context.Context) (int, error) {
	if w.cfg.IntentTTL <= 0 {
		return 0, nil
	}
	intents, err := w.store.ListExpirable(ctx, w.now().Add(-w.cfg.IntentTTL), 0)
	if err != nil {
		return 0, err
	}
	expired := 0
	for _, intent := range intents {
		ok, err := w.reconciler.Expire(ctx, intent)
		if err != nil {
			logger.Error("Failed to expire intent %s: %v", intent.Id, err)
			continue
		}
		if ok {
			expired++
		}
	}
	return expired, nil
}
