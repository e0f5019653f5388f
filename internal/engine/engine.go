package engine

import (
	"context"
	"errors"
	"strings"

	"github.com/blues/ilr/internal/chain"
	"github.com/blues/ilr/internal/errs"
	"github.com/blues/ilr/internal/logger"
	"github.com/blues/ilr/internal/model"
	"github.com/blues/ilr/internal/repository"
	"github.com/shopspring/decimal"
)

// Store 引擎依赖的账本存储操作
type Store interface {
	CreateIntent(ctx context.Context, userId string, projectId int64, amount decimal.Decimal, destinationWallet string) (string, error)
	GetIntent(ctx context.Context, intentId string) (*repository.IntentSnapshot, error)
	RecordObservedTransaction(ctx context.Context, obs repository.ObservedTx, expectedVersion int64) (bool, error)
	TransitionIntentState(ctx context.Context, intentId string, from, to model.IntentState, expectedVersion int64, reason string) (bool, error)
	ApplyLedgerEntry(ctx context.Context, intentId, txHash string, generation int64, amount decimal.Decimal) (string, bool, error)
	ReverseLedgerEntry(ctx context.Context, entryId string) (string, error)
	FindAppliedEntry(ctx context.Context, intentId, txHash string, generation int64) (*model.LedgerEntryModel, bool, error)
	KnownTxHashes(ctx context.Context, hashes []string) (map[string]bool, error)
}

// Engine 对账引擎，账本分录的唯一写入方
type Engine struct {
	store Store
	chain chain.Client
}

// New 创建对账引擎
func New(store Store, client chain.Client) *Engine {
	return &Engine{store: store, chain: client}
}

// CreateIntent 创建投资意向
func (e *Engine) CreateIntent(ctx context.Context, userId string, projectId int64, amount decimal.Decimal, destinationWallet string) (string, error) {
	id, err := e.store.CreateIntent(context.WithoutCancel(ctx), userId, projectId, amount, destinationWallet)
	if err != nil {
		return "", err
	}
	logger.Info("Intent %s created (user: %s, project: %d, amount: %s)", id, userId, projectId, amount)
	return id, nil
}

// GetStatus 查询意向最新状态
func (e *Engine) GetStatus(ctx context.Context, intentId string) (*repository.IntentSnapshot, error) {
	return e.store.GetIntent(ctx, intentId)
}

// SubmitTransaction 用户上报已广播的交易哈希
// 收款地址与金额需与意向一致，尚未打包的交易先以无区块状态挂载
func (e *Engine) SubmitTransaction(ctx context.Context, intentId, txHash string) (*repository.IntentSnapshot, error) {
	txHash = strings.ToLower(strings.TrimSpace(txHash))
	if txHash == "" {
		return nil, errs.Validation("tx hash is required")
	}

	snap, err := e.store.GetIntent(ctx, intentId)
	if err != nil {
		return nil, err
	}
	if snap.State != model.IntentAwaitingSubmission {
		if snap.CurrentTxHash == txHash {
			return snap, nil
		}
		return nil, errs.Conflict("intent %s is %s, not awaiting submission", intentId, snap.State)
	}

	known, err := e.store.KnownTxHashes(ctx, []string{txHash})
	if err != nil {
		return nil, err
	}
	if known[txHash] {
		return nil, errs.Conflict("transaction %s already claimed", txHash)
	}
	// 重组解绑的交易不在 known 中，下面的认领会重新激活它

	tx, err := e.chain.GetTransaction(ctx, txHash)
	if err != nil {
		return nil, err
	}
	if err := matchIntent(&snap.IntentModel, tx); err != nil {
		return nil, err
	}
	if tx.Status == chain.TxReverted {
		return nil, errs.Validation("transaction %s reverted", txHash)
	}

	ok, err := e.store.RecordObservedTransaction(context.WithoutCancel(ctx), repository.ObservedTx{
		IntentId:    intentId,
		TxHash:      tx.Hash,
		Sender:      tx.From,
		Recipient:   tx.To,
		Value:       tx.Value,
		BlockNumber: tx.BlockNumber,
		BlockHash:   tx.BlockHash,
	}, snap.Version)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, errs.Conflict("intent %s changed concurrently", intentId)
	}
	logger.Info("Intent %s submitted with tx %s", intentId, tx.Hash)
	return e.store.GetIntent(ctx, intentId)
}

// Finalize 幂等入账并推进到 Finalized
// 返回 false 表示意向已被其他处理方推进
func (e *Engine) Finalize(ctx context.Context, intent model.IntentModel) (bool, error) {
	ctx = context.WithoutCancel(ctx)

	if intent.CurrentTxHash == "" {
		return false, errs.Validation("intent %s has no transaction to finalize", intent.Id)
	}
	if intent.State == model.IntentSubmitted {
		ok, err := e.Advance(ctx, intent, model.IntentConfirming)
		if err != nil || !ok {
			return false, err
		}
		intent.State = model.IntentConfirming
		intent.Version++
	}
	if intent.State != model.IntentConfirming {
		return false, errs.Validation("cannot finalize intent %s in state %s", intent.Id, intent.State)
	}

	generation := intent.ClaimGeneration

	existing, reversed, err := e.store.FindAppliedEntry(ctx, intent.Id, intent.CurrentTxHash, generation)
	if err != nil {
		return false, err
	}
	if existing != nil && reversed {
		logger.Warn("Intent %s tx %s (claim %d) was already reversed, refusing to finalize", intent.Id, intent.CurrentTxHash, generation)
		return false, nil
	}

	entryId, applied, err := e.store.ApplyLedgerEntry(ctx, intent.Id, intent.CurrentTxHash, generation, intent.Amount)
	if err != nil {
		return false, err
	}
	if !applied {
		logger.Debug("Intent %s entry %s already applied", intent.Id, entryId)
	}

	ok, err := e.store.TransitionIntentState(ctx, intent.Id, model.IntentConfirming, model.IntentFinalized, intent.Version, "")
	if err != nil {
		return false, err
	}
	if !ok {
		logger.Debug("Intent %s finalize lost CAS at version %d", intent.Id, intent.Version)
		return false, e.compensate(ctx, intent.Id, intent.CurrentTxHash, generation)
	}
	logger.Info("Intent %s finalized (tx: %s, entry: %s, amount: %s)", intent.Id, intent.CurrentTxHash, entryId, intent.Amount)
	return true, nil
}

// compensate 入账后 CAS 失败，若该代次的认领已不再挂在意向上则冲正刚写入的分录
func (e *Engine) compensate(ctx context.Context, intentId, txHash string, generation int64) error {
	snap, err := e.store.GetIntent(ctx, intentId)
	if err != nil {
		return err
	}
	if snap.CurrentTxHash == txHash && snap.ClaimGeneration == generation &&
		(snap.State == model.IntentFinalized || snap.State == model.IntentConfirming) {
		return nil
	}
	return e.reverse(ctx, intentId, txHash, generation)
}

// HandleReorg 交易被重组移除：先迁到 Reorged，冲正已入账分录，再回到 AwaitingSubmission
func (e *Engine) HandleReorg(ctx context.Context, intent model.IntentModel, reason string) (bool, error) {
	ctx = context.WithoutCancel(ctx)

	switch intent.State {
	case model.IntentSubmitted, model.IntentConfirming, model.IntentFinalized:
		ok, err := e.store.TransitionIntentState(ctx, intent.Id, intent.State, model.IntentReorged, intent.Version, reason)
		if err != nil || !ok {
			if err == nil {
				logger.Debug("Intent %s reorg lost CAS at version %d", intent.Id, intent.Version)
			}
			return false, err
		}
		logger.Warn("Intent %s reorged out (tx: %s): %s", intent.Id, intent.CurrentTxHash, reason)
		intent.State = model.IntentReorged
		intent.Version++
	case model.IntentReorged:
	default:
		return false, errs.Validation("cannot reorg intent %s in state %s", intent.Id, intent.State)
	}

	if intent.CurrentTxHash != "" {
		if err := e.reverse(ctx, intent.Id, intent.CurrentTxHash, intent.ClaimGeneration); err != nil {
			return false, err
		}
	}

	ok, err := e.store.TransitionIntentState(ctx, intent.Id, model.IntentReorged, model.IntentAwaitingSubmission, intent.Version, "")
	if err != nil || !ok {
		return false, err
	}
	logger.Info("Intent %s awaiting a new transaction", intent.Id)
	return true, nil
}

// reverse 冲正 (intent, tx, 认领代次) 的有效分录，已冲正或不存在时无操作
func (e *Engine) reverse(ctx context.Context, intentId, txHash string, generation int64) error {
	entry, reversed, err := e.store.FindAppliedEntry(ctx, intentId, txHash, generation)
	if err != nil {
		return err
	}
	if entry == nil || reversed {
		return nil
	}

	reversalId, err := e.store.ReverseLedgerEntry(ctx, entry.Id)
	if err != nil {
		if errors.Is(err, errs.ErrNotFound) {
			return nil
		}
		return err
	}
	logger.Info("Intent %s entry %s reversed by %s (amount: %s)", intentId, entry.Id, reversalId, entry.Amount.Neg())
	return nil
}

// Fail 将意向标记为失败
func (e *Engine) Fail(ctx context.Context, intent model.IntentModel, reason string) (bool, error) {
	ok, err := e.store.TransitionIntentState(context.WithoutCancel(ctx), intent.Id, intent.State, model.IntentFailed, intent.Version, reason)
	if err != nil || !ok {
		return false, err
	}
	logger.Warn("Intent %s failed: %s", intent.Id, reason)
	return true, nil
}

// Expire 超时未提交的意向过期
func (e *Engine) Expire(ctx context.Context, intent model.IntentModel) (bool, error) {
	ok, err := e.store.TransitionIntentState(context.WithoutCancel(ctx), intent.Id, model.IntentAwaitingSubmission, model.IntentExpired, intent.Version, "no transaction observed before deadline")
	if err != nil || !ok {
		return false, err
	}
	logger.Info("Intent %s expired", intent.Id)
	return true, nil
}

// Advance 普通的状态推进，如 Submitted -> Confirming
func (e *Engine) Advance(ctx context.Context, intent model.IntentModel, to model.IntentState) (bool, error) {
	ok, err := e.store.TransitionIntentState(context.WithoutCancel(ctx), intent.Id, intent.State, to, intent.Version, "")
	if err != nil {
		return false, err
	}
	if !ok {
		logger.Debug("Intent %s %s -> %s lost CAS at version %d", intent.Id, intent.State, to, intent.Version)
	}
	return ok, nil
}

// matchIntent 校验交易的收款地址与金额
func matchIntent(intent *model.IntentModel, tx *chain.TransactionRecord) error {
	if repository.NormalizeAddress(tx.To) != intent.DestinationWallet {
		return errs.Validation("transaction %s pays %s, intent expects %s", tx.Hash, tx.To, intent.DestinationWallet)
	}
	if !tx.Value.Equal(intent.Amount) {
		return errs.Validation("transaction %s value %s does not match intent amount %s", tx.Hash, tx.Value, intent.Amount)
	}
	return nil
}
