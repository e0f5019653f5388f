package watcher

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/blues/ilr/internal/chain"
	"github.com/blues/ilr/internal/confirmation"
	"github.com/blues/ilr/internal/errs"
	"github.com/blues/ilr/internal/logger"
	"github.com/blues/ilr/internal/model"
)

// evaluateAll 在协程池中并发评估在途意向及重组窗口内的已入账意向
func (w *Watcher) evaluateAll(ctx context.Context, height uint64) (int, error) {
	intents, err := w.store.ListIntentsByState(ctx, []model.IntentState{
		model.IntentSubmitted, model.IntentConfirming, model.IntentReorged,
	}, 0)
	if err != nil {
		return 0, err
	}

	var minBlock uint64
	if span := w.policy.Required + w.policy.FinalityWindow; height > span {
		minBlock = height - span
	}
	finalized, err := w.store.ListFinalizedSince(ctx, minBlock)
	if err != nil {
		return 0, err
	}
	intents = append(intents, finalized...)

	var wg sync.WaitGroup
	submitted := 0
	for _, intent := range intents {
		if _, busy := w.inflight.LoadOrStore(intent.Id, struct{}{}); busy {
			logger.Debug("Intent %s already being evaluated", intent.Id)
			continue
		}

		intent := intent
		wg.Add(1)
		err := w.pool.Submit(func() {
			defer wg.Done()
			defer w.inflight.Delete(intent.Id)
			w.evaluate(ctx, intent, height)
		})
		if err != nil {
			wg.Done()
			w.inflight.Delete(intent.Id)
			logger.Error("Failed to submit task to pool: %v", err)
			continue
		}
		submitted++
	}
	wg.Wait()
	return submitted, nil
}

// evaluate 复查意向当前交易：检测重组、更新确认深度并推进状态
func (w *Watcher) evaluate(ctx context.Context, intent model.IntentModel, height uint64) {
	if ctx.Err() != nil {
		return
	}
	if intent.State == model.IntentReorged {
		if _, err := w.reconciler.HandleReorg(ctx, intent, "resuming interrupted reorg"); err != nil {
			logger.Error("Failed to resume reorg of intent %s: %v", intent.Id, err)
		}
		return
	}
	if intent.CurrentTxHash == "" {
		logger.Warn("Intent %s is %s without a transaction", intent.Id, intent.State)
		return
	}

	obs, err := w.store.GetObservedTransaction(ctx, intent.CurrentTxHash)
	if err != nil {
		logger.Error("Failed to load observed tx %s of intent %s: %v", intent.CurrentTxHash, intent.Id, err)
		return
	}
	if intent.State == model.IntentFinalized && !w.policy.WithinReorgWindow(height, obs.BlockNumber) {
		return
	}

	tx, err := w.chain.GetTransaction(ctx, intent.CurrentTxHash)
	switch {
	case err == nil:
	case errors.Is(err, errs.ErrNotFound):
		if obs.BlockNumber != nil {
			w.reorg(ctx, intent, *obs.BlockNumber, fmt.Sprintf("transaction vanished from block %d", *obs.BlockNumber))
			return
		}
		w.failIfStale(ctx, intent)
		return
	case errors.Is(err, errs.ErrUnavailable):
		w.onUnavailable(ctx, intent, err)
		return
	default:
		logger.Error("Failed to get tx %s: %v", intent.CurrentTxHash, err)
		return
	}

	if intent.Attempts > 0 {
		if err := w.store.ResetAttempts(ctx, intent.Id); err != nil {
			logger.Warn("Failed to reset attempts of intent %s: %v", intent.Id, err)
		}
	}

	if obs.BlockNumber != nil {
		if !tx.Mined() {
			w.reorg(ctx, intent, *obs.BlockNumber, fmt.Sprintf("transaction left block %d and returned to mempool", *obs.BlockNumber))
			return
		}
		if *tx.BlockNumber != *obs.BlockNumber || tx.BlockHash != obs.BlockHash {
			w.reorg(ctx, intent, min(*obs.BlockNumber, *tx.BlockNumber), fmt.Sprintf("block %d (%s) replaced, transaction now in block %d (%s)",
				*obs.BlockNumber, obs.BlockHash, *tx.BlockNumber, tx.BlockHash))
			return
		}
	} else if tx.Mined() {
		if err := w.store.UpdateObservedBlock(ctx, tx.Hash, *tx.BlockNumber, tx.BlockHash); err != nil {
			logger.Error("Failed to record block of tx %s: %v", tx.Hash, err)
			return
		}
	}

	if tx.Status == chain.TxReverted {
		if intent.State != model.IntentFinalized {
			if _, err := w.reconciler.Fail(ctx, intent, fmt.Sprintf("transaction %s reverted", tx.Hash)); err != nil {
				logger.Error("Failed to mark intent %s failed: %v", intent.Id, err)
			}
		}
		return
	}
	if !tx.Mined() {
		w.failIfStale(ctx, intent)
		return
	}

	verdict := w.policy.Classify(height, tx.BlockNumber)
	if verdict.Kind != confirmation.Unconfirmed {
		if err := w.store.UpdateObservedDepth(ctx, tx.Hash, verdict.Depth); err != nil {
			logger.Warn("Failed to record depth of tx %s: %v", tx.Hash, err)
		}
	}
	logger.Debug("Intent %s tx %s: %s", intent.Id, tx.Hash, verdict)

	switch intent.State {
	case model.IntentSubmitted:
		switch verdict.Kind {
		case confirmation.Confirming:
			_, err = w.reconciler.Advance(ctx, intent, model.IntentConfirming)
		case confirmation.Finalized:
			_, err = w.reconciler.Finalize(ctx, intent)
		}
	case model.IntentConfirming:
		if verdict.Kind == confirmation.Finalized {
			_, err = w.reconciler.Finalize(ctx, intent)
		}
	}
	if err != nil {
		logger.Error("Failed to advance intent %s: %v", intent.Id, err)
	}
}

// reorg 交给引擎处理重组，并把扫描检查点拉回 rewindTo
// 重新打包的交易在解绑后由扫描再次认领
func (w *Watcher) reorg(ctx context.Context, intent model.IntentModel, rewindTo uint64, reason string) {
	ok, err := w.reconciler.HandleReorg(ctx, intent, reason)
	if err != nil {
		logger.Error("Failed to handle reorg of intent %s: %v", intent.Id, err)
		return
	}
	if !ok {
		return
	}
	if err := w.store.RewindCursor(context.WithoutCancel(ctx), w.cfg.ChainId, rewindTo); err != nil {
		logger.Warn("Failed to rewind scan cursor to %d: %v", rewindTo, err)
	}
}

// failIfStale 提交后长时间未打包的交易视为被丢弃
func (w *Watcher) failIfStale(ctx context.Context, intent model.IntentModel) {
	if w.cfg.IntentTTL <= 0 || intent.State != model.IntentSubmitted {
		return
	}
	if w.now().Sub(intent.UpdatedAt) < w.cfg.IntentTTL {
		return
	}
	if _, err := w.reconciler.Fail(ctx, intent, "transaction not mined before deadline"); err != nil {
		logger.Error("Failed to mark intent %s failed: %v", intent.Id, err)
	}
}

// onUnavailable 累加失败次数，达到上限后标记失败
func (w *Watcher) onUnavailable(ctx context.Context, intent model.IntentModel, cause error) {
	if ctx.Err() != nil {
		return
	}
	attempts, err := w.store.RecordAttemptFailure(ctx, intent.Id, cause)
	if err != nil {
		logger.Error("Failed to record attempt of intent %s: %v", intent.Id, err)
		return
	}
	logger.Warn("Chain unavailable for intent %s (attempt %d/%d): %v", intent.Id, attempts, w.cfg.MaxAttempts, cause)

	if w.cfg.MaxAttempts <= 0 || attempts < w.cfg.MaxAttempts {
		return
	}
	if intent.State != model.IntentSubmitted && intent.State != model.IntentConfirming {
		return
	}
	reason := fmt.Sprintf("chain unavailable after %d attempts: %v", attempts, cause)
	if _, err := w.reconciler.Fail(ctx, intent, reason); err != nil {
		logger.Error("Failed to mark intent %s failed: %v", intent.Id, err)
	}
}
