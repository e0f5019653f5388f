package watcher

import (
	"context"
	"errors"

	"github.com/blues/ilr/internal/chain"
	"github.com/blues/ilr/internal/errs"
	"github.com/blues/ilr/internal/logger"
	"github.com/blues/ilr/internal/model"
	"github.com/blues/ilr/internal/repository"
	"github.com/shopspring/decimal"
)

// scan 从检查点起分批扫描区块，认领匹配的交易
// 认领冲突时停止扫描且不推进检查点，下一轮重新读取该区块
// 首次运行且未配置起始区块时从当前高度开始，不回扫历史
func (w *Watcher) scan(ctx context.Context, height uint64) (scanned, matched int, err error) {
	start := w.cfg.StartBlock
	if start == 0 {
		start = height
	}
	next, err := w.store.EnsureCursor(ctx, w.cfg.ChainId, start)
	if err != nil {
		return 0, 0, err
	}
	if next > height+1 {
		logger.Warn("Chain height %d is behind scan cursor %d, rewinding", height, next)
		if err := w.store.RewindCursor(ctx, w.cfg.ChainId, height+1); err != nil {
			return 0, 0, err
		}
		next = height + 1
	}
	if next > height {
		return 0, 0, nil
	}

	end := height
	if end-next+1 > w.cfg.ScanBatchSize {
		end = next + w.cfg.ScanBatchSize - 1
	}
	logger.Debug("Processing blocks from %d to %d", next, end)

	for n := next; n <= end; n++ {
		if ctx.Err() != nil {
			return scanned, matched, nil
		}

		block, err := w.chain.GetBlock(ctx, n)
		if err != nil {
			if errors.Is(err, errs.ErrNotFound) {
				logger.Debug("Block %d not available yet", n)
				return scanned, matched, nil
			}
			return scanned, matched, err
		}

		m, complete, err := w.matchBlock(ctx, block)
		matched += m
		if err != nil {
			return scanned, matched, err
		}
		if !complete {
			logger.Debug("Claim conflict in block %d, rescanning next cycle", n)
			return scanned, matched, nil
		}

		advanced, err := w.store.AdvanceCursor(ctx, w.cfg.ChainId, n, n+1)
		if err != nil {
			return scanned, matched, err
		}
		if !advanced {
			logger.Debug("Scan cursor moved by another worker at block %d", n)
			return scanned, matched, nil
		}
		scanned++
	}
	return scanned, matched, nil
}

// matchBlock 将区块内交易按 (收款钱包, 金额) 精确匹配到待提交意向，最早创建的意向优先
// complete 为 false 表示认领时版本冲突
func (w *Watcher) matchBlock(ctx context.Context, block *chain.BlockRecord) (matched int, complete bool, err error) {
	if len(block.Transactions) == 0 {
		return 0, true, nil
	}

	wallets := make([]string, 0, len(block.Transactions))
	hashes := make([]string, 0, len(block.Transactions))
	for _, tx := range block.Transactions {
		if tx.To != "" {
			wallets = append(wallets, tx.To)
		}
		hashes = append(hashes, tx.Hash)
	}

	intents, err := w.store.ListAwaitingByWallets(ctx, wallets)
	if err != nil {
		return 0, false, err
	}
	if len(intents) == 0 {
		return 0, true, nil
	}
	known, err := w.store.KnownTxHashes(ctx, hashes)
	if err != nil {
		return 0, false, err
	}

	byWallet := make(map[string][]model.IntentModel)
	for _, intent := range intents {
		byWallet[intent.DestinationWallet] = append(byWallet[intent.DestinationWallet], intent)
	}
	claimed := make(map[string]bool)

	for _, tx := range block.Transactions {
		if known[tx.Hash] {
			continue
		}
		intent := pickIntent(byWallet[repository.NormalizeAddress(tx.To)], tx.Value, claimed)
		if intent == nil {
			continue
		}

		ok, err := w.store.RecordObservedTransaction(ctx, repository.ObservedTx{
			IntentId:    intent.Id,
			TxHash:      tx.Hash,
			Sender:      tx.From,
			Recipient:   tx.To,
			Value:       tx.Value,
			BlockNumber: tx.BlockNumber,
			BlockHash:   tx.BlockHash,
		}, intent.Version)
		if err != nil {
			return matched, false, err
		}
		if !ok {
			return matched, false, nil
		}
		claimed[intent.Id] = true
		matched++
		logger.Info("Matched tx %s in block %d to intent %s (amount: %s)", tx.Hash, block.Number, intent.Id, tx.Value)
	}
	return matched, true, nil
}

// pickIntent 候选已按创建时间排序，取第一个金额相等且本轮未认领的
func pickIntent(candidates []model.IntentModel, value decimal.Decimal, claimed map[string]bool) *model.IntentModel {
	for i := range candidates {
		if claimed[candidates[i].Id] {
			continue
		}
		if candidates[i].Amount.Equal(value) {
			return &candidates[i]
		}
	}
	return nil
}
