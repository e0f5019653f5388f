package repository

import (
	"context"
	"errors"
	"time"

	"github.com/blues/ilr/internal/errs"
	"github.com/blues/ilr/internal/model"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// IntentSnapshot 意向的最新已提交状态
type IntentSnapshot struct {
	model.IntentModel
	Transaction   *model.ObservedTransactionModel // 当前挂载的交易
	AppliedAmount decimal.Decimal                 // 净入账金额
}

// GetIntent 读取意向快照
func (s *LedgerStore) GetIntent(ctx context.Context, intentId string) (*IntentSnapshot, error) {
	db := s.db.WithContext(ctx)

	var intent model.IntentModel
	if err := db.Where("id = ?", intentId).Take(&intent).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, errs.NotFound("intent %s", intentId)
		}
		return nil, dbErr("get intent", err)
	}

	snapshot := &IntentSnapshot{IntentModel: intent, AppliedAmount: decimal.Zero}
	if intent.CurrentTxHash != "" {
		var obs model.ObservedTransactionModel
		err := db.Where("tx_hash = ?", intent.CurrentTxHash).Take(&obs).Error
		switch {
		case err == nil:
			snapshot.Transaction = &obs
		case !errors.Is(err, gorm.ErrRecordNotFound):
			return nil, dbErr("get observed transaction", err)
		}
	}

	entries, err := s.ListEntries(ctx, intentId)
	if err != nil {
		return nil, err
	}
	snapshot.AppliedAmount = sumEntries(entries)
	return snapshot, nil
}

// ListIntentsByState 按创建顺序列出指定状态的意向
func (s *LedgerStore) ListIntentsByState(ctx context.Context, states []model.IntentState, limit int) ([]model.IntentModel, error) {
	var intents []model.IntentModel
	query := s.db.WithContext(ctx).Where("state IN ?", states).Order("created_at ASC, id ASC")
	if limit > 0 {
		query = query.Limit(limit)
	}
	if err := query.Find(&intents).Error; err != nil {
		return nil, dbErr("list intents", err)
	}
	return intents, nil
}

// ListFinalizedSince 列出交易区块不早于 minBlock 的已入账意向，用于重组窗口内复核
func (s *LedgerStore) ListFinalizedSince(ctx context.Context, minBlock uint64) ([]model.IntentModel, error) {
	var intents []model.IntentModel
	err := s.db.WithContext(ctx).
		Model(&model.IntentModel{}).
		Select("intent.*").
		Joins("JOIN observed_transaction ON observed_transaction.tx_hash = intent.current_tx_hash").
		Where("intent.state = ? AND observed_transaction.block_number >= ?", model.IntentFinalized, minBlock).
		Order("intent.created_at ASC, intent.id ASC").
		Find(&intents).Error
	if err != nil {
		return nil, dbErr("list finalized intents", err)
	}
	return intents, nil
}

// ListAwaitingByWallets 列出收款钱包命中的待提交意向，最早创建的在前
func (s *LedgerStore) ListAwaitingByWallets(ctx context.Context, wallets []string) ([]model.IntentModel, error) {
	if len(wallets) == 0 {
		return nil, nil
	}
	normalized := make([]string, 0, len(wallets))
	for _, w := range wallets {
		normalized = append(normalized, NormalizeAddress(w))
	}

	var intents []model.IntentModel
	err := s.db.WithContext(ctx).
		Where("state = ? AND destination_wallet IN ?", model.IntentAwaitingSubmission, normalized).
		Order("created_at ASC, id ASC").
		Find(&intents).Error
	if err != nil {
		return nil, dbErr("list awaiting intents", err)
	}
	return intents, nil
}

// ListExpirable 列出创建早于 before 的待提交意向
func (s *LedgerStore) ListExpirable(ctx context.Context, before time.Time, limit int) ([]model.IntentModel, error) {
	var intents []model.IntentModel
	query := s.db.WithContext(ctx).
		Where("state = ? AND created_at < ?", model.IntentAwaitingSubmission, before.UTC()).
		Order("created_at ASC, id ASC")
	if limit > 0 {
		query = query.Limit(limit)
	}
	if err := query.Find(&intents).Error; err != nil {
		return nil, dbErr("list expirable intents", err)
	}
	return intents, nil
}

// FindAppliedEntry 查找 (intent, tx, 认领代次) 的入账分录及其是否已冲正
func (s *LedgerStore) FindAppliedEntry(ctx context.Context, intentId, txHash string, generation int64) (*model.LedgerEntryModel, bool, error) {
	db := s.db.WithContext(ctx)
	entry, err := s.findEntry(db, intentId, txHash, generation, model.EntryApply)
	if err != nil || entry == nil {
		return nil, false, err
	}

	var reversed int64
	if err := db.Model(&model.LedgerEntryModel{}).Where("reverses_entry_id = ?", entry.Id).Count(&reversed).Error; err != nil {
		return nil, false, dbErr("check reversal", err)
	}
	return entry, reversed > 0, nil
}

// ListEntries 列出意向的全部分录
func (s *LedgerStore) ListEntries(ctx context.Context, intentId string) ([]model.LedgerEntryModel, error) {
	var entries []model.LedgerEntryModel
	if err := s.db.WithContext(ctx).Where("intent_id = ?", intentId).Order("applied_at ASC, id ASC").Find(&entries).Error; err != nil {
		return nil, dbErr("list entries", err)
	}
	return entries, nil
}

// ProjectRaisedTotal 项目净募集金额
func (s *LedgerStore) ProjectRaisedTotal(ctx context.Context, projectId int64) (decimal.Decimal, error) {
	var entries []model.LedgerEntryModel
	if err := s.db.WithContext(ctx).Select("amount").Where("project_id = ?", projectId).Find(&entries).Error; err != nil {
		return decimal.Zero, dbErr("sum project entries", err)
	}
	return sumEntries(entries), nil
}

// GetObservedTransaction 按哈希读取观察交易
func (s *LedgerStore) GetObservedTransaction(ctx context.Context, txHash string) (*model.ObservedTransactionModel, error) {
	var obs model.ObservedTransactionModel
	if err := s.db.WithContext(ctx).Where("tx_hash = ?", txHash).Take(&obs).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, errs.NotFound("observed transaction %s", txHash)
		}
		return nil, dbErr("get observed transaction", err)
	}
	return &obs, nil
}

// KnownTxHashes 返回仍挂在意向上的交易哈希集合，重组解绑的哈希不在其中
func (s *LedgerStore) KnownTxHashes(ctx context.Context, hashes []string) (map[string]bool, error) {
	known := make(map[string]bool)
	if len(hashes) == 0 {
		return known, nil
	}
	var rows []string
	if err := s.db.WithContext(ctx).Model(&model.ObservedTransactionModel{}).
		Where("tx_hash IN ? AND status = ?", hashes, model.ObservedActive).Pluck("tx_hash", &rows).Error; err != nil {
		return nil, dbErr("load known hashes", err)
	}
	for _, h := range rows {
		known[h] = true
	}
	return known, nil
}

// ListIntentEvents 列出意向的状态变更事件
func (s *LedgerStore) ListIntentEvents(ctx context.Context, intentId string) ([]model.IntentEventModel, error) {
	var events []model.IntentEventModel
	if err := s.db.WithContext(ctx).Where("intent_id = ?", intentId).Order("version ASC").Find(&events).Error; err != nil {
		return nil, dbErr("list intent events", err)
	}
	return events, nil
}

// Ping 检查存储连通性
func (s *LedgerStore) Ping(ctx context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return dbErr("ping", err)
	}
	return dbErr("ping", sqlDB.PingContext(ctx))
}

func sumEntries(entries []model.LedgerEntryModel) decimal.Decimal {
	total := decimal.Zero
	for _, e := range entries {
		total = total.Add(e.Amount)
	}
	return total
}
