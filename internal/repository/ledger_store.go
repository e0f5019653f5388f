package repository

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/blues/ilr/internal/errs"
	"github.com/blues/ilr/internal/model"
	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// errStale 事务内部使用，表示版本或状态已被其他写者推进
var errStale = errors.New("stale version")

// LedgerStore 意向、观察交易与分录的唯一持久化入口
type LedgerStore struct {
	db      *gorm.DB
	catalog ProjectCatalog
	now     func() time.Time
}

// Option LedgerStore 可选项
type Option func(*LedgerStore)

// WithClock 替换时钟，测试中用于控制创建顺序
func WithClock(now func() time.Time) Option {
	return func(s *LedgerStore) { s.now = now }
}

// WithCatalog 替换项目目录
func WithCatalog(c ProjectCatalog) Option {
	return func(s *LedgerStore) { s.catalog = c }
}

// NewLedgerStore 创建账本存储
func NewLedgerStore(db *gorm.DB, opts ...Option) *LedgerStore {
	s := &LedgerStore{
		db:      db,
		catalog: NewProjectRepository(db),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// ObservedTx 待挂载到意向上的链上交易
type ObservedTx struct {
	IntentId    string
	TxHash      string
	Sender      string
	Recipient   string
	Value       decimal.Decimal
	BlockNumber *uint64
	BlockHash   string
}

// NormalizeAddress 统一钱包地址格式
func NormalizeAddress(addr string) string {
	return strings.ToLower(strings.TrimSpace(addr))
}

// CreateIntent 创建投资意向，收款钱包取自项目目录并快照
func (s *LedgerStore) CreateIntent(ctx context.Context, userId string, projectId int64, amount decimal.Decimal, destinationWallet string) (string, error) {
	if strings.TrimSpace(userId) == "" {
		return "", errs.Validation("user id is required")
	}
	if !amount.IsPositive() {
		return "", errs.Validation("amount must be greater than 0, got %s", amount.String())
	}

	project, err := s.catalog.GetProject(ctx, projectId)
	if err != nil {
		if errors.Is(err, errs.ErrNotFound) {
			return "", errs.Validation("project %d does not exist", projectId)
		}
		return "", err
	}
	if project.Status != model.ProjectStatusActive {
		return "", errs.Validation("project %d is not accepting investments", projectId)
	}
	wallet := NormalizeAddress(project.WalletAddress)
	if !common.IsHexAddress(wallet) {
		return "", errs.Validation("project %d has no known wallet", projectId)
	}
	if destinationWallet != "" && NormalizeAddress(destinationWallet) != wallet {
		return "", errs.Validation("destination wallet %s does not match project %d wallet", destinationWallet, projectId)
	}

	now := s.now().UTC()
	intent := model.IntentModel{
		Id:                uuid.NewString(),
		CreatedAt:         now,
		UpdatedAt:         now,
		UserId:            userId,
		ProjectId:         projectId,
		Amount:            amount,
		DestinationWallet: wallet,
		State:             model.IntentAwaitingSubmission,
		Version:           1,
	}
	if err := s.db.WithContext(ctx).Create(&intent).Error; err != nil {
		return "", dbErr("create intent", err)
	}
	return intent.Id, nil
}

// RecordObservedTransaction 挂载交易并将意向推进到 Submitted
// 重组后解绑的交易可被重新认领，认领代次加一
// 版本过期、状态不符或交易仍挂在其他意向上时返回 false，调用方下一轮重新读取
func (s *LedgerStore) RecordObservedTransaction(ctx context.Context, obs ObservedTx, expectedVersion int64) (bool, error) {
	if obs.TxHash == "" {
		return false, errs.Validation("tx hash is required")
	}

	now := s.now().UTC()
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&model.IntentModel{}).
			Where("id = ? AND version = ? AND state = ?", obs.IntentId, expectedVersion, model.IntentAwaitingSubmission).
			Updates(map[string]interface{}{
				"state":           model.IntentSubmitted,
				"version":         expectedVersion + 1,
				"current_tx_hash": obs.TxHash,
				"source_wallet":   NormalizeAddress(obs.Sender),
				"attempts":        0,
				"last_error":      "",
				"updated_at":      now,
			})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return intentMissingOrStale(tx, obs.IntentId)
		}

		generation, err := claimObserved(tx, obs, now)
		if err != nil {
			return err
		}
		if err := tx.Model(&model.IntentModel{}).Where("id = ?", obs.IntentId).
			Update("claim_generation", generation).Error; err != nil {
			return err
		}

		return tx.Create(&model.IntentEventModel{
			CreatedAt: now,
			IntentId:  obs.IntentId,
			Version:   expectedVersion + 1,
			FromState: model.IntentAwaitingSubmission,
			ToState:   model.IntentSubmitted,
			TxHash:    obs.TxHash,
		}).Error
	})
	return casResult("record observed transaction", err)
}

// TransitionIntentState 带版本校验的状态迁移
// 迁回 AwaitingSubmission 时解绑当前交易
func (s *LedgerStore) TransitionIntentState(ctx context.Context, intentId string, from, to model.IntentState, expectedVersion int64, reason string) (bool, error) {
	if !model.CanTransition(from, to) {
		return false, errs.Validation("illegal transition %s -> %s", from, to)
	}

	now := s.now().UTC()
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var current model.IntentModel
		if err := tx.Select("id", "current_tx_hash").Where("id = ?", intentId).Take(&current).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return errs.NotFound("intent %s", intentId)
			}
			return err
		}

		updates := map[string]interface{}{
			"state":      to,
			"version":    expectedVersion + 1,
			"updated_at": now,
		}
		switch to {
		case model.IntentAwaitingSubmission:
			updates["current_tx_hash"] = ""
			updates["claim_generation"] = 0
			updates["source_wallet"] = ""
			updates["attempts"] = 0
			updates["last_error"] = ""
		case model.IntentFailed, model.IntentReorged, model.IntentExpired:
			updates["last_error"] = reason
		}

		res := tx.Model(&model.IntentModel{}).
			Where("id = ? AND version = ? AND state = ?", intentId, expectedVersion, from).
			Updates(updates)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return errStale
		}

		if to == model.IntentAwaitingSubmission && current.CurrentTxHash != "" {
			if err := tx.Model(&model.ObservedTransactionModel{}).
				Where("tx_hash = ? AND intent_id = ?", current.CurrentTxHash, intentId).
				Updates(map[string]interface{}{"status": model.ObservedOrphaned, "updated_at": now}).Error; err != nil {
				return err
			}
		}

		return tx.Create(&model.IntentEventModel{
			CreatedAt: now,
			IntentId:  intentId,
			Version:   expectedVersion + 1,
			FromState: from,
			ToState:   to,
			TxHash:    current.CurrentTxHash,
			Reason:    reason,
		}).Error
	})
	return casResult("transition intent", err)
}

// ApplyLedgerEntry 幂等入账：同一 (intent, tx, 认领代次) 只会存在一条 apply 分录
// applied 为 false 表示分录已存在，返回的是既有分录ID
func (s *LedgerStore) ApplyLedgerEntry(ctx context.Context, intentId, txHash string, generation int64, amount decimal.Decimal) (string, bool, error) {
	if !amount.IsPositive() {
		return "", false, errs.Validation("applied amount must be greater than 0")
	}
	db := s.db.WithContext(ctx)

	existing, err := s.findEntry(db, intentId, txHash, generation, model.EntryApply)
	if err != nil {
		return "", false, err
	}
	if existing != nil {
		return existing.Id, false, nil
	}

	var intent model.IntentModel
	if err := db.Select("id", "project_id").Where("id = ?", intentId).Take(&intent).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return "", false, errs.NotFound("intent %s", intentId)
		}
		return "", false, dbErr("load intent", err)
	}

	entry := model.LedgerEntryModel{
		Id:         uuid.NewString(),
		AppliedAt:  s.now().UTC(),
		IntentId:   intentId,
		TxHash:     txHash,
		Generation: generation,
		Kind:       model.EntryApply,
		ProjectId:  intent.ProjectId,
		Amount:     amount,
	}
	if err := db.Create(&entry).Error; err != nil {
		// 并发写入时唯一索引兜底，读取胜出的一方
		winner, findErr := s.findEntry(db, intentId, txHash, generation, model.EntryApply)
		if findErr == nil && winner != nil {
			return winner.Id, false, nil
		}
		return "", false, dbErr("apply ledger entry", err)
	}
	return entry.Id, true, nil
}

// ReverseLedgerEntry 插入金额取反的冲正分录
func (s *LedgerStore) ReverseLedgerEntry(ctx context.Context, entryId string) (string, error) {
	var reversalId string
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var entry model.LedgerEntryModel
		if err := tx.Where("id = ? AND kind = ?", entryId, model.EntryApply).Take(&entry).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return errs.NotFound("ledger entry %s", entryId)
			}
			return err
		}

		var reversed int64
		if err := tx.Model(&model.LedgerEntryModel{}).Where("reverses_entry_id = ?", entryId).Count(&reversed).Error; err != nil {
			return err
		}
		if reversed > 0 {
			return errs.NotFound("ledger entry %s already reversed", entryId)
		}

		id := entry.Id
		reversal := model.LedgerEntryModel{
			Id:              uuid.NewString(),
			AppliedAt:       s.now().UTC(),
			IntentId:        entry.IntentId,
			TxHash:          entry.TxHash,
			Generation:      entry.Generation,
			Kind:            model.EntryReversal,
			ProjectId:       entry.ProjectId,
			Amount:          entry.Amount.Neg(),
			ReversesEntryId: &id,
		}
		if err := tx.Create(&reversal).Error; err != nil {
			if errors.Is(err, gorm.ErrDuplicatedKey) {
				return errs.NotFound("ledger entry %s already reversed", entryId)
			}
			return err
		}
		reversalId = reversal.Id
		return nil
	})
	if err != nil {
		var appErr *errs.AppError
		if errors.As(err, &appErr) {
			return "", err
		}
		return "", dbErr("reverse ledger entry", err)
	}
	return reversalId, nil
}

// UpdateObservedBlock 补写首次观察时尚未打包的交易所在区块
func (s *LedgerStore) UpdateObservedBlock(ctx context.Context, txHash string, blockNumber uint64, blockHash string) error {
	err := s.db.WithContext(ctx).Model(&model.ObservedTransactionModel{}).
		Where("tx_hash = ? AND status = ?", txHash, model.ObservedActive).
		Updates(map[string]interface{}{
			"block_number":  blockNumber,
			"block_hash":    blockHash,
			"confirmations": 0,
			"updated_at":    s.now().UTC(),
		}).Error
	return dbErr("update observed block", err)
}

// UpdateObservedDepth 记录确认深度，只增不减
func (s *LedgerStore) UpdateObservedDepth(ctx context.Context, txHash string, depth uint64) error {
	err := s.db.WithContext(ctx).Model(&model.ObservedTransactionModel{}).
		Where("tx_hash = ? AND confirmations < ?", txHash, depth).
		Updates(map[string]interface{}{"confirmations": depth, "updated_at": s.now().UTC()}).Error
	return dbErr("update observed depth", err)
}

// RecordAttemptFailure 累加节点不可用次数，返回累计值
func (s *LedgerStore) RecordAttemptFailure(ctx context.Context, intentId string, cause error) (int, error) {
	msg := ""
	if cause != nil {
		msg = cause.Error()
	}
	var attempts int
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&model.IntentModel{}).Where("id = ?", intentId).
			Updates(map[string]interface{}{
				"attempts":   gorm.Expr("attempts + 1"),
				"last_error": msg,
			})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return errs.NotFound("intent %s", intentId)
		}
		return tx.Model(&model.IntentModel{}).Select("attempts").Where("id = ?", intentId).Scan(&attempts).Error
	})
	if err != nil {
		var appErr *errs.AppError
		if errors.As(err, &appErr) {
			return 0, err
		}
		return 0, dbErr("record attempt failure", err)
	}
	return attempts, nil
}

// ResetAttempts 节点恢复后清零
func (s *LedgerStore) ResetAttempts(ctx context.Context, intentId string) error {
	err := s.db.WithContext(ctx).Model(&model.IntentModel{}).
		Where("id = ? AND attempts > 0", intentId).
		Updates(map[string]interface{}{"attempts": 0, "last_error": ""}).Error
	return dbErr("reset attempts", err)
}

// claimObserved 新建观察记录，或重新激活已解绑的记录，返回本次认领代次
func claimObserved(tx *gorm.DB, obs ObservedTx, now time.Time) (int64, error) {
	var existing model.ObservedTransactionModel
	err := tx.Where("tx_hash = ?", obs.TxHash).Take(&existing).Error
	switch {
	case err == nil:
		if existing.Status != model.ObservedOrphaned {
			return 0, errStale
		}
		res := tx.Model(&model.ObservedTransactionModel{}).
			Where("id = ? AND status = ? AND generation = ?", existing.Id, model.ObservedOrphaned, existing.Generation).
			Updates(map[string]interface{}{
				"intent_id":     obs.IntentId,
				"block_number":  obs.BlockNumber,
				"block_hash":    obs.BlockHash,
				"confirmations": 0,
				"sender":        NormalizeAddress(obs.Sender),
				"recipient":     NormalizeAddress(obs.Recipient),
				"value":         obs.Value,
				"status":        model.ObservedActive,
				"generation":    existing.Generation + 1,
				"updated_at":    now,
			})
		if res.Error != nil {
			return 0, res.Error
		}
		if res.RowsAffected == 0 {
			return 0, errStale
		}
		return existing.Generation + 1, nil
	case !errors.Is(err, gorm.ErrRecordNotFound):
		return 0, err
	}

	row := model.ObservedTransactionModel{
		ObservedAt:  now,
		UpdatedAt:   now,
		TxHash:      obs.TxHash,
		IntentId:    obs.IntentId,
		BlockNumber: obs.BlockNumber,
		BlockHash:   obs.BlockHash,
		Sender:      NormalizeAddress(obs.Sender),
		Recipient:   NormalizeAddress(obs.Recipient),
		Value:       obs.Value,
		Status:      model.ObservedActive,
		Generation:  1,
	}
	if err := tx.Create(&row).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return 0, errStale
		}
		return 0, err
	}
	return row.Generation, nil
}

func (s *LedgerStore) findEntry(db *gorm.DB, intentId, txHash string, generation int64, kind model.EntryKind) (*model.LedgerEntryModel, error) {
	var entry model.LedgerEntryModel
	err := db.Where("intent_id = ? AND tx_hash = ? AND generation = ? AND kind = ?", intentId, txHash, generation, kind).Take(&entry).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, dbErr("find ledger entry", err)
	}
	return &entry, nil
}

func intentMissingOrStale(tx *gorm.DB, intentId string) error {
	var count int64
	if err := tx.Model(&model.IntentModel{}).Where("id = ?", intentId).Count(&count).Error; err != nil {
		return err
	}
	if count == 0 {
		return errs.NotFound("intent %s", intentId)
	}
	return errStale
}

// casResult 将事务结果折算为 (成功, 错误)，版本冲突不视为错误
func casResult(op string, err error) (bool, error) {
	if err == nil {
		return true, nil
	}
	if errors.Is(err, errStale) {
		return false, nil
	}
	var appErr *errs.AppError
	if errors.As(err, &appErr) {
		return false, err
	}
	return false, dbErr(op, err)
}

// dbErr 存储层故障统一视为暂不可用
func dbErr(op string, err error) error {
	if err == nil {
		return nil
	}
	return errs.Unavailable(op, err)
}
