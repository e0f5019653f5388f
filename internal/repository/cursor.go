package repository

import (
	"context"
	"errors"

	"github.com/blues/ilr/internal/model"
	"gorm.io/gorm"
)

// EnsureCursor 读取扫描检查点，不存在时以 start 初始化
func (s *LedgerStore) EnsureCursor(ctx context.Context, chainId int64, start uint64) (uint64, error) {
	db := s.db.WithContext(ctx)

	var cursor model.ScanCursorModel
	err := db.Where("chain_id = ?", chainId).Take(&cursor).Error
	if err == nil {
		return cursor.NextBlock, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return 0, dbErr("load scan cursor", err)
	}

	cursor = model.ScanCursorModel{ChainId: chainId, NextBlock: start, UpdatedAt: s.now().UTC()}
	if err := db.Create(&cursor).Error; err != nil {
		// 其他进程先一步初始化
		if err := db.Where("chain_id = ?", chainId).Take(&cursor).Error; err != nil {
			return 0, dbErr("init scan cursor", err)
		}
	}
	return cursor.NextBlock, nil
}

// AdvanceCursor 仅当检查点仍为 from 时推进到 to
func (s *LedgerStore) AdvanceCursor(ctx context.Context, chainId int64, from, to uint64) (bool, error) {
	res := s.db.WithContext(ctx).Model(&model.ScanCursorModel{}).
		Where("chain_id = ? AND next_block = ?", chainId, from).
		Updates(map[string]interface{}{"next_block": to, "updated_at": s.now().UTC()})
	if res.Error != nil {
		return false, dbErr("advance scan cursor", res.Error)
	}
	return res.RowsAffected > 0, nil
}

// RewindCursor 链高度回退时将检查点拉回
func (s *LedgerStore) RewindCursor(ctx context.Context, chainId int64, to uint64) error {
	err := s.db.WithContext(ctx).Model(&model.ScanCursorModel{}).
		Where("chain_id = ? AND next_block > ?", chainId, to).
		Updates(map[string]interface{}{"next_block": to, "updated_at": s.now().UTC()}).Error
	return dbErr("rewind scan cursor", err)
}
