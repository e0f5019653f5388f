package repository

import (
	"context"

	"github.com/blues/ilr/internal/model"
	"gorm.io/gorm"
)

// PendingEvents 读取尚未投递的事件
func (s *LedgerStore) PendingEvents(ctx context.Context, limit int) ([]model.IntentEventModel, error) {
	var events []model.IntentEventModel
	query := s.db.WithContext(ctx).Where("delivered_at IS NULL").Order("id ASC")
	if limit > 0 {
		query = query.Limit(limit)
	}
	if err := query.Find(&events).Error; err != nil {
		return nil, dbErr("load pending events", err)
	}
	return events, nil
}

// MarkEventDelivered 标记投递成功
func (s *LedgerStore) MarkEventDelivered(ctx context.Context, id int64) error {
	now := s.now().UTC()
	err := s.db.WithContext(ctx).Model(&model.IntentEventModel{}).
		Where("id = ? AND delivered_at IS NULL", id).
		Updates(map[string]interface{}{
			"delivered_at": &now,
			"attempts":     gorm.Expr("attempts + 1"),
			"last_error":   "",
		}).Error
	return dbErr("mark event delivered", err)
}

// MarkEventFailed 记录投递失败，事件保留等待下次投递
func (s *LedgerStore) MarkEventFailed(ctx context.Context, id int64, cause error) error {
	msg := ""
	if cause != nil {
		msg = cause.Error()
	}
	err := s.db.WithContext(ctx).Model(&model.IntentEventModel{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"attempts":   gorm.Expr("attempts + 1"),
			"last_error": msg,
		}).Error
	return dbErr("mark event failed", err)
}
