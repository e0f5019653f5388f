package model

import (
	"time"
)

// IntentEventModel 状态变更事件发件箱，与状态变更同事务写入
type IntentEventModel struct {
	Id        int64     `json:"id" gorm:"primaryKey"`
	CreatedAt time.Time `json:"created_at" gorm:"index"`

	IntentId  string      `json:"intent_id" gorm:"type:varchar(36);uniqueIndex:idx_event_version,priority:1;not null"`
	Version   int64       `json:"version" gorm:"uniqueIndex:idx_event_version,priority:2;not null"`
	FromState IntentState `json:"from_state" gorm:"type:varchar(24)"`
	ToState   IntentState `json:"to_state" gorm:"type:varchar(24);not null"`
	TxHash    string      `json:"tx_hash" gorm:"type:varchar(66)"`
	Reason    string      `json:"reason" gorm:"type:text"`

	DeliveredAt *time.Time `json:"delivered_at" gorm:"index"`
	Attempts    int        `json:"attempts" gorm:"default:0"`
	LastError   string     `json:"last_error" gorm:"type:text"`
}

// TableName 自定义表名
func (IntentEventModel) TableName() string {
	return "intent_event"
}
