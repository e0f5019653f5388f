package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// EntryKind 分录类型
type EntryKind string

const (
	EntryApply    EntryKind = "apply"
	EntryReversal EntryKind = "reversal" // 冲正，金额为负
)

// LedgerEntryModel 不可变的入账分录，只插入不修改
type LedgerEntryModel struct {
	Id        string    `json:"id" gorm:"primaryKey;type:varchar(36)"`
	AppliedAt time.Time `json:"applied_at"`

	IntentId        string          `json:"intent_id" gorm:"type:varchar(36);uniqueIndex:idx_entry_key,priority:1;not null"`
	TxHash          string          `json:"tx_hash" gorm:"type:varchar(66);uniqueIndex:idx_entry_key,priority:2;not null"`
	Generation      int64           `json:"generation" gorm:"uniqueIndex:idx_entry_key,priority:3;not null;default:1"` // 交易认领代次
	Kind            EntryKind       `json:"kind" gorm:"type:varchar(16);uniqueIndex:idx_entry_key,priority:4;not null"`
	ProjectId       int64           `json:"project_id" gorm:"index;not null"`
	Amount          decimal.Decimal `json:"amount" gorm:"type:decimal(38,18);not null"`
	ReversesEntryId *string         `json:"reverses_entry_id" gorm:"type:varchar(36);uniqueIndex"`
}

// TableName 自定义表名
func (LedgerEntryModel) TableName() string {
	return "ledger_entry"
}
