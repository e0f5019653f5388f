package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// ObservedStatus 观察到的交易是否仍挂在意向上
type ObservedStatus string

const (
	ObservedActive   ObservedStatus = "active"
	ObservedOrphaned ObservedStatus = "orphaned" // 重组后解绑，可被重新认领
)

// ObservedTransactionModel 与意向匹配的链上交易
type ObservedTransactionModel struct {
	Id         int64     `json:"id" gorm:"primaryKey"`
	ObservedAt time.Time `json:"observed_at"`
	UpdatedAt  time.Time `json:"updated_at"`

	TxHash        string          `json:"tx_hash" gorm:"type:varchar(66);uniqueIndex;not null"`
	IntentId      string          `json:"intent_id" gorm:"type:varchar(36);index;not null"`
	BlockNumber   *uint64         `json:"block_number"` // 未打包时为空
	BlockHash     string          `json:"block_hash" gorm:"type:varchar(66)"`
	Confirmations uint64          `json:"confirmations" gorm:"not null;default:0"`
	Sender        string          `json:"sender" gorm:"type:varchar(42)"`
	Recipient     string          `json:"recipient" gorm:"type:varchar(42);not null"`
	Value         decimal.Decimal `json:"value" gorm:"type:decimal(38,18);not null"`
	Status        ObservedStatus  `json:"status" gorm:"type:varchar(16);not null;default:'active'"`
	Generation    int64           `json:"generation" gorm:"not null;default:1"` // 认领代次，解绑后重新认领时递增
}

// TableName 自定义表名
func (ObservedTransactionModel) TableName() string {
	return "observed_transaction"
}
