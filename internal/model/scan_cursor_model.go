package model

import (
	"time"
)

// ScanCursorModel 区块扫描检查点，丢失只会导致重扫
type ScanCursorModel struct {
	ChainId   int64     `json:"chain_id" gorm:"primaryKey;autoIncrement:false"`
	NextBlock uint64    `json:"next_block" gorm:"not null"`
	UpdatedAt time.Time `json:"updated_at"`
}

// TableName 自定义表名
func (ScanCursorModel) TableName() string {
	return "scan_cursor"
}
