package model

import (
	"time"
)

// ProjectModel 项目目录快照，由外部项目服务维护，这里只读取收款钱包
type ProjectModel struct {
	Id        int64     `json:"id" gorm:"primaryKey"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	Title         string        `json:"title" gorm:"not null"`
	WalletAddress string        `json:"wallet_address" gorm:"type:varchar(42)"` // 项目收款钱包
	Status        ProjectStatus `json:"status" gorm:"type:varchar(16);default:'active'"`
}

// ProjectStatus 项目状态
type ProjectStatus string

const (
	ProjectStatusActive ProjectStatus = "active" // 可接受投资
	ProjectStatusClosed ProjectStatus = "closed" // 已关闭
)

// TableName 自定义表名
func (ProjectModel) TableName() string {
	return "project"
}
