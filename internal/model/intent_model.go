package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// IntentState 投资意向状态
type IntentState string

const (
	IntentAwaitingSubmission IntentState = "AwaitingSubmission" // 等待用户转账
	IntentSubmitted          IntentState = "Submitted"          // 已观察到交易
	IntentConfirming         IntentState = "Confirming"         // 确认中
	IntentFinalized          IntentState = "Finalized"          // 已入账
	IntentReorged            IntentState = "Reorged"            // 交易被链重组移除
	IntentExpired            IntentState = "Expired"            // 超时未提交
	IntentFailed             IntentState = "Failed"             // 失败
)

// IsTerminal 终态不再被对账流程推进（Finalized 在重组窗口内仍会被复核）
func (s IntentState) IsTerminal() bool {
	switch s {
	case IntentFinalized, IntentExpired, IntentFailed:
		return true
	}
	return false
}

// IntentModel 投资意向
type IntentModel struct {
	Id        string    `json:"id" gorm:"primaryKey;type:varchar(36)"`
	CreatedAt time.Time `json:"created_at" gorm:"index"`
	UpdatedAt time.Time `json:"updated_at"`

	UserId            string          `json:"user_id" gorm:"type:varchar(64);index;not null"`
	ProjectId         int64           `json:"project_id" gorm:"index;not null"`
	Amount            decimal.Decimal `json:"amount" gorm:"type:decimal(38,18);not null"`
	DestinationWallet string          `json:"destination_wallet" gorm:"type:varchar(42);index:idx_intent_wallet_state;not null"` // 创建时的项目钱包快照
	SourceWallet      string          `json:"source_wallet" gorm:"type:varchar(42)"`
	CurrentTxHash     string          `json:"current_tx_hash" gorm:"type:varchar(66)"`
	ClaimGeneration   int64           `json:"claim_generation" gorm:"not null;default:0"` // 当前交易的认领代次，入账分录按此区分

	State     IntentState `json:"state" gorm:"type:varchar(24);index:idx_intent_wallet_state;not null"`
	Version   int64       `json:"version" gorm:"not null;default:1"`
	Attempts  int         `json:"attempts" gorm:"not null;default:0"` // 连续不可用次数
	LastError string      `json:"last_error" gorm:"type:text"`
}

// TableName 自定义表名
func (IntentModel) TableName() string {
	return "intent"
}

var intentTransitions = map[IntentState][]IntentState{
	IntentAwaitingSubmission: {IntentSubmitted, IntentExpired},
	IntentSubmitted:          {IntentConfirming, IntentReorged, IntentFailed},
	IntentConfirming:         {IntentFinalized, IntentReorged, IntentFailed},
	IntentFinalized:          {IntentReorged},
	IntentReorged:            {IntentAwaitingSubmission},
}

// CanTransition 判断状态迁移是否合法
func CanTransition(from, to IntentState) bool {
	for _, next := range intentTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}
