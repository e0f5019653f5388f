package handler

import (
	"time"

	"github.com/blues/ilr/internal/model"
	"github.com/blues/ilr/internal/repository"
	"github.com/shopspring/decimal"
)

// 通用响应结构
type Response struct {
	Success   bool        `json:"success"`
	Code      string      `json:"code,omitempty"`
	Message   string      `json:"message"`
	Data      interface{} `json:"data"`
	Retriable bool        `json:"retriable,omitempty"` // 调用方可稍后重试
}

// CreateIntentRequest 创建意向请求，调用方身份取自 X-User-Id
type CreateIntentRequest struct {
	ProjectId         int64           `json:"projectId" binding:"required"`
	Amount            decimal.Decimal `json:"amount"`
	DestinationWallet string          `json:"destinationWallet"`
}

// SubmitTransactionRequest 上报交易哈希
type SubmitTransactionRequest struct {
	TxHash string `json:"txHash" binding:"required"`
}

// IntentResponse 意向状态
type IntentResponse struct {
	IntentId          string    `json:"intentId"`
	UserId            string    `json:"userId"`
	ProjectId         int64     `json:"projectId"`
	State             string    `json:"state"`
	Amount            string    `json:"amount"`
	DestinationWallet string    `json:"destinationWallet"`
	SourceWallet      string    `json:"sourceWallet,omitempty"`
	ObservedTxHash    string    `json:"observedTxHash,omitempty"`
	BlockNumber       *uint64   `json:"blockNumber,omitempty"`
	Confirmations     *uint64   `json:"confirmations,omitempty"`
	AppliedAmount     *string   `json:"appliedAmount,omitempty"`
	LastError         string    `json:"lastError,omitempty"`
	Version           int64     `json:"version"`
	CreatedAt         time.Time `json:"createdAt"`
	UpdatedAt         time.Time `json:"updatedAt"`
}

// EntryResponse 账本分录
type EntryResponse struct {
	EntryId         string    `json:"entryId"`
	Kind            string    `json:"kind"`
	TxHash          string    `json:"txHash"`
	Amount          string    `json:"amount"`
	ReversesEntryId *string   `json:"reversesEntryId,omitempty"`
	AppliedAt       time.Time `json:"appliedAt"`
}

// RaisedResponse 项目净募集金额
type RaisedResponse struct {
	ProjectId int64  `json:"projectId"`
	Raised    string `json:"raised"`
}

// ToIntentResponse 将意向快照转换为响应模型
func ToIntentResponse(snap *repository.IntentSnapshot) IntentResponse {
	resp := IntentResponse{
		IntentId:          snap.Id,
		UserId:            snap.UserId,
		ProjectId:         snap.ProjectId,
		State:             string(snap.State),
		Amount:            snap.Amount.String(),
		DestinationWallet: snap.DestinationWallet,
		SourceWallet:      snap.SourceWallet,
		ObservedTxHash:    snap.CurrentTxHash,
		LastError:         snap.LastError,
		Version:           snap.Version,
		CreatedAt:         snap.CreatedAt,
		UpdatedAt:         snap.UpdatedAt,
	}
	if tx := snap.Transaction; tx != nil && tx.BlockNumber != nil {
		block, depth := *tx.BlockNumber, tx.Confirmations
		resp.BlockNumber = &block
		resp.Confirmations = &depth
	}
	if snap.State == model.IntentFinalized || !snap.AppliedAmount.IsZero() {
		applied := snap.AppliedAmount.String()
		resp.AppliedAmount = &applied
	}
	return resp
}

// ToEntryResponseList 将分录列表转换为响应模型
func ToEntryResponseList(entries []model.LedgerEntryModel) []EntryResponse {
	result := make([]EntryResponse, len(entries))
	for i, e := range entries {
		result[i] = EntryResponse{
			EntryId:         e.Id,
			Kind:            string(e.Kind),
			TxHash:          e.TxHash,
			Amount:          e.Amount.String(),
			ReversesEntryId: e.ReversesEntryId,
			AppliedAt:       e.AppliedAt,
		}
	}
	return result
}
