package handler

import (
	"context"
	"net/http"
	"strings"

	"github.com/blues/ilr/internal/model"
	"github.com/blues/ilr/internal/repository"
	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
)

// UserIdHeader 外部鉴权网关注入的调用方身份
const UserIdHeader = "X-User-Id"

// IntentService 意向生命周期
type IntentService interface {
	CreateIntent(ctx context.Context, userId string, projectId int64, amount decimal.Decimal, destinationWallet string) (string, error)
	GetStatus(ctx context.Context, intentId string) (*repository.IntentSnapshot, error)
	SubmitTransaction(ctx context.Context, intentId, txHash string) (*repository.IntentSnapshot, error)
}

// EntryReader 分录查询
type EntryReader interface {
	ListEntries(ctx context.Context, intentId string) ([]model.LedgerEntryModel, error)
}

type IntentHandler struct {
	service IntentService
	entries EntryReader
}

func NewIntentHandler(service IntentService, entries EntryReader) *IntentHandler {
	return &IntentHandler{service: service, entries: entries}
}

// CreateIntent 创建投资意向
func (h *IntentHandler) CreateIntent(c *gin.Context) {
	userId := strings.TrimSpace(c.GetHeader(UserIdHeader))
	if userId == "" {
		ErrorResponse(c, http.StatusUnauthorized, "missing "+UserIdHeader+" header")
		return
	}

	var req CreateIntentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		ErrorResponse(c, http.StatusBadRequest, err.Error())
		return
	}

	ctx := c.Request.Context()
	id, err := h.service.CreateIntent(ctx, userId, req.ProjectId, req.Amount, req.DestinationWallet)
	if err != nil {
		AppErrorResponse(c, err)
		return
	}
	snap, err := h.service.GetStatus(ctx, id)
	if err != nil {
		AppErrorResponse(c, err)
		return
	}
	SuccessResponse(c, http.StatusCreated, "intent created", ToIntentResponse(snap))
}

// GetIntent 查询意向状态
func (h *IntentHandler) GetIntent(c *gin.Context) {
	snap, err := h.service.GetStatus(c.Request.Context(), c.Param("id"))
	if err != nil {
		AppErrorResponse(c, err)
		return
	}
	SuccessResponse(c, http.StatusOK, "ok", ToIntentResponse(snap))
}

// SubmitTransaction 上报钱包广播的交易哈希
func (h *IntentHandler) SubmitTransaction(c *gin.Context) {
	var req SubmitTransactionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		ErrorResponse(c, http.StatusBadRequest, err.Error())
		return
	}

	snap, err := h.service.SubmitTransaction(c.Request.Context(), c.Param("id"), req.TxHash)
	if err != nil {
		AppErrorResponse(c, err)
		return
	}
	SuccessResponse(c, http.StatusAccepted, "transaction recorded", ToIntentResponse(snap))
}

// GetIntentEntries 查询意向的账本分录
func (h *IntentHandler) GetIntentEntries(c *gin.Context) {
	ctx := c.Request.Context()
	id := c.Param("id")
	if _, err := h.service.GetStatus(ctx, id); err != nil {
		AppErrorResponse(c, err)
		return
	}
	entries, err := h.entries.ListEntries(ctx, id)
	if err != nil {
		AppErrorResponse(c, err)
		return
	}
	SuccessResponse(c, http.StatusOK, "ok", gin.H{"entries": ToEntryResponseList(entries)})
}
