package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
)

// Pinger 存储连通性
type Pinger interface {
	Ping(ctx context.Context) error
}

// HeightReader 链高度
type HeightReader interface {
	GetBlockHeight(ctx context.Context) (uint64, error)
}

type HealthHandler struct {
	db    Pinger
	chain HeightReader
}

func NewHealthHandler(db Pinger, chain HeightReader) *HealthHandler {
	return &HealthHandler{db: db, chain: chain}
}

// Health 健康检查：数据库与链节点均可用时返回 200
func (h *HealthHandler) Health(c *gin.Context) {
	ctx := c.Request.Context()
	status := http.StatusOK
	body := gin.H{"status": "ok", "service": "investment-ledger-reconciliation"}

	if err := h.db.Ping(ctx); err != nil {
		status = http.StatusServiceUnavailable
		body["status"] = "degraded"
		body["database"] = err.Error()
	} else {
		body["database"] = "ok"
	}

	if height, err := h.chain.GetBlockHeight(ctx); err != nil {
		status = http.StatusServiceUnavailable
		body["status"] = "degraded"
		body["chain"] = err.Error()
	} else {
		body["chain"] = "ok"
		body["height"] = height
	}

	c.JSON(status, body)
}
