package handler

import (
	"context"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
)

// RaisedReader 项目募集汇总
type RaisedReader interface {
	ProjectRaisedTotal(ctx context.Context, projectId int64) (decimal.Decimal, error)
}

type ProjectHandler struct {
	ledger RaisedReader
}

func NewProjectHandler(ledger RaisedReader) *ProjectHandler {
	return &ProjectHandler{ledger: ledger}
}

// GetProjectRaised 获取项目净募集金额
func (h *ProjectHandler) GetProjectRaised(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		ErrorResponse(c, http.StatusBadRequest, "invalid project id")
		return
	}

	total, err := h.ledger.ProjectRaisedTotal(c.Request.Context(), id)
	if err != nil {
		AppErrorResponse(c, err)
		return
	}
	SuccessResponse(c, http.StatusOK, "ok", RaisedResponse{ProjectId: id, Raised: total.String()})
}
