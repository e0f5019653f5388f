package handler

import (
	"errors"
	"net/http"

	"github.com/blues/ilr/internal/errs"
	"github.com/blues/ilr/internal/logger"
	"github.com/gin-gonic/gin"
)

// SuccessResponse 成功响应
func SuccessResponse(c *gin.Context, statusCode int, message string, data interface{}) {
	c.JSON(statusCode, Response{
		Success: true,
		Message: message,
		Data:    data,
	})
}

// ErrorResponse 错误响应
func ErrorResponse(c *gin.Context, statusCode int, message string) {
	c.JSON(statusCode, Response{
		Success: false,
		Message: message,
		Data:    nil,
	})
}

// AppErrorResponse 按错误码映射HTTP状态，未归类的错误按内部错误处理
func AppErrorResponse(c *gin.Context, err error) {
	var appErr *errs.AppError
	if !errors.As(err, &appErr) {
		appErr = errs.Internal(c.Request.Method+" "+c.FullPath(), err)
	}

	status := errs.HTTPStatus(appErr)
	message := appErr.Message
	if status >= http.StatusInternalServerError {
		logger.Error("Request %s %s failed: %v", c.Request.Method, c.FullPath(), err)
	}
	if appErr.Code == errs.CodeInternal {
		message = "internal error"
	}
	c.JSON(status, Response{
		Success:   false,
		Code:      string(appErr.Code),
		Message:   message,
		Retriable: errs.IsRetriable(appErr),
	})
}
