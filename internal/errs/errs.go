package errs

import (
	"errors"
	"fmt"
	"net/http"
)

// ErrorCode 错误码
type ErrorCode string

const (
	CodeValidation  ErrorCode = "VALIDATION_FAILED"
	CodeUnavailable ErrorCode = "UNAVAILABLE"
	CodeConflict    ErrorCode = "CONFLICT"
	CodeNotFound    ErrorCode = "NOT_FOUND"
	CodeInternal    ErrorCode = "INTERNAL_ERROR"
)

// 哨兵错误，配合 errors.Is 使用
var (
	ErrValidation  = errors.New("validation failed")
	ErrUnavailable = errors.New("dependency unavailable")
	ErrConflict    = errors.New("version conflict")
	ErrNotFound    = errors.New("not found")
)

// AppError 业务错误
type AppError struct {
	Code       ErrorCode
	Message    string
	Err        error
	HTTPStatus int
	Retriable  bool
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s (%v)", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Err
}

// Is 让 errors.Is(err, ErrNotFound) 等对同码错误成立
func (e *AppError) Is(target error) bool {
	switch target {
	case ErrValidation:
		return e.Code == CodeValidation
	case ErrUnavailable:
		return e.Code == CodeUnavailable
	case ErrConflict:
		return e.Code == CodeConflict
	case ErrNotFound:
		return e.Code == CodeNotFound
	}
	return false
}

// New 创建业务错误
func New(code ErrorCode, message string, err error) *AppError {
	appErr := &AppError{
		Code:    code,
		Message: message,
		Err:     err,
	}
	appErr.setDefaults()
	return appErr
}

func (e *AppError) setDefaults() {
	switch e.Code {
	case CodeValidation:
		e.HTTPStatus = http.StatusBadRequest
		e.Retriable = false
	case CodeUnavailable:
		e.HTTPStatus = http.StatusServiceUnavailable
		e.Retriable = true
	case CodeConflict:
		e.HTTPStatus = http.StatusConflict
		e.Retriable = true
	case CodeNotFound:
		e.HTTPStatus = http.StatusNotFound
		e.Retriable = false
	default:
		e.HTTPStatus = http.StatusInternalServerError
		e.Retriable = false
	}
}

func Validation(format string, args ...interface{}) *AppError {
	return New(CodeValidation, fmt.Sprintf(format, args...), nil)
}

func NotFound(format string, args ...interface{}) *AppError {
	return New(CodeNotFound, fmt.Sprintf(format, args...), nil)
}

func Conflict(format string, args ...interface{}) *AppError {
	return New(CodeConflict, fmt.Sprintf(format, args...), nil)
}

// Unavailable 包装节点或存储的瞬时故障
func Unavailable(operation string, err error) *AppError {
	return New(CodeUnavailable, fmt.Sprintf("%s unavailable", operation), err)
}

func Internal(operation string, err error) *AppError {
	return New(CodeInternal, fmt.Sprintf("%s failed", operation), err)
}

// HTTPStatus 返回错误对应的HTTP状态码
func HTTPStatus(err error) int {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.HTTPStatus
	}
	return http.StatusInternalServerError
}

// IsRetriable 判断错误是否可重试
func IsRetriable(err error) bool {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Retriable
	}
	return false
}
