package errors

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// ErrorResponse 错误响应结构
type ErrorResponse struct {
	Code    ErrorCode      `json:"code"`
	Message string         `json:"msg"`
	Details map[string]any `json:"details,omitempty"`
}

var errorStatusMap = map[ErrorCode]int{
	ErrInternal:         http.StatusInternalServerError,
	ErrStoreUnavailable: http.StatusServiceUnavailable,

	ErrUnauthorized:       http.StatusUnauthorized,
	ErrForbidden:          http.StatusForbidden,
	ErrInvalidCredentials: http.StatusUnauthorized,

	ErrBadRequest:       http.StatusBadRequest,
	ErrNotFound:         http.StatusNotFound,
	ErrResourceExists:   http.StatusConflict,
	ErrMutationInFlight: http.StatusConflict,

	ErrRateLimitExceeded:     http.StatusTooManyRequests,
	ErrQuotaExceeded:         http.StatusTooManyRequests,
	ErrInvalidTransition:     http.StatusConflict,
	ErrMissingReason:         http.StatusBadRequest,
	ErrConflictingTransition: http.StatusConflict,
}

// StatusOf 错误码对应的 HTTP 状态码
func StatusOf(code ErrorCode) int {
	if status, ok := errorStatusMap[code]; ok {
		return status
	}
	return http.StatusInternalServerError
}

// HandleError 统一错误响应，内部错误不把底层信息透出
func HandleError(c *gin.Context, err error) {
	_ = c.Error(err)
	code := CodeOf(err)
	resp := ErrorResponse{Code: code, Message: "internal server error"}
	var appErr *AppError
	if As(err, &appErr) {
		resp.Message = appErr.Message
		resp.Details = appErr.Details
	}
	c.JSON(StatusOf(code), resp)
}

// HandleSuccess 统一成功响应
func HandleSuccess(c *gin.Context, data any) {
	c.JSON(http.StatusOK, gin.H{"code": 0, "data": data})
}
