package api

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/haolipeng/firewall_ledger/pkg/types"
	"github.com/labstack/echo/v4"
	"github.com/sirupsen/logrus"
)

// 错误代码常量
const (
	// 通用错误
	ErrCodeInternalServerError = http.StatusInternalServerError // 服务器内部错误
	ErrCodeBadRequest          = http.StatusBadRequest          // 请求参数错误
	ErrCodeNotFound            = http.StatusNotFound            // 资源不存在
	ErrCodeConflict            = http.StatusConflict            // 资源冲突

	// 规则相关错误
	ErrCodeRuleNotFound       = http.StatusNotFound   // 规则不存在
	ErrCodeRuleAlreadyExists  = http.StatusConflict   // 规则已存在
	ErrCodeInvalidRuleFormat  = http.StatusBadRequest // 规则格式无效
	ErrCodeRuleValidationFail = http.StatusBadRequest // 规则验证失败

	// 防火墙相关错误
	ErrCodeFirewallStopped = http.StatusServiceUnavailable // 防火墙未运行
)

// Response 统一响应结构
type Response struct {
	Code    int         `json:"code"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

// APIError 自定义接口错误类型
type APIError struct {
	Code    int         // HTTP 状态码
	Message string      // 错误消息
	Err     error       // 原始错误
	Data    interface{} // 附加数据（可选）
}

// Error 实现 error 接口
func (e *APIError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *APIError) Unwrap() error {
	return e.Err
}

// NewAPIError 创建新的接口错误
func NewAPIError(code int, message string, err error) *APIError {
	return &APIError{
		Code:    code,
		Message: message,
		Err:     err,
	}
}

// NewBadRequestError 创建请求参数错误
func NewBadRequestError(err error) *APIError {
	return &APIError{
		Code:    ErrCodeBadRequest,
		Message: "请求参数错误",
		Err:     err,
	}
}

// NewRuleIDEmptyError 创建规则ID为空错误
func NewRuleIDEmptyError() *APIError {
	return &APIError{
		Code:    ErrCodeBadRequest,
		Message: "规则ID不能为空",
	}
}

// NewRuleNotFoundError 创建规则不存在错误
func NewRuleNotFoundError(ruleID string) *APIError {
	return &APIError{
		Code:    ErrCodeRuleNotFound,
		Message: fmt.Sprintf("规则 %s 不存在", ruleID),
	}
}

// NewRuleAlreadyExistsError 创建规则已存在错误
func NewRuleAlreadyExistsError(ruleID string) *APIError {
	return &APIError{
		Code:    ErrCodeRuleAlreadyExists,
		Message: fmt.Sprintf("规则 %s 已存在", ruleID),
	}
}

// NewInvalidRuleFormatError 创建规则格式无效错误
func NewInvalidRuleFormatError(err error) *APIError {
	return &APIError{
		Code:    ErrCodeInvalidRuleFormat,
		Message: "规则格式无效",
		Err:     err,
	}
}

// NewRuleValidationError 创建规则验证失败错误
func NewRuleValidationError(err error) *APIError {
	return &APIError{
		Code:    ErrCodeRuleValidationFail,
		Message: "规则验证失败",
		Err:     err,
	}
}

// NewBlockNotFoundError 创建区块不存在错误
func NewBlockNotFoundError(index int) *APIError {
	return &APIError{
		Code:    ErrCodeNotFound,
		Message: fmt.Sprintf("区块 %d 不存在", index),
	}
}

// NewInternalServerError 创建服务器内部错误
func NewInternalServerError(err error) *APIError {
	return &APIError{
		Code:    ErrCodeInternalServerError,
		Message: "服务器内部错误",
		Err:     err,
	}
}

// toAPIError 将领域错误转换为接口错误
func toAPIError(err error) *APIError {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr
	}

	var cfgErr *types.ConfigError
	switch {
	case errors.As(err, &cfgErr):
		return &APIError{
			Code:    ErrCodeBadRequest,
			Message: "配置无效",
			Err:     err,
			Data: map[string]interface{}{
				"field":  cfgErr.Field,
				"value":  cfgErr.Value,
				"reason": cfgErr.Reason,
			},
		}
	case errors.Is(err, types.ErrInvalidConfig):
		return &APIError{Code: ErrCodeBadRequest, Message: "配置无效", Err: err}
	case errors.Is(err, types.ErrFirewallStopped):
		return &APIError{Code: ErrCodeFirewallStopped, Message: "防火墙未运行", Err: err}
	case errors.Is(err, types.ErrInvalidBlock):
		return &APIError{Code: ErrCodeConflict, Message: "区块无效", Err: err}
	}
	return NewInternalServerError(err)
}

// HandleError 统一错误处理函数
func HandleError(c echo.Context, err error) error {
	// 记录错误日志
	logrus.WithFields(logrus.Fields{
		"error":      err.Error(),
		"request_id": c.Response().Header().Get(echo.HeaderXRequestID),
		"path":       c.Request().URL.Path,
		"method":     c.Request().Method,
	}).Error("API 错误")

	apiErr := toAPIError(err)
	resp := Response{
		Code:    apiErr.Code,
		Message: apiErr.Message,
		Data:    apiErr.Data,
	}

	// 调试模式下返回详细错误
	if apiErr.Err != nil && resp.Data == nil && IsDebugMode() {
		resp.Data = map[string]string{
			"error_detail": apiErr.Err.Error(),
		}
	}

	return c.JSON(apiErr.Code, resp)
}

var debugMode bool

// SetDebugMode 设置是否在错误响应中返回详细信息
func SetDebugMode(enabled bool) {
	debugMode = enabled
}

// IsDebugMode 判断是否为调试模式
func IsDebugMode() bool {
	return debugMode
}

func respondOK(c echo.Context, message string, data interface{}) error {
	return c.JSON(http.StatusOK, Response{
		Code:    http.StatusOK,
		Message: message,
		Data:    data,
	})
}
