package errors

import (
	"errors"
	"fmt"
)

// AppError 自定义应用错误
// 设计说明：
// 1. Code用于客户端判断错误类型（不要直接暴露HTTP状态码）
// 2. Message是用户友好的提示信息
// 3. Field标记校验失败的字段（字段级校验错误才有）
// 4. Err是内部错误，仅记录到日志，不返回给客户端
type AppError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Field   string `json:"field,omitempty"`
	Err     error  `json:"-"`
}

func (e *AppError) Error() string {
	prefix := fmt.Sprintf("[%d]", e.Code)
	if e.Field != "" {
		prefix = fmt.Sprintf("[%d] %s:", e.Code, e.Field)
	}
	if e.Err != nil {
		return fmt.Sprintf("%s %s: %v", prefix, e.Message, e.Err)
	}
	return fmt.Sprintf("%s %s", prefix, e.Message)
}

// Unwrap 支持errors.Is和errors.As
func (e *AppError) Unwrap() error {
	return e.Err
}

// Is 按错误码比较，预定义错误经过WithField/Withf派生后仍能被errors.Is识别
func (e *AppError) Is(target error) bool {
	var t *AppError
	if !errors.As(target, &t) {
		return false
	}
	return t.Code == e.Code && t.Message == e.Message
}

// New 创建新的AppError
func New(code int, message string) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
	}
}

// Wrap 包装系统错误（如数据库错误、网络错误）
func Wrap(err error, message string) *AppError {
	return &AppError{
		Code:    ErrCodeInternal,
		Message: message,
		Err:     err,
	}
}

// Wrapf 格式化包装错误
func Wrapf(err error, format string, args ...interface{}) *AppError {
	return &AppError{
		Code:    ErrCodeInternal,
		Message: fmt.Sprintf(format, args...),
		Err:     err,
	}
}

// WithField 派生一个带字段名的副本（预定义错误是共享变量，不能直接修改）
func (e *AppError) WithField(field string) *AppError {
	cp := *e
	cp.Field = field
	return &cp
}

// Withf 派生一个附带上下文说明的副本，Message保持不变以便errors.Is匹配
func (e *AppError) Withf(format string, args ...interface{}) *AppError {
	cp := *e
	cp.Err = fmt.Errorf(format, args...)
	return &cp
}

// =========================================
// 错误码定义
// =========================================
// 规范：
// - 4xxxx: 客户端错误（参数错误、状态冲突、同步错误）
// - 5xxxx: 服务端错误（数据库异常、外部服务调用失败）

const (
	// 系统级错误码（50000-50099）
	ErrCodeInternal      = 50000 // 内部错误
	ErrCodeDatabaseError = 50001 // 数据库错误
	ErrCodeRedisError    = 50002 // Redis错误
	ErrCodeGatewayError  = 50003 // 退款网关错误

	// 认证授权错误（40100-40199）
	ErrCodeUnauthorized = 40100 // 未登录
	ErrCodeInvalidToken = 40101 // Token无效
	ErrCodeTokenExpired = 40102 // Token过期
	ErrCodeForbidden    = 40104 // 无权限

	// 资源错误（40400-40499）
	ErrCodeNotFound          = 40400 // 资源不存在(通用)
	ErrCodeCaseNotFound      = 40401 // 售后单不存在
	ErrCodeSubOrderNotFound  = 40402 // 子单不存在
	ErrCodeOrderLineNotFound = 40403 // 订单明细不存在

	// 业务规则错误（40000-40099）
	ErrCodeBusinessError    = 40000 // 业务错误(通用)
	ErrCodeStateConflict    = 40001 // 状态不允许此操作
	ErrCodeConcurrentUpdate = 40002 // 并发修改冲突
	ErrCodeQuantityExceeded = 40003 // 超出可退数量
	ErrCodeSyncError        = 40004 // 外部同步错误
	ErrCodeLockBusy         = 40005 // 资源正被处理
	ErrCodeDuplicateEntry   = 40009 // 重复记录(通用)

	// 参数错误（40900-40999）
	ErrCodeInvalidParams = 40900 // 参数错误
	ErrCodeBindError     = 40901 // 参数绑定失败
)

// =========================================
// 预定义错误（避免每次都New）
// =========================================

var (
	// 系统错误
	ErrInternal      = New(ErrCodeInternal, "系统内部错误")
	ErrDatabaseError = New(ErrCodeDatabaseError, "数据库错误")
	ErrRedisError    = New(ErrCodeRedisError, "缓存服务错误")

	// 认证授权
	ErrUnauthorized = New(ErrCodeUnauthorized, "请先登录")
	ErrInvalidToken = New(ErrCodeInvalidToken, "无效的Token")
	ErrTokenExpired = New(ErrCodeTokenExpired, "Token已过期")
	ErrForbidden    = New(ErrCodeForbidden, "无权限访问")

	// 业务规则
	ErrStateConflict    = New(ErrCodeStateConflict, "当前状态不允许此操作")
	ErrConcurrentUpdate = New(ErrCodeConcurrentUpdate, "售后单已被其他操作修改，请刷新后重试")
	ErrLockBusy         = New(ErrCodeLockBusy, "该记录正在处理中，请稍后重试")

	// 参数错误
	ErrInvalidParams = New(ErrCodeInvalidParams, "参数错误")
	ErrBindError     = New(ErrCodeBindError, "参数格式错误")
)

// =========================================
// 辅助函数
// =========================================

// IsAppError 判断是否为AppError
func IsAppError(err error) bool {
	var appErr *AppError
	return errors.As(err, &appErr)
}

// GetAppError 提取AppError（如果不是AppError则包装成Internal错误）
func GetAppError(err error) *AppError {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr
	}
	return Wrap(err, "系统内部错误")
}

// CodeOf 返回错误码，非AppError返回ErrCodeInternal
func CodeOf(err error) int {
	return GetAppError(err).Code
}

// IsValidation 是否为参数校验类错误
func IsValidation(err error) bool {
	code := CodeOf(err)
	return code >= 40900 && code < 41000
}

// IsStateConflict 是否为状态冲突类错误（包括并发修改）
func IsStateConflict(err error) bool {
	code := CodeOf(err)
	return code == ErrCodeStateConflict || code == ErrCodeConcurrentUpdate
}
