package suborder

import (
	apperrors "github.com/xiebiao/aftersales/pkg/errors"
)

// 子单领域错误定义
var (
	// ErrRefundOrderNotFound 退款单不存在
	ErrRefundOrderNotFound = apperrors.New(apperrors.ErrCodeSubOrderNotFound, "退款单不存在")

	// ErrReturnOrderNotFound 退货单不存在
	ErrReturnOrderNotFound = apperrors.New(apperrors.ErrCodeSubOrderNotFound, "退货单不存在")

	// ErrExchangeOrderNotFound 换货单不存在
	ErrExchangeOrderNotFound = apperrors.New(apperrors.ErrCodeSubOrderNotFound, "换货单不存在")

	// ErrInvalidTransition 子单状态不允许此操作
	ErrInvalidTransition = apperrors.New(apperrors.ErrCodeStateConflict, "子单状态不允许此操作")

	// ErrRetryExhausted 退款重试次数已用完,需要人工处理
	ErrRetryExhausted = apperrors.New(apperrors.ErrCodeStateConflict, "退款重试次数已用完")

	// ErrTrackingRequired 快递公司和运单号必填
	ErrTrackingRequired = apperrors.New(apperrors.ErrCodeInvalidParams, "快递公司和运单号不能为空")

	// ErrInvalidAddress 地址不完整
	ErrInvalidAddress = apperrors.New(apperrors.ErrCodeInvalidParams, "收件人、电话、地址不能为空")

	// ErrReasonRequired 拒绝/失败原因必填
	ErrReasonRequired = apperrors.New(apperrors.ErrCodeInvalidParams, "原因不能为空")

	// ErrInvalidAmount 金额不合法
	ErrInvalidAmount = apperrors.New(apperrors.ErrCodeInvalidParams, "金额不能为负数")
)
