package aftersales

import (
	apperrors "github.com/xiebiao/aftersales/pkg/errors"
)

// 售后领域错误定义
var (
	// ErrCaseNotFound 售后单不存在
	ErrCaseNotFound = apperrors.New(apperrors.ErrCodeCaseNotFound, "售后单不存在")

	// ErrOrderLineNotFound 订单明细不存在
	ErrOrderLineNotFound = apperrors.New(apperrors.ErrCodeOrderLineNotFound, "订单明细不存在")

	// ErrSkuNotFound 换货商品不存在
	ErrSkuNotFound = apperrors.New(apperrors.ErrCodeNotFound, "换货商品不存在")

	// ErrInvalidTransition 当前状态不允许此操作
	ErrInvalidTransition = apperrors.New(apperrors.ErrCodeStateConflict, "售后单状态不允许此操作")

	// ErrModifyLimitReached 修改次数已用完
	ErrModifyLimitReached = apperrors.New(apperrors.ErrCodeStateConflict, "修改次数已达上限")

	// ErrRefundSettled 已完成的售后单不能再改退款金额
	ErrRefundSettled = apperrors.New(apperrors.ErrCodeStateConflict, "退款已完成,不能修改退款金额")

	// ErrNotTimeoutEligible 售后单未超时或状态不在超时处理范围
	ErrNotTimeoutEligible = apperrors.New(apperrors.ErrCodeStateConflict, "售后单不满足超时处理条件")

	// ErrSnapshotFrozen 商品快照只能写入一次
	ErrSnapshotFrozen = apperrors.New(apperrors.ErrCodeBusinessError, "商品快照已固定,不能修改")

	// ErrGiftLine 赠品不支持售后
	ErrGiftLine = apperrors.New(apperrors.ErrCodeInvalidParams, "赠品不支持售后")

	// ErrQuantityExceeded 超出可退数量
	ErrQuantityExceeded = apperrors.New(apperrors.ErrCodeQuantityExceeded, "申请数量超出可退数量")

	// ErrInvalidQuantity 数量不合法
	ErrInvalidQuantity = apperrors.New(apperrors.ErrCodeInvalidParams, "售后数量必须大于0")

	// ErrInvalidType 售后类型不合法
	ErrInvalidType = apperrors.New(apperrors.ErrCodeInvalidParams, "售后类型不合法")

	// ErrInvalidReason 售后原因不合法
	ErrInvalidReason = apperrors.New(apperrors.ErrCodeInvalidParams, "售后原因不合法")

	// ErrInvalidRefundAmount 退款金额不合法
	ErrInvalidRefundAmount = apperrors.New(apperrors.ErrCodeInvalidParams, "退款金额必须在0到原退款金额之间")

	// ErrReasonRequired 拒绝原因/修改原因必填
	ErrReasonRequired = apperrors.New(apperrors.ErrCodeInvalidParams, "原因不能为空")

	// ErrNothingToModify 修改内容为空
	ErrNothingToModify = apperrors.New(apperrors.ErrCodeInvalidParams, "至少需要修改一个字段")

	// ErrDuplicateAftersalesNo 售后单号重复
	ErrDuplicateAftersalesNo = apperrors.New(apperrors.ErrCodeDuplicateEntry, "售后单号已存在")

	// ErrTooManyProofImages 凭证图片过多
	ErrTooManyProofImages = apperrors.New(apperrors.ErrCodeInvalidParams, "凭证图片最多9张").WithField("proof_images")

	// ErrInvalidProofImage 凭证图片地址不合法
	ErrInvalidProofImage = apperrors.New(apperrors.ErrCodeInvalidParams, "凭证图片必须是http(s)地址").WithField("proof_images")

	// ErrDescriptionTooLong 问题描述过长
	ErrDescriptionTooLong = apperrors.New(apperrors.ErrCodeInvalidParams, "问题描述最多500字").WithField("description")
)
