package oms

import (
	apperrors "github.com/xiebiao/aftersales/pkg/errors"
)

// OMS同步错误定义
var (
	// ErrOmsDuplicate 创建时售后单号已存在
	ErrOmsDuplicate = apperrors.New(apperrors.ErrCodeDuplicateEntry, "OMS售后单号已存在")

	// ErrUnknownStatus 无法映射的OMS状态
	ErrUnknownStatus = apperrors.New(apperrors.ErrCodeSyncError, "未知的OMS售后状态")

	// ErrUnknownType 无法映射的OMS售后类型
	ErrUnknownType = apperrors.New(apperrors.ErrCodeInvalidParams, "未知的OMS售后类型")
)
