package suborder

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// MaxRefundRetry 退款最多失败次数,达到后需要人工处理
const MaxRefundRetry = 3

// RefundStatus 退款单状态
type RefundStatus string

const (
	RefundStatusPending    RefundStatus = "PENDING"    // 待退款
	RefundStatusProcessing RefundStatus = "PROCESSING" // 退款中(已提交网关)
	RefundStatusSuccess    RefundStatus = "SUCCESS"    // 退款成功
	RefundStatusFailed     RefundStatus = "FAILED"     // 退款失败
)

// RefundOrder 退款单
// 教学要点:
// 1. 只持有CaseID(反向引用),售后单不持有子单集合
// 2. RefundNo构造时生成,之后不可修改
// 3. 失败自动累加RetryCount,CanRetry决定能否重新提交
type RefundOrder struct {
	ID            uint
	RefundNo      string
	CaseID        uint
	OrderID       string
	Amount        decimal.Decimal
	Status        RefundStatus
	TransactionNo string // 网关流水号(成功时返回)
	FailureReason string
	RetryCount    int
	ProcessingAt  *time.Time
	SucceededAt   *time.Time
	FailedAt      *time.Time
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// NewRefundOrder 创建退款单
func NewRefundOrder(caseID uint, orderID string, amount decimal.Decimal, now time.Time) (*RefundOrder, error) {
	if amount.IsNegative() {
		return nil, ErrInvalidAmount
	}
	return &RefundOrder{
		RefundNo:  GenerateNo(PrefixRefund, now),
		CaseID:    caseID,
		OrderID:   orderID,
		Amount:    amount,
		Status:    RefundStatusPending,
		CreatedAt: now,
		UpdatedAt: now,
	}, nil
}

// CanRetry 失败且未达到重试上限
func (r *RefundOrder) CanRetry() bool {
	return r.Status == RefundStatusFailed && r.RetryCount < MaxRefundRetry
}

// IsSettled 是否已经成功(成功后金额不能再变)
func (r *RefundOrder) IsSettled() bool {
	return r.Status == RefundStatusSuccess
}

// MarkAsProcessing 提交网关前调用
// PENDING可以直接提交;FAILED只有CanRetry时才能重新提交
func (r *RefundOrder) MarkAsProcessing(now time.Time) error {
	switch r.Status {
	case RefundStatusPending:
	case RefundStatusFailed:
		if !r.CanRetry() {
			return ErrRetryExhausted
		}
	default:
		return ErrInvalidTransition
	}

	r.Status = RefundStatusProcessing
	r.FailureReason = ""
	r.ProcessingAt = &now
	r.UpdatedAt = now
	return nil
}

// MarkAsSuccess 网关返回成功
func (r *RefundOrder) MarkAsSuccess(transactionNo string, now time.Time) error {
	if r.Status != RefundStatusProcessing {
		return ErrInvalidTransition
	}
	r.Status = RefundStatusSuccess
	r.TransactionNo = transactionNo
	r.SucceededAt = &now
	r.UpdatedAt = now
	return nil
}

// RecordTransaction 网关已退款但本地结算没有完成
// 记下流水号,退款单保持PROCESSING,等待重新结算
func (r *RefundOrder) RecordTransaction(transactionNo string, now time.Time) error {
	if r.Status != RefundStatusProcessing || strings.TrimSpace(transactionNo) == "" {
		return ErrInvalidTransition
	}
	r.TransactionNo = transactionNo
	r.UpdatedAt = now
	return nil
}

// AwaitingSettlement 钱已经退出去,只差标记成功
func (r *RefundOrder) AwaitingSettlement() bool {
	return r.Status == RefundStatusProcessing && r.TransactionNo != ""
}

// MarkAsFailed 网关返回失败,RetryCount自动+1
// 已拿到网关流水号的退款单不能再标记失败,否则重试会重复退款
func (r *RefundOrder) MarkAsFailed(reason string, now time.Time) error {
	if r.Status != RefundStatusProcessing && r.Status != RefundStatusPending {
		return ErrInvalidTransition
	}
	if r.AwaitingSettlement() {
		return ErrInvalidTransition
	}
	if strings.TrimSpace(reason) == "" {
		return ErrReasonRequired
	}
	r.Status = RefundStatusFailed
	r.FailureReason = reason
	r.RetryCount++
	r.FailedAt = &now
	r.UpdatedAt = now
	return nil
}

// UpdateAmount 售后单修改退款金额时同步,只允许在提交网关前修改
func (r *RefundOrder) UpdateAmount(amount decimal.Decimal, now time.Time) error {
	if r.Status != RefundStatusPending && r.Status != RefundStatusFailed {
		return ErrInvalidTransition
	}
	if amount.IsNegative() {
		return ErrInvalidAmount
	}
	r.Amount = amount
	r.UpdatedAt = now
	return nil
}
