package suborder

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// ExchangeStatus 换货单状态
type ExchangeStatus string

const (
	ExchangeStatusPending         ExchangeStatus = "PENDING"          // 待商家确认
	ExchangeStatusApproved        ExchangeStatus = "APPROVED"         // 已确认,待买家寄回
	ExchangeStatusRejected        ExchangeStatus = "REJECTED"         // 商家拒绝
	ExchangeStatusReturnShipped   ExchangeStatus = "RETURN_SHIPPED"   // 买家已寄回
	ExchangeStatusReturnReceived  ExchangeStatus = "RETURN_RECEIVED"  // 商家已收到原商品
	ExchangeStatusExchangeShipped ExchangeStatus = "EXCHANGE_SHIPPED" // 新商品已发出
	ExchangeStatusCompleted       ExchangeStatus = "COMPLETED"        // 换货完成
)

// exchangeTransitions 合法的状态转换
var exchangeTransitions = map[ExchangeStatus][]ExchangeStatus{
	ExchangeStatusPending:         {ExchangeStatusApproved, ExchangeStatusRejected},
	ExchangeStatusApproved:        {ExchangeStatusReturnShipped},
	ExchangeStatusReturnShipped:   {ExchangeStatusReturnReceived},
	ExchangeStatusReturnReceived:  {ExchangeStatusExchangeShipped},
	ExchangeStatusExchangeShipped: {ExchangeStatusCompleted},
	ExchangeStatusRejected:        {},
	ExchangeStatusCompleted:       {},
}

// ExchangeOrder 换货单
type ExchangeOrder struct {
	ID                uint
	ExchangeNo        string
	CaseID            uint
	OriginalSkuID     uint
	ExchangeSkuID     uint
	Quantity          int
	OriginalItemPrice decimal.Decimal // 原商品实付单价
	ExchangeItemPrice decimal.Decimal // 新商品单价
	Address           Address         // 新商品收货地址
	ReturnCarrier     string
	ReturnTrackingNo  string
	ShipCarrier       string
	ShipTrackingNo    string
	RejectReason      string
	Status            ExchangeStatus
	ApprovedAt        *time.Time
	ReturnShippedAt   *time.Time
	ReturnReceivedAt  *time.Time
	ShippedAt         *time.Time
	CompletedAt       *time.Time
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// NewExchangeOrderParams 创建换货单参数
type NewExchangeOrderParams struct {
	CaseID            uint
	OriginalSkuID     uint
	ExchangeSkuID     uint
	Quantity          int
	OriginalItemPrice decimal.Decimal
	ExchangeItemPrice decimal.Decimal
	Address           Address
}

// NewExchangeOrder 创建换货单
func NewExchangeOrder(p NewExchangeOrderParams, now time.Time) (*ExchangeOrder, error) {
	if err := p.Address.Validate(); err != nil {
		return nil, err
	}
	if p.OriginalItemPrice.IsNegative() || p.ExchangeItemPrice.IsNegative() {
		return nil, ErrInvalidAmount
	}
	return &ExchangeOrder{
		ExchangeNo:        GenerateNo(PrefixExchange, now),
		CaseID:            p.CaseID,
		OriginalSkuID:     p.OriginalSkuID,
		ExchangeSkuID:     p.ExchangeSkuID,
		Quantity:          p.Quantity,
		OriginalItemPrice: p.OriginalItemPrice,
		ExchangeItemPrice: p.ExchangeItemPrice,
		Address:           p.Address,
		Status:            ExchangeStatusPending,
		CreatedAt:         now,
		UpdatedAt:         now,
	}, nil
}

// CanTransitionTo 检查是否可以转换到目标状态
func (e *ExchangeOrder) CanTransitionTo(target ExchangeStatus) bool {
	for _, allowed := range exchangeTransitions[e.Status] {
		if allowed == target {
			return true
		}
	}
	return false
}

func (e *ExchangeOrder) transitionTo(target ExchangeStatus, now time.Time) error {
	if !e.CanTransitionTo(target) {
		return ErrInvalidTransition
	}
	e.Status = target
	e.UpdatedAt = now
	return nil
}

// Approve 商家确认换货
func (e *ExchangeOrder) Approve(now time.Time) error {
	if err := e.transitionTo(ExchangeStatusApproved, now); err != nil {
		return err
	}
	e.ApprovedAt = &now
	return nil
}

// Reject 商家拒绝换货
func (e *ExchangeOrder) Reject(reason string, now time.Time) error {
	if strings.TrimSpace(reason) == "" {
		return ErrReasonRequired
	}
	if err := e.transitionTo(ExchangeStatusRejected, now); err != nil {
		return err
	}
	e.RejectReason = reason
	return nil
}

// MarkReturnShipped 买家寄回原商品
func (e *ExchangeOrder) MarkReturnShipped(carrier, trackingNo string, now time.Time) error {
	carrier, trackingNo = normalizeTracking(carrier, trackingNo)
	if carrier == "" || trackingNo == "" {
		return ErrTrackingRequired
	}
	if err := e.transitionTo(ExchangeStatusReturnShipped, now); err != nil {
		return err
	}
	e.ReturnCarrier = carrier
	e.ReturnTrackingNo = trackingNo
	e.ReturnShippedAt = &now
	return nil
}

// MarkReturnReceived 商家收到原商品
func (e *ExchangeOrder) MarkReturnReceived(now time.Time) error {
	if err := e.transitionTo(ExchangeStatusReturnReceived, now); err != nil {
		return err
	}
	e.ReturnReceivedAt = &now
	return nil
}

// MarkExchangeShipped 商家发出新商品
func (e *ExchangeOrder) MarkExchangeShipped(carrier, trackingNo string, now time.Time) error {
	carrier, trackingNo = normalizeTracking(carrier, trackingNo)
	if carrier == "" || trackingNo == "" {
		return ErrTrackingRequired
	}
	if err := e.transitionTo(ExchangeStatusExchangeShipped, now); err != nil {
		return err
	}
	e.ShipCarrier = carrier
	e.ShipTrackingNo = trackingNo
	e.ShippedAt = &now
	return nil
}

// Complete 买家签收新商品
func (e *ExchangeOrder) Complete(now time.Time) error {
	if err := e.transitionTo(ExchangeStatusCompleted, now); err != nil {
		return err
	}
	e.CompletedAt = &now
	return nil
}

// PriceDifference 差价 = (新商品单价 - 原商品单价) × 数量
// 正数需要买家补款,负数需要退给买家
func (e *ExchangeOrder) PriceDifference() decimal.Decimal {
	return e.ExchangeItemPrice.Sub(e.OriginalItemPrice).Mul(decimal.NewFromInt(int64(e.Quantity))).Round(2)
}

// NeedsAdditionalPayment 需要买家补差价
func (e *ExchangeOrder) NeedsAdditionalPayment() bool {
	return e.PriceDifference().IsPositive()
}

// NeedsRefund 需要退还差价
func (e *ExchangeOrder) NeedsRefund() bool {
	return e.PriceDifference().IsNegative()
}

// NeedsUserAction 等待买家操作(补款/寄回)
func (e *ExchangeOrder) NeedsUserAction() bool {
	return e.Status == ExchangeStatusPending || e.Status == ExchangeStatusApproved
}

// NeedsMerchantAction 等待商家发出新商品
func (e *ExchangeOrder) NeedsMerchantAction() bool {
	return e.Status == ExchangeStatusReturnReceived
}

// IsFinished 是否已结束(完成或拒绝)
func (e *ExchangeOrder) IsFinished() bool {
	return e.Status == ExchangeStatusCompleted || e.Status == ExchangeStatusRejected
}

func normalizeTracking(carrier, trackingNo string) (string, string) {
	return strings.ToUpper(strings.TrimSpace(carrier)), strings.TrimSpace(trackingNo)
}
