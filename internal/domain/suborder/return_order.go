package suborder

import (
	"strings"
	"time"
)

// ReturnStatus 退货单状态
type ReturnStatus string

const (
	ReturnStatusPending   ReturnStatus = "PENDING"    // 待买家寄回
	ReturnStatusShipped   ReturnStatus = "SHIPPED"    // 买家已寄出
	ReturnStatusInTransit ReturnStatus = "IN_TRANSIT" // 运输中
	ReturnStatusReceived  ReturnStatus = "RECEIVED"   // 商家已签收
	ReturnStatusInspected ReturnStatus = "INSPECTED"  // 验货通过
	ReturnStatusRejected  ReturnStatus = "REJECTED"   // 验货不通过
	ReturnStatusCancelled ReturnStatus = "CANCELLED"  // 售后单终止,买家未寄回
)

// 快递轨迹状态(第三方推送)
const (
	TrackingPickedUp  = "picked_up"
	TrackingInTransit = "in_transit"
	TrackingDelivered = "delivered"
)

// ReturnOrder 退货单
type ReturnOrder struct {
	ID             uint
	ReturnNo       string
	CaseID         uint
	Quantity       int
	Address        Address // 退货地址快照(创建时的商家默认地址)
	CarrierCode    string
	TrackingNo     string
	Status         ReturnStatus
	InspectionNote string
	ShippedAt      *time.Time
	ReceivedAt     *time.Time
	InspectedAt    *time.Time
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// NewReturnOrder 创建退货单
func NewReturnOrder(caseID uint, quantity int, address Address, now time.Time) (*ReturnOrder, error) {
	if err := address.Validate(); err != nil {
		return nil, err
	}
	return &ReturnOrder{
		ReturnNo:  GenerateNo(PrefixReturn, now),
		CaseID:    caseID,
		Quantity:  quantity,
		Address:   address,
		Status:    ReturnStatusPending,
		CreatedAt: now,
		UpdatedAt: now,
	}, nil
}

// CanShip 只有待寄回时可以填写物流
func (r *ReturnOrder) CanShip() bool {
	return r.Status == ReturnStatusPending
}

// Cancel 售后单终止时作废未寄回的退货单,已寄出的保留给仓库签收
func (r *ReturnOrder) Cancel(now time.Time) error {
	if r.Status != ReturnStatusPending {
		return ErrInvalidTransition
	}
	r.Status = ReturnStatusCancelled
	r.UpdatedAt = now
	return nil
}

// MarkAsShipped 买家填写物流信息
func (r *ReturnOrder) MarkAsShipped(carrierCode, trackingNo string, now time.Time) error {
	if !r.CanShip() {
		return ErrInvalidTransition
	}
	carrierCode = strings.ToUpper(strings.TrimSpace(carrierCode))
	trackingNo = strings.TrimSpace(trackingNo)
	if carrierCode == "" || trackingNo == "" {
		return ErrTrackingRequired
	}

	r.CarrierCode = carrierCode
	r.TrackingNo = trackingNo
	r.Status = ReturnStatusShipped
	r.ShippedAt = &now
	r.UpdatedAt = now
	return nil
}

// ApplyTrackingStatus 处理快递轨迹推送,返回状态是否变化
// 推送可能乱序、重复,不匹配当前状态的推送直接忽略,未知状态也忽略
func (r *ReturnOrder) ApplyTrackingStatus(token string, now time.Time) bool {
	switch strings.ToLower(strings.TrimSpace(token)) {
	case TrackingPickedUp, TrackingInTransit:
		if r.Status != ReturnStatusShipped {
			return false
		}
		r.Status = ReturnStatusInTransit
	case TrackingDelivered:
		if r.Status != ReturnStatusShipped && r.Status != ReturnStatusInTransit {
			return false
		}
		r.Status = ReturnStatusReceived
		r.ReceivedAt = &now
	default:
		return false
	}
	r.UpdatedAt = now
	return true
}

// MarkAsReceived 商家确认收货
func (r *ReturnOrder) MarkAsReceived(now time.Time) error {
	if r.Status != ReturnStatusShipped && r.Status != ReturnStatusInTransit {
		return ErrInvalidTransition
	}
	r.Status = ReturnStatusReceived
	r.ReceivedAt = &now
	r.UpdatedAt = now
	return nil
}

// Inspect 验货,不通过时必须填写说明
func (r *ReturnOrder) Inspect(pass bool, note string, now time.Time) error {
	if r.Status != ReturnStatusReceived {
		return ErrInvalidTransition
	}
	if !pass && strings.TrimSpace(note) == "" {
		return ErrReasonRequired
	}

	if pass {
		r.Status = ReturnStatusInspected
	} else {
		r.Status = ReturnStatusRejected
	}
	r.InspectionNote = note
	r.InspectedAt = &now
	r.UpdatedAt = now
	return nil
}

// TrackingURL 物流查询链接
func (r *ReturnOrder) TrackingURL() (string, bool) {
	return TrackingURL(r.CarrierCode, r.TrackingNo)
}
