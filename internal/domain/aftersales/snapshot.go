package aftersales

import (
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"
)

// SnapshotItem 快照中的一个商品
type SnapshotItem struct {
	OrderProductID uint            `json:"order_product_id,omitempty"`
	ProductID      uint            `json:"product_id,omitempty"`
	SkuID          uint            `json:"sku_id,omitempty"`
	Code           string          `json:"code"`
	Name           string          `json:"name"`
	Quantity       int             `json:"quantity"`
	OriginalPrice  decimal.Decimal `json:"original_price"`
	PaidPrice      decimal.Decimal `json:"paid_price"`
}

// ProductSnapshot 商品快照(值对象)
// 申请时从订单明细捕获一次,之后永不根据实时商品数据重新计算
type ProductSnapshot struct {
	items      []SnapshotItem
	capturedAt time.Time
}

// NewProductSnapshot 创建快照
func NewProductSnapshot(items []SnapshotItem, capturedAt time.Time) ProductSnapshot {
	return ProductSnapshot{
		items:      append([]SnapshotItem(nil), items...),
		capturedAt: capturedAt,
	}
}

// SnapshotFromOrderLine 从订单明细创建快照
func SnapshotFromOrderLine(line OrderLine, capturedAt time.Time) ProductSnapshot {
	return NewProductSnapshot([]SnapshotItem{{
		OrderProductID: line.OrderProductID,
		ProductID:      line.ProductID,
		SkuID:          line.SkuID,
		Code:           line.ProductCode,
		Name:           line.ProductName,
		Quantity:       line.Quantity,
		OriginalPrice:  line.OriginalPrice,
		PaidPrice:      line.UnitPaidPrice,
	}}, capturedAt)
}

// Items 返回副本
func (s ProductSnapshot) Items() []SnapshotItem {
	return append([]SnapshotItem(nil), s.items...)
}

// CapturedAt 捕获时间
func (s ProductSnapshot) CapturedAt() time.Time {
	return s.capturedAt
}

// IsZero 是否为空快照
func (s ProductSnapshot) IsZero() bool {
	return len(s.items) == 0
}

type snapshotJSON struct {
	Items      []SnapshotItem `json:"items"`
	CapturedAt time.Time      `json:"captured_at"`
}

// MarshalJSON 持久化为JSON列
func (s ProductSnapshot) MarshalJSON() ([]byte, error) {
	return json.Marshal(snapshotJSON{Items: s.items, CapturedAt: s.capturedAt})
}

// UnmarshalJSON 从JSON列恢复
func (s *ProductSnapshot) UnmarshalJSON(data []byte) error {
	var v snapshotJSON
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	s.items = v.Items
	s.capturedAt = v.CapturedAt
	return nil
}
