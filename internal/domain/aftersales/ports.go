package aftersales

import (
	"context"

	"github.com/shopspring/decimal"
)

// OrderLine 订单明细(外部订单/商品目录提供,只读)
type OrderLine struct {
	OrderProductID uint
	OrderID        string
	UserID         uint
	ProductID      uint
	SkuID          uint
	ProductCode    string
	ProductName    string
	Quantity       int             // 购买数量
	OriginalPrice  decimal.Decimal // 原价(单价)
	UnitPaidPrice  decimal.Decimal // 实付单价(分摊优惠后)
	IsGift         bool            // 赠品不支持售后
}

// ClaimedAmount 一条已占用数量的售后记录
type ClaimedAmount struct {
	CaseID       uint
	Quantity     int
	RefundAmount decimal.Decimal
}

// OrderCatalog 订单/商品目录
type OrderCatalog interface {
	// GetOrderLines 批量查询订单明细,不存在的id不出现在结果中
	GetOrderLines(ctx context.Context, orderProductIDs []uint) (map[uint]OrderLine, error)

	// LockOrderLine 加行锁查询订单明细(SELECT ... FOR UPDATE),必须在事务中调用
	// 同一明细的并发申请在这里串行化
	LockOrderLine(ctx context.Context, orderProductID uint) (*OrderLine, error)

	// GetSkuPrice 换货时查询新商品单价
	GetSkuPrice(ctx context.Context, skuID uint) (decimal.Decimal, error)
}
