package suborder

import (
	"context"
)

// RefundRepository 退款单仓储
type RefundRepository interface {
	Create(ctx context.Context, order *RefundOrder) error
	FindByID(ctx context.Context, id uint) (*RefundOrder, error)

	// LockByID 加行锁查询(SELECT ... FOR UPDATE),必须在事务中调用
	LockByID(ctx context.Context, id uint) (*RefundOrder, error)

	FindByCaseID(ctx context.Context, caseID uint) ([]*RefundOrder, error)
	Update(ctx context.Context, order *RefundOrder) error
}

// ReturnRepository 退货单仓储
type ReturnRepository interface {
	Create(ctx context.Context, order *ReturnOrder) error
	FindByID(ctx context.Context, id uint) (*ReturnOrder, error)
	LockByID(ctx context.Context, id uint) (*ReturnOrder, error)
	FindByCaseID(ctx context.Context, caseID uint) ([]*ReturnOrder, error)

	// FindByTrackingNo 快递轨迹推送只带运单号
	FindByTrackingNo(ctx context.Context, carrierCode, trackingNo string) (*ReturnOrder, error)

	Update(ctx context.Context, order *ReturnOrder) error
}

// ExchangeRepository 换货单仓储
type ExchangeRepository interface {
	Create(ctx context.Context, order *ExchangeOrder) error
	FindByID(ctx context.Context, id uint) (*ExchangeOrder, error)
	LockByID(ctx context.Context, id uint) (*ExchangeOrder, error)
	FindByCaseID(ctx context.Context, caseID uint) ([]*ExchangeOrder, error)
	Update(ctx context.Context, order *ExchangeOrder) error
}

// ReturnAddressProvider 商家默认退货地址
type ReturnAddressProvider interface {
	DefaultAddress(ctx context.Context) (Address, error)
}
