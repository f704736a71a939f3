package mysql

import (
	"context"
	"errors"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/xiebiao/aftersales/internal/domain/aftersales"
	apperrors "github.com/xiebiao/aftersales/pkg/errors"
)

// orderCatalog 订单明细/商品价格查询
// order_products、sku_prices 由订单系统同步,售后服务只读
type orderCatalog struct {
	conn
}

// NewOrderCatalog 创建订单目录
func NewOrderCatalog(db *gorm.DB) aftersales.OrderCatalog {
	return &orderCatalog{conn{db: db}}
}

// GetOrderLines 批量查询,不存在的id不出现在结果中
func (c *orderCatalog) GetOrderLines(ctx context.Context, ids []uint) (map[uint]aftersales.OrderLine, error) {
	result := make(map[uint]aftersales.OrderLine, len(ids))
	if len(ids) == 0 {
		return result, nil
	}
	var models []OrderLineModel
	if err := c.getDB(ctx).Where("id IN ?", ids).Find(&models).Error; err != nil {
		return nil, apperrors.Wrap(err, "查询订单明细失败")
	}
	for i := range models {
		result[models[i].ID] = toOrderLine(&models[i])
	}
	return result, nil
}

// LockOrderLine 生成SQL: SELECT * FROM order_products WHERE id = ? LIMIT 1 FOR UPDATE
func (c *orderCatalog) LockOrderLine(ctx context.Context, id uint) (*aftersales.OrderLine, error) {
	var m OrderLineModel
	err := c.getDB(ctx).Clauses(clause.Locking{Strength: "UPDATE"}).Where("id = ?", id).First(&m).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, aftersales.ErrOrderLineNotFound
		}
		return nil, apperrors.Wrap(err, "锁定订单明细失败")
	}
	line := toOrderLine(&m)
	return &line, nil
}

// GetSkuPrice 换货商品当前单价
func (c *orderCatalog) GetSkuPrice(ctx context.Context, skuID uint) (decimal.Decimal, error) {
	var m SkuPriceModel
	if err := c.getDB(ctx).Where("sku_id = ?", skuID).First(&m).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return decimal.Zero, aftersales.ErrSkuNotFound
		}
		return decimal.Zero, apperrors.Wrap(err, "查询商品价格失败")
	}
	return m.Price, nil
}

func toOrderLine(m *OrderLineModel) aftersales.OrderLine {
	return aftersales.OrderLine{
		OrderProductID: m.ID,
		OrderID:        m.OrderID,
		UserID:         m.UserID,
		ProductID:      m.ProductID,
		SkuID:          m.SkuID,
		ProductCode:    m.ProductCode,
		ProductName:    m.ProductName,
		Quantity:       m.Quantity,
		OriginalPrice:  m.OriginalPrice,
		UnitPaidPrice:  m.UnitPaidPrice,
		IsGift:         m.IsGift,
	}
}
