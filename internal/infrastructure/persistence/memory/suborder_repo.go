package memory

import (
	"context"
	"sort"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/xiebiao/aftersales/internal/domain/aftersales"
	"github.com/xiebiao/aftersales/internal/domain/suborder"
)

// RefundRepository 退款单内存实现
type RefundRepository struct {
	store *Store
}

// NewRefundRepository 创建退款单仓储
func NewRefundRepository(store *Store) suborder.RefundRepository {
	return &RefundRepository{store: store}
}

func (r *RefundRepository) Create(_ context.Context, o *suborder.RefundOrder) error {
	return r.store.write(func(d *dataset) error {
		d.refundSeq++
		o.ID = d.refundSeq
		v := *o
		d.refunds[o.ID] = &v
		return nil
	})
}

func (r *RefundRepository) FindByID(_ context.Context, id uint) (*suborder.RefundOrder, error) {
	var found *suborder.RefundOrder
	err := r.store.read(func(d *dataset) error {
		o, ok := d.refunds[id]
		if !ok {
			return suborder.ErrRefundOrderNotFound
		}
		v := *o
		found = &v
		return nil
	})
	return found, err
}

func (r *RefundRepository) LockByID(ctx context.Context, id uint) (*suborder.RefundOrder, error) {
	return r.FindByID(ctx, id)
}

func (r *RefundRepository) FindByCaseID(_ context.Context, caseID uint) ([]*suborder.RefundOrder, error) {
	var result []*suborder.RefundOrder
	_ = r.store.read(func(d *dataset) error {
		for _, o := range d.refunds {
			if o.CaseID == caseID {
				v := *o
				result = append(result, &v)
			}
		}
		return nil
	})
	sort.Slice(result, func(i, j int) bool { return result[i].ID < result[j].ID })
	return result, nil
}

func (r *RefundRepository) Update(_ context.Context, o *suborder.RefundOrder) error {
	return r.store.write(func(d *dataset) error {
		if _, ok := d.refunds[o.ID]; !ok {
			return suborder.ErrRefundOrderNotFound
		}
		v := *o
		d.refunds[o.ID] = &v
		return nil
	})
}

// ReturnRepository 退货单内存实现
type ReturnRepository struct {
	store *Store
}

// NewReturnRepository 创建退货单仓储
func NewReturnRepository(store *Store) suborder.ReturnRepository {
	return &ReturnRepository{store: store}
}

func (r *ReturnRepository) Create(_ context.Context, o *suborder.ReturnOrder) error {
	return r.store.write(func(d *dataset) error {
		d.returnSeq++
		o.ID = d.returnSeq
		v := *o
		d.returns[o.ID] = &v
		return nil
	})
}

func (r *ReturnRepository) FindByID(_ context.Context, id uint) (*suborder.ReturnOrder, error) {
	var found *suborder.ReturnOrder
	err := r.store.read(func(d *dataset) error {
		o, ok := d.returns[id]
		if !ok {
			return suborder.ErrReturnOrderNotFound
		}
		v := *o
		found = &v
		return nil
	})
	return found, err
}

func (r *ReturnRepository) LockByID(ctx context.Context, id uint) (*suborder.ReturnOrder, error) {
	return r.FindByID(ctx, id)
}

func (r *ReturnRepository) FindByCaseID(_ context.Context, caseID uint) ([]*suborder.ReturnOrder, error) {
	var result []*suborder.ReturnOrder
	_ = r.store.read(func(d *dataset) error {
		for _, o := range d.returns {
			if o.CaseID == caseID {
				v := *o
				result = append(result, &v)
			}
		}
		return nil
	})
	sort.Slice(result, func(i, j int) bool { return result[i].ID < result[j].ID })
	return result, nil
}

// FindByTrackingNo 快递公司不区分大小写
func (r *ReturnRepository) FindByTrackingNo(_ context.Context, carrierCode, trackingNo string) (*suborder.ReturnOrder, error) {
	carrierCode = strings.TrimSpace(carrierCode)
	trackingNo = strings.TrimSpace(trackingNo)
	var found *suborder.ReturnOrder
	err := r.store.read(func(d *dataset) error {
		for _, o := range d.returns {
			if strings.EqualFold(o.CarrierCode, carrierCode) && o.TrackingNo == trackingNo {
				v := *o
				found = &v
				return nil
			}
		}
		return suborder.ErrReturnOrderNotFound
	})
	return found, err
}

func (r *ReturnRepository) Update(_ context.Context, o *suborder.ReturnOrder) error {
	return r.store.write(func(d *dataset) error {
		if _, ok := d.returns[o.ID]; !ok {
			return suborder.ErrReturnOrderNotFound
		}
		v := *o
		d.returns[o.ID] = &v
		return nil
	})
}

// ExchangeRepository 换货单内存实现
type ExchangeRepository struct {
	store *Store
}

// NewExchangeRepository 创建换货单仓储
func NewExchangeRepository(store *Store) suborder.ExchangeRepository {
	return &ExchangeRepository{store: store}
}

func (r *ExchangeRepository) Create(_ context.Context, o *suborder.ExchangeOrder) error {
	return r.store.write(func(d *dataset) error {
		d.exchangeSeq++
		o.ID = d.exchangeSeq
		v := *o
		d.exchanges[o.ID] = &v
		return nil
	})
}

func (r *ExchangeRepository) FindByID(_ context.Context, id uint) (*suborder.ExchangeOrder, error) {
	var found *suborder.ExchangeOrder
	err := r.store.read(func(d *dataset) error {
		o, ok := d.exchanges[id]
		if !ok {
			return suborder.ErrExchangeOrderNotFound
		}
		v := *o
		found = &v
		return nil
	})
	return found, err
}

func (r *ExchangeRepository) LockByID(ctx context.Context, id uint) (*suborder.ExchangeOrder, error) {
	return r.FindByID(ctx, id)
}

func (r *ExchangeRepository) FindByCaseID(_ context.Context, caseID uint) ([]*suborder.ExchangeOrder, error) {
	var result []*suborder.ExchangeOrder
	_ = r.store.read(func(d *dataset) error {
		for _, o := range d.exchanges {
			if o.CaseID == caseID {
				v := *o
				result = append(result, &v)
			}
		}
		return nil
	})
	sort.Slice(result, func(i, j int) bool { return result[i].ID < result[j].ID })
	return result, nil
}

func (r *ExchangeRepository) Update(_ context.Context, o *suborder.ExchangeOrder) error {
	return r.store.write(func(d *dataset) error {
		if _, ok := d.exchanges[o.ID]; !ok {
			return suborder.ErrExchangeOrderNotFound
		}
		v := *o
		d.exchanges[o.ID] = &v
		return nil
	})
}

// Catalog 订单明细内存实现(数据由SeedOrderLines写入)
type Catalog struct {
	store *Store
}

// NewCatalog 创建订单目录
func NewCatalog(store *Store) aftersales.OrderCatalog {
	return &Catalog{store: store}
}

func (c *Catalog) GetOrderLines(_ context.Context, ids []uint) (map[uint]aftersales.OrderLine, error) {
	result := make(map[uint]aftersales.OrderLine, len(ids))
	_ = c.store.read(func(d *dataset) error {
		for _, id := range ids {
			if l, ok := d.lines[id]; ok {
				result[id] = l
			}
		}
		return nil
	})
	return result, nil
}

func (c *Catalog) LockOrderLine(_ context.Context, id uint) (*aftersales.OrderLine, error) {
	var found *aftersales.OrderLine
	err := c.store.read(func(d *dataset) error {
		l, ok := d.lines[id]
		if !ok {
			return aftersales.ErrOrderLineNotFound
		}
		found = &l
		return nil
	})
	return found, err
}

func (c *Catalog) GetSkuPrice(_ context.Context, skuID uint) (decimal.Decimal, error) {
	var price decimal.Decimal
	err := c.store.read(func(d *dataset) error {
		p, ok := d.skuPrices[skuID]
		if !ok {
			return aftersales.ErrSkuNotFound
		}
		price = p
		return nil
	})
	return price, err
}
