package aftersales

import (
	"context"

	"github.com/xiebiao/aftersales/internal/domain/aftersales"
	"github.com/xiebiao/aftersales/internal/domain/suborder"
)

// Provision 按售后单当前状态创建需要的子单,必须在事务中调用
// 教学要点:
// 1. 幂等:已有可用子单时不重复创建(OMS重复推送APPROVED、超时与人工并发)
// 2. advance=true时,APPROVED按类型继续推进一步并递归处理新状态
// 3. 只修改内存中的售后单,由调用方统一保存
// 4. 售后单终止(CANCELLED/CLOSED)时作废还没寄回的退货单
//
// 返回子单创建/推进产生的日志
func (s *Service) Provision(ctx context.Context, c *aftersales.Case, actor aftersales.Actor, advance bool) ([]*aftersales.Log, error) {
	now := s.now()
	var logs []*aftersales.Log

	switch c.State {
	case aftersales.StateApproved:
		switch c.Type {
		case aftersales.TypeRefundOnly, aftersales.TypeCancel:
			l, err := s.ensureRefundOrder(ctx, c, actor)
			if err != nil {
				return nil, err
			}
			logs = append(logs, l...)
		case aftersales.TypeReturnRefund:
			l, err := s.ensureReturnOrder(ctx, c, actor)
			if err != nil {
				return nil, err
			}
			logs = append(logs, l...)
		case aftersales.TypeExchange:
			l, err := s.ensureExchangeOrder(ctx, c, actor)
			if err != nil {
				return nil, err
			}
			logs = append(logs, l...)
		}

		if advance {
			if action, ok := aftersales.FollowUpAction(c.Type); ok {
				from := c.State
				if err := c.Fire(action, now, s.cfg.SLA); err != nil {
					return nil, err
				}
				logs = append(logs, stateLog(c, actor, aftersales.LogAdvance, from, "自动推进:"+string(action), now))
				more, err := s.Provision(ctx, c, actor, false)
				if err != nil {
					return nil, err
				}
				logs = append(logs, more...)
			}
		}

	case aftersales.StatePendingReturn:
		return s.ensureReturnOrder(ctx, c, actor)

	case aftersales.StatePendingExchange:
		return s.ensureExchangeOrder(ctx, c, actor)

	case aftersales.StatePendingRefund:
		return s.ensureRefundOrder(ctx, c, actor)

	case aftersales.StateCancelled, aftersales.StateClosed:
		return s.cancelPendingReturns(ctx, c, actor)
	}
	return logs, nil
}

// ensureRefundOrder 没有退款单时创建一张(失败的退款单走重试,不新建)
func (s *Service) ensureRefundOrder(ctx context.Context, c *aftersales.Case, actor aftersales.Actor) ([]*aftersales.Log, error) {
	existing, err := s.refunds.FindByCaseID(ctx, c.ID)
	if err != nil {
		return nil, err
	}
	if len(existing) > 0 {
		return nil, nil
	}

	now := s.now()
	r, err := suborder.NewRefundOrder(c.ID, c.OrderID, c.ActualRefundAmount, now)
	if err != nil {
		return nil, err
	}
	if err := s.refunds.Create(ctx, r); err != nil {
		return nil, err
	}
	l := aftersales.NewLog(c.ID, actor, aftersales.LogRefundCreate, "创建退款单", now).
		WithSubOrder(r.RefundNo).
		With("amount", r.Amount.StringFixed(2))
	return []*aftersales.Log{l}, nil
}

// ensureReturnOrder 创建退货单,地址取商家默认退货地址
func (s *Service) ensureReturnOrder(ctx context.Context, c *aftersales.Case, actor aftersales.Actor) ([]*aftersales.Log, error) {
	existing, err := s.returns.FindByCaseID(ctx, c.ID)
	if err != nil {
		return nil, err
	}
	if len(existing) > 0 {
		return nil, nil
	}

	addr, err := s.addresses.DefaultAddress(ctx)
	if err != nil {
		return nil, err
	}
	now := s.now()
	r, err := suborder.NewReturnOrder(c.ID, c.Quantity, addr, now)
	if err != nil {
		return nil, err
	}
	if err := s.returns.Create(ctx, r); err != nil {
		return nil, err
	}
	return []*aftersales.Log{
		aftersales.NewLog(c.ID, actor, aftersales.LogReturnCreate, "创建退货单", now).WithSubOrder(r.ReturnNo),
	}, nil
}

// ensureExchangeOrder 创建换货单,新商品价格从商品目录查询
func (s *Service) ensureExchangeOrder(ctx context.Context, c *aftersales.Case, actor aftersales.Actor) ([]*aftersales.Log, error) {
	existing, err := s.exchanges.FindByCaseID(ctx, c.ID)
	if err != nil {
		return nil, err
	}
	if len(existing) > 0 {
		return nil, nil
	}
	if c.ExchangeAddress == nil {
		return nil, suborder.ErrInvalidAddress.WithField("exchange_address")
	}

	exchangeSku := c.ExchangeSkuID
	if exchangeSku == 0 {
		exchangeSku = c.SkuID // 同款换货(换尺码等由OMS处理)
	}
	price, err := s.catalog.GetSkuPrice(ctx, exchangeSku)
	if err != nil {
		return nil, err
	}

	now := s.now()
	e, err := suborder.NewExchangeOrder(suborder.NewExchangeOrderParams{
		CaseID:            c.ID,
		OriginalSkuID:     c.SkuID,
		ExchangeSkuID:     exchangeSku,
		Quantity:          c.Quantity,
		OriginalItemPrice: c.PaidPrice,
		ExchangeItemPrice: price,
		Address:           *c.ExchangeAddress,
	}, now)
	if err != nil {
		return nil, err
	}
	if err := s.exchanges.Create(ctx, e); err != nil {
		return nil, err
	}
	return []*aftersales.Log{
		aftersales.NewLog(c.ID, actor, aftersales.LogExchangeCreate, "创建换货单", now).
			WithSubOrder(e.ExchangeNo).
			With("price_difference", e.PriceDifference().StringFixed(2)),
	}, nil
}

// cancelPendingReturns 作废待寄回的退货单;已寄出的不动
func (s *Service) cancelPendingReturns(ctx context.Context, c *aftersales.Case, actor aftersales.Actor) ([]*aftersales.Log, error) {
	returns, err := s.returns.FindByCaseID(ctx, c.ID)
	if err != nil {
		return nil, err
	}
	now := s.now()
	var logs []*aftersales.Log
	for _, r := range returns {
		if r.Status != suborder.ReturnStatusPending {
			continue
		}
		if err := r.Cancel(now); err != nil {
			return nil, err
		}
		if err := s.returns.Update(ctx, r); err != nil {
			return nil, err
		}
		logs = append(logs, aftersales.NewLog(c.ID, actor, aftersales.LogReturnCancel, "售后单终止,作废退货单", now).
			WithSubOrder(r.ReturnNo))
	}
	return logs, nil
}
