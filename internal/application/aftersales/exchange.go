package aftersales

import (
	"context"
	"time"

	"github.com/xiebiao/aftersales/internal/domain/aftersales"
	"github.com/xiebiao/aftersales/internal/domain/suborder"
)

// ExchangeResult 换货单操作结果
type ExchangeResult struct {
	Case          *aftersales.Case
	ExchangeOrder *suborder.ExchangeOrder
}

// exchangeStep 换货单上的一步操作,返回日志内容;可以顺带修改售后单
type exchangeStep func(c *aftersales.Case, e *suborder.ExchangeOrder, now time.Time) (content string, caseLogs []*aftersales.Log, err error)

// mutateExchange 换货单操作的统一流程:锁售后单 → 锁换货单 → 操作 → 保存
func (s *Service) mutateExchange(ctx context.Context, exchangeOrderID uint, actor aftersales.Actor, ownerOnly bool, step exchangeStep) (*ExchangeResult, error) {
	eo, err := s.exchanges.FindByID(ctx, exchangeOrderID)
	if err != nil {
		return nil, err
	}
	res := &ExchangeResult{}
	c, err := s.mutateCase(ctx, eo.CaseID, func(ctx context.Context, c *aftersales.Case) ([]*aftersales.Log, error) {
		if ownerOnly {
			if err := requireOwner(c, actor); err != nil {
				return nil, err
			}
		}
		e, err := s.exchanges.LockByID(ctx, exchangeOrderID)
		if err != nil {
			return nil, err
		}
		now := s.now()
		before := e.Status
		content, caseLogs, err := step(c, e, now)
		if err != nil {
			return nil, err
		}
		if err := s.exchanges.Update(ctx, e); err != nil {
			return nil, err
		}
		res.ExchangeOrder = e

		l := aftersales.NewLog(c.ID, actor, aftersales.LogExchangeUpdate, content, now).
			WithSubOrder(e.ExchangeNo).
			With("from", string(before)).
			With("to", string(e.Status))
		return append([]*aftersales.Log{l}, caseLogs...), nil
	})
	if err != nil {
		return nil, err
	}
	res.Case = c
	return res, nil
}

// ApproveExchange 商家确认换货
func (s *Service) ApproveExchange(ctx context.Context, exchangeOrderID uint, actor aftersales.Actor) (*ExchangeResult, error) {
	if err := requireAdmin(actor); err != nil {
		return nil, err
	}
	return s.mutateExchange(ctx, exchangeOrderID, actor, false, func(c *aftersales.Case, e *suborder.ExchangeOrder, now time.Time) (string, []*aftersales.Log, error) {
		return "商家确认换货", nil, e.Approve(now)
	})
}

// RejectExchange 商家拒绝换货,售后单随之关闭
func (s *Service) RejectExchange(ctx context.Context, exchangeOrderID uint, reason string, actor aftersales.Actor) (*ExchangeResult, error) {
	if err := requireAdmin(actor); err != nil {
		return nil, err
	}
	return s.mutateExchange(ctx, exchangeOrderID, actor, false, func(c *aftersales.Case, e *suborder.ExchangeOrder, now time.Time) (string, []*aftersales.Log, error) {
		if err := e.Reject(reason, now); err != nil {
			return "", nil, err
		}
		var logs []*aftersales.Log
		if aftersales.CanPerform(c.State, c.Type, aftersales.ActionClose) {
			from := c.State
			if err := c.Close(reason, now); err != nil {
				return "", nil, err
			}
			logs = append(logs, stateLog(c, actor, aftersales.LogClose, from, "拒绝换货,关闭售后", now))
		}
		return "拒绝换货:" + reason, logs, nil
	})
}

// ShipExchangeReturn 买家寄回原商品
func (s *Service) ShipExchangeReturn(ctx context.Context, exchangeOrderID uint, carrierCode, trackingNo string, actor aftersales.Actor) (*ExchangeResult, error) {
	return s.mutateExchange(ctx, exchangeOrderID, actor, true, func(c *aftersales.Case, e *suborder.ExchangeOrder, now time.Time) (string, []*aftersales.Log, error) {
		if err := e.MarkReturnShipped(carrierCode, trackingNo, now); err != nil {
			return "", nil, err
		}
		c.SetLogistics(e.ReturnCarrier, e.ReturnTrackingNo, now)
		return "买家寄回原商品", nil, nil
	})
}

// ReceiveExchangeReturn 商家收到原商品
func (s *Service) ReceiveExchangeReturn(ctx context.Context, exchangeOrderID uint, actor aftersales.Actor) (*ExchangeResult, error) {
	if err := requireAdmin(actor); err != nil {
		return nil, err
	}
	return s.mutateExchange(ctx, exchangeOrderID, actor, false, func(c *aftersales.Case, e *suborder.ExchangeOrder, now time.Time) (string, []*aftersales.Log, error) {
		return "商家收到原商品", nil, e.MarkReturnReceived(now)
	})
}

// ShipExchange 商家发出新商品
func (s *Service) ShipExchange(ctx context.Context, exchangeOrderID uint, carrierCode, trackingNo string, actor aftersales.Actor) (*ExchangeResult, error) {
	if err := requireAdmin(actor); err != nil {
		return nil, err
	}
	return s.mutateExchange(ctx, exchangeOrderID, actor, false, func(c *aftersales.Case, e *suborder.ExchangeOrder, now time.Time) (string, []*aftersales.Log, error) {
		return "商家发出新商品", nil, e.MarkExchangeShipped(carrierCode, trackingNo, now)
	})
}

// CompleteExchange 买家签收新商品,换货完成,售后单完成
func (s *Service) CompleteExchange(ctx context.Context, exchangeOrderID uint, actor aftersales.Actor) (*ExchangeResult, error) {
	return s.mutateExchange(ctx, exchangeOrderID, actor, true, func(c *aftersales.Case, e *suborder.ExchangeOrder, now time.Time) (string, []*aftersales.Log, error) {
		if err := e.Complete(now); err != nil {
			return "", nil, err
		}
		var logs []*aftersales.Log
		if aftersales.CanPerform(c.State, c.Type, aftersales.ActionComplete) {
			from := c.State
			if err := c.Complete(now); err != nil {
				return "", nil, err
			}
			logs = append(logs, stateLog(c, actor, aftersales.LogComplete, from, "换货完成", now))
		}
		return "换货完成", logs, nil
	})
}
