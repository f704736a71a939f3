package aftersales

import (
	"context"

	"github.com/xiebiao/aftersales/internal/domain/aftersales"
	"github.com/xiebiao/aftersales/internal/domain/suborder"
)

// ReturnResult 退货单操作结果
type ReturnResult struct {
	Case        *aftersales.Case
	ReturnOrder *suborder.ReturnOrder
	Changed     bool // 快递推送:状态是否变化
}

// ShipReturn 买家填写退货物流
// 退货单PENDING → SHIPPED,售后单PENDING_RETURN → PENDING_RECEIVE(开始收货计时)
func (s *Service) ShipReturn(ctx context.Context, returnOrderID uint, carrierCode, trackingNo string, actor aftersales.Actor) (*ReturnResult, error) {
	ro, err := s.returns.FindByID(ctx, returnOrderID)
	if err != nil {
		return nil, err
	}
	res := &ReturnResult{}
	c, err := s.mutateCase(ctx, ro.CaseID, func(ctx context.Context, c *aftersales.Case) ([]*aftersales.Log, error) {
		if err := requireOwner(c, actor); err != nil {
			return nil, err
		}
		if !aftersales.CanPerform(c.State, c.Type, aftersales.ActionShipBack) {
			return nil, aftersales.ErrInvalidTransition.Withf("%s: %s 不能填写退货物流", c.AftersalesNo, c.State)
		}
		r, err := s.returns.LockByID(ctx, returnOrderID)
		if err != nil {
			return nil, err
		}
		now := s.now()
		if err := r.MarkAsShipped(carrierCode, trackingNo, now); err != nil {
			return nil, err
		}
		if err := s.returns.Update(ctx, r); err != nil {
			return nil, err
		}
		res.ReturnOrder = r

		from := c.State
		c.SetLogistics(r.CarrierCode, r.TrackingNo, now)
		if err := c.Fire(aftersales.ActionShipBack, now, s.cfg.SLA); err != nil {
			return nil, err
		}
		shipped := aftersales.NewLog(c.ID, actor, aftersales.LogReturnShipped, "买家已寄回", now).
			WithSubOrder(r.ReturnNo).
			With("carrier", r.CarrierCode).
			With("tracking_no", r.TrackingNo)
		if url, ok := r.TrackingURL(); ok {
			shipped.With("tracking_url", url)
		}
		return []*aftersales.Log{
			shipped,
			stateLog(c, actor, aftersales.LogAdvance, from, "等待商家收货", now),
		}, nil
	})
	if err != nil {
		return nil, err
	}
	res.Case = c
	res.Changed = true
	return res, nil
}

// UpdateReturnTracking 快递轨迹推送
// 推送可能重复、乱序,状态没变化时不写库不记日志
// 推送"已签收"时等同商家确认收货
func (s *Service) UpdateReturnTracking(ctx context.Context, carrierCode, trackingNo, token string, actor aftersales.Actor) (*ReturnResult, error) {
	ro, err := s.returns.FindByTrackingNo(ctx, carrierCode, trackingNo)
	if err != nil {
		return nil, err
	}
	res := &ReturnResult{ReturnOrder: ro}
	c, err := s.mutateCase(ctx, ro.CaseID, func(ctx context.Context, c *aftersales.Case) ([]*aftersales.Log, error) {
		r, err := s.returns.LockByID(ctx, ro.ID)
		if err != nil {
			return nil, err
		}
		res.ReturnOrder = r
		now := s.now()
		before := r.Status
		if !r.ApplyTrackingStatus(token, now) {
			return nil, nil
		}
		if err := s.returns.Update(ctx, r); err != nil {
			return nil, err
		}
		res.Changed = true

		logs := []*aftersales.Log{
			aftersales.NewLog(c.ID, actor, aftersales.LogReturnTracking, "物流更新:"+token, now).
				WithSubOrder(r.ReturnNo).
				With("from", string(before)).
				With("to", string(r.Status)),
		}
		if r.Status == suborder.ReturnStatusReceived {
			more, err := s.onReturnReceived(ctx, c, actor)
			if err != nil {
				return nil, err
			}
			logs = append(logs, more...)
		}
		return logs, nil
	})
	if err != nil {
		return nil, err
	}
	res.Case = c
	return res, nil
}

// ConfirmReturnReceived 商家确认收货
func (s *Service) ConfirmReturnReceived(ctx context.Context, returnOrderID uint, actor aftersales.Actor) (*ReturnResult, error) {
	if err := requireAdmin(actor); err != nil {
		return nil, err
	}
	ro, err := s.returns.FindByID(ctx, returnOrderID)
	if err != nil {
		return nil, err
	}
	res := &ReturnResult{}
	c, err := s.mutateCase(ctx, ro.CaseID, func(ctx context.Context, c *aftersales.Case) ([]*aftersales.Log, error) {
		r, err := s.returns.LockByID(ctx, returnOrderID)
		if err != nil {
			return nil, err
		}
		now := s.now()
		if err := r.MarkAsReceived(now); err != nil {
			return nil, err
		}
		if err := s.returns.Update(ctx, r); err != nil {
			return nil, err
		}
		res.ReturnOrder = r
		res.Changed = true

		logs := []*aftersales.Log{
			aftersales.NewLog(c.ID, actor, aftersales.LogReturnReceived, "商家确认收货", now).WithSubOrder(r.ReturnNo),
		}
		more, err := s.onReturnReceived(ctx, c, actor)
		if err != nil {
			return nil, err
		}
		return append(logs, more...), nil
	})
	if err != nil {
		return nil, err
	}
	res.Case = c
	return res, nil
}

// onReturnReceived 收到退货后售后单进入待退款并创建退款单
// 售后单已被超时任务推进过时不再重复推进
func (s *Service) onReturnReceived(ctx context.Context, c *aftersales.Case, actor aftersales.Actor) ([]*aftersales.Log, error) {
	if c.State != aftersales.StatePendingReceive {
		return nil, nil
	}
	now := s.now()
	from := c.State
	if err := c.Fire(aftersales.ActionReceive, now, s.cfg.SLA); err != nil {
		return nil, err
	}
	logs := []*aftersales.Log{stateLog(c, actor, aftersales.LogAdvance, from, "已收货,等待退款", now)}
	more, err := s.Provision(ctx, c, actor, false)
	if err != nil {
		return nil, err
	}
	return append(logs, more...), nil
}

// InspectReturn 验货
// 不通过时关闭售后单(需要人工与买家协商)
func (s *Service) InspectReturn(ctx context.Context, returnOrderID uint, pass bool, note string, actor aftersales.Actor) (*ReturnResult, error) {
	if err := requireAdmin(actor); err != nil {
		return nil, err
	}
	ro, err := s.returns.FindByID(ctx, returnOrderID)
	if err != nil {
		return nil, err
	}
	res := &ReturnResult{}
	c, err := s.mutateCase(ctx, ro.CaseID, func(ctx context.Context, c *aftersales.Case) ([]*aftersales.Log, error) {
		r, err := s.returns.LockByID(ctx, returnOrderID)
		if err != nil {
			return nil, err
		}
		now := s.now()
		if err := r.Inspect(pass, note, now); err != nil {
			return nil, err
		}
		if err := s.returns.Update(ctx, r); err != nil {
			return nil, err
		}
		res.ReturnOrder = r
		res.Changed = true

		content := "验货通过"
		if !pass {
			content = "验货不通过:" + note
		}
		logs := []*aftersales.Log{
			aftersales.NewLog(c.ID, actor, aftersales.LogReturnInspect, content, now).
				WithSubOrder(r.ReturnNo).
				With("pass", pass),
		}
		if !pass && aftersales.CanPerform(c.State, c.Type, aftersales.ActionClose) {
			from := c.State
			if err := c.Close(note, now); err != nil {
				return nil, err
			}
			logs = append(logs, stateLog(c, actor, aftersales.LogClose, from, "验货不通过,关闭售后", now))
		}
		return logs, nil
	})
	if err != nil {
		return nil, err
	}
	res.Case = c
	return res, nil
}
