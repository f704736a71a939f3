package aftersales

import (
	"context"

	"github.com/xiebiao/aftersales/internal/domain/aftersales"
	"github.com/xiebiao/aftersales/pkg/metrics"
)

// Approve 审核通过
// 通过后按类型创建子单;开启AutoAdvance时直接进入下一状态
//   - 退货退款 → PENDING_RETURN + 退货单
//   - 换货     → PENDING_EXCHANGE + 换货单
//   - 补发     → PENDING_RESEND
//   - 仅退款/取消订单 → 停留APPROVED + 退款单
func (s *Service) Approve(ctx context.Context, caseID uint, actor aftersales.Actor) (*aftersales.Case, error) {
	if err := requireAdmin(actor); err != nil {
		return nil, err
	}
	return s.mutateCase(ctx, caseID, func(ctx context.Context, c *aftersales.Case) ([]*aftersales.Log, error) {
		now := s.now()
		from := c.State
		if err := c.Approve(now); err != nil {
			return nil, err
		}
		logs := []*aftersales.Log{stateLog(c, actor, aftersales.LogApprove, from, "审核通过", now)}

		more, err := s.Provision(ctx, c, actor, s.cfg.AutoAdvance)
		if err != nil {
			return nil, err
		}
		metrics.IncCounterVec(metrics.CaseTransitionsTotal, map[string]string{"action": string(aftersales.ActionApprove)})
		return append(logs, more...), nil
	})
}

// Reject 审核拒绝
func (s *Service) Reject(ctx context.Context, caseID uint, reason string, actor aftersales.Actor) (*aftersales.Case, error) {
	if err := requireAdmin(actor); err != nil {
		return nil, err
	}
	return s.mutateCase(ctx, caseID, func(ctx context.Context, c *aftersales.Case) ([]*aftersales.Log, error) {
		now := s.now()
		from := c.State
		if err := c.Reject(reason, now); err != nil {
			return nil, err
		}
		metrics.IncCounterVec(metrics.CaseTransitionsTotal, map[string]string{"action": string(aftersales.ActionReject)})
		return []*aftersales.Log{
			stateLog(c, actor, aftersales.LogReject, from, "审核拒绝:"+reason, now),
		}, nil
	})
}

// Cancel 买家撤销申请(仅待审核)
func (s *Service) Cancel(ctx context.Context, caseID uint, actor aftersales.Actor) (*aftersales.Case, error) {
	return s.mutateCase(ctx, caseID, func(ctx context.Context, c *aftersales.Case) ([]*aftersales.Log, error) {
		if err := requireOwner(c, actor); err != nil {
			return nil, err
		}
		now := s.now()
		from := c.State
		if err := c.Cancel(now); err != nil {
			return nil, err
		}
		metrics.IncCounterVec(metrics.CaseTransitionsTotal, map[string]string{"action": string(aftersales.ActionCancel)})
		return []*aftersales.Log{stateLog(c, actor, aftersales.LogCancel, from, "撤销申请", now)}, nil
	})
}

// Complete 完成售后
func (s *Service) Complete(ctx context.Context, caseID uint, actor aftersales.Actor) (*aftersales.Case, error) {
	if err := requireAdmin(actor); err != nil {
		return nil, err
	}
	return s.mutateCase(ctx, caseID, func(ctx context.Context, c *aftersales.Case) ([]*aftersales.Log, error) {
		now := s.now()
		from := c.State
		if err := c.Complete(now); err != nil {
			return nil, err
		}
		metrics.IncCounterVec(metrics.CaseTransitionsTotal, map[string]string{"action": string(aftersales.ActionComplete)})
		return []*aftersales.Log{stateLog(c, actor, aftersales.LogComplete, from, "售后完成", now)}, nil
	})
}

// Close 人工关闭(退款多次失败、验货不通过、拒绝换货)
func (s *Service) Close(ctx context.Context, caseID uint, note string, actor aftersales.Actor) (*aftersales.Case, error) {
	if err := requireAdmin(actor); err != nil {
		return nil, err
	}
	return s.mutateCase(ctx, caseID, func(ctx context.Context, c *aftersales.Case) ([]*aftersales.Log, error) {
		now := s.now()
		from := c.State
		if err := c.Close(note, now); err != nil {
			return nil, err
		}
		more, err := s.cancelPendingReturns(ctx, c, actor)
		if err != nil {
			return nil, err
		}
		metrics.IncCounterVec(metrics.CaseTransitionsTotal, map[string]string{"action": string(aftersales.ActionClose)})
		return append([]*aftersales.Log{stateLog(c, actor, aftersales.LogClose, from, "关闭售后:"+note, now)}, more...), nil
	})
}
