package aftersales

import (
	"context"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/xiebiao/aftersales/internal/domain/aftersales"
	"github.com/xiebiao/aftersales/internal/domain/suborder"
	"github.com/xiebiao/aftersales/pkg/metrics"
)

// ModifyRequest 被拒绝后修改申请
type ModifyRequest struct {
	Fields aftersales.Modification
	Reason string // 修改说明,写入日志
}

// Modify 被拒绝后修改并重新提交
// 重新提交时要像申请一样锁定订单明细并重新计算可退数量
func (s *Service) Modify(ctx context.Context, caseID uint, req ModifyRequest, actor aftersales.Actor) (*aftersales.Case, error) {
	return s.mutateCase(ctx, caseID, func(ctx context.Context, c *aftersales.Case) ([]*aftersales.Log, error) {
		if err := requireOwner(c, actor); err != nil {
			return nil, err
		}
		// 拒绝期间数量已释放,可能被其他申请占用;重新提交前按生效数量重新校验
		if c.State == aftersales.StateRejected {
			qty := c.Quantity
			if q := req.Fields.Quantity; q != nil && *q > 0 {
				qty = *q
			}
			if err := s.checkRequantify(ctx, c, qty); err != nil {
				return nil, err
			}
		}

		now := s.now()
		from := c.State
		changed, err := c.Modify(req.Fields, s.cfg.MaxModifyCount, now, s.cfg.SLA)
		if err != nil {
			return nil, err
		}

		content := "修改后重新提交"
		if req.Reason != "" {
			content += ":" + req.Reason
		}
		l := stateLog(c, actor, aftersales.LogModify, from, content, now).
			With("changed", changed).
			With("modification_count", c.ModificationCount)
		metrics.IncCounterVec(metrics.CaseTransitionsTotal, map[string]string{"action": string(aftersales.ActionModify)})
		return []*aftersales.Log{l}, nil
	})
}

// checkRequantify REJECTED的售后单不占用数量,修改后的数量要和其他有效申请一起不超过购买数量
func (s *Service) checkRequantify(ctx context.Context, c *aftersales.Case, quantity int) error {
	line, err := s.catalog.LockOrderLine(ctx, c.OrderProductID)
	if err != nil {
		return err
	}
	claims, err := s.cases.SumActiveClaims(ctx, []uint{c.OrderProductID})
	if err != nil {
		return err
	}
	var others []aftersales.ClaimedAmount
	for _, cl := range claims[c.OrderProductID] {
		if cl.CaseID != c.ID {
			others = append(others, cl)
		}
	}
	if _, remaining := aftersales.MaxRefundable(line.Quantity, others); quantity > remaining {
		return aftersales.ErrQuantityExceeded.WithField("quantity").
			Withf("requested quantity %d exceeds max refundable quantity %d", quantity, remaining)
	}
	return nil
}

// ModifyRefundAmount 客服修改实际退款金额
// 未执行的退款单金额同步修改;退款已提交网关或已成功时不允许修改
func (s *Service) ModifyRefundAmount(ctx context.Context, caseID uint, amount decimal.Decimal, reason string, actor aftersales.Actor) (*aftersales.Case, error) {
	if err := requireAdmin(actor); err != nil {
		return nil, err
	}
	if strings.TrimSpace(reason) == "" {
		return nil, aftersales.ErrReasonRequired.WithField("reason")
	}
	return s.mutateCase(ctx, caseID, func(ctx context.Context, c *aftersales.Case) ([]*aftersales.Log, error) {
		l, err := s.AdjustRefundAmount(ctx, c, amount, reason, actor)
		if err != nil {
			return nil, err
		}
		return []*aftersales.Log{l}, nil
	})
}

// AdjustRefundAmount 在已加锁的售后单上修改退款金额并同步未执行的退款单,必须在事务中调用
func (s *Service) AdjustRefundAmount(ctx context.Context, c *aftersales.Case, amount decimal.Decimal, reason string, actor aftersales.Actor) (*aftersales.Log, error) {
	refunds, err := s.refunds.FindByCaseID(ctx, c.ID)
	if err != nil {
		return nil, err
	}
	for _, r := range refunds {
		if r.Status == suborder.RefundStatusProcessing || r.Status == suborder.RefundStatusSuccess {
			return nil, aftersales.ErrRefundSettled
		}
	}

	now := s.now()
	before := c.ActualRefundAmount
	if err := c.ModifyRefundAmount(amount, reason, now); err != nil {
		return nil, err
	}
	for _, r := range refunds {
		if err := r.UpdateAmount(c.ActualRefundAmount, now); err != nil {
			return nil, err
		}
		if err := s.refunds.Update(ctx, r); err != nil {
			return nil, err
		}
	}
	return aftersales.NewLog(c.ID, actor, aftersales.LogModifyRefundAmount, "修改退款金额:"+reason, now).
		With("before", before.StringFixed(2)).
		With("after", c.ActualRefundAmount.StringFixed(2)), nil
}
