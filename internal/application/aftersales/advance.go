package aftersales

import (
	"context"

	"github.com/xiebiao/aftersales/internal/domain/aftersales"
	apperrors "github.com/xiebiao/aftersales/pkg/errors"
	"github.com/xiebiao/aftersales/pkg/metrics"
)

// advanceActions 可以通过Advance手动推进的操作
// 审核/拒绝/完成/关闭有各自的入口(需要原因或权限不同)
var advanceActions = map[aftersales.Action]bool{
	aftersales.ActionWaitReturn:   true,
	aftersales.ActionWaitExchange: true,
	aftersales.ActionWaitResend:   true,
	aftersales.ActionShipBack:     true,
	aftersales.ActionReceive:      true,
}

// Advance 客服手动推进一步(AutoAdvance关闭或需要补推时使用)
// 进入新状态后按需创建子单
func (s *Service) Advance(ctx context.Context, caseID uint, action aftersales.Action, actor aftersales.Actor) (*aftersales.Case, error) {
	if err := requireAdmin(actor); err != nil {
		return nil, err
	}
	if !advanceActions[action] {
		return nil, apperrors.ErrInvalidParams.WithField("action").Withf("不支持的推进操作: %s", action)
	}
	return s.mutateCase(ctx, caseID, func(ctx context.Context, c *aftersales.Case) ([]*aftersales.Log, error) {
		now := s.now()
		from := c.State
		if err := c.Fire(action, now, s.cfg.SLA); err != nil {
			return nil, err
		}
		logs := []*aftersales.Log{stateLog(c, actor, aftersales.LogAdvance, from, "推进:"+string(action), now)}

		more, err := s.Provision(ctx, c, actor, false)
		if err != nil {
			return nil, err
		}
		metrics.IncCounterVec(metrics.CaseTransitionsTotal, map[string]string{"action": string(action)})
		return append(logs, more...), nil
	})
}
