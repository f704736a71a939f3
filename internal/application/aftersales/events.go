package aftersales

import (
	"context"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/xiebiao/aftersales/internal/domain/aftersales"
)

// 路由键前缀,消费方按 aftersales.case.# 订阅
const caseEventPrefix = "aftersales.case."

// CaseEvent 售后单变更事件(事务提交后发布)
type CaseEvent struct {
	CaseID       uint                 `json:"case_id"`
	AftersalesNo string               `json:"aftersales_no"`
	OrderID      string               `json:"order_id"`
	Type         aftersales.CaseType  `json:"type"`
	Action       aftersales.LogAction `json:"action"`
	FromState    aftersales.State     `json:"from_state"`
	ToState      aftersales.State     `json:"to_state"`
	ActorType    aftersales.ActorType `json:"actor_type"`
	ActorID      uint                 `json:"actor_id"`
	OccurredAt   time.Time            `json:"occurred_at"`
}

// RoutingKey 如 aftersales.case.approve
func (e CaseEvent) RoutingKey() string {
	return caseEventPrefix + strings.ToLower(string(e.Action))
}

// newCaseEvent 用第一条日志的动作和操作人描述本次变更
func newCaseEvent(c *aftersales.Case, from aftersales.State, first *aftersales.Log) CaseEvent {
	return CaseEvent{
		CaseID:       c.ID,
		AftersalesNo: c.AftersalesNo,
		OrderID:      c.OrderID,
		Type:         c.Type,
		Action:       first.Action,
		FromState:    from,
		ToState:      c.State,
		ActorType:    first.Actor.Type,
		ActorID:      first.Actor.ID,
		OccurredAt:   first.CreatedAt,
	}
}

func (s *Service) publishCaseEvent(ctx context.Context, c *aftersales.Case, from aftersales.State, first *aftersales.Log) {
	publishCaseEvent(ctx, s.events, s.logger, newCaseEvent(c, from, first))
}

// publishCaseEvent 发布失败只记录日志
func publishCaseEvent(ctx context.Context, events EventPublisher, logger *zap.Logger, evt CaseEvent) {
	if events == nil {
		return
	}
	if err := events.Publish(ctx, evt.RoutingKey(), evt); err != nil {
		logger.Warn("发布售后事件失败",
			zap.Uint("case_id", evt.CaseID),
			zap.String("aftersales_no", evt.AftersalesNo),
			zap.String("action", string(evt.Action)),
			zap.Error(err),
		)
	}
}

// PublishCaseChange 供其他应用服务(OMS同步)在提交后发布事件
func (s *Service) PublishCaseChange(ctx context.Context, c *aftersales.Case, from aftersales.State, first *aftersales.Log) {
	if first == nil {
		return
	}
	s.publishCaseEvent(ctx, c, from, first)
}
