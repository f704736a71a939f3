package aftersales

import (
	"context"

	"go.uber.org/zap"

	"github.com/xiebiao/aftersales/internal/domain/aftersales"
	"github.com/xiebiao/aftersales/internal/domain/suborder"
)

// CaseDetail 售后单详情
type CaseDetail struct {
	Case             *aftersales.Case
	AvailableActions []aftersales.Action
	RefundOrders     []*suborder.RefundOrder
	ReturnOrders     []*suborder.ReturnOrder
	ExchangeOrders   []*suborder.ExchangeOrder
}

// Get 查询售后单详情(含子单)
func (s *Service) Get(ctx context.Context, caseID uint, actor aftersales.Actor) (*CaseDetail, error) {
	c, err := s.cases.FindByID(ctx, caseID)
	if err != nil {
		return nil, err
	}
	if err := requireOwner(c, actor); err != nil {
		return nil, err
	}

	detail := &CaseDetail{Case: c, AvailableActions: c.AvailableActions(s.cfg.MaxModifyCount)}
	if detail.RefundOrders, err = s.refunds.FindByCaseID(ctx, c.ID); err != nil {
		return nil, err
	}
	if detail.ReturnOrders, err = s.returns.FindByCaseID(ctx, c.ID); err != nil {
		return nil, err
	}
	if detail.ExchangeOrders, err = s.exchanges.FindByCaseID(ctx, c.ID); err != nil {
		return nil, err
	}
	return detail, nil
}

// List 分页查询,买家只能看到自己的售后单
func (s *Service) List(ctx context.Context, q aftersales.ListQuery, actor aftersales.Actor) ([]*aftersales.Case, int64, error) {
	if actor.Type == aftersales.ActorUser {
		q.UserID = actor.ID
	}
	if q.Page <= 0 {
		q.Page = 1
	}
	if q.PageSize <= 0 || q.PageSize > 100 {
		q.PageSize = 20
	}
	return s.cases.List(ctx, q)
}

// Logs 操作日志(按时间升序)
func (s *Service) Logs(ctx context.Context, caseID uint, actor aftersales.Actor) ([]*aftersales.Log, error) {
	c, err := s.cases.FindByID(ctx, caseID)
	if err != nil {
		return nil, err
	}
	if err := requireOwner(c, actor); err != nil {
		return nil, err
	}
	return s.logs.ListByCase(ctx, caseID)
}

// CleanupLogs 删除保留期之前的操作日志,返回删除行数
func (s *Service) CleanupLogs(ctx context.Context) (int64, error) {
	if s.cfg.LogRetention <= 0 {
		return 0, nil
	}
	cutoff := s.now().Add(-s.cfg.LogRetention)
	n, err := s.logs.DeleteBefore(ctx, cutoff)
	if err != nil {
		return 0, err
	}
	s.logger.Info("清理过期操作日志", zap.Time("cutoff", cutoff), zap.Int64("deleted", n))
	return n, nil
}
