package aftersales

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/xiebiao/aftersales/internal/domain/aftersales"
	"github.com/xiebiao/aftersales/internal/domain/suborder"
	apperrors "github.com/xiebiao/aftersales/pkg/errors"
)

// TxManager 事务管理器(由mysql.TxManager实现)
// fn内的仓储操作通过ctx拿到同一个事务
type TxManager interface {
	Transaction(ctx context.Context, fn func(ctx context.Context) error) error
}

// EventPublisher 领域事件发布(由mq.Publisher实现)
type EventPublisher interface {
	Publish(ctx context.Context, routingKey string, message interface{}) error
}

// Clock 时钟,测试中注入固定时间
type Clock func() time.Time

// Config 售后业务配置
type Config struct {
	SLA            aftersales.SLA
	MaxModifyCount int           // 被拒绝后最多修改次数
	AutoAdvance    bool          // 审核通过后自动进入类型对应的下一状态
	RefundTimeout  time.Duration // 单次退款执行(含网关调用)超时
	LogRetention   time.Duration // 操作日志保留期
}

// DefaultConfig 默认配置
func DefaultConfig() Config {
	return Config{
		SLA:            aftersales.DefaultSLA(),
		MaxModifyCount: 3,
		AutoAdvance:    true,
		RefundTimeout:  30 * time.Second,
		LogRetention:   180 * 24 * time.Hour,
	}
}

// Deps 服务依赖
type Deps struct {
	Cases     aftersales.Repository
	Logs      aftersales.LogRepository
	Catalog   aftersales.OrderCatalog
	Refunds   suborder.RefundRepository
	Returns   suborder.ReturnRepository
	Exchanges suborder.ExchangeRepository
	Addresses suborder.ReturnAddressProvider
	Gateway   RefundGateway
	Tx        TxManager
	Events    EventPublisher // 可为空
	Logger    *zap.Logger
	Clock     Clock
}

// Service 售后应用服务
// 教学要点:
// 1. 每个写操作一个事务:加锁读取 → 领域方法 → 保存 → 写日志
// 2. 操作人(Actor)显式传入,日志和权限判断都只看参数
// 3. 领域事件在事务提交后发布,发布失败只记日志不影响业务
type Service struct {
	cases     aftersales.Repository
	logs      aftersales.LogRepository
	catalog   aftersales.OrderCatalog
	refunds   suborder.RefundRepository
	returns   suborder.ReturnRepository
	exchanges suborder.ExchangeRepository
	addresses suborder.ReturnAddressProvider
	gateway   RefundGateway
	tx        TxManager
	events    EventPublisher
	logger    *zap.Logger
	clock     Clock
	cfg       Config
}

// NewService 创建售后应用服务
func NewService(deps Deps, cfg Config) *Service {
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	if deps.Clock == nil {
		deps.Clock = time.Now
	}
	if cfg.MaxModifyCount <= 0 {
		cfg.MaxModifyCount = DefaultConfig().MaxModifyCount
	}
	if cfg.RefundTimeout <= 0 {
		cfg.RefundTimeout = DefaultConfig().RefundTimeout
	}
	return &Service{
		cases:     deps.Cases,
		logs:      deps.Logs,
		catalog:   deps.Catalog,
		refunds:   deps.Refunds,
		returns:   deps.Returns,
		exchanges: deps.Exchanges,
		addresses: deps.Addresses,
		gateway:   deps.Gateway,
		tx:        deps.Tx,
		events:    deps.Events,
		logger:    deps.Logger,
		clock:     deps.Clock,
		cfg:       cfg,
	}
}

// Config 当前配置
func (s *Service) Config() Config {
	return s.cfg
}

func (s *Service) now() time.Time {
	return s.clock()
}

// caseMutation 在已加锁的售后单上执行的修改,返回要写入的日志
type caseMutation func(ctx context.Context, c *aftersales.Case) ([]*aftersales.Log, error)

// mutateCase 售后单写操作的统一流程
//  1. 开启事务,SELECT ... FOR UPDATE 锁定售后单
//  2. 执行领域修改
//  3. 乐观锁更新(版本不一致返回ErrConcurrentUpdate)
//  4. 同一事务内写日志
//  5. 提交后发布事件
func (s *Service) mutateCase(ctx context.Context, caseID uint, fn caseMutation) (*aftersales.Case, error) {
	var (
		result *aftersales.Case
		from   aftersales.State
		logs   []*aftersales.Log
	)
	err := s.tx.Transaction(ctx, func(txCtx context.Context) error {
		c, err := s.cases.LockByID(txCtx, caseID)
		if err != nil {
			return err
		}
		from = c.State

		logs, err = fn(txCtx, c)
		if err != nil {
			return err
		}
		if len(logs) == 0 {
			result = c
			return nil
		}
		if err := s.cases.Update(txCtx, c); err != nil {
			return err
		}
		if err := s.logs.Append(txCtx, logs...); err != nil {
			return err
		}
		result = c
		return nil
	})
	if err != nil {
		return nil, err
	}
	if len(logs) > 0 {
		s.publishCaseEvent(ctx, result, from, logs[0])
	}
	return result, nil
}

// requireAdmin 审核类操作只允许客服或系统
func requireAdmin(actor aftersales.Actor) error {
	switch actor.Type {
	case aftersales.ActorAdmin, aftersales.ActorSystem, aftersales.ActorOMS:
		return nil
	}
	return apperrors.ErrForbidden
}

// requireOwner 买家只能操作自己的售后单
func requireOwner(c *aftersales.Case, actor aftersales.Actor) error {
	if actor.Type == aftersales.ActorUser && !c.IsOwnedBy(actor.ID) {
		return aftersales.ErrCaseNotFound
	}
	return nil
}

// stateLog 带状态变化的日志
func stateLog(c *aftersales.Case, actor aftersales.Actor, action aftersales.LogAction, from aftersales.State, content string, now time.Time) *aftersales.Log {
	return aftersales.NewLog(c.ID, actor, action, content, now).WithStates(from, c.State)
}
