package main

import (
	"context"
	"fmt"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	appaftersales "github.com/xiebiao/aftersales/internal/application/aftersales"
	"github.com/xiebiao/aftersales/internal/application/oms"
	"github.com/xiebiao/aftersales/internal/domain/aftersales"
	"github.com/xiebiao/aftersales/internal/domain/suborder"
	"github.com/xiebiao/aftersales/internal/infrastructure/config"
	"github.com/xiebiao/aftersales/internal/infrastructure/persistence/memory"
	"github.com/xiebiao/aftersales/internal/infrastructure/persistence/mysql"
	"github.com/xiebiao/aftersales/internal/infrastructure/persistence/redis"
	"github.com/xiebiao/aftersales/internal/infrastructure/scheduler"
	"github.com/xiebiao/aftersales/internal/interface/consumer"
	"github.com/xiebiao/aftersales/internal/interface/http/handler"
	"github.com/xiebiao/aftersales/internal/interface/http/middleware"
	"github.com/xiebiao/aftersales/internal/interface/http/router"
	"github.com/xiebiao/aftersales/pkg/jwt"
	"github.com/xiebiao/aftersales/pkg/mq"
)

// App 组装完成的应用
type App struct {
	Config      *config.Config
	Engine      *gin.Engine
	Scheduler   *scheduler.Scheduler
	OMSConsumer *mq.Consumer // mq.enabled=false 时为nil
	OMSHandler  *consumer.OMSHandler
}

// storage 按 database.driver 选出的一组仓储
// mysql：MySQL + Redis同步锁；memory：进程内存储 + 进程内锁
type storage struct {
	Cases     aftersales.Repository
	Logs      aftersales.LogRepository
	Catalog   aftersales.OrderCatalog
	Refunds   suborder.RefundRepository
	Returns   suborder.ReturnRepository
	Exchanges suborder.ExchangeRepository
	Tx        appaftersales.TxManager
	Locker    oms.Locker
}

// provideStorage 创建存储，cleanup关闭数据库和Redis连接
func provideStorage(cfg *config.Config, log *zap.Logger) (*storage, func(), error) {
	if cfg.Database.Driver == config.DriverMemory {
		log.Warn("使用内存存储，数据不会持久化")
		store := memory.NewStore()
		return &storage{
			Cases:     memory.NewAftersalesRepository(store),
			Logs:      memory.NewLogRepository(store),
			Catalog:   memory.NewCatalog(store),
			Refunds:   memory.NewRefundRepository(store),
			Returns:   memory.NewReturnRepository(store),
			Exchanges: memory.NewExchangeRepository(store),
			Tx:        memory.NewTxManager(store),
			Locker:    oms.NewLocalLocker(),
		}, func() {}, nil
	}

	db, err := mysql.NewDB(cfg, log)
	if err != nil {
		return nil, nil, err
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, nil, fmt.Errorf("获取SQL DB失败: %w", err)
	}
	closers := []func(){func() { _ = sqlDB.Close() }}
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	var locker oms.Locker = oms.NewLocalLocker()
	if cfg.Redis.Enabled {
		client, err := redis.NewClient(cfg, log)
		if err != nil {
			cleanup()
			return nil, nil, err
		}
		closers = append(closers, func() { _ = client.Close() })
		locker = redis.NewSyncLock(client)
	} else {
		log.Warn("Redis未启用，OMS同步锁仅在本进程内生效")
	}

	return &storage{
		Cases:     mysql.NewAftersalesRepository(db),
		Logs:      mysql.NewLogRepository(db),
		Catalog:   mysql.NewOrderCatalog(db),
		Refunds:   mysql.NewRefundRepository(db),
		Returns:   mysql.NewReturnRepository(db),
		Exchanges: mysql.NewExchangeRepository(db),
		Tx:        mysql.NewTxManager(db),
		Locker:    locker,
	}, cleanup, nil
}

// provideEventPublisher mq.enabled=false 时不发布事件
// 注意返回接口nil，而不是包着nil指针的接口
func provideEventPublisher(cfg *config.Config, log *zap.Logger) (appaftersales.EventPublisher, func(), error) {
	if !cfg.MQ.Enabled {
		return nil, func() {}, nil
	}
	p, err := mq.NewPublisher(cfg.MQ.URL, cfg.MQ.EventExchange, "topic", log)
	if err != nil {
		return nil, nil, err
	}
	return p, func() { _ = p.Close() }, nil
}

// provideOMSConsumer OMS消息消费者
func provideOMSConsumer(cfg *config.Config, log *zap.Logger) (*mq.Consumer, func(), error) {
	if !cfg.MQ.Enabled {
		return nil, func() {}, nil
	}
	c, err := mq.NewConsumer(cfg.MQ.URL, cfg.MQ.OMSExchange, "topic", cfg.MQ.OMSQueue, cfg.MQ.OMSBindings, log)
	if err != nil {
		return nil, nil, err
	}
	return c, func() { _ = c.Close() }, nil
}

func provideServiceConfig(cfg *config.Config) appaftersales.Config {
	a := cfg.Aftersales
	return appaftersales.Config{
		SLA: aftersales.SLA{
			Approval:       a.ApprovalTimeout,
			ReturnShipment: a.ReturnShipmentTimeout,
			ReturnReceipt:  a.ReturnReceiptTimeout,
		},
		MaxModifyCount: a.MaxModifyCount,
		AutoAdvance:    a.AutoAdvance,
		RefundTimeout:  a.RefundTimeout,
		LogRetention:   a.LogRetention,
	}
}

func provideService(
	st *storage,
	addresses suborder.ReturnAddressProvider,
	gateway appaftersales.RefundGateway,
	events appaftersales.EventPublisher,
	cfg appaftersales.Config,
	log *zap.Logger,
) *appaftersales.Service {
	return appaftersales.NewService(appaftersales.Deps{
		Cases:     st.Cases,
		Logs:      st.Logs,
		Catalog:   st.Catalog,
		Refunds:   st.Refunds,
		Returns:   st.Returns,
		Exchanges: st.Exchanges,
		Addresses: addresses,
		Gateway:   gateway,
		Tx:        st.Tx,
		Events:    events,
		Logger:    log,
		Clock:     time.Now,
	}, cfg)
}

// provideTimeoutProcessor 赠品明细不参与自动处理
func provideTimeoutProcessor(svc *appaftersales.Service, st *storage) *appaftersales.TimeoutProcessor {
	return appaftersales.NewTimeoutProcessor(svc, appaftersales.CatalogEligibility(st.Catalog))
}

func provideReconciler(st *storage, svc *appaftersales.Service, cfg *config.Config, log *zap.Logger) *oms.Reconciler {
	return oms.NewReconciler(oms.Deps{
		Cases:    st.Cases,
		Logs:     st.Logs,
		Catalog:  st.Catalog,
		Tx:       st.Tx,
		Service:  svc,
		Locker:   st.Locker,
		Validate: validator.New(),
		Logger:   log,
		Clock:    time.Now,
		LockTTL:  cfg.OMS.LockTTL,
	})
}

func provideJWTManager(cfg *config.Config) *jwt.Manager {
	return jwt.NewManager(cfg.JWT.Secret, cfg.JWT.AccessTokenExpire)
}

func provideJobHandler(tp *appaftersales.TimeoutProcessor, cfg *config.Config) *handler.JobHandler {
	return handler.NewJobHandler(tp, cfg.Aftersales.TimeoutBatchSize)
}

func provideScheduler(tp *appaftersales.TimeoutProcessor, svc *appaftersales.Service, cfg *config.Config, log *zap.Logger) *scheduler.Scheduler {
	return scheduler.New(tp, svc, cfg, log)
}

// provideEngine 创建Gin引擎，release模式关闭Swagger
func provideEngine(cfg *config.Config, h router.Handlers, auth *middleware.AuthMiddleware, guard *middleware.OMSGuard, log *zap.Logger) *gin.Engine {
	return router.NewRouter(router.RouterOptions{
		Mode:    cfg.Server.Mode,
		Swagger: cfg.Server.Mode != gin.ReleaseMode,
	}, h, auth, guard, log)
}

// runConsumer 阻塞消费OMS推送，ctx取消时返回
func (a *App) runConsumer(ctx context.Context, log *zap.Logger) {
	if a.OMSConsumer == nil {
		return
	}
	if err := a.OMSConsumer.Consume(ctx, a.OMSHandler.Handle); err != nil {
		log.Error("OMS消费者退出", zap.Error(err))
	}
}
