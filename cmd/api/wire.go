//go:build wireinject
// +build wireinject

// Wire依赖注入配置文件
//
// 教学说明：
// 1. Wire在编译期生成依赖创建代码（wire_gen.go），没有运行时反射
// 2. 存储驱动（mysql/memory）在provideStorage内部选择，对Wire来说只是一个Provider
// 3. 修改本文件后运行 `wire gen ./cmd/api` 重新生成
//
// 依赖链示例：
// *gin.Engine 需要 → router.Handlers
// router.Handlers 需要 → *handler.AftersalesHandler
// *handler.AftersalesHandler 需要 → *appaftersales.Service
// *appaftersales.Service 需要 → *storage、退款网关、事件发布
// *storage 需要 → *config.Config、*zap.Logger

package main

import (
	"github.com/google/wire"
	"go.uber.org/zap"

	"github.com/xiebiao/aftersales/internal/domain/suborder"
	"github.com/xiebiao/aftersales/internal/infrastructure/config"
	"github.com/xiebiao/aftersales/internal/infrastructure/gateway"
	"github.com/xiebiao/aftersales/internal/interface/consumer"
	"github.com/xiebiao/aftersales/internal/interface/http/handler"
	"github.com/xiebiao/aftersales/internal/interface/http/middleware"
	"github.com/xiebiao/aftersales/internal/interface/http/router"
)

// infrastructureSet 存储、网关、消息
var infrastructureSet = wire.NewSet(
	provideStorage,
	provideEventPublisher,
	provideOMSConsumer,
	gateway.NewRefundGateway,
	gateway.NewConfigAddressProvider,
	wire.Bind(new(suborder.ReturnAddressProvider), new(*gateway.ConfigAddressProvider)),
)

// applicationSet 应用服务
var applicationSet = wire.NewSet(
	provideServiceConfig,
	provideService,
	provideTimeoutProcessor,
	provideReconciler,
	provideScheduler,
)

// middlewareSet 认证与OMS访问控制
var middlewareSet = wire.NewSet(
	provideJWTManager,
	middleware.NewAuthMiddleware,
	middleware.NewOMSGuard,
)

// handlerSet HTTP处理器 + OMS消息处理器
var handlerSet = wire.NewSet(
	handler.NewAftersalesHandler,
	handler.NewSubOrderHandler,
	handler.NewOmsHandler,
	provideJobHandler,
	wire.Struct(new(router.Handlers), "*"),
	consumer.NewOMSHandler,
)

// InitializeApp 初始化整个应用
// 返回的cleanup按创建的逆序关闭MQ、Redis、数据库连接
func InitializeApp(cfg *config.Config, log *zap.Logger) (*App, func(), error) {
	wire.Build(
		infrastructureSet,
		applicationSet,
		middlewareSet,
		handlerSet,
		provideEngine,
		wire.Struct(new(App), "*"),
	)
	return nil, nil, nil
}
