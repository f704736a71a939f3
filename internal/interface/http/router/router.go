package router

import (
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/zap"

	"github.com/xiebiao/aftersales/internal/interface/http/handler"
	"github.com/xiebiao/aftersales/internal/interface/http/middleware"
	"github.com/xiebiao/aftersales/pkg/response"
)

// Handlers 路由需要的全部处理器
type Handlers struct {
	Aftersales *handler.AftersalesHandler
	SubOrders  *handler.SubOrderHandler
	Oms        *handler.OmsHandler
	Jobs       *handler.JobHandler
}

// RouterOptions 路由开关
type RouterOptions struct {
	Mode    string // debug | release | test
	Swagger bool
}

// NewRouter 注册全部路由
//
// 路由分组：
//   - /api/v1/aftersales、/returns、/exchanges：买家（客服也可访问，权限在应用层判断）
//   - /api/v1/admin：客服后台，RequireAdmin
//   - /api/v1/oms：OMS推送，IP白名单 + API Key，不走JWT
func NewRouter(opts RouterOptions, h Handlers, auth *middleware.AuthMiddleware, omsGuard *middleware.OMSGuard, log *zap.Logger) *gin.Engine {
	if opts.Mode != "" {
		gin.SetMode(opts.Mode)
	}

	r := gin.New()
	r.Use(gin.Recovery(), middleware.Logger(log))

	r.GET("/ping", func(c *gin.Context) {
		response.Success(c, gin.H{
			"message": "pong",
			"status":  "healthy",
		})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))
	if opts.Swagger {
		r.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	v1 := r.Group("/api/v1")

	buyer := v1.Group("")
	buyer.Use(auth.RequireAuth())
	{
		as := buyer.Group("/aftersales")
		as.POST("/calculate", h.Aftersales.Calculate)
		as.POST("", h.Aftersales.Apply)
		as.GET("", h.Aftersales.List)
		as.GET("/:id", h.Aftersales.Get)
		as.GET("/:id/logs", h.Aftersales.Logs)
		as.PUT("/:id", h.Aftersales.Modify)
		as.POST("/:id/cancel", h.Aftersales.Cancel)

		buyer.POST("/returns/:id/ship", h.SubOrders.ShipReturn)
		buyer.POST("/exchanges/:id/ship-return", h.SubOrders.ShipExchangeReturn)
		buyer.POST("/exchanges/:id/complete", h.SubOrders.CompleteExchange)
	}

	admin := v1.Group("/admin")
	admin.Use(auth.RequireAuth(), auth.RequireAdmin())
	{
		as := admin.Group("/aftersales")
		as.POST("/:id/approve", h.Aftersales.Approve)
		as.POST("/:id/reject", h.Aftersales.Reject)
		as.POST("/:id/complete", h.Aftersales.Complete)
		as.POST("/:id/close", h.Aftersales.Close)
		as.POST("/:id/advance", h.Aftersales.Advance)
		as.PUT("/:id/refund-amount", h.Aftersales.ModifyRefundAmount)

		admin.POST("/refunds/:id/execute", h.SubOrders.ExecuteRefund)
		admin.POST("/refunds/:id/retry", h.SubOrders.RetryRefund)

		admin.POST("/returns/:id/receive", h.SubOrders.ReceiveReturn)
		admin.POST("/returns/:id/inspect", h.SubOrders.InspectReturn)

		admin.POST("/exchanges/:id/approve", h.SubOrders.ApproveExchange)
		admin.POST("/exchanges/:id/reject", h.SubOrders.RejectExchange)
		admin.POST("/exchanges/:id/receive-return", h.SubOrders.ReceiveExchangeReturn)
		admin.POST("/exchanges/:id/ship", h.SubOrders.ShipExchange)

		admin.POST("/jobs/timeouts", h.Jobs.RunTimeouts)
	}

	omsGroup := v1.Group("/oms")
	omsGroup.Use(omsGuard.Handle())
	{
		omsGroup.POST("/aftersales", h.Oms.Create)
		omsGroup.POST("/aftersales/sync", h.Oms.Sync)
		omsGroup.PUT("/aftersales/info", h.Oms.UpdateInfo)
		omsGroup.PUT("/aftersales/status", h.Oms.UpdateStatus)
		omsGroup.POST("/returns/tracking", h.SubOrders.PushTracking)
	}

	return r
}
