package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"go.uber.org/zap"

	_ "github.com/xiebiao/aftersales/docs"
	"github.com/xiebiao/aftersales/internal/infrastructure/config"
	"github.com/xiebiao/aftersales/pkg/logger"
	"github.com/xiebiao/aftersales/pkg/metrics"
	"github.com/xiebiao/aftersales/pkg/response"
	"github.com/xiebiao/aftersales/pkg/tracing"
)

// @title           售后服务 API
// @version         1.0
// @description     售后申请、审核、退款/退货/换货子单、OMS同步
// @BasePath        /api/v1
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization

// main 主程序入口
//
// 启动顺序：
// 配置 → 日志 → 指标/链路追踪 → Wire组装 → HTTP服务 + 定时任务 + OMS消费者
//
// 优雅关闭：
// 收到SIGINT/SIGTERM后先停止接收HTTP请求，再取消后台任务，最后关闭连接
func main() {
	// 1. 加载配置
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("加载配置失败: %v", err)
	}

	// 2. 日志
	zlog, err := logger.New(logger.Options{
		Level:        cfg.Log.Level,
		Format:       cfg.Log.Format,
		Output:       cfg.Log.Output,
		EnableCaller: cfg.Log.EnableCaller,
		MaxSizeMB:    cfg.Log.MaxSizeMB,
		MaxBackups:   cfg.Log.MaxBackups,
		MaxAgeDays:   cfg.Log.MaxAgeDays,
		Compress:     cfg.Log.Compress,
	})
	if err != nil {
		log.Fatalf("初始化日志失败: %v", err)
	}
	defer func() { _ = zlog.Sync() }()
	response.SetLogger(zlog)

	zlog.Info("配置加载成功",
		zap.Int("port", cfg.Server.Port),
		zap.String("mode", cfg.Server.Mode),
		zap.String("driver", cfg.Database.Driver),
		zap.Bool("mq", cfg.MQ.Enabled),
	)

	// 3. 指标、链路追踪
	metrics.InitMetrics()
	if cfg.Tracing.Enabled {
		shutdown, err := tracing.InitTracer(cfg.Tracing.ServiceName, cfg.Tracing.Endpoint, cfg.Tracing.SampleRatio)
		if err != nil {
			zlog.Warn("链路追踪初始化失败，继续启动", zap.Error(err))
		} else {
			defer func() {
				if err := shutdown(context.Background()); err != nil {
					zlog.Warn("关闭链路追踪失败", zap.Error(err))
				}
			}()
		}
	}

	// 4. 依赖注入
	app, cleanup, err := InitializeApp(cfg, zlog)
	if err != nil {
		zlog.Fatal("初始化应用失败", zap.Error(err))
	}
	defer cleanup()

	// 5. 后台任务
	ctx, cancel := context.WithCancel(context.Background())
	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		app.Scheduler.Run(ctx)
	}()
	go func() {
		defer wg.Done()
		app.runConsumer(ctx, zlog)
	}()

	// 6. HTTP服务
	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      app.Engine,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}
	go func() {
		zlog.Info("服务启动成功", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			zlog.Fatal("HTTP服务启动失败", zap.Error(err))
		}
	}()

	// 7. 等待退出信号
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	zlog.Info("正在关闭服务...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		zlog.Error("HTTP服务关闭失败", zap.Error(err))
	}

	cancel()
	wg.Wait()
	zlog.Info("服务已退出")
}
