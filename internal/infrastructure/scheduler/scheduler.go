// Package scheduler 后台定时任务
//
// 两个任务：
//  1. 超时扫描：每 aftersales.sweep_interval 执行一次 ProcessTimeouts
//  2. 日志清理：每24小时删除保留期之前的操作日志
//
// 多实例部署时超时扫描可以同时运行：每个售后单在事务内加行锁并重新校验，
// 重复扫描只会跳过已处理的单据。
package scheduler

import (
	"context"
	"time"

	"go.uber.org/zap"

	appaftersales "github.com/xiebiao/aftersales/internal/application/aftersales"
	"github.com/xiebiao/aftersales/internal/infrastructure/config"
)

// TimeoutRunner 超时处理(由appaftersales.TimeoutProcessor实现)
type TimeoutRunner interface {
	ProcessTimeouts(ctx context.Context, batchSize int, dryRun bool) (*appaftersales.TimeoutResult, error)
}

// LogCleaner 日志清理(由appaftersales.Service实现)
type LogCleaner interface {
	CleanupLogs(ctx context.Context) (int64, error)
}

// Scheduler 定时任务
type Scheduler struct {
	timeouts      TimeoutRunner
	cleaner       LogCleaner
	batchSize     int
	sweepInterval time.Duration
	cleanInterval time.Duration
	logger        *zap.Logger
}

// New 创建定时任务
func New(timeouts TimeoutRunner, cleaner LogCleaner, cfg *config.Config, log *zap.Logger) *Scheduler {
	return &Scheduler{
		timeouts:      timeouts,
		cleaner:       cleaner,
		batchSize:     cfg.Aftersales.TimeoutBatchSize,
		sweepInterval: cfg.Aftersales.SweepInterval,
		cleanInterval: 24 * time.Hour,
		logger:        log.Named("scheduler"),
	}
}

// Run 阻塞运行，直到ctx取消
func (s *Scheduler) Run(ctx context.Context) {
	sweep := time.NewTicker(s.sweepInterval)
	defer sweep.Stop()
	clean := time.NewTicker(s.cleanInterval)
	defer clean.Stop()

	s.logger.Info("定时任务已启动",
		zap.Duration("sweep_interval", s.sweepInterval),
		zap.Int("batch_size", s.batchSize))

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("定时任务已停止")
			return
		case <-sweep.C:
			s.SweepOnce(ctx)
		case <-clean.C:
			s.CleanOnce(ctx)
		}
	}
}

// SweepOnce 执行一次超时扫描
// 单个售后单失败已在ProcessTimeouts内部计数，这里只记录整批失败
func (s *Scheduler) SweepOnce(ctx context.Context) {
	result, err := s.timeouts.ProcessTimeouts(ctx, s.batchSize, false)
	if err != nil {
		s.logger.Error("超时扫描失败", zap.Error(err))
		return
	}
	if result.Processed+result.Skipped+result.Errors == 0 {
		return
	}
	s.logger.Info("超时扫描完成",
		zap.Int("processed", result.Processed),
		zap.Int("skipped", result.Skipped),
		zap.Int("errors", result.Errors))
}

// CleanOnce 执行一次日志清理
func (s *Scheduler) CleanOnce(ctx context.Context) {
	n, err := s.cleaner.CleanupLogs(ctx)
	if err != nil {
		s.logger.Error("清理售后日志失败", zap.Error(err))
		return
	}
	s.logger.Info("清理售后日志", zap.Int64("deleted", n))
}
