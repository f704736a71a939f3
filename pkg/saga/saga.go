// Package saga 实现通用的Saga编排
//
// Saga模式核心思想：
// 1. 将长流程拆分为多个本地短事务
// 2. 每个短事务有对应的补偿操作
// 3. 如果某步失败，按逆序执行已完成步骤的补偿操作
//
// 在售后系统中用于退款执行：本地事务标记退款子单处理中 → 调用外部退款网关 →
// 本地事务确认成功；网关失败时补偿第一步，把子单标记为失败并累加重试次数。
package saga

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Step 表示Saga中的一个步骤
// Action和Compensate都必须支持幂等（允许重试）
type Step struct {
	Name       string
	Action     func(ctx context.Context) error
	Compensate func(ctx context.Context) error
}

// Saga 表示一个Saga事务
// 一个Saga实例只执行一次，不可并发复用
type Saga struct {
	steps              []Step
	executed           []Step
	timeout            time.Duration
	onCompensateFailed func(step string, err error)
}

// StepError Execute失败时返回的错误
// Step是失败的步骤，Cause是原始错误，CompensateErr汇总补偿阶段的错误（可能为nil）
type StepError struct {
	Index         int
	Step          string
	Cause         error
	CompensateErr error
}

func (e *StepError) Error() string {
	msg := fmt.Sprintf("步骤[%d:%s]执行失败: %v", e.Index, e.Step, e.Cause)
	if e.CompensateErr != nil {
		msg += fmt.Sprintf("; 补偿失败: %v", e.CompensateErr)
	}
	return msg
}

// Unwrap 让errors.Is/As能穿透到业务错误
func (e *StepError) Unwrap() error {
	return e.Cause
}

// NewSaga 创建一个新的Saga事务
//
// 示例：
//
//	s := NewSaga(30 * time.Second)
//	s.AddStep("标记处理中", markProcessing, markFailed)
//	s.AddStep("调用退款网关", callGateway, nil)
//	err := s.Execute(ctx)
func NewSaga(timeout time.Duration) *Saga {
	return &Saga{
		steps:   make([]Step, 0),
		timeout: timeout,
	}
}

// OnCompensateFailed 设置补偿失败回调（通常用于写日志、告警）
func (s *Saga) OnCompensateFailed(fn func(step string, err error)) *Saga {
	s.onCompensateFailed = fn
	return s
}

// AddStep 添加一个Saga步骤，按添加顺序执行，按逆序补偿
// Action和Compensate都可以为nil
func (s *Saga) AddStep(name string, action, compensate func(ctx context.Context) error) {
	s.steps = append(s.steps, Step{
		Name:       name,
		Action:     action,
		Compensate: compensate,
	})
}

// Execute 执行Saga事务
// 某步失败或整体超时时触发补偿，返回*StepError
func (s *Saga) Execute(ctx context.Context) error {
	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	for i, step := range s.steps {
		select {
		case <-ctx.Done():
			// 补偿使用新Context，避免补偿也超时
			return &StepError{
				Index:         i,
				Step:          step.Name,
				Cause:         fmt.Errorf("saga超时: %w", ctx.Err()),
				CompensateErr: s.compensate(context.WithoutCancel(ctx)),
			}
		default:
		}

		if step.Action != nil {
			if err := step.Action(ctx); err != nil {
				return &StepError{
					Index:         i,
					Step:          step.Name,
					Cause:         err,
					CompensateErr: s.compensate(context.WithoutCancel(ctx)),
				}
			}
		}

		s.executed = append(s.executed, step)
	}

	return nil
}

// compensate 逆序执行已完成步骤的补偿
// 某个补偿失败也继续执行后续补偿（尽最大努力），最后汇总返回
func (s *Saga) compensate(ctx context.Context) error {
	var errs []error
	for i := len(s.executed) - 1; i >= 0; i-- {
		step := s.executed[i]
		if step.Compensate == nil {
			continue
		}
		if err := step.Compensate(ctx); err != nil {
			if s.onCompensateFailed != nil {
				s.onCompensateFailed(step.Name, err)
			}
			errs = append(errs, fmt.Errorf("%s: %w", step.Name, err))
		}
	}

	s.executed = nil
	return errors.Join(errs...)
}
