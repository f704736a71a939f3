package aftersales

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/xiebiao/aftersales/internal/domain/aftersales"
	"github.com/xiebiao/aftersales/pkg/metrics"
	"github.com/xiebiao/aftersales/pkg/tracing"
)

// DefaultTimeoutBatchSize 每批扫描的售后单数量
const DefaultTimeoutBatchSize = 100

// EligibilityChecker 超时处理前的外部条件判断(例如订单已关闭、商品已下架)
// 返回false时跳过该售后单,不算错误
type EligibilityChecker interface {
	Eligible(ctx context.Context, c *aftersales.Case) (bool, error)
}

// EligibilityFunc 函数适配器
type EligibilityFunc func(ctx context.Context, c *aftersales.Case) (bool, error)

// Eligible 实现EligibilityChecker
func (f EligibilityFunc) Eligible(ctx context.Context, c *aftersales.Case) (bool, error) {
	return f(ctx, c)
}

// AlwaysEligible 不做额外判断
var AlwaysEligible = EligibilityFunc(func(context.Context, *aftersales.Case) (bool, error) { return true, nil })

// CatalogEligibility 待审核的售后单自动通过前确认订单明细仍然存在
func CatalogEligibility(catalog aftersales.OrderCatalog) EligibilityChecker {
	return EligibilityFunc(func(ctx context.Context, c *aftersales.Case) (bool, error) {
		if c.State != aftersales.StatePendingApproval {
			return true, nil
		}
		lines, err := catalog.GetOrderLines(ctx, []uint{c.OrderProductID})
		if err != nil {
			return false, err
		}
		line, ok := lines[c.OrderProductID]
		return ok && !line.IsGift, nil
	})
}

// TimeoutPreview 预演结果
type TimeoutPreview struct {
	CaseID       uint             `json:"case_id"`
	AftersalesNo string           `json:"aftersales_no"`
	FromState    aftersales.State `json:"from_state"`
	ToState      aftersales.State `json:"to_state"`
}

// TimeoutResult 一次扫描的统计
type TimeoutResult struct {
	Processed int              `json:"processed"`
	Skipped   int              `json:"skipped"`
	Errors    int              `json:"errors"`
	DryRun    bool             `json:"dry_run"`
	Previews  []TimeoutPreview `json:"previews,omitempty"`
}

// TimeoutProcessor 超时自动处理
// 教学要点:
// 1. keyset分页 (auto_process_time, id) 升序,处理后的记录自然离开结果集
// 2. 每个售后单一个事务,单个失败只记录和计数,不中断整批
// 3. 事务内重新加锁并检查是否仍满足超时条件(可能刚被用户操作过)
// 4. 预演模式在副本上执行同样的分支,不写库不发事件
type TimeoutProcessor struct {
	svc         *Service
	cases       aftersales.Repository
	logs        aftersales.LogRepository
	tx          TxManager
	eligibility EligibilityChecker
	logger      *zap.Logger
	clock       Clock
}

// NewTimeoutProcessor 创建超时处理器
func NewTimeoutProcessor(svc *Service, eligibility EligibilityChecker) *TimeoutProcessor {
	if eligibility == nil {
		eligibility = AlwaysEligible
	}
	return &TimeoutProcessor{
		svc:         svc,
		cases:       svc.cases,
		logs:        svc.logs,
		tx:          svc.tx,
		eligibility: eligibility,
		logger:      svc.logger.Named("timeout"),
		clock:       svc.clock,
	}
}

// ProcessTimeouts 扫描并处理已超时的售后单
func (p *TimeoutProcessor) ProcessTimeouts(ctx context.Context, batchSize int, dryRun bool) (*TimeoutResult, error) {
	if batchSize <= 0 {
		batchSize = DefaultTimeoutBatchSize
	}
	ctx, span := tracing.StartSpan(ctx, "aftersales.timeout", "ProcessTimeouts")
	defer span.End()
	start := time.Now()

	now := p.clock()
	result := &TimeoutResult{DryRun: dryRun}
	var cursor *aftersales.TimeoutCursor

	for {
		if err := ctx.Err(); err != nil {
			tracing.RecordError(span, err)
			return result, err
		}
		batch, err := p.cases.FindTimeoutBatch(ctx, now, cursor, batchSize)
		if err != nil {
			tracing.RecordError(span, err)
			return result, err
		}
		if len(batch) == 0 {
			break
		}

		for _, c := range batch {
			p.processOne(ctx, c, now, dryRun, result)
		}

		last := batch[len(batch)-1]
		if last.AutoProcessTime == nil {
			break
		}
		cursor = &aftersales.TimeoutCursor{AutoProcessTime: *last.AutoProcessTime, ID: last.ID}
		if len(batch) < batchSize {
			break
		}
	}

	metrics.ObserveHistogram(metrics.TimeoutSweepDuration, time.Since(start).Seconds())
	span.SetAttributes(
		attribute.Int("timeout.processed", result.Processed),
		attribute.Int("timeout.skipped", result.Skipped),
		attribute.Int("timeout.errors", result.Errors),
		attribute.Bool("timeout.dry_run", dryRun),
	)
	p.logger.Info("超时扫描完成",
		zap.Int("processed", result.Processed),
		zap.Int("skipped", result.Skipped),
		zap.Int("errors", result.Errors),
		zap.Bool("dry_run", dryRun),
	)
	return result, nil
}

func (p *TimeoutProcessor) processOne(ctx context.Context, c *aftersales.Case, now time.Time, dryRun bool, result *TimeoutResult) {
	var (
		outcome string
		err     error
	)
	if dryRun {
		outcome, err = p.preview(ctx, c, now, result)
	} else {
		outcome, err = p.apply(ctx, c.ID, now)
	}

	if err != nil {
		result.Errors++
		metrics.IncCounterVec(metrics.TimeoutCasesTotal, map[string]string{"result": "error"})
		p.logger.Error("超时处理失败",
			zap.Uint("case_id", c.ID),
			zap.String("aftersales_no", c.AftersalesNo),
			zap.String("state", string(c.State)),
			zap.Error(err),
		)
		return
	}
	switch outcome {
	case "processed":
		result.Processed++
	default:
		result.Skipped++
	}
	if !dryRun {
		metrics.IncCounterVec(metrics.TimeoutCasesTotal, map[string]string{"result": outcome})
	}
}

// preview 在副本上执行,原对象不变
func (p *TimeoutProcessor) preview(ctx context.Context, c *aftersales.Case, now time.Time, result *TimeoutResult) (string, error) {
	cp := c.Clone()
	if !cp.IsTimeoutDue(now) {
		return "skipped", nil
	}
	ok, err := p.eligibility.Eligible(ctx, cp)
	if err != nil {
		return "", err
	}
	if !ok {
		return "skipped", nil
	}
	from, err := cp.ApplyTimeout(now)
	if err != nil {
		return "", err
	}
	result.Previews = append(result.Previews, TimeoutPreview{
		CaseID:       cp.ID,
		AftersalesNo: cp.AftersalesNo,
		FromState:    from,
		ToState:      cp.State,
	})
	return "processed", nil
}

// apply 单个售后单一个事务
func (p *TimeoutProcessor) apply(ctx context.Context, caseID uint, now time.Time) (string, error) {
	outcome := "skipped"
	actor := aftersales.SystemActor()
	var (
		updated *aftersales.Case
		from    aftersales.State
		first   *aftersales.Log
	)
	err := p.tx.Transaction(ctx, func(txCtx context.Context) error {
		c, err := p.cases.LockByID(txCtx, caseID)
		if err != nil {
			return err
		}
		// 加锁后重新判断:扫描到加锁之间可能已被人工处理
		if !c.IsTimeoutDue(now) {
			return nil
		}
		ok, err := p.eligibility.Eligible(txCtx, c)
		if err != nil {
			return err
		}
		if !ok {
			return nil
		}

		from, err = c.ApplyTimeout(now)
		if err != nil {
			return err
		}
		first = stateLog(c, actor, aftersales.LogTimeout, from, "超时自动处理", now)
		logs := []*aftersales.Log{first}

		// 超时通过只创建子单,停留在APPROVED
		more, err := p.svc.Provision(txCtx, c, actor, false)
		if err != nil {
			return err
		}
		logs = append(logs, more...)

		if err := p.cases.Update(txCtx, c); err != nil {
			return err
		}
		if err := p.logs.Append(txCtx, logs...); err != nil {
			return err
		}
		outcome = "processed"
		updated = c
		return nil
	})
	if err != nil {
		return "", err
	}
	if updated != nil {
		p.svc.publishCaseEvent(ctx, updated, from, first)
	}
	return outcome, nil
}
