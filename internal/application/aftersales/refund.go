package aftersales

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/xiebiao/aftersales/internal/domain/aftersales"
	"github.com/xiebiao/aftersales/internal/domain/suborder"
	apperrors "github.com/xiebiao/aftersales/pkg/errors"
	"github.com/xiebiao/aftersales/pkg/metrics"
	"github.com/xiebiao/aftersales/pkg/saga"
)

// RefundRequest 提交给退款网关的请求
type RefundRequest struct {
	RefundNo string // 幂等键:同一退款单号重复提交网关只退一次
	OrderID  string
	Amount   decimal.Decimal
}

// RefundGateway 退款网关(外部支付系统,只关心成功/失败)
type RefundGateway interface {
	Refund(ctx context.Context, req RefundRequest) (transactionNo string, err error)
}

// refundableCaseStates 售后单处于这些状态时才能执行退款
var refundableCaseStates = map[aftersales.State]bool{
	aftersales.StateApproved:      true,
	aftersales.StatePendingRefund: true,
	aftersales.StateProcessing:    true,
}

// ExecuteRefund 执行退款
// 教学要点:Saga编排(与下单扣库存的补偿同一套工具)
//
//	步骤1 mark_processing:退款单PENDING/FAILED → PROCESSING(补偿:标记FAILED,RetryCount+1)
//	步骤2 gateway:调用退款网关(网关外面套了熔断器;补偿:记下流水号,保持PROCESSING)
//	步骤3 settle:退款单SUCCESS + 售后单COMPLETED
//
// 网关失败时步骤1被补偿,退款单变为FAILED,CanRetry决定能否再次提交。
// 网关成功后结算失败,钱已经退出去,退款单不能变成FAILED,
// 再次执行时只做结算,不再调用网关
func (s *Service) ExecuteRefund(ctx context.Context, refundOrderID uint, actor aftersales.Actor) (*suborder.RefundOrder, error) {
	if err := requireAdmin(actor); err != nil {
		return nil, err
	}

	// 加锁顺序统一为 售后单 → 子单
	target, err := s.refunds.FindByID(ctx, refundOrderID)
	if err != nil {
		return nil, err
	}
	caseID := target.CaseID
	if target.AwaitingSettlement() {
		return s.resettleRefund(ctx, caseID, refundOrderID, actor)
	}

	start := time.Now()
	var (
		refund  *suborder.RefundOrder
		txNo    string
		cause   error
		outcome *settleOutcome
	)

	sg := saga.NewSaga(s.cfg.RefundTimeout).OnCompensateFailed(func(step string, err error) {
		metrics.IncCounter(metrics.SagaCompensationsTotal)
		s.logger.Error("退款补偿失败",
			zap.Uint("refund_order_id", refundOrderID),
			zap.String("step", step),
			zap.Error(err),
		)
	})

	sg.AddStep("mark_processing",
		func(ctx context.Context) error {
			return s.tx.Transaction(ctx, func(txCtx context.Context) error {
				c, err := s.cases.LockByID(txCtx, caseID)
				if err != nil {
					return err
				}
				r, err := s.refunds.LockByID(txCtx, refundOrderID)
				if err != nil {
					return err
				}
				if !refundableCaseStates[c.State] {
					return aftersales.ErrInvalidTransition.Withf("%s: %s 不能执行退款", c.AftersalesNo, c.State)
				}
				now := s.now()
				if err := r.MarkAsProcessing(now); err != nil {
					return err
				}
				if err := s.refunds.Update(txCtx, r); err != nil {
					return err
				}
				refund = r
				return s.logs.Append(txCtx, aftersales.NewLog(c.ID, actor, aftersales.LogRefundProcessing, "提交退款", now).
					WithSubOrder(r.RefundNo).
					With("amount", r.Amount.StringFixed(2)).
					With("retry_count", r.RetryCount))
			})
		},
		func(ctx context.Context) error {
			if txNo != "" {
				return nil
			}
			return s.tx.Transaction(ctx, func(txCtx context.Context) error {
				r, err := s.refunds.LockByID(txCtx, refundOrderID)
				if err != nil {
					return err
				}
				reason := "退款失败"
				if cause != nil {
					reason = cause.Error()
				}
				now := s.now()
				if err := r.MarkAsFailed(reason, now); err != nil {
					return err
				}
				if err := s.refunds.Update(txCtx, r); err != nil {
					return err
				}
				refund = r
				return s.logs.Append(txCtx, aftersales.NewLog(r.CaseID, actor, aftersales.LogRefundFailed, "退款失败:"+reason, now).
					WithSubOrder(r.RefundNo).
					With("retry_count", r.RetryCount).
					With("can_retry", r.CanRetry()))
			})
		},
	)

	sg.AddStep("gateway",
		func(ctx context.Context) error {
			no, err := s.gateway.Refund(ctx, RefundRequest{
				RefundNo: refund.RefundNo,
				OrderID:  refund.OrderID,
				Amount:   refund.Amount,
			})
			if err != nil {
				cause = err
				return &apperrors.AppError{Code: apperrors.ErrCodeGatewayError, Message: "退款网关调用失败", Err: err}
			}
			txNo = no
			return nil
		},
		func(ctx context.Context) error {
			return s.tx.Transaction(ctx, func(txCtx context.Context) error {
				r, err := s.refunds.LockByID(txCtx, refundOrderID)
				if err != nil {
					return err
				}
				now := s.now()
				if err := r.RecordTransaction(txNo, now); err != nil {
					return err
				}
				if err := s.refunds.Update(txCtx, r); err != nil {
					return err
				}
				refund = r
				return s.logs.Append(txCtx, aftersales.NewLog(r.CaseID, actor, aftersales.LogRefundUnsettled, "网关已退款,结算失败,等待重新结算", now).
					WithSubOrder(r.RefundNo).
					With("transaction_no", txNo))
			})
		},
	)

	sg.AddStep("settle",
		func(ctx context.Context) error {
			var err error
			outcome, err = s.settleRefund(ctx, caseID, refundOrderID, txNo, actor)
			return err
		},
		nil,
	)

	err = sg.Execute(ctx)
	metrics.ObserveHistogram(metrics.RefundExecutionDuration, time.Since(start).Seconds())
	if err != nil {
		metrics.IncCounterVec(metrics.RefundExecutionsTotal, map[string]string{"result": "failed"})
		s.logger.Warn("退款执行失败",
			zap.Uint("refund_order_id", refundOrderID),
			zap.String("transaction_no", txNo),
			zap.Error(err),
		)
		var stepErr *saga.StepError
		if errors.As(err, &stepErr) && stepErr.Step != "mark_processing" && refund != nil {
			// 网关失败已补偿为FAILED;结算失败保持PROCESSING并记下流水号
			return refund, err
		}
		return nil, err
	}

	metrics.IncCounterVec(metrics.RefundExecutionsTotal, map[string]string{"result": "success"})
	return s.finishSettle(ctx, outcome), nil
}

// settleOutcome 结算结果,提交后用于发布事件
type settleOutcome struct {
	refund  *suborder.RefundOrder
	settled *aftersales.Case
	from    aftersales.State
	log     *aftersales.Log
}

// settleRefund 退款单SUCCESS,售后单可完成时一并完成
func (s *Service) settleRefund(ctx context.Context, caseID, refundOrderID uint, txNo string, actor aftersales.Actor) (*settleOutcome, error) {
	out := &settleOutcome{}
	err := s.tx.Transaction(ctx, func(txCtx context.Context) error {
		c, err := s.cases.LockByID(txCtx, caseID)
		if err != nil {
			return err
		}
		r, err := s.refunds.LockByID(txCtx, refundOrderID)
		if err != nil {
			return err
		}
		now := s.now()
		if err := r.MarkAsSuccess(txNo, now); err != nil {
			return err
		}
		if err := s.refunds.Update(txCtx, r); err != nil {
			return err
		}
		out.refund = r

		logs := []*aftersales.Log{
			aftersales.NewLog(c.ID, actor, aftersales.LogRefundSuccess, "退款成功", now).
				WithSubOrder(r.RefundNo).
				With("transaction_no", txNo),
		}
		if aftersales.CanPerform(c.State, c.Type, aftersales.ActionComplete) {
			from := c.State
			if err := c.Complete(now); err != nil {
				return err
			}
			if err := s.cases.Update(txCtx, c); err != nil {
				return err
			}
			out.log = stateLog(c, actor, aftersales.LogComplete, from, "退款成功,售后完成", now)
			logs = append(logs, out.log)
			out.from = from
			out.settled = c
		}
		return s.logs.Append(txCtx, logs...)
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// resettleRefund 网关已退款的退款单只补做结算,不再调用网关
func (s *Service) resettleRefund(ctx context.Context, caseID, refundOrderID uint, actor aftersales.Actor) (*suborder.RefundOrder, error) {
	r, err := s.refunds.FindByID(ctx, refundOrderID)
	if err != nil {
		return nil, err
	}
	outcome, err := s.settleRefund(ctx, caseID, refundOrderID, r.TransactionNo, actor)
	if err != nil {
		s.logger.Warn("退款重新结算失败",
			zap.Uint("refund_order_id", refundOrderID),
			zap.String("transaction_no", r.TransactionNo),
			zap.Error(err),
		)
		return nil, err
	}
	metrics.IncCounterVec(metrics.RefundExecutionsTotal, map[string]string{"result": "resettled"})
	return s.finishSettle(ctx, outcome), nil
}

func (s *Service) finishSettle(ctx context.Context, out *settleOutcome) *suborder.RefundOrder {
	if out.settled != nil {
		s.publishCaseEvent(ctx, out.settled, out.from, out.log)
	}
	return out.refund
}

// RetryRefund 重新提交失败的退款单(最多3次);网关已退款、结算未完成的只补做结算
func (s *Service) RetryRefund(ctx context.Context, refundOrderID uint, actor aftersales.Actor) (*suborder.RefundOrder, error) {
	if err := requireAdmin(actor); err != nil {
		return nil, err
	}
	r, err := s.refunds.FindByID(ctx, refundOrderID)
	if err != nil {
		return nil, err
	}
	if r.AwaitingSettlement() {
		return s.resettleRefund(ctx, r.CaseID, refundOrderID, actor)
	}
	if r.Status != suborder.RefundStatusFailed {
		return nil, suborder.ErrInvalidTransition.Withf("退款单%s状态为%s,只有失败的退款单可以重试", r.RefundNo, r.Status)
	}
	if !r.CanRetry() {
		return nil, suborder.ErrRetryExhausted
	}
	return s.ExecuteRefund(ctx, refundOrderID, actor)
}
