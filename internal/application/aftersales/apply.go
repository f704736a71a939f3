package aftersales

import (
	"context"
	"strings"

	"go.uber.org/zap"

	"github.com/xiebiao/aftersales/internal/domain/aftersales"
	"github.com/xiebiao/aftersales/internal/domain/suborder"
	apperrors "github.com/xiebiao/aftersales/pkg/errors"
	"github.com/xiebiao/aftersales/pkg/metrics"
)

// ApplyRequest 售后申请
type ApplyRequest struct {
	OrderID         string
	Type            aftersales.CaseType
	Reason          aftersales.Reason
	Description     string
	ProofImages     []string
	Items           []aftersales.CalcItem
	ExchangeSkuID   uint              // 换货必填
	ExchangeAddress *suborder.Address // 换货必填
}

// ItemError 单个明细的失败原因
type ItemError struct {
	Index          int    `json:"index"`
	OrderProductID uint   `json:"order_product_id"`
	Code           int    `json:"code"`
	Field          string `json:"field,omitempty"`
	Message        string `json:"message"`
}

// ApplyResult 申请结果:成功创建的售后单 + 失败明细
type ApplyResult struct {
	Created []*aftersales.Case
	Errors  []ItemError
}

// Apply 提交售后申请
// 教学要点:防止重复退款(与下单防超卖同一个思路)
//
// 场景:明细购买3件,买家在两个窗口同时申请退3件
// 错误实现:先算可退数量,再插入售后单 → 两个请求都看到"可退3件"
//
// 正确实现:每个明细一个事务
//  1. SELECT ... FOR UPDATE 锁定订单明细行(同一明细的申请在这里排队)
//  2. 重新汇总有效占用(排除CANCELLED/REJECTED)
//  3. 重新计算可退数量
//  4. 创建售后单 + 写日志
//  5. COMMIT释放锁
//
// 一个明细失败不影响其他明细(部分成功)
func (s *Service) Apply(ctx context.Context, req ApplyRequest, actor aftersales.Actor) (*ApplyResult, error) {
	if err := s.validateApply(req); err != nil {
		metrics.IncCounterVec(metrics.CasesAppliedTotal, map[string]string{"type": string(req.Type), "result": "invalid"})
		return nil, err
	}

	// 事务外先整体算一遍,结构性错误(重复明细、数量非数字)直接拦下
	pre, err := s.CalculateRefundInfo(ctx, req.OrderID, req.Items)
	if err != nil {
		return nil, err
	}
	result := &ApplyResult{}
	blocked := make(map[int]bool)
	for _, fe := range pre.Errors {
		if fe.Field == "items" {
			return nil, apperrors.ErrInvalidParams.WithField("items")
		}
		if isStructural(fe) {
			blocked[fe.Index] = true
			result.Errors = append(result.Errors, ItemError{
				Index: fe.Index, OrderProductID: fe.OrderProductID,
				Code: apperrors.ErrCodeInvalidParams, Field: fe.Field, Message: fe.Message,
			})
		}
	}

	for i, item := range req.Items {
		if blocked[i] {
			continue
		}
		c, err := s.applyItem(ctx, req, item, actor)
		if err != nil {
			appErr := apperrors.GetAppError(err)
			if appErr.Code == apperrors.ErrCodeInternal {
				s.logger.Error("创建售后单失败",
					zap.String("order_id", req.OrderID),
					zap.Uint("order_product_id", item.OrderProductID),
					zap.Error(err),
				)
			}
			result.Errors = append(result.Errors, ItemError{
				Index: i, OrderProductID: item.OrderProductID,
				Code: appErr.Code, Field: appErr.Field, Message: appErr.Message,
			})
			metrics.IncCounterVec(metrics.CasesAppliedTotal, map[string]string{"type": string(req.Type), "result": "rejected"})
			continue
		}
		result.Created = append(result.Created, c)
		metrics.IncCounterVec(metrics.CasesAppliedTotal, map[string]string{"type": string(req.Type), "result": "created"})
	}
	return result, nil
}

// isStructural 结构性错误:不进入事务
func isStructural(fe aftersales.FieldError) bool {
	return strings.HasPrefix(fe.Message, "duplicate line") || strings.HasPrefix(fe.Message, "non-numeric quantity")
}

func (s *Service) validateApply(req ApplyRequest) error {
	if strings.TrimSpace(req.OrderID) == "" {
		return apperrors.ErrInvalidParams.WithField("order_id")
	}
	if !req.Type.Valid() {
		return aftersales.ErrInvalidType.WithField("type")
	}
	if !req.Reason.Valid() {
		return aftersales.ErrInvalidReason.WithField("reason")
	}
	if len(req.Items) == 0 {
		return apperrors.ErrInvalidParams.WithField("items")
	}
	if err := aftersales.ValidateDescription(req.Description); err != nil {
		return err
	}
	if err := aftersales.ValidateProofImages(req.ProofImages); err != nil {
		return err
	}
	if req.Type == aftersales.TypeExchange {
		if req.ExchangeSkuID == 0 {
			return apperrors.ErrInvalidParams.WithField("exchange_sku_id")
		}
		if req.ExchangeAddress == nil {
			return suborder.ErrInvalidAddress.WithField("exchange_address")
		}
		if err := req.ExchangeAddress.Validate(); err != nil {
			return suborder.ErrInvalidAddress.WithField("exchange_address")
		}
	}
	return nil
}

// applyItem 单个明细:一个事务
func (s *Service) applyItem(ctx context.Context, req ApplyRequest, item aftersales.CalcItem, actor aftersales.Actor) (*aftersales.Case, error) {
	var created *aftersales.Case
	var first *aftersales.Log
	err := s.tx.Transaction(ctx, func(txCtx context.Context) error {
		// 1. 锁定订单明细行
		line, err := s.catalog.LockOrderLine(txCtx, item.OrderProductID)
		if err != nil {
			return err
		}
		if line.OrderID != req.OrderID {
			return aftersales.ErrOrderLineNotFound
		}
		if actor.Type == aftersales.ActorUser && line.UserID != actor.ID {
			return aftersales.ErrOrderLineNotFound
		}
		if line.IsGift {
			return aftersales.ErrGiftLine.WithField("order_product_id")
		}

		// 2. 锁内重新汇总占用并计算
		claims, err := s.cases.SumActiveClaims(txCtx, []uint{line.OrderProductID})
		if err != nil {
			return err
		}
		calc := aftersales.Calculate(aftersales.CalcInput{
			OrderID: req.OrderID,
			Items:   []aftersales.CalcItem{item},
			Lines:   map[uint]aftersales.OrderLine{line.OrderProductID: *line},
			Claims:  claims,
		})
		if !calc.CanRefund {
			return calcError(calc)
		}
		lr := calc.Lines[0]

		// 3. 创建售后单,商品快照在这里固定
		now := s.now()
		amount := lr.RefundableAmount
		c, err := aftersales.NewCase(aftersales.NewCaseParams{
			OrderID:         req.OrderID,
			UserID:          line.UserID,
			OrderProductID:  line.OrderProductID,
			ProductID:       line.ProductID,
			SkuID:           line.SkuID,
			Type:            req.Type,
			Reason:          req.Reason,
			Quantity:        lr.RequestedQuantity,
			OriginalPrice:   line.OriginalPrice,
			PaidPrice:       line.UnitPaidPrice,
			RefundAmount:    &amount,
			Description:     req.Description,
			ProofImages:     req.ProofImages,
			ExchangeSkuID:   req.ExchangeSkuID,
			ExchangeAddress: req.ExchangeAddress,
			Source:          aftersales.SourceApp,
			Snapshot:        aftersales.SnapshotFromOrderLine(*line, now),
		}, now, s.cfg.SLA)
		if err != nil {
			return err
		}
		if err := s.cases.Create(txCtx, c); err != nil {
			return err
		}

		// 4. 日志与售后单同一事务
		first = aftersales.NewLog(c.ID, actor, aftersales.LogApply, "提交"+c.Type.Label()+"申请", now).
			With("quantity", c.Quantity).
			With("refund_amount", c.ActualRefundAmount.StringFixed(2))
		first.ToState = &c.State
		if err := s.logs.Append(txCtx, first); err != nil {
			return err
		}
		created = c
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.publishCaseEvent(ctx, created, "", first)
	return created, nil
}

// calcError 把单行计算失败转成领域错误
func calcError(calc *aftersales.RefundCalculationResult) error {
	if len(calc.Lines) == 0 {
		if len(calc.Errors) > 0 {
			return apperrors.ErrInvalidParams.WithField(calc.Errors[0].Field).Withf("%s", calc.Errors[0].Message)
		}
		return apperrors.ErrInvalidParams
	}
	lr := calc.Lines[0]
	switch {
	case lr.IsGift:
		return aftersales.ErrGiftLine.WithField("order_product_id")
	case lr.RequestedQuantity <= 0:
		return aftersales.ErrInvalidQuantity.WithField("quantity")
	default:
		return aftersales.ErrQuantityExceeded.WithField("quantity").Withf("%s", lr.Error)
	}
}

// CalculateRefundInfo 查询可退信息(只读,不加锁)
// 订单明细和已占用记录各一次批量查询,避免N+1
func (s *Service) CalculateRefundInfo(ctx context.Context, orderID string, items []aftersales.CalcItem) (*aftersales.RefundCalculationResult, error) {
	ids := make([]uint, 0, len(items))
	for _, item := range items {
		ids = append(ids, item.OrderProductID)
	}

	lines := map[uint]aftersales.OrderLine{}
	claims := map[uint][]aftersales.ClaimedAmount{}
	if len(ids) > 0 {
		var err error
		if lines, err = s.catalog.GetOrderLines(ctx, ids); err != nil {
			return nil, err
		}
		if claims, err = s.cases.SumActiveClaims(ctx, ids); err != nil {
			return nil, err
		}
	}

	return aftersales.Calculate(aftersales.CalcInput{
		OrderID: orderID,
		Items:   items,
		Lines:   lines,
		Claims:  claims,
	}), nil
}
