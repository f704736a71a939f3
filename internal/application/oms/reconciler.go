package oms

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	appaftersales "github.com/xiebiao/aftersales/internal/application/aftersales"
	"github.com/xiebiao/aftersales/internal/domain/aftersales"
	"github.com/xiebiao/aftersales/internal/domain/suborder"
	apperrors "github.com/xiebiao/aftersales/pkg/errors"
	"github.com/xiebiao/aftersales/pkg/metrics"
	"github.com/xiebiao/aftersales/pkg/tracing"
)

// DefaultLockTTL 单号锁的过期时间
const DefaultLockTTL = 10 * time.Second

const lockKeyPrefix = "aftersales:oms:lock:"

// Deps 对账服务依赖
type Deps struct {
	Cases    aftersales.Repository
	Logs     aftersales.LogRepository
	Catalog  aftersales.OrderCatalog
	Tx       appaftersales.TxManager
	Service  *appaftersales.Service // 子单创建、退款金额调整、事件发布
	Locker   Locker
	Validate *validator.Validate
	Logger   *zap.Logger
	Clock    appaftersales.Clock
	LockTTL  time.Duration
}

// SyncResult 同步结果
type SyncResult struct {
	Case    *aftersales.Case `json:"-"`
	Created bool             `json:"created"`
	Changed []string         `json:"changed"`
}

// StatusResult 状态更新结果
type StatusResult struct {
	Case     *aftersales.Case `json:"-"`
	Previous aftersales.State `json:"previous"`
	Current  aftersales.State `json:"current"`
}

// Reconciler OMS售后单对账
// 教学要点:
// 1. OMS是外部权威:状态直接覆盖(OverrideState),每次覆盖都写OMS_OVERRIDE日志
// 2. 幂等:同一份数据重复推送不写库、不记日志、不发事件
// 3. 同一单号的推送用分布式锁串行化,库内再用行锁保护
// 4. 校验全部通过后才修改数据
type Reconciler struct {
	cases    aftersales.Repository
	logs     aftersales.LogRepository
	catalog  aftersales.OrderCatalog
	tx       appaftersales.TxManager
	svc      *appaftersales.Service
	locker   Locker
	validate *validator.Validate
	logger   *zap.Logger
	clock    appaftersales.Clock
	lockTTL  time.Duration
}

// NewReconciler 创建对账服务
func NewReconciler(d Deps) *Reconciler {
	if d.Locker == nil {
		d.Locker = NewLocalLocker()
	}
	if d.Validate == nil {
		d.Validate = validator.New()
	}
	if d.Logger == nil {
		d.Logger = zap.NewNop()
	}
	if d.Clock == nil {
		d.Clock = time.Now
	}
	if d.LockTTL <= 0 {
		d.LockTTL = DefaultLockTTL
	}
	return &Reconciler{
		cases:    d.Cases,
		logs:     d.Logs,
		catalog:  d.Catalog,
		tx:       d.Tx,
		svc:      d.Service,
		locker:   d.Locker,
		validate: d.Validate,
		logger:   d.Logger.Named("oms"),
		clock:    d.Clock,
		lockTTL:  d.LockTTL,
	}
}

// CreateFromOms OMS创建售后单,单号已存在返回ErrOmsDuplicate
func (r *Reconciler) CreateFromOms(ctx context.Context, p *Payload) (c *aftersales.Case, err error) {
	ctx, span := tracing.StartSpan(ctx, "aftersales.oms", "CreateFromOms")
	defer func() { r.finish(span, "create", p.AftersalesNo, err) }()

	if err = validatePayload(r.validate, p); err != nil {
		return nil, err
	}
	actor := aftersales.OMSActor(p.Auditor)
	var first *aftersales.Log

	err = r.withLock(ctx, p.AftersalesNo, func() error {
		return r.tx.Transaction(ctx, func(txCtx context.Context) error {
			_, err := r.cases.FindByAftersalesNo(txCtx, p.AftersalesNo)
			if err == nil {
				return ErrOmsDuplicate.Withf("aftersalesNo=%s", p.AftersalesNo)
			}
			if !errors.Is(err, aftersales.ErrCaseNotFound) {
				return err
			}
			created, logs, err := r.create(txCtx, p, actor)
			if err != nil {
				return err
			}
			c, first = created, logs[0]
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	r.svc.PublishCaseChange(ctx, c, aftersales.StatePendingApproval, first)
	return c, nil
}

// SyncFromOms 全量同步:不存在则创建,存在则合并差异
func (r *Reconciler) SyncFromOms(ctx context.Context, p *Payload) (res *SyncResult, err error) {
	ctx, span := tracing.StartSpan(ctx, "aftersales.oms", "SyncFromOms")
	defer func() { r.finish(span, "sync", p.AftersalesNo, err) }()

	if err = validatePayload(r.validate, p); err != nil {
		return nil, err
	}
	actor := aftersales.OMSActor(p.Auditor)
	res = &SyncResult{}
	var (
		from  aftersales.State
		first *aftersales.Log
	)

	err = r.withLock(ctx, p.AftersalesNo, func() error {
		return r.tx.Transaction(ctx, func(txCtx context.Context) error {
			existing, err := r.cases.FindByAftersalesNo(txCtx, p.AftersalesNo)
			if errors.Is(err, aftersales.ErrCaseNotFound) {
				c, logs, err := r.create(txCtx, p, actor)
				if err != nil {
					return err
				}
				res.Case, res.Created = c, true
				from, first = aftersales.StatePendingApproval, logs[0]
				return nil
			}
			if err != nil {
				return err
			}

			c, err := r.cases.LockByID(txCtx, existing.ID)
			if err != nil {
				return err
			}
			res.Case = c
			from = c.State

			changed, logs, err := r.merge(txCtx, c, p, actor)
			if err != nil {
				return err
			}
			if len(changed) == 0 {
				return nil
			}
			res.Changed = changed
			if err := r.cases.Update(txCtx, c); err != nil {
				return err
			}
			if err := r.logs.Append(txCtx, logs...); err != nil {
				return err
			}
			first = logs[0]
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	if first != nil {
		r.svc.PublishCaseChange(ctx, res.Case, from, first)
	}
	return res, nil
}

// UpdateInfoFromOms 部分更新,返回实际变化的字段
func (r *Reconciler) UpdateInfoFromOms(ctx context.Context, patch *InfoPatch) (res *SyncResult, err error) {
	ctx, span := tracing.StartSpan(ctx, "aftersales.oms", "UpdateInfoFromOms")
	defer func() { r.finish(span, "update_info", patch.AftersalesNo, err) }()

	if err = r.validate.Struct(patch); err != nil {
		return nil, translate(err)
	}
	if patch.IsEmpty() {
		return nil, aftersales.ErrNothingToModify
	}
	actor := aftersales.OMSActor("")
	res = &SyncResult{}
	var (
		from  aftersales.State
		first *aftersales.Log
	)

	err = r.withLock(ctx, patch.AftersalesNo, func() error {
		return r.tx.Transaction(ctx, func(txCtx context.Context) error {
			c, err := r.lockByNo(txCtx, patch.AftersalesNo)
			if err != nil {
				return err
			}
			res.Case = c
			from = c.State
			now := r.clock()

			changed, more, err := r.applyInfo(txCtx, c, *patch, actor, now)
			if err != nil {
				return err
			}
			if len(changed) == 0 {
				return nil
			}
			res.Changed = changed
			c.UpdatedAt = now
			first = aftersales.NewLog(c.ID, actor, aftersales.LogOmsUpdateInfo, "OMS更新售后信息", now).
				With("changed", changed)
			logs := append([]*aftersales.Log{first}, more...)
			if err := r.cases.Update(txCtx, c); err != nil {
				return err
			}
			return r.logs.Append(txCtx, logs...)
		})
	})
	if err != nil {
		return nil, err
	}
	if first != nil {
		r.svc.PublishCaseChange(ctx, res.Case, from, first)
	}
	return res, nil
}

// UpdateStatusFromOms 只更新状态(和审核备注)
func (r *Reconciler) UpdateStatusFromOms(ctx context.Context, u *StatusUpdate) (res *StatusResult, err error) {
	ctx, span := tracing.StartSpan(ctx, "aftersales.oms", "UpdateStatusFromOms")
	defer func() { r.finish(span, "update_status", u.AftersalesNo, err) }()

	if err = r.validate.Struct(u); err != nil {
		return nil, translate(err)
	}
	target, err := MapStatus(u.Status)
	if err != nil {
		return nil, err
	}
	actor := aftersales.OMSActor(u.Auditor)
	res = &StatusResult{}
	var first *aftersales.Log

	err = r.withLock(ctx, u.AftersalesNo, func() error {
		return r.tx.Transaction(ctx, func(txCtx context.Context) error {
			c, err := r.lockByNo(txCtx, u.AftersalesNo)
			if err != nil {
				return err
			}
			res.Case = c
			res.Previous = c.State
			res.Current = c.State
			now := r.clock()

			logs, err := r.override(txCtx, c, target, actor, now)
			if err != nil {
				return err
			}
			remarkChanged := applyAuditRemark(c, u.AuditRemark)
			res.Current = c.State
			if len(logs) == 0 && !remarkChanged {
				return nil
			}
			if len(logs) == 0 {
				logs = append(logs, aftersales.NewLog(c.ID, actor, aftersales.LogOmsUpdateInfo, "OMS更新审核备注", now).
					With("changed", []string{"audit_remark"}))
			}
			c.UpdatedAt = now
			if err := r.cases.Update(txCtx, c); err != nil {
				return err
			}
			if err := r.logs.Append(txCtx, logs...); err != nil {
				return err
			}
			first = logs[0]
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	if first != nil {
		r.svc.PublishCaseChange(ctx, res.Case, res.Previous, first)
	}
	return res, nil
}

// create 构造并保存OMS售后单,返回的日志第一条为OMS_CREATE
func (r *Reconciler) create(ctx context.Context, p *Payload, actor aftersales.Actor) (*aftersales.Case, []*aftersales.Log, error) {
	now := r.clock()
	sla := r.svc.Config().SLA
	typ, err := MapType(p.AftersalesType)
	if err != nil {
		return nil, nil, err
	}
	target, err := MapStatus(p.Status)
	if err != nil {
		return nil, nil, err
	}

	// 多个商品合并为一个售后单:数量求和,实付单价按总额均摊
	qty, total := p.totals()
	unit := total.DivRound(decimal.NewFromInt(int64(qty)), 6)
	params := aftersales.NewCaseParams{
		AftersalesNo:    p.AftersalesNo,
		OrderID:         p.OrderNo,
		OrderProductID:  p.Products[0].OrderProductID,
		Type:            typ,
		Reason:          MapReason(p.Reason),
		Quantity:        qty,
		OriginalPrice:   unit,
		PaidPrice:       unit,
		RefundAmount:    p.RefundAmount,
		Description:     p.Description,
		ProofImages:     p.ProofImages,
		ExchangeAddress: p.ExchangeAddress.toDomain(),
		Source:          aftersales.SourceOMS,
		Snapshot:        p.snapshot(now),
	}

	if params.OrderProductID > 0 {
		line, err := r.lockLine(ctx, params.OrderProductID)
		if err != nil {
			return nil, nil, err
		}
		if line != nil {
			if line.IsGift {
				return nil, nil, aftersales.ErrGiftLine
			}
			params.UserID = line.UserID
			params.ProductID = line.ProductID
			params.SkuID = line.SkuID
			if target.CountsTowardClaims() {
				if err := r.checkClaims(ctx, line, 0, qty); err != nil {
					return nil, nil, err
				}
			}
		}
	}

	c, err := aftersales.NewCase(params, now, sla)
	if err != nil {
		return nil, nil, err
	}
	if _, err := c.OverrideState(target, now, sla); err != nil {
		return nil, nil, err
	}
	if t := p.auditTime(); t != nil {
		c.AuditTime = t
	}
	applyAuditRemark(c, p.AuditRemark)
	if p.LogisticsCompany != "" || p.LogisticsNo != "" {
		c.SetLogistics(p.LogisticsCompany, p.LogisticsNo, now)
	}

	if err := r.cases.Create(ctx, c); err != nil {
		if errors.Is(err, aftersales.ErrDuplicateAftersalesNo) {
			return nil, nil, ErrOmsDuplicate.Withf("aftersalesNo=%s", p.AftersalesNo)
		}
		return nil, nil, err
	}

	logs := []*aftersales.Log{
		aftersales.NewLog(c.ID, actor, aftersales.LogOmsCreate, "OMS创建售后单", now).
			WithStates(aftersales.StatePendingApproval, c.State).
			With("order_no", p.OrderNo),
	}
	more, err := r.svc.Provision(ctx, c, actor, false)
	if err != nil {
		return nil, nil, err
	}
	logs = append(logs, more...)
	if err := r.logs.Append(ctx, logs...); err != nil {
		return nil, nil, err
	}
	return c, logs, nil
}

// merge 合并全量推送,返回变化字段和日志(第一条为OMS_SYNC汇总)
// 商品信息以创建时的快照为准,同步时忽略
func (r *Reconciler) merge(ctx context.Context, c *aftersales.Case, p *Payload, actor aftersales.Actor) ([]string, []*aftersales.Log, error) {
	now := r.clock()
	from := c.State

	patch := InfoPatch{
		AftersalesNo: p.AftersalesNo,
		RefundAmount: p.RefundAmount,
		Description:  &p.Description,
	}
	if p.Reason != "" {
		patch.Reason = &p.Reason
	}
	if p.ProofImages != nil {
		patch.ProofImages = &p.ProofImages
	}
	if p.ExchangeAddress != nil {
		patch.ExchangeAddress = p.ExchangeAddress
	}
	if p.LogisticsCompany != "" || p.LogisticsNo != "" {
		patch.LogisticsCompany = &p.LogisticsCompany
		patch.LogisticsNo = &p.LogisticsNo
	}

	// 金额先于状态处理:状态覆盖为已完成后不能再改金额
	changed, logs, err := r.applyInfo(ctx, c, patch, actor, now)
	if err != nil {
		return nil, nil, err
	}

	// 状态为空表示OMS没有给出状态,保持不变
	if strings.TrimSpace(p.Status) != "" {
		target, err := MapStatus(p.Status)
		if err != nil {
			return nil, nil, err
		}
		more, err := r.override(ctx, c, target, actor, now)
		if err != nil {
			return nil, nil, err
		}
		if len(more) > 0 {
			changed = append(changed, "status")
			logs = append(logs, more...)
		}
	}
	if t := p.auditTime(); t != nil && (c.AuditTime == nil || !c.AuditTime.Equal(*t)) {
		c.AuditTime = t
		changed = append(changed, "audit_time")
	}
	if applyAuditRemark(c, p.AuditRemark) {
		changed = append(changed, "audit_remark")
	}

	if len(changed) == 0 {
		return nil, nil, nil
	}
	c.UpdatedAt = now
	summary := aftersales.NewLog(c.ID, actor, aftersales.LogOmsSync, "OMS同步售后单", now).
		WithStates(from, c.State).
		With("changed", changed)
	return changed, append([]*aftersales.Log{summary}, logs...), nil
}

// override 覆盖状态并创建新状态需要的子单;状态没变化返回空
func (r *Reconciler) override(ctx context.Context, c *aftersales.Case, target aftersales.State, actor aftersales.Actor, now time.Time) ([]*aftersales.Log, error) {
	from := c.State
	if target == from {
		return nil, nil
	}
	// 已取消/已拒绝的售后单被重新激活时,重新检查数量占用
	if target.CountsTowardClaims() && !from.CountsTowardClaims() && c.OrderProductID > 0 {
		line, err := r.lockLine(ctx, c.OrderProductID)
		if err != nil {
			return nil, err
		}
		if line != nil {
			if err := r.checkClaims(ctx, line, c.ID, c.Quantity); err != nil {
				return nil, err
			}
		}
	}

	if _, err := c.OverrideState(target, now, r.svc.Config().SLA); err != nil {
		return nil, err
	}
	logs := []*aftersales.Log{
		aftersales.NewLog(c.ID, actor, aftersales.LogOmsOverride, "OMS覆盖状态", now).WithStates(from, c.State),
	}
	// 不自动推进,重复推送APPROVED时保持幂等
	more, err := r.svc.Provision(ctx, c, actor, false)
	if err != nil {
		return nil, err
	}
	return append(logs, more...), nil
}

// applyInfo 先校验全部字段再修改,返回变化字段和附带日志
func (r *Reconciler) applyInfo(ctx context.Context, c *aftersales.Case, patch InfoPatch, actor aftersales.Actor, now time.Time) ([]string, []*aftersales.Log, error) {
	if patch.Description != nil {
		if err := aftersales.ValidateDescription(*patch.Description); err != nil {
			return nil, nil, err
		}
	}
	if patch.ProofImages != nil {
		if err := aftersales.ValidateProofImages(*patch.ProofImages); err != nil {
			return nil, nil, err
		}
	}
	var addr *suborder.Address
	if patch.ExchangeAddress != nil {
		addr = patch.ExchangeAddress.toDomain()
		if err := addr.Validate(); err != nil {
			return nil, nil, suborder.ErrInvalidAddress.WithField("exchangeAddress")
		}
	}
	if patch.RefundAmount != nil && patch.RefundAmount.IsNegative() {
		return nil, nil, aftersales.ErrInvalidRefundAmount.WithField("refundAmount")
	}

	var (
		changed []string
		logs    []*aftersales.Log
	)
	if patch.RefundAmount != nil {
		amount := aftersales.RoundMoney(*patch.RefundAmount)
		if !amount.Equal(c.ActualRefundAmount) {
			l, err := r.svc.AdjustRefundAmount(ctx, c, amount, "OMS同步", actor)
			if err != nil {
				return nil, nil, err
			}
			changed = append(changed, "refund_amount")
			logs = append(logs, l)
		}
	}
	if patch.Reason != nil {
		if reason := MapReason(*patch.Reason); reason != c.Reason {
			c.Reason = reason
			changed = append(changed, "reason")
		}
	}
	if patch.Description != nil && *patch.Description != c.Description {
		c.Description = *patch.Description
		changed = append(changed, "description")
	}
	if patch.ProofImages != nil && !equalStrings(*patch.ProofImages, c.ProofImages) {
		c.ProofImages = append([]string(nil), (*patch.ProofImages)...)
		changed = append(changed, "proof_images")
	}
	if addr != nil && (c.ExchangeAddress == nil || *c.ExchangeAddress != *addr) {
		c.ExchangeAddress = addr
		changed = append(changed, "exchange_address")
	}
	if patch.LogisticsCompany != nil || patch.LogisticsNo != nil {
		company, no := c.LogisticsCompany, c.LogisticsNo
		if patch.LogisticsCompany != nil {
			company = *patch.LogisticsCompany
		}
		if patch.LogisticsNo != nil {
			no = *patch.LogisticsNo
		}
		if c.SetLogistics(company, no, now) {
			changed = append(changed, "logistics")
		}
	}
	if patch.AuditRemark != nil && applyAuditRemark(c, *patch.AuditRemark) {
		changed = append(changed, "audit_remark")
	}
	return changed, logs, nil
}

func (r *Reconciler) lockByNo(ctx context.Context, no string) (*aftersales.Case, error) {
	existing, err := r.cases.FindByAftersalesNo(ctx, no)
	if err != nil {
		return nil, err
	}
	return r.cases.LockByID(ctx, existing.ID)
}

// lockLine 本地没有的订单明细(仅存在于OMS)返回nil
func (r *Reconciler) lockLine(ctx context.Context, orderProductID uint) (*aftersales.OrderLine, error) {
	line, err := r.catalog.LockOrderLine(ctx, orderProductID)
	if errors.Is(err, aftersales.ErrOrderLineNotFound) {
		return nil, nil
	}
	return line, err
}

// checkClaims 同一订单明细的有效售后数量不能超过购买数量
func (r *Reconciler) checkClaims(ctx context.Context, line *aftersales.OrderLine, excludeCaseID uint, quantity int) error {
	sums, err := r.cases.SumActiveClaims(ctx, []uint{line.OrderProductID})
	if err != nil {
		return err
	}
	var claims []aftersales.ClaimedAmount
	for _, cl := range sums[line.OrderProductID] {
		if cl.CaseID != excludeCaseID {
			claims = append(claims, cl)
		}
	}
	_, remaining := aftersales.MaxRefundable(line.Quantity, claims)
	if quantity > remaining {
		return aftersales.ErrQuantityExceeded.Withf("订单明细%d最多还可申请%d件,OMS申请%d件", line.OrderProductID, remaining, quantity)
	}
	return nil
}

func (r *Reconciler) withLock(ctx context.Context, no string, fn func() error) error {
	release, err := r.locker.Acquire(ctx, lockKeyPrefix+no, r.lockTTL)
	if err != nil {
		return err
	}
	defer func() {
		if err := release(context.WithoutCancel(ctx)); err != nil {
			r.logger.Warn("释放OMS同步锁失败", zap.String("aftersales_no", no), zap.Error(err))
		}
	}()
	return fn()
}

// finish 记录指标和追踪
func (r *Reconciler) finish(span trace.Span, op, no string, err error) {
	defer span.End()
	result := "ok"
	switch {
	case err == nil:
	case apperrors.IsValidation(err):
		result = "invalid"
	case apperrors.CodeOf(err) == apperrors.ErrCodeLockBusy:
		result = "busy"
	default:
		result = "error"
	}
	span.SetAttributes(
		attribute.String("oms.aftersales_no", no),
		attribute.String("oms.result", result),
	)
	if err != nil {
		tracing.RecordError(span, err)
	}
	metrics.IncCounterVec(metrics.OmsSyncTotal, map[string]string{"operation": op, "result": result})
	if err != nil && result == "error" {
		r.logger.Error("OMS同步失败", zap.String("operation", op), zap.String("aftersales_no", no), zap.Error(err))
	}
}

// applyAuditRemark 拒绝状态写入拒绝原因,其他状态写入客服备注
func applyAuditRemark(c *aftersales.Case, remark string) bool {
	if remark == "" {
		return false
	}
	target := &c.ServiceNote
	if c.State == aftersales.StateRejected {
		target = &c.RejectReason
	}
	if *target == remark {
		return false
	}
	*target = remark
	return true
}

func equalStrings(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
