package aftersales

import (
	"net/url"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/shopspring/decimal"

	"github.com/xiebiao/aftersales/internal/domain/suborder"
)

const (
	MaxProofImages      = 9
	MaxDescriptionRunes = 500
)

// SLA 各阶段处理时限
// 进入对应状态时设置AutoProcessTime,离开时清空
type SLA struct {
	Approval       time.Duration // 申请后多久未审核自动通过
	ReturnShipment time.Duration // 审核通过后多久未寄回自动取消
	ReturnReceipt  time.Duration // 寄回后多久未确认收货自动进入待退款
}

// DefaultSLA 默认时限:审核48小时,寄回7天,收货10天
func DefaultSLA() SLA {
	return SLA{
		Approval:       48 * time.Hour,
		ReturnShipment: 7 * 24 * time.Hour,
		ReturnReceipt:  10 * 24 * time.Hour,
	}
}

// DeadlineFor 进入state时的截止时间,该状态没有时限返回nil
func (s SLA) DeadlineFor(state State, now time.Time) *time.Time {
	var d time.Duration
	switch state {
	case StatePendingApproval:
		d = s.Approval
	case StatePendingReturn:
		d = s.ReturnShipment
	case StatePendingReceive:
		d = s.ReturnReceipt
	}
	if d <= 0 {
		return nil
	}
	deadline := now.Add(d)
	return &deadline
}

// Case 售后单(聚合根)
// 教学要点:
// 1. 一个售后单只对应一条订单明细,多明细申请拆成多个售后单
// 2. 金额使用decimal,满足 实际退款 ≤ 原退款 ≤ 实付单价×数量
// 3. 商品快照只写一次;子单通过CaseID反向引用,售后单不持有子单
// 4. Version用于乐观锁,仓储Update时校验
type Case struct {
	ID             uint
	AftersalesNo   string // 业务单号(APP生成或OMS传入)
	OrderID        string // 订单号
	UserID         uint
	OrderProductID uint
	ProductID      uint
	SkuID          uint

	Type   CaseType
	Reason Reason
	State  State
	Source Source

	Quantity             int
	OriginalPrice        decimal.Decimal // 原价(单价)
	PaidPrice            decimal.Decimal // 实付单价
	OriginalRefundAmount decimal.Decimal // 申请时的退款金额
	ActualRefundAmount   decimal.Decimal // 实际退款金额(客服可调低)
	RefundAmountModified bool
	ModifyReason         string
	ModificationCount    int

	ProofImages  []string
	Description  string
	RejectReason string
	ServiceNote  string

	LogisticsCompany string
	LogisticsNo      string

	ExchangeSkuID   uint
	ExchangeAddress *suborder.Address

	AutoProcessTime *time.Time
	AuditTime       *time.Time
	CompletedTime   *time.Time
	CreatedAt       time.Time
	UpdatedAt       time.Time
	Version         int

	snapshot ProductSnapshot
}

// NewCaseParams 创建售后单参数
type NewCaseParams struct {
	AftersalesNo    string
	OrderID         string
	UserID          uint
	OrderProductID  uint
	ProductID       uint
	SkuID           uint
	Type            CaseType
	Reason          Reason
	Quantity        int
	OriginalPrice   decimal.Decimal
	PaidPrice       decimal.Decimal
	RefundAmount    *decimal.Decimal // 为空时按 实付单价×数量
	Description     string
	ProofImages     []string
	ExchangeSkuID   uint
	ExchangeAddress *suborder.Address
	Source          Source
	Snapshot        ProductSnapshot
}

// NewCase 创建售后单(工厂方法)
// 初始状态PENDING_APPROVAL,按SLA设置审核截止时间
func NewCase(p NewCaseParams, now time.Time, sla SLA) (*Case, error) {
	if !p.Type.Valid() {
		return nil, ErrInvalidType
	}
	if !p.Reason.Valid() {
		return nil, ErrInvalidReason
	}
	if p.Quantity <= 0 {
		return nil, ErrInvalidQuantity
	}
	if err := ValidateDescription(p.Description); err != nil {
		return nil, err
	}
	if err := ValidateProofImages(p.ProofImages); err != nil {
		return nil, err
	}
	if p.ExchangeAddress != nil {
		if err := p.ExchangeAddress.Validate(); err != nil {
			return nil, err
		}
	}

	refund := RoundMoney(p.PaidPrice.Mul(decimal.NewFromInt(int64(p.Quantity))))
	if p.RefundAmount != nil {
		refund = RoundMoney(*p.RefundAmount)
	}

	source := p.Source
	if source == "" {
		source = SourceApp
	}

	c := &Case{
		AftersalesNo:         p.AftersalesNo,
		OrderID:              p.OrderID,
		UserID:               p.UserID,
		OrderProductID:       p.OrderProductID,
		ProductID:            p.ProductID,
		SkuID:                p.SkuID,
		Type:                 p.Type,
		Reason:               p.Reason,
		State:                StatePendingApproval,
		Source:               source,
		Quantity:             p.Quantity,
		OriginalPrice:        p.OriginalPrice,
		PaidPrice:            p.PaidPrice,
		OriginalRefundAmount: refund,
		ActualRefundAmount:   refund,
		ProofImages:          append([]string(nil), p.ProofImages...),
		Description:          p.Description,
		ExchangeSkuID:        p.ExchangeSkuID,
		ExchangeAddress:      p.ExchangeAddress,
		AutoProcessTime:      sla.DeadlineFor(StatePendingApproval, now),
		CreatedAt:            now,
		UpdatedAt:            now,
	}
	if c.AftersalesNo == "" {
		c.AftersalesNo = GenerateAftersalesNo(now)
	}
	if err := c.checkAmounts(); err != nil {
		return nil, err
	}
	if err := c.FreezeSnapshot(p.Snapshot); err != nil {
		return nil, err
	}
	return c, nil
}

// checkAmounts 0 ≤ 实际退款 ≤ 原退款 ≤ 实付单价×数量
func (c *Case) checkAmounts() error {
	limit := c.RefundAmountCap()
	if c.OriginalRefundAmount.IsNegative() || c.OriginalRefundAmount.GreaterThan(limit) {
		return ErrInvalidRefundAmount.WithField("refund_amount")
	}
	if c.ActualRefundAmount.IsNegative() || c.ActualRefundAmount.GreaterThan(c.OriginalRefundAmount) {
		return ErrInvalidRefundAmount.WithField("refund_amount")
	}
	return nil
}

// RefundAmountCap 退款金额上限 = 实付单价×数量
func (c *Case) RefundAmountCap() decimal.Decimal {
	return RoundMoney(c.PaidPrice.Mul(decimal.NewFromInt(int64(c.Quantity))))
}

// Snapshot 商品快照
func (c *Case) Snapshot() ProductSnapshot {
	return c.snapshot
}

// FreezeSnapshot 写入商品快照,只能成功一次
// 仓储恢复实体时也通过这里写入
func (c *Case) FreezeSnapshot(s ProductSnapshot) error {
	if !c.snapshot.IsZero() {
		return ErrSnapshotFrozen
	}
	c.snapshot = s
	return nil
}

// Stage 当前阶段
func (c *Case) Stage() Stage {
	return StageOf(c.State)
}

// IsOwnedBy 是否属于指定买家
func (c *Case) IsOwnedBy(userID uint) bool {
	return c.UserID == userID
}

// AvailableActions 当前可执行的操作,修改次数用完时不再返回modify
func (c *Case) AvailableActions(maxModifyCount int) []Action {
	actions := AvailableActions(c.State, c.Type)
	out := actions[:0]
	for _, a := range actions {
		if a == ActionModify && c.ModificationCount >= maxModifyCount {
			continue
		}
		out = append(out, a)
	}
	return out
}

// Fire 执行一个操作(通用受控状态转换)
// 操作必须在AvailableActions中,失败时不修改任何字段
func (c *Case) Fire(action Action, now time.Time, sla SLA) error {
	if !CanPerform(c.State, c.Type, action) {
		return ErrInvalidTransition.Withf("%s: %s 不允许 %s", c.AftersalesNo, c.State, action)
	}
	next, ok := NextState(c.State, action)
	if !ok {
		return ErrInvalidTransition.Withf("%s: %s 没有 %s 的后续状态", c.AftersalesNo, c.State, action)
	}
	c.moveTo(next, now, sla)
	return nil
}

// moveTo 写入新状态并维护时间字段
// 截止时间由新状态决定:有时限的状态重新计时,其余清空
func (c *Case) moveTo(next State, now time.Time, sla SLA) {
	c.State = next
	c.AutoProcessTime = sla.DeadlineFor(next, now)
	switch {
	case next == StateApproved || next == StateRejected:
		c.AuditTime = &now
	case next.IsTerminal():
		c.CompletedTime = &now
	}
	c.UpdatedAt = now
}

// Approve 审核通过
func (c *Case) Approve(now time.Time) error {
	return c.Fire(ActionApprove, now, SLA{})
}

// Reject 审核拒绝,必须填写原因
func (c *Case) Reject(reason string, now time.Time) error {
	if strings.TrimSpace(reason) == "" {
		return ErrReasonRequired.WithField("reason")
	}
	if err := c.Fire(ActionReject, now, SLA{}); err != nil {
		return err
	}
	c.RejectReason = reason
	return nil
}

// Cancel 买家撤销(仅审核前)
func (c *Case) Cancel(now time.Time) error {
	return c.Fire(ActionCancel, now, SLA{})
}

// Complete 完成
func (c *Case) Complete(now time.Time) error {
	return c.Fire(ActionComplete, now, SLA{})
}

// Close 人工关闭(退款多次失败等),必须填写说明
func (c *Case) Close(note string, now time.Time) error {
	if strings.TrimSpace(note) == "" {
		return ErrReasonRequired.WithField("note")
	}
	if err := c.Fire(ActionClose, now, SLA{}); err != nil {
		return err
	}
	c.ServiceNote = note
	return nil
}

// Modification 被拒绝后买家修改的内容,nil表示不修改
type Modification struct {
	Reason      *Reason
	Description *string
	ProofImages *[]string
	Quantity    *int
}

// IsEmpty 没有任何修改
func (m Modification) IsEmpty() bool {
	return m.Reason == nil && m.Description == nil && m.ProofImages == nil && m.Quantity == nil
}

// Modify 被拒绝后修改并重新提交
// 1. 只能在REJECTED状态,修改次数 < limit
// 2. 修改数量会按实付单价重算退款金额(之前的改价作废)
// 3. 成功后回到PENDING_APPROVAL,重新计算审核时限
// 返回实际修改的字段名
func (c *Case) Modify(m Modification, limit int, now time.Time, sla SLA) ([]string, error) {
	if c.State != StateRejected {
		return nil, ErrInvalidTransition.Withf("%s: %s 不允许 modify", c.AftersalesNo, c.State)
	}
	if c.ModificationCount >= limit {
		return nil, ErrModifyLimitReached.Withf("已修改%d次,上限%d次", c.ModificationCount, limit)
	}
	if m.IsEmpty() {
		return nil, ErrNothingToModify
	}
	if m.Reason != nil && !m.Reason.Valid() {
		return nil, ErrInvalidReason
	}
	if m.Description != nil {
		if err := ValidateDescription(*m.Description); err != nil {
			return nil, err
		}
	}
	if m.ProofImages != nil {
		if err := ValidateProofImages(*m.ProofImages); err != nil {
			return nil, err
		}
	}
	if m.Quantity != nil && *m.Quantity <= 0 {
		return nil, ErrInvalidQuantity
	}

	if err := c.Fire(ActionModify, now, sla); err != nil {
		return nil, err
	}

	var changed []string
	if m.Reason != nil && *m.Reason != c.Reason {
		c.Reason = *m.Reason
		changed = append(changed, "reason")
	}
	if m.Description != nil && *m.Description != c.Description {
		c.Description = *m.Description
		changed = append(changed, "description")
	}
	if m.ProofImages != nil {
		c.ProofImages = append([]string(nil), (*m.ProofImages)...)
		changed = append(changed, "proof_images")
	}
	if m.Quantity != nil && *m.Quantity != c.Quantity {
		c.Quantity = *m.Quantity
		c.OriginalRefundAmount = c.RefundAmountCap()
		c.ActualRefundAmount = c.OriginalRefundAmount
		c.RefundAmountModified = false
		c.ModifyReason = ""
		changed = append(changed, "quantity")
	}

	c.ModificationCount++
	c.RejectReason = ""
	c.AuditTime = nil
	return changed, nil
}

// refundAdjustableStates 可以修改退款金额的状态(尚未结算)
var refundAdjustableStates = map[State]bool{
	StatePendingApproval: true,
	StateApproved:        true,
	StatePendingReturn:   true,
	StatePendingReceive:  true,
	StatePendingRefund:   true,
	StateProcessing:      true,
}

// ModifyRefundAmount 客服修改实际退款金额
// 0 ≤ 新金额 ≤ 原退款金额,校验失败不修改
func (c *Case) ModifyRefundAmount(amount decimal.Decimal, reason string, now time.Time) error {
	if c.State == StateCompleted {
		return ErrRefundSettled
	}
	if !refundAdjustableStates[c.State] {
		return ErrInvalidTransition.Withf("%s: %s 不允许修改退款金额", c.AftersalesNo, c.State)
	}
	if strings.TrimSpace(reason) == "" {
		return ErrReasonRequired.WithField("reason")
	}
	amount = RoundMoney(amount)
	if amount.IsNegative() || amount.GreaterThan(c.OriginalRefundAmount) {
		return ErrInvalidRefundAmount.WithField("refund_amount")
	}

	c.ActualRefundAmount = amount
	c.RefundAmountModified = true
	c.ModifyReason = reason
	c.UpdatedAt = now
	return nil
}

// IsTimeoutDue 是否满足超时处理条件:截止时间已到且状态在超时范围内
func (c *Case) IsTimeoutDue(now time.Time) bool {
	if c.AutoProcessTime == nil || c.AutoProcessTime.After(now) {
		return false
	}
	_, ok := NextState(c.State, EventTimeout)
	return ok
}

// ApplyTimeout 超时自动处理
//   - PENDING_APPROVAL → APPROVED(记录审核时间)
//   - PENDING_RETURN   → CANCELLED(记录完成时间)
//   - PENDING_RECEIVE  → PENDING_REFUND
//
// 截止时间一律清空;返回处理前的状态
func (c *Case) ApplyTimeout(now time.Time) (State, error) {
	from := c.State
	if !c.IsTimeoutDue(now) {
		return from, ErrNotTimeoutEligible
	}
	next, _ := NextState(c.State, EventTimeout)
	c.moveTo(next, now, SLA{})
	return from, nil
}

// OverrideState 管理端强制改状态(OMS同步使用)
// 不走可用操作表,调用方必须记录OMS_OVERRIDE日志;返回状态是否变化
func (c *Case) OverrideState(target State, now time.Time, sla SLA) (bool, error) {
	if !target.Valid() {
		return false, ErrInvalidTransition.Withf("未知状态: %s", target)
	}
	if target == c.State {
		return false, nil
	}
	c.moveTo(target, now, sla)
	return true, nil
}

// SetLogistics 更新买家寄回物流信息,返回是否变化
func (c *Case) SetLogistics(company, no string, now time.Time) bool {
	if company == c.LogisticsCompany && no == c.LogisticsNo {
		return false
	}
	c.LogisticsCompany = company
	c.LogisticsNo = no
	c.UpdatedAt = now
	return true
}

// ClaimedAmount 本单占用的数量和金额
func (c *Case) ClaimedAmount() ClaimedAmount {
	return ClaimedAmount{CaseID: c.ID, Quantity: c.Quantity, RefundAmount: c.ActualRefundAmount}
}

// Clone 深拷贝(超时预演在副本上执行)
func (c *Case) Clone() *Case {
	cp := *c
	cp.ProofImages = append([]string(nil), c.ProofImages...)
	cp.AutoProcessTime = cloneTime(c.AutoProcessTime)
	cp.AuditTime = cloneTime(c.AuditTime)
	cp.CompletedTime = cloneTime(c.CompletedTime)
	if c.ExchangeAddress != nil {
		addr := *c.ExchangeAddress
		cp.ExchangeAddress = &addr
	}
	return &cp
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}

// ValidateProofImages 最多9张,必须是http(s)地址
func ValidateProofImages(images []string) error {
	if len(images) > MaxProofImages {
		return ErrTooManyProofImages
	}
	for _, raw := range images {
		u, err := url.Parse(strings.TrimSpace(raw))
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			return ErrInvalidProofImage.Withf("非法地址: %s", raw)
		}
	}
	return nil
}

// ValidateDescription 最多500字(按字符计)
func ValidateDescription(desc string) error {
	if utf8.RuneCountInString(desc) > MaxDescriptionRunes {
		return ErrDescriptionTooLong
	}
	return nil
}
