package oms

import (
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"

	"github.com/xiebiao/aftersales/internal/domain/aftersales"
	"github.com/xiebiao/aftersales/internal/domain/suborder"
	apperrors "github.com/xiebiao/aftersales/pkg/errors"
)

// Product OMS售后单中的商品
type Product struct {
	OrderProductID uint            `json:"orderProductId"`
	Code           string          `json:"code" validate:"required"`
	Name           string          `json:"name" validate:"required"`
	Quantity       int             `json:"quantity" validate:"gt=0"`
	Amount         decimal.Decimal `json:"amount"` // 该商品实付总额
}

// Address OMS地址
type Address struct {
	Name    string `json:"name" validate:"required"`
	Phone   string `json:"phone" validate:"required"`
	Address string `json:"address" validate:"required"`
}

func (a *Address) toDomain() *suborder.Address {
	if a == nil {
		return nil
	}
	return &suborder.Address{Name: a.Name, Phone: a.Phone, Address: a.Address}
}

// Payload OMS推送的完整售后单
type Payload struct {
	AftersalesNo     string           `json:"aftersalesNo" validate:"required,max=32"`
	OrderNo          string           `json:"orderNo" validate:"required,max=64"`
	AftersalesType   string           `json:"aftersalesType" validate:"required"`
	Status           string           `json:"status"`
	Reason           string           `json:"reason"`
	Description      string           `json:"description" validate:"max=500"`
	RefundAmount     *decimal.Decimal `json:"refundAmount"`
	Products         []Product        `json:"products" validate:"required,min=1,dive"`
	ExchangeAddress  *Address         `json:"exchangeAddress"`
	Auditor          string           `json:"auditor"`
	AuditRemark      string           `json:"auditRemark"`
	AuditTime        *time.Time       `json:"auditTime"`
	LogisticsCompany string           `json:"logisticsCompany"`
	LogisticsNo      string           `json:"logisticsNo"`
	ProofImages      []string         `json:"proofImages"`
}

// timePrecision 与 aftersales.audit_time 列精度 datetime(3) 一致
const timePrecision = time.Millisecond

// auditTime 截断到列精度,否则落库后再比较永远不相等
func (p *Payload) auditTime() *time.Time {
	if p.AuditTime == nil {
		return nil
	}
	t := p.AuditTime.Truncate(timePrecision)
	return &t
}

// InfoPatch 部分更新,nil表示不修改
type InfoPatch struct {
	AftersalesNo     string           `json:"aftersalesNo" validate:"required"`
	Reason           *string          `json:"reason"`
	Description      *string          `json:"description" validate:"omitempty,max=500"`
	ProofImages      *[]string        `json:"proofImages"`
	RefundAmount     *decimal.Decimal `json:"refundAmount"`
	ExchangeAddress  *Address         `json:"exchangeAddress"`
	LogisticsCompany *string          `json:"logisticsCompany"`
	LogisticsNo      *string          `json:"logisticsNo"`
	AuditRemark      *string          `json:"auditRemark"`
}

// IsEmpty 没有任何字段
func (p InfoPatch) IsEmpty() bool {
	return p.Reason == nil && p.Description == nil && p.ProofImages == nil && p.RefundAmount == nil &&
		p.ExchangeAddress == nil && p.LogisticsCompany == nil && p.LogisticsNo == nil && p.AuditRemark == nil
}

// StatusUpdate 只更新状态
type StatusUpdate struct {
	AftersalesNo string `json:"aftersalesNo" validate:"required"`
	Status       string `json:"status" validate:"required"`
	Auditor      string `json:"auditor"`
	AuditRemark  string `json:"auditRemark"`
}

// typeMapping OMS售后类型 → 内部类型
var typeMapping = map[string]aftersales.CaseType{
	"refund":   aftersales.TypeRefundOnly,
	"return":   aftersales.TypeReturnRefund,
	"exchange": aftersales.TypeExchange,
}

// statusMapping OMS状态 → 内部状态(显式映射,未知状态直接报错)
var statusMapping = map[string]aftersales.State{
	"pending":    aftersales.StatePendingApproval,
	"approved":   aftersales.StateApproved,
	"rejected":   aftersales.StateRejected,
	"processing": aftersales.StateProcessing,
	"completed":  aftersales.StateCompleted,
	"cancelled":  aftersales.StateCancelled,
}

// MapType 映射售后类型
func MapType(token string) (aftersales.CaseType, error) {
	t, ok := typeMapping[strings.ToLower(strings.TrimSpace(token))]
	if !ok {
		return "", ErrUnknownType.WithField("aftersalesType").Withf("未知售后类型: %q", token)
	}
	return t, nil
}

// MapStatus 映射状态,空字符串视为pending
func MapStatus(token string) (aftersales.State, error) {
	token = strings.ToLower(strings.TrimSpace(token))
	if token == "" {
		return aftersales.StatePendingApproval, nil
	}
	st, ok := statusMapping[token]
	if !ok {
		return "", ErrUnknownStatus.WithField("status").Withf("未知状态: %q", token)
	}
	return st, nil
}

// MapReason 原因兼容大小写,未知原因归为OTHER
func MapReason(token string) aftersales.Reason {
	r := aftersales.Reason(strings.ToUpper(strings.TrimSpace(token)))
	if r.Valid() {
		return r
	}
	return aftersales.ReasonOther
}

// validatePayload 结构校验(validator标签) + 显式业务校验
// 任何一项失败都不会修改数据
func validatePayload(v *validator.Validate, p *Payload) error {
	if err := v.Struct(p); err != nil {
		return translate(err)
	}
	if _, err := MapType(p.AftersalesType); err != nil {
		return err
	}
	if _, err := MapStatus(p.Status); err != nil {
		return err
	}
	for i, prod := range p.Products {
		if prod.Amount.IsNegative() {
			return apperrors.ErrInvalidParams.WithField("products.amount").Withf("products[%d].amount 不能为负数", i)
		}
	}
	if p.RefundAmount != nil && p.RefundAmount.IsNegative() {
		return aftersales.ErrInvalidRefundAmount.WithField("refundAmount")
	}
	if strings.EqualFold(strings.TrimSpace(p.AftersalesType), "exchange") {
		if p.ExchangeAddress == nil {
			return suborder.ErrInvalidAddress.WithField("exchangeAddress")
		}
		if err := p.ExchangeAddress.toDomain().Validate(); err != nil {
			return suborder.ErrInvalidAddress.WithField("exchangeAddress")
		}
	}
	if err := aftersales.ValidateProofImages(p.ProofImages); err != nil {
		return err
	}
	return nil
}

// translate validator错误 → 字段级参数错误(只报第一个)
func translate(err error) error {
	verrs, ok := err.(validator.ValidationErrors)
	if !ok || len(verrs) == 0 {
		return apperrors.ErrInvalidParams.Withf("%v", err)
	}
	fe := verrs[0]
	return apperrors.ErrInvalidParams.WithField(fe.Namespace()).Withf("%s 校验失败: %s", fe.Field(), fe.Tag())
}

// totals 汇总商品数量和金额
func (p *Payload) totals() (quantity int, amount decimal.Decimal) {
	amount = decimal.Zero
	for _, prod := range p.Products {
		quantity += prod.Quantity
		amount = amount.Add(prod.Amount)
	}
	return quantity, amount
}

// snapshot OMS商品快照
func (p *Payload) snapshot(now time.Time) aftersales.ProductSnapshot {
	items := make([]aftersales.SnapshotItem, 0, len(p.Products))
	for _, prod := range p.Products {
		unit := decimal.Zero
		if prod.Quantity > 0 {
			unit = prod.Amount.DivRound(decimal.NewFromInt(int64(prod.Quantity)), 6)
		}
		items = append(items, aftersales.SnapshotItem{
			OrderProductID: prod.OrderProductID,
			Code:           prod.Code,
			Name:           prod.Name,
			Quantity:       prod.Quantity,
			OriginalPrice:  unit,
			PaidPrice:      unit,
		})
	}
	return aftersales.NewProductSnapshot(items, now)
}
