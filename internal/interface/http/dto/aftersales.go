package dto

import (
	"time"

	"github.com/shopspring/decimal"

	appaftersales "github.com/xiebiao/aftersales/internal/application/aftersales"
	"github.com/xiebiao/aftersales/internal/domain/aftersales"
	"github.com/xiebiao/aftersales/internal/domain/suborder"
)

const timeLayout = "2006-01-02 15:04:05"

// =========================================
// 请求
// =========================================

// ItemRequest 申请/试算的一行明细
type ItemRequest struct {
	OrderProductID uint        `json:"order_product_id" binding:"required" example:"101"`
	Quantity       RawQuantity `json:"quantity" swaggertype:"string" example:"1"`
}

// AddressRequest 换货收货地址
type AddressRequest struct {
	Name    string `json:"name" binding:"required,max=50" example:"张三"`
	Phone   string `json:"phone" binding:"required,max=20" example:"13800138000"`
	Address string `json:"address" binding:"required,max=255" example:"北京市海淀区中关村大街1号"`
}

func (a *AddressRequest) toDomain() *suborder.Address {
	if a == nil {
		return nil
	}
	return &suborder.Address{Name: a.Name, Phone: a.Phone, Address: a.Address}
}

// CalculateRequest 可退金额试算
type CalculateRequest struct {
	OrderID string        `json:"order_id" binding:"required,max=64" example:"SO20240618001"`
	Items   []ItemRequest `json:"items" binding:"required,min=1,dive"`
}

// CalcItems 转换为计算器输入
func (r *CalculateRequest) CalcItems() []aftersales.CalcItem {
	return toCalcItems(r.Items)
}

// ApplyRequest 提交售后申请
// 类型、原因的合法性由领域层校验,错误码与字段一起返回
type ApplyRequest struct {
	OrderID         string          `json:"order_id" binding:"required,max=64" example:"SO20240618001"`
	Type            string          `json:"type" binding:"required" example:"REFUND_ONLY"`
	Reason          string          `json:"reason" binding:"required" example:"QUALITY_ISSUE"`
	Description     string          `json:"description" example:"封面破损"`
	ProofImages     []string        `json:"proof_images" example:"https://img.example.com/1.jpg"`
	Items           []ItemRequest   `json:"items" binding:"required,min=1,dive"`
	ExchangeSkuID   uint            `json:"exchange_sku_id" example:"0"`
	ExchangeAddress *AddressRequest `json:"exchange_address"`
}

// ToApp 转换为应用层请求
func (r *ApplyRequest) ToApp() appaftersales.ApplyRequest {
	return appaftersales.ApplyRequest{
		OrderID:         r.OrderID,
		Type:            aftersales.CaseType(r.Type),
		Reason:          aftersales.Reason(r.Reason),
		Description:     r.Description,
		ProofImages:     r.ProofImages,
		Items:           toCalcItems(r.Items),
		ExchangeSkuID:   r.ExchangeSkuID,
		ExchangeAddress: r.ExchangeAddress.toDomain(),
	}
}

func toCalcItems(items []ItemRequest) []aftersales.CalcItem {
	out := make([]aftersales.CalcItem, len(items))
	for i, it := range items {
		out[i] = aftersales.CalcItem{OrderProductID: it.OrderProductID, Quantity: it.Quantity.String()}
	}
	return out
}

// ModifyRequest 被拒绝后修改,nil字段不修改
type ModifyRequest struct {
	Reason      *string   `json:"reason" example:"QUALITY_ISSUE"`
	Description *string   `json:"description"`
	ProofImages *[]string `json:"proof_images"`
	Quantity    *int      `json:"quantity" example:"1"`
	Remark      string    `json:"remark" binding:"max=255" example:"补充了凭证图片"`
}

// ToApp 转换为应用层请求
func (r *ModifyRequest) ToApp() appaftersales.ModifyRequest {
	m := aftersales.Modification{
		Description: r.Description,
		ProofImages: r.ProofImages,
		Quantity:    r.Quantity,
	}
	if r.Reason != nil {
		reason := aftersales.Reason(*r.Reason)
		m.Reason = &reason
	}
	return appaftersales.ModifyRequest{Fields: m, Reason: r.Remark}
}

// ReasonRequest 拒绝/关闭/换货拒绝的原因
type ReasonRequest struct {
	Reason string `json:"reason" binding:"required,max=255" example:"超过售后期"`
}

// NoteRequest 可选备注
type NoteRequest struct {
	Note string `json:"note" binding:"max=500" example:"客户电话确认"`
}

// RefundAmountRequest 客服修改退款金额
type RefundAmountRequest struct {
	Amount decimal.Decimal `json:"amount" swaggertype:"string" example:"18.50"`
	Reason string          `json:"reason" binding:"required,max=255" example:"商品有轻微使用痕迹"`
}

// AdvanceRequest 手动推进(审核通过后进入下一环节)
type AdvanceRequest struct {
	Action string `json:"action" binding:"required,oneof=wait_return wait_exchange wait_resend ship_back receive" example:"wait_return"`
}

// ShipRequest 填写快递单号
type ShipRequest struct {
	CarrierCode string `json:"carrier_code" binding:"required,max=20" example:"SF"`
	TrackingNo  string `json:"tracking_no" binding:"required,max=64" example:"SF1234567890"`
}

// TrackingPushRequest 快递轨迹推送
type TrackingPushRequest struct {
	CarrierCode string `json:"carrier_code" binding:"required" example:"SF"`
	TrackingNo  string `json:"tracking_no" binding:"required" example:"SF1234567890"`
	Status      string `json:"status" binding:"required" example:"delivered"`
}

// InspectRequest 退货质检
type InspectRequest struct {
	Pass *bool  `json:"pass" binding:"required" example:"true"`
	Note string `json:"note" binding:"max=500" example:"外包装完好"`
}

// ListRequest 售后单列表
type ListRequest struct {
	Page     int    `form:"page" binding:"omitempty,min=1" example:"1"`
	PageSize int    `form:"page_size" binding:"omitempty,min=1,max=100" example:"20"`
	OrderID  string `form:"order_id" binding:"omitempty,max=64"`
	State    string `form:"state" example:"PENDING_APPROVAL"`
	Type     string `form:"type" example:"REFUND_ONLY"`
	UserID   uint   `form:"user_id"` // 仅后台有效
}

// ToQuery 转换为仓储查询条件
func (r *ListRequest) ToQuery() aftersales.ListQuery {
	return aftersales.ListQuery{
		UserID:   r.UserID,
		OrderID:  r.OrderID,
		State:    aftersales.State(r.State),
		Type:     aftersales.CaseType(r.Type),
		Page:     r.Page,
		PageSize: r.PageSize,
	}
}

// TimeoutJobRequest 手动触发超时扫描
type TimeoutJobRequest struct {
	BatchSize int  `form:"batch_size" binding:"omitempty,min=1,max=1000" example:"100"`
	DryRun    bool `form:"dry_run" example:"true"`
}

// =========================================
// 响应
// =========================================

// CaseResponse 售后单
type CaseResponse struct {
	ID                   uint              `json:"id" example:"1"`
	AftersalesNo         string            `json:"aftersales_no" example:"AS20240618093000123456"`
	OrderID              string            `json:"order_id" example:"SO20240618001"`
	UserID               uint              `json:"user_id" example:"7"`
	OrderProductID       uint              `json:"order_product_id" example:"101"`
	SkuID                uint              `json:"sku_id" example:"1001"`
	Type                 string            `json:"type" example:"REFUND_ONLY"`
	Reason               string            `json:"reason" example:"QUALITY_ISSUE"`
	State                string            `json:"state" example:"PENDING_APPROVAL"`
	Source               string            `json:"source" example:"APP"`
	Quantity             int               `json:"quantity" example:"1"`
	PaidPrice            string            `json:"paid_price" example:"25.00"`
	OriginalRefundAmount string            `json:"original_refund_amount" example:"25.00"`
	ActualRefundAmount   string            `json:"actual_refund_amount" example:"25.00"`
	RefundAmountModified bool              `json:"refund_amount_modified"`
	ModifyReason         string            `json:"modify_reason,omitempty"`
	ModificationCount    int               `json:"modification_count"`
	Description          string            `json:"description,omitempty"`
	ProofImages          []string          `json:"proof_images,omitempty"`
	RejectReason         string            `json:"reject_reason,omitempty"`
	ServiceNote          string            `json:"service_note,omitempty"`
	LogisticsCompany     string            `json:"logistics_company,omitempty"`
	LogisticsNo          string            `json:"logistics_no,omitempty"`
	ExchangeSkuID        uint              `json:"exchange_sku_id,omitempty"`
	ExchangeAddress      *suborder.Address `json:"exchange_address,omitempty"`
	AutoProcessTime      string            `json:"auto_process_time,omitempty" example:"2024-06-20 09:30:00"`
	AuditTime            string            `json:"audit_time,omitempty"`
	CompletedTime        string            `json:"completed_time,omitempty"`
	CreatedAt            string            `json:"created_at" example:"2024-06-18 09:30:00"`
	UpdatedAt            string            `json:"updated_at"`
}

// ToCaseResponse 领域实体 → 响应
func ToCaseResponse(c *aftersales.Case) *CaseResponse {
	if c == nil {
		return nil
	}
	return &CaseResponse{
		ID:                   c.ID,
		AftersalesNo:         c.AftersalesNo,
		OrderID:              c.OrderID,
		UserID:               c.UserID,
		OrderProductID:       c.OrderProductID,
		SkuID:                c.SkuID,
		Type:                 string(c.Type),
		Reason:               string(c.Reason),
		State:                string(c.State),
		Source:               string(c.Source),
		Quantity:             c.Quantity,
		PaidPrice:            c.PaidPrice.StringFixed(2),
		OriginalRefundAmount: c.OriginalRefundAmount.StringFixed(2),
		ActualRefundAmount:   c.ActualRefundAmount.StringFixed(2),
		RefundAmountModified: c.RefundAmountModified,
		ModifyReason:         c.ModifyReason,
		ModificationCount:    c.ModificationCount,
		Description:          c.Description,
		ProofImages:          c.ProofImages,
		RejectReason:         c.RejectReason,
		ServiceNote:          c.ServiceNote,
		LogisticsCompany:     c.LogisticsCompany,
		LogisticsNo:          c.LogisticsNo,
		ExchangeSkuID:        c.ExchangeSkuID,
		ExchangeAddress:      c.ExchangeAddress,
		AutoProcessTime:      formatTime(c.AutoProcessTime),
		AuditTime:            formatTime(c.AuditTime),
		CompletedTime:        formatTime(c.CompletedTime),
		CreatedAt:            c.CreatedAt.Format(timeLayout),
		UpdatedAt:            c.UpdatedAt.Format(timeLayout),
	}
}

// ToCaseList 列表转换
func ToCaseList(cases []*aftersales.Case) []*CaseResponse {
	out := make([]*CaseResponse, len(cases))
	for i, c := range cases {
		out[i] = ToCaseResponse(c)
	}
	return out
}

// ApplyResponse 申请结果
// 部分明细失败时Created和Errors同时有值
type ApplyResponse struct {
	Created []*CaseResponse           `json:"created"`
	Errors  []appaftersales.ItemError `json:"errors,omitempty"`
}

// ToApplyResponse 转换申请结果
func ToApplyResponse(r *appaftersales.ApplyResult) *ApplyResponse {
	return &ApplyResponse{Created: ToCaseList(r.Created), Errors: r.Errors}
}

// RefundOrderResponse 退款单
type RefundOrderResponse struct {
	ID            uint   `json:"id"`
	RefundNo      string `json:"refund_no" example:"RF20240618093000123456"`
	Amount        string `json:"amount" example:"25.00"`
	Status        string `json:"status" example:"PENDING"`
	TransactionNo string `json:"transaction_no,omitempty"`
	FailureReason string `json:"failure_reason,omitempty"`
	RetryCount    int    `json:"retry_count"`
	CanRetry      bool   `json:"can_retry"`
	CreatedAt     string `json:"created_at"`
}

// ToRefundOrderResponse 转换退款单
func ToRefundOrderResponse(r *suborder.RefundOrder) *RefundOrderResponse {
	if r == nil {
		return nil
	}
	return &RefundOrderResponse{
		ID:            r.ID,
		RefundNo:      r.RefundNo,
		Amount:        r.Amount.StringFixed(2),
		Status:        string(r.Status),
		TransactionNo: r.TransactionNo,
		FailureReason: r.FailureReason,
		RetryCount:    r.RetryCount,
		CanRetry:      r.CanRetry(),
		CreatedAt:     r.CreatedAt.Format(timeLayout),
	}
}

// ReturnOrderResponse 退货单
type ReturnOrderResponse struct {
	ID             uint             `json:"id"`
	ReturnNo       string           `json:"return_no" example:"RT20240618093000123456"`
	Quantity       int              `json:"quantity"`
	Address        suborder.Address `json:"address"`
	CarrierCode    string           `json:"carrier_code,omitempty"`
	TrackingNo     string           `json:"tracking_no,omitempty"`
	Status         string           `json:"status" example:"PENDING"`
	InspectionNote string           `json:"inspection_note,omitempty"`
	ShippedAt      string           `json:"shipped_at,omitempty"`
	ReceivedAt     string           `json:"received_at,omitempty"`
}

// ToReturnOrderResponse 转换退货单
func ToReturnOrderResponse(r *suborder.ReturnOrder) *ReturnOrderResponse {
	if r == nil {
		return nil
	}
	return &ReturnOrderResponse{
		ID:             r.ID,
		ReturnNo:       r.ReturnNo,
		Quantity:       r.Quantity,
		Address:        r.Address,
		CarrierCode:    r.CarrierCode,
		TrackingNo:     r.TrackingNo,
		Status:         string(r.Status),
		InspectionNote: r.InspectionNote,
		ShippedAt:      formatTime(r.ShippedAt),
		ReceivedAt:     formatTime(r.ReceivedAt),
	}
}

// ExchangeOrderResponse 换货单
type ExchangeOrderResponse struct {
	ID                uint             `json:"id"`
	ExchangeNo        string           `json:"exchange_no" example:"EX20240618093000123456"`
	OriginalSkuID     uint             `json:"original_sku_id"`
	ExchangeSkuID     uint             `json:"exchange_sku_id"`
	Quantity          int              `json:"quantity"`
	OriginalItemPrice string           `json:"original_item_price"`
	ExchangeItemPrice string           `json:"exchange_item_price"`
	PriceDifference   string           `json:"price_difference"`
	Address           suborder.Address `json:"address"`
	ReturnCarrier     string           `json:"return_carrier,omitempty"`
	ReturnTrackingNo  string           `json:"return_tracking_no,omitempty"`
	ShipCarrier       string           `json:"ship_carrier,omitempty"`
	ShipTrackingNo    string           `json:"ship_tracking_no,omitempty"`
	RejectReason      string           `json:"reject_reason,omitempty"`
	Status            string           `json:"status" example:"PENDING_APPROVAL"`
}

// ToExchangeOrderResponse 转换换货单
func ToExchangeOrderResponse(e *suborder.ExchangeOrder) *ExchangeOrderResponse {
	if e == nil {
		return nil
	}
	return &ExchangeOrderResponse{
		ID:                e.ID,
		ExchangeNo:        e.ExchangeNo,
		OriginalSkuID:     e.OriginalSkuID,
		ExchangeSkuID:     e.ExchangeSkuID,
		Quantity:          e.Quantity,
		OriginalItemPrice: e.OriginalItemPrice.StringFixed(2),
		ExchangeItemPrice: e.ExchangeItemPrice.StringFixed(2),
		PriceDifference:   e.PriceDifference().StringFixed(2),
		Address:           e.Address,
		ReturnCarrier:     e.ReturnCarrier,
		ReturnTrackingNo:  e.ReturnTrackingNo,
		ShipCarrier:       e.ShipCarrier,
		ShipTrackingNo:    e.ShipTrackingNo,
		RejectReason:      e.RejectReason,
		Status:            string(e.Status),
	}
}

// CaseDetailResponse 售后单详情(含子单和可执行操作)
type CaseDetailResponse struct {
	*CaseResponse
	AvailableActions []string                 `json:"available_actions"`
	RefundOrders     []*RefundOrderResponse   `json:"refund_orders"`
	ReturnOrders     []*ReturnOrderResponse   `json:"return_orders"`
	ExchangeOrders   []*ExchangeOrderResponse `json:"exchange_orders"`
}

// ToCaseDetailResponse 转换详情
func ToCaseDetailResponse(d *appaftersales.CaseDetail) *CaseDetailResponse {
	resp := &CaseDetailResponse{
		CaseResponse:     ToCaseResponse(d.Case),
		AvailableActions: make([]string, len(d.AvailableActions)),
		RefundOrders:     make([]*RefundOrderResponse, len(d.RefundOrders)),
		ReturnOrders:     make([]*ReturnOrderResponse, len(d.ReturnOrders)),
		ExchangeOrders:   make([]*ExchangeOrderResponse, len(d.ExchangeOrders)),
	}
	for i, a := range d.AvailableActions {
		resp.AvailableActions[i] = string(a)
	}
	for i, r := range d.RefundOrders {
		resp.RefundOrders[i] = ToRefundOrderResponse(r)
	}
	for i, r := range d.ReturnOrders {
		resp.ReturnOrders[i] = ToReturnOrderResponse(r)
	}
	for i, e := range d.ExchangeOrders {
		resp.ExchangeOrders[i] = ToExchangeOrderResponse(e)
	}
	return resp
}

// ReturnResponse 退货操作结果
type ReturnResponse struct {
	Case        *CaseResponse        `json:"case"`
	ReturnOrder *ReturnOrderResponse `json:"return_order"`
	Changed     bool                 `json:"changed"`
}

// ToReturnResponse 转换退货操作结果
func ToReturnResponse(r *appaftersales.ReturnResult) *ReturnResponse {
	return &ReturnResponse{
		Case:        ToCaseResponse(r.Case),
		ReturnOrder: ToReturnOrderResponse(r.ReturnOrder),
		Changed:     r.Changed,
	}
}

// ExchangeResponse 换货操作结果
type ExchangeResponse struct {
	Case          *CaseResponse          `json:"case"`
	ExchangeOrder *ExchangeOrderResponse `json:"exchange_order"`
}

// ToExchangeResponse 转换换货操作结果
func ToExchangeResponse(r *appaftersales.ExchangeResult) *ExchangeResponse {
	return &ExchangeResponse{
		Case:          ToCaseResponse(r.Case),
		ExchangeOrder: ToExchangeOrderResponse(r.ExchangeOrder),
	}
}

// LogResponse 操作日志
type LogResponse struct {
	ID         uint                   `json:"id"`
	SubOrderNo string                 `json:"sub_order_no,omitempty"`
	ActorType  string                 `json:"actor_type" example:"ADMIN"`
	ActorID    uint                   `json:"actor_id"`
	ActorName  string                 `json:"actor_name"`
	Action     string                 `json:"action" example:"APPROVE"`
	FromState  string                 `json:"from_state,omitempty"`
	ToState    string                 `json:"to_state,omitempty"`
	Content    string                 `json:"content"`
	Context    map[string]interface{} `json:"context,omitempty"`
	CreatedAt  string                 `json:"created_at"`
}

// ToLogList 转换日志
func ToLogList(logs []*aftersales.Log) []*LogResponse {
	out := make([]*LogResponse, len(logs))
	for i, l := range logs {
		r := &LogResponse{
			ID:         l.ID,
			SubOrderNo: l.SubOrderNo,
			ActorType:  string(l.Actor.Type),
			ActorID:    l.Actor.ID,
			ActorName:  l.Actor.Name,
			Action:     string(l.Action),
			Content:    l.Content,
			Context:    l.Context,
			CreatedAt:  l.CreatedAt.Format(timeLayout),
		}
		if l.FromState != nil {
			r.FromState = string(*l.FromState)
		}
		if l.ToState != nil {
			r.ToState = string(*l.ToState)
		}
		out[i] = r
	}
	return out
}

func formatTime(t *time.Time) string {
	if t == nil {
		return ""
	}
	return t.Format(timeLayout)
}
