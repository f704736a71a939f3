package aftersales

// 售后枚举
// 教学要点:
// 1. 使用string类型(与OMS、前端直接对齐,数据库存varchar便于排查)
// 2. 每个枚举提供Valid(),入口处统一校验
// 3. Label()返回中文名称,用于日志和后台展示

// CaseType 售后类型
type CaseType string

const (
	TypeCancel       CaseType = "CANCEL"        // 取消订单(未发货)
	TypeRefundOnly   CaseType = "REFUND_ONLY"   // 仅退款
	TypeReturnRefund CaseType = "RETURN_REFUND" // 退货退款
	TypeExchange     CaseType = "EXCHANGE"      // 换货
	TypeResend       CaseType = "RESEND"        // 补发
)

// Valid 是否为已知类型
func (t CaseType) Valid() bool {
	switch t {
	case TypeCancel, TypeRefundOnly, TypeReturnRefund, TypeExchange, TypeResend:
		return true
	}
	return false
}

// Label 中文名称
func (t CaseType) Label() string {
	switch t {
	case TypeCancel:
		return "取消订单"
	case TypeRefundOnly:
		return "仅退款"
	case TypeReturnRefund:
		return "退货退款"
	case TypeExchange:
		return "换货"
	case TypeResend:
		return "补发"
	default:
		return "未知类型"
	}
}

// InvolvesRefund 该类型是否会产生退款
func (t CaseType) InvolvesRefund() bool {
	return t == TypeCancel || t == TypeRefundOnly || t == TypeReturnRefund
}

// Reason 售后原因
type Reason string

const (
	ReasonUnusedDiscount  Reason = "UNUSED_DISCOUNT"  // 优惠未使用
	ReasonQualityIssue    Reason = "QUALITY_ISSUE"    // 质量问题
	ReasonPriceIssue      Reason = "PRICE_ISSUE"      // 价格问题
	ReasonDontWant        Reason = "DONT_WANT"        // 不想要了
	ReasonOutOfStock      Reason = "OUT_OF_STOCK"     // 缺货
	ReasonMissingItem     Reason = "MISSING_ITEM"     // 少件漏发
	ReasonDeliveryTimeout Reason = "DELIVERY_TIMEOUT" // 发货超时
	ReasonOther           Reason = "OTHER"            // 其他
)

// Valid 是否为已知原因
func (r Reason) Valid() bool {
	switch r {
	case ReasonUnusedDiscount, ReasonQualityIssue, ReasonPriceIssue, ReasonDontWant,
		ReasonOutOfStock, ReasonMissingItem, ReasonDeliveryTimeout, ReasonOther:
		return true
	}
	return false
}

// State 售后单状态
type State string

const (
	StatePendingApproval State = "PENDING_APPROVAL" // 待审核(初始状态)
	StateApproved        State = "APPROVED"         // 已审核
	StateRejected        State = "REJECTED"         // 已拒绝(可修改后重新提交)
	StatePendingReturn   State = "PENDING_RETURN"   // 待买家寄回
	StatePendingReceive  State = "PENDING_RECEIVE"  // 待商家收货
	StatePendingRefund   State = "PENDING_REFUND"   // 待退款
	StatePendingExchange State = "PENDING_EXCHANGE" // 换货处理中
	StatePendingResend   State = "PENDING_RESEND"   // 待补发
	StateProcessing      State = "PROCESSING"       // 外部系统处理中(仅OMS同步进入)
	StateCompleted       State = "COMPLETED"        // 已完成
	StateCancelled       State = "CANCELLED"        // 已取消
	StateClosed          State = "CLOSED"           // 已关闭(退款失败等人工介入后关闭)
)

// AllStates 全部状态(按流转顺序)
var AllStates = []State{
	StatePendingApproval, StateApproved, StateRejected, StatePendingReturn, StatePendingReceive,
	StatePendingRefund, StatePendingExchange, StatePendingResend, StateProcessing,
	StateCompleted, StateCancelled, StateClosed,
}

// Valid 是否为已知状态
func (s State) Valid() bool {
	for _, st := range AllStates {
		if st == s {
			return true
		}
	}
	return false
}

// IsTerminal 是否终态
// REJECTED不是终态:修改次数未用完时可以重新提交
func (s State) IsTerminal() bool {
	return s == StateCompleted || s == StateCancelled || s == StateClosed
}

// CountsTowardClaims 该状态的售后单是否占用可退数量
// 只有取消和拒绝释放数量;CLOSED的单子可能已经部分处理,仍然占用
func (s State) CountsTowardClaims() bool {
	return s != StateCancelled && s != StateRejected
}

// Stage 售后阶段(由状态推导,用于报表)
type Stage string

const (
	StageApply    Stage = "APPLY"
	StageAudit    Stage = "AUDIT"
	StageReturn   Stage = "RETURN"
	StageReceive  Stage = "RECEIVE"
	StageRefund   Stage = "REFUND"
	StageExchange Stage = "EXCHANGE"
	StageComplete Stage = "COMPLETE"
)

// Action 操作(用户/后台触发)
type Action string

const (
	ActionApprove      Action = "approve"
	ActionReject       Action = "reject"
	ActionCancel       Action = "cancel"
	ActionModify       Action = "modify"
	ActionWaitReturn   Action = "wait_return"
	ActionWaitExchange Action = "wait_exchange"
	ActionWaitResend   Action = "wait_resend"
	ActionShipBack     Action = "ship_back"
	ActionReceive      Action = "receive"
	ActionComplete     Action = "complete"
	ActionClose        Action = "close"

	// 系统事件,不会出现在AvailableActions中
	EventTimeout  Action = "timeout"
	EventOverride Action = "override"
)

// Source 售后单来源
type Source string

const (
	SourceApp Source = "APP" // 买家在商城发起
	SourceOMS Source = "OMS" // OMS同步创建
)
