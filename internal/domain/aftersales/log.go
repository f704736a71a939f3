package aftersales

import (
	"time"
)

// ActorType 操作人类型
type ActorType string

const (
	ActorSystem ActorType = "SYSTEM" // 定时任务、自动推进
	ActorUser   ActorType = "USER"   // 买家
	ActorAdmin  ActorType = "ADMIN"  // 客服/运营
	ActorOMS    ActorType = "OMS"    // OMS同步
)

// Actor 操作人
// 每个写操作显式传入,日志不从请求上下文里"猜"操作人
type Actor struct {
	Type ActorType `json:"type"`
	ID   uint      `json:"id"`
	Name string    `json:"name"`
}

// SystemActor 系统操作人
func SystemActor() Actor {
	return Actor{Type: ActorSystem, Name: "system"}
}

// OMSActor OMS同步操作人,name为OMS侧审核人(可能为空)
func OMSActor(name string) Actor {
	if name == "" {
		name = "oms"
	}
	return Actor{Type: ActorOMS, Name: name}
}

// LogAction 日志动作
type LogAction string

const (
	LogApply              LogAction = "APPLY"
	LogApprove            LogAction = "APPROVE"
	LogReject             LogAction = "REJECT"
	LogCancel             LogAction = "CANCEL"
	LogComplete           LogAction = "COMPLETE"
	LogClose              LogAction = "CLOSE"
	LogModify             LogAction = "MODIFY"
	LogModifyRefundAmount LogAction = "MODIFY_REFUND_AMOUNT"
	LogAdvance            LogAction = "ADVANCE"
	LogTimeout            LogAction = "TIMEOUT"

	LogOmsCreate     LogAction = "OMS_CREATE"
	LogOmsSync       LogAction = "OMS_SYNC"
	LogOmsUpdateInfo LogAction = "OMS_UPDATE_INFO"
	LogOmsOverride   LogAction = "OMS_OVERRIDE"

	LogRefundCreate     LogAction = "REFUND_CREATE"
	LogRefundProcessing LogAction = "REFUND_PROCESSING"
	LogRefundSuccess    LogAction = "REFUND_SUCCESS"
	LogRefundFailed     LogAction = "REFUND_FAILED"
	LogRefundUnsettled  LogAction = "REFUND_UNSETTLED"

	LogReturnCreate   LogAction = "RETURN_CREATE"
	LogReturnShipped  LogAction = "RETURN_SHIPPED"
	LogReturnTracking LogAction = "RETURN_TRACKING"
	LogReturnReceived LogAction = "RETURN_RECEIVED"
	LogReturnInspect  LogAction = "RETURN_INSPECT"
	LogReturnCancel   LogAction = "RETURN_CANCEL"

	LogExchangeCreate LogAction = "EXCHANGE_CREATE"
	LogExchangeUpdate LogAction = "EXCHANGE_UPDATE"
)

// Log 售后操作日志
// 教学要点:
// 1. 只增不改(Append-Only),只有保留期清理任务会删除
// 2. 记录变更前后状态(可为空:不涉及状态变化的操作)
// 3. 业务逻辑从不读取日志做判断
type Log struct {
	ID         uint
	CaseID     uint
	SubOrderNo string // 子单操作时记录子单号
	Actor      Actor
	Action     LogAction
	FromState  *State
	ToState    *State
	Content    string
	Context    map[string]interface{}
	CreatedAt  time.Time
}

// NewLog 创建日志
func NewLog(caseID uint, actor Actor, action LogAction, content string, now time.Time) *Log {
	return &Log{
		CaseID:    caseID,
		Actor:     actor,
		Action:    action,
		Content:   content,
		CreatedAt: now,
	}
}

// WithStates 记录状态变化
func (l *Log) WithStates(from, to State) *Log {
	l.FromState = &from
	l.ToState = &to
	return l
}

// WithSubOrder 记录子单号
func (l *Log) WithSubOrder(no string) *Log {
	l.SubOrderNo = no
	return l
}

// With 追加结构化上下文
func (l *Log) With(key string, value interface{}) *Log {
	if l.Context == nil {
		l.Context = make(map[string]interface{})
	}
	l.Context[key] = value
	return l
}
