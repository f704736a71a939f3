package aftersales

// 状态机(纯查表,无副作用)
// 教学要点:
// 1. (状态,类型) → 可用操作,(状态,事件) → 下一状态,两张表分开
// 2. 表是包级变量,只读;对外返回副本,调用方修改不影响表
// 3. 实体方法只做"查表 + 写字段",规则全部集中在这里

// stateActions 与类型无关的可用操作
var stateActions = map[State][]Action{
	StatePendingApproval: {ActionApprove, ActionReject, ActionCancel},
	StateRejected:        {ActionModify},
	StatePendingReturn:   {ActionShipBack},
	StatePendingReceive:  {ActionReceive},
	StatePendingRefund:   {ActionComplete, ActionClose},
	StatePendingExchange: {ActionComplete, ActionClose},
	StatePendingResend:   {ActionComplete},
	StateProcessing:      {ActionComplete, ActionClose},
}

// approvedActions APPROVED状态按类型分支
var approvedActions = map[CaseType][]Action{
	TypeReturnRefund: {ActionWaitReturn, ActionClose},
	TypeExchange:     {ActionWaitExchange},
	TypeResend:       {ActionWaitResend},
	TypeRefundOnly:   {ActionComplete, ActionClose},
	TypeCancel:       {ActionComplete, ActionClose},
}

// transitions (状态,事件) → 下一状态
var transitions = map[State]map[Action]State{
	StatePendingApproval: {
		ActionApprove: StateApproved,
		ActionReject:  StateRejected,
		ActionCancel:  StateCancelled,
		EventTimeout:  StateApproved,
	},
	StateRejected: {
		ActionModify: StatePendingApproval,
	},
	StateApproved: {
		ActionWaitReturn:   StatePendingReturn,
		ActionWaitExchange: StatePendingExchange,
		ActionWaitResend:   StatePendingResend,
		ActionComplete:     StateCompleted,
		ActionClose:        StateClosed,
	},
	StatePendingReturn: {
		ActionShipBack: StatePendingReceive,
		EventTimeout:   StateCancelled,
	},
	StatePendingReceive: {
		ActionReceive: StatePendingRefund,
		EventTimeout:  StatePendingRefund,
	},
	StatePendingRefund: {
		ActionComplete: StateCompleted,
		ActionClose:    StateClosed,
	},
	StatePendingExchange: {
		ActionComplete: StateCompleted,
		ActionClose:    StateClosed, // 商家拒绝换货
	},
	StatePendingResend: {
		ActionComplete: StateCompleted,
	},
	StateProcessing: {
		ActionComplete: StateCompleted,
		ActionClose:    StateClosed,
	},
}

// TimeoutStates 超时扫描关注的状态
var TimeoutStates = []State{StatePendingApproval, StatePendingReturn, StatePendingReceive}

// AvailableActions 返回(状态,类型)下可执行的操作
func AvailableActions(state State, caseType CaseType) []Action {
	var actions []Action
	if state == StateApproved {
		actions = approvedActions[caseType]
	} else {
		actions = stateActions[state]
	}
	return append([]Action(nil), actions...)
}

// CanPerform 操作是否在可用列表中
func CanPerform(state State, caseType CaseType, action Action) bool {
	for _, a := range AvailableActions(state, caseType) {
		if a == action {
			return true
		}
	}
	return false
}

// NextState 返回(状态,事件)的下一状态,ok=false表示不允许
func NextState(state State, event Action) (State, bool) {
	next, ok := transitions[state][event]
	return next, ok
}

// FollowUpAction 审核通过后按类型自动推进的操作
// 仅退款/取消订单没有后续操作,停留在APPROVED等待退款完成
func FollowUpAction(caseType CaseType) (Action, bool) {
	switch caseType {
	case TypeReturnRefund:
		return ActionWaitReturn, true
	case TypeExchange:
		return ActionWaitExchange, true
	case TypeResend:
		return ActionWaitResend, true
	}
	return "", false
}

// StageOf 状态 → 阶段
func StageOf(state State) Stage {
	switch state {
	case StatePendingApproval:
		return StageApply
	case StateApproved, StateRejected:
		return StageAudit
	case StatePendingReturn:
		return StageReturn
	case StatePendingReceive:
		return StageReceive
	case StatePendingRefund, StateProcessing:
		return StageRefund
	case StatePendingExchange, StatePendingResend:
		return StageExchange
	default:
		return StageComplete
	}
}
