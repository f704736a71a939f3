package aftersales

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

var allTypes = []CaseType{TypeCancel, TypeRefundOnly, TypeReturnRefund, TypeExchange, TypeResend}

// 每个可用操作都必须有后续状态,否则Fire会在查表后失败
func TestStateMachine_ActionsHaveTransitions(t *testing.T) {
	for _, s := range AllStates {
		for _, typ := range allTypes {
			for _, a := range AvailableActions(s, typ) {
				_, ok := NextState(s, a)
				assert.True(t, ok, "%s/%s/%s 缺少后续状态", s, typ, a)
			}
		}
	}
}

func TestStateMachine_TerminalStatesHaveNoActions(t *testing.T) {
	for _, s := range AllStates {
		if !s.IsTerminal() {
			continue
		}
		for _, typ := range allTypes {
			assert.Empty(t, AvailableActions(s, typ), "%s/%s", s, typ)
		}
	}
}

func TestAvailableActions_Lookup(t *testing.T) {
	assert.Equal(t, []Action{ActionApprove, ActionReject, ActionCancel}, AvailableActions(StatePendingApproval, TypeRefundOnly))
	assert.Equal(t, []Action{ActionWaitReturn, ActionClose}, AvailableActions(StateApproved, TypeReturnRefund))
	assert.Contains(t, AvailableActions(StateApproved, TypeRefundOnly), ActionComplete)
	assert.Contains(t, AvailableActions(StatePendingRefund, TypeReturnRefund), ActionComplete)
	assert.Contains(t, AvailableActions(StatePendingExchange, TypeExchange), ActionComplete)
}

func TestAvailableActions_ReturnsCopy(t *testing.T) {
	actions := AvailableActions(StatePendingApproval, TypeRefundOnly)
	actions[0] = ActionClose
	assert.Equal(t, ActionApprove, AvailableActions(StatePendingApproval, TypeRefundOnly)[0])
}

func TestNextState_Timeout(t *testing.T) {
	tests := []struct {
		from State
		to   State
	}{
		{StatePendingApproval, StateApproved},
		{StatePendingReturn, StateCancelled},
		{StatePendingReceive, StatePendingRefund},
	}
	for _, tt := range tests {
		next, ok := NextState(tt.from, EventTimeout)
		assert.True(t, ok)
		assert.Equal(t, tt.to, next)
	}
	for _, s := range AllStates {
		if _, ok := NextState(s, EventTimeout); ok {
			assert.Contains(t, TimeoutStates, s)
		}
	}
}

func TestCancel_OnlyBeforeApproval(t *testing.T) {
	for _, s := range AllStates {
		can := CanPerform(s, TypeRefundOnly, ActionCancel)
		assert.Equal(t, s == StatePendingApproval, can, "%s", s)
	}
}

func TestFollowUpAction(t *testing.T) {
	a, ok := FollowUpAction(TypeReturnRefund)
	assert.True(t, ok)
	assert.Equal(t, ActionWaitReturn, a)

	_, ok = FollowUpAction(TypeRefundOnly)
	assert.False(t, ok)
}

func TestStageOf(t *testing.T) {
	assert.Equal(t, StageApply, StageOf(StatePendingApproval))
	assert.Equal(t, StageAudit, StageOf(StateRejected))
	assert.Equal(t, StageRefund, StageOf(StateProcessing))
	assert.Equal(t, StageComplete, StageOf(StateCancelled))
}
