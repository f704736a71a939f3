package aftersales

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xiebiao/aftersales/internal/domain/aftersales"
	"github.com/xiebiao/aftersales/internal/domain/suborder"
	apperrors "github.com/xiebiao/aftersales/pkg/errors"
)

func TestApprove_RefundOnlyCreatesRefundOrder(t *testing.T) {
	h := newHarness(t)
	c := h.apply(t, aftersales.TypeRefundOnly, "2")

	approved, err := h.svc.Approve(context.Background(), c.ID, admin)
	require.NoError(t, err)
	assert.Equal(t, aftersales.StateApproved, approved.State)
	require.NotNil(t, approved.AuditTime)
	assert.Nil(t, approved.AutoProcessTime)

	refunds, err := h.refunds.FindByCaseID(context.Background(), c.ID)
	require.NoError(t, err)
	require.Len(t, refunds, 1)
	assert.Equal(t, "20.00", refunds[0].Amount.StringFixed(2))
	assert.Equal(t, suborder.RefundStatusPending, refunds[0].Status)

	assert.Equal(t, []aftersales.LogAction{
		aftersales.LogApply, aftersales.LogApprove, aftersales.LogRefundCreate,
	}, h.logActions(t, c.ID))
}

func TestApprove_ReturnRefundAutoAdvances(t *testing.T) {
	h := newHarness(t)
	c := h.apply(t, aftersales.TypeReturnRefund, "1")

	approved, err := h.svc.Approve(context.Background(), c.ID, admin)
	require.NoError(t, err)
	assert.Equal(t, aftersales.StatePendingReturn, approved.State)
	require.NotNil(t, approved.AutoProcessTime)
	assert.Equal(t, t0.Add(aftersales.DefaultSLA().ReturnShipment), *approved.AutoProcessTime)

	returns, err := h.returns.FindByCaseID(context.Background(), c.ID)
	require.NoError(t, err)
	require.Len(t, returns, 1, "退货单只创建一次")
	assert.Equal(t, suborder.ReturnStatusPending, returns[0].Status)
	assert.Equal(t, "售后仓", returns[0].Address.Name)
}

func TestApprove_WithoutAutoAdvanceStaysApproved(t *testing.T) {
	h := newHarness(t, func(cfg *Config) { cfg.AutoAdvance = false })
	c := h.apply(t, aftersales.TypeReturnRefund, "1")

	approved, err := h.svc.Approve(context.Background(), c.ID, admin)
	require.NoError(t, err)
	assert.Equal(t, aftersales.StateApproved, approved.State)

	advanced, err := h.svc.Advance(context.Background(), c.ID, aftersales.ActionWaitReturn, admin)
	require.NoError(t, err)
	assert.Equal(t, aftersales.StatePendingReturn, advanced.State)

	returns, err := h.returns.FindByCaseID(context.Background(), c.ID)
	require.NoError(t, err)
	assert.Len(t, returns, 1)
}

func TestAdvance_RejectsUnsupportedAction(t *testing.T) {
	h := newHarness(t)
	c := h.apply(t, aftersales.TypeRefundOnly, "1")

	_, err := h.svc.Advance(context.Background(), c.ID, aftersales.ActionApprove, admin)
	assert.True(t, apperrors.IsValidation(err))
}

func TestApprove_ExchangeCreatesExchangeOrder(t *testing.T) {
	h := newHarness(t)
	c := h.apply(t, aftersales.TypeExchange, "1")

	approved, err := h.svc.Approve(context.Background(), c.ID, admin)
	require.NoError(t, err)
	assert.Equal(t, aftersales.StatePendingExchange, approved.State)

	detail, err := h.svc.Get(context.Background(), c.ID, buyer)
	require.NoError(t, err)
	require.Len(t, detail.ExchangeOrders, 1)
	e := detail.ExchangeOrders[0]
	assert.Equal(t, uint(112), e.ExchangeSkuID)
	assert.Equal(t, "5.00", e.PriceDifference().StringFixed(2))
}

func TestApprove_RequiresAdmin(t *testing.T) {
	h := newHarness(t)
	c := h.apply(t, aftersales.TypeRefundOnly, "1")

	_, err := h.svc.Approve(context.Background(), c.ID, buyer)
	assert.ErrorIs(t, err, apperrors.ErrForbidden)
	assert.Equal(t, aftersales.StatePendingApproval, h.reload(t, c.ID).State)
}

func TestReject_ThenModifyUntilLimit(t *testing.T) {
	h := newHarness(t, func(cfg *Config) { cfg.MaxModifyCount = 2 })
	c := h.apply(t, aftersales.TypeRefundOnly, "2")
	desc := "补充说明"

	for i := 0; i < 2; i++ {
		_, err := h.svc.Reject(context.Background(), c.ID, "凭证不清晰", admin)
		require.NoError(t, err)

		modified, err := h.svc.Modify(context.Background(), c.ID, ModifyRequest{
			Fields: aftersales.Modification{Description: &desc},
			Reason: "补充凭证",
		}, buyer)
		require.NoError(t, err)
		assert.Equal(t, aftersales.StatePendingApproval, modified.State)
		assert.Equal(t, i+1, modified.ModificationCount)
		assert.Empty(t, modified.RejectReason)
	}

	_, err := h.svc.Reject(context.Background(), c.ID, "仍然不清晰", admin)
	require.NoError(t, err)
	_, err = h.svc.Modify(context.Background(), c.ID, ModifyRequest{
		Fields: aftersales.Modification{Description: &desc},
	}, buyer)
	assert.ErrorIs(t, err, aftersales.ErrModifyLimitReached)

	detail, err := h.svc.Get(context.Background(), c.ID, buyer)
	require.NoError(t, err)
	assert.NotContains(t, detail.AvailableActions, aftersales.ActionModify)
}

func TestReject_RequiresReason(t *testing.T) {
	h := newHarness(t)
	c := h.apply(t, aftersales.TypeRefundOnly, "1")

	_, err := h.svc.Reject(context.Background(), c.ID, "  ", admin)
	assert.ErrorIs(t, err, aftersales.ErrReasonRequired)
}

func TestModify_QuantityRecheckedAgainstOtherClaims(t *testing.T) {
	h := newHarness(t)
	c := h.apply(t, aftersales.TypeRefundOnly, "1")
	h.apply(t, aftersales.TypeRefundOnly, "2")

	_, err := h.svc.Reject(context.Background(), c.ID, "数量不对", admin)
	require.NoError(t, err)

	qty := 2
	_, err = h.svc.Modify(context.Background(), c.ID, ModifyRequest{
		Fields: aftersales.Modification{Quantity: &qty},
	}, buyer)
	assert.ErrorIs(t, err, aftersales.ErrQuantityExceeded)
	assert.Equal(t, aftersales.StateRejected, h.reload(t, c.ID).State)
}

func TestModify_ResubmitRechecksQuantityTakenWhileRejected(t *testing.T) {
	h := newHarness(t)
	first := h.apply(t, aftersales.TypeRefundOnly, "3")
	_, err := h.svc.Reject(context.Background(), first.ID, "凭证不清晰", admin)
	require.NoError(t, err)

	// 拒绝后数量释放,被新申请占满
	h.apply(t, aftersales.TypeRefundOnly, "3")

	desc := "补充说明"
	_, err = h.svc.Modify(context.Background(), first.ID, ModifyRequest{
		Fields: aftersales.Modification{Description: &desc},
	}, buyer)
	assert.ErrorIs(t, err, aftersales.ErrQuantityExceeded)
	assert.Equal(t, aftersales.StateRejected, h.reload(t, first.ID).State)

	claims, err := h.cases.SumActiveClaims(context.Background(), []uint{101})
	require.NoError(t, err)
	total := 0
	for _, cl := range claims[101] {
		total += cl.Quantity
	}
	assert.Equal(t, 3, total)
}

func TestModify_ResubmitWithinRemainingQuantity(t *testing.T) {
	h := newHarness(t)
	first := h.apply(t, aftersales.TypeRefundOnly, "2")
	_, err := h.svc.Reject(context.Background(), first.ID, "数量不对", admin)
	require.NoError(t, err)
	h.apply(t, aftersales.TypeRefundOnly, "2")

	qty := 1
	modified, err := h.svc.Modify(context.Background(), first.ID, ModifyRequest{
		Fields: aftersales.Modification{Quantity: &qty},
	}, buyer)
	require.NoError(t, err)
	assert.Equal(t, aftersales.StatePendingApproval, modified.State)
	assert.Equal(t, 1, modified.Quantity)
}

func TestModify_OtherBuyerSeesNotFound(t *testing.T) {
	h := newHarness(t)
	c := h.apply(t, aftersales.TypeRefundOnly, "1")
	_, err := h.svc.Reject(context.Background(), c.ID, "凭证不清晰", admin)
	require.NoError(t, err)

	desc := "x"
	_, err = h.svc.Modify(context.Background(), c.ID, ModifyRequest{
		Fields: aftersales.Modification{Description: &desc},
	}, stranger)
	assert.ErrorIs(t, err, aftersales.ErrCaseNotFound)
}

func TestCancel_OnlyBeforeApproval(t *testing.T) {
	h := newHarness(t)
	c := h.apply(t, aftersales.TypeRefundOnly, "1")
	_, err := h.svc.Approve(context.Background(), c.ID, admin)
	require.NoError(t, err)

	_, err = h.svc.Cancel(context.Background(), c.ID, buyer)
	assert.ErrorIs(t, err, aftersales.ErrInvalidTransition)
}

func TestModifyRefundAmount_SyncsPendingRefundOrder(t *testing.T) {
	h := newHarness(t)
	c := h.apply(t, aftersales.TypeRefundOnly, "2")
	_, err := h.svc.Approve(context.Background(), c.ID, admin)
	require.NoError(t, err)

	updated, err := h.svc.ModifyRefundAmount(context.Background(), c.ID, dec("15.50"), "协商部分退款", admin)
	require.NoError(t, err)
	assert.Equal(t, "15.50", updated.ActualRefundAmount.StringFixed(2))
	assert.Equal(t, "20.00", updated.OriginalRefundAmount.StringFixed(2))
	assert.True(t, updated.RefundAmountModified)

	refunds, err := h.refunds.FindByCaseID(context.Background(), c.ID)
	require.NoError(t, err)
	require.Len(t, refunds, 1)
	assert.Equal(t, "15.50", refunds[0].Amount.StringFixed(2))

	_, err = h.svc.ModifyRefundAmount(context.Background(), c.ID, dec("25.00"), "超额", admin)
	assert.ErrorIs(t, err, aftersales.ErrInvalidRefundAmount)
}

func TestModifyRefundAmount_RejectedAfterSettlement(t *testing.T) {
	h := newHarness(t)
	c := h.apply(t, aftersales.TypeRefundOnly, "1")
	_, err := h.svc.Approve(context.Background(), c.ID, admin)
	require.NoError(t, err)
	refunds, err := h.refunds.FindByCaseID(context.Background(), c.ID)
	require.NoError(t, err)
	_, err = h.svc.ExecuteRefund(context.Background(), refunds[0].ID, admin)
	require.NoError(t, err)

	_, err = h.svc.ModifyRefundAmount(context.Background(), c.ID, dec("1.00"), "补差", admin)
	assert.ErrorIs(t, err, aftersales.ErrRefundSettled)
}

func TestList_BuyerOnlySeesOwnCases(t *testing.T) {
	h := newHarness(t)
	h.apply(t, aftersales.TypeRefundOnly, "1")
	h.apply(t, aftersales.TypeRefundOnly, "1")

	cases, total, err := h.svc.List(context.Background(), aftersales.ListQuery{UserID: 99}, buyer)
	require.NoError(t, err)
	assert.Equal(t, int64(2), total)
	assert.Len(t, cases, 2)

	cases, total, err = h.svc.List(context.Background(), aftersales.ListQuery{}, stranger)
	require.NoError(t, err)
	assert.Zero(t, total)
	assert.Empty(t, cases)
}

func TestCleanupLogs_UsesRetention(t *testing.T) {
	h := newHarness(t)
	c := h.apply(t, aftersales.TypeRefundOnly, "1")

	h.clock.Advance(DefaultConfig().LogRetention + time.Hour)
	n, err := h.svc.CleanupLogs(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
	assert.Empty(t, h.logActions(t, c.ID))
}
