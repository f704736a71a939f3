package aftersales

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xiebiao/aftersales/internal/domain/aftersales"
	"github.com/xiebiao/aftersales/internal/domain/suborder"
)

func pendingReturn(t *testing.T, h *harness) (*aftersales.Case, *suborder.ReturnOrder) {
	t.Helper()
	c := h.apply(t, aftersales.TypeReturnRefund, "1")
	_, err := h.svc.Approve(context.Background(), c.ID, admin)
	require.NoError(t, err)
	returns, err := h.returns.FindByCaseID(context.Background(), c.ID)
	require.NoError(t, err)
	require.Len(t, returns, 1)
	return c, returns[0]
}

func TestReturnFlow_ShipTrackReceiveRefund(t *testing.T) {
	h := newHarness(t)
	c, ro := pendingReturn(t, h)

	shipped, err := h.svc.ShipReturn(context.Background(), ro.ID, "sf", " SF1234567890 ", buyer)
	require.NoError(t, err)
	assert.Equal(t, aftersales.StatePendingReceive, shipped.Case.State)
	assert.Equal(t, "SF", shipped.ReturnOrder.CarrierCode)
	assert.Equal(t, "SF1234567890", shipped.Case.LogisticsNo)
	require.NotNil(t, shipped.Case.AutoProcessTime)

	// 揽收、运输中:只更新退货单
	res, err := h.svc.UpdateReturnTracking(context.Background(), "SF", "SF1234567890", "in_transit", aftersales.SystemActor())
	require.NoError(t, err)
	assert.True(t, res.Changed)
	assert.Equal(t, suborder.ReturnStatusInTransit, res.ReturnOrder.Status)

	// 重复推送不写库
	res, err = h.svc.UpdateReturnTracking(context.Background(), "SF", "SF1234567890", "in_transit", aftersales.SystemActor())
	require.NoError(t, err)
	assert.False(t, res.Changed)

	// 签收:售后单进入待退款并创建退款单
	res, err = h.svc.UpdateReturnTracking(context.Background(), "SF", "SF1234567890", "delivered", aftersales.SystemActor())
	require.NoError(t, err)
	assert.True(t, res.Changed)
	assert.Equal(t, aftersales.StatePendingRefund, res.Case.State)

	refunds, err := h.refunds.FindByCaseID(context.Background(), c.ID)
	require.NoError(t, err)
	require.Len(t, refunds, 1)
	assert.Equal(t, "10.00", refunds[0].Amount.StringFixed(2))

	_, err = h.svc.ExecuteRefund(context.Background(), refunds[0].ID, admin)
	require.NoError(t, err)
	assert.Equal(t, aftersales.StateCompleted, h.reload(t, c.ID).State)
}

func TestReturnFlow_ShipRequiresOwner(t *testing.T) {
	h := newHarness(t)
	_, ro := pendingReturn(t, h)

	_, err := h.svc.ShipReturn(context.Background(), ro.ID, "SF", "SF1", stranger)
	assert.ErrorIs(t, err, aftersales.ErrCaseNotFound)
}

func TestReturnFlow_InspectionFailureClosesCase(t *testing.T) {
	h := newHarness(t)
	c, ro := pendingReturn(t, h)
	_, err := h.svc.ShipReturn(context.Background(), ro.ID, "YTO", "YT001", buyer)
	require.NoError(t, err)
	_, err = h.svc.ConfirmReturnReceived(context.Background(), ro.ID, admin)
	require.NoError(t, err)
	assert.Equal(t, aftersales.StatePendingRefund, h.reload(t, c.ID).State)

	res, err := h.svc.InspectReturn(context.Background(), ro.ID, false, "商品已使用", admin)
	require.NoError(t, err)
	assert.Equal(t, suborder.ReturnStatusRejected, res.ReturnOrder.Status)
	assert.Equal(t, aftersales.StateClosed, res.Case.State)
	assert.Equal(t, "商品已使用", res.Case.ServiceNote)
}

func TestExchangeFlow_HappyPath(t *testing.T) {
	h := newHarness(t)
	c := h.apply(t, aftersales.TypeExchange, "1")
	_, err := h.svc.Approve(context.Background(), c.ID, admin)
	require.NoError(t, err)
	detail, err := h.svc.Get(context.Background(), c.ID, admin)
	require.NoError(t, err)
	require.Len(t, detail.ExchangeOrders, 1)
	id := detail.ExchangeOrders[0].ID

	_, err = h.svc.ApproveExchange(context.Background(), id, admin)
	require.NoError(t, err)
	res, err := h.svc.ShipExchangeReturn(context.Background(), id, "SF", "SF100", buyer)
	require.NoError(t, err)
	assert.Equal(t, "SF100", res.Case.LogisticsNo)
	_, err = h.svc.ReceiveExchangeReturn(context.Background(), id, admin)
	require.NoError(t, err)
	_, err = h.svc.ShipExchange(context.Background(), id, "SF", "SF200", admin)
	require.NoError(t, err)

	res, err = h.svc.CompleteExchange(context.Background(), id, buyer)
	require.NoError(t, err)
	assert.Equal(t, suborder.ExchangeStatusCompleted, res.ExchangeOrder.Status)
	assert.Equal(t, aftersales.StateCompleted, res.Case.State)

	actions := h.logActions(t, c.ID)
	assert.Contains(t, actions, aftersales.LogExchangeCreate)
	assert.Contains(t, actions, aftersales.LogExchangeUpdate)
	assert.Equal(t, aftersales.LogComplete, actions[len(actions)-1])
}

func TestExchangeFlow_RejectClosesCase(t *testing.T) {
	h := newHarness(t)
	c := h.apply(t, aftersales.TypeExchange, "1")
	_, err := h.svc.Approve(context.Background(), c.ID, admin)
	require.NoError(t, err)
	detail, err := h.svc.Get(context.Background(), c.ID, admin)
	require.NoError(t, err)

	res, err := h.svc.RejectExchange(context.Background(), detail.ExchangeOrders[0].ID, "无库存", admin)
	require.NoError(t, err)
	assert.Equal(t, suborder.ExchangeStatusRejected, res.ExchangeOrder.Status)
	assert.Equal(t, aftersales.StateClosed, res.Case.State)
}

func TestExchangeFlow_BuyerCannotApprove(t *testing.T) {
	h := newHarness(t)
	c := h.apply(t, aftersales.TypeExchange, "1")
	_, err := h.svc.Approve(context.Background(), c.ID, admin)
	require.NoError(t, err)
	detail, err := h.svc.Get(context.Background(), c.ID, buyer)
	require.NoError(t, err)

	_, err = h.svc.ApproveExchange(context.Background(), detail.ExchangeOrders[0].ID, buyer)
	assert.Error(t, err)
}
