package suborder

import (
	"regexp"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	t0        = time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	warehouse = Address{Name: "售后仓", Phone: "021-55550000", Address: "上海市青浦区华新镇1号"}
)

func TestGenerateNo_Format(t *testing.T) {
	pattern := regexp.MustCompile(`^RF20240501\d{6}$`)
	for i := 0; i < 20; i++ {
		assert.Regexp(t, pattern, GenerateNo(PrefixRefund, t0))
	}
}

// ========== 退款单 ==========

func TestRefundOrder_HappyPath(t *testing.T) {
	r, err := NewRefundOrder(1, "ORD1", decimal.RequireFromString("20.00"), t0)
	require.NoError(t, err)
	assert.Regexp(t, `^RF\d{14}$`, r.RefundNo)
	no := r.RefundNo

	require.NoError(t, r.MarkAsProcessing(t0))
	require.NoError(t, r.MarkAsSuccess("TX001", t0.Add(time.Second)))

	assert.Equal(t, RefundStatusSuccess, r.Status)
	assert.Equal(t, "TX001", r.TransactionNo)
	assert.True(t, r.IsSettled())
	assert.Equal(t, no, r.RefundNo, "单号生成后不可变")
}

func TestRefundOrder_RetryBound(t *testing.T) {
	r, err := NewRefundOrder(1, "ORD1", decimal.RequireFromString("20.00"), t0)
	require.NoError(t, err)

	for i := 1; i <= 2; i++ {
		require.NoError(t, r.MarkAsProcessing(t0))
		require.NoError(t, r.MarkAsFailed("网关超时", t0))
		assert.Equal(t, i, r.RetryCount)
	}
	assert.True(t, r.CanRetry(), "失败2次仍可重试")

	require.NoError(t, r.MarkAsProcessing(t0))
	require.NoError(t, r.MarkAsFailed("网关超时", t0))
	assert.Equal(t, 3, r.RetryCount)
	assert.False(t, r.CanRetry(), "失败3次不可再重试")

	assert.ErrorIs(t, r.MarkAsProcessing(t0), ErrRetryExhausted)
	assert.Equal(t, RefundStatusFailed, r.Status)
}

func TestRefundOrder_InvalidTransitions(t *testing.T) {
	r, _ := NewRefundOrder(1, "ORD1", decimal.NewFromInt(1), t0)

	assert.ErrorIs(t, r.MarkAsSuccess("TX", t0), ErrInvalidTransition, "未提交不能成功")
	assert.ErrorIs(t, r.MarkAsFailed("", t0), ErrReasonRequired)

	require.NoError(t, r.MarkAsProcessing(t0))
	assert.ErrorIs(t, r.MarkAsProcessing(t0), ErrInvalidTransition, "处理中不能重复提交")
	assert.ErrorIs(t, r.UpdateAmount(decimal.NewFromInt(2), t0), ErrInvalidTransition)

	require.NoError(t, r.MarkAsSuccess("TX", t0))
	assert.ErrorIs(t, r.MarkAsFailed("late", t0), ErrInvalidTransition)
}

func TestRefundOrder_RecordedTransactionBlocksFailure(t *testing.T) {
	r, _ := NewRefundOrder(1, "ORD1", decimal.NewFromInt(5), t0)
	assert.ErrorIs(t, r.RecordTransaction("TX9", t0), ErrInvalidTransition, "未提交网关不能记流水号")

	require.NoError(t, r.MarkAsProcessing(t0))
	assert.ErrorIs(t, r.RecordTransaction(" ", t0), ErrInvalidTransition)
	require.NoError(t, r.RecordTransaction("TX9", t0))
	assert.True(t, r.AwaitingSettlement())

	assert.ErrorIs(t, r.MarkAsFailed("结算失败", t0), ErrInvalidTransition, "钱已退出不能标记失败")
	assert.False(t, r.CanRetry())
	assert.Zero(t, r.RetryCount)

	require.NoError(t, r.MarkAsSuccess("TX9", t0))
	assert.False(t, r.AwaitingSettlement())
}

func TestNewRefundOrder_NegativeAmount(t *testing.T) {
	_, err := NewRefundOrder(1, "ORD1", decimal.NewFromInt(-1), t0)
	assert.ErrorIs(t, err, ErrInvalidAmount)
}

// ========== 退货单 ==========

func TestReturnOrder_TrackingTokens(t *testing.T) {
	tests := []struct {
		name    string
		from    ReturnStatus
		token   string
		want    ReturnStatus
		changed bool
	}{
		{"揽收推进到运输中", ReturnStatusShipped, "picked_up", ReturnStatusInTransit, true},
		{"运输中", ReturnStatusShipped, "in_transit", ReturnStatusInTransit, true},
		{"重复运输中推送", ReturnStatusInTransit, "in_transit", ReturnStatusInTransit, false},
		{"运输中签收", ReturnStatusInTransit, "delivered", ReturnStatusReceived, true},
		{"寄出后直接签收", ReturnStatusShipped, "DELIVERED", ReturnStatusReceived, true},
		{"未寄出的揽收推送忽略", ReturnStatusPending, "picked_up", ReturnStatusPending, false},
		{"签收后的乱序推送忽略", ReturnStatusReceived, "in_transit", ReturnStatusReceived, false},
		{"未知状态忽略", ReturnStatusShipped, "customs_hold", ReturnStatusShipped, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := &ReturnOrder{Status: tt.from}
			changed := r.ApplyTrackingStatus(tt.token, t0)
			assert.Equal(t, tt.changed, changed)
			assert.Equal(t, tt.want, r.Status)
		})
	}
}

func TestReturnOrder_ShipReceiveInspect(t *testing.T) {
	r, err := NewReturnOrder(9, 1, warehouse, t0)
	require.NoError(t, err)
	assert.True(t, r.CanShip())

	assert.ErrorIs(t, r.MarkAsShipped("sf", " ", t0), ErrTrackingRequired)
	require.NoError(t, r.MarkAsShipped(" sf ", "SF1234567890", t0))
	assert.Equal(t, "SF", r.CarrierCode)
	assert.False(t, r.CanShip())
	assert.ErrorIs(t, r.MarkAsShipped("SF", "SF1", t0), ErrInvalidTransition)

	url, ok := r.TrackingURL()
	assert.True(t, ok)
	assert.Contains(t, url, "SF1234567890")

	assert.ErrorIs(t, r.Inspect(true, "", t0), ErrInvalidTransition, "未签收不能验货")
	require.NoError(t, r.MarkAsReceived(t0))
	assert.ErrorIs(t, r.Inspect(false, "", t0), ErrReasonRequired)
	require.NoError(t, r.Inspect(false, "商品已使用,影响二次销售", t0))
	assert.Equal(t, ReturnStatusRejected, r.Status)
}

func TestReturnOrder_CancelOnlyBeforeShipping(t *testing.T) {
	pending, err := NewReturnOrder(1, 1, warehouse, t0)
	require.NoError(t, err)
	require.NoError(t, pending.Cancel(t0))
	assert.Equal(t, ReturnStatusCancelled, pending.Status)
	assert.False(t, pending.CanShip())

	shipped, err := NewReturnOrder(2, 1, warehouse, t0)
	require.NoError(t, err)
	require.NoError(t, shipped.MarkAsShipped("SF", "SF100", t0))
	assert.ErrorIs(t, shipped.Cancel(t0), ErrInvalidTransition)
	assert.Equal(t, ReturnStatusShipped, shipped.Status)
}

func TestNewReturnOrder_RequiresAddress(t *testing.T) {
	_, err := NewReturnOrder(1, 1, Address{Name: "仓库"}, t0)
	assert.ErrorIs(t, err, ErrInvalidAddress)
}

// ========== 换货单 ==========

func newExchange(t *testing.T, original, exchange string) *ExchangeOrder {
	t.Helper()
	e, err := NewExchangeOrder(NewExchangeOrderParams{
		CaseID:            3,
		OriginalSkuID:     100,
		ExchangeSkuID:     101,
		Quantity:          2,
		OriginalItemPrice: decimal.RequireFromString(original),
		ExchangeItemPrice: decimal.RequireFromString(exchange),
		Address:           Address{Name: "张三", Phone: "13800000000", Address: "北京市朝阳区"},
	}, t0)
	require.NoError(t, err)
	return e
}

func TestExchangeOrder_FullFlow(t *testing.T) {
	e := newExchange(t, "99.00", "99.00")
	assert.True(t, e.NeedsUserAction())

	require.NoError(t, e.Approve(t0))
	assert.True(t, e.NeedsUserAction())

	assert.ErrorIs(t, e.MarkExchangeShipped("SF", "1", t0), ErrInvalidTransition, "不能跳过寄回")
	require.NoError(t, e.MarkReturnShipped("yto", "YT1", t0))
	require.NoError(t, e.MarkReturnReceived(t0))
	assert.True(t, e.NeedsMerchantAction())

	require.NoError(t, e.MarkExchangeShipped("SF", "SF2", t0))
	require.NoError(t, e.Complete(t0))
	assert.True(t, e.IsFinished())
	assert.False(t, e.NeedsUserAction())
	assert.False(t, e.NeedsMerchantAction())
}

func TestExchangeOrder_RejectOnlyFromPending(t *testing.T) {
	e := newExchange(t, "99.00", "99.00")
	assert.ErrorIs(t, e.Reject("", t0), ErrReasonRequired)
	require.NoError(t, e.Approve(t0))
	assert.ErrorIs(t, e.Reject("缺货", t0), ErrInvalidTransition)
}

func TestExchangeOrder_PriceDifference(t *testing.T) {
	more := newExchange(t, "99.00", "109.50")
	assert.Equal(t, "21", more.PriceDifference().String())
	assert.True(t, more.NeedsAdditionalPayment())
	assert.False(t, more.NeedsRefund())

	less := newExchange(t, "99.00", "89.00")
	assert.True(t, less.NeedsRefund())
	assert.False(t, less.NeedsAdditionalPayment())

	same := newExchange(t, "99.00", "99.00")
	assert.False(t, same.NeedsRefund())
	assert.False(t, same.NeedsAdditionalPayment())
}

// ========== 物流链接 ==========

func TestTrackingURL(t *testing.T) {
	for _, code := range []string{"SF", "STO", "YD", "ZTO", "YTO", "EMS", "JD"} {
		url, ok := TrackingURL(code, "123")
		assert.True(t, ok, code)
		assert.Contains(t, url, "123")
	}

	_, ok := TrackingURL("UNKNOWN", "123")
	assert.False(t, ok)

	_, ok = TrackingURL("SF", "")
	assert.False(t, ok)

	assert.True(t, KnownCarrier("jd"))
}
