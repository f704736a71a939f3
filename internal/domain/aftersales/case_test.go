package aftersales

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/xiebiao/aftersales/pkg/errors"
)

var t0 = time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)

func newTestCase(t *testing.T, typ CaseType) *Case {
	t.Helper()
	line := threeBooks()[101]
	c, err := NewCase(NewCaseParams{
		OrderID:        "ORD1",
		UserID:         7,
		OrderProductID: line.OrderProductID,
		Type:           typ,
		Reason:         ReasonQualityIssue,
		Quantity:       2,
		OriginalPrice:  line.OriginalPrice,
		PaidPrice:      line.UnitPaidPrice,
		ProofImages:    []string{"https://img.example.com/a.jpg"},
		Snapshot:       SnapshotFromOrderLine(line, t0),
	}, t0, DefaultSLA())
	require.NoError(t, err)
	return c
}

func TestNewCase_Defaults(t *testing.T) {
	c := newTestCase(t, TypeRefundOnly)

	assert.Equal(t, StatePendingApproval, c.State)
	assert.Equal(t, StageApply, c.Stage())
	assert.Equal(t, SourceApp, c.Source)
	assert.Regexp(t, `^AS20240501\d{6}$`, c.AftersalesNo)
	assert.True(t, c.OriginalRefundAmount.Equal(dec("20")))
	assert.True(t, c.ActualRefundAmount.Equal(dec("20")))
	require.NotNil(t, c.AutoProcessTime)
	assert.Equal(t, t0.Add(48*time.Hour), *c.AutoProcessTime)
}

func TestNewCase_Validation(t *testing.T) {
	base := NewCaseParams{Type: TypeRefundOnly, Reason: ReasonOther, Quantity: 1, PaidPrice: dec("10")}

	tests := []struct {
		name   string
		mutate func(p *NewCaseParams)
		want   error
	}{
		{"类型", func(p *NewCaseParams) { p.Type = "BOGUS" }, ErrInvalidType},
		{"原因", func(p *NewCaseParams) { p.Reason = "" }, ErrInvalidReason},
		{"数量", func(p *NewCaseParams) { p.Quantity = 0 }, ErrInvalidQuantity},
		{"图片过多", func(p *NewCaseParams) { p.ProofImages = make([]string, 10) }, ErrTooManyProofImages},
		{"图片地址", func(p *NewCaseParams) { p.ProofImages = []string{"ftp://x/y.png"} }, ErrInvalidProofImage},
		{"描述过长", func(p *NewCaseParams) {
			p.Description = string(make([]rune, 501))
		}, ErrDescriptionTooLong},
		{"退款超上限", func(p *NewCaseParams) {
			amount := dec("10.01")
			p.RefundAmount = &amount
		}, ErrInvalidRefundAmount},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := base
			tt.mutate(&p)
			_, err := NewCase(p, t0, DefaultSLA())
			assert.ErrorIs(t, err, tt.want)
			assert.True(t, apperrors.IsValidation(err))
		})
	}
}

func TestCase_ApproveSetsAuditTimeAndClearsDeadline(t *testing.T) {
	c := newTestCase(t, TypeReturnRefund)
	now := t0.Add(time.Hour)

	require.NoError(t, c.Approve(now))
	assert.Equal(t, StateApproved, c.State)
	assert.Nil(t, c.AutoProcessTime)
	require.NotNil(t, c.AuditTime)
	assert.Equal(t, now, *c.AuditTime)

	require.NoError(t, c.Fire(ActionWaitReturn, now, DefaultSLA()))
	assert.Equal(t, StatePendingReturn, c.State)
	require.NotNil(t, c.AutoProcessTime)
	assert.Equal(t, now.Add(7*24*time.Hour), *c.AutoProcessTime)
}

func TestCase_InvalidTransitionDoesNotMutate(t *testing.T) {
	c := newTestCase(t, TypeRefundOnly)
	require.NoError(t, c.Approve(t0))
	before := *c

	err := c.Approve(t0.Add(time.Minute))
	assert.ErrorIs(t, err, ErrInvalidTransition)
	assert.True(t, apperrors.IsStateConflict(err))
	assert.Equal(t, before.State, c.State)
	assert.Equal(t, before.UpdatedAt, c.UpdatedAt)

	assert.ErrorIs(t, c.Cancel(t0), ErrInvalidTransition, "审核后不能撤销")
}

func TestCase_RejectRequiresReason(t *testing.T) {
	c := newTestCase(t, TypeRefundOnly)
	assert.ErrorIs(t, c.Reject("  ", t0), ErrReasonRequired)
	assert.Equal(t, StatePendingApproval, c.State)

	require.NoError(t, c.Reject("凭证不清晰", t0))
	assert.Equal(t, StateRejected, c.State)
	assert.Equal(t, "凭证不清晰", c.RejectReason)
}

func TestCase_ModificationBound(t *testing.T) {
	const limit = 2
	c := newTestCase(t, TypeRefundOnly)
	desc := "补充说明"

	for i := 1; i <= limit; i++ {
		require.NoError(t, c.Reject("请补充凭证", t0))
		changed, err := c.Modify(Modification{Description: &desc}, limit, t0.Add(time.Hour), DefaultSLA())
		require.NoError(t, err)
		assert.Equal(t, i, c.ModificationCount)
		assert.Equal(t, StatePendingApproval, c.State)
		assert.Empty(t, c.RejectReason)
		assert.Nil(t, c.AuditTime)
		if i == 1 {
			assert.Equal(t, []string{"description"}, changed)
		} else {
			assert.Empty(t, changed, "内容相同不算修改")
		}
	}

	require.NoError(t, c.Reject("仍不符合", t0))
	_, err := c.Modify(Modification{Description: &desc}, limit, t0, DefaultSLA())
	assert.ErrorIs(t, err, ErrModifyLimitReached)
	assert.True(t, apperrors.IsStateConflict(err))
	assert.Equal(t, StateRejected, c.State)
	assert.Equal(t, limit, c.ModificationCount)
	assert.Empty(t, c.AvailableActions(limit), "次数用完后没有modify")
}

func TestCase_ModifyOnlyWhenRejected(t *testing.T) {
	c := newTestCase(t, TypeRefundOnly)
	qty := 1
	_, err := c.Modify(Modification{Quantity: &qty}, 3, t0, DefaultSLA())
	assert.ErrorIs(t, err, ErrInvalidTransition)
	assert.Equal(t, 0, c.ModificationCount)
}

func TestCase_ModifyQuantityResetsAmounts(t *testing.T) {
	c := newTestCase(t, TypeRefundOnly)
	require.NoError(t, c.ModifyRefundAmount(dec("15"), "协商", t0))
	require.NoError(t, c.Reject("数量不对", t0))

	qty := 1
	changed, err := c.Modify(Modification{Quantity: &qty}, 3, t0, DefaultSLA())
	require.NoError(t, err)
	assert.Equal(t, []string{"quantity"}, changed)
	assert.True(t, c.OriginalRefundAmount.Equal(dec("10")))
	assert.True(t, c.ActualRefundAmount.Equal(dec("10")))
	assert.False(t, c.RefundAmountModified)
}

func TestCase_ModifyValidatesBeforeMutating(t *testing.T) {
	c := newTestCase(t, TypeRefundOnly)
	require.NoError(t, c.Reject("x", t0))
	bad := Reason("NOPE")
	desc := "新描述"

	_, err := c.Modify(Modification{Reason: &bad, Description: &desc}, 3, t0, DefaultSLA())
	assert.ErrorIs(t, err, ErrInvalidReason)
	assert.Equal(t, StateRejected, c.State)
	assert.Empty(t, c.Description)

	_, err = c.Modify(Modification{}, 3, t0, DefaultSLA())
	assert.ErrorIs(t, err, ErrNothingToModify)
}

func TestCase_ModifyRefundAmount(t *testing.T) {
	c := newTestCase(t, TypeRefundOnly)

	assert.ErrorIs(t, c.ModifyRefundAmount(dec("20.01"), "超额", t0), ErrInvalidRefundAmount)
	assert.ErrorIs(t, c.ModifyRefundAmount(dec("-1"), "负数", t0), ErrInvalidRefundAmount)
	assert.ErrorIs(t, c.ModifyRefundAmount(dec("5"), "", t0), ErrReasonRequired)
	assert.False(t, c.RefundAmountModified)
	assert.True(t, c.ActualRefundAmount.Equal(dec("20")))

	require.NoError(t, c.ModifyRefundAmount(dec("0"), "全额补偿优惠券", t0))
	assert.True(t, c.ActualRefundAmount.IsZero())
	assert.True(t, c.RefundAmountModified)
	assert.Equal(t, "全额补偿优惠券", c.ModifyReason)

	require.NoError(t, c.Approve(t0))
	require.NoError(t, c.Complete(t0))
	assert.ErrorIs(t, c.ModifyRefundAmount(dec("1"), "补差", t0), ErrRefundSettled)
}

func TestCase_ApplyTimeout(t *testing.T) {
	due := t0.Add(49 * time.Hour)

	t.Run("待审核超时自动通过", func(t *testing.T) {
		c := newTestCase(t, TypeRefundOnly)
		assert.False(t, c.IsTimeoutDue(t0.Add(time.Hour)))
		_, err := c.ApplyTimeout(t0.Add(time.Hour))
		assert.ErrorIs(t, err, ErrNotTimeoutEligible)

		from, err := c.ApplyTimeout(due)
		require.NoError(t, err)
		assert.Equal(t, StatePendingApproval, from)
		assert.Equal(t, StateApproved, c.State)
		require.NotNil(t, c.AuditTime)
		assert.Equal(t, due, *c.AuditTime)
		assert.Nil(t, c.AutoProcessTime)
	})

	t.Run("待寄回超时取消", func(t *testing.T) {
		c := newTestCase(t, TypeReturnRefund)
		require.NoError(t, c.Approve(t0))
		require.NoError(t, c.Fire(ActionWaitReturn, t0, DefaultSLA()))

		later := t0.Add(8 * 24 * time.Hour)
		_, err := c.ApplyTimeout(later)
		require.NoError(t, err)
		assert.Equal(t, StateCancelled, c.State)
		require.NotNil(t, c.CompletedTime)
		assert.Nil(t, c.AutoProcessTime)
	})

	t.Run("待收货超时进入待退款", func(t *testing.T) {
		c := newTestCase(t, TypeReturnRefund)
		require.NoError(t, c.Approve(t0))
		require.NoError(t, c.Fire(ActionWaitReturn, t0, DefaultSLA()))
		require.NoError(t, c.Fire(ActionShipBack, t0, DefaultSLA()))

		_, err := c.ApplyTimeout(t0.Add(11 * 24 * time.Hour))
		require.NoError(t, err)
		assert.Equal(t, StatePendingRefund, c.State)
		assert.Nil(t, c.AutoProcessTime)
		assert.Nil(t, c.CompletedTime)
	})

	t.Run("其他状态不处理", func(t *testing.T) {
		c := newTestCase(t, TypeRefundOnly)
		require.NoError(t, c.Approve(t0))
		past := t0.Add(-time.Hour)
		c.AutoProcessTime = &past
		_, err := c.ApplyTimeout(due)
		assert.ErrorIs(t, err, ErrNotTimeoutEligible)
		assert.Equal(t, StateApproved, c.State)
	})
}

func TestCase_CloneIsIndependent(t *testing.T) {
	c := newTestCase(t, TypeRefundOnly)
	cp := c.Clone()
	_, err := cp.ApplyTimeout(t0.Add(49 * time.Hour))
	require.NoError(t, err)
	cp.ProofImages[0] = "changed"

	assert.Equal(t, StatePendingApproval, c.State)
	require.NotNil(t, c.AutoProcessTime)
	assert.Equal(t, "https://img.example.com/a.jpg", c.ProofImages[0])
}

func TestCase_SnapshotWriteOnce(t *testing.T) {
	c := newTestCase(t, TypeRefundOnly)
	first := c.Snapshot()
	require.False(t, first.IsZero())

	other := SnapshotFromOrderLine(threeBooks()[103], t0.Add(time.Hour))
	assert.ErrorIs(t, c.FreezeSnapshot(other), ErrSnapshotFrozen)
	assert.Equal(t, first.Items(), c.Snapshot().Items())

	items := c.Snapshot().Items()
	items[0].Name = "篡改"
	assert.NotEqual(t, "篡改", c.Snapshot().Items()[0].Name)
}

func TestCase_OverrideState(t *testing.T) {
	c := newTestCase(t, TypeRefundOnly)

	changed, err := c.OverrideState(StatePendingApproval, t0, DefaultSLA())
	require.NoError(t, err)
	assert.False(t, changed)

	changed, err = c.OverrideState(StateProcessing, t0.Add(time.Hour), DefaultSLA())
	require.NoError(t, err)
	assert.True(t, changed)
	assert.Equal(t, StateProcessing, c.State)
	assert.Nil(t, c.AutoProcessTime)

	_, err = c.OverrideState("UNKNOWN", t0, DefaultSLA())
	assert.ErrorIs(t, err, ErrInvalidTransition)
}

func TestCase_SnapshotJSONRoundTrip(t *testing.T) {
	c := newTestCase(t, TypeRefundOnly)
	data, err := c.Snapshot().MarshalJSON()
	require.NoError(t, err)

	var restored ProductSnapshot
	require.NoError(t, restored.UnmarshalJSON(data))
	assert.Equal(t, c.Snapshot().CapturedAt(), restored.CapturedAt())
	require.Len(t, restored.Items(), 1)
	assert.Equal(t, uint(101), restored.Items()[0].OrderProductID)
}
