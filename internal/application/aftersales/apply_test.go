package aftersales

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xiebiao/aftersales/internal/domain/aftersales"
	apperrors "github.com/xiebiao/aftersales/pkg/errors"
)

func TestApply_CreatesCaseWithSnapshotAndLog(t *testing.T) {
	h := newHarness(t)
	c := h.apply(t, aftersales.TypeRefundOnly, "2")

	assert.NotZero(t, c.ID)
	assert.Equal(t, aftersales.StatePendingApproval, c.State)
	assert.Equal(t, uint(7), c.UserID)
	assert.Equal(t, "20.00", c.OriginalRefundAmount.StringFixed(2))
	assert.Equal(t, "20.00", c.ActualRefundAmount.StringFixed(2))
	require.NotNil(t, c.AutoProcessTime)
	assert.Equal(t, t0.Add(48*time.Hour), *c.AutoProcessTime)

	items := c.Snapshot().Items()
	require.Len(t, items, 1)
	assert.Equal(t, "Go语言实战", items[0].Name)

	assert.Equal(t, []aftersales.LogAction{aftersales.LogApply}, h.logActions(t, c.ID))
	assert.Equal(t, []string{"aftersales.case.apply"}, h.events.Keys())
}

func TestApply_PartialSuccess(t *testing.T) {
	h := newHarness(t)
	res, err := h.svc.Apply(context.Background(), ApplyRequest{
		OrderID: "O1001",
		Type:    aftersales.TypeRefundOnly,
		Reason:  aftersales.ReasonDontWant,
		Items: []aftersales.CalcItem{
			{OrderProductID: 101, Quantity: "1"},
			{OrderProductID: 102, Quantity: "1"}, // 赠品
			{OrderProductID: 103, Quantity: "5"}, // 超量
		},
	}, buyer)
	require.NoError(t, err)

	require.Len(t, res.Created, 1)
	assert.Equal(t, uint(101), res.Created[0].OrderProductID)

	require.Len(t, res.Errors, 2)
	assert.Equal(t, 1, res.Errors[0].Index)
	assert.Equal(t, apperrors.ErrCodeInvalidParams, res.Errors[0].Code)
	assert.Equal(t, 2, res.Errors[1].Index)
	assert.Equal(t, apperrors.ErrCodeQuantityExceeded, res.Errors[1].Code)
}

func TestApply_RoundsHalfUp(t *testing.T) {
	h := newHarness(t)
	res, err := h.svc.Apply(context.Background(), ApplyRequest{
		OrderID: "O1001",
		Type:    aftersales.TypeRefundOnly,
		Reason:  aftersales.ReasonDontWant,
		Items:   []aftersales.CalcItem{{OrderProductID: 103, Quantity: "1"}},
	}, buyer)
	require.NoError(t, err)
	require.Len(t, res.Created, 1)
	assert.Equal(t, "3.34", res.Created[0].ActualRefundAmount.StringFixed(2))
}

func TestApply_StructuralErrorsRejectWholeRequest(t *testing.T) {
	h := newHarness(t)

	_, err := h.svc.Apply(context.Background(), ApplyRequest{
		OrderID: "O1001",
		Type:    aftersales.TypeRefundOnly,
		Reason:  aftersales.ReasonDontWant,
	}, buyer)
	assert.True(t, apperrors.IsValidation(err))

	_, err = h.svc.Apply(context.Background(), ApplyRequest{
		OrderID: "O1001",
		Type:    "UNKNOWN",
		Reason:  aftersales.ReasonDontWant,
		Items:   []aftersales.CalcItem{{OrderProductID: 101, Quantity: "1"}},
	}, buyer)
	assert.Error(t, err)
}

func TestApply_NonNumericQuantityIsBlocked(t *testing.T) {
	h := newHarness(t)
	res, err := h.svc.Apply(context.Background(), ApplyRequest{
		OrderID: "O1001",
		Type:    aftersales.TypeRefundOnly,
		Reason:  aftersales.ReasonDontWant,
		Items: []aftersales.CalcItem{
			{OrderProductID: 101, Quantity: "abc"},
			{OrderProductID: 103, Quantity: "1"},
		},
	}, buyer)
	require.NoError(t, err)
	require.Len(t, res.Created, 1)
	assert.Equal(t, uint(103), res.Created[0].OrderProductID)
	require.Len(t, res.Errors, 1)
	assert.Equal(t, 0, res.Errors[0].Index)
}

func TestApply_OtherUsersLineLooksMissing(t *testing.T) {
	h := newHarness(t)
	res, err := h.svc.Apply(context.Background(), ApplyRequest{
		OrderID: "O1001",
		Type:    aftersales.TypeRefundOnly,
		Reason:  aftersales.ReasonDontWant,
		Items:   []aftersales.CalcItem{{OrderProductID: 101, Quantity: "1"}},
	}, stranger)
	require.NoError(t, err)
	assert.Empty(t, res.Created)
	require.Len(t, res.Errors, 1)
	assert.Equal(t, apperrors.ErrCodeOrderLineNotFound, res.Errors[0].Code)
}

func TestApply_ClaimsAccumulate(t *testing.T) {
	h := newHarness(t)
	h.apply(t, aftersales.TypeRefundOnly, "2")

	res, err := h.svc.Apply(context.Background(), ApplyRequest{
		OrderID: "O1001",
		Type:    aftersales.TypeRefundOnly,
		Reason:  aftersales.ReasonDontWant,
		Items:   []aftersales.CalcItem{{OrderProductID: 101, Quantity: "2"}},
	}, buyer)
	require.NoError(t, err)
	assert.Empty(t, res.Created)
	require.Len(t, res.Errors, 1)
	assert.Equal(t, apperrors.ErrCodeQuantityExceeded, res.Errors[0].Code)

	// 剩余1件仍然可以申请
	h.apply(t, aftersales.TypeRefundOnly, "1")
}

func TestApply_CancelledCaseReleasesQuantity(t *testing.T) {
	h := newHarness(t)
	c := h.apply(t, aftersales.TypeRefundOnly, "3")
	_, err := h.svc.Cancel(context.Background(), c.ID, buyer)
	require.NoError(t, err)

	h.apply(t, aftersales.TypeRefundOnly, "3")
}

func TestApply_ConcurrentRequestsNeverOverClaim(t *testing.T) {
	h := newHarness(t)

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		created int
	)
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res, err := h.svc.Apply(context.Background(), ApplyRequest{
				OrderID: "O1001",
				Type:    aftersales.TypeRefundOnly,
				Reason:  aftersales.ReasonDontWant,
				Items:   []aftersales.CalcItem{{OrderProductID: 101, Quantity: "2"}},
			}, buyer)
			if err == nil {
				mu.Lock()
				created += len(res.Created)
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, created)
	claims, err := h.cases.SumActiveClaims(context.Background(), []uint{101})
	require.NoError(t, err)
	total := 0
	for _, cl := range claims[101] {
		total += cl.Quantity
	}
	assert.LessOrEqual(t, total, 3)
}

func TestCalculateRefundInfo_ReportsRemaining(t *testing.T) {
	h := newHarness(t)
	h.apply(t, aftersales.TypeRefundOnly, "1")

	res, err := h.svc.CalculateRefundInfo(context.Background(), "O1001", []aftersales.CalcItem{
		{OrderProductID: 101, Quantity: "2"},
	})
	require.NoError(t, err)
	require.Len(t, res.Lines, 1)
	assert.Equal(t, 1, res.Lines[0].AlreadyRefundedQuantity)
	assert.Equal(t, 2, res.Lines[0].MaxRefundableQuantity)
	assert.True(t, res.CanRefund)
	assert.Equal(t, "20.00", res.TotalRefundableAmount.StringFixed(2))
}
