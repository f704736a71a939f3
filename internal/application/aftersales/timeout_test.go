package aftersales

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xiebiao/aftersales/internal/domain/aftersales"
	"github.com/xiebiao/aftersales/internal/domain/suborder"
	"github.com/xiebiao/aftersales/internal/infrastructure/persistence/memory"
)

func TestProcessTimeouts_DryRunChangesNothing(t *testing.T) {
	h := newHarness(t)
	c := h.apply(t, aftersales.TypeRefundOnly, "1")
	h.clock.Advance(49 * time.Hour)

	p := NewTimeoutProcessor(h.svc, nil)
	res, err := p.ProcessTimeouts(context.Background(), 10, true)
	require.NoError(t, err)
	assert.True(t, res.DryRun)
	assert.Equal(t, 1, res.Processed)
	require.Len(t, res.Previews, 1)
	assert.Equal(t, aftersales.StatePendingApproval, res.Previews[0].FromState)
	assert.Equal(t, aftersales.StateApproved, res.Previews[0].ToState)

	reloaded := h.reload(t, c.ID)
	assert.Equal(t, aftersales.StatePendingApproval, reloaded.State)
	assert.NotNil(t, reloaded.AutoProcessTime)
	assert.Equal(t, []aftersales.LogAction{aftersales.LogApply}, h.logActions(t, c.ID))

	refunds, err := h.refunds.FindByCaseID(context.Background(), c.ID)
	require.NoError(t, err)
	assert.Empty(t, refunds)
}

func TestProcessTimeouts_AutoApprovesPendingCases(t *testing.T) {
	h := newHarness(t)
	c := h.apply(t, aftersales.TypeRefundOnly, "1")
	h.clock.Advance(49 * time.Hour)

	res, err := NewTimeoutProcessor(h.svc, nil).ProcessTimeouts(context.Background(), 10, false)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Processed)
	assert.Zero(t, res.Errors)
	assert.Empty(t, res.Previews)

	reloaded := h.reload(t, c.ID)
	assert.Equal(t, aftersales.StateApproved, reloaded.State)
	require.NotNil(t, reloaded.AuditTime)
	assert.Equal(t, t0.Add(49*time.Hour), *reloaded.AuditTime)
	assert.Nil(t, reloaded.AutoProcessTime)

	refunds, err := h.refunds.FindByCaseID(context.Background(), c.ID)
	require.NoError(t, err)
	assert.Len(t, refunds, 1)

	actions := h.logActions(t, c.ID)
	assert.Equal(t, []aftersales.LogAction{
		aftersales.LogApply, aftersales.LogTimeout, aftersales.LogRefundCreate,
	}, actions)

	logs, err := h.logs.ListByCase(context.Background(), c.ID)
	require.NoError(t, err)
	assert.Equal(t, aftersales.ActorSystem, logs[1].Actor.Type)

	// 再跑一次没有可处理的
	res, err = NewTimeoutProcessor(h.svc, nil).ProcessTimeouts(context.Background(), 10, false)
	require.NoError(t, err)
	assert.Zero(t, res.Processed)
}

func TestProcessTimeouts_UnshippedReturnIsCancelled(t *testing.T) {
	h := newHarness(t)
	c := h.apply(t, aftersales.TypeReturnRefund, "1")
	_, err := h.svc.Approve(context.Background(), c.ID, admin)
	require.NoError(t, err)

	h.clock.Advance(aftersales.DefaultSLA().ReturnShipment + time.Minute)
	res, err := NewTimeoutProcessor(h.svc, nil).ProcessTimeouts(context.Background(), 10, false)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Processed)

	reloaded := h.reload(t, c.ID)
	assert.Equal(t, aftersales.StateCancelled, reloaded.State)
	assert.NotNil(t, reloaded.CompletedTime)
	assert.False(t, reloaded.State.CountsTowardClaims())

	returns, err := h.returns.FindByCaseID(context.Background(), c.ID)
	require.NoError(t, err)
	require.Len(t, returns, 1)
	assert.Equal(t, suborder.ReturnStatusCancelled, returns[0].Status)
	assert.Contains(t, h.logActions(t, c.ID), aftersales.LogReturnCancel)
}

func TestProcessTimeouts_SkipsCasesNotYetDue(t *testing.T) {
	h := newHarness(t)
	due := h.apply(t, aftersales.TypeRefundOnly, "1")
	ret := h.apply(t, aftersales.TypeReturnRefund, "1")
	_, err := h.svc.Approve(context.Background(), ret.ID, admin)
	require.NoError(t, err)

	h.clock.Advance(72 * time.Hour)
	res, err := NewTimeoutProcessor(h.svc, nil).ProcessTimeouts(context.Background(), 1, false)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Processed)

	assert.Equal(t, aftersales.StateApproved, h.reload(t, due.ID).State)
	assert.Equal(t, aftersales.StatePendingReturn, h.reload(t, ret.ID).State)
}

func TestProcessTimeouts_IneligibleCasesAreSkipped(t *testing.T) {
	h := newHarness(t)
	c := h.apply(t, aftersales.TypeRefundOnly, "1")
	h.clock.Advance(49 * time.Hour)

	never := EligibilityFunc(func(context.Context, *aftersales.Case) (bool, error) { return false, nil })
	res, err := NewTimeoutProcessor(h.svc, never).ProcessTimeouts(context.Background(), 10, false)
	require.NoError(t, err)
	assert.Zero(t, res.Processed)
	assert.Equal(t, 1, res.Skipped)
	assert.Equal(t, aftersales.StatePendingApproval, h.reload(t, c.ID).State)
}

func TestProcessTimeouts_ErrorsDoNotStopBatch(t *testing.T) {
	h := newHarness(t)
	first := h.apply(t, aftersales.TypeRefundOnly, "1")
	second := h.apply(t, aftersales.TypeRefundOnly, "1")
	h.clock.Advance(49 * time.Hour)

	flaky := EligibilityFunc(func(_ context.Context, c *aftersales.Case) (bool, error) {
		if c.ID == first.ID {
			return false, errors.New("order service down")
		}
		return true, nil
	})
	res, err := NewTimeoutProcessor(h.svc, flaky).ProcessTimeouts(context.Background(), 10, false)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Errors)
	assert.Equal(t, 1, res.Processed)
	assert.Equal(t, aftersales.StatePendingApproval, h.reload(t, first.ID).State)
	assert.Equal(t, aftersales.StateApproved, h.reload(t, second.ID).State)
}

func TestCatalogEligibility_RequiresExistingLine(t *testing.T) {
	store := memory.NewStore()
	store.SeedOrderLines(aftersales.OrderLine{OrderProductID: 1, OrderID: "O1", UserID: 7, Quantity: 1})
	check := CatalogEligibility(memory.NewCatalog(store))

	ok, err := check.Eligible(context.Background(), &aftersales.Case{State: aftersales.StatePendingApproval, OrderProductID: 1})
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = check.Eligible(context.Background(), &aftersales.Case{State: aftersales.StatePendingApproval, OrderProductID: 2})
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = check.Eligible(context.Background(), &aftersales.Case{State: aftersales.StatePendingReturn, OrderProductID: 2})
	require.NoError(t, err)
	assert.True(t, ok)
}
