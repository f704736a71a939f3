//go:build integration

package integration

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	appaftersales "github.com/xiebiao/aftersales/internal/application/aftersales"
	"github.com/xiebiao/aftersales/internal/domain/aftersales"
	"github.com/xiebiao/aftersales/internal/infrastructure/gateway"
	mysqlrepo "github.com/xiebiao/aftersales/internal/infrastructure/persistence/mysql"
	apperrors "github.com/xiebiao/aftersales/pkg/errors"
)

var (
	itBuyer = aftersales.Actor{Type: aftersales.ActorUser, ID: 7, Name: "buyer"}
	itAdmin = aftersales.Actor{Type: aftersales.ActorAdmin, ID: 1, Name: "客服"}
)

// settableClock 在启动并发前设置,并发期间只读
type settableClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *settableClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *settableClock) Set(t time.Time) {
	c.mu.Lock()
	c.now = t
	c.mu.Unlock()
}

func newMySQLService(db *gorm.DB, clock *settableClock) (*appaftersales.Service, *appaftersales.TimeoutProcessor) {
	catalog := mysqlrepo.NewOrderCatalog(db)
	svc := appaftersales.NewService(appaftersales.Deps{
		Cases:     mysqlrepo.NewAftersalesRepository(db),
		Logs:      mysqlrepo.NewLogRepository(db),
		Catalog:   catalog,
		Refunds:   mysqlrepo.NewRefundRepository(db),
		Returns:   mysqlrepo.NewReturnRepository(db),
		Exchanges: mysqlrepo.NewExchangeRepository(db),
		Addresses: warehouse{},
		Gateway:   gateway.NewSimulatedGateway(nil),
		Tx:        mysqlrepo.NewTxManager(db),
		Clock:     clock.Now,
	}, appaftersales.DefaultConfig())
	return svc, appaftersales.NewTimeoutProcessor(svc, appaftersales.CatalogEligibility(catalog))
}

func applyOne(t *testing.T, svc *appaftersales.Service, orderID string, lineID uint, qty string) *aftersales.Case {
	t.Helper()
	res, err := svc.Apply(context.Background(), appaftersales.ApplyRequest{
		OrderID: orderID,
		Type:    aftersales.TypeRefundOnly,
		Reason:  aftersales.ReasonQualityIssue,
		Items:   []aftersales.CalcItem{{OrderProductID: lineID, Quantity: qty}},
	}, itBuyer)
	require.NoError(t, err)
	require.Empty(t, res.Errors)
	require.Len(t, res.Created, 1)
	return res.Created[0]
}

func TestAftersalesRepository_StaleVersionLoses(t *testing.T) {
	db := openDB(t)
	ctx := context.Background()
	repo := mysqlrepo.NewAftersalesRepository(db)
	now := time.Now().Truncate(time.Second)

	c := newCase(t, "AS-IT-0501", 501, 1, now)
	require.NoError(t, repo.Create(ctx, c))

	first, err := repo.FindByID(ctx, c.ID)
	require.NoError(t, err)
	second, err := repo.FindByID(ctx, c.ID)
	require.NoError(t, err)

	require.NoError(t, first.Cancel(now))
	require.NoError(t, repo.Update(ctx, first))

	require.NoError(t, second.Approve(now))
	assert.ErrorIs(t, repo.Update(ctx, second), apperrors.ErrConcurrentUpdate)

	stored, err := repo.FindByID(ctx, c.ID)
	require.NoError(t, err)
	assert.Equal(t, aftersales.StateCancelled, stored.State)
	assert.Equal(t, first.Version, stored.Version)
}

// TestTimeoutSweep_RacesBuyerCancel 超时扫描和买家取消同时处理一个售后单
// 行锁保证只有一方生效,另一方看到新状态后跳过或返回状态冲突
func TestTimeoutSweep_RacesBuyerCancel(t *testing.T) {
	for round := 0; round < 5; round++ {
		db := openDB(t)
		seedLine(t, db, 601, "SO-IT-RACE", 7, 2, "25.00")
		clock := &settableClock{now: time.Now().Truncate(time.Second)}
		svc, timeouts := newMySQLService(db, clock)

		c := applyOne(t, svc, "SO-IT-RACE", 601, "1")
		clock.Set(clock.Now().Add(49 * time.Hour))

		var (
			wg        sync.WaitGroup
			cancelErr error
			sweep     *appaftersales.TimeoutResult
			sweepErr  error
		)
		wg.Add(2)
		go func() {
			defer wg.Done()
			_, cancelErr = svc.Cancel(context.Background(), c.ID, itBuyer)
		}()
		go func() {
			defer wg.Done()
			sweep, sweepErr = timeouts.ProcessTimeouts(context.Background(), 10, false)
		}()
		wg.Wait()

		require.NoError(t, sweepErr)
		cancelWon := cancelErr == nil
		timeoutWon := sweep.Processed == 1
		assert.True(t, cancelWon != timeoutWon, "round %d: cancel=%v timeout=%v", round, cancelErr, sweep)
		assert.Zero(t, sweep.Errors)

		stored, err := mysqlrepo.NewAftersalesRepository(db).FindByID(context.Background(), c.ID)
		require.NoError(t, err)
		logs, err := mysqlrepo.NewLogRepository(db).ListByCase(context.Background(), c.ID)
		require.NoError(t, err)
		var cancels, timeoutLogs int
		for _, l := range logs {
			switch l.Action {
			case aftersales.LogCancel:
				cancels++
			case aftersales.LogTimeout:
				timeoutLogs++
			}
		}

		if cancelWon {
			assert.Equal(t, aftersales.StateCancelled, stored.State)
			assert.Equal(t, 1, cancels)
			assert.Zero(t, timeoutLogs)
		} else {
			assert.ErrorIs(t, cancelErr, aftersales.ErrInvalidTransition)
			assert.Equal(t, aftersales.StateApproved, stored.State)
			assert.Zero(t, cancels)
			assert.Equal(t, 1, timeoutLogs)
		}
	}
}

// TestModify_ResubmitAfterQuantityReclaimed 被拒期间数量被新申请占满,重新提交失败
func TestModify_ResubmitAfterQuantityReclaimed(t *testing.T) {
	db := openDB(t)
	seedLine(t, db, 701, "SO-IT-MOD", 7, 3, "25.00")
	clock := &settableClock{now: time.Now().Truncate(time.Second)}
	svc, _ := newMySQLService(db, clock)
	ctx := context.Background()

	first := applyOne(t, svc, "SO-IT-MOD", 701, "3")
	_, err := svc.Reject(ctx, first.ID, "凭证不清晰", itAdmin)
	require.NoError(t, err)
	applyOne(t, svc, "SO-IT-MOD", 701, "3")

	desc := "补充说明"
	_, err = svc.Modify(ctx, first.ID, appaftersales.ModifyRequest{
		Fields: aftersales.Modification{Description: &desc},
	}, itBuyer)
	assert.ErrorIs(t, err, aftersales.ErrQuantityExceeded)

	claims, err := mysqlrepo.NewAftersalesRepository(db).SumActiveClaims(ctx, []uint{701})
	require.NoError(t, err)
	total := 0
	for _, cl := range claims[701] {
		total += cl.Quantity
	}
	assert.Equal(t, 3, total)
}
