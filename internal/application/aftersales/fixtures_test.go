package aftersales

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/xiebiao/aftersales/internal/domain/aftersales"
	"github.com/xiebiao/aftersales/internal/domain/suborder"
	"github.com/xiebiao/aftersales/internal/infrastructure/persistence/memory"
)

var t0 = time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)

var (
	buyer    = aftersales.Actor{Type: aftersales.ActorUser, ID: 7, Name: "buyer"}
	stranger = aftersales.Actor{Type: aftersales.ActorUser, ID: 8, Name: "someone"}
	admin    = aftersales.Actor{Type: aftersales.ActorAdmin, ID: 1, Name: "客服小王"}
)

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

// fakeGateway 按顺序返回预设错误,预设用完后一律成功
type fakeGateway struct {
	mu    sync.Mutex
	errs  []error
	calls []RefundRequest
}

func (g *fakeGateway) Refund(_ context.Context, req RefundRequest) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.calls = append(g.calls, req)
	if len(g.errs) > 0 {
		err := g.errs[0]
		g.errs = g.errs[1:]
		if err != nil {
			return "", err
		}
	}
	return "TX-" + req.RefundNo, nil
}

func (g *fakeGateway) failNext(n int) {
	g.mu.Lock()
	defer g.mu.Unlock()
	for i := 0; i < n; i++ {
		g.errs = append(g.errs, errors.New("channel unavailable"))
	}
}

type recordingPublisher struct {
	mu   sync.Mutex
	keys []string
}

func (p *recordingPublisher) Publish(_ context.Context, routingKey string, _ interface{}) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.keys = append(p.keys, routingKey)
	return nil
}

func (p *recordingPublisher) Keys() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.keys...)
}

type staticAddress struct{}

func (staticAddress) DefaultAddress(context.Context) (suborder.Address, error) {
	return suborder.Address{Name: "售后仓", Phone: "021-88886666", Address: "上海市浦东新区仓储路1号"}, nil
}

type harness struct {
	store   *memory.Store
	svc     *Service
	clock   *fakeClock
	gateway *fakeGateway
	events  *recordingPublisher
	cases   aftersales.Repository
	logs    aftersales.LogRepository
	refunds suborder.RefundRepository
	returns suborder.ReturnRepository
}

// newHarness 订单O1001:
//   - 101 Go语言实战 ×3 实付10.00
//   - 102 书签(赠品)
//   - 103 笔记本 ×2 实付3.335
func newHarness(t *testing.T, cfgs ...func(*Config)) *harness {
	t.Helper()
	store := memory.NewStore()
	store.SeedOrderLines(
		aftersales.OrderLine{OrderProductID: 101, OrderID: "O1001", UserID: 7, ProductID: 11, SkuID: 111,
			ProductCode: "BK-101", ProductName: "Go语言实战", Quantity: 3,
			OriginalPrice: dec("12.00"), UnitPaidPrice: dec("10.00")},
		aftersales.OrderLine{OrderProductID: 102, OrderID: "O1001", UserID: 7, ProductID: 12, SkuID: 121,
			ProductCode: "GIFT-1", ProductName: "书签", Quantity: 1,
			OriginalPrice: dec("0"), UnitPaidPrice: dec("0"), IsGift: true},
		aftersales.OrderLine{OrderProductID: 103, OrderID: "O1001", UserID: 7, ProductID: 13, SkuID: 131,
			ProductCode: "NB-103", ProductName: "笔记本", Quantity: 2,
			OriginalPrice: dec("5.00"), UnitPaidPrice: dec("3.335")},
	)
	store.SeedSkuPrice(111, dec("10.00"))
	store.SeedSkuPrice(112, dec("15.00"))

	cfg := DefaultConfig()
	for _, fn := range cfgs {
		fn(&cfg)
	}

	h := &harness{
		store:   store,
		clock:   &fakeClock{now: t0},
		gateway: &fakeGateway{},
		events:  &recordingPublisher{},
		cases:   memory.NewAftersalesRepository(store),
		logs:    memory.NewLogRepository(store),
		refunds: memory.NewRefundRepository(store),
		returns: memory.NewReturnRepository(store),
	}
	h.svc = NewService(Deps{
		Cases:     h.cases,
		Logs:      h.logs,
		Catalog:   memory.NewCatalog(store),
		Refunds:   h.refunds,
		Returns:   h.returns,
		Exchanges: memory.NewExchangeRepository(store),
		Addresses: staticAddress{},
		Gateway:   h.gateway,
		Tx:        memory.NewTxManager(store),
		Events:    h.events,
		Clock:     h.clock.Now,
	}, cfg)
	return h
}

// apply 买家对明细101申请qty件
func (h *harness) apply(t *testing.T, typ aftersales.CaseType, qty string) *aftersales.Case {
	t.Helper()
	req := ApplyRequest{
		OrderID: "O1001",
		Type:    typ,
		Reason:  aftersales.ReasonQualityIssue,
		Items:   []aftersales.CalcItem{{OrderProductID: 101, Quantity: qty}},
	}
	if typ == aftersales.TypeExchange {
		req.ExchangeSkuID = 112
		req.ExchangeAddress = &suborder.Address{Name: "张三", Phone: "13800000000", Address: "北京市海淀区1号"}
	}
	res, err := h.svc.Apply(context.Background(), req, buyer)
	require.NoError(t, err)
	require.Empty(t, res.Errors)
	require.Len(t, res.Created, 1)
	return res.Created[0]
}

func (h *harness) reload(t *testing.T, id uint) *aftersales.Case {
	t.Helper()
	c, err := h.cases.FindByID(context.Background(), id)
	require.NoError(t, err)
	return c
}

func (h *harness) logActions(t *testing.T, caseID uint) []aftersales.LogAction {
	t.Helper()
	logs, err := h.logs.ListByCase(context.Background(), caseID)
	require.NoError(t, err)
	actions := make([]aftersales.LogAction, 0, len(logs))
	for _, l := range logs {
		actions = append(actions, l.Action)
	}
	return actions
}
