package router

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	appaftersales "github.com/xiebiao/aftersales/internal/application/aftersales"
	"github.com/xiebiao/aftersales/internal/application/oms"
	"github.com/xiebiao/aftersales/internal/domain/aftersales"
	"github.com/xiebiao/aftersales/internal/domain/suborder"
	"github.com/xiebiao/aftersales/internal/infrastructure/config"
	"github.com/xiebiao/aftersales/internal/infrastructure/gateway"
	"github.com/xiebiao/aftersales/internal/infrastructure/persistence/memory"
	"github.com/xiebiao/aftersales/internal/interface/http/handler"
	"github.com/xiebiao/aftersales/internal/interface/http/middleware"
	"github.com/xiebiao/aftersales/pkg/jwt"
)

const omsKey = "oms-secret"

type warehouse struct{}

func (warehouse) DefaultAddress(context.Context) (suborder.Address, error) {
	return suborder.Address{Name: "售后仓", Phone: "021-88886666", Address: "上海市浦东新区仓储路1号"}, nil
}

type testServer struct {
	engine *gin.Engine
	jwt    *jwt.Manager
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)

	store := memory.NewStore()
	store.SeedOrderLines(
		aftersales.OrderLine{
			OrderProductID: 101, OrderID: "SO-1", UserID: 7, ProductID: 10, SkuID: 1001,
			ProductCode: "BK-101", ProductName: "Go语言设计与实现", Quantity: 3,
			OriginalPrice: decimal.RequireFromString("30.00"), UnitPaidPrice: decimal.RequireFromString("25.00"),
		},
	)
	clock := func() time.Time { return time.Date(2024, 6, 18, 9, 30, 0, 0, time.UTC) }

	cases := memory.NewAftersalesRepository(store)
	logs := memory.NewLogRepository(store)
	catalog := memory.NewCatalog(store)
	tx := memory.NewTxManager(store)
	svc := appaftersales.NewService(appaftersales.Deps{
		Cases:     cases,
		Logs:      logs,
		Catalog:   catalog,
		Refunds:   memory.NewRefundRepository(store),
		Returns:   memory.NewReturnRepository(store),
		Exchanges: memory.NewExchangeRepository(store),
		Addresses: warehouse{},
		Gateway:   gateway.NewSimulatedGateway(clock),
		Tx:        tx,
		Clock:     clock,
	}, appaftersales.DefaultConfig())
	reconciler := oms.NewReconciler(oms.Deps{
		Cases: cases, Logs: logs, Catalog: catalog, Tx: tx, Service: svc, Clock: clock,
	})

	hash, err := bcrypt.GenerateFromPassword([]byte(omsKey), bcrypt.MinCost)
	require.NoError(t, err)
	cfg := &config.Config{OMS: config.OMSConfig{APIKeyHash: string(hash)}}

	jm := jwt.NewManager("test-secret", time.Hour)
	engine := NewRouter(
		RouterOptions{Mode: gin.TestMode},
		Handlers{
			Aftersales: handler.NewAftersalesHandler(svc),
			SubOrders:  handler.NewSubOrderHandler(svc),
			Oms:        handler.NewOmsHandler(reconciler),
			Jobs:       handler.NewJobHandler(appaftersales.NewTimeoutProcessor(svc, nil), 100),
		},
		middleware.NewAuthMiddleware(jm),
		middleware.NewOMSGuard(cfg, zap.NewNop()),
		zap.NewNop(),
	)
	return &testServer{engine: engine, jwt: jm}
}

func (s *testServer) token(t *testing.T, userID uint, role string) string {
	t.Helper()
	tok, err := s.jwt.GenerateToken(userID, "tester", role)
	require.NoError(t, err)
	return tok
}

type envelope struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Field   string          `json:"field"`
	Data    json.RawMessage `json:"data"`
}

func (s *testServer) do(t *testing.T, method, path, token string, body interface{}, headers ...string) (int, envelope) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	w := httptest.NewRecorder()
	s.engine.ServeHTTP(w, req)

	var env envelope
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env), w.Body.String())
	return w.Code, env
}

func decode(t *testing.T, raw json.RawMessage, v interface{}) {
	t.Helper()
	require.NoError(t, json.Unmarshal(raw, v))
}

func applyRefund(t *testing.T, s *testServer, buyer string, qty interface{}) envelope {
	t.Helper()
	_, env := s.do(t, http.MethodPost, "/api/v1/aftersales", buyer, map[string]interface{}{
		"order_id": "SO-1",
		"type":     "REFUND_ONLY",
		"reason":   "QUALITY_ISSUE",
		"items":    []map[string]interface{}{{"order_product_id": 101, "quantity": qty}},
	})
	return env
}

func TestRouter_Ping(t *testing.T) {
	s := newTestServer(t)
	code, env := s.do(t, http.MethodGet, "/ping", "", nil)
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, 0, env.Code)
}

func TestRouter_RequiresAuth(t *testing.T) {
	s := newTestServer(t)

	code, env := s.do(t, http.MethodPost, "/api/v1/aftersales", "", nil)
	assert.Equal(t, http.StatusUnauthorized, code)
	assert.Equal(t, 40100, env.Code)

	buyer := s.token(t, 7, jwt.RoleUser)
	code, env = s.do(t, http.MethodPost, "/api/v1/admin/aftersales/1/approve", buyer, nil)
	assert.Equal(t, http.StatusForbidden, code)
	assert.Equal(t, 40104, env.Code)
}

func TestRouter_RefundFlow(t *testing.T) {
	s := newTestServer(t)
	buyer := s.token(t, 7, jwt.RoleUser)
	admin := s.token(t, 1, jwt.RoleAdmin)

	// 试算
	_, env := s.do(t, http.MethodPost, "/api/v1/aftersales/calculate", buyer, map[string]interface{}{
		"order_id": "SO-1",
		"items":    []map[string]interface{}{{"order_product_id": 101, "quantity": "2"}},
	})
	require.Equal(t, 0, env.Code, env.Message)

	// 申请
	env = applyRefund(t, s, buyer, 2)
	require.Equal(t, 0, env.Code, env.Message)
	var applied struct {
		Created []struct {
			ID                 uint   `json:"id"`
			State              string `json:"state"`
			ActualRefundAmount string `json:"actual_refund_amount"`
		} `json:"created"`
	}
	decode(t, env.Data, &applied)
	require.Len(t, applied.Created, 1)
	assert.Equal(t, "PENDING_APPROVAL", applied.Created[0].State)
	assert.Equal(t, "50.00", applied.Created[0].ActualRefundAmount)
	id := applied.Created[0].ID

	// 审核通过 → 生成退款单
	_, env = s.do(t, http.MethodPost, fmt.Sprintf("/api/v1/admin/aftersales/%d/approve", id), admin, nil)
	require.Equal(t, 0, env.Code, env.Message)

	_, env = s.do(t, http.MethodGet, fmt.Sprintf("/api/v1/aftersales/%d", id), buyer, nil)
	require.Equal(t, 0, env.Code, env.Message)
	var detail struct {
		State        string `json:"state"`
		RefundOrders []struct {
			ID     uint   `json:"id"`
			Status string `json:"status"`
		} `json:"refund_orders"`
	}
	decode(t, env.Data, &detail)
	assert.Equal(t, "APPROVED", detail.State)
	require.Len(t, detail.RefundOrders, 1)

	// 执行退款 → 售后完成
	_, env = s.do(t, http.MethodPost, fmt.Sprintf("/api/v1/admin/refunds/%d/execute", detail.RefundOrders[0].ID), admin, nil)
	require.Equal(t, 0, env.Code, env.Message)
	var refund struct {
		Status        string `json:"status"`
		TransactionNo string `json:"transaction_no"`
	}
	decode(t, env.Data, &refund)
	assert.Equal(t, "SUCCESS", refund.Status)
	assert.NotEmpty(t, refund.TransactionNo)

	_, env = s.do(t, http.MethodGet, fmt.Sprintf("/api/v1/aftersales/%d/logs", id), buyer, nil)
	require.Equal(t, 0, env.Code, env.Message)
	var logs []struct {
		Action string `json:"action"`
	}
	decode(t, env.Data, &logs)
	assert.GreaterOrEqual(t, len(logs), 3)
}

func TestRouter_ApplyQuantityErrors(t *testing.T) {
	s := newTestServer(t)
	buyer := s.token(t, 7, jwt.RoleUser)

	// 非整数数量:明细失败,整体仍返回成功结构
	env := applyRefund(t, s, buyer, "1.5")
	require.Equal(t, 0, env.Code, env.Message)
	var res struct {
		Created []json.RawMessage `json:"created"`
		Errors  []struct {
			OrderProductID uint `json:"order_product_id"`
			Code           int  `json:"code"`
		} `json:"errors"`
	}
	decode(t, env.Data, &res)
	assert.Empty(t, res.Created)
	require.Len(t, res.Errors, 1)
	assert.Equal(t, uint(101), res.Errors[0].OrderProductID)

	// 缺少必填字段
	_, env = s.do(t, http.MethodPost, "/api/v1/aftersales", buyer, map[string]interface{}{"order_id": "SO-1"})
	assert.Equal(t, 40901, env.Code)
}

func TestRouter_OtherBuyerCannotSeeCase(t *testing.T) {
	s := newTestServer(t)
	owner := s.token(t, 7, jwt.RoleUser)
	other := s.token(t, 8, jwt.RoleUser)

	env := applyRefund(t, s, owner, 1)
	require.Equal(t, 0, env.Code, env.Message)
	var applied struct {
		Created []struct {
			ID uint `json:"id"`
		} `json:"created"`
	}
	decode(t, env.Data, &applied)
	require.Len(t, applied.Created, 1)

	_, env = s.do(t, http.MethodGet, fmt.Sprintf("/api/v1/aftersales/%d", applied.Created[0].ID), other, nil)
	assert.Equal(t, 40401, env.Code)

	_, env = s.do(t, http.MethodGet, "/api/v1/aftersales/abc", owner, nil)
	assert.Equal(t, 40900, env.Code)
}

func TestRouter_OmsRequiresAPIKey(t *testing.T) {
	s := newTestServer(t)
	payload := map[string]interface{}{
		"aftersalesNo":   "OMS20240618001",
		"orderNo":        "SO-1",
		"aftersalesType": "refund",
		"status":         "pending",
		"reason":         "quality_issue",
		"products": []map[string]interface{}{
			{"orderProductId": 101, "code": "BK-101", "name": "Go语言设计与实现", "quantity": 1, "amount": "25.00"},
		},
	}

	code, _ := s.do(t, http.MethodPost, "/api/v1/oms/aftersales/sync", "", payload)
	assert.Equal(t, http.StatusUnauthorized, code)

	_, env := s.do(t, http.MethodPost, "/api/v1/oms/aftersales/sync", "", payload, middleware.APIKeyHeader, omsKey)
	require.Equal(t, 0, env.Code, env.Message)
	var res struct {
		Created bool `json:"created"`
		Case    struct {
			State  string `json:"state"`
			Source string `json:"source"`
		} `json:"case"`
	}
	decode(t, env.Data, &res)
	assert.True(t, res.Created)
	assert.Equal(t, "PENDING_APPROVAL", res.Case.State)
	assert.Equal(t, "OMS", res.Case.Source)

	_, env = s.do(t, http.MethodPut, "/api/v1/oms/aftersales/status", "", map[string]string{
		"aftersalesNo": "OMS20240618001",
		"status":       "approved",
	}, middleware.APIKeyHeader, omsKey)
	require.Equal(t, 0, env.Code, env.Message)
	var st struct {
		Previous string `json:"previous"`
		Current  string `json:"current"`
	}
	decode(t, env.Data, &st)
	assert.Equal(t, "PENDING_APPROVAL", st.Previous)
	assert.Equal(t, "APPROVED", st.Current)
}

func TestRouter_TimeoutJobDryRun(t *testing.T) {
	s := newTestServer(t)
	admin := s.token(t, 1, jwt.RoleAdmin)

	_, env := s.do(t, http.MethodPost, "/api/v1/admin/jobs/timeouts?dry_run=true&batch_size=10", admin, nil)
	require.Equal(t, 0, env.Code, env.Message)
	var res appaftersales.TimeoutResult
	decode(t, env.Data, &res)
	assert.True(t, res.DryRun)
	assert.Equal(t, 0, res.Processed)
}
