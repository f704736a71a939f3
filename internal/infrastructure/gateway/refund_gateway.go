// Package gateway 退款网关适配器
//
// 应用层只依赖 appaftersales.RefundGateway 接口，这里提供三种实现：
//   - HTTPGateway：调用支付系统的退款接口
//   - SimulatedGateway：本地开发时使用，直接返回成功
//   - BreakerGateway：给任意网关套一层熔断器
package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	appaftersales "github.com/xiebiao/aftersales/internal/application/aftersales"
	"github.com/xiebiao/aftersales/internal/infrastructure/config"
	"github.com/xiebiao/aftersales/pkg/circuitbreaker"
	"github.com/xiebiao/aftersales/pkg/metrics"
)

// refundBody 退款接口请求体
// 金额以字符串传输，避免浮点精度问题
type refundBody struct {
	RefundNo string `json:"refund_no"`
	OrderID  string `json:"order_id"`
	Amount   string `json:"amount"`
}

type refundReply struct {
	Success       bool   `json:"success"`
	TransactionNo string `json:"transaction_no"`
	Message       string `json:"message"`
}

// HTTPGateway 支付系统退款接口
// POST {base_url}/refunds，refund_no作为幂等键
type HTTPGateway struct {
	baseURL string
	client  *http.Client
}

// NewHTTPGateway 创建HTTP网关
func NewHTTPGateway(baseURL string, timeout time.Duration) *HTTPGateway {
	return &HTTPGateway{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: timeout},
	}
}

// Refund 提交退款
// 非2xx或success=false都视为失败，错误信息带上网关返回的原因
func (g *HTTPGateway) Refund(ctx context.Context, req appaftersales.RefundRequest) (string, error) {
	payload, err := json.Marshal(refundBody{
		RefundNo: req.RefundNo,
		OrderID:  req.OrderID,
		Amount:   req.Amount.StringFixed(2),
	})
	if err != nil {
		return "", err
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, g.baseURL+"/refunds", bytes.NewReader(payload))
	if err != nil {
		return "", err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Idempotency-Key", req.RefundNo)

	resp, err := g.client.Do(httpReq)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", err
	}

	var reply refundReply
	if len(body) > 0 {
		if err := json.Unmarshal(body, &reply); err != nil {
			return "", fmt.Errorf("网关响应解析失败(status=%d): %w", resp.StatusCode, err)
		}
	}
	if resp.StatusCode/100 != 2 {
		return "", fmt.Errorf("网关返回%d: %s", resp.StatusCode, reply.Message)
	}
	if !reply.Success {
		return "", fmt.Errorf("网关拒绝退款: %s", reply.Message)
	}
	return reply.TransactionNo, nil
}

// SimulatedGateway 模拟网关，gateway.base_url为空时使用
type SimulatedGateway struct {
	now func() time.Time
}

// NewSimulatedGateway 创建模拟网关
func NewSimulatedGateway(now func() time.Time) *SimulatedGateway {
	if now == nil {
		now = time.Now
	}
	return &SimulatedGateway{now: now}
}

// Refund 直接成功，流水号 SIM + 退款单号
func (g *SimulatedGateway) Refund(ctx context.Context, req appaftersales.RefundRequest) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	return "SIM" + req.RefundNo, nil
}

// BreakerGateway 熔断包装
// 熔断打开时直接返回circuitbreaker.ErrOpenState，退款单照常记为失败
type BreakerGateway struct {
	next    appaftersales.RefundGateway
	breaker *circuitbreaker.CircuitBreaker
}

// NewBreakerGateway 包装网关
func NewBreakerGateway(next appaftersales.RefundGateway, cb *circuitbreaker.CircuitBreaker) *BreakerGateway {
	return &BreakerGateway{next: next, breaker: cb}
}

// Refund 经过熔断器调用下游
func (g *BreakerGateway) Refund(ctx context.Context, req appaftersales.RefundRequest) (string, error) {
	var txNo string
	err := g.breaker.ExecuteContext(ctx, func(ctx context.Context) error {
		var err error
		txNo, err = g.next.Refund(ctx, req)
		return err
	})

	result := "success"
	switch {
	case errors.Is(err, circuitbreaker.ErrOpenState):
		result = "rejected"
	case err != nil:
		result = "failure"
	}
	metrics.IncCounterVec(metrics.CircuitBreakerRequests, map[string]string{"name": g.breaker.Name(), "result": result})
	return txNo, err
}

// NewRefundGateway 按配置组装网关
// base_url为空使用模拟网关；两种情况都套熔断器
func NewRefundGateway(cfg *config.Config, log *zap.Logger) appaftersales.RefundGateway {
	gw := cfg.Gateway

	var next appaftersales.RefundGateway
	if gw.BaseURL == "" {
		log.Warn("未配置退款网关地址，使用模拟网关")
		next = NewSimulatedGateway(nil)
	} else {
		next = NewHTTPGateway(gw.BaseURL, gw.Timeout)
	}

	failures := gw.BreakerFailures
	cb := circuitbreaker.NewCircuitBreaker("refund_gateway", circuitbreaker.Config{
		MaxRequests: gw.BreakerMaxRequests,
		Interval:    gw.BreakerInterval,
		Timeout:     gw.BreakerTimeout,
		ReadyToTrip: func(c circuitbreaker.Counts) bool {
			return failures > 0 && c.ConsecutiveFailures >= failures
		},
	})
	cb.SetStateChangeCallback(func(name string, from, to circuitbreaker.State) {
		metrics.SetGaugeVec(metrics.CircuitBreakerState, map[string]string{"name": name}, float64(to))
		log.Warn("熔断器状态变化",
			zap.String("name", name),
			zap.String("from", from.String()),
			zap.String("to", to.String()))
	})
	return NewBreakerGateway(next, cb)
}
