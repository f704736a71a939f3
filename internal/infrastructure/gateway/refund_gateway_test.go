package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	appaftersales "github.com/xiebiao/aftersales/internal/application/aftersales"
	"github.com/xiebiao/aftersales/internal/domain/suborder"
	"github.com/xiebiao/aftersales/internal/infrastructure/config"
	"github.com/xiebiao/aftersales/pkg/circuitbreaker"
)

func refundReq() appaftersales.RefundRequest {
	return appaftersales.RefundRequest{
		RefundNo: "RF20240618093000123456",
		OrderID:  "O1001",
		Amount:   decimal.RequireFromString("20.5"),
	}
}

func TestHTTPGateway_Success(t *testing.T) {
	var got refundBody
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/refunds", r.URL.Path)
		assert.Equal(t, "RF20240618093000123456", r.Header.Get("Idempotency-Key"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		_ = json.NewEncoder(w).Encode(refundReply{Success: true, TransactionNo: "TX9"})
	}))
	defer srv.Close()

	gw := NewHTTPGateway(srv.URL+"/", time.Second)
	txNo, err := gw.Refund(context.Background(), refundReq())

	require.NoError(t, err)
	assert.Equal(t, "TX9", txNo)
	assert.Equal(t, "20.50", got.Amount)
	assert.Equal(t, "O1001", got.OrderID)
}

func TestHTTPGateway_Failures(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		reply   refundReply
		wantMsg string
	}{
		{"5xx", http.StatusBadGateway, refundReply{Message: "upstream down"}, "upstream down"},
		{"业务拒绝", http.StatusOK, refundReply{Success: false, Message: "账户已注销"}, "账户已注销"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_ = json.NewEncoder(w).Encode(tt.reply)
			}))
			defer srv.Close()

			_, err := NewHTTPGateway(srv.URL, time.Second).Refund(context.Background(), refundReq())
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantMsg)
		})
	}
}

type failingGateway struct{ calls int }

func (g *failingGateway) Refund(context.Context, appaftersales.RefundRequest) (string, error) {
	g.calls++
	return "", errors.New("channel unavailable")
}

func TestBreakerGateway_OpensAfterFailures(t *testing.T) {
	next := &failingGateway{}
	cb := circuitbreaker.NewCircuitBreaker("test", circuitbreaker.Config{
		Timeout:     time.Minute,
		ReadyToTrip: func(c circuitbreaker.Counts) bool { return c.ConsecutiveFailures >= 2 },
	})
	gw := NewBreakerGateway(next, cb)

	for i := 0; i < 2; i++ {
		_, err := gw.Refund(context.Background(), refundReq())
		assert.EqualError(t, err, "channel unavailable")
	}

	_, err := gw.Refund(context.Background(), refundReq())
	assert.ErrorIs(t, err, circuitbreaker.ErrOpenState)
	assert.Equal(t, 2, next.calls)
}

func TestSimulatedGateway(t *testing.T) {
	txNo, err := NewSimulatedGateway(nil).Refund(context.Background(), refundReq())
	require.NoError(t, err)
	assert.Equal(t, "SIMRF20240618093000123456", txNo)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = NewSimulatedGateway(nil).Refund(ctx, refundReq())
	assert.ErrorIs(t, err, context.Canceled)
}

func TestConfigAddressProvider(t *testing.T) {
	cfg := &config.Config{}
	_, err := NewConfigAddressProvider(cfg).DefaultAddress(context.Background())
	assert.ErrorIs(t, err, suborder.ErrInvalidAddress)

	cfg.Aftersales.ReturnAddress = config.AddressConfig{Name: "仓库", Phone: "400-000", Address: "杭州市余杭区"}
	addr, err := NewConfigAddressProvider(cfg).DefaultAddress(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "仓库", addr.Name)
}
