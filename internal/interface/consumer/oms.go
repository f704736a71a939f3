// Package consumer 消息队列入口
//
// OMS除了调用HTTP接口，也可以把售后单变更投递到RabbitMQ，
// 这里把消息解码后交给oms.Reconciler，和HTTP入口走同一套对账逻辑。
package consumer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/xiebiao/aftersales/internal/application/oms"
	apperrors "github.com/xiebiao/aftersales/pkg/errors"
	"github.com/xiebiao/aftersales/pkg/mq"
)

// OMS消息类型
const (
	OpCreate       = "create"
	OpSync         = "sync"
	OpUpdateInfo   = "update_info"
	OpUpdateStatus = "update_status"
)

// Envelope OMS消息信封
// operation为空按sync处理
type Envelope struct {
	Operation string          `json:"operation"`
	Data      json.RawMessage `json:"data"`
}

// OMSHandler OMS消息处理
type OMSHandler struct {
	reconciler *oms.Reconciler
	logger     *zap.Logger
}

// NewOMSHandler 创建处理器
func NewOMSHandler(reconciler *oms.Reconciler, log *zap.Logger) *OMSHandler {
	return &OMSHandler{reconciler: reconciler, logger: log.Named("oms.consumer")}
}

// Handle 实现mq.Handler
// 教学要点:
// 1. 消息本身有问题(解析失败、参数校验失败、业务拒绝)返回mq.ErrDiscard,不再重新入队
// 2. 锁冲突、并发修改、数据库错误返回原错误,消息重新入队稍后重试
// 3. 重复创建视为已处理,直接确认
func (h *OMSHandler) Handle(ctx context.Context, body []byte) error {
	var env Envelope
	if err := json.Unmarshal(body, &env); err != nil {
		return discard(fmt.Errorf("消息格式错误: %w", err))
	}

	err := h.dispatch(ctx, env)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, oms.ErrOmsDuplicate):
		h.logger.Info("OMS售后单已存在，忽略重复创建消息")
		return nil
	case permanent(err):
		return discard(err)
	default:
		return err
	}
}

func (h *OMSHandler) dispatch(ctx context.Context, env Envelope) error {
	switch env.Operation {
	case "", OpSync:
		var p oms.Payload
		if err := json.Unmarshal(env.Data, &p); err != nil {
			return apperrors.ErrBindError.Withf("%v", err)
		}
		_, err := h.reconciler.SyncFromOms(ctx, &p)
		return err

	case OpCreate:
		var p oms.Payload
		if err := json.Unmarshal(env.Data, &p); err != nil {
			return apperrors.ErrBindError.Withf("%v", err)
		}
		_, err := h.reconciler.CreateFromOms(ctx, &p)
		return err

	case OpUpdateInfo:
		var patch oms.InfoPatch
		if err := json.Unmarshal(env.Data, &patch); err != nil {
			return apperrors.ErrBindError.Withf("%v", err)
		}
		_, err := h.reconciler.UpdateInfoFromOms(ctx, &patch)
		return err

	case OpUpdateStatus:
		var u oms.StatusUpdate
		if err := json.Unmarshal(env.Data, &u); err != nil {
			return apperrors.ErrBindError.Withf("%v", err)
		}
		_, err := h.reconciler.UpdateStatusFromOms(ctx, &u)
		return err

	default:
		return apperrors.ErrInvalidParams.WithField("operation").Withf("未知的消息类型: %q", env.Operation)
	}
}

// permanent 4xx业务错误重试也不会成功;锁冲突和并发修改除外
func permanent(err error) bool {
	code := apperrors.CodeOf(err)
	if code == apperrors.ErrCodeLockBusy || code == apperrors.ErrCodeConcurrentUpdate {
		return false
	}
	return code >= 40000 && code < 50000
}

func discard(err error) error {
	return fmt.Errorf("%w: %v", mq.ErrDiscard, err)
}
