package handler

import (
	"github.com/gin-gonic/gin"

	appaftersales "github.com/xiebiao/aftersales/internal/application/aftersales"
	"github.com/xiebiao/aftersales/internal/domain/aftersales"
	"github.com/xiebiao/aftersales/internal/interface/http/dto"
	"github.com/xiebiao/aftersales/internal/interface/http/middleware"
	"github.com/xiebiao/aftersales/pkg/response"
)

// SubOrderHandler 退款单/退货单/换货单
type SubOrderHandler struct {
	svc *appaftersales.Service
}

// NewSubOrderHandler 创建子单处理器
func NewSubOrderHandler(svc *appaftersales.Service) *SubOrderHandler {
	return &SubOrderHandler{svc: svc}
}

// =========================================
// 退款单
// =========================================

// ExecuteRefund 执行退款
// @Summary      执行退款
// @Description  调用退款网关，网关失败时退款单标记为FAILED，可重试
// @Tags         退款单
// @Produce      json
// @Security     BearerAuth
// @Param        id path int true "退款单ID"
// @Success      200 {object} response.Response{data=dto.RefundOrderResponse}
// @Failure      200 {object} response.Response "50003 退款网关错误"
// @Router       /admin/refunds/{id}/execute [post]
func (h *SubOrderHandler) ExecuteRefund(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	ro, err := h.svc.ExecuteRefund(c.Request.Context(), id, middleware.GetActor(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, dto.ToRefundOrderResponse(ro))
}

// RetryRefund 重试失败的退款
// @Summary      重试退款
// @Tags         退款单
// @Produce      json
// @Security     BearerAuth
// @Param        id path int true "退款单ID"
// @Success      200 {object} response.Response{data=dto.RefundOrderResponse}
// @Router       /admin/refunds/{id}/retry [post]
func (h *SubOrderHandler) RetryRefund(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	ro, err := h.svc.RetryRefund(c.Request.Context(), id, middleware.GetActor(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, dto.ToRefundOrderResponse(ro))
}

// =========================================
// 退货单
// =========================================

// ShipReturn 买家寄回
// @Summary      填写退货快递单号
// @Tags         退货单
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        id path int true "退货单ID"
// @Param        request body dto.ShipRequest true "快递信息"
// @Success      200 {object} response.Response{data=dto.ReturnResponse}
// @Router       /returns/{id}/ship [post]
func (h *SubOrderHandler) ShipReturn(c *gin.Context) {
	var req dto.ShipRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		bindError(c, err)
		return
	}
	h.returnAction(c, func(id uint, actor aftersales.Actor) (*appaftersales.ReturnResult, error) {
		return h.svc.ShipReturn(c.Request.Context(), id, req.CarrierCode, req.TrackingNo, actor)
	})
}

// PushTracking 快递轨迹推送
// @Summary      快递轨迹推送
// @Description  重复或乱序的推送不会改变状态，changed=false
// @Tags         退货单
// @Accept       json
// @Produce      json
// @Param        request body dto.TrackingPushRequest true "轨迹"
// @Success      200 {object} response.Response{data=dto.ReturnResponse}
// @Router       /oms/returns/tracking [post]
func (h *SubOrderHandler) PushTracking(c *gin.Context) {
	var req dto.TrackingPushRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		bindError(c, err)
		return
	}
	res, err := h.svc.UpdateReturnTracking(c.Request.Context(), req.CarrierCode, req.TrackingNo, req.Status, middleware.GetActor(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, dto.ToReturnResponse(res))
}

// ReceiveReturn 商家确认收货
// @Summary      确认收到退货
// @Tags         退货单
// @Produce      json
// @Security     BearerAuth
// @Param        id path int true "退货单ID"
// @Success      200 {object} response.Response{data=dto.ReturnResponse}
// @Router       /admin/returns/{id}/receive [post]
func (h *SubOrderHandler) ReceiveReturn(c *gin.Context) {
	h.returnAction(c, func(id uint, actor aftersales.Actor) (*appaftersales.ReturnResult, error) {
		return h.svc.ConfirmReturnReceived(c.Request.Context(), id, actor)
	})
}

// InspectReturn 退货质检
// @Summary      退货质检
// @Description  质检通过进入退款，不通过关闭售后单
// @Tags         退货单
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        id path int true "退货单ID"
// @Param        request body dto.InspectRequest true "质检结果"
// @Success      200 {object} response.Response{data=dto.ReturnResponse}
// @Router       /admin/returns/{id}/inspect [post]
func (h *SubOrderHandler) InspectReturn(c *gin.Context) {
	var req dto.InspectRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		bindError(c, err)
		return
	}
	h.returnAction(c, func(id uint, actor aftersales.Actor) (*appaftersales.ReturnResult, error) {
		return h.svc.InspectReturn(c.Request.Context(), id, *req.Pass, req.Note, actor)
	})
}

func (h *SubOrderHandler) returnAction(c *gin.Context, fn func(id uint, actor aftersales.Actor) (*appaftersales.ReturnResult, error)) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	res, err := fn(id, middleware.GetActor(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, dto.ToReturnResponse(res))
}

// =========================================
// 换货单
// =========================================

// ApproveExchange 同意换货
// @Summary      同意换货
// @Tags         换货单
// @Produce      json
// @Security     BearerAuth
// @Param        id path int true "换货单ID"
// @Success      200 {object} response.Response{data=dto.ExchangeResponse}
// @Router       /admin/exchanges/{id}/approve [post]
func (h *SubOrderHandler) ApproveExchange(c *gin.Context) {
	h.exchangeAction(c, func(id uint, actor aftersales.Actor) (*appaftersales.ExchangeResult, error) {
		return h.svc.ApproveExchange(c.Request.Context(), id, actor)
	})
}

// RejectExchange 拒绝换货
// @Summary      拒绝换货
// @Tags         换货单
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        id path int true "换货单ID"
// @Param        request body dto.ReasonRequest true "拒绝原因"
// @Success      200 {object} response.Response{data=dto.ExchangeResponse}
// @Router       /admin/exchanges/{id}/reject [post]
func (h *SubOrderHandler) RejectExchange(c *gin.Context) {
	var req dto.ReasonRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		bindError(c, err)
		return
	}
	h.exchangeAction(c, func(id uint, actor aftersales.Actor) (*appaftersales.ExchangeResult, error) {
		return h.svc.RejectExchange(c.Request.Context(), id, req.Reason, actor)
	})
}

// ShipExchangeReturn 买家寄回换货商品
// @Summary      寄回换货商品
// @Tags         换货单
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        id path int true "换货单ID"
// @Param        request body dto.ShipRequest true "快递信息"
// @Success      200 {object} response.Response{data=dto.ExchangeResponse}
// @Router       /exchanges/{id}/ship-return [post]
func (h *SubOrderHandler) ShipExchangeReturn(c *gin.Context) {
	var req dto.ShipRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		bindError(c, err)
		return
	}
	h.exchangeAction(c, func(id uint, actor aftersales.Actor) (*appaftersales.ExchangeResult, error) {
		return h.svc.ShipExchangeReturn(c.Request.Context(), id, req.CarrierCode, req.TrackingNo, actor)
	})
}

// ReceiveExchangeReturn 商家收到换货退回
// @Summary      收到换货退回商品
// @Tags         换货单
// @Produce      json
// @Security     BearerAuth
// @Param        id path int true "换货单ID"
// @Success      200 {object} response.Response{data=dto.ExchangeResponse}
// @Router       /admin/exchanges/{id}/receive-return [post]
func (h *SubOrderHandler) ReceiveExchangeReturn(c *gin.Context) {
	h.exchangeAction(c, func(id uint, actor aftersales.Actor) (*appaftersales.ExchangeResult, error) {
		return h.svc.ReceiveExchangeReturn(c.Request.Context(), id, actor)
	})
}

// ShipExchange 商家发出新商品
// @Summary      发出换货商品
// @Tags         换货单
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        id path int true "换货单ID"
// @Param        request body dto.ShipRequest true "快递信息"
// @Success      200 {object} response.Response{data=dto.ExchangeResponse}
// @Router       /admin/exchanges/{id}/ship [post]
func (h *SubOrderHandler) ShipExchange(c *gin.Context) {
	var req dto.ShipRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		bindError(c, err)
		return
	}
	h.exchangeAction(c, func(id uint, actor aftersales.Actor) (*appaftersales.ExchangeResult, error) {
		return h.svc.ShipExchange(c.Request.Context(), id, req.CarrierCode, req.TrackingNo, actor)
	})
}

// CompleteExchange 换货完成
// @Summary      完成换货
// @Tags         换货单
// @Produce      json
// @Security     BearerAuth
// @Param        id path int true "换货单ID"
// @Success      200 {object} response.Response{data=dto.ExchangeResponse}
// @Router       /exchanges/{id}/complete [post]
func (h *SubOrderHandler) CompleteExchange(c *gin.Context) {
	h.exchangeAction(c, func(id uint, actor aftersales.Actor) (*appaftersales.ExchangeResult, error) {
		return h.svc.CompleteExchange(c.Request.Context(), id, actor)
	})
}

func (h *SubOrderHandler) exchangeAction(c *gin.Context, fn func(id uint, actor aftersales.Actor) (*appaftersales.ExchangeResult, error)) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	res, err := fn(id, middleware.GetActor(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, dto.ToExchangeResponse(res))
}
