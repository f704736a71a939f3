package handler

import (
	"github.com/gin-gonic/gin"

	appaftersales "github.com/xiebiao/aftersales/internal/application/aftersales"
	"github.com/xiebiao/aftersales/internal/domain/aftersales"
	"github.com/xiebiao/aftersales/internal/interface/http/dto"
	"github.com/xiebiao/aftersales/internal/interface/http/middleware"
	"github.com/xiebiao/aftersales/pkg/response"
)

// AftersalesHandler 售后单HTTP处理器
// 买家和客服共用同一组路由，权限由应用层根据Actor判断
type AftersalesHandler struct {
	svc *appaftersales.Service
}

// NewAftersalesHandler 创建售后单处理器
func NewAftersalesHandler(svc *appaftersales.Service) *AftersalesHandler {
	return &AftersalesHandler{svc: svc}
}

// Calculate 可退金额试算
// @Summary      可退金额试算
// @Description  按订单明细计算可退数量和金额，不创建售后单；数量非法时返回字段级错误
// @Tags         售后
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        request body dto.CalculateRequest true "试算明细"
// @Success      200 {object} response.Response{data=aftersales.RefundCalculationResult}
// @Router       /aftersales/calculate [post]
func (h *AftersalesHandler) Calculate(c *gin.Context) {
	var req dto.CalculateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		bindError(c, err)
		return
	}
	result, err := h.svc.CalculateRefundInfo(c.Request.Context(), req.OrderID, req.CalcItems())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, result)
}

// Apply 提交售后申请
// @Summary      提交售后申请
// @Description  每个明细独立加锁、独立事务；部分明细失败时返回已创建的售后单和失败原因
// @Tags         售后
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        request body dto.ApplyRequest true "申请信息"
// @Success      200 {object} response.Response{data=dto.ApplyResponse}
// @Failure      200 {object} response.Response "40003 超出可退数量"
// @Router       /aftersales [post]
//
// 教学说明：防止重复退款
// 与下单防超卖同一个思路：SELECT ... FOR UPDATE 锁定订单明细行，
// 锁内重新汇总有效占用再计算可退数量，两个并发申请只有一个能成功。
func (h *AftersalesHandler) Apply(c *gin.Context) {
	var req dto.ApplyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		bindError(c, err)
		return
	}
	result, err := h.svc.Apply(c.Request.Context(), req.ToApp(), middleware.GetActor(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, dto.ToApplyResponse(result))
}

// List 售后单列表
// @Summary      售后单列表
// @Description  买家只能看到自己的售后单，客服可以按user_id过滤
// @Tags         售后
// @Produce      json
// @Security     BearerAuth
// @Param        page query int false "页码" default(1)
// @Param        page_size query int false "每页数量" default(20)
// @Param        order_id query string false "订单号"
// @Param        state query string false "状态"
// @Param        type query string false "类型"
// @Success      200 {object} response.Response{data=response.PageData{list=[]dto.CaseResponse}}
// @Router       /aftersales [get]
func (h *AftersalesHandler) List(c *gin.Context) {
	var req dto.ListRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		bindError(c, err)
		return
	}
	q := req.ToQuery()
	cases, total, err := h.svc.List(c.Request.Context(), q, middleware.GetActor(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	page, size := q.Page, q.PageSize
	if page <= 0 {
		page = 1
	}
	if size <= 0 || size > 100 {
		size = 20
	}
	response.SuccessWithPage(c, dto.ToCaseList(cases), total, page, size)
}

// Get 售后单详情
// @Summary      售后单详情
// @Tags         售后
// @Produce      json
// @Security     BearerAuth
// @Param        id path int true "售后单ID"
// @Success      200 {object} response.Response{data=dto.CaseDetailResponse}
// @Failure      200 {object} response.Response "40401 售后单不存在"
// @Router       /aftersales/{id} [get]
func (h *AftersalesHandler) Get(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	detail, err := h.svc.Get(c.Request.Context(), id, middleware.GetActor(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, dto.ToCaseDetailResponse(detail))
}

// Logs 操作日志
// @Summary      售后单操作日志
// @Tags         售后
// @Produce      json
// @Security     BearerAuth
// @Param        id path int true "售后单ID"
// @Success      200 {object} response.Response{data=[]dto.LogResponse}
// @Router       /aftersales/{id}/logs [get]
func (h *AftersalesHandler) Logs(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	logs, err := h.svc.Logs(c.Request.Context(), id, middleware.GetActor(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, dto.ToLogList(logs))
}

// Cancel 买家取消
// @Summary      取消售后
// @Tags         售后
// @Produce      json
// @Security     BearerAuth
// @Param        id path int true "售后单ID"
// @Success      200 {object} response.Response{data=dto.CaseResponse}
// @Failure      200 {object} response.Response "40001 当前状态不允许此操作"
// @Router       /aftersales/{id}/cancel [post]
func (h *AftersalesHandler) Cancel(c *gin.Context) {
	h.caseAction(c, func(id uint, actor aftersales.Actor) (*aftersales.Case, error) {
		return h.svc.Cancel(c.Request.Context(), id, actor)
	})
}

// Modify 被拒绝后修改并重新提交
// @Summary      修改售后申请
// @Description  仅REJECTED状态可修改，修改次数有上限；修改数量会重新校验可退数量
// @Tags         售后
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        id path int true "售后单ID"
// @Param        request body dto.ModifyRequest true "修改内容"
// @Success      200 {object} response.Response{data=dto.CaseResponse}
// @Router       /aftersales/{id} [put]
func (h *AftersalesHandler) Modify(c *gin.Context) {
	var req dto.ModifyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		bindError(c, err)
		return
	}
	h.caseAction(c, func(id uint, actor aftersales.Actor) (*aftersales.Case, error) {
		return h.svc.Modify(c.Request.Context(), id, req.ToApp(), actor)
	})
}

// Approve 审核通过
// @Summary      审核通过
// @Tags         售后-后台
// @Produce      json
// @Security     BearerAuth
// @Param        id path int true "售后单ID"
// @Success      200 {object} response.Response{data=dto.CaseResponse}
// @Router       /admin/aftersales/{id}/approve [post]
func (h *AftersalesHandler) Approve(c *gin.Context) {
	h.caseAction(c, func(id uint, actor aftersales.Actor) (*aftersales.Case, error) {
		return h.svc.Approve(c.Request.Context(), id, actor)
	})
}

// Reject 审核拒绝
// @Summary      审核拒绝
// @Tags         售后-后台
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        id path int true "售后单ID"
// @Param        request body dto.ReasonRequest true "拒绝原因"
// @Success      200 {object} response.Response{data=dto.CaseResponse}
// @Router       /admin/aftersales/{id}/reject [post]
func (h *AftersalesHandler) Reject(c *gin.Context) {
	var req dto.ReasonRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		bindError(c, err)
		return
	}
	h.caseAction(c, func(id uint, actor aftersales.Actor) (*aftersales.Case, error) {
		return h.svc.Reject(c.Request.Context(), id, req.Reason, actor)
	})
}

// Complete 手动完成
// @Summary      完成售后
// @Tags         售后-后台
// @Produce      json
// @Security     BearerAuth
// @Param        id path int true "售后单ID"
// @Success      200 {object} response.Response{data=dto.CaseResponse}
// @Router       /admin/aftersales/{id}/complete [post]
func (h *AftersalesHandler) Complete(c *gin.Context) {
	h.caseAction(c, func(id uint, actor aftersales.Actor) (*aftersales.Case, error) {
		return h.svc.Complete(c.Request.Context(), id, actor)
	})
}

// Close 关闭售后单
// @Summary      关闭售后单
// @Tags         售后-后台
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        id path int true "售后单ID"
// @Param        request body dto.NoteRequest false "关闭说明"
// @Success      200 {object} response.Response{data=dto.CaseResponse}
// @Router       /admin/aftersales/{id}/close [post]
func (h *AftersalesHandler) Close(c *gin.Context) {
	var req dto.NoteRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			bindError(c, err)
			return
		}
	}
	h.caseAction(c, func(id uint, actor aftersales.Actor) (*aftersales.Case, error) {
		return h.svc.Close(c.Request.Context(), id, req.Note, actor)
	})
}

// Advance 手动推进
// @Summary      手动推进到下一环节
// @Tags         售后-后台
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        id path int true "售后单ID"
// @Param        request body dto.AdvanceRequest true "推进操作"
// @Success      200 {object} response.Response{data=dto.CaseResponse}
// @Router       /admin/aftersales/{id}/advance [post]
func (h *AftersalesHandler) Advance(c *gin.Context) {
	var req dto.AdvanceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		bindError(c, err)
		return
	}
	h.caseAction(c, func(id uint, actor aftersales.Actor) (*aftersales.Case, error) {
		return h.svc.Advance(c.Request.Context(), id, aftersales.Action(req.Action), actor)
	})
}

// ModifyRefundAmount 客服调整退款金额
// @Summary      修改退款金额
// @Description  只能调低，不能超过申请时的退款金额；已完成的售后单不能修改
// @Tags         售后-后台
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        id path int true "售后单ID"
// @Param        request body dto.RefundAmountRequest true "新金额"
// @Success      200 {object} response.Response{data=dto.CaseResponse}
// @Router       /admin/aftersales/{id}/refund-amount [put]
func (h *AftersalesHandler) ModifyRefundAmount(c *gin.Context) {
	var req dto.RefundAmountRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		bindError(c, err)
		return
	}
	h.caseAction(c, func(id uint, actor aftersales.Actor) (*aftersales.Case, error) {
		return h.svc.ModifyRefundAmount(c.Request.Context(), id, req.Amount, req.Reason, actor)
	})
}

// caseAction 解析ID → 调用服务 → 返回售后单
func (h *AftersalesHandler) caseAction(c *gin.Context, fn func(id uint, actor aftersales.Actor) (*aftersales.Case, error)) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	cs, err := fn(id, middleware.GetActor(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, dto.ToCaseResponse(cs))
}
