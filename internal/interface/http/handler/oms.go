package handler

import (
	"github.com/gin-gonic/gin"

	"github.com/xiebiao/aftersales/internal/application/oms"
	"github.com/xiebiao/aftersales/internal/interface/http/dto"
	"github.com/xiebiao/aftersales/pkg/response"
)

// OmsHandler OMS推送接口
// 路由挂在OMSGuard之后，IP白名单 + API Key
type OmsHandler struct {
	reconciler *oms.Reconciler
}

// NewOmsHandler 创建OMS处理器
func NewOmsHandler(reconciler *oms.Reconciler) *OmsHandler {
	return &OmsHandler{reconciler: reconciler}
}

// Create OMS创建售后单
// @Summary      OMS创建售后单
// @Description  单号已存在返回40009
// @Tags         OMS
// @Accept       json
// @Produce      json
// @Param        X-API-Key header string false "OMS接口密钥"
// @Param        request body oms.Payload true "OMS售后单"
// @Success      200 {object} response.Response{data=dto.CaseResponse}
// @Router       /oms/aftersales [post]
func (h *OmsHandler) Create(c *gin.Context) {
	var p oms.Payload
	if err := c.ShouldBindJSON(&p); err != nil {
		bindError(c, err)
		return
	}
	cs, err := h.reconciler.CreateFromOms(c.Request.Context(), &p)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, dto.ToCaseResponse(cs))
}

// Sync OMS全量同步(不存在则创建)
// @Summary      OMS全量同步
// @Description  幂等：相同数据重复推送changed为空
// @Tags         OMS
// @Accept       json
// @Produce      json
// @Param        X-API-Key header string false "OMS接口密钥"
// @Param        request body oms.Payload true "OMS售后单"
// @Success      200 {object} response.Response{data=dto.OmsSyncResponse}
// @Router       /oms/aftersales/sync [post]
func (h *OmsHandler) Sync(c *gin.Context) {
	var p oms.Payload
	if err := c.ShouldBindJSON(&p); err != nil {
		bindError(c, err)
		return
	}
	res, err := h.reconciler.SyncFromOms(c.Request.Context(), &p)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, dto.ToOmsSyncResponse(res))
}

// UpdateInfo OMS部分更新
// @Summary      OMS更新售后信息
// @Tags         OMS
// @Accept       json
// @Produce      json
// @Param        X-API-Key header string false "OMS接口密钥"
// @Param        request body oms.InfoPatch true "更新字段"
// @Success      200 {object} response.Response{data=dto.OmsSyncResponse}
// @Router       /oms/aftersales/info [put]
func (h *OmsHandler) UpdateInfo(c *gin.Context) {
	var p oms.InfoPatch
	if err := c.ShouldBindJSON(&p); err != nil {
		bindError(c, err)
		return
	}
	res, err := h.reconciler.UpdateInfoFromOms(c.Request.Context(), &p)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, dto.ToOmsSyncResponse(res))
}

// UpdateStatus OMS状态覆盖
// @Summary      OMS更新售后状态
// @Description  未知状态返回40004
// @Tags         OMS
// @Accept       json
// @Produce      json
// @Param        X-API-Key header string false "OMS接口密钥"
// @Param        request body oms.StatusUpdate true "状态"
// @Success      200 {object} response.Response{data=dto.OmsStatusResponse}
// @Router       /oms/aftersales/status [put]
func (h *OmsHandler) UpdateStatus(c *gin.Context) {
	var u oms.StatusUpdate
	if err := c.ShouldBindJSON(&u); err != nil {
		bindError(c, err)
		return
	}
	res, err := h.reconciler.UpdateStatusFromOms(c.Request.Context(), &u)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, dto.ToOmsStatusResponse(res))
}
