package handler

import (
	"github.com/gin-gonic/gin"

	appaftersales "github.com/xiebiao/aftersales/internal/application/aftersales"
	"github.com/xiebiao/aftersales/internal/interface/http/dto"
	"github.com/xiebiao/aftersales/pkg/response"
)

// JobHandler 后台任务手动触发
type JobHandler struct {
	timeouts *appaftersales.TimeoutProcessor
	batch    int
}

// NewJobHandler 创建任务处理器，batch为默认批大小
func NewJobHandler(timeouts *appaftersales.TimeoutProcessor, batch int) *JobHandler {
	return &JobHandler{timeouts: timeouts, batch: batch}
}

// RunTimeouts 手动执行超时扫描
// @Summary      执行超时扫描
// @Description  dry_run=true时只预演，不写库
// @Tags         后台任务
// @Produce      json
// @Security     BearerAuth
// @Param        batch_size query int false "批大小"
// @Param        dry_run query bool false "预演"
// @Success      200 {object} response.Response{data=appaftersales.TimeoutResult}
// @Router       /admin/jobs/timeouts [post]
func (h *JobHandler) RunTimeouts(c *gin.Context) {
	var req dto.TimeoutJobRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		bindError(c, err)
		return
	}
	batch := req.BatchSize
	if batch == 0 {
		batch = h.batch
	}
	result, err := h.timeouts.ProcessTimeouts(c.Request.Context(), batch, req.DryRun)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, result)
}
