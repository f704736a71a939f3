package dto

import (
	"github.com/xiebiao/aftersales/internal/application/oms"
)

// OmsSyncResponse OMS同步结果
type OmsSyncResponse struct {
	Case    *CaseResponse `json:"case"`
	Created bool          `json:"created"`
	Changed []string      `json:"changed"`
}

// ToOmsSyncResponse 转换同步结果
func ToOmsSyncResponse(r *oms.SyncResult) *OmsSyncResponse {
	changed := r.Changed
	if changed == nil {
		changed = []string{}
	}
	return &OmsSyncResponse{Case: ToCaseResponse(r.Case), Created: r.Created, Changed: changed}
}

// OmsStatusResponse OMS状态更新结果
type OmsStatusResponse struct {
	Case     *CaseResponse `json:"case"`
	Previous string        `json:"previous" example:"PENDING_APPROVAL"`
	Current  string        `json:"current" example:"APPROVED"`
}

// ToOmsStatusResponse 转换状态更新结果
func ToOmsStatusResponse(r *oms.StatusResult) *OmsStatusResponse {
	return &OmsStatusResponse{
		Case:     ToCaseResponse(r.Case),
		Previous: string(r.Previous),
		Current:  string(r.Current),
	}
}
