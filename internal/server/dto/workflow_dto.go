package dto

import "github.com/azhengyongqin/taskflow/internal/model"

// WorkflowResponse 工作流状态响应
type WorkflowResponse struct {
	WorkflowID string                 `json:"workflow_id"`
	Status     string                 `json:"status" example:"running"`
	Summary    *model.WorkflowSummary `json:"summary"`
}

// WorkflowLevelsResponse 依赖层级响应。第 0 层无依赖，
// 第 n 层只依赖前 n-1 层，同层任务可并行。
type WorkflowLevelsResponse struct {
	Levels [][]string `json:"levels"`
}
