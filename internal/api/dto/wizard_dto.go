package dto

import "estate_wizard_v1_202609/internal/model"

// ==================== 请求 DTO ====================

// StartSessionRequest 开启会话请求
type StartSessionRequest struct {
	UserID int64 `json:"user_id" binding:"required"`
}

// UpdateFieldRequest 更新字段请求
type UpdateFieldRequest struct {
	Field string `json:"field" binding:"required"`
	Value string `json:"value"`
}

// GoToStepRequest 跳转步骤请求
type GoToStepRequest struct {
	Step int `json:"step" binding:"min=0,max=4"`
}

// SetMainImageRequest 设置主图请求
type SetMainImageRequest struct {
	Index int `json:"index" binding:"min=0"`
}

// MoveImageRequest 图片排序请求
type MoveImageRequest struct {
	From int `json:"from" binding:"min=0"`
	To   int `json:"to" binding:"min=0"`
}

// ==================== 响应 DTO ====================

// SessionView 会话视图对象
type SessionView struct {
	UserID     int64              `json:"user_id"`
	Step       int                `json:"step"`
	Draft      model.ListingDraft `json:"draft"`
	Errors     map[string]string  `json:"errors"`
	Images     []ImageView        `json:"images"`
	MainIndex  int                `json:"main_index"`
	Status     string             `json:"status"`
	Progress   int                `json:"progress"`
	CanProceed bool               `json:"can_proceed"`
}

// ImageView 图片视图对象
type ImageView struct {
	Seq           int    `json:"seq"`
	Name          string `json:"name"`
	ContentType   string `json:"content_type"`
	Size          int64  `json:"size"`
	PreviewHandle string `json:"preview_handle"`
}

// AddImagesResult 批量添加图片结果
type AddImagesResult struct {
	Accepted []ImageView     `json:"accepted"`
	Rejected []RejectedImage `json:"rejected"`
}

// RejectedImage 被拒绝的候选图片
type RejectedImage struct {
	Name   string `json:"name"`
	Reason string `json:"reason"`
}

// SubmitResult 提交结果
type SubmitResult struct {
	ListingID int64 `json:"listing_id"`
}

// ==================== 进度事件 ====================

// ProgressEvent SSE进度事件
type ProgressEvent struct {
	UserID   int64  `json:"user_id"`
	Stage    string `json:"stage"` // validating, uploading, saving, done, failed
	Progress int    `json:"progress"`
	Message  string `json:"message"`
	Reason   string `json:"reason,omitempty"`
}
