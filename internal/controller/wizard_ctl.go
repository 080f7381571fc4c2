package controller

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"estate_wizard_v1_202609/internal/api/dto"
	"estate_wizard_v1_202609/internal/model"
	"estate_wizard_v1_202609/internal/service"
)

// ==================== 控制器 ====================

// WizardController 发布向导控制器
type WizardController struct {
	wizard *service.WizardService
	submit *service.SubmitService
}

func NewWizardController(wizard *service.WizardService, submit *service.SubmitService) *WizardController {
	return &WizardController{wizard: wizard, submit: submit}
}

// ==================== 会话 ====================

// StartSession 开启（或恢复）向导会话
// @Summary 开启发布向导会话
// @Tags Wizard
// @Accept json
// @Produce json
// @Param body body dto.StartSessionRequest true "开启请求"
// @Success 201 {object} dto.SessionView
// @Router /api/wizard/sessions [post]
func (ctrl *WizardController) StartSession(c *gin.Context) {
	var req dto.StartSessionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "参数错误: "+err.Error())
		return
	}

	sess := ctrl.wizard.StartSession(c.Request.Context(), req.UserID)
	created(c, ctrl.sessionView(sess))
}

// GetSession 查询会话状态
// @Summary 查询向导会话
// @Tags Wizard
// @Produce json
// @Param user_id path int true "用户ID"
// @Success 200 {object} dto.SessionView
// @Router /api/wizard/sessions/{user_id} [get]
func (ctrl *WizardController) GetSession(c *gin.Context) {
	sess, ok := ctrl.session(c)
	if !ok {
		return
	}
	ok200(c, ctrl.sessionView(sess))
}

// CloseSession 取消会话
// @Summary 取消向导会话
// @Tags Wizard
// @Param user_id path int true "用户ID"
// @Success 200
// @Router /api/wizard/sessions/{user_id} [delete]
func (ctrl *WizardController) CloseSession(c *gin.Context) {
	userID, ok := ctrl.userID(c)
	if !ok {
		return
	}
	ctrl.wizard.CloseSession(userID)
	ok200(c, nil)
}

// ==================== 字段与步骤 ====================

// UpdateField 更新单个字段
// @Summary 更新草稿字段
// @Tags Wizard
// @Accept json
// @Produce json
// @Param user_id path int true "用户ID"
// @Param body body dto.UpdateFieldRequest true "字段更新"
// @Success 200 {object} dto.SessionView
// @Router /api/wizard/sessions/{user_id}/fields [put]
func (ctrl *WizardController) UpdateField(c *gin.Context) {
	sess, ok := ctrl.session(c)
	if !ok {
		return
	}

	var req dto.UpdateFieldRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "参数错误: "+err.Error())
		return
	}

	if err := ctrl.wizard.UpdateField(sess, req.Field, req.Value); err != nil {
		badRequest(c, err.Error())
		return
	}
	ok200(c, ctrl.sessionView(sess))
}

// ValidateField 单字段失焦校验
// @Summary 校验单个字段
// @Tags Wizard
// @Produce json
// @Param user_id path int true "用户ID"
// @Param field query string true "字段名"
// @Router /api/wizard/sessions/{user_id}/fields/validate [get]
func (ctrl *WizardController) ValidateField(c *gin.Context) {
	sess, ok := ctrl.session(c)
	if !ok {
		return
	}

	field := c.Query("field")
	if field == "" {
		badRequest(c, "field 不能为空")
		return
	}

	msg := ctrl.wizard.ValidateField(sess, field)
	ok200(c, gin.H{"field": field, "message": msg, "valid": msg == ""})
}

// NextStep 前进一步
// @Summary 下一步（需当前步骤校验通过）
// @Tags Wizard
// @Produce json
// @Param user_id path int true "用户ID"
// @Success 200 {object} dto.SessionView
// @Router /api/wizard/sessions/{user_id}/next [post]
func (ctrl *WizardController) NextStep(c *gin.Context) {
	sess, ok := ctrl.session(c)
	if !ok {
		return
	}

	moved := ctrl.wizard.NextStep(sess)
	ok200(c, gin.H{"moved": moved, "session": ctrl.sessionView(sess)})
}

// PrevStep 回退一步
// @Summary 上一步
// @Tags Wizard
// @Produce json
// @Param user_id path int true "用户ID"
// @Success 200 {object} dto.SessionView
// @Router /api/wizard/sessions/{user_id}/prev [post]
func (ctrl *WizardController) PrevStep(c *gin.Context) {
	sess, ok := ctrl.session(c)
	if !ok {
		return
	}

	ctrl.wizard.PrevStep(sess)
	ok200(c, ctrl.sessionView(sess))
}

// GoToStep 跳转到指定步骤
// @Summary 跳转步骤（向前跳需前置步骤全部通过）
// @Tags Wizard
// @Accept json
// @Produce json
// @Param user_id path int true "用户ID"
// @Param body body dto.GoToStepRequest true "目标步骤"
// @Router /api/wizard/sessions/{user_id}/goto [post]
func (ctrl *WizardController) GoToStep(c *gin.Context) {
	sess, ok := ctrl.session(c)
	if !ok {
		return
	}

	var req dto.GoToStepRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "参数错误: "+err.Error())
		return
	}

	moved := ctrl.wizard.GoToStep(sess, req.Step)
	ok200(c, gin.H{"moved": moved, "session": ctrl.sessionView(sess)})
}

// ==================== 图片 ====================

// AddImages 批量添加图片（multipart 上传）
// @Summary 添加候选图片
// @Tags Wizard
// @Accept multipart/form-data
// @Produce json
// @Param user_id path int true "用户ID"
// @Param images formData file true "图片文件"
// @Success 200 {object} dto.AddImagesResult
// @Router /api/wizard/sessions/{user_id}/images [post]
func (ctrl *WizardController) AddImages(c *gin.Context) {
	sess, ok := ctrl.session(c)
	if !ok {
		return
	}

	form, err := c.MultipartForm()
	if err != nil {
		badRequest(c, "解析上传表单失败: "+err.Error())
		return
	}

	files := form.File["images"]
	if len(files) == 0 {
		badRequest(c, "未选择任何图片")
		return
	}

	candidates := make([]service.ImageCandidate, 0, len(files))
	for _, fh := range files {
		f, err := fh.Open()
		if err != nil {
			badRequest(c, "读取上传文件失败: "+err.Error())
			return
		}
		data, err := io.ReadAll(f)
		f.Close()
		if err != nil {
			badRequest(c, "读取上传文件失败: "+err.Error())
			return
		}

		// octet-stream 视同未声明，交给集合管理器嗅探
		contentType := fh.Header.Get("Content-Type")
		if contentType == "application/octet-stream" {
			contentType = ""
		}

		candidates = append(candidates, service.ImageCandidate{
			Name:        fh.Filename,
			ContentType: contentType,
			Data:        data,
		})
	}

	accepted, rejected := ctrl.wizard.AddImages(sess, candidates)

	result := dto.AddImagesResult{
		Accepted: make([]dto.ImageView, 0, len(accepted)),
		Rejected: make([]dto.RejectedImage, 0, len(rejected)),
	}
	for _, a := range accepted {
		result.Accepted = append(result.Accepted, imageView(a))
	}
	for _, r := range rejected {
		result.Rejected = append(result.Rejected, dto.RejectedImage{Name: r.Name, Reason: r.Reason})
	}
	ok200(c, result)
}

// RemoveImage 移除图片
// @Summary 移除指定位置的图片
// @Tags Wizard
// @Param user_id path int true "用户ID"
// @Param index path int true "图片位置"
// @Router /api/wizard/sessions/{user_id}/images/{index} [delete]
func (ctrl *WizardController) RemoveImage(c *gin.Context) {
	sess, ok := ctrl.session(c)
	if !ok {
		return
	}

	index, err := strconv.Atoi(c.Param("index"))
	if err != nil {
		badRequest(c, "无效的图片位置")
		return
	}

	if !ctrl.wizard.RemoveImage(sess, index) {
		badRequest(c, "图片位置越界")
		return
	}
	ok200(c, ctrl.sessionView(sess))
}

// MoveImage 调整图片顺序
// @Summary 调整图片展示顺序
// @Tags Wizard
// @Accept json
// @Param user_id path int true "用户ID"
// @Param body body dto.MoveImageRequest true "移动请求"
// @Router /api/wizard/sessions/{user_id}/images/move [post]
func (ctrl *WizardController) MoveImage(c *gin.Context) {
	sess, ok := ctrl.session(c)
	if !ok {
		return
	}

	var req dto.MoveImageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "参数错误: "+err.Error())
		return
	}

	moved := ctrl.wizard.MoveImage(sess, req.From, req.To)
	ok200(c, gin.H{"moved": moved, "session": ctrl.sessionView(sess)})
}

// SetMainImage 设置主图
// @Summary 设置主图
// @Tags Wizard
// @Accept json
// @Param user_id path int true "用户ID"
// @Param body body dto.SetMainImageRequest true "主图位置"
// @Router /api/wizard/sessions/{user_id}/images/main [post]
func (ctrl *WizardController) SetMainImage(c *gin.Context) {
	sess, ok := ctrl.session(c)
	if !ok {
		return
	}

	var req dto.SetMainImageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "参数错误: "+err.Error())
		return
	}

	ctrl.wizard.SetMainImage(sess, req.Index)
	ok200(c, ctrl.sessionView(sess))
}

// GetPreview 按句柄取图片预览
// @Summary 获取图片预览
// @Tags Wizard
// @Param user_id path int true "用户ID"
// @Param handle path string true "预览句柄"
// @Produce octet-stream
// @Router /api/wizard/sessions/{user_id}/previews/{handle} [get]
func (ctrl *WizardController) GetPreview(c *gin.Context) {
	sess, ok := ctrl.session(c)
	if !ok {
		return
	}

	data, found := ctrl.wizard.ResolvePreview(sess, c.Param("handle"))
	if !found {
		c.JSON(http.StatusNotFound, gin.H{"code": 404, "message": "预览不存在或已释放"})
		return
	}

	c.Data(http.StatusOK, http.DetectContentType(data), data)
}

// ==================== 提交 ====================

// Submit 发起提交
// @Summary 提交发布
// @Tags Wizard
// @Produce json
// @Param user_id path int true "用户ID"
// @Success 202
// @Router /api/wizard/sessions/{user_id}/submit [post]
func (ctrl *WizardController) Submit(c *gin.Context) {
	sess, ok := ctrl.session(c)
	if !ok {
		return
	}

	// 提交是长耗时操作，异步执行，进度走 SSE
	// 不挂在请求上下文：响应返回后上传仍在进行
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
		defer cancel()
		if _, err := ctrl.submit.Submit(ctx, sess); err != nil {
			// 失败详情已经通过进度事件推送
			return
		}
	}()

	c.JSON(http.StatusAccepted, gin.H{
		"code":    0,
		"message": "提交已受理",
	})
}

// StreamProgress SSE 订阅提交进度
// @Summary SSE 实时推送提交进度
// @Tags Wizard
// @Param user_id path int true "用户ID"
// @Produce text/event-stream
// @Router /api/wizard/sessions/{user_id}/progress [get]
func (ctrl *WizardController) StreamProgress(c *gin.Context) {
	userID, ok := ctrl.userID(c)
	if !ok {
		return
	}

	// 设置 SSE 响应头
	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")

	progressCh := ctrl.submit.Subscribe(userID)
	defer ctrl.submit.Unsubscribe(userID, progressCh)

	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	clientGone := c.Request.Context().Done()

	for {
		select {
		case <-clientGone:
			return
		case <-ticker.C:
			// 心跳
			c.SSEvent("heartbeat", gin.H{"time": time.Now().Unix()})
			c.Writer.Flush()
		case event, ok := <-progressCh:
			if !ok {
				return
			}
			data, _ := json.Marshal(event)
			c.SSEvent("progress", string(data))
			c.Writer.Flush()

			if event.Stage == "done" || event.Stage == "failed" {
				return
			}
		}
	}
}

// ==================== 辅助方法 ====================

func (ctrl *WizardController) userID(c *gin.Context) (int64, bool) {
	userID, err := strconv.ParseInt(c.Param("user_id"), 10, 64)
	if err != nil || userID <= 0 {
		badRequest(c, "无效的用户ID")
		return 0, false
	}
	return userID, true
}

func (ctrl *WizardController) session(c *gin.Context) (*service.WizardSession, bool) {
	userID, ok := ctrl.userID(c)
	if !ok {
		return nil, false
	}

	sess, found := ctrl.wizard.GetSession(userID)
	if !found {
		c.JSON(http.StatusNotFound, gin.H{"code": 404, "message": "会话不存在，请先开启会话"})
		return nil, false
	}
	return sess, true
}

func (ctrl *WizardController) sessionView(sess *service.WizardSession) dto.SessionView {
	snap := ctrl.wizard.Snapshot(sess)

	images := make([]dto.ImageView, 0, len(snap.Images))
	for _, a := range snap.Images {
		images = append(images, imageView(a))
	}

	return dto.SessionView{
		UserID:     snap.UserID,
		Step:       snap.Step,
		Draft:      snap.Draft,
		Errors:     snap.Errors,
		Images:     images,
		MainIndex:  snap.MainIndex,
		Status:     snap.Status,
		Progress:   snap.Progress,
		CanProceed: ctrl.wizard.CanProceed(sess),
	}
}

func imageView(a model.ImageAsset) dto.ImageView {
	return dto.ImageView{
		Seq:           a.Seq,
		Name:          a.Name,
		ContentType:   a.ContentType,
		Size:          a.Size,
		PreviewHandle: a.PreviewHandle,
	}
}

func badRequest(c *gin.Context, msg string) {
	c.JSON(http.StatusBadRequest, gin.H{"code": 400, "message": msg})
}

func ok200(c *gin.Context, data interface{}) {
	c.JSON(http.StatusOK, gin.H{"code": 0, "message": "success", "data": data})
}

func created(c *gin.Context, data interface{}) {
	c.JSON(http.StatusCreated, gin.H{"code": 0, "message": "success", "data": data})
}
