package service

import (
	"context"
	"fmt"
	"log"
	"strconv"
	"strings"
	"sync"
	"time"

	"estate_wizard_v1_202609/internal/model"
	"estate_wizard_v1_202609/internal/repository"
)

// ==================== 配置 ====================

// WizardConfig 发布向导配置
type WizardConfig struct {
	MaxImages     int
	MaxImageBytes int64
	SaveDebounce  time.Duration
}

// ==================== 会话 ====================

// WizardSession 单个用户的发布向导会话
// 所有修改经由 WizardService 的方法进入，内部互斥锁保证单写者
type WizardSession struct {
	mu sync.Mutex

	UserID   int64
	Step     int
	Draft    model.ListingDraft
	Images   *ImageCollection
	Errors   map[string]string
	Status   string
	Progress int

	store     *DraftStore
	touchedAt time.Time
}

func (s *WizardSession) touch() {
	s.touchedAt = time.Now()
}

// SessionSnapshot 会话快照（读取视图与提交流程用）
type SessionSnapshot struct {
	UserID    int64
	Step      int
	Draft     model.ListingDraft
	Images    []model.ImageAsset
	MainIndex int
	Errors    map[string]string
	Status    string
	Progress  int
}

// ==================== WizardService ====================

// WizardService 发布向导控制器
// 持有全部活动会话，是渲染层消费的唯一事实来源
type WizardService struct {
	cfg       WizardConfig
	kv        repository.KVStore
	profile   ProfileProvider
	validator *FieldValidator

	mu       sync.RWMutex
	sessions map[int64]*WizardSession
}

// NewWizardService 创建向导服务
func NewWizardService(cfg WizardConfig, kv repository.KVStore, profile ProfileProvider) *WizardService {
	if cfg.MaxImages <= 0 {
		cfg.MaxImages = DefaultMaxImages
	}
	if cfg.MaxImageBytes <= 0 {
		cfg.MaxImageBytes = DefaultMaxImageBytes
	}
	return &WizardService{
		cfg:       cfg,
		kv:        kv,
		profile:   profile,
		validator: NewFieldValidator(1, cfg.MaxImages),
		sessions:  make(map[int64]*WizardSession),
	}
}

// Validator 校验器（提交流程复用同一套规则）
func (w *WizardService) Validator() *FieldValidator {
	return w.validator
}

// ==================== 会话生命周期 ====================

// StartSession 开启（或恢复）用户的向导会话
// 恢复顺序：默认草稿 <- 持久化草稿 <- 资料预填（仅填充草稿留空的联系字段）
func (w *WizardService) StartSession(ctx context.Context, userID int64) *WizardSession {
	w.mu.Lock()
	if sess, ok := w.sessions[userID]; ok {
		w.mu.Unlock()
		return sess
	}
	w.mu.Unlock()

	store := NewDraftStore(w.kv, fmt.Sprintf("%s%d", DraftKeyPrefix, userID), w.cfg.SaveDebounce)

	draft := model.NewListingDraft()
	if persisted, ok := store.Load(); ok {
		draft = persisted
	}

	if w.profile != nil {
		profile, err := w.profile.GetProfile(ctx, userID)
		if err != nil {
			log.Printf("[Wizard] 用户 %d 资料预填失败: %v", userID, err)
		}
		if profile != nil {
			if draft.ContactName == "" {
				draft.ContactName = profile.Name
			}
			if draft.ContactEmail == "" {
				draft.ContactEmail = profile.Email
			}
			if draft.ContactPhone == "" {
				draft.ContactPhone = profile.Phone
			}
		}
	}

	sess := &WizardSession{
		UserID:    userID,
		Step:      model.StepGeneral,
		Draft:     draft,
		Images:    NewImageCollection(w.cfg.MaxImages, w.cfg.MaxImageBytes, nil),
		Errors:    make(map[string]string),
		Status:    model.SubmitStatusIdle,
		store:     store,
		touchedAt: time.Now(),
	}

	w.mu.Lock()
	// 双检，避免并发启动产生两个会话
	if existing, ok := w.sessions[userID]; ok {
		w.mu.Unlock()
		store.Close()
		return existing
	}
	w.sessions[userID] = sess
	w.mu.Unlock()

	return sess
}

// GetSession 查询活动会话
func (w *WizardService) GetSession(userID int64) (*WizardSession, bool) {
	w.mu.RLock()
	defer w.mu.RUnlock()
	sess, ok := w.sessions[userID]
	return sess, ok
}

// CloseSession 显式取消会话，释放资源（不清除持久化草稿）
func (w *WizardService) CloseSession(userID int64) {
	w.mu.Lock()
	sess, ok := w.sessions[userID]
	delete(w.sessions, userID)
	w.mu.Unlock()

	if !ok {
		return
	}

	sess.mu.Lock()
	sess.store.Flush()
	sess.store.Close()
	sess.Images.Reset()
	sess.mu.Unlock()
}

// ResetSession 提交成功后的整体复位：新草稿、回到第 0 步、清空图片
func (w *WizardService) ResetSession(sess *WizardSession) {
	sess.mu.Lock()
	defer sess.mu.Unlock()

	sess.Images.Reset()
	sess.Draft = model.NewListingDraft()
	sess.Step = model.StepGeneral
	sess.Errors = make(map[string]string)
	sess.Status = model.SubmitStatusIdle
	sess.Progress = 0
	sess.touch()
}

// ExpireIdle 回收空闲超时的会话，返回回收数量
// 提交中的会话不回收
func (w *WizardService) ExpireIdle(maxIdle time.Duration) int {
	deadline := time.Now().Add(-maxIdle)

	w.mu.Lock()
	var expired []*WizardSession
	for id, sess := range w.sessions {
		sess.mu.Lock()
		idle := sess.touchedAt.Before(deadline) && sess.Status != model.SubmitStatusSubmitting
		sess.mu.Unlock()
		if idle {
			expired = append(expired, sess)
			delete(w.sessions, id)
		}
	}
	w.mu.Unlock()

	for _, sess := range expired {
		sess.mu.Lock()
		sess.store.Flush()
		sess.store.Close()
		sess.Images.Reset()
		sess.mu.Unlock()
	}

	return len(expired)
}

// ==================== 字段更新 ====================

// UpdateField 写入单个字段并乐观清除其已有错误（不触发重新校验）
func (w *WizardService) UpdateField(sess *WizardSession, field, value string) error {
	sess.mu.Lock()
	defer sess.mu.Unlock()

	if !applyField(&sess.Draft, field, value) {
		return fmt.Errorf("未知字段: %s", field)
	}

	delete(sess.Errors, field)
	sess.store.Save(sess.Draft)
	sess.touch()
	return nil
}

// ValidateField 单字段失焦校验，返回错误信息（空串为通过）
func (w *WizardService) ValidateField(sess *WizardSession, field string) string {
	sess.mu.Lock()
	defer sess.mu.Unlock()

	msg := w.validator.ValidateField(field, &sess.Draft, sess.Images.Len())
	if msg == "" {
		delete(sess.Errors, field)
	} else {
		sess.Errors[field] = msg
	}
	return msg
}

// applyField 按字段名写入草稿
// 数值解析失败按 0 处理，交由校验器报错
func applyField(d *model.ListingDraft, field, value string) bool {
	switch field {
	case "title":
		d.Title = value
	case "description":
		d.Description = value
	case "category":
		d.Category = value
	case "bedrooms":
		d.Bedrooms = parseInt(value)
	case "bathrooms":
		d.Bathrooms = parseInt(value)
	case "area":
		d.Area = parseFloat(value)
	case "city":
		d.City = value
		// 区域依赖城市，切换城市后原区域失效
		d.District = ""
	case "district":
		d.District = value
	case "address":
		d.Address = value
	case "price":
		d.Price = parseFloat(value)
	case "price_kind":
		d.PriceKind = value
	case "amenities":
		d.Amenities = parseAmenities(value)
	case "contact_name":
		d.ContactName = value
	case "contact_email":
		d.ContactEmail = value
	case "contact_phone":
		d.ContactPhone = value
	default:
		return false
	}
	return true
}

func parseInt(value string) int {
	n, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil {
		return 0
	}
	return n
}

func parseFloat(value string) float64 {
	f, err := strconv.ParseFloat(strings.TrimSpace(value), 64)
	if err != nil {
		return 0
	}
	return f
}

// parseAmenities 解析逗号分隔的设施标记，过滤未知值
func parseAmenities(value string) model.StringSlice {
	result := model.StringSlice{}
	for _, token := range strings.Split(value, ",") {
		token = strings.TrimSpace(token)
		if token == "" || !model.IsValidAmenity(token) {
			continue
		}
		if !result.Contains(token) {
			result = append(result, token)
		}
	}
	return result
}

// ==================== 步骤流转 ====================

// NextStep 当前步骤校验通过才前进一步
func (w *WizardService) NextStep(sess *WizardSession) bool {
	sess.mu.Lock()
	defer sess.mu.Unlock()

	errs := w.validator.ValidateStep(sess.Step, &sess.Draft, sess.Images.Len())
	sess.Errors = errs
	if len(errs) > 0 {
		return false
	}
	if sess.Step >= model.StepReview {
		return false
	}

	sess.Step++
	sess.touch()
	return true
}

// PrevStep 回退一步，不做校验
func (w *WizardService) PrevStep(sess *WizardSession) {
	sess.mu.Lock()
	defer sess.mu.Unlock()

	if sess.Step > 0 {
		sess.Step--
		sess.touch()
	}
}

// GoToStep 直接跳转
// 向后跳（从预览回去改）无条件允许；向前跳要求目标之前的所有步骤都通过校验
func (w *WizardService) GoToStep(sess *WizardSession, step int) bool {
	if step < 0 || step >= model.StepCount {
		return false
	}

	sess.mu.Lock()
	defer sess.mu.Unlock()

	if step > sess.Step {
		for s := sess.Step; s < step; s++ {
			if errs := w.validator.ValidateStep(s, &sess.Draft, sess.Images.Len()); len(errs) > 0 {
				sess.Errors = errs
				return false
			}
		}
	}

	sess.Step = step
	sess.touch()
	return true
}

// CanProceed 当前步骤通过校验且不在最后一步
func (w *WizardService) CanProceed(sess *WizardSession) bool {
	sess.mu.Lock()
	defer sess.mu.Unlock()

	if sess.Step >= model.StepReview {
		return false
	}
	errs := w.validator.ValidateStep(sess.Step, &sess.Draft, sess.Images.Len())
	return len(errs) == 0
}

// ==================== 图片操作代理 ====================

// AddImages 添加候选图片
func (w *WizardService) AddImages(sess *WizardSession, candidates []ImageCandidate) ([]model.ImageAsset, []RejectedCandidate) {
	sess.mu.Lock()
	defer sess.mu.Unlock()

	accepted, rejected := sess.Images.Add(candidates)
	if len(accepted) > 0 {
		delete(sess.Errors, "images")
	}
	sess.touch()
	return accepted, rejected
}

// RemoveImage 移除图片
func (w *WizardService) RemoveImage(sess *WizardSession, index int) bool {
	sess.mu.Lock()
	defer sess.mu.Unlock()
	sess.touch()
	return sess.Images.RemoveAt(index)
}

// MoveImage 调整图片顺序
func (w *WizardService) MoveImage(sess *WizardSession, from, to int) bool {
	sess.mu.Lock()
	defer sess.mu.Unlock()
	sess.touch()
	return sess.Images.MoveTo(from, to)
}

// SetMainImage 设置主图
func (w *WizardService) SetMainImage(sess *WizardSession, index int) {
	sess.mu.Lock()
	defer sess.mu.Unlock()
	sess.Images.SetMain(index)
	sess.touch()
}

// ResolvePreview 按句柄取预览数据
func (w *WizardService) ResolvePreview(sess *WizardSession, handle string) ([]byte, bool) {
	sess.mu.Lock()
	defer sess.mu.Unlock()
	return sess.Images.Previews().Resolve(handle)
}

// ==================== 快照 ====================

// Snapshot 取会话的一致性快照
func (w *WizardService) Snapshot(sess *WizardSession) SessionSnapshot {
	sess.mu.Lock()
	defer sess.mu.Unlock()
	return snapshotLocked(sess)
}

// snapshotLocked 调用方需已持有 sess.mu
func snapshotLocked(sess *WizardSession) SessionSnapshot {
	images := make([]model.ImageAsset, len(sess.Images.Items()))
	copy(images, sess.Images.Items())

	errs := make(map[string]string, len(sess.Errors))
	for k, v := range sess.Errors {
		errs[k] = v
	}

	return SessionSnapshot{
		UserID:    sess.UserID,
		Step:      sess.Step,
		Draft:     sess.Draft,
		Images:    images,
		MainIndex: sess.Images.MainIndex(),
		Errors:    errs,
		Status:    sess.Status,
		Progress:  sess.Progress,
	}
}
