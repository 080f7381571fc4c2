package service

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"estate_wizard_v1_202609/internal/api/dto"
	"estate_wizard_v1_202609/internal/model"
	"estate_wizard_v1_202609/internal/repository"
)

// ==================== 配置 ====================

const (
	// 合成进度条：按固定步长爬升，上传期间封顶在 100 以下
	rampStep    = 7
	rampCeiling = 90

	// DefaultRampInterval 合成进度步进间隔
	DefaultRampInterval = 300 * time.Millisecond

	// DefaultResetDelay 提交成功后到会话复位的缓冲，留给前端展示成功反馈
	DefaultResetDelay = 1500 * time.Millisecond
)

// SubmitConfig 提交流程配置
type SubmitConfig struct {
	RampInterval time.Duration
	ResetDelay   time.Duration
}

// ==================== SubmitService ====================

// SubmitService 发布提交流水线
// idle -> submitting -> (succeeded | failed)；失败后可由用户重新发起
type SubmitService struct {
	wizard   *WizardService
	storage  StorageProvider
	listings repository.ListingRepository
	cfg      SubmitConfig

	// 进度订阅管理
	subscribers     map[int64][]chan dto.ProgressEvent
	subscriberMutex sync.RWMutex

	// 入库失败后遗留的已上传URL，由清理任务兜底删除
	orphanMutex sync.Mutex
	orphanURLs  []string
}

// NewSubmitService 创建提交服务
func NewSubmitService(
	wizard *WizardService,
	storage StorageProvider,
	listings repository.ListingRepository,
	cfg SubmitConfig,
) *SubmitService {
	if cfg.RampInterval <= 0 {
		cfg.RampInterval = DefaultRampInterval
	}
	if cfg.ResetDelay <= 0 {
		cfg.ResetDelay = DefaultResetDelay
	}
	return &SubmitService{
		wizard:      wizard,
		storage:     storage,
		listings:    listings,
		cfg:         cfg,
		subscribers: make(map[int64][]chan dto.ProgressEvent),
	}
}

// ==================== 进度订阅 ====================

// Subscribe 订阅用户的提交进度
func (s *SubmitService) Subscribe(userID int64) chan dto.ProgressEvent {
	s.subscriberMutex.Lock()
	defer s.subscriberMutex.Unlock()

	ch := make(chan dto.ProgressEvent, 10)
	s.subscribers[userID] = append(s.subscribers[userID], ch)
	return ch
}

// Unsubscribe 取消订阅
func (s *SubmitService) Unsubscribe(userID int64, ch chan dto.ProgressEvent) {
	s.subscriberMutex.Lock()
	defer s.subscriberMutex.Unlock()

	subs := s.subscribers[userID]
	for i, sub := range subs {
		if sub == ch {
			s.subscribers[userID] = append(subs[:i], subs[i+1:]...)
			close(ch)
			break
		}
	}

	if len(s.subscribers[userID]) == 0 {
		delete(s.subscribers, userID)
	}
}

// notifyProgress 通知进度
func (s *SubmitService) notifyProgress(userID int64, event dto.ProgressEvent) {
	s.subscriberMutex.RLock()
	defer s.subscriberMutex.RUnlock()

	for _, ch := range s.subscribers[userID] {
		select {
		case ch <- event:
		default:
			// channel 已满，跳过
		}
	}
}

// ==================== 提交流程 ====================

// Submit 执行一次完整提交
// 图片按展示顺序逐张上传（绝不并发），任一失败整体中止，不产生半成品房源
func (s *SubmitService) Submit(ctx context.Context, sess *WizardSession) (*model.Listing, error) {
	// 1. 全量校验，不通过则不触达任何外部服务
	sess.mu.Lock()
	if sess.Status == model.SubmitStatusSubmitting {
		sess.mu.Unlock()
		return nil, fmt.Errorf("提交进行中，请勿重复操作")
	}

	snap := snapshotLocked(sess)
	errs := s.wizard.Validator().ValidateAll(&snap.Draft, len(snap.Images))
	if len(errs) > 0 {
		sess.Errors = errs
		sess.mu.Unlock()

		err := &ValidationError{Fields: errs}
		s.notifyProgress(snap.UserID, dto.ProgressEvent{
			UserID: snap.UserID, Stage: "failed", Message: err.Error(), Reason: ReasonValidation,
		})
		return nil, err
	}

	// 2. 进入提交状态
	sess.Status = model.SubmitStatusSubmitting
	sess.Progress = 0
	sess.mu.Unlock()

	s.notifyProgress(snap.UserID, dto.ProgressEvent{
		UserID: snap.UserID, Stage: "uploading", Progress: 0, Message: "开始上传图片",
	})

	// 合成进度条：周期递增，所有退出路径（成功/失败/panic）都必须停表
	stopRamp := s.startRamp(sess)
	defer stopRamp()

	listing, err := s.doSubmit(ctx, sess, snap)
	if err != nil {
		s.fail(sess, err)
		return nil, err
	}

	// 8. 成功收尾：进度置满、清除持久化草稿、延迟复位会话
	sess.mu.Lock()
	sess.Status = model.SubmitStatusSucceeded
	sess.Progress = 100
	sess.store.Clear()
	sess.mu.Unlock()

	s.notifyProgress(snap.UserID, dto.ProgressEvent{
		UserID: snap.UserID, Stage: "done", Progress: 100, Message: "发布成功",
	})

	time.AfterFunc(s.cfg.ResetDelay, func() {
		s.wizard.ResetSession(sess)
	})

	return listing, nil
}

// doSubmit 上传与入库主体
func (s *SubmitService) doSubmit(ctx context.Context, sess *WizardSession, snap SessionSnapshot) (*model.Listing, error) {
	// 3. 按展示顺序串行上传
	uploadedURLs := make([]string, 0, len(snap.Images))
	for _, asset := range snap.Images {
		url, err := s.storage.Upload(ctx, asset.Data, asset.Name, asset.ContentType)
		if err != nil {
			// 4. 单张失败整体中止，之前传上去的交给清理任务
			s.registerOrphans(uploadedURLs)
			return nil, &StorageError{AssetName: asset.Name, Err: err}
		}
		uploadedURLs = append(uploadedURLs, url)
	}

	// 5. 解析主图URL，指针异常时兜底取第一张
	mainURL := ""
	if len(uploadedURLs) > 0 {
		mainURL = uploadedURLs[0]
		if snap.MainIndex >= 0 && snap.MainIndex < len(uploadedURLs) {
			mainURL = uploadedURLs[snap.MainIndex]
		}
	}

	s.notifyProgress(snap.UserID, dto.ProgressEvent{
		UserID: snap.UserID, Stage: "saving", Progress: rampCeiling, Message: "正在创建房源记录",
	})

	// 6. 组装记录：字段一一对应；租赁押金为两倍月租；空调标记取自设施列表
	listing := buildListing(&snap.Draft, snap.UserID, uploadedURLs, mainURL)

	// 7. 入库失败不回滚已上传图片，登记给清理任务
	if err := s.listings.Insert(ctx, listing); err != nil {
		s.registerOrphans(uploadedURLs)
		return nil, &StoreError{Err: err}
	}

	return listing, nil
}

// buildListing 草稿到记录的固定映射
func buildListing(d *model.ListingDraft, userID int64, urls []string, mainURL string) *model.Listing {
	deposit := 0.0
	if d.PriceKind == model.PriceKindRent {
		deposit = d.Price * 2
	}

	return &model.Listing{
		UserID:       userID,
		Title:        d.Title,
		Description:  d.Description,
		Category:     d.Category,
		Bedrooms:     d.Bedrooms,
		Bathrooms:    d.Bathrooms,
		Area:         d.Area,
		City:         d.City,
		District:     d.District,
		Address:      d.Address,
		Price:        d.Price,
		PriceKind:    d.PriceKind,
		Deposit:      deposit,
		Amenities:    d.Amenities,
		HasAC:        d.Amenities.Contains(model.AmenityAirConditioning),
		ImageURLs:    model.StringSlice(urls),
		MainImageURL: mainURL,
		ContactName:  d.ContactName,
		ContactEmail: d.ContactEmail,
		ContactPhone: d.ContactPhone,
	}
}

// fail 失败收尾：状态 failed、进度清零，会话保持可编辑以便重试
func (s *SubmitService) fail(sess *WizardSession, err error) {
	sess.mu.Lock()
	sess.Status = model.SubmitStatusFailed
	sess.Progress = 0
	userID := sess.UserID
	sess.mu.Unlock()

	log.Printf("[Submit] 用户 %d 提交失败: %v", userID, err)
	s.notifyProgress(userID, dto.ProgressEvent{
		UserID: userID, Stage: "failed", Message: err.Error(), Reason: FailureReason(err),
	})
}

// startRamp 启动合成进度条，返回的函数幂等可重复调用
func (s *SubmitService) startRamp(sess *WizardSession) func() {
	ticker := time.NewTicker(s.cfg.RampInterval)
	done := make(chan struct{})

	go func() {
		for {
			select {
			case <-done:
				return
			case <-ticker.C:
				sess.mu.Lock()
				if sess.Status != model.SubmitStatusSubmitting {
					sess.mu.Unlock()
					continue
				}
				if sess.Progress+rampStep < rampCeiling {
					sess.Progress += rampStep
				} else {
					sess.Progress = rampCeiling
				}
				progress := sess.Progress
				userID := sess.UserID
				sess.mu.Unlock()

				s.notifyProgress(userID, dto.ProgressEvent{
					UserID: userID, Stage: "uploading", Progress: progress, Message: "图片上传中",
				})
			}
		}
	}()

	var once sync.Once
	return func() {
		once.Do(func() {
			ticker.Stop()
			close(done)
		})
	}
}

// ==================== 遗留文件清理 ====================

// registerOrphans 登记提交失败后遗留在对象存储里的URL
func (s *SubmitService) registerOrphans(urls []string) {
	if len(urls) == 0 {
		return
	}
	s.orphanMutex.Lock()
	s.orphanURLs = append(s.orphanURLs, urls...)
	s.orphanMutex.Unlock()
}

// TakeOrphans 取走并清空遗留URL列表（清理任务调用）
func (s *SubmitService) TakeOrphans() []string {
	s.orphanMutex.Lock()
	defer s.orphanMutex.Unlock()
	urls := s.orphanURLs
	s.orphanURLs = nil
	return urls
}
