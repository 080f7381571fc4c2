package service

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"estate_wizard_v1_202609/internal/api/dto"
	"estate_wizard_v1_202609/internal/model"
	"estate_wizard_v1_202609/internal/repository"
)

// mockStorage 记录上传顺序并检测并发的对象存储桩
type mockStorage struct {
	upload func(ctx context.Context, data []byte, filename, contentType string) (string, error)

	uploads  []string
	inflight int32
	overlap  bool
}

func (m *mockStorage) Upload(ctx context.Context, data []byte, filename, contentType string) (string, error) {
	if atomic.AddInt32(&m.inflight, 1) > 1 {
		m.overlap = true
	}
	defer atomic.AddInt32(&m.inflight, -1)

	if m.upload != nil {
		url, err := m.upload(ctx, data, filename, contentType)
		if err != nil {
			return "", err
		}
		m.uploads = append(m.uploads, filename)
		return url, nil
	}
	m.uploads = append(m.uploads, filename)
	return "https://cdn.example.com/" + filename, nil
}

func (m *mockStorage) Delete(ctx context.Context, url string) error {
	return nil
}

// mockListingRepo 函数字段式房源仓储桩
type mockListingRepo struct {
	insert   func(ctx context.Context, listing *model.Listing) error
	inserted []*model.Listing
}

func (m *mockListingRepo) Insert(ctx context.Context, listing *model.Listing) error {
	if m.insert != nil {
		if err := m.insert(ctx, listing); err != nil {
			return err
		}
	}
	m.inserted = append(m.inserted, listing)
	return nil
}

func (m *mockListingRepo) GetByID(ctx context.Context, id int64) (*model.Listing, error) {
	return nil, errors.New("未实现")
}

func (m *mockListingRepo) List(ctx context.Context, filter repository.ListingFilter) ([]model.Listing, int64, error) {
	return nil, 0, errors.New("未实现")
}

// newSubmitFixture 组装一套可提交的会话与服务
func newSubmitFixture(t *testing.T) (*SubmitService, *WizardService, *WizardSession, *mockStorage, *mockListingRepo) {
	t.Helper()

	wizard := newTestWizard(nil, nil)
	sess := wizard.StartSession(context.Background(), 9)
	sess.Draft = validDraft()

	storage := &mockStorage{}
	repo := &mockListingRepo{}
	submit := NewSubmitService(wizard, storage, repo, SubmitConfig{
		RampInterval: 20 * time.Millisecond,
		ResetDelay:   50 * time.Millisecond,
	})
	return submit, wizard, sess, storage, repo
}

// ==================== 校验前置 ====================

func TestSubmit_ValidationFailureTouchesNothing(t *testing.T) {
	submit, _, sess, storage, repo := newSubmitFixture(t)
	sess.Draft.Title = "" // 破坏第一步

	_, err := submit.Submit(context.Background(), sess)

	var verr *ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("err = %v, want *ValidationError", err)
	}
	// 不触达任何外部服务
	if len(storage.uploads) != 0 {
		t.Errorf("上传次数 = %d, want 0", len(storage.uploads))
	}
	if len(repo.inserted) != 0 {
		t.Errorf("入库次数 = %d, want 0", len(repo.inserted))
	}
	// 状态不进入 submitting
	if sess.Status != model.SubmitStatusIdle {
		t.Errorf("Status = %s, want %s", sess.Status, model.SubmitStatusIdle)
	}
	// 错误写回会话供预览页展示
	if _, ok := sess.Errors["title"]; !ok {
		t.Error("Errors 应该记录 title")
	}
}

func TestSubmit_MissingImagesFailsValidation(t *testing.T) {
	submit, _, sess, _, _ := newSubmitFixture(t)
	// 草稿有效但没有图片

	_, err := submit.Submit(context.Background(), sess)

	var verr *ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("err = %v, want *ValidationError", err)
	}
	if _, ok := verr.Fields["images"]; !ok {
		t.Errorf("Fields = %v, 应该包含 images", verr.Fields)
	}
}

// ==================== 上传顺序与中止 ====================

func TestSubmit_UploadsSequentialInDisplayOrder(t *testing.T) {
	submit, wizard, sess, storage, repo := newSubmitFixture(t)
	addN(t, sess.Images, "one.png", "two.png", "three.png")

	// 调整展示顺序后上传应该跟随新顺序
	wizard.MoveImage(sess, 2, 0)

	listing, err := submit.Submit(context.Background(), sess)
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}

	want := []string{"three.png", "one.png", "two.png"}
	if len(storage.uploads) != len(want) {
		t.Fatalf("上传次数 = %d, want %d", len(storage.uploads), len(want))
	}
	for i, name := range want {
		if storage.uploads[i] != name {
			t.Errorf("uploads[%d] = %s, want %s", i, storage.uploads[i], name)
		}
	}
	if storage.overlap {
		t.Error("上传不允许并发")
	}
	if len(listing.ImageURLs) != 3 || listing.ImageURLs[0] != "https://cdn.example.com/three.png" {
		t.Errorf("ImageURLs = %v", listing.ImageURLs)
	}
	if len(repo.inserted) != 1 {
		t.Errorf("入库次数 = %d, want 1", len(repo.inserted))
	}
}

func TestSubmit_AbortsOnUploadFailure(t *testing.T) {
	submit, _, sess, storage, repo := newSubmitFixture(t)
	addN(t, sess.Images, "one.png", "two.png", "three.png")

	storage.upload = func(ctx context.Context, data []byte, filename, contentType string) (string, error) {
		if filename == "two.png" {
			return "", fmt.Errorf("网络中断")
		}
		return "https://cdn.example.com/" + filename, nil
	}

	_, err := submit.Submit(context.Background(), sess)

	var serr *StorageError
	if !errors.As(err, &serr) {
		t.Fatalf("err = %v, want *StorageError", err)
	}
	if serr.AssetName != "two.png" {
		t.Errorf("AssetName = %s, want two.png", serr.AssetName)
	}
	// 第二张失败后第三张不再上传
	if len(storage.uploads) != 1 {
		t.Errorf("成功上传次数 = %d, want 1", len(storage.uploads))
	}
	if len(repo.inserted) != 0 {
		t.Errorf("入库次数 = %d, want 0", len(repo.inserted))
	}
	if sess.Status != model.SubmitStatusFailed {
		t.Errorf("Status = %s, want %s", sess.Status, model.SubmitStatusFailed)
	}
	if sess.Progress != 0 {
		t.Errorf("Progress = %d, want 0", sess.Progress)
	}
	// 已上传的那张登记为遗留文件
	orphans := submit.TakeOrphans()
	if len(orphans) != 1 || orphans[0] != "https://cdn.example.com/one.png" {
		t.Errorf("orphans = %v", orphans)
	}
}

func TestSubmit_StoreFailureKeepsUploads(t *testing.T) {
	submit, _, sess, _, repo := newSubmitFixture(t)
	addN(t, sess.Images, "one.png", "two.png")

	repo.insert = func(ctx context.Context, listing *model.Listing) error {
		return fmt.Errorf("数据库不可用")
	}

	_, err := submit.Submit(context.Background(), sess)

	var serr *StoreError
	if !errors.As(err, &serr) {
		t.Fatalf("err = %v, want *StoreError", err)
	}
	if sess.Status != model.SubmitStatusFailed {
		t.Errorf("Status = %s, want %s", sess.Status, model.SubmitStatusFailed)
	}
	// 入库失败不回滚图片，全部交给清理任务
	orphans := submit.TakeOrphans()
	if len(orphans) != 2 {
		t.Errorf("len(orphans) = %d, want 2", len(orphans))
	}
	if FailureReason(err) != ReasonStore {
		t.Errorf("FailureReason = %s, want %s", FailureReason(err), ReasonStore)
	}
}

// ==================== 成功收尾 ====================

func TestSubmit_SuccessEndToEnd(t *testing.T) {
	submit, wizard, sess, _, repo := newSubmitFixture(t)
	sess.Draft.Amenities = model.StringSlice{model.AmenityParking, model.AmenityAirConditioning}
	addN(t, sess.Images, "cover.png", "room.png")
	wizard.SetMainImage(sess, 1)

	listing, err := submit.Submit(context.Background(), sess)
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}

	// 固定映射：租赁押金为两倍月租，空调标记取自设施
	if listing.Price != 450 {
		t.Errorf("Price = %v, want 450", listing.Price)
	}
	if listing.Deposit != 900 {
		t.Errorf("Deposit = %v, want 900", listing.Deposit)
	}
	if !listing.HasAC {
		t.Error("HasAC 应该为 true")
	}
	if listing.MainImageURL != "https://cdn.example.com/room.png" {
		t.Errorf("MainImageURL = %s", listing.MainImageURL)
	}
	if listing.UserID != 9 {
		t.Errorf("UserID = %d, want 9", listing.UserID)
	}
	if len(repo.inserted) != 1 || repo.inserted[0] != listing {
		t.Errorf("入库记录 = %v", repo.inserted)
	}

	if sess.Status != model.SubmitStatusSucceeded {
		t.Errorf("Status = %s, want %s", sess.Status, model.SubmitStatusSucceeded)
	}
	if sess.Progress != 100 {
		t.Errorf("Progress = %d, want 100", sess.Progress)
	}

	// 持久化草稿已清除
	sessStore := sess.store
	if _, ok := sessStore.Load(); ok {
		t.Error("成功后持久化草稿应该被清除")
	}

	// 延迟复位：新草稿、回到第 0 步、清空图片
	time.Sleep(150 * time.Millisecond)
	if sess.Step != model.StepGeneral {
		t.Errorf("复位后 Step = %d, want %d", sess.Step, model.StepGeneral)
	}
	if sess.Draft.Title != "" {
		t.Errorf("复位后 Title = %s, want 空", sess.Draft.Title)
	}
	if sess.Images.Len() != 0 {
		t.Errorf("复位后图片数 = %d, want 0", sess.Images.Len())
	}
	if sess.Status != model.SubmitStatusIdle {
		t.Errorf("复位后 Status = %s, want %s", sess.Status, model.SubmitStatusIdle)
	}
}

func TestSubmit_SaleHasNoDeposit(t *testing.T) {
	submit, _, sess, _, _ := newSubmitFixture(t)
	sess.Draft.PriceKind = model.PriceKindSale
	sess.Draft.Price = 120000
	addN(t, sess.Images, "cover.png")

	listing, err := submit.Submit(context.Background(), sess)
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if listing.Deposit != 0 {
		t.Errorf("Deposit = %v, want 0", listing.Deposit)
	}
}

func TestSubmit_RejectsWhileSubmitting(t *testing.T) {
	submit, _, sess, _, _ := newSubmitFixture(t)
	addN(t, sess.Images, "cover.png")
	sess.Status = model.SubmitStatusSubmitting

	if _, err := submit.Submit(context.Background(), sess); err == nil {
		t.Error("提交中的会话应该拒绝再次提交")
	}
}

// ==================== 合成进度与事件 ====================

func TestSubmit_ProgressRampAndEvents(t *testing.T) {
	submit, wizard, sess, storage, _ := newSubmitFixture(t)
	addN(t, sess.Images, "cover.png")

	// 拖慢上传，给进度条留出若干个步进周期
	storage.upload = func(ctx context.Context, data []byte, filename, contentType string) (string, error) {
		time.Sleep(120 * time.Millisecond)
		return "https://cdn.example.com/" + filename, nil
	}

	ch := submit.Subscribe(sess.UserID)
	defer submit.Unsubscribe(sess.UserID, ch)

	if _, err := submit.Submit(context.Background(), sess); err != nil {
		t.Fatalf("Submit: %v", err)
	}

	sawRamp := false
	sawDone := false
	timeout := time.After(time.Second)
	for !sawDone {
		select {
		case ev := <-ch:
			switch ev.Stage {
			case "uploading":
				if ev.Progress > 0 && ev.Progress <= 90 {
					sawRamp = true
				}
				if ev.Progress > 90 {
					t.Errorf("上传期进度 = %d, 不应该超过 90", ev.Progress)
				}
			case "done":
				if ev.Progress != 100 {
					t.Errorf("完成事件进度 = %d, want 100", ev.Progress)
				}
				sawDone = true
			}
		case <-timeout:
			t.Fatal("等待 done 事件超时")
		}
	}
	if !sawRamp {
		t.Error("应该观察到上传期的合成进度事件")
	}

	// 停表后进度不再爬升
	final := wizard.Snapshot(sess).Progress
	time.Sleep(80 * time.Millisecond)
	if got := wizard.Snapshot(sess).Progress; got > final {
		t.Errorf("Progress 从 %d 涨到 %d, 停表失效", final, got)
	}
}

func TestSubmit_SubscribeUnsubscribe(t *testing.T) {
	submit, _, _, _, _ := newSubmitFixture(t)

	ch := submit.Subscribe(5)
	submit.notifyProgress(5, dto.ProgressEvent{UserID: 5, Stage: "uploading", Progress: 7})

	select {
	case ev := <-ch:
		if ev.Progress != 7 {
			t.Errorf("Progress = %d, want 7", ev.Progress)
		}
	default:
		t.Fatal("订阅者应该收到事件")
	}

	submit.Unsubscribe(5, ch)
	if _, open := <-ch; open {
		t.Error("取消订阅后 channel 应该关闭")
	}
}
