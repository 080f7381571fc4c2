package task

import (
	"context"
	"log"
	"time"

	"github.com/robfig/cron/v3"
)

// ==================== 接口定义 ====================

// SessionExpirer 空闲会话回收接口
type SessionExpirer interface {
	ExpireIdle(maxIdle time.Duration) int
}

// OrphanSource 遗留上传文件来源
type OrphanSource interface {
	TakeOrphans() []string
}

// StorageProvider 存储接口
type StorageProvider interface {
	Delete(ctx context.Context, url string) error
}

// ==================== WizardCleanupTask 向导清理任务 ====================

// WizardCleanupTask 定时回收空闲向导会话，并兜底删除提交失败遗留的已上传图片
type WizardCleanupTask struct {
	sessions SessionExpirer
	orphans  OrphanSource
	storage  StorageProvider
	cron     *cron.Cron

	maxIdle time.Duration
}

// NewWizardCleanupTask 创建清理任务
func NewWizardCleanupTask(
	sessions SessionExpirer,
	orphans OrphanSource,
	storage StorageProvider,
) *WizardCleanupTask {
	return &WizardCleanupTask{
		sessions: sessions,
		orphans:  orphans,
		storage:  storage,
		cron:     cron.New(cron.WithSeconds()),
		maxIdle:  24 * time.Hour,
	}
}

// SetMaxIdle 设置会话空闲超时
func (t *WizardCleanupTask) SetMaxIdle(d time.Duration) {
	t.maxIdle = d
}

// Start 启动定时任务
func (t *WizardCleanupTask) Start() {
	// 每小时执行一次
	_, err := t.cron.AddFunc("0 0 * * * *", func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
		defer cancel()
		t.execute(ctx)
	})

	if err != nil {
		log.Fatalf("[WizardCleanupTask] 无法启动定时任务: %v", err)
	}

	t.cron.Start()
	log.Println("[WizardCleanupTask] 向导清理任务已启动 (每小时)")
}

// Stop 停止任务
func (t *WizardCleanupTask) Stop() {
	ctx := t.cron.Stop()
	<-ctx.Done()
	log.Println("[WizardCleanupTask] 已停止")
}

// execute 执行一次清理
func (t *WizardCleanupTask) execute(ctx context.Context) {
	// 1. 回收空闲会话
	if n := t.sessions.ExpireIdle(t.maxIdle); n > 0 {
		log.Printf("[WizardCleanupTask] 回收了 %d 个空闲会话", n)
	}

	// 2. 删除遗留的已上传图片
	if t.storage == nil || t.orphans == nil {
		return
	}

	urls := t.orphans.TakeOrphans()
	if len(urls) == 0 {
		return
	}

	log.Printf("[WizardCleanupTask] 发现 %d 个遗留文件", len(urls))
	for _, url := range urls {
		if err := t.storage.Delete(ctx, url); err != nil {
			log.Printf("[WizardCleanupTask] 删除遗留文件失败: %v", err)
		}
	}
}
