package task

import (
	"context"
	"fmt"
	"testing"
	"time"
)

// ==================== 测试桩 ====================

type stubExpirer struct {
	gotMaxIdle time.Duration
	expired    int
}

func (s *stubExpirer) ExpireIdle(maxIdle time.Duration) int {
	s.gotMaxIdle = maxIdle
	return s.expired
}

type stubOrphanSource struct {
	urls  []string
	taken int
}

func (s *stubOrphanSource) TakeOrphans() []string {
	s.taken++
	urls := s.urls
	s.urls = nil
	return urls
}

type stubStorage struct {
	deleted []string
	fail    map[string]bool
}

func (s *stubStorage) Delete(ctx context.Context, url string) error {
	if s.fail[url] {
		return fmt.Errorf("删除失败")
	}
	s.deleted = append(s.deleted, url)
	return nil
}

// ==================== 清理逻辑 ====================

func TestCleanupTask_ExpiresAndDeletesOrphans(t *testing.T) {
	expirer := &stubExpirer{expired: 2}
	orphans := &stubOrphanSource{urls: []string{
		"https://cdn.example.com/a.png",
		"https://cdn.example.com/b.png",
	}}
	storage := &stubStorage{}

	task := NewWizardCleanupTask(expirer, orphans, storage)
	task.SetMaxIdle(6 * time.Hour)
	task.execute(context.Background())

	if expirer.gotMaxIdle != 6*time.Hour {
		t.Errorf("maxIdle = %v, want 6h", expirer.gotMaxIdle)
	}
	if len(storage.deleted) != 2 {
		t.Fatalf("删除数 = %d, want 2", len(storage.deleted))
	}
	if storage.deleted[0] != "https://cdn.example.com/a.png" {
		t.Errorf("deleted[0] = %s", storage.deleted[0])
	}

	// 第二轮没有新遗留文件
	task.execute(context.Background())
	if len(storage.deleted) != 2 {
		t.Errorf("第二轮删除数 = %d, want 2", len(storage.deleted))
	}
	if orphans.taken != 2 {
		t.Errorf("TakeOrphans 调用次数 = %d, want 2", orphans.taken)
	}
}

func TestCleanupTask_DeleteFailureDoesNotAbort(t *testing.T) {
	orphans := &stubOrphanSource{urls: []string{"bad", "good"}}
	storage := &stubStorage{fail: map[string]bool{"bad": true}}

	task := NewWizardCleanupTask(&stubExpirer{}, orphans, storage)
	task.execute(context.Background())

	// 单个删除失败不影响其余文件
	if len(storage.deleted) != 1 || storage.deleted[0] != "good" {
		t.Errorf("deleted = %v, want [good]", storage.deleted)
	}
}

func TestCleanupTask_NilStorageSkipsOrphans(t *testing.T) {
	orphans := &stubOrphanSource{urls: []string{"x"}}

	task := NewWizardCleanupTask(&stubExpirer{}, orphans, nil)
	task.execute(context.Background())

	if orphans.taken != 0 {
		t.Error("未配置存储时不应该取遗留文件")
	}
}

func TestCleanupTask_StartStop(t *testing.T) {
	task := NewWizardCleanupTask(&stubExpirer{}, &stubOrphanSource{}, &stubStorage{})

	task.Start()
	task.Stop()
}
