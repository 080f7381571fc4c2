package service

import (
	"encoding/json"
	"log"
	"sync"
	"time"

	"estate_wizard_v1_202609/internal/model"
	"estate_wizard_v1_202609/internal/repository"
)

// ==================== 常量 ====================

const (
	// DraftKeyPrefix 草稿快照存储键前缀，按用户隔离
	DraftKeyPrefix = "listing_wizard_draft:"

	// DefaultSaveDebounce 连续输入合并为一次写入的防抖间隔
	DefaultSaveDebounce = time.Second
)

// ==================== DraftStore ====================

// DraftStore 草稿快照持久化
// 只序列化非二进制字段；图片字节不落盘
type DraftStore struct {
	kv       repository.KVStore
	key      string
	debounce time.Duration

	mu      sync.Mutex
	timer   *time.Timer
	pending *model.ListingDraft
}

// NewDraftStore 创建草稿存储
func NewDraftStore(kv repository.KVStore, key string, debounce time.Duration) *DraftStore {
	if debounce <= 0 {
		debounce = DefaultSaveDebounce
	}
	return &DraftStore{kv: kv, key: key, debounce: debounce}
}

// Save 登记一次草稿写入，短时间内的连续调用合并为一次落盘
func (s *DraftStore) Save(d model.ListingDraft) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.pending = &d
	if s.timer != nil {
		s.timer.Stop()
	}
	s.timer = time.AfterFunc(s.debounce, s.flush)
}

// Flush 立即写出挂起的草稿
func (s *DraftStore) Flush() {
	s.mu.Lock()
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
	s.mu.Unlock()
	s.flush()
}

func (s *DraftStore) flush() {
	s.mu.Lock()
	d := s.pending
	s.pending = nil
	s.mu.Unlock()

	if d == nil {
		return
	}

	data, err := json.Marshal(d)
	if err != nil {
		log.Printf("[DraftStore] 草稿序列化失败: %v", err)
		return
	}
	if err := s.kv.Set(s.key, string(data)); err != nil {
		log.Printf("[DraftStore] 草稿写入失败: %v", err)
	}
}

// Load 读取持久化草稿
// 解析失败视为损坏，静默丢弃，不向用户暴露
func (s *DraftStore) Load() (model.ListingDraft, bool) {
	raw, ok := s.kv.Get(s.key)
	if !ok {
		return model.ListingDraft{}, false
	}

	var d model.ListingDraft
	if err := json.Unmarshal([]byte(raw), &d); err != nil {
		log.Printf("[DraftStore] 草稿已损坏，丢弃: %v", err)
		_ = s.kv.Remove(s.key)
		return model.ListingDraft{}, false
	}
	if d.Amenities == nil {
		d.Amenities = model.StringSlice{}
	}
	return d, true
}

// Clear 删除持久化草稿，提交成功后调用一次
func (s *DraftStore) Clear() {
	s.mu.Lock()
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
	s.pending = nil
	s.mu.Unlock()

	if err := s.kv.Remove(s.key); err != nil {
		log.Printf("[DraftStore] 草稿删除失败: %v", err)
	}
}

// Close 停止挂起的定时写入
func (s *DraftStore) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
	s.pending = nil
}
