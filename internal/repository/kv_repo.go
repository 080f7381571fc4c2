package repository

import (
	"errors"
	"sync"

	"gorm.io/gorm"

	"estate_wizard_v1_202609/internal/model"
)

// ==================== 接口定义 ====================

// KVStore 通用本地键值存储
// 草稿持久化只依赖这三个方法
type KVStore interface {
	Get(key string) (string, bool)
	Set(key, value string) error
	Remove(key string) error
}

// ==================== GORM 实现 ====================

type gormKVStore struct {
	db *gorm.DB
}

// NewGormKVStore 创建数据库键值存储
func NewGormKVStore(db *gorm.DB) KVStore {
	return &gormKVStore{db: db}
}

func (s *gormKVStore) Get(key string) (string, bool) {
	var entry model.KVEntry
	err := s.db.Where("key = ?", key).First(&entry).Error
	if err != nil {
		return "", false
	}
	return entry.Value, true
}

func (s *gormKVStore) Set(key, value string) error {
	entry := model.KVEntry{Key: key, Value: value}
	// 存在则更新，不存在则插入
	var existing model.KVEntry
	err := s.db.Where("key = ?", key).First(&existing).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return s.db.Create(&entry).Error
	}
	if err != nil {
		return err
	}
	return s.db.Model(&model.KVEntry{}).Where("key = ?", key).Update("value", value).Error
}

func (s *gormKVStore) Remove(key string) error {
	return s.db.Where("key = ?", key).Delete(&model.KVEntry{}).Error
}

// ==================== 内存实现 (测试用) ====================

type memoryKVStore struct {
	mu   sync.RWMutex
	data map[string]string
}

// NewMemoryKVStore 创建内存键值存储
func NewMemoryKVStore() KVStore {
	return &memoryKVStore{data: make(map[string]string)}
}

func (s *memoryKVStore) Get(key string) (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.data[key]
	return v, ok
}

func (s *memoryKVStore) Set(key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data[key] = value
	return nil
}

func (s *memoryKVStore) Remove(key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.data, key)
	return nil
}
