package model

import "time"

// KVEntry 本地键值存储条目（草稿快照等小体量数据）
type KVEntry struct {
	Key       string    `gorm:"primaryKey;size:128"`
	Value     string    `gorm:"type:text"`
	UpdatedAt time.Time `gorm:"index"`
}

func (*KVEntry) TableName() string {
	return "kv_entries"
}
