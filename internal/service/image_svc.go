package service

import (
	"sync"

	"github.com/google/uuid"

	"estate_wizard_v1_202609/internal/model"
	"estate_wizard_v1_202609/pkg/utils"
)

// ==================== 常量 ====================

const (
	// NoMainImage 集合为空时主图指针的惰性值
	NoMainImage = -1

	// DefaultMaxImages 默认图片数量上限
	DefaultMaxImages = 10

	// DefaultMaxImageBytes 默认单张图片大小上限 (5 MiB)
	DefaultMaxImageBytes = 5 << 20
)

// ==================== 候选与拒绝 ====================

// ImageCandidate 待筛选的候选图片
type ImageCandidate struct {
	Name        string
	ContentType string
	Data        []byte
}

// RejectedCandidate 被拒绝的候选及原因
type RejectedCandidate struct {
	Name   string
	Reason string
}

// ==================== 预览句柄 ====================

// PreviewRegistry 短期预览句柄注册表
// 句柄只在进程内有效，释放后不可复用
type PreviewRegistry struct {
	mu   sync.RWMutex
	data map[string][]byte
}

// NewPreviewRegistry 创建注册表
func NewPreviewRegistry() *PreviewRegistry {
	return &PreviewRegistry{data: make(map[string][]byte)}
}

// Register 为图片数据签发预览句柄
func (r *PreviewRegistry) Register(data []byte) string {
	handle := uuid.New().String()
	r.mu.Lock()
	r.data[handle] = data
	r.mu.Unlock()
	return handle
}

// Resolve 按句柄取出图片数据，已释放的句柄返回 false
func (r *PreviewRegistry) Resolve(handle string) ([]byte, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	data, ok := r.data[handle]
	return data, ok
}

// Release 释放句柄
func (r *PreviewRegistry) Release(handle string) {
	r.mu.Lock()
	delete(r.data, handle)
	r.mu.Unlock()
}

// Len 当前存活句柄数
func (r *PreviewRegistry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.data)
}

// ==================== ImageCollection ====================

// ImageCollection 待发布图片集合管理器
// 独占持有图片列表与主图指针，调用方不得绕过它修改
// 内部不加锁，由持有它的会话保证单写者
type ImageCollection struct {
	maxCount int
	maxBytes int64

	items     []model.ImageAsset
	mainIndex int

	previews *PreviewRegistry
}

// NewImageCollection 创建图片集合
func NewImageCollection(maxCount int, maxBytes int64, previews *PreviewRegistry) *ImageCollection {
	if maxCount <= 0 {
		maxCount = DefaultMaxImages
	}
	if maxBytes <= 0 {
		maxBytes = DefaultMaxImageBytes
	}
	if previews == nil {
		previews = NewPreviewRegistry()
	}
	return &ImageCollection{
		maxCount:  maxCount,
		maxBytes:  maxBytes,
		mainIndex: NoMainImage,
		previews:  previews,
	}
}

// Add 筛选并追加候选图片
// 非图片类型或超出大小的候选被拒绝；追加后超出上限的尾部条目按数量拒绝
func (c *ImageCollection) Add(candidates []ImageCandidate) ([]model.ImageAsset, []RejectedCandidate) {
	var accepted []model.ImageAsset
	var rejected []RejectedCandidate

	for _, cand := range candidates {
		contentType := cand.ContentType
		if contentType == "" {
			contentType = utils.DetectImageType(cand.Data)
		}
		if !utils.IsImageType(contentType) {
			rejected = append(rejected, RejectedCandidate{Name: cand.Name, Reason: "不支持的文件类型"})
			continue
		}
		if int64(len(cand.Data)) > c.maxBytes {
			rejected = append(rejected, RejectedCandidate{Name: cand.Name, Reason: "文件超出大小限制"})
			continue
		}

		asset := model.ImageAsset{
			Name:          cand.Name,
			ContentType:   contentType,
			Size:          int64(len(cand.Data)),
			Data:          cand.Data,
			PreviewHandle: c.previews.Register(cand.Data),
		}
		accepted = append(accepted, asset)
	}

	c.items = append(c.items, accepted...)

	// 截断到数量上限
	// 既有条目不会超限，被丢弃的一定是本次追加的尾部
	if overflow := len(c.items) - c.maxCount; overflow > 0 {
		for _, a := range c.items[c.maxCount:] {
			c.previews.Release(a.PreviewHandle)
			rejected = append(rejected, RejectedCandidate{Name: a.Name, Reason: "图片数量超出上限"})
		}
		c.items = c.items[:c.maxCount]
		accepted = accepted[:len(accepted)-overflow]
	}

	if c.mainIndex == NoMainImage && len(c.items) > 0 {
		c.mainIndex = 0
	}
	c.reindex()

	// 留下的条目一定在集合尾部，重取以带上真实位置
	if n := len(accepted); n > 0 {
		accepted = append([]model.ImageAsset{}, c.items[len(c.items)-n:]...)
	}

	return accepted, rejected
}

// RemoveAt 移除指定位置的图片
// 指针规则：命中主图则回到 0（集合空则惰性）；移除位置在主图之前则指针左移
func (c *ImageCollection) RemoveAt(index int) bool {
	if index < 0 || index >= len(c.items) {
		return false
	}

	c.previews.Release(c.items[index].PreviewHandle)
	c.items = append(c.items[:index], c.items[index+1:]...)

	switch {
	case len(c.items) == 0:
		c.mainIndex = NoMainImage
	case index == c.mainIndex:
		c.mainIndex = 0
	case index < c.mainIndex:
		c.mainIndex--
	}

	c.reindex()
	return true
}

// SetMain 设置主图指针，越界时静默忽略
func (c *ImageCollection) SetMain(index int) {
	if index < 0 || index >= len(c.items) {
		return
	}
	c.mainIndex = index
}

// MoveTo 把 from 位置的图片移动到 to 位置（列表 splice 语义）
// 指针规则：主图被移动则跟随；夹在两者之间的主图向反方向挪一位
func (c *ImageCollection) MoveTo(from, to int) bool {
	if from == to {
		return false
	}
	if from < 0 || from >= len(c.items) || to < 0 || to >= len(c.items) {
		return false
	}

	item := c.items[from]
	c.items = append(c.items[:from], c.items[from+1:]...)

	rest := append([]model.ImageAsset{}, c.items[to:]...)
	c.items = append(c.items[:to], item)
	c.items = append(c.items, rest...)

	switch {
	case from == c.mainIndex:
		c.mainIndex = to
	case from < c.mainIndex && c.mainIndex <= to:
		c.mainIndex--
	case to <= c.mainIndex && c.mainIndex < from:
		c.mainIndex++
	}

	c.reindex()
	return true
}

// Reset 清空集合并释放全部预览句柄
func (c *ImageCollection) Reset() {
	for _, a := range c.items {
		c.previews.Release(a.PreviewHandle)
	}
	c.items = nil
	c.mainIndex = NoMainImage
}

// ==================== 只读访问 ====================

// Items 当前图片列表（展示顺序）
func (c *ImageCollection) Items() []model.ImageAsset {
	return c.items
}

// Len 当前图片数量
func (c *ImageCollection) Len() int {
	return len(c.items)
}

// MainIndex 主图指针，集合为空时为 NoMainImage
func (c *ImageCollection) MainIndex() int {
	return c.mainIndex
}

// Previews 预览句柄注册表
func (c *ImageCollection) Previews() *PreviewRegistry {
	return c.previews
}

// reindex 结构变化后重算索引派生标识
func (c *ImageCollection) reindex() {
	for i := range c.items {
		c.items[i].Seq = i
	}
}
