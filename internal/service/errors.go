package service

import (
	"fmt"
	"sort"
	"strings"
)

// ==================== 失败原因常量 ====================

const (
	ReasonValidation = "validation_failed"
	ReasonUpload     = "upload_failed"
	ReasonStore      = "store_failed"
	ReasonInternal   = "internal_error"
)

// ==================== 错误类型 ====================

// ValidationError 校验错误（本地、按字段，不触达外部服务）
type ValidationError struct {
	Fields map[string]string
}

func (e *ValidationError) Error() string {
	keys := make([]string, 0, len(e.Fields))
	for k := range e.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s: %s", k, e.Fields[k]))
	}
	return "表单校验失败: " + strings.Join(parts, "; ")
}

// StorageError 对象存储错误（指明失败的资源，整体提交中止）
type StorageError struct {
	AssetName string
	Err       error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("图片 %s 上传失败: %v", e.AssetName, e.Err)
}

func (e *StorageError) Unwrap() error {
	return e.Err
}

// StoreError 记录入库错误（图片已上传，不做回滚补偿）
type StoreError struct {
	Err error
}

func (e *StoreError) Error() string {
	return fmt.Sprintf("房源记录创建失败: %v", e.Err)
}

func (e *StoreError) Unwrap() error {
	return e.Err
}

// FailureReason 把错误归类为机器可读的失败原因
func FailureReason(err error) string {
	switch err.(type) {
	case *ValidationError:
		return ReasonValidation
	case *StorageError:
		return ReasonUpload
	case *StoreError:
		return ReasonStore
	default:
		return ReasonInternal
	}
}
