package utils

import (
	"net/http"
	"strings"
)

// DetectImageType 嗅探图片 MIME 类型
// 基于标准库的前 512 字节嗅探，无法识别时返回 application/octet-stream
func DetectImageType(data []byte) string {
	if len(data) == 0 {
		return "application/octet-stream"
	}
	return http.DetectContentType(data)
}

// IsImageType 判断 MIME 是否为图片类别
func IsImageType(contentType string) bool {
	return strings.HasPrefix(contentType, "image/")
}
