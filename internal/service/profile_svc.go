package service

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-resty/resty/v2"
)

// ==================== 接口定义 ====================

// Profile 用户资料（联系方式预填来源）
type Profile struct {
	Name  string `json:"name"`
	Email string `json:"email"`
	Phone string `json:"phone"`
}

// ProfileProvider 用户资料来源，会话启动时查询一次
// 返回 (nil, nil) 表示没有资料，不算错误
type ProfileProvider interface {
	GetProfile(ctx context.Context, userID int64) (*Profile, error)
}

// ==================== 远程实现 ====================

// ProfileService 通过资料服务接口获取联系方式预填
type ProfileService struct {
	client  *resty.Client
	baseURL string
}

// NewProfileService 创建资料服务客户端
func NewProfileService(baseURL string) *ProfileService {
	client := resty.New()
	client.SetTimeout(5 * time.Second)
	client.SetRetryCount(1)

	return &ProfileService{
		client:  client,
		baseURL: baseURL,
	}
}

// GetProfile 查询用户资料
func (s *ProfileService) GetProfile(ctx context.Context, userID int64) (*Profile, error) {
	if s.baseURL == "" {
		return nil, nil
	}

	var profile Profile
	resp, err := s.client.R().
		SetContext(ctx).
		SetResult(&profile).
		Get(fmt.Sprintf("%s/api/profiles/%d", s.baseURL, userID))
	if err != nil {
		return nil, fmt.Errorf("查询用户资料失败: %v", err)
	}

	if resp.StatusCode() == http.StatusNotFound {
		return nil, nil
	}
	if resp.StatusCode() != http.StatusOK {
		return nil, fmt.Errorf("资料服务返回异常状态码 %d", resp.StatusCode())
	}

	return &profile, nil
}
