package service

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/google/uuid"

	"estate_wizard_v1_202609/pkg/utils"
)

// ==================== 接口定义 ====================

// StorageProvider 对象存储接口
type StorageProvider interface {
	// Upload 上传文件，返回公开访问URL
	Upload(ctx context.Context, data []byte, filename string, contentType string) (url string, err error)

	// Delete 删除文件
	Delete(ctx context.Context, url string) error
}

// ==================== 配置 ====================

type StorageConfig struct {
	Provider  string // "s3" | "local"
	Bucket    string
	Region    string
	AccessKey string
	SecretKey string
	Endpoint  string // 自定义端点
	CDNDomain string // CDN域名 (可选)
	BasePath  string // 基础路径前缀
	MaxBytes  int64  // 单文件大小上限，0 取默认值
}

// ==================== 工厂方法 ====================

func NewStorageProvider(cfg *StorageConfig) (StorageProvider, error) {
	switch cfg.Provider {
	case "s3":
		return NewS3Storage(cfg)
	case "local":
		return NewLocalStorage(cfg)
	default:
		return nil, fmt.Errorf("不支持的存储提供者: %s", cfg.Provider)
	}
}

// checkPayload 入口守卫：只收图片且不超过大小上限
// 集合管理器添加时已筛过一轮，这里纵深防御
func checkPayload(data []byte, contentType string, maxBytes int64) error {
	if maxBytes <= 0 {
		maxBytes = DefaultMaxImageBytes
	}
	if int64(len(data)) > maxBytes {
		return fmt.Errorf("文件超出大小限制 (%d 字节)", maxBytes)
	}
	if contentType == "" {
		contentType = utils.DetectImageType(data)
	}
	if !utils.IsImageType(contentType) {
		return fmt.Errorf("不支持的文件类型: %s", contentType)
	}
	return nil
}

// ==================== S3 实现 ====================

type S3Storage struct {
	client    *s3.Client
	bucket    string
	region    string
	cdnDomain string
	basePath  string
	maxBytes  int64
}

func NewS3Storage(cfg *StorageConfig) (*S3Storage, error) {
	awsCfg, err := config.LoadDefaultConfig(context.Background(),
		config.WithRegion(cfg.Region),
		config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			cfg.AccessKey,
			cfg.SecretKey,
			"",
		)),
	)
	if err != nil {
		return nil, fmt.Errorf("加载AWS配置失败: %v", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true
		}
	})

	return &S3Storage{
		client:    client,
		bucket:    cfg.Bucket,
		region:    cfg.Region,
		cdnDomain: cfg.CDNDomain,
		basePath:  cfg.BasePath,
		maxBytes:  cfg.MaxBytes,
	}, nil
}

func (s *S3Storage) Upload(ctx context.Context, data []byte, filename string, contentType string) (string, error) {
	if err := checkPayload(data, contentType, s.maxBytes); err != nil {
		return "", err
	}

	key := s.generateKey(filename)

	if contentType == "" {
		contentType = utils.DetectImageType(data)
	}

	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(data),
		ContentType: aws.String(contentType),
	})
	if err != nil {
		return "", fmt.Errorf("上传S3失败: %v", err)
	}

	return s.getPublicURL(key), nil
}

func (s *S3Storage) Delete(ctx context.Context, url string) error {
	key := s.extractKey(url)
	if key == "" {
		return fmt.Errorf("无法解析文件路径")
	}

	_, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	return err
}

func (s *S3Storage) generateKey(filename string) string {
	ext := filepath.Ext(filename)
	if ext == "" {
		ext = ".jpg"
	}
	newFilename := fmt.Sprintf("%s%s", uuid.New().String(), ext)

	datePath := time.Now().Format("2006/01/02")
	if s.basePath != "" {
		return fmt.Sprintf("%s/%s/%s", s.basePath, datePath, newFilename)
	}
	return fmt.Sprintf("%s/%s", datePath, newFilename)
}

func (s *S3Storage) getPublicURL(key string) string {
	if s.cdnDomain != "" {
		return fmt.Sprintf("https://%s/%s", s.cdnDomain, key)
	}
	return fmt.Sprintf("https://%s.s3.%s.amazonaws.com/%s", s.bucket, s.region, key)
}

func (s *S3Storage) extractKey(url string) string {
	// 从URL中提取key
	if s.cdnDomain != "" && strings.Contains(url, s.cdnDomain) {
		return strings.TrimPrefix(url, fmt.Sprintf("https://%s/", s.cdnDomain))
	}
	prefix := fmt.Sprintf("https://%s.s3.%s.amazonaws.com/", s.bucket, s.region)
	return strings.TrimPrefix(url, prefix)
}

// ==================== 本地存储 (开发测试用) ====================

type LocalStorage struct {
	basePath string
	baseURL  string
	maxBytes int64
}

func NewLocalStorage(cfg *StorageConfig) (*LocalStorage, error) {
	basePath := cfg.BasePath
	if basePath == "" {
		basePath = "./uploads"
	}
	baseURL := cfg.Endpoint
	if baseURL == "" {
		baseURL = "http://localhost:8080/uploads"
	}

	if err := os.MkdirAll(basePath, 0o755); err != nil {
		return nil, fmt.Errorf("创建本地存储目录失败: %v", err)
	}

	return &LocalStorage{
		basePath: basePath,
		baseURL:  strings.TrimSuffix(baseURL, "/"),
		maxBytes: cfg.MaxBytes,
	}, nil
}

func (s *LocalStorage) Upload(ctx context.Context, data []byte, filename string, contentType string) (string, error) {
	if err := checkPayload(data, contentType, s.maxBytes); err != nil {
		return "", err
	}

	ext := filepath.Ext(filename)
	if ext == "" {
		ext = ".jpg"
	}
	name := fmt.Sprintf("%s%s", uuid.New().String(), ext)

	if err := os.WriteFile(filepath.Join(s.basePath, name), data, 0o644); err != nil {
		return "", fmt.Errorf("写入本地文件失败: %v", err)
	}

	return fmt.Sprintf("%s/%s", s.baseURL, name), nil
}

func (s *LocalStorage) Delete(ctx context.Context, url string) error {
	name := filepath.Base(url)
	if name == "" || name == "." || name == "/" {
		return fmt.Errorf("无法解析文件路径")
	}
	err := os.Remove(filepath.Join(s.basePath, name))
	if os.IsNotExist(err) {
		return nil
	}
	return err
}
