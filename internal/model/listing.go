package model

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"time"

	"gorm.io/gorm"
)

// ==================== 状态常量 ====================

const (
	// 提交状态
	SubmitStatusIdle       = "idle"
	SubmitStatusSubmitting = "submitting"
	SubmitStatusSucceeded  = "succeeded"
	SubmitStatusFailed     = "failed"

	// 价格类型
	PriceKindSale = "sale"
	PriceKindRent = "rent"

	// 向导步骤
	StepGeneral  = 0
	StepLocation = 1
	StepPhotos   = 2
	StepPricing  = 3
	StepReview   = 4
	StepCount    = 5
)

// Categories 房源类别（固定枚举）
var Categories = []string{"apartment", "villa", "studio", "office", "shop", "land"}

// AmenityTokens 配套设施标记（六个独立开关）
var AmenityTokens = []string{
	AmenityParking, AmenityElevator, AmenityStorage,
	AmenityBalcony, AmenityAirConditioning, AmenityFurnished,
}

const (
	AmenityParking         = "parking"
	AmenityElevator        = "elevator"
	AmenityStorage         = "storage"
	AmenityBalcony         = "balcony"
	AmenityAirConditioning = "air_conditioning"
	AmenityFurnished       = "furnished"
)

// IsValidCategory 检查类别是否合法
func IsValidCategory(c string) bool {
	for _, v := range Categories {
		if v == c {
			return true
		}
	}
	return false
}

// IsValidAmenity 检查设施标记是否合法
func IsValidAmenity(a string) bool {
	for _, v := range AmenityTokens {
		if v == a {
			return true
		}
	}
	return false
}

// ==================== JSON 类型 ====================

// StringSlice 字符串切片（JSON 存储）
type StringSlice []string

func (s *StringSlice) Value() (driver.Value, error) {
	if s == nil {
		return "[]", nil
	}
	return json.Marshal(s)
}

func (s *StringSlice) Scan(value interface{}) error {
	if value == nil {
		*s = []string{}
		return nil
	}
	bytes, ok := value.([]byte)
	if !ok {
		return errors.New("type assertion to []byte failed")
	}
	return json.Unmarshal(bytes, s)
}

// Contains 是否包含指定标记
func (s StringSlice) Contains(v string) bool {
	for _, item := range s {
		if item == v {
			return true
		}
	}
	return false
}

// ==================== 房源草稿 ====================

// ListingDraft 房源草稿（非二进制字段快照，可持久化）
type ListingDraft struct {
	Title       string  `json:"title"`
	Description string  `json:"description"`
	Category    string  `json:"category"`
	Bedrooms    int     `json:"bedrooms"`
	Bathrooms   int     `json:"bathrooms"`
	Area        float64 `json:"area"`

	City     string `json:"city"`
	District string `json:"district"`
	Address  string `json:"address"`

	Price     float64     `json:"price"`
	PriceKind string      `json:"price_kind"`
	Amenities StringSlice `json:"amenities"`

	ContactName  string `json:"contact_name"`
	ContactEmail string `json:"contact_email"`
	ContactPhone string `json:"contact_phone"`
}

// NewListingDraft 创建默认草稿
func NewListingDraft() ListingDraft {
	return ListingDraft{
		PriceKind: PriceKindSale,
		Amenities: StringSlice{},
	}
}

// ==================== 图片资源 ====================

// ImageAsset 待上传的图片资源
// Seq 为索引派生的标识，结构变化后重新计算
type ImageAsset struct {
	Seq           int    `json:"seq"`
	Name          string `json:"name"`
	ContentType   string `json:"content_type"`
	Size          int64  `json:"size"`
	Data          []byte `json:"-"`
	PreviewHandle string `json:"preview_handle"`
}

// ==================== 房源记录 ====================

// Listing 正式房源记录（提交成功后入库）
type Listing struct {
	ID        int64          `gorm:"primaryKey;autoIncrement"`
	CreatedAt time.Time      `gorm:"index"`
	UpdatedAt time.Time      `gorm:"index"`
	DeletedAt gorm.DeletedAt `gorm:"index"`
	UserID    int64          `gorm:"index;not null;comment:发布用户ID"`

	Title       string  `gorm:"size:100;not null;comment:标题"`
	Description string  `gorm:"type:text;comment:描述"`
	Category    string  `gorm:"size:32;index;comment:类别"`
	Bedrooms    int     `gorm:"comment:卧室数"`
	Bathrooms   int     `gorm:"comment:卫浴数"`
	Area        float64 `gorm:"comment:建筑面积"`

	City     string `gorm:"size:64;index;comment:城市"`
	District string `gorm:"size:64;index;comment:区域"`
	Address  string `gorm:"size:255;comment:街道地址"`

	Price     float64     `gorm:"comment:价格"`
	PriceKind string      `gorm:"size:8;index;comment:售卖类型 sale|rent"`
	Deposit   float64     `gorm:"comment:押金(仅租赁)"`
	Amenities StringSlice `gorm:"type:json;comment:配套设施"`
	HasAC     bool        `gorm:"comment:是否有空调"`

	ImageURLs    StringSlice `gorm:"type:json;comment:图片URL(展示顺序)"`
	MainImageURL string      `gorm:"size:2048;comment:主图URL"`

	ContactName  string `gorm:"size:64;comment:联系人"`
	ContactEmail string `gorm:"size:128;comment:联系邮箱"`
	ContactPhone string `gorm:"size:32;comment:联系电话"`
}

func (*Listing) TableName() string {
	return "listings"
}

// ==================== 用户 ====================

// User 平台用户（本子系统只读）
type User struct {
	ID        int64     `gorm:"primaryKey;autoIncrement"`
	CreatedAt time.Time `gorm:"index"`
	UpdatedAt time.Time
	Name      string `gorm:"size:64;comment:姓名"`
	Email     string `gorm:"size:128;uniqueIndex;comment:邮箱"`
	Phone     string `gorm:"size:32;comment:电话"`
}

func (*User) TableName() string {
	return "users"
}
