package repository

import (
	"context"

	"gorm.io/gorm"

	"estate_wizard_v1_202609/internal/model"
)

// ==================== 仓储接口 ====================

// ListingRepository 房源记录仓储接口
type ListingRepository interface {
	Insert(ctx context.Context, listing *model.Listing) error
	GetByID(ctx context.Context, id int64) (*model.Listing, error)
	List(ctx context.Context, filter ListingFilter) ([]model.Listing, int64, error)
}

// UserRepository 用户仓储接口（本子系统只读）
type UserRepository interface {
	GetByID(ctx context.Context, id int64) (*model.User, error)
}

// ==================== 过滤条件 ====================

// ListingFilter 房源列表过滤条件
type ListingFilter struct {
	UserID   int64
	Category string
	City     string
	Page     int
	PageSize int
}

// ==================== Listing 仓储实现 ====================

type listingRepo struct {
	db *gorm.DB
}

// NewListingRepository 创建房源仓储
func NewListingRepository(db *gorm.DB) ListingRepository {
	return &listingRepo{db: db}
}

func (r *listingRepo) Insert(ctx context.Context, listing *model.Listing) error {
	return r.db.WithContext(ctx).Create(listing).Error
}

func (r *listingRepo) GetByID(ctx context.Context, id int64) (*model.Listing, error) {
	var listing model.Listing
	if err := r.db.WithContext(ctx).First(&listing, id).Error; err != nil {
		return nil, err
	}
	return &listing, nil
}

func (r *listingRepo) List(ctx context.Context, filter ListingFilter) ([]model.Listing, int64, error) {
	query := r.db.WithContext(ctx).Model(&model.Listing{})

	if filter.UserID > 0 {
		query = query.Where("user_id = ?", filter.UserID)
	}
	if filter.Category != "" {
		query = query.Where("category = ?", filter.Category)
	}
	if filter.City != "" {
		query = query.Where("city = ?", filter.City)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	page := filter.Page
	if page < 1 {
		page = 1
	}
	pageSize := filter.PageSize
	if pageSize < 1 {
		pageSize = 20
	}

	var listings []model.Listing
	err := query.Order("created_at DESC").
		Offset((page - 1) * pageSize).
		Limit(pageSize).
		Find(&listings).Error
	if err != nil {
		return nil, 0, err
	}

	return listings, total, nil
}

// ==================== User 仓储实现 ====================

type userRepo struct {
	db *gorm.DB
}

// NewUserRepository 创建用户仓储
func NewUserRepository(db *gorm.DB) UserRepository {
	return &userRepo{db: db}
}

func (r *userRepo) GetByID(ctx context.Context, id int64) (*model.User, error) {
	var user model.User
	if err := r.db.WithContext(ctx).First(&user, id).Error; err != nil {
		return nil, err
	}
	return &user, nil
}
