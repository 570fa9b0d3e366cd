package repository

import (
	"context"
	"strings"
	"time"

	"gorm.io/gorm"

	"github.com/dumeirei/school-portal-backend/internal/models"
)

// AdminRepository 后台账号
type AdminRepository struct {
	db *gorm.DB
}

// NewAdminRepository 创建仓储
func NewAdminRepository(db *gorm.DB) *AdminRepository {
	return &AdminRepository{db: db}
}

// Create 写入账号；用户名冲突时返回唯一约束错误
func (r *AdminRepository) Create(ctx context.Context, admin *models.Admin) error {
	admin.Username = strings.ToLower(admin.Username)
	return r.db.WithContext(ctx).Create(admin).Error
}

// GetByID 按 ID 查询
func (r *AdminRepository) GetByID(ctx context.Context, id int64) (*models.Admin, error) {
	var admin models.Admin
	if err := r.db.WithContext(ctx).First(&admin, id).Error; err != nil {
		return nil, err
	}
	return &admin, nil
}

// GetByUsername 用户名不区分大小写
func (r *AdminRepository) GetByUsername(ctx context.Context, username string) (*models.Admin, error) {
	var admin models.Admin
	err := r.db.WithContext(ctx).
		Where("username = ?", strings.ToLower(strings.TrimSpace(username))).
		First(&admin).Error
	if err != nil {
		return nil, err
	}
	return &admin, nil
}

// UpdatePassword 更新密码哈希
func (r *AdminRepository) UpdatePassword(ctx context.Context, id int64, passwordHash string) error {
	return r.updateColumns(ctx, id, map[string]interface{}{"password_hash": passwordHash})
}

// RecordLogin 记录最近一次登录
func (r *AdminRepository) RecordLogin(ctx context.Context, id int64, ip string, at time.Time) error {
	return r.updateColumns(ctx, id, map[string]interface{}{"last_login_at": at, "last_login_ip": ip})
}

func (r *AdminRepository) updateColumns(ctx context.Context, id int64, cols map[string]interface{}) error {
	res := r.db.WithContext(ctx).Model(&models.Admin{}).Where("id = ?", id).Updates(cols)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}
