package repository

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/dumeirei/school-portal-backend/internal/models"
)

// OperationLogFilter 操作日志筛选，零值字段不参与过滤
type OperationLogFilter struct {
	AdminID    int64
	Module     string
	Action     string
	TargetType string
	TargetID   int64
	Start      time.Time
	End        time.Time // 开区间
}

func (f OperationLogFilter) apply(q *gorm.DB) *gorm.DB {
	if f.AdminID > 0 {
		q = q.Where("admin_id = ?", f.AdminID)
	}
	if f.Module != "" {
		q = q.Where("module = ?", f.Module)
	}
	if f.Action != "" {
		q = q.Where("action = ?", f.Action)
	}
	if f.TargetType != "" {
		q = q.Where("target_type = ?", f.TargetType)
	}
	if f.TargetID > 0 {
		q = q.Where("target_id = ?", f.TargetID)
	}
	if !f.Start.IsZero() {
		q = q.Where("created_at >= ?", f.Start)
	}
	if !f.End.IsZero() {
		q = q.Where("created_at < ?", f.End)
	}
	return q
}

// OperationLogRepository 管理员操作审计
type OperationLogRepository struct {
	db *gorm.DB
}

// NewOperationLogRepository 创建仓储
func NewOperationLogRepository(db *gorm.DB) *OperationLogRepository {
	return &OperationLogRepository{db: db}
}

// Create 追加一条审计记录
func (r *OperationLogRepository) Create(ctx context.Context, entry *models.OperationLog) error {
	return r.db.WithContext(ctx).Create(entry).Error
}

// GetByID 按 ID 查询，附带操作人
func (r *OperationLogRepository) GetByID(ctx context.Context, id int64) (*models.OperationLog, error) {
	var entry models.OperationLog
	if err := r.withOperator(r.db.WithContext(ctx)).First(&entry, id).Error; err != nil {
		return nil, err
	}
	return &entry, nil
}

// List 按时间倒序分页
func (r *OperationLogRepository) List(ctx context.Context, offset, limit int, filter OperationLogFilter) ([]*models.OperationLog, int64, error) {
	q := filter.apply(r.db.WithContext(ctx).Model(&models.OperationLog{}))

	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, err
	}
	entries := make([]*models.OperationLog, 0, limit)
	if total == 0 {
		return entries, 0, nil
	}
	err := r.withOperator(q).Order("id DESC").Offset(offset).Limit(limit).Find(&entries).Error
	return entries, total, err
}

// DeleteBefore 清理过期审计记录，返回删除条数
func (r *OperationLogRepository) DeleteBefore(ctx context.Context, before time.Time) (int64, error) {
	res := r.db.WithContext(ctx).Where("created_at < ?", before).Delete(&models.OperationLog{})
	return res.RowsAffected, res.Error
}

// withOperator 只加载操作人的展示字段
func (r *OperationLogRepository) withOperator(q *gorm.DB) *gorm.DB {
	return q.Preload("Admin", func(db *gorm.DB) *gorm.DB {
		return db.Select("id", "username", "name", "role")
	})
}
