package admin

import (
	"context"
	"time"

	"github.com/dumeirei/school-portal-backend/internal/common/errors"
	"github.com/dumeirei/school-portal-backend/internal/models"
	"github.com/dumeirei/school-portal-backend/internal/repository"
)

// OperationLogService 操作日志查询
type OperationLogService struct {
	repo *repository.OperationLogRepository
}

// NewOperationLogService 创建操作日志服务
func NewOperationLogService(repo *repository.OperationLogRepository) *OperationLogService {
	return &OperationLogService{repo: repo}
}

// List 操作日志列表
func (s *OperationLogService) List(ctx context.Context, offset, limit int, filter repository.OperationLogFilter) ([]*models.OperationLog, int64, error) {
	logs, total, err := s.repo.List(ctx, offset, limit, filter)
	if err != nil {
		return nil, 0, errors.ErrStoreFailure.WithError(err)
	}
	return logs, total, nil
}

// OperationLogRetention 审计记录保留时长
const OperationLogRetention = 180 * 24 * time.Hour

// Purge 删除超过保留期的审计记录
func (s *OperationLogService) Purge(ctx context.Context, now time.Time) (int64, error) {
	n, err := s.repo.DeleteBefore(ctx, now.Add(-OperationLogRetention))
	if err != nil {
		return 0, errors.ErrStoreFailure.WithError(err)
	}
	return n, nil
}
