package scheduler

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/dumeirei/school-portal-backend/internal/common/logger"
	adminService "github.com/dumeirei/school-portal-backend/internal/service/admin"
	paymentService "github.com/dumeirei/school-portal-backend/internal/service/payment"
	referralService "github.com/dumeirei/school-portal-backend/internal/service/referral"
)

// 任务名称与间隔
const (
	TaskReverifyPayments = "reverify-pending-payments"
	TaskRetryAttribution = "retry-attribution"
	TaskLedgerAudit      = "ledger-audit"
	TaskPruneOpLogs      = "prune-operation-logs"

	ReverifyInterval    = 5 * time.Minute
	RetryInterval       = 10 * time.Minute
	LedgerAuditInterval = time.Hour
	PruneInterval       = 24 * time.Hour

	retryBatch = 100
)

// PaymentReverifier 重新核验未确认的支付
type PaymentReverifier interface {
	ReverifyPending(ctx context.Context) (*paymentService.ReverifyStats, error)
}

// AttributionRetrier 补偿未完成的归因
type AttributionRetrier interface {
	RetryUnattributed(ctx context.Context, limit int) (*referralService.RetryStats, error)
}

// LedgerChecker 账本核对
type LedgerChecker interface {
	CheckLedger(ctx context.Context) (*adminService.LedgerReport, error)
}

// LogPruner 清理过期审计记录
type LogPruner interface {
	Purge(ctx context.Context, now time.Time) (int64, error)
}

// TaskHandler 任务处理器
type TaskHandler struct {
	payments    PaymentReverifier
	attribution AttributionRetrier
	ledger      LedgerChecker
	logs        LogPruner
}

// NewTaskHandler 创建任务处理器，ledger 可为 nil
func NewTaskHandler(payments PaymentReverifier, attribution AttributionRetrier, ledger LedgerChecker) *TaskHandler {
	return &TaskHandler{payments: payments, attribution: attribution, ledger: ledger}
}

// WithLogPruner 启用操作日志清理
func (h *TaskHandler) WithLogPruner(p LogPruner) *TaskHandler {
	h.logs = p
	return h
}

// Register 注册全部任务
func (h *TaskHandler) Register(s *Scheduler) {
	s.AddTask(TaskReverifyPayments, ReverifyInterval, h.ReverifyPayments)
	s.AddTask(TaskRetryAttribution, RetryInterval, h.RetryAttribution)
	if h.ledger != nil {
		s.AddTask(TaskLedgerAudit, LedgerAuditInterval, h.AuditLedger)
	}
	if h.logs != nil {
		s.AddTask(TaskPruneOpLogs, PruneInterval, h.PruneOperationLogs)
	}
}

// ReverifyPayments 核验回调丢失的在线支付
func (h *TaskHandler) ReverifyPayments(ctx context.Context) error {
	stats, err := h.payments.ReverifyPending(ctx)
	if err != nil {
		return err
	}
	if stats.Checked > 0 {
		logger.Info("pending payments reverified",
			zap.Int("checked", stats.Checked),
			zap.Int("paid", stats.Paid),
			zap.Int("failed", stats.Failed),
			zap.Int("errors", stats.Errors),
		)
	}
	return nil
}

// RetryAttribution 对已支付但未完成归因的报名重新归因
func (h *TaskHandler) RetryAttribution(ctx context.Context) error {
	stats, err := h.attribution.RetryUnattributed(ctx, retryBatch)
	if err != nil {
		return err
	}
	if stats.Checked > 0 {
		logger.Info("attribution retried",
			zap.Int("checked", stats.Checked),
			zap.Int("committed", stats.Committed),
			zap.Int("failed", stats.Failed),
		)
	}
	return nil
}

// AuditLedger 记录账本不一致的推广员
func (h *TaskHandler) AuditLedger(ctx context.Context) error {
	report, err := h.ledger.CheckLedger(ctx)
	if err != nil {
		return err
	}
	for _, m := range report.Mismatches {
		logger.Error("affiliate ledger mismatch", logger.AffiliateID(m.AffiliateID), zap.Any("detail", m))
	}
	return nil
}

// PruneOperationLogs 删除超过保留期的操作日志
func (h *TaskHandler) PruneOperationLogs(ctx context.Context) error {
	n, err := h.logs.Purge(ctx, time.Now())
	if err != nil {
		return err
	}
	if n > 0 {
		logger.Info("operation logs pruned", zap.Int64("deleted", n))
	}
	return nil
}
