// Package scheduler 提供定时任务调度
package scheduler

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/dumeirei/school-portal-backend/internal/common/logger"
	"github.com/dumeirei/school-portal-backend/internal/common/metrics"
)

// Scheduler 定时任务调度器
type Scheduler struct {
	tasks   []*Task
	metrics *metrics.Metrics
	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	started bool
}

// Task 定时任务
type Task struct {
	Name     string
	Interval time.Duration
	Timeout  time.Duration
	Handler  func(ctx context.Context) error
}

// NewScheduler 创建调度器，m 可为 nil
func NewScheduler(m *metrics.Metrics) *Scheduler {
	ctx, cancel := context.WithCancel(context.Background())
	return &Scheduler{
		tasks:   make([]*Task, 0),
		metrics: m,
		ctx:     ctx,
		cancel:  cancel,
	}
}

// AddTask 添加任务，单次执行超时默认与间隔相同
func (s *Scheduler) AddTask(name string, interval time.Duration, handler func(ctx context.Context) error) {
	s.tasks = append(s.tasks, &Task{
		Name:     name,
		Interval: interval,
		Timeout:  interval,
		Handler:  handler,
	})
}

// Tasks 已注册任务
func (s *Scheduler) Tasks() []*Task {
	return s.tasks
}

// Start 启动调度器
func (s *Scheduler) Start() {
	if s.started {
		return
	}
	s.started = true
	logger.Info("scheduler starting", zap.Int("tasks", len(s.tasks)))

	for _, task := range s.tasks {
		s.wg.Add(1)
		go s.runTask(task)
	}
}

// Stop 停止调度器并等待执行中的任务退出
func (s *Scheduler) Stop() {
	s.cancel()
	s.wg.Wait()
	logger.Info("scheduler stopped")
}

func (s *Scheduler) runTask(task *Task) {
	defer s.wg.Done()

	ticker := time.NewTicker(task.Interval)
	defer ticker.Stop()

	// 启动后立即执行一次
	s.Run(task)

	for {
		select {
		case <-s.ctx.Done():
			return
		case <-ticker.C:
			s.Run(task)
		}
	}
}

// Run 执行一次任务；panic 会被记录，不影响后续调度
func (s *Scheduler) Run(task *Task) {
	ctx, cancel := context.WithTimeout(s.ctx, task.Timeout)
	defer cancel()

	start := time.Now()
	result := "success"
	defer func() {
		if r := recover(); r != nil {
			result = "panic"
			logger.Error("scheduled task panicked", zap.String("task", task.Name), zap.Any("panic", r))
		}
		s.metrics.RecordSchedulerRun(task.Name, result)
	}()

	if err := task.Handler(ctx); err != nil {
		result = "error"
		logger.Warn("scheduled task failed", zap.String("task", task.Name), zap.Error(err))
		return
	}
	logger.Debug("scheduled task completed", zap.String("task", task.Name), logger.Latency(time.Since(start)))
}
