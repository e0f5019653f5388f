package scheduler

import (
	"context"
	"time"

	"github.com/blues/ilr/internal/logger"
	"github.com/blues/ilr/internal/watcher"
	"github.com/go-co-op/gocron/v2"
)

// CycleRunner 执行一轮对账
type CycleRunner interface {
	RunCycle(ctx context.Context) (watcher.CycleReport, error)
}

// ReconcileJob 周期性对账任务
type ReconcileJob struct {
	ctx      context.Context
	runner   CycleRunner
	interval time.Duration
}

// NewReconcileJob 创建对账任务，ctx 结束后执行中的轮次尽快退出
func NewReconcileJob(ctx context.Context, runner CycleRunner, interval time.Duration) *ReconcileJob {
	return &ReconcileJob{ctx: ctx, runner: runner, interval: interval}
}

// GetName 获取任务名称
func (j *ReconcileJob) GetName() string {
	return "reconcile_cycle"
}

// GetSchedule 获取调度配置
func (j *ReconcileJob) GetSchedule() gocron.JobDefinition {
	return gocron.DurationJob(j.interval)
}

// Execute 执行任务
func (j *ReconcileJob) Execute() {
	if j.ctx.Err() != nil {
		return
	}
	start := time.Now()
	report, err := j.runner.RunCycle(j.ctx)
	if err != nil {
		logger.Error("Reconcile cycle failed: %v", err)
		return
	}
	if report.Matched > 0 || report.Expired > 0 {
		logger.Info("Reconcile cycle at height %d: matched %d, evaluated %d, expired %d (%s)",
			report.Height, report.Matched, report.Evaluated, report.Expired, time.Since(start))
	}
}
