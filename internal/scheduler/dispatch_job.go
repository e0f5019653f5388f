package scheduler

import (
	"context"
	"time"

	"github.com/blues/ilr/internal/logger"
	"github.com/go-co-op/gocron/v2"
)

// EventDispatcher 投递发件箱事件
type EventDispatcher interface {
	DispatchPending(ctx context.Context) (int, error)
}

// DispatchJob 状态变更通知任务
type DispatchJob struct {
	ctx        context.Context
	dispatcher EventDispatcher
	interval   time.Duration
}

func NewDispatchJob(ctx context.Context, dispatcher EventDispatcher, interval time.Duration) *DispatchJob {
	return &DispatchJob{ctx: ctx, dispatcher: dispatcher, interval: interval}
}

func (j *DispatchJob) GetName() string {
	return "event_dispatch"
}

func (j *DispatchJob) GetSchedule() gocron.JobDefinition {
	return gocron.DurationJob(j.interval)
}

func (j *DispatchJob) Execute() {
	if j.ctx.Err() != nil {
		return
	}
	if _, err := j.dispatcher.DispatchPending(j.ctx); err != nil {
		logger.Warn("Event dispatch incomplete: %v", err)
	}
}
