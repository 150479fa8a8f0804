package orchestrator

import (
	"context"
	"errors"
	"time"

	"github.com/LouYuanbo1/groupagent/internal/domain/model"
	"github.com/LouYuanbo1/groupagent/internal/infra/persistence/badger"
)

const persistTimeout = 2 * time.Second

// persistJob 写入当前任务快照;任务已结束时跳过
func (o *Orchestrator) persistJob(job model.Job) {
	o.persistMu.Lock()
	defer o.persistMu.Unlock()

	o.mu.Lock()
	live := o.current != nil && o.current.job.JobID == job.JobID
	o.mu.Unlock()
	if !live {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), persistTimeout)
	defer cancel()
	if err := o.store.Set(ctx, JobKey, job); err != nil {
		o.logger.Warn().Err(err).Str("job_id", job.JobID).Msg("persist job snapshot failed")
	}
}

func (o *Orchestrator) persistIdle(idle model.IdleState) {
	o.persistMu.Lock()
	defer o.persistMu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), persistTimeout)
	defer cancel()
	if err := o.store.Remove(ctx, JobKey); err != nil {
		o.logger.Warn().Err(err).Msg("remove job snapshot failed")
	}
	if err := o.store.Set(ctx, IdleKey, idle); err != nil {
		o.logger.Warn().Err(err).Msg("persist idle state failed")
	}
}

// SnapshotNow 定时任务调用:把当前任务的最新计数写入存储
func (o *Orchestrator) SnapshotNow() {
	o.mu.Lock()
	if o.job == nil {
		o.mu.Unlock()
		return
	}
	snap := o.job.Snapshot()
	o.mu.Unlock()
	o.persistJob(snap)
}

// Recover 在启动时读取上一进程留下的快照。未结束的任务视为过期,
// 记为 ERROR 并回到空闲,不会被恢复执行。
func (o *Orchestrator) Recover(ctx context.Context) error {
	var idle model.IdleState
	err := o.store.Get(ctx, IdleKey, &idle)
	switch {
	case err == nil:
		o.mu.Lock()
		o.idle = idle
		o.mu.Unlock()
	case !errors.Is(err, badger.ErrKeyNotFound):
		return err
	}

	var orphan model.Job
	err = o.store.Get(ctx, JobKey, &orphan)
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	if orphan.State.Terminal() {
		return o.store.Remove(ctx, JobKey)
	}

	logger := o.logger.WithCorrelationId(orphan.JobID)
	logger.Warn().Str("state", string(orphan.State)).Msg("orphaned job from previous run, marking as failed")
	if orphan.Worker != nil && orphan.Worker.Created {
		logger.Warn().Str("page_id", orphan.Worker.PageID).Msg("worker page of orphaned job may still be open")
	}

	idle = model.IdleState{
		State:        model.StateIdle,
		LastJobID:    orphan.JobID,
		LastOutcome:  model.StateError,
		ErrorCode:    model.ErrUnknown,
		ErrorMessage: "interrupted by coordinator restart in state " + string(orphan.State),
		UpdatedAt:    time.Now(),
	}
	o.mu.Lock()
	o.idle = idle
	o.mu.Unlock()

	if err := o.store.Remove(ctx, JobKey); err != nil {
		return err
	}
	return o.store.Set(ctx, IdleKey, idle)
}
