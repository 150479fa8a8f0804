package orchestrator

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/LouYuanbo1/groupagent/internal/domain/model"
	"github.com/LouYuanbo1/groupagent/internal/infra/clock"
	"github.com/LouYuanbo1/groupagent/internal/infra/crawler/chrome"
	"github.com/LouYuanbo1/groupagent/internal/infra/transport"
	"github.com/LouYuanbo1/groupagent/internal/service/events"
	"github.com/go-playground/validator/v10"
	"github.com/ternarybob/arbor"
)

// Attacher 把 worker 端点挂到页面上
type Attacher interface {
	Attach(ctx context.Context, page chrome.Page) (endpoint string, err error)
	Detach(pageID string)
}

// Broadcaster 向监听者广播事件
type Broadcaster interface {
	Publish(ev events.Event)
}

// SnapshotStore 快照持久化,Get 在键不存在时返回错误
type SnapshotStore interface {
	Get(ctx context.Context, key string, out any) error
	Set(ctx context.Context, key string, value any) error
	Remove(ctx context.Context, key string) error
}

const (
	JobKey  = "groupagent:job"
	IdleKey = "groupagent:idle"
)

// run 一次任务的运行期状态。只有 o.run == run 时该链路上的操作才生效,
// 取消或超时后旧链路自然失效。
type run struct {
	job    *model.Job
	ctx    context.Context
	cancel context.CancelFunc
	logger arbor.ILogger

	page    chrome.Page
	created bool
}

// Orchestrator 全进程唯一的任务编排器,持有任务与锁
type Orchestrator struct {
	opts     Options
	host     chrome.PageHost
	injector Attacher
	bus      *transport.Bus
	hub      Broadcaster
	store    SnapshotStore
	validate *validator.Validate
	logger   arbor.ILogger
	sleep    func(ctx context.Context, d time.Duration) error

	// persistMu 串行化快照写入,避免过期快照覆盖清理结果
	persistMu sync.Mutex

	mu       sync.Mutex
	job      *model.Job
	locked   bool
	deadline *time.Timer
	current  *run
	idle     model.IdleState
}

// NewOrchestrator 创建编排器并在总线上注册 coordinator 端点
func NewOrchestrator(opts Options, host chrome.PageHost, injector Attacher, bus *transport.Bus, hub Broadcaster, store SnapshotStore, logger arbor.ILogger) *Orchestrator {
	o := &Orchestrator{
		opts:     opts.withDefaults(),
		host:     host,
		injector: injector,
		bus:      bus,
		hub:      hub,
		store:    store,
		validate: validator.New(),
		logger:   logger,
		sleep:    clock.Sleep,
		idle:     model.IdleState{State: model.StateIdle, UpdatedAt: time.Now()},
	}
	bus.Register(model.CoordinatorEndpoint, o.Handle)
	return o
}


// Start 受理新任务。锁被占用或已有任务时立即以 LOCKED 拒绝,不排队。
func (o *Orchestrator) Start(req model.StartJobPayload) model.StartJobReply {
	if err := o.validate.Struct(req); err != nil {
		return model.StartJobReply{Error: &model.ErrorPayload{
			Code:        model.ErrUnknown,
			Message:     fmt.Sprintf("invalid start request: %v", err),
			Recoverable: true,
		}}
	}

	o.mu.Lock()
	if o.locked || o.job != nil {
		busy := o.job
		o.mu.Unlock()
		msg := "another extraction is in progress"
		if busy != nil {
			msg = fmt.Sprintf("job %s is in progress", busy.JobID)
		}
		return model.StartJobReply{Error: &model.ErrorPayload{
			Code:        model.ErrLocked,
			Message:     msg,
			Recoverable: model.ErrLocked.Recoverable(),
		}}
	}

	now := time.Now()
	job := &model.Job{
		JobID:            req.JobID,
		TargetID:         req.TargetID,
		TargetName:       req.TargetName,
		TargetIsArchived: req.TargetIsArchived,
		State:            model.StateBootingWorker,
		StartedAt:        now,
		UpdatedAt:        now,
	}
	ctx, cancel := context.WithCancel(context.Background())
	r := &run{
		job:    job,
		ctx:    ctx,
		cancel: cancel,
		logger: o.logger.WithCorrelationId(job.JobID),
	}
	o.job = job
	o.locked = true
	o.current = r
	o.deadline = time.AfterFunc(o.opts.LockTimeout, func() { o.expire(r) })
	snap := job.Snapshot()
	o.mu.Unlock()

	r.logger.Info().Str("target", job.TargetName).Str("target_id", job.TargetID).Bool("archived", job.TargetIsArchived).Msg("job accepted")
	o.announce(snap, "")
	go o.drive(r)
	return model.StartJobReply{Accepted: true}
}

// Cancel 取消指定任务,任何非终止状态都直接进入 CANCELLED 并清理
func (o *Orchestrator) Cancel(jobID string) model.CancelJobReply {
	o.mu.Lock()
	r := o.current
	if r == nil || r.job.JobID != jobID {
		o.mu.Unlock()
		return model.CancelJobReply{Accepted: false}
	}
	r.job.ErrorCode = model.ErrCancelled
	r.job.ErrorMessage = "cancelled by request"
	o.finishLocked(r, model.StateCancelled)
	return model.CancelJobReply{Accepted: true}
}

// HandleProgress 记录 worker 上报的最新进度并转播,过期任务的上报被忽略
func (o *Orchestrator) HandleProgress(p model.ProgressPayload) {
	o.mu.Lock()
	if o.job == nil || o.job.JobID != p.JobID || o.job.State != model.StateRunning {
		o.mu.Unlock()
		return
	}
	o.job.Progress = p.Percent
	o.job.EntityCount = p.Count
	o.job.UpdatedAt = time.Now()
	o.mu.Unlock()

	o.hub.Publish(events.Event{
		Type:    model.EventProgress,
		JobID:   p.JobID,
		Payload: p,
	})
}

// Status 当前任务与锁的快照
func (o *Orchestrator) Status() model.StatusReply {
	o.mu.Lock()
	defer o.mu.Unlock()
	reply := model.StatusReply{Locked: o.locked}
	if o.job != nil {
		snap := o.job.Snapshot()
		reply.Job = &snap
	}
	idle := o.idle
	reply.Idle = &idle
	return reply
}

// Close 取消正在进行的任务
func (o *Orchestrator) Close() {
	o.mu.Lock()
	r := o.current
	if r == nil {
		o.mu.Unlock()
		return
	}
	r.job.ErrorCode = model.ErrCancelled
	r.job.ErrorMessage = "coordinator shutting down"
	o.finishLocked(r, model.StateCancelled)
}

// expire 锁的安全时限到期:强制释放锁并把任务标为 ERROR,不等待原链路
func (o *Orchestrator) expire(r *run) {
	o.mu.Lock()
	if o.current != r {
		o.mu.Unlock()
		return
	}
	r.logger.Warn().Str("state", string(r.job.State)).Msg("lock safety deadline elapsed, releasing")
	r.job.ErrorCode = model.ErrUnknown
	r.job.ErrorMessage = fmt.Sprintf("lock safety deadline elapsed after %s", o.opts.LockTimeout)
	o.finishLocked(r, model.StateError)
}

// transition 推进状态,链路已失效时返回 false
func (o *Orchestrator) transition(r *run, state model.JobState, message string) bool {
	o.mu.Lock()
	if o.current != r {
		o.mu.Unlock()
		return false
	}
	r.job.State = state
	r.job.UpdatedAt = time.Now()
	snap := r.job.Snapshot()
	o.mu.Unlock()

	r.logger.Debug().Str("state", string(state)).Msg("job state changed")
	o.announce(snap, message)
	return true
}

// fail 以错误码结束任务
func (o *Orchestrator) fail(r *run, f *failure) {
	o.mu.Lock()
	if o.current != r {
		o.mu.Unlock()
		return
	}
	r.job.ErrorCode = f.code
	r.job.ErrorMessage = f.message
	o.finishLocked(r, model.StateError)
}

// finishLocked 进入终止状态并清理。调用时持有 o.mu,返回前释放。
// 清理只会执行一次:第一个到达的终止路径把 o.current 置空,其余路径随之失效。
// 锁在页面关闭之后才释放。
func (o *Orchestrator) finishLocked(r *run, state model.JobState) {
	now := time.Now()
	r.job.State = state
	r.job.UpdatedAt = now
	if o.deadline != nil {
		o.deadline.Stop()
		o.deadline = nil
	}
	r.cancel()
	o.current = nil
	snap := r.job.Snapshot()
	page, created := r.page, r.created
	o.mu.Unlock()

	o.announce(snap, snap.ErrorMessage)
	if state != model.StateDone {
		o.hub.Publish(events.Event{
			Type:  model.EventFailed,
			JobID: snap.JobID,
			Payload: model.FailedEvent{
				JobID: snap.JobID,
				ErrorPayload: model.ErrorPayload{
					Code:        snap.ErrorCode,
					Message:     snap.ErrorMessage,
					Recoverable: snap.ErrorCode.Recoverable(),
				},
			},
		})
	}
	o.cleanup(r, page, created)

	idle := model.IdleState{
		State:        model.StateIdle,
		LastJobID:    snap.JobID,
		LastOutcome:  state,
		ErrorCode:    snap.ErrorCode,
		ErrorMessage: snap.ErrorMessage,
		UpdatedAt:    time.Now(),
	}
	o.persistIdle(idle)

	o.mu.Lock()
	o.job = nil
	o.locked = false
	o.idle = idle
	o.mu.Unlock()

	if state == model.StateDone {
		r.logger.Info().Int("entities", snap.EntityCount).Msg("job finished")
		return
	}
	r.logger.Warn().Str("state", string(state)).Str("code", string(snap.ErrorCode)).Str("reason", snap.ErrorMessage).Msg("job finished")
}

// cleanup 只关闭编排器自己创建的页面,复用的页面保持原样
func (o *Orchestrator) cleanup(r *run, page chrome.Page, created bool) {
	if page == nil || !created {
		return
	}
	o.injector.Detach(page.ID())
	ctx, cancel := context.WithTimeout(context.Background(), o.opts.CloseTimeout)
	defer cancel()
	if err := page.Close(ctx); err != nil {
		r.logger.Warn().Err(err).Str("page_id", page.ID()).Msg("close worker page failed")
		return
	}
	r.logger.Debug().Str("page_id", page.ID()).Msg("worker page closed")
}

// adopt 记录启动阶段拿到的页面;链路已失效时返回 false,由调用方自行关闭页面
func (o *Orchestrator) adopt(r *run, page chrome.Page, created bool) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.current != r {
		return false
	}
	r.page = page
	r.created = created
	r.job.Worker = &model.WorkerHandle{PageID: page.ID(), Created: created}
	return true
}

func (o *Orchestrator) announce(job model.Job, message string) {
	o.hub.Publish(events.Event{
		Type:  model.EventStateChanged,
		JobID: job.JobID,
		Payload: model.StateChangedEvent{
			JobID:   job.JobID,
			State:   job.State,
			Message: message,
		},
	})
	if !job.State.Terminal() {
		o.persistJob(job)
	}
}
