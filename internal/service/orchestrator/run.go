package orchestrator

import (
	"context"
	"fmt"
	"time"

	"github.com/LouYuanbo1/groupagent/internal/domain/model"
	"github.com/LouYuanbo1/groupagent/internal/infra/crawler/chrome"
	"github.com/LouYuanbo1/groupagent/internal/infra/transport"
	"github.com/LouYuanbo1/groupagent/internal/service/events"
)

// failure 某个阶段的终止原因
type failure struct {
	code    model.ErrorCode
	message string
}

func failf(code model.ErrorCode, format string, args ...any) *failure {
	return &failure{code: code, message: fmt.Sprintf(format, args...)}
}

// drive 按顺序推进一个任务的各个阶段,同一任务的阶段从不并发执行
func (o *Orchestrator) drive(r *run) {
	defer func() {
		if rec := recover(); rec != nil {
			r.logger.Error().Str("panic", fmt.Sprintf("%v", rec)).Msg("job chain panicked")
			o.fail(r, failf(model.ErrUnknown, "internal error: %v", rec))
		}
	}()

	endpoint, f := o.bootWorker(r)
	if f != nil {
		o.fail(r, f)
		return
	}

	if !o.transition(r, model.StateWaitingReady, "") {
		return
	}
	if f := o.waitReady(r, endpoint); f != nil {
		o.fail(r, f)
		return
	}

	if !o.transition(r, model.StateCheckingSession, "") {
		return
	}
	if f := o.checkSession(r, endpoint); f != nil {
		o.fail(r, f)
		return
	}

	if !o.transition(r, model.StateRunning, "") {
		return
	}
	reply, f := o.runExtraction(r, endpoint)
	if f != nil {
		o.fail(r, f)
		return
	}

	o.finalize(r, reply)
}

// bootWorker 取得页面并注入 worker。新建页面需等待加载完成和注入宽限期,
// 复用页面只等待较短的宽限期。
func (o *Orchestrator) bootWorker(r *run) (string, *failure) {
	bootCtx, cancel := context.WithTimeout(r.ctx, o.opts.BootTimeout)
	defer cancel()

	page, created, err := o.host.Acquire(bootCtx)
	if err != nil {
		if page != nil && created {
			o.discard(r, page)
		}
		if r.ctx.Err() == nil && bootCtx.Err() != nil {
			return "", failf(model.ErrWorkerBootTimeout, "worker page not available within %s", o.opts.BootTimeout)
		}
		return "", failf(model.ErrWorkerBootTimeout, "acquire worker page: %v", err)
	}
	if !o.adopt(r, page, created) {
		if created {
			o.discard(r, page)
		}
		return "", failf(model.ErrCancelled, "job no longer active")
	}
	r.logger.Debug().Str("page_id", page.ID()).Bool("created", created).Msg("worker page acquired")

	grace := o.opts.ReuseGrace
	if created {
		if err := page.WaitLoad(bootCtx); err != nil {
			if r.ctx.Err() != nil {
				return "", failf(model.ErrCancelled, "job no longer active")
			}
			return "", failf(model.ErrWorkerBootTimeout, "worker page did not finish loading within %s", o.opts.BootTimeout)
		}
		grace = o.opts.InjectGrace
	}

	endpoint, err := o.injector.Attach(r.ctx, page)
	if err != nil {
		return "", failf(model.ErrWorkerBootTimeout, "inject worker: %v", err)
	}
	if r.ctx.Err() != nil {
		// 清理可能已先于注入完成
		if created {
			o.injector.Detach(page.ID())
		}
		return "", failf(model.ErrCancelled, "job no longer active")
	}
	if err := o.sleep(r.ctx, grace); err != nil {
		return "", failf(model.ErrCancelled, "job no longer active")
	}
	return endpoint, nil
}

// discard 关闭一个未被任务接管的新建页面。bootCtx 可能已过期,使用独立的关闭时限。
func (o *Orchestrator) discard(r *run, page chrome.Page) {
	ctx, cancel := context.WithTimeout(context.Background(), o.opts.CloseTimeout)
	defer cancel()
	if err := page.Close(ctx); err != nil {
		r.logger.Warn().Err(err).Str("page_id", page.ID()).Msg("close unadopted worker page failed")
		return
	}
	r.logger.Debug().Str("page_id", page.ID()).Msg("unadopted worker page closed")
}

func (o *Orchestrator) waitReady(r *run, endpoint string) *failure {
	reply := o.bus.Request(r.ctx, endpoint, transport.MustMessage(model.MsgPing, r.job.JobID, nil), o.opts.ReadyTimeout)
	if reply == nil || reply.Type != model.MsgPong {
		return failf(model.ErrWorkerReadyTimeout, "worker did not answer the handshake within %s", o.opts.ReadyTimeout)
	}
	return nil
}

// checkSession 按退避表轮询登录状态:READY 前进,LOGIN_REQUIRED 立即失败,
// CONNECTING 和无法识别的状态重试,无应答视为 worker 崩溃
func (o *Orchestrator) checkSession(r *run, endpoint string) *failure {
	phaseCtx, cancel := context.WithTimeout(r.ctx, o.opts.SessionCheckTimeout)
	defer cancel()

	phaseExpired := func() *failure {
		if r.ctx.Err() != nil {
			return failf(model.ErrCancelled, "job no longer active")
		}
		return failf(model.ErrSessionCheckTimeout, "session not ready within %s", o.opts.SessionCheckTimeout)
	}

	var last model.SessionState
	for attempt := 0; ; attempt++ {
		reply := o.bus.Request(phaseCtx, endpoint, transport.MustMessage(model.MsgCheckSession, r.job.JobID, nil), o.opts.SessionRequestTimeout)
		if phaseCtx.Err() != nil {
			return phaseExpired()
		}
		if reply == nil {
			return failf(model.ErrWorkerCrashed, "worker stopped answering session checks")
		}
		var session model.SessionPayload
		if err := reply.Decode(&session); err != nil {
			r.logger.Debug().Err(err).Msg("undecodable session reply, retrying")
		}
		last = session.State

		switch session.State {
		case model.SessionReady:
			return nil
		case model.SessionLoginRequired:
			return failf(model.ErrLoginRequired, "login required: scan the QR code in the browser first")
		}

		if attempt >= len(o.opts.SessionBackoff) {
			return failf(model.ErrConnectingTimeout, "session still %s after %d checks", last, attempt+1)
		}
		r.logger.Debug().Str("session", string(session.State)).Int("attempt", attempt+1).Msg("session not ready, backing off")
		if err := o.sleep(phaseCtx, o.opts.SessionBackoff[attempt]); err != nil {
			return phaseExpired()
		}
	}
}

func (o *Orchestrator) runExtraction(r *run, endpoint string) (*model.ExtractionReply, *failure) {
	msg := transport.MustMessage(model.MsgRunExtraction, r.job.JobID, model.RunExtractionPayload{
		JobID:            r.job.JobID,
		TargetID:         r.job.TargetID,
		TargetName:       r.job.TargetName,
		TargetIsArchived: r.job.TargetIsArchived,
	})
	started := time.Now()
	reply := o.bus.Request(r.ctx, endpoint, msg, o.opts.ExtractionTimeout)
	if reply == nil {
		if r.ctx.Err() != nil {
			return nil, failf(model.ErrCancelled, "job no longer active")
		}
		return nil, failf(model.ErrExtractionTimeout, "no extraction result within %s", o.opts.ExtractionTimeout)
	}

	var result model.ExtractionReply
	if err := reply.Decode(&result); err != nil {
		return nil, failf(model.ErrExtractionFailed, "decode extraction result: %v", err)
	}
	if result.Error != nil {
		code := result.Error.Code
		if !code.Known() {
			code = model.ErrExtractionFailed
		}
		return nil, &failure{code: code, message: result.Error.Message}
	}
	r.logger.Info().Int("entities", len(result.Entities)).Str("mode", result.Meta.Mode).Str("elapsed", time.Since(started).String()).Msg("extraction result received")
	return &result, nil
}

// finalize 先广播最终结果,再进入 DONE
func (o *Orchestrator) finalize(r *run, result *model.ExtractionReply) {
	o.mu.Lock()
	if o.current != r {
		o.mu.Unlock()
		return
	}
	r.job.Progress = 100
	r.job.EntityCount = len(result.Entities)
	o.mu.Unlock()

	if !o.transition(r, model.StateFinalizing, "") {
		return
	}
	o.hub.Publish(events.Event{
		Type:  model.EventDone,
		JobID: r.job.JobID,
		Payload: model.DoneEvent{
			JobID:    r.job.JobID,
			Entities: result.Entities,
			Meta:     result.Meta,
		},
	})

	o.mu.Lock()
	if o.current != r {
		o.mu.Unlock()
		return
	}
	o.finishLocked(r, model.StateDone)
}
