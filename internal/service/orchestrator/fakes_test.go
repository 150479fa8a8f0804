package orchestrator

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/LouYuanbo1/groupagent/internal/config"
	"github.com/LouYuanbo1/groupagent/internal/domain/model"
	"github.com/LouYuanbo1/groupagent/internal/infra/crawler/chrome"
	"github.com/LouYuanbo1/groupagent/internal/infra/persistence/badger"
	"github.com/LouYuanbo1/groupagent/internal/infra/transport"
	"github.com/LouYuanbo1/groupagent/internal/service/events"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"
)

type fakePage struct {
	id        string
	neverLoad bool
	closes    atomic.Int32

	// 关闭时 ctx 仍然有效的次数
	liveCloses atomic.Int32
}

func (p *fakePage) ID() string  { return p.id }
func (p *fakePage) URL() string { return "https://web.whatsapp.com/" }

func (p *fakePage) WaitLoad(ctx context.Context) error {
	if p.neverLoad {
		<-ctx.Done()
		return ctx.Err()
	}
	return nil
}

func (p *fakePage) Driver() chrome.Driver { return nil }

func (p *fakePage) Close(ctx context.Context) error {
	p.closes.Add(1)
	if ctx.Err() == nil {
		p.liveCloses.Add(1)
	}
	return nil
}

type fakeHost struct {
	page    *fakePage
	created bool
	block   atomic.Bool

	// 页面已创建但导航一直挂起,直到 ctx 过期
	stallAfterCreate atomic.Bool
}

func (h *fakeHost) Acquire(ctx context.Context) (chrome.Page, bool, error) {
	if h.block.Load() {
		<-ctx.Done()
		return nil, false, ctx.Err()
	}
	if h.stallAfterCreate.Load() {
		<-ctx.Done()
		return h.page, true, ctx.Err()
	}
	return h.page, h.created, nil
}

func (h *fakeHost) Close() {}

// fakeWorker 按配置应答 PING / CHECK_SESSION / RUN_EXTRACTION
type fakeWorker struct {
	mu            sync.Mutex
	blockPing     bool
	blockSession  bool
	silentSession bool
	sessions      []model.SessionState
	sessionChecks int
	extract       func(ctx context.Context, req model.RunExtractionPayload) (*transport.Message, error)
}

func (w *fakeWorker) checks() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.sessionChecks
}

func (w *fakeWorker) Handle(ctx context.Context, msg *transport.Message) (*transport.Message, error) {
	switch msg.Type {
	case model.MsgPing:
		if w.blockPing {
			<-ctx.Done()
			return nil, ctx.Err()
		}
		return transport.NewMessage(model.MsgPong, msg.JobID, nil)
	case model.MsgCheckSession:
		w.mu.Lock()
		n := w.sessionChecks
		w.sessionChecks++
		w.mu.Unlock()
		if w.blockSession {
			<-ctx.Done()
			return nil, ctx.Err()
		}
		if w.silentSession {
			return nil, nil
		}
		state := model.SessionReady
		if len(w.sessions) > 0 {
			state = w.sessions[min(n, len(w.sessions)-1)]
		}
		return transport.NewMessage(msg.Type, msg.JobID, model.SessionPayload{State: state})
	case model.MsgRunExtraction:
		var req model.RunExtractionPayload
		if err := msg.Decode(&req); err != nil {
			return nil, err
		}
		if w.extract != nil {
			return w.extract(ctx, req)
		}
		return transport.NewMessage(msg.Type, msg.JobID, model.ExtractionReply{
			Entities: []model.Member{
				{Key: "ana", DisplayName: "Ana"},
				{Key: "5511987654321", DisplayName: "Bruno", Phone: "5511987654321"},
			},
			Meta: model.ExtractionMeta{GroupName: req.TargetName, Total: 2, Mode: "dialog"},
		})
	}
	return nil, errors.New("unexpected message")
}

func blockingExtraction(ctx context.Context, _ model.RunExtractionPayload) (*transport.Message, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}

type fakeAttacher struct {
	bus      *transport.Bus
	worker   *fakeWorker
	mu       sync.Mutex
	detached []string
}

func (a *fakeAttacher) Attach(_ context.Context, page chrome.Page) (string, error) {
	endpoint := "worker:" + page.ID()
	a.bus.Register(endpoint, a.worker.Handle)
	return endpoint, nil
}

func (a *fakeAttacher) Detach(pageID string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.detached = append(a.detached, pageID)
	a.bus.Unregister("worker:" + pageID)
}

// recorder 收集 hub 上的全部事件
type recorder struct {
	mu     sync.Mutex
	events []events.Event
}

func record(hub *events.Hub) *recorder {
	rec := &recorder{}
	ch, _ := hub.Subscribe()
	go func() {
		for ev := range ch {
			rec.mu.Lock()
			rec.events = append(rec.events, ev)
			rec.mu.Unlock()
		}
	}()
	return rec
}

func (r *recorder) all() []events.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]events.Event(nil), r.events...)
}

func (r *recorder) states() []model.JobState {
	var out []model.JobState
	for _, ev := range r.all() {
		if p, ok := ev.Payload.(model.StateChangedEvent); ok {
			out = append(out, p.State)
		}
	}
	return out
}

func (r *recorder) failed() *model.FailedEvent {
	for _, ev := range r.all() {
		if p, ok := ev.Payload.(model.FailedEvent); ok {
			return &p
		}
	}
	return nil
}

func (r *recorder) count(eventType string) int {
	n := 0
	for _, ev := range r.all() {
		if ev.Type == eventType {
			n++
		}
	}
	return n
}

type harness struct {
	o        *Orchestrator
	bus      *transport.Bus
	host     *fakeHost
	page     *fakePage
	worker   *fakeWorker
	attacher *fakeAttacher
	store    badger.KVStore
	events   *recorder
}

func fastOptions() Options {
	return Options{
		BootTimeout:           200 * time.Millisecond,
		InjectGrace:           0,
		ReuseGrace:            0,
		ReadyTimeout:          200 * time.Millisecond,
		SessionBackoff:        []time.Duration{5 * time.Millisecond, 5 * time.Millisecond, 5 * time.Millisecond},
		SessionRequestTimeout: 200 * time.Millisecond,
		SessionCheckTimeout:   time.Second,
		ExtractionTimeout:     time.Second,
		LockTimeout:           5 * time.Second,
		CloseTimeout:          100 * time.Millisecond,
	}
}

func newHarness(t *testing.T, opts Options, created bool) *harness {
	t.Helper()
	logger := arbor.NewLogger()

	cfg := config.Default()
	cfg.Badger.InMemory = true
	store, err := badger.InitKVStore(cfg, logger)
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	hub := events.NewHub(1024, logger)
	t.Cleanup(hub.Close)

	bus := transport.NewBus(logger)
	page := &fakePage{id: "page-1"}
	host := &fakeHost{page: page, created: created}
	worker := &fakeWorker{}
	attacher := &fakeAttacher{bus: bus, worker: worker}

	h := &harness{
		bus:      bus,
		host:     host,
		page:     page,
		worker:   worker,
		attacher: attacher,
		store:    store,
		events:   record(hub),
	}
	h.o = NewOrchestrator(opts, host, attacher, bus, hub, store, logger)
	t.Cleanup(h.o.Close)
	return h
}

func (h *harness) start(t *testing.T, jobID string) {
	t.Helper()
	reply := h.o.Start(model.StartJobPayload{JobID: jobID, TargetName: "Weekend Trip"})
	require.True(t, reply.Accepted, "start %s: %+v", jobID, reply.Error)
}

func (h *harness) waitState(t *testing.T, state model.JobState) {
	t.Helper()
	require.Eventually(t, func() bool {
		st := h.o.Status()
		return st.Job != nil && st.Job.State == state
	}, 2*time.Second, 2*time.Millisecond, "waiting for %s", state)
}

// waitIdle 等待任务结束并返回最终的空闲记录
func (h *harness) waitIdle(t *testing.T) model.IdleState {
	t.Helper()
	require.Eventually(t, func() bool {
		st := h.o.Status()
		return !st.Locked && st.Job == nil
	}, 3*time.Second, 2*time.Millisecond)
	return *h.o.Status().Idle
}

type nilBroadcaster struct{}

func (nilBroadcaster) Publish(events.Event) {}
