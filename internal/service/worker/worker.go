package worker

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"

	"github.com/LouYuanbo1/groupagent/internal/domain/model"
	"github.com/LouYuanbo1/groupagent/internal/infra/crawler/chrome"
	"github.com/LouYuanbo1/groupagent/internal/infra/transport"
	"github.com/LouYuanbo1/groupagent/internal/service/capture"
	"github.com/ternarybob/arbor"
)

var errAlreadyRunning = errors.New("an extraction is already running in this page")

// Options worker 的可调参数
type Options struct {
	Nav         NavOptions
	Capture     capture.Options
	MaxEntities int
}

// Endpoint 页面 worker 在消息总线上的端点名
func Endpoint(pageID string) string {
	return "worker:" + pageID
}

// Worker 附着在单个页面上的消息处理器
type Worker struct {
	pageID    string
	surface   Surface
	extractor *Extractor
	bus       *transport.Bus
	cache     *ResultCache
	logger    arbor.ILogger
	running   atomic.Bool
}

func NewWorker(pageID string, surface Surface, bus *transport.Bus, opts Options, cache *ResultCache, logger arbor.ILogger) *Worker {
	nav := NewNavigator(surface, opts.Nav, logger)
	return &Worker{
		pageID:    pageID,
		surface:   surface,
		extractor: NewExtractor(surface, nav, opts.Capture, opts.MaxEntities, logger),
		bus:       bus,
		cache:     cache,
		logger:    logger,
	}
}

func (w *Worker) Handle(ctx context.Context, msg *transport.Message) (*transport.Message, error) {
	switch msg.Type {
	case model.MsgPing:
		return transport.NewMessage(model.MsgPong, msg.JobID, nil)
	case model.MsgCheckSession:
		return w.checkSession(ctx, msg)
	case model.MsgRunExtraction:
		return w.runExtraction(ctx, msg)
	default:
		return nil, nil
	}
}

func (w *Worker) checkSession(ctx context.Context, msg *transport.Message) (*transport.Message, error) {
	state, err := w.surface.SessionState(ctx)
	if err != nil {
		w.logger.Debug().Err(err).Str("page_id", w.pageID).Msg("session state check failed")
		state = "UNKNOWN"
	}
	return transport.NewMessage(msg.Type, msg.JobID, model.SessionPayload{State: state})
}

func (w *Worker) runExtraction(ctx context.Context, msg *transport.Message) (*transport.Message, error) {
	var req model.RunExtractionPayload
	if err := msg.Decode(&req); err != nil {
		return nil, err
	}
	if !w.running.CompareAndSwap(false, true) {
		return transport.NewMessage(msg.Type, req.JobID, model.ExtractionReply{Error: ErrorPayload(errAlreadyRunning)})
	}
	defer w.running.Store(false)

	target := Target{ID: req.TargetID, Name: req.TargetName, Archived: req.TargetIsArchived}
	logger := w.logger.WithCorrelationId(req.JobID)

	if members, meta, ok := w.cache.Get(target); ok {
		logger.Info().Str("target", target.Name).Int("count", len(members)).Msg("serving cached extraction")
		meta.Mode = ModeCache
		w.report(ctx, req.JobID, capture.Progress{Count: len(members), Percent: 100})
		return transport.NewMessage(msg.Type, req.JobID, model.ExtractionReply{Entities: members, Meta: meta})
	}

	members, meta, err := w.extractor.Run(ctx, target, func(p capture.Progress) {
		w.report(ctx, req.JobID, p)
	})
	if err != nil {
		logger.Warn().Err(err).Str("target", target.Name).Msg("extraction failed")
		return transport.NewMessage(msg.Type, req.JobID, model.ExtractionReply{Meta: meta, Error: ErrorPayload(err)})
	}
	w.cache.Put(target, members, meta)
	logger.Info().Str("target", target.Name).Int("count", len(members)).Str("mode", meta.Mode).Msg("extraction finished")
	return transport.NewMessage(msg.Type, req.JobID, model.ExtractionReply{Entities: members, Meta: meta})
}

func (w *Worker) report(ctx context.Context, jobID string, p capture.Progress) {
	w.bus.Send(ctx, model.CoordinatorEndpoint, transport.MustMessage(model.MsgReportProgress, jobID, model.ProgressPayload{
		JobID:   jobID,
		Percent: p.Percent,
		Count:   p.Count,
	}))
}

// SurfaceFactory 为页面构造操作面
type SurfaceFactory func(page chrome.Page) Surface

// Injector 把 worker 端点注入到页面,重复注入同一页面不产生副作用
type Injector struct {
	bus        *transport.Bus
	newSurface SurfaceFactory
	opts       Options
	cache      *ResultCache
	logger     arbor.ILogger

	mu       sync.Mutex
	attached map[string]*Worker
}

func NewInjector(bus *transport.Bus, newSurface SurfaceFactory, opts Options, cache *ResultCache, logger arbor.ILogger) *Injector {
	return &Injector{
		bus:        bus,
		newSurface: newSurface,
		opts:       opts,
		cache:      cache,
		logger:     logger,
		attached:   make(map[string]*Worker),
	}
}

func (in *Injector) Attach(ctx context.Context, page chrome.Page) (string, error) {
	in.mu.Lock()
	defer in.mu.Unlock()
	id := page.ID()
	endpoint := Endpoint(id)
	if _, ok := in.attached[id]; ok && in.bus.Has(endpoint) {
		return endpoint, nil
	}
	w := NewWorker(id, in.newSurface(page), in.bus, in.opts, in.cache, in.logger)
	in.attached[id] = w
	in.bus.Register(endpoint, w.Handle)
	in.logger.Debug().Str("page_id", id).Msg("worker attached")
	return endpoint, nil
}

func (in *Injector) Detach(pageID string) {
	in.mu.Lock()
	defer in.mu.Unlock()
	if _, ok := in.attached[pageID]; !ok {
		return
	}
	delete(in.attached, pageID)
	in.bus.Unregister(Endpoint(pageID))
	in.logger.Debug().Str("page_id", pageID).Msg("worker detached")
}
