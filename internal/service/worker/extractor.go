package worker

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/LouYuanbo1/groupagent/internal/domain/model"
	"github.com/LouYuanbo1/groupagent/internal/service/capture"
	"github.com/LouYuanbo1/groupagent/internal/service/collector"
	"github.com/ternarybob/arbor"
)

const (
	ModeDialog = "dialog"
	ModeInline = "inline"
	ModeCache  = "cache"
)

// Extractor 在页面上完成一次完整的成员提取
type Extractor struct {
	surface     Surface
	navigator   *Navigator
	captureOpts capture.Options
	maxEntities int
	logger      arbor.ILogger
	now         func() time.Time
}

func NewExtractor(surface Surface, nav *Navigator, captureOpts capture.Options, maxEntities int, logger arbor.ILogger) *Extractor {
	return &Extractor{
		surface:     surface,
		navigator:   nav,
		captureOpts: captureOpts,
		maxEntities: maxEntities,
		logger:      logger,
		now:         time.Now,
	}
}

// Run 导航到目标会话,打开详情,按群组大小选择弹窗滚动或内联读取。
// 打开过的弹窗和面板在返回前关闭。
func (x *Extractor) Run(ctx context.Context, target Target, onProgress func(capture.Progress)) ([]model.Member, model.ExtractionMeta, error) {
	meta := model.ExtractionMeta{GroupName: target.Name}

	if _, err := x.navigator.NavigateToTarget(ctx, target); err != nil {
		return nil, meta, err
	}
	if title, err := x.surface.OpenTitle(ctx); err == nil && title != "" {
		meta.GroupName = title
	}

	defer func() {
		if err := x.surface.CloseOverlays(context.WithoutCancel(ctx)); err != nil {
			x.logger.Debug().Err(err).Msg("close overlays failed")
		}
	}()

	opened, err := x.surface.OpenDetails(ctx)
	if err != nil {
		return nil, meta, fmt.Errorf("%w: %v", ErrDetailsUnavailable, err)
	}
	if !opened {
		return nil, meta, ErrDetailsUnavailable
	}

	c := collector.NewCollector(x.maxEntities)
	dialog, err := x.surface.OpenMembersDialog(ctx)
	if err != nil {
		return nil, meta, err
	}
	if dialog {
		meta.Mode = ModeDialog
		attempts, err := x.captureDialog(ctx, c, onProgress)
		meta.Attempts = attempts
		if err != nil {
			return nil, meta, err
		}
	} else {
		meta.Mode = ModeInline
		candidates, err := x.surface.InlineCandidates(ctx)
		if err != nil {
			return nil, meta, fmt.Errorf("%w: %v", ErrInlineExtractionFailed, err)
		}
		for _, cand := range candidates {
			c.Observe(cand.Text, cand.Phone, cand.Privileged)
		}
		if onProgress != nil {
			onProgress(capture.Progress{Count: c.Size(), Percent: 100})
		}
	}

	members := c.Values()
	meta.Total = len(members)
	meta.ExtractedAt = x.now()
	return members, meta, nil
}

func (x *Extractor) captureDialog(ctx context.Context, c *collector.Collector, onProgress func(capture.Progress)) (int, error) {
	container, err := x.surface.MembersContainer(ctx)
	if err != nil {
		if errors.Is(err, ErrScrollRegionNotFound) {
			return 0, err
		}
		return 0, fmt.Errorf("%w: %v", ErrScrollRegionNotFound, err)
	}

	progress := make(chan capture.Progress)
	relayDone := make(chan struct{})
	go func() {
		defer close(relayDone)
		for p := range progress {
			if onProgress != nil {
				onProgress(p)
			}
		}
	}()

	engine := capture.NewEngine(x.captureOpts, c, x.logger)
	res, err := engine.Capture(ctx, container, x.surface.VisibleCandidates, progress)
	<-relayDone
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return res.Attempts, ctxErr
		}
		return res.Attempts, fmt.Errorf("%w: %w", ErrCaptureFailed, err)
	}
	x.logger.Info().Int("count", c.Size()).Int("attempts", res.Attempts).Str("stop_reason", res.StopReason).Msg("members captured")
	return res.Attempts, nil
}

// ErrorPayload 把提取错误映射为边界错误码
func ErrorPayload(err error) *model.ErrorPayload {
	code := model.ErrExtractionFailed
	switch {
	case errors.Is(err, context.Canceled):
		code = model.ErrCancelled
	case errors.Is(err, ErrTargetNotFound), errors.Is(err, ErrVerificationFailed):
		code = model.ErrNoChat
	}
	return &model.ErrorPayload{Code: code, Message: err.Error(), Recoverable: code.Recoverable()}
}
