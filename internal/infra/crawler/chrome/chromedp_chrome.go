package chrome

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/LouYuanbo1/groupagent/internal/config"
	"github.com/chromedp/cdproto/input"
	"github.com/chromedp/cdproto/runtime"
	"github.com/chromedp/cdproto/target"
	"github.com/chromedp/chromedp"
	"github.com/chromedp/chromedp/kb"
	"github.com/ternarybob/arbor"
)

type chromedpPageHost struct {
	allocCtx      context.Context
	allocCtxFuc   context.CancelFunc
	browserCtx    context.Context
	browserCtxFuc context.CancelFunc
	targetURL     string
	logger        arbor.ILogger
}

func InitChromedpPageHost(ctx context.Context, cfg *config.Config, logger arbor.ILogger) (PageHost, error) {
	var allocCtx context.Context
	var cancelAlloc context.CancelFunc
	if cfg.Chromedp.RemoteURL != "" {
		allocCtx, cancelAlloc = chromedp.NewRemoteAllocator(ctx, cfg.Chromedp.RemoteURL)
	} else {
		opts := append(chromedp.DefaultExecAllocatorOptions[:],
			chromedp.Flag("headless", cfg.Chromedp.Headless),
			chromedp.Flag("incognito", cfg.Chromedp.Incognito),
			chromedp.Flag("disable-dev-shm-usage", cfg.Chromedp.DisableDevShmUsage),
			chromedp.Flag("no-sandbox", cfg.Chromedp.NoSandbox),
		)
		if cfg.Chromedp.DisableBlinkFeatures != "" {
			opts = append(opts, chromedp.Flag("disable-blink-features", cfg.Chromedp.DisableBlinkFeatures))
		}
		if cfg.Chromedp.UserDataDir != "" {
			opts = append(opts, chromedp.UserDataDir(cfg.Chromedp.UserDataDir))
		}
		if cfg.Chromedp.UserAgent != "" {
			opts = append(opts, chromedp.UserAgent(cfg.Chromedp.UserAgent))
		}
		allocCtx, cancelAlloc = chromedp.NewExecAllocator(ctx, opts...)
	}
	browserCtx, cancelBrowser := chromedp.NewContext(allocCtx)
	// 启动浏览器
	if err := chromedp.Run(browserCtx); err != nil {
		cancelBrowser()
		cancelAlloc()
		return nil, fmt.Errorf("启动浏览器失败: %w", err)
	}
	logger.Info().Str("target_url", cfg.Browser.TargetURL).Msg("chromedp browser started")
	return &chromedpPageHost{
		allocCtx:      allocCtx,
		allocCtxFuc:   cancelAlloc,
		browserCtx:    browserCtx,
		browserCtxFuc: cancelBrowser,
		targetURL:     cfg.Browser.TargetURL,
		logger:        logger,
	}, nil
}

func (h *chromedpPageHost) Acquire(ctx context.Context) (Page, bool, error) {
	listCtx, cancelList := bind(h.browserCtx, ctx)
	targets, err := chromedp.Targets(listCtx)
	cancelList()
	if err != nil {
		return nil, false, fmt.Errorf("list targets: %w", err)
	}
	for _, t := range targets {
		if t.Type == "page" && strings.HasPrefix(t.URL, h.targetURL) {
			h.logger.Debug().Str("page_id", string(t.TargetID)).Msg("reusing open page")
			return h.attach(t.TargetID, t.URL), false, nil
		}
	}

	runCtx, cancel := bind(h.browserCtx, ctx)
	defer cancel()
	var id target.ID
	err = chromedp.Run(runCtx, chromedp.ActionFunc(func(ctx context.Context) error {
		var err error
		id, err = target.CreateTarget(h.targetURL).WithBackground(true).Do(ctx)
		return err
	}))
	if err != nil {
		return nil, false, fmt.Errorf("create target: %w", err)
	}
	h.logger.Debug().Str("page_id", string(id)).Msg("created worker page")
	return h.attach(id, h.targetURL), true, nil
}

func (h *chromedpPageHost) attach(id target.ID, url string) *chromedpPage {
	tabCtx, cancel := chromedp.NewContext(h.browserCtx, chromedp.WithTargetID(id))
	return &chromedpPage{
		id:         id,
		url:        url,
		tabCtx:     tabCtx,
		tabCtxFuc:  cancel,
		browserCtx: h.browserCtx,
	}
}

func (h *chromedpPageHost) Close() {
	h.browserCtxFuc()
	h.allocCtxFuc()
}

type chromedpPage struct {
	id         target.ID
	url        string
	tabCtx     context.Context
	tabCtxFuc  context.CancelFunc
	browserCtx context.Context
}

// bind 让 chromedp 调用同时受页面上下文和调用方上下文约束
func bind(tabCtx, ctx context.Context) (context.Context, context.CancelFunc) {
	runCtx, cancel := context.WithCancel(tabCtx)
	stop := context.AfterFunc(ctx, cancel)
	return runCtx, func() {
		stop()
		cancel()
	}
}

func (p *chromedpPage) ID() string {
	return string(p.id)
}

func (p *chromedpPage) URL() string {
	return p.url
}

func (p *chromedpPage) WaitLoad(ctx context.Context) error {
	runCtx, cancel := bind(p.tabCtx, ctx)
	defer cancel()
	var complete bool
	return chromedp.Run(runCtx, chromedp.Poll(`document.readyState === "complete"`, &complete, chromedp.WithPollingInterval(100*time.Millisecond)))
}

func (p *chromedpPage) Driver() Driver {
	return &chromedpDriver{page: p}
}

func (p *chromedpPage) Close(ctx context.Context) error {
	defer p.tabCtxFuc()
	runCtx, cancel := bind(p.browserCtx, ctx)
	defer cancel()
	return chromedp.Run(runCtx, chromedp.ActionFunc(func(ctx context.Context) error {
		return target.CloseTarget(p.id).Do(ctx)
	}))
}

type chromedpDriver struct {
	page *chromedpPage
}

func awaitPromise(p *runtime.EvaluateParams) *runtime.EvaluateParams {
	return p.WithAwaitPromise(true)
}

func (d *chromedpDriver) Eval(ctx context.Context, js string, out any, args ...any) error {
	if args == nil {
		args = []any{}
	}
	rawArgs, err := json.Marshal(args)
	if err != nil {
		return fmt.Errorf("encode eval args: %w", err)
	}
	expr := fmt.Sprintf("(%s).apply(null, %s)", js, rawArgs)

	runCtx, cancel := bind(d.page.tabCtx, ctx)
	defer cancel()
	var res string
	if out == nil {
		return chromedp.Run(runCtx, chromedp.Evaluate(expr, nil, awaitPromise))
	}
	if err := chromedp.Run(runCtx, chromedp.Evaluate(expr, &res, awaitPromise)); err != nil {
		return fmt.Errorf("eval: %w", err)
	}
	if err := json.Unmarshal([]byte(res), out); err != nil {
		return fmt.Errorf("decode eval result: %w", err)
	}
	return nil
}

func (d *chromedpDriver) InsertText(ctx context.Context, text string) error {
	runCtx, cancel := bind(d.page.tabCtx, ctx)
	defer cancel()
	return chromedp.Run(runCtx, input.InsertText(text))
}

func (d *chromedpDriver) PressEscape(ctx context.Context) error {
	runCtx, cancel := bind(d.page.tabCtx, ctx)
	defer cancel()
	return chromedp.Run(runCtx, chromedp.KeyEvent(kb.Escape))
}
