package chrome

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/LouYuanbo1/groupagent/internal/config"
	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/input"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
	"github.com/go-rod/stealth"
	"github.com/ternarybob/arbor"
)

type rodPageHost struct {
	browser   *rod.Browser
	targetURL string
	logger    arbor.ILogger
}

func InitRodPageHost(cfg *config.Config, logger arbor.ILogger) (PageHost, error) {
	controlURL := cfg.Rod.ControlURL
	if controlURL == "" {
		l := launcher.New().
			Headless(cfg.Rod.Headless).
			Leakless(cfg.Rod.Leakless).
			NoSandbox(cfg.Rod.NoSandbox)
		if cfg.Rod.Bin != "" {
			l = l.Bin(cfg.Rod.Bin)
		}
		if cfg.Rod.UserDataDir != "" {
			l = l.UserDataDir(cfg.Rod.UserDataDir)
		}
		if cfg.Rod.DisableBlinkFeatures != "" {
			l = l.Set("disable-blink-features", cfg.Rod.DisableBlinkFeatures)
		}
		if cfg.Rod.DisableDevShmUsage {
			l = l.Set("disable-dev-shm-usage")
		}
		if cfg.Rod.Incognito {
			l = l.Set("incognito")
		}
		if cfg.Rod.UserAgent != "" {
			l = l.Set("user-agent", cfg.Rod.UserAgent)
		}
		u, err := l.Launch()
		if err != nil {
			return nil, fmt.Errorf("启动浏览器失败: %w", err)
		}
		controlURL = u
	}

	browser := rod.New().ControlURL(controlURL).Trace(cfg.Rod.Trace)
	if err := browser.Connect(); err != nil {
		return nil, fmt.Errorf("连接浏览器失败: %w", err)
	}
	logger.Info().Str("control_url", controlURL).Msg("rod browser connected")
	return &rodPageHost{
		browser:   browser,
		targetURL: cfg.Browser.TargetURL,
		logger:    logger,
	}, nil
}

func (h *rodPageHost) Acquire(ctx context.Context) (Page, bool, error) {
	pages, err := h.browser.Context(ctx).Pages()
	if err != nil {
		return nil, false, fmt.Errorf("list pages: %w", err)
	}
	for _, p := range pages {
		info, err := p.Info()
		if err != nil {
			continue
		}
		if strings.HasPrefix(info.URL, h.targetURL) {
			h.logger.Debug().Str("page_id", string(p.TargetID)).Msg("reusing open page")
			return &rodPage{page: p}, false, nil
		}
	}

	// 后台页面,不抢占用户当前标签页
	page, err := h.browser.Context(ctx).Page(proto.TargetCreateTarget{URL: "about:blank", Background: true})
	if err != nil {
		return nil, false, fmt.Errorf("create page: %w", err)
	}
	if _, err := page.EvalOnNewDocument(stealth.JS); err != nil {
		return &rodPage{page: page}, true, fmt.Errorf("inject stealth script: %w", err)
	}
	if err := page.Navigate(h.targetURL); err != nil {
		return &rodPage{page: page}, true, fmt.Errorf("navigate to %s: %w", h.targetURL, err)
	}
	h.logger.Debug().Str("page_id", string(page.TargetID)).Msg("created worker page")
	return &rodPage{page: page}, true, nil
}

func (h *rodPageHost) Close() {
	if err := h.browser.Close(); err != nil {
		h.logger.Warn().Err(err).Msg("close browser failed")
	}
}

type rodPage struct {
	page *rod.Page
}

func (p *rodPage) ID() string {
	return string(p.page.TargetID)
}

func (p *rodPage) URL() string {
	info, err := p.page.Info()
	if err != nil {
		return ""
	}
	return info.URL
}

func (p *rodPage) WaitLoad(ctx context.Context) error {
	return p.page.Context(ctx).WaitLoad()
}

func (p *rodPage) Driver() Driver {
	return &rodDriver{page: p.page}
}

func (p *rodPage) Close(ctx context.Context) error {
	return p.page.Context(ctx).Close()
}

type rodDriver struct {
	page *rod.Page
}

func (d *rodDriver) Eval(ctx context.Context, js string, out any, args ...any) error {
	res, err := d.page.Context(ctx).Eval(js, args...)
	if err != nil {
		return fmt.Errorf("eval: %w", err)
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal([]byte(res.Value.Str()), out); err != nil {
		return fmt.Errorf("decode eval result: %w", err)
	}
	return nil
}

func (d *rodDriver) InsertText(ctx context.Context, text string) error {
	return d.page.Context(ctx).InsertText(text)
}

func (d *rodDriver) PressEscape(ctx context.Context) error {
	return d.page.Context(ctx).KeyActions().Press(input.Escape).Do()
}
