package worker

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/LouYuanbo1/groupagent/internal/infra/clock"
	"github.com/LouYuanbo1/groupagent/internal/infra/crawler/discovery"
	"github.com/ternarybob/arbor"
)

type NavOptions struct {
	Retries         int
	Backoff         time.Duration
	ListScrollStep  float64
	ListScrollSteps int
	ListScrollDelay time.Duration
	TypeDelay       time.Duration
	SearchSettle    time.Duration
	ClickSettle     time.Duration
	VerifyDistance  int
	ListDistance    int
	EscapePresses   int
}

func DefaultNavOptions() NavOptions {
	return NavOptions{
		Retries:         3,
		Backoff:         time.Second,
		ListScrollStep:  300,
		ListScrollSteps: 40,
		ListScrollDelay: 300 * time.Millisecond,
		TypeDelay:       80 * time.Millisecond,
		SearchSettle:    2 * time.Second,
		ClickSettle:     800 * time.Millisecond,
		VerifyDistance:  3,
		ListDistance:    2,
		EscapePresses:   5,
	}
}

func (o NavOptions) withDefaults() NavOptions {
	d := DefaultNavOptions()
	if o.Retries <= 0 {
		o.Retries = d.Retries
	}
	if o.Backoff <= 0 {
		o.Backoff = d.Backoff
	}
	if o.ListScrollStep <= 0 {
		o.ListScrollStep = d.ListScrollStep
	}
	if o.ListScrollSteps <= 0 {
		o.ListScrollSteps = d.ListScrollSteps
	}
	if o.ListScrollDelay <= 0 {
		o.ListScrollDelay = d.ListScrollDelay
	}
	if o.TypeDelay <= 0 {
		o.TypeDelay = d.TypeDelay
	}
	if o.SearchSettle <= 0 {
		o.SearchSettle = d.SearchSettle
	}
	if o.ClickSettle <= 0 {
		o.ClickSettle = d.ClickSettle
	}
	if o.VerifyDistance <= 0 {
		o.VerifyDistance = d.VerifyDistance
	}
	if o.ListDistance <= 0 {
		o.ListDistance = d.ListDistance
	}
	if o.EscapePresses <= 0 {
		o.EscapePresses = d.EscapePresses
	}
	return o
}

// Target 要打开的会话
type Target struct {
	ID       string
	Name     string
	Archived bool
}

const (
	MethodAlreadyOpen = "already_open"
	MethodReference   = "reference"
	MethodArchived    = "archived_list"
	MethodList        = "chat_list"
	MethodSearch      = "search"
)

type Navigator struct {
	surface Surface
	opts    NavOptions
	logger  arbor.ILogger
	sleep   func(ctx context.Context, d time.Duration) error
}

func NewNavigator(surface Surface, opts NavOptions, logger arbor.ILogger) *Navigator {
	return &Navigator{
		surface: surface,
		opts:    opts.withDefaults(),
		logger:  logger,
		sleep:   clock.Sleep,
	}
}


// NavigateToTarget 打开目标会话并确认标题匹配,返回成功的方式
func (n *Navigator) NavigateToTarget(ctx context.Context, target Target) (string, error) {
	if ok, _ := n.verify(ctx, target); ok {
		return MethodAlreadyOpen, nil
	}

	var lastErr error
	for attempt := 1; attempt <= n.opts.Retries; attempt++ {
		method, _, err := discovery.First(ctx, n.strategies(target)...)
		if err == nil {
			n.logger.Debug().Str("target", target.Name).Str("method", method).Int("attempt", attempt).Msg("navigation succeeded")
			return method, nil
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return "", ctxErr
		}
		lastErr = err
		n.logger.Debug().Err(err).Str("target", target.Name).Int("attempt", attempt).Msg("navigation attempt failed")
		if attempt < n.opts.Retries {
			if err := n.sleep(ctx, n.opts.Backoff*time.Duration(attempt)); err != nil {
				return "", err
			}
		}
	}
	if errors.Is(lastErr, ErrVerificationFailed) {
		return "", fmt.Errorf("navigate to %q: %w", target.Name, ErrVerificationFailed)
	}
	return "", fmt.Errorf("navigate to %q: %w", target.Name, ErrTargetNotFound)
}

func (n *Navigator) strategies(target Target) []discovery.Strategy[string] {
	var out []discovery.Strategy[string]
	if target.ID != "" {
		out = append(out, n.strategy(MethodReference, target, func(ctx context.Context) (bool, error) {
			return n.surface.OpenByReference(ctx, target.ID, target.Archived)
		}))
	}
	if target.Archived {
		out = append(out, n.strategy(MethodArchived, target, func(ctx context.Context) (bool, error) {
			return n.openFromArchived(ctx, target)
		}))
	}
	out = append(out,
		n.strategy(MethodList, target, func(ctx context.Context) (bool, error) {
			return n.openFromList(ctx, target)
		}),
		n.strategy(MethodSearch, target, func(ctx context.Context) (bool, error) {
			return n.openFromSearch(ctx, target)
		}),
	)
	return out
}

// strategy 包装一个打开方式:打开成功后还需标题校验通过才算命中
func (n *Navigator) strategy(name string, target Target, open func(ctx context.Context) (bool, error)) discovery.Strategy[string] {
	return discovery.Strategy[string]{
		Name: name,
		Find: func(ctx context.Context) (string, bool, error) {
			opened, err := open(ctx)
			if err != nil || !opened {
				return "", false, err
			}
			ok, err := n.verify(ctx, target)
			if err != nil {
				return "", false, err
			}
			if !ok {
				return "", false, ErrVerificationFailed
			}
			return name, true, nil
		},
	}
}

func (n *Navigator) verify(ctx context.Context, target Target) (bool, error) {
	if err := n.sleep(ctx, n.opts.ClickSettle); err != nil {
		return false, err
	}
	title, err := n.surface.OpenTitle(ctx)
	if err != nil {
		return false, err
	}
	return TitleMatches(title, target.Name, n.opts.VerifyDistance), nil
}

func (n *Navigator) openFromArchived(ctx context.Context, target Target) (bool, error) {
	ok, err := n.surface.OpenArchived(ctx)
	if err != nil || !ok {
		return false, err
	}
	opened, err := n.scanList(ctx, target)
	if !opened {
		if cerr := n.surface.CloseArchived(ctx); cerr != nil {
			n.logger.Debug().Err(cerr).Msg("close archived list failed")
		}
	}
	return opened, err
}

func (n *Navigator) openFromList(ctx context.Context, target Target) (bool, error) {
	if err := n.surface.ResetListScroll(ctx); err != nil {
		return false, err
	}
	return n.scanList(ctx, target)
}

// scanList 在当前渲染的列表中查找目标,找不到就向下滚动继续
func (n *Navigator) scanList(ctx context.Context, target Target) (bool, error) {
	for step := 0; step <= n.opts.ListScrollSteps; step++ {
		titles, err := n.surface.ListTitles(ctx)
		if err != nil {
			return false, err
		}
		if title, ok := bestMatch(titles, target.Name, n.opts.ListDistance); ok {
			return n.surface.ClickListItem(ctx, title)
		}
		if step == n.opts.ListScrollSteps {
			break
		}
		moved, err := n.surface.ScrollList(ctx, n.opts.ListScrollStep)
		if err != nil {
			return false, err
		}
		if !moved {
			break
		}
		if err := n.sleep(ctx, n.opts.ListScrollDelay); err != nil {
			return false, err
		}
	}
	return false, nil
}

func (n *Navigator) openFromSearch(ctx context.Context, target Target) (bool, error) {
	if err := n.surface.DismissOverlays(ctx, n.opts.EscapePresses); err != nil {
		return false, err
	}
	focused, err := n.surface.FocusSearch(ctx)
	if err != nil || !focused {
		return false, err
	}
	defer func() {
		if err := n.surface.ClearSearch(context.WithoutCancel(ctx)); err != nil {
			n.logger.Debug().Err(err).Msg("clear search failed")
		}
	}()
	for _, r := range target.Name {
		if err := n.surface.TypeChar(ctx, r); err != nil {
			return false, err
		}
		if err := n.sleep(ctx, n.opts.TypeDelay); err != nil {
			return false, err
		}
	}
	if err := n.sleep(ctx, n.opts.SearchSettle); err != nil {
		return false, err
	}
	results, err := n.surface.SearchResults(ctx)
	if err != nil {
		return false, err
	}
	title, ok := bestMatch(results, target.Name, n.opts.ListDistance)
	if !ok {
		return false, nil
	}
	return n.surface.ClickSearchResult(ctx, title)
}
