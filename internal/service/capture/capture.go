package capture

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/LouYuanbo1/groupagent/internal/domain/entity"
	"github.com/LouYuanbo1/groupagent/internal/domain/model"
	"github.com/LouYuanbo1/groupagent/internal/infra/clock"
	"github.com/LouYuanbo1/groupagent/internal/service/collector"
	"github.com/ternarybob/arbor"
	"golang.org/x/time/rate"
)

// ErrDetached 滚动容器已从页面上移除
var ErrDetached = errors.New("scroll container detached")

// Metrics 滚动容器的几何信息(像素)
type Metrics struct {
	Top          float64 `json:"top"`
	ClientHeight float64 `json:"clientHeight"`
	ScrollHeight float64 `json:"scrollHeight"`
}

// Container 可滚动的虚拟列表
type Container interface {
	Metrics(ctx context.Context) (Metrics, error)
	ScrollTo(ctx context.Context, top float64) error
}

// EnumerateFunc 读取当前可见的候选行
type EnumerateFunc func(ctx context.Context) ([]entity.Candidate, error)

// Progress 采集进度快照
type Progress struct {
	Count   int            `json:"count"`
	Percent int            `json:"percent"`
	Items   []model.Member `json:"items,omitempty"`
}

const (
	StopBottom     = "bottom"
	StopNoNew      = "no_new"
	StopFastStreak = "fast_streak"
	StopCeiling    = "ceiling"
	StopAttempts   = "max_attempts"
)

// Result 一次采集的统计
type Result struct {
	Attempts   int
	Sweeps     int
	StopReason string
}

type Engine struct {
	opts      Options
	collector *collector.Collector
	logger    arbor.ILogger
	sleep     func(ctx context.Context, d time.Duration) error
	now       func() time.Time
}

func NewEngine(opts Options, c *collector.Collector, logger arbor.ILogger) *Engine {
	return &Engine{
		opts:      opts.withDefaults(),
		collector: c,
		logger:    logger,
		sleep:     clock.Sleep,
		now:       time.Now,
	}
}


// session 一次采集过程的可变状态
type session struct {
	step       float64
	delay      time.Duration
	velocities []float64
	noNew      int
	fastStreak int
	attempts   int
	lastTick   time.Time
	limiter    *rate.Limiter
	lastPct    int
}

// Capture 增量滚动容器并把可见行送入 collector,直到启发式判定列表结束。
// progress 由本方法在返回时关闭。
func (e *Engine) Capture(ctx context.Context, container Container, enumerate EnumerateFunc, progress chan<- Progress) (Result, error) {
	if progress != nil {
		defer close(progress)
	}
	o := e.opts
	s := &session{
		step:    o.MinStep,
		delay:   o.NormalDelay,
		limiter: rate.NewLimiter(rate.Every(o.ProgressInterval), 1),
	}

	// 对话框可能打开在中间位置,先回到顶部
	if err := container.ScrollTo(ctx, 0); err != nil {
		return Result{}, fmt.Errorf("scroll container to top: %w", err)
	}
	if err := e.sleep(ctx, o.Settle); err != nil {
		return Result{}, err
	}
	m, err := container.Metrics(ctx)
	if err != nil {
		return Result{}, fmt.Errorf("read container metrics: %w", err)
	}
	if _, err := e.extract(ctx, enumerate); err != nil {
		return Result{}, err
	}
	e.emit(ctx, s, progress, percentOf(m), true)
	s.lastTick = e.now()

	reason, err := e.scrollLoop(ctx, s, container, enumerate, progress)
	if err != nil {
		return Result{Attempts: s.attempts}, err
	}

	sweeps, err := e.sweep(ctx, container, enumerate)
	if err != nil {
		return Result{Attempts: s.attempts, StopReason: reason}, err
	}
	if _, err := e.extract(ctx, enumerate); err != nil {
		return Result{Attempts: s.attempts, StopReason: reason}, err
	}

	e.emit(ctx, s, progress, 100, true)
	e.logger.Debug().
		Int("attempts", s.attempts).
		Int("sweeps", sweeps).
		Int("count", e.collector.Size()).
		Str("stop_reason", reason).
		Msg("capture finished")
	return Result{Attempts: s.attempts, Sweeps: sweeps, StopReason: reason}, nil
}

func (e *Engine) scrollLoop(ctx context.Context, s *session, container Container, enumerate EnumerateFunc, progress chan<- Progress) (string, error) {
	o := e.opts
	for s.attempts < o.MaxAttempts {
		if err := ctx.Err(); err != nil {
			return "", err
		}
		if e.collector.Full() {
			return StopCeiling, nil
		}
		s.attempts++

		before, err := container.Metrics(ctx)
		if err != nil {
			return "", fmt.Errorf("read container metrics: %w", err)
		}
		if err := container.ScrollTo(ctx, before.Top+before.ClientHeight*s.step); err != nil {
			return "", fmt.Errorf("scroll container: %w", err)
		}
		if err := e.sleep(ctx, s.delay); err != nil {
			return "", err
		}
		after, err := container.Metrics(ctx)
		if err != nil {
			return "", fmt.Errorf("read container metrics: %w", err)
		}

		added, err := e.extract(ctx, enumerate)
		if err != nil {
			return "", err
		}
		e.recordVelocity(s, added)

		if added > 0 {
			s.noNew = 0
			e.emit(ctx, s, progress, percentOf(after), true)
			if err := e.sleep(ctx, o.NewItemsPause); err != nil {
				return "", err
			}
		} else {
			s.noNew++
			e.emit(ctx, s, progress, percentOf(after), false)
		}

		if s.attempts%o.VelocityCheckInterval == 0 && len(s.velocities) >= o.MinVelocitySamples {
			e.adapt(s)
		}

		scrolled := after.Top - before.Top
		if scrolled < o.BottomEpsilon || after.Top+after.ClientHeight >= after.ScrollHeight-o.BottomSlack {
			for range o.TrailingPasses {
				if err := e.sleep(ctx, o.TrailingDelay); err != nil {
					return "", err
				}
				if _, err := e.extract(ctx, enumerate); err != nil {
					return "", err
				}
			}
			return StopBottom, nil
		}
		if s.noNew >= o.NoNewLimit {
			return StopNoNew, nil
		}
		if s.fastStreak > o.FastStreakLimit {
			return StopFastStreak, nil
		}
	}
	return StopAttempts, nil
}

func (e *Engine) recordVelocity(s *session, added int) {
	now := e.now()
	elapsed := float64(now.Sub(s.lastTick).Milliseconds())
	if elapsed < 1 {
		elapsed = 1
	}
	s.lastTick = now
	s.velocities = append(s.velocities, float64(added)/elapsed)
	if len(s.velocities) > e.opts.VelocityWindow {
		s.velocities = s.velocities[len(s.velocities)-e.opts.VelocityWindow:]
	}
}

// adapt 根据平均速度调整步长和等待时间
func (e *Engine) adapt(s *session) {
	o := e.opts
	var sum float64
	for _, v := range s.velocities {
		sum += v
	}
	avg := sum / float64(len(s.velocities))
	switch {
	case avg > o.HighVelocity:
		s.delay = o.SlowDelay
		s.step = o.MinStep
		s.fastStreak = 0
	case avg < o.LowVelocity:
		s.delay = o.FastDelay
		s.step = math.Min(o.MaxStep, s.step*1.2)
		s.fastStreak++
	default:
		s.delay = o.NormalDelay
		s.step = (o.MinStep + o.MaxStep) / 2
	}
}

// sweep 回到顶部后以半屏步长再扫一遍,补齐被跳过的行
func (e *Engine) sweep(ctx context.Context, container Container, enumerate EnumerateFunc) (int, error) {
	o := e.opts
	if err := container.ScrollTo(ctx, 0); err != nil {
		return 0, fmt.Errorf("scroll container: %w", err)
	}
	if err := e.sleep(ctx, o.SweepSettle); err != nil {
		return 0, err
	}
	m, err := container.Metrics(ctx)
	if err != nil {
		return 0, fmt.Errorf("read container metrics: %w", err)
	}
	maxTop := m.ScrollHeight - m.ClientHeight
	pos := 0.0
	sweeps := 0
	for sweeps < o.MaxSweeps && pos < maxTop {
		if e.collector.Full() {
			break
		}
		pos = math.Min(pos+m.ClientHeight/2, maxTop)
		if err := container.ScrollTo(ctx, pos); err != nil {
			return sweeps, fmt.Errorf("scroll container: %w", err)
		}
		if err := e.sleep(ctx, o.SweepDelay); err != nil {
			return sweeps, err
		}
		if _, err := e.extract(ctx, enumerate); err != nil {
			return sweeps, err
		}
		sweeps++
	}
	return sweeps, nil
}

func (e *Engine) extract(ctx context.Context, enumerate EnumerateFunc) (int, error) {
	candidates, err := enumerate(ctx)
	if err != nil {
		return 0, fmt.Errorf("enumerate visible rows: %w", err)
	}
	added := 0
	for _, c := range candidates {
		if e.collector.Observe(c.Text, c.Phone, c.Privileged) {
			added++
		}
	}
	return added, nil
}

// emit 非强制的进度事件受限流器约束
func (e *Engine) emit(ctx context.Context, s *session, progress chan<- Progress, pct int, force bool) {
	if progress == nil {
		return
	}
	if pct < s.lastPct {
		pct = s.lastPct
	}
	s.lastPct = pct
	if !s.limiter.AllowN(e.now(), 1) && !force {
		return
	}
	p := Progress{Count: e.collector.Size(), Percent: pct, Items: e.collector.Values()}
	select {
	case progress <- p:
	case <-ctx.Done():
	}
}

func percentOf(m Metrics) int {
	if m.ScrollHeight <= 0 {
		return 0
	}
	pct := int(math.Round((m.Top + m.ClientHeight) / m.ScrollHeight * 100))
	return max(0, min(100, pct))
}
