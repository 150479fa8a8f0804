package main

import (
	"net"
	"strconv"
	"time"

	"github.com/LouYuanbo1/groupagent/internal/config"
	"github.com/LouYuanbo1/groupagent/internal/server"
	"github.com/LouYuanbo1/groupagent/internal/service/capture"
	"github.com/LouYuanbo1/groupagent/internal/service/orchestrator"
	"github.com/LouYuanbo1/groupagent/internal/service/worker"
)

func ms(v int) time.Duration {
	return time.Duration(v) * time.Millisecond
}

// 配置里的毫秒值转换为各组件的选项,零值交给组件自己的默认值
func orchestratorOptions(cfg *config.Config) orchestrator.Options {
	o := cfg.Orchestrator
	backoff := make([]time.Duration, 0, len(o.SessionBackoffMs))
	for _, v := range o.SessionBackoffMs {
		backoff = append(backoff, ms(v))
	}
	return orchestrator.Options{
		BootTimeout:           ms(o.BootTimeoutMs),
		InjectGrace:           ms(o.InjectGraceMs),
		ReuseGrace:            ms(o.ReuseGraceMs),
		ReadyTimeout:          ms(o.ReadyTimeoutMs),
		SessionBackoff:        backoff,
		SessionRequestTimeout: ms(o.SessionRequestTimeoutMs),
		SessionCheckTimeout:   ms(o.SessionCheckTimeoutMs),
		ExtractionTimeout:     ms(o.ExtractionTimeoutMs),
		LockTimeout:           ms(o.LockTimeoutMs),
	}
}

func workerOptions(cfg *config.Config) worker.Options {
	c := cfg.Capture
	n := cfg.Navigation
	return worker.Options{
		Nav: worker.NavOptions{
			Retries:        n.Retries,
			Backoff:        ms(n.BackoffMs),
			TypeDelay:      ms(n.TypeDelayMs),
			SearchSettle:   ms(n.SearchSettleMs),
			VerifyDistance: n.VerifyDistance,
			ListDistance:   n.ListDistance,
		},
		Capture: capture.Options{
			Settle:           ms(c.SettleMs),
			FastDelay:        ms(c.FastDelayMs),
			NormalDelay:      ms(c.NormalDelayMs),
			SlowDelay:        ms(c.SlowDelayMs),
			ProgressInterval: ms(c.ProgressIntervalMs),
			MinStep:          c.MinStep,
			MaxStep:          c.MaxStep,
			NoNewLimit:       c.NoNewLimit,
			FastStreakLimit:  c.FastStreakLimit,
			MaxAttempts:      c.MaxAttempts,
			MaxSweeps:        c.MaxSweeps,
		},
		MaxEntities: cfg.Worker.MaxEntities,
	}
}

func serverOptions(cfg *config.Config) server.Options {
	return server.Options{
		Addr:             net.JoinHostPort(cfg.Server.Host, strconv.Itoa(cfg.Server.Port)),
		ProgressInterval: ms(cfg.Server.ProgressThrottleMs),
	}
}
