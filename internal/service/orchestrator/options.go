package orchestrator

import "time"

// Options 各阶段的超时与等待
type Options struct {
	BootTimeout           time.Duration
	InjectGrace           time.Duration
	ReuseGrace            time.Duration
	ReadyTimeout          time.Duration
	SessionBackoff        []time.Duration
	SessionRequestTimeout time.Duration
	SessionCheckTimeout   time.Duration
	ExtractionTimeout     time.Duration
	LockTimeout           time.Duration
	// CloseTimeout 清理阶段关闭页面的上限
	CloseTimeout time.Duration
}

func DefaultOptions() Options {
	return Options{
		BootTimeout:  30 * time.Second,
		InjectGrace:  2 * time.Second,
		ReuseGrace:   500 * time.Millisecond,
		ReadyTimeout: 5 * time.Second,
		SessionBackoff: []time.Duration{
			500 * time.Millisecond,
			time.Second,
			2 * time.Second,
			4 * time.Second,
		},
		SessionRequestTimeout: 3 * time.Second,
		SessionCheckTimeout:   30 * time.Second,
		ExtractionTimeout:     10 * time.Minute,
		LockTimeout:           15 * time.Minute,
		CloseTimeout:          5 * time.Second,
	}
}

func (o Options) withDefaults() Options {
	d := DefaultOptions()
	if o.BootTimeout <= 0 {
		o.BootTimeout = d.BootTimeout
	}
	if o.InjectGrace < 0 {
		o.InjectGrace = 0
	}
	if o.ReuseGrace < 0 {
		o.ReuseGrace = 0
	}
	if o.ReadyTimeout <= 0 {
		o.ReadyTimeout = d.ReadyTimeout
	}
	if o.SessionBackoff == nil {
		o.SessionBackoff = d.SessionBackoff
	}
	if o.SessionRequestTimeout <= 0 {
		o.SessionRequestTimeout = d.SessionRequestTimeout
	}
	if o.SessionCheckTimeout <= 0 {
		o.SessionCheckTimeout = d.SessionCheckTimeout
	}
	if o.ExtractionTimeout <= 0 {
		o.ExtractionTimeout = d.ExtractionTimeout
	}
	if o.LockTimeout <= 0 {
		o.LockTimeout = d.LockTimeout
	}
	if o.CloseTimeout <= 0 {
		o.CloseTimeout = d.CloseTimeout
	}
	return o
}
