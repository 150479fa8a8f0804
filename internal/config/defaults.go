package config

// Default 返回带默认值的配置
func Default() *Config {
	cfg := &Config{}
	cfg.Browser.Backend = "rod"
	cfg.Browser.TargetURL = "https://web.whatsapp.com/"
	cfg.Rod.Headless = true
	cfg.Rod.Leakless = true
	cfg.Chromedp.Headless = true
	cfg.Badger.Path = "./data/badger"
	cfg.Server.Host = "127.0.0.1"
	cfg.Server.Port = 8085
	cfg.Server.ProgressThrottleMs = 150
	cfg.Orchestrator.SnapshotSchedule = "@every 5s"
	return cfg
}

// fillDefaults 只填充编排器相关的零值,其余调节参数由各组件自行兜底
func (c *Config) fillDefaults() {
	o := &c.Orchestrator
	if o.BootTimeoutMs == 0 {
		o.BootTimeoutMs = 30000
	}
	if o.InjectGraceMs == 0 {
		o.InjectGraceMs = 2000
	}
	if o.ReuseGraceMs == 0 {
		o.ReuseGraceMs = 500
	}
	if o.ReadyTimeoutMs == 0 {
		o.ReadyTimeoutMs = 5000
	}
	if len(o.SessionBackoffMs) == 0 {
		o.SessionBackoffMs = []int{500, 1000, 2000, 4000}
	}
	if o.SessionRequestTimeoutMs == 0 {
		o.SessionRequestTimeoutMs = 3000
	}
	if o.SessionCheckTimeoutMs == 0 {
		o.SessionCheckTimeoutMs = 30000
	}
	if o.ExtractionTimeoutMs == 0 {
		o.ExtractionTimeoutMs = 10 * 60 * 1000
	}
	if o.LockTimeoutMs == 0 {
		o.LockTimeoutMs = 15 * 60 * 1000
	}
	if c.Worker.MaxEntities == 0 {
		c.Worker.MaxEntities = 10000
	}
	if c.Worker.CacheSize == 0 {
		c.Worker.CacheSize = 100
	}
}
