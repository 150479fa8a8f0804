package config

type Config struct {
	Browser struct {
		// rod 或 chromedp
		Backend   string `json:"backend" toml:"backend" yaml:"backend" validate:"oneof=rod chromedp"`
		TargetURL string `json:"target_url" toml:"target_url" yaml:"target_url" validate:"required,url"`
	} `json:"browser" toml:"browser" yaml:"browser"`

	Rod struct {
		ControlURL           string `json:"control_url" toml:"control_url" yaml:"control_url"`
		UserDataDir          string `json:"user_data_dir" toml:"user_data_dir" yaml:"user_data_dir"`
		Headless             bool   `json:"headless" toml:"headless" yaml:"headless"`
		DisableBlinkFeatures string `json:"disable_blink_features" toml:"disable_blink_features" yaml:"disable_blink_features"`
		Incognito            bool   `json:"incognito" toml:"incognito" yaml:"incognito"`
		DisableDevShmUsage   bool   `json:"disable_dev_shm_usage" toml:"disable_dev_shm_usage" yaml:"disable_dev_shm_usage"`
		NoSandbox            bool   `json:"no_sandbox" toml:"no_sandbox" yaml:"no_sandbox"`
		UserAgent            string `json:"user_agent" toml:"user_agent" yaml:"user_agent"`
		Leakless             bool   `json:"leakless" toml:"leakless" yaml:"leakless"`
		Bin                  string `json:"bin" toml:"bin" yaml:"bin"`
		Trace                bool   `json:"trace" toml:"trace" yaml:"trace"`
	} `json:"rod" toml:"rod" yaml:"rod"`

	Chromedp struct {
		RemoteURL            string `json:"remote_url" toml:"remote_url" yaml:"remote_url"`
		UserDataDir          string `json:"user_data_dir" toml:"user_data_dir" yaml:"user_data_dir"`
		Headless             bool   `json:"headless" toml:"headless" yaml:"headless"`
		DisableBlinkFeatures string `json:"disable_blink_features" toml:"disable_blink_features" yaml:"disable_blink_features"`
		Incognito            bool   `json:"incognito" toml:"incognito" yaml:"incognito"`
		DisableDevShmUsage   bool   `json:"disable_dev_shm_usage" toml:"disable_dev_shm_usage" yaml:"disable_dev_shm_usage"`
		NoSandbox            bool   `json:"no_sandbox" toml:"no_sandbox" yaml:"no_sandbox"`
		UserAgent            string `json:"user_agent" toml:"user_agent" yaml:"user_agent"`
	} `json:"chromedp" toml:"chromedp" yaml:"chromedp"`

	Elasticsearch struct {
		Enabled  bool   `json:"enabled" toml:"enabled" yaml:"enabled"`
		Username string `json:"username" toml:"username" yaml:"username"`
		Password string `json:"password" toml:"password" yaml:"password"`
		Address  string `json:"address" toml:"address" yaml:"address" validate:"required_if=Enabled true"`
	} `json:"elasticsearch" toml:"elasticsearch" yaml:"elasticsearch"`

	Badger struct {
		Path     string `json:"path" toml:"path" yaml:"path"`
		InMemory bool   `json:"in_memory" toml:"in_memory" yaml:"in_memory"`
	} `json:"badger" toml:"badger" yaml:"badger"`

	Server struct {
		Host string `json:"host" toml:"host" yaml:"host"`
		Port int    `json:"port" toml:"port" yaml:"port" validate:"min=1,max=65535"`
		// 推送给 websocket 客户端的 PROGRESS 事件最小间隔
		ProgressThrottleMs int `json:"progress_throttle_ms" toml:"progress_throttle_ms" yaml:"progress_throttle_ms" validate:"min=0"`
	} `json:"server" toml:"server" yaml:"server"`

	Orchestrator struct {
		BootTimeoutMs           int    `json:"boot_timeout_ms" toml:"boot_timeout_ms" yaml:"boot_timeout_ms" validate:"min=0"`
		InjectGraceMs           int    `json:"inject_grace_ms" toml:"inject_grace_ms" yaml:"inject_grace_ms" validate:"min=0"`
		ReuseGraceMs            int    `json:"reuse_grace_ms" toml:"reuse_grace_ms" yaml:"reuse_grace_ms" validate:"min=0"`
		ReadyTimeoutMs          int    `json:"ready_timeout_ms" toml:"ready_timeout_ms" yaml:"ready_timeout_ms" validate:"min=0"`
		SessionBackoffMs        []int  `json:"session_backoff_ms" toml:"session_backoff_ms" yaml:"session_backoff_ms" validate:"dive,min=0"`
		SessionRequestTimeoutMs int    `json:"session_request_timeout_ms" toml:"session_request_timeout_ms" yaml:"session_request_timeout_ms" validate:"min=0"`
		SessionCheckTimeoutMs   int    `json:"session_check_timeout_ms" toml:"session_check_timeout_ms" yaml:"session_check_timeout_ms" validate:"min=0"`
		ExtractionTimeoutMs     int    `json:"extraction_timeout_ms" toml:"extraction_timeout_ms" yaml:"extraction_timeout_ms" validate:"min=0"`
		LockTimeoutMs           int    `json:"lock_timeout_ms" toml:"lock_timeout_ms" yaml:"lock_timeout_ms" validate:"min=0"`
		SnapshotSchedule        string `json:"snapshot_schedule" toml:"snapshot_schedule" yaml:"snapshot_schedule"`
	} `json:"orchestrator" toml:"orchestrator" yaml:"orchestrator"`

	Capture struct {
		SettleMs           int     `json:"settle_ms" toml:"settle_ms" yaml:"settle_ms" validate:"min=0"`
		FastDelayMs        int     `json:"fast_delay_ms" toml:"fast_delay_ms" yaml:"fast_delay_ms" validate:"min=0"`
		NormalDelayMs      int     `json:"normal_delay_ms" toml:"normal_delay_ms" yaml:"normal_delay_ms" validate:"min=0"`
		SlowDelayMs        int     `json:"slow_delay_ms" toml:"slow_delay_ms" yaml:"slow_delay_ms" validate:"min=0"`
		ProgressIntervalMs int     `json:"progress_interval_ms" toml:"progress_interval_ms" yaml:"progress_interval_ms" validate:"min=0"`
		MinStep            float64 `json:"min_step" toml:"min_step" yaml:"min_step" validate:"min=0,max=1"`
		MaxStep            float64 `json:"max_step" toml:"max_step" yaml:"max_step" validate:"min=0,max=1"`
		NoNewLimit         int     `json:"no_new_limit" toml:"no_new_limit" yaml:"no_new_limit" validate:"min=0"`
		FastStreakLimit    int     `json:"fast_streak_limit" toml:"fast_streak_limit" yaml:"fast_streak_limit" validate:"min=0"`
		MaxAttempts        int     `json:"max_attempts" toml:"max_attempts" yaml:"max_attempts" validate:"min=0"`
		MaxSweeps          int     `json:"max_sweeps" toml:"max_sweeps" yaml:"max_sweeps" validate:"min=0"`
	} `json:"capture" toml:"capture" yaml:"capture"`

	Navigation struct {
		Retries        int `json:"retries" toml:"retries" yaml:"retries" validate:"min=0"`
		BackoffMs      int `json:"backoff_ms" toml:"backoff_ms" yaml:"backoff_ms" validate:"min=0"`
		TypeDelayMs    int `json:"type_delay_ms" toml:"type_delay_ms" yaml:"type_delay_ms" validate:"min=0"`
		SearchSettleMs int `json:"search_settle_ms" toml:"search_settle_ms" yaml:"search_settle_ms" validate:"min=0"`
		VerifyDistance int `json:"verify_distance" toml:"verify_distance" yaml:"verify_distance" validate:"min=0"`
		ListDistance   int `json:"list_distance" toml:"list_distance" yaml:"list_distance" validate:"min=0"`
	} `json:"navigation" toml:"navigation" yaml:"navigation"`

	Worker struct {
		MaxEntities int `json:"max_entities" toml:"max_entities" yaml:"max_entities" validate:"min=0"`
		CacheTTLMs  int `json:"cache_ttl_ms" toml:"cache_ttl_ms" yaml:"cache_ttl_ms" validate:"min=0"`
		CacheSize   int `json:"cache_size" toml:"cache_size" yaml:"cache_size" validate:"min=0"`
	} `json:"worker" toml:"worker" yaml:"worker"`
}
