package capture

import "time"

// Options 滚动采集的调节参数,零值字段取默认值
type Options struct {
	Settle           time.Duration
	FastDelay        time.Duration
	NormalDelay      time.Duration
	SlowDelay        time.Duration
	NewItemsPause    time.Duration
	TrailingDelay    time.Duration
	SweepSettle      time.Duration
	SweepDelay       time.Duration
	ProgressInterval time.Duration

	MinStep float64
	MaxStep float64

	// 速度单位: 新增条目数 / 毫秒
	HighVelocity float64
	LowVelocity  float64

	VelocityWindow        int
	VelocityCheckInterval int
	MinVelocitySamples    int
	NoNewLimit            int
	FastStreakLimit       int
	MaxAttempts           int
	TrailingPasses        int
	MaxSweeps             int

	BottomEpsilon float64
	BottomSlack   float64
}

func DefaultOptions() Options {
	return Options{
		Settle:                600 * time.Millisecond,
		FastDelay:             200 * time.Millisecond,
		NormalDelay:           300 * time.Millisecond,
		SlowDelay:             400 * time.Millisecond,
		NewItemsPause:         200 * time.Millisecond,
		TrailingDelay:         150 * time.Millisecond,
		SweepSettle:           300 * time.Millisecond,
		SweepDelay:            100 * time.Millisecond,
		ProgressInterval:      150 * time.Millisecond,
		MinStep:               0.15,
		MaxStep:               0.35,
		HighVelocity:          0.05,
		LowVelocity:           0.01,
		VelocityWindow:        10,
		VelocityCheckInterval: 5,
		MinVelocitySamples:    5,
		NoNewLimit:            8,
		FastStreakLimit:       20,
		MaxAttempts:           500,
		TrailingPasses:        2,
		MaxSweeps:             30,
		BottomEpsilon:         5,
		BottomSlack:           10,
	}
}

func (o Options) withDefaults() Options {
	d := DefaultOptions()
	setDur := func(v *time.Duration, def time.Duration) {
		if *v <= 0 {
			*v = def
		}
	}
	setInt := func(v *int, def int) {
		if *v <= 0 {
			*v = def
		}
	}
	setFloat := func(v *float64, def float64) {
		if *v <= 0 {
			*v = def
		}
	}
	setDur(&o.Settle, d.Settle)
	setDur(&o.FastDelay, d.FastDelay)
	setDur(&o.NormalDelay, d.NormalDelay)
	setDur(&o.SlowDelay, d.SlowDelay)
	setDur(&o.NewItemsPause, d.NewItemsPause)
	setDur(&o.TrailingDelay, d.TrailingDelay)
	setDur(&o.SweepSettle, d.SweepSettle)
	setDur(&o.SweepDelay, d.SweepDelay)
	setDur(&o.ProgressInterval, d.ProgressInterval)
	setFloat(&o.MinStep, d.MinStep)
	setFloat(&o.MaxStep, d.MaxStep)
	setFloat(&o.HighVelocity, d.HighVelocity)
	setFloat(&o.LowVelocity, d.LowVelocity)
	setInt(&o.VelocityWindow, d.VelocityWindow)
	setInt(&o.VelocityCheckInterval, d.VelocityCheckInterval)
	setInt(&o.MinVelocitySamples, d.MinVelocitySamples)
	setInt(&o.NoNewLimit, d.NoNewLimit)
	setInt(&o.FastStreakLimit, d.FastStreakLimit)
	setInt(&o.MaxAttempts, d.MaxAttempts)
	setInt(&o.TrailingPasses, d.TrailingPasses)
	setInt(&o.MaxSweeps, d.MaxSweeps)
	setFloat(&o.BottomEpsilon, d.BottomEpsilon)
	setFloat(&o.BottomSlack, d.BottomSlack)
	if o.MaxStep < o.MinStep {
		o.MaxStep = o.MinStep
	}
	return o
}
