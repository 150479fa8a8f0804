package dom

import (
	"context"
	"fmt"

	"github.com/LouYuanbo1/groupagent/internal/infra/crawler/chrome"
	"github.com/LouYuanbo1/groupagent/internal/service/capture"
)

var errScrollRegion = fmt.Errorf("no scrollable member list inside dialog")

// container 通过标记属性引用弹窗里的滚动区域,标记丢失即视为已脱离文档
type container struct {
	driver chrome.Driver
}

func (c *container) Metrics(ctx context.Context) (capture.Metrics, error) {
	var m *capture.Metrics
	if err := c.driver.Eval(ctx, jsMetrics, &m, scrollMarker); err != nil {
		return capture.Metrics{}, err
	}
	if m == nil {
		return capture.Metrics{}, capture.ErrDetached
	}
	return *m, nil
}

func (c *container) ScrollTo(ctx context.Context, top float64) error {
	var ok bool
	if err := c.driver.Eval(ctx, jsScrollTo, &ok, scrollMarker, top); err != nil {
		return err
	}
	if !ok {
		return capture.ErrDetached
	}
	return nil
}
