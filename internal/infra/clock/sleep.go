// Package clock 提供可被 ctx 取消的等待
package clock

import (
	"context"
	"time"
)

// Sleep 等待 d 或直到 ctx 结束。d<=0 时不等待,只返回 ctx 的状态。
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
