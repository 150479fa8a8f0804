// Package discovery 按顺序尝试多种查找策略,返回第一个命中的结果。
// 页面结构随版本变化,每个查找点都以有序的候选策略表示,而不是写死单一选择器。
package discovery

import (
	"context"
	"errors"
	"fmt"
)

var ErrNotFound = errors.New("no strategy matched")

// Strategy 一个无副作用或副作用可接受的查找方式
type Strategy[T any] struct {
	Name string
	Find func(ctx context.Context) (T, bool, error)
}

// First 依次执行策略,返回第一个命中的结果和策略名。
// 单个策略出错不会中断后续策略;全部未命中时返回 ErrNotFound 并附带各策略的错误。
func First[T any](ctx context.Context, strategies ...Strategy[T]) (T, string, error) {
	var zero T
	var errs []error
	for _, s := range strategies {
		if err := ctx.Err(); err != nil {
			return zero, "", err
		}
		v, ok, err := s.Find(ctx)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return zero, "", ctxErr
			}
			errs = append(errs, fmt.Errorf("%s: %w", s.Name, err))
			continue
		}
		if ok {
			return v, s.Name, nil
		}
	}
	return zero, "", errors.Join(append([]error{ErrNotFound}, errs...)...)
}
