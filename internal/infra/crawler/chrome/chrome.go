package chrome

import (
	"context"
	"errors"
)

// ErrPageClosed 页面已经被关闭
var ErrPageClosed = errors.New("page closed")

// Driver 在页面内执行脚本和输入。Eval 的 js 是一个函数表达式,
// 返回值必须是 JSON.stringify 的结果,反序列化到 out。
type Driver interface {
	Eval(ctx context.Context, js string, out any, args ...any) error
	InsertText(ctx context.Context, text string) error
	PressEscape(ctx context.Context) error
}

// Page 承载 worker 的浏览器页面
type Page interface {
	ID() string
	URL() string
	WaitLoad(ctx context.Context) error
	Driver() Driver
	Close(ctx context.Context) error
}

// PageHost 提供目标站点的页面:优先复用已打开的匹配页面,否则新建后台页面。
// created 为 true 时页面归调用方所有,用完需要关闭。
// 新建页面在初始化过程中失败时,返回的 err 非空但 page 仍然有效,调用方负责关闭,
// 因为 ctx 此时可能已经过期,无法再用它关闭页面。
type PageHost interface {
	Acquire(ctx context.Context) (page Page, created bool, err error)
	Close()
}
