package transport

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/ternarybob/arbor"
)

// Handler 处理一条消息,返回 nil 表示不应答
type Handler func(ctx context.Context, msg *Message) (*Message, error)

// Bus 进程内的消息总线,每条消息在独立 goroutine 中处理
type Bus struct {
	mu        sync.RWMutex
	endpoints map[string]Handler
	logger    arbor.ILogger
}

func NewBus(logger arbor.ILogger) *Bus {
	return &Bus{
		endpoints: make(map[string]Handler),
		logger:    logger,
	}
}

// Register 注册端点,同名端点会被替换
func (b *Bus) Register(name string, h Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.endpoints[name] = h
}

func (b *Bus) Unregister(name string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.endpoints, name)
}

func (b *Bus) Has(name string) bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	_, ok := b.endpoints[name]
	return ok
}

func (b *Bus) handler(name string) (Handler, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	h, ok := b.endpoints[name]
	return h, ok
}

// Request 发送请求并等待应答。超时、端点不存在、处理失败或没有应答时返回 nil,
// 调用方只需要判断 nil。
func (b *Bus) Request(ctx context.Context, target string, msg *Message, timeout time.Duration) *Message {
	h, ok := b.handler(target)
	if !ok {
		b.logger.Debug().Str("target", target).Str("type", msg.Type).Msg("request to unknown endpoint")
		return nil
	}
	req := *msg
	req.ID = uuid.NewString()
	data, err := encode(&req)
	if err != nil {
		b.logger.Warn().Err(err).Str("type", msg.Type).Msg("encode request failed")
		return nil
	}

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	replyCh := make(chan []byte, 1)
	go func() {
		reply, err := b.dispatch(ctx, h, data)
		if err != nil {
			b.logger.Debug().Err(err).Str("target", target).Str("type", req.Type).Msg("request failed")
			replyCh <- nil
			return
		}
		if reply == nil {
			replyCh <- nil
			return
		}
		reply.ID = req.ID
		out, err := encode(reply)
		if err != nil {
			b.logger.Warn().Err(err).Str("type", reply.Type).Msg("encode reply failed")
			replyCh <- nil
			return
		}
		replyCh <- out
	}()

	select {
	case <-ctx.Done():
		b.logger.Debug().Str("target", target).Str("type", req.Type).Msg("request timed out")
		return nil
	case out := <-replyCh:
		if out == nil {
			return nil
		}
		reply, err := decode(out)
		if err != nil {
			return nil
		}
		return reply
	}
}

// Send 只投递不等待,失败仅记录日志
func (b *Bus) Send(ctx context.Context, target string, msg *Message) {
	h, ok := b.handler(target)
	if !ok {
		return
	}
	req := *msg
	req.ID = uuid.NewString()
	data, err := encode(&req)
	if err != nil {
		b.logger.Warn().Err(err).Str("type", msg.Type).Msg("encode message failed")
		return
	}
	ctx = context.WithoutCancel(ctx)
	go func() {
		if _, err := b.dispatch(ctx, h, data); err != nil {
			b.logger.Debug().Err(err).Str("target", target).Str("type", req.Type).Msg("send failed")
		}
	}()
}

func (b *Bus) dispatch(ctx context.Context, h Handler, data []byte) (reply *Message, err error) {
	defer func() {
		if r := recover(); r != nil {
			reply = nil
			err = fmt.Errorf("handler panic: %v", r)
		}
	}()
	msg, err := decode(data)
	if err != nil {
		return nil, fmt.Errorf("decode message: %w", err)
	}
	return h(ctx, msg)
}
