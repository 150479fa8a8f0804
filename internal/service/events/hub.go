package events

import (
	"sync"
	"time"

	"github.com/ternarybob/arbor"
)

// Event 协调端对外广播的事件
type Event struct {
	Type    string    `json:"type"`
	JobID   string    `json:"job_id,omitempty"`
	Payload any       `json:"payload,omitempty"`
	At      time.Time `json:"at"`
}

// Hub 进程内的发布订阅。每个订阅者一个有序缓冲通道,
// 通道满时丢弃该订阅者的事件;MustDeliver 指定的类型会先等待一段时间再丢弃。
type Hub struct {
	mu     sync.RWMutex
	subs   map[int]chan Event
	next   int
	buffer int
	closed bool
	logger arbor.ILogger

	mustDeliver map[string]struct{}
	deliverWait time.Duration
}

func NewHub(buffer int, logger arbor.ILogger) *Hub {
	if buffer <= 0 {
		buffer = 256
	}
	return &Hub{
		subs:   make(map[int]chan Event),
		buffer: buffer,
		logger: logger,
	}
}

// MustDeliver 让指定类型的事件在订阅者积压时最多等待 wait,需在发布前调用
func (h *Hub) MustDeliver(wait time.Duration, types ...string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.deliverWait = wait
	h.mustDeliver = make(map[string]struct{}, len(types))
	for _, t := range types {
		h.mustDeliver[t] = struct{}{}
	}
}

// Subscribe 返回事件通道和取消函数,取消后通道被关闭
func (h *Hub) Subscribe() (<-chan Event, func()) {
	h.mu.Lock()
	defer h.mu.Unlock()

	ch := make(chan Event, h.buffer)
	if h.closed {
		close(ch)
		return ch, func() {}
	}
	id := h.next
	h.next++
	h.subs[id] = ch
	h.logger.Debug().Int("subscriber_count", len(h.subs)).Msg("Event subscriber added")

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			h.mu.Lock()
			defer h.mu.Unlock()
			if c, ok := h.subs[id]; ok {
				delete(h.subs, id)
				close(c)
			}
		})
	}
}

func (h *Hub) Publish(ev Event) {
	if ev.At.IsZero() {
		ev.At = time.Now()
	}
	h.mu.RLock()
	defer h.mu.RUnlock()

	// 所有积压的订阅者共用同一个等待期限
	var expired <-chan time.Time
	if _, ok := h.mustDeliver[ev.Type]; ok && h.deliverWait > 0 {
		timer := time.NewTimer(h.deliverWait)
		defer timer.Stop()
		expired = timer.C
	}
	for id, ch := range h.subs {
		select {
		case ch <- ev:
			continue
		default:
		}
		if expired != nil {
			select {
			case ch <- ev:
				continue
			case <-expired:
				expired = nil
			}
		}
		h.logger.Warn().Int("subscriber", id).Str("event_type", ev.Type).Msg("Event subscriber lagging, event dropped")
	}
}

// Close 关闭所有订阅通道
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return
	}
	h.closed = true
	for id, ch := range h.subs {
		delete(h.subs, id)
		close(ch)
	}
}
