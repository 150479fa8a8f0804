package collector

import (
	"strings"
	"sync"
	"time"

	"github.com/LouYuanbo1/groupagent/internal/domain/model"
)

const DefaultMaxEntities = 10000

// Collector 按 key 去重的成员集合,保持首次观察的插入顺序
type Collector struct {
	mu          sync.Mutex
	maxEntities int
	seen        map[string]struct{}
	members     []model.Member
	now         func() time.Time
}

func NewCollector(maxEntities int) *Collector {
	if maxEntities <= 0 {
		maxEntities = DefaultMaxEntities
	}
	return &Collector{
		maxEntities: maxEntities,
		seen:        make(map[string]struct{}),
		now:         time.Now,
	}
}

func (c *Collector) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.seen = make(map[string]struct{})
	c.members = nil
}

// Observe 记录一次观察,只有首次出现的合法成员返回 true。
// 达到上限后一律返回 false。
func (c *Collector) Observe(text, phone string, privileged bool) bool {
	name := NormalizeName(text)
	if !ValidName(name) {
		return false
	}
	digits := SanitizePhone(phone)
	key := digits
	if key == "" {
		key = strings.ToLower(name)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.members) >= c.maxEntities {
		return false
	}
	if _, ok := c.seen[key]; ok {
		return false
	}
	c.seen[key] = struct{}{}
	c.members = append(c.members, model.Member{
		Key:          key,
		DisplayName:  name,
		Phone:        digits,
		IsPrivileged: privileged,
		ObservedAt:   c.now(),
	})
	return true
}

func (c *Collector) Values() []model.Member {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]model.Member, len(c.members))
	copy(out, c.members)
	return out
}

func (c *Collector) Size() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.members)
}

// Full 是否已到达上限
func (c *Collector) Full() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.members) >= c.maxEntities
}
