package worker

import (
	"time"

	"github.com/LouYuanbo1/groupagent/internal/domain/model"
	"github.com/dgraph-io/ristretto/v2"
)

type cachedResult struct {
	Members []model.Member
	Meta    model.ExtractionMeta
}

// ResultCache 按目标缓存最近的提取结果,ttl<=0 时不缓存
type ResultCache struct {
	cache *ristretto.Cache[string, cachedResult]
	ttl   time.Duration
}

func NewResultCache(ttl time.Duration, size int) (*ResultCache, error) {
	if ttl <= 0 {
		return &ResultCache{}, nil
	}
	if size <= 0 {
		size = 100
	}
	cache, err := ristretto.NewCache(&ristretto.Config[string, cachedResult]{
		NumCounters:        int64(size) * 10,
		MaxCost:            int64(size),
		BufferItems:        64,
		IgnoreInternalCost: true,
	})
	if err != nil {
		return nil, err
	}
	return &ResultCache{cache: cache, ttl: ttl}, nil
}

func cacheKey(t Target) string {
	if t.ID != "" {
		return "id:" + t.ID
	}
	return "name:" + foldTitle(t.Name)
}

func (rc *ResultCache) Get(t Target) ([]model.Member, model.ExtractionMeta, bool) {
	if rc == nil || rc.cache == nil {
		return nil, model.ExtractionMeta{}, false
	}
	v, ok := rc.cache.Get(cacheKey(t))
	if !ok {
		return nil, model.ExtractionMeta{}, false
	}
	return v.Members, v.Meta, true
}

func (rc *ResultCache) Put(t Target, members []model.Member, meta model.ExtractionMeta) {
	if rc == nil || rc.cache == nil {
		return
	}
	rc.cache.SetWithTTL(cacheKey(t), cachedResult{Members: members, Meta: meta}, 1, rc.ttl)
	rc.cache.Wait()
}

func (rc *ResultCache) Close() {
	if rc == nil || rc.cache == nil {
		return
	}
	rc.cache.Close()
}
